// Package stub provides fast, deterministic AI providers for local mode
// and tests. Vectors are derived from token hashes so the same text
// always embeds identically and related texts land near each other.
package stub

import (
	"fmt"
	"hash/fnv"
	"math"
	"strings"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// Dim is the fixed embedding dimension of the stub embedder.
const Dim = 64

// Embedder is a deterministic bag-of-hashed-tokens embedder.
type Embedder struct{}

// NewEmbedder returns a deterministic stub embedder.
func NewEmbedder() *Embedder { return &Embedder{} }

// EmbedTexts hashes tokens into a fixed-dimension unit vector.
func (e *Embedder) EmbedTexts(_ domain.Context, texts []string) (domain.EmbedResult, error) {
	if len(texts) == 0 {
		return domain.EmbedResult{}, fmt.Errorf("%w: no texts to embed", domain.ErrInvalidArgument)
	}
	out := make([][]float32, len(texts))
	tokens := 0
	for i, t := range texts {
		out[i] = embedOne(t)
		tokens += len(strings.Fields(t))
	}
	return domain.EmbedResult{Embeddings: out, TokensUsed: tokens, LatencyMS: 0}, nil
}

// EmbedQuery embeds one query string.
func (e *Embedder) EmbedQuery(ctx domain.Context, text string) ([]float32, error) {
	res, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res.Embeddings[0], nil
}

func embedOne(text string) []float32 {
	vec := make([]float64, Dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		tok = strings.Trim(tok, ".,;:!?()[]{}\"'")
		if tok == "" {
			continue
		}
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		idx := int(sum % Dim)
		sign := 1.0
		if (sum>>16)&1 == 1 {
			sign = -1.0
		}
		vec[idx] += sign
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, Dim)
	if norm == 0 {
		out[0] = 1
		return out
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

// LLM is a canned-response generator for local mode. It echoes enough
// structure (direct answer + conclusion block) for the output processor
// to parse without a network dependency.
type LLM struct{}

// NewLLM returns the stub LLM.
func NewLLM() *LLM { return &LLM{} }

// Generate returns deterministic text derived from the prompt.
func (l *LLM) Generate(_ domain.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
	var b strings.Builder
	b.WriteString("Based on the indexed CVs, here is what the retrieved fragments support.\n\n")
	b.WriteString(":::conclusion\nAnswer derived from retrieved CV content only.\n:::\n")
	text := b.String()
	return domain.GenerateResult{
		Text:             text,
		PromptTokens:     len(strings.Fields(req.Prompt)),
		CompletionTokens: len(strings.Fields(text)),
		LatencyMS:        0,
	}, nil
}
