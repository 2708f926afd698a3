// Package rerank re-orders retrieved chunks by LLM-judged relevance.
// Results are re-sorted, never truncated, so downstream stages keep the
// full retrieval context. Any failure passes results through unchanged.
package rerank

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/observability"
	"github.com/fairyhunter13/cv-rag/pkg/textx"
)

// Service implements domain.Reranker on an LLM.
type Service struct {
	llm     domain.LLM
	model   string
	enabled bool
}

// New constructs the reranker. When disabled, Rerank is a no-op.
func New(llm domain.LLM, model string, enabled bool) *Service {
	return &Service{llm: llm, model: model, enabled: enabled}
}

const systemPrompt = `You score how relevant each CV chunk is to a recruiter's question.
Respond with only a JSON array, one object per chunk, shaped as:
[{"index": <chunk number>, "score": <0-10 relevance>}]
Score every chunk you were given.`

var codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// Rerank asks the LLM for a relevance score per chunk and re-sorts. On
// any failure the input order is returned unchanged.
func (s *Service) Rerank(ctx domain.Context, query string, results []domain.SearchResult) ([]domain.SearchResult, error) {
	if !s.enabled || len(results) < 2 {
		return results, nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nChunks:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] (cv=%s, section=%s) %s\n", i, r.CVID, r.Section, textx.NormalizeSpace(textx.Truncate(r.Content, 500)))
	}
	res, err := s.llm.Generate(ctx, domain.GenerateRequest{
		Model:        s.model,
		SystemPrompt: systemPrompt,
		Prompt:       b.String(),
		MaxTokens:    1024,
		Temperature:  0,
	})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("rerank failed, passing through",
			slog.Any("error", err), slog.String("model", s.model))
		return results, nil
	}
	scores, ok := parseScores(res.Text, len(results))
	if !ok {
		observability.LoggerFromContext(ctx).Warn("rerank response unparseable, passing through",
			slog.String("model", s.model))
		return results, nil
	}
	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	out := make([]domain.SearchResult, len(results))
	for i, idx := range order {
		out[i] = results[idx]
	}
	return out, nil
}

type scoreEntry struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// parseScores decodes the JSON score array into a per-input-index score
// slice. Missing indices keep score 0; out-of-range indices are ignored.
func parseScores(text string, n int) ([]float64, bool) {
	body := strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if i := strings.Index(body, "["); i > 0 {
		body = body[i:]
	}
	if i := strings.LastIndex(body, "]"); i >= 0 {
		body = body[:i+1]
	}
	var entries []scoreEntry
	if err := json.Unmarshal([]byte(body), &entries); err != nil || len(entries) == 0 {
		return nil, false
	}
	scores := make([]float64, n)
	seen := 0
	for _, e := range entries {
		if e.Index >= 0 && e.Index < n {
			scores[e.Index] = e.Score
			seen++
		}
	}
	return scores, seen > 0
}
