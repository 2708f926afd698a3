// Package generate builds the answer prompt from retrieved chunks,
// conversation history and explicit requirements, then calls the
// generation LLM.
package generate

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/cv-rag/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/pkg/textx"
)

const systemPrompt = `You are a recruitment analyst answering questions over a set of CVs.
Ground every claim in the provided CV chunks; never invent candidates, skills or dates.
Reference candidates with markdown CV links of the form [📄](cv:CV_ID) **Name**.
Structure longer answers with an optional :::thinking ... ::: block, the answer body
(use pipe tables for multi-candidate comparisons) and a :::conclusion ... ::: block.`

// Service drives the generation LLM.
type Service struct {
	llm     domain.LLM
	model   string
	counter *tokencount.Counter
}

// New constructs the generator.
func New(llm domain.LLM, model string, counter *tokencount.Counter) *Service {
	return &Service{llm: llm, model: model, counter: counter}
}

// Output carries the model text plus token accounting.
type Output struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	LatencyMS        int64
}

// Generate renders the prompt and calls the LLM. historyTurns bounds how
// many prior turns are included.
func (s *Service) Generate(ctx domain.Context, question string, results []domain.SearchResult, requirements []string, history []domain.Message, historyTurns int) (Output, error) {
	prompt := BuildPrompt(question, results, requirements, history, historyTurns)
	res, err := s.llm.Generate(ctx, domain.GenerateRequest{
		Model:        s.model,
		SystemPrompt: systemPrompt,
		Prompt:       prompt,
		MaxTokens:    4096,
		Temperature:  0.2,
	})
	if err != nil {
		return Output{}, fmt.Errorf("op=generate.Generate: %w", err)
	}
	out := Output{
		Text:             res.Text,
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		LatencyMS:        res.LatencyMS,
	}
	// Providers that do not report usage get a local estimate.
	if (out.PromptTokens == 0 || out.CompletionTokens == 0) && s.counter != nil {
		usage := s.counter.CalculateUsage(systemPrompt, prompt, res.Text, s.model)
		if out.PromptTokens == 0 {
			out.PromptTokens = usage.PromptTokens
		}
		if out.CompletionTokens == 0 {
			out.CompletionTokens = usage.CompletionTokens
		}
	}
	return out, nil
}

// BuildPrompt renders the final user prompt: history, question, chunks
// with cv id and section, and the requirements the answer must address.
func BuildPrompt(question string, results []domain.SearchResult, requirements []string, history []domain.Message, historyTurns int) string {
	var b strings.Builder
	if turns := lastTurns(history, historyTurns); len(turns) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, m := range turns {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, textx.Truncate(textx.NormalizeSpace(m.Content), 600))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s\n\n", question)
	if len(results) > 0 {
		b.WriteString("CV chunks:\n")
		for i, r := range results {
			name := r.Metadata.CandidateName
			if name == "" {
				name = r.Filename
			}
			fmt.Fprintf(&b, "--- chunk %d | cv_id=%s | candidate=%s | section=%s ---\n%s\n",
				i+1, r.CVID, name, r.Section, strings.TrimSpace(r.Content))
		}
		b.WriteString("\n")
	}
	if len(requirements) > 0 {
		b.WriteString("The answer must explicitly address:\n")
		for _, req := range requirements {
			fmt.Fprintf(&b, "- %s\n", req)
		}
	}
	return b.String()
}

func lastTurns(history []domain.Message, n int) []domain.Message {
	if n <= 0 || len(history) == 0 {
		return nil
	}
	if len(history) > n {
		history = history[len(history)-n:]
	}
	return history
}
