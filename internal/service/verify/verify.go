// Package verify checks that a generated answer is grounded in the
// retrieved chunks: an LLM groundedness pass plus a heuristic check on
// cv ids and candidate names mentioned in the answer.
package verify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/observability"
	"github.com/fairyhunter13/cv-rag/pkg/textx"
)

// WarningSuffix is appended to answers that fail verification.
const WarningSuffix = "\n\n⚠️ Some statements above could not be verified against the indexed CVs."

const llmWeight, heuristicWeight = 0.6, 0.4

const systemPrompt = `You verify whether an answer about CV candidates is supported by the CV chunks provided.
Respond with only a JSON object:
{"groundedness": <0.0-1.0>,
 "verified_claims": ["<claim supported by the chunks>", ...],
 "ungrounded_claims": ["<claim with no support in the chunks>", ...]}`

// Service combines LLM and heuristic verification.
type Service struct {
	llm     domain.LLM
	model   string
	enabled bool
}

// New constructs the verifier. When disabled only the heuristic runs.
func New(llm domain.LLM, model string, enabled bool) *Service {
	return &Service{llm: llm, model: model, enabled: enabled}
}

var (
	cvLinkRef = regexp.MustCompile(`cv:([A-Za-z0-9_-]+)`)
	boldName  = regexp.MustCompile(`\*\*([A-Za-zÀ-ÿ' .-]{2,40})\*\*`)
	codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
)

// Verify runs both checks and combines them. An LLM failure degrades to
// heuristic-only verification instead of failing the pipeline.
func (s *Service) Verify(ctx domain.Context, answer string, results []domain.SearchResult) domain.VerificationResult {
	res := s.heuristic(answer, results)
	res.Enabled = s.enabled
	if !s.enabled {
		res.Confidence = res.HeuristicConfidence
		res.Passed = res.Confidence >= 0.5
		return res
	}

	grounded, verified, ungrounded, err := s.llmCheck(ctx, answer, results)
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("llm verification degraded to heuristic",
			slog.Any("error", err))
		res.Confidence = res.HeuristicConfidence
		res.Passed = res.Confidence >= 0.5
		return res
	}
	res.Groundedness = grounded
	res.VerifiedClaims = verified
	res.UngroundedClaims = ungrounded
	res.Confidence = llmWeight*grounded + heuristicWeight*res.HeuristicConfidence
	res.Passed = res.Confidence >= 0.5 && len(ungrounded) == 0
	if len(ungrounded) > 0 {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d claim(s) not supported by retrieved chunks", len(ungrounded)))
	}
	return res
}

// heuristic verifies every cv id and bold candidate name mentioned in
// the answer against the retrieved chunk set.
func (s *Service) heuristic(answer string, results []domain.SearchResult) domain.VerificationResult {
	knownIDs := make(map[string]struct{}, len(results))
	knownNames := make(map[string]struct{}, len(results))
	var corpus strings.Builder
	for _, r := range results {
		knownIDs[r.CVID] = struct{}{}
		if n := strings.ToLower(strings.TrimSpace(r.Metadata.CandidateName)); n != "" {
			knownNames[n] = struct{}{}
		}
		corpus.WriteString(strings.ToLower(r.Content))
		corpus.WriteString("\n")
	}
	corpusText := corpus.String()

	res := domain.VerificationResult{HeuristicConfidence: 1.0}
	checked, failed := 0, 0
	for _, m := range cvLinkRef.FindAllStringSubmatch(answer, -1) {
		checked++
		if _, ok := knownIDs[m[1]]; !ok {
			failed++
			res.Warnings = append(res.Warnings, fmt.Sprintf("cv id %q not in retrieved set", m[1]))
		}
	}
	for _, m := range boldName.FindAllStringSubmatch(answer, -1) {
		name := strings.ToLower(strings.TrimSpace(m[1]))
		if name == "" || isCommonEmphasis(name) {
			continue
		}
		checked++
		if _, ok := knownNames[name]; ok {
			continue
		}
		// Names can legitimately appear only in chunk text.
		if strings.Contains(corpusText, name) {
			continue
		}
		failed++
		res.Warnings = append(res.Warnings, fmt.Sprintf("candidate %q not found in retrieved chunks", m[1]))
	}
	if checked > 0 {
		res.HeuristicConfidence = 1.0 - float64(failed)/float64(checked)
	}
	return res
}

// isCommonEmphasis filters bold text that is not a candidate name.
func isCommonEmphasis(s string) bool {
	switch s {
	case "yes", "no", "note", "warning", "summary", "conclusion", "important",
		"recommendation", "top recommendation", "overall", "verdict":
		return true
	}
	return false
}

type llmVerdict struct {
	Groundedness     float64  `json:"groundedness"`
	VerifiedClaims   []string `json:"verified_claims"`
	UngroundedClaims []string `json:"ungrounded_claims"`
}

func (s *Service) llmCheck(ctx domain.Context, answer string, results []domain.SearchResult) (float64, []string, []string, error) {
	var b strings.Builder
	b.WriteString("Answer to verify:\n")
	b.WriteString(textx.Truncate(answer, 4000))
	b.WriteString("\n\nCV chunks:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] cv_id=%s: %s\n", i+1, r.CVID, textx.NormalizeSpace(textx.Truncate(r.Content, 800)))
	}
	res, err := s.llm.Generate(ctx, domain.GenerateRequest{
		Model:        s.model,
		SystemPrompt: systemPrompt,
		Prompt:       b.String(),
		MaxTokens:    1024,
		Temperature:  0,
	})
	if err != nil {
		return 0, nil, nil, fmt.Errorf("op=verify.llmCheck: %w", err)
	}
	body := strings.TrimSpace(res.Text)
	if m := codeFence.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	if i := strings.Index(body, "{"); i > 0 {
		body = body[i:]
	}
	if i := strings.LastIndex(body, "}"); i >= 0 {
		body = body[:i+1]
	}
	var v llmVerdict
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return 0, nil, nil, fmt.Errorf("op=verify.llmCheck parse: %w", err)
	}
	if v.Groundedness < 0 {
		v.Groundedness = 0
	}
	if v.Groundedness > 1 {
		v.Groundedness = 1
	}
	return v.Groundedness, v.VerifiedClaims, v.UngroundedClaims, nil
}
