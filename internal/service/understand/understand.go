// Package understand classifies user queries into intents and
// reformulates them for retrieval. A fast LLM does the heavy lifting;
// when the call fails or returns garbage a keyword heuristic keeps the
// pipeline moving.
package understand

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/observability"
)

const systemPrompt = `You classify questions asked over a corpus of CVs (résumés).
Respond with only a JSON object, no prose, shaped as:
{"type":"<one of: single_candidate, ranking, comparison, search, job_match, team_build, risk_assessment, verification, summary, initial, red_flags>",
 "is_cv_related": true|false,
 "understood": "<one sentence restating the question>",
 "reformulated_prompt": "<the question rewritten for semantic retrieval>",
 "requirements": ["<explicit requirement>", ...]}
Questions unrelated to candidates, hiring or CVs get is_cv_related=false.`

// Service wraps the classification LLM.
type Service struct {
	llm   domain.LLM
	model string
}

// New constructs the service on the given LLM and model id.
func New(llm domain.LLM, model string) *Service {
	return &Service{llm: llm, model: model}
}

// Understand classifies query. On LLM failure it degrades to the
// keyword heuristic rather than failing the whole pipeline.
func (s *Service) Understand(ctx domain.Context, query string) (domain.QueryUnderstanding, error) {
	if strings.TrimSpace(query) == "" {
		return domain.QueryUnderstanding{}, fmt.Errorf("%w: empty query", domain.ErrInvalidArgument)
	}
	res, err := s.llm.Generate(ctx, domain.GenerateRequest{
		Model:        s.model,
		SystemPrompt: systemPrompt,
		Prompt:       query,
		MaxTokens:    512,
		Temperature:  0,
	})
	if err != nil {
		observability.LoggerFromContext(ctx).Warn("query understanding degraded to heuristic",
			slog.Any("error", err))
		return Heuristic(query), nil
	}
	qu, ok := parseLLMResponse(query, res.Text)
	if !ok {
		observability.LoggerFromContext(ctx).Warn("query understanding unparseable, using heuristic",
			slog.String("model", s.model))
		return Heuristic(query), nil
	}
	return qu, nil
}

type llmResponse struct {
	Type               string   `json:"type"`
	IsCVRelated        *bool    `json:"is_cv_related"`
	Understood         string   `json:"understood"`
	ReformulatedPrompt string   `json:"reformulated_prompt"`
	Requirements       []string `json:"requirements"`
}

var codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// parseLLMResponse unwraps code fences and decodes the JSON envelope.
func parseLLMResponse(original, text string) (domain.QueryUnderstanding, bool) {
	body := strings.TrimSpace(text)
	if m := codeFence.FindStringSubmatch(body); m != nil {
		body = strings.TrimSpace(m[1])
	}
	// Tolerate prose around the object.
	if i := strings.Index(body, "{"); i > 0 {
		body = body[i:]
	}
	if i := strings.LastIndex(body, "}"); i >= 0 {
		body = body[:i+1]
	}
	var r llmResponse
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return domain.QueryUnderstanding{}, false
	}
	qt := domain.QueryType(strings.ToLower(strings.TrimSpace(r.Type)))
	if !validType(qt) {
		return domain.QueryUnderstanding{}, false
	}
	qu := domain.QueryUnderstanding{
		Original:           original,
		Understood:         r.Understood,
		Type:               qt,
		Requirements:       r.Requirements,
		ReformulatedPrompt: r.ReformulatedPrompt,
		IsCVRelated:        r.IsCVRelated == nil || *r.IsCVRelated,
	}
	if qu.ReformulatedPrompt == "" {
		qu.ReformulatedPrompt = original
	}
	if qu.Understood == "" {
		qu.Understood = original
	}
	return qu, true
}

func validType(t domain.QueryType) bool {
	switch t {
	case domain.QuerySingleCandidate, domain.QueryRanking, domain.QueryComparison,
		domain.QuerySearch, domain.QueryJobMatch, domain.QueryTeamBuild,
		domain.QueryRiskAssessment, domain.QueryVerification, domain.QuerySummary,
		domain.QueryInitial, domain.QueryRedFlags:
		return true
	}
	return false
}

var heuristicRules = []struct {
	re *regexp.Regexp
	t  domain.QueryType
}{
	{regexp.MustCompile(`(?i)\b(rank|ranking|order|top \d|best \d|score (all|every))\b`), domain.QueryRanking},
	{regexp.MustCompile(`(?i)\b(compare|comparison|versus|vs\.?|difference between)\b`), domain.QueryComparison},
	{regexp.MustCompile(`(?i)\b(build|assemble|form|compose)\b.*\bteam\b|\bteam\b.*\b(build|assemble)\b`), domain.QueryTeamBuild},
	{regexp.MustCompile(`(?i)\b(risk|risks|risky|concerns about)\b`), domain.QueryRiskAssessment},
	{regexp.MustCompile(`(?i)\b(red flags?|warning signs?)\b`), domain.QueryRedFlags},
	{regexp.MustCompile(`(?i)\b(verify|confirm|check (that|if|whether)|is it true)\b`), domain.QueryVerification},
	{regexp.MustCompile(`(?i)\b(match|fit|suitable|qualified) (for|against|to)\b|\bjob (description|requirements)\b`), domain.QueryJobMatch},
	{regexp.MustCompile(`(?i)\b(overview|summar(y|ize|ise)|statistics|how many (cvs|candidates))\b`), domain.QuerySummary},
	{regexp.MustCompile(`(?i)\b(find|search|who (has|have|knows)|which candidates?|anyone with)\b`), domain.QuerySearch},
	{regexp.MustCompile(`(?i)\b(profile|tell me about|details (on|about|of))\b`), domain.QuerySingleCandidate},
}

var offTopic = regexp.MustCompile(`(?i)\b(joke|weather|recipe|poem|song|stock price|sports?)\b`)

// Heuristic is the deterministic keyword fallback. Exported so tests and
// the local stub wiring can exercise the same rules.
func Heuristic(query string) domain.QueryUnderstanding {
	qu := domain.QueryUnderstanding{
		Original:           query,
		Understood:         query,
		Type:               domain.QuerySearch,
		ReformulatedPrompt: query,
		IsCVRelated:        !offTopic.MatchString(query),
	}
	for _, rule := range heuristicRules {
		if rule.re.MatchString(query) {
			qu.Type = rule.t
			break
		}
	}
	return qu
}
