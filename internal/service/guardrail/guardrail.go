// Package guardrail rejects off-topic and prompt-injection queries
// before any LLM is invoked. Pure and synchronous.
package guardrail

import (
	"regexp"
	"strings"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// Result is the guardrail verdict.
type Result struct {
	Allowed bool
	Reason  string
	Message string // canned user-facing rejection text
}

const rejectionMessage = "I can only answer questions about the CVs and candidates in this session. " +
	"Try asking about candidate skills, experience, rankings or team composition."

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bignore\b.{0,30}\b(previous|prior|above|all)\b.{0,30}\b(instructions?|prompts?|rules?)\b`),
	regexp.MustCompile(`(?i)\bdisregard\b.{0,30}\b(instructions?|rules?|guidelines?)\b`),
	regexp.MustCompile(`(?i)\byou are now\b|\bpretend (to be|you are)\b|\bact as (a|an)\b`),
	regexp.MustCompile(`(?i)\bsystem prompt\b|\breveal\b.{0,20}\b(prompt|instructions?)\b`),
	regexp.MustCompile(`(?i)\bjailbreak\b|\bDAN mode\b`),
	regexp.MustCompile(`(?i)\boverride\b.{0,20}\b(safety|guardrails?|restrictions?)\b`),
}

var offTopicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\btell me a joke\b|\bwrite (me )?a (poem|song|story|essay)\b`),
	regexp.MustCompile(`(?i)\bweather\b|\bstock (price|market)\b|\brecipe\b|\bsports? (score|result)s?\b`),
	regexp.MustCompile(`(?i)\b(translate|solve)\b.{0,30}\b(equation|math problem)\b`),
}

// Guardrail is a pattern-based query policy check.
type Guardrail struct{}

// New constructs a Guardrail.
func New() *Guardrail { return &Guardrail{} }

// Check evaluates a query together with the understanding verdict. A
// query flagged non-CV-related upstream is rejected without pattern
// matching.
func (g *Guardrail) Check(query string, understanding *domain.QueryUnderstanding) Result {
	if understanding != nil && !understanding.IsCVRelated {
		return reject("not_cv_related")
	}
	if strings.TrimSpace(query) == "" {
		return reject("empty_query")
	}
	for _, p := range injectionPatterns {
		if p.MatchString(query) {
			return reject("prompt_injection")
		}
	}
	for _, p := range offTopicPatterns {
		if p.MatchString(query) {
			return reject("off_topic")
		}
	}
	return Result{Allowed: true}
}

func reject(reason string) Result {
	return Result{Allowed: false, Reason: reason, Message: rejectionMessage}
}
