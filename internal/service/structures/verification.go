package structures

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fairyhunter13/cv-rag/pkg/textx"
)

// Verification verdicts.
const (
	VerdictConfirmed    = "CONFIRMED"
	VerdictPartial      = "PARTIAL"
	VerdictNotFound     = "NOT_FOUND"
	VerdictContradicted = "CONTRADICTED"
)

var verdictConfidence = map[string]float64{
	VerdictConfirmed:    0.9,
	VerdictPartial:      0.6,
	VerdictNotFound:     0.3,
	VerdictContradicted: 0.7,
}

// Evidence is one chunk excerpt supporting or refuting the claim.
type Evidence struct {
	CVID    string `json:"cv_id"`
	Excerpt string `json:"excerpt"`
}

var (
	claimStopwords = map[string]struct{}{
		"confirm": {}, "verify": {}, "check": {}, "whether": {}, "that": {},
		"does": {}, "has": {}, "have": {}, "had": {}, "the": {}, "a": {}, "an": {},
		"is": {}, "are": {}, "was": {}, "were": {}, "please": {}, "can": {},
		"you": {}, "tell": {}, "me": {}, "if": {}, "true": {}, "it": {},
		"and": {}, "or": {}, "of": {}, "in": {}, "for": {}, "with": {},
		"their": {}, "his": {}, "her": {}, "any": {}, "really": {}, "do": {},
	}
	claimToken   = regexp.MustCompile(`[a-zA-Z][a-zA-Z+#.-]{1,}`)
	negationNear = regexp.MustCompile(`(?i)\b(no|not|never|without|lacks?|missing)\b[^.\n]{0,40}`)

	affirmativeMarker = regexp.MustCompile(`(?i)\byes\b|\bconfirmed\b|\bverified\b|\bindeed\b`)
	negatingQualifier = regexp.MustCompile(`(?i)\bnot\b|\bno\b|\bcannot\b|\bunable\b|\bun(confirmed|verified)\b|\bhowever\b`)
)

// Verification builds the claim-verification structure. The verdict is
// computed from the retrieved chunks; the LLM conclusion is kept only
// when it does not contradict the computed verdict.
func Verification(in Input) map[string]any {
	claim := firstNonEmpty(in.Understanding.Understood, in.Query)
	terms := claimTerms(claim, Candidates(in.Results))

	var evidence []Evidence
	matched := make(map[string]struct{})
	contradicted := false
	for _, r := range in.Results {
		content := strings.ToLower(r.Content)
		hit := false
		for _, t := range terms {
			if strings.Contains(content, t) {
				matched[t] = struct{}{}
				hit = true
				if negatedNearby(content, t) {
					contradicted = true
				}
			}
		}
		if hit {
			evidence = append(evidence, Evidence{CVID: r.CVID, Excerpt: textx.Truncate(textx.NormalizeSpace(r.Content), 200)})
		}
	}

	verdict := VerdictNotFound
	switch {
	case contradicted:
		verdict = VerdictContradicted
	case len(terms) > 0 && len(matched) == len(terms):
		verdict = VerdictConfirmed
	case len(matched) > 0:
		verdict = VerdictPartial
	}
	confidence := verdictConfidence[verdict]

	conclusion := ValidateConclusion(in.Output.Conclusion, verdict, claim)

	doc := map[string]any{
		"structure_type": "verification",
		"thinking":       in.Output.Thinking,
		"claim":          claim,
		"evidence":       evidence,
		"verdict":        verdict,
		"confidence":     confidence,
		"conclusion":     conclusion,
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Claim: %s\n\nVerdict: **%s** (confidence %.0f%%)\n\n", claim, verdict, confidence*100)
	for _, e := range evidence {
		fmt.Fprintf(&b, "- (cv:%s) %s\n", e.CVID, e.Excerpt)
	}
	b.WriteString("\n:::conclusion\n" + conclusion + "\n:::")
	doc["formatted"] = strings.TrimSpace(b.String())
	return doc
}

// ValidateConclusion rewrites affirmative conclusions that conflict
// with a negative computed verdict. Derived data wins.
func ValidateConclusion(conclusion, verdict, claim string) string {
	negativeVerdict := verdict == VerdictNotFound || verdict == VerdictContradicted
	if conclusion == "" {
		return generatedConclusion(verdict, claim)
	}
	if negativeVerdict && affirmativeMarker.MatchString(conclusion) && !negatingQualifier.MatchString(conclusion) {
		return generatedConclusion(verdict, claim)
	}
	return conclusion
}

func generatedConclusion(verdict, claim string) string {
	switch verdict {
	case VerdictConfirmed:
		return fmt.Sprintf("The claim %q is confirmed by the indexed CVs.", claim)
	case VerdictPartial:
		return fmt.Sprintf("The claim %q is partially supported; some elements could not be verified.", claim)
	case VerdictContradicted:
		return fmt.Sprintf("Unable to verify the claim %q; the indexed CVs contradict it.", claim)
	default:
		return fmt.Sprintf("Unable to verify the claim %q against the indexed CVs.", claim)
	}
}

// claimTerms extracts the key terms of the claim: lowercased tokens
// minus stopwords and candidate names, so a name match alone cannot
// confirm a claim about that candidate.
func claimTerms(claim string, cands []Candidate) []string {
	nameTokens := make(map[string]struct{})
	for _, c := range cands {
		for _, f := range strings.Fields(strings.ToLower(c.Name)) {
			nameTokens[f] = struct{}{}
		}
	}
	seen := make(map[string]struct{})
	var terms []string
	for _, m := range claimToken.FindAllString(strings.ToLower(claim), -1) {
		if len(m) < 3 && !isTechToken(m) {
			continue
		}
		if _, stop := claimStopwords[m]; stop {
			continue
		}
		if _, name := nameTokens[m]; name {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		terms = append(terms, m)
	}
	return terms
}

// isTechToken keeps short but meaningful tokens like go, c#, ai.
func isTechToken(s string) bool {
	switch s {
	case "go", "c#", "c+", "ai", "ml", "qa", "ui", "ux", "db":
		return true
	}
	return false
}

// negatedNearby reports a negation word within the 40 characters before
// the matched term.
func negatedNearby(content, term string) bool {
	idx := strings.Index(content, term)
	for idx >= 0 {
		start := idx - 40
		if start < 0 {
			start = 0
		}
		window := content[start:idx]
		if m := negationNear.FindString(window + term); m != "" && strings.Contains(window, strings.Fields(m)[0]) {
			return true
		}
		next := strings.Index(content[idx+len(term):], term)
		if next < 0 {
			break
		}
		idx = idx + len(term) + next
	}
	return false
}
