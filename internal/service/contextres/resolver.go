// Package contextres resolves pronouns and "top candidate" references in
// follow-up queries against CV references found in the previous
// assistant turn.
package contextres

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// Reference is one candidate mention recovered from assistant output.
type Reference struct {
	Name  string
	CVID  string
	Score float64 // 0 when the source row carried no percentage
}

// Resolution is the outcome of scanning the conversation history.
type Resolution struct {
	TopCandidates   []Reference // two highest-scored rows
	PreviousResults []Reference // all references, de-duplicated, order kept
	Confidence      float64     // fixed 0.85 when any pattern matched
}

var (
	// [📄](cv:cv_abc) **Alice** or [📄](cv:cv_abc) **Alice** 92%
	// The name group excludes newlines and '[' so a bold link earlier on
	// the line cannot swallow the icon link that follows it.
	iconLinkRef = regexp.MustCompile(`\[[^\]]*\]\(cv:([A-Za-z0-9_-]+)\)\s*\*\*([^*\n\[]+)\*\*(?:[^\n%]*?(\d{1,3})%)?`)
	// **[Alice](cv:cv_abc)**
	boldLinkRef = regexp.MustCompile(`\*\*\[([^\]]+)\]\(cv:([A-Za-z0-9_-]+)\)\*\*`)
	// | 1 | **Alice** | ... 92% ... | table ranking rows
	tableRowRef = regexp.MustCompile(`(?m)^\s*\|[^|\n]*\|\s*\*{0,2}([A-Za-zÀ-ÿ' .-]{2,40}?)\*{0,2}\s*\|[^\n]*?(\d{1,3})%`)
	// Top Recommendation: **Alice** / winner phrases
	topRecRef = regexp.MustCompile(`(?i)(?:top recommendation|best candidate|recommended candidate|winner)\s*(?:is|:)?\s*\*{0,2}([A-Za-zÀ-ÿ' .-]{2,40}?)\*{0,2}(?:[.,\n]|$)`)

	// Phrases in the follow-up query that refer back to a prior result.
	topCandidatePhrase = regexp.MustCompile(`(?i)\b(?:the\s+)?(?:top|best|first|winning|recommended)\s+(?:candidate|person|one|pick|match)\b`)
	pronounPhrase      = regexp.MustCompile(`(?i)\b(?:his|her|their|him|them|this candidate|that candidate|this person|that person)\b`)
)

// Resolver scans assistant turns for CV references.
type Resolver struct{}

// New constructs a Resolver.
func New() *Resolver { return &Resolver{} }

// ExtractReferences recovers ordered candidate references from one
// assistant message. Confidence is 0.85 when anything matched.
func (r *Resolver) ExtractReferences(content string) Resolution {
	var refs []Reference
	for _, m := range iconLinkRef.FindAllStringSubmatch(content, -1) {
		ref := Reference{CVID: m[1], Name: strings.TrimSpace(m[2])}
		if m[3] != "" {
			if v, err := strconv.Atoi(m[3]); err == nil {
				ref.Score = float64(v)
			}
		}
		refs = append(refs, ref)
	}
	for _, m := range boldLinkRef.FindAllStringSubmatch(content, -1) {
		refs = append(refs, Reference{Name: strings.TrimSpace(m[1]), CVID: m[2]})
	}
	for _, m := range tableRowRef.FindAllStringSubmatch(content, -1) {
		name := strings.TrimSpace(m[1])
		if isTableNoise(name) {
			continue
		}
		ref := Reference{Name: name}
		if v, err := strconv.Atoi(m[2]); err == nil {
			ref.Score = float64(v)
		}
		refs = append(refs, ref)
	}
	for _, m := range topRecRef.FindAllStringSubmatch(content, -1) {
		refs = append(refs, Reference{Name: strings.TrimSpace(m[1]), Score: 100})
	}

	deduped := dedupe(refs)
	res := Resolution{PreviousResults: deduped}
	if len(deduped) > 0 {
		res.Confidence = 0.85
		res.TopCandidates = topTwo(deduped)
	}
	return res
}

// ResolveQuery rewrites a follow-up query, substituting reference
// phrases with the resolved candidate name. Returns the rewritten query
// plus the resolved name and cv id when a reference phrase was present
// and history held a match.
func (r *Resolver) ResolveQuery(query string, history []domain.Message) (string, string, string) {
	last := lastAssistantTurn(history)
	if last == "" {
		return query, "", ""
	}
	if !topCandidatePhrase.MatchString(query) && !pronounPhrase.MatchString(query) {
		return query, "", ""
	}
	res := r.ExtractReferences(last)
	if len(res.TopCandidates) == 0 {
		return query, "", ""
	}
	top := res.TopCandidates[0]
	resolved := topCandidatePhrase.ReplaceAllString(query, top.Name)
	resolved = pronounPhrase.ReplaceAllStringFunc(resolved, func(m string) string {
		switch strings.ToLower(m) {
		case "his", "her", "their":
			return top.Name + "'s"
		default:
			return top.Name
		}
	})
	return resolved, top.Name, top.CVID
}

func lastAssistantTurn(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == domain.RoleAssistant {
			return history[i].Content
		}
	}
	return ""
}

// dedupe keeps the first occurrence per normalized name, merging in the
// cv id and the best score seen later.
func dedupe(refs []Reference) []Reference {
	index := make(map[string]int)
	var out []Reference
	for _, ref := range refs {
		key := strings.ToLower(strings.TrimSpace(ref.Name))
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			if out[i].CVID == "" {
				out[i].CVID = ref.CVID
			}
			if ref.Score > out[i].Score {
				out[i].Score = ref.Score
			}
			continue
		}
		index[key] = len(out)
		out = append(out, ref)
	}
	return out
}

// topTwo returns the two highest-scored references, ties kept in
// document order.
func topTwo(refs []Reference) []Reference {
	sorted := append([]Reference(nil), refs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })
	if len(sorted) > 2 {
		sorted = sorted[:2]
	}
	return sorted
}

// isTableNoise filters header and separator cells captured by the
// ranking-row pattern.
func isTableNoise(name string) bool {
	lower := strings.ToLower(name)
	switch lower {
	case "candidate", "name", "rank", "score", "match", "overall", "total":
		return true
	}
	return strings.Trim(lower, "-: ") == ""
}
