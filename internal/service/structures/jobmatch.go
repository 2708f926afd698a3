package structures

import (
	"fmt"
	"sort"
	"strings"
)

// JobMatch classifies every candidate against the extracted requirements
// and names the best match. Scores are computed, never read from the
// LLM text.
func JobMatch(in Input) map[string]any {
	reqs := ParseRequirements(in.Understanding.Requirements)
	cands := Candidates(in.Results)
	doc := map[string]any{
		"structure_type": "job_match",
		"thinking":       in.Output.Thinking,
		"requirements":   reqs,
	}
	if len(cands) == 0 {
		doc["analysis"] = firstNonEmpty(in.Output.DirectAnswer, "No candidates were retrieved to match.")
		doc["formatted"] = doc["analysis"]
		return doc
	}

	type candidateMatch struct {
		CandidateName string      `json:"candidate_name"`
		CVID          string      `json:"cv_id,omitempty"`
		Match         MatchResult `json:"match"`
		GapAnalysis   string      `json:"gap_analysis"`
	}
	matches := make([]candidateMatch, 0, len(cands))
	for _, c := range cands {
		res := MatchScore(reqs, c.Meta, candidateContent(in, c.CVID))
		matches = append(matches, candidateMatch{
			CandidateName: c.Name,
			CVID:          c.CVID,
			Match:         res,
			GapAnalysis:   GapAnalysis(c.Name, res),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Match.Overall != matches[j].Match.Overall {
			return matches[i].Match.Overall > matches[j].Match.Overall
		}
		return matches[i].CandidateName < matches[j].CandidateName
	})
	best := matches[0]
	doc["matches"] = matches
	doc["best_match"] = map[string]any{
		"candidate_name": best.CandidateName,
		"cv_id":          best.CVID,
		"overall_score":  best.Match.Overall,
	}
	conclusion := in.Output.Conclusion
	if conclusion == "" || !mentionsName(conclusion, best.CandidateName) {
		conclusion = fmt.Sprintf("%s is the closest match at %.0f%% of the stated requirements.",
			CVLink(best.CandidateName, best.CVID), best.Match.Overall)
	}
	doc["conclusion"] = conclusion

	var b strings.Builder
	b.WriteString("| Candidate | Met | Partial | Missing | Score |\n|---|---|---|---|---|\n")
	for _, m := range matches {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %.0f%% |\n",
			CVLink(m.CandidateName, m.CVID),
			dashIfEmpty(strings.Join(m.Match.Met, ", ")),
			dashIfEmpty(strings.Join(m.Match.Partial, ", ")),
			dashIfEmpty(strings.Join(m.Match.Missing, ", ")),
			m.Match.Overall)
	}
	b.WriteString("\n")
	for _, m := range matches {
		b.WriteString("- " + m.GapAnalysis + "\n")
	}
	b.WriteString("\n:::conclusion\n" + conclusion + "\n:::")
	doc["formatted"] = strings.TrimSpace(b.String())
	return doc
}

// candidateContent joins the retrieved chunk text of one CV so matching
// can see beyond the extracted skill list.
func candidateContent(in Input, cvID string) string {
	var b strings.Builder
	for _, r := range in.Results {
		if r.CVID == cvID {
			b.WriteString(r.Content)
			b.WriteString("\n")
		}
	}
	return b.String()
}

func dashIfEmpty(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
