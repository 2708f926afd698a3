package structures

import (
	"fmt"
	"sort"
	"strings"
)

// Ranking builds the ranking structure. The table, order and top pick
// are computed from metadata; LLM prose is kept only when it agrees with
// the computed winner, otherwise conclusion and analysis are regenerated
// from data.
func Ranking(in Input) map[string]any {
	cands := Candidates(in.Results)
	weights := NormalizeWeights(in.Weights)
	table := RankCandidates(cands, weights)

	doc := map[string]any{
		"structure_type": "ranking",
		"thinking":       in.Output.Thinking,
		"criteria":       criteriaRows(weights),
		"ranking_table":  table,
	}
	if len(table) == 0 {
		doc["analysis"] = firstNonEmpty(in.Output.Analysis, "No candidates were retrieved for this ranking.")
		doc["conclusion"] = in.Output.Conclusion
		doc["formatted"] = renderRanking(doc, table)
		return doc
	}

	top := table[0]
	doc["top_pick"] = map[string]any{
		"candidate_name": top.CandidateName,
		"cv_id":          top.CVID,
		"overall_score":  top.OverallScore,
	}

	analysis := in.Output.Analysis
	if analysis == "" || !mentionsName(analysis, top.CandidateName) && mentionsAnyOther(analysis, table) {
		analysis = generatedRankingAnalysis(table, weights)
	}
	conclusion := in.Output.Conclusion
	if conclusion == "" || !mentionsName(conclusion, top.CandidateName) {
		conclusion = fmt.Sprintf("%s ranks first with an overall score of %.1f/100.",
			CVLink(top.CandidateName, top.CVID), top.OverallScore)
	}
	doc["analysis"] = analysis
	doc["conclusion"] = conclusion
	doc["formatted"] = renderRanking(doc, table)
	return doc
}

type criterionRow struct {
	Criterion string  `json:"criterion"`
	Weight    float64 `json:"weight"`
}

func criteriaRows(weights map[string]float64) []criterionRow {
	rows := make([]criterionRow, 0, len(weights))
	for c, w := range weights {
		rows = append(rows, criterionRow{Criterion: c, Weight: w})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Weight != rows[j].Weight {
			return rows[i].Weight > rows[j].Weight
		}
		return rows[i].Criterion < rows[j].Criterion
	})
	return rows
}

func mentionsName(text, name string) bool {
	if name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(name))
}

// mentionsAnyOther reports whether the text names some other ranked
// candidate, which makes a missing top-pick mention suspicious.
func mentionsAnyOther(text string, table []RankedCandidate) bool {
	for _, r := range table[1:] {
		if mentionsName(text, r.CandidateName) {
			return true
		}
	}
	return false
}

func generatedRankingAnalysis(table []RankedCandidate, weights map[string]float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Candidates were scored on %d weighted criteria. ", len(weights))
	for i, r := range table {
		if i >= 3 {
			break
		}
		fmt.Fprintf(&b, "%s scored %.1f. ", r.CandidateName, r.OverallScore)
	}
	return strings.TrimSpace(b.String())
}

func renderRanking(doc map[string]any, table []RankedCandidate) string {
	var b strings.Builder
	if len(table) > 0 {
		criteria := doc["criteria"].([]criterionRow)
		names := make([]string, 0, len(criteria))
		for _, c := range criteria {
			names = append(names, c.Criterion)
		}
		fmt.Fprintf(&b, "| Rank | Candidate | %s | Overall |\n", strings.Join(titleAll(names), " | "))
		b.WriteString("|---" + strings.Repeat("|---", len(names)+2) + "|\n")
		for _, r := range table {
			b.WriteString(fmt.Sprintf("| %d | %s |", r.Rank, CVLink(r.CandidateName, r.CVID)))
			for _, c := range names {
				fmt.Fprintf(&b, " %.0f |", r.Scores[c])
			}
			fmt.Fprintf(&b, " %.1f%% |\n", r.OverallScore)
		}
		b.WriteString("\n")
	}
	if s, _ := doc["analysis"].(string); s != "" {
		b.WriteString(s + "\n\n")
	}
	if s, _ := doc["conclusion"].(string); s != "" {
		b.WriteString(":::conclusion\n" + s + "\n:::")
	}
	return strings.TrimSpace(b.String())
}

func titleAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		if n == "" {
			continue
		}
		out[i] = strings.ToUpper(n[:1]) + n[1:]
	}
	return out
}
