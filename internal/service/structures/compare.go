package structures

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// Comparison builds a side-by-side table over the retrieved candidates.
// The comparison cells are computed from metadata; LLM prose fills the
// narrative fields.
func Comparison(in Input) map[string]any {
	cands := Candidates(in.Results)
	doc := map[string]any{
		"structure_type": "comparison",
		"thinking":       in.Output.Thinking,
		"analysis":       firstNonEmpty(in.Output.Analysis, in.Output.DirectAnswer),
		"conclusion":     in.Output.Conclusion,
	}
	rows := make([]map[string]any, 0, len(cands))
	for _, c := range cands {
		rows = append(rows, map[string]any{
			"candidate_name":   c.Name,
			"cv_id":            c.CVID,
			"experience_years": c.Meta.TotalExperienceYears,
			"skill_count":      len(c.Meta.Skills),
			"seniority":        c.Meta.Seniority,
			"stability_score":  StabilityScore(c.Meta),
			"languages":        c.Meta.Languages,
			"education":        c.Meta.EducationLevel,
		})
	}
	doc["comparison_table"] = rows

	var b strings.Builder
	if len(cands) > 0 {
		b.WriteString("| Candidate | Experience | Skills | Seniority | Stability | Education |\n")
		b.WriteString("|---|---|---|---|---|---|\n")
		for _, c := range cands {
			fmt.Fprintf(&b, "| %s | %.1f years | %d | %s | %.0f/100 | %s |\n",
				CVLink(c.Name, c.CVID), c.Meta.TotalExperienceYears, len(c.Meta.Skills),
				c.Meta.Seniority, StabilityScore(c.Meta), c.Meta.EducationLevel)
		}
		b.WriteString("\n")
	}
	if s, _ := doc["analysis"].(string); s != "" {
		b.WriteString(s + "\n\n")
	}
	if s, _ := doc["conclusion"].(string); s != "" {
		b.WriteString(":::conclusion\n" + s + "\n:::")
	}
	doc["formatted"] = strings.TrimSpace(b.String())
	return doc
}

// Search builds the search-results structure around the parsed (or
// fallback) table with match scores.
func Search(in Input) map[string]any {
	rows := in.Output.TableData
	if len(rows) == 0 && len(in.Results) > 0 {
		rows = fallbackRows(in.Results)
	}
	doc := map[string]any{
		"structure_type": "search",
		"thinking":       in.Output.Thinking,
		"direct_answer":  in.Output.DirectAnswer,
		"results_table":  rows,
		"analysis":       in.Output.Analysis,
		"conclusion":     in.Output.Conclusion,
	}
	var b strings.Builder
	b.WriteString(in.Output.DirectAnswer + "\n\n")
	if len(rows) > 0 {
		b.WriteString("| Candidate | Match |\n|---|---|\n")
		for _, row := range rows {
			fmt.Fprintf(&b, "| %s | %.0f%% |\n", CVLink(row.CandidateName, row.CVID), row.MatchScore)
		}
		b.WriteString("\n")
	}
	if in.Output.Conclusion != "" {
		b.WriteString(":::conclusion\n" + in.Output.Conclusion + "\n:::")
	}
	doc["formatted"] = strings.TrimSpace(b.String())
	return doc
}

// fallbackRows mirrors the output parser's chunk fallback for structures
// assembled without a parsed table.
func fallbackRows(results []domain.SearchResult) []domain.TableRow {
	cands := Candidates(results)
	rows := make([]domain.TableRow, 0, len(cands))
	for _, c := range cands {
		rows = append(rows, domain.TableRow{
			CandidateName: c.Name,
			CVID:          c.CVID,
			MatchScore:    clamp100(c.BestSimilarity * 100),
			Columns: map[string]string{
				"Experience": fmt.Sprintf("%.1f years", c.Meta.TotalExperienceYears),
				"Seniority":  c.Meta.Seniority,
			},
		})
	}
	return rows
}
