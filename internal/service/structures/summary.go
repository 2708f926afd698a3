package structures

import (
	"fmt"
	"sort"
	"strings"
)

// Summary builds the pool-overview structure used for summary and
// first-contact queries: counts, distributions and the most common
// skills across every retrieved candidate.
func Summary(in Input) map[string]any {
	cands := Candidates(in.Results)
	doc := map[string]any{
		"structure_type": "summary",
		"thinking":       in.Output.Thinking,
	}
	if len(cands) == 0 {
		doc["overview"] = firstNonEmpty(in.Output.DirectAnswer, "No CVs are indexed yet.")
		doc["formatted"] = doc["overview"]
		return doc
	}

	totalYears := 0.0
	seniorities := make([][]string, 0, len(cands))
	languages := make([][]string, 0, len(cands))
	skills := make([][]string, 0, len(cands))
	for _, c := range cands {
		totalYears += c.Meta.TotalExperienceYears
		if c.Meta.Seniority != "" {
			seniorities = append(seniorities, []string{c.Meta.Seniority})
		}
		languages = append(languages, c.Meta.Languages)
		skills = append(skills, c.Meta.Skills)
	}
	skillDist := Distribution(skills)

	overview := fmt.Sprintf("%d candidate(s) indexed, averaging %.1f years of experience.",
		len(cands), totalYears/float64(len(cands)))

	doc["overview"] = firstNonEmpty(in.Output.DirectAnswer, overview)
	doc["candidate_count"] = len(cands)
	doc["average_experience_years"] = round1(totalYears / float64(len(cands)))
	doc["seniority_distribution"] = Distribution(seniorities)
	doc["language_distribution"] = Distribution(languages)
	doc["top_skills"] = topSkills(skillDist, 10)
	doc["conclusion"] = firstNonEmpty(in.Output.Conclusion, overview)

	var b strings.Builder
	b.WriteString(firstNonEmpty(in.Output.DirectAnswer, overview) + "\n\n")
	if top := topSkills(skillDist, 5); len(top) > 0 {
		b.WriteString("Most common skills: " + strings.Join(top, ", ") + "\n\n")
	}
	b.WriteString("| Candidate | Experience | Seniority |\n|---|---|---|\n")
	for _, c := range cands {
		fmt.Fprintf(&b, "| %s | %.1f years | %s |\n", CVLink(c.Name, c.CVID), c.Meta.TotalExperienceYears, dashIfEmpty(c.Meta.Seniority))
	}
	if s, _ := doc["conclusion"].(string); s != "" {
		b.WriteString("\n:::conclusion\n" + s + "\n:::")
	}
	doc["formatted"] = strings.TrimSpace(b.String())
	return doc
}

// adaptiveColumn binds a query keyword to a table column and the cell
// extractor for one candidate.
type adaptiveColumn struct {
	keywords []string
	header   string
	cell     func(c Candidate) string
}

var adaptiveColumns = []adaptiveColumn{
	{
		keywords: []string{"language", "speak", "multilingual", "bilingual"},
		header:   "Languages",
		cell:     func(c Candidate) string { return strings.Join(c.Meta.Languages, ", ") },
	},
	{
		keywords: []string{"skill", "technolog", "stack", "tool"},
		header:   "Skills",
		cell:     func(c Candidate) string { return strings.Join(c.Meta.Skills, ", ") },
	},
	{
		keywords: []string{"experience", "years", "tenure"},
		header:   "Experience",
		cell:     func(c Candidate) string { return fmt.Sprintf("%.1f years", c.Meta.TotalExperienceYears) },
	},
	{
		keywords: []string{"education", "degree", "university", "studied"},
		header:   "Education",
		cell: func(c Candidate) string {
			edu := c.Meta.EducationLevel
			if c.Meta.EducationField != "" {
				edu = strings.TrimSpace(edu + " in " + c.Meta.EducationField)
			}
			return edu
		},
	},
	{
		keywords: []string{"certification", "certificate", "certified"},
		header:   "Certifications",
		cell:     func(c Candidate) string { return strings.Join(c.Meta.Certifications, ", ") },
	},
	{
		keywords: []string{"location", "based", "city", "country", "remote"},
		header:   "Location",
		cell:     func(c Candidate) string { return c.Meta.Location },
	},
	{
		keywords: []string{"seniority", "level"},
		header:   "Seniority",
		cell:     func(c Candidate) string { return c.Meta.Seniority },
	},
	{
		keywords: []string{"role", "title", "position", "company"},
		header:   "Current Role",
		cell: func(c Candidate) string {
			role := c.Meta.CurrentRole
			if c.Meta.CurrentCompany != "" {
				role = strings.TrimSpace(role + " at " + c.Meta.CurrentCompany)
			}
			return role
		},
	},
}

// Adaptive builds a table whose columns are chosen from the query
// wording, plus a value distribution per matched attribute. Queries
// matching no attribute get the default candidate overview columns.
func Adaptive(in Input) map[string]any {
	cands := Candidates(in.Results)
	doc := map[string]any{
		"structure_type": "adaptive",
		"thinking":       in.Output.Thinking,
		"direct_answer":  in.Output.DirectAnswer,
	}
	if len(cands) == 0 {
		doc["direct_answer"] = firstNonEmpty(in.Output.DirectAnswer, "No candidates matched the question.")
		doc["formatted"] = doc["direct_answer"]
		return doc
	}

	lower := strings.ToLower(firstNonEmpty(in.Understanding.Understood, in.Query))
	var matched []adaptiveColumn
	for _, col := range adaptiveColumns {
		for _, kw := range col.keywords {
			if strings.Contains(lower, kw) {
				matched = append(matched, col)
				break
			}
		}
	}
	if len(matched) == 0 {
		matched = defaultAdaptiveColumns()
	}

	columns := []string{"Candidate"}
	for _, col := range matched {
		columns = append(columns, col.header)
	}
	rows := make([]map[string]string, 0, len(cands))
	for _, c := range cands {
		row := map[string]string{"Candidate": c.Name}
		for _, col := range matched {
			row[col.header] = col.cell(c)
		}
		rows = append(rows, row)
	}

	doc["columns"] = columns
	doc["rows"] = rows
	doc["distribution"] = adaptiveDistribution(matched[0], cands)
	doc["analysis"] = in.Output.Analysis
	doc["conclusion"] = in.Output.Conclusion

	var b strings.Builder
	if in.Output.DirectAnswer != "" {
		b.WriteString(in.Output.DirectAnswer + "\n\n")
	}
	b.WriteString("| " + strings.Join(columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat("---|", len(columns)) + "\n")
	for i, row := range rows {
		cells := []string{CVLink(cands[i].Name, cands[i].CVID)}
		for _, col := range matched {
			cells = append(cells, dashIfEmpty(row[col.header]))
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	if in.Output.Conclusion != "" {
		b.WriteString("\n:::conclusion\n" + in.Output.Conclusion + "\n:::")
	}
	doc["formatted"] = strings.TrimSpace(b.String())
	return doc
}

// defaultAdaptiveColumns is the Experience plus Skills overview used
// when the query names no attribute.
func defaultAdaptiveColumns() []adaptiveColumn {
	byHeader := make(map[string]adaptiveColumn, len(adaptiveColumns))
	for _, col := range adaptiveColumns {
		byHeader[col.header] = col
	}
	return []adaptiveColumn{byHeader["Experience"], byHeader["Skills"]}
}

// adaptiveDistribution counts the primary attribute's values across
// candidates. Multi-valued attributes (languages, skills) count each
// value once per candidate.
func adaptiveDistribution(col adaptiveColumn, cands []Candidate) map[string]int {
	sets := make([][]string, 0, len(cands))
	for _, c := range cands {
		switch col.header {
		case "Languages":
			sets = append(sets, c.Meta.Languages)
		case "Skills":
			sets = append(sets, c.Meta.Skills)
		case "Certifications":
			sets = append(sets, c.Meta.Certifications)
		default:
			sets = append(sets, []string{col.cell(c)})
		}
	}
	return Distribution(sets)
}

// topSkills returns the n most frequent skills, ties alphabetical.
func topSkills(dist map[string]int, n int) []string {
	type entry struct {
		skill string
		count int
	}
	entries := make([]entry, 0, len(dist))
	for s, c := range dist {
		entries = append(entries, entry{s, c})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].skill < entries[j].skill
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.skill)
	}
	return out
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
