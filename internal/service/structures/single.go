package structures

import (
	"fmt"
	"strings"
)

// SingleCandidate builds the full-profile structure for one candidate.
func SingleCandidate(in Input) map[string]any {
	cands := Candidates(in.Results)
	doc := map[string]any{
		"structure_type": "single_candidate",
		"thinking":       in.Output.Thinking,
	}
	if len(cands) == 0 {
		doc["summary"] = firstNonEmpty(in.Output.DirectAnswer, "No matching candidate was found.")
		doc["conclusion"] = in.Output.Conclusion
		doc["formatted"] = doc["summary"]
		return doc
	}
	c := pickCandidate(cands, in.Query)
	factors, overall := RiskTable(c.Meta)

	doc["candidate_name"] = c.Name
	doc["cv_id"] = c.CVID
	doc["summary"] = firstNonEmpty(in.Output.DirectAnswer, generatedProfileSummary(c))
	doc["highlights"] = profileHighlights(c)
	doc["career"] = c.Meta.Positions
	doc["skills"] = c.Meta.Skills
	doc["credentials"] = credentials(c)
	doc["risk_table"] = factors
	doc["risk_overall"] = overall
	doc["risk_note"] = RiskParagraph(c.Name, factors, overall)
	doc["conclusion"] = firstNonEmpty(in.Output.Conclusion,
		fmt.Sprintf("%s is a %s profile with %.1f years of experience.", c.Name, seniorityLabel(c), c.Meta.TotalExperienceYears))
	doc["formatted"] = renderSingle(c, doc)
	return doc
}

// RiskAssessment builds the dedicated risk structure. Multi-candidate
// queries get one table per candidate.
func RiskAssessment(in Input) map[string]any {
	cands := Candidates(in.Results)
	doc := map[string]any{
		"structure_type": "risk_assessment",
		"thinking":       in.Output.Thinking,
	}
	if len(cands) == 0 {
		doc["analysis"] = firstNonEmpty(in.Output.DirectAnswer, "No candidates were retrieved to assess.")
		doc["formatted"] = doc["analysis"]
		return doc
	}
	type assessment struct {
		CandidateName string       `json:"candidate_name"`
		CVID          string       `json:"cv_id,omitempty"`
		Factors       []RiskFactor `json:"risk_table"`
		Overall       string       `json:"overall"`
		Note          string       `json:"note"`
	}
	assessments := make([]assessment, 0, len(cands))
	for _, c := range cands {
		factors, overall := RiskTable(c.Meta)
		assessments = append(assessments, assessment{
			CandidateName: c.Name,
			CVID:          c.CVID,
			Factors:       factors,
			Overall:       overall,
			Note:          RiskParagraph(c.Name, factors, overall),
		})
	}
	doc["analysis"] = firstNonEmpty(in.Output.Analysis, in.Output.DirectAnswer)
	doc["assessments"] = assessments
	doc["assessment"] = assessments[0]
	doc["conclusion"] = firstNonEmpty(in.Output.Conclusion, assessments[0].Note)

	var b strings.Builder
	for _, a := range assessments {
		fmt.Fprintf(&b, "### %s\n| Factor | Level | Detail |\n|---|---|---|\n", CVLink(a.CandidateName, a.CVID))
		for _, f := range a.Factors {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", f.Factor, f.Level, f.Detail)
		}
		b.WriteString(a.Note + "\n\n")
	}
	doc["formatted"] = strings.TrimSpace(b.String())
	return doc
}

// pickCandidate prefers the candidate whose name appears in the query.
func pickCandidate(cands []Candidate, query string) Candidate {
	lower := strings.ToLower(query)
	for _, c := range cands {
		if c.Name != "" && strings.Contains(lower, strings.ToLower(c.Name)) {
			return c
		}
	}
	// Also try first names alone.
	for _, c := range cands {
		fields := strings.Fields(c.Name)
		if len(fields) > 0 && strings.Contains(lower, strings.ToLower(fields[0])) {
			return c
		}
	}
	return cands[0]
}

func profileHighlights(c Candidate) []string {
	var hl []string
	if c.Meta.CurrentRole != "" {
		role := c.Meta.CurrentRole
		if c.Meta.CurrentCompany != "" {
			role += " at " + c.Meta.CurrentCompany
		}
		hl = append(hl, role)
	}
	hl = append(hl, fmt.Sprintf("%.1f years of experience across %d position(s)", c.Meta.TotalExperienceYears, c.Meta.PositionCount))
	if c.Meta.HasFAANG {
		hl = append(hl, "big-tech background")
	}
	if len(c.Meta.Languages) > 1 {
		hl = append(hl, "speaks "+strings.Join(c.Meta.Languages, ", "))
	}
	return hl
}

func credentials(c Candidate) map[string]any {
	cred := map[string]any{}
	if c.Meta.EducationLevel != "" {
		edu := c.Meta.EducationLevel
		if c.Meta.EducationField != "" {
			edu += " in " + c.Meta.EducationField
		}
		cred["education"] = edu
	}
	if c.Meta.EducationInstitution != "" {
		cred["institution"] = c.Meta.EducationInstitution
	}
	if c.Meta.GraduationYear > 0 {
		cred["graduation_year"] = c.Meta.GraduationYear
	}
	if len(c.Meta.Certifications) > 0 {
		cred["certifications"] = c.Meta.Certifications
	}
	return cred
}

func seniorityLabel(c Candidate) string {
	if c.Meta.Seniority != "" {
		return c.Meta.Seniority
	}
	return "mid"
}

func generatedProfileSummary(c Candidate) string {
	return fmt.Sprintf("%s is a %s candidate with %.1f years of experience.",
		c.Name, seniorityLabel(c), c.Meta.TotalExperienceYears)
}

func renderSingle(c Candidate, doc map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n\n%s\n\n", CVLink(c.Name, c.CVID), doc["summary"])
	if hl, ok := doc["highlights"].([]string); ok && len(hl) > 0 {
		for _, h := range hl {
			fmt.Fprintf(&b, "- %s\n", h)
		}
		b.WriteString("\n")
	}
	if factors, ok := doc["risk_table"].([]RiskFactor); ok {
		b.WriteString("| Factor | Level | Detail |\n|---|---|---|\n")
		for _, f := range factors {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", f.Factor, f.Level, f.Detail)
		}
		b.WriteString("\n")
	}
	if s, _ := doc["conclusion"].(string); s != "" {
		b.WriteString(":::conclusion\n" + s + "\n:::")
	}
	return strings.TrimSpace(b.String())
}
