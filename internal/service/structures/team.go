package structures

import (
	"fmt"
	"strings"
)

// TeamBuild assembles the team composition structure: member cards,
// synergy, skill matrix and aggregated risks over the retrieved
// candidates.
func TeamBuild(in Input) map[string]any {
	cands := Candidates(in.Results)
	doc := map[string]any{
		"structure_type": "team_build",
		"thinking":       in.Output.Thinking,
		"direct_answer":  in.Output.DirectAnswer,
	}
	if len(cands) == 0 {
		doc["overview"] = "No candidates were retrieved to build a team from."
		doc["formatted"] = doc["overview"]
		return doc
	}

	cards := MemberCards(cands)
	synergy := TeamSynergy(cands)
	matrix := SkillMatrix(cands)

	var risks []string
	for _, c := range cands {
		factors, overall := RiskTable(c.Meta)
		if overall != RiskLow {
			risks = append(risks, RiskParagraph(c.Name, factors, overall))
		}
	}
	if len(risks) == 0 {
		risks = []string{"No elevated individual risks across the proposed team."}
	}

	totalYears := 0.0
	for _, c := range cands {
		totalYears += c.Meta.TotalExperienceYears
	}
	overview := fmt.Sprintf("Proposed team of %d with %.1f combined years of experience.", len(cands), totalYears)

	doc["overview"] = overview
	doc["members"] = cards
	doc["synergy"] = synergy
	doc["skill_matrix"] = matrix
	doc["risks"] = risks
	doc["conclusion"] = firstNonEmpty(in.Output.Conclusion, overview)

	var b strings.Builder
	b.WriteString(firstNonEmpty(in.Output.DirectAnswer, overview) + "\n\n")
	for _, card := range cards {
		fmt.Fprintf(&b, "- %s, %s, %.1f years", CVLink(card.Name, card.CVID), card.Role, card.ExperienceYears)
		if len(card.KeySkills) > 0 {
			fmt.Fprintf(&b, " (%s)", strings.Join(card.KeySkills, ", "))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n" + synergy.CoverageNote + "\n\n")
	for _, r := range risks {
		b.WriteString("- " + r + "\n")
	}
	if s, _ := doc["conclusion"].(string); s != "" {
		b.WriteString("\n:::conclusion\n" + s + "\n:::")
	}
	doc["formatted"] = strings.TrimSpace(b.String())
	return doc
}
