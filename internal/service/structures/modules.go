package structures

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// Risk levels shared by the risk modules.
const (
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
)

// RiskFactor is one row of the risk table.
type RiskFactor struct {
	Factor string `json:"factor"`
	Level  string `json:"level"`
	Detail string `json:"detail"`
}

// RiskTable derives the five risk factors from enriched metadata and
// classifies the overall risk.
func RiskTable(meta domain.EnrichedMetadata) ([]RiskFactor, string) {
	factors := []RiskFactor{
		redFlagFactor(meta),
		hoppingFactor(meta),
		gapFactor(meta),
		stabilityFactor(meta),
		experienceFactor(meta),
	}
	high, moderate := 0, 0
	for _, f := range factors {
		switch f.Level {
		case RiskHigh:
			high++
		case RiskModerate:
			moderate++
		}
	}
	overall := RiskLow
	switch {
	case high >= 2:
		overall = RiskHigh
	case high == 1 || moderate >= 2:
		overall = RiskModerate
	}
	return factors, overall
}

// RiskParagraph renders the classification narrative from the factors.
func RiskParagraph(name string, factors []RiskFactor, overall string) string {
	var concerns []string
	for _, f := range factors {
		if f.Level != RiskLow {
			concerns = append(concerns, strings.ToLower(f.Factor))
		}
	}
	if len(concerns) == 0 {
		return fmt.Sprintf("%s presents a %s overall risk with no notable concerns in the assessed factors.", name, overall)
	}
	return fmt.Sprintf("%s presents a %s overall risk; attention points: %s.", name, overall, strings.Join(concerns, ", "))
}

func redFlagFactor(meta domain.EnrichedMetadata) RiskFactor {
	flags := RedFlags(meta)
	level := RiskLow
	switch {
	case len(flags) >= 3:
		level = RiskHigh
	case len(flags) >= 1:
		level = RiskModerate
	}
	detail := "none detected"
	if len(flags) > 0 {
		detail = strings.Join(flags, "; ")
	}
	return RiskFactor{Factor: "Red flags", Level: level, Detail: detail}
}

func hoppingFactor(meta domain.EnrichedMetadata) RiskFactor {
	level := RiskLow
	switch {
	case meta.JobHoppingScore >= 0.6:
		level = RiskHigh
	case meta.JobHoppingScore >= 0.3:
		level = RiskModerate
	}
	return RiskFactor{
		Factor: "Job hopping",
		Level:  level,
		Detail: fmt.Sprintf("score %.2f across %d position(s)", meta.JobHoppingScore, meta.PositionCount),
	}
}

func gapFactor(meta domain.EnrichedMetadata) RiskFactor {
	level := RiskLow
	switch {
	case meta.EmploymentGapCount > 1:
		level = RiskHigh
	case meta.EmploymentGapCount == 1:
		level = RiskModerate
	}
	return RiskFactor{
		Factor: "Employment gaps",
		Level:  level,
		Detail: fmt.Sprintf("%d gap(s) over one year", meta.EmploymentGapCount),
	}
}

func stabilityFactor(meta domain.EnrichedMetadata) RiskFactor {
	stability := StabilityScore(meta)
	level := RiskLow
	switch {
	case stability < 40:
		level = RiskHigh
	case stability < 70:
		level = RiskModerate
	}
	return RiskFactor{
		Factor: "Stability",
		Level:  level,
		Detail: fmt.Sprintf("stability score %.0f/100, average tenure %.1f years", stability, meta.AvgTenureYears),
	}
}

func experienceFactor(meta domain.EnrichedMetadata) RiskFactor {
	level := RiskLow
	switch {
	case meta.TotalExperienceYears < 2:
		level = RiskHigh
	case meta.TotalExperienceYears < 5:
		level = RiskModerate
	}
	detail := fmt.Sprintf("%.1f years total", meta.TotalExperienceYears)
	if meta.ExperienceEstimated {
		detail += " (estimated)"
	}
	return RiskFactor{Factor: "Experience level", Level: level, Detail: detail}
}

// RedFlags lists concrete concerns derivable from metadata.
func RedFlags(meta domain.EnrichedMetadata) []string {
	var flags []string
	if meta.JobHoppingScore >= 0.7 {
		flags = append(flags, "frequent job changes")
	}
	if meta.EmploymentGapCount > 1 {
		flags = append(flags, fmt.Sprintf("%d employment gaps", meta.EmploymentGapCount))
	}
	if meta.ExperienceEstimated {
		flags = append(flags, "experience could not be dated and was estimated")
	}
	if meta.PositionCount > 0 && meta.AvgTenureYears > 0 && meta.AvgTenureYears < 1 {
		flags = append(flags, "average tenure under one year")
	}
	return flags
}

// StabilityScore is 100 minus 100 times the hopping score.
func StabilityScore(meta domain.EnrichedMetadata) float64 {
	return clamp100(100 - 100*meta.JobHoppingScore)
}

// Requirement is one job requirement to match against a candidate.
type Requirement struct {
	Name     string `json:"name"`
	Required bool   `json:"required"`
}

// MatchResult classifies requirements for one candidate.
type MatchResult struct {
	Met     []string `json:"met"`
	Partial []string `json:"partial"`
	Missing []string `json:"missing"`
	Overall float64  `json:"overall_score"`
}

// partialTokenShare is the token overlap a multi-word requirement needs
// to count as partially met.
const partialTokenShare = 0.7

// MatchScore classifies each requirement as met, partial or missing for
// the candidate, and computes overall = (met + 0.5*partial)/total * 100.
func MatchScore(reqs []Requirement, meta domain.EnrichedMetadata, content string) MatchResult {
	res := MatchResult{}
	if len(reqs) == 0 {
		return res
	}
	haystack := strings.ToLower(content)
	skills := make(map[string]struct{}, len(meta.Skills))
	for _, s := range meta.Skills {
		skills[strings.ToLower(s)] = struct{}{}
	}
	for _, req := range reqs {
		name := strings.TrimSpace(req.Name)
		lower := strings.ToLower(name)
		switch {
		case fullyMet(lower, skills, haystack):
			res.Met = append(res.Met, name)
		case partiallyMet(lower, skills, haystack):
			res.Partial = append(res.Partial, name)
		default:
			res.Missing = append(res.Missing, name)
		}
	}
	res.Overall = clamp100((float64(len(res.Met)) + 0.5*float64(len(res.Partial))) / float64(len(reqs)) * 100)
	return res
}

func fullyMet(req string, skills map[string]struct{}, haystack string) bool {
	if _, ok := skills[req]; ok {
		return true
	}
	return req != "" && strings.Contains(haystack, req)
}

// partiallyMet checks multi-word requirements for a 70 percent token
// overlap with the candidate's skills and text.
func partiallyMet(req string, skills map[string]struct{}, haystack string) bool {
	tokens := strings.Fields(req)
	if len(tokens) < 2 {
		return false
	}
	hit := 0
	for _, tok := range tokens {
		if _, ok := skills[tok]; ok {
			hit++
			continue
		}
		if strings.Contains(haystack, tok) {
			hit++
		}
	}
	return float64(hit)/float64(len(tokens)) >= partialTokenShare
}

// ParseRequirements turns requirement phrases from query understanding
// into typed requirements. Phrases carrying "preferred", "nice to have"
// or "optional" are not required.
func ParseRequirements(phrases []string) []Requirement {
	var reqs []Requirement
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		lower := strings.ToLower(p)
		required := !strings.Contains(lower, "preferred") &&
			!strings.Contains(lower, "nice to have") &&
			!strings.Contains(lower, "optional")
		name := strings.TrimSpace(strings.NewReplacer(
			"(preferred)", "", "(optional)", "", "(required)", "",
			"preferred", "", "required", "", "optional", "", "nice to have", "",
		).Replace(p))
		name = strings.Trim(name, " ,:-")
		if name == "" {
			name = p
		}
		reqs = append(reqs, Requirement{Name: name, Required: required})
	}
	return reqs
}

// Ranking criteria scorers. All deterministic over enriched metadata.
const (
	fullExperienceYears = 10.0 // linear to 100 at ten years
	fullSkillCount      = 8.0  // linear to 100 at eight skills
	fullTenureYears     = 4.0  // linear to 100 at four years average
	idealPositionRate   = 0.4  // positions per year at the bell peak
	positionRateSpread  = 0.25
)

var seniorityScores = map[string]float64{
	"junior":    20,
	"entry":     40,
	"mid":       60,
	"senior":    80,
	"principal": 100,
}

// CriterionScore computes the 0-100 score for one ranking criterion.
func CriterionScore(criterion string, meta domain.EnrichedMetadata) float64 {
	switch normalizeCriterion(criterion) {
	case "experience":
		return clamp100(meta.TotalExperienceYears / fullExperienceYears * 100)
	case "skills":
		return clamp100(float64(len(meta.Skills)) / fullSkillCount * 100)
	case "stability":
		return StabilityScore(meta)
	case "seniority":
		if s, ok := seniorityScores[strings.ToLower(meta.Seniority)]; ok {
			return s
		}
		return 50
	case "tenure":
		return clamp100(meta.AvgTenureYears / fullTenureYears * 100)
	case "trajectory":
		return trajectoryScore(meta)
	default:
		return 50
	}
}

func normalizeCriterion(criterion string) string {
	switch strings.ToLower(strings.TrimSpace(criterion)) {
	case "experience", "years", "years_of_experience":
		return "experience"
	case "skills", "technical", "technical_skills", "skills_match":
		return "skills"
	case "stability", "retention":
		return "stability"
	case "seniority", "level":
		return "seniority"
	case "tenure", "avg_tenure", "average_tenure":
		return "tenure"
	case "trajectory", "career_trajectory", "growth":
		return "trajectory"
	default:
		return strings.ToLower(strings.TrimSpace(criterion))
	}
}

// trajectoryScore is a bell curve peaking at the ideal position rate:
// steady progression scores high, stagnation and churn both score low.
func trajectoryScore(meta domain.EnrichedMetadata) float64 {
	if meta.TotalExperienceYears <= 0 || meta.PositionCount == 0 {
		return 0
	}
	rate := float64(meta.PositionCount) / meta.TotalExperienceYears
	d := rate - idealPositionRate
	return clamp100(100 * math.Exp(-(d*d)/(2*positionRateSpread*positionRateSpread)))
}

// RankedCandidate is one ranking-table row with per-criterion scores.
type RankedCandidate struct {
	Rank          int                `json:"rank"`
	CandidateName string             `json:"candidate_name"`
	CVID          string             `json:"cv_id,omitempty"`
	Scores        map[string]float64 `json:"scores"`
	OverallScore  float64            `json:"overall_score"`
}

// RankCandidates scores every candidate against the criteria weights
// (normalized to sum 1) and sorts descending by overall score, ties by
// name for determinism.
func RankCandidates(cands []Candidate, weights map[string]float64) []RankedCandidate {
	weights = NormalizeWeights(weights)
	out := make([]RankedCandidate, 0, len(cands))
	for _, c := range cands {
		scores := make(map[string]float64, len(weights))
		overall := 0.0
		for criterion, w := range weights {
			s := CriterionScore(criterion, c.Meta)
			scores[criterion] = s
			overall += w * s
		}
		out = append(out, RankedCandidate{
			CandidateName: c.Name,
			CVID:          c.CVID,
			Scores:        scores,
			OverallScore:  math.Round(overall*10) / 10,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].OverallScore != out[j].OverallScore {
			return out[i].OverallScore > out[j].OverallScore
		}
		return out[i].CandidateName < out[j].CandidateName
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// NormalizeWeights scales weights to sum 1, dropping non-positive
// entries. Empty input gets the default ranking weights.
func NormalizeWeights(weights map[string]float64) map[string]float64 {
	cleaned := make(map[string]float64)
	sum := 0.0
	for k, v := range weights {
		if v > 0 {
			cleaned[normalizeCriterion(k)] = v
			sum += v
		}
	}
	if len(cleaned) == 0 || sum == 0 {
		return map[string]float64{
			"experience": 0.3,
			"skills":     0.3,
			"stability":  0.2,
			"seniority":  0.2,
		}
	}
	for k := range cleaned {
		cleaned[k] /= sum
	}
	return cleaned
}

// SkillMatrix maps each skill to the candidates that carry it, sorted
// for stable output.
func SkillMatrix(cands []Candidate) map[string][]string {
	matrix := make(map[string][]string)
	for _, c := range cands {
		for _, s := range c.Meta.Skills {
			key := canonicalSkill(s)
			matrix[key] = append(matrix[key], c.Name)
		}
	}
	for k := range matrix {
		sort.Strings(matrix[k])
	}
	return matrix
}

func canonicalSkill(s string) string {
	return strings.TrimSpace(s)
}

// Synergy describes skill overlap and unique coverage across a team.
type Synergy struct {
	SharedSkills []string            `json:"shared_skills"`
	UniqueSkills map[string][]string `json:"unique_skills"`
	CoverageNote string              `json:"coverage_note"`
}

// TeamSynergy computes shared and unique skills over the team list.
func TeamSynergy(cands []Candidate) Synergy {
	counts := make(map[string]int)
	owner := make(map[string]string)
	for _, c := range cands {
		seen := make(map[string]struct{})
		for _, s := range c.Meta.Skills {
			key := strings.ToLower(canonicalSkill(s))
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			counts[key]++
			owner[key] = c.Name
		}
	}
	syn := Synergy{UniqueSkills: make(map[string][]string)}
	for key, n := range counts {
		if n >= 2 {
			syn.SharedSkills = append(syn.SharedSkills, key)
		} else {
			name := owner[key]
			syn.UniqueSkills[name] = append(syn.UniqueSkills[name], key)
		}
	}
	sort.Strings(syn.SharedSkills)
	for name := range syn.UniqueSkills {
		sort.Strings(syn.UniqueSkills[name])
	}
	switch {
	case len(syn.SharedSkills) == 0 && len(cands) > 1:
		syn.CoverageNote = "No overlapping skills; the team covers disjoint areas."
	case len(syn.SharedSkills) >= 3:
		syn.CoverageNote = fmt.Sprintf("Strong common ground on %d shared skill(s).", len(syn.SharedSkills))
	default:
		syn.CoverageNote = "Partial overlap with complementary individual strengths."
	}
	return syn
}

// MemberCard is one team-member summary.
type MemberCard struct {
	Name            string   `json:"name"`
	CVID            string   `json:"cv_id,omitempty"`
	Role            string   `json:"role"`
	Seniority       string   `json:"seniority,omitempty"`
	ExperienceYears float64  `json:"experience_years"`
	KeySkills       []string `json:"key_skills,omitempty"`
	Languages       []string `json:"languages,omitempty"`
}

// MemberCards renders one card per candidate.
func MemberCards(cands []Candidate) []MemberCard {
	cards := make([]MemberCard, 0, len(cands))
	for _, c := range cands {
		role := c.Meta.CurrentRole
		if role == "" {
			role = "Contributor"
		}
		skills := c.Meta.Skills
		if len(skills) > 5 {
			skills = skills[:5]
		}
		cards = append(cards, MemberCard{
			Name:            c.Name,
			CVID:            c.CVID,
			Role:            role,
			Seniority:       c.Meta.Seniority,
			ExperienceYears: c.Meta.TotalExperienceYears,
			KeySkills:       skills,
			Languages:       c.Meta.Languages,
		})
	}
	return cards
}

// Distribution counts values across candidates, e.g. languages or
// seniority levels.
func Distribution(values [][]string) map[string]int {
	dist := make(map[string]int)
	for _, set := range values {
		seen := make(map[string]struct{})
		for _, v := range set {
			v = strings.TrimSpace(v)
			if v == "" {
				continue
			}
			if _, dup := seen[v]; dup {
				continue
			}
			seen[v] = struct{}{}
			dist[v]++
		}
	}
	return dist
}

// GapAnalysis turns missing requirements into an actionable note per
// candidate.
func GapAnalysis(name string, res MatchResult) string {
	if len(res.Missing) == 0 && len(res.Partial) == 0 {
		return fmt.Sprintf("%s meets every stated requirement.", name)
	}
	var parts []string
	if len(res.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing %s", strings.Join(res.Missing, ", ")))
	}
	if len(res.Partial) > 0 {
		parts = append(parts, fmt.Sprintf("partial coverage of %s", strings.Join(res.Partial, ", ")))
	}
	return fmt.Sprintf("%s: %s.", name, strings.Join(parts, "; "))
}

func clamp100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
