package suggest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Template is one suggestion blueprint. Text may carry the placeholders
// {candidate_name}, {skill}, {role} and {num_cvs}; a template is only
// eligible when every placeholder it uses can be filled from the
// conversation state.
type Template struct {
	ID                  string `yaml:"id"`
	Text                string `yaml:"text"`
	Priority            int    `yaml:"priority"` // 1 is highest, 3 lowest
	MinCVs              int    `yaml:"min_cvs"`
	RequiresMultipleCVs bool   `yaml:"requires_multiple_cvs"`
}

// Bank maps a conversation category (the last structure type, or
// "initial") to its suggestion templates.
type Bank map[string][]Template

// CategoryInitial backfills every other category.
const CategoryInitial = "initial"

// DefaultBank returns the embedded suggestion banks, one per response
// structure plus the initial bank.
func DefaultBank() Bank {
	return Bank{
		CategoryInitial: {
			{ID: "init_overview", Text: "Give me an overview of the candidate pool", Priority: 1, MinCVs: 1},
			{ID: "init_upload", Text: "How do I add CVs to this session?", Priority: 3},
			{ID: "init_capabilities", Text: "What questions can I ask about candidates?", Priority: 2},
			{ID: "init_rank", Text: "Rank the {num_cvs} candidates by experience", Priority: 1, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "init_skill_search", Text: "Who has {skill} experience?", Priority: 2, MinCVs: 1},
			{ID: "init_role_fit", Text: "Who would fit a {role} position?", Priority: 2, MinCVs: 1},
		},
		"single_candidate": {
			{ID: "single_risk", Text: "What are the risks of hiring {candidate_name}?", Priority: 1, MinCVs: 1},
			{ID: "single_verify", Text: "Verify {candidate_name}'s most recent position", Priority: 2, MinCVs: 1},
			{ID: "single_compare", Text: "Compare {candidate_name} with the other candidates", Priority: 1, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "single_skill", Text: "Does {candidate_name} have {skill} experience?", Priority: 2, MinCVs: 1},
			{ID: "single_career", Text: "Summarize {candidate_name}'s career trajectory", Priority: 3, MinCVs: 1},
		},
		"ranking": {
			{ID: "rank_top_profile", Text: "Show me the full profile of the top candidate", Priority: 1, MinCVs: 1},
			{ID: "rank_compare_top", Text: "Compare the top two candidates side by side", Priority: 1, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "rank_reweigh", Text: "Re-rank the candidates weighting stability higher", Priority: 2, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "rank_risk_top", Text: "What are the risks of hiring {candidate_name}?", Priority: 2, MinCVs: 1},
			{ID: "rank_why", Text: "Why did {candidate_name} rank where they did?", Priority: 3, MinCVs: 1},
		},
		"comparison": {
			{ID: "cmp_recommend", Text: "Which of them would you recommend and why?", Priority: 1, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "cmp_team", Text: "Could they work together as a team?", Priority: 2, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "cmp_gaps", Text: "What skills is {candidate_name} missing?", Priority: 2, MinCVs: 1},
			{ID: "cmp_rank_all", Text: "Rank all {num_cvs} candidates instead", Priority: 3, MinCVs: 2, RequiresMultipleCVs: true},
		},
		"search": {
			{ID: "search_profile", Text: "Show me {candidate_name}'s full profile", Priority: 1, MinCVs: 1},
			{ID: "search_narrow", Text: "Narrow the search to candidates with {skill}", Priority: 2, MinCVs: 1},
			{ID: "search_rank", Text: "Rank these results by experience", Priority: 2, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "search_role", Text: "Search for {role} profiles instead", Priority: 3, MinCVs: 1},
		},
		"job_match": {
			{ID: "match_best_profile", Text: "Show me the full profile of the best match", Priority: 1, MinCVs: 1},
			{ID: "match_gaps", Text: "How could {candidate_name} close the skill gaps?", Priority: 2, MinCVs: 1},
			{ID: "match_relax", Text: "Which requirements could be relaxed to widen the pool?", Priority: 2, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "match_risk", Text: "Assess the hiring risk of the best match", Priority: 3, MinCVs: 1},
		},
		"team_build": {
			{ID: "team_lead", Text: "Who should lead this team?", Priority: 1, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "team_gap", Text: "What skills is the proposed team missing?", Priority: 1, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "team_swap", Text: "Replace {candidate_name} with a stronger alternative", Priority: 2, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "team_risk", Text: "Assess the combined risk of this team", Priority: 3, MinCVs: 2, RequiresMultipleCVs: true},
		},
		"risk_assessment": {
			{ID: "risk_mitigate", Text: "How could the risks around {candidate_name} be mitigated?", Priority: 1, MinCVs: 1},
			{ID: "risk_alternative", Text: "Suggest a lower-risk alternative candidate", Priority: 2, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "risk_verify", Text: "Verify {candidate_name}'s employment dates", Priority: 2, MinCVs: 1},
			{ID: "risk_stability", Text: "Which candidate has the most stable career history?", Priority: 3, MinCVs: 2, RequiresMultipleCVs: true},
		},
		"verification": {
			{ID: "verify_profile", Text: "Show me {candidate_name}'s full profile", Priority: 1, MinCVs: 1},
			{ID: "verify_more", Text: "What else about {candidate_name} should be verified?", Priority: 2, MinCVs: 1},
			{ID: "verify_cert", Text: "Which candidates hold {skill} certifications?", Priority: 2, MinCVs: 1},
			{ID: "verify_risk", Text: "Does this finding change the hiring risk?", Priority: 3, MinCVs: 1},
		},
		"summary": {
			{ID: "sum_rank", Text: "Rank the {num_cvs} candidates by overall fit", Priority: 1, MinCVs: 2, RequiresMultipleCVs: true},
			{ID: "sum_top_skill", Text: "Who has the strongest {skill} background?", Priority: 2, MinCVs: 1},
			{ID: "sum_role", Text: "Who would fit a {role} position best?", Priority: 2, MinCVs: 1},
			{ID: "sum_outlier", Text: "Which candidate stands out from the pool and why?", Priority: 3, MinCVs: 2, RequiresMultipleCVs: true},
		},
	}
}

// LoadBank loads suggestion banks from a YAML file, falling back to the
// embedded defaults when the file is absent. Categories present in the
// file replace the corresponding defaults.
func LoadBank(path string) (Bank, error) {
	bank := DefaultBank()
	if path == "" {
		return bank, nil
	}
	b, err := os.ReadFile(path) // #nosec G304 -- configuration files are expected to be safe
	if err != nil {
		if os.IsNotExist(err) {
			return bank, nil
		}
		return bank, fmt.Errorf("op=suggest.LoadBank: %w", err)
	}
	var override Bank
	if err := yaml.Unmarshal(b, &override); err != nil {
		return bank, fmt.Errorf("op=suggest.LoadBank parse: %w", err)
	}
	for category, templates := range override {
		if len(templates) > 0 {
			bank[category] = templates
		}
	}
	return bank, nil
}
