package structures_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/service/structures"
)

func summaryResult(cvID, name string, meta domain.EnrichedMetadata, sim float64) domain.SearchResult {
	meta.CandidateName = name
	return domain.SearchResult{
		CVID:       cvID,
		ChunkID:    cvID + "_0",
		Section:    domain.SectionSummary,
		Content:    name + " summary chunk",
		Metadata:   meta,
		Similarity: sim,
		Filename:   strings.ToLower(name) + ".pdf",
	}
}

func skillList(n int) []string {
	skills := make([]string, 0, n)
	for i := 0; i < n; i++ {
		skills = append(skills, fmt.Sprintf("Skill%d", i+1))
	}
	return skills
}

func TestRankingComputedOrder(t *testing.T) {
	t.Parallel()

	years := []float64{10, 8, 8, 3, 1}
	skills := []int{9, 8, 6, 3, 2}
	results := make([]domain.SearchResult, 0, 5)
	for i := range years {
		name := fmt.Sprintf("Candidate %c", 'A'+i)
		results = append(results, summaryResult(fmt.Sprintf("cv_%d", i+1), name, domain.EnrichedMetadata{
			TotalExperienceYears: years[i],
			Skills:               skillList(skills[i]),
		}, 0.9-float64(i)*0.1))
	}

	doc := structures.Ranking(structures.Input{
		Query:         "Rank the candidates",
		Understanding: domain.QueryUnderstanding{Type: domain.QueryRanking},
		Results:       results,
		Weights:       map[string]float64{"experience": 0.5, "technical": 0.5},
	})

	require.Equal(t, "ranking", doc["structure_type"])
	table, ok := doc["ranking_table"].([]structures.RankedCandidate)
	require.True(t, ok)
	require.Len(t, table, 5)

	for i, row := range table {
		assert.Equal(t, i+1, row.Rank)
		assert.Equal(t, fmt.Sprintf("cv_%d", i+1), row.CVID)
	}
	assert.GreaterOrEqual(t, table[0].OverallScore, 95.0)
	for i := 1; i < len(table); i++ {
		assert.GreaterOrEqual(t, table[i-1].OverallScore, table[i].OverallScore)
	}

	top, ok := doc["top_pick"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, table[0].CandidateName, top["candidate_name"])
	assert.Equal(t, table[0].OverallScore, top["overall_score"])

	conclusion, _ := doc["conclusion"].(string)
	assert.Contains(t, conclusion, table[0].CandidateName)
}

func TestRankingSingleCandidate(t *testing.T) {
	t.Parallel()

	doc := structures.Ranking(structures.Input{
		Understanding: domain.QueryUnderstanding{Type: domain.QueryRanking},
		Results: []domain.SearchResult{
			summaryResult("cv_solo", "Solo Dev", domain.EnrichedMetadata{
				TotalExperienceYears: 5,
				Skills:               skillList(4),
				Seniority:            "mid",
			}, 0.8),
		},
	})

	table := doc["ranking_table"].([]structures.RankedCandidate)
	require.Len(t, table, 1)
	assert.Equal(t, 1, table[0].Rank)
	top := doc["top_pick"].(map[string]any)
	assert.Equal(t, "Solo Dev", top["candidate_name"])
}

func TestRankingRegeneratesConflictingConclusion(t *testing.T) {
	t.Parallel()

	results := []domain.SearchResult{
		summaryResult("cv_a", "Alice Strong", domain.EnrichedMetadata{TotalExperienceYears: 10, Skills: skillList(9)}, 0.9),
		summaryResult("cv_b", "Bob Weak", domain.EnrichedMetadata{TotalExperienceYears: 1, Skills: skillList(1)}, 0.8),
	}
	doc := structures.Ranking(structures.Input{
		Understanding: domain.QueryUnderstanding{Type: domain.QueryRanking},
		Output:        domain.StructuredOutput{Conclusion: "Bob Weak is clearly the best choice."},
		Results:       results,
	})

	conclusion := doc["conclusion"].(string)
	assert.Contains(t, conclusion, "Alice Strong")
	assert.Contains(t, conclusion, "ranks first")
}

func TestVerificationNotFound(t *testing.T) {
	t.Parallel()

	results := []domain.SearchResult{
		summaryResult("cv_alice", "Alice Martin", domain.EnrichedMetadata{
			TotalExperienceYears: 6,
			Skills:               []string{"Python", "Docker"},
		}, 0.85),
	}
	results[0].Content = "Alice Martin. Software engineer with Python and Docker background."

	doc := structures.Verification(structures.Input{
		Query: "Does Alice have a Kubernetes certification?",
		Understanding: domain.QueryUnderstanding{
			Type:       domain.QueryVerification,
			Understood: "Does Alice have a Kubernetes certification?",
		},
		Output:  domain.StructuredOutput{Conclusion: "Yes, Alice holds a Kubernetes certification."},
		Results: results,
	})

	assert.Equal(t, "verification", doc["structure_type"])
	assert.Equal(t, structures.VerdictNotFound, doc["verdict"])
	assert.InDelta(t, 0.3, doc["confidence"].(float64), 0.001)

	conclusion := doc["conclusion"].(string)
	assert.True(t, strings.HasPrefix(conclusion, "Unable to verify"), "conclusion was %q", conclusion)
}

func TestVerificationConfirmed(t *testing.T) {
	t.Parallel()

	results := []domain.SearchResult{
		summaryResult("cv_alice", "Alice Martin", domain.EnrichedMetadata{}, 0.9),
	}
	results[0].Content = "Alice Martin holds an AWS Solutions Architect certification."

	doc := structures.Verification(structures.Input{
		Query:         "Does Alice have an AWS certification?",
		Understanding: domain.QueryUnderstanding{Type: domain.QueryVerification, Understood: "Does Alice have an AWS certification?"},
		Results:       results,
	})

	assert.Equal(t, structures.VerdictConfirmed, doc["verdict"])
	assert.InDelta(t, 0.9, doc["confidence"].(float64), 0.001)
	evidence := doc["evidence"].([]structures.Evidence)
	require.NotEmpty(t, evidence)
	assert.Equal(t, "cv_alice", evidence[0].CVID)
}

func TestJobMatchScoresRequirements(t *testing.T) {
	t.Parallel()

	results := []domain.SearchResult{
		summaryResult("cv_py", "Pat Python", domain.EnrichedMetadata{
			TotalExperienceYears: 4,
			Skills:               []string{"Python", "Django"},
		}, 0.9),
	}
	results[0].Content = "Pat Python. Backend developer working with Python and Django."

	doc := structures.JobMatch(structures.Input{
		Query: "Who fits a backend role needing Python and AWS?",
		Understanding: domain.QueryUnderstanding{
			Type:         domain.QueryJobMatch,
			Requirements: []string{"Python", "AWS"},
		},
		Results: results,
	})

	best := doc["best_match"].(map[string]any)
	assert.Equal(t, "Pat Python", best["candidate_name"])
	assert.InDelta(t, 50.0, best["overall_score"].(float64), 0.001)

	conclusion := doc["conclusion"].(string)
	assert.Contains(t, conclusion, "Pat Python")
}

func TestAdaptiveLanguagesColumns(t *testing.T) {
	t.Parallel()

	results := []domain.SearchResult{
		summaryResult("cv_alice", "Alice", domain.EnrichedMetadata{Languages: []string{"English", "French"}}, 0.9),
		summaryResult("cv_bob", "Bob", domain.EnrichedMetadata{Languages: []string{"English", "Spanish"}}, 0.8),
	}

	doc := structures.Adaptive(structures.Input{
		Query:         "What languages do candidates speak?",
		Understanding: domain.QueryUnderstanding{Understood: "What languages do candidates speak?"},
		Results:       results,
	})

	assert.Equal(t, "adaptive", doc["structure_type"])
	assert.Equal(t, []string{"Candidate", "Languages"}, doc["columns"])

	rows := doc["rows"].([]map[string]string)
	require.Len(t, rows, 2)
	assert.Equal(t, "Alice", rows[0]["Candidate"])
	assert.Equal(t, "English, French", rows[0]["Languages"])

	dist := doc["distribution"].(map[string]int)
	assert.Equal(t, map[string]int{"English": 2, "French": 1, "Spanish": 1}, dist)
}

func TestAdaptiveDefaultColumns(t *testing.T) {
	t.Parallel()

	doc := structures.Adaptive(structures.Input{
		Query: "Tell me about the pool",
		Results: []domain.SearchResult{
			summaryResult("cv_x", "Xenia", domain.EnrichedMetadata{TotalExperienceYears: 3, Skills: []string{"Go"}}, 0.7),
		},
	})

	assert.Equal(t, []string{"Candidate", "Experience", "Skills"}, doc["columns"])
}

func TestSummaryDistributions(t *testing.T) {
	t.Parallel()

	results := []domain.SearchResult{
		summaryResult("cv_a", "Alice", domain.EnrichedMetadata{TotalExperienceYears: 8, Seniority: "senior", Skills: []string{"Go", "Python"}}, 0.9),
		summaryResult("cv_b", "Bob", domain.EnrichedMetadata{TotalExperienceYears: 2, Seniority: "entry", Skills: []string{"Go"}}, 0.8),
	}

	doc := structures.Summary(structures.Input{Results: results})

	assert.Equal(t, "summary", doc["structure_type"])
	assert.Equal(t, 2, doc["candidate_count"])
	assert.InDelta(t, 5.0, doc["average_experience_years"].(float64), 0.001)
	assert.Equal(t, map[string]int{"senior": 1, "entry": 1}, doc["seniority_distribution"])
	top := doc["top_skills"].([]string)
	require.NotEmpty(t, top)
	assert.Equal(t, "Go", top[0])
}

func TestRouterDispatch(t *testing.T) {
	t.Parallel()

	router := structures.NewRouter()
	cases := []struct {
		queryType domain.QueryType
		want      string
	}{
		{domain.QuerySingleCandidate, "single_candidate"},
		{domain.QueryRanking, "ranking"},
		{domain.QueryComparison, "comparison"},
		{domain.QuerySearch, "search"},
		{domain.QueryJobMatch, "job_match"},
		{domain.QueryTeamBuild, "team_build"},
		{domain.QueryRiskAssessment, "risk_assessment"},
		{domain.QueryRedFlags, "risk_assessment"},
		{domain.QueryVerification, "verification"},
		{domain.QuerySummary, "summary"},
		{domain.QueryInitial, "summary"},
		{domain.QueryType("anything_else"), "adaptive"},
	}
	results := []domain.SearchResult{
		summaryResult("cv_1", "Dana", domain.EnrichedMetadata{TotalExperienceYears: 5, Skills: []string{"Go"}}, 0.8),
	}
	for _, tc := range cases {
		doc := router.Build(structures.Input{
			Query:         "test",
			Understanding: domain.QueryUnderstanding{Type: tc.queryType},
			Results:       results,
		})
		assert.Equal(t, tc.want, doc["structure_type"], "type %s", tc.queryType)
	}
}

func TestMatchScoreClassification(t *testing.T) {
	t.Parallel()

	reqs := []structures.Requirement{
		{Name: "Python", Required: true},
		{Name: "machine learning engineering", Required: true},
		{Name: "Rust", Required: true},
	}
	meta := domain.EnrichedMetadata{Skills: []string{"Python", "Machine Learning"}}
	res := structures.MatchScore(reqs, meta, "built machine learning pipelines and engineering tooling in python")

	assert.Equal(t, []string{"Python"}, res.Met)
	assert.Equal(t, []string{"machine learning engineering"}, res.Partial)
	assert.Equal(t, []string{"Rust"}, res.Missing)
	assert.InDelta(t, 50.0, res.Overall, 0.001)
}

func TestNormalizeWeights(t *testing.T) {
	t.Parallel()

	w := structures.NormalizeWeights(map[string]float64{"experience": 2, "technical": 2})
	assert.InDelta(t, 0.5, w["experience"], 0.001)
	assert.InDelta(t, 0.5, w["skills"], 0.001)

	def := structures.NormalizeWeights(nil)
	sum := 0.0
	for _, v := range def {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 0.001)
}

func TestRiskTableLevels(t *testing.T) {
	t.Parallel()

	_, overall := structures.RiskTable(domain.EnrichedMetadata{
		TotalExperienceYears: 10,
		JobHoppingScore:      0.1,
		AvgTenureYears:       3.5,
		PositionCount:        3,
	})
	assert.Equal(t, structures.RiskLow, overall)

	_, overall = structures.RiskTable(domain.EnrichedMetadata{
		TotalExperienceYears: 1.5,
		JobHoppingScore:      0.8,
		AvgTenureYears:       0.5,
		PositionCount:        4,
		EmploymentGapCount:   2,
	})
	assert.Equal(t, structures.RiskHigh, overall)
}
