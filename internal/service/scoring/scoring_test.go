package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/service/scoring"
)

func TestCreateProfileNormalizesWeights(t *testing.T) {
	t.Parallel()

	svc := scoring.New()
	p, err := svc.CreateProfile(domain.ScoringProfile{
		Name: "Backend",
		Weights: map[domain.Criterion]float64{
			domain.CriterionSkillsMatch: 3,
			domain.CriterionExperience:  1,
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, p.ID)

	sum := 0.0
	for _, w := range p.Weights {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.InDelta(t, 0.75, p.Weights[domain.CriterionSkillsMatch], 1e-6)

	stored, err := svc.Profile(p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, stored.Name)
}

func TestCreateProfileRejectsEmptyWeights(t *testing.T) {
	t.Parallel()

	svc := scoring.New()
	_, err := svc.CreateProfile(domain.ScoringProfile{Name: "empty"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestProfileNotFound(t *testing.T) {
	t.Parallel()

	svc := scoring.New()
	_, err := svc.Profile("missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestScoreCandidateStrongProfile(t *testing.T) {
	t.Parallel()

	svc := scoring.New()
	profile, err := svc.CreateProfile(domain.ScoringProfile{
		ID:   "backend",
		Name: "Backend Engineer",
		Weights: map[domain.Criterion]float64{
			domain.CriterionSkillsMatch: 0.4,
			domain.CriterionExperience:  0.4,
			domain.CriterionEducation:   0.2,
		},
		RequiredSkills:       []string{"Go", "PostgreSQL"},
		MinExperienceYears:   2,
		IdealExperienceYears: 8,
		RequiredEducation:    "Bachelor",
	})
	require.NoError(t, err)

	meta := domain.EnrichedMetadata{
		CandidateName:        "Alice Martin",
		TotalExperienceYears: 8,
		Skills:               []string{"Go", "PostgreSQL", "Kafka"},
		EducationLevel:       "Master",
	}
	res, err := svc.ScoreCandidate("cv_alice", meta, profile.ID)
	require.NoError(t, err)

	assert.Equal(t, "cv_alice", res.CVID)
	assert.InDelta(t, 100, res.Criteria[domain.CriterionSkillsMatch], 0.001)
	assert.InDelta(t, 100, res.Criteria[domain.CriterionExperience], 0.001)
	assert.InDelta(t, 100, res.Criteria[domain.CriterionEducation], 0.001)
	assert.InDelta(t, 100, res.Overall, 0.001)
	assert.Equal(t, "A", res.Grade)
	assert.NotEmpty(t, res.Strengths)
	assert.Empty(t, res.Weaknesses)
}

func TestScoreCandidateWeakProfile(t *testing.T) {
	t.Parallel()

	profile := domain.ScoringProfile{
		ID: "strict",
		Weights: map[domain.Criterion]float64{
			domain.CriterionSkillsMatch:    0.5,
			domain.CriterionExperience:     0.3,
			domain.CriterionCertifications: 0.2,
		},
		RequiredSkills:       []string{"Rust", "Haskell"},
		MinExperienceYears:   5,
		IdealExperienceYears: 10,
	}
	meta := domain.EnrichedMetadata{
		TotalExperienceYears: 1,
		Skills:               []string{"Excel"},
	}
	res := scoring.Score("cv_x", meta, profile)

	assert.Equal(t, "F", res.Grade)
	assert.Less(t, res.Overall, 60.0)
	assert.Empty(t, res.Strengths)
	assert.NotEmpty(t, res.Weaknesses)
	assert.LessOrEqual(t, len(res.Weaknesses), 3)
}

func TestGradeBands(t *testing.T) {
	t.Parallel()

	cases := map[float64]string{95: "A", 90: "A", 85: "B", 75: "C", 65: "D", 59.9: "F", 0: "F"}
	for score, want := range cases {
		assert.Equal(t, want, scoring.Grade(score), "score %v", score)
	}
}

func TestExperienceScoreBands(t *testing.T) {
	t.Parallel()

	profile := domain.ScoringProfile{MinExperienceYears: 4, IdealExperienceYears: 8}
	below := scoring.CriterionScore(domain.CriterionExperience, domain.EnrichedMetadata{TotalExperienceYears: 2}, profile)
	atMin := scoring.CriterionScore(domain.CriterionExperience, domain.EnrichedMetadata{TotalExperienceYears: 4}, profile)
	mid := scoring.CriterionScore(domain.CriterionExperience, domain.EnrichedMetadata{TotalExperienceYears: 6}, profile)
	above := scoring.CriterionScore(domain.CriterionExperience, domain.EnrichedMetadata{TotalExperienceYears: 12}, profile)

	assert.InDelta(t, 25, below, 0.001)
	assert.InDelta(t, 50, atMin, 0.001)
	assert.InDelta(t, 75, mid, 0.001)
	assert.InDelta(t, 100, above, 0.001)
}

func TestCulturalFitPenalizesHoppingAndGaps(t *testing.T) {
	t.Parallel()

	stable := scoring.CriterionScore(domain.CriterionCulturalFit, domain.EnrichedMetadata{JobHoppingScore: 0}, domain.ScoringProfile{})
	churner := scoring.CriterionScore(domain.CriterionCulturalFit, domain.EnrichedMetadata{JobHoppingScore: 0.7, EmploymentGapCount: 2}, domain.ScoringProfile{})

	assert.InDelta(t, 100, stable, 0.001)
	assert.InDelta(t, 10, churner, 0.001)
}

func TestCustomCriterionNeutral(t *testing.T) {
	t.Parallel()

	got := scoring.CriterionScore(domain.CriterionCustom, domain.EnrichedMetadata{}, domain.ScoringProfile{})
	assert.InDelta(t, 50, got, 0.001)
}
