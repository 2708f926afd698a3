// Package scoring evaluates candidates against weighted scoring
// profiles. Raw criterion scores are 0-100 and deterministic over
// enriched metadata; the overall score is the weighted sum with weights
// normalized at profile creation.
package scoring

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// Score thresholds for strengths and weaknesses.
const (
	strengthThreshold = 80.0
	weaknessThreshold = 60.0
	topN              = 3
)

// Result is one candidate scored against one profile.
type Result struct {
	CVID          string                       `json:"cv_id"`
	CandidateName string                       `json:"candidate_name,omitempty"`
	ProfileID     string                       `json:"profile_id"`
	Criteria      map[domain.Criterion]float64 `json:"criteria"`
	Overall       float64                      `json:"overall"`
	Grade         string                       `json:"grade"`
	Strengths     []domain.Criterion           `json:"strengths,omitempty"`
	Weaknesses    []domain.Criterion           `json:"weaknesses,omitempty"`
}

// Service holds scoring profiles behind a lock and scores candidates
// against them. Safe for concurrent use.
type Service struct {
	mu       sync.RWMutex
	profiles map[string]domain.ScoringProfile
}

// New constructs a Service pre-loaded with the default profile.
func New() *Service {
	s := &Service{profiles: make(map[string]domain.ScoringProfile)}
	def := DefaultProfile()
	s.profiles[def.ID] = def
	return s
}

// DefaultProfile is a balanced general-purpose profile.
func DefaultProfile() domain.ScoringProfile {
	return domain.ScoringProfile{
		ID:   "default",
		Name: "Balanced",
		Weights: map[domain.Criterion]float64{
			domain.CriterionSkillsMatch: 0.30,
			domain.CriterionExperience:  0.30,
			domain.CriterionEducation:   0.15,
			domain.CriterionRelevance:   0.15,
			domain.CriterionLanguages:   0.10,
		},
		MinExperienceYears:   2,
		IdealExperienceYears: 8,
	}
}

// CreateProfile registers a profile, normalizing its weights to sum 1.
// A missing id is generated; an existing id is replaced.
func (s *Service) CreateProfile(p domain.ScoringProfile) (domain.ScoringProfile, error) {
	if len(p.Weights) == 0 {
		return domain.ScoringProfile{}, fmt.Errorf("op=scoring.CreateProfile: %w: profile has no weights", domain.ErrInvalidArgument)
	}
	normalized, err := normalizeWeights(p.Weights)
	if err != nil {
		return domain.ScoringProfile{}, fmt.Errorf("op=scoring.CreateProfile: %w", err)
	}
	p.Weights = normalized
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.profiles[p.ID] = p
	s.mu.Unlock()
	return p, nil
}

// Profile returns a registered profile.
func (s *Service) Profile(id string) (domain.ScoringProfile, error) {
	s.mu.RLock()
	p, ok := s.profiles[id]
	s.mu.RUnlock()
	if !ok {
		return domain.ScoringProfile{}, fmt.Errorf("op=scoring.Profile: %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// Profiles lists registered profiles sorted by id.
func (s *Service) Profiles() []domain.ScoringProfile {
	s.mu.RLock()
	out := make([]domain.ScoringProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ScoreCandidate scores one candidate's metadata against a profile.
func (s *Service) ScoreCandidate(cvID string, meta domain.EnrichedMetadata, profileID string) (Result, error) {
	profile, err := s.Profile(profileID)
	if err != nil {
		return Result{}, err
	}
	return Score(cvID, meta, profile), nil
}

// Score computes every weighted criterion, the overall score and the
// letter grade for one candidate.
func Score(cvID string, meta domain.EnrichedMetadata, profile domain.ScoringProfile) Result {
	res := Result{
		CVID:          cvID,
		CandidateName: meta.CandidateName,
		ProfileID:     profile.ID,
		Criteria:      make(map[domain.Criterion]float64, len(profile.Weights)),
	}
	overall := 0.0
	for criterion, weight := range profile.Weights {
		raw := CriterionScore(criterion, meta, profile)
		res.Criteria[criterion] = raw
		overall += weight * raw
	}
	res.Overall = clamp100(overall)
	res.Grade = Grade(res.Overall)
	res.Strengths, res.Weaknesses = classify(res.Criteria)
	return res
}

// Grade maps an overall score to a letter grade.
func Grade(overall float64) string {
	switch {
	case overall >= 90:
		return "A"
	case overall >= 80:
		return "B"
	case overall >= 70:
		return "C"
	case overall >= 60:
		return "D"
	default:
		return "F"
	}
}

// CriterionScore computes one raw 0-100 criterion score.
func CriterionScore(criterion domain.Criterion, meta domain.EnrichedMetadata, profile domain.ScoringProfile) float64 {
	switch criterion {
	case domain.CriterionSkillsMatch:
		return skillsMatchScore(meta, profile)
	case domain.CriterionExperience:
		return experienceScore(meta, profile)
	case domain.CriterionEducation:
		return educationScore(meta, profile)
	case domain.CriterionRelevance:
		return relevanceScore(meta, profile)
	case domain.CriterionCertifications:
		return certificationScore(meta)
	case domain.CriterionLanguages:
		return languageScore(meta)
	case domain.CriterionLocation:
		return locationScore(meta, profile)
	case domain.CriterionCulturalFit:
		return culturalFitScore(meta)
	default:
		// Custom criteria carry no derivable signal; score neutral.
		return 50
	}
}

// skillsMatchScore covers required skills fully and preferred skills at
// half weight, mirroring the structure match module.
func skillsMatchScore(meta domain.EnrichedMetadata, profile domain.ScoringProfile) float64 {
	if len(profile.RequiredSkills) == 0 && len(profile.PreferredSkills) == 0 {
		return 50
	}
	have := make(map[string]struct{}, len(meta.Skills))
	for _, s := range meta.Skills {
		have[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	hit := func(skill string) bool {
		_, ok := have[strings.ToLower(strings.TrimSpace(skill))]
		return ok
	}
	score, total := 0.0, 0.0
	for _, s := range profile.RequiredSkills {
		total++
		if hit(s) {
			score++
		}
	}
	for _, s := range profile.PreferredSkills {
		total += 0.5
		if hit(s) {
			score += 0.5
		}
	}
	if total == 0 {
		return 50
	}
	return clamp100(score / total * 100)
}

// experienceScore is 0-50 linear up to the profile minimum, then 50-100
// linear up to the ideal.
func experienceScore(meta domain.EnrichedMetadata, profile domain.ScoringProfile) float64 {
	years := meta.TotalExperienceYears
	minY, ideal := profile.MinExperienceYears, profile.IdealExperienceYears
	if minY <= 0 && ideal <= 0 {
		// No profile guidance, scale to 100 at ten years.
		return clamp100(years / 10 * 100)
	}
	if ideal <= minY {
		ideal = minY + 1
	}
	if years < minY {
		if minY == 0 {
			return 50
		}
		return clamp100(years / minY * 50)
	}
	return clamp100(50 + (years-minY)/(ideal-minY)*50)
}

var educationRank = map[string]int{
	"diploma":  1,
	"bachelor": 2,
	"master":   3,
	"phd":      4,
}

func educationScore(meta domain.EnrichedMetadata, profile domain.ScoringProfile) float64 {
	have := educationRank[strings.ToLower(meta.EducationLevel)]
	want := educationRank[strings.ToLower(profile.RequiredEducation)]
	switch {
	case want == 0:
		if have == 0 {
			return 50
		}
		return clamp100(float64(have) / 4 * 100)
	case have >= want:
		return 100
	case have == want-1:
		return 60
	case have > 0:
		return 40
	default:
		return 20
	}
}

// relevanceScore measures how much of the candidate's profile text
// overlaps the target role wording and skills.
func relevanceScore(meta domain.EnrichedMetadata, profile domain.ScoringProfile) float64 {
	wanted := append(append([]string(nil), profile.RequiredSkills...), profile.PreferredSkills...)
	if profile.Name != "" {
		wanted = append(wanted, strings.Fields(profile.Name)...)
	}
	if len(wanted) == 0 {
		return 50
	}
	haystack := strings.ToLower(strings.Join(meta.Skills, " ") + " " + meta.CurrentRole + " " + strings.Join(positionTitles(meta), " "))
	hits := 0
	for _, w := range wanted {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" && strings.Contains(haystack, w) {
			hits++
		}
	}
	return clamp100(float64(hits) / float64(len(wanted)) * 100)
}

func positionTitles(meta domain.EnrichedMetadata) []string {
	titles := make([]string, 0, len(meta.Positions))
	for _, p := range meta.Positions {
		titles = append(titles, p.Title)
	}
	return titles
}

// certificationScore scales to 100 at three certifications.
func certificationScore(meta domain.EnrichedMetadata) float64 {
	return clamp100(float64(len(meta.Certifications)) / 3 * 100)
}

// languageScore scales to 100 at three spoken languages; an unknown
// language set scores a neutral 40.
func languageScore(meta domain.EnrichedMetadata) float64 {
	if len(meta.Languages) == 0 {
		return 40
	}
	return clamp100(float64(len(meta.Languages)) / 3 * 100)
}

func locationScore(meta domain.EnrichedMetadata, profile domain.ScoringProfile) float64 {
	if len(profile.PreferredLocations) == 0 {
		return 100
	}
	if meta.Location == "" {
		return 50
	}
	loc := strings.ToLower(meta.Location)
	for _, want := range profile.PreferredLocations {
		want = strings.ToLower(strings.TrimSpace(want))
		if want != "" && (strings.Contains(loc, want) || strings.Contains(want, loc)) {
			return 100
		}
	}
	return 30
}

// culturalFitScore is a stability proxy: low hopping and few gaps read
// as a safer long-term fit.
func culturalFitScore(meta domain.EnrichedMetadata) float64 {
	score := 100 - 100*meta.JobHoppingScore
	score -= 10 * float64(meta.EmploymentGapCount)
	return clamp100(score)
}

// classify returns the top strengths (raw >= 80) and weaknesses
// (raw < 60), at most three each, strongest and weakest first.
func classify(criteria map[domain.Criterion]float64) (strengths, weaknesses []domain.Criterion) {
	type entry struct {
		c domain.Criterion
		v float64
	}
	entries := make([]entry, 0, len(criteria))
	for c, v := range criteria {
		entries = append(entries, entry{c, v})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].v != entries[j].v {
			return entries[i].v > entries[j].v
		}
		return entries[i].c < entries[j].c
	})
	for _, e := range entries {
		if e.v >= strengthThreshold && len(strengths) < topN {
			strengths = append(strengths, e.c)
		}
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].v < weaknessThreshold && len(weaknesses) < topN {
			weaknesses = append(weaknesses, entries[i].c)
		}
	}
	return strengths, weaknesses
}

// normalizeWeights scales positive weights to sum 1.
func normalizeWeights(weights map[domain.Criterion]float64) (map[domain.Criterion]float64, error) {
	out := make(map[domain.Criterion]float64, len(weights))
	sum := 0.0
	for c, w := range weights {
		if w < 0 {
			return nil, fmt.Errorf("%w: negative weight for %s", domain.ErrInvalidArgument, c)
		}
		if w > 0 {
			out[c] = w
			sum += w
		}
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: weights sum to zero", domain.ErrInvalidArgument)
	}
	for c := range out {
		out[c] /= sum
	}
	return out, nil
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
