// Package domain holds the core entities and ports of the CV RAG engine.
// It stays dependency-free so adapters and services can share types
// without import cycles.
package domain

import (
	"context"
	"time"
)

// Context is an alias to the standard context. Kept so usecases and
// adapters share one signature style across the codebase.
type Context = context.Context

// SectionType classifies a chunk of CV content.
type SectionType string

// Section types emitted by the chunker.
const (
	SectionSummary        SectionType = "summary"
	SectionExperience     SectionType = "experience"
	SectionSkills         SectionType = "skills"
	SectionEducation      SectionType = "education"
	SectionCertifications SectionType = "certifications"
	SectionFullCV         SectionType = "full_cv"
	SectionGeneral        SectionType = "general"
)

// CV is an indexed résumé document. Immutable once created; deleting a
// CV removes all derived chunks from the vector store.
type CV struct {
	ID            string
	Filename      string
	RawText       string
	CandidateName string
	IndexedAt     time.Time
}

// Position is one work experience entry extracted from a CV.
type Position struct {
	Title         string  `json:"title"`
	Company       string  `json:"company"`
	StartYear     int     `json:"start_year"`
	EndYear       int     `json:"end_year"` // 0 while IsCurrent
	IsCurrent     bool    `json:"is_current"`
	DurationYears float64 `json:"duration_years"`
}

// EnrichedMetadata carries CV-wide derived attributes. It is computed
// once during ingestion and copied onto every chunk of the CV; all
// chunks of one CV carry identical values.
type EnrichedMetadata struct {
	CandidateName        string          `json:"candidate_name"`
	TotalExperienceYears float64         `json:"total_experience_years"`
	ExperienceEstimated  bool            `json:"experience_estimated"`
	PositionCount        int             `json:"position_count"`
	Positions            []Position      `json:"positions,omitempty"`
	CurrentRole          string          `json:"current_role,omitempty"`
	CurrentCompany       string          `json:"current_company,omitempty"`
	Seniority            string          `json:"seniority,omitempty"`
	JobHoppingScore      float64         `json:"job_hopping_score"`
	AvgTenureYears       float64         `json:"avg_tenure_years"`
	EmploymentGapCount   int             `json:"employment_gap_count"`
	HasFAANG             bool            `json:"has_faang"`
	Skills               []string        `json:"skills,omitempty"`
	Languages            []string        `json:"languages,omitempty"`
	EducationLevel       string          `json:"education_level,omitempty"`
	EducationField       string          `json:"education_field,omitempty"`
	EducationInstitution string          `json:"education_institution,omitempty"`
	GraduationYear       int             `json:"graduation_year,omitempty"`
	Certifications       []string        `json:"certifications,omitempty"`
	Location             string          `json:"location,omitempty"`
	LinkedInURL          string          `json:"linkedin_url,omitempty"`
	GitHubURL            string          `json:"github_url,omitempty"`
	PortfolioURL         string          `json:"portfolio_url,omitempty"`
	Hobbies              []string        `json:"hobbies,omitempty"`
	// Flags holds derived booleans such as speaks_french or has_aws_cert.
	Flags map[string]bool `json:"flags,omitempty"`
	// Extra is an open bag for adapter-specific scalar values. Code paths
	// must read known attributes through the typed fields above.
	Extra map[string]any `json:"extra,omitempty"`
}

// Flag reports a derived boolean such as "speaks_french".
func (m EnrichedMetadata) Flag(name string) bool { return m.Flags[name] }

// Chunk is the indexed unit of CV content.
// Invariant: per CV exactly one chunk has Index==0 and Section==summary.
type Chunk struct {
	ID        string
	CVID      string
	Index     int
	Section   SectionType
	Content   string
	Metadata  EnrichedMetadata
	Embedding []float32
	Filename  string
	IndexedAt time.Time
}

// SearchResult is one retrieval hit. Similarity is cosine in [0,1];
// fused (RRF) scores may exceed 1 and must be rescaled before display.
type SearchResult struct {
	CVID       string           `json:"cv_id"`
	ChunkID    string           `json:"chunk_id"`
	Section    SectionType      `json:"section_type"`
	Content    string           `json:"content"`
	Metadata   EnrichedMetadata `json:"metadata"`
	Similarity float64          `json:"similarity"`
	Filename   string           `json:"filename"`
}

// NormalizedSimilarity rescales fused scores >1 back into [0,1].
func (r SearchResult) NormalizedSimilarity() float64 {
	if r.Similarity > 1 {
		return 1 - 1/(1+r.Similarity)
	}
	if r.Similarity < 0 {
		return 0
	}
	return r.Similarity
}

// QueryType classifies the user intent detected by query understanding.
type QueryType string

// Query types routed to response structures.
const (
	QuerySingleCandidate QueryType = "single_candidate"
	QueryRanking         QueryType = "ranking"
	QueryComparison      QueryType = "comparison"
	QuerySearch          QueryType = "search"
	QueryJobMatch        QueryType = "job_match"
	QueryTeamBuild       QueryType = "team_build"
	QueryRiskAssessment  QueryType = "risk_assessment"
	QueryVerification    QueryType = "verification"
	QuerySummary         QueryType = "summary"
	QueryInitial         QueryType = "initial"
	QueryRedFlags        QueryType = "red_flags"
)

// QueryUnderstanding is the result of intent classification.
type QueryUnderstanding struct {
	Original           string    `json:"original"`
	Understood         string    `json:"understood"`
	Type               QueryType `json:"type"`
	Requirements       []string  `json:"requirements,omitempty"`
	ReformulatedPrompt string    `json:"reformulated_prompt"`
	IsCVRelated        bool      `json:"is_cv_related"`
}

// TableRow is one parsed row of a candidate table. MatchScore is 0-100.
type TableRow struct {
	CandidateName string            `json:"candidate_name"`
	CVID          string            `json:"cv_id,omitempty"`
	Columns       map[string]string `json:"columns,omitempty"`
	MatchScore    float64           `json:"match_score"`
}

// StructuredOutput is the LLM answer parsed into its components.
type StructuredOutput struct {
	DirectAnswer    string     `json:"direct_answer"`
	RawContent      string     `json:"raw_content"`
	Thinking        string     `json:"thinking,omitempty"`
	Analysis        string     `json:"analysis,omitempty"`
	Conclusion      string     `json:"conclusion,omitempty"`
	TableData       []TableRow `json:"table_data,omitempty"`
	CVReferences    []string   `json:"cv_references,omitempty"`
	ParsingWarnings []string   `json:"parsing_warnings,omitempty"`
	FallbackUsed    bool       `json:"fallback_used"`
}

// VerificationResult combines LLM groundedness and heuristic checks.
type VerificationResult struct {
	Enabled             bool     `json:"enabled"`
	Groundedness        float64  `json:"groundedness"`
	VerifiedClaims      []string `json:"verified_claims,omitempty"`
	UngroundedClaims    []string `json:"ungrounded_claims,omitempty"`
	HeuristicConfidence float64  `json:"heuristic_confidence"`
	Confidence          float64  `json:"confidence"`
	Passed              bool     `json:"passed"`
	Warnings            []string `json:"warnings,omitempty"`
}

// RAGResponse is the per-query result handed to the eval log and caller.
type RAGResponse struct {
	Answer             string              `json:"answer"`
	Sources            []SearchResult      `json:"sources"`
	StructureType      string              `json:"structure_type,omitempty"`
	Structured         map[string]any      `json:"structured_output,omitempty"`
	Metrics            map[string]int64    `json:"metrics"` // milliseconds per stage
	TokensIn           int                 `json:"tokens_in"`
	TokensOut          int                 `json:"tokens_out"`
	Confidence         float64             `json:"confidence"`
	GuardrailPassed    bool                `json:"guardrail_passed"`
	Verification       *VerificationResult `json:"verification,omitempty"`
	QueryUnderstanding *QueryUnderstanding `json:"query_understanding,omitempty"`
	Mode               string              `json:"mode"`
}

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn. StructureType tags assistant turns
// with the response structure that produced them; context resolution and
// the suggestion engine read it back.
type Message struct {
	Role          string `json:"role"`
	Content       string `json:"content"`
	StructureType string `json:"structure_type,omitempty"`
}

// Session scopes queries to a set of indexed CVs and holds conversation
// history for pronoun resolution.
type Session struct {
	ID        string    `json:"session_id"`
	Name      string    `json:"name"`
	CVIDs     []string  `json:"cv_ids"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Criterion identifies a scored dimension of a candidate.
type Criterion string

// Scoring criteria.
const (
	CriterionSkillsMatch    Criterion = "skills_match"
	CriterionExperience     Criterion = "experience"
	CriterionEducation      Criterion = "education"
	CriterionRelevance      Criterion = "relevance"
	CriterionCertifications Criterion = "certifications"
	CriterionLanguages      Criterion = "languages"
	CriterionLocation       Criterion = "location"
	CriterionCulturalFit    Criterion = "cultural_fit"
	CriterionCustom         Criterion = "custom"
)

// ScoringProfile weights criteria for 0-100 candidate scoring.
// Invariant: weights are normalized so they sum to 1.
type ScoringProfile struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	Weights              map[Criterion]float64 `json:"weights"`
	RequiredSkills       []string              `json:"required_skills,omitempty"`
	PreferredSkills      []string              `json:"preferred_skills,omitempty"`
	MinExperienceYears   float64               `json:"min_experience_years"`
	IdealExperienceYears float64               `json:"ideal_experience_years"`
	RequiredEducation    string                `json:"required_education,omitempty"`
	PreferredLocations   []string              `json:"preferred_locations,omitempty"`
}

// EvalRecord is one append-only telemetry row written after a query.
type EvalRecord struct {
	TS                 time.Time           `json:"ts"`
	Query              string              `json:"query"`
	ResponseExcerpt    string              `json:"response_excerpt"`
	Sources            []string            `json:"sources"`
	Metrics            map[string]int64    `json:"metrics"`
	HallucinationCheck *VerificationResult `json:"hallucination_check,omitempty"`
	GuardrailPassed    bool                `json:"guardrail_passed"`
	SessionID          string              `json:"session_id,omitempty"`
	Mode               string              `json:"mode"`
}
