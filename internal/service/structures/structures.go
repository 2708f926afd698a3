// Package structures assembles typed response documents from the parsed
// LLM output, the retrieved chunks and their enriched metadata. A router
// maps the detected query type to one structure; structures compose the
// reusable modules in modules.go. Facts that are derivable from data
// (scores, verdicts, rankings) are always computed, never taken from the
// LLM text.
package structures

import (
	"sort"
	"strings"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// Input is everything a structure may draw on.
type Input struct {
	Query         string
	Understanding domain.QueryUnderstanding
	Output        domain.StructuredOutput
	Results       []domain.SearchResult
	// Weights overrides the ranking criteria weights; nil selects the
	// default weight set.
	Weights map[string]float64
}

// Candidate is one distinct CV recovered from the retrieved chunks,
// carrying the CV-wide metadata and the best similarity seen.
type Candidate struct {
	CVID           string
	Name           string
	Meta           domain.EnrichedMetadata
	BestSimilarity float64
}

// Candidates collapses chunks into distinct CVs, ordered by best
// normalized similarity, ties by cv id for determinism.
func Candidates(results []domain.SearchResult) []Candidate {
	byCV := make(map[string]*Candidate)
	for _, r := range results {
		sim := r.NormalizedSimilarity()
		c, ok := byCV[r.CVID]
		if !ok {
			name := r.Metadata.CandidateName
			if name == "" {
				name = r.Filename
			}
			if name == "" {
				name = r.CVID
			}
			byCV[r.CVID] = &Candidate{CVID: r.CVID, Name: name, Meta: r.Metadata, BestSimilarity: sim}
			continue
		}
		if sim > c.BestSimilarity {
			c.BestSimilarity = sim
		}
		// Prefer metadata carrying a candidate name.
		if c.Meta.CandidateName == "" && r.Metadata.CandidateName != "" {
			c.Meta = r.Metadata
			c.Name = r.Metadata.CandidateName
		}
	}
	out := make([]Candidate, 0, len(byCV))
	for _, c := range byCV {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BestSimilarity != out[j].BestSimilarity {
			return out[i].BestSimilarity > out[j].BestSimilarity
		}
		return out[i].CVID < out[j].CVID
	})
	return out
}

// CVLink renders the stable markdown reference for a candidate.
func CVLink(name, cvID string) string {
	if cvID == "" {
		return "**" + name + "**"
	}
	return "[📄](cv:" + cvID + ") **" + name + "**"
}

// Router dispatches query types to structure builders.
type Router struct{}

// NewRouter constructs a Router.
func NewRouter() *Router { return &Router{} }

// Build assembles the structure document for the detected query type.
// Types with no dedicated structure fall back to the adaptive one. Every
// document carries "structure_type" plus a "formatted" markdown
// rendering for clients without structure support.
func (r *Router) Build(in Input) map[string]any {
	switch in.Understanding.Type {
	case domain.QuerySingleCandidate:
		return SingleCandidate(in)
	case domain.QueryRanking:
		return Ranking(in)
	case domain.QueryComparison:
		return Comparison(in)
	case domain.QuerySearch:
		return Search(in)
	case domain.QueryJobMatch:
		return JobMatch(in)
	case domain.QueryTeamBuild:
		return TeamBuild(in)
	case domain.QueryRiskAssessment, domain.QueryRedFlags:
		return RiskAssessment(in)
	case domain.QueryVerification:
		return Verification(in)
	case domain.QuerySummary, domain.QueryInitial:
		return Summary(in)
	default:
		return Adaptive(in)
	}
}

// firstNonEmpty returns the first non-blank string.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
