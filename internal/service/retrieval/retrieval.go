// Package retrieval runs adaptive vector search: query embedding,
// strategy selection from query type and corpus size, cv-id filtering
// and per-CV diversification.
package retrieval

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/observability"
)

// Strategy is the resolved search plan for one query.
type Strategy struct {
	K             int
	Threshold     float64
	DiversifyByCV bool
}

// Engine wraps the embedder and vector store behind one search call.
type Engine struct {
	embedder domain.Embedder
	store    domain.VectorStore

	defaultK         int
	defaultThreshold float64
}

// New constructs an Engine with the configured defaults.
func New(embedder domain.Embedder, store domain.VectorStore, defaultK int, defaultThreshold float64) *Engine {
	return &Engine{embedder: embedder, store: store, defaultK: defaultK, defaultThreshold: defaultThreshold}
}

// PlanStrategy picks k, threshold and diversification from the query
// type and the session's CV count. Large corpora trade threshold for
// recall; ranking-style queries need one hit per candidate.
func (e *Engine) PlanStrategy(queryType domain.QueryType, totalCVs int) Strategy {
	s := Strategy{K: e.defaultK, Threshold: e.defaultThreshold}
	ranking := queryType == domain.QueryRanking || queryType == domain.QueryComparison
	switch {
	case ranking && totalCVs > 100:
		s.DiversifyByCV = true
		s.K = 30
	case ranking:
		s.DiversifyByCV = true
		s.K = 100
		if totalCVs > 0 && totalCVs < 100 {
			s.K = totalCVs
		}
	case totalCVs > 0 && totalCVs < 100:
		s.DiversifyByCV = true
		s.K = totalCVs
	default:
		s.DiversifyByCV = false
	}
	if s.K < 1 {
		s.K = e.defaultK
	}
	if totalCVs > 100 {
		s.Threshold = math.Max(0.05, s.Threshold-0.10)
	}
	return s
}

// EmbedQuery produces the query vector.
func (e *Engine) EmbedQuery(ctx domain.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("op=retrieval.EmbedQuery: %w", err)
	}
	return vec, nil
}

// Search executes the plan. When diversifying, the store is over-fetched
// and hits beyond the per-CV quota are skipped until k results are
// collected or the pool runs dry.
func (e *Engine) Search(ctx domain.Context, vector []float32, strategy Strategy, cvIDs []string) ([]domain.SearchResult, error) {
	opts := domain.SearchOptions{
		K:             strategy.K,
		Threshold:     strategy.Threshold,
		CVIDs:         cvIDs,
		DiversifyByCV: strategy.DiversifyByCV,
	}
	if strategy.DiversifyByCV {
		// Over-fetch so diversification has spare hits to choose from.
		opts.K = strategy.K * overFetchFactor(len(cvIDs))
	}
	results, err := e.store.Search(ctx, vector, opts)
	if err != nil {
		return nil, fmt.Errorf("op=retrieval.Search: %w", err)
	}
	if strategy.DiversifyByCV {
		results = diversify(results, strategy.K, perCVQuota(strategy.K, len(cvIDs)))
	} else if len(results) > strategy.K {
		results = results[:strategy.K]
	}
	if len(results) == 0 {
		observability.LoggerFromContext(ctx).Info("retrieval returned no hits",
			slog.Int("k", strategy.K), slog.Float64("threshold", strategy.Threshold))
	}
	return results, nil
}

func overFetchFactor(cvCount int) int {
	if cvCount == 0 {
		return 3
	}
	return 2
}

// perCVQuota is ceil(k / cvCount), at least 1. With no cv filter the
// quota defaults to 2 chunks per CV so one candidate cannot crowd out
// the rest.
func perCVQuota(k, cvCount int) int {
	if cvCount <= 0 {
		return 2
	}
	q := int(math.Ceil(float64(k) / float64(cvCount)))
	if q < 1 {
		q = 1
	}
	return q
}

// diversify keeps at most quota hits per cv id, preserving score order,
// until k results are collected or the pool is exhausted.
func diversify(results []domain.SearchResult, k, quota int) []domain.SearchResult {
	if k <= 0 || len(results) == 0 {
		return nil
	}
	perCV := make(map[string]int)
	out := make([]domain.SearchResult, 0, k)
	for _, r := range results {
		if perCV[r.CVID] >= quota {
			continue
		}
		perCV[r.CVID]++
		out = append(out, r)
		if len(out) == k {
			break
		}
	}
	return out
}
