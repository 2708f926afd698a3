// Package usecase wires the retrieval pipeline: understand, guardrail,
// embed, search, rerank, generate, verify, structure and log. It is the
// single place where stage errors become a degraded or failed response.
package usecase

import (
	"context"
	"time"

	"github.com/fairyhunter13/cv-rag/internal/config"
	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/observability"
	"github.com/fairyhunter13/cv-rag/internal/service/chunker"
	"github.com/fairyhunter13/cv-rag/internal/service/contextres"
	"github.com/fairyhunter13/cv-rag/internal/service/generate"
	"github.com/fairyhunter13/cv-rag/internal/service/guardrail"
	"github.com/fairyhunter13/cv-rag/internal/service/outputparse"
	"github.com/fairyhunter13/cv-rag/internal/service/retrieval"
	"github.com/fairyhunter13/cv-rag/internal/service/structures"
	"github.com/fairyhunter13/cv-rag/internal/service/understand"
	"github.com/fairyhunter13/cv-rag/internal/service/verify"
)

// Canned user-facing messages for recovered conditions.
const (
	NoCVsMessage = "No CVs are indexed in this session yet. Upload CVs first, then ask about the candidates."

	NoResultsMessage = "No relevant CV content matched this question. " +
		"Try rephrasing it or asking about different skills or candidates."
)

// Deps are the collaborators of the Engine, constructed once at wiring
// time and passed down explicitly.
type Deps struct {
	Config config.Config

	Chunker      *chunker.Chunker
	Resolver     *contextres.Resolver
	Understander *understand.Service
	Guard        *guardrail.Guardrail
	Retriever    *retrieval.Engine
	Reranker     domain.Reranker
	Generator    *generate.Service
	Verifier     *verify.Service
	Parser       *outputparse.Parser
	Router       *structures.Router

	Embedder domain.Embedder
	Store    domain.VectorStore
	Sessions domain.SessionRepository
	Eval     domain.EvalSink
}

// Engine orchestrates queries and ingestion.
type Engine struct {
	deps Deps
	mode string
}

// New constructs the Engine.
func New(deps Deps) *Engine {
	return &Engine{deps: deps, mode: deps.Config.DefaultMode}
}

// Mode reports the provider wiring mode string included in responses.
func (e *Engine) Mode() string { return e.mode }

// Stats reports vector store contents.
func (e *Engine) Stats(ctx domain.Context) (domain.StoreStats, error) {
	return e.deps.Store.Stats(ctx)
}

// withTimeout bounds one provider stage. A zero duration keeps the
// parent deadline.
func withTimeout(ctx domain.Context, d time.Duration) (domain.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// stageClock measures per-stage wall time in milliseconds.
type stageClock struct {
	metrics map[string]int64
}

func newStageClock() *stageClock {
	return &stageClock{metrics: make(map[string]int64)}
}

func (c *stageClock) observe(stage string, start time.Time) {
	d := time.Since(start)
	c.metrics[stage+"_ms"] = d.Milliseconds()
	observability.ObserveStage(stage, d)
}
