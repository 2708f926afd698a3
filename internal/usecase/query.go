package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/observability"
	"github.com/fairyhunter13/cv-rag/internal/service/structures"
	"github.com/fairyhunter13/cv-rag/internal/service/verify"
	"github.com/fairyhunter13/cv-rag/pkg/textx"
)

// QueryParams carries one query request.
type QueryParams struct {
	Question  string
	SessionID string
	CVIDs     []string
	// K and Threshold override the planned strategy when positive.
	K         int
	Threshold float64
	// TotalCVs is the session corpus size; 0 means "ask the store".
	TotalCVs int
	// Weights overrides ranking criteria weights.
	Weights map[string]float64
}

// Query runs the full pipeline and returns the assembled response. The
// eval record is appended only after the response is complete, so a
// cancelled request leaves no partial log entry.
func (e *Engine) Query(ctx domain.Context, p QueryParams) (domain.RAGResponse, error) {
	log := observability.LoggerFromContext(ctx)
	if p.SessionID != "" {
		log = log.With(slog.String("session_id", p.SessionID))
		ctx = observability.ContextWithLogger(ctx, log)
	}
	clock := newStageClock()

	history := e.sessionHistory(ctx, p.SessionID)

	// Context resolution runs before understanding so follow-up phrasing
	// ("the top candidate", pronouns) is rewritten for retrieval.
	question, refName, refCVID := e.deps.Resolver.ResolveQuery(p.Question, history)
	if refName != "" {
		log.Debug("context resolved", slog.String("name", refName), slog.String("cv_id", refCVID))
	}
	cvIDs := p.CVIDs
	if len(cvIDs) == 0 && refCVID != "" {
		cvIDs = []string{refCVID}
	}

	start := time.Now()
	uctx, cancel := withTimeout(ctx, e.deps.Config.UnderstandTimeout)
	qu, err := e.deps.Understander.Understand(uctx, question)
	cancel()
	clock.observe("understand", start)
	if err != nil {
		return domain.RAGResponse{}, fmt.Errorf("op=usecase.Query understand: %w", err)
	}

	start = time.Now()
	verdict := e.deps.Guard.Check(question, &qu)
	clock.observe("guardrail", start)
	if !verdict.Allowed {
		observability.GuardrailRejectionsTotal.WithLabelValues(verdict.Reason).Inc()
		resp := domain.RAGResponse{
			Answer:             verdict.Message,
			Metrics:            clock.metrics,
			Confidence:         0,
			GuardrailPassed:    false,
			QueryUnderstanding: &qu,
			Mode:               e.mode,
		}
		e.finish(ctx, p, resp, "rejected")
		return resp, nil
	}

	totalCVs := p.TotalCVs
	if totalCVs == 0 {
		if stats, serr := e.deps.Store.Stats(ctx); serr == nil {
			totalCVs = stats.CVCount
		}
	}
	if totalCVs == 0 {
		resp := domain.RAGResponse{
			Answer:             NoCVsMessage,
			Metrics:            clock.metrics,
			Confidence:         0.8,
			GuardrailPassed:    true,
			QueryUnderstanding: &qu,
			Mode:               e.mode,
		}
		e.finish(ctx, p, resp, "no_cvs")
		return resp, nil
	}

	start = time.Now()
	ectx, cancel := withTimeout(ctx, e.deps.Config.EmbedTimeout)
	vector, err := e.deps.Retriever.EmbedQuery(ectx, qu.ReformulatedPrompt)
	cancel()
	clock.observe("embed", start)
	if err != nil {
		return e.fail(ctx, p, qu, clock, fmt.Errorf("op=usecase.Query embed: %w", mapTimeout(err)))
	}

	strategy := e.deps.Retriever.PlanStrategy(qu.Type, totalCVs)
	if p.K > 0 {
		strategy.K = p.K
	}
	if p.Threshold > 0 {
		strategy.Threshold = p.Threshold
	}

	start = time.Now()
	sctx, cancel := withTimeout(ctx, e.deps.Config.SearchTimeout)
	results, err := e.deps.Retriever.Search(sctx, vector, strategy, cvIDs)
	cancel()
	clock.observe("search", start)
	if err != nil {
		return e.fail(ctx, p, qu, clock, fmt.Errorf("op=usecase.Query search: %w", mapTimeout(err)))
	}
	if len(results) == 0 {
		resp := domain.RAGResponse{
			Answer:             NoResultsMessage,
			Metrics:            clock.metrics,
			Confidence:         0.8,
			GuardrailPassed:    true,
			QueryUnderstanding: &qu,
			Mode:               e.mode,
		}
		e.finish(ctx, p, resp, "no_results")
		return resp, nil
	}

	// Reranker degradation is handled inside the service; a timeout here
	// just keeps the original order.
	start = time.Now()
	rctx, cancel := withTimeout(ctx, e.deps.Config.RerankTimeout)
	if reranked, rerr := e.deps.Reranker.Rerank(rctx, question, results); rerr == nil {
		results = reranked
	} else {
		log.Warn("rerank skipped", slog.Any("error", rerr))
	}
	cancel()
	clock.observe("rerank", start)

	start = time.Now()
	gctx, cancel := withTimeout(ctx, e.deps.Config.GenerateTimeout)
	gen, err := e.deps.Generator.Generate(gctx, question, results, qu.Requirements, history, e.deps.Config.HistoryTurns)
	cancel()
	clock.observe("generate", start)
	if err != nil {
		return e.fail(ctx, p, qu, clock, fmt.Errorf("op=usecase.Query generate: %w", mapTimeout(err)))
	}

	start = time.Now()
	parsed := e.deps.Parser.Parse(gen.Text, results)
	clock.observe("parse", start)

	start = time.Now()
	vctx, cancel := withTimeout(ctx, e.deps.Config.VerifyTimeout)
	ver := e.deps.Verifier.Verify(vctx, gen.Text, results)
	cancel()
	clock.observe("verify", start)
	observability.VerificationConfidence.Observe(ver.Confidence)

	start = time.Now()
	structured := e.deps.Router.Build(structures.Input{
		Query:         question,
		Understanding: qu,
		Output:        parsed,
		Results:       results,
		Weights:       p.Weights,
	})
	clock.observe("structure", start)
	structureType, _ := structured["structure_type"].(string)

	answer := gen.Text
	if formatted, ok := structured["formatted"].(string); ok && formatted != "" {
		answer = formatted
	}
	if !ver.Passed {
		answer += verify.WarningSuffix
	}

	resp := domain.RAGResponse{
		Answer:             answer,
		Sources:            results,
		StructureType:      structureType,
		Structured:         structured,
		Metrics:            clock.metrics,
		TokensIn:           gen.PromptTokens,
		TokensOut:          gen.CompletionTokens,
		Confidence:         ver.Confidence,
		GuardrailPassed:    true,
		Verification:       &ver,
		QueryUnderstanding: &qu,
		Mode:               e.mode,
	}
	observability.QueriesTotal.WithLabelValues(structureType, "ok").Inc()
	e.recordTurns(ctx, p, resp)
	e.appendEval(ctx, p, resp)
	return resp, nil
}

// fail logs a failed query (guardrail passed, confidence 0) and returns
// the error to the caller.
func (e *Engine) fail(ctx domain.Context, p QueryParams, qu domain.QueryUnderstanding, clock *stageClock, err error) (domain.RAGResponse, error) {
	observability.LoggerFromContext(ctx).Error("query pipeline failed", slog.Any("error", err))
	observability.QueriesTotal.WithLabelValues("none", "error").Inc()
	resp := domain.RAGResponse{
		Answer:             "The question could not be answered due to an internal error. Please retry.",
		Metrics:            clock.metrics,
		Confidence:         0,
		GuardrailPassed:    true,
		QueryUnderstanding: &qu,
		Mode:               e.mode,
	}
	e.appendEval(ctx, p, resp)
	return resp, err
}

// finish records a recovered terminal condition (rejection, no CVs, no
// results): counts it, stores the turn and appends the eval record.
func (e *Engine) finish(ctx domain.Context, p QueryParams, resp domain.RAGResponse, outcome string) {
	observability.QueriesTotal.WithLabelValues("none", outcome).Inc()
	e.recordTurns(ctx, p, resp)
	e.appendEval(ctx, p, resp)
}

// sessionHistory loads the conversation for context resolution. A
// missing session is not an error; the query just runs without history.
func (e *Engine) sessionHistory(ctx domain.Context, sessionID string) []domain.Message {
	if sessionID == "" || e.deps.Sessions == nil {
		return nil
	}
	s, err := e.deps.Sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			observability.LoggerFromContext(ctx).Warn("session load failed",
				slog.String("session_id", sessionID), slog.Any("error", err))
		}
		return nil
	}
	return s.Messages
}

// recordTurns appends the user question and assistant answer to the
// session so follow-up queries can resolve references.
func (e *Engine) recordTurns(ctx domain.Context, p QueryParams, resp domain.RAGResponse) {
	if p.SessionID == "" || e.deps.Sessions == nil {
		return
	}
	log := observability.LoggerFromContext(ctx)
	turns := []domain.Message{
		{Role: domain.RoleUser, Content: p.Question},
		{Role: domain.RoleAssistant, Content: resp.Answer, StructureType: resp.StructureType},
	}
	for _, m := range turns {
		if err := e.deps.Sessions.AppendMessage(ctx, p.SessionID, m); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Warn("session append failed", slog.String("session_id", p.SessionID), slog.Any("error", err))
			return
		}
	}
}

// appendEval writes the telemetry record. Called only with a fully
// assembled response; failures are logged, never surfaced.
func (e *Engine) appendEval(ctx domain.Context, p QueryParams, resp domain.RAGResponse) {
	if e.deps.Eval == nil {
		return
	}
	sources := make([]string, 0, len(resp.Sources))
	for _, r := range resp.Sources {
		sources = append(sources, r.ChunkID)
	}
	rec := domain.EvalRecord{
		TS:                 time.Now().UTC(),
		Query:              p.Question,
		ResponseExcerpt:    textx.Truncate(resp.Answer, 500),
		Sources:            sources,
		Metrics:            resp.Metrics,
		HallucinationCheck: resp.Verification,
		GuardrailPassed:    resp.GuardrailPassed,
		SessionID:          p.SessionID,
		Mode:               e.mode,
	}
	if err := e.deps.Eval.Append(ctx, rec); err != nil {
		observability.LoggerFromContext(ctx).Warn("eval log append failed", slog.Any("error", err))
	}
}

// mapTimeout folds context deadline errors into the provider timeout
// sentinel so callers can branch on error kind.
func mapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}
	return err
}
