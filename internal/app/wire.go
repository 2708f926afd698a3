package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/cv-rag/internal/adapter/ai/embedcache"
	"github.com/fairyhunter13/cv-rag/internal/adapter/ai/openai"
	"github.com/fairyhunter13/cv-rag/internal/adapter/ai/openrouter"
	"github.com/fairyhunter13/cv-rag/internal/adapter/ai/stub"
	"github.com/fairyhunter13/cv-rag/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/cv-rag/internal/adapter/evallog"
	"github.com/fairyhunter13/cv-rag/internal/adapter/httpserver"
	repomem "github.com/fairyhunter13/cv-rag/internal/adapter/repo/memory"
	"github.com/fairyhunter13/cv-rag/internal/adapter/repo/postgres"
	redisrepo "github.com/fairyhunter13/cv-rag/internal/adapter/repo/redis"
	"github.com/fairyhunter13/cv-rag/internal/adapter/textextractor/pdf"
	vectormem "github.com/fairyhunter13/cv-rag/internal/adapter/vector/memory"
	"github.com/fairyhunter13/cv-rag/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/cv-rag/internal/config"
	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/service/chunker"
	"github.com/fairyhunter13/cv-rag/internal/service/contextres"
	"github.com/fairyhunter13/cv-rag/internal/service/generate"
	"github.com/fairyhunter13/cv-rag/internal/service/guardrail"
	"github.com/fairyhunter13/cv-rag/internal/service/outputparse"
	"github.com/fairyhunter13/cv-rag/internal/service/rerank"
	"github.com/fairyhunter13/cv-rag/internal/service/retrieval"
	"github.com/fairyhunter13/cv-rag/internal/service/scoring"
	"github.com/fairyhunter13/cv-rag/internal/service/structures"
	"github.com/fairyhunter13/cv-rag/internal/service/suggest"
	"github.com/fairyhunter13/cv-rag/internal/service/understand"
	"github.com/fairyhunter13/cv-rag/internal/service/verify"
	"github.com/fairyhunter13/cv-rag/internal/usecase"
)

// openAIEmbeddingDim is the dimension of text-embedding-3-small.
const openAIEmbeddingDim = 1536

// redisSessionTTL expires idle cloud sessions.
const redisSessionTTL = 24 * time.Hour

// App is the assembled application.
type App struct {
	Handler http.Handler
	Engine  *usecase.Engine

	closers []func() error
}

// Close releases pools, clients and sinks in reverse wiring order.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// New wires providers per cfg.DefaultMode and returns the ready app.
// Local mode runs in-process: in-memory vector store and sessions
// (Redis when REDIS_ADDR is set), JSONL eval log, and deterministic
// stub AI providers unless API keys are present. Cloud mode uses
// Qdrant, Postgres sessions and the Kafka eval sink when configured.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{}

	tax, err := config.LoadTaxonomy(cfg.TaxonomyPath)
	if err != nil {
		return nil, fmt.Errorf("op=app.New taxonomy: %w", err)
	}

	var (
		embedder domain.Embedder
		llm      domain.LLM
		dim      int
	)
	if cfg.OpenAIAPIKey != "" {
		embedder = embedcache.New(openai.New(cfg), cfg.EmbedCacheSize)
		dim = openAIEmbeddingDim
	} else {
		embedder = stub.NewEmbedder()
		dim = stub.Dim
	}
	if cfg.OpenRouterAPIKey != "" {
		llm = openrouter.New(cfg)
	} else {
		llm = stub.NewLLM()
	}

	var (
		store      domain.VectorStore
		storeCheck func(ctx domain.Context) error
	)
	if cfg.IsCloud() {
		qd := qdrant.New(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection)
		if err := qd.EnsureCollection(ctx, dim); err != nil {
			return nil, fmt.Errorf("op=app.New qdrant: %w", err)
		}
		store = qd
		storeCheck = func(ctx domain.Context) error {
			_, err := qd.Stats(ctx)
			return err
		}
	} else {
		store = vectormem.New()
	}

	sessions, sessionsCheck, err := a.buildSessions(ctx, cfg)
	if err != nil {
		return nil, err
	}

	sink, err := a.buildEvalSink(cfg, log)
	if err != nil {
		return nil, err
	}

	counter := tokencount.NewCounter()
	engine := usecase.New(usecase.Deps{
		Config:       cfg,
		Chunker:      chunker.New(cfg.Chunker, tax),
		Resolver:     contextres.New(),
		Understander: understand.New(llm, cfg.UnderstandingModel),
		Guard:        guardrail.New(),
		Retriever:    retrieval.New(embedder, store, cfg.RetrievalK, cfg.RetrievalScoreThreshold),
		Reranker:     rerank.New(llm, cfg.RerankModel, cfg.RerankEnabled),
		Generator:    generate.New(llm, cfg.GenerationModel, counter),
		Verifier:     verify.New(llm, cfg.VerifyModel, cfg.VerifyEnabled),
		Parser:       outputparse.New(),
		Router:       structures.NewRouter(),
		Embedder:     embedder,
		Store:        store,
		Sessions:     sessions,
		Eval:         sink,
	})
	a.Engine = engine

	bank, err := suggest.LoadBank(cfg.SuggestionsPath)
	if err != nil {
		return nil, fmt.Errorf("op=app.New suggestions: %w", err)
	}
	suggester := suggest.New(bank, tax, time.Now().UnixNano())

	srv := httpserver.NewServer(cfg, engine, sessions, suggester, scoring.New(), pdf.New())
	srv.StoreCheck = storeCheck
	srv.SessionsCheck = sessionsCheck

	a.Handler = BuildRouter(cfg, log, srv)
	return a, nil
}

func (a *App) buildSessions(ctx context.Context, cfg config.Config) (domain.SessionRepository, func(ctx domain.Context) error, error) {
	switch {
	case cfg.IsCloud() && cfg.SupabaseURL != "":
		pool, err := postgres.NewPool(ctx, cfg.SupabaseDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("op=app.New postgres: %w", err)
		}
		a.closers = append(a.closers, func() error {
			pool.Close()
			return nil
		})
		repo := postgres.NewSessionRepo(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, nil, fmt.Errorf("op=app.New schema: %w", err)
		}
		return repo, pool.Ping, nil
	case cfg.RedisAddr != "":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		a.closers = append(a.closers, client.Close)
		check := func(ctx domain.Context) error {
			return client.Ping(ctx).Err()
		}
		return redisrepo.NewSessionRepo(client, redisSessionTTL), check, nil
	default:
		return repomem.NewSessionRepo(), nil, nil
	}
}

func (a *App) buildEvalSink(cfg config.Config, log *slog.Logger) (domain.EvalSink, error) {
	file, err := evallog.NewFileSink(cfg.EvalLogPath)
	if err != nil {
		return nil, fmt.Errorf("op=app.New eval log: %w", err)
	}
	a.closers = append(a.closers, file.Close)
	if len(cfg.KafkaBrokers) == 0 {
		return file, nil
	}
	kafka, err := evallog.NewKafkaSink(cfg.KafkaBrokers, cfg.EvalLogTopic)
	if err != nil {
		// The file sink still records queries; Kafka is additive.
		log.Warn("kafka eval sink unavailable", slog.Any("error", err))
		return file, nil
	}
	a.closers = append(a.closers, kafka.Close)
	return evallog.NewMultiSink(file, kafka), nil
}
