package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/observability"
)

// IndexResult summarizes one ingested CV.
type IndexResult struct {
	CVID          string `json:"cv_id"`
	Filename      string `json:"filename"`
	CandidateName string `json:"candidate_name,omitempty"`
	ChunkCount    int    `json:"chunk_count"`
}

// NewCVID mints a sortable CV identifier.
func NewCVID() string {
	return "cv_" + strings.ToLower(ulid.Make().String())
}

// IndexCV chunks, embeds and stores one CV. Indexing is deterministic
// for a fixed (text, filename, indexedAt) triple.
func (e *Engine) IndexCV(ctx domain.Context, filename, rawText string) (IndexResult, error) {
	return e.indexCV(ctx, NewCVID(), filename, rawText, time.Now().UTC())
}

func (e *Engine) indexCV(ctx domain.Context, cvID, filename, rawText string, indexedAt time.Time) (IndexResult, error) {
	start := time.Now()
	chunks, err := e.deps.Chunker.Chunk(cvID, filename, rawText, indexedAt)
	if err != nil {
		return IndexResult{}, fmt.Errorf("op=usecase.IndexCV chunk: %w", err)
	}
	observability.ObserveStage("chunk", time.Since(start))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	start = time.Now()
	ectx, cancel := withTimeout(ctx, e.deps.Config.EmbedTimeout)
	embedded, err := e.deps.Embedder.EmbedTexts(ectx, texts)
	cancel()
	observability.ObserveStage("embed_chunks", time.Since(start))
	if err != nil {
		return IndexResult{}, fmt.Errorf("op=usecase.IndexCV embed: %w", mapTimeout(err))
	}
	if len(embedded.Embeddings) != len(chunks) {
		return IndexResult{}, fmt.Errorf("op=usecase.IndexCV: %w: got %d embeddings for %d chunks",
			domain.ErrInternal, len(embedded.Embeddings), len(chunks))
	}
	for i := range chunks {
		chunks[i].Embedding = embedded.Embeddings[i]
	}

	if err := e.deps.Store.AddDocuments(ctx, chunks); err != nil {
		return IndexResult{}, fmt.Errorf("op=usecase.IndexCV store: %w", err)
	}
	observability.ChunksIndexedTotal.Add(float64(len(chunks)))

	res := IndexResult{
		CVID:          cvID,
		Filename:      filename,
		CandidateName: chunks[0].Metadata.CandidateName,
		ChunkCount:    len(chunks),
	}
	observability.LoggerFromContext(ctx).Info("cv indexed",
		slog.String("cv_id", cvID),
		slog.String("candidate", res.CandidateName),
		slog.Int("chunks", res.ChunkCount))
	return res, nil
}

// Document is one pre-extracted CV to bulk-index.
type Document struct {
	Filename string
	Text     string
}

// IndexDocuments ingests a batch, continuing past per-document failures
// and reporting them alongside the successes.
func (e *Engine) IndexDocuments(ctx domain.Context, docs []Document) ([]IndexResult, []error) {
	var (
		results []IndexResult
		errs    []error
	)
	for _, doc := range docs {
		if ctx.Err() != nil {
			errs = append(errs, fmt.Errorf("op=usecase.IndexDocuments: %w", ctx.Err()))
			break
		}
		res, err := e.IndexCV(ctx, doc.Filename, doc.Text)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", doc.Filename, err))
			continue
		}
		results = append(results, res)
	}
	return results, errs
}

// CandidateMetadata recovers the enriched metadata of one indexed CV.
// Every chunk of a CV carries the same metadata, so any hit will do.
func (e *Engine) CandidateMetadata(ctx domain.Context, cvID string) (domain.EnrichedMetadata, error) {
	vector, err := e.deps.Embedder.EmbedQuery(ctx, "candidate profile summary")
	if err != nil {
		return domain.EnrichedMetadata{}, fmt.Errorf("op=usecase.CandidateMetadata embed: %w", mapTimeout(err))
	}
	results, err := e.deps.Store.Search(ctx, vector, domain.SearchOptions{K: 1, CVIDs: []string{cvID}})
	if err != nil {
		return domain.EnrichedMetadata{}, fmt.Errorf("op=usecase.CandidateMetadata search: %w", err)
	}
	if len(results) == 0 {
		return domain.EnrichedMetadata{}, fmt.Errorf("op=usecase.CandidateMetadata: %w: cv %s", domain.ErrNotFound, cvID)
	}
	return results[0].Metadata, nil
}

// DeleteCV removes a CV and all of its chunks from the vector store.
func (e *Engine) DeleteCV(ctx domain.Context, cvID string) error {
	if strings.TrimSpace(cvID) == "" {
		return fmt.Errorf("op=usecase.DeleteCV: %w: empty cv id", domain.ErrInvalidArgument)
	}
	if err := e.deps.Store.DeleteByCVID(ctx, cvID); err != nil {
		return fmt.Errorf("op=usecase.DeleteCV: %w", err)
	}
	observability.LoggerFromContext(ctx).Info("cv deleted", slog.String("cv_id", cvID))
	return nil
}
