// Package qdrant implements the domain.VectorStore port over the Qdrant
// HTTP API.
package qdrant

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/observability"
)

// pointNamespace seeds the deterministic chunk-id to point-id mapping.
// Qdrant only accepts unsigned integers or UUIDs as point ids, so chunk
// ids travel in the payload and the point id is a UUIDv5 of the chunk id.
var pointNamespace = uuid.MustParse("8f9a1f6e-3a40-4d9c-9c32-5f24aa1b6d11")

// PointID returns the Qdrant point id for a chunk id. Deterministic, so
// re-indexing the same chunk id overwrites its point.
func PointID(chunkID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(chunkID)).String()
}

// Store is a Qdrant-backed vector store for one collection.
type Store struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
}

// New constructs a Qdrant store for the given collection.
func New(baseURL, apiKey, collection string) *Store {
	return &Store{
		baseURL:    baseURL,
		apiKey:     apiKey,
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// EnsureCollection creates the collection if it does not exist.
func (s *Store) EnsureCollection(ctx domain.Context, vectorSize int) error {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", s.baseURL, s.collection), nil)
	s.setHeaders(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusOK {
		return nil
	}
	payload := map[string]any{
		"vectors": map[string]any{"size": vectorSize, "distance": "Cosine"},
	}
	b, _ := json.Marshal(payload)
	req, _ = http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s", s.baseURL, s.collection), bytes.NewReader(b))
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err = s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant ensure create status %d", resp.StatusCode)
	}
	return nil
}

// AddDocuments upserts chunks as points under UUIDv5 point ids derived
// from the chunk id; the chunk id itself, content and enriched metadata
// travel in the payload.
func (s *Store) AddDocuments(ctx domain.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]map[string]any, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %s has no embedding", domain.ErrInvalidArgument, c.ID)
		}
		points = append(points, map[string]any{
			"id":     PointID(c.ID),
			"vector": c.Embedding,
			"payload": map[string]any{
				"chunk_id":     c.ID,
				"cv_id":        c.CVID,
				"chunk_index":  c.Index,
				"section_type": string(c.Section),
				"content":      c.Content,
				"filename":     c.Filename,
				"indexed_at":   c.IndexedAt.UTC().Format(time.RFC3339),
				"metadata":     c.Metadata,
			},
		})
	}
	body := map[string]any{"points": points}
	b, _ := json.Marshal(body)
	op := func() error {
		start := time.Now()
		req, _ := http.NewRequestWithContext(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", s.baseURL, s.collection), bytes.NewReader(b))
		s.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.httpClient.Do(req)
		observability.AIRequestsTotal.WithLabelValues("qdrant", "upsert").Inc()
		observability.AIRequestDuration.WithLabelValues("qdrant", "upsert").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("qdrant upsert status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("qdrant upsert status %d", resp.StatusCode)
		}
		return nil
	}
	return s.retry(ctx, op, "upsert")
}

// Search returns top-K hits above the score threshold, optionally
// filtered to a cv_id set.
func (s *Store) Search(ctx domain.Context, vector []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	body := map[string]any{
		"vector":          vector,
		"limit":           opts.K,
		"with_payload":    true,
		"score_threshold": opts.Threshold,
	}
	if len(opts.CVIDs) > 0 {
		body["filter"] = map[string]any{
			"must": []map[string]any{
				{"key": "cv_id", "match": map[string]any{"any": opts.CVIDs}},
			},
		}
	}
	b, _ := json.Marshal(body)
	var out struct {
		Result []struct {
			Score   float64         `json:"score"`
			Payload json.RawMessage `json:"payload"`
		} `json:"result"`
	}
	op := func() error {
		start := time.Now()
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.baseURL, s.collection), bytes.NewReader(b))
		s.setHeaders(req)
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.httpClient.Do(req)
		observability.AIRequestsTotal.WithLabelValues("qdrant", "search").Inc()
		observability.AIRequestDuration.WithLabelValues("qdrant", "search").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return backoff.Permanent(fmt.Errorf("qdrant search status %d", resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("qdrant search status %d", resp.StatusCode)
		}
		return json.NewDecoder(resp.Body).Decode(&out)
	}
	if err := s.retry(ctx, op, "search"); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, len(out.Result))
	for _, hit := range out.Result {
		var payload struct {
			ChunkID     string                  `json:"chunk_id"`
			CVID        string                  `json:"cv_id"`
			SectionType string                  `json:"section_type"`
			Content     string                  `json:"content"`
			Filename    string                  `json:"filename"`
			Metadata    domain.EnrichedMetadata `json:"metadata"`
		}
		if err := json.Unmarshal(hit.Payload, &payload); err != nil {
			continue
		}
		results = append(results, domain.SearchResult{
			CVID:       payload.CVID,
			ChunkID:    payload.ChunkID,
			Section:    domain.SectionType(payload.SectionType),
			Content:    payload.Content,
			Metadata:   payload.Metadata,
			Similarity: hit.Score,
			Filename:   payload.Filename,
		})
	}
	return results, nil
}

// Stats reports chunk count and vector dimension from collection info.
// CV count is the number of distinct cv_id payload values within the
// first scroll page, which is exact at the scale this engine targets.
func (s *Store) Stats(ctx domain.Context) (domain.StoreStats, error) {
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/collections/%s", s.baseURL, s.collection), nil)
	s.setHeaders(req)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return domain.StoreStats{}, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.StoreStats{}, fmt.Errorf("qdrant collection info status %d", resp.StatusCode)
	}
	var info struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return domain.StoreStats{}, err
	}
	cvCount, err := s.distinctCVCount(ctx)
	if err != nil {
		cvCount = 0
	}
	return domain.StoreStats{
		CVCount:    cvCount,
		ChunkCount: info.Result.PointsCount,
		VectorDim:  info.Result.Config.Params.Vectors.Size,
	}, nil
}

func (s *Store) distinctCVCount(ctx domain.Context) (int, error) {
	body := map[string]any{
		"limit":        10000,
		"with_payload": []string{"cv_id"},
		"with_vector":  false,
	}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/scroll", s.baseURL, s.collection), bytes.NewReader(b))
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("qdrant scroll status %d", resp.StatusCode)
	}
	var out struct {
		Result struct {
			Points []struct {
				Payload struct {
					CVID string `json:"cv_id"`
				} `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	seen := make(map[string]struct{})
	for _, p := range out.Result.Points {
		if p.Payload.CVID != "" {
			seen[p.Payload.CVID] = struct{}{}
		}
	}
	return len(seen), nil
}

// DeleteByCVID removes all points whose payload cv_id matches.
func (s *Store) DeleteByCVID(ctx domain.Context, cvID string) error {
	body := map[string]any{
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "cv_id", "match": map[string]any{"value": cvID}},
			},
		},
	}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/delete?wait=true", s.baseURL, s.collection), bytes.NewReader(b))
	s.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant delete status %d", resp.StatusCode)
	}
	return nil
}

// retry runs op with short exponential backoff; embed/search class
// operations are retried up to the backoff window on transient errors.
func (s *Store) retry(ctx domain.Context, op func() error, name string) error {
	expo := backoff.NewExponentialBackOff()
	expo.MaxElapsedTime = 15 * time.Second
	expo.InitialInterval = 200 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%w: qdrant %s: %v", domain.ErrProviderTimeout, name, err)
		}
		return fmt.Errorf("qdrant %s failed: %w", name, err)
	}
	return nil
}

func (s *Store) setHeaders(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}
