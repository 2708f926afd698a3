package qdrant_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cv-rag/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/cv-rag/internal/domain"
)

func TestPointIDIsDeterministicUUID(t *testing.T) {
	t.Parallel()

	id := qdrant.PointID("cv_01h2xcejqtf2nbrexx3vqjhp41_0")
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, qdrant.PointID("cv_01h2xcejqtf2nbrexx3vqjhp41_0"))
	assert.NotEqual(t, id, qdrant.PointID("cv_01h2xcejqtf2nbrexx3vqjhp41_1"))
}

func TestAddDocumentsSendsUUIDPointIDs(t *testing.T) {
	t.Parallel()

	type upsertBody struct {
		Points []struct {
			ID      string         `json:"id"`
			Vector  []float32      `json:"vector"`
			Payload map[string]any `json:"payload"`
		} `json:"points"`
	}
	var captured upsertBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		require.Equal(t, "/collections/cv_chunks/points", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"status":"completed"},"status":"ok"}`))
	}))
	defer srv.Close()

	store := qdrant.New(srv.URL, "", "cv_chunks")
	err := store.AddDocuments(context.Background(), []domain.Chunk{
		{
			ID:        "cv_abc_0",
			CVID:      "cv_abc",
			Index:     0,
			Section:   domain.SectionSummary,
			Content:   "Backend engineer",
			Embedding: []float32{0.1, 0.2},
			Filename:  "alice.pdf",
			IndexedAt: time.Now().UTC(),
		},
	})
	require.NoError(t, err)

	require.Len(t, captured.Points, 1)
	p := captured.Points[0]
	_, err = uuid.Parse(p.ID)
	require.NoError(t, err, "point id must be a UUID, got %q", p.ID)
	assert.Equal(t, qdrant.PointID("cv_abc_0"), p.ID)
	assert.Equal(t, "cv_abc_0", p.Payload["chunk_id"])
	assert.Equal(t, "cv_abc", p.Payload["cv_id"])
}

func TestSearchReadsChunkIDFromPayload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/collections/cv_chunks/points/search", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[{"id":"` + qdrant.PointID("cv_abc_0") + `","score":0.91,` +
			`"payload":{"chunk_id":"cv_abc_0","cv_id":"cv_abc","section_type":"summary",` +
			`"content":"Backend engineer","filename":"alice.pdf"}}],"status":"ok"}`))
	}))
	defer srv.Close()

	store := qdrant.New(srv.URL, "", "cv_chunks")
	results, err := store.Search(context.Background(), []float32{0.1, 0.2}, domain.SearchOptions{K: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cv_abc_0", results[0].ChunkID)
	assert.Equal(t, "cv_abc", results[0].CVID)
	assert.Equal(t, domain.SectionSummary, results[0].Section)
	assert.InDelta(t, 0.91, results[0].Similarity, 0.001)
}
