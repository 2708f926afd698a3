package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cv-rag/internal/adapter/vector/memory"
	"github.com/fairyhunter13/cv-rag/internal/domain"
)

func chunk(id, cvID string, vec []float32) domain.Chunk {
	return domain.Chunk{
		ID:        id,
		CVID:      cvID,
		Content:   "content of " + id,
		Embedding: vec,
	}
}

func seeded(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	err := s.AddDocuments(context.Background(), []domain.Chunk{
		chunk("a1", "cv_a", []float32{1, 0, 0}),
		chunk("a2", "cv_a", []float32{0.9, 0.1, 0}),
		chunk("b1", "cv_b", []float32{0, 1, 0}),
		chunk("c1", "cv_c", []float32{0, 0, 1}),
	})
	require.NoError(t, err)
	return s
}

func TestSearchOrdersBySimilarity(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	results, err := s.Search(context.Background(), []float32{1, 0, 0}, domain.SearchOptions{K: 3, Threshold: 0.5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "a1", results[0].ChunkID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}
	// Orthogonal vectors map to 0.5, excluded by the threshold.
	for _, r := range results {
		assert.Greater(t, r.Similarity, 0.5)
	}
}

func TestSearchExcludesThresholdEquality(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	// cv_b and cv_c are orthogonal to the query, landing exactly on 0.5.
	results, err := s.Search(context.Background(), []float32{1, 0, 0}, domain.SearchOptions{K: 10, Threshold: 0.5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "cv_a", r.CVID)
	}
}

func TestSearchFiltersByCVID(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	results, err := s.Search(context.Background(), []float32{1, 0, 0}, domain.SearchOptions{
		K:     10,
		CVIDs: []string{"cv_b", "cv_c"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.NotEqual(t, "cv_a", r.CVID)
	}
}

func TestSearchEmptyVector(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	_, err := s.Search(context.Background(), nil, domain.SearchOptions{K: 3})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAddDocumentsRejectsDimMismatch(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	err := s.AddDocuments(context.Background(), []domain.Chunk{chunk("x1", "cv_x", []float32{1, 0})})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	err = s.AddDocuments(context.Background(), []domain.Chunk{{ID: "x2", CVID: "cv_x"}})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestStatsAndDelete(t *testing.T) {
	t.Parallel()

	s := seeded(t)
	ctx := context.Background()

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.CVCount)
	assert.Equal(t, 4, stats.ChunkCount)
	assert.Equal(t, 3, stats.VectorDim)

	require.NoError(t, s.DeleteByCVID(ctx, "cv_a"))
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CVCount)
	assert.Equal(t, 2, stats.ChunkCount)

	results, err := s.Search(ctx, []float32{1, 0, 0}, domain.SearchOptions{K: 10})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "cv_a", r.CVID)
	}

	assert.ErrorIs(t, s.DeleteByCVID(ctx, "cv_a"), domain.ErrNotFound)
}
