package retrieval_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/service/retrieval"
)

type fakeStore struct {
	results []domain.SearchResult
	gotOpts domain.SearchOptions
}

func (f *fakeStore) AddDocuments(_ domain.Context, _ []domain.Chunk) error { return nil }
func (f *fakeStore) Search(_ domain.Context, _ []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	f.gotOpts = opts
	return f.results, nil
}
func (f *fakeStore) Stats(_ domain.Context) (domain.StoreStats, error) {
	return domain.StoreStats{}, nil
}
func (f *fakeStore) DeleteByCVID(_ domain.Context, _ string) error { return nil }

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedTexts(_ domain.Context, texts []string) (domain.EmbedResult, error) {
	return domain.EmbedResult{Embeddings: make([][]float32, len(texts))}, nil
}
func (fakeEmbedder) EmbedQuery(_ domain.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestPlanStrategy(t *testing.T) {
	t.Parallel()
	e := retrieval.New(fakeEmbedder{}, &fakeStore{}, 8, 0.25)
	tests := []struct {
		name      string
		queryType domain.QueryType
		totalCVs  int
		want      retrieval.Strategy
	}{
		{"ranking small corpus", domain.QueryRanking, 5, retrieval.Strategy{K: 5, Threshold: 0.25, DiversifyByCV: true}},
		{"ranking large corpus", domain.QueryRanking, 150, retrieval.Strategy{K: 30, Threshold: 0.15, DiversifyByCV: true}},
		{"comparison", domain.QueryComparison, 10, retrieval.Strategy{K: 10, Threshold: 0.25, DiversifyByCV: true}},
		{"search small", domain.QuerySearch, 20, retrieval.Strategy{K: 20, Threshold: 0.25, DiversifyByCV: true}},
		{"search large", domain.QuerySearch, 200, retrieval.Strategy{K: 8, Threshold: 0.15, DiversifyByCV: false}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := e.PlanStrategy(tc.queryType, tc.totalCVs)
			assert.Equal(t, tc.want.K, got.K)
			assert.InDelta(t, tc.want.Threshold, got.Threshold, 1e-9)
			assert.Equal(t, tc.want.DiversifyByCV, got.DiversifyByCV)
		})
	}
}

func TestSearch_Diversifies(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	// cv_a dominates the raw hits.
	for i := 0; i < 6; i++ {
		store.results = append(store.results, domain.SearchResult{
			CVID: "cv_a", ChunkID: fmt.Sprintf("a_%d", i), Similarity: 0.9 - float64(i)*0.01,
		})
	}
	store.results = append(store.results,
		domain.SearchResult{CVID: "cv_b", ChunkID: "b_0", Similarity: 0.5},
		domain.SearchResult{CVID: "cv_c", ChunkID: "c_0", Similarity: 0.4},
	)
	e := retrieval.New(fakeEmbedder{}, store, 8, 0.25)
	strategy := retrieval.Strategy{K: 3, Threshold: 0.25, DiversifyByCV: true}

	out, err := e.Search(context.Background(), []float32{1, 0}, strategy, []string{"cv_a", "cv_b", "cv_c"})
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "cv_a", out[0].CVID)
	assert.Equal(t, "cv_b", out[1].CVID)
	assert.Equal(t, "cv_c", out[2].CVID)
	// The store was over-fetched to give diversification room.
	assert.Greater(t, store.gotOpts.K, 3)
}

func TestSearch_TruncatesWithoutDiversification(t *testing.T) {
	t.Parallel()
	store := &fakeStore{}
	for i := 0; i < 10; i++ {
		store.results = append(store.results, domain.SearchResult{CVID: "cv_a", ChunkID: fmt.Sprintf("a_%d", i)})
	}
	e := retrieval.New(fakeEmbedder{}, store, 8, 0.25)
	out, err := e.Search(context.Background(), []float32{1, 0}, retrieval.Strategy{K: 4, Threshold: 0.25}, nil)
	require.NoError(t, err)
	assert.Len(t, out, 4)
}

func TestSearch_EmptyPool(t *testing.T) {
	t.Parallel()
	e := retrieval.New(fakeEmbedder{}, &fakeStore{}, 8, 0.25)
	out, err := e.Search(context.Background(), []float32{1, 0}, retrieval.Strategy{K: 5, DiversifyByCV: true}, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
