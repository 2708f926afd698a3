// Package memory provides an in-process vector store for local mode and
// tests. It is safe for interleaved reads and writes.
package memory

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// Store keeps chunks and embeddings in memory behind a RWMutex.
type Store struct {
	mu     sync.RWMutex
	chunks []domain.Chunk
	byCV   map[string][]int // cv_id -> indices into chunks
	dim    int
}

// New constructs an empty store.
func New() *Store {
	return &Store{byCV: make(map[string][]int)}
}

// AddDocuments appends chunks. Chunks must carry embeddings of one
// consistent dimension.
func (s *Store) AddDocuments(_ domain.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %s has no embedding", domain.ErrInvalidArgument, c.ID)
		}
		if s.dim == 0 {
			s.dim = len(c.Embedding)
		} else if len(c.Embedding) != s.dim {
			return fmt.Errorf("%w: chunk %s embedding dim %d, store dim %d", domain.ErrInvalidArgument, c.ID, len(c.Embedding), s.dim)
		}
		s.byCV[c.CVID] = append(s.byCV[c.CVID], len(s.chunks))
		s.chunks = append(s.chunks, c)
	}
	return nil
}

// Search returns up to K hits above the score threshold, most similar
// first. Cosine similarity is mapped from [-1,1] to [0,1].
func (s *Store) Search(_ domain.Context, vector []float32, opts domain.SearchOptions) ([]domain.SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", domain.ErrInvalidArgument)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var allowed map[string]struct{}
	if len(opts.CVIDs) > 0 {
		allowed = make(map[string]struct{}, len(opts.CVIDs))
		for _, id := range opts.CVIDs {
			allowed[id] = struct{}{}
		}
	}

	results := make([]domain.SearchResult, 0, opts.K)
	for i := range s.chunks {
		c := &s.chunks[i]
		if allowed != nil {
			if _, ok := allowed[c.CVID]; !ok {
				continue
			}
		}
		sim := cosine01(vector, c.Embedding)
		// Strictly above: orthogonal vectors land exactly on 0.5 after the
		// [-1,1] -> [0,1] mapping and must not pass a 0.5 threshold.
		if sim <= opts.Threshold {
			continue
		}
		results = append(results, domain.SearchResult{
			CVID:       c.CVID,
			ChunkID:    c.ID,
			Section:    c.Section,
			Content:    c.Content,
			Metadata:   c.Metadata,
			Similarity: sim,
			Filename:   c.Filename,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if opts.K > 0 && len(results) > opts.K {
		results = results[:opts.K]
	}
	return results, nil
}

// Stats reports store contents.
func (s *Store) Stats(_ domain.Context) (domain.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.StoreStats{
		CVCount:    len(s.byCV),
		ChunkCount: len(s.chunks),
		VectorDim:  s.dim,
	}, nil
}

// DeleteByCVID removes all chunks derived from one CV.
func (s *Store) DeleteByCVID(_ domain.Context, cvID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byCV[cvID]; !ok {
		return fmt.Errorf("%w: cv %s", domain.ErrNotFound, cvID)
	}
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.CVID != cvID {
			kept = append(kept, c)
		}
	}
	s.chunks = kept
	s.byCV = make(map[string][]int, len(s.byCV))
	for i, c := range s.chunks {
		s.byCV[c.CVID] = append(s.byCV[c.CVID], i)
	}
	return nil
}

func cosine01(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(na) * math.Sqrt(nb))
	// clamp for float drift, then map [-1,1] -> [0,1]
	if cos > 1 {
		cos = 1
	}
	if cos < -1 {
		cos = -1
	}
	return (cos + 1) / 2
}
