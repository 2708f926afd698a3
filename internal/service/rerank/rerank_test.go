package rerank_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/service/rerank"
)

type scriptedLLM struct {
	text string
	err  error
}

func (s scriptedLLM) Generate(_ domain.Context, _ domain.GenerateRequest) (domain.GenerateResult, error) {
	if s.err != nil {
		return domain.GenerateResult{}, s.err
	}
	return domain.GenerateResult{Text: s.text}, nil
}

func someResults() []domain.SearchResult {
	return []domain.SearchResult{
		{ChunkID: "a", CVID: "cv_1", Content: "go and kubernetes"},
		{ChunkID: "b", CVID: "cv_2", Content: "accounting"},
		{ChunkID: "c", CVID: "cv_3", Content: "golang services"},
	}
}

func TestRerank_ReordersWithoutTruncating(t *testing.T) {
	t.Parallel()
	llm := scriptedLLM{text: `[{"index":0,"score":5},{"index":1,"score":1},{"index":2,"score":9}]`}
	svc := rerank.New(llm, "m", true)
	out, err := svc.Rerank(context.Background(), "go developers", someResults())
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "c", out[0].ChunkID)
	assert.Equal(t, "a", out[1].ChunkID)
	assert.Equal(t, "b", out[2].ChunkID)
}

func TestRerank_CodeFencedResponse(t *testing.T) {
	t.Parallel()
	llm := scriptedLLM{text: "```json\n[{\"index\":1,\"score\":8},{\"index\":0,\"score\":2}]\n```"}
	svc := rerank.New(llm, "m", true)
	out, err := svc.Rerank(context.Background(), "q", someResults()[:2])
	require.NoError(t, err)
	assert.Equal(t, "b", out[0].ChunkID)
}

func TestRerank_PassThroughOnLLMError(t *testing.T) {
	t.Parallel()
	llm := scriptedLLM{err: errors.New("upstream down")}
	svc := rerank.New(llm, "m", true)
	in := someResults()
	out, err := svc.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRerank_PassThroughOnGarbage(t *testing.T) {
	t.Parallel()
	llm := scriptedLLM{text: "I cannot rank these chunks."}
	svc := rerank.New(llm, "m", true)
	in := someResults()
	out, err := svc.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestRerank_Disabled(t *testing.T) {
	t.Parallel()
	svc := rerank.New(scriptedLLM{text: `[{"index":0,"score":0}]`}, "m", false)
	in := someResults()
	out, err := svc.Rerank(context.Background(), "q", in)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
