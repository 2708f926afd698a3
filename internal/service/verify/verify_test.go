package verify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/service/verify"
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

func chunks() []domain.SearchResult {
	return []domain.SearchResult{
		{CVID: "cv_abc", Content: "Alice has ten years of Go experience.",
			Metadata: domain.EnrichedMetadata{CandidateName: "Alice"}},
	}
}

func TestVerify_CombinesScores(t *testing.T) {
	t.Parallel()
	llm := scriptedLLM{text: `{"groundedness":0.9,"verified_claims":["Alice knows Go"],"ungrounded_claims":[]}`}
	svc := verify.New(llm, "m", true)
	res := svc.Verify(context.Background(), "[📄](cv:cv_abc) **Alice** knows Go.", chunks())
	assert.True(t, res.Enabled)
	assert.InDelta(t, 0.9, res.Groundedness, 1e-9)
	assert.InDelta(t, 1.0, res.HeuristicConfidence, 1e-9)
	assert.InDelta(t, 0.6*0.9+0.4*1.0, res.Confidence, 1e-9)
	assert.True(t, res.Passed)
}

func TestVerify_UnknownCVIDFailsHeuristic(t *testing.T) {
	t.Parallel()
	svc := verify.New(nil, "m", false)
	res := svc.Verify(context.Background(), "[📄](cv:cv_zzz) **Zed** is great.", chunks())
	assert.Less(t, res.HeuristicConfidence, 0.5)
	assert.False(t, res.Passed)
	assert.NotEmpty(t, res.Warnings)
}

func TestVerify_LLMFailureDegradesToHeuristic(t *testing.T) {
	t.Parallel()
	llm := scriptedLLM{err: errors.New("timeout")}
	svc := verify.New(llm, "m", true)
	res := svc.Verify(context.Background(), "**Alice** knows Go.", chunks())
	assert.InDelta(t, 1.0, res.HeuristicConfidence, 1e-9)
	assert.InDelta(t, 1.0, res.Confidence, 1e-9)
	assert.True(t, res.Passed)
}

func TestVerify_UngroundedClaimsBlockPass(t *testing.T) {
	t.Parallel()
	llm := scriptedLLM{text: `{"groundedness":0.8,"verified_claims":[],"ungrounded_claims":["Alice has an AWS cert"]}`}
	svc := verify.New(llm, "m", true)
	res := svc.Verify(context.Background(), "**Alice** has an AWS cert.", chunks())
	assert.False(t, res.Passed)
	assert.NotEmpty(t, res.Warnings)
}
