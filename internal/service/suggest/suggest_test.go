package suggest_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cv-rag/internal/config"
	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/service/suggest"
)

func newEngine() *suggest.Engine {
	return suggest.New(suggest.DefaultBank(), config.DefaultTaxonomy(), 1)
}

func TestSuggestEmptySessionBoundary(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	out := engine.Suggest(suggest.State{SessionID: "s1"}, 10)
	require.NotEmpty(t, out)
	for _, s := range out {
		assert.Equal(t, suggest.CategoryInitial, s.Category)
		assert.NotContains(t, s.Text, "{", "placeholder left unfilled in %q", s.Text)
	}
}

func TestSuggestNoRepeatsWithinSession(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	state := suggest.State{SessionID: "s1", CVCount: 3}

	first := engine.Suggest(state, 2)
	second := engine.Suggest(state, 2)

	seen := make(map[string]struct{})
	for _, s := range first {
		seen[s.ID] = struct{}{}
	}
	for _, s := range second {
		_, dup := seen[s.ID]
		assert.False(t, dup, "suggestion %s repeated", s.ID)
	}
}

func TestSuggestSeparateSessionsIndependent(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	a := engine.Suggest(suggest.State{SessionID: "a", CVCount: 2}, 1)
	b := engine.Suggest(suggest.State{SessionID: "b", CVCount: 2}, 1)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	// Same engine state, same rng-independent top priority group start.
	assert.Equal(t, a[0].Category, b[0].Category)
}

func TestSuggestRankingCategoryFillsNames(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	state := suggest.State{
		SessionID: "s1",
		CVCount:   3,
		History: []domain.Message{
			{Role: domain.RoleUser, Content: "Rank the candidates"},
			{
				Role:          domain.RoleAssistant,
				Content:       "| 1 | [📄](cv:cv_abc) **Alice** | 92% |\n| 2 | [📄](cv:cv_def) **Bob** | 81% |",
				StructureType: "ranking",
			},
		},
	}
	out := engine.Suggest(state, 5)
	require.NotEmpty(t, out)
	sawRanking := false
	for _, s := range out {
		assert.NotContains(t, s.Text, "{candidate_name}")
		if s.Category == "ranking" {
			sawRanking = true
		}
	}
	assert.True(t, sawRanking)
}

func TestSuggestBackfillsFromInitial(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	state := suggest.State{
		SessionID: "s1",
		CVCount:   4,
		History: []domain.Message{
			{
				Role:          domain.RoleAssistant,
				Content:       "[📄](cv:cv_abc) **Alice** looks strong with Python and Kubernetes.",
				StructureType: "verification",
			},
		},
	}
	out := engine.Suggest(state, 8)
	categories := make(map[string]bool)
	for _, s := range out {
		categories[s.Category] = true
		assert.NotContains(t, s.Text, "{")
	}
	assert.True(t, categories["verification"])
	assert.True(t, categories[suggest.CategoryInitial], "expected initial backfill, got %v", out)
}

func TestSuggestGatesMultipleCVTemplates(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	state := suggest.State{
		SessionID: "s1",
		CVCount:   1,
		History: []domain.Message{
			{Role: domain.RoleAssistant, Content: "[📄](cv:cv_abc) **Alice**", StructureType: "single_candidate"},
		},
	}
	out := engine.Suggest(state, 10)
	for _, s := range out {
		assert.NotEqual(t, "single_compare", s.ID, "multi-CV template emitted for a single CV")
	}
}

func TestSuggestPriorityOrder(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	out := engine.Suggest(suggest.State{SessionID: "s1", CVCount: 3}, 10)
	require.NotEmpty(t, out)
	for i := 1; i < len(out); i++ {
		if out[i].Category != out[i-1].Category {
			continue
		}
		assert.LessOrEqual(t, out[i-1].Priority, out[i].Priority)
	}
}

func TestLoadBankMissingFileFallsBack(t *testing.T) {
	t.Parallel()

	bank, err := suggest.LoadBank("testdata/does-not-exist.yaml")
	require.NoError(t, err)
	assert.NotEmpty(t, bank[suggest.CategoryInitial])
}

func TestSuggestRotatesPlaceholderValues(t *testing.T) {
	t.Parallel()

	engine := newEngine()
	state := suggest.State{
		SessionID: "s1",
		CVCount:   2,
		History: []domain.Message{
			{Role: domain.RoleUser, Content: "Who knows Python or Go or Kubernetes?"},
			{Role: domain.RoleAssistant, Content: "Both [📄](cv:cv_a) **Alice** and [📄](cv:cv_b) **Bob** qualify.", StructureType: "summary"},
		},
	}
	var texts []string
	for i := 0; i < 4; i++ {
		for _, s := range engine.Suggest(state, 2) {
			if strings.Contains(s.ID, "skill") {
				texts = append(texts, s.Text)
			}
		}
	}
	// Rotation over the mentioned skills means no unfilled placeholder.
	for _, txt := range texts {
		assert.NotContains(t, txt, "{skill}")
	}
}
