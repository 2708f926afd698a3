// Package suggest produces follow-up prompt suggestions from the
// conversation state: the last response structure selects a bank of
// templates, placeholders are filled from candidates, skills and roles
// mentioned so far, and already-emitted suggestions are not repeated
// within a session.
package suggest

import (
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fairyhunter13/cv-rag/internal/config"
	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/service/contextres"
)

// Suggestion is one emitted follow-up prompt.
type Suggestion struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category"`
	Priority int    `json:"priority"`
}

// State is the conversation snapshot suggestions are derived from.
type State struct {
	SessionID string
	History   []domain.Message
	CVCount   int
}

// Engine selects and fills suggestion templates. Safe for concurrent
// use; per-session emitted ids and placeholder rotation live behind the
// mutex.
type Engine struct {
	bank     Bank
	resolver *contextres.Resolver
	skills   []string
	roles    []string

	mu      sync.Mutex
	rng     *rand.Rand
	emitted map[string]map[string]struct{}
	rotate  map[string]int
}

// New constructs an Engine over the bank and the taxonomy placeholder
// pools, seeded for reproducible in-group shuffles.
func New(bank Bank, tax config.Taxonomy, seed int64) *Engine {
	return &Engine{
		bank:     bank,
		resolver: contextres.New(),
		skills:   tax.SuggestionSkills,
		roles:    tax.SuggestionRoles,
		rng:      rand.New(rand.NewSource(seed)), // #nosec G404 -- suggestion shuffling is not security sensitive
		emitted:  make(map[string]map[string]struct{}),
		rotate:   make(map[string]int),
	}
}

// Suggest returns up to limit suggestions for the session state.
// Selection is by priority with in-group randomization; the initial
// bank backfills when the category bank runs short.
func (e *Engine) Suggest(state State, limit int) []Suggestion {
	if limit <= 0 {
		limit = 3
	}
	category := e.lastCategory(state.History)
	names := e.mentionedNames(state.History)
	skills := mentionedValues(state.History, e.skills)
	roles := mentionedValues(state.History, e.roles)

	e.mu.Lock()
	defer e.mu.Unlock()

	seen := e.emitted[state.SessionID]
	if seen == nil {
		seen = make(map[string]struct{})
		e.emitted[state.SessionID] = seen
	}

	out := e.pick(e.bank[category], category, state, names, skills, roles, seen, limit)
	if len(out) < limit && category != CategoryInitial {
		out = append(out, e.pick(e.bank[CategoryInitial], CategoryInitial, state, names, skills, roles, seen, limit-len(out))...)
	}
	return out
}

// Reset forgets the emitted ids of one session.
func (e *Engine) Reset(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.emitted, sessionID)
}

// pick selects up to n eligible, unseen templates from one bank,
// priority groups in order, shuffled within each group. Caller holds
// the mutex.
func (e *Engine) pick(templates []Template, category string, state State, names, skills, roles []string, seen map[string]struct{}, n int) []Suggestion {
	eligible := make([]Template, 0, len(templates))
	for _, t := range templates {
		if _, dup := seen[t.ID]; dup {
			continue
		}
		if e.eligible(t, state, names, skills, roles) {
			eligible = append(eligible, t)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool { return eligible[i].Priority < eligible[j].Priority })
	shuffleWithinPriority(eligible, e.rng)

	out := make([]Suggestion, 0, n)
	for _, t := range eligible {
		if len(out) == n {
			break
		}
		seen[t.ID] = struct{}{}
		out = append(out, Suggestion{
			ID:       t.ID,
			Text:     e.fill(t.Text, state, names, skills, roles),
			Category: category,
			Priority: t.Priority,
		})
	}
	return out
}

// eligible checks CV-count gates and that every placeholder the
// template uses has a value to fill it with.
func (e *Engine) eligible(t Template, state State, names, skills, roles []string) bool {
	if state.CVCount < t.MinCVs {
		return false
	}
	if t.RequiresMultipleCVs && state.CVCount < 2 {
		return false
	}
	switch {
	case strings.Contains(t.Text, "{candidate_name}") && len(names) == 0:
		return false
	case strings.Contains(t.Text, "{skill}") && len(skills) == 0:
		return false
	case strings.Contains(t.Text, "{role}") && len(roles) == 0:
		return false
	case strings.Contains(t.Text, "{num_cvs}") && state.CVCount == 0:
		return false
	}
	return true
}

// fill substitutes placeholders, rotating through the candidate values
// so repeated suggestions vary. Caller holds the mutex.
func (e *Engine) fill(text string, state State, names, skills, roles []string) string {
	text = strings.ReplaceAll(text, "{num_cvs}", strconv.Itoa(state.CVCount))
	text = e.replaceRotating(text, "{candidate_name}", names)
	text = e.replaceRotating(text, "{skill}", skills)
	text = e.replaceRotating(text, "{role}", roles)
	return text
}

func (e *Engine) replaceRotating(text, placeholder string, values []string) string {
	if !strings.Contains(text, placeholder) || len(values) == 0 {
		return text
	}
	v := values[e.rotate[placeholder]%len(values)]
	e.rotate[placeholder]++
	return strings.ReplaceAll(text, placeholder, v)
}

// lastCategory is the structure type of the most recent assistant turn,
// defaulting to the initial bank.
func (e *Engine) lastCategory(history []domain.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		m := history[i]
		if m.Role != domain.RoleAssistant {
			continue
		}
		if _, ok := e.bank[m.StructureType]; ok {
			return m.StructureType
		}
		return CategoryInitial
	}
	return CategoryInitial
}

// mentionedNames recovers candidate names from assistant turns, most
// recent turn first.
func (e *Engine) mentionedNames(history []domain.Message) []string {
	var names []string
	seen := make(map[string]struct{})
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != domain.RoleAssistant {
			continue
		}
		res := e.resolver.ExtractReferences(history[i].Content)
		for _, ref := range res.PreviousResults {
			key := strings.ToLower(ref.Name)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, ref.Name)
		}
	}
	return names
}

// mentionedValues returns the taxonomy values that appear anywhere in
// the conversation, keeping the taxonomy order for stable rotation.
func mentionedValues(history []domain.Message, pool []string) []string {
	if len(history) == 0 {
		return nil
	}
	var b strings.Builder
	for _, m := range history {
		b.WriteString(strings.ToLower(m.Content))
		b.WriteString("\n")
	}
	text := b.String()
	var out []string
	for _, v := range pool {
		if strings.Contains(text, strings.ToLower(v)) {
			out = append(out, v)
		}
	}
	return out
}

// shuffleWithinPriority shuffles each run of equal-priority templates in
// place, keeping the priority order.
func shuffleWithinPriority(ts []Template, rng *rand.Rand) {
	start := 0
	for i := 1; i <= len(ts); i++ {
		if i == len(ts) || ts[i].Priority != ts[start].Priority {
			group := ts[start:i]
			rng.Shuffle(len(group), func(a, b int) { group[a], group[b] = group[b], group[a] })
			start = i
		}
	}
}
