package outputparse

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

var (
	separatorRow = regexp.MustCompile(`^\s*\|?[\s:|-]+\|?\s*$`)
	percentRef   = regexp.MustCompile(`(\d{1,3})\s*%`)
	starRef      = regexp.MustCompile(`[★⭐]`)
	boldSpaces   = regexp.MustCompile(`\*\*\s+([^*]*?)\s*\*\*|\*\*\s*([^*]*?)\s+\*\*`)
	boldWrap     = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	cellCVLink   = regexp.MustCompile(`\[([^\]]*)\]\(cv:([A-Za-z0-9_-]+)\)`)
)

// qualifier word to match score, checked in order so longer phrases win.
var qualifierScores = []struct {
	word  string
	score float64
}{
	{"excellent", 90}, {"very strong", 85}, {"outstanding", 90},
	{"strong", 80}, {"very good", 80}, {"good", 70}, {"solid", 70},
	{"moderate", 50}, {"average", 50}, {"fair", 50}, {"partial", 50},
	{"weak", 30}, {"poor", 30}, {"limited", 30}, {"low", 20},
}

// ParseTables extracts every pipe table (including code-fenced ones)
// into TableRows. Rows are de-duplicated by normalized candidate name,
// keeping the higher match score.
func ParseTables(body string) ([]domain.TableRow, []string) {
	var rows []domain.TableRow
	var warnings []string

	lines := strings.Split(body, "\n")
	var header []string
	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "|") && !strings.HasSuffix(line, "|") {
			header = nil
			continue
		}
		if separatorRow.MatchString(line) {
			continue
		}
		cells := splitCells(line)
		if len(cells) == 0 {
			continue
		}
		if header == nil {
			header = cells
			continue
		}
		row, ok := buildRow(header, cells)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("skipped malformed table row: %s", line))
			continue
		}
		rows = append(rows, row)
	}
	return DedupeRows(rows), warnings
}

func splitCells(line string) []string {
	line = strings.Trim(strings.TrimSpace(line), "|")
	parts := strings.Split(line, "|")
	cells := make([]string, 0, len(parts))
	for _, p := range parts {
		cells = append(cells, NormalizeBold(strings.TrimSpace(p)))
	}
	return cells
}

// buildRow pairs header cells with row cells. The candidate name is the
// first cell that is neither a rank number nor empty.
func buildRow(header, cells []string) (domain.TableRow, bool) {
	if len(cells) < 2 {
		return domain.TableRow{}, false
	}
	row := domain.TableRow{Columns: make(map[string]string, len(cells))}
	for i, cell := range cells {
		key := fmt.Sprintf("col_%d", i)
		if i < len(header) {
			if h := strings.TrimSpace(stripBold(header[i])); h != "" {
				key = h
			}
		}
		row.Columns[key] = cell
		if id := cellCVID(cell); id != "" && row.CVID == "" {
			row.CVID = id
		}
	}
	for _, cell := range cells {
		name := candidateName(cell)
		if name != "" {
			row.CandidateName = name
			break
		}
	}
	if row.CandidateName == "" {
		return domain.TableRow{}, false
	}
	row.MatchScore = matchScore(strings.Join(cells, " "))
	return row, true
}

// candidateName recovers a plausible name from a cell: bold text or a cv
// link label, skipping rank numbers and noise.
func candidateName(cell string) string {
	if m := cellCVLink.FindStringSubmatch(cell); m != nil && strings.TrimSpace(stripBold(m[1])) != "" {
		if name := strings.TrimSpace(stripBold(m[1])); !nameNoise(name) {
			return name
		}
	}
	text := strings.TrimSpace(stripBold(cellCVLink.ReplaceAllString(cell, "$1")))
	if text == "" || nameNoise(text) {
		return ""
	}
	if _, err := strconv.Atoi(text); err == nil {
		return ""
	}
	// Names are short words, not sentences.
	if len(strings.Fields(text)) > 4 || len([]rune(text)) > 40 {
		return ""
	}
	for _, r := range text {
		if r >= '0' && r <= '9' {
			return ""
		}
	}
	return text
}

func nameNoise(s string) bool {
	switch strings.ToLower(s) {
	case "candidate", "name", "rank", "score", "match", "overall", "total",
		"n/a", "-", "📄", "skills", "experience", "languages", "education":
		return true
	}
	return strings.Contains(s, "📄")
}

func cellCVID(cell string) string {
	if m := cellCVLink.FindStringSubmatch(cell); m != nil {
		return m[2]
	}
	return ""
}

// matchScore scans cell text for a percentage, then stars, then textual
// qualifiers. Always clamped to [0,100].
func matchScore(text string) float64 {
	if m := percentRef.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			return clampScore(float64(v))
		}
	}
	if stars := len(starRef.FindAllString(text, -1)); stars > 0 {
		return clampScore(float64(stars) * 20)
	}
	lower := strings.ToLower(text)
	for _, q := range qualifierScores {
		if strings.Contains(lower, q.word) {
			return q.score
		}
	}
	return 0
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// NormalizeBold removes stray spaces inside ** ... ** markers.
func NormalizeBold(s string) string {
	for {
		next := boldSpaces.ReplaceAllStringFunc(s, func(m string) string {
			inner := strings.TrimSpace(strings.Trim(m, "*"))
			return "**" + inner + "**"
		})
		if next == s {
			return next
		}
		s = next
	}
}

func stripBold(s string) string {
	return boldWrap.ReplaceAllString(s, "$1")
}

// DedupeRows keeps one row per normalized candidate name, preferring the
// higher match score and backfilling the cv id.
func DedupeRows(rows []domain.TableRow) []domain.TableRow {
	index := make(map[string]int)
	var out []domain.TableRow
	for _, row := range rows {
		key := strings.ToLower(strings.TrimSpace(row.CandidateName))
		i, ok := index[key]
		if !ok {
			index[key] = len(out)
			out = append(out, row)
			continue
		}
		if row.MatchScore > out[i].MatchScore {
			cvID := out[i].CVID
			out[i] = row
			if out[i].CVID == "" {
				out[i].CVID = cvID
			}
		} else if out[i].CVID == "" {
			out[i].CVID = row.CVID
		}
	}
	return out
}

// FallbackTable builds one row per CV from retrieved chunks when the
// model produced no table. The newest indexed chunk per CV wins; match
// score comes from normalized similarity.
func FallbackTable(chunks []domain.SearchResult) []domain.TableRow {
	type best struct {
		chunk domain.SearchResult
		order int
	}
	perCV := make(map[string]best)
	order := 0
	for _, c := range chunks {
		cur, ok := perCV[c.CVID]
		if !ok || c.Similarity > cur.chunk.Similarity {
			o := order
			if ok {
				o = cur.order
			}
			perCV[c.CVID] = best{chunk: c, order: o}
		}
		if !ok {
			order++
		}
	}
	entries := make([]best, 0, len(perCV))
	for _, b := range perCV {
		entries = append(entries, b)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].order < entries[j].order })

	var rows []domain.TableRow
	for _, e := range entries {
		c := e.chunk
		name := c.Metadata.CandidateName
		if name == "" {
			name = c.Filename
		}
		if name == "" {
			name = c.CVID
		}
		rows = append(rows, domain.TableRow{
			CandidateName: name,
			CVID:          c.CVID,
			MatchScore:    clampScore(c.NormalizedSimilarity() * 100),
			Columns: map[string]string{
				"Experience": fmt.Sprintf("%.1f years", c.Metadata.TotalExperienceYears),
				"Skills":     strings.Join(headN(c.Metadata.Skills, 5), ", "),
				"Seniority":  c.Metadata.Seniority,
			},
		})
	}
	return DedupeRows(rows)
}

func headN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
