package chunker

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

// jobBlock is one slice of the experience section, delimited by a dated
// line. Blocks without a date are kept so undated positions still count.
type jobBlock struct {
	lines []string
	dates *dateRange
}

var (
	titleAtCompany = regexp.MustCompile(`(?i)^(.{2,60}?)\s+(?:at|@)\s+(.{2,80})$`)
	yearOnly       = regexp.MustCompile(`^\(?(?:19|20)\d{2}\)?$`)
	pureNumber     = regexp.MustCompile(`^[\d\s.,%+-]+$`)
	locationLine   = regexp.MustCompile(`(?i)^[a-zà-ÿ .'-]+,\s*[a-zà-ÿ .'-]+$|(?i)\b(remote|hybrid|on-?site)\b`)
	bulletPrefix   = regexp.MustCompile(`^[-*•·▪>\s]+`)
)

// splitJobBlocks cuts the experience section into blocks, one per dated
// line. Up to two non-bullet lines immediately above a date form the
// block header (title and company usually sit right above the dates);
// lines after the date belong to the block body until the next block's
// header begins. Sections with no dates at all fall back to blank-line
// splitting so undated positions still count.
func splitJobBlocks(section string) []jobBlock {
	lines := strings.Split(section, "\n")
	type datedLine struct {
		idx  int
		r    dateRange
		rest string
	}
	var dates []datedLine
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if r, ok := parseDateRange(line); ok {
			dates = append(dates, datedLine{idx: i, r: r, rest: stripDateRange(line)})
		}
	}
	if len(dates) == 0 {
		return undatedBlocks(lines)
	}

	headerStart := make([]int, len(dates))
	headers := make([][]string, len(dates))
	for k, d := range dates {
		lo := 0
		if k > 0 {
			lo = dates[k-1].idx + 1
		}
		headerStart[k] = d.idx
		for i := d.idx - 1; i >= lo && len(headers[k]) < 2; i-- {
			line := strings.TrimSpace(lines[i])
			if line == "" || bulletPrefix.MatchString(line) {
				break
			}
			headers[k] = append([]string{line}, headers[k]...)
			headerStart[k] = i
		}
	}

	blocks := make([]jobBlock, len(dates))
	for k, d := range dates {
		b := jobBlock{dates: &dateRange{}}
		*b.dates = d.r
		b.lines = append(b.lines, headers[k]...)
		if d.rest != "" {
			b.lines = append(b.lines, d.rest)
		}
		hi := len(lines)
		if k+1 < len(dates) {
			hi = headerStart[k+1]
		}
		for i := d.idx + 1; i < hi; i++ {
			if line := strings.TrimSpace(lines[i]); line != "" {
				b.lines = append(b.lines, line)
			}
		}
		blocks[k] = b
	}
	return blocks
}

// undatedBlocks splits on blank lines when the section has no dates.
func undatedBlocks(lines []string) []jobBlock {
	var blocks []jobBlock
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, jobBlock{lines: cur})
			cur = nil
		}
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return blocks
}

// validTitleCandidate rejects strings that cannot be a job title or a
// company name: years, spaced-letter headers, locations, pure numbers and
// phrases starting with filler prepositions.
func (c *Chunker) validTitleCandidate(s string) bool {
	s = strings.TrimSpace(bulletPrefix.ReplaceAllString(s, ""))
	if n := len([]rune(s)); n < 2 || n > 80 {
		return false
	}
	if yearOnly.MatchString(s) || pureNumber.MatchString(s) {
		return false
	}
	if spacedHeader.MatchString(s) {
		return false
	}
	if locationLine.MatchString(s) && !strings.Contains(s, "|") {
		return false
	}
	first := strings.ToLower(strings.Fields(s)[0])
	if _, filler := c.fillerWords[first]; filler {
		return false
	}
	return true
}

// isEducationBlock scores educational keywords against work keywords.
func (c *Chunker) isEducationBlock(b jobBlock) bool {
	edu, work := 0, 0
	for _, line := range b.lines {
		for _, tok := range strings.Fields(strings.ToLower(line)) {
			tok = strings.Trim(tok, ".,;:()")
			if _, ok := c.educationWords[tok]; ok {
				edu++
			}
			if _, ok := c.workWords[tok]; ok {
				work++
			}
		}
	}
	return edu > work && edu > 0
}

// titleCompany extracts (title, company) from a block with deterministic
// precedence: "Title at Company" beats "Title | Company" beats the first
// valid line as bare title.
func (c *Chunker) titleCompany(b jobBlock) (string, string) {
	for _, line := range b.lines {
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if m := titleAtCompany.FindStringSubmatch(line); m != nil {
			title, company := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
			if c.validTitleCandidate(title) && c.validTitleCandidate(company) {
				return title, company
			}
		}
	}
	for _, line := range b.lines {
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if !strings.Contains(line, "|") {
			continue
		}
		parts := strings.SplitN(line, "|", 2)
		title, company := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if c.validTitleCandidate(title) && c.validTitleCandidate(company) {
			return title, company
		}
	}
	for _, line := range b.lines {
		line = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
		if c.validTitleCandidate(line) {
			return line, ""
		}
	}
	return "", ""
}

// extractPositions turns the experience section into positions, newest
// first. Blocks that read as education and blocks with no usable title
// are dropped.
func (c *Chunker) extractPositions(section string, now time.Time) []domain.Position {
	if strings.TrimSpace(section) == "" {
		return nil
	}
	var positions []domain.Position
	for _, b := range splitJobBlocks(section) {
		if c.isEducationBlock(b) {
			continue
		}
		title, company := c.titleCompany(b)
		if title == "" {
			continue
		}
		p := domain.Position{Title: title, Company: company}
		if b.dates != nil {
			p.StartYear = b.dates.StartYear
			p.EndYear = b.dates.EndYear
			p.IsCurrent = b.dates.IsCurrent
			p.DurationYears = b.dates.durationYears(now)
		}
		positions = append(positions, p)
	}
	// Newest first, undated last. Stable so equal keys keep text order.
	sort.SliceStable(positions, func(i, j int) bool {
		si, sj := sortYear(positions[i], now), sortYear(positions[j], now)
		return si > sj
	})
	return positions
}

func sortYear(p domain.Position, now time.Time) int {
	if p.IsCurrent {
		return now.Year() + 1
	}
	if p.EndYear > 0 {
		return p.EndYear
	}
	if p.StartYear > 0 {
		return p.StartYear
	}
	return 0
}
