package chunker

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fairyhunter13/cv-rag/internal/domain"
)

var (
	linkedinURL  = regexp.MustCompile(`(?i)\bhttps?://(?:www\.)?linkedin\.com/[^\s)>\]]+`)
	githubURL    = regexp.MustCompile(`(?i)\bhttps?://(?:www\.)?github\.com/[^\s)>\]]+`)
	anyURL       = regexp.MustCompile(`(?i)\bhttps?://[^\s)>\]]+`)
	locationTag  = regexp.MustCompile(`(?i)^(?:location|based in|address)\s*[:\-]\s*(.+)$`)
	gradYear     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	degreeField  = regexp.MustCompile(`(?i)\b(?:bachelor|master|msc|bsc|phd|doctorate|degree|diploma)[^,\n]*?\b(?:in|of)\s+([A-Za-zÀ-ÿ &/-]{3,40})`)
	skillSplit   = regexp.MustCompile(`[,;|•·\n\t]+`)
	wordBoundary = regexp.MustCompile(`[^a-zà-ÿ]+`)
)

// enrich derives the CV-wide metadata copied onto every chunk. now is
// the reference time for "present" spans, so derivation is deterministic
// for a fixed clock value.
func (c *Chunker) enrich(filename, text string, sections map[sectionKind]string, now time.Time) domain.EnrichedMetadata {
	meta := domain.EnrichedMetadata{
		CandidateName: c.candidateNameFromFilename(filename),
		Flags:         map[string]bool{},
	}
	if meta.CandidateName == "" {
		meta.CandidateName = nameFromPreamble(sections[secPreamble])
	}

	meta.Positions = c.extractPositions(sections[secExperience], now)
	meta.PositionCount = len(meta.Positions)
	if len(meta.Positions) > 0 {
		meta.CurrentRole = meta.Positions[0].Title
		meta.CurrentCompany = meta.Positions[0].Company
	}

	meta.TotalExperienceYears, meta.ExperienceEstimated = c.totalExperience(meta.Positions, sections[secExperience], now)
	meta.JobHoppingScore, meta.AvgTenureYears = c.hoppingScore(meta.PositionCount, meta.TotalExperienceYears)
	meta.EmploymentGapCount = c.gapCount(meta.Positions)

	meta.Skills = c.extractSkills(sections[secSkills])
	meta.Languages = c.extractLanguages(sections[secLanguages], text)
	c.fillEducation(&meta, sections[secEducation])
	meta.Certifications = c.extractCertifications(sections[secCertifications], text)
	meta.Hobbies = listItems(sections[secHobbies])
	meta.Location = c.extractLocation(sections[secPreamble], text)

	meta.LinkedInURL = linkedinURL.FindString(text)
	meta.GitHubURL = githubURL.FindString(text)
	meta.PortfolioURL = portfolioURL(text, meta.LinkedInURL, meta.GitHubURL)

	meta.HasFAANG = c.hasFAANG(meta.Positions)
	meta.Seniority = c.seniority(meta.CurrentRole, meta.TotalExperienceYears)

	for _, lang := range meta.Languages {
		meta.Flags["speaks_"+flagToken(lang)] = true
	}
	for _, cert := range meta.Certifications {
		meta.Flags["has_"+flagToken(cert)+"_cert"] = true
	}
	if meta.HasFAANG {
		meta.Flags["has_faang"] = true
	}
	return meta
}

// totalExperience prefers the dated span, falls back to summed
// durations, then to per-position estimates. Estimated totals are
// flagged so consumers can display uncertainty.
func (c *Chunker) totalExperience(positions []domain.Position, experienceText string, now time.Time) (float64, bool) {
	minStart, maxEnd := 0, 0
	sum := 0.0
	undated := 0
	for _, p := range positions {
		if p.StartYear == 0 {
			undated++
			continue
		}
		end := p.EndYear
		if p.IsCurrent || end == 0 {
			end = now.Year()
		}
		if minStart == 0 || p.StartYear < minStart {
			minStart = p.StartYear
		}
		if end > maxEnd {
			maxEnd = end
		}
		sum += p.DurationYears
	}
	maxYears := c.cfg.MaxTotalYears
	switch {
	case minStart > 0 && maxEnd >= minStart:
		return math.Min(float64(maxEnd-minStart), maxYears), false
	case sum > 0:
		return math.Min(sum, maxYears), false
	case undated > 0:
		return math.Min(c.cfg.UndatedPositionYears*float64(undated), maxYears), true
	case strings.TrimSpace(experienceText) != "":
		blocks := len(splitJobBlocks(experienceText))
		if blocks == 0 {
			blocks = 1
		}
		return math.Min(c.cfg.FallbackYears*float64(blocks), maxYears), true
	default:
		return 0, false
	}
}

// hoppingScore maps (positions-1)/years into [0,1], then raises the
// floor when average tenure is short.
func (c *Chunker) hoppingScore(positionCount int, totalYears float64) (score, avgTenure float64) {
	if positionCount == 0 || totalYears <= 0 {
		return 0, 0
	}
	avgTenure = totalYears / float64(positionCount)
	score = math.Min(1, float64(positionCount-1)/totalYears)
	switch {
	case avgTenure < c.cfg.HighHopTenureYears:
		score = math.Max(score, c.cfg.HighHopScore)
	case avgTenure < 2*c.cfg.HighHopTenureYears:
		score = math.Max(score, c.cfg.LowHopScore)
	}
	return score, avgTenure
}

// gapCount counts inter-position gaps above the configured threshold.
// Only dated positions participate.
func (c *Chunker) gapCount(positions []domain.Position) int {
	var dated []domain.Position
	for _, p := range positions {
		if p.StartYear > 0 {
			dated = append(dated, p)
		}
	}
	if len(dated) < 2 {
		return 0
	}
	sort.Slice(dated, func(i, j int) bool { return dated[i].StartYear < dated[j].StartYear })
	gaps := 0
	for i := 1; i < len(dated); i++ {
		prevEnd := dated[i-1].EndYear
		if dated[i-1].IsCurrent || prevEnd == 0 {
			continue
		}
		if float64(dated[i].StartYear-prevEnd) > c.cfg.GapYears {
			gaps++
		}
	}
	return gaps
}

// extractSkills splits the skills section and keeps entries that survive
// the validators: sane length, not a spaced header, not a taxonomy word,
// not starting with a filler preposition, not a bare number.
func (c *Chunker) extractSkills(section string) []string {
	if strings.TrimSpace(section) == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var skills []string
	for _, raw := range skillSplit.Split(section, -1) {
		s := strings.TrimSpace(bulletPrefix.ReplaceAllString(raw, ""))
		s = strings.Trim(s, ".:")
		if !c.validSkill(s) {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		skills = append(skills, s)
	}
	return skills
}

func (c *Chunker) validSkill(s string) bool {
	n := len([]rune(s))
	if n < 2 || n > 50 {
		return false
	}
	if pureNumber.MatchString(s) || spacedHeader.MatchString(s) {
		return false
	}
	lower := strings.ToLower(s)
	if _, ok := c.educationWords[lower]; ok {
		return false
	}
	if _, ok := c.jobTitleWords[lower]; ok {
		return false
	}
	if _, ok := c.faangWords[lower]; ok {
		return false
	}
	first := strings.Fields(lower)
	if len(first) == 0 {
		return false
	}
	if _, filler := c.fillerWords[first[0]]; filler {
		return false
	}
	return true
}

// extractLanguages reads the language section first, then backfills from
// whole-text taxonomy hits. Output keeps taxonomy casing, sorted.
func (c *Chunker) extractLanguages(section, text string) []string {
	found := make(map[string]struct{})
	scan := func(s string) {
		for _, tok := range wordBoundary.Split(strings.ToLower(s), -1) {
			if _, ok := c.languageWords[tok]; ok {
				found[tok] = struct{}{}
			}
		}
	}
	scan(section)
	if len(found) == 0 {
		scan(text)
	}
	if len(found) == 0 {
		return nil
	}
	langs := make([]string, 0, len(found))
	for l := range found {
		langs = append(langs, titleCase(l))
	}
	sort.Strings(langs)
	return langs
}

// fillEducation derives level, field, institution and graduation year.
func (c *Chunker) fillEducation(meta *domain.EnrichedMetadata, section string) {
	if strings.TrimSpace(section) == "" {
		return
	}
	lower := strings.ToLower(section)
	switch {
	case strings.Contains(lower, "phd") || strings.Contains(lower, "doctorate"):
		meta.EducationLevel = "PhD"
	case strings.Contains(lower, "master") || strings.Contains(lower, "msc") || strings.Contains(lower, "mba"):
		meta.EducationLevel = "Master"
	case strings.Contains(lower, "bachelor") || strings.Contains(lower, "bsc"):
		meta.EducationLevel = "Bachelor"
	case strings.Contains(lower, "diploma") || strings.Contains(lower, "degree"):
		meta.EducationLevel = "Diploma"
	}
	if m := degreeField.FindStringSubmatch(section); m != nil {
		meta.EducationField = strings.TrimSpace(m[1])
	}
	for _, line := range strings.Split(section, "\n") {
		ll := strings.ToLower(line)
		for _, w := range []string{"university", "college", "institute", "school", "academy"} {
			if strings.Contains(ll, w) {
				meta.EducationInstitution = strings.TrimSpace(bulletPrefix.ReplaceAllString(line, ""))
				break
			}
		}
		if meta.EducationInstitution != "" {
			break
		}
	}
	// Latest year in the section reads as the graduation year.
	for _, y := range gradYear.FindAllString(section, -1) {
		if v, err := strconv.Atoi(y); err == nil && v > meta.GraduationYear {
			meta.GraduationYear = v
		}
	}
}

// extractCertifications reads the certifications section, then backfills
// with taxonomy vocabulary found anywhere in the text.
func (c *Chunker) extractCertifications(section, text string) []string {
	seen := make(map[string]struct{})
	var certs []string
	add := func(s string) {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			return
		}
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		certs = append(certs, strings.TrimSpace(s))
	}
	for _, item := range listItems(section) {
		if n := len([]rune(item)); n >= 2 && n <= 80 {
			add(item)
		}
	}
	if len(certs) == 0 {
		lower := strings.ToLower(text)
		for _, w := range c.tax.CertificationWords {
			needle := strings.ToLower(w)
			if idx := strings.Index(lower, needle); idx >= 0 && strings.Contains(lower, needle+" certif") {
				add(w)
			}
		}
	}
	return certs
}

// extractLocation prefers an explicit "Location:" label, else a
// city-comma-region line in the preamble.
func (c *Chunker) extractLocation(preamble, text string) string {
	for _, line := range strings.Split(text, "\n") {
		if m := locationTag.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	for _, line := range strings.Split(preamble, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || anyURL.MatchString(line) || strings.Contains(line, "@") {
			continue
		}
		if locationLine.MatchString(line) && len([]rune(line)) <= 60 {
			return line
		}
	}
	return ""
}

func (c *Chunker) hasFAANG(positions []domain.Position) bool {
	for _, p := range positions {
		company := strings.ToLower(p.Company)
		for f := range c.faangWords {
			if strings.Contains(company, f) {
				return true
			}
		}
	}
	return false
}

// seniority is inferred from title tokens first, then from years.
func (c *Chunker) seniority(currentRole string, years float64) string {
	role := strings.ToLower(currentRole)
	switch {
	case strings.Contains(role, "principal") || strings.Contains(role, "staff") ||
		strings.Contains(role, "director") || strings.Contains(role, "vp"):
		return "principal"
	case strings.Contains(role, "senior") || strings.Contains(role, "lead"):
		return "senior"
	case strings.Contains(role, "junior") || strings.Contains(role, "intern"):
		return "junior"
	}
	switch {
	case years < 1:
		return "junior"
	case years < 4:
		return "entry"
	case years < 8:
		return "mid"
	case years < 12:
		return "senior"
	default:
		return "principal"
	}
}

// listItems splits a section into trimmed bullet or comma items.
func listItems(section string) []string {
	if strings.TrimSpace(section) == "" {
		return nil
	}
	var items []string
	for _, raw := range skillSplit.Split(section, -1) {
		item := strings.TrimSpace(bulletPrefix.ReplaceAllString(raw, ""))
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

// nameFromPreamble treats the first short line of capitalized words as
// the candidate name when the filename yields nothing.
func nameFromPreamble(preamble string) string {
	for _, line := range strings.Split(preamble, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, "@") || anyURL.MatchString(line) {
			continue
		}
		words := strings.Fields(line)
		if len(words) < 2 || len(words) > 4 {
			return ""
		}
		for _, w := range words {
			r := []rune(w)
			if r[0] < 'A' || r[0] > 'Z' {
				return ""
			}
		}
		return line
	}
	return ""
}

// portfolioURL returns the first URL that is neither the LinkedIn nor
// the GitHub link.
func portfolioURL(text, linkedin, github string) string {
	for _, u := range anyURL.FindAllString(text, -1) {
		if u != linkedin && u != github {
			return u
		}
	}
	return ""
}

// flagToken normalizes a taxonomy word into a flag name segment.
func flagToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = wordBoundary.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
