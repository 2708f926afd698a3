package chunker

import (
	"regexp"
	"strings"
)

// sectionKind names a recognized CV section.
type sectionKind string

const (
	secSummary        sectionKind = "summary"
	secExperience     sectionKind = "experience"
	secEducation      sectionKind = "education"
	secSkills         sectionKind = "skills"
	secCertifications sectionKind = "certifications"
	secLanguages      sectionKind = "languages"
	secProjects       sectionKind = "projects"
	secHobbies        sectionKind = "hobbies"
	secPreamble       sectionKind = "preamble"
)

// Header patterns, case-insensitive, matched against a whole trimmed line
// (with a trailing colon allowed). Order matters: first match wins.
var sectionHeaders = []struct {
	kind sectionKind
	re   *regexp.Regexp
}{
	{secExperience, regexp.MustCompile(`(?i)^(work|professional|employment)?\s*(experience|history)$`)},
	{secEducation, regexp.MustCompile(`(?i)^(education|academic\s+background|academics|studies)$`)},
	{secSkills, regexp.MustCompile(`(?i)^(technical\s+skills|core\s+competencies|skills|competencies|technologies|tech\s+stack)$`)},
	{secCertifications, regexp.MustCompile(`(?i)^(certifications?|certificates?|licenses?\s*(&|and)?\s*(certifications?)?)$`)},
	{secLanguages, regexp.MustCompile(`(?i)^(languages?|spoken\s+languages)$`)},
	{secSummary, regexp.MustCompile(`(?i)^(summary|professional\s+summary|profile|about\s*(me)?|objective)$`)},
	{secProjects, regexp.MustCompile(`(?i)^(projects|personal\s+projects|side\s+projects)$`)},
	{secHobbies, regexp.MustCompile(`(?i)^(hobbies|interests|hobbies\s*(&|and)\s*interests)$`)},
}

// spacedHeader matches headers typed with letter spacing, e.g.
// "E X P E R I E N C E".
var spacedHeader = regexp.MustCompile(`^(?:[A-Za-z] ){2,}[A-Za-z]$`)

// headerKind classifies a line as a section header, or "" when it is not
// one. Headers longer than 60 runes are body text in disguise.
func headerKind(line string) sectionKind {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), ":"))
	if trimmed == "" || len([]rune(trimmed)) > 60 {
		return ""
	}
	if spacedHeader.MatchString(trimmed) {
		trimmed = strings.ReplaceAll(trimmed, " ", "")
	}
	for _, h := range sectionHeaders {
		if h.re.MatchString(trimmed) {
			return h.kind
		}
	}
	return ""
}

// splitSections cuts the text into named sections. Text before the first
// recognized header lands in the preamble, which the enricher mines for
// the candidate name, location and contact URLs.
func (c *Chunker) splitSections(text string) map[sectionKind]string {
	sections := make(map[sectionKind]string)
	current := secPreamble
	var buf []string
	flush := func() {
		if len(buf) == 0 {
			return
		}
		body := strings.TrimSpace(strings.Join(buf, "\n"))
		if body != "" {
			if prev, ok := sections[current]; ok {
				body = prev + "\n" + body
			}
			sections[current] = body
		}
		buf = buf[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		if kind := headerKind(line); kind != "" {
			flush()
			current = kind
			continue
		}
		buf = append(buf, line)
	}
	flush()
	return sections
}
