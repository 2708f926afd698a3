// Package chunker parses raw CV text into ordered chunks with enriched,
// CV-wide metadata. Chunking is deterministic: the same text and filename
// always produce the same chunks, so re-indexing a CV is idempotent.
package chunker

import (
	"fmt"
	"strings"
	"time"

	"github.com/fairyhunter13/cv-rag/internal/config"
	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/pkg/textx"
)

// Chunker turns one CV into a summary chunk, per-position experience
// chunks, a skills chunk and a full-CV chunk.
type Chunker struct {
	cfg config.ChunkerConfig
	tax config.Taxonomy

	jobTitleWords  map[string]struct{}
	educationWords map[string]struct{}
	workWords      map[string]struct{}
	fillerWords    map[string]struct{}
	languageWords  map[string]struct{}
	faangWords     map[string]struct{}
}

// New constructs a Chunker from the heuristic thresholds and taxonomies.
func New(cfg config.ChunkerConfig, tax config.Taxonomy) *Chunker {
	return &Chunker{
		cfg:            cfg,
		tax:            tax,
		jobTitleWords:  config.WordSet(tax.JobTitleWords),
		educationWords: config.WordSet(tax.EducationWords),
		workWords:      config.WordSet(tax.WorkWords),
		fillerWords:    config.WordSet(tax.FillerPrepositions),
		languageWords:  config.WordSet(tax.Languages),
		faangWords:     config.WordSet(tax.FAANGCompanies),
	}
}

// Chunk parses rawText into ordered chunks. The summary chunk is always
// first with Index 0; per-position experience chunks, the skills chunk
// and the full-CV chunk follow in that order.
func (c *Chunker) Chunk(cvID, filename, rawText string, indexedAt time.Time) ([]domain.Chunk, error) {
	text := textx.SanitizeText(rawText)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty CV text for %s", domain.ErrExtraction, filename)
	}

	sections := c.splitSections(text)
	meta := c.enrich(filename, text, sections, indexedAt)

	chunks := make([]domain.Chunk, 0, len(meta.Positions)+3)
	add := func(section domain.SectionType, content string, extra map[string]any) {
		m := meta
		if len(extra) > 0 {
			m.Extra = extra
		}
		idx := len(chunks)
		chunks = append(chunks, domain.Chunk{
			ID:        fmt.Sprintf("%s_%d", cvID, idx),
			CVID:      cvID,
			Index:     idx,
			Section:   section,
			Content:   content,
			Metadata:  m,
			Filename:  filename,
			IndexedAt: indexedAt,
		})
	}

	add(domain.SectionSummary, c.summaryText(meta), map[string]any{"is_summary": true})
	for _, p := range meta.Positions {
		add(domain.SectionExperience, positionText(p), map[string]any{
			"position_title":    p.Title,
			"position_company":  p.Company,
			"position_start":    p.StartYear,
			"position_end":      p.EndYear,
			"position_current":  p.IsCurrent,
			"position_duration": p.DurationYears,
		})
	}
	if len(meta.Skills) > 0 {
		add(domain.SectionSkills, "Skills: "+strings.Join(meta.Skills, ", "), nil)
	}
	add(domain.SectionFullCV, textx.Truncate(text, c.cfg.FullCVMaxChars), nil)
	return chunks, nil
}

// summaryText renders the structured digest stored in the summary chunk.
func (c *Chunker) summaryText(m domain.EnrichedMetadata) string {
	var b strings.Builder
	if m.CandidateName != "" {
		fmt.Fprintf(&b, "Candidate: %s\n", m.CandidateName)
	}
	if m.CurrentRole != "" {
		line := "Current role: " + m.CurrentRole
		if m.CurrentCompany != "" {
			line += " at " + m.CurrentCompany
		}
		b.WriteString(line + "\n")
	}
	fmt.Fprintf(&b, "Total experience: %.1f years", m.TotalExperienceYears)
	if m.ExperienceEstimated {
		b.WriteString(" (estimated)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Positions held: %d\n", m.PositionCount)
	if m.Seniority != "" {
		fmt.Fprintf(&b, "Seniority: %s\n", m.Seniority)
	}
	if len(m.Languages) > 0 {
		fmt.Fprintf(&b, "Languages: %s\n", strings.Join(m.Languages, ", "))
	}
	if m.EducationLevel != "" {
		edu := "Education: " + m.EducationLevel
		if m.EducationField != "" {
			edu += " in " + m.EducationField
		}
		if m.EducationInstitution != "" {
			edu += ", " + m.EducationInstitution
		}
		if m.GraduationYear > 0 {
			edu += fmt.Sprintf(" (%d)", m.GraduationYear)
		}
		b.WriteString(edu + "\n")
	}
	if len(m.Certifications) > 0 {
		fmt.Fprintf(&b, "Certifications: %s\n", strings.Join(m.Certifications, ", "))
	}
	if len(m.Skills) > 0 {
		fmt.Fprintf(&b, "Skills: %s\n", strings.Join(m.Skills, ", "))
	}
	if path := careerPath(m.Positions); path != "" {
		fmt.Fprintf(&b, "Career path: %s\n", path)
	}
	return strings.TrimRight(b.String(), "\n")
}

// careerPath renders "Title (YYYY) -> Title (YYYY)" oldest first.
func careerPath(positions []domain.Position) string {
	if len(positions) == 0 {
		return ""
	}
	parts := make([]string, 0, len(positions))
	for i := len(positions) - 1; i >= 0; i-- {
		p := positions[i]
		if p.StartYear > 0 {
			parts = append(parts, fmt.Sprintf("%s (%d)", p.Title, p.StartYear))
		} else {
			parts = append(parts, p.Title)
		}
	}
	return strings.Join(parts, " → ")
}

func positionText(p domain.Position) string {
	var b strings.Builder
	b.WriteString(p.Title)
	if p.Company != "" {
		b.WriteString(" at " + p.Company)
	}
	switch {
	case p.IsCurrent && p.StartYear > 0:
		fmt.Fprintf(&b, " (%d - present)", p.StartYear)
	case p.StartYear > 0 && p.EndYear > 0:
		fmt.Fprintf(&b, " (%d - %d)", p.StartYear, p.EndYear)
	}
	if p.DurationYears > 0 {
		fmt.Fprintf(&b, ", %.1f years", p.DurationYears)
	}
	return b.String()
}
