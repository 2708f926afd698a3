package chunker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/cv-rag/internal/config"
	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/internal/service/chunker"
)

var testClock = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func newChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	cfg := config.ChunkerConfig{
		HighHopTenureYears:   1.5,
		LowHopScore:          0.3,
		HighHopScore:         0.5,
		GapYears:             1.0,
		UndatedPositionYears: 2.5,
		FallbackYears:        1.5,
		MaxTotalYears:        40,
		FullCVMaxChars:       4000,
	}
	return chunker.New(cfg, config.DefaultTaxonomy())
}

const sampleCV = `Alice Martin
Paris, France
alice@example.com
https://www.linkedin.com/in/alicemartin
https://github.com/alicemartin

Summary
Seasoned backend engineer building distributed systems.

Experience

Senior Backend Engineer at Acme Corp
2019 - Present
- Led a team of 5 engineers
- Built event-driven ingestion in Go

Backend Developer | Globex
2015 - 2018
- Developed REST APIs in Python

Education
MSc in Computer Science, Sorbonne University, 2014

Skills
Go, Python, Kubernetes, PostgreSQL, Kafka

Languages
English, French

Certifications
AWS Solutions Architect
`

func TestChunk_OrderAndSummaryInvariant(t *testing.T) {
	t.Parallel()
	c := newChunker(t)
	chunks, err := c.Chunk("cv_001", "8f3a_Alice_Martin_backend.pdf", sampleCV, testClock)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	summaries := 0
	for _, ch := range chunks {
		if ch.Section == domain.SectionSummary {
			summaries++
			assert.Equal(t, 0, ch.Index)
		}
	}
	assert.Equal(t, 1, summaries)
	assert.Equal(t, domain.SectionSummary, chunks[0].Section)
	assert.Equal(t, domain.SectionFullCV, chunks[len(chunks)-1].Section)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, "cv_001", ch.CVID)
	}
}

func TestChunk_MetadataIdenticalAcrossChunks(t *testing.T) {
	t.Parallel()
	c := newChunker(t)
	chunks, err := c.Chunk("cv_001", "Alice_Martin.pdf", sampleCV, testClock)
	require.NoError(t, err)
	first := chunks[0].Metadata
	for _, ch := range chunks[1:] {
		assert.Equal(t, first.TotalExperienceYears, ch.Metadata.TotalExperienceYears)
		assert.Equal(t, first.JobHoppingScore, ch.Metadata.JobHoppingScore)
		assert.Equal(t, first.AvgTenureYears, ch.Metadata.AvgTenureYears)
	}
}

func TestChunk_Enrichment(t *testing.T) {
	t.Parallel()
	c := newChunker(t)
	chunks, err := c.Chunk("cv_001", "8f3a_Alice_Martin_backend.pdf", sampleCV, testClock)
	require.NoError(t, err)
	m := chunks[0].Metadata

	assert.Equal(t, "Alice Martin", m.CandidateName)
	assert.Equal(t, 2, m.PositionCount)
	assert.Equal(t, "Senior Backend Engineer", m.CurrentRole)
	assert.Equal(t, "Acme Corp", m.CurrentCompany)
	// Dated span 2015..2025.
	assert.InDelta(t, 10.0, m.TotalExperienceYears, 0.01)
	assert.False(t, m.ExperienceEstimated)
	assert.Equal(t, "senior", m.Seniority)
	assert.Contains(t, m.Skills, "Go")
	assert.Contains(t, m.Skills, "Kubernetes")
	assert.ElementsMatch(t, []string{"English", "French"}, m.Languages)
	assert.Equal(t, "Master", m.EducationLevel)
	assert.Equal(t, "Computer Science", m.EducationField)
	assert.Equal(t, 2014, m.GraduationYear)
	assert.Contains(t, m.Certifications, "AWS Solutions Architect")
	assert.Equal(t, "Paris, France", m.Location)
	assert.Contains(t, m.LinkedInURL, "linkedin.com")
	assert.Contains(t, m.GitHubURL, "github.com")
	assert.True(t, m.Flag("speaks_french"))
	assert.True(t, m.Flag("has_aws_solutions_architect_cert"))
	assert.Equal(t, 0, m.EmploymentGapCount) // 2018 -> 2019 is only one year apart
}

func TestChunk_EmploymentGap(t *testing.T) {
	t.Parallel()
	c := newChunker(t)
	text := `Experience

Engineer at A
2010 - 2012

Engineer at B
2015 - 2018
`
	chunks, err := c.Chunk("cv_g", "x.txt", text, testClock)
	require.NoError(t, err)
	assert.Equal(t, 1, chunks[0].Metadata.EmploymentGapCount)
}

func TestChunk_Deterministic(t *testing.T) {
	t.Parallel()
	c := newChunker(t)
	a, err := c.Chunk("cv_001", "Alice_Martin.pdf", sampleCV, testClock)
	require.NoError(t, err)
	b, err := c.Chunk("cv_001", "Alice_Martin.pdf", sampleCV, testClock)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestChunk_EmptyTextFails(t *testing.T) {
	t.Parallel()
	c := newChunker(t)
	_, err := c.Chunk("cv_001", "empty.pdf", "   \n ", testClock)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrExtraction)
}

func TestChunk_UndatedPositionsEstimated(t *testing.T) {
	t.Parallel()
	c := newChunker(t)
	text := `Experience

Software Engineer at Initech
- Built internal tooling

Data Analyst at Hooli
- Dashboards and reporting
`
	chunks, err := c.Chunk("cv_u", "u.txt", text, testClock)
	require.NoError(t, err)
	m := chunks[0].Metadata
	assert.True(t, m.ExperienceEstimated)
	assert.InDelta(t, 5.0, m.TotalExperienceYears, 0.01) // 2 undated positions x 2.5y
}

func TestChunk_FullCVTruncated(t *testing.T) {
	t.Parallel()
	cfg := config.ChunkerConfig{FullCVMaxChars: 50, MaxTotalYears: 40, FallbackYears: 1.5, UndatedPositionYears: 2.5, GapYears: 1, HighHopTenureYears: 1.5, LowHopScore: 0.3, HighHopScore: 0.5}
	c := chunker.New(cfg, config.DefaultTaxonomy())
	long := "Summary\nSeasoned engineer. " + stringsRepeat("More text. ", 30)
	chunks, err := c.Chunk("cv_t", "t.txt", long, testClock)
	require.NoError(t, err)
	full := chunks[len(chunks)-1]
	assert.Equal(t, domain.SectionFullCV, full.Section)
	assert.LessOrEqual(t, len([]rune(full.Content)), 51)
}

func stringsRepeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
