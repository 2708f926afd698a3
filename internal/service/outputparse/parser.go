// Package outputparse turns free-form LLM markdown into a
// StructuredOutput: thinking block, direct answer, analysis, tables and
// conclusion. Parsing never fails; problems accumulate as warnings and
// fallbacks.
package outputparse

import (
	"regexp"
	"strings"

	"github.com/fairyhunter13/cv-rag/internal/domain"
	"github.com/fairyhunter13/cv-rag/pkg/textx"
)

// FallbackAnswer is used when no direct answer can be recovered.
const FallbackAnswer = "Response could not be parsed."

// minAnalysisChars is the smallest remainder worth reporting as analysis.
const minAnalysisChars = 50

var (
	thinkingBlock   = regexp.MustCompile(`(?s):::thinking\s*(.*?)\s*:::`)
	conclusionBlock = regexp.MustCompile(`(?s):::conclusion\s*(.*?)\s*:::`)
	codeBlock       = regexp.MustCompile("(?s)```.*?```")
	cvLinkRef       = regexp.MustCompile(`cv:([A-Za-z0-9_-]+)`)

	// Prompt artifacts that disqualify a paragraph as the direct answer.
	artifactPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^question:`),
		regexp.MustCompile(`(?i)^cv chunks:`),
		regexp.MustCompile(`(?i)^conversation so far:`),
		regexp.MustCompile(`(?i)^the answer must explicitly address`),
		regexp.MustCompile(`(?i)^(here (is|are)|sure[,!]|certainly[,!]|of course[,!])`),
		regexp.MustCompile(`(?i)^as an ai\b`),
		regexp.MustCompile(`(?i)^(system|user|assistant):`),
	}
)

// Parser parses generation output.
type Parser struct{}

// New constructs a Parser.
func New() *Parser { return &Parser{} }

// Parse splits raw LLM output into its components. chunks feed the
// fallback table when the model produced none.
func (p *Parser) Parse(raw string, chunks []domain.SearchResult) domain.StructuredOutput {
	out := domain.StructuredOutput{RawContent: raw}
	body := strings.TrimSpace(raw)
	if body == "" {
		out.DirectAnswer = FallbackAnswer
		out.FallbackUsed = true
		out.ParsingWarnings = append(out.ParsingWarnings, "empty LLM response")
		if len(chunks) > 0 {
			out.TableData = FallbackTable(chunks)
		}
		return out
	}

	out.CVReferences = cvReferences(body)

	if m := thinkingBlock.FindStringSubmatch(body); m != nil {
		out.Thinking = strings.TrimSpace(m[1])
		body = thinkingBlock.ReplaceAllString(body, "")
	}
	if m := conclusionBlock.FindStringSubmatch(body); m != nil {
		out.Conclusion = strings.TrimSpace(m[1])
		body = conclusionBlock.ReplaceAllString(body, "")
	}

	rows, tableWarnings := ParseTables(body)
	out.TableData = rows
	out.ParsingWarnings = append(out.ParsingWarnings, tableWarnings...)
	if len(rows) == 0 && len(chunks) > 0 {
		out.TableData = FallbackTable(chunks)
		if hasTableMarkup(body) {
			out.ParsingWarnings = append(out.ParsingWarnings, "table markup present but unparseable, used chunk fallback")
			out.FallbackUsed = true
		}
	}

	prose := stripTables(codeBlock.ReplaceAllString(body, ""))
	answer, rest := directAnswer(prose)
	if answer == "" {
		out.DirectAnswer = FallbackAnswer
		out.FallbackUsed = true
		out.ParsingWarnings = append(out.ParsingWarnings, "no usable direct answer paragraph")
	} else {
		out.DirectAnswer = answer
	}
	if analysis := strings.TrimSpace(rest); realContentLen(analysis) > minAnalysisChars {
		out.Analysis = analysis
	}
	return out
}

// directAnswer picks the first meaningful paragraph, skipping prompt
// artifacts, and truncates it to three sentences. It also returns the
// remaining prose for the analysis field.
func directAnswer(prose string) (string, string) {
	paragraphs := splitParagraphs(prose)
	for i, para := range paragraphs {
		if contaminated(para) || realContentLen(para) < 20 {
			continue
		}
		rest := strings.Join(paragraphs[i+1:], "\n\n")
		return textx.FirstNSentences(textx.NormalizeSpace(para), 3), rest
	}
	return "", strings.Join(paragraphs, "\n\n")
}

func contaminated(para string) bool {
	trimmed := strings.TrimSpace(para)
	for _, p := range artifactPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

func splitParagraphs(s string) []string {
	var out []string
	for _, p := range strings.Split(s, "\n\n") {
		if strings.TrimSpace(p) != "" {
			out = append(out, strings.TrimSpace(p))
		}
	}
	return out
}

// realContentLen counts letters and digits, ignoring markdown noise.
func realContentLen(s string) int {
	n := 0
	for _, r := range s {
		if r == '#' || r == '*' || r == '-' || r == '|' || r == '>' || r == ' ' || r == '\n' || r == '\t' {
			continue
		}
		n++
	}
	return n
}

// stripTables drops pipe-table lines from prose.
func stripTables(s string) string {
	var kept []string
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "|") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func hasTableMarkup(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "|") {
			return true
		}
	}
	return false
}

// cvReferences extracts ordered, de-duplicated cv ids.
func cvReferences(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range cvLinkRef.FindAllStringSubmatch(s, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
