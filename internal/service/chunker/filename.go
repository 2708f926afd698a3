package chunker

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	fileIDToken   = regexp.MustCompile(`^[0-9a-fA-F-]{4,}$|^\d+$`)
	nonNameChars  = regexp.MustCompile(`[^a-zA-ZÀ-ÿ'-]`)
	nameSeparator = regexp.MustCompile(`[_\-\s.]+`)
)

// candidateNameFromFilename extracts a human name from filenames shaped
// like "8f3a_First_Last_backend.pdf". Numeric or hex-looking ids and
// known job-title words are stripped; what remains is title-cased.
func (c *Chunker) candidateNameFromFilename(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	tokens := nameSeparator.Split(base, -1)
	var parts []string
	for _, tok := range tokens {
		if tok == "" || fileIDToken.MatchString(tok) {
			continue
		}
		clean := nonNameChars.ReplaceAllString(tok, "")
		if len([]rune(clean)) < 2 {
			continue
		}
		lower := strings.ToLower(clean)
		if _, deny := c.jobTitleWords[lower]; deny {
			continue
		}
		parts = append(parts, titleCase(clean))
		if len(parts) == 3 {
			break
		}
	}
	return strings.Join(parts, " ")
}

func titleCase(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return s
	}
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}
