package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateRange is one parsed employment span. EndYear is 0 while current.
type dateRange struct {
	StartYear int
	EndYear   int
	IsCurrent bool
}

// presentWords end-date tokens that mean "still employed".
var presentWords = regexp.MustCompile(`(?i)^(present|now|current|currently|actual|actuel|ongoing|today|date)$`)

var (
	// 2018 - 2022, 2018–Present, (2018 - 2022)
	yearRange = regexp.MustCompile(`(?i)\(?\b(19|20)(\d{2})\s*(?:-|–|—|to|until)\s*((?:19|20)\d{2}|present|now|current(?:ly)?|actual|actuel|ongoing|today|date)\b\)?`)
	// Jan 2018 - Mar 2022, January 2018 to Present
	monthYearRange = regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+((?:19|20)\d{2})\s*(?:-|–|—|to|until)\s*(?:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+)?((?:19|20)\d{2}|present|now|current(?:ly)?|actual|actuel|ongoing|today|date)\b`)
	// 03/2018 - 04/2022, 2018-03 - 2022-04 (ISO and European numeric forms)
	numericRange = regexp.MustCompile(`(?i)\b(?:(?:0?[1-9]|1[0-2])[/.])((?:19|20)\d{2})\s*(?:-|–|—|to|until)\s*(?:(?:(?:0?[1-9]|1[0-2])[/.])?((?:19|20)\d{2})|(present|now|current(?:ly)?|actual|actuel|ongoing|today|date))\b`)
	isoRange     = regexp.MustCompile(`(?i)\b((?:19|20)\d{2})-(?:0[1-9]|1[0-2])\s*(?:-|–|—|to|until)\s*(?:((?:19|20)\d{2})(?:-(?:0[1-9]|1[0-2]))?|(present|now|current(?:ly)?|actual|actuel|ongoing|today|date))\b`)
)

// parseDateRange extracts the first employment span found in line.
func parseDateRange(line string) (dateRange, bool) {
	if m := monthYearRange.FindStringSubmatch(line); m != nil {
		return buildRange(m[1], m[2])
	}
	if m := isoRange.FindStringSubmatch(line); m != nil {
		end := m[2]
		if end == "" {
			end = m[3]
		}
		return buildRange(m[1], end)
	}
	if m := numericRange.FindStringSubmatch(line); m != nil {
		end := m[2]
		if end == "" {
			end = m[3]
		}
		return buildRange(m[1], end)
	}
	if m := yearRange.FindStringSubmatch(line); m != nil {
		return buildRange(m[1]+m[2], m[3])
	}
	return dateRange{}, false
}

func buildRange(start, end string) (dateRange, bool) {
	startYear, err := strconv.Atoi(start)
	if err != nil {
		return dateRange{}, false
	}
	r := dateRange{StartYear: startYear}
	if presentWords.MatchString(strings.TrimSpace(end)) {
		r.IsCurrent = true
	} else {
		endYear, err := strconv.Atoi(end)
		if err != nil || endYear < startYear {
			return dateRange{}, false
		}
		r.EndYear = endYear
	}
	return r, true
}

// durationYears computes the span length; current spans run to now.
func (r dateRange) durationYears(now time.Time) float64 {
	end := r.EndYear
	if r.IsCurrent || end == 0 {
		end = now.Year()
	}
	d := float64(end - r.StartYear)
	if d < 0 {
		return 0
	}
	return d
}

// stripDateRange removes the matched span text so the remainder of the
// line can be inspected for title and company.
func stripDateRange(line string) string {
	for _, re := range []*regexp.Regexp{monthYearRange, isoRange, numericRange, yearRange} {
		line = re.ReplaceAllString(line, "")
	}
	return strings.Trim(strings.TrimSpace(line), "-–—|,() \t")
}
