package transform

import (
	"regexp"
	"strings"
	"time"

	"github.com/cyderes/wod-ingestion-service/internal/models"
)

// weekdayHeading matches a line that opens a day: the weekday name alone or
// followed by a heading delimiter, a date, or a month name.
var weekdayHeading = regexp.MustCompile(
	`(?i)^(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b\s*` +
		`(?:$|[:,.\-–(]|\d|(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\b)`)

// headingDate matches a date leading the rest of a heading line:
// "1.4.21", "01/04", "Jan. 4th, 2021", "January 5".
var headingDate = regexp.MustCompile(
	`(?i)^(?:(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s*\d{1,2}(?:st|nd|rd|th)?(?:,?\s*\d{2,4})?` +
		`|\d{1,4}(?:[./\-]\d{1,4}){1,2})`)

const headingDelimiters = " \t:,.-–"

var weekdayNames = map[string]time.Weekday{
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
	"sunday":    time.Sunday,
}

// matchWeekday returns the weekday a heading line names and any text the
// heading carries after its date. Parenthesized notes are dropped.
func matchWeekday(line string) (time.Weekday, string, bool) {
	m := weekdayHeading.FindStringSubmatch(line)
	if m == nil {
		return 0, "", false
	}

	rest := strings.TrimLeft(line[len(m[1]):], headingDelimiters)
	rest = headingDate.ReplaceAllString(rest, "")
	rest = strings.TrimSpace(strings.TrimLeft(rest, headingDelimiters))
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		rest = ""
	}
	return weekdayNames[strings.ToLower(m[1])], rest, true
}

type segmentMatcher struct {
	label models.Label
	// pattern captures the text following the marker on the same line in group 1.
	pattern *regexp.Regexp
}

// segmentMatchers is the single table of recognized segment markers. New
// labels are added here.
var segmentMatchers = []segmentMatcher{
	{models.LabelSession, regexp.MustCompile(`(?i)^session\b\s*[:.\-–]?\s*(.*)$`)},
	{models.LabelWarmUp, regexp.MustCompile(`(?i)^(?:suggested\s+)?warm[\s-]?up\b\s*[:.\-–]?\s*(.*)$`)},
	{models.LabelSegmentA, letterMarker("a")},
	{models.LabelSegmentB, letterMarker("b")},
	{models.LabelSegmentC, letterMarker("c")},
	{models.LabelSegmentD, letterMarker("d")},
	{models.LabelSegmentE, letterMarker("e")},
}

func letterMarker(letter string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^` + letter + `(?:[.:)](?:\s+(.*))?|\s*)$`)
}

// matchSegment returns the label a line opens and the inline text after the marker.
func matchSegment(line string) (models.Label, string, bool) {
	for _, m := range segmentMatchers {
		if sub := m.pattern.FindStringSubmatch(line); sub != nil {
			return m.label, strings.TrimSpace(sub[1]), true
		}
	}
	return "", "", false
}

// restDayPhrases are whole-block texts that mean no training that day.
var restDayPhrases = map[string]bool{
	"rest day":        true,
	"rest":            true,
	"day off":         true,
	"off":             true,
	"recovery day":    true,
	"rest & recovery": true,
}

func isRestDay(block string) bool {
	phrase := strings.ToLower(strings.Join(strings.Fields(block), " "))
	phrase = strings.TrimRight(phrase, ".!")
	return restDayPhrases[phrase]
}
