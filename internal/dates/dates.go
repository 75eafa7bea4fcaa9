// Package dates turns the free-form dates found on news pages into calendar
// dates. Normalization never fails: unknown input becomes today's date.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ISOLayout is the canonical output format.
const ISOLayout = "2006-01-02"

// Result is a normalized date. Original is always the input, verbatim.
type Result struct {
	Date     string    `json:"date"`
	Original string    `json:"original"`
	Time     time.Time `json:"-"`
	Parsed   bool      `json:"parsed"`
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC850,
	time.ANSIC,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	ISOLayout,
}

const monthNames = `jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?`

var (
	monthDayYearRe = regexp.MustCompile(`(?i)\b(` + monthNames + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})\b`)
	dayMonthYearRe = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(` + monthNames + `)\.?,?\s+(\d{4})\b`)
	numericRe      = regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4}|\d{2})\b`)
)

// Normalize converts raw using the current date as fallback.
func Normalize(raw string) Result {
	return NormalizeAt(raw, time.Now())
}

// NormalizeAt tries, in order: a full timestamp, "Month Day, Year",
// "Day Month Year" and numeric D/M/Y or D-M-Y. The first valid match wins.
func NormalizeAt(raw string, now time.Time) Result {
	s := strings.TrimSpace(raw)

	for _, parse := range []func(string) (time.Time, bool){
		parseTimestamp,
		parseMonthDayYear,
		parseDayMonthYear,
		parseNumeric,
	} {
		if t, ok := parse(s); ok {
			return Result{Date: t.Format(ISOLayout), Original: raw, Time: t, Parsed: true}
		}
	}

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return Result{Date: today.Format(ISOLayout), Original: raw, Time: today}
}

func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	// dateparse reads bare numeric dates month-first; those belong to the
	// D/M/Y step, so only hand it strings that carry a time of day.
	if strings.Contains(s, ":") {
		if t, err := dateparse.ParseAny(s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseMonthDayYear(s string) (time.Time, bool) {
	m := monthDayYearRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	return build(atoi(m[3]), monthFromName(m[1]), atoi(m[2]))
}

func parseDayMonthYear(s string) (time.Time, bool) {
	m := dayMonthYearRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	return build(atoi(m[3]), monthFromName(m[2]), atoi(m[1]))
}

func parseNumeric(s string) (time.Time, bool) {
	m := numericRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	year := atoi(m[3])
	if len(m[3]) == 2 {
		year += 2000
	}
	return build(year, time.Month(atoi(m[2])), atoi(m[1]))
}

// build rejects dates that time.Date would silently roll over, such as 31/02.
func build(year int, month time.Month, day int) (time.Time, bool) {
	if month < time.January || month > time.December || day < 1 {
		return time.Time{}, false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return time.Time{}, false
	}
	return t, true
}

func monthFromName(name string) time.Month {
	name = strings.ToLower(name)
	if len(name) < 3 {
		return 0
	}
	switch name[:3] {
	case "jan":
		return time.January
	case "feb":
		return time.February
	case "mar":
		return time.March
	case "apr":
		return time.April
	case "may":
		return time.May
	case "jun":
		return time.June
	case "jul":
		return time.July
	case "aug":
		return time.August
	case "sep":
		return time.September
	case "oct":
		return time.October
	case "nov":
		return time.November
	case "dec":
		return time.December
	}
	return 0
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
