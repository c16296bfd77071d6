package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const monthNames = `jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec`

var (
	isoDateRE       = regexp.MustCompile(`\b(20\d{2})-(\d{1,2})-(\d{1,2})\b`)
	monthFirstRE    = regexp.MustCompile(`(?i)\b(` + monthNames + `)[a-z]*\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(20\d{2})\b`)
	dayFirstRE      = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)?\s+(` + monthNames + `)[a-z]*\.?,?\s+(20\d{2})\b`)
	numericDateRE   = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(20\d{2}|\d{2})\b`)
	dateLabelRE     = regexp.MustCompile(`(?i)\b(order date|ordered on|placed on|purchase date|transaction date|invoice date|date of purchase|billed on|charged on|date)\b`)
	monthFromPrefix = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
		"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
		"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// FindDate returns the purchase date found in text, preferring lines that carry a date
// label. Dates are returned at midnight UTC.
func FindDate(text string) *time.Time {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		loc := dateLabelRE.FindStringIndex(line)
		if loc == nil {
			continue
		}
		if d := firstDate(line[loc[1]:]); d != nil {
			return d
		}
		if i+1 < len(lines) {
			if d := firstDate(lines[i+1]); d != nil {
				return d
			}
		}
	}
	return firstDate(text)
}

// ParseDate reads a single date string such as an ISO timestamp from markup.
func ParseDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return dateOnly(t)
		}
	}
	return firstDate(s)
}

// firstDate returns the earliest-positioned date in s.
func firstDate(s string) *time.Time {
	type hit struct {
		t   *time.Time
		pos int
	}
	var best *hit
	consider := func(pos int, t *time.Time) {
		if t == nil {
			return
		}
		if best == nil || pos < best.pos {
			best = &hit{pos: pos, t: t}
		}
	}

	if m := isoDateRE.FindStringSubmatchIndex(s); m != nil {
		consider(m[0], buildDate(s[m[2]:m[3]], s[m[4]:m[5]], s[m[6]:m[7]]))
	}
	if m := monthFirstRE.FindStringSubmatchIndex(s); m != nil {
		consider(m[0], buildNamedDate(s[m[6]:m[7]], s[m[2]:m[3]], s[m[4]:m[5]]))
	}
	if m := dayFirstRE.FindStringSubmatchIndex(s); m != nil {
		consider(m[0], buildNamedDate(s[m[6]:m[7]], s[m[4]:m[5]], s[m[2]:m[3]]))
	}
	if m := numericDateRE.FindStringSubmatchIndex(s); m != nil {
		first, second, year := s[m[2]:m[3]], s[m[4]:m[5]], s[m[6]:m[7]]
		if len(year) == 2 {
			year = "20" + year
		}
		// Month first unless the first field cannot be a month
		month, day := first, second
		if n, _ := strconv.Atoi(first); n > 12 {
			month, day = second, first
		}
		consider(m[0], buildDate(year, month, day))
	}

	if best == nil {
		return nil
	}
	return best.t
}

func buildNamedDate(year, month, day string) *time.Time {
	mon, ok := monthFromPrefix[strings.ToLower(month)[:3]]
	if !ok {
		return nil
	}
	return buildDate(year, strconv.Itoa(int(mon)), day)
}

func buildDate(year, month, day string) *time.Time {
	y, errY := strconv.Atoi(year)
	m, errM := strconv.Atoi(month)
	d, errD := strconv.Atoi(day)
	if errY != nil || errM != nil || errD != nil {
		return nil
	}
	if m < 1 || m > 12 || d < 1 || d > 31 || y < 2000 || y > 2100 {
		return nil
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	// Reject rollovers such as February 31
	if t.Day() != d {
		return nil
	}
	return &t
}

func dateOnly(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
