package resolver

import (
	"regexp"
	"strings"
	"time"
)

var (
	isoPat      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	yearPat     = regexp.MustCompile(`^\d{4}$`)
	presentPat  = regexp.MustCompile(`(?i)^(present|current|now|today)$`)
	yearSepPat  = regexp.MustCompile(`(?i)^(\d{4})[\s/._-]+(present|current|now|today)$`)
	usSlashPat  = regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)
	usDashPat   = regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}$`)
)

// genericLayouts are tried last, in order.
var genericLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006/01/02",
	"2006.01.02",
	"January 2006",
	"Jan 2006",
}

func today() time.Time {
	return time.Now()
}

// NormalizeDate maps a model-suggested date onto YYYY-MM-DD. Calendar
// validity is enforced locally rather than trusted to the model; a false
// return means the field is left unfilled.
func NormalizeDate(value string, now time.Time) (string, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", false
	}

	switch {
	case isoPat.MatchString(v):
		if _, err := time.Parse("2006-01-02", v); err != nil {
			return "", false
		}
		return v, true

	case yearPat.MatchString(v):
		return v + "-01-01", true

	case presentPat.MatchString(v):
		return now.Format("2006-01-02"), true
	}

	if m := yearSepPat.FindStringSubmatch(v); m != nil {
		return m[1] + "-01-01", true
	}

	if usSlashPat.MatchString(v) {
		if t, err := time.Parse("1/2/2006", v); err == nil {
			return t.Format("2006-01-02"), true
		}
		return "", false
	}
	if usDashPat.MatchString(v) {
		if t, err := time.Parse("1-2-2006", v); err == nil {
			return t.Format("2006-01-02"), true
		}
		return "", false
	}

	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
