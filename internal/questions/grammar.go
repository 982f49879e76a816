package questions

import (
	"regexp"
	"strings"
)

// HorizonClause is appended to questions that do not state a one-day window.
const HorizonClause = "within the next 24 hours"

var (
	byClockToday = regexp.MustCompile(`(?i)\bby\s+[0-9]{1,2}:[0-9]{2}\s*(?:gmt|utc)\s+today\b`)
	// "...tomorrow? (UTC)" keeps the parenthetical inside the question.
	askedThenParen = regexp.MustCompile(`\?\s*(\([^()]*\))$`)
)

const (
	quotes   = "\"'“”‘’«»"
	trailing = "?.!;:, "
)

// NormalizeQuestion coerces model text into a single line that states a
// 24-hour horizon and ends with exactly one '?'. It returns "" when nothing
// usable is left.
func NormalizeQuestion(s string) string {
	q := strings.Join(strings.Fields(s), " ")
	q = byClockToday.ReplaceAllString(q, HorizonClause)

	// Quotes and punctuation can nest in either order, e.g. "'Will X?'.".
	for {
		prev := q
		q = strings.Trim(q, quotes+" ")
		q = strings.TrimRight(q, trailing)
		q = askedThenParen.ReplaceAllString(q, " $1")
		if q == prev {
			break
		}
	}
	if q == "" {
		return ""
	}

	if !HasHorizon(q) {
		q += " " + HorizonClause
	}
	return q + "?"
}

// HasHorizon reports whether s mentions a 24-hour or next-day window.
func HasHorizon(s string) bool {
	l := strings.ToLower(s)
	return strings.Contains(l, "24 hour") || strings.Contains(l, "24-hour") || strings.Contains(l, "tomorrow")
}
