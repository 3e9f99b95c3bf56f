package model

import (
	"regexp"
	"strconv"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeGermanNumber converts German number formatting (period as
// thousands separator, comma as decimal separator) to the canonical
// format used everywhere downstream: no thousands separators, period
// decimal. "2.345,67" becomes "2345.67".
func NormalizeGermanNumber(v string) string {
	if v == "" || v == NA {
		return v
	}
	v = strings.ReplaceAll(v, ".", "")
	v = strings.ReplaceAll(v, ",", ".")
	return v
}

// NormalizeRooms converts a room count to period-decimal form: "2,5" -> "2.5".
func NormalizeRooms(v string) string {
	if v == "" || v == NA {
		return v
	}
	return strings.ReplaceAll(v, ",", ".")
}

// CleanText collapses whitespace and strips currency/unit noise commonly
// attached to scraped values. Returns NA when nothing remains.
func CleanText(text string) string {
	if text == "" {
		return NA
	}
	text = whitespaceRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	for _, unit := range []string{"€", "m²", "VB"} {
		text = strings.ReplaceAll(text, unit, "")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimRight(text, ".,")
	text = strings.TrimSpace(text)
	if text == "" {
		return NA
	}
	return text
}

// ToNumeric parses a canonical-format numeric string. The second return
// is false for the NA sentinel or anything unparseable; callers treat
// that as "value unknown", never as zero.
func ToNumeric(v string) (float64, bool) {
	if v == "" || v == NA {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
