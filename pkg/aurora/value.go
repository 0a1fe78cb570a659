// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package aurora

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Date/time layouts the device uses in responses. Layouts without a zone
// are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"Jan 2 2006 15:04:05",
	"Mon Jan 2 15:04:05 2006",
	"01/02/2006 15:04:05",
	"2006-01-02",
}

var numberNoise = strings.NewReplacer("$", "", "%", "", ",", "")

// ParseValue converts a scalar response token into a typed value.
//
// Numbers (after stripping currency, percent and thousands symbols and a
// trailing "ms") become float64. Recognised dates become epoch milliseconds
// as float64. Boolean words become bool and "unknown" becomes 0. Anything
// else is returned as the trimmed string.
func ParseValue(token string) any {
	s := strings.TrimSpace(token)
	if s == "" {
		return s
	}

	if n, ok := parseNumber(s); ok {
		return n
	}

	if ms, ok := parseTimestamp(s); ok {
		return ms
	}

	switch strings.ToLower(s) {
	case "true", "on", "active", "yes":
		return true
	case "false", "off", "inactive", "no", "none":
		return false
	case "unknown":
		return float64(0)
	}

	return s
}

func parseNumber(s string) (float64, bool) {
	stripped := numberNoise.Replace(s)
	stripped = strings.TrimSuffix(stripped, "ms")
	stripped = strings.TrimSpace(stripped)
	if stripped == "" {
		return 0, false
	}
	// ParseFloat also accepts "inf", "nan" and hex floats; the device
	// only sends decimal numbers.
	first := stripped[0]
	if first != '-' && first != '+' && first != '.' && (first < '0' || first > '9') {
		return 0, false
	}
	if strings.ContainsAny(stripped, "xXpP_") {
		return 0, false
	}
	n, err := strconv.ParseFloat(stripped, 64)
	if err != nil || math.IsInf(n, 0) || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

func parseTimestamp(s string) (float64, bool) {
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return float64(t.UnixMilli()), true
		}
	}
	return 0, false
}

// CamelCase normalises a response key: words are split on any
// non-alphanumeric character and on lower-to-upper case changes, the first
// word is lower-cased and the rest are capitalised.
func CamelCase(s string) string {
	words := splitWords(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, w := range words {
		lower := strings.ToLower(w)
		if i == 0 {
			b.WriteString(lower)
			continue
		}
		r := []rune(lower)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

func splitWords(s string) []string {
	var words []string
	var cur []rune
	runes := []rune(s)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(cur) > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			// "fooBar" splits before B, "HTTPServer" splits before S.
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return words
}
