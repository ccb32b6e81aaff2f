// Package stringutil provides common string manipulation utilities.
package stringutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// IsNumeric checks if a string contains only digits.
// Returns false for empty strings.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// CollapseWhitespace trims the string and collapses runs of whitespace
// into single spaces.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeForMatch canonicalizes user text for comparison: NFC
// composition, full-width to half-width folding, lowercase, and
// whitespace collapsing. Thai input frequently mixes full-width digits
// and stray spaces from mobile keyboards.
func NormalizeForMatch(s string) string {
	s = norm.NFC.String(s)
	s = width.Fold.String(s)
	s = strings.ToLower(s)
	return CollapseWhitespace(s)
}

// StripPunctuation removes punctuation and symbol runes, keeping
// letters, digits, and spaces.
func StripPunctuation(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ContainsAll reports whether s contains every substring in subs.
// An empty subs slice matches everything.
func ContainsAll(s string, subs []string) bool {
	for _, sub := range subs {
		if sub == "" {
			continue
		}
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

// ContainsAny reports whether s contains at least one substring in subs.
// An empty subs slice matches nothing.
func ContainsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Truncate cuts s to at most n runes, appending an ellipsis when cut.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 1 {
		return string(runes[:n])
	}
	return string(runes[:n-1]) + "…"
}
