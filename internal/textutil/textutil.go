// Package textutil holds the small text helpers shared by mining, fuzzing
// and the command line.
package textutil

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// NormalizePayload returns the NFC form of a textual action payload, so that
// canonically equivalent inputs produce the same grammar symbol.
func NormalizePayload(s string) string {
	return norm.NFC.String(s)
}

// Pad formats n with at least width digits, zero padded.
func Pad(n, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

// titleCaser is used for converting headings to title case.
var titleCaser = cases.Title(language.English)

// Title converts an identifier such as "merged_grammar" or "largestRule" to
// a heading ("Merged Grammar", "Largest Rule").
func Title(s string) string {
	parts := SplitName(s)
	for i, p := range parts {
		parts[i] = titleCaser.String(strings.ToLower(p))
	}
	return strings.Join(parts, " ")
}

// SplitName splits a name into words at underscores, dashes, spaces and
// lower-to-upper case transitions.
func SplitName(s string) []string {
	var words []string
	start := -1
	prev := rune(0)
	for i, r := range s {
		switch {
		case r == '_' || r == '-' || r == ' ':
			if start >= 0 {
				words = append(words, s[start:i])
				start = -1
			}
		case start < 0:
			start = i
		case unicode.IsUpper(r) && !unicode.IsUpper(prev):
			words = append(words, s[start:i])
			start = i
		}
		prev = r
	}
	if start >= 0 {
		words = append(words, s[start:])
	}
	return words
}
