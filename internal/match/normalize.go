// Package match compares source track metadata with library songs.
package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// cutMarkers end the meaningful part of a title or artist string.
// Everything from the first marker on is a version or credit suffix.
var cutMarkers = []string{"(", "[", " - "}

// creditTokens end the meaningful part when they appear as a whole word.
var creditTokens = map[string]bool{
	"feat":      true,
	"ft":        true,
	"featuring": true,
}

// Fold lower-cases s and strips diacritics ("Beyoncé" -> "beyonce").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Normalize returns the comparison tokens of text.
func Normalize(text string) []string {
	s := Fold(text)

	if cut := cutAtMarker(s); strings.TrimSpace(cut) != "" {
		s = cut
	}

	var tokens []string
	for _, field := range strings.Fields(s) {
		tok := stripPunctuation(field)
		if creditTokens[tok] && len(tokens) > 0 {
			break
		}
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func cutAtMarker(s string) string {
	end := len(s)
	for _, m := range cutMarkers {
		if i := strings.Index(s, m); i >= 0 && i < end {
			end = i
		}
	}
	return s[:end]
}

func stripPunctuation(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
