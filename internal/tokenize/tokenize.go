// Package tokenize normalises and splits names and queries the same way
// everywhere: street aggregation keys, the geocoder's token index, and
// query parsing must agree on token identity.
package tokenize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fold strips diacritics: NFKD decomposition, drop combining marks,
// recompose.
var fold = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lower-cases and folds a string without splitting it.
func Normalize(s string) string {
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Tokenize splits a normalised string into word tokens. Letters and
// digits stick together inside a token ("7к2" stays one token); every
// other rune separates.
func Tokenize(s string) []string {
	return strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Key canonicalises a name for exact matching: tokens re-joined with
// single spaces.
func Key(s string) string {
	return strings.Join(Tokenize(s), " ")
}
