package geocoder

import (
	"unicode"

	"github.com/mapsme/geocore/internal/tokenize"
)

// MatchResult is the outcome of fuzzily comparing a query sub-range
// against a candidate house number.
type MatchResult struct {
	MatchedTokensCount            int
	QueryMismatchedTokensCount    int
	HouseNumberMismatchedTokensCount int
}

// Matched reports whether the comparison found any common ground.
func (m MatchResult) Matched() bool { return m.MatchedTokensCount > 0 }

// Exact reports a mismatch-free match.
func (m MatchResult) Exact() bool {
	return m.Matched() && m.QueryMismatchedTokensCount == 0 && m.HouseNumberMismatchedTokensCount == 0
}

// LooksLikeHouseNumber decides whether a token sub-range can be a house
// number: short, digit-led, with only compact letter or digit groups.
func LooksLikeHouseNumber(tokens []string) bool {
	if len(tokens) == 0 || len(tokens) > 4 {
		return false
	}
	digitLed := false
	for _, tok := range tokens {
		sub := splitHouseNumberToken(tok)
		if len(sub) == 0 {
			return false
		}
		for _, s := range sub {
			if len([]rune(s)) > 4 {
				return false
			}
		}
		if unicode.IsDigit([]rune(tok)[0]) {
			digitLed = true
		}
	}
	return digitLed
}

// looksLikeHouseNumberToken flags the individual tokens the result
// post-filter must see covered.
func looksLikeHouseNumberToken(tok string) bool {
	for _, r := range tok {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// splitHouseNumberToken breaks a token into house-number units: a split
// happens where a letter follows a digit, so "7к2" becomes ["7", "к2"]
// with the unit designator and its number kept together.
func splitHouseNumberToken(tok string) []string {
	runes := []rune(tok)
	if len(runes) == 0 {
		return nil
	}
	var out []string
	start := 0
	for i := 1; i < len(runes); i++ {
		if unicode.IsLetter(runes[i]) && unicode.IsDigit(runes[i-1]) {
			out = append(out, string(runes[start:i]))
			start = i
		}
	}
	return append(out, string(runes[start:]))
}

// houseNumberSubTokens normalises and splits a full house number string.
func houseNumberSubTokens(s string) []string {
	var out []string
	for _, tok := range tokenize.Tokenize(s) {
		out = append(out, splitHouseNumberToken(tok)...)
	}
	return out
}

// MatchHouseNumber fuzzily compares the query sub-range with the
// candidate's house number. Both sides decompose into sub-tokens split
// where a letter follows a digit ("7к2" gives "7", "к2"); matching is
// order-respecting greedy alignment, counting
// matched, query-only and candidate-only sub-tokens.
func MatchHouseNumber(queryTokens []string, houseNumber string) MatchResult {
	var query []string
	for _, tok := range queryTokens {
		query = append(query, splitHouseNumberToken(tokenize.Normalize(tok))...)
	}
	candidate := houseNumberSubTokens(houseNumber)

	var res MatchResult
	qi, ci := 0, 0
	for qi < len(query) && ci < len(candidate) {
		if query[qi] == candidate[ci] {
			res.MatchedTokensCount++
			qi++
			ci++
			continue
		}
		// skip the side whose token finds a later match, preferring to
		// charge the candidate
		if indexOf(candidate[ci+1:], query[qi]) >= 0 {
			res.HouseNumberMismatchedTokensCount++
			ci++
			continue
		}
		if indexOf(query[qi+1:], candidate[ci]) >= 0 {
			res.QueryMismatchedTokensCount++
			qi++
			continue
		}
		res.QueryMismatchedTokensCount++
		res.HouseNumberMismatchedTokensCount++
		qi++
		ci++
	}
	res.QueryMismatchedTokensCount += len(query) - qi
	res.HouseNumberMismatchedTokensCount += len(candidate) - ci
	return res
}

func indexOf(tokens []string, target string) int {
	for i, t := range tokens {
		if t == target {
			return i
		}
	}
	return -1
}
