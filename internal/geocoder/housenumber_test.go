package geocoder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikeHouseNumber(t *testing.T) {
	cases := []struct {
		tokens []string
		want   bool
	}{
		{[]string{"7"}, true},
		{[]string{"7к2"}, true},
		{[]string{"7", "к2"}, true},
		{[]string{"12а"}, true},
		{[]string{"улица"}, false},
		{[]string{"main"}, false},
		{[]string{}, false},
		{[]string{"1", "2", "3", "4", "5"}, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, LooksLikeHouseNumber(c.tokens), "%v", c.tokens)
	}
}

func TestSplitHouseNumberToken(t *testing.T) {
	assert.Equal(t, []string{"7"}, splitHouseNumberToken("7"))
	assert.Equal(t, []string{"7", "к2"}, splitHouseNumberToken("7к2"))
	assert.Equal(t, []string{"7", "а"}, splitHouseNumberToken("7а"))
	assert.Equal(t, []string{"к2"}, splitHouseNumberToken("к2"))
}

func TestMatchHouseNumber(t *testing.T) {
	t.Run("exact", func(t *testing.T) {
		m := MatchHouseNumber([]string{"7к2"}, "7 к2")
		assert.True(t, m.Exact())
		assert.Equal(t, 2, m.MatchedTokensCount)
	})

	t.Run("extra candidate units", func(t *testing.T) {
		m := MatchHouseNumber([]string{"7к2"}, "7 к2 с3")
		assert.True(t, m.Matched())
		assert.Equal(t, 2, m.MatchedTokensCount)
		assert.Equal(t, 0, m.QueryMismatchedTokensCount)
		assert.Equal(t, 1, m.HouseNumberMismatchedTokensCount)
	})

	t.Run("missing query units", func(t *testing.T) {
		m := MatchHouseNumber([]string{"7к2"}, "7")
		assert.True(t, m.Matched())
		assert.Equal(t, 1, m.MatchedTokensCount)
		assert.Equal(t, 1, m.QueryMismatchedTokensCount)
	})

	t.Run("disjoint", func(t *testing.T) {
		m := MatchHouseNumber([]string{"10"}, "5")
		assert.False(t, m.Matched())
	})
}
