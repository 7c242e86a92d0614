package tokenize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "avila", Normalize("Ávila"))
	assert.Equal(t, "moscow", Normalize("MOSCOW"))
	assert.Equal(t, "зорге", Normalize("Зорге"))
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"arbat", "street"}, Tokenize("Arbat Street"))
	assert.Equal(t, []string{"москва", "зорге", "7к2"}, Tokenize("Москва, Зорге 7к2"))
	assert.Equal(t, []string{"new", "arbat", "street"}, Tokenize("  New-Arbat   Street "))
	assert.Empty(t, Tokenize("  ...  "))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "arbat street", Key("Arbat  Street"))
	assert.Equal(t, Key("ARBAT STREET"), Key("arbat street"))
}
