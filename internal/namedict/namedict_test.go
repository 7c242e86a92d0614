package namedict

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderDedup(t *testing.T) {
	b := NewBuilder()
	p1 := b.AddString("Москва")
	p2 := b.AddString("Москва")
	p3 := b.AddString("Moscow")
	assert.Equal(t, p1, p2)
	assert.NotEqual(t, p1, p3)
	assert.NotEqual(t, Unspecified, p1)

	dict := b.Build()
	assert.Equal(t, "Москва", dict.Get(p1).Main)
	assert.Equal(t, "Moscow", dict.Get(p3).Main)
	assert.Equal(t, MultipleNames{}, dict.Get(Unspecified))
}

func TestMultipleNamesAlt(t *testing.T) {
	mn := NewMultipleNames("Арбат", "Arbat", "Арбатская")
	mn.AddAlt("Arbat")  // duplicate
	mn.AddAlt("Арбат")  // equals main
	mn.AddAlt("")       // empty
	assert.Equal(t, "Арбат", mn.Main)
	assert.Equal(t, []string{"Arbat", "Арбатская"}, mn.Alt)

	var visited []string
	mn.ForEach(func(name string) { visited = append(visited, name) })
	assert.Equal(t, []string{"Арбат", "Arbat", "Арбатская"}, visited)
}

func TestDistinctAltSetsAreDistinctPositions(t *testing.T) {
	b := NewBuilder()
	p1 := b.Add(NewMultipleNames("X", "Y"))
	p2 := b.Add(NewMultipleNames("X", "Z"))
	p3 := b.Add(NewMultipleNames("X", "Y"))
	assert.NotEqual(t, p1, p2)
	assert.Equal(t, p1, p3)
}
