package covering

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mapsme/geocore/internal/geometry"
)

func TestCellPacking(t *testing.T) {
	t.Run("xy level roundtrip", func(t *testing.T) {
		cases := []struct {
			x, y  uint32
			level int
		}{
			{0, 0, 0},
			{0, 0, 1},
			{1, 1, 1},
			{5, 9, 4},
			{1023, 511, 10},
			{(1 << 17) - 1, 12345, 17},
			{(1 << 21) - 1, (1 << 21) - 1, 21},
		}
		for _, c := range cases {
			cell := MakeCell(c.x, c.y, c.level)
			x, y := cell.XY()
			assert.Equal(t, c.x, x)
			assert.Equal(t, c.y, y)
			assert.Equal(t, c.level, cell.Level())
		}
	})

	t.Run("parent child relations", func(t *testing.T) {
		cell := MakeCell(21, 35, 7)
		for i, child := range cell.Children() {
			assert.Equal(t, cell, child.Parent(), "child %d", i)
			assert.Equal(t, 8, child.Level())
			assert.True(t, cell.IsAncestorOf(child))
			assert.False(t, child.IsAncestorOf(cell))
		}
	})

	t.Run("z-order is numeric ascending", func(t *testing.T) {
		children := MakeCell(3, 2, 3).Children()
		for i := 1; i < len(children); i++ {
			assert.Less(t, children[i-1].Code(), children[i].Code())
		}
	})

	t.Run("ancestor is prefix relation", func(t *testing.T) {
		cell := MakeCell(100, 200, 12)
		anc := cell
		for anc.Level() > 0 {
			anc = anc.Parent()
			assert.True(t, anc.IsAncestorOf(cell))
		}
		other := MakeCell(101, 200, 12)
		assert.False(t, other.IsAncestorOf(cell))
		assert.False(t, cell.IsAncestorOf(other))
	})

	t.Run("from point lands inside rect", func(t *testing.T) {
		points := []geometry.Point{
			{Lat: 0, Lon: 0},
			{Lat: 55.75, Lon: 37.61},
			{Lat: -33.85, Lon: 151.2},
			{Lat: 89.9, Lon: -179.9},
		}
		for _, p := range points {
			cell := CellFromPoint(p, 17)
			assert.True(t, cell.Rect().Contains(p), "point %v not in %v", p, cell)
			assert.Equal(t, 17, cell.Level())
		}
	})
}
