package intervalindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mapsme/geocore/internal/covering"
	"github.com/mapsme/geocore/internal/geometry"
)

func buildAndOpen(t *testing.T, pairs []CellValuePair) *Reader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.index")
	assert.NoError(t, Build(path, pairs))
	r, err := Open(path)
	assert.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func valuesAtKey(t *testing.T, r *Reader, key uint64) []uint64 {
	t.Helper()
	var out []uint64
	assert.NoError(t, r.ForEachAtKey(key, func(v uint64) {
		out = append(out, v)
	}))
	return out
}

func TestExactKeyLookup(t *testing.T) {
	a := covering.MakeCell(10, 20, 15)
	b := covering.MakeCell(11, 20, 15)
	pairs := []CellValuePair{
		{Cell: a.Code(), Value: 100},
		{Cell: a.Code(), Value: 7},
		{Cell: b.Code(), Value: 55},
	}
	r := buildAndOpen(t, pairs)

	assert.ElementsMatch(t, []uint64{7, 100}, valuesAtKey(t, r, a.Code()))
	assert.Equal(t, []uint64{55}, valuesAtKey(t, r, b.Code()))
	assert.Empty(t, valuesAtKey(t, r, covering.MakeCell(12, 20, 15).Code()))
}

// every (cell, id) pair must be found by a point query inside the cell
func TestPointQueryProperty(t *testing.T) {
	points := []geometry.Point{
		{Lat: 1.0, Lon: 2.0},
		{Lat: 55.7, Lon: 37.6},
		{Lat: -10.0, Lon: 100.0},
	}
	var pairs []CellValuePair
	for i, p := range points {
		// store at several levels to exercise the ancestor walk
		for _, level := range []int{5, 12, covering.GeoObjectsDepthLevels - 1} {
			pairs = append(pairs, CellValuePair{
				Cell:  covering.CellFromPoint(p, level).Code(),
				Value: uint64(i*10 + level),
			})
		}
	}
	r := buildAndOpen(t, pairs)

	for i, p := range points {
		leaf := covering.CellFromPoint(p, covering.GeoObjectsDepthLevels-1)
		var found []uint64
		for _, key := range AncestorKeys(leaf.Code()) {
			found = append(found, valuesAtKey(t, r, key)...)
		}
		for _, level := range []int{5, 12, covering.GeoObjectsDepthLevels - 1} {
			assert.Contains(t, found, uint64(i*10+level),
				"point %v missed its level-%d cell", p, level)
		}
	}
}

func TestRangeQuery(t *testing.T) {
	cells := []covering.Cell{
		covering.MakeCell(1, 1, 10),
		covering.MakeCell(2, 1, 10),
		covering.MakeCell(900, 900, 10),
	}
	pairs := make([]CellValuePair, len(cells))
	for i, c := range cells {
		pairs[i] = CellValuePair{Cell: c.Code(), Value: uint64(i)}
	}
	r := buildAndOpen(t, pairs)

	var got []uint64
	err := r.ForEachInRange(0, ^uint64(0), func(cell, value uint64) {
		got = append(got, value)
	})
	assert.NoError(t, err)
	assert.ElementsMatch(t, []uint64{0, 1, 2}, got)

	got = got[:0]
	err = r.ForEachInRange(cells[0].Code(), cells[1].Code(), func(cell, value uint64) {
		got = append(got, value)
	})
	assert.NoError(t, err)
	assert.ElementsMatch(t, []uint64{0, 1}, got)
}

func TestHeaderVersion(t *testing.T) {
	r := buildAndOpen(t, []CellValuePair{
		{Cell: covering.MakeCell(3, 3, 8).Code(), Value: 1},
	})
	assert.Equal(t, byte(VersionV1), r.version)
}

func TestAncestorKeys(t *testing.T) {
	leaf := covering.CellFromPoint(geometry.Point{Lat: 10.5, Lon: 10.5}, 20)
	keys := AncestorKeys(leaf.Code())
	assert.Len(t, keys, 21) // levels 20 down to 0
	assert.Equal(t, leaf.Code(), keys[0])
	for i, key := range keys {
		cell := covering.Cell(key)
		assert.Equal(t, 20-i, cell.Level())
		assert.True(t, cell.IsAncestorOf(leaf))
	}
}
