package covering

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"

	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/geometry"
	"github.com/mapsme/geocore/internal/osmmodel"
)

func squareFeature(t *testing.T, minLat, minLon, maxLat, maxLon float64) *feature.Builder {
	t.Helper()
	fb := feature.NewBuilder(osmmodel.WayID(1), feature.ClassLocality)
	fb.SetName("", "square")
	err := fb.SetArea([]geometry.Point{
		{Lat: minLat, Lon: minLon},
		{Lat: minLat, Lon: maxLon},
		{Lat: maxLat, Lon: maxLon},
		{Lat: maxLat, Lon: minLon},
		{Lat: minLat, Lon: minLon},
	}, nil)
	assert.NoError(t, err)
	return fb
}

func assertNoAncestorPairs(t *testing.T, cells []Cell) {
	t.Helper()
	for i, a := range cells {
		for j, b := range cells {
			if i == j {
				continue
			}
			assert.False(t, a.IsAncestorOf(b), "%v is ancestor of %v", a, b)
		}
	}
}

func TestCoverArea(t *testing.T) {
	fb := squareFeature(t, 10, 10, 11, 11)
	cells := Cover(fb, 12)
	assert.NotEmpty(t, cells)
	assertNoAncestorPairs(t, cells)

	t.Run("interior points are covered", func(t *testing.T) {
		rng := rand.New(rand.NewSource(42))
		for i := 0; i < 200; i++ {
			p := geometry.Point{
				Lat: 10 + rng.Float64(),
				Lon: 10 + rng.Float64(),
			}
			covered := false
			for _, c := range cells {
				if c.Rect().Contains(p) {
					covered = true
					break
				}
			}
			assert.True(t, covered, "point %v escaped the cover", p)
		}
	})
}

func TestCoverLine(t *testing.T) {
	fb := feature.NewBuilder(osmmodel.WayID(2), feature.ClassStreet)
	fb.SetName("", "line")
	line := []geometry.Point{
		{Lat: 1.0, Lon: 2.0},
		{Lat: 1.001, Lon: 2.002},
		{Lat: 1.004, Lon: 2.004},
	}
	assert.NoError(t, fb.SetLine(line))

	cells := Cover(fb, GeoObjectsDepthLevels)
	assert.NotEmpty(t, cells)
	assertNoAncestorPairs(t, cells)

	for _, p := range line {
		covered := false
		for _, c := range cells {
			if c.Rect().Contains(p) {
				covered = true
				break
			}
		}
		assert.True(t, covered, "vertex %v escaped the cover", p)
	}
}

func TestCoverPoint(t *testing.T) {
	fb := feature.NewBuilder(osmmodel.NodeID(3), feature.ClassPOI)
	fb.SetName("", "point")
	fb.SetPoint(geometry.Point{Lat: 55.75, Lon: 37.61})

	cells := Cover(fb, GeoObjectsDepthLevels)
	assert.Len(t, cells, 1)
	assert.Equal(t, GeoObjectsDepthLevels-1, cells[0].Level())
	assert.True(t, cells[0].Rect().Contains(fb.Point()))
}

func TestMergeSiblings(t *testing.T) {
	parent := MakeCell(7, 3, 9)
	children := parent.Children()
	merged := mergeSiblings(children[:])
	assert.Equal(t, []Cell{parent}, merged)

	t.Run("ancestor swallows descendants", func(t *testing.T) {
		mixed := []Cell{parent, children[0], children[2]}
		merged := mergeSiblings(mixed)
		assert.Equal(t, []Cell{parent}, merged)
	})
}
