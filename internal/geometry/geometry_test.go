package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func square(minLat, minLon, maxLat, maxLon float64) []Point {
	return []Point{
		{minLat, minLon}, {minLat, maxLon}, {maxLat, maxLon},
		{maxLat, minLon}, {minLat, minLon},
	}
}

func TestPointInRing(t *testing.T) {
	ring := square(0, 0, 10, 10)
	assert.True(t, PointInRing(Point{5, 5}, ring))
	assert.True(t, PointInRing(Point{0, 5}, ring), "boundary counts as inside")
	assert.False(t, PointInRing(Point{15, 5}, ring))
	assert.False(t, PointInRing(Point{-1, -1}, ring))
}

func TestRingArea(t *testing.T) {
	assert.InDelta(t, 100.0, RingArea(square(0, 0, 10, 10)), 1e-9)
	assert.Equal(t, 0.0, RingArea(nil))
}

func TestSegmentIntersectsRect(t *testing.T) {
	rect := BoundingBox{MinLat: 0, MinLon: 0, MaxLat: 1, MaxLon: 1}
	assert.True(t, SegmentIntersectsRect(Point{0.5, 0.5}, Point{2, 2}, rect), "endpoint inside")
	assert.True(t, SegmentIntersectsRect(Point{-1, 0.5}, Point{2, 0.5}, rect), "crosses through")
	assert.False(t, SegmentIntersectsRect(Point{2, 2}, Point{3, 3}, rect))
}

func TestBoundingBox(t *testing.T) {
	bb := NewBoundingBox(square(0, 0, 10, 10))
	assert.True(t, bb.Contains(Point{5, 5}))
	assert.True(t, bb.ContainsBox(NewBoundingBox(square(1, 1, 2, 2))))
	assert.False(t, bb.ContainsBox(NewBoundingBox(square(5, 5, 11, 11))))
	assert.InDelta(t, 100.0, bb.Area(), 1e-9)
	assert.InDelta(t, 25.0, bb.IntersectionArea(NewBoundingBox(square(5, 5, 15, 15))), 1e-9)
	assert.False(t, EmptyBoundingBox().IsValid())
}

func TestTriangulate(t *testing.T) {
	t.Run("square yields two triangles", func(t *testing.T) {
		tris := Triangulate(square(0, 0, 1, 1))
		assert.Len(t, tris, 2)
	})

	t.Run("concave ring", func(t *testing.T) {
		ring := []Point{
			{0, 0}, {0, 4}, {4, 4}, {4, 0}, {2, 2}, {0, 0},
		}
		tris := Triangulate(ring)
		assert.Len(t, tris, 3)

		// triangulation must cover the ring's interior
		inside := Point{3, 3}
		covered := false
		for _, tr := range tris {
			if pointInTriangle(inside, tr.A, tr.B, tr.C) {
				covered = true
			}
		}
		assert.True(t, covered)
	})

	t.Run("degenerate input", func(t *testing.T) {
		assert.Nil(t, Triangulate([]Point{{0, 0}, {1, 1}}))
	})
}
