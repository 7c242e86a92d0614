// Package covering turns arbitrary geometry into a bounded set of
// quadtree cells and defines the cell code the interval index is keyed
// by.
package covering

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/mapsme/geocore/internal/geometry"
)

const (
	// MaxLevel is the deepest representable level; a cell code uses two
	// path bits per level plus one marker bit.
	MaxLevel = 30

	// RegionsDepthLevels and GeoObjectsDepthLevels are the maximum
	// useful depths of the two indices.
	RegionsDepthLevels    = 17
	GeoObjectsDepthLevels = 21
)

// Cell packs (x, y, level) into one monotone 64-bit code: the z-order
// path from the root in the most significant bits, then a single marker
// bit, then zeros. Ancestor-of is a prefix relation on the high bits and
// numeric ascending order is z-order traversal.
type Cell uint64

// MakeCell builds the cell at (x, y) on the given level; x and y must be
// below 1<<level.
func MakeCell(x, y uint32, level int) Cell {
	var path uint64
	for i := level - 1; i >= 0; i-- {
		path = path<<2 | uint64(y>>uint(i)&1)<<1 | uint64(x>>uint(i)&1)
	}
	shift := uint(2*(MaxLevel-level) + 1)
	return Cell(path<<shift | 1<<(shift-1))
}

// Root is the level-0 cell covering everything.
func Root() Cell { return MakeCell(0, 0, 0) }

func (c Cell) lsb() uint64 { return uint64(c) & (^uint64(c) + 1) }

// Level recovers the subdivision level from the marker bit.
func (c Cell) Level() int {
	return MaxLevel - bits.TrailingZeros64(uint64(c))/2
}

// XY unpacks the grid position on the cell's own level.
func (c Cell) XY() (x, y uint32) {
	level := c.Level()
	path := uint64(c) >> uint(2*(MaxLevel-level)+1)
	for i := 0; i < level; i++ {
		x |= uint32(path>>uint(2*i)&1) << uint(i)
		y |= uint32(path>>uint(2*i+1)&1) << uint(i)
	}
	return x, y
}

// Parent returns the enclosing cell one level up. The root is its own
// parent.
func (c Cell) Parent() Cell {
	level := c.Level()
	if level == 0 {
		return c
	}
	shift := uint(2*(MaxLevel-level) + 1)
	newShift := shift + 2
	path := uint64(c) >> newShift
	return Cell(path<<newShift | 1<<(newShift-1))
}

// Children returns the four sub-cells in z-order.
func (c Cell) Children() [4]Cell {
	level := c.Level()
	shift := uint(2*(MaxLevel-level) + 1)
	path := uint64(c) >> shift
	childShift := shift - 2
	var out [4]Cell
	for i := uint64(0); i < 4; i++ {
		out[i] = Cell((path<<2|i)<<childShift | 1<<(childShift-1))
	}
	return out
}

// IsAncestorOf reports whether other lies strictly or loosely inside c
// (a cell is its own ancestor).
func (c Cell) IsAncestorOf(other Cell) bool {
	lsb := c.lsb()
	return uint64(other) >= uint64(c)-lsb+1 && uint64(other) <= uint64(c)+lsb-1
}

// Rect returns the cell's rectangle in degrees.
func (c Cell) Rect() geometry.BoundingBox {
	x, y := c.XY()
	level := c.Level()
	size := 1 << uint(level)
	latStep := 180.0 / float64(size)
	lonStep := 360.0 / float64(size)
	return geometry.BoundingBox{
		MinLat: -90 + float64(y)*latStep,
		MaxLat: -90 + float64(y+1)*latStep,
		MinLon: -180 + float64(x)*lonStep,
		MaxLon: -180 + float64(x+1)*lonStep,
	}
}

// CellFromPoint returns the level-cell containing the point.
func CellFromPoint(p geometry.Point, level int) Cell {
	size := float64(uint64(1) << uint(level))
	x := uint32(math.Min(size-1, math.Max(0, (p.Lon+180)/360*size)))
	y := uint32(math.Min(size-1, math.Max(0, (p.Lat+90)/180*size)))
	return MakeCell(x, y, level)
}

func (c Cell) String() string {
	x, y := c.XY()
	return fmt.Sprintf("cell{%d/%d l%d}", x, y, c.Level())
}

// Code exposes the raw monotone code the interval index sorts by.
func (c Cell) Code() uint64 { return uint64(c) }
