// Package feature holds the classified, geometry-carrying object handed
// between pipeline stages and the binary codec for its .tmp files.
package feature

import (
	"fmt"

	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/geometry"
	"github.com/mapsme/geocore/internal/osmmodel"
)

// Class is the classified-type bitfield.
type Class uint32

const (
	ClassCountry Class = 1 << iota
	ClassRegion
	ClassSubregion
	ClassLocality
	ClassSuburb
	ClassSublocality
	ClassStreet
	ClassBuilding
	ClassPOI
	ClassPlacePoint
	ClassSquare
)

func (c Class) Has(flag Class) bool { return c&flag != 0 }

// IsAdministrative reports whether the class marks an admin polygon.
func (c Class) IsAdministrative() bool {
	return c&(ClassCountry|ClassRegion|ClassSubregion|ClassLocality|ClassSuburb|ClassSublocality) != 0
}

// GeomKind discriminates the three geometry shapes.
type GeomKind uint8

const (
	GeomNone GeomKind = iota
	GeomPoint
	GeomLine
	GeomArea
)

// DefaultLocale is the locale code every name table must populate.
const DefaultLocale = "default"

// Builder is the canonical post-classification object. Geometry setters
// enforce the shape invariants; a violated invariant is Warnable (the
// record is skipped, the pipeline continues).
type Builder struct {
	ID    osmmodel.ObjectID
	Class Class

	// Names maps locale code to name; DefaultLocale is required before
	// the builder is written out.
	Names map[string]string

	Street      string
	HouseNumber string

	// Region-building inputs carried through from tags.
	AdminLevel int
	PlaceKind  string
	ISOCode    string
	LabelOSMID int64
	Rank       uint8
	Population uint64

	geomKind GeomKind
	point    geometry.Point
	line     []geometry.Point
	outer    []geometry.Point
	holes    [][]geometry.Point
}

func NewBuilder(id osmmodel.ObjectID, class Class) *Builder {
	return &Builder{
		ID:    id,
		Class: class,
		Names: make(map[string]string),
	}
}

// SetName records a localised name; locale "" means DefaultLocale.
func (fb *Builder) SetName(locale, name string) {
	if locale == "" {
		locale = DefaultLocale
	}
	fb.Names[locale] = name
}

// Name returns the default-locale name.
func (fb *Builder) Name() string { return fb.Names[DefaultLocale] }

func (fb *Builder) GeomKind() GeomKind { return fb.geomKind }

func (fb *Builder) SetPoint(p geometry.Point) {
	fb.geomKind = GeomPoint
	fb.point = p
}

func (fb *Builder) Point() geometry.Point { return fb.point }

// SetLine requires at least two distinct points.
func (fb *Builder) SetLine(line []geometry.Point) error {
	distinct := false
	for i := 1; i < len(line); i++ {
		if line[i] != line[0] {
			distinct = true
			break
		}
	}
	if len(line) < 2 || !distinct {
		return errs.Warnf(nil, errs.ErrInvariantViolation,
			"line geometry of %s needs >=2 distinct points, got %d", fb.ID, len(line))
	}
	fb.geomKind = GeomLine
	fb.line = line
	return nil
}

func (fb *Builder) Line() []geometry.Point { return fb.line }

// SetArea requires a closed outer ring (first == last) and closed holes.
func (fb *Builder) SetArea(outer []geometry.Point, holes [][]geometry.Point) error {
	if err := checkClosed(fb.ID, outer); err != nil {
		return err
	}
	for _, h := range holes {
		if err := checkClosed(fb.ID, h); err != nil {
			return err
		}
	}
	fb.geomKind = GeomArea
	fb.outer = outer
	fb.holes = holes
	return nil
}

func checkClosed(id osmmodel.ObjectID, ring []geometry.Point) error {
	if len(ring) < 4 || ring[0] != ring[len(ring)-1] {
		return errs.Warnf(nil, errs.ErrInvariantViolation,
			"area ring of %s is not closed (len %d)", id, len(ring))
	}
	return nil
}

func (fb *Builder) Outer() []geometry.Point   { return fb.outer }
func (fb *Builder) Holes() [][]geometry.Point { return fb.holes }

// BoundingBox covers whatever geometry the builder carries.
func (fb *Builder) BoundingBox() geometry.BoundingBox {
	switch fb.geomKind {
	case GeomPoint:
		return geometry.NewBoundingBox([]geometry.Point{fb.point})
	case GeomLine:
		return geometry.NewBoundingBox(fb.line)
	case GeomArea:
		return geometry.NewBoundingBox(fb.outer)
	default:
		return geometry.EmptyBoundingBox()
	}
}

// Center is the pin point: the point itself, the line's midpoint vertex,
// or the area centroid.
func (fb *Builder) Center() geometry.Point {
	switch fb.geomKind {
	case GeomPoint:
		return fb.point
	case GeomLine:
		return fb.line[len(fb.line)/2]
	case GeomArea:
		return geometry.Centroid(fb.outer)
	default:
		return geometry.Point{}
	}
}

// Validate is the pre-write check: a default name or an address must be
// present, and geometry must have been set.
func (fb *Builder) Validate() error {
	if fb.geomKind == GeomNone {
		return errs.Warnf(nil, errs.ErrInvariantViolation, "feature %s has no geometry", fb.ID)
	}
	if fb.Name() == "" && fb.HouseNumber == "" {
		return errs.Warnf(nil, errs.ErrInvariantViolation, "feature %s has neither name nor housenumber", fb.ID)
	}
	return nil
}

func (fb *Builder) String() string {
	return fmt.Sprintf("feature{%s %q class=%#x}", fb.ID, fb.Name(), uint32(fb.Class))
}
