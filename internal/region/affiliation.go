package region

import (
	"go.uber.org/zap"

	"github.com/mapsme/geocore/internal/geometry"
	"github.com/mapsme/geocore/internal/logger"
)

// areaEpsilon absorbs polygon-edge noise when comparing region areas.
const areaEpsilon = 0.001

// sampleLimit bounds the ring points tested for polygon containment.
const sampleLimit = 16

// regionShape caches the derived geometry the affiliation rule needs.
type regionShape struct {
	outer []geometry.Point
	bbox  geometry.BoundingBox
	area  float64
}

func shapeOf(n *Node) regionShape {
	return regionShape{
		outer: n.Feature.Outer(),
		bbox:  n.bbox,
		area:  n.area,
	}
}

// containsShape reports whether l geometrically contains r: bbox
// containment plus every sampled outer-ring point of r inside l's ring.
func containsShape(l, r regionShape) bool {
	if !l.bbox.ContainsBox(r.bbox) {
		return false
	}
	step := 1
	if len(r.outer) > sampleLimit {
		step = len(r.outer) / sampleLimit
	}
	for i := 0; i < len(r.outer); i += step {
		if !geometry.PointInRing(r.outer[i], l.outer) {
			return false
		}
	}
	return true
}

// overlapFraction is the bounding-rectangle overlap relative to the
// smaller region.
func overlapFraction(l, r regionShape) float64 {
	smaller := l.area
	if r.area < smaller {
		smaller = r.area
	}
	if smaller == 0 {
		return 0
	}
	return l.bbox.IntersectionArea(r.bbox) / smaller
}

// Affiliate decides the parent/child relation between two regions:
// +1 when l is the parent of r, -1 when r is the parent of l, 0 when the
// two are unrelated.
func Affiliate(l, r *Node, spec Specifier) int {
	ls, rs := shapeOf(l), shapeOf(r)

	if rs.area*(1+areaEpsilon) < ls.area && containsShape(ls, rs) {
		return +1
	}
	if ls.area*(1+areaEpsilon) < rs.area && containsShape(rs, ls) {
		return -1
	}
	if overlapFraction(ls, rs) < 0.5 {
		return 0
	}
	if ls.area > 2*rs.area || rs.area > 2*ls.area {
		logger.Get().Warn("overlapping regions resolved by area",
			zap.String("left", l.Name()), zap.String("right", r.Name()))
		if ls.area > rs.area {
			return +1
		}
		return -1
	}
	return spec.Affiliate(l, r)
}
