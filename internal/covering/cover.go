package covering

import (
	"runtime"
	"sync"

	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/geometry"
)

// intersection classifies a cell rectangle against the geometry.
type intersection int

const (
	noIntersection intersection = iota
	intersects
	cellInsideObject
	objectInsideCell
)

// coverObject is the pre-processed geometry the recursion tests cells
// against: triangulated for areas, per-segment for lines.
type coverObject struct {
	kind      feature.GeomKind
	point     geometry.Point
	segments  [][2]geometry.Point
	triangles []geometry.Triangle
	bbox      geometry.BoundingBox
}

func newCoverObject(fb *feature.Builder) coverObject {
	obj := coverObject{kind: fb.GeomKind(), bbox: fb.BoundingBox()}
	switch fb.GeomKind() {
	case feature.GeomPoint:
		obj.point = fb.Point()
	case feature.GeomLine:
		line := fb.Line()
		for i := 0; i+1 < len(line); i++ {
			obj.segments = append(obj.segments, [2]geometry.Point{line[i], line[i+1]})
		}
	case feature.GeomArea:
		obj.triangles = triangulateWithHoles(fb.Outer(), fb.Holes())
	}
	return obj
}

// triangulateWithHoles clips the outer ring and drops triangles whose
// centroid falls into a hole. The result over-approximates near hole
// boundaries, which covering is allowed to do.
func triangulateWithHoles(outer []geometry.Point, holes [][]geometry.Point) []geometry.Triangle {
	tris := geometry.Triangulate(outer)
	if len(holes) == 0 {
		return tris
	}
	kept := tris[:0]
	for _, t := range tris {
		center := geometry.Point{
			Lat: (t.A.Lat + t.B.Lat + t.C.Lat) / 3,
			Lon: (t.A.Lon + t.B.Lon + t.C.Lon) / 3,
		}
		inHole := false
		for _, h := range holes {
			if geometry.PointInRing(center, h) {
				inHole = true
				break
			}
		}
		if !inHole {
			kept = append(kept, t)
		}
	}
	return kept
}

func (obj *coverObject) classify(rect geometry.BoundingBox) intersection {
	if !obj.bbox.Intersects(rect) {
		return noIntersection
	}
	switch obj.kind {
	case feature.GeomPoint:
		if rect.Contains(obj.point) {
			return objectInsideCell
		}
		return noIntersection

	case feature.GeomLine:
		crosses := false
		for _, seg := range obj.segments {
			if geometry.SegmentIntersectsRect(seg[0], seg[1], rect) {
				crosses = true
				break
			}
		}
		if !crosses {
			return noIntersection
		}
		if rect.ContainsBox(obj.bbox) {
			return objectInsideCell
		}
		return intersects

	case feature.GeomArea:
		for _, t := range obj.triangles {
			for _, e := range t.Edges() {
				if edgeCrossesRect(e[0], e[1], rect) {
					if rect.ContainsBox(obj.bbox) {
						return objectInsideCell
					}
					return intersects
				}
			}
		}
		// no edge touches the rectangle: it is fully inside one
		// triangle or fully outside all of them
		center := rect.Center()
		for _, t := range obj.triangles {
			if triangleContains(t, center) {
				return cellInsideObject
			}
		}
		if rect.ContainsBox(obj.bbox) {
			return objectInsideCell
		}
		return noIntersection
	}
	return noIntersection
}

func edgeCrossesRect(a, b geometry.Point, rect geometry.BoundingBox) bool {
	return geometry.SegmentIntersectsRect(a, b, rect)
}

func triangleContains(t geometry.Triangle, p geometry.Point) bool {
	ring := []geometry.Point{t.A, t.B, t.C, t.A}
	return geometry.PointInRing(p, ring)
}

// Cover produces the covering of the feature's geometry at the given
// depth. Guarantees: the union of the result covers the geometry, no two
// result cells are ancestor and descendant, and four full siblings merge
// into their parent.
func Cover(fb *feature.Builder, depth int) []Cell {
	if fb.GeomKind() == feature.GeomNone {
		return nil
	}
	if fb.GeomKind() == feature.GeomPoint {
		return []Cell{CellFromPoint(fb.Point(), depth-1)}
	}
	obj := newCoverObject(fb)
	if obj.kind == feature.GeomArea && len(obj.triangles) == 0 {
		return nil
	}

	// the frontier fans out to workers once it outgrows the cell count
	// of level depth-9
	splitLevel := depth - 9
	if splitLevel < 3 {
		return coverRecursive(&obj, Root(), depth)
	}

	var shallow []Cell
	var frontier []Cell
	collectFrontier(&obj, Root(), splitLevel, depth, &shallow, &frontier)
	if len(frontier) == 0 {
		return mergeSiblings(shallow)
	}

	workers := runtime.NumCPU()
	if workers > len(frontier) {
		workers = len(frontier)
	}
	results := make([][]Cell, len(frontier))
	var wg sync.WaitGroup
	tasks := make(chan int)
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range tasks {
				results[i] = coverRecursive(&obj, frontier[i], depth)
			}
		}()
	}
	for i := range frontier {
		tasks <- i
	}
	close(tasks)
	wg.Wait()

	out := shallow
	for _, r := range results {
		out = append(out, r...)
	}
	// ordering is irrelevant here, the index builder sorts
	return mergeSiblings(out)
}

// collectFrontier walks from the root down to splitLevel, emitting
// resolved cells and gathering the cells that still need refinement.
func collectFrontier(obj *coverObject, cell Cell, splitLevel, depth int, done, frontier *[]Cell) {
	switch obj.classify(cell.Rect()) {
	case noIntersection:
		return
	case cellInsideObject:
		*done = append(*done, cell)
		return
	}
	if cell.Level() >= splitLevel {
		*frontier = append(*frontier, cell)
		return
	}
	for _, child := range cell.Children() {
		collectFrontier(obj, child, splitLevel, depth, done, frontier)
	}
}

func coverRecursive(obj *coverObject, cell Cell, depth int) []Cell {
	rect := cell.Rect()
	switch obj.classify(rect) {
	case noIntersection:
		return nil
	case cellInsideObject:
		return []Cell{cell}
	}

	if cell.Level() >= depth-1 {
		return []Cell{cell}
	}

	// penalty rule: keep the cell unrefined when the empty area it
	// would retain is below the cost of recording the subdivision
	if obj.kind == feature.GeomArea {
		cellArea := rect.Area()
		empty := cellArea - rect.IntersectionArea(obj.bbox)
		if empty < cellArea/4 {
			return []Cell{cell}
		}
	}

	var out []Cell
	childCount := 0
	for _, child := range cell.Children() {
		sub := coverRecursive(obj, child, depth)
		if len(sub) == 1 && sub[0] == child {
			childCount++
		}
		out = append(out, sub...)
	}
	// all four children fully present: merge to the parent
	if childCount == 4 && len(out) == 4 {
		return []Cell{cell}
	}
	return out
}

// mergeSiblings repeatedly replaces complete 4-sibling groups with their
// parent and drops cells covered by an ancestor already in the set.
func mergeSiblings(cells []Cell) []Cell {
	if len(cells) == 0 {
		return cells
	}
	set := make(map[Cell]struct{}, len(cells))
	for _, c := range cells {
		set[c] = struct{}{}
	}

	for {
		merged := false
		for c := range set {
			if c.Level() == 0 {
				continue
			}
			parent := c.Parent()
			children := parent.Children()
			full := true
			for _, ch := range children {
				if _, ok := set[ch]; !ok {
					full = false
					break
				}
			}
			if full {
				for _, ch := range children {
					delete(set, ch)
				}
				set[parent] = struct{}{}
				merged = true
				break
			}
		}
		if !merged {
			break
		}
	}

	out := make([]Cell, 0, len(set))
	for c := range set {
		covered := false
		p := c
		for p.Level() > 0 {
			p = p.Parent()
			if _, ok := set[p]; ok {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, c)
		}
	}
	return out
}
