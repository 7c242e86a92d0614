package geometry

// Triangle is one triangle of a triangulated area ring.
type Triangle struct {
	A, B, C Point
}

// Edges yields the three edges as point pairs.
func (t Triangle) Edges() [3][2]Point {
	return [3][2]Point{{t.A, t.B}, {t.B, t.C}, {t.C, t.A}}
}

// Triangulate ear-clips a closed ring (first == last) into triangles.
// Degenerate input (collinear ears, self-touching rings) falls back to a
// fan from the first vertex so the covering engine always gets a
// conservative over-approximation rather than nothing.
func Triangulate(ring []Point) []Triangle {
	n := len(ring)
	if n > 1 && ring[0] == ring[n-1] {
		n--
	}
	if n < 3 {
		return nil
	}
	verts := make([]Point, n)
	copy(verts, ring[:n])

	// ear clipping wants a consistent winding
	if signedRingArea(verts) < 0 {
		for i, j := 0, len(verts)-1; i < j; i, j = i+1, j-1 {
			verts[i], verts[j] = verts[j], verts[i]
		}
	}

	tris := make([]Triangle, 0, n-2)
	guard := 0
	for len(verts) > 3 {
		clipped := false
		for i := 0; i < len(verts); i++ {
			prev := verts[(i+len(verts)-1)%len(verts)]
			curr := verts[i]
			next := verts[(i+1)%len(verts)]
			if !isEar(prev, curr, next, verts) {
				continue
			}
			tris = append(tris, Triangle{A: prev, B: curr, C: next})
			verts = append(verts[:i], verts[i+1:]...)
			clipped = true
			break
		}
		guard++
		if !clipped || guard > 4*n {
			return fanTriangulate(ring[:n])
		}
	}
	tris = append(tris, Triangle{A: verts[0], B: verts[1], C: verts[2]})
	return tris
}

func fanTriangulate(verts []Point) []Triangle {
	tris := make([]Triangle, 0, len(verts)-2)
	for i := 1; i+1 < len(verts); i++ {
		tris = append(tris, Triangle{A: verts[0], B: verts[i], C: verts[i+1]})
	}
	return tris
}

func isEar(a, b, c Point, verts []Point) bool {
	if direction(a, b, c) <= 0 {
		return false
	}
	for _, p := range verts {
		if p == a || p == b || p == c {
			continue
		}
		if pointInTriangle(p, a, b, c) {
			return false
		}
	}
	return true
}

func pointInTriangle(p, a, b, c Point) bool {
	d1 := direction(a, b, p)
	d2 := direction(b, c, p)
	d3 := direction(c, a, p)
	hasNeg := d1 < 0 || d2 < 0 || d3 < 0
	hasPos := d1 > 0 || d2 > 0 || d3 > 0
	return !(hasNeg && hasPos)
}

func signedRingArea(verts []Point) float64 {
	sum := 0.0
	for i := 0; i < len(verts); i++ {
		a := verts[i]
		b := verts[(i+1)%len(verts)]
		sum += a.Lon*b.Lat - b.Lon*a.Lat
	}
	return sum / 2
}
