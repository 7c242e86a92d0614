package region

import (
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/geometry"
	"github.com/mapsme/geocore/internal/hierarchy"
)

// Builder assembles the region forest from classified admin polygons
// and the place points keyed by OSM id.
type Builder struct {
	polygons    []*feature.Builder
	placePoints map[int64]*feature.Builder
	workers     int
}

func NewBuilder(polygons []*feature.Builder, placePoints []*feature.Builder) *Builder {
	points := make(map[int64]*feature.Builder, len(placePoints))
	for _, p := range placePoints {
		points[int64(p.ID.Serial())] = p
	}
	return &Builder{
		polygons:    polygons,
		placePoints: points,
		workers:     runtime.NumCPU(),
	}
}

// labelled pairs a polygon with its consumed place-point label.
type labelled struct {
	polygon *feature.Builder
	label   *feature.Builder
	area    float64
	bbox    geometry.BoundingBox
}

// Build runs the full hierarchy pipeline and returns one tree per
// country outer.
func (b *Builder) Build() ([]*Tree, error) {
	regions := b.attachLabels()

	// descending area, ties by id, so the walk below can scan
	// back-to-front for smallest-first
	sort.Slice(regions, func(i, j int) bool {
		if regions[i].area != regions[j].area {
			return regions[i].area > regions[j].area
		}
		return regions[i].polygon.ID < regions[j].polygon.ID
	})

	var countries, rest []labelled
	for _, r := range regions {
		if isCountryOuter(r) {
			countries = append(countries, r)
		} else {
			rest = append(rest, r)
		}
	}

	trees := make([]*Tree, len(countries))
	group := new(errgroup.Group)
	group.SetLimit(b.workers)
	for i := range countries {
		i := i
		group.Go(func() error {
			trees[i] = b.buildCountry(countries[i], rest)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	b.integratePlacePoints(trees)
	for _, t := range trees {
		markAdminSuburbs(t)
		iso := t.Nodes[t.Root].Feature.ISOCode
		SpecifierFor(iso).AdjustLevels(t)
	}
	return trees, nil
}

// attachLabels moves each declared label point into its polygon. A
// place=country point never labels a polygon whose admin level is not 2.
func (b *Builder) attachLabels() []labelled {
	out := make([]labelled, 0, len(b.polygons))
	for _, p := range b.polygons {
		entry := labelled{
			polygon: p,
			area:    geometry.RingArea(p.Outer()),
			bbox:    p.BoundingBox(),
		}
		if p.LabelOSMID != 0 {
			if point, ok := b.placePoints[p.LabelOSMID]; ok {
				if point.PlaceKind == "country" && p.AdminLevel != 2 {
					// keep the point for later integration
				} else {
					entry.label = point
					delete(b.placePoints, p.LabelOSMID)
				}
			}
		}
		out = append(out, entry)
	}
	return out
}

func isCountryOuter(r labelled) bool {
	kind := r.polygon.PlaceKind
	if r.label != nil && r.label.PlaceKind != "" {
		kind = r.label.PlaceKind
	}
	if kind == "country" || r.polygon.Class.Has(feature.ClassCountry) {
		return true
	}
	return r.polygon.AdminLevel == 2 && kind == ""
}

// buildCountry forms one country's tree: candidate selection by bbox
// and sovereign code, then smallest-to-largest parent placement.
func (b *Builder) buildCountry(country labelled, rest []labelled) *Tree {
	tree := &Tree{}
	spec := SpecifierFor(country.polygon.ISOCode)
	sovereign := SovereignOf(country.polygon.ISOCode)

	root := b.newNode(tree, country)
	tree.Root = root
	tree.Nodes[root].Type = hierarchy.Country

	// rest is sorted by descending area, so index order is
	// largest-first within the candidates too
	var candidates []int
	for _, r := range rest {
		if !country.bbox.ContainsBox(r.bbox) {
			continue
		}
		if r.polygon.ISOCode != "" && SovereignOf(r.polygon.ISOCode) != sovereign {
			continue
		}
		candidates = append(candidates, b.newNode(tree, r))
	}

	// walk smallest to largest; the parent is the smallest larger
	// region that contains the candidate, the country root by default
	for i := len(candidates) - 1; i >= 0; i-- {
		idx := candidates[i]
		node := &tree.Nodes[idx]
		for j := i - 1; j >= 0; j-- {
			p := candidates[j]
			if Affiliate(&tree.Nodes[p], node, spec) == +1 {
				node.Parent = p
				break
			}
		}
		if node.Parent < 0 {
			node.Parent = root
		}
		tree.Nodes[node.Parent].Children = append(tree.Nodes[node.Parent].Children, idx)
		node.Type = typeOf(node)
	}
	return tree
}

func (b *Builder) newNode(tree *Tree, r labelled) int {
	tree.Nodes = append(tree.Nodes, Node{
		Feature: r.polygon,
		Label:   r.label,
		Parent:  -1,
		Type:    hierarchy.Count,
		area:    r.area,
		bbox:    r.bbox,
	})
	return len(tree.Nodes) - 1
}

// integratePlacePoints attaches the place points not consumed as labels
// to the smallest tree node containing them. Points integrate in
// rank-then-population order so a city lands before its districts.
func (b *Builder) integratePlacePoints(trees []*Tree) {
	points := make([]*feature.Builder, 0, len(b.placePoints))
	for _, p := range b.placePoints {
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Rank != points[j].Rank {
			return points[i].Rank > points[j].Rank
		}
		if points[i].Population != points[j].Population {
			return points[i].Population > points[j].Population
		}
		return points[i].ID < points[j].ID
	})

	for _, point := range points {
		t := placeKindToType(point.PlaceKind)
		if t == hierarchy.Count {
			continue
		}
		tree, parent := smallestContaining(trees, point.Point())
		if tree == nil {
			continue
		}
		idx := len(tree.Nodes)
		tree.Nodes = append(tree.Nodes, Node{
			Feature: point,
			Parent:  parent,
			Type:    t,
			bbox:    point.BoundingBox(),
		})
		tree.Nodes[parent].Children = append(tree.Nodes[parent].Children, idx)
	}
}

// smallestContaining finds the deepest polygon node containing p across
// all trees.
func smallestContaining(trees []*Tree, p geometry.Point) (*Tree, int) {
	for _, tree := range trees {
		root := &tree.Nodes[tree.Root]
		if !root.bbox.Contains(p) || !geometry.PointInRing(p, root.Feature.Outer()) {
			continue
		}
		idx := tree.Root
		for {
			descended := false
			for _, c := range tree.Nodes[idx].Children {
				child := &tree.Nodes[c]
				if child.Feature.GeomKind() != feature.GeomArea {
					continue
				}
				if child.bbox.Contains(p) && geometry.PointInRing(p, child.Feature.Outer()) {
					idx = c
					descended = true
					break
				}
			}
			if !descended {
				return tree, idx
			}
		}
	}
	return nil, -1
}

// markAdminSuburbs downgrades locality-level admin polygons nested in a
// locality to suburbs.
func markAdminSuburbs(tree *Tree) {
	tree.ForEach(func(idx int, node *Node) {
		if node.Type != hierarchy.Locality || node.Parent < 0 {
			return
		}
		for p := node.Parent; p >= 0; p = tree.Nodes[p].Parent {
			if tree.Nodes[p].Type == hierarchy.Locality {
				node.Type = hierarchy.Suburb
				return
			}
		}
	})
}
