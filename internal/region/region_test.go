package region

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/geometry"
	"github.com/mapsme/geocore/internal/hierarchy"
	"github.com/mapsme/geocore/internal/osmmodel"
)

func areaFeature(t *testing.T, id int64, name string, minLat, minLon, maxLat, maxLon float64) *feature.Builder {
	t.Helper()
	fb := feature.NewBuilder(osmmodel.RelationID(id), feature.ClassRegion)
	fb.SetName("", name)
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

func nodeOf(fb *feature.Builder) *Node {
	return &Node{
		Feature: fb,
		Parent:  -1,
		area:    geometry.RingArea(fb.Outer()),
		bbox:    fb.BoundingBox(),
	}
}

func TestAffiliate(t *testing.T) {
	spec := defaultSpecifier{}

	t.Run("containment makes a parent", func(t *testing.T) {
		country := nodeOf(areaFeature(t, 1, "Country", 0, 0, 10, 10))
		inner := nodeOf(areaFeature(t, 2, "Province", 2, 2, 4, 4))
		assert.Equal(t, +1, Affiliate(country, inner, spec))
		assert.Equal(t, -1, Affiliate(inner, country, spec))
	})

	t.Run("majority overlap without containment still parents", func(t *testing.T) {
		// bbox contained but a corner pokes outside the polygon is not
		// representable with rectangles; instead: 55% overlap, smaller
		// region not contained
		big := nodeOf(areaFeature(t, 1, "Big", 0, 0, 10, 10))
		leaning := nodeOf(areaFeature(t, 2, "Leaning", 2, 4.5, 4, 14.5))
		// overlap = 2x5.5 = 11 of Leaning's 20: 55%
		assert.Equal(t, +1, Affiliate(big, leaning, spec))
	})

	t.Run("minority overlap means unrelated", func(t *testing.T) {
		big := nodeOf(areaFeature(t, 1, "Big", 0, 0, 10, 10))
		leaning := nodeOf(areaFeature(t, 2, "Leaning", 2, 5.5, 4, 15.5))
		// overlap = 2x4.5 = 9 of Leaning's 20: 45%
		assert.Equal(t, 0, Affiliate(big, leaning, spec))
	})

	t.Run("antisymmetric", func(t *testing.T) {
		shapes := []*Node{
			nodeOf(areaFeature(t, 1, "A", 0, 0, 10, 10)),
			nodeOf(areaFeature(t, 2, "B", 1, 1, 5, 5)),
			nodeOf(areaFeature(t, 3, "C", 2, 2, 3, 3)),
			nodeOf(areaFeature(t, 4, "D", 20, 20, 25, 25)),
		}
		for i, l := range shapes {
			for j, r := range shapes {
				if i == j {
					continue
				}
				lr := Affiliate(l, r, spec)
				rl := Affiliate(r, l, spec)
				assert.Equal(t, lr, -rl, "%s vs %s", l.Name(), r.Name())
			}
		}
	})
}

func TestBuildCountryTree(t *testing.T) {
	country := areaFeature(t, 1, "Freedonia", 0, 0, 10, 10)
	country.Class = feature.ClassCountry
	country.AdminLevel = 2

	province := areaFeature(t, 2, "North Province", 1, 1, 8, 8)
	province.AdminLevel = 4

	city := areaFeature(t, 3, "Fredville", 2, 2, 4, 4)
	city.AdminLevel = 8
	city.PlaceKind = "city"

	outside := areaFeature(t, 4, "Elsewhere", 40, 40, 45, 45)
	outside.AdminLevel = 4

	builder := NewBuilder([]*feature.Builder{country, province, city, outside}, nil)
	trees, err := builder.Build()
	assert.NoError(t, err)
	assert.Len(t, trees, 1)

	tree := trees[0]
	root := &tree.Nodes[tree.Root]
	assert.Equal(t, "Freedonia", root.Name())
	assert.Equal(t, hierarchy.Country, root.Type)

	byName := make(map[string]*Node)
	tree.ForEach(func(idx int, node *Node) { byName[node.Name()] = node })
	assert.Contains(t, byName, "North Province")
	assert.Contains(t, byName, "Fredville")
	assert.NotContains(t, byName, "Elsewhere")

	// the city nests under the province, the province under the country
	cityNode := byName["Fredville"]
	assert.Equal(t, "North Province", tree.Nodes[cityNode.Parent].Name())
	provinceNode := byName["North Province"]
	assert.Equal(t, "Freedonia", tree.Nodes[provinceNode.Parent].Name())
	assert.Equal(t, hierarchy.Locality, cityNode.Type)
}

func TestPlacePointIntegration(t *testing.T) {
	country := areaFeature(t, 1, "Freedonia", 0, 0, 10, 10)
	country.Class = feature.ClassCountry
	country.AdminLevel = 2

	village := feature.NewBuilder(osmmodel.NodeID(50), feature.ClassPlacePoint)
	village.SetName("", "Smallville")
	village.PlaceKind = "village"
	village.SetPoint(geometry.Point{Lat: 5, Lon: 5})

	builder := NewBuilder([]*feature.Builder{country}, []*feature.Builder{village})
	trees, err := builder.Build()
	assert.NoError(t, err)
	assert.Len(t, trees, 1)

	var found *Node
	trees[0].ForEach(func(idx int, node *Node) {
		if node.Name() == "Smallville" {
			found = node
		}
	})
	assert.NotNil(t, found)
	assert.Equal(t, hierarchy.Locality, found.Type)
	assert.Equal(t, "Freedonia", trees[0].Nodes[found.Parent].Name())
}

func TestFinderAddressChain(t *testing.T) {
	country := areaFeature(t, 1, "Freedonia", 0, 0, 10, 10)
	country.Class = feature.ClassCountry
	country.AdminLevel = 2
	city := areaFeature(t, 2, "Fredville", 2, 2, 4, 4)
	city.AdminLevel = 8
	city.PlaceKind = "city"

	builder := NewBuilder([]*feature.Builder{country, city}, nil)
	trees, err := builder.Build()
	assert.NoError(t, err)
	finder := NewFinder(trees)

	info, ok := finder.Find(geometry.Point{Lat: 3, Lon: 3})
	assert.True(t, ok)
	assert.Equal(t, "Fredville", info.Node().Name())

	chain := finder.AddressChain(info)
	assert.Equal(t, "Freedonia", chain[hierarchy.Country])
	assert.Equal(t, "Fredville", chain[hierarchy.Locality])

	_, ok = finder.Find(geometry.Point{Lat: 50, Lon: 50})
	assert.False(t, ok)
}
