package geocoder

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mapsme/geocore/internal/hierarchy"
	"github.com/mapsme/geocore/internal/namedict"
	"github.com/mapsme/geocore/internal/osmmodel"
)

// entrySpec is the compact test form of one hierarchy row.
type entrySpec struct {
	id        int64
	name      string
	t         hierarchy.Type
	placeKind string
	address   map[hierarchy.Type]string
}

func newTestGeocoder(t *testing.T, specs []entrySpec) *Geocoder {
	t.Helper()
	builder := namedict.NewBuilder()
	var entries []hierarchy.Entry
	for _, s := range specs {
		e := hierarchy.Entry{
			ID:        osmmodel.NodeID(s.id),
			Name:      s.name,
			Type:      s.t,
			PlaceKind: s.placeKind,
		}
		for at, v := range s.address {
			e.Address[at] = builder.AddString(v)
		}
		e.Normalize()
		assert.NotEqual(t, hierarchy.Count, e.Type, "entry %q dropped", s.name)
		entries = append(entries, e)
	}
	g := &Geocoder{dict: builder.Build(), entries: entries}
	g.buildIndex()
	return g
}

func cubaGeocoder(t *testing.T) *Geocoder {
	return newTestGeocoder(t, []entrySpec{
		{1, "Cuba", hierarchy.Country, "country",
			map[hierarchy.Type]string{hierarchy.Country: "Cuba"}},
		{2, "Ciego de Ávila", hierarchy.Region, "region",
			map[hierarchy.Type]string{hierarchy.Country: "Cuba", hierarchy.Region: "Ciego de Ávila"}},
		{3, "Florencia", hierarchy.Locality, "town",
			map[hierarchy.Type]string{
				hierarchy.Country:  "Cuba",
				hierarchy.Region:   "Ciego de Ávila",
				hierarchy.Locality: "Florencia",
			}},
	})
}

func TestGeocoderSmoke(t *testing.T) {
	g := cubaGeocoder(t)

	t.Run("florencia", func(t *testing.T) {
		results := g.Search("florencia")
		assert.NotEmpty(t, results)
		assert.Equal(t, "Florencia", results[0].Name)
		assert.InDelta(t, 1.0, results[0].Certainty, 1e-9)
	})

	t.Run("cuba florencia", func(t *testing.T) {
		results := g.Search("cuba florencia")
		assert.True(t, len(results) >= 2)
		assert.Equal(t, "Florencia", results[0].Name)
		assert.InDelta(t, 1.0, results[0].Certainty, 1e-9)

		var cuba *Result
		for i := range results {
			if results[i].Name == "Cuba" {
				cuba = &results[i]
			}
		}
		assert.NotNil(t, cuba)
		assert.InDelta(t, 0.714, cuba.Certainty, 0.08)
	})
}

func zorgeGeocoder(t *testing.T) *Geocoder {
	addr := func(building string) map[hierarchy.Type]string {
		return map[hierarchy.Type]string{
			hierarchy.Locality: "Москва",
			hierarchy.Street:   "Зорге",
			hierarchy.Building: building,
		}
	}
	return newTestGeocoder(t, []entrySpec{
		{1, "Москва", hierarchy.Locality, "city",
			map[hierarchy.Type]string{hierarchy.Locality: "Москва"}},
		{2, "Зорге", hierarchy.Street, "",
			map[hierarchy.Type]string{hierarchy.Locality: "Москва", hierarchy.Street: "Зорге"}},
		{3, "7", hierarchy.Building, "", addr("7")},
		{4, "7 к2", hierarchy.Building, "", addr("7 к2")},
		{5, "7 к2 с3", hierarchy.Building, "", addr("7 к2 с3")},
	})
}

func TestHouseNumberSearch(t *testing.T) {
	g := zorgeGeocoder(t)

	t.Run("exact unit match ranks first", func(t *testing.T) {
		results := g.Search("Москва, Зорге 7к2")
		assert.True(t, len(results) >= 3)

		assert.Equal(t, "7 к2", results[0].Name)
		assert.InDelta(t, 1.0, results[0].Certainty, 1e-9)
		assert.Equal(t, "7 к2 с3", results[1].Name)
		assert.InDelta(t, 0.995, results[1].Certainty, 0.004)
		assert.Equal(t, "7", results[2].Name)
		assert.InDelta(t, 0.975, results[2].Certainty, 0.012)
	})

	t.Run("unmatched unit falls back to the bare number", func(t *testing.T) {
		results := g.Search("Зорге 7к1")
		assert.NotEmpty(t, results)
		assert.Equal(t, "7", results[0].Name)
		assert.InDelta(t, 0.95, results[0].Certainty, 1e-9)
	})
}

func TestBuildingPreferredOverStreet(t *testing.T) {
	g := newTestGeocoder(t, []entrySpec{
		{1, "Springfield", hierarchy.Locality, "city",
			map[hierarchy.Type]string{hierarchy.Locality: "Springfield"}},
		{2, "Good", hierarchy.Street, "",
			map[hierarchy.Type]string{hierarchy.Locality: "Springfield", hierarchy.Street: "Good"}},
		{3, "Bad", hierarchy.Street, "",
			map[hierarchy.Type]string{hierarchy.Locality: "Springfield", hierarchy.Street: "Bad"}},
		{4, "5", hierarchy.Building, "",
			map[hierarchy.Type]string{
				hierarchy.Locality: "Springfield",
				hierarchy.Street:   "Good",
				hierarchy.Building: "5",
			}},
	})

	t.Run("building consumes every token", func(t *testing.T) {
		results := g.Search("springfield good 5")
		assert.Len(t, results, 1)
		assert.Equal(t, hierarchy.Building, results[0].Type)
		assert.Equal(t, "5", results[0].Name)
		assert.InDelta(t, 1.0, results[0].Certainty, 1e-9)
	})

	t.Run("unknown house number returns nothing", func(t *testing.T) {
		results := g.Search("springfield good 10")
		assert.Empty(t, results)
	})
}

// parenting must be antisymmetric across distinct entries
func TestIsParentToAntisymmetric(t *testing.T) {
	g := cubaGeocoder(t)
	for a := range g.entries {
		for b := range g.entries {
			if a == b {
				continue
			}
			ea, eb := &g.entries[a], &g.entries[b]
			if g.isParentTo(ea, b) && g.isParentTo(eb, a) {
				t.Errorf("both %q and %q parent each other", ea.Name, eb.Name)
			}
		}
	}
}

func TestStreetSynonymsAreFree(t *testing.T) {
	g := zorgeGeocoder(t)
	results := g.Search("Москва, ул Зорге")
	assert.NotEmpty(t, results)
	assert.Equal(t, "Зорге", results[0].Name)
	assert.InDelta(t, 1.0, results[0].Certainty, 1e-9)
}
