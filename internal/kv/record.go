// Package kv reads and writes the key-value artifacts: JSONL files of
// `<16-uppercase-hex-id> <geojson>` lines, optionally gzipped, plus a
// bbolt mirror for keyed lookups.
package kv

import (
	"encoding/json"

	"github.com/mapsme/geocore/internal/hierarchy"
)

// Address is the nested address attached to an object, one optional
// field per hierarchy level.
type Address struct {
	Country     string `json:"country,omitempty"`
	Region      string `json:"region,omitempty"`
	Subregion   string `json:"subregion,omitempty"`
	Locality    string `json:"locality,omitempty"`
	Suburb      string `json:"suburb,omitempty"`
	Sublocality string `json:"sublocality,omitempty"`
	Street      string `json:"street,omitempty"`
	Building    string `json:"building,omitempty"`
}

// Slot returns the address value for a hierarchy level.
func (a *Address) Slot(t hierarchy.Type) string {
	switch t {
	case hierarchy.Country:
		return a.Country
	case hierarchy.Region:
		return a.Region
	case hierarchy.Subregion:
		return a.Subregion
	case hierarchy.Locality:
		return a.Locality
	case hierarchy.Suburb:
		return a.Suburb
	case hierarchy.Sublocality:
		return a.Sublocality
	case hierarchy.Street:
		return a.Street
	case hierarchy.Building:
		return a.Building
	default:
		return ""
	}
}

// SetSlot assigns the address value for a hierarchy level.
func (a *Address) SetSlot(t hierarchy.Type, v string) {
	switch t {
	case hierarchy.Country:
		a.Country = v
	case hierarchy.Region:
		a.Region = v
	case hierarchy.Subregion:
		a.Subregion = v
	case hierarchy.Locality:
		a.Locality = v
	case hierarchy.Suburb:
		a.Suburb = v
	case hierarchy.Sublocality:
		a.Sublocality = v
	case hierarchy.Street:
		a.Street = v
	case hierarchy.Building:
		a.Building = v
	}
}

// LocaleRecord is the per-locale name and address.
type LocaleRecord struct {
	Name    string  `json:"name"`
	Address Address `json:"address"`
}

// Properties is the `properties` member of each KV GeoJSON feature.
type Properties struct {
	Kind    string                  `json:"kind"`
	Rank    uint8                   `json:"rank,omitempty"`
	Locales map[string]LocaleRecord `json:"locales"`
	// DRef points a building at the address point that now wears its
	// geometry, and vice versa.
	DRef string `json:"dref,omitempty"`
}

// Geometry is the GeoJSON geometry member. Coordinates follow GeoJSON
// order: lon first.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Record is one KV value: a GeoJSON feature.
type Record struct {
	Type       string     `json:"type"`
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
}

// PointGeometry builds the geometry member for a point.
func PointGeometry(lat, lon float64) Geometry {
	coords, _ := json.Marshal([2]float64{lon, lat})
	return Geometry{Type: "Point", Coordinates: coords}
}

// PolygonGeometry builds the geometry member for an outer ring with
// holes; rings are [lon, lat] pairs.
func PolygonGeometry(rings [][][2]float64) Geometry {
	coords, _ := json.Marshal(rings)
	return Geometry{Type: "Polygon", Coordinates: coords}
}

// DefaultLocale returns the default-locale record, zero when missing.
func (r *Record) DefaultLocale() LocaleRecord {
	return r.Properties.Locales["default"]
}
