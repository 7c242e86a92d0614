// Package pipeline wires the stages together: preprocess, feature
// generation, region/street/geo-object artifact builds, and the
// geocoder token index.
package pipeline

import (
	"strconv"

	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/osmmodel"
)

// streetHighways lists the highway values treated as streets.
var streetHighways = map[string]bool{
	"motorway": true, "trunk": true, "primary": true, "secondary": true,
	"tertiary": true, "unclassified": true, "residential": true,
	"living_street": true, "service": true, "pedestrian": true,
	"motorway_link": true, "trunk_link": true, "primary_link": true,
	"secondary_link": true, "tertiary_link": true,
}

// poiTags carry searchable POIs when a name is present.
var poiTags = []string{
	"amenity", "shop", "tourism", "leisure", "office", "craft",
	"historic", "sport", "healthcare", "aeroway", "railway",
	"public_transport", "emergency",
}

// classification is the outcome of tag inspection, before geometry is
// attached.
type classification struct {
	class       feature.Class
	placeKind   string
	adminLevel  int
	isoCode     string
	labelOSMID  int64
	street      string
	houseNumber string
	rank        uint8
	population  uint64
}

// classify inspects an element's tags. A zero class means the element
// carries nothing the pipeline wants.
func classify(e *osmmodel.Element) classification {
	var c classification
	tags := e.Tags
	if len(tags) == 0 {
		return c
	}

	c.street = tags["addr:street"]
	c.houseNumber = tags["addr:housenumber"]
	c.placeKind = tags["place"]
	c.isoCode = tags["ISO3166-1:alpha2"]
	if c.isoCode == "" {
		c.isoCode = tags["ISO3166-2"]
	}
	if v := tags["admin_level"]; v != "" {
		if lvl, err := strconv.Atoi(v); err == nil {
			c.adminLevel = lvl
		}
	}
	if v := tags["label"]; v != "" {
		if ref, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.labelOSMID = ref
		}
	}
	if v := tags["population"]; v != "" {
		if pop, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.population = pop
		}
	}

	name := tags["name"]

	// administrative polygons
	if tags["boundary"] == "administrative" && c.adminLevel >= 2 && name != "" {
		switch {
		case c.adminLevel == 2:
			c.class |= feature.ClassCountry
		case c.adminLevel <= 4:
			c.class |= feature.ClassRegion
		case c.adminLevel <= 6:
			c.class |= feature.ClassSubregion
		case c.adminLevel <= 8:
			c.class |= feature.ClassLocality
		default:
			c.class |= feature.ClassSuburb
		}
	}

	// place points carry the name and kind without a polygon
	if e.Kind == osmmodel.KindNode && c.placeKind != "" && name != "" {
		c.class |= feature.ClassPlacePoint
	}

	// streets: named roads and squares
	if streetHighways[tags["highway"]] && name != "" {
		c.class |= feature.ClassStreet
	}
	if c.placeKind == "square" && name != "" {
		c.class |= feature.ClassSquare | feature.ClassStreet
	}

	// buildings and bare address points
	if tags["building"] != "" {
		c.class |= feature.ClassBuilding
	}
	if c.houseNumber != "" {
		c.class |= feature.ClassBuilding
	}

	// POIs: anything else named with a searchable tag
	if name != "" && !c.class.Has(feature.ClassBuilding) {
		for _, key := range poiTags {
			if tags[key] != "" {
				c.class |= feature.ClassPOI
				break
			}
		}
	}
	return c
}

// applyNames copies the multilingual name table from tags.
func applyNames(fb *feature.Builder, e *osmmodel.Element) {
	if v := e.Tags["name"]; v != "" {
		fb.SetName(feature.DefaultLocale, v)
	}
	for key, v := range e.Tags {
		const prefix = "name:"
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			fb.SetName(key[len(prefix):], v)
		}
	}
	if fb.Name() == "" && fb.HouseNumber != "" {
		fb.SetName(feature.DefaultLocale, fb.HouseNumber)
	}
}
