// Package region builds the forest of administrative-region trees from
// the flat bag of classified admin polygons and place points.
package region

import (
	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/geometry"
	"github.com/mapsme/geocore/internal/hierarchy"
)

// Node is one LevelRegion in the arena. Parent and child links are
// arena indices; -1 means no parent.
type Node struct {
	Feature  *feature.Builder
	Label    *feature.Builder
	Type     hierarchy.Type
	Parent   int
	Children []int

	area float64
	bbox geometry.BoundingBox
}

// Name prefers the attached label's name over the polygon's.
func (n *Node) Name() string {
	if n.Label != nil && n.Label.Name() != "" {
		return n.Label.Name()
	}
	return n.Feature.Name()
}

// PlaceKind prefers the label's place tag.
func (n *Node) PlaceKind() string {
	if n.Label != nil && n.Label.PlaceKind != "" {
		return n.Label.PlaceKind
	}
	return n.Feature.PlaceKind
}

// Tree is one country's region tree inside the shared arena.
type Tree struct {
	Nodes []Node
	Root  int
}

// ForEach walks the tree pre-order.
func (t *Tree) ForEach(fn func(idx int, node *Node)) {
	var walk func(idx int)
	walk = func(idx int) {
		fn(idx, &t.Nodes[idx])
		for _, c := range t.Nodes[idx].Children {
			walk(c)
		}
	}
	if t.Root >= 0 {
		walk(t.Root)
	}
}

// Path returns the chain of arena indices from the root down to idx.
func (t *Tree) Path(idx int) []int {
	var rev []int
	for i := idx; i >= 0; i = t.Nodes[i].Parent {
		rev = append(rev, i)
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// dependencyToSovereign maps dependent-territory ISO codes onto the
// sovereign the country matching uses.
var dependencyToSovereign = map[string]string{
	"PR": "US", "GU": "US", "VI": "US", "AS": "US", "MP": "US",
	"GF": "FR", "GP": "FR", "MQ": "FR", "RE": "FR", "YT": "FR",
	"NC": "FR", "PF": "FR", "PM": "FR", "WF": "FR", "BL": "FR", "MF": "FR",
	"HK": "CN", "MO": "CN",
	"GI": "GB", "BM": "GB", "KY": "GB", "VG": "GB", "FK": "GB",
	"IM": "GB", "JE": "GB", "GG": "GB",
	"AW": "NL", "CW": "NL", "SX": "NL", "BQ": "NL",
	"GL": "DK", "FO": "DK",
	"AX": "FI",
	"SJ": "NO",
}

// SovereignOf resolves an ISO code to its sovereign country code.
func SovereignOf(iso string) string {
	if sovereign, ok := dependencyToSovereign[iso]; ok {
		return sovereign
	}
	return iso
}

// placeKindToType translates a place tag into the hierarchy ladder.
func placeKindToType(kind string) hierarchy.Type {
	switch kind {
	case "country":
		return hierarchy.Country
	case "state", "province", "region":
		return hierarchy.Region
	case "county", "district", "municipality":
		return hierarchy.Subregion
	case "city", "town", "village", "hamlet", "isolated_dwelling":
		return hierarchy.Locality
	case "suburb", "borough":
		return hierarchy.Suburb
	case "neighbourhood", "quarter", "sublocality":
		return hierarchy.Sublocality
	default:
		return hierarchy.Count
	}
}

// adminLevelToType is the fallback ladder when no place tag exists.
func adminLevelToType(level int) hierarchy.Type {
	switch {
	case level == 2:
		return hierarchy.Country
	case level <= 4:
		return hierarchy.Region
	case level <= 6:
		return hierarchy.Subregion
	case level <= 8:
		return hierarchy.Locality
	case level <= 10:
		return hierarchy.Suburb
	default:
		return hierarchy.Sublocality
	}
}

// typeOf combines both signals, place kind winning.
func typeOf(n *Node) hierarchy.Type {
	if t := placeKindToType(n.PlaceKind()); t != hierarchy.Count {
		return t
	}
	return adminLevelToType(n.Feature.AdminLevel)
}
