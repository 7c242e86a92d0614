package region

import "github.com/mapsme/geocore/internal/hierarchy"

// Specifier applies country-specific rules the generic affiliation and
// levelling passes cannot express.
type Specifier interface {
	// Affiliate breaks ties the generic rule delegates: +1, -1 or 0.
	Affiliate(l, r *Node) int
	// AdjustLevels runs after tree formation and may rewrite node types.
	AdjustLevels(tree *Tree)
}

// SpecifierFor selects the specifier by the country's sovereign ISO code.
func SpecifierFor(iso string) Specifier {
	switch SovereignOf(iso) {
	case "UA":
		return uaSpecifier{}
	default:
		return defaultSpecifier{}
	}
}

type defaultSpecifier struct{}

func (defaultSpecifier) Affiliate(l, r *Node) int { return 0 }

func (defaultSpecifier) AdjustLevels(tree *Tree) {}

// uaSpecifier carries the Crimea and Sevastopol carve-outs: both are
// administered as first-level regions regardless of what the polygon
// levels suggest, and Sevastopol never nests under Crimea.
type uaSpecifier struct{}

var uaFirstLevelRegions = map[string]bool{
	"Автономна Республіка Крим": true,
	"Севастополь":               true,
}

func (uaSpecifier) Affiliate(l, r *Node) int {
	// the two carve-outs never nest under each other, whatever their
	// polygons overlap says
	if uaFirstLevelRegions[l.Name()] || uaFirstLevelRegions[r.Name()] {
		return 0
	}
	if l.area != r.area {
		if l.area > r.area {
			return +1
		}
		return -1
	}
	if l.Feature.ID < r.Feature.ID {
		return +1
	}
	return -1
}

func (uaSpecifier) AdjustLevels(tree *Tree) {
	tree.ForEach(func(idx int, node *Node) {
		if uaFirstLevelRegions[node.Name()] {
			node.Type = hierarchy.Region
		}
	})
}
