package region

import (
	"github.com/mapsme/geocore/internal/geometry"
	"github.com/mapsme/geocore/internal/hierarchy"
	"github.com/mapsme/geocore/internal/osmmodel"
)

// Info identifies one node of the built forest.
type Info struct {
	Tree  *Tree
	Index int
}

func (i Info) Node() *Node            { return &i.Tree.Nodes[i.Index] }
func (i Info) ID() osmmodel.ObjectID  { return i.Node().Feature.ID }
func (i Info) Valid() bool            { return i.Tree != nil }
func (i Info) Type() hierarchy.Type   { return i.Node().Type }

// Finder answers point-to-region queries against the built forest; the
// street builder receives it as the regionFinder callback.
type Finder struct {
	trees []*Tree
}

func NewFinder(trees []*Tree) *Finder {
	return &Finder{trees: trees}
}

// Find returns the smallest region containing p.
func (f *Finder) Find(p geometry.Point) (Info, bool) {
	tree, idx := smallestContaining(f.trees, p)
	if tree == nil {
		return Info{}, false
	}
	return Info{Tree: tree, Index: idx}, true
}

// AddressChain collects the names along the path from the country root
// down to the node, one entry per populated hierarchy level. A deeper
// node of the same level overwrites a shallower one.
func (f *Finder) AddressChain(info Info) map[hierarchy.Type]string {
	chain := make(map[hierarchy.Type]string)
	for _, idx := range info.Tree.Path(info.Index) {
		node := &info.Tree.Nodes[idx]
		if node.Type != hierarchy.Count && node.Name() != "" {
			chain[node.Type] = node.Name()
		}
	}
	return chain
}

// Trees exposes the forest for the KV emission stage.
func (f *Finder) Trees() []*Tree { return f.trees }
