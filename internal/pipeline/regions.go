package pipeline

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mapsme/geocore/internal/covering"
	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/hierarchy"
	"github.com/mapsme/geocore/internal/intervalindex"
	"github.com/mapsme/geocore/internal/kv"
	"github.com/mapsme/geocore/internal/region"
)

// GenerateRegions builds the region hierarchy and writes the regions KV
// artifact.
func GenerateRegions(cfg *Config) error {
	bar := newStageBar(3, "[cyan]Building region hierarchy...")
	finder, err := loadRegionForest(cfg)
	if err != nil {
		return err
	}
	bar.Add(1)

	w, err := kv.NewWriter(cfg.RegionsKeyValue, kv.WriterOptions{DataVersion: cfg.DataVersion})
	if err != nil {
		return err
	}
	bar.Add(1)

	for _, tree := range finder.Trees() {
		var writeErr error
		tree.ForEach(func(idx int, node *region.Node) {
			if writeErr != nil || node.Type == hierarchy.Count {
				return
			}
			rec := regionRecord(finder, region.Info{Tree: tree, Index: idx})
			if err := w.Write(node.Feature.ID, rec); err != nil {
				writeErr = err
			}
		})
		if writeErr != nil {
			w.Close()
			return writeErr
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	bar.Add(1)
	return nil
}

func regionRecord(finder *region.Finder, info region.Info) *kv.Record {
	node := info.Node()
	var addr kv.Address
	for t, name := range finder.AddressChain(info) {
		addr.SetSlot(t, name)
	}
	center := node.Feature.Center()
	return &kv.Record{
		Type:     "Feature",
		Geometry: kv.PointGeometry(center.Lat, center.Lon),
		Properties: kv.Properties{
			Kind: node.Type.String(),
			Rank: uint8(node.Type),
			Locales: map[string]kv.LocaleRecord{
				feature.DefaultLocale: {Name: node.Name(), Address: addr},
			},
		},
	}
}

// GenerateRegionsIndex covers every admin polygon and builds the
// regions interval index.
func GenerateRegionsIndex(cfg *Config) error {
	finder, err := loadRegionForest(cfg)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var pairs []intervalindex.CellValuePair
	group := new(errgroup.Group)
	group.SetLimit(cfg.workers())

	for _, tree := range finder.Trees() {
		tree.ForEach(func(idx int, node *region.Node) {
			fb := node.Feature
			if fb.GeomKind() != feature.GeomArea {
				return
			}
			group.Go(func() error {
				cells := covering.Cover(fb, covering.RegionsDepthLevels)
				local := make([]intervalindex.CellValuePair, len(cells))
				for i, c := range cells {
					local[i] = intervalindex.CellValuePair{Cell: c.Code(), Value: uint64(fb.ID)}
				}
				mu.Lock()
				pairs = append(pairs, local...)
				mu.Unlock()
				return nil
			})
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return intervalindex.Build(cfg.RegionsIndex, pairs)
}
