package pipeline

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/geometry"
	"github.com/mapsme/geocore/internal/logger"
	"github.com/mapsme/geocore/internal/osmiter"
	"github.com/mapsme/geocore/internal/osmmodel"
	"github.com/mapsme/geocore/internal/osmstore"
	"github.com/mapsme/geocore/internal/tmpstore"
)

// Preprocess streams the OSM file into the intermediate store.
func Preprocess(ctx context.Context, cfg *Config) error {
	store, err := osmstore.Open(cfg.IntermediateDataPath, cfg.NodeStorage, 0)
	if err != nil {
		return err
	}
	defer store.Close()

	err = osmiter.ForEachBatch(ctx, cfg.OsmFileName, cfg.OsmFileType, cfg.Workers,
		func(batch []osmmodel.Element) error {
			return store.BulkWrite(batch)
		})
	if err != nil {
		return err
	}
	return store.Freeze()
}

// GenerateFeatures re-reads the OSM file against the frozen store and
// writes the three classified intermediate files.
func GenerateFeatures(ctx context.Context, cfg *Config) error {
	store, err := osmstore.Open(cfg.IntermediateDataPath, cfg.NodeStorage, 0)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := rebuildStore(ctx, cfg, store); err != nil {
		return err
	}

	regionsOut, err := tmpstore.NewWriter(cfg.RegionsFeatures)
	if err != nil {
		return err
	}
	streetsOut, err := tmpstore.NewWriter(cfg.StreetsFeatures)
	if err != nil {
		return err
	}
	objectsOut, err := tmpstore.NewWriter(cfg.GeoObjectsFeatures)
	if err != nil {
		return err
	}

	var statsMu sync.Mutex
	stats := &errs.ParsingStats{}

	err = osmiter.ForEachBatch(ctx, cfg.OsmFileName, cfg.OsmFileType, cfg.Workers,
		func(batch []osmmodel.Element) error {
			for i := range batch {
				e := &batch[i]
				if err := emitFeature(e, store, regionsOut, streetsOut, objectsOut, stats, &statsMu); err != nil {
					return err
				}
			}
			return nil
		})
	if err != nil {
		return err
	}

	for _, w := range []*tmpstore.Writer{regionsOut, streetsOut, objectsOut} {
		if err := w.Close(); err != nil {
			return err
		}
	}
	if stats.Total() > 0 {
		logger.Get().Warn("features skipped during generation",
			zap.Int("missingWay", stats.MissingWay),
			zap.Int("badGeometry", stats.BadGeometry),
			zap.Int("total", stats.Total()))
	}
	return nil
}

// rebuildStore refills the store from the OSM file; feature generation
// runs as its own stage and cannot assume preprocess ran in-process.
func rebuildStore(ctx context.Context, cfg *Config, store *osmstore.Store) error {
	err := osmiter.ForEachBatch(ctx, cfg.OsmFileName, cfg.OsmFileType, cfg.Workers,
		func(batch []osmmodel.Element) error {
			return store.BulkWrite(batch)
		})
	if err != nil {
		return err
	}
	return store.Freeze()
}

// emitFeature classifies one element, assembles its geometry from the
// store, and routes it to the right intermediate file.
func emitFeature(e *osmmodel.Element, store *osmstore.Store,
	regionsOut, streetsOut, objectsOut *tmpstore.Writer,
	stats *errs.ParsingStats, statsMu *sync.Mutex) error {

	c := classify(e)
	if c.class == 0 {
		return nil
	}

	fb := feature.NewBuilder(osmmodel.ElementID(e), c.class)
	fb.PlaceKind = c.placeKind
	fb.AdminLevel = c.adminLevel
	fb.ISOCode = c.isoCode
	fb.LabelOSMID = c.labelOSMID
	fb.Street = c.street
	fb.HouseNumber = c.houseNumber
	fb.Population = c.population
	fb.Rank = c.rank
	applyNames(fb, e)

	warn := func(field *int) {
		statsMu.Lock()
		*field++
		statsMu.Unlock()
	}

	switch e.Kind {
	case osmmodel.KindNode:
		fb.SetPoint(geometry.Point{Lat: e.Lat, Lon: e.Lon})

	case osmmodel.KindWay:
		points, ok := resolveWayPoints(store, e.NodeRefs)
		if !ok {
			warn(&stats.MissingWay)
			return nil
		}
		if err := setWayGeometry(fb, points); err != nil {
			warn(&stats.BadGeometry)
			return nil
		}

	case osmmodel.KindRelation:
		outer, holes, ok := assembleMultipolygon(store, e)
		if !ok {
			warn(&stats.BadGeometry)
			return nil
		}
		if err := fb.SetArea(outer, holes); err != nil {
			warn(&stats.BadGeometry)
			return nil
		}
	}

	var out *tmpstore.Writer
	switch {
	case fb.Class.IsAdministrative() || fb.Class.Has(feature.ClassPlacePoint):
		out = regionsOut
	case fb.Class.Has(feature.ClassStreet):
		out = streetsOut
	default:
		out = objectsOut
	}
	if err := out.Write(fb); err != nil {
		if errs.IsKind(err, errs.Warnable) {
			warn(&stats.SkippedFeatures)
			return nil
		}
		return err
	}
	return nil
}

func resolveWayPoints(store *osmstore.Store, refs []int64) ([]geometry.Point, bool) {
	points := make([]geometry.Point, 0, len(refs))
	for _, ref := range refs {
		lat, lon, ok := store.GetNode(ref)
		if !ok {
			return nil, false
		}
		points = append(points, geometry.Point{Lat: lat, Lon: lon})
	}
	return points, len(points) > 0
}

func setWayGeometry(fb *feature.Builder, points []geometry.Point) error {
	if len(points) >= 4 && points[0] == points[len(points)-1] {
		return fb.SetArea(points, nil)
	}
	return fb.SetLine(points)
}

// assembleMultipolygon stitches a relation's outer member ways into a
// closed ring, inner ways into holes. Member ways missing from the
// store degrade the whole relation.
func assembleMultipolygon(store *osmstore.Store, e *osmmodel.Element) (outer []geometry.Point, holes [][]geometry.Point, ok bool) {
	var outerSegs, innerSegs [][]geometry.Point
	for _, m := range e.Members {
		if m.Kind != osmmodel.KindWay {
			continue
		}
		way, found, err := store.GetWay(m.Ref)
		if err != nil || !found {
			continue
		}
		refs := make([]int64, len(way.NodeIDs))
		for i, id := range way.NodeIDs {
			refs[i] = int64(id)
		}
		points, resolved := resolveWayPoints(store, refs)
		if !resolved {
			continue
		}
		switch m.Role {
		case "inner":
			innerSegs = append(innerSegs, points)
		default: // outer or unspecified
			outerSegs = append(outerSegs, points)
		}
	}

	outer = stitchRing(outerSegs)
	if len(outer) < 4 {
		return nil, nil, false
	}
	for _, seg := range innerSegs {
		if ring := stitchRing([][]geometry.Point{seg}); len(ring) >= 4 {
			holes = append(holes, ring)
		}
	}
	return outer, holes, true
}

// stitchRing chains segments end-to-end by matching endpoints, then
// closes the result.
func stitchRing(segments [][]geometry.Point) []geometry.Point {
	if len(segments) == 0 {
		return nil
	}
	ring := append([]geometry.Point(nil), segments[0]...)
	remaining := segments[1:]
	used := make([]bool, len(remaining))
	for {
		attached := false
		for i, seg := range remaining {
			if used[i] || len(seg) == 0 {
				continue
			}
			switch {
			case seg[0] == ring[len(ring)-1]:
				ring = append(ring, seg[1:]...)
			case seg[len(seg)-1] == ring[len(ring)-1]:
				for k := len(seg) - 2; k >= 0; k-- {
					ring = append(ring, seg[k])
				}
			default:
				continue
			}
			used[i] = true
			attached = true
		}
		if !attached {
			break
		}
	}
	if len(ring) >= 3 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}
