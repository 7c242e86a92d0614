package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mapsme/geocore/internal/covering"
	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/hierarchy"
	"github.com/mapsme/geocore/internal/intervalindex"
	"github.com/mapsme/geocore/internal/kv"
	"github.com/mapsme/geocore/internal/osmmodel"
	"github.com/mapsme/geocore/internal/region"
	"github.com/mapsme/geocore/internal/street"
	"github.com/mapsme/geocore/internal/tmpstore"
)

// kvMirrorBatch sizes the bbolt transactions during the mirror write.
const kvMirrorBatch = 10000

// GenerateGeoObjectsIndex covers every geo object and builds the
// geo-objects interval index. This is the pipeline's memory peak and
// deliberately runs before address enrichment allocates its tables.
func GenerateGeoObjectsIndex(cfg *Config) error {
	objects, err := tmpstore.ReadAll(cfg.GeoObjectsFeatures)
	if err != nil {
		return err
	}

	var mu sync.Mutex
	var pairs []intervalindex.CellValuePair
	group := new(errgroup.Group)
	group.SetLimit(cfg.workers())
	for _, fb := range objects {
		fb := fb
		group.Go(func() error {
			cells := covering.Cover(fb, covering.GeoObjectsDepthLevels)
			local := make([]intervalindex.CellValuePair, len(cells))
			for i, c := range cells {
				local[i] = intervalindex.CellValuePair{Cell: c.Code(), Value: uint64(fb.ID)}
			}
			mu.Lock()
			pairs = append(pairs, local...)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return intervalindex.Build(cfg.GeoObjectsIndex, pairs)
}

// GenerateGeoObjectsKV runs the enrichment passes (null buildings, POI
// address inheritance) and writes the geo-objects KV artifact.
func GenerateGeoObjectsKV(cfg *Config) error {
	bar := newStageBar(5, "[cyan]Enriching geo objects...")
	objects, err := tmpstore.ReadAll(cfg.GeoObjectsFeatures)
	if err != nil {
		return err
	}
	index, err := intervalindex.Open(cfg.GeoObjectsIndex)
	if err != nil {
		return err
	}
	defer index.Close()
	finder, err := loadRegionForest(cfg)
	if err != nil {
		return err
	}
	bar.Add(1)

	enricher := street.NewEnricher(index, objects)
	enricher.ClaimNullBuildings(objects)
	bar.Add(1)
	objects = enricher.ApplyNullBuildings(objects)
	if err := tmpstore.Rewrite(cfg.GeoObjectsFeatures, objects); err != nil {
		return err
	}
	bar.Add(1)

	// addresses resolve against the region forest; POIs inherit from
	// the nearest addressed neighbour afterwards
	addressed := make(map[osmmodel.ObjectID]*kv.Address, len(objects))
	records := make(map[osmmodel.ObjectID]*kv.Record, len(objects))
	var withoutAddress []osmmodel.ObjectID

	for _, fb := range objects {
		addr := objectAddress(finder, fb)
		if addr == nil {
			withoutAddress = append(withoutAddress, fb.ID)
			continue
		}
		addressed[fb.ID] = addr
		records[fb.ID] = objectRecord(fb, addr)
	}
	bar.Add(1)

	for _, fb := range objects {
		if !street.IsPOI(fb) {
			continue
		}
		if _, has := addressed[fb.ID]; has {
			continue
		}
		donorID, ok := enricher.NearestAddressed(fb.Center())
		if !ok {
			continue
		}
		donor, ok := addressed[donorID]
		if !ok {
			continue
		}
		inherited := *donor
		records[fb.ID] = objectRecord(fb, &inherited)
		records[fb.ID].Properties.DRef = donorID.Hex()
	}

	w, err := kv.NewWriter(cfg.GeoObjectsKeyValue, kv.WriterOptions{DataVersion: cfg.DataVersion})
	if err != nil {
		return err
	}
	// the bbolt mirror serves keyed reads without rescanning the JSONL
	mirror, err := kv.OpenStore(cfg.GeoObjectsKeyValue + ".db")
	if err != nil {
		w.Close()
		return err
	}
	defer mirror.Close()

	// an explicit node list narrows the artifact to the requested ids
	nodeFilter, err := loadNodeList(cfg.NodesListPath)
	if err != nil {
		w.Close()
		return err
	}

	var batchIDs []osmmodel.ObjectID
	var batchRecs []*kv.Record
	for _, fb := range objects {
		rec, ok := records[fb.ID]
		if !ok {
			continue
		}
		if nodeFilter != nil && fb.ID.Source() == osmmodel.SourceNode &&
			!nodeFilter[int64(fb.ID.Serial())] {
			continue
		}
		if err := w.Write(fb.ID, rec); err != nil {
			w.Close()
			return err
		}
		batchIDs = append(batchIDs, fb.ID)
		batchRecs = append(batchRecs, rec)
		if len(batchIDs) == kvMirrorBatch {
			if err := mirror.SaveBatch(batchIDs, batchRecs); err != nil {
				w.Close()
				return err
			}
			batchIDs, batchRecs = batchIDs[:0], batchRecs[:0]
		}
	}
	if len(batchIDs) > 0 {
		if err := mirror.SaveBatch(batchIDs, batchRecs); err != nil {
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}

	if cfg.IdsWithoutAddresses != "" {
		if err := writeIDList(cfg.IdsWithoutAddresses, withoutAddress); err != nil {
			return err
		}
	}
	bar.Add(1)
	return nil
}

// objectAddress resolves the full nested address of one object: the
// region chain at its center plus its own street and house number. POIs
// without a house number return nil and inherit later.
func objectAddress(finder *region.Finder, fb *feature.Builder) *kv.Address {
	if fb.HouseNumber == "" {
		return nil
	}
	info, ok := finder.Find(fb.Center())
	if !ok {
		return nil
	}
	var addr kv.Address
	for t, name := range finder.AddressChain(info) {
		addr.SetSlot(t, name)
	}
	addr.Street = fb.Street
	addr.Building = fb.HouseNumber
	return &addr
}

func objectRecord(fb *feature.Builder, addr *kv.Address) *kv.Record {
	kind := "poi"
	switch {
	case fb.Class.Has(feature.ClassBuilding):
		kind = hierarchy.Building.String()
	case fb.Class.Has(feature.ClassStreet):
		kind = hierarchy.Street.String()
	}
	name := fb.Name()
	if name == "" {
		name = fb.HouseNumber
	}
	center := fb.Center()
	return &kv.Record{
		Type:     "Feature",
		Geometry: kv.PointGeometry(center.Lat, center.Lon),
		Properties: kv.Properties{
			Kind: kind,
			Locales: map[string]kv.LocaleRecord{
				feature.DefaultLocale: {Name: name, Address: *addr},
			},
		},
	}
}

// loadNodeList reads one decimal node id per line; nil filter when the
// path is unset.
func loadNodeList(path string) (map[int64]bool, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errs.Fatalf(err, errs.ErrIO, "open node list %s", path)
	}
	defer f.Close()
	out := make(map[int64]bool)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		id, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			continue
		}
		out[id] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Fatalf(err, errs.ErrIO, "read node list %s", path)
	}
	return out, nil
}

func writeIDList(path string, ids []osmmodel.ObjectID) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return errs.Fatalf(err, errs.ErrIO, "open id list %s", path)
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	for _, id := range ids {
		fmt.Fprintf(w, "%s\n", id.Hex())
	}
	if err := w.Flush(); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "flush id list %s", path)
	}
	return nil
}
