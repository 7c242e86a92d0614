// Package osmiter adapts the paulmach/osm scanners into the pipeline's
// opaque element iterator: PBF and XML inputs look the same downstream,
// and batches fan out to parallel consumers.
package osmiter

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"golang.org/x/sync/errgroup"

	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/osmmodel"
)

// FileType selects the byte-level decoder.
type FileType int

const (
	FileO5M FileType = iota // binary input: decoded by the PBF scanner
	FileXML
)

func ParseFileType(s string) (FileType, error) {
	switch s {
	case "o5m", "pbf":
		return FileO5M, nil
	case "xml":
		return FileXML, nil
	default:
		return FileO5M, fmt.Errorf("unknown osm file type %q (want xml|o5m)", s)
	}
}

// batchSize keeps handler invocations coarse so the worker pool deals in
// closures over thousands of elements, not per-element calls.
const batchSize = 4096

// ForEachBatch streams the file once, converting scanner objects into
// Elements and handing fixed-size batches to handler on worker
// goroutines. workers <= 0 sizes the pool to the CPU count. Handler
// calls are concurrent; order across batches is not guaranteed.
func ForEachBatch(ctx context.Context, path string, fileType FileType, workers int,
	handler func(batch []osmmodel.Element) error) error {

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	f, err := os.Open(path)
	if err != nil {
		return errs.Fatalf(err, errs.ErrIO, "open osm file %s", path)
	}
	defer f.Close()

	var scanner osm.Scanner
	switch fileType {
	case FileXML:
		scanner = osmxml.New(ctx, f)
	default:
		scanner = osmpbf.New(ctx, f, workers)
	}
	defer scanner.Close()

	group, ctx := errgroup.WithContext(ctx)
	batches := make(chan []osmmodel.Element, workers)
	for i := 0; i < workers; i++ {
		group.Go(func() error {
			for batch := range batches {
				if err := handler(batch); err != nil {
					return err
				}
			}
			return nil
		})
	}

	feed := func(batch []osmmodel.Element) bool {
		select {
		case batches <- batch:
			return true
		case <-ctx.Done():
			return false
		}
	}

	batch := make([]osmmodel.Element, 0, batchSize)
	for scanner.Scan() {
		el, ok := convert(scanner.Object())
		if !ok {
			continue
		}
		batch = append(batch, el)
		if len(batch) == batchSize {
			if !feed(batch) {
				break
			}
			batch = make([]osmmodel.Element, 0, batchSize)
		}
	}
	if len(batch) > 0 {
		feed(batch)
	}
	close(batches)

	if err := group.Wait(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		return errs.Fatalf(err, errs.ErrBadFormat, "scan osm file %s", path)
	}
	return nil
}

func convert(o osm.Object) (osmmodel.Element, bool) {
	switch v := o.(type) {
	case *osm.Node:
		return osmmodel.Element{
			Kind: osmmodel.KindNode,
			ID:   int64(v.ID),
			Lat:  v.Lat,
			Lon:  v.Lon,
			Tags: v.TagMap(),
		}, true
	case *osm.Way:
		refs := make([]int64, len(v.Nodes))
		for i, n := range v.Nodes {
			refs[i] = int64(n.ID)
		}
		return osmmodel.Element{
			Kind:     osmmodel.KindWay,
			ID:       int64(v.ID),
			NodeRefs: refs,
			Tags:     v.TagMap(),
		}, true
	case *osm.Relation:
		members := make([]osmmodel.Member, 0, len(v.Members))
		for _, m := range v.Members {
			var kind osmmodel.Kind
			switch m.Type {
			case osm.TypeNode:
				kind = osmmodel.KindNode
			case osm.TypeWay:
				kind = osmmodel.KindWay
			case osm.TypeRelation:
				kind = osmmodel.KindRelation
			default:
				continue
			}
			members = append(members, osmmodel.Member{Ref: m.Ref, Kind: kind, Role: m.Role})
		}
		return osmmodel.Element{
			Kind:    osmmodel.KindRelation,
			ID:      int64(v.ID),
			Members: members,
			Tags:    v.TagMap(),
		}, true
	default:
		return osmmodel.Element{}, false
	}
}
