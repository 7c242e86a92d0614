// Package street aggregates street-like features per region, binds
// address points to their streets, and runs the geo-object enrichment
// passes (null buildings, POI address inheritance).
package street

import (
	"hash/fnv"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/geometry"
	"github.com/mapsme/geocore/internal/namedict"
	"github.com/mapsme/geocore/internal/osmmodel"
	"github.com/mapsme/geocore/internal/region"
	"github.com/mapsme/geocore/internal/tokenize"
)

// Street is one logical street within a region: every way fragment,
// square polygon and labelled point sharing a normalised name, merged.
type Street struct {
	ID       osmmodel.ObjectID
	Region   region.Info
	NormName string
	Names    namedict.MultipleNames

	pin         geometry.Point
	pinPriority int // 0 none, 1 line, 2 area, 3 labelled point

	Lines [][]geometry.Point
	Areas [][]geometry.Point

	// BoundAddresses lists the address points attached via addr:street.
	BoundAddresses []osmmodel.ObjectID

	// addressOnly marks streets that exist only as binding targets.
	addressOnly bool

	firstContribution uint64 // arrival order of the default-locale main name
}

// Pin is the chosen center point.
func (s *Street) Pin() geometry.Point { return s.pin }

type arenaKey struct {
	region   osmmodel.ObjectID
	normName string
}

// regionArena shards the street map by region hash; each arena has its
// own mutex so cross-thread contention stays near zero.
type regionArena struct {
	mu      sync.Mutex
	streets map[arenaKey]*Street
}

// Builder assembles streets from the streets intermediate file. Safe
// for concurrent AddFeature/BindAddressPoint calls.
type Builder struct {
	finder *region.Finder
	arenas []*regionArena

	surrogateSerial atomic.Uint64
	arrivalCounter  atomic.Uint64
}

// NewBuilder shards storage across threads^2 arenas.
func NewBuilder(finder *region.Finder) *Builder {
	threads := runtime.NumCPU()
	arenas := make([]*regionArena, threads*threads)
	for i := range arenas {
		arenas[i] = &regionArena{streets: make(map[arenaKey]*Street)}
	}
	return &Builder{finder: finder, arenas: arenas}
}

func (b *Builder) arenaFor(regionID osmmodel.ObjectID) *regionArena {
	h := fnv.New32a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(uint64(regionID) >> (8 * i))
	}
	h.Write(buf[:])
	return b.arenas[h.Sum32()%uint32(len(b.arenas))]
}

// AddFeature traces one street-like feature through the region forest
// and merges it into the per-region streets. Features in no known
// region are skipped.
func (b *Builder) AddFeature(fb *feature.Builder) {
	name := fb.Name()
	if name == "" {
		return
	}
	switch fb.GeomKind() {
	case feature.GeomLine:
		b.addLine(fb)
	case feature.GeomArea:
		info, ok := b.finder.Find(fb.Center())
		if !ok {
			return
		}
		b.merge(info, fb, func(s *Street) {
			s.Areas = append(s.Areas, fb.Outer())
			s.setPin(geometry.Centroid(fb.Outer()), 2)
		})
	case feature.GeomPoint:
		info, ok := b.finder.Find(fb.Point())
		if !ok {
			return
		}
		b.merge(info, fb, func(s *Street) {
			s.setPin(fb.Point(), 3)
		})
	}
}

// addLine splits a polyline at region boundaries: each per-region run
// of points becomes its own path segment in its owning region.
func (b *Builder) addLine(fb *feature.Builder) {
	line := fb.Line()

	type segment struct {
		info   region.Info
		points []geometry.Point
	}
	var segments []segment
	current := -1
	for _, p := range line {
		info, ok := b.finder.Find(p)
		if !ok {
			current = -1
			continue
		}
		if current >= 0 && segments[current].info.Tree == info.Tree &&
			segments[current].info.Index == info.Index {
			segments[current].points = append(segments[current].points, p)
			continue
		}
		if current >= 0 {
			// the boundary point belongs to both segments
			segments[current].points = append(segments[current].points, p)
		}
		segments = append(segments, segment{info: info, points: []geometry.Point{p}})
		current = len(segments) - 1
	}

	kept := segments[:0]
	for _, seg := range segments {
		if len(seg.points) >= 2 {
			kept = append(kept, seg)
		}
	}
	if len(kept) == 0 {
		return
	}

	for i := range kept {
		seg := &kept[i]
		id := fb.ID
		if len(kept) > 1 {
			id = b.nextSurrogate()
		}
		b.mergeWithID(seg.info, fb, id, func(s *Street) {
			s.Lines = append(s.Lines, seg.points)
			s.setPin(seg.points[len(seg.points)/2], 1)
		})
	}
}

func (b *Builder) nextSurrogate() osmmodel.ObjectID {
	return osmmodel.MakeObjectID(osmmodel.SourceSurrogate, b.surrogateSerial.Add(1))
}

func (b *Builder) merge(info region.Info, fb *feature.Builder, apply func(*Street)) {
	b.mergeWithID(info, fb, fb.ID, apply)
}

// mergeWithID is the aggregation point: streets are keyed by region and
// normalised name; the multilingual name table accumulates across all
// contributions, main name winning from the earliest default-locale
// contribution.
func (b *Builder) mergeWithID(info region.Info, fb *feature.Builder, id osmmodel.ObjectID, apply func(*Street)) {
	normName := tokenize.Key(fb.Name())
	if normName == "" {
		return
	}
	arrival := b.arrivalCounter.Add(1)

	arena := b.arenaFor(info.ID())
	arena.mu.Lock()
	defer arena.mu.Unlock()

	key := arenaKey{region: info.ID(), normName: normName}
	s, ok := arena.streets[key]
	if !ok {
		s = &Street{
			ID:                id,
			Region:            info,
			NormName:          normName,
			Names:             namedict.NewMultipleNames(fb.Name()),
			firstContribution: arrival,
		}
		arena.streets[key] = s
	} else {
		if s.addressOnly {
			// a real street contribution outranks a binding stub
			old := s.Names.Main
			s.Names.Main, s.ID = fb.Name(), id
			s.Names.AddAlt(old)
			s.firstContribution = arrival
		}
		s.Names.AddAlt(fb.Name())
	}
	s.addressOnly = false
	for loc, alt := range fb.Names {
		if loc != feature.DefaultLocale {
			s.Names.AddAlt(alt)
		}
	}
	apply(s)
}

func (s *Street) setPin(p geometry.Point, priority int) {
	if priority > s.pinPriority {
		s.pin = p
		s.pinPriority = priority
	}
}

// BindAddressPoint attaches a building or address point carrying
// addr:street to the matching street in its region, creating the street
// as an address-only target when it does not exist yet.
func (b *Builder) BindAddressPoint(fb *feature.Builder) {
	if fb.Street == "" {
		return
	}
	info, ok := b.finder.Find(fb.Center())
	if !ok {
		return
	}
	normName := tokenize.Key(fb.Street)
	if normName == "" {
		return
	}

	arena := b.arenaFor(info.ID())
	arena.mu.Lock()
	defer arena.mu.Unlock()

	key := arenaKey{region: info.ID(), normName: normName}
	s, ok := arena.streets[key]
	if !ok {
		s = &Street{
			ID:          b.nextSurrogate(),
			Region:      info,
			NormName:    normName,
			Names:       namedict.NewMultipleNames(fb.Street),
			addressOnly: true,
		}
		s.setPin(fb.Center(), 1)
		arena.streets[key] = s
	}
	s.BoundAddresses = append(s.BoundAddresses, fb.ID)
}

// Streets snapshots every aggregated street, ordered deterministically
// by region then normalised name.
func (b *Builder) Streets() []*Street {
	var out []*Street
	for _, arena := range b.arenas {
		arena.mu.Lock()
		for _, s := range arena.streets {
			out = append(out, s)
		}
		arena.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Region.ID() != out[j].Region.ID() {
			return out[i].Region.ID() < out[j].Region.ID()
		}
		return out[i].NormName < out[j].NormName
	})
	return out
}

// Lookup finds the street for a region and raw name.
func (b *Builder) Lookup(info region.Info, name string) (*Street, bool) {
	normName := tokenize.Key(name)
	arena := b.arenaFor(info.ID())
	arena.mu.Lock()
	defer arena.mu.Unlock()
	s, ok := arena.streets[arenaKey{region: info.ID(), normName: normName}]
	return s, ok
}
