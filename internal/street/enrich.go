package street

import (
	"hash/fnv"
	"runtime"
	"sync"

	"github.com/mapsme/geocore/internal/covering"
	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/geometry"
	"github.com/mapsme/geocore/internal/intervalindex"
	"github.com/mapsme/geocore/internal/osmmodel"
)

// claim records which address point currently owns a null building.
type claim struct {
	addrPoint osmmodel.ObjectID
	dist      float64
}

// claimArena shards the claims by building-id hash, mirroring the
// region arenas: one mutex per arena.
type claimArena struct {
	mu     sync.Mutex
	claims map[osmmodel.ObjectID]claim
}

// NullBuildingMaintainer assigns each null building (a building polygon
// with no address of its own) at most one representative address point.
type NullBuildingMaintainer struct {
	arenas []*claimArena
	// reverse: address point -> claimed building
	reverseMu sync.Mutex
	reverse   map[osmmodel.ObjectID]osmmodel.ObjectID
}

func NewNullBuildingMaintainer() *NullBuildingMaintainer {
	threads := runtime.NumCPU()
	arenas := make([]*claimArena, threads*threads)
	for i := range arenas {
		arenas[i] = &claimArena{claims: make(map[osmmodel.ObjectID]claim)}
	}
	return &NullBuildingMaintainer{
		arenas:  arenas,
		reverse: make(map[osmmodel.ObjectID]osmmodel.ObjectID),
	}
}

func (m *NullBuildingMaintainer) arenaFor(id osmmodel.ObjectID) *claimArena {
	h := fnv.New32a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(uint64(id) >> (8 * i))
	}
	h.Write(buf[:])
	return m.arenas[h.Sum32()%uint32(len(m.arenas))]
}

// Claim offers an address point to a building; the point closest to the
// building's centroid wins, ties by lower point id.
func (m *NullBuildingMaintainer) Claim(building, addrPoint osmmodel.ObjectID, dist float64) {
	arena := m.arenaFor(building)
	arena.mu.Lock()
	defer arena.mu.Unlock()
	cur, ok := arena.claims[building]
	if ok && (cur.dist < dist || (cur.dist == dist && cur.addrPoint <= addrPoint)) {
		return
	}
	arena.claims[building] = claim{addrPoint: addrPoint, dist: dist}
}

// Resolve finalises the claims and builds the two-way mapping.
func (m *NullBuildingMaintainer) Resolve() {
	m.reverseMu.Lock()
	defer m.reverseMu.Unlock()
	for _, arena := range m.arenas {
		arena.mu.Lock()
		for building, c := range arena.claims {
			m.reverse[c.addrPoint] = building
		}
		arena.mu.Unlock()
	}
}

// BuildingOf returns the building claimed by an address point.
func (m *NullBuildingMaintainer) BuildingOf(addrPoint osmmodel.ObjectID) (osmmodel.ObjectID, bool) {
	m.reverseMu.Lock()
	defer m.reverseMu.Unlock()
	b, ok := m.reverse[addrPoint]
	return b, ok
}

// AddressPointOf returns the representative address point of a building.
func (m *NullBuildingMaintainer) AddressPointOf(building osmmodel.ObjectID) (osmmodel.ObjectID, bool) {
	arena := m.arenaFor(building)
	arena.mu.Lock()
	defer arena.mu.Unlock()
	c, ok := arena.claims[building]
	return c.addrPoint, ok
}

// Enricher runs the null-building and POI passes over the geo-objects
// file, querying the geo-objects interval index for spatial lookups.
type Enricher struct {
	index     *intervalindex.Reader
	byID      map[osmmodel.ObjectID]*feature.Builder
	maintainer *NullBuildingMaintainer
}

func NewEnricher(index *intervalindex.Reader, objects []*feature.Builder) *Enricher {
	byID := make(map[osmmodel.ObjectID]*feature.Builder, len(objects))
	for _, fb := range objects {
		byID[fb.ID] = fb
	}
	return &Enricher{
		index:      index,
		byID:       byID,
		maintainer: NewNullBuildingMaintainer(),
	}
}

func (e *Enricher) Maintainer() *NullBuildingMaintainer { return e.maintainer }

// objectsAt collects the geo objects whose covering contains the point.
func (e *Enricher) objectsAt(p geometry.Point) []*feature.Builder {
	var out []*feature.Builder
	seen := make(map[osmmodel.ObjectID]bool)
	leaf := covering.CellFromPoint(p, covering.GeoObjectsDepthLevels-1)
	for _, key := range intervalindex.AncestorKeys(leaf.Code()) {
		e.index.ForEachAtKey(key, func(value uint64) {
			id := osmmodel.ObjectID(value)
			if seen[id] {
				return
			}
			seen[id] = true
			if fb, ok := e.byID[id]; ok {
				out = append(out, fb)
			}
		})
	}
	return out
}

// isNullBuilding: a building polygon with no address of its own.
func isNullBuilding(fb *feature.Builder) bool {
	return fb.Class.Has(feature.ClassBuilding) &&
		fb.GeomKind() == feature.GeomArea &&
		fb.HouseNumber == ""
}

// ClaimNullBuildings pairs every polygon-less address point with a null
// building at its location.
func (e *Enricher) ClaimNullBuildings(objects []*feature.Builder) {
	for _, fb := range objects {
		if fb.HouseNumber == "" || fb.GeomKind() != feature.GeomPoint {
			continue
		}
		for _, cand := range e.objectsAt(fb.Point()) {
			if !isNullBuilding(cand) {
				continue
			}
			if !geometry.PointInRing(fb.Point(), cand.Outer()) {
				continue
			}
			dist := geometry.DistSquared(fb.Point(), geometry.Centroid(cand.Outer()))
			e.maintainer.Claim(cand.ID, fb.ID, dist)
		}
	}
	e.maintainer.Resolve()
}

// ApplyNullBuildings rewrites the object list: each claimed address
// point takes over its building's polygon geometry and the original
// null building is dropped.
func (e *Enricher) ApplyNullBuildings(objects []*feature.Builder) []*feature.Builder {
	claimed := make(map[osmmodel.ObjectID]bool)
	out := make([]*feature.Builder, 0, len(objects))
	for _, fb := range objects {
		if building, ok := e.maintainer.BuildingOf(fb.ID); ok {
			if donor, found := e.byID[building]; found {
				if err := fb.SetArea(donor.Outer(), donor.Holes()); err == nil {
					claimed[building] = true
				}
			}
		}
		out = append(out, fb)
	}
	kept := out[:0]
	for _, fb := range out {
		if claimed[fb.ID] {
			continue
		}
		kept = append(kept, fb)
	}
	return kept
}

// AddressSource is how the POI pass reads an already-enriched address
// for a candidate object.
type AddressSource func(id osmmodel.ObjectID) (hasAddress bool)

// NearestAddressed finds the best addressed geo object at a POI's
// location: a real addressed object wins over a null building's
// recorded address point.
func (e *Enricher) NearestAddressed(p geometry.Point) (osmmodel.ObjectID, bool) {
	var bestID osmmodel.ObjectID
	bestDist := -1.0
	bestReal := false
	consider := func(id osmmodel.ObjectID, center geometry.Point, real bool) {
		d := geometry.DistSquared(p, center)
		if bestDist < 0 || (real && !bestReal) ||
			(real == bestReal && (d < bestDist || (d == bestDist && id < bestID))) {
			bestID, bestDist, bestReal = id, d, real
		}
	}
	for _, cand := range e.objectsAt(p) {
		if cand.HouseNumber != "" {
			consider(cand.ID, cand.Center(), true)
			continue
		}
		if isNullBuilding(cand) {
			if addrPoint, ok := e.maintainer.AddressPointOf(cand.ID); ok {
				consider(addrPoint, cand.Center(), false)
			}
		}
	}
	return bestID, bestDist >= 0
}

// IsPOI: named, not a building, no house number.
func IsPOI(fb *feature.Builder) bool {
	return fb.Class.Has(feature.ClassPOI) && fb.HouseNumber == "" &&
		!fb.Class.Has(feature.ClassBuilding)
}
