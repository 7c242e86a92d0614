package osmmodel

import "fmt"

// Source encodes where an ObjectID came from. Stored in the top two bits
// so that raw uint64 comparison keeps ids of one source contiguous and
// the whole keyspace lexicographically sortable.
type Source uint8

const (
	SourceNode Source = iota
	SourceWay
	SourceRelation
	SourceSurrogate
)

func (s Source) String() string {
	switch s {
	case SourceNode:
		return "osm-node"
	case SourceWay:
		return "osm-way"
	case SourceRelation:
		return "osm-relation"
	default:
		return "surrogate"
	}
}

const (
	sourceShift = 62
	serialMask  = (uint64(1) << sourceShift) - 1
)

// ObjectID is the stable 64-bit key of a geo object: two source bits on
// top, the OSM id (or a surrogate serial) below.
type ObjectID uint64

// MakeObjectID packs a source kind and a serial into one id. Serials
// beyond 62 bits do not occur in OSM data; the constructor truncates
// rather than failing so surrogate counters can wrap safely.
func MakeObjectID(src Source, serial uint64) ObjectID {
	return ObjectID(uint64(src)<<sourceShift | serial&serialMask)
}

// NodeID/WayID/RelationID build ids for parsed elements.
func NodeID(id int64) ObjectID     { return MakeObjectID(SourceNode, uint64(id)) }
func WayID(id int64) ObjectID      { return MakeObjectID(SourceWay, uint64(id)) }
func RelationID(id int64) ObjectID { return MakeObjectID(SourceRelation, uint64(id)) }

// ElementID builds the id for any parsed element.
func ElementID(e *Element) ObjectID {
	switch e.Kind {
	case KindNode:
		return NodeID(e.ID)
	case KindWay:
		return WayID(e.ID)
	default:
		return RelationID(e.ID)
	}
}

// Source returns the id's source kind.
func (id ObjectID) Source() Source { return Source(uint64(id) >> sourceShift) }

// Serial returns the id without its source bits.
func (id ObjectID) Serial() uint64 { return uint64(id) & serialMask }

// Hex renders the id the way the KV file keys it: 16 uppercase hex digits.
func (id ObjectID) Hex() string { return fmt.Sprintf("%016X", uint64(id)) }

func (id ObjectID) String() string {
	return fmt.Sprintf("%s:%d", id.Source(), id.Serial())
}
