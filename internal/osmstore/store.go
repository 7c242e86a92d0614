package osmstore

import (
	"encoding/binary"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/logger"
	"github.com/mapsme/geocore/internal/osmmodel"
)

// WayRecord is the intermediate-store form of a way.
type WayRecord struct {
	ID      int64
	NodeIDs []uint64
}

// RelationMember is one member of a retained relation, role preserved.
type RelationMember struct {
	Ref  int64
	Role string
}

// RelationRecord is the intermediate-store form of a retained relation.
type RelationRecord struct {
	ID          int64
	NodeMembers []RelationMember
	WayMembers  []RelationMember
	Tags        map[string]string
}

// Store is the C1 intermediate store: one directory holding the point
// file, way and relation record files with offset indices, and the two
// member-to-relation multimaps.
type Store struct {
	dir       string
	points    PointStorage
	ways      *recordFile
	relations *recordFile
	nodeIdx   *MemberIndex
	wayIdx    *MemberIndex
	stats     errs.ParsingStats
}

// Open lays the five logical files out under dir.
func Open(dir string, kind StorageKind, maxNodeID int64) (*Store, error) {
	points, err := NewPointStorage(kind, filepath.Join(dir, "nodes"), maxNodeID)
	if err != nil {
		return nil, err
	}
	ways, err := newRecordFile(filepath.Join(dir, "ways"), filepath.Join(dir, "ways.offsets"))
	if err != nil {
		points.Close()
		return nil, err
	}
	relations, err := newRecordFile(filepath.Join(dir, "relations"), filepath.Join(dir, "relations.offsets"))
	if err != nil {
		points.Close()
		ways.Close()
		return nil, err
	}
	nodeIdx, err := NewMemberIndex(filepath.Join(dir, "nodes.idx"))
	if err != nil {
		points.Close()
		ways.Close()
		relations.Close()
		return nil, err
	}
	wayIdx, err := NewMemberIndex(filepath.Join(dir, "ways.idx"))
	if err != nil {
		points.Close()
		ways.Close()
		relations.Close()
		nodeIdx.Close()
		return nil, err
	}
	return &Store{
		dir:       dir,
		points:    points,
		ways:      ways,
		relations: relations,
		nodeIdx:   nodeIdx,
		wayIdx:    wayIdx,
	}, nil
}

// BulkWrite persists a pre-grouped batch of one element kind. Producer
// threads call this concurrently; the writers serialise internally and
// record order across threads is not guaranteed (nor needed).
func (s *Store) BulkWrite(elements []osmmodel.Element) error {
	for i := range elements {
		e := &elements[i]
		switch e.Kind {
		case osmmodel.KindNode:
			if err := s.points.Put(e.ID, e.Lat, e.Lon); err != nil {
				return err
			}
		case osmmodel.KindWay:
			nodeIDs := make([]uint64, len(e.NodeRefs))
			for j, ref := range e.NodeRefs {
				nodeIDs[j] = uint64(ref)
			}
			if err := s.PutWay(WayRecord{ID: e.ID, NodeIDs: nodeIDs}); err != nil {
				return err
			}
		case osmmodel.KindRelation:
			// the relation type filter is a strict write-time invariant
			if !osmmodel.IsRetainedRelation(e) {
				continue
			}
			rec := RelationRecord{ID: e.ID, Tags: e.Tags}
			for _, m := range e.Members {
				switch m.Kind {
				case osmmodel.KindNode:
					rec.NodeMembers = append(rec.NodeMembers, RelationMember{Ref: m.Ref, Role: m.Role})
				case osmmodel.KindWay:
					rec.WayMembers = append(rec.WayMembers, RelationMember{Ref: m.Ref, Role: m.Role})
				}
			}
			if err := s.PutRelation(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// PutWay persists one way record, fully replacing any prior record with
// the same id.
func (s *Store) PutWay(rec WayRecord) error {
	return s.ways.Put(rec.ID, encodeWay(rec))
}

// GetWay resolves a way id to its node-id sequence. A missing way is not
// an error: the caller logs a warning and skips the feature.
func (s *Store) GetWay(id int64) (WayRecord, bool, error) {
	payload, ok, err := s.ways.Get(id)
	if err != nil || !ok {
		return WayRecord{}, ok, err
	}
	rec, err := decodeWay(id, payload)
	if err != nil {
		return WayRecord{}, false, err
	}
	return rec, true, nil
}

// PutRelation persists one retained relation and indexes its members.
func (s *Store) PutRelation(rec RelationRecord) error {
	if err := s.relations.Put(rec.ID, encodeRelation(rec)); err != nil {
		return err
	}
	for _, m := range rec.NodeMembers {
		if err := s.nodeIdx.Append(m.Ref, rec.ID); err != nil {
			return err
		}
	}
	for _, m := range rec.WayMembers {
		if err := s.wayIdx.Append(m.Ref, rec.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetRelation(id int64) (RelationRecord, bool, error) {
	payload, ok, err := s.relations.Get(id)
	if err != nil || !ok {
		return RelationRecord{}, ok, err
	}
	rec, err := decodeRelation(id, payload)
	if err != nil {
		return RelationRecord{}, false, err
	}
	return rec, true, nil
}

// GetNode looks the point storage up.
func (s *Store) GetNode(id int64) (lat, lon float64, ok bool) {
	return s.points.Get(id)
}

// RelationsOfNode / RelationsOfWay list the retained relations a member
// participates in.
func (s *Store) RelationsOfNode(id int64, fn func(relationID int64)) {
	s.nodeIdx.ForEachRelation(id, fn)
}

func (s *Store) RelationsOfWay(id int64, fn func(relationID int64)) {
	s.wayIdx.ForEachRelation(id, fn)
}

// Freeze ends the write phase: flushes and loads every index, mmaps the
// point file for reads.
func (s *Store) Freeze() error {
	if err := s.points.Freeze(); err != nil {
		return err
	}
	if err := s.ways.Freeze(); err != nil {
		return err
	}
	if err := s.relations.Freeze(); err != nil {
		return err
	}
	if err := s.nodeIdx.Load(); err != nil {
		return err
	}
	if err := s.wayIdx.Load(); err != nil {
		return err
	}
	logger.Get().Info("intermediate store frozen",
		zap.String("dir", s.dir),
		zap.Int("ways", s.ways.index.Len()),
		zap.Int("relations", s.relations.index.Len()))
	return nil
}

func (s *Store) Close() error {
	var firstErr error
	for _, c := range []interface{ Close() error }{s.points, s.ways, s.relations, s.nodeIdx, s.wayIdx} {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func encodeWay(rec WayRecord) []byte {
	buf := binary.AppendUvarint(nil, uint64(len(rec.NodeIDs)))
	for _, id := range rec.NodeIDs {
		buf = binary.AppendUvarint(buf, id)
	}
	return buf
}

func decodeWay(id int64, payload []byte) (WayRecord, error) {
	rec := WayRecord{ID: id}
	count, n := binary.Uvarint(payload)
	if n <= 0 {
		return rec, errs.Fatalf(nil, errs.ErrBadFormat, "bad way record %d", id)
	}
	payload = payload[n:]
	rec.NodeIDs = make([]uint64, 0, count)
	for i := uint64(0); i < count; i++ {
		v, n := binary.Uvarint(payload)
		if n <= 0 {
			return rec, errs.Fatalf(nil, errs.ErrBadFormat, "truncated way record %d", id)
		}
		rec.NodeIDs = append(rec.NodeIDs, v)
		payload = payload[n:]
	}
	return rec, nil
}

func encodeRelation(rec RelationRecord) []byte {
	buf := appendMembers(nil, rec.NodeMembers)
	buf = appendMembers(buf, rec.WayMembers)
	keys := make([]string, 0, len(rec.Tags))
	for k := range rec.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	buf = binary.AppendUvarint(buf, uint64(len(keys)))
	for _, k := range keys {
		buf = appendLenString(buf, k)
		buf = appendLenString(buf, rec.Tags[k])
	}
	return buf
}

func decodeRelation(id int64, payload []byte) (RelationRecord, error) {
	rec := RelationRecord{ID: id}
	var err error
	rec.NodeMembers, payload, err = readMembers(id, payload)
	if err != nil {
		return rec, err
	}
	rec.WayMembers, payload, err = readMembers(id, payload)
	if err != nil {
		return rec, err
	}
	count, n := binary.Uvarint(payload)
	if n <= 0 {
		return rec, errs.Fatalf(nil, errs.ErrBadFormat, "truncated relation record %d", id)
	}
	payload = payload[n:]
	rec.Tags = make(map[string]string, count)
	for i := uint64(0); i < count; i++ {
		var k, v string
		k, payload, err = readLenString(id, payload)
		if err != nil {
			return rec, err
		}
		v, payload, err = readLenString(id, payload)
		if err != nil {
			return rec, err
		}
		rec.Tags[k] = v
	}
	return rec, nil
}

func appendMembers(buf []byte, members []RelationMember) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(members)))
	for _, m := range members {
		buf = binary.AppendUvarint(buf, uint64(m.Ref))
		buf = appendLenString(buf, m.Role)
	}
	return buf
}

func readMembers(id int64, payload []byte) ([]RelationMember, []byte, error) {
	count, n := binary.Uvarint(payload)
	if n <= 0 {
		return nil, nil, errs.Fatalf(nil, errs.ErrBadFormat, "truncated relation record %d", id)
	}
	payload = payload[n:]
	members := make([]RelationMember, 0, count)
	for i := uint64(0); i < count; i++ {
		ref, n := binary.Uvarint(payload)
		if n <= 0 {
			return nil, nil, errs.Fatalf(nil, errs.ErrBadFormat, "truncated relation record %d", id)
		}
		payload = payload[n:]
		role, rest, err := readLenString(id, payload)
		if err != nil {
			return nil, nil, err
		}
		payload = rest
		members = append(members, RelationMember{Ref: int64(ref), Role: role})
	}
	return members, payload, nil
}

func appendLenString(buf []byte, s string) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func readLenString(id int64, payload []byte) (string, []byte, error) {
	l, n := binary.Uvarint(payload)
	if n <= 0 || uint64(len(payload)-n) < l {
		return "", nil, errs.Fatalf(nil, errs.ErrBadFormat, "truncated relation record %d", id)
	}
	return string(payload[n : n+int(l)]), payload[n+int(l):], nil
}
