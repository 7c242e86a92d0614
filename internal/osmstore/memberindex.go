package osmstore

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/merge"
)

// MemberIndex is the multi-map from a member id (node or way) to the ids
// of the retained relations containing it. Pairs spill to disk in sorted
// chunks and are merge-sorted on load, same discipline as OffsetIndex.
type MemberIndex struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	pending []offsetPair // (memberID, relationID)
	blocks  []int

	sorted []offsetPair
}

func NewMemberIndex(path string) (*MemberIndex, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, errs.Fatalf(err, errs.ErrIO, "open member index %s", path)
	}
	return &MemberIndex{path: path, file: f}, nil
}

func (mi *MemberIndex) Append(memberID, relationID int64) error {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	mi.pending = append(mi.pending, offsetPair{id: memberID, offset: relationID})
	if len(mi.pending) >= offsetFlushThreshold {
		return mi.flushLocked()
	}
	return nil
}

func (mi *MemberIndex) flushLocked() error {
	if len(mi.pending) == 0 {
		return nil
	}
	sort.Slice(mi.pending, func(i, j int) bool {
		a, b := mi.pending[i], mi.pending[j]
		if a.id != b.id {
			return a.id < b.id
		}
		return a.offset < b.offset
	})
	w := bufio.NewWriterSize(mi.file, 1<<20)
	var rec [16]byte
	for _, p := range mi.pending {
		binary.LittleEndian.PutUint64(rec[0:], uint64(p.id))
		binary.LittleEndian.PutUint64(rec[8:], uint64(p.offset))
		if _, err := w.Write(rec[:]); err != nil {
			return errs.Fatalf(err, errs.ErrIO, "flush member index %s", mi.path)
		}
	}
	if err := w.Flush(); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "flush member index %s", mi.path)
	}
	mi.blocks = append(mi.blocks, len(mi.pending))
	mi.pending = mi.pending[:0]
	return nil
}

func (mi *MemberIndex) Load() error {
	mi.mu.Lock()
	defer mi.mu.Unlock()
	if err := mi.flushLocked(); err != nil {
		return err
	}
	if _, err := mi.file.Seek(0, io.SeekStart); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "seek member index %s", mi.path)
	}
	r := bufio.NewReaderSize(mi.file, 1<<20)
	runs := make([][]offsetPair, 0, len(mi.blocks))
	var rec [16]byte
	for _, count := range mi.blocks {
		run := make([]offsetPair, count)
		for i := range run {
			if _, err := io.ReadFull(r, rec[:]); err != nil {
				return errs.Fatalf(err, errs.ErrBadFormat, "read member index %s", mi.path)
			}
			run[i] = offsetPair{
				id:     int64(binary.LittleEndian.Uint64(rec[0:])),
				offset: int64(binary.LittleEndian.Uint64(rec[8:])),
			}
		}
		runs = append(runs, run)
	}
	mi.sorted = merge.K(func(a, b offsetPair) bool {
		if a.id != b.id {
			return a.id < b.id
		}
		return a.offset < b.offset
	}, runs...)
	return nil
}

// ForEachRelation visits every relation id recorded for the member.
func (mi *MemberIndex) ForEachRelation(memberID int64, fn func(relationID int64)) {
	i := sort.Search(len(mi.sorted), func(i int) bool { return mi.sorted[i].id >= memberID })
	var last int64 = -1
	for ; i < len(mi.sorted) && mi.sorted[i].id == memberID; i++ {
		if rel := mi.sorted[i].offset; rel != last {
			fn(rel)
			last = rel
		}
	}
}

func (mi *MemberIndex) Close() error {
	return mi.file.Close()
}
