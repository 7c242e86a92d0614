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

// offsetFlushThreshold bounds the in-memory block of (id, offset) pairs
// before it is sorted and appended to the index file.
const offsetFlushThreshold = 10_000_000

type offsetPair struct {
	id     int64
	offset int64
}

// OffsetIndex maps record ids to their byte offset in a sibling record
// file. Pairs are appended in arrival order, flushed in sorted blocks,
// and merge-sorted on load. Appends across producer threads serialise
// under one mutex per index file.
type OffsetIndex struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	pending []offsetPair
	blocks  []int // pair count per flushed block

	sorted []offsetPair // populated by Load
}

func NewOffsetIndex(path string) (*OffsetIndex, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, errs.Fatalf(err, errs.ErrIO, "open offset index %s", path)
	}
	return &OffsetIndex{path: path, file: f}, nil
}

func (oi *OffsetIndex) Append(id, offset int64) error {
	oi.mu.Lock()
	defer oi.mu.Unlock()
	oi.pending = append(oi.pending, offsetPair{id: id, offset: offset})
	if len(oi.pending) >= offsetFlushThreshold {
		return oi.flushLocked()
	}
	return nil
}

func (oi *OffsetIndex) flushLocked() error {
	if len(oi.pending) == 0 {
		return nil
	}
	sort.Slice(oi.pending, func(i, j int) bool {
		a, b := oi.pending[i], oi.pending[j]
		if a.id != b.id {
			return a.id < b.id
		}
		return a.offset < b.offset
	})
	w := bufio.NewWriterSize(oi.file, 1<<20)
	var rec [16]byte
	for _, p := range oi.pending {
		binary.LittleEndian.PutUint64(rec[0:], uint64(p.id))
		binary.LittleEndian.PutUint64(rec[8:], uint64(p.offset))
		if _, err := w.Write(rec[:]); err != nil {
			return errs.Fatalf(err, errs.ErrIO, "flush offset index %s", oi.path)
		}
	}
	if err := w.Flush(); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "flush offset index %s", oi.path)
	}
	oi.blocks = append(oi.blocks, len(oi.pending))
	oi.pending = oi.pending[:0]
	return nil
}

// Load flushes the tail block and merge-sorts every block into memory.
// Duplicate ids keep the pair with the larger offset: a later rewrite of
// a record fully replaces the earlier one.
func (oi *OffsetIndex) Load() error {
	oi.mu.Lock()
	defer oi.mu.Unlock()
	if err := oi.flushLocked(); err != nil {
		return err
	}
	if _, err := oi.file.Seek(0, io.SeekStart); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "seek offset index %s", oi.path)
	}

	r := bufio.NewReaderSize(oi.file, 1<<20)
	runs := make([][]offsetPair, 0, len(oi.blocks))
	var rec [16]byte
	for _, count := range oi.blocks {
		run := make([]offsetPair, count)
		for i := range run {
			if _, err := io.ReadFull(r, rec[:]); err != nil {
				return errs.Fatalf(err, errs.ErrBadFormat, "read offset index %s", oi.path)
			}
			run[i] = offsetPair{
				id:     int64(binary.LittleEndian.Uint64(rec[0:])),
				offset: int64(binary.LittleEndian.Uint64(rec[8:])),
			}
		}
		runs = append(runs, run)
	}

	mergedPairs := merge.K(func(a, b offsetPair) bool {
		if a.id != b.id {
			return a.id < b.id
		}
		return a.offset < b.offset
	}, runs...)

	// keep the last offset per id
	oi.sorted = oi.sorted[:0]
	for _, p := range mergedPairs {
		if n := len(oi.sorted); n > 0 && oi.sorted[n-1].id == p.id {
			oi.sorted[n-1] = p
			continue
		}
		oi.sorted = append(oi.sorted, p)
	}
	return nil
}

// Lookup returns the record offset for id after Load.
func (oi *OffsetIndex) Lookup(id int64) (int64, bool) {
	i := sort.Search(len(oi.sorted), func(i int) bool { return oi.sorted[i].id >= id })
	if i < len(oi.sorted) && oi.sorted[i].id == id {
		return oi.sorted[i].offset, true
	}
	return 0, false
}

// Len reports the number of distinct ids after Load.
func (oi *OffsetIndex) Len() int { return len(oi.sorted) }

func (oi *OffsetIndex) Close() error {
	return oi.file.Close()
}
