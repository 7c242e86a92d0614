// Package osmstore is the on-disk intermediate store: resolved node
// coordinates, way and relation records with offset indices, and the
// member-to-relation multimaps.
package osmstore

import (
	"fmt"
	"math"
)

// StorageKind selects the point-storage variant at startup. There is no
// runtime switching: the choice is a config enum fixed before the first
// write.
type StorageKind int

const (
	// StorageRaw is a plain file of fixed 8-byte slots indexed by id:
	// seek-write, mmap-read.
	StorageRaw StorageKind = iota
	// StorageMap is an append-only record file with an in-memory hash
	// built on load.
	StorageMap
	// StorageMem is the mmap-backed raw file with a large virtual
	// reservation for direct id indexing.
	StorageMem
)

func ParseStorageKind(s string) (StorageKind, error) {
	switch s {
	case "raw":
		return StorageRaw, nil
	case "map":
		return StorageMap, nil
	case "mem":
		return StorageMem, nil
	default:
		return StorageRaw, fmt.Errorf("unknown node storage %q (want raw|map|mem)", s)
	}
}

// PointStorage is the common contract of the three variants. Put calls
// may come from many goroutines; implementations serialise internally.
// Freeze ends the write phase and prepares reads.
type PointStorage interface {
	Put(id int64, lat, lon float64) error
	Get(id int64) (lat, lon float64, ok bool)
	Freeze() error
	Close() error
}

// NewPointStorage builds the configured variant under dir.
func NewPointStorage(kind StorageKind, path string, maxID int64) (PointStorage, error) {
	switch kind {
	case StorageRaw:
		return newRawFile(path)
	case StorageMap:
		return newMapFile(path)
	case StorageMem:
		return newRawMem(path, maxID)
	default:
		return nil, fmt.Errorf("unknown storage kind %d", kind)
	}
}

// Coordinates pack into 8 bytes: two biased uint32 fixed-point values.
// The all-zero slot is reserved as "empty", which the bias guarantees no
// real coordinate produces.

const (
	coordScale = 1e7
	coordBias  = uint32(1) << 31
	slotSize   = 8
)

func packCoord(v float64) uint32 {
	return uint32(int32(math.Round(v*coordScale))) + coordBias
}

func unpackCoord(u uint32) float64 {
	return float64(int32(u-coordBias)) / coordScale
}
