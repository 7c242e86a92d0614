package osmstore

import (
	"encoding/binary"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/mapsme/geocore/internal/errs"
)

// rawMemReservation sizes the sparse file backing the mmap: slots for
// every node id up to ~2^33, about 64 GB of virtual space. The kernel
// only materialises written pages.
const rawMemReservation = int64(1) << 36

// rawMem maps the slot file read-write for the whole run: puts store
// directly through the mapping, gets read it back without syscalls.
type rawMem struct {
	file *os.File
	mm   mmap.MMap
}

func newRawMem(path string, maxID int64) (*rawMem, error) {
	size := rawMemReservation
	if maxID > 0 && (maxID+1)*slotSize < size {
		size = (maxID + 1) * slotSize
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, errs.Fatalf(err, errs.ErrIO, "open point storage %s", path)
	}
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, errs.Fatalf(err, errs.ErrIO, "reserve %d bytes in %s", size, path)
	}
	mm, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, errs.Fatalf(err, errs.ErrIO, "mmap point storage %s", path)
	}
	advise(mm)
	return &rawMem{file: f, mm: mm}, nil
}

func (rm *rawMem) Put(id int64, lat, lon float64) error {
	off := id * slotSize
	if off < 0 || off+slotSize > int64(len(rm.mm)) {
		return errs.Fatalf(nil, errs.ErrInconsistent,
			"node id %d beyond the %d-byte reservation of %s", id, len(rm.mm), rm.file.Name())
	}
	binary.LittleEndian.PutUint32(rm.mm[off:], packCoord(lat))
	binary.LittleEndian.PutUint32(rm.mm[off+4:], packCoord(lon))
	return nil
}

func (rm *rawMem) Freeze() error { return nil }

func (rm *rawMem) Get(id int64) (float64, float64, bool) {
	off := id * slotSize
	if off < 0 || off+slotSize > int64(len(rm.mm)) {
		return 0, 0, false
	}
	latBits := binary.LittleEndian.Uint32(rm.mm[off:])
	lonBits := binary.LittleEndian.Uint32(rm.mm[off+4:])
	if latBits == 0 && lonBits == 0 {
		return 0, 0, false
	}
	return unpackCoord(latBits), unpackCoord(lonBits), true
}

func (rm *rawMem) Close() error {
	if rm.mm != nil {
		if err := rm.mm.Unmap(); err != nil {
			return errs.Fatalf(err, errs.ErrIO, "munmap point storage %s", rm.file.Name())
		}
		rm.mm = nil
	}
	return rm.file.Close()
}
