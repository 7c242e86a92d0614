package osmstore

import (
	"encoding/binary"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/mapsme/geocore/internal/errs"
)

// rawFile keeps one fixed 8-byte slot per node id: O(1) lookup, file
// size proportional to the largest id seen. Writes go through WriteAt
// (safe concurrently on one fd); reads go through a read-only mmap
// established by Freeze.
type rawFile struct {
	file *os.File
	mm   mmap.MMap
}

func newRawFile(path string) (*rawFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, errs.Fatalf(err, errs.ErrIO, "open point storage %s", path)
	}
	return &rawFile{file: f}, nil
}

func (rf *rawFile) Put(id int64, lat, lon float64) error {
	var slot [slotSize]byte
	binary.LittleEndian.PutUint32(slot[0:], packCoord(lat))
	binary.LittleEndian.PutUint32(slot[4:], packCoord(lon))
	if _, err := rf.file.WriteAt(slot[:], id*slotSize); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "write node %d to %s", id, rf.file.Name())
	}
	return nil
}

func (rf *rawFile) Freeze() error {
	if err := rf.file.Sync(); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "sync point storage %s", rf.file.Name())
	}
	st, err := rf.file.Stat()
	if err != nil {
		return errs.Fatalf(err, errs.ErrIO, "stat point storage %s", rf.file.Name())
	}
	if st.Size() == 0 {
		return nil
	}
	mm, err := mmap.Map(rf.file, mmap.RDONLY, 0)
	if err != nil {
		return errs.Fatalf(err, errs.ErrIO, "mmap point storage %s", rf.file.Name())
	}
	rf.mm = mm
	advise(mm)
	return nil
}

func (rf *rawFile) Get(id int64) (float64, float64, bool) {
	off := id * slotSize
	if rf.mm == nil || off < 0 || off+slotSize > int64(len(rf.mm)) {
		return 0, 0, false
	}
	latBits := binary.LittleEndian.Uint32(rf.mm[off:])
	lonBits := binary.LittleEndian.Uint32(rf.mm[off+4:])
	if latBits == 0 && lonBits == 0 {
		return 0, 0, false
	}
	return unpackCoord(latBits), unpackCoord(lonBits), true
}

func (rf *rawFile) Close() error {
	if rf.mm != nil {
		if err := rf.mm.Unmap(); err != nil {
			return errs.Fatalf(err, errs.ErrIO, "munmap point storage %s", rf.file.Name())
		}
		rf.mm = nil
	}
	return rf.file.Close()
}
