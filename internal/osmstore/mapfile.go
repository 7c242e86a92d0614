package osmstore

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync"

	"github.com/mapsme/geocore/internal/errs"
)

// mapFile appends fixed 16-byte (id, lat, lon) records and hashes them
// into memory on Freeze. The cheapest variant for small extracts where
// ids are sparse.
type mapFile struct {
	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	points map[int64][2]uint32
}

const mapRecordSize = 16

func newMapFile(path string) (*mapFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, errs.Fatalf(err, errs.ErrIO, "open point storage %s", path)
	}
	return &mapFile{file: f, w: bufio.NewWriterSize(f, 1<<20)}, nil
}

func (mf *mapFile) Put(id int64, lat, lon float64) error {
	var rec [mapRecordSize]byte
	binary.LittleEndian.PutUint64(rec[0:], uint64(id))
	binary.LittleEndian.PutUint32(rec[8:], packCoord(lat))
	binary.LittleEndian.PutUint32(rec[12:], packCoord(lon))

	mf.mu.Lock()
	defer mf.mu.Unlock()
	if _, err := mf.w.Write(rec[:]); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "write node %d to %s", id, mf.file.Name())
	}
	return nil
}

func (mf *mapFile) Freeze() error {
	mf.mu.Lock()
	defer mf.mu.Unlock()
	if err := mf.w.Flush(); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "flush point storage %s", mf.file.Name())
	}
	if _, err := mf.file.Seek(0, io.SeekStart); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "seek point storage %s", mf.file.Name())
	}

	mf.points = make(map[int64][2]uint32)
	r := bufio.NewReaderSize(mf.file, 1<<20)
	var rec [mapRecordSize]byte
	for {
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			if err == io.EOF {
				break
			}
			return errs.Fatalf(err, errs.ErrBadFormat, "read point storage %s", mf.file.Name())
		}
		id := int64(binary.LittleEndian.Uint64(rec[0:]))
		mf.points[id] = [2]uint32{
			binary.LittleEndian.Uint32(rec[8:]),
			binary.LittleEndian.Uint32(rec[12:]),
		}
	}
	return nil
}

func (mf *mapFile) Get(id int64) (float64, float64, bool) {
	packed, ok := mf.points[id]
	if !ok {
		return 0, 0, false
	}
	return unpackCoord(packed[0]), unpackCoord(packed[1]), true
}

func (mf *mapFile) Close() error {
	return mf.file.Close()
}
