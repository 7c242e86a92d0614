package osmstore

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/mapsme/geocore/internal/errs"
)

// recordFile stores variable-length records keyed by id: an append-only
// data file plus an OffsetIndex sidecar. Writing the same id again
// appends a fresh record and repoints the index, fully replacing the
// prior contents.
type recordFile struct {
	mu     sync.Mutex
	file   *os.File
	offset int64
	index  *OffsetIndex
}

func newRecordFile(dataPath, indexPath string) (*recordFile, error) {
	f, err := os.OpenFile(dataPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, errs.Fatalf(err, errs.ErrIO, "open record file %s", dataPath)
	}
	idx, err := NewOffsetIndex(indexPath)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &recordFile{file: f, index: idx}, nil
}

// Put appends one framed record and registers its offset.
func (rf *recordFile) Put(id int64, payload []byte) error {
	framed := binary.AppendUvarint(nil, uint64(len(payload)))
	framed = append(framed, payload...)

	rf.mu.Lock()
	offset := rf.offset
	rf.offset += int64(len(framed))
	_, err := rf.file.Write(framed)
	rf.mu.Unlock()
	if err != nil {
		return errs.Fatalf(err, errs.ErrIO, "append record %d to %s", id, rf.file.Name())
	}
	return rf.index.Append(id, offset)
}

// Freeze loads the offset index; Get is only valid afterwards.
func (rf *recordFile) Freeze() error {
	return rf.index.Load()
}

// Get returns the latest payload for id.
func (rf *recordFile) Get(id int64) ([]byte, bool, error) {
	offset, ok := rf.index.Lookup(id)
	if !ok {
		return nil, false, nil
	}
	var lenBuf [binary.MaxVarintLen64]byte
	n, err := rf.file.ReadAt(lenBuf[:], offset)
	if n == 0 && err != nil {
		return nil, false, errs.Fatalf(err, errs.ErrIO, "read record %d in %s", id, rf.file.Name())
	}
	payloadLen, consumed := binary.Uvarint(lenBuf[:n])
	if consumed <= 0 {
		return nil, false, errs.Fatalf(nil, errs.ErrBadFormat,
			"bad record frame at %d in %s", offset, rf.file.Name())
	}
	payload := make([]byte, payloadLen)
	if _, err := rf.file.ReadAt(payload, offset+int64(consumed)); err != nil {
		return nil, false, errs.Fatalf(err, errs.ErrIO, "read record %d in %s", id, rf.file.Name())
	}
	return payload, true, nil
}

func (rf *recordFile) Close() error {
	if err := rf.index.Close(); err != nil {
		rf.file.Close()
		return err
	}
	return rf.file.Close()
}
