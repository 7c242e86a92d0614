// Package tmpstore reads and writes the intermediate .tmp feature files:
// an append-only stream of length-prefixed feature records, re-read later
// in file-offset order.
package tmpstore

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/feature"
)

// flushThreshold keeps each write(2) to one assembled ~1 MB buffer so
// concurrent writers never interleave partial records.
const flushThreshold = 1 << 20

// Writer appends feature records from many producer goroutines. Each
// record is encoded outside the lock and spliced in under it.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	buf  []byte
}

func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0666)
	if err != nil {
		return nil, errs.Fatalf(err, errs.ErrIO, "open tmp file %s", path)
	}
	return &Writer{file: f, buf: make([]byte, 0, flushThreshold+4096)}, nil
}

// Write validates and appends one feature. Invariant violations are
// Warnable and leave the file untouched; I/O failures are Fatal.
func (w *Writer) Write(fb *feature.Builder) error {
	if err := fb.Validate(); err != nil {
		return err
	}
	record := fb.Encode(nil)
	framed := binary.AppendUvarint(nil, uint64(len(record)))
	framed = append(framed, record...)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, framed...)
	if len(w.buf) >= flushThreshold {
		return w.flushLocked()
	}
	return nil
}

func (w *Writer) flushLocked() error {
	if len(w.buf) == 0 {
		return nil
	}
	if _, err := w.file.Write(w.buf); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "flush tmp file %s", w.file.Name())
	}
	w.buf = w.buf[:0]
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.flushLocked(); err != nil {
		w.file.Close()
		return err
	}
	if err := w.file.Close(); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "close tmp file %s", w.file.Name())
	}
	return nil
}

// ForEach streams records in offset order. Malformed records abort the
// scan: a torn tmp file means the producing stage already failed.
func ForEach(path string, fn func(offset int64, fb *feature.Builder) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.Fatalf(err, errs.ErrIO, "open tmp file %s", path)
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	var offset int64
	for {
		recLen, err := binary.ReadUvarint(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errs.Fatalf(err, errs.ErrBadFormat, "read record length in %s at %d", path, offset)
		}
		record := make([]byte, recLen)
		if _, err := io.ReadFull(r, record); err != nil {
			return errs.Fatalf(err, errs.ErrBadFormat, "read record in %s at %d", path, offset)
		}
		fb, err := feature.Decode(record)
		if err != nil {
			return fmt.Errorf("decode feature in %s at %d: %w", path, offset, err)
		}
		if err := fn(offset, fb); err != nil {
			return err
		}
		offset += int64(uvarintLen(recLen)) + int64(recLen)
	}
}

// ReadAll loads every record of a tmp file; used by stages whose working
// set fits in memory (regions) and by tests.
func ReadAll(path string) ([]*feature.Builder, error) {
	var out []*feature.Builder
	err := ForEach(path, func(_ int64, fb *feature.Builder) error {
		out = append(out, fb)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Rewrite replaces path atomically with the given records, used by the
// street regeneration and null-building passes.
func Rewrite(path string, features []*feature.Builder) error {
	tmpPath := path + ".rewrite"
	w, err := NewWriter(tmpPath)
	if err != nil {
		return err
	}
	for _, fb := range features {
		if err := w.Write(fb); err != nil {
			if errs.IsKind(err, errs.Warnable) {
				continue
			}
			w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "rename %s over %s", tmpPath, path)
	}
	return nil
}

func uvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
