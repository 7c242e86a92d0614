package kv

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/osmmodel"
)

// Writer appends KV lines from concurrent producers: each line is
// assembled outside the lock and buffered under it, flushed in ~1 MB
// batches through a single write call.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	gz   *gzip.Writer
	out  io.Writer
	buf  *bufio.Writer
}

// WriterOptions configure the artifact shape.
type WriterOptions struct {
	// Gzip wraps the output stream; implied by a .gz path suffix.
	Gzip bool
	// DataVersion, when non-empty, emits the `version <string>` headline.
	DataVersion string
}

func NewWriter(path string, opts WriterOptions) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, errs.Fatalf(err, errs.ErrIO, "open kv file %s", path)
	}
	w := &Writer{file: f, out: f}
	if opts.Gzip || strings.HasSuffix(path, ".gz") {
		w.gz = gzip.NewWriter(f)
		w.out = w.gz
	}
	w.buf = bufio.NewWriterSize(w.out, 1<<20)
	if opts.DataVersion != "" {
		if _, err := fmt.Fprintf(w.buf, "version %s\n", opts.DataVersion); err != nil {
			f.Close()
			return nil, errs.Fatalf(err, errs.ErrIO, "write kv headline to %s", path)
		}
	}
	return w, nil
}

// Write appends one `<16-hex-id> <json>` line.
func (w *Writer) Write(id osmmodel.ObjectID, rec *Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errs.Warnf(err, errs.ErrBadFormat, "marshal kv record %s", id)
	}
	line := make([]byte, 0, len(payload)+18)
	line = append(line, id.Hex()...)
	line = append(line, ' ')
	line = append(line, payload...)
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.buf.Write(line); err != nil {
		return errs.Fatalf(err, errs.ErrIO, "append kv record to %s", w.file.Name())
	}
	return nil
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return errs.Fatalf(err, errs.ErrIO, "flush kv file %s", w.file.Name())
	}
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			w.file.Close()
			return errs.Fatalf(err, errs.ErrIO, "close gzip stream of %s", w.file.Name())
		}
	}
	return w.file.Close()
}
