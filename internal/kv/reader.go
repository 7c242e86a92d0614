package kv

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/logger"
	"github.com/mapsme/geocore/internal/osmmodel"
)

// ReadResult carries the per-file parsing stats back to the caller.
type ReadResult struct {
	Version string
	Stats   errs.ParsingStats
}

// ForEach streams every well-formed line of a KV file. Malformed lines
// are counted, logged once per file, and skipped. requireVersion makes
// a missing headline a load failure (geocoder artifacts demand it).
func ForEach(path string, requireVersion bool, fn func(id osmmodel.ObjectID, rec *Record) error) (ReadResult, error) {
	var res ReadResult
	f, err := os.Open(path)
	if err != nil {
		return res, errs.Fatalf(err, errs.ErrIO, "open kv file %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return res, errs.Fatalf(err, errs.ErrBadFormat, "open gzip stream of %s", path)
		}
		defer gz.Close()
		r = gz
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1<<20), 64<<20)
	first := true
	for scanner.Scan() {
		line := scanner.Bytes()
		if first {
			first = false
			if rest, ok := bytes.CutPrefix(line, []byte("version ")); ok {
				res.Version = string(rest)
				continue
			}
			if requireVersion {
				return res, errs.Fatalf(nil, errs.ErrUnsupportedVersion,
					"kv file %s has no version headline", path)
			}
		}
		if len(line) == 0 {
			continue
		}
		id, rec, ok := parseLine(line)
		if !ok {
			res.Stats.MalformedJSONL++
			continue
		}
		if err := fn(id, rec); err != nil {
			return res, err
		}
	}
	if err := scanner.Err(); err != nil {
		return res, errs.Fatalf(err, errs.ErrIO, "scan kv file %s", path)
	}
	if res.Stats.MalformedJSONL > 0 {
		logger.Get().Warn("skipped malformed kv lines",
			zap.String("file", path), zap.Int("count", res.Stats.MalformedJSONL))
	}
	return res, nil
}

func parseLine(line []byte) (osmmodel.ObjectID, *Record, bool) {
	if len(line) < 18 || line[16] != ' ' {
		return 0, nil, false
	}
	raw, err := strconv.ParseUint(string(line[:16]), 16, 64)
	if err != nil {
		return 0, nil, false
	}
	rec := &Record{}
	if err := json.Unmarshal(line[17:], rec); err != nil {
		return 0, nil, false
	}
	return osmmodel.ObjectID(raw), rec, true
}
