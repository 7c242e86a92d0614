package geocoder

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/hierarchy"
	"github.com/mapsme/geocore/internal/kv"
	"github.com/mapsme/geocore/internal/osmmodel"
)

func writeCubaKV(t *testing.T, path string) {
	t.Helper()
	w, err := kv.NewWriter(path, kv.WriterOptions{DataVersion: "230314"})
	assert.NoError(t, err)

	record := func(kind, name string, addr kv.Address) *kv.Record {
		return &kv.Record{
			Type:     "Feature",
			Geometry: kv.PointGeometry(21.9, -78.6),
			Properties: kv.Properties{
				Kind: kind,
				Locales: map[string]kv.LocaleRecord{
					"default": {Name: name, Address: addr},
				},
			},
		}
	}
	assert.NoError(t, w.Write(osmmodel.RelationID(1),
		record("country", "Cuba", kv.Address{Country: "Cuba"})))
	assert.NoError(t, w.Write(osmmodel.RelationID(2),
		record("region", "Ciego de Ávila", kv.Address{Country: "Cuba", Region: "Ciego de Ávila"})))
	assert.NoError(t, w.Write(osmmodel.RelationID(3),
		record("locality", "Florencia", kv.Address{
			Country: "Cuba", Region: "Ciego de Ávila", Locality: "Florencia",
		})))
	assert.NoError(t, w.Close())
}

func TestLoadFromKV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hierarchy.jsonl")
	writeCubaKV(t, path)

	g, err := LoadFromKV(path, true)
	assert.NoError(t, err)
	assert.Len(t, g.entries, 3)

	results := g.Search("florencia")
	assert.NotEmpty(t, results)
	assert.Equal(t, "Florencia", results[0].Name)
	assert.Equal(t, hierarchy.Locality, results[0].Type)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFromKV(filepath.Join(t.TempDir(), "absent.jsonl"), false)
	assert.Error(t, err)
	var loadErr *errs.LoadError
	assert.True(t, errors.As(err, &loadErr))
	assert.Equal(t, errs.OpenException, loadErr.Kind)
}

func TestSnapshotRoundTrip(t *testing.T) {
	kvPath := filepath.Join(t.TempDir(), "hierarchy.jsonl")
	writeCubaKV(t, kvPath)
	g, err := LoadFromKV(kvPath, true)
	assert.NoError(t, err)

	snapPath := filepath.Join(t.TempDir(), "tokens.idx")
	assert.NoError(t, g.SaveSnapshot(snapPath))

	restored, err := LoadSnapshot(snapPath)
	assert.NoError(t, err)
	assert.Len(t, restored.entries, 3)

	results := restored.Search("cuba florencia")
	assert.NotEmpty(t, results)
	assert.Equal(t, "Florencia", results[0].Name)
}

func TestSnapshotVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.idx")
	buf, err := msgpack.Marshal(&snapshot{Version: IndexFormatVersion + 1})
	assert.NoError(t, err)
	assert.NoError(t, os.WriteFile(path, buf, 0666))

	_, err = LoadSnapshot(path)
	var loadErr *errs.LoadError
	assert.True(t, errors.As(err, &loadErr))
	assert.Equal(t, errs.IndexVersionMismatch, loadErr.Kind)
}
