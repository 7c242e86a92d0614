package kv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mapsme/geocore/internal/hierarchy"
	"github.com/mapsme/geocore/internal/osmmodel"
)

func sampleRecord(name string) *Record {
	return &Record{
		Type:     "Feature",
		Geometry: PointGeometry(55.75, 37.61),
		Properties: Properties{
			Kind: "locality",
			Locales: map[string]LocaleRecord{
				"default": {
					Name: name,
					Address: Address{
						Country:  "Россия",
						Locality: name,
					},
				},
			},
		},
	}
}

func TestWriterReaderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jsonl")
	w, err := NewWriter(path, WriterOptions{DataVersion: "230314"})
	assert.NoError(t, err)
	assert.NoError(t, w.Write(osmmodel.NodeID(1), sampleRecord("Москва")))
	assert.NoError(t, w.Write(osmmodel.WayID(2), sampleRecord("Тверь")))
	assert.NoError(t, w.Close())

	var ids []osmmodel.ObjectID
	var names []string
	res, err := ForEach(path, true, func(id osmmodel.ObjectID, rec *Record) error {
		ids = append(ids, id)
		names = append(names, rec.DefaultLocale().Name)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "230314", res.Version)
	assert.Equal(t, []osmmodel.ObjectID{osmmodel.NodeID(1), osmmodel.WayID(2)}, ids)
	assert.Equal(t, []string{"Москва", "Тверь"}, names)
}

func TestGzipRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.jsonl.gz")
	w, err := NewWriter(path, WriterOptions{})
	assert.NoError(t, err)
	assert.NoError(t, w.Write(osmmodel.NodeID(7), sampleRecord("Сочи")))
	assert.NoError(t, w.Close())

	count := 0
	_, err = ForEach(path, false, func(id osmmodel.ObjectID, rec *Record) error {
		count++
		assert.Equal(t, "Сочи", rec.DefaultLocale().Name)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMalformedLinesAreSkipped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.jsonl")
	content := "00000000000000FF {\"type\":\"Feature\",\"geometry\":{\"type\":\"Point\",\"coordinates\":[0,0]},\"properties\":{\"kind\":\"poi\",\"locales\":{}}}\n" +
		"not-a-line\n" +
		"00000000000000AA {bad json}\n"
	assert.NoError(t, os.WriteFile(path, []byte(content), 0666))

	count := 0
	res, err := ForEach(path, false, func(id osmmodel.ObjectID, rec *Record) error {
		count++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 2, res.Stats.MalformedJSONL)
}

func TestMissingVersionHeadline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noversion.jsonl")
	assert.NoError(t, os.WriteFile(path, []byte("0000000000000001 {}\n"), 0666))
	_, err := ForEach(path, true, func(osmmodel.ObjectID, *Record) error { return nil })
	assert.Error(t, err)
}

func TestAddressSlots(t *testing.T) {
	var a Address
	for ht := hierarchy.Country; ht < hierarchy.Count; ht++ {
		a.SetSlot(ht, ht.String())
	}
	for ht := hierarchy.Country; ht < hierarchy.Count; ht++ {
		assert.Equal(t, ht.String(), a.Slot(ht))
	}
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := OpenStore(path)
	assert.NoError(t, err)
	defer s.Close()

	ids := []osmmodel.ObjectID{osmmodel.NodeID(1), osmmodel.NodeID(2)}
	recs := []*Record{sampleRecord("A"), sampleRecord("B")}
	assert.NoError(t, s.SaveBatch(ids, recs))

	rec, ok, err := s.Get(osmmodel.NodeID(2))
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "B", rec.DefaultLocale().Name)

	_, ok, err = s.Get(osmmodel.NodeID(99))
	assert.NoError(t, err)
	assert.False(t, ok)

	count := 0
	assert.NoError(t, s.ForEach(func(id osmmodel.ObjectID, rec *Record) error {
		count++
		return nil
	}))
	assert.Equal(t, 2, count)
}
