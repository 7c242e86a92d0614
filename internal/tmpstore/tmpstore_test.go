package tmpstore

import (
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mapsme/geocore/internal/feature"
	"github.com/mapsme/geocore/internal/geometry"
	"github.com/mapsme/geocore/internal/osmmodel"
)

func pointFeature(id int64, name string, lat, lon float64) *feature.Builder {
	fb := feature.NewBuilder(osmmodel.NodeID(id), feature.ClassPOI)
	fb.SetName("", name)
	fb.SetPoint(geometry.Point{Lat: lat, Lon: lon})
	return fb
}

func TestWriteAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.tmp")
	w, err := NewWriter(path)
	assert.NoError(t, err)

	fb := pointFeature(1, "Кафе", 55.75, 37.61)
	fb.SetName("en", "Cafe")
	fb.Street = "Арбат"
	fb.HouseNumber = "12"
	assert.NoError(t, w.Write(fb))

	line := feature.NewBuilder(osmmodel.WayID(2), feature.ClassStreet)
	line.SetName("", "Арбат")
	assert.NoError(t, line.SetLine([]geometry.Point{
		{Lat: 1, Lon: 2}, {Lat: 1.1, Lon: 2.1},
	}))
	assert.NoError(t, w.Write(line))
	assert.NoError(t, w.Close())

	got, err := ReadAll(path)
	assert.NoError(t, err)
	assert.Len(t, got, 2)

	assert.Equal(t, fb.ID, got[0].ID)
	assert.Equal(t, "Кафе", got[0].Name())
	assert.Equal(t, "Cafe", got[0].Names["en"])
	assert.Equal(t, "Арбат", got[0].Street)
	assert.Equal(t, "12", got[0].HouseNumber)
	assert.Equal(t, feature.GeomPoint, got[0].GeomKind())

	assert.Equal(t, line.ID, got[1].ID)
	assert.Equal(t, feature.GeomLine, got[1].GeomKind())
	assert.Equal(t, line.Line(), got[1].Line())
}

func TestOffsetOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.tmp")
	w, err := NewWriter(path)
	assert.NoError(t, err)
	for i := int64(0); i < 100; i++ {
		assert.NoError(t, w.Write(pointFeature(i, "obj", float64(i)/100, 1)))
	}
	assert.NoError(t, w.Close())

	var offsets []int64
	err = ForEach(path, func(offset int64, fb *feature.Builder) error {
		offsets = append(offsets, offset)
		return nil
	})
	assert.NoError(t, err)
	assert.Len(t, offsets, 100)
	for i := 1; i < len(offsets); i++ {
		assert.Greater(t, offsets[i], offsets[i-1])
	}
}

func TestConcurrentWriters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.tmp")
	w, err := NewWriter(path)
	assert.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := int64(0); i < 500; i++ {
				_ = w.Write(pointFeature(int64(g)*1000+i, "obj", 1, 1))
			}
		}()
	}
	wg.Wait()
	assert.NoError(t, w.Close())

	got, err := ReadAll(path)
	assert.NoError(t, err)
	assert.Len(t, got, 4000)
}

func TestRewrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "features.tmp")
	w, err := NewWriter(path)
	assert.NoError(t, err)
	for i := int64(0); i < 10; i++ {
		assert.NoError(t, w.Write(pointFeature(i, "obj", 1, 1)))
	}
	assert.NoError(t, w.Close())

	replacement := []*feature.Builder{pointFeature(100, "only", 2, 2)}
	assert.NoError(t, Rewrite(path, replacement))

	got, err := ReadAll(path)
	assert.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, osmmodel.NodeID(100), got[0].ID)
}
