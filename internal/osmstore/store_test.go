package osmstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mapsme/geocore/internal/osmmodel"
)

func openTestStore(t *testing.T, kind StorageKind) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), kind, 1<<20)
	assert.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWayRoundTrip(t *testing.T) {
	store := openTestStore(t, StorageMap)

	t.Run("mixed width node ids", func(t *testing.T) {
		nodes := []uint64{0, 1, 2, 3, 0xFFFFFFFF, 0xFFFFFFFFFFFFFFFF}
		assert.NoError(t, store.PutWay(WayRecord{ID: 42, NodeIDs: nodes}))
		assert.NoError(t, store.Freeze())

		rec, ok, err := store.GetWay(42)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, nodes, rec.NodeIDs)
	})
}

func TestEmptyWayRoundTrip(t *testing.T) {
	store := openTestStore(t, StorageMap)
	assert.NoError(t, store.PutWay(WayRecord{ID: 7, NodeIDs: []uint64{}}))
	assert.NoError(t, store.Freeze())

	rec, ok, err := store.GetWay(7)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, rec.NodeIDs)
}

// a rewrite of the same way id must fully replace the prior contents
func TestWayOverwrite(t *testing.T) {
	store := openTestStore(t, StorageMap)
	assert.NoError(t, store.PutWay(WayRecord{ID: 9, NodeIDs: []uint64{1, 2, 3, 4, 5}}))
	assert.NoError(t, store.PutWay(WayRecord{ID: 9, NodeIDs: []uint64{10, 11}}))
	assert.NoError(t, store.Freeze())

	rec, ok, err := store.GetWay(9)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []uint64{10, 11}, rec.NodeIDs)
}

func TestPointStorageVariants(t *testing.T) {
	for _, tc := range []struct {
		name string
		kind StorageKind
	}{
		{"raw", StorageRaw},
		{"map", StorageMap},
		{"mem", StorageMem},
	} {
		t.Run(tc.name, func(t *testing.T) {
			store := openTestStore(t, tc.kind)
			batch := []osmmodel.Element{
				{Kind: osmmodel.KindNode, ID: 1, Lat: 55.75, Lon: 37.61},
				{Kind: osmmodel.KindNode, ID: 99, Lat: -33.85, Lon: 151.2},
				{Kind: osmmodel.KindNode, ID: 100000, Lat: 0.5, Lon: -0.5},
			}
			assert.NoError(t, store.BulkWrite(batch))
			assert.NoError(t, store.Freeze())

			lat, lon, ok := store.GetNode(1)
			assert.True(t, ok)
			assert.InDelta(t, 55.75, lat, 1e-6)
			assert.InDelta(t, 37.61, lon, 1e-6)

			lat, lon, ok = store.GetNode(99)
			assert.True(t, ok)
			assert.InDelta(t, -33.85, lat, 1e-6)
			assert.InDelta(t, 151.2, lon, 1e-6)

			_, _, ok = store.GetNode(12345)
			assert.False(t, ok)
		})
	}
}

func TestRelationFilterAndMemberIndex(t *testing.T) {
	store := openTestStore(t, StorageMap)
	batch := []osmmodel.Element{
		{
			Kind: osmmodel.KindRelation, ID: 1,
			Tags: map[string]string{"type": "multipolygon"},
			Members: []osmmodel.Member{
				{Ref: 10, Kind: osmmodel.KindWay, Role: "outer"},
				{Ref: 20, Kind: osmmodel.KindNode, Role: "label"},
			},
		},
		{
			// a site relation is not among the retained types
			Kind: osmmodel.KindRelation, ID: 2,
			Tags: map[string]string{"type": "site"},
			Members: []osmmodel.Member{
				{Ref: 10, Kind: osmmodel.KindWay, Role: "outer"},
			},
		},
	}
	assert.NoError(t, store.BulkWrite(batch))
	assert.NoError(t, store.Freeze())

	_, ok, err := store.GetRelation(1)
	assert.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = store.GetRelation(2)
	assert.NoError(t, err)
	assert.False(t, ok)

	var wayRels, nodeRels []int64
	store.RelationsOfWay(10, func(id int64) { wayRels = append(wayRels, id) })
	store.RelationsOfNode(20, func(id int64) { nodeRels = append(nodeRels, id) })
	assert.Equal(t, []int64{1}, wayRels)
	assert.Equal(t, []int64{1}, nodeRels)
}

func TestRelationTagsRoundTrip(t *testing.T) {
	store := openTestStore(t, StorageMap)
	tags := map[string]string{"type": "boundary", "admin_level": "4", "name": "Region"}
	assert.NoError(t, store.PutRelation(RelationRecord{ID: 5, Tags: tags}))
	assert.NoError(t, store.Freeze())

	rec, ok, err := store.GetRelation(5)
	assert.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, tags, rec.Tags)
}
