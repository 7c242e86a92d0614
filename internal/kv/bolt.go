package kv

import (
	"encoding/binary"
	"encoding/json"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/mapsme/geocore/internal/errs"
	"github.com/mapsme/geocore/internal/osmmodel"
)

const bucketName = "geocore"

// Store mirrors a KV artifact into bbolt for keyed reads: the geocoder
// and the enrichment passes look records up by id without rescanning the
// JSONL stream.
type Store struct {
	db *bbolt.DB
	sync.Mutex
}

func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0666, nil)
	if err != nil {
		return nil, errs.Fatalf(err, errs.ErrIO, "open kv store %s", path)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, errs.Fatalf(err, errs.ErrIO, "create bucket in %s", path)
	}
	return &Store{db: db}, nil
}

// SaveBatch writes a batch of records in one transaction.
func (s *Store) SaveBatch(ids []osmmodel.ObjectID, recs []*Record) error {
	s.Lock()
	defer s.Unlock()
	return s.db.Batch(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		for i, id := range ids {
			payload, err := json.Marshal(recs[i])
			if err != nil {
				return err
			}
			if err := b.Put(key(id), payload); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get reads one record back; ok is false when the id is unknown.
func (s *Store) Get(id osmmodel.ObjectID) (rec *Record, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		payload := tx.Bucket([]byte(bucketName)).Get(key(id))
		if payload == nil {
			return nil
		}
		rec = &Record{}
		if uerr := json.Unmarshal(payload, rec); uerr != nil {
			return errs.Warnf(uerr, errs.ErrBadFormat, "corrupt kv store record %s", id)
		}
		ok = true
		return nil
	})
	return
}

// ForEach visits every stored record in key order.
func (s *Store) ForEach(fn func(id osmmodel.ObjectID, rec *Record) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			rec := &Record{}
			if err := json.Unmarshal(v, rec); err != nil {
				return errs.Warnf(err, errs.ErrBadFormat, "corrupt kv store record")
			}
			return fn(osmmodel.ObjectID(binary.BigEndian.Uint64(k)), rec)
		})
	})
}

func (s *Store) Close() error { return s.db.Close() }

// key keeps bbolt iteration in ascending id order.
func key(id osmmodel.ObjectID) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], uint64(id))
	return k[:]
}
