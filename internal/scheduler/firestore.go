package scheduler

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/sophiahq/sophia/internal/log"
)

var firesBucket = []byte("fires")

// fireStore persists entry-ID → fire-time pairs in a bbolt file so the
// scan loop can recover its pending fires cheaply after a crash. The
// content database stays the source of truth; rehydration reconciles the
// two on startup.
type fireStore struct {
	db *bolt.DB
}

func openFireStore(path string) (*fireStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open scheduler db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(firesBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init scheduler db: %w", err)
	}
	return &fireStore{db: db}, nil
}

func (f *fireStore) put(entryID string, fireAt time.Time) error {
	return f.db.Update(func(tx *bolt.Tx) error {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(fireAt.Unix()))
		return tx.Bucket(firesBucket).Put([]byte(entryID), buf[:])
	})
}

func (f *fireStore) delete(entryID string) error {
	return f.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(firesBucket).Delete([]byte(entryID))
	})
}

// all returns every registered fire.
func (f *fireStore) all() (map[string]time.Time, error) {
	fires := make(map[string]time.Time)
	err := f.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(firesBucket).ForEach(func(k, v []byte) error {
			if len(v) != 8 {
				log.Warn(log.CatSched, "Skipping malformed fire record", "entry", string(k))
				return nil
			}
			ts := int64(binary.BigEndian.Uint64(v))
			fires[string(k)] = time.Unix(ts, 0).UTC()
			return nil
		})
	})
	return fires, err
}

func (f *fireStore) close() error {
	return f.db.Close()
}
