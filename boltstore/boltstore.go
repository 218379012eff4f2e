// Package boltstore persists checkpoint blobs to a local bbolt database,
// giving the in-memory history window a durable home a restarted peer can
// seed itself from. It is a checkpoint cache, not a general persistence
// layer: it stores only what history already buffers in memory.
package boltstore

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const checkpointBucket = "checkpoints"

// CheckpointStore is the bbolt-backed implementation of
// history.CheckpointStore: one bucket, keys are big-endian ticks so
// cursor order is tick order.
type CheckpointStore struct {
	db *bolt.DB
}

// Open opens or creates the database at path and ensures the checkpoint
// bucket exists.
func Open(path string) (*CheckpointStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(checkpointBucket))
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", checkpointBucket, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &CheckpointStore{db: db}, nil
}

// Close closes the underlying database.
func (s *CheckpointStore) Close() error {
	return s.db.Close()
}

func tickKey(tick uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], tick)
	return key[:]
}

// Put stores blob under tick, overwriting any previous checkpoint for the
// same tick.
func (s *CheckpointStore) Put(tick uint64, blob []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(checkpointBucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", checkpointBucket)
		}
		return b.Put(tickKey(tick), blob)
	})
}

// Latest returns the newest stored checkpoint, ok=false when the store is
// empty.
func (s *CheckpointStore) Latest() (tick uint64, blob []byte, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(checkpointBucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", checkpointBucket)
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return nil
		}
		tick = binary.BigEndian.Uint64(k)
		blob = append([]byte(nil), v...)
		ok = true
		return nil
	})
	return tick, blob, ok, err
}

// Prune deletes all but the keepNewest most recent checkpoints.
func (s *CheckpointStore) Prune(keepNewest int) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(checkpointBucket))
		if b == nil {
			return fmt.Errorf("bucket not found: %s", checkpointBucket)
		}
		var keys [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			keys = append(keys, append([]byte(nil), k...))
			return nil
		}); err != nil {
			return err
		}
		if len(keys) <= keepNewest {
			return nil
		}
		for _, k := range keys[:len(keys)-keepNewest] {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
