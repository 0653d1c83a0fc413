package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bolt is a Store backed by a bbolt file with one bucket per partition.
type Bolt struct {
	db *bolt.DB
}

func openBolt(path string) (*Bolt, error) {
	if path == "" {
		return nil, errors.New("bolt store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, p := range Partitions() {
			if _, err := tx.CreateBucketIfNotExists([]byte(p)); err != nil {
				return fmt.Errorf("create bucket %s: %w", p, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func (s *Bolt) Get(ctx context.Context, partition Partition, key string) (*Record, error) {
	if err := checkKey("get", partition, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, storageError("get", partition, err)
	}
	var rec *Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(partition))
		if b == nil {
			return fmt.Errorf("bucket %s missing", partition)
		}
		if v := b.Get([]byte(key)); v != nil {
			rec = &Record{ID: key, Body: clone(v)}
		}
		return nil
	})
	if err != nil {
		return nil, storageError("get", partition, err)
	}
	return rec, nil
}

func (s *Bolt) Put(ctx context.Context, partition Partition, rec Record) error {
	if err := checkRecord("put", partition, rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storageError("put", partition, err)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(partition)).Put([]byte(rec.ID), rec.Body)
	})
	if err != nil {
		return storageError("put", partition, err)
	}
	return nil
}

func (s *Bolt) Delete(ctx context.Context, partition Partition, key string) error {
	if err := checkKey("delete", partition, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storageError("delete", partition, err)
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(partition)).Delete([]byte(key))
	})
	if err != nil {
		return storageError("delete", partition, err)
	}
	return nil
}

func (s *Bolt) Count(ctx context.Context, partition Partition) (int, error) {
	if err := checkPartition("count", partition); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, storageError("count", partition, err)
	}
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(partition)).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0, storageError("count", partition, err)
	}
	return n, nil
}

func (s *Bolt) ScanOrderedBy(ctx context.Context, partition Partition, field string) ([]Record, error) {
	if err := checkField("scan", partition, field); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, storageError("scan", partition, err)
	}
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(partition)).ForEach(func(k, v []byte) error {
			records = append(records, Record{ID: string(k), Body: clone(v)})
			return nil
		})
	})
	if err != nil {
		return nil, storageError("scan", partition, err)
	}
	sortRecords(records, field)
	return records, nil
}

func (s *Bolt) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
