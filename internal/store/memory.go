package store

import (
	"context"
	"sync"
)

// Memory is a process-local Store. Nothing survives Close.
type Memory struct {
	mu         sync.RWMutex
	partitions map[Partition]map[string][]byte
}

// NewMemory constructs an empty in-memory store with every partition present.
func NewMemory() *Memory {
	m := &Memory{partitions: make(map[Partition]map[string][]byte)}
	for _, p := range Partitions() {
		m.partitions[p] = make(map[string][]byte)
	}
	return m
}

func (m *Memory) Get(ctx context.Context, partition Partition, key string) (*Record, error) {
	if err := checkKey("get", partition, key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, storageError("get", partition, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	body, ok := m.partitions[partition][key]
	if !ok {
		return nil, nil
	}
	return &Record{ID: key, Body: clone(body)}, nil
}

func (m *Memory) Put(ctx context.Context, partition Partition, rec Record) error {
	if err := checkRecord("put", partition, rec); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storageError("put", partition, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.partitions[partition][rec.ID] = clone(rec.Body)
	return nil
}

func (m *Memory) Delete(ctx context.Context, partition Partition, key string) error {
	if err := checkKey("delete", partition, key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storageError("delete", partition, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions[partition], key)
	return nil
}

func (m *Memory) Count(ctx context.Context, partition Partition) (int, error) {
	if err := checkPartition("count", partition); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, storageError("count", partition, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.partitions[partition]), nil
}

func (m *Memory) ScanOrderedBy(ctx context.Context, partition Partition, field string) ([]Record, error) {
	if err := checkField("scan", partition, field); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, storageError("scan", partition, err)
	}
	m.mu.RLock()
	records := make([]Record, 0, len(m.partitions[partition]))
	for id, body := range m.partitions[partition] {
		records = append(records, Record{ID: id, Body: clone(body)})
	}
	m.mu.RUnlock()
	sortRecords(records, field)
	return records, nil
}

func (m *Memory) Close() error { return nil }

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
