package store

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"subselect/internal/config"
	"subselect/internal/services"
)

// Partition names a keyed collection of records.
type Partition string

const (
	PartitionTokens    Partition = "tokens"
	PartitionSubtitles Partition = "subtitles"
	PartitionSettings  Partition = "settings"
	PartitionLanguages Partition = "languages"
)

// Partitions lists every partition created on open.
func Partitions() []Partition {
	return []Partition{PartitionTokens, PartitionSubtitles, PartitionSettings, PartitionLanguages}
}

// Valid reports whether p is a known partition.
func (p Partition) Valid() bool {
	switch p {
	case PartitionTokens, PartitionSubtitles, PartitionSettings, PartitionLanguages:
		return true
	}
	return false
}

// Record is a stored JSON document. Body's "id" field equals ID.
type Record struct {
	ID   string
	Body []byte
}

// Field returns the JSON value at path inside the record body.
func (r Record) Field(path string) gjson.Result {
	return gjson.GetBytes(r.Body, path)
}

// Store is the persistent partitioned record store.
type Store interface {
	// Get returns the record with key, or nil with no error when absent.
	Get(ctx context.Context, partition Partition, key string) (*Record, error)
	// Put inserts or replaces the record. It is durable when Put returns.
	Put(ctx context.Context, partition Partition, rec Record) error
	// Delete removes the record with key. Deleting an absent key is not an error.
	Delete(ctx context.Context, partition Partition, key string) error
	Count(ctx context.Context, partition Partition) (int, error)
	// ScanOrderedBy returns a snapshot of the partition ordered ascending by the
	// named top-level field, ties broken by id.
	ScanOrderedBy(ctx context.Context, partition Partition, field string) ([]Record, error)
	Close() error
}

// Options selects and locates a backend.
type Options struct {
	Backend string
	Path    string
}

// OptionsFromConfig derives store options from application config.
func OptionsFromConfig(cfg *config.Config) Options {
	if cfg == nil {
		return Options{Backend: config.StoreBackendMemory}
	}
	return Options{Backend: cfg.Store.Backend, Path: cfg.Store.Path}
}

// Open connects to the configured backend and creates all partitions.
func Open(ctx context.Context, opts Options) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	var (
		st  Store
		err error
	)
	switch backend {
	case "", config.StoreBackendSQLite:
		st, err = openSQLite(ctx, opts.Path)
	case config.StoreBackendBolt:
		st, err = openBolt(opts.Path)
	case config.StoreBackendMemory:
		st = NewMemory()
	default:
		err = fmt.Errorf("unknown backend %q", opts.Backend)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, "store", "open", backend, err)
	}
	return st, nil
}

// NewRecord marshals v to JSON and reads its "id" field as the record key.
func NewRecord(v any) (Record, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Record{}, services.Wrap(services.ErrInvalidArgument, "store", "encode record", "", err)
	}
	id := gjson.GetBytes(body, "id")
	if id.Type != gjson.String || id.String() == "" {
		return Record{}, services.InvalidArgument("store", "encode record", "record has no string id")
	}
	return Record{ID: id.String(), Body: body}, nil
}

// Decode unmarshals the record body into v.
func Decode(rec Record, v any) error {
	if err := json.Unmarshal(rec.Body, v); err != nil {
		return services.Wrap(services.ErrStorage, "store", "decode record", rec.ID, err)
	}
	return nil
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkPartition(op string, partition Partition) error {
	if !partition.Valid() {
		return services.InvalidArgument("store", op, fmt.Sprintf("unknown partition %q", partition))
	}
	return nil
}

func checkKey(op string, partition Partition, key string) error {
	if err := checkPartition(op, partition); err != nil {
		return err
	}
	if key == "" {
		return services.InvalidArgument("store", op, "empty key")
	}
	return nil
}

func checkRecord(op string, partition Partition, rec Record) error {
	if err := checkKey(op, partition, rec.ID); err != nil {
		return err
	}
	if !json.Valid(rec.Body) {
		return services.InvalidArgument("store", op, "record body is not valid JSON")
	}
	if id := gjson.GetBytes(rec.Body, "id"); id.String() != rec.ID {
		return services.InvalidArgument("store", op, fmt.Sprintf("body id %q does not match key %q", id.String(), rec.ID))
	}
	return nil
}

func checkField(op string, partition Partition, field string) error {
	if err := checkPartition(op, partition); err != nil {
		return err
	}
	if !fieldPattern.MatchString(field) {
		return services.InvalidArgument("store", op, fmt.Sprintf("invalid field name %q", field))
	}
	return nil
}

func storageError(op string, partition Partition, err error) error {
	return services.Wrap(services.ErrStorage, "store", op, string(partition), err)
}
