package subtitlecache

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"subselect/internal/logging"
	"subselect/internal/services"
	"subselect/internal/store"
)

// CacheCapacity is the maximum number of subtitle records kept on disk.
const CacheCapacity = 20

const timestampField = "timestamp"

// CacheRecord is one cached subtitle file.
type CacheRecord struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	FileName string `json:"fileName"`
	Title    string `json:"title"`
	Language string `json:"language,omitempty"`
	// Timestamp is the write time in epoch milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Notifier receives the id of every record written to the cache.
type Notifier interface {
	Notify(id string)
}

// removalNotifier is implemented by notifiers that also track removals.
type removalNotifier interface {
	NotifyRemoved(id string)
}

// Manager owns the subtitles partition.
type Manager struct {
	store    store.Store
	logger   *slog.Logger
	notifier Notifier
	capacity int

	// insertMu serializes count, evict, upsert so concurrent inserts cannot
	// over- or under-evict.
	insertMu sync.Mutex
}

// New constructs a Manager. A nil store puts the manager in degraded mode.
func New(st store.Store, logger *slog.Logger, notifier Notifier) *Manager {
	return newWithCapacity(st, logger, notifier, CacheCapacity)
}

func newWithCapacity(st store.Store, logger *slog.Logger, notifier Notifier, capacity int) *Manager {
	if capacity < 1 {
		capacity = 1
	}
	return &Manager{
		store:    st,
		logger:   logging.NewComponentLogger(logger, "subtitlecache"),
		notifier: notifier,
		capacity: capacity,
	}
}

// Degraded reports whether the manager runs without a store.
func (m *Manager) Degraded() bool {
	return m.store == nil
}

// Capacity reports the record limit.
func (m *Manager) Capacity() int {
	return m.capacity
}

// Lookup returns the cached record for id, or nil on a miss. It does not
// contact any remote service and does not change eviction order.
func (m *Manager) Lookup(ctx context.Context, id string) (*CacheRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, services.InvalidArgument("subtitlecache", "lookup", "empty id")
	}
	if m.store == nil {
		return nil, nil
	}
	logger := logging.WithContext(ctx, m.logger).With(logging.String(logging.FieldSubtitleID, id))

	rec, err := m.store.Get(ctx, store.PartitionSubtitles, id)
	if err != nil {
		logging.WarnWithContext(logger, "cache lookup failed; treating as miss", "cache_lookup_failed",
			logging.String(logging.FieldErrorHint, "check the store backend and its file permissions"),
			logging.String(logging.FieldImpact, "subtitle will be fetched remotely"),
			logging.Error(err),
		)
		return nil, nil
	}
	if rec == nil {
		logger.Debug("cache miss")
		return nil, nil
	}
	var out CacheRecord
	if err := store.Decode(*rec, &out); err != nil {
		logging.WarnWithContext(logger, "cached record unreadable; treating as miss", "cache_record_corrupt",
			logging.String(logging.FieldErrorHint, "the record will be overwritten on the next fetch"),
			logging.Error(err),
		)
		return nil, nil
	}
	logger.Debug("cache hit")
	return &out, nil
}

// Exists reports whether id is cached.
func (m *Manager) Exists(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, services.InvalidArgument("subtitlecache", "exists", "empty id")
	}
	rec, err := m.Lookup(ctx, id)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Insert writes rec, first evicting the oldest records when the cache is full.
//
// The count check runs before the upsert, so re-inserting an id that is
// already cached in a full cache still evicts the oldest record, which may be
// that same id.
func (m *Manager) Insert(ctx context.Context, rec CacheRecord) error {
	if strings.TrimSpace(rec.ID) == "" {
		return services.InvalidArgument("subtitlecache", "insert", "empty id")
	}
	if rec.Timestamp <= 0 {
		return services.InvalidArgument("subtitlecache", "insert", "timestamp must be positive")
	}
	payload, err := store.NewRecord(rec)
	if err != nil {
		return err
	}
	logger := logging.WithContext(ctx, m.logger).With(logging.String(logging.FieldSubtitleID, rec.ID))
	if m.store == nil {
		logger.Debug("cache unavailable; insert skipped")
		return nil
	}

	m.insertMu.Lock()
	defer m.insertMu.Unlock()

	count, err := m.store.Count(ctx, store.PartitionSubtitles)
	if err != nil {
		logging.WarnWithContext(logger, "cache count failed; insert skipped", "cache_insert_failed",
			logging.String(logging.FieldErrorHint, "check the store backend and its file permissions"),
			logging.String(logging.FieldImpact, "subtitle not cached"),
			logging.Error(err),
		)
		return nil
	}
	if count >= m.capacity {
		m.evict(ctx, logger, count-(m.capacity-1))
	}

	if err := m.store.Put(ctx, store.PartitionSubtitles, payload); err != nil {
		logging.WarnWithContext(logger, "cache write failed", "cache_insert_failed",
			logging.String(logging.FieldErrorHint, "check free disk space and store permissions"),
			logging.String(logging.FieldImpact, "subtitle not cached"),
			logging.Error(err),
		)
		return nil
	}
	logger.Debug("subtitle cached", logging.Int64("timestamp", rec.Timestamp))
	if m.notifier != nil {
		m.notifier.Notify(rec.ID)
	}
	return nil
}

// evict deletes up to n records, oldest timestamp first. Failures are logged
// and do not stop the caller's insert.
func (m *Manager) evict(ctx context.Context, logger *slog.Logger, n int) {
	if n <= 0 {
		return
	}
	candidates, err := m.store.ScanOrderedBy(ctx, store.PartitionSubtitles, timestampField)
	if err != nil {
		logging.WarnWithContext(logger, "eviction scan failed", "cache_evict_failed",
			logging.String(logging.FieldErrorHint, "check the store backend"),
			logging.String(logging.FieldImpact, "cache may temporarily exceed capacity"),
			logging.Error(err),
		)
		return
	}
	for i := 0; i < n && i < len(candidates); i++ {
		id := candidates[i].ID
		if err := m.store.Delete(ctx, store.PartitionSubtitles, id); err != nil {
			logging.WarnWithContext(logger, "eviction delete failed", "cache_evict_failed",
				logging.String("evict_id", id),
				logging.String(logging.FieldErrorHint, "check the store backend"),
				logging.String(logging.FieldImpact, "cache may temporarily exceed capacity"),
				logging.Error(err),
			)
			continue
		}
		logger.Debug("evicted cached subtitle", logging.String("evict_id", id))
	}
}

// List returns every cached record, oldest first.
func (m *Manager) List(ctx context.Context) []CacheRecord {
	if m.store == nil {
		return nil
	}
	records, err := m.store.ScanOrderedBy(ctx, store.PartitionSubtitles, timestampField)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "cache list failed", "cache_list_failed",
			logging.String(logging.FieldErrorHint, "check the store backend"),
			logging.Error(err),
		)
		return nil
	}
	out := make([]CacheRecord, 0, len(records))
	for _, rec := range records {
		var cr CacheRecord
		if err := store.Decode(rec, &cr); err != nil {
			m.logger.Debug("skipping unreadable cache record", logging.String(logging.FieldSubtitleID, rec.ID), logging.Error(err))
			continue
		}
		out = append(out, cr)
	}
	return out
}

// Clear removes every cached record and returns how many were deleted.
func (m *Manager) Clear(ctx context.Context) int {
	if m.store == nil {
		return 0
	}
	m.insertMu.Lock()
	defer m.insertMu.Unlock()

	records, err := m.store.ScanOrderedBy(ctx, store.PartitionSubtitles, timestampField)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "cache clear failed", "cache_clear_failed",
			logging.String(logging.FieldErrorHint, "check the store backend"),
			logging.Error(err),
		)
		return 0
	}
	removed := 0
	for _, rec := range records {
		if err := m.store.Delete(ctx, store.PartitionSubtitles, rec.ID); err != nil {
			logging.WarnWithContext(m.logger, "cache clear delete failed", "cache_clear_failed",
				logging.String(logging.FieldSubtitleID, rec.ID),
				logging.String(logging.FieldErrorHint, "check the store backend"),
				logging.Error(err),
			)
			continue
		}
		removed++
		if rn, ok := m.notifier.(removalNotifier); ok {
			rn.NotifyRemoved(rec.ID)
		}
	}
	return removed
}
