package store_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"subselect/internal/config"
	"subselect/internal/services"
	"subselect/internal/store"
)

type doc struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Title     string `json:"title,omitempty"`
}

type backendCase struct {
	name string
	open func(t *testing.T) store.Store
}

func backends() []backendCase {
	openPath := func(backend, file string) func(t *testing.T) store.Store {
		return func(t *testing.T) store.Store {
			t.Helper()
			opts := store.Options{Backend: backend}
			if file != "" {
				opts.Path = filepath.Join(t.TempDir(), file)
			}
			st, err := store.Open(context.Background(), opts)
			if err != nil {
				t.Fatalf("open %s: %v", backend, err)
			}
			t.Cleanup(func() { st.Close() })
			return st
		}
	}
	return []backendCase{
		{name: "sqlite", open: openPath(config.StoreBackendSQLite, "store.db")},
		{name: "bolt", open: openPath(config.StoreBackendBolt, "store.bolt")},
		{name: "memory", open: openPath(config.StoreBackendMemory, "")},
	}
}

func mustRecord(t *testing.T, v any) store.Record {
	t.Helper()
	rec, err := store.NewRecord(v)
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return rec
}

func TestStoreConformance(t *testing.T) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			t.Run("get missing returns nil", func(t *testing.T) {
				st := bc.open(t)
				rec, err := st.Get(context.Background(), store.PartitionSubtitles, "nope")
				if err != nil || rec != nil {
					t.Fatalf("expected nil miss, got %v, %v", rec, err)
				}
			})

			t.Run("put then get round trips", func(t *testing.T) {
				st := bc.open(t)
				ctx := context.Background()
				if err := st.Put(ctx, store.PartitionSubtitles, mustRecord(t, doc{ID: "a", Timestamp: 5, Title: "Alpha"})); err != nil {
					t.Fatalf("Put: %v", err)
				}
				rec, err := st.Get(ctx, store.PartitionSubtitles, "a")
				if err != nil || rec == nil {
					t.Fatalf("Get: %v, %v", rec, err)
				}
				var got doc
				if err := store.Decode(*rec, &got); err != nil {
					t.Fatalf("Decode: %v", err)
				}
				if got != (doc{ID: "a", Timestamp: 5, Title: "Alpha"}) {
					t.Fatalf("unexpected doc %+v", got)
				}
			})

			t.Run("put replaces existing", func(t *testing.T) {
				st := bc.open(t)
				ctx := context.Background()
				_ = st.Put(ctx, store.PartitionSubtitles, mustRecord(t, doc{ID: "a", Timestamp: 1}))
				_ = st.Put(ctx, store.PartitionSubtitles, mustRecord(t, doc{ID: "a", Timestamp: 2}))
				n, err := st.Count(ctx, store.PartitionSubtitles)
				if err != nil || n != 1 {
					t.Fatalf("expected count 1, got %d, %v", n, err)
				}
				rec, _ := st.Get(ctx, store.PartitionSubtitles, "a")
				if rec.Field("timestamp").Int() != 2 {
					t.Fatalf("expected replaced timestamp, got %s", rec.Body)
				}
			})

			t.Run("partitions are isolated", func(t *testing.T) {
				st := bc.open(t)
				ctx := context.Background()
				_ = st.Put(ctx, store.PartitionTokens, mustRecord(t, doc{ID: "current"}))
				if n, _ := st.Count(ctx, store.PartitionSubtitles); n != 0 {
					t.Fatalf("expected empty subtitles partition, got %d", n)
				}
				if n, _ := st.Count(ctx, store.PartitionTokens); n != 1 {
					t.Fatalf("expected one token, got %d", n)
				}
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				st := bc.open(t)
				ctx := context.Background()
				_ = st.Put(ctx, store.PartitionSubtitles, mustRecord(t, doc{ID: "a"}))
				for i := 0; i < 2; i++ {
					if err := st.Delete(ctx, store.PartitionSubtitles, "a"); err != nil {
						t.Fatalf("Delete #%d: %v", i, err)
					}
				}
				if n, _ := st.Count(ctx, store.PartitionSubtitles); n != 0 {
					t.Fatalf("expected empty partition, got %d", n)
				}
			})

			t.Run("scan orders by field then id", func(t *testing.T) {
				st := bc.open(t)
				ctx := context.Background()
				for _, d := range []doc{
					{ID: "c", Timestamp: 3},
					{ID: "b", Timestamp: 10},
					{ID: "a", Timestamp: 3},
					{ID: "d", Timestamp: 1},
					{ID: "e"},
				} {
					if err := st.Put(ctx, store.PartitionSubtitles, mustRecord(t, d)); err != nil {
						t.Fatalf("Put %s: %v", d.ID, err)
					}
				}
				records, err := st.ScanOrderedBy(ctx, store.PartitionSubtitles, "timestamp")
				if err != nil {
					t.Fatalf("ScanOrderedBy: %v", err)
				}
				var order string
				for _, rec := range records {
					order += rec.ID
				}
				if order != "edacb" {
					t.Fatalf("unexpected order %q", order)
				}
			})

			t.Run("scan orders strings lexically", func(t *testing.T) {
				st := bc.open(t)
				ctx := context.Background()
				for _, d := range []doc{{ID: "1", Title: "b"}, {ID: "2", Title: "a"}, {ID: "3", Title: "c"}} {
					_ = st.Put(ctx, store.PartitionSubtitles, mustRecord(t, d))
				}
				records, err := st.ScanOrderedBy(ctx, store.PartitionSubtitles, "title")
				if err != nil {
					t.Fatalf("ScanOrderedBy: %v", err)
				}
				if len(records) != 3 || records[0].ID != "2" || records[2].ID != "3" {
					t.Fatalf("unexpected order %v", records)
				}
			})

			t.Run("invalid arguments", func(t *testing.T) {
				st := bc.open(t)
				ctx := context.Background()
				checks := []error{
					func() error { _, err := st.Get(ctx, "bogus", "a"); return err }(),
					func() error { _, err := st.Get(ctx, store.PartitionSubtitles, ""); return err }(),
					st.Put(ctx, store.PartitionSubtitles, store.Record{ID: "a", Body: []byte(`{"id":"b"}`)}),
					st.Put(ctx, store.PartitionSubtitles, store.Record{ID: "a", Body: []byte(`not json`)}),
					st.Delete(ctx, store.PartitionSubtitles, ""),
					func() error { _, err := st.Count(ctx, "bogus"); return err }(),
					func() error { _, err := st.ScanOrderedBy(ctx, store.PartitionSubtitles, "a'; DROP"); return err }(),
				}
				for i, err := range checks {
					if !errors.Is(err, services.ErrInvalidArgument) {
						t.Fatalf("check %d: expected invalid argument, got %v", i, err)
					}
				}
			})
		})
	}
}

func TestFileBackendsPersistAcrossReopen(t *testing.T) {
	for _, backend := range []string{config.StoreBackendSQLite, config.StoreBackendBolt} {
		t.Run(backend, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "persist."+backend)
			ctx := context.Background()

			st, err := store.Open(ctx, store.Options{Backend: backend, Path: path})
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			for i := 0; i < 3; i++ {
				if err := st.Put(ctx, store.PartitionSubtitles, mustRecord(t, doc{ID: fmt.Sprintf("id-%d", i), Timestamp: int64(i + 1)})); err != nil {
					t.Fatalf("Put: %v", err)
				}
			}
			if err := st.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			reopened, err := store.Open(ctx, store.Options{Backend: backend, Path: path})
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer reopened.Close()
			if n, err := reopened.Count(ctx, store.PartitionSubtitles); err != nil || n != 3 {
				t.Fatalf("expected 3 persisted records, got %d, %v", n, err)
			}
		})
	}
}

func TestOpenFailureIsStorageUnavailable(t *testing.T) {
	_, err := store.Open(context.Background(), store.Options{Backend: "redis"})
	if !errors.Is(err, services.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	_, err = store.Open(context.Background(), store.Options{Backend: config.StoreBackendSQLite, Path: filepath.Join(blocker, "nested", "db.sqlite")})
	if !errors.Is(err, services.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable for unusable path, got %v", err)
	}
}

func TestNewRecordRequiresID(t *testing.T) {
	if _, err := store.NewRecord(map[string]any{"title": "x"}); !errors.Is(err, services.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
	if _, err := store.NewRecord(map[string]any{"id": 5}); !errors.Is(err, services.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument for numeric id, got %v", err)
	}
}

func TestCanceledContextIsStorageError(t *testing.T) {
	st := store.NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := st.Count(ctx, store.PartitionSubtitles); !errors.Is(err, services.ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestSQLiteConcurrentWritesAllLand(t *testing.T) {
	st := backends()[0].open(t)
	ctx := context.Background()

	const workers, perWorker = 16, 25
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker*2)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				id := fmt.Sprintf("w%02d-%03d", w, i)
				rec, err := store.NewRecord(doc{ID: id, Timestamp: int64(i + 1)})
				if err != nil {
					errs <- err
					continue
				}
				for _, partition := range []store.Partition{store.PartitionSettings, store.PartitionSubtitles} {
					if err := st.Put(ctx, partition, rec); err != nil {
						errs <- err
					}
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	var failures int
	var first error
	for err := range errs {
		if first == nil {
			first = err
		}
		failures++
	}
	if failures > 0 {
		t.Fatalf("%d concurrent writes failed, first: %v", failures, first)
	}
	for _, partition := range []store.Partition{store.PartitionSettings, store.PartitionSubtitles} {
		n, err := st.Count(ctx, partition)
		if err != nil {
			t.Fatalf("count %s: %v", partition, err)
		}
		if n != workers*perWorker {
			t.Fatalf("%s: expected %d records, got %d", partition, workers*perWorker, n)
		}
	}
}

func TestLargeIntegerOrderingAgreesAcrossBackends(t *testing.T) {
	// Adjacent values above 2^53 collapse to the same float64.
	records := []doc{
		{ID: "x", Timestamp: 9007199254740993},
		{ID: "y", Timestamp: 9007199254740992},
		{ID: "z", Timestamp: 9007199254740994},
	}
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			st := bc.open(t)
			ctx := context.Background()
			for _, d := range records {
				if err := st.Put(ctx, store.PartitionSubtitles, mustRecord(t, d)); err != nil {
					t.Fatalf("put %s: %v", d.ID, err)
				}
			}
			got, err := st.ScanOrderedBy(ctx, store.PartitionSubtitles, "timestamp")
			if err != nil {
				t.Fatalf("scan: %v", err)
			}
			var ids []string
			for _, rec := range got {
				ids = append(ids, rec.ID)
			}
			if fmt.Sprint(ids) != "[y x z]" {
				t.Fatalf("expected [y x z], got %v", ids)
			}
		})
	}
}
