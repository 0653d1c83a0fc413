package testsupport

import (
	"context"
	"testing"

	"subselect/internal/config"
	"subselect/internal/store"
)

// MustOpenStore opens the configured store backend for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) store.Store {
	t.Helper()

	st, err := store.Open(context.Background(), store.OptionsFromConfig(cfg))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}
