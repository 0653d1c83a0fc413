package testsupport

import (
	"path/filepath"
	"testing"

	"subselect/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Store.Backend = config.StoreBackendSQLite
	cfgVal.Store.Path = filepath.Join(base, "data", "subselect.db")
	cfgVal.OpenSubtitles.APIKey = "test-key"
	cfgVal.Maintenance.Schedule = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithStoreBackend switches the store backend, placing file backends under the temp dir.
func WithStoreBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Store.Backend = backend
		switch backend {
		case config.StoreBackendBolt:
			b.cfg.Store.Path = filepath.Join(b.baseDir, "data", "subselect.bolt")
		case config.StoreBackendMemory:
			b.cfg.Store.Path = ""
		}
	}
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithOpenSubtitlesURL points the OpenSubtitles client at a test server.
func WithOpenSubtitlesURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.OpenSubtitles.BaseURL = url
		b.cfg.OpenSubtitles.VIPBaseURL = url
	}
}
