package config

const (
	defaultConfigPath             = "~/.config/subselect/config.toml"
	defaultDataDir                = "~/.local/share/subselect"
	defaultLogDir                 = "~/.local/share/subselect/logs"
	defaultAPIBind                = "127.0.0.1:7488"
	defaultStoreBackend           = StoreBackendSQLite
	defaultOpenSubtitlesUserAgent = "subselect v1.0"
	defaultOpenSubtitlesBaseURL   = "https://api.opensubtitles.com/api/v1"
	defaultOpenSubtitlesVIPURL    = "https://vip-api.opensubtitles.com/api/v1"
	defaultOpenSubtitlesTimeout   = 30
	defaultTokenTTLDays           = 30
	defaultLanguageTTLHours       = 24
	defaultMaintenanceSchedule    = "@every 6h"
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
)

// Store backend identifiers accepted in [store].backend.
const (
	StoreBackendSQLite = "sqlite"
	StoreBackendBolt   = "bolt"
	StoreBackendMemory = "memory"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Store: Store{
			Backend: defaultStoreBackend,
		},
		OpenSubtitles: OpenSubtitles{
			UserAgent:      defaultOpenSubtitlesUserAgent,
			BaseURL:        defaultOpenSubtitlesBaseURL,
			VIPBaseURL:     defaultOpenSubtitlesVIPURL,
			Languages:      []string{"en"},
			TimeoutSeconds: defaultOpenSubtitlesTimeout,
		},
		Session: Session{
			TokenTTLDays:     defaultTokenTTLDays,
			LanguageTTLHours: defaultLanguageTTLHours,
		},
		Maintenance: Maintenance{
			Schedule: defaultMaintenanceSchedule,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
