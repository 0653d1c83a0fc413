package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeStore(); err != nil {
		return err
	}
	c.normalizeOpenSubtitles()
	c.normalizeSession()
	c.normalizeLogging()
	c.Maintenance.Schedule = strings.TrimSpace(c.Maintenance.Schedule)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("SUBSELECT_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeStore() error {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	c.Store.Path = strings.TrimSpace(c.Store.Path)
	if c.Store.Path == "" {
		switch c.Store.Backend {
		case StoreBackendSQLite:
			c.Store.Path = filepath.Join(c.Paths.DataDir, "subselect.db")
		case StoreBackendBolt:
			c.Store.Path = filepath.Join(c.Paths.DataDir, "subselect.bolt")
		}
		return nil
	}
	var err error
	if c.Store.Path, err = expandPath(c.Store.Path); err != nil {
		return fmt.Errorf("store.path: %w", err)
	}
	return nil
}

func (c *Config) normalizeOpenSubtitles() {
	c.OpenSubtitles.APIKey = strings.TrimSpace(c.OpenSubtitles.APIKey)
	if c.OpenSubtitles.APIKey == "" {
		if value, ok := os.LookupEnv("OPENSUBTITLES_API_KEY"); ok {
			c.OpenSubtitles.APIKey = strings.TrimSpace(value)
		}
	}
	c.OpenSubtitles.UserAgent = strings.TrimSpace(c.OpenSubtitles.UserAgent)
	if c.OpenSubtitles.UserAgent == "" {
		c.OpenSubtitles.UserAgent = defaultOpenSubtitlesUserAgent
	}
	c.OpenSubtitles.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenSubtitles.BaseURL), "/")
	if c.OpenSubtitles.BaseURL == "" {
		c.OpenSubtitles.BaseURL = defaultOpenSubtitlesBaseURL
	}
	c.OpenSubtitles.VIPBaseURL = strings.TrimRight(strings.TrimSpace(c.OpenSubtitles.VIPBaseURL), "/")
	if c.OpenSubtitles.VIPBaseURL == "" {
		c.OpenSubtitles.VIPBaseURL = defaultOpenSubtitlesVIPURL
	}
	if c.OpenSubtitles.TimeoutSeconds <= 0 {
		c.OpenSubtitles.TimeoutSeconds = defaultOpenSubtitlesTimeout
	}

	langs := make([]string, 0, len(c.OpenSubtitles.Languages))
	seen := make(map[string]struct{}, len(c.OpenSubtitles.Languages))
	for _, lang := range c.OpenSubtitles.Languages {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" {
			continue
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		langs = append(langs, lang)
	}
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	c.OpenSubtitles.Languages = langs
}

func (c *Config) normalizeSession() {
	if c.Session.TokenTTLDays <= 0 {
		c.Session.TokenTTLDays = defaultTokenTTLDays
	}
	if c.Session.LanguageTTLHours <= 0 {
		c.Session.LanguageTTLHours = defaultLanguageTTLHours
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
