package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateOpenSubtitles(); err != nil {
		return err
	}
	if err := c.validateMaintenance(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if _, _, err := net.SplitHostPort(c.Paths.APIBind); err != nil {
		return fmt.Errorf("paths.api_bind must be host:port: %w", err)
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case StoreBackendSQLite, StoreBackendBolt:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must be set for backend %q", c.Store.Backend)
		}
	case StoreBackendMemory:
	default:
		return fmt.Errorf("store.backend must be one of sqlite, bolt, memory (got %q)", c.Store.Backend)
	}
	return nil
}

func (c *Config) validateOpenSubtitles() error {
	for key, raw := range map[string]string{
		"opensubtitles.base_url":     c.OpenSubtitles.BaseURL,
		"opensubtitles.vip_base_url": c.OpenSubtitles.VIPBaseURL,
	} {
		parsed, err := url.Parse(raw)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL (got %q)", key, raw)
		}
	}
	return nil
}

func (c *Config) validateMaintenance() error {
	if c.Maintenance.Schedule == "" {
		return nil
	}
	if _, err := cron.ParseStandard(c.Maintenance.Schedule); err != nil {
		return fmt.Errorf("maintenance.schedule: %w", err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json (got %q)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error (got %q)", c.Logging.Level)
	}
	return nil
}
