package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"subselect/internal/cachestatus"
	"subselect/internal/config"
	"subselect/internal/logging"
	"subselect/internal/opensubtitles"
	"subselect/internal/session"
	"subselect/internal/store"
	"subselect/internal/subtitlecache"
	"subselect/internal/subtitles"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	mu          sync.Mutex
	store       store.Store
	storeOpened bool
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) debug() bool {
	return c.verbose != nil && *c.verbose
}

// cliLogger writes warnings (or everything with --verbose) to stderr.
func (c *commandContext) cliLogger() *slog.Logger {
	level := "warn"
	if c.debug() {
		level = "debug"
	}
	format := "console"
	if c.config != nil && c.config.Logging.Format != "" {
		format = c.config.Logging.Format
	}
	logger, err := logging.New(logging.Options{Level: level, Format: format, OutputPaths: []string{"stderr"}})
	if err != nil {
		return logging.NewNop()
	}
	return logger
}

// daemonLogger logs to stderr and the log file at the configured level.
func (c *commandContext) daemonLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if c.debug() {
		copyCfg := *cfg
		copyCfg.Logging.Level = "debug"
		cfg = &copyCfg
	}
	return logging.NewFromConfig(cfg)
}

// openStore opens the configured store once. A failure is reported on the
// command's stderr and nil is returned so the caller runs degraded.
func (c *commandContext) openStore(cmd *cobra.Command, logger *slog.Logger) store.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storeOpened {
		return c.store
	}
	c.storeOpened = true
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil
	}
	st, err := store.Open(commandCtx(cmd), store.OptionsFromConfig(cfg))
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: store unavailable, running without cache: %v\n", err)
		logging.WarnWithContext(logger, "store unavailable; cache degraded", "store_open_failed",
			logging.String(logging.FieldErrorHint, "check store.path permissions or switch store.backend"),
			logging.String(logging.FieldImpact, "every lookup misses and nothing is persisted"),
			logging.Error(err),
		)
		return nil
	}
	c.store = st
	return st
}

func (c *commandContext) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil {
		_ = c.store.Close()
		c.store = nil
	}
	c.storeOpened = false
}

// client returns an OpenSubtitles client, or an error when no API key is set.
func (c *commandContext) client() (*opensubtitles.Client, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	client, err := opensubtitles.New(opensubtitles.ConfigFromApp(cfg))
	if err != nil {
		return nil, fmt.Errorf("%w (set opensubtitles.api_key or OPENSUBTITLES_API_KEY)", err)
	}
	return client, nil
}

type serviceSet struct {
	store     store.Store
	hub       *cachestatus.Hub
	cache     *subtitlecache.Manager
	tokens    *session.Tokens
	settings  *session.Settings
	languages *session.Languages
	client    *opensubtitles.Client
	subtitles *subtitles.Service
}

// services wires the store, cache, session and OpenSubtitles layers. A missing
// API key leaves client nil; cache hits still work.
func (c *commandContext) services(cmd *cobra.Command, logger *slog.Logger, opts ...subtitles.ServiceOption) (*serviceSet, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	st := c.openStore(cmd, logger)
	hub := cachestatus.NewHub()

	set := &serviceSet{store: st, hub: hub}
	var (
		fetcher   subtitles.Fetcher
		validator session.UserInfoFetcher
		langs     session.LanguageFetcher
	)
	if client, err := c.client(); err == nil {
		set.client = client
		fetcher = opensubtitles.NewGateway(client, logger)
		validator = client
		langs = client
	} else {
		logger.Debug("opensubtitles client unavailable", logging.Error(err))
	}

	tokenTTL := time.Duration(cfg.Session.TokenTTLDays) * 24 * time.Hour
	languageTTL := time.Duration(cfg.Session.LanguageTTLHours) * time.Hour

	set.cache = subtitlecache.New(st, logger, hub)
	set.tokens = session.NewTokens(st, validator, tokenTTL, logger)
	set.settings = session.NewSettings(st, logger)
	set.languages = session.NewLanguages(st, langs, languageTTL, logger)
	set.subtitles = subtitles.NewService(set.cache, fetcher, set.tokens, logger, opts...)
	return set, nil
}

func (s *serviceSet) requireClient() (*opensubtitles.Client, error) {
	if s.client == nil {
		return nil, errors.New("opensubtitles api key is not configured (set opensubtitles.api_key or OPENSUBTITLES_API_KEY)")
	}
	return s.client, nil
}

func commandCtx(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
