package daemon

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"subselect/internal/logging"
	"subselect/internal/session"
)

const maintenanceTimeout = 2 * time.Minute

type maintenance struct {
	schedule  string
	languages *session.Languages
	tokens    *session.Tokens
	logger    *slog.Logger

	cron *cron.Cron
}

func newMaintenance(schedule string, languages *session.Languages, tokens *session.Tokens, logger *slog.Logger) *maintenance {
	return &maintenance{
		schedule:  strings.TrimSpace(schedule),
		languages: languages,
		tokens:    tokens,
		logger:    logging.NewComponentLogger(logger, "maintenance"),
	}
}

// start registers the maintenance job. An empty schedule disables it.
func (m *maintenance) start() error {
	if m.schedule == "" {
		m.logger.Debug("maintenance schedule disabled")
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(m.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
		defer cancel()
		m.run(ctx)
	}); err != nil {
		return err
	}
	c.Start()
	m.cron = c
	m.logger.Info("maintenance scheduled", logging.String("schedule", m.schedule))
	return nil
}

func (m *maintenance) stop() {
	if m.cron == nil {
		return
	}
	<-m.cron.Stop().Done()
	m.cron = nil
}

// run prunes the expired language list and re-checks the session token.
func (m *maintenance) run(ctx context.Context) {
	if m.languages != nil {
		pruned, err := m.languages.Prune(ctx)
		switch {
		case err != nil:
			logging.WarnWithContext(m.logger, "language list prune failed", "maintenance_prune_failed",
				logging.String(logging.FieldImpact, "stale language list kept until next run"),
				logging.Error(err),
			)
		case pruned:
			m.logger.Info("expired language list pruned")
		}
	}
	if m.tokens != nil {
		rec, err := m.tokens.Current(ctx)
		if err != nil {
			m.logger.Debug("session token unreadable", logging.Error(err))
			return
		}
		if rec == nil {
			return
		}
		valid, err := m.tokens.Check(ctx)
		switch {
		case err != nil:
			m.logger.Debug("token check failed", logging.Error(err))
		case !valid:
			logging.WarnWithContext(m.logger, "session token rejected by OpenSubtitles", "session_token_invalid",
				logging.String(logging.FieldErrorHint, "run subselect login again"),
				logging.String(logging.FieldImpact, "downloads on cache miss will fail"),
			)
		default:
			m.logger.Debug("session token valid")
		}
	}
}
