package api

import (
	"context"
	"log/slog"
	"net/http"

	"subselect/internal/logging"
	"subselect/internal/services"
	"subselect/internal/session"
)

func (s *Server) currentSettings(ctx context.Context) session.Overlay {
	s.settingsMu.Lock()
	pending := s.pendingSettings
	s.settingsMu.Unlock()
	if pending != nil {
		return *pending
	}
	if s.deps.Settings == nil {
		return session.DefaultOverlay()
	}
	return s.deps.Settings.Load(ctx)
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.currentSettings(r.Context()))
}

// handleSettingsPut merges the body over the current settings and schedules
// a save once updates stop arriving.
func (s *Server) handleSettingsPut(w http.ResponseWriter, r *http.Request) {
	if s.deps.Settings == nil {
		s.writeError(w, r, services.Wrap(services.ErrStorageUnavailable, "api", "settings", "settings store not available", nil))
		return
	}
	next := s.currentSettings(r.Context())
	if err := decodeBody(r, &next); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := next.Validate(); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.settingsMu.Lock()
	s.pendingSettings = &next
	s.settingsMu.Unlock()

	logger := logging.WithContext(r.Context(), s.logger)
	s.debouncer.Trigger(func() { s.persistSettings(logger) })
	s.writeJSON(w, http.StatusAccepted, next)
}

func (s *Server) persistSettings(logger *slog.Logger) {
	s.settingsMu.Lock()
	pending := s.pendingSettings
	s.settingsMu.Unlock()
	if pending == nil {
		return
	}
	if err := s.deps.Settings.Save(context.Background(), *pending); err != nil {
		logging.WarnWithContext(logger, "settings not saved", "settings_save_failed",
			logging.String(logging.FieldImpact, "overlay settings revert on restart"),
			logging.Error(err),
		)
		return
	}
	s.settingsMu.Lock()
	if s.pendingSettings == pending {
		s.pendingSettings = nil
	}
	s.settingsMu.Unlock()
	logger.Debug("settings saved")
}
