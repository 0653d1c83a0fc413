package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"subselect/internal/logging"
)

// handleEvents streams cache-status events until the client disconnects.
// Events missed while the subscriber buffer is full are not replayed.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Debug("clear write deadline failed", logging.Error(err))
	}

	events, unsubscribe := s.deps.Hub.Subscribe(defaultSubscriberBuffer)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		logging.WarnWithContext(logging.WithContext(r.Context(), s.logger), "event stream not supported by response writer", "event_stream_unsupported",
			logging.String(logging.FieldErrorHint, "serve the API without buffering middleware"),
			logging.String(logging.FieldImpact, "client receives no cache-status events"),
			logging.Error(err),
		)
		return
	}

	ticker := time.NewTicker(s.keepalive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(FromEvent(evt))
			if err != nil {
				return
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: cache-status\ndata: %s\n\n", evt.Sequence, payload); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}
