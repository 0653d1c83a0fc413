package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"subselect/internal/cachestatus"
	"subselect/internal/logging"
	"subselect/internal/services"
	"subselect/internal/session"
	"subselect/internal/subtitles"
)

const (
	requestIDHeader         = "X-Request-ID"
	defaultSettingsDelay    = 500 * time.Millisecond
	defaultKeepaliveEvery   = 15 * time.Second
	defaultSubscriberBuffer = 32
)

// Deps are the services the HTTP handlers call into.
type Deps struct {
	Subtitles    *subtitles.Service
	Settings     *session.Settings
	Tokens       *session.Tokens
	Hub          *cachestatus.Hub
	Logger       *slog.Logger
	StoreBackend string
}

// Server routes userscript requests to the subtitle services.
type Server struct {
	deps      Deps
	logger    *slog.Logger
	token     string
	keepalive time.Duration
	startedAt time.Time

	settingsMu      sync.Mutex
	pendingSettings *session.Overlay
	settingsDelay   time.Duration
	debouncer       *session.Debouncer

	mux     *http.ServeMux
	handler http.Handler
}

// Option customizes a Server.
type Option func(*Server)

// WithAPIToken requires "Authorization: Bearer <token>" on every route.
func WithAPIToken(token string) Option {
	return func(s *Server) {
		s.token = strings.TrimSpace(token)
	}
}

// WithSettingsDelay sets the quiet period before settings are persisted.
func WithSettingsDelay(d time.Duration) Option {
	return func(s *Server) {
		if d >= 0 {
			s.settingsDelay = d
		}
	}
}

// WithKeepalive sets the interval of comment lines on the event stream.
func WithKeepalive(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.keepalive = d
		}
	}
}

// NewServer builds the handler tree.
func NewServer(deps Deps, opts ...Option) *Server {
	s := &Server{
		deps:          deps,
		logger:        logging.NewComponentLogger(deps.Logger, "api-server"),
		keepalive:     defaultKeepaliveEvery,
		settingsDelay: defaultSettingsDelay,
		startedAt:     time.Now().UTC(),
		mux:           http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.debouncer = session.NewDebouncer(s.settingsDelay)
	s.routes()
	s.handler = s.withRequestID(s.withAuth(s.mux))
	return s
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Close persists any settings update still waiting on the debouncer.
func (s *Server) Close() {
	s.debouncer.Flush()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/cache", s.handleCacheList)
	s.mux.HandleFunc("DELETE /api/cache", s.handleCacheClear)
	s.mux.HandleFunc("GET /api/cache/{id}", s.handleCacheGet)
	s.mux.HandleFunc("PUT /api/cache/{id}", s.handleCachePut)
	s.mux.HandleFunc("GET /api/cache/{id}/status", s.handleCacheStatus)
	s.mux.HandleFunc("GET /api/subtitles/{id}", s.handleSubtitle)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/settings", s.handleSettingsGet)
	s.mux.HandleFunc("PUT /api/settings", s.handleSettingsPut)
}

func (s *Server) withAuth(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.token {
			s.writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Kind: "auth_required"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, rid)
		ctx := services.WithRequestID(r.Context(), rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	status := services.HTTPStatus(err)
	logger := logging.WithContext(r.Context(), s.logger)
	if status >= http.StatusInternalServerError {
		logging.WarnWithContext(logger, "request failed", "api_request_failed",
			logging.String("path", r.URL.Path),
			logging.String(logging.FieldErrorHint, "see the error kind in the response"),
			logging.Int("status", status),
			logging.Error(err),
		)
	} else {
		logger.Debug("request rejected", logging.String("path", r.URL.Path), logging.Int("status", status), logging.Error(err))
	}
	s.writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: services.Kind(err)})
}
