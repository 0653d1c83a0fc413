package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"subselect/internal/logging"
)

const shutdownTimeout = 5 * time.Second

type apiServer struct {
	bind    string
	handler http.Handler
	logger  *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind string, handler http.Handler, logger *slog.Logger) *apiServer {
	return &apiServer{
		bind:    strings.TrimSpace(bind),
		handler: handler,
		logger:  logging.NewComponentLogger(logger, "api-server"),
	}
}

func (s *apiServer) listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bind == "" {
		return errors.New("api listen: api_bind is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) serve() error {
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("api server error", logging.Error(err))
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

func (s *apiServer) shutdown() {
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.mu.Unlock()
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			s.logger.Debug("api shutdown incomplete", logging.Error(err))
			_ = server.Close()
		}
	}
	if listener != nil {
		_ = listener.Close()
	}
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}
