package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"subselect/internal/api"
	"subselect/internal/cachestatus"
	"subselect/internal/config"
	"subselect/internal/logging"
	"subselect/internal/session"
	"subselect/internal/store"
	"subselect/internal/subtitles"
)

// Deps are the services the daemon serves. Store may be nil when the
// persistent store could not be opened; the cache then runs degraded.
type Deps struct {
	Store     store.Store
	Subtitles *subtitles.Service
	Tokens    *session.Tokens
	Settings  *session.Settings
	Languages *session.Languages
	Hub       *cachestatus.Hub
}

// Daemon serves the HTTP API and runs maintenance while holding the
// data directory lock.
type Daemon struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger

	lockPath string
	lock     *flock.Flock

	handler     *api.Server
	api         *apiServer
	maintenance *maintenance

	mu        sync.Mutex
	running   atomic.Bool
	cancel    context.CancelFunc
	group     *errgroup.Group
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Address      string
	LockFilePath string
	StoreBackend string
	Degraded     bool
	StartedAt    time.Time
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || deps.Subtitles == nil {
		return nil, errors.New("daemon requires config and subtitle service")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	handler := api.NewServer(api.Deps{
		Subtitles:    deps.Subtitles,
		Settings:     deps.Settings,
		Tokens:       deps.Tokens,
		Hub:          deps.Hub,
		Logger:       logger,
		StoreBackend: cfg.Store.Backend,
	}, api.WithAPIToken(cfg.Paths.APIToken))

	lockPath := cfg.LockPath()
	return &Daemon{
		cfg:         cfg,
		deps:        deps,
		logger:      logging.NewComponentLogger(logger, "daemon"),
		lockPath:    lockPath,
		lock:        flock.New(lockPath),
		handler:     handler,
		api:         newAPIServer(cfg.Paths.APIBind, handler.Handler(), logger),
		maintenance: newMaintenance(cfg.Maintenance.Schedule, deps.Languages, deps.Tokens, logger),
	}, nil
}

// Start acquires the daemon lock, begins serving the API and starts the
// maintenance schedule. Serving stops when ctx is canceled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another subselect daemon instance is already running")
	}

	if err := d.api.listen(); err != nil {
		_ = d.lock.Unlock()
		return err
	}
	if err := d.maintenance.start(); err != nil {
		d.api.shutdown()
		_ = d.lock.Unlock()
		return fmt.Errorf("start maintenance: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(d.api.serve)
	group.Go(func() error {
		<-groupCtx.Done()
		d.api.shutdown()
		return nil
	})

	d.cancel = cancel
	d.group = group
	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("subselect daemon started",
		logging.String("lock", d.lockPath),
		logging.String("address", d.api.address()),
		logging.Bool("degraded", d.deps.Subtitles.Cache().Degraded()),
	)
	return nil
}

// Wait blocks until the API server stops, returning its error if it failed.
func (d *Daemon) Wait() error {
	d.mu.Lock()
	group := d.group
	d.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Stop shuts the API down, stops maintenance, persists pending settings and
// releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	d.cancel()
	if err := d.group.Wait(); err != nil {
		logging.WarnWithContext(d.logger, "api server stopped with error", "api_server_failed",
			logging.String(logging.FieldErrorHint, "check the bind address and daemon log"),
			logging.Error(err),
		)
	}
	d.maintenance.stop()
	d.handler.Close()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.String("lock", d.lockPath),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.Error(err),
		)
	}
	d.cancel = nil
	d.group = nil
	d.running.Store(false)
	d.logger.Info("subselect daemon stopped")
}

// Run starts the daemon and blocks until ctx is canceled or the API fails.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.Start(ctx); err != nil {
		return err
	}
	err := d.Wait()
	d.Stop()
	return err
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.deps.Store != nil {
		return d.deps.Store.Close()
	}
	return nil
}

// Addr returns the address the API is listening on.
func (d *Daemon) Addr() string {
	return d.api.address()
}

// RunMaintenance performs one maintenance pass immediately.
func (d *Daemon) RunMaintenance(ctx context.Context) {
	d.maintenance.run(ctx)
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	d.mu.Lock()
	startedAt := d.startedAt
	d.mu.Unlock()
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Address:      d.api.address(),
		LockFilePath: d.lockPath,
		StoreBackend: strings.TrimSpace(d.cfg.Store.Backend),
		Degraded:     d.deps.Subtitles.Cache().Degraded(),
		StartedAt:    startedAt,
	}
}
