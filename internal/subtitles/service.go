package subtitles

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"subselect/internal/fileutil"
	"subselect/internal/logging"
	"subselect/internal/opensubtitles"
	"subselect/internal/services"
	"subselect/internal/session"
	"subselect/internal/subtitlecache"
	"subselect/internal/textutil"
)

// Source reports where a loaded subtitle came from.
type Source string

const (
	SourceCache  Source = "cache"
	SourceRemote Source = "remote"
)

// Fetcher downloads subtitle files by id.
type Fetcher interface {
	FetchRemote(ctx context.Context, auth opensubtitles.Auth, id string) (opensubtitles.Payload, error)
}

// TokenSource supplies the current session token.
type TokenSource interface {
	Current(ctx context.Context) (*session.TokenRecord, error)
}

// Meta carries display metadata recorded alongside a fetched file.
type Meta struct {
	Title    string
	Language string
}

// Result is a loaded subtitle and its origin.
type Result struct {
	Record    subtitlecache.CacheRecord
	Source    Source
	Remaining int
}

// Service resolves subtitles through the cache, fetching on a miss.
type Service struct {
	cache   *subtitlecache.Manager
	fetcher Fetcher
	tokens  TokenSource
	logger  *slog.Logger

	group    singleflight.Group
	mu       sync.Mutex
	flights  map[string]*flight
	now      func() time.Time
	override *opensubtitles.Auth
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClock replaces the time source used for record timestamps.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuth makes the service use auth instead of the stored session token.
func WithAuth(auth opensubtitles.Auth) ServiceOption {
	return func(s *Service) {
		if strings.TrimSpace(auth.Token) != "" {
			s.override = &auth
		}
	}
}

// NewService wires the cache, the remote fetcher and the token source.
func NewService(cache *subtitlecache.Manager, fetcher Fetcher, tokens TokenSource, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		cache:   cache,
		fetcher: fetcher,
		tokens:  tokens,
		logger:  logging.NewComponentLogger(logger, "subtitles"),
		now:     time.Now,
		flights: make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Cache exposes the underlying cache manager.
func (s *Service) Cache() *subtitlecache.Manager {
	return s.cache
}

// Load returns the subtitle for id from the cache, or fetches and caches it.
func (s *Service) Load(ctx context.Context, id string) (Result, error) {
	return s.LoadWithMeta(ctx, id, Meta{})
}

// LoadWithMeta is Load with title and language recorded on a fetched file.
// A cache hit returns the stored record unchanged.
func (s *Service) LoadWithMeta(ctx context.Context, id string, meta Meta) (Result, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Result{}, services.InvalidArgument("subtitles", "load", "empty subtitle id")
	}
	ctx = services.WithSubtitleID(ctx, id)
	logger := logging.WithContext(ctx, s.logger)

	cached, err := s.cache.Lookup(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if cached != nil {
		logger.Debug("subtitle served from cache")
		return Result{Record: *cached, Source: SourceCache}, nil
	}

	auth, err := s.auth(ctx)
	if err != nil {
		return Result{}, err
	}
	if s.fetcher == nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "subtitles", "load", "no remote fetcher configured", nil)
	}

	for {
		f, w := s.join(ctx, id)
		ch := s.group.DoChan(id, func() (any, error) {
			return s.fetchAndInsert(f, auth, id, meta)
		})
		select {
		case <-ctx.Done():
			s.leave(id, f, w)
			return Result{}, ctx.Err()
		case res := <-ch:
			s.leave(id, f, w)
			if res.Err != nil {
				// A download abandoned by every earlier caller; start a fresh one.
				if ctx.Err() == nil && errors.Is(res.Err, context.Canceled) {
					continue
				}
				return Result{}, res.Err
			}
			if res.Shared {
				logger.Debug("subtitle download shared with concurrent request")
			}
			return res.Val.(Result), nil
		}
	}
}

// flight is one shared download. It runs detached from any single caller and
// is cancelled once every waiting caller has gone.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters map[*waiter]struct{}
}

type waiter struct {
	ctx context.Context
}

func (s *Service) join(ctx context.Context, id string) (*flight, *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flights[id]
	if f == nil {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel, waiters: make(map[*waiter]struct{})}
		s.flights[id] = f
	}
	w := &waiter{ctx: ctx}
	f.waiters[w] = struct{}{}
	return f, w
}

func (s *Service) leave(id string, f *flight, w *waiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(f.waiters, w)
	if len(f.waiters) > 0 {
		return
	}
	f.cancel()
	if s.flights[id] == f {
		delete(s.flights, id)
	}
}

// abandoned reports whether no caller is still waiting on f.
func (s *Service) abandoned(f *flight) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range f.waiters {
		if w.ctx.Err() == nil {
			return false
		}
	}
	return true
}

func (s *Service) fetchAndInsert(f *flight, auth opensubtitles.Auth, id string, meta Meta) (Result, error) {
	ctx := f.ctx
	logger := logging.WithContext(ctx, s.logger)
	payload, err := s.fetcher.FetchRemote(ctx, auth, id)
	if err != nil {
		return Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if s.abandoned(f) {
		return Result{}, context.Canceled
	}

	fileName := strings.TrimSpace(payload.FileName)
	if fileName == "" {
		fileName = id + ".srt"
	}
	title := strings.TrimSpace(meta.Title)
	if title == "" {
		title = textutil.TitleFromFileName(fileName)
	}
	rec := subtitlecache.CacheRecord{
		ID:        id,
		Content:   payload.Content,
		FileName:  fileName,
		Title:     title,
		Language:  strings.ToLower(strings.TrimSpace(meta.Language)),
		Timestamp: s.now().UnixMilli(),
	}
	if err := s.cache.Insert(ctx, rec); err != nil {
		return Result{}, err
	}
	logger.Info("subtitle fetched",
		logging.String("file_name", fileName),
		logging.Int("bytes", len(rec.Content)),
		logging.Int("downloads_remaining", payload.Remaining),
	)
	return Result{Record: rec, Source: SourceRemote, Remaining: payload.Remaining}, nil
}

func (s *Service) auth(ctx context.Context) (opensubtitles.Auth, error) {
	if s.override != nil {
		return *s.override, nil
	}
	if s.tokens != nil {
		rec, err := s.tokens.Current(ctx)
		if err != nil {
			logging.WarnWithContext(logging.WithContext(ctx, s.logger), "session token unreadable", "session_token_unreadable",
				logging.String(logging.FieldErrorHint, "run login again or check the store backend"),
				logging.String(logging.FieldImpact, "cache miss cannot be fetched"),
				logging.Error(err),
			)
		} else if rec != nil {
			return rec.Auth(), nil
		}
	}
	return opensubtitles.Auth{}, services.Wrap(services.ErrAuthRequired, "subtitles", "load", "no session token; run login first", nil)
}

// Put stores a record supplied by a client. A zero timestamp is replaced
// with the current time.
func (s *Service) Put(ctx context.Context, rec subtitlecache.CacheRecord) error {
	if rec.Timestamp == 0 {
		rec.Timestamp = s.now().UnixMilli()
	}
	return s.cache.Insert(ctx, rec)
}

// Status reports whether id is cached.
func (s *Service) Status(ctx context.Context, id string) (bool, error) {
	return s.cache.Exists(ctx, id)
}

// Save loads id and writes it to dir as an .srt file, returning the path.
func (s *Service) Save(ctx context.Context, id, dir string) (string, Result, error) {
	return s.SaveWithMeta(ctx, id, dir, Meta{})
}

// SaveWithMeta is Save with metadata recorded on a fetched file.
func (s *Service) SaveWithMeta(ctx context.Context, id, dir string, meta Meta) (string, Result, error) {
	result, err := s.LoadWithMeta(ctx, id, meta)
	if err != nil {
		return "", Result{}, err
	}
	if strings.TrimSpace(dir) == "" {
		dir = "."
	}
	path := filepath.Join(dir, textutil.SubtitleFileName(result.Record.FileName, result.Record.ID))
	if err := fileutil.WriteFileAtomic(path, []byte(result.Record.Content), 0o644); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return "", result, services.Wrap(services.ErrInvalidArgument, "subtitles", "save", "output directory not writable", err)
		}
		return "", result, services.Wrap(services.ErrStorage, "subtitles", "save", "write subtitle file", err)
	}
	return path, result, nil
}
