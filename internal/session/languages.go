package session

import (
	"context"
	"log/slog"
	"time"

	"subselect/internal/logging"
	"subselect/internal/opensubtitles"
	"subselect/internal/services"
	"subselect/internal/store"
)

const languagesID = "cachedLanguages"

// LanguageFetcher loads the language catalogue remotely.
type LanguageFetcher interface {
	Languages(ctx context.Context) ([]opensubtitles.Language, error)
}

type languagesDoc struct {
	ID        string                   `json:"id"`
	Data      []opensubtitles.Language `json:"data"`
	Timestamp int64                    `json:"timestamp"`
}

// Languages caches the language catalogue with a soft expiry.
type Languages struct {
	store   store.Store
	fetcher LanguageFetcher
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewLanguages constructs a language cache.
func NewLanguages(st store.Store, fetcher LanguageFetcher, ttl time.Duration, logger *slog.Logger) *Languages {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Languages{
		store:   st,
		fetcher: fetcher,
		ttl:     ttl,
		logger:  logging.NewComponentLogger(logger, "languages"),
		now:     time.Now,
	}
}

// Get returns the cached catalogue, refreshing it when missing or expired.
// A stale list is returned when the refresh fails.
func (l *Languages) Get(ctx context.Context) ([]opensubtitles.Language, error) {
	doc := l.load(ctx)
	if doc != nil && l.fresh(doc) {
		return doc.Data, nil
	}
	langs, err := l.Refresh(ctx)
	if err != nil {
		if doc != nil && len(doc.Data) > 0 {
			logging.WarnWithContext(logging.WithContext(ctx, l.logger), "language refresh failed; serving stale list", "languages_refresh_failed",
				logging.String(logging.FieldErrorHint, "check network connectivity to OpenSubtitles"),
				logging.Error(err),
			)
			return doc.Data, nil
		}
		return nil, err
	}
	return langs, nil
}

// Refresh fetches and stores the catalogue.
func (l *Languages) Refresh(ctx context.Context) ([]opensubtitles.Language, error) {
	if l.fetcher == nil {
		return nil, services.Wrap(services.ErrConfiguration, "session", "refresh languages", "no OpenSubtitles client configured", nil)
	}
	langs, err := l.fetcher.Languages(ctx)
	if err != nil {
		return nil, err
	}
	if l.store != nil {
		rec, err := store.NewRecord(languagesDoc{ID: languagesID, Data: langs, Timestamp: l.now().UnixMilli()})
		if err == nil {
			err = l.store.Put(ctx, store.PartitionLanguages, rec)
		}
		if err != nil {
			l.logger.Debug("language list not cached", logging.Error(err))
		}
	}
	return langs, nil
}

// Prune deletes the cached catalogue when it has expired. It reports whether
// anything was removed.
func (l *Languages) Prune(ctx context.Context) (bool, error) {
	doc := l.load(ctx)
	if doc == nil || l.fresh(doc) {
		return false, nil
	}
	if err := l.store.Delete(ctx, store.PartitionLanguages, languagesID); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Languages) fresh(doc *languagesDoc) bool {
	return l.now().Sub(time.UnixMilli(doc.Timestamp)) < l.ttl
}

func (l *Languages) load(ctx context.Context) *languagesDoc {
	if l.store == nil {
		return nil
	}
	raw, err := l.store.Get(ctx, store.PartitionLanguages, languagesID)
	if err != nil || raw == nil {
		return nil
	}
	var doc languagesDoc
	if err := store.Decode(*raw, &doc); err != nil {
		return nil
	}
	return &doc
}
