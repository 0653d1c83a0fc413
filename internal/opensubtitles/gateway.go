package opensubtitles

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"subselect/internal/logging"
	"subselect/internal/services"
)

// Payload is a fetched subtitle file ready to be cached.
type Payload struct {
	ID        string
	Content   string
	FileName  string
	Remaining int
}

// Downloader is the part of Client the gateway needs.
type Downloader interface {
	Download(ctx context.Context, auth Auth, fileID int64) (DownloadResult, error)
}

// Gateway fetches subtitle files with call spacing and retry.
type Gateway struct {
	client Downloader
	logger *slog.Logger

	mu       sync.Mutex
	lastCall time.Time

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// NewGateway wraps a downloader.
func NewGateway(client Downloader, logger *slog.Logger) *Gateway {
	return &Gateway{
		client: client,
		logger: logging.NewComponentLogger(logger, "opensubtitles"),
		sleep:  SleepWithContext,
		now:    time.Now,
	}
}

// FetchRemote downloads the subtitle file with the given id. It fails with
// services.ErrAuthRequired, ErrNotFound, ErrNetwork or ErrUpstream.
func (g *Gateway) FetchRemote(ctx context.Context, auth Auth, id string) (Payload, error) {
	id = strings.TrimSpace(id)
	fileID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || fileID <= 0 {
		return Payload{}, services.InvalidArgument("opensubtitles", "fetch", "subtitle id must be a positive file id")
	}
	if strings.TrimSpace(auth.Token) == "" {
		return Payload{}, services.Wrap(services.ErrAuthRequired, "opensubtitles", "fetch", "no session token", nil)
	}

	var result DownloadResult
	err = g.invoke(ctx, func() error {
		var callErr error
		result, callErr = g.client.Download(ctx, auth, fileID)
		return callErr
	})
	if err != nil {
		return Payload{}, err
	}
	return Payload{
		ID:        id,
		Content:   string(result.Data),
		FileName:  result.FileName,
		Remaining: result.Remaining,
	}, nil
}

func (g *Gateway) invoke(ctx context.Context, op func() error) error {
	attempt := 0
	for {
		if err := g.waitForWindow(ctx); err != nil {
			return services.Wrap(services.ErrNetwork, "opensubtitles", "fetch", "cancelled", err)
		}
		err := op()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !IsRetriable(err) || attempt >= MaxRateRetries {
			return err
		}
		attempt++
		backoff := Backoff(attempt)
		logging.WarnWithContext(logging.WithContext(ctx, g.logger), "opensubtitles rate limited, retrying", "opensubtitles_rate_limited",
			logging.Duration("backoff", backoff),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", MaxRateRetries),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "wait for rate limits or check network connectivity"),
		)
		if err := g.sleep(ctx, backoff); err != nil {
			return services.Wrap(services.ErrNetwork, "opensubtitles", "fetch", "cancelled during backoff", err)
		}
	}
}

// waitForWindow reserves the next call slot, at least MinInterval after the
// previous reservation, and sleeps until it arrives.
func (g *Gateway) waitForWindow(ctx context.Context) error {
	g.mu.Lock()
	now := g.now()
	slot := now
	if !g.lastCall.IsZero() {
		if next := g.lastCall.Add(MinInterval); next.After(slot) {
			slot = next
		}
	}
	g.lastCall = slot
	g.mu.Unlock()

	if wait := slot.Sub(now); wait > 0 {
		return g.sleep(ctx, wait)
	}
	return ctx.Err()
}
