package opensubtitles

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"subselect/internal/logging"
	"subselect/internal/services"
)

type scriptedDownloader struct {
	errs  []error
	calls int
	auth  Auth
	ids   []int64
}

func (s *scriptedDownloader) Download(_ context.Context, auth Auth, fileID int64) (DownloadResult, error) {
	s.calls++
	s.auth = auth
	s.ids = append(s.ids, fileID)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return DownloadResult{}, err
		}
	}
	return DownloadResult{Data: []byte("subtitle body"), FileName: "movie.srt", Remaining: 5}, nil
}

type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newTestGateway(d Downloader) (*Gateway, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	g := NewGateway(d, logging.NewNop())
	g.sleep = clock.sleep
	g.now = func() time.Time { return clock.now }
	return g, clock
}

func TestFetchRemoteReturnsPayload(t *testing.T) {
	d := &scriptedDownloader{}
	g, _ := newTestGateway(d)
	payload, err := g.FetchRemote(context.Background(), Auth{Token: "tok"}, "555")
	if err != nil {
		t.Fatalf("FetchRemote returned error: %v", err)
	}
	if payload.ID != "555" || payload.Content != "subtitle body" || payload.FileName != "movie.srt" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if d.ids[0] != 555 || d.auth.Token != "tok" {
		t.Fatalf("unexpected download call %+v %+v", d.ids, d.auth)
	}
}

func TestFetchRemoteRequiresToken(t *testing.T) {
	d := &scriptedDownloader{}
	g, _ := newTestGateway(d)
	if _, err := g.FetchRemote(context.Background(), Auth{}, "555"); !errors.Is(err, services.ErrAuthRequired) {
		t.Fatalf("expected auth required, got %v", err)
	}
	if d.calls != 0 {
		t.Fatal("expected no download without a token")
	}
}

func TestFetchRemoteRejectsNonNumericID(t *testing.T) {
	g, _ := newTestGateway(&scriptedDownloader{})
	if _, err := g.FetchRemote(context.Background(), Auth{Token: "tok"}, "abc"); !errors.Is(err, services.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestFetchRemoteRetriesRateLimits(t *testing.T) {
	d := &scriptedDownloader{errs: []error{
		&StatusError{StatusCode: http.StatusTooManyRequests},
		&StatusError{StatusCode: http.StatusServiceUnavailable},
	}}
	g, clock := newTestGateway(d)
	if _, err := g.FetchRemote(context.Background(), Auth{Token: "tok"}, "1"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if d.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", d.calls)
	}
	if len(clock.sleeps) < 2 || clock.sleeps[0] != InitialBackoff || clock.sleeps[1] != 2*InitialBackoff {
		t.Fatalf("unexpected backoff sequence %v", clock.sleeps)
	}
}

func TestFetchRemoteGivesUpAfterMaxRetries(t *testing.T) {
	errs := make([]error, MaxRateRetries+2)
	for i := range errs {
		errs[i] = &StatusError{StatusCode: http.StatusTooManyRequests}
	}
	d := &scriptedDownloader{errs: errs}
	g, _ := newTestGateway(d)
	_, err := g.FetchRemote(context.Background(), Auth{Token: "tok"}, "1")
	if !errors.Is(err, services.ErrUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if d.calls != MaxRateRetries+1 {
		t.Fatalf("expected %d calls, got %d", MaxRateRetries+1, d.calls)
	}
}

func TestFetchRemoteDoesNotRetryNotFound(t *testing.T) {
	d := &scriptedDownloader{errs: []error{&StatusError{StatusCode: http.StatusNotFound}}}
	g, _ := newTestGateway(d)
	_, err := g.FetchRemote(context.Background(), Auth{Token: "tok"}, "1")
	if !errors.Is(err, services.ErrNotFound) || d.calls != 1 {
		t.Fatalf("expected single not-found call, got %v after %d calls", err, d.calls)
	}
}

func TestFetchRemoteSpacesCalls(t *testing.T) {
	g, clock := newTestGateway(&scriptedDownloader{})
	ctx := context.Background()
	if _, err := g.FetchRemote(ctx, Auth{Token: "tok"}, "1"); err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	clock.now = clock.now.Add(300 * time.Millisecond)
	if _, err := g.FetchRemote(ctx, Auth{Token: "tok"}, "2"); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if len(clock.sleeps) != 1 || clock.sleeps[0] != 700*time.Millisecond {
		t.Fatalf("expected a 700ms wait, got %v", clock.sleeps)
	}
}

func TestFetchRemoteStopsOnCancel(t *testing.T) {
	d := &scriptedDownloader{errs: []error{&StatusError{StatusCode: http.StatusTooManyRequests}}}
	g, _ := newTestGateway(d)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.FetchRemote(ctx, Auth{Token: "tok"}, "1")
	if err == nil || d.calls != 0 {
		t.Fatalf("expected cancellation before any call, got %v after %d calls", err, d.calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
}

type countingDownloader struct {
	calls atomic.Int32
}

func (c *countingDownloader) Download(context.Context, Auth, int64) (DownloadResult, error) {
	c.calls.Add(1)
	return DownloadResult{Data: []byte("x"), FileName: "x.srt"}, nil
}

func TestFetchRemoteConcurrentCallsTakeSeparateSlots(t *testing.T) {
	d := &countingDownloader{}
	g := NewGateway(d, logging.NewNop())
	start := time.Unix(1_700_000_000, 0)
	g.now = func() time.Time { return start }
	var mu sync.Mutex
	var sleeps []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return ctx.Err()
	}

	const callers = 3
	var wg sync.WaitGroup
	for i := 1; i <= callers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if _, err := g.FetchRemote(context.Background(), Auth{Token: "tok"}, fmt.Sprint(id)); err != nil {
				t.Errorf("fetch %d: %v", id, err)
			}
		}(i)
	}
	wg.Wait()

	slices.Sort(sleeps)
	want := []time.Duration{MinInterval, 2 * MinInterval}
	if !slices.Equal(sleeps, want) {
		t.Fatalf("expected waits %v, got %v", want, sleeps)
	}
	if got := d.calls.Load(); got != callers {
		t.Fatalf("expected %d downloads, got %d", callers, got)
	}
}
