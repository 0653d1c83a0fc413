package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"subselect/internal/logging"
	"subselect/internal/opensubtitles"
	"subselect/internal/services"
	"subselect/internal/store"
)

type fakeValidator struct {
	info  opensubtitles.UserInfo
	err   error
	calls int
}

func (f *fakeValidator) UserInfo(context.Context, opensubtitles.Auth) (opensubtitles.UserInfo, error) {
	f.calls++
	return f.info, f.err
}

type fakeLanguages struct {
	langs []opensubtitles.Language
	err   error
	calls int
}

func (f *fakeLanguages) Languages(context.Context) ([]opensubtitles.Language, error) {
	f.calls++
	return f.langs, f.err
}

func TestTokensSaveAndCurrent(t *testing.T) {
	ctx := context.Background()
	tokens := NewTokens(store.NewMemory(), nil, 0, logging.NewNop())

	if rec, err := tokens.Current(ctx); rec != nil || err != nil {
		t.Fatalf("expected no token, got %v, %v", rec, err)
	}
	if err := tokens.Save(ctx, "abc", opensubtitles.VIPHost, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	rec, err := tokens.Current(ctx)
	if err != nil || rec == nil {
		t.Fatalf("Current: %v, %v", rec, err)
	}
	if rec.Token != "abc" || rec.Auth().BaseURL != opensubtitles.VIPHost {
		t.Fatalf("unexpected record %+v", rec)
	}
	if err := tokens.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if ok, _ := tokens.Check(ctx); ok {
		t.Fatal("expected no valid token after clear")
	}
}

func TestTokensSaveRejectsEmpty(t *testing.T) {
	tokens := NewTokens(store.NewMemory(), nil, 0, logging.NewNop())
	if err := tokens.Save(context.Background(), " ", "", nil); !errors.Is(err, services.ErrInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestTokensCheck(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	setup := func(validator *fakeValidator) (*Tokens, *time.Time) {
		now := base
		tokens := NewTokens(store.NewMemory(), validator, 30*24*time.Hour, logging.NewNop())
		tokens.now = func() time.Time { return now }
		if err := tokens.Save(ctx, "tok", "", nil); err != nil {
			t.Fatalf("Save: %v", err)
		}
		return tokens, &now
	}

	t.Run("fresh token skips network", func(t *testing.T) {
		v := &fakeValidator{}
		tokens, now := setup(v)
		*now = base.Add(29 * 24 * time.Hour)
		if ok, err := tokens.Check(ctx); !ok || err != nil || v.calls != 0 {
			t.Fatalf("expected local validity, got %v %v calls=%d", ok, err, v.calls)
		}
	})

	t.Run("old token revalidated", func(t *testing.T) {
		v := &fakeValidator{info: opensubtitles.UserInfo{RemainingDownloads: 4}}
		tokens, now := setup(v)
		*now = base.Add(31 * 24 * time.Hour)
		if ok, err := tokens.Check(ctx); !ok || err != nil || v.calls != 1 {
			t.Fatalf("expected remote validity, got %v %v calls=%d", ok, err, v.calls)
		}
		rec, _ := tokens.Current(ctx)
		if rec.UserData == nil || rec.UserData.RemainingDownloads != 4 {
			t.Fatalf("expected refreshed user data, got %+v", rec.UserData)
		}
	})

	t.Run("old token rejected remotely", func(t *testing.T) {
		v := &fakeValidator{err: &opensubtitles.StatusError{StatusCode: 401}}
		tokens, now := setup(v)
		*now = base.Add(31 * 24 * time.Hour)
		if ok, _ := tokens.Check(ctx); ok {
			t.Fatal("expected invalid token")
		}
	})

	t.Run("network error assumes valid", func(t *testing.T) {
		v := &fakeValidator{err: services.Wrap(services.ErrNetwork, "test", "user info", "", errors.New("dial"))}
		tokens, now := setup(v)
		*now = base.Add(31 * 24 * time.Hour)
		if ok, _ := tokens.Check(ctx); !ok {
			t.Fatal("expected token assumed valid on network error")
		}
	})
}

func TestTokensWithoutStore(t *testing.T) {
	tokens := NewTokens(nil, nil, 0, logging.NewNop())
	ctx := context.Background()
	if err := tokens.Save(ctx, "tok", "", nil); !errors.Is(err, services.ErrStorageUnavailable) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if rec, err := tokens.Current(ctx); rec != nil || err != nil {
		t.Fatalf("expected nil token, got %v %v", rec, err)
	}
}

func TestSettingsDefaultsAndSave(t *testing.T) {
	ctx := context.Background()
	settings := NewSettings(store.NewMemory(), logging.NewNop())

	if got := settings.Load(ctx); got != DefaultOverlay() {
		t.Fatalf("expected defaults, got %+v", got)
	}
	custom := DefaultOverlay()
	custom.FontSize = 22
	custom.FontColor = "#FFFF00"
	custom.SyncOffset = -1.5
	if err := settings.Save(ctx, custom); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := settings.Load(ctx); got != custom {
		t.Fatalf("expected saved settings, got %+v", got)
	}
}

func TestSettingsValidation(t *testing.T) {
	settings := NewSettings(store.NewMemory(), logging.NewNop())
	bad := []func(*Overlay){
		func(o *Overlay) { o.FontSize = 0 },
		func(o *Overlay) { o.BgOpacity = 1.5 },
		func(o *Overlay) { o.FontColor = "red" },
		func(o *Overlay) { o.AnimationDuration = -1 },
	}
	for i, mutate := range bad {
		o := DefaultOverlay()
		mutate(&o)
		if err := settings.Save(context.Background(), o); !errors.Is(err, services.ErrInvalidArgument) {
			t.Fatalf("case %d: expected invalid argument, got %v", i, err)
		}
	}
}

func TestSettingsPartialDocumentKeepsDefaults(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	if err := st.Put(ctx, store.PartitionSettings, store.Record{ID: settingsID, Body: []byte(`{"id":"userSettings","fontSize":30}`)}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	got := NewSettings(st, logging.NewNop()).Load(ctx)
	if got.FontSize != 30 || got.AnimationDuration != 200 || !got.BgEnabled {
		t.Fatalf("expected defaults for missing fields, got %+v", got)
	}
}

func TestUserInfoRoundTrip(t *testing.T) {
	ctx := context.Background()
	settings := NewSettings(store.NewMemory(), logging.NewNop())
	if info, _, err := settings.UserInfo(ctx); info != nil || err != nil {
		t.Fatalf("expected no info, got %v %v", info, err)
	}
	if err := settings.SaveUserInfo(ctx, opensubtitles.UserInfo{Level: "Sub leecher", AllowedDownloads: 20}); err != nil {
		t.Fatalf("SaveUserInfo: %v", err)
	}
	info, saved, err := settings.UserInfo(ctx)
	if err != nil || info == nil || info.AllowedDownloads != 20 || saved.IsZero() {
		t.Fatalf("unexpected user info %+v at %v: %v", info, saved, err)
	}
}

func TestLanguagesCacheAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeLanguages{langs: []opensubtitles.Language{{Code: "en", Name: "English"}}}
	langs := NewLanguages(store.NewMemory(), fetcher, time.Hour, logging.NewNop())
	langs.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		got, err := langs.Get(ctx)
		if err != nil || len(got) != 1 {
			t.Fatalf("Get #%d: %v %v", i, got, err)
		}
	}
	if fetcher.calls != 1 {
		t.Fatalf("expected one fetch while fresh, got %d", fetcher.calls)
	}

	if removed, _ := langs.Prune(ctx); removed {
		t.Fatal("fresh list must not be pruned")
	}
	now = now.Add(2 * time.Hour)
	if removed, err := langs.Prune(ctx); !removed || err != nil {
		t.Fatalf("expected expired list pruned, got %v %v", removed, err)
	}
}

func TestLanguagesServesStaleOnFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fetcher := &fakeLanguages{langs: []opensubtitles.Language{{Code: "en"}}}
	langs := NewLanguages(store.NewMemory(), fetcher, time.Hour, logging.NewNop())
	langs.now = func() time.Time { return now }
	if _, err := langs.Get(ctx); err != nil {
		t.Fatalf("Get: %v", err)
	}
	now = now.Add(2 * time.Hour)
	fetcher.err = errors.New("offline")
	got, err := langs.Get(ctx)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected stale list, got %v %v", got, err)
	}
}

func TestDebouncerCoalesces(t *testing.T) {
	var calls atomic.Int32
	var last atomic.Int32
	d := NewDebouncer(20 * time.Millisecond)
	for i := 1; i <= 5; i++ {
		i := int32(i)
		d.Trigger(func() { calls.Add(1); last.Store(i) })
	}
	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if calls.Load() != 1 || last.Load() != 5 {
		t.Fatalf("expected one call with the last value, got calls=%d last=%d", calls.Load(), last.Load())
	}
}

func TestDebouncerFlushAndStop(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(time.Hour)
	d.Trigger(func() { calls.Add(1) })
	d.Flush()
	if calls.Load() != 1 {
		t.Fatalf("expected flush to run pending fn, got %d", calls.Load())
	}
	d.Trigger(func() { calls.Add(1) })
	d.Stop()
	d.Flush()
	if calls.Load() != 1 {
		t.Fatalf("expected stopped fn discarded, got %d", calls.Load())
	}
}
