package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"subselect/internal/logging"
	"subselect/internal/opensubtitles"
	"subselect/internal/services"
	"subselect/internal/store"
)

const currentTokenID = "current"

// TokenRecord is the stored session token.
type TokenRecord struct {
	ID        string                  `json:"id"`
	Token     string                  `json:"token"`
	BaseURL   string                  `json:"base_url"`
	Timestamp int64                   `json:"timestamp"`
	UserData  *opensubtitles.UserInfo `json:"userData,omitempty"`
}

// Auth converts the record to client credentials.
func (r TokenRecord) Auth() opensubtitles.Auth {
	return opensubtitles.Auth{Token: r.Token, BaseURL: r.BaseURL}
}

// Age reports how long ago the token was saved.
func (r TokenRecord) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(r.Timestamp))
}

// UserInfoFetcher validates a token remotely.
type UserInfoFetcher interface {
	UserInfo(ctx context.Context, auth opensubtitles.Auth) (opensubtitles.UserInfo, error)
}

// Tokens manages the session token in the tokens partition.
type Tokens struct {
	store     store.Store
	validator UserInfoFetcher
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewTokens constructs a token manager. validator may be nil, in which case
// tokens older than ttl are treated as valid.
func NewTokens(st store.Store, validator UserInfoFetcher, ttl time.Duration, logger *slog.Logger) *Tokens {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Tokens{
		store:     st,
		validator: validator,
		ttl:       ttl,
		logger:    logging.NewComponentLogger(logger, "session"),
		now:       time.Now,
	}
}

// Save stores token as the current session.
func (t *Tokens) Save(ctx context.Context, token, baseURL string, userData *opensubtitles.UserInfo) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return services.InvalidArgument("session", "save token", "empty token")
	}
	if t.store == nil {
		return services.Wrap(services.ErrStorageUnavailable, "session", "save token", "store not open", nil)
	}
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		baseURL = "api.opensubtitles.com"
	}
	rec, err := store.NewRecord(TokenRecord{
		ID:        currentTokenID,
		Token:     token,
		BaseURL:   baseURL,
		Timestamp: t.now().UnixMilli(),
		UserData:  userData,
	})
	if err != nil {
		return err
	}
	return t.store.Put(ctx, store.PartitionTokens, rec)
}

// Current returns the stored token, or nil when none is saved.
func (t *Tokens) Current(ctx context.Context) (*TokenRecord, error) {
	if t.store == nil {
		return nil, nil
	}
	raw, err := t.store.Get(ctx, store.PartitionTokens, currentTokenID)
	if err != nil || raw == nil {
		return nil, err
	}
	var rec TokenRecord
	if err := store.Decode(*raw, &rec); err != nil {
		return nil, err
	}
	if strings.TrimSpace(rec.Token) == "" {
		return nil, nil
	}
	return &rec, nil
}

// Check reports whether a usable token is stored. Tokens younger than the
// TTL are trusted without a network call; older ones are re-validated, and a
// network failure during re-validation counts as valid.
func (t *Tokens) Check(ctx context.Context) (bool, error) {
	rec, err := t.Current(ctx)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}
	if rec.Age(t.now()) < t.ttl || t.validator == nil {
		return true, nil
	}
	info, err := t.validator.UserInfo(ctx, rec.Auth())
	switch {
	case err == nil:
		if saveErr := t.Save(ctx, rec.Token, rec.BaseURL, &info); saveErr != nil {
			t.logger.Debug("token refresh not persisted", logging.Error(saveErr))
		}
		return true, nil
	case errors.Is(err, services.ErrNetwork):
		logging.WarnWithContext(logging.WithContext(ctx, t.logger), "token re-validation unreachable; assuming valid", "token_check_offline",
			logging.String(logging.FieldErrorHint, "check network connectivity to OpenSubtitles"),
			logging.String(logging.FieldImpact, "downloads may fail if the token has expired"),
			logging.Error(err),
		)
		return true, nil
	default:
		return false, nil
	}
}

// Clear removes the stored token.
func (t *Tokens) Clear(ctx context.Context) error {
	if t.store == nil {
		return nil
	}
	return t.store.Delete(ctx, store.PartitionTokens, currentTokenID)
}
