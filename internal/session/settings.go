package session

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"subselect/internal/logging"
	"subselect/internal/opensubtitles"
	"subselect/internal/services"
	"subselect/internal/store"
)

const (
	settingsID = "userSettings"
	userInfoID = "userInfo"
)

// Overlay holds the subtitle overlay preferences.
type Overlay struct {
	FontSize          int     `json:"fontSize"`
	FontColor         string  `json:"fontColor"`
	BgEnabled         bool    `json:"bgEnabled"`
	BgColor           string  `json:"bgColor"`
	BgOpacity         float64 `json:"bgOpacity"`
	OutlineEnabled    bool    `json:"outlineEnabled"`
	OutlineColor      string  `json:"outlineColor"`
	SyncOffset        float64 `json:"syncOffset"`
	AnimationEnabled  bool    `json:"animationEnabled"`
	AnimationType     string  `json:"animationType"`
	AnimationDuration int     `json:"animationDuration"`
}

// DefaultOverlay returns the settings used when nothing is stored.
func DefaultOverlay() Overlay {
	return Overlay{
		FontSize:          16,
		FontColor:         "#FFFFFF",
		BgEnabled:         true,
		BgColor:           "#000000",
		BgOpacity:         0.5,
		OutlineEnabled:    false,
		OutlineColor:      "#000000",
		SyncOffset:        0,
		AnimationEnabled:  true,
		AnimationType:     "none",
		AnimationDuration: 200,
	}
}

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validate rejects values the overlay cannot render.
func (o Overlay) Validate() error {
	switch {
	case o.FontSize <= 0 || o.FontSize > 200:
		return services.InvalidArgument("session", "settings", fmt.Sprintf("fontSize %d out of range", o.FontSize))
	case o.BgOpacity < 0 || o.BgOpacity > 1:
		return services.InvalidArgument("session", "settings", "bgOpacity must be between 0 and 1")
	case o.AnimationDuration < 0:
		return services.InvalidArgument("session", "settings", "animationDuration must not be negative")
	}
	for name, value := range map[string]string{"fontColor": o.FontColor, "bgColor": o.BgColor, "outlineColor": o.OutlineColor} {
		if !colorPattern.MatchString(value) {
			return services.InvalidArgument("session", "settings", fmt.Sprintf("%s %q is not a #RRGGBB color", name, value))
		}
	}
	return nil
}

type settingsDoc struct {
	ID string `json:"id"`
	Overlay
}

type userInfoDoc struct {
	ID        string                 `json:"id"`
	Data      opensubtitles.UserInfo `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// Settings stores overlay preferences and the account snapshot.
type Settings struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewSettings constructs a settings manager over the settings partition.
func NewSettings(st store.Store, logger *slog.Logger) *Settings {
	return &Settings{store: st, logger: logging.NewComponentLogger(logger, "settings"), now: time.Now}
}

// Load returns stored settings, or defaults when none are stored or the
// store cannot be read.
func (s *Settings) Load(ctx context.Context) Overlay {
	if s.store == nil {
		return DefaultOverlay()
	}
	raw, err := s.store.Get(ctx, store.PartitionSettings, settingsID)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, s.logger), "settings unreadable; using defaults", "settings_load_failed",
			logging.String(logging.FieldErrorHint, "check the store backend"),
			logging.Error(err),
		)
		return DefaultOverlay()
	}
	if raw == nil {
		return DefaultOverlay()
	}
	doc := settingsDoc{Overlay: DefaultOverlay()}
	if err := store.Decode(*raw, &doc); err != nil {
		s.logger.Debug("stored settings corrupt; using defaults", logging.Error(err))
		return DefaultOverlay()
	}
	return doc.Overlay
}

// Save validates and stores o.
func (s *Settings) Save(ctx context.Context, o Overlay) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if s.store == nil {
		return services.Wrap(services.ErrStorageUnavailable, "session", "save settings", "store not open", nil)
	}
	rec, err := store.NewRecord(settingsDoc{ID: settingsID, Overlay: o})
	if err != nil {
		return err
	}
	return s.store.Put(ctx, store.PartitionSettings, rec)
}

// UserInfo returns the last saved account snapshot and when it was saved.
func (s *Settings) UserInfo(ctx context.Context) (*opensubtitles.UserInfo, time.Time, error) {
	if s.store == nil {
		return nil, time.Time{}, nil
	}
	raw, err := s.store.Get(ctx, store.PartitionSettings, userInfoID)
	if err != nil || raw == nil {
		return nil, time.Time{}, err
	}
	var doc userInfoDoc
	if err := store.Decode(*raw, &doc); err != nil {
		return nil, time.Time{}, err
	}
	return &doc.Data, time.UnixMilli(doc.Timestamp), nil
}

// SaveUserInfo stores an account snapshot.
func (s *Settings) SaveUserInfo(ctx context.Context, info opensubtitles.UserInfo) error {
	if s.store == nil {
		return services.Wrap(services.ErrStorageUnavailable, "session", "save user info", "store not open", nil)
	}
	rec, err := store.NewRecord(userInfoDoc{ID: userInfoID, Data: info, Timestamp: s.now().UnixMilli()})
	if err != nil {
		return err
	}
	return s.store.Put(ctx, store.PartitionSettings, rec)
}
