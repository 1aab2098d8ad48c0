package preferences

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/peoplehub/notify/pkg/notification"
)

// Filter decides, per user, type, and channel, whether a notification may
// proceed, and evaluates quiet-hours windows.
type Filter struct {
	storage Storage
	clock   func() time.Time
	logger  *slog.Logger
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithFilterLogger sets the logger for the Filter.
func WithFilterLogger(logger *slog.Logger) FilterOption {
	return func(f *Filter) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithClock overrides the time source, enabling deterministic quiet-hours
// tests.
func WithClock(clock func() time.Time) FilterOption {
	return func(f *Filter) {
		if clock != nil {
			f.clock = clock
		}
	}
}

// NewFilter creates a preference filter backed by the given storage.
func NewFilter(storage Storage, opts ...FilterOption) (*Filter, error) {
	if storage == nil {
		return nil, errors.New("storage cannot be nil")
	}

	f := &Filter{
		storage: storage,
		clock:   time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Allow reports whether a notification of the given type may be sent to the
// user over the channel.
//
// Anonymous sends (empty userID, raw address only) always pass. A preference
// lookup failure also passes: losing notifications to a preference-store
// outage is worse than over-delivering, so the filter fails open and logs.
func (f *Filter) Allow(ctx context.Context, userID string, typ notification.Type, ch notification.Channel) bool {
	if userID == "" {
		return true
	}

	pref, err := f.lookup(ctx, userID)
	if err != nil {
		f.logger.Error("preference lookup failed, allowing notification",
			slog.String("user_id", userID),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()))
		return true
	}

	if !pref.ChannelEnabled(ch) {
		return false
	}
	return pref.CategoryEnabled(notification.CategoryOf(typ))
}

// QuietStatus describes the outcome of a quiet-hours evaluation.
type QuietStatus struct {
	// InWindow is true when the instant falls inside the user's quiet window.
	InWindow bool
	// ResumesAt is the end of the current quiet window, in the user's
	// timezone. Only meaningful when InWindow is true.
	ResumesAt time.Time
}

// QuietHoursStatus evaluates the user's quiet-hours window at the given
// instant. Users without a stored preference, or with quiet hours disabled,
// are never in a window. Invalid configuration fails open.
func (f *Filter) QuietHoursStatus(ctx context.Context, userID string, at time.Time) QuietStatus {
	if userID == "" {
		return QuietStatus{}
	}

	pref, err := f.lookup(ctx, userID)
	if err != nil {
		f.logger.Error("quiet hours lookup failed, skipping window check",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return QuietStatus{}
	}
	if !pref.QuietHours.Enabled {
		return QuietStatus{}
	}

	status, err := evaluateWindow(pref.QuietHours, at)
	if err != nil {
		f.logger.Error("quiet hours evaluation failed, delivering anyway",
			slog.String("user_id", userID),
			slog.String("error", err.Error()))
		return QuietStatus{}
	}
	return status
}

// Now returns the filter's current time. Exposed so callers share the same
// clock in tests.
func (f *Filter) Now() time.Time {
	return f.clock()
}

func (f *Filter) lookup(ctx context.Context, userID string) (Preference, error) {
	pref, err := f.storage.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrPreferenceNotFound) {
			return Default(userID), nil
		}
		return Preference{}, err
	}
	return *pref, nil
}

// evaluateWindow converts the instant into the user's timezone, expresses it
// as minutes since midnight, and compares against the window. Start > End
// means the window wraps midnight.
func evaluateWindow(qh QuietHours, at time.Time) (QuietStatus, error) {
	tz := qh.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return QuietStatus{}, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}

	start, err := parseTimeOfDay(qh.Start)
	if err != nil {
		return QuietStatus{}, fmt.Errorf("invalid quiet hours start %q: %w", qh.Start, err)
	}
	end, err := parseTimeOfDay(qh.End)
	if err != nil {
		return QuietStatus{}, fmt.Errorf("invalid quiet hours end %q: %w", qh.End, err)
	}

	now := at.In(loc)
	nowMinutes := now.Hour()*60 + now.Minute()
	startMinutes := start.hour*60 + start.minute
	endMinutes := end.hour*60 + end.minute

	endToday := time.Date(now.Year(), now.Month(), now.Day(), end.hour, end.minute, 0, 0, loc)

	if startMinutes <= endMinutes {
		// Same-day window, e.g. 13:00-15:00.
		if nowMinutes >= startMinutes && nowMinutes < endMinutes {
			return QuietStatus{InWindow: true, ResumesAt: endToday}, nil
		}
		return QuietStatus{}, nil
	}

	// Overnight window, e.g. 22:00-06:00.
	switch {
	case nowMinutes >= startMinutes:
		// Before midnight: window ends tomorrow.
		return QuietStatus{InWindow: true, ResumesAt: endToday.AddDate(0, 0, 1)}, nil
	case nowMinutes < endMinutes:
		// After midnight: window ends today.
		return QuietStatus{InWindow: true, ResumesAt: endToday}, nil
	default:
		return QuietStatus{}, nil
	}
}

type timeOfDay struct {
	hour   int
	minute int
}

func parseTimeOfDay(s string) (timeOfDay, error) {
	var h, m int
	n, err := fmt.Sscanf(s, "%d:%d", &h, &m)
	if err != nil || n != 2 {
		return timeOfDay{}, fmt.Errorf("expected HH:MM format, got %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return timeOfDay{}, fmt.Errorf("time out of range: %q", s)
	}
	return timeOfDay{hour: h, minute: m}, nil
}
