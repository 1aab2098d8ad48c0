package preferences

import (
	"time"

	"github.com/peoplehub/notify/pkg/notification"
)

// QuietHours is a per-user, timezone-aware time window during which non-urgent
// notifications are deferred. Start and End use "HH:MM" wall-clock format; a
// window with Start > End wraps midnight and spans two calendar days.
type QuietHours struct {
	Enabled  bool   `json:"enabled"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Timezone string `json:"timezone"`
}

// Preference holds one user's notification settings. Created lazily with
// defaults (everything enabled, no quiet hours) on first access.
type Preference struct {
	UserID string `json:"user_id"`

	// Per-channel gates.
	EmailEnabled bool `json:"email_enabled"`
	SMSEnabled   bool `json:"sms_enabled"`
	PushEnabled  bool `json:"push_enabled"`

	// Per-category gates, keyed by the notification type prefix.
	EmployeeUpdates    bool `json:"employee_updates"`
	AttendanceUpdates  bool `json:"attendance_updates"`
	PerformanceUpdates bool `json:"performance_updates"`
	RecruitmentUpdates bool `json:"recruitment_updates"`
	LearningUpdates    bool `json:"learning_updates"`
	SystemUpdates      bool `json:"system_updates"`

	QuietHours QuietHours `json:"quiet_hours"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Default returns the lazily-created preference for a user: all channels and
// categories enabled, quiet hours off.
func Default(userID string) Preference {
	return Preference{
		UserID:             userID,
		EmailEnabled:       true,
		SMSEnabled:         true,
		PushEnabled:        true,
		EmployeeUpdates:    true,
		AttendanceUpdates:  true,
		PerformanceUpdates: true,
		RecruitmentUpdates: true,
		LearningUpdates:    true,
		SystemUpdates:      true,
	}
}

// ChannelEnabled reports whether the delivery channel is allowed. IN_APP has
// no opt-out: inbox entries are always written.
func (p Preference) ChannelEnabled(ch notification.Channel) bool {
	switch ch {
	case notification.ChannelEmail:
		return p.EmailEnabled
	case notification.ChannelSMS:
		return p.SMSEnabled
	case notification.ChannelPush:
		return p.PushEnabled
	case notification.ChannelInApp:
		return true
	}
	return true
}

// CategoryEnabled reports whether the notification category is allowed.
// Unknown categories are never gated.
func (p Preference) CategoryEnabled(cat notification.Category) bool {
	switch cat {
	case notification.CategoryEmployee:
		return p.EmployeeUpdates
	case notification.CategoryAttendance:
		return p.AttendanceUpdates
	case notification.CategoryPerformance:
		return p.PerformanceUpdates
	case notification.CategoryRecruitment:
		return p.RecruitmentUpdates
	case notification.CategoryLearning:
		return p.LearningUpdates
	case notification.CategorySystem:
		return p.SystemUpdates
	}
	return true
}
