package notification

import (
	"strings"
	"time"
)

// Channel identifies a delivery medium with its own adapter.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

// Valid reports whether the channel is one of the supported delivery media.
func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// Priority represents notification priority level.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Status represents the delivery lifecycle state of a notification record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusDelivered Status = "DELIVERED"
	StatusFailed    Status = "FAILED"
)

// Type identifies the business event category a notification belongs to.
type Type string

const (
	TypeEmployeeWelcome    Type = "EMPLOYEE_WELCOME"
	TypeEmployeeUpdated    Type = "EMPLOYEE_UPDATED"
	TypeEmployeeTerminated Type = "EMPLOYEE_TERMINATED"
	TypeTeamMemberJoined   Type = "EMPLOYEE_TEAM_MEMBER_JOINED"

	TypeLeaveRequested Type = "ATTENDANCE_LEAVE_REQUESTED"
	TypeLeaveApproved  Type = "ATTENDANCE_LEAVE_APPROVED"
	TypeLeaveRejected  Type = "ATTENDANCE_LEAVE_REJECTED"
	TypeMissedCheckIn  Type = "ATTENDANCE_MISSED_CHECKIN"

	TypeReviewDue       Type = "PERFORMANCE_REVIEW_DUE"
	TypeReviewCompleted Type = "PERFORMANCE_REVIEW_COMPLETED"
	TypeGoalAssigned    Type = "PERFORMANCE_GOAL_ASSIGNED"

	TypeApplicationReceived Type = "RECRUITMENT_APPLICATION_RECEIVED"
	TypeInterviewScheduled  Type = "RECRUITMENT_INTERVIEW_SCHEDULED"
	TypeOfferExtended       Type = "RECRUITMENT_OFFER_EXTENDED"

	TypeCourseAssigned      Type = "LEARNING_COURSE_ASSIGNED"
	TypeCourseCompleted     Type = "LEARNING_COURSE_COMPLETED"
	TypeCertificateExpiring Type = "LEARNING_CERTIFICATE_EXPIRING"

	TypeDocumentExpiring Type = "DOCUMENT_EXPIRING"

	TypeSystemAlert Type = "SYSTEM_ALERT"
)

// Category groups notification types for preference gating. It is derived from
// the type prefix, so new types within an existing prefix are gated without
// code changes.
type Category string

const (
	CategoryEmployee    Category = "employee"
	CategoryAttendance  Category = "attendance"
	CategoryPerformance Category = "performance"
	CategoryRecruitment Category = "recruitment"
	CategoryLearning    Category = "learning"
	CategorySystem      Category = "system"
	CategoryOther       Category = "other"
)

// CategoryOf maps a notification type to its preference category by prefix.
// Types outside the known prefixes fall into CategoryOther, which is never
// gated by preferences.
func CategoryOf(t Type) Category {
	s := string(t)
	switch {
	case strings.HasPrefix(s, "EMPLOYEE_"):
		return CategoryEmployee
	case strings.HasPrefix(s, "ATTENDANCE_"):
		return CategoryAttendance
	case strings.HasPrefix(s, "PERFORMANCE_"):
		return CategoryPerformance
	case strings.HasPrefix(s, "RECRUITMENT_"):
		return CategoryRecruitment
	case strings.HasPrefix(s, "LEARNING_"):
		return CategoryLearning
	case strings.HasPrefix(s, "SYSTEM_"):
		return CategorySystem
	default:
		return CategoryOther
	}
}

// DefaultMaxRetries is applied to records created without an explicit limit.
const DefaultMaxRetries = 3

// Record is the persisted unit representing one notification intent and its
// delivery status. A record only moves PENDING to DELIVERED or PENDING to
// FAILED; FAILED may be reset to PENDING by an explicit operator retry, never
// automatically.
type Record struct {
	ID       string   `json:"id"`
	Type     Type     `json:"type"`
	Channel  Channel  `json:"channel"`
	Priority Priority `json:"priority"`

	// Addressing: at least one of UserID or a raw address must be present.
	UserID      string `json:"user_id,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	DeviceToken string `json:"device_token,omitempty"`

	Subject string         `json:"subject,omitempty"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`

	CorrelationID string `json:"correlation_id,omitempty"`
	Source        string `json:"source,omitempty"`

	Status       Status `json:"status"`
	RetryCount   int    `json:"retry_count"`
	MaxRetries   int    `json:"max_retries"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

// Recipient returns the raw delivery address for the record's channel.
func (r *Record) Recipient() string {
	switch r.Channel {
	case ChannelEmail:
		return r.Email
	case ChannelSMS:
		return r.PhoneNumber
	case ChannelPush:
		return r.DeviceToken
	case ChannelInApp:
		return r.UserID
	}
	return ""
}

// Addressed reports whether the record carries enough addressing information
// to be created: a user ID or any raw address.
func (r *Record) Addressed() bool {
	return r.UserID != "" || r.Email != "" || r.PhoneNumber != "" || r.DeviceToken != ""
}

// CanRetry reports whether an explicit retry request is admissible for the
// record's current state.
func (r *Record) CanRetry() bool {
	return r.Status == StatusFailed && r.RetryCount < r.MaxRetries
}

// Action enumerates delivery log actions.
type Action string

const (
	ActionQueued    Action = "queued"
	ActionDelivered Action = "delivered"
	ActionFailed    Action = "failed"
	ActionRead      Action = "read"
)

// LogEntry is one append-only delivery history line for a notification.
// Entries are never mutated or deleted; the log is the source of truth for
// audit and analytics.
type LogEntry struct {
	ID             string    `json:"id"`
	NotificationID string    `json:"notification_id"`
	Action         Action    `json:"action"`
	Details        string    `json:"details,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
