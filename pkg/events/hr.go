package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/peoplehub/notify/pkg/dispatch"
	"github.com/peoplehub/notify/pkg/notification"
)

// Event types published by the HR platform modules.
const (
	EventEmployeeCreated    = "employee.created"
	EventEmployeeUpdated    = "employee.updated"
	EventEmployeeTerminated = "employee.terminated"
	EventTeamMemberJoined   = "team.member_joined"

	EventLeaveRequested = "leave.requested"
	EventLeaveApproved  = "leave.approved"
	EventLeaveRejected  = "leave.rejected"
	EventMissedCheckIn  = "attendance.missed_checkin"

	EventReviewDue       = "performance.review_due"
	EventReviewCompleted = "performance.review_completed"
	EventGoalAssigned    = "performance.goal_assigned"

	EventApplicationReceived = "recruitment.application_received"
	EventInterviewScheduled  = "recruitment.interview_scheduled"
	EventOfferExtended       = "recruitment.offer_extended"

	EventCourseAssigned      = "learning.course_assigned"
	EventCourseCompleted     = "learning.course_completed"
	EventCertificateExpiring = "learning.certificate_expiring"

	EventDocumentExpiring = "document.expiring"
	EventSystemAlert      = "system.alert"
)

// Submitter is the slice of the dispatcher the handlers need.
type Submitter interface {
	Submit(ctx context.Context, in dispatch.Input) (*notification.Record, error)
}

// HRHandlers translates HR platform events into notification submissions.
// Each handler resolves recipients through the directory, picks channel and
// priority for the occasion, and stamps the event's correlation ID on every
// submission so fan-out stays traceable.
type HRHandlers struct {
	submitter Submitter
	directory DirectoryLookup
}

// NewHRHandlers creates the built-in HR event handlers.
func NewHRHandlers(submitter Submitter, directory DirectoryLookup) (*HRHandlers, error) {
	if submitter == nil {
		return nil, fmt.Errorf("submitter cannot be nil")
	}
	if directory == nil {
		return nil, fmt.Errorf("directory cannot be nil")
	}
	return &HRHandlers{submitter: submitter, directory: directory}, nil
}

// Register wires every built-in handler into the registry.
func (h *HRHandlers) Register(reg *Registry) {
	reg.Register(EventEmployeeCreated, h.EmployeeCreated)
	reg.Register(EventEmployeeCreated, h.EmployeeCreatedManagerPing)
	reg.Register(EventEmployeeUpdated, h.EmployeeUpdated)
	reg.Register(EventEmployeeTerminated, h.EmployeeTerminated)
	reg.Register(EventTeamMemberJoined, h.TeamMemberJoined)

	reg.Register(EventLeaveRequested, h.LeaveRequested)
	reg.Register(EventLeaveApproved, h.LeaveApproved)
	reg.Register(EventLeaveRejected, h.LeaveRejected)
	reg.Register(EventMissedCheckIn, h.MissedCheckIn)

	reg.Register(EventReviewDue, h.ReviewDue)
	reg.Register(EventReviewCompleted, h.ReviewCompleted)
	reg.Register(EventGoalAssigned, h.GoalAssigned)

	reg.Register(EventApplicationReceived, h.ApplicationReceived)
	reg.Register(EventInterviewScheduled, h.InterviewScheduled)
	reg.Register(EventOfferExtended, h.OfferExtended)

	reg.Register(EventCourseAssigned, h.CourseAssigned)
	reg.Register(EventCourseCompleted, h.CourseCompleted)
	reg.Register(EventCertificateExpiring, h.CertificateExpiring)

	reg.Register(EventDocumentExpiring, h.DocumentExpiring)
	reg.Register(EventSystemAlert, h.SystemAlert)
}

// notify resolves the recipient and submits one notification carrying the
// event's correlation ID. When the directory has no entry yet, as with an
// employee created moments ago, addressing falls back to what the event
// itself carries.
func (h *HRHandlers) notify(ctx context.Context, evt Event, userID string, in dispatch.Input) error {
	if userID == "" {
		return fmt.Errorf("event %s missing recipient user id", evt.Type)
	}

	contact, err := h.directory.Lookup(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrContactNotFound) {
			return fmt.Errorf("resolve recipient %s: %w", userID, err)
		}
		contact = Contact{UserID: userID}
		// The payload's address belongs to the employee the event describes,
		// not to other recipients such as their manager.
		if userID == str(evt, "employee_id", "employeeId") {
			contact.Email = str(evt, "email", "employee_email")
			contact.Name = str(evt, "employee_name", "firstName", "first_name")
		}
		// In-app needs only the user ID; every other channel needs an
		// event-carried address to substitute for the missing entry.
		if contact.Email == "" && in.Channel != notification.ChannelInApp {
			return fmt.Errorf("resolve recipient %s: %w", userID, err)
		}
	}

	in.UserID = contact.UserID
	in.Email = contact.Email
	in.PhoneNumber = contact.PhoneNumber
	in.DeviceToken = contact.DeviceToken
	in.CorrelationID = evt.CorrelationID
	if in.Source == "" {
		in.Source = evt.Source
	}
	if in.Data == nil {
		in.Data = evt.Data
	}

	_, err = h.submitter.Submit(ctx, in)
	return err
}

func (h *HRHandlers) EmployeeCreated(ctx context.Context, evt Event) error {
	name := str(evt, "employee_name", "firstName", "first_name")
	return h.notify(ctx, evt, str(evt, "employee_id", "employeeId"), dispatch.Input{
		Type:    notification.TypeEmployeeWelcome,
		Channel: notification.ChannelEmail,
		Subject: "Welcome to the team",
		Message: fmt.Sprintf("Welcome aboard, %s! Your account is ready; log in to complete your onboarding checklist.", orUnknown(name, "there")),
	})
}

// EmployeeCreatedManagerPing tells the new hire's manager, in-app, as a
// sibling of the welcome email under the same correlation ID.
func (h *HRHandlers) EmployeeCreatedManagerPing(ctx context.Context, evt Event) error {
	managerID := str(evt, "manager_id", "managerId")
	if managerID == "" {
		// Resolve through the directory when the event omits it.
		if contact, err := h.directory.Lookup(ctx, str(evt, "employee_id", "employeeId")); err == nil {
			managerID = contact.ManagerID
		}
	}
	if managerID == "" {
		return nil // no manager, nothing to announce
	}

	return h.notify(ctx, evt, managerID, dispatch.Input{
		Type:    notification.TypeTeamMemberJoined,
		Channel: notification.ChannelInApp,
		Subject: "New team member",
		Message: fmt.Sprintf("%s has joined your team.", orUnknown(str(evt, "employee_name", "firstName", "first_name"), "A new employee")),
	})
}

func (h *HRHandlers) EmployeeUpdated(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("employee_id"), dispatch.Input{
		Type:    notification.TypeEmployeeUpdated,
		Channel: notification.ChannelInApp,
		Subject: "Profile updated",
		Message: "Your employee profile was updated. Review the changes if you did not request them.",
	})
}

func (h *HRHandlers) EmployeeTerminated(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("employee_id"), dispatch.Input{
		Type:     notification.TypeEmployeeTerminated,
		Channel:  notification.ChannelEmail,
		Priority: notification.PriorityHigh,
		Subject:  "Offboarding information",
		Message:  "Your offboarding process has started. Check your email for next steps regarding equipment return and final pay.",
	})
}

func (h *HRHandlers) TeamMemberJoined(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("manager_id"), dispatch.Input{
		Type:    notification.TypeTeamMemberJoined,
		Channel: notification.ChannelInApp,
		Subject: "Team change",
		Message: fmt.Sprintf("%s transferred into your team.", orUnknown(evt.Str("employee_name"), "An employee")),
	})
}

func (h *HRHandlers) LeaveRequested(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("approver_id"), dispatch.Input{
		Type:     notification.TypeLeaveRequested,
		Channel:  notification.ChannelInApp,
		Priority: notification.PriorityHigh,
		Subject:  "Leave request awaiting approval",
		Message: fmt.Sprintf("%s requested leave from %s to %s.",
			orUnknown(evt.Str("employee_name"), "An employee"),
			orUnknown(evt.Str("start_date"), "?"),
			orUnknown(evt.Str("end_date"), "?")),
	})
}

func (h *HRHandlers) LeaveApproved(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("employee_id"), dispatch.Input{
		Type:    notification.TypeLeaveApproved,
		Channel: notification.ChannelEmail,
		Subject: "Leave request approved",
		Message: fmt.Sprintf("Your leave from %s to %s was approved.",
			orUnknown(evt.Str("start_date"), "?"),
			orUnknown(evt.Str("end_date"), "?")),
	})
}

func (h *HRHandlers) LeaveRejected(ctx context.Context, evt Event) error {
	msg := fmt.Sprintf("Your leave from %s to %s was not approved.",
		orUnknown(evt.Str("start_date"), "?"),
		orUnknown(evt.Str("end_date"), "?"))
	if reason := evt.Str("reason"); reason != "" {
		msg += " Reason: " + reason
	}
	return h.notify(ctx, evt, evt.Str("employee_id"), dispatch.Input{
		Type:    notification.TypeLeaveRejected,
		Channel: notification.ChannelEmail,
		Subject: "Leave request declined",
		Message: msg,
	})
}

func (h *HRHandlers) MissedCheckIn(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("employee_id"), dispatch.Input{
		Type:    notification.TypeMissedCheckIn,
		Channel: notification.ChannelPush,
		Subject: "Missed check-in",
		Message: fmt.Sprintf("No check-in was recorded for %s. Log your attendance or file an exception.",
			orUnknown(evt.Str("date"), "today")),
	})
}

func (h *HRHandlers) ReviewDue(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("employee_id"), dispatch.Input{
		Type:     notification.TypeReviewDue,
		Channel:  notification.ChannelEmail,
		Priority: notification.PriorityHigh,
		Subject:  "Performance review due",
		Message: fmt.Sprintf("Your %s review is due by %s.",
			orUnknown(evt.Str("cycle"), "performance"),
			orUnknown(evt.Str("due_date"), "the deadline")),
	})
}

func (h *HRHandlers) ReviewCompleted(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("employee_id"), dispatch.Input{
		Type:    notification.TypeReviewCompleted,
		Channel: notification.ChannelInApp,
		Subject: "Review completed",
		Message: "Your performance review has been completed and is available to read.",
	})
}

func (h *HRHandlers) GoalAssigned(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("employee_id"), dispatch.Input{
		Type:    notification.TypeGoalAssigned,
		Channel: notification.ChannelInApp,
		Subject: "New goal assigned",
		Message: fmt.Sprintf("A new goal was assigned to you: %s",
			orUnknown(evt.Str("goal_title"), "see your goals page for details.")),
	})
}

func (h *HRHandlers) ApplicationReceived(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("recruiter_id"), dispatch.Input{
		Type:    notification.TypeApplicationReceived,
		Channel: notification.ChannelInApp,
		Subject: "New application",
		Message: fmt.Sprintf("New application for %s from %s.",
			orUnknown(evt.Str("position"), "an open position"),
			orUnknown(evt.Str("candidate_name"), "a candidate")),
	})
}

// InterviewScheduled mails the candidate directly; external candidates have
// no directory entry, so the address rides on the event itself.
func (h *HRHandlers) InterviewScheduled(ctx context.Context, evt Event) error {
	email := evt.Str("candidate_email")
	if email == "" {
		return fmt.Errorf("event %s missing candidate_email", evt.Type)
	}

	_, err := h.submitter.Submit(ctx, dispatch.Input{
		Type:    notification.TypeInterviewScheduled,
		Channel: notification.ChannelEmail,
		Email:   email,
		Subject: "Interview scheduled",
		Message: fmt.Sprintf("Your interview for %s is scheduled for %s.",
			orUnknown(evt.Str("position"), "the position"),
			orUnknown(evt.Str("scheduled_at"), "the agreed time")),
		CorrelationID: evt.CorrelationID,
		Source:        evt.Source,
		Data:          evt.Data,
	})
	return err
}

func (h *HRHandlers) OfferExtended(ctx context.Context, evt Event) error {
	email := evt.Str("candidate_email")
	if email == "" {
		return fmt.Errorf("event %s missing candidate_email", evt.Type)
	}

	_, err := h.submitter.Submit(ctx, dispatch.Input{
		Type:     notification.TypeOfferExtended,
		Channel:  notification.ChannelEmail,
		Priority: notification.PriorityHigh,
		Email:    email,
		Subject:  "Your offer from PeopleHub",
		Message: fmt.Sprintf("We are delighted to extend you an offer for %s. The full details are attached to your candidate portal.",
			orUnknown(evt.Str("position"), "the position")),
		CorrelationID: evt.CorrelationID,
		Source:        evt.Source,
		Data:          evt.Data,
	})
	return err
}

func (h *HRHandlers) CourseAssigned(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("employee_id"), dispatch.Input{
		Type:    notification.TypeCourseAssigned,
		Channel: notification.ChannelInApp,
		Subject: "Course assigned",
		Message: fmt.Sprintf("You have been enrolled in %s.",
			orUnknown(evt.Str("course_title"), "a new course")),
	})
}

func (h *HRHandlers) CourseCompleted(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("employee_id"), dispatch.Input{
		Type:    notification.TypeCourseCompleted,
		Channel: notification.ChannelInApp,
		Subject: "Course completed",
		Message: fmt.Sprintf("Congratulations on completing %s!",
			orUnknown(evt.Str("course_title"), "your course")),
	})
}

func (h *HRHandlers) CertificateExpiring(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("employee_id"), dispatch.Input{
		Type:     notification.TypeCertificateExpiring,
		Channel:  notification.ChannelEmail,
		Priority: notification.PriorityHigh,
		Subject:  "Certificate expiring",
		Message: fmt.Sprintf("Your %s certificate expires on %s. Renew it to stay compliant.",
			orUnknown(evt.Str("certificate"), "professional"),
			orUnknown(evt.Str("expires_at"), "its expiry date")),
	})
}

func (h *HRHandlers) DocumentExpiring(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("employee_id"), dispatch.Input{
		Type:     notification.TypeDocumentExpiring,
		Channel:  notification.ChannelEmail,
		Priority: notification.PriorityHigh,
		Subject:  "Document expiring",
		Message: fmt.Sprintf("Your %s expires on %s. Upload a renewed copy before then.",
			orUnknown(evt.Str("document"), "document"),
			orUnknown(evt.Str("expires_at"), "its expiry date")),
	})
}

// SystemAlert goes out urgent so it bypasses quiet hours.
func (h *HRHandlers) SystemAlert(ctx context.Context, evt Event) error {
	return h.notify(ctx, evt, evt.Str("user_id"), dispatch.Input{
		Type:     notification.TypeSystemAlert,
		Channel:  notification.ChannelInApp,
		Priority: notification.PriorityUrgent,
		Subject:  orUnknown(evt.Str("title"), "System alert"),
		Message:  orUnknown(evt.Str("message"), "A system alert requires your attention."),
	})
}

func orUnknown(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// str returns the first non-empty value among the given payload keys. The HR
// modules are split between snake_case and camelCase payload conventions.
func str(evt Event, keys ...string) string {
	for _, k := range keys {
		if v := evt.Str(k); v != "" {
			return v
		}
	}
	return ""
}
