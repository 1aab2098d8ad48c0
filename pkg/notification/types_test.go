package notification_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/peoplehub/notify/pkg/notification"
)

func TestCategoryOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		typ  notification.Type
		want notification.Category
	}{
		{notification.TypeEmployeeWelcome, notification.CategoryEmployee},
		{notification.TypeTeamMemberJoined, notification.CategoryEmployee},
		{notification.TypeLeaveRequested, notification.CategoryAttendance},
		{notification.TypeMissedCheckIn, notification.CategoryAttendance},
		{notification.TypeReviewDue, notification.CategoryPerformance},
		{notification.TypeOfferExtended, notification.CategoryRecruitment},
		{notification.TypeCertificateExpiring, notification.CategoryLearning},
		{notification.TypeSystemAlert, notification.CategorySystem},
		{notification.TypeDocumentExpiring, notification.CategoryOther},
		{notification.Type("CUSTOM_THING"), notification.CategoryOther},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, notification.CategoryOf(tt.typ))
		})
	}
}

func TestChannel_Valid(t *testing.T) {
	t.Parallel()

	assert.True(t, notification.ChannelEmail.Valid())
	assert.True(t, notification.ChannelInApp.Valid())
	assert.False(t, notification.Channel("FAX").Valid())
	assert.False(t, notification.Channel("").Valid())
}

func TestRecord_Recipient(t *testing.T) {
	t.Parallel()

	rec := notification.Record{
		UserID:      "emp-1",
		Email:       "jordan@peoplehub.io",
		PhoneNumber: "+15551234567",
		DeviceToken: "tok-1",
	}

	tests := []struct {
		channel notification.Channel
		want    string
	}{
		{notification.ChannelEmail, "jordan@peoplehub.io"},
		{notification.ChannelSMS, "+15551234567"},
		{notification.ChannelPush, "tok-1"},
		{notification.ChannelInApp, "emp-1"},
		{notification.Channel("FAX"), ""},
	}
	for _, tt := range tests {
		r := rec
		r.Channel = tt.channel
		assert.Equal(t, tt.want, r.Recipient())
	}
}

func TestRecord_CanRetry(t *testing.T) {
	t.Parallel()

	rec := notification.Record{Status: notification.StatusFailed, RetryCount: 1, MaxRetries: 3}
	assert.True(t, rec.CanRetry())

	rec.RetryCount = 3
	assert.False(t, rec.CanRetry())

	rec = notification.Record{Status: notification.StatusPending, MaxRetries: 3}
	assert.False(t, rec.CanRetry())
}
