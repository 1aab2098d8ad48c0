package channels_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peoplehub/notify/pkg/channels"
)

func TestSMSAdapter_Send(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("successful send posts gateway payload", func(t *testing.T) {
		t.Parallel()

		var gotAuth atomic.Value
		var gotBody atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth.Store(r.Header.Get("Authorization"))
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			gotBody.Store(payload)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		adapter := channels.NewSMSAdapter(channels.SMSConfig{
			APIURL:   srv.URL,
			APIKey:   "test-key",
			SenderID: "PeopleHub",
		})
		require.NoError(t, adapter.Initialize(ctx))
		require.NoError(t, adapter.IsHealthy(ctx))

		err := adapter.Send(ctx, channels.Request{
			Recipient: "+15551234567",
			Message:   "Your leave request was approved.",
		})
		require.NoError(t, err)

		assert.Equal(t, "Bearer test-key", gotAuth.Load())
		payload := gotBody.Load().(map[string]string)
		assert.Equal(t, "+15551234567", payload["to"])
		assert.Equal(t, "PeopleHub", payload["from"])
		assert.Equal(t, "Your leave request was approved.", payload["body"])
	})

	t.Run("long body truncated on a character boundary", func(t *testing.T) {
		t.Parallel()

		var gotBody atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var payload map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			gotBody.Store(payload["body"])
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		adapter := channels.NewSMSAdapter(channels.SMSConfig{
			APIURL:     srv.URL,
			APIKey:     "k",
			MaxBodyLen: 8,
		})
		require.NoError(t, adapter.Initialize(ctx))

		err := adapter.Send(ctx, channels.Request{
			Recipient: "+15551234567",
			Message:   "Congés approuvés",
		})
		require.NoError(t, err)

		body := gotBody.Load().(string)
		assert.Equal(t, "Congés a", body)
		assert.True(t, utf8.ValidString(body))
	})

	t.Run("gateway error surfaced", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid destination"})
		}))
		defer srv.Close()

		adapter := channels.NewSMSAdapter(channels.SMSConfig{APIURL: srv.URL, APIKey: "k"})
		require.NoError(t, adapter.Initialize(ctx))

		err := adapter.Send(ctx, channels.Request{Recipient: "+15551234567", Message: "hi"})
		require.ErrorIs(t, err, channels.ErrSendFailed)
		assert.Contains(t, err.Error(), "invalid destination")
	})

	t.Run("non-E164 recipient rejected without gateway call", func(t *testing.T) {
		t.Parallel()

		called := false
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))
		defer srv.Close()

		adapter := channels.NewSMSAdapter(channels.SMSConfig{APIURL: srv.URL, APIKey: "k"})
		require.NoError(t, adapter.Initialize(ctx))

		err := adapter.Send(ctx, channels.Request{Recipient: "555-1234", Message: "hi"})
		require.ErrorIs(t, err, channels.ErrSendFailed)
		assert.False(t, called)
	})

	t.Run("unconfigured adapter reports unhealthy", func(t *testing.T) {
		t.Parallel()

		adapter := channels.NewSMSAdapter(channels.SMSConfig{})
		require.NoError(t, adapter.Initialize(ctx))
		assert.ErrorIs(t, adapter.IsHealthy(ctx), channels.ErrNotConfigured)
		assert.ErrorIs(t, adapter.Send(ctx, channels.Request{Recipient: "+15551234567"}), channels.ErrNotConfigured)
	})
}

func TestPushAdapter_Send(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("successful send posts FCM-style payload", func(t *testing.T) {
		t.Parallel()

		var gotPayload atomic.Value
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "key=server-key", r.Header.Get("Authorization"))
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			gotPayload.Store(payload)
			_ = json.NewEncoder(w).Encode(map[string]int{"success": 1, "failure": 0})
		}))
		defer srv.Close()

		adapter := channels.NewPushAdapter(channels.PushConfig{APIURL: srv.URL, ServerKey: "server-key"})
		require.NoError(t, adapter.Initialize(ctx))

		err := adapter.Send(ctx, channels.Request{
			Recipient: "device-token-1",
			Subject:   "Review due",
			Message:   "Your Q3 self-review is due Friday.",
			Data:      map[string]any{"click_action": "/reviews/42"},
		})
		require.NoError(t, err)

		payload := gotPayload.Load().(map[string]any)
		assert.Equal(t, "device-token-1", payload["to"])
		n := payload["notification"].(map[string]any)
		assert.Equal(t, "Review due", n["title"])
		assert.Equal(t, "/reviews/42", n["click_action"])
	})

	t.Run("token rejection in 200 body surfaced", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": 0,
				"failure": 1,
				"results": []map[string]string{{"error": "NotRegistered"}},
			})
		}))
		defer srv.Close()

		adapter := channels.NewPushAdapter(channels.PushConfig{APIURL: srv.URL, ServerKey: "k"})
		require.NoError(t, adapter.Initialize(ctx))

		err := adapter.Send(ctx, channels.Request{Recipient: "stale-token", Message: "hi"})
		require.ErrorIs(t, err, channels.ErrSendFailed)
		assert.Contains(t, err.Error(), "NotRegistered")
	})
}
