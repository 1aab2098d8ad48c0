package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/peoplehub/notify/pkg/notification"
)

// PushConfig holds the push gateway endpoint and server key for an FCM-style
// HTTP provider.
type PushConfig struct {
	APIURL    string        `env:"PUSH_API_URL"`
	ServerKey string        `env:"PUSH_SERVER_KEY"`
	Timeout   time.Duration `env:"PUSH_TIMEOUT" envDefault:"10s"`
}

// PushAdapter delivers notifications to mobile devices through an FCM-style
// HTTP gateway keyed by device token.
type PushAdapter struct {
	cfg        PushConfig
	httpClient *http.Client

	mu          sync.Mutex
	initialized bool
	configured  bool
}

// PushAdapterOption configures a PushAdapter.
type PushAdapterOption func(*PushAdapter)

// WithPushHTTPClient overrides the HTTP client, mainly for tests.
func WithPushHTTPClient(client *http.Client) PushAdapterOption {
	return func(a *PushAdapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// NewPushAdapter creates a push adapter.
func NewPushAdapter(cfg PushConfig, opts ...PushAdapterOption) *PushAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	a := &PushAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Channel implements Adapter.
func (a *PushAdapter) Channel() notification.Channel { return notification.ChannelPush }

// Initialize implements Adapter.
func (a *PushAdapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.initialized = true
	a.configured = a.cfg.APIURL != "" && a.cfg.ServerKey != ""
	return nil
}

type pushPayload struct {
	To           string           `json:"to"`
	Notification pushNotification `json:"notification"`
	Data         map[string]any   `json:"data,omitempty"`
	Priority     string           `json:"priority,omitempty"`
}

type pushNotification struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Image       string `json:"image,omitempty"`
	ClickAction string `json:"click_action,omitempty"`
}

type pushResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		Error string `json:"error"`
	} `json:"results"`
}

// Send implements Adapter with a single gateway call.
func (a *PushAdapter) Send(ctx context.Context, req Request) error {
	if err := a.IsHealthy(ctx); err != nil {
		return err
	}
	if req.Recipient == "" {
		return ErrMissingRecipient
	}

	payload, err := json.Marshal(pushPayload{
		To: req.Recipient,
		Notification: pushNotification{
			Title:       req.Subject,
			Body:        req.Message,
			Image:       stringFromData(req.Data, "image_url"),
			ClickAction: stringFromData(req.Data, "click_action"),
		},
		Data:     req.Data,
		Priority: "high",
	})
	if err != nil {
		return fmt.Errorf("encode push payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "key="+a.cfg.ServerKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s", ErrSendFailed, gatewayError(resp))
	}

	// A 200 can still carry per-token failures in the body.
	var result pushResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil // providers without a structured body are fine
	}
	if result.Failure > 0 {
		reason := "unknown"
		if len(result.Results) > 0 && result.Results[0].Error != "" {
			reason = result.Results[0].Error
		}
		return fmt.Errorf("%w: gateway rejected token: %s", ErrSendFailed, reason)
	}
	return nil
}

// SendBulk implements Adapter.
func (a *PushAdapter) SendBulk(ctx context.Context, reqs []Request) []BulkResult {
	return sendBulk(ctx, a, reqs, defaultBulkConcurrency)
}

// IsHealthy implements Adapter.
func (a *PushAdapter) IsHealthy(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return ErrNotInitialized
	}
	if !a.configured {
		return ErrNotConfigured
	}
	return nil
}

// Cleanup implements Adapter.
func (a *PushAdapter) Cleanup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = false
	a.configured = false
	a.httpClient.CloseIdleConnections()
	return nil
}

func stringFromData(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	if s, ok := data[key].(string); ok {
		return s
	}
	return ""
}
