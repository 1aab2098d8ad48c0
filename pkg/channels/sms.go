package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/peoplehub/notify/pkg/notification"
)

var phoneRegex = regexp.MustCompile(`^\+[1-9]\d{6,14}$`)

// SMSConfig holds the SMS gateway endpoint and credentials. The gateway is
// any HTTP provider accepting a JSON {to, from, body} payload with bearer
// authentication.
type SMSConfig struct {
	APIURL     string        `env:"SMS_API_URL"`
	APIKey     string        `env:"SMS_API_KEY"`
	SenderID   string        `env:"SMS_SENDER_ID" envDefault:"PeopleHub"`
	Timeout    time.Duration `env:"SMS_TIMEOUT" envDefault:"10s"`
	MaxBodyLen int           `env:"SMS_MAX_BODY_LEN" envDefault:"1600"`
}

// SMSAdapter delivers notifications through an HTTP SMS gateway.
type SMSAdapter struct {
	cfg        SMSConfig
	httpClient *http.Client

	mu          sync.Mutex
	initialized bool
	configured  bool
}

// SMSAdapterOption configures an SMSAdapter.
type SMSAdapterOption func(*SMSAdapter)

// WithSMSHTTPClient overrides the HTTP client, mainly for tests.
func WithSMSHTTPClient(client *http.Client) SMSAdapterOption {
	return func(a *SMSAdapter) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// NewSMSAdapter creates an SMS adapter.
func NewSMSAdapter(cfg SMSConfig, opts ...SMSAdapterOption) *SMSAdapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxBodyLen <= 0 {
		cfg.MaxBodyLen = 1600
	}
	a := &SMSAdapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Channel implements Adapter.
func (a *SMSAdapter) Channel() notification.Channel { return notification.ChannelSMS }

// Initialize implements Adapter.
func (a *SMSAdapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.initialized = true
	a.configured = a.cfg.APIURL != "" && a.cfg.APIKey != ""
	return nil
}

type smsPayload struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type smsErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Send implements Adapter with a single gateway call.
func (a *SMSAdapter) Send(ctx context.Context, req Request) error {
	if err := a.IsHealthy(ctx); err != nil {
		return err
	}
	if req.Recipient == "" {
		return ErrMissingRecipient
	}
	if !phoneRegex.MatchString(req.Recipient) {
		return fmt.Errorf("%w: phone number %q is not E.164", ErrSendFailed, req.Recipient)
	}

	// The gateway limit counts characters; cutting on a byte offset could
	// split a multi-byte rune and ship invalid UTF-8.
	body := req.Message
	if runes := []rune(body); len(runes) > a.cfg.MaxBodyLen {
		body = string(runes[:a.cfg.MaxBodyLen])
	}

	payload, err := json.Marshal(smsPayload{
		To:   req.Recipient,
		From: a.cfg.SenderID,
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("encode sms payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build sms request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrSendFailed, gatewayError(resp))
}

// SendBulk implements Adapter.
func (a *SMSAdapter) SendBulk(ctx context.Context, reqs []Request) []BulkResult {
	return sendBulk(ctx, a, reqs, defaultBulkConcurrency)
}

// IsHealthy implements Adapter.
func (a *SMSAdapter) IsHealthy(ctx context.Context) error {
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
func (a *SMSAdapter) Cleanup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = false
	a.configured = false
	a.httpClient.CloseIdleConnections()
	return nil
}

// gatewayError builds a readable error from a non-2xx provider response.
func gatewayError(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil || len(raw) == 0 {
		return fmt.Sprintf("gateway returned %d", resp.StatusCode)
	}

	var apiErr smsErrorResponse
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, apiErr.Message)
		}
	}
	return fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, raw)
}
