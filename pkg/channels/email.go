package channels

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/mrz1836/postmark"

	"github.com/peoplehub/notify/pkg/notification"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// EmailConfig holds Postmark credentials and sender identity.
type EmailConfig struct {
	ServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail  string `env:"EMAIL_SENDER" envDefault:"notifications@peoplehub.io"`
	ReplyTo      string `env:"EMAIL_REPLY_TO"`
}

// postmarkSender is the slice of the Postmark client the adapter uses.
type postmarkSender interface {
	SendEmail(ctx context.Context, email postmark.Email) (postmark.EmailResponse, error)
}

// EmailAdapter delivers notifications through Postmark's transactional API.
type EmailAdapter struct {
	cfg EmailConfig

	mu          sync.Mutex
	client      postmarkSender
	initialized bool
}

// NewEmailAdapter creates an email adapter. Credentials are validated during
// Initialize, not here.
func NewEmailAdapter(cfg EmailConfig) *EmailAdapter {
	return &EmailAdapter{cfg: cfg}
}

// Channel implements Adapter.
func (a *EmailAdapter) Channel() notification.Channel { return notification.ChannelEmail }

// Initialize implements Adapter. Missing credentials leave the adapter
// unconfigured rather than failing, so the dispatcher can still serve the
// other channels.
func (a *EmailAdapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	a.initialized = true

	if a.cfg.ServerToken == "" || a.cfg.AccountToken == "" {
		return nil
	}
	if !emailRegex.MatchString(a.cfg.SenderEmail) {
		return fmt.Errorf("invalid sender email %q", a.cfg.SenderEmail)
	}

	a.client = postmark.NewClient(a.cfg.ServerToken, a.cfg.AccountToken)
	return nil
}

// Send implements Adapter with a single Postmark API call.
func (a *EmailAdapter) Send(ctx context.Context, req Request) error {
	a.mu.Lock()
	client, initialized := a.client, a.initialized
	a.mu.Unlock()

	if !initialized {
		return ErrNotInitialized
	}
	if client == nil {
		return ErrNotConfigured
	}
	if req.Recipient == "" {
		return ErrMissingRecipient
	}
	if !emailRegex.MatchString(req.Recipient) {
		return fmt.Errorf("%w: invalid email address %q", ErrSendFailed, req.Recipient)
	}

	resp, err := client.SendEmail(ctx, postmark.Email{
		From:       a.cfg.SenderEmail,
		ReplyTo:    a.cfg.ReplyTo,
		To:         req.Recipient,
		Subject:    req.Subject,
		TextBody:   req.Message,
		Tag:        tagFromData(req.Data),
		TrackOpens: true,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(ErrSendFailed,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message))
	}
	return nil
}

// SendBulk implements Adapter.
func (a *EmailAdapter) SendBulk(ctx context.Context, reqs []Request) []BulkResult {
	return sendBulk(ctx, a, reqs, defaultBulkConcurrency)
}

// IsHealthy implements Adapter.
func (a *EmailAdapter) IsHealthy(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return ErrNotInitialized
	}
	if a.client == nil {
		return ErrNotConfigured
	}
	return nil
}

// Cleanup implements Adapter. The Postmark client holds no connections to
// release.
func (a *EmailAdapter) Cleanup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.client = nil
	a.initialized = false
	return nil
}

// tagFromData extracts the notification type for provider-side analytics.
func tagFromData(data map[string]any) string {
	if data == nil {
		return ""
	}
	if tag, ok := data["type"].(string); ok {
		return tag
	}
	return ""
}
