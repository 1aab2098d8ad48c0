package channels

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peoplehub/notify/pkg/notification"
)

// InAppMessage is the payload pushed to connected in-app subscribers.
type InAppMessage struct {
	ID             string         `json:"id"`
	NotificationID string         `json:"notification_id"`
	UserID         string         `json:"user_id"`
	Subject        string         `json:"subject"`
	Message        string         `json:"message"`
	Data           map[string]any `json:"data,omitempty"`
	SentAt         time.Time      `json:"sent_at"`
}

// InAppSubscription is a live feed of one user's in-app notifications.
// Messages delivered while nobody is subscribed are not buffered here; the
// notification store remains the durable inbox.
type InAppSubscription struct {
	id        string
	userID    string
	messages  chan InAppMessage
	hub       *InAppHub
	closeOnce sync.Once
}

// Messages returns the subscription's message feed.
func (s *InAppSubscription) Messages() <-chan InAppMessage { return s.messages }

// Close unsubscribes and releases the feed.
func (s *InAppSubscription) Close() {
	s.closeOnce.Do(func() {
		s.hub.unsubscribe(s)
		close(s.messages)
	})
}

// InAppHub fans in-app messages out to per-user subscribers. Slow consumers
// are skipped rather than blocking delivery to everyone else.
type InAppHub struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]*InAppSubscription // userID -> subID -> sub
	bufferSize  int
	closed      bool
}

// InAppHubOption configures an InAppHub.
type InAppHubOption func(*InAppHub)

// WithHubBufferSize sets the per-subscriber channel buffer.
func WithHubBufferSize(n int) InAppHubOption {
	return func(h *InAppHub) {
		if n > 0 {
			h.bufferSize = n
		}
	}
}

// NewInAppHub creates an in-app subscriber hub.
func NewInAppHub(opts ...InAppHubOption) *InAppHub {
	h := &InAppHub{
		subscribers: make(map[string]map[string]*InAppSubscription),
		bufferSize:  32,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe opens a feed for one user. The subscription closes itself when
// ctx is canceled.
func (h *InAppHub) Subscribe(ctx context.Context, userID string) (*InAppSubscription, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}

	sub := &InAppSubscription{
		id:       uuid.NewString(),
		userID:   userID,
		messages: make(chan InAppMessage, h.bufferSize),
		hub:      h,
	}
	if h.subscribers[userID] == nil {
		h.subscribers[userID] = make(map[string]*InAppSubscription)
	}
	h.subscribers[userID][sub.id] = sub
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		sub.Close()
	}()

	return sub, nil
}

// Publish delivers a message to every live subscription of its user.
func (h *InAppHub) Publish(msg InAppMessage) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrHubClosed
	}

	for _, sub := range h.subscribers[msg.UserID] {
		select {
		case sub.messages <- msg:
		default:
			// Buffer full; the durable inbox covers the gap.
		}
	}
	return nil
}

// SubscriberCount reports the number of live subscriptions for a user.
func (h *InAppHub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}

// Close shuts the hub down and closes all subscriptions.
func (h *InAppHub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true

	var subs []*InAppSubscription
	for _, byID := range h.subscribers {
		for _, sub := range byID {
			subs = append(subs, sub)
		}
	}
	h.subscribers = make(map[string]map[string]*InAppSubscription)
	h.mu.Unlock()

	for _, sub := range subs {
		sub.closeOnce.Do(func() { close(sub.messages) })
	}
	return nil
}

func (h *InAppHub) unsubscribe(sub *InAppSubscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if byID, ok := h.subscribers[sub.userID]; ok {
		delete(byID, sub.id)
		if len(byID) == 0 {
			delete(h.subscribers, sub.userID)
		}
	}
}

// InAppAdapter delivers notifications to the in-app hub. The notification
// record itself is the durable inbox entry; this adapter only pushes to
// currently connected clients, so a send with zero subscribers still counts
// as delivered.
type InAppAdapter struct {
	hub *InAppHub

	mu          sync.Mutex
	initialized bool
}

// NewInAppAdapter creates an in-app adapter publishing to the given hub.
func NewInAppAdapter(hub *InAppHub) *InAppAdapter {
	return &InAppAdapter{hub: hub}
}

// Channel implements Adapter.
func (a *InAppAdapter) Channel() notification.Channel { return notification.ChannelInApp }

// Initialize implements Adapter.
func (a *InAppAdapter) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = true
	return nil
}

// Send implements Adapter. The recipient is the user ID.
func (a *InAppAdapter) Send(ctx context.Context, req Request) error {
	if err := a.IsHealthy(ctx); err != nil {
		return err
	}
	if req.Recipient == "" {
		return ErrMissingRecipient
	}

	return a.hub.Publish(InAppMessage{
		ID:             uuid.NewString(),
		NotificationID: req.NotificationID,
		UserID:         req.Recipient,
		Subject:        req.Subject,
		Message:        req.Message,
		Data:           req.Data,
		SentAt:         time.Now(),
	})
}

// SendBulk implements Adapter.
func (a *InAppAdapter) SendBulk(ctx context.Context, reqs []Request) []BulkResult {
	return sendBulk(ctx, a, reqs, defaultBulkConcurrency)
}

// IsHealthy implements Adapter.
func (a *InAppAdapter) IsHealthy(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return ErrNotInitialized
	}
	if a.hub == nil {
		return ErrNotConfigured
	}
	return nil
}

// Cleanup implements Adapter. The hub is shared and owned by the caller, so
// it is not closed here.
func (a *InAppAdapter) Cleanup(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initialized = false
	return nil
}
