package channels

import (
	"context"
	"sync"

	"github.com/peoplehub/notify/pkg/notification"
)

// StubAdapter is a configurable in-memory adapter for tests and local runs.
// It records every request and can be told to fail specific sends.
type StubAdapter struct {
	channel notification.Channel

	mu          sync.Mutex
	initialized bool
	sent        []Request
	sendErr     func(req Request) error
	healthErr   error
	cleanups    int
}

// StubOption configures a StubAdapter.
type StubOption func(*StubAdapter)

// WithStubSendError injects a per-request failure decision.
func WithStubSendError(fn func(req Request) error) StubOption {
	return func(s *StubAdapter) { s.sendErr = fn }
}

// WithStubHealthError makes the stub report unhealthy.
func WithStubHealthError(err error) StubOption {
	return func(s *StubAdapter) { s.healthErr = err }
}

// NewStubAdapter creates a stub for the given channel.
func NewStubAdapter(channel notification.Channel, opts ...StubOption) *StubAdapter {
	s := &StubAdapter{channel: channel}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Channel implements Adapter.
func (s *StubAdapter) Channel() notification.Channel { return s.channel }

// Initialize implements Adapter.
func (s *StubAdapter) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return nil
}

// Send implements Adapter.
func (s *StubAdapter) Send(ctx context.Context, req Request) error {
	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()

	if !initialized {
		return ErrNotInitialized
	}
	if req.Recipient == "" {
		return ErrMissingRecipient
	}
	if s.sendErr != nil {
		if err := s.sendErr(req); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.sent = append(s.sent, req)
	s.mu.Unlock()
	return nil
}

// SendBulk implements Adapter.
func (s *StubAdapter) SendBulk(ctx context.Context, reqs []Request) []BulkResult {
	return sendBulk(ctx, s, reqs, defaultBulkConcurrency)
}

// IsHealthy implements Adapter.
func (s *StubAdapter) IsHealthy(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	return s.healthErr
}

// Cleanup implements Adapter.
func (s *StubAdapter) Cleanup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = false
	s.cleanups++
	return nil
}

// Sent returns a copy of all successfully recorded requests.
func (s *StubAdapter) Sent() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.sent))
	copy(out, s.sent)
	return out
}

// Cleanups reports how many times Cleanup ran.
func (s *StubAdapter) Cleanups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanups
}
