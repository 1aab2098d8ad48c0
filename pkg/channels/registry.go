package channels

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/peoplehub/notify/pkg/notification"
)

// Registry routes delivery requests to the adapter registered for each
// channel. Registration happens once during startup; lookups are concurrent.
type Registry struct {
	mu       sync.RWMutex
	adapters map[notification.Channel]Adapter
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for adapter lifecycle events.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		adapters: make(map[notification.Channel]Adapter),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds an adapter, replacing any previous adapter for its channel.
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return errors.New("adapter cannot be nil")
	}
	ch := a.Channel()
	if !ch.Valid() {
		return fmt.Errorf("adapter reports invalid channel %q", ch)
	}

	r.mu.Lock()
	r.adapters[ch] = a
	r.mu.Unlock()
	return nil
}

// Adapter returns the adapter for the given channel.
func (r *Registry) Adapter(ch notification.Channel) (Adapter, error) {
	r.mu.RLock()
	a, ok := r.adapters[ch]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
	}
	return a, nil
}

// Channels lists the channels with a registered adapter.
func (r *Registry) Channels() []notification.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]notification.Channel, 0, len(r.adapters))
	for ch := range r.adapters {
		out = append(out, ch)
	}
	return out
}

// InitializeAll initializes every registered adapter. Adapters that fail to
// initialize are logged and skipped rather than aborting startup.
func (r *Registry) InitializeAll(ctx context.Context) error {
	r.mu.RLock()
	adapters := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		adapters = append(adapters, a)
	}
	r.mu.RUnlock()

	var errs []error
	for _, a := range adapters {
		if err := a.Initialize(ctx); err != nil {
			r.logger.Error("channel adapter initialization failed",
				slog.String("channel", string(a.Channel())),
				slog.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", a.Channel(), err))
		}
	}
	return errors.Join(errs...)
}

// Health reports per-channel adapter health.
func (r *Registry) Health(ctx context.Context) map[notification.Channel]error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[notification.Channel]error, len(r.adapters))
	for ch, a := range r.adapters {
		out[ch] = a.IsHealthy(ctx)
	}
	return out
}

// CleanupAll releases resources held by every registered adapter.
func (r *Registry) CleanupAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, a := range r.adapters {
		if err := a.Cleanup(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.Channel(), err))
		}
	}
	return errors.Join(errs...)
}
