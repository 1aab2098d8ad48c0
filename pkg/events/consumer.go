package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrRegistryNil is returned when a consumer is built without a registry.
var ErrRegistryNil = errors.New("event registry cannot be nil")

// Consumer dispatches incoming events to their registered handlers. Handlers
// of the same event run concurrently and are isolated from each other: one
// failing sibling never prevents the others from producing their
// notifications.
type Consumer struct {
	registry *Registry
	logger   *slog.Logger
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithConsumerLogger sets the logger.
func WithConsumerLogger(logger *slog.Logger) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsumer creates an event consumer.
func NewConsumer(registry *Registry, opts ...ConsumerOption) (*Consumer, error) {
	if registry == nil {
		return nil, ErrRegistryNil
	}
	c := &Consumer{registry: registry, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Handle fans one event out to its handlers. Events without handlers are
// logged and ignored; the platform emits more event types than this pipeline
// reacts to. Missing correlation IDs and timestamps are filled in so every
// downstream notification can be traced back to this occurrence.
func (c *Consumer) Handle(ctx context.Context, evt Event) error {
	if evt.CorrelationID == "" {
		evt.CorrelationID = uuid.NewString()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = time.Now()
	}

	handlers := c.registry.HandlersFor(evt.Type)
	if len(handlers) == 0 {
		c.logger.Debug("no handlers for event",
			slog.String("event_type", evt.Type),
			slog.String("correlation_id", evt.CorrelationID))
		return nil
	}

	errs := make([]error, len(handlers))
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range handlers {
		g.Go(func() error {
			if err := h(gctx, evt); err != nil {
				c.logger.Error("event handler failed",
					slog.String("event_type", evt.Type),
					slog.String("correlation_id", evt.CorrelationID),
					slog.Int("handler", i),
					slog.String("error", err.Error()))
				errs[i] = fmt.Errorf("handler %d for %s: %w", i, evt.Type, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}
