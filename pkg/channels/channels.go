package channels

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/peoplehub/notify/pkg/notification"
)

// Request carries everything an adapter needs to deliver one message. The
// recipient field is channel-specific: an email address, a phone number in
// E.164, a device token, or a user ID for in-app delivery.
type Request struct {
	NotificationID string
	Recipient      string
	Subject        string
	Message        string
	Data           map[string]any
}

// BulkResult pairs a bulk request with its individual outcome.
type BulkResult struct {
	Request Request
	Err     error
}

// Adapter delivers notifications over one channel. Send performs exactly one
// delivery attempt; retry scheduling belongs to the dispatch queue, not the
// adapter. Initialize is idempotent and must not fail on missing credentials:
// an unconfigured adapter initializes fine and reports unhealthy instead, so
// one misconfigured provider cannot take the whole dispatcher down.
type Adapter interface {
	Channel() notification.Channel
	Initialize(ctx context.Context) error
	Send(ctx context.Context, req Request) error
	SendBulk(ctx context.Context, reqs []Request) []BulkResult
	IsHealthy(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

// defaultBulkConcurrency bounds parallel provider calls during bulk sends.
const defaultBulkConcurrency = 8

// sendBulk fans Send out over the requests with bounded concurrency and
// collects per-item outcomes. One failed item never aborts the rest.
func sendBulk(ctx context.Context, a Adapter, reqs []Request, concurrency int) []BulkResult {
	if concurrency <= 0 {
		concurrency = defaultBulkConcurrency
	}

	results := make([]BulkResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			results[i] = BulkResult{Request: req, Err: a.Send(gctx, req)}
			return nil
		})
	}

	_ = g.Wait() // goroutines never return errors, outcomes live in results
	return results
}
