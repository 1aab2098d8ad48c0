package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/peoplehub/notify/pkg/notification"
)

// ErrStoreNil is returned when an aggregator is built without a store.
var ErrStoreNil = errors.New("notification store cannot be nil")

// ChannelStats is the delivery breakdown for one channel.
type ChannelStats struct {
	Total     int     `json:"total"`
	Delivered int     `json:"delivered"`
	Failed    int     `json:"failed"`
	Pending   int     `json:"pending"`
	Rate      float64 `json:"delivery_rate"`
}

// DailyBucket is one day's delivery counts.
type DailyBucket struct {
	Date      string `json:"date"` // YYYY-MM-DD
	Total     int    `json:"total"`
	Delivered int    `json:"delivered"`
	Failed    int    `json:"failed"`
}

// Summary is an aggregate view of delivery outcomes over a time range.
// Counts come from the notification records, whose state transitions mirror
// the append-only delivery log one-to-one.
type Summary struct {
	Since time.Time `json:"since"`
	Until time.Time `json:"until"`

	Total     int `json:"total"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	Read      int `json:"read"`

	DeliveryRate float64 `json:"delivery_rate"`
	FailureRate  float64 `json:"failure_rate"`

	// AvgDeliveryTime is the mean latency from submission to delivery over
	// delivered records.
	AvgDeliveryTime time.Duration `json:"avg_delivery_time"`

	ByChannel map[notification.Channel]ChannelStats `json:"by_channel"`
	ByType    map[notification.Type]int             `json:"by_type"`
	Daily     []DailyBucket                         `json:"daily"`
}

// Aggregator computes delivery analytics from the notification store.
type Aggregator struct {
	store notification.Store
}

// NewAggregator creates an analytics aggregator.
func NewAggregator(store notification.Store) (*Aggregator, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	return &Aggregator{store: store}, nil
}

// queryPageSize bounds each page pulled from the store during aggregation.
const queryPageSize = 500

// Summary aggregates all records created inside [since, until).
func (a *Aggregator) Summary(ctx context.Context, since, until time.Time) (*Summary, error) {
	if !until.After(since) {
		return nil, fmt.Errorf("invalid range: %s is not before %s", since, until)
	}

	s := &Summary{
		Since:     since,
		Until:     until,
		ByChannel: make(map[notification.Channel]ChannelStats),
		ByType:    make(map[notification.Type]int),
	}
	daily := make(map[string]*DailyBucket)

	// The store's Until is inclusive; the summary range is half-open.
	queryUntil := until.Add(-time.Nanosecond)

	var totalDeliveryTime time.Duration

	for offset := 0; ; offset += queryPageSize {
		page, err := a.store.Query(ctx, notification.Filter{
			Since:  &since,
			Until:  &queryUntil,
			Limit:  queryPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("query notifications: %w", err)
		}

		for _, rec := range page {
			s.Total++
			s.ByType[rec.Type]++

			ch := s.ByChannel[rec.Channel]
			ch.Total++

			day := rec.CreatedAt.UTC().Format("2006-01-02")
			bucket, ok := daily[day]
			if !ok {
				bucket = &DailyBucket{Date: day}
				daily[day] = bucket
			}
			bucket.Total++

			switch rec.Status {
			case notification.StatusDelivered:
				s.Delivered++
				ch.Delivered++
				bucket.Delivered++
				if rec.DeliveredAt != nil {
					totalDeliveryTime += rec.DeliveredAt.Sub(rec.CreatedAt)
				}
			case notification.StatusFailed:
				s.Failed++
				ch.Failed++
				bucket.Failed++
			default:
				s.Pending++
				ch.Pending++
			}
			if rec.ReadAt != nil {
				s.Read++
			}

			s.ByChannel[rec.Channel] = ch
		}

		if len(page) < queryPageSize {
			break
		}
	}

	if s.Total > 0 {
		s.DeliveryRate = float64(s.Delivered) / float64(s.Total)
		s.FailureRate = float64(s.Failed) / float64(s.Total)
	}
	if s.Delivered > 0 {
		s.AvgDeliveryTime = totalDeliveryTime / time.Duration(s.Delivered)
	}
	for ch, stats := range s.ByChannel {
		if stats.Total > 0 {
			stats.Rate = float64(stats.Delivered) / float64(stats.Total)
			s.ByChannel[ch] = stats
		}
	}

	// Chronological day buckets.
	for day := since.UTC().Truncate(24 * time.Hour); day.Before(until); day = day.Add(24 * time.Hour) {
		key := day.Format("2006-01-02")
		if bucket, ok := daily[key]; ok {
			s.Daily = append(s.Daily, *bucket)
		}
	}

	return s, nil
}
