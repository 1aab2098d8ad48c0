package notification

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory implementation of Store and DeliveryLog.
// Suitable for development and testing.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string // creation order, for stable Query results
	log     map[string][]LogEntry
}

// NewMemoryStore creates a new in-memory notification store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		log:     make(map[string][]LogEntry),
	}
}

func (s *MemoryStore) Create(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if !rec.Addressed() {
		return ErrMissingRecipient
	}
	if rec.Message == "" {
		return ErrMissingMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rec.ID)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.MaxRetries == 0 {
		rec.MaxRetries = DefaultMaxRetries
	}
	rec.Status = StatusPending

	// Clone to prevent external modification of stored state.
	cp := *rec
	s.records[rec.ID] = &cp
	s.order = append(s.order, rec.ID)

	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) MarkDelivered(ctx context.Context, id string, at time.Time) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}

	// Duplicate ack: keep the first transition's timestamps.
	if rec.Status == StatusDelivered {
		cp := *rec
		return &cp, nil
	}
	if rec.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot deliver from %s", ErrInvalidState, rec.Status)
	}

	rec.Status = StatusDelivered
	sent := at
	rec.SentAt = &sent
	delivered := at
	rec.DeliveredAt = &delivered
	rec.ErrorMessage = ""

	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) MarkFailed(ctx context.Context, id string, at time.Time, errMsg string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Status != StatusPending {
		return nil, fmt.Errorf("%w: cannot fail from %s", ErrInvalidState, rec.Status)
	}

	rec.Status = StatusFailed
	failed := at
	rec.FailedAt = &failed
	rec.ErrorMessage = errMsg

	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ResetForRetry(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Status != StatusFailed {
		return nil, fmt.Errorf("%w: cannot retry from %s", ErrInvalidState, rec.Status)
	}
	if rec.RetryCount >= rec.MaxRetries {
		return nil, ErrRetryExhausted
	}

	rec.RetryCount++
	rec.Status = StatusPending
	rec.ErrorMessage = ""
	rec.FailedAt = nil

	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.ReadAt == nil {
		read := at
		rec.ReadAt = &read
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, f Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Record, 0)
	for _, id := range s.order {
		rec := s.records[id]
		if !matches(rec, f) {
			continue
		}
		matched = append(matched, *rec)
	}

	// Newest first.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(matched) {
			return []Record{}, nil
		}
		matched = matched[f.Offset:]
	}
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}

	return matched, nil
}

func matches(rec *Record, f Filter) bool {
	if f.UserID != "" && rec.UserID != f.UserID {
		return false
	}
	if f.Type != "" && rec.Type != f.Type {
		return false
	}
	if f.Channel != "" && rec.Channel != f.Channel {
		return false
	}
	if f.Status != "" && rec.Status != f.Status {
		return false
	}
	if f.Since != nil && rec.CreatedAt.Before(*f.Since) {
		return false
	}
	if f.Until != nil && rec.CreatedAt.After(*f.Until) {
		return false
	}
	return true
}

// Append implements DeliveryLog.
func (s *MemoryStore) Append(ctx context.Context, entry LogEntry) error {
	if entry.NotificationID == "" {
		return fmt.Errorf("log entry requires a notification id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	s.log[entry.NotificationID] = append(s.log[entry.NotificationID], entry)
	return nil
}

// ListByNotification implements DeliveryLog.
func (s *MemoryStore) ListByNotification(ctx context.Context, notificationID string) ([]LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.log[notificationID]
	out := make([]LogEntry, len(entries))
	copy(out, entries)
	return out, nil
}
