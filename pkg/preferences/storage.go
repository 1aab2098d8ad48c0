package preferences

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrPreferenceNotFound is returned when a user has no stored preference.
	// Callers treat it as "use defaults", not as a failure.
	ErrPreferenceNotFound = errors.New("preference not found")
)

// Storage handles preference persistence. The pipeline only reads preferences;
// mutation happens through the platform's preference service.
type Storage interface {
	// Get retrieves the preference for a user. Returns ErrPreferenceNotFound
	// when none exists.
	Get(ctx context.Context, userID string) (*Preference, error)

	// Put stores or replaces a user's preference.
	Put(ctx context.Context, pref Preference) error
}

// MemoryStorage is an in-memory implementation of Storage for development and
// testing.
type MemoryStorage struct {
	mu    sync.RWMutex
	prefs map[string]Preference
}

// NewMemoryStorage creates a new in-memory preference storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{prefs: make(map[string]Preference)}
}

func (s *MemoryStorage) Get(ctx context.Context, userID string) (*Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pref, ok := s.prefs[userID]
	if !ok {
		return nil, ErrPreferenceNotFound
	}
	return &pref, nil
}

func (s *MemoryStorage) Put(ctx context.Context, pref Preference) error {
	if pref.UserID == "" {
		return errors.New("preference requires a user id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pref.UpdatedAt = time.Now()
	s.prefs[pref.UserID] = pref
	return nil
}
