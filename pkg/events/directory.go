package events

import (
	"context"
	"errors"
	"sync"
)

// ErrContactNotFound is returned when a user has no directory entry.
var ErrContactNotFound = errors.New("contact not found in directory")

// Contact is the delivery addressing for one person, resolved from the
// platform's employee directory.
type Contact struct {
	UserID      string
	Name        string
	Email       string
	PhoneNumber string
	DeviceToken string
	ManagerID   string
}

// DirectoryLookup resolves user IDs to contact details. The production
// implementation calls the employee directory service; tests use
// MemoryDirectory.
type DirectoryLookup interface {
	Lookup(ctx context.Context, userID string) (Contact, error)
}

// MemoryDirectory is an in-memory DirectoryLookup for tests and local runs.
type MemoryDirectory struct {
	mu       sync.RWMutex
	contacts map[string]Contact
}

// NewMemoryDirectory creates a directory preloaded with the given contacts.
func NewMemoryDirectory(contacts ...Contact) *MemoryDirectory {
	d := &MemoryDirectory{contacts: make(map[string]Contact, len(contacts))}
	for _, c := range contacts {
		d.contacts[c.UserID] = c
	}
	return d
}

// Add stores or replaces a contact.
func (d *MemoryDirectory) Add(c Contact) {
	d.mu.Lock()
	d.contacts[c.UserID] = c
	d.mu.Unlock()
}

// Lookup implements DirectoryLookup.
func (d *MemoryDirectory) Lookup(ctx context.Context, userID string) (Contact, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	c, ok := d.contacts[userID]
	if !ok {
		return Contact{}, ErrContactNotFound
	}
	return c, nil
}
