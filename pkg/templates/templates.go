package templates

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"time"
)

var (
	// ErrTemplateNotFound is returned when rendering references a template
	// that does not exist. Surfaced to the caller; the notification is not
	// created.
	ErrTemplateNotFound = errors.New("template not found")
)

// Template is a stored subject/body pair with named {{variable}} placeholders.
type Template struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Storage handles template persistence. Template CRUD lives outside the
// pipeline; the renderer only reads.
type Storage interface {
	Get(ctx context.Context, id string) (*Template, error)
	Put(ctx context.Context, tpl Template) error
}

// MemoryStorage is an in-memory implementation of Storage.
type MemoryStorage struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewMemoryStorage creates a new in-memory template storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{templates: make(map[string]Template)}
}

func (s *MemoryStorage) Get(ctx context.Context, id string) (*Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tpl, ok := s.templates[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return &tpl, nil
}

func (s *MemoryStorage) Put(ctx context.Context, tpl Template) error {
	if tpl.ID == "" {
		return errors.New("template requires an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tpl.UpdatedAt = time.Now()
	s.templates[tpl.ID] = tpl
	return nil
}

// Renderer resolves a stored template into a final subject and message by
// substituting named variables.
type Renderer struct {
	storage Storage
}

// NewRenderer creates a renderer backed by the given storage.
func NewRenderer(storage Storage) (*Renderer, error) {
	if storage == nil {
		return nil, errors.New("storage cannot be nil")
	}
	return &Renderer{storage: storage}, nil
}

// Render loads the template and substitutes variables into subject and body.
// Unknown placeholders are left intact so missing data is visible downstream
// rather than silently blanked.
func (r *Renderer) Render(ctx context.Context, templateID string, vars map[string]any) (subject, body string, err error) {
	tpl, err := r.storage.Get(ctx, templateID)
	if err != nil {
		return "", "", err
	}
	return Substitute(tpl.Subject, vars), Substitute(tpl.Body, vars), nil
}

var placeholderRegex = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// Substitute replaces {{name}} placeholders in s with values from vars.
func Substitute(s string, vars map[string]any) string {
	if len(vars) == 0 {
		return s
	}
	return placeholderRegex.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRegex.FindStringSubmatch(match)[1]
		val, ok := vars[name]
		if !ok {
			return match
		}
		return fmt.Sprintf("%v", val)
	})
}
