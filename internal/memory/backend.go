// Package memory implements an in-process Cupboard. It models a document
// store with no composite unique indexes: duplicate relation rows are stored
// as written, and Fetch returns documents in insertion order unless an order
// field is given.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/segments/pkg/types"
)

var _ types.Cupboard = (*Backend)(nil)

// Backend implements types.Cupboard over maps guarded by read-write locks.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	tables   map[string]*Table

	now   func() time.Time
	newID func() string
}

// Option configures a Backend.
type Option func(*Backend)

// withClock overrides the clock used to stamp new documents.
func withClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithIDGenerator overrides UUID v7 generation.
func WithIDGenerator(newID func() string) Option {
	return func(b *Backend) { b.newID = newID }
}

// NewBackend creates a detached in-memory backend.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		tables: make(map[string]*Table),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  newUUID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Attach validates config and creates empty tables.
// Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	for _, name := range types.StandardTableNames {
		b.tables[name] = newTable(name, b.now, b.newID)
	}
	b.attached = true
	return nil
}

// Detach drops every table. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attached = false
	b.tables = make(map[string]*Table)
	return nil
}

// GetTable returns the named table.
func (b *Backend) GetTable(name string) (types.Table, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if !b.attached {
		return nil, types.ErrCupboardDetached
	}
	t, ok := b.tables[name]
	if !ok {
		return nil, types.ErrTableNotFound
	}
	return t, nil
}

// newUUID generates a UUID v7, falling back to v4.
func newUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
