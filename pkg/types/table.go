package types

import (
	"context"
	"errors"
)

// Table provides uniform CRUD operations for a single entity type.
// Get and Fetch return any; callers type-assert to the concrete entity struct.
type Table interface {
	// Get retrieves the entity with the given ID.
	// Returns ErrNotFound if no entity exists with that ID.
	Get(ctx context.Context, id string) (any, error)

	// Set creates or replaces an entity. When id is empty a new UUID v7 is
	// generated. Returns the actual ID used (generated or provided).
	Set(ctx context.Context, id string, data any) (string, error)

	// Delete removes the entity with the given ID.
	// Returns ErrNotFound if no entity exists with that ID.
	Delete(ctx context.Context, id string) error

	// Fetch returns the entities matching q. A zero Query returns every
	// entity in the table.
	Fetch(ctx context.Context, q Query) (Page, error)
}

// Query selects documents from a Table.
//
// Where maps a field name to either a string (equality) or a []string
// (membership; an empty slice matches nothing). SearchTerm performs a
// case-insensitive substring match on SearchField. OrderBy names the sort
// field; when empty the backend's natural order is used. Limit <= 0 means
// no limit.
type Query struct {
	Where       map[string]any
	SearchField string
	SearchTerm  string
	OrderBy     string
	Descending  bool
	Limit       int
	Offset      int
}

// Page is the result of Table.Fetch. Total counts every matching document
// regardless of Limit and Offset.
type Page struct {
	Documents []any
	Total     int
}

// Eq returns a Query matching documents whose field equals value.
func Eq(field, value string) Query {
	return Query{Where: map[string]any{field: value}}
}

// In returns a Query matching documents whose field is one of values.
func In(field string, values []string) Query {
	return Query{Where: map[string]any{field: values}}
}

// Table operation errors.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrInvalidID     = errors.New("invalid entity ID")
	ErrInvalidData   = errors.New("invalid entity data")
	ErrInvalidFilter = errors.New("invalid filter")
	ErrDuplicate     = errors.New("unique constraint violated")
	ErrUnknownField  = errors.New("unknown field")
)
