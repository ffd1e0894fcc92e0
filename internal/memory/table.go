package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mesh-intelligence/segments/pkg/types"
)

var _ types.Table = (*Table)(nil)

// Table stores documents of one entity type keyed by ID. order keeps
// insertion order so Fetch without OrderBy is deterministic.
type Table struct {
	name  string
	mu    sync.RWMutex
	docs  map[string]types.Document
	order []string

	now   func() time.Time
	newID func() string
}

func newTable(name string, now func() time.Time, newID func() string) *Table {
	return &Table{
		name:  name,
		docs:  make(map[string]types.Document),
		now:   now,
		newID: newID,
	}
}

// Get returns a copy of the document with the given ID.
func (t *Table) Get(ctx context.Context, id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	doc, ok := t.docs[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return doc.Clone(), nil
}

// Set stores a copy of data. An empty id creates a new document; a known id
// replaces the stored document in place, keeping its insertion position.
func (t *Table) Set(ctx context.Context, id string, data any) (string, error) {
	doc, ok := data.(types.Document)
	if !ok || !sameKind(t.name, doc) {
		return "", types.ErrInvalidData
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if id == "" {
		id = t.newID()
	}
	doc.SetDocumentID(id)
	doc.Stamp(t.now())

	if _, exists := t.docs[id]; !exists {
		t.order = append(t.order, id)
	}
	t.docs[id] = doc.Clone()
	return id, nil
}

// Delete removes the document with the given ID.
func (t *Table) Delete(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.docs[id]; !ok {
		return types.ErrNotFound
	}
	delete(t.docs, id)
	for i, oid := range t.order {
		if oid == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return nil
}

// Fetch filters, orders and pages the table.
func (t *Table) Fetch(ctx context.Context, q types.Query) (types.Page, error) {
	if err := ctx.Err(); err != nil {
		return types.Page{}, err
	}
	m, err := compile(t.name, q)
	if err != nil {
		return types.Page{}, err
	}

	t.mu.RLock()
	var matched []types.Document
	for _, id := range t.order {
		doc := t.docs[id]
		if m.match(doc) {
			matched = append(matched, doc.Clone())
		}
	}
	t.mu.RUnlock()

	if q.OrderBy != "" {
		sort.SliceStable(matched, func(i, j int) bool {
			a, _ := matched[i].Field(q.OrderBy)
			b, _ := matched[j].Field(q.OrderBy)
			if q.Descending {
				return a > b
			}
			return a < b
		})
	}

	page := types.Page{Total: len(matched), Documents: []any{}}
	start := min(max(q.Offset, 0), len(matched))
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	for _, doc := range matched[start:end] {
		page.Documents = append(page.Documents, doc)
	}
	return page, nil
}

// Len returns the number of stored documents.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.docs)
}

func sameKind(table string, doc types.Document) bool {
	proto := types.NewDocument(table)
	return proto != nil && fmt.Sprintf("%T", proto) == fmt.Sprintf("%T", doc)
}

// matcher is a validated Query predicate.
type matcher struct {
	eq     map[string]string
	in     map[string]map[string]bool
	field  string
	needle string
}

func compile(table string, q types.Query) (*matcher, error) {
	proto := types.NewDocument(table)
	known := func(f string) bool {
		_, ok := proto.Field(f)
		return ok
	}

	m := &matcher{eq: map[string]string{}, in: map[string]map[string]bool{}}
	for field, v := range q.Where {
		if !known(field) {
			return nil, fmt.Errorf("%s.%s: %w", table, field, types.ErrInvalidFilter)
		}
		switch val := v.(type) {
		case string:
			m.eq[field] = val
		case []string:
			set := make(map[string]bool, len(val))
			for _, s := range val {
				set[s] = true
			}
			m.in[field] = set
		default:
			return nil, fmt.Errorf("%s.%s has type %T: %w", table, field, v, types.ErrInvalidFilter)
		}
	}
	if q.SearchTerm != "" {
		if !known(q.SearchField) {
			return nil, fmt.Errorf("search on %s.%q: %w", table, q.SearchField, types.ErrInvalidFilter)
		}
		m.field = q.SearchField
		m.needle = strings.ToLower(q.SearchTerm)
	}
	if q.OrderBy != "" && !known(q.OrderBy) {
		return nil, fmt.Errorf("order by %s.%s: %w", table, q.OrderBy, types.ErrInvalidFilter)
	}
	return m, nil
}

func (m *matcher) match(doc types.Document) bool {
	for f, want := range m.eq {
		if got, _ := doc.Field(f); got != want {
			return false
		}
	}
	for f, set := range m.in {
		if got, _ := doc.Field(f); !set[got] {
			return false
		}
	}
	if m.needle != "" {
		got, _ := doc.Field(m.field)
		if !strings.Contains(strings.ToLower(got), m.needle) {
			return false
		}
	}
	return true
}
