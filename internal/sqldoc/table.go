package sqldoc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/segments/pkg/types"
)

// WriteHook runs after a successful Set or Delete on the named table.
type WriteHook func(ctx context.Context, table string) error

// Table implements types.Table for one standard collection. The SQL table
// name equals the collection name and its columns equal Document.Fields.
type Table struct {
	db      *sql.DB
	dialect Dialect
	name    string
	fields  []string
	onWrite WriteHook
	now     func() time.Time
}

var _ types.Table = (*Table)(nil)

// NewTable returns a Table for the named standard collection.
// Returns ErrTableNotFound for unknown names. onWrite may be nil.
func NewTable(db *sql.DB, d Dialect, name string, onWrite WriteHook) (*Table, error) {
	proto := types.NewDocument(name)
	if proto == nil {
		return nil, types.ErrTableNotFound
	}
	return &Table{
		db:      db,
		dialect: d,
		name:    name,
		fields:  proto.Fields(),
		onWrite: onWrite,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Name returns the collection name.
func (t *Table) Name() string { return t.name }

func (t *Table) idField() string { return types.IDField(t.name) }

func (t *Table) columns() string { return strings.Join(t.fields, ", ") }

// Get retrieves a document by ID.
// Returns ErrInvalidID if id is empty, ErrNotFound if not found.
func (t *Table) Get(ctx context.Context, id string) (any, error) {
	if id == "" {
		return nil, types.ErrInvalidID
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", t.columns(), t.name, t.idField())
	doc, err := t.scan(t.db.QueryRowContext(ctx, t.dialect.Rebind(q), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("getting %s %s: %w", t.name, id, err)
	}
	return doc, nil
}

// Set creates or replaces a document. If id is empty, generates a UUID v7.
// A write rejected by a unique index returns ErrDuplicate.
func (t *Table) Set(ctx context.Context, id string, data any) (string, error) {
	doc, ok := data.(types.Document)
	if !ok || fmt.Sprintf("%T", doc) != fmt.Sprintf("%T", types.NewDocument(t.name)) {
		return "", types.ErrInvalidData
	}
	if id == "" {
		newID, err := uuid.NewV7()
		if err != nil {
			return "", fmt.Errorf("generating UUID v7: %w", err)
		}
		id = newID.String()
	}
	doc.SetDocumentID(id)
	doc.Stamp(t.now())

	if err := t.upsert(ctx, t.db, doc); err != nil {
		return "", err
	}
	if t.onWrite != nil {
		if err := t.onWrite(ctx, t.name); err != nil {
			return "", fmt.Errorf("persisting %s: %w", t.name, err)
		}
	}
	return id, nil
}

// Load inserts doc as-is without stamping or running the write hook.
// Used by backends replaying data files on attach.
func (t *Table) Load(ctx context.Context, doc types.Document) error {
	if doc.DocumentID() == "" {
		return types.ErrInvalidID
	}
	return t.upsert(ctx, t.db, doc)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (t *Table) upsert(ctx context.Context, db execer, doc types.Document) error {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.fields)), ", ")
	sets := make([]string, 0, len(t.fields)-1)
	for _, f := range t.fields[1:] {
		sets = append(sets, f+" = excluded."+f)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		t.name, t.columns(), marks, t.idField(), strings.Join(sets, ", "))

	args := make([]any, len(t.fields))
	for i, f := range t.fields {
		v, _ := doc.Field(f)
		args[i] = v
	}
	if _, err := db.ExecContext(ctx, t.dialect.Rebind(q), args...); err != nil {
		if t.dialect.uniqueViolation(err) {
			return fmt.Errorf("%s %s: %w", t.name, doc.DocumentID(), types.ErrDuplicate)
		}
		return fmt.Errorf("persisting %s %s: %w", t.name, doc.DocumentID(), err)
	}
	return nil
}

// Delete removes a document by ID.
func (t *Table) Delete(ctx context.Context, id string) error {
	if id == "" {
		return types.ErrInvalidID
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", t.name, t.idField())
	res, err := t.db.ExecContext(ctx, t.dialect.Rebind(q), id)
	if err != nil {
		return fmt.Errorf("deleting %s %s: %w", t.name, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	if t.onWrite != nil {
		if err := t.onWrite(ctx, t.name); err != nil {
			return fmt.Errorf("persisting %s: %w", t.name, err)
		}
	}
	return nil
}

// Fetch queries documents matching q.
func (t *Table) Fetch(ctx context.Context, q types.Query) (types.Page, error) {
	cond, args, err := where(t.name, t.fields, t.dialect, q)
	if err != nil {
		return types.Page{}, err
	}
	tail, err := orderAndPage(t.name, t.fields, t.dialect, q)
	if err != nil {
		return types.Page{}, err
	}

	var total int
	countQ := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.name, cond)
	if err := t.db.QueryRowContext(ctx, t.dialect.Rebind(countQ), args...).Scan(&total); err != nil {
		return types.Page{}, fmt.Errorf("counting %s: %w", t.name, err)
	}

	selectQ := fmt.Sprintf("SELECT %s FROM %s%s%s", t.columns(), t.name, cond, tail)
	rows, err := t.db.QueryContext(ctx, t.dialect.Rebind(selectQ), args...)
	if err != nil {
		return types.Page{}, fmt.Errorf("fetching %s: %w", t.name, err)
	}
	defer rows.Close()

	page := types.Page{Documents: []any{}, Total: total}
	for rows.Next() {
		doc, err := t.scan(rows)
		if err != nil {
			return types.Page{}, fmt.Errorf("hydrating %s: %w", t.name, err)
		}
		page.Documents = append(page.Documents, doc)
	}
	if err := rows.Err(); err != nil {
		return types.Page{}, fmt.Errorf("iterating %s: %w", t.name, err)
	}
	return page, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scan hydrates a document from one row of t.fields columns.
func (t *Table) scan(row scanner) (types.Document, error) {
	vals := make([]sql.NullString, len(t.fields))
	dest := make([]any, len(vals))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	doc := types.NewDocument(t.name)
	for i, f := range t.fields {
		if err := doc.SetField(f, vals[i].String); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
