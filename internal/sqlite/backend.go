// Package sqlite implements the SQLite storage backend. SQLite is the query
// engine; one JSONL file per table in DataDir is the source of truth, loaded
// into a fresh database on every Attach.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/segments/internal/sqldoc"
	"github.com/mesh-intelligence/segments/pkg/types"
)

var _ types.Cupboard = (*Backend)(nil)

// foldFunc is a SQL function lowercasing text with Go's Unicode case
// mapping. SQLite's own LOWER only folds ASCII.
const foldFunc = "segments_fold"

func init() {
	if err := sqlite.RegisterDeterministicScalarFunction(foldFunc, 1, fold); err != nil {
		panic(fmt.Sprintf("registering %s: %v", foldFunc, err))
	}
}

func fold(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return nil, fmt.Errorf("%s: unsupported argument %T", foldFunc, v)
	}
}

// Dialect is the sqldoc dialect for SQLite.
var Dialect = sqldoc.Dialect{
	Name:              types.BackendSQLite,
	UnboundedLimit:    "-1",
	IsUniqueViolation: isUniqueViolation,
	Match: func(col string) string {
		return foldFunc + "(" + col + ") LIKE ? ESCAPE '\\'"
	},
}

// Backend implements the Cupboard interface using SQLite as the query engine
// and JSONL files as the source of truth.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	db       *sql.DB
	tables   map[string]*sqldoc.Table

	syncStrategy string
	persistMu    sync.Mutex      // serializes JSONL snapshots
	dirty        map[string]bool // tables awaiting persist under on_close

	duplicatesSkipped int
}

// NewBackend creates a new SQLite backend instance.
// The backend is not attached; call Attach with a Config to initialize.
func NewBackend() *Backend {
	return &Backend{
		tables: make(map[string]*sqldoc.Table),
		dirty:  make(map[string]bool),
	}
}

// GetTable returns a Table interface for the specified table name.
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

// Attach creates DataDir if needed, builds a fresh cupboard.db, and loads
// every JSONL file into it. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Backend != types.BackendSQLite {
		return fmt.Errorf("%w: sqlite backend given %q", types.ErrBackendUnknown, config.Backend)
	}

	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	config.DataDir = dataDir

	// The database is rebuilt from JSONL on every attach.
	dbPath := filepath.Join(dataDir, "cupboard.db")
	_ = os.Remove(dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)

	ddl := append(append([]string{}, schemaDDL...), indexDDL(config.UniqueRelations)...)
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return fmt.Errorf("applying schema: %w", err)
		}
	}

	b.db = db
	b.config = config
	b.syncStrategy = config.GetSyncStrategy()
	b.dirty = make(map[string]bool)
	b.duplicatesSkipped = 0

	tables := make(map[string]*sqldoc.Table, len(types.StandardTableNames))
	for _, name := range types.StandardTableNames {
		t, err := sqldoc.NewTable(db, Dialect, name, b.afterWrite)
		if err != nil {
			db.Close()
			return err
		}
		tables[name] = t
	}

	if err := b.loadAll(context.Background(), tables); err != nil {
		db.Close()
		return fmt.Errorf("load JSONL: %w", err)
	}
	if err := b.initJSONLFiles(); err != nil {
		db.Close()
		return err
	}

	b.tables = tables
	b.attached = true
	return nil
}

// Detach flushes pending JSONL writes and closes the database.
// Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}

	if err := b.flushDirty(context.Background()); err != nil {
		return fmt.Errorf("flush pending writes: %w", err)
	}
	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return err
		}
		b.db = nil
	}

	b.attached = false
	b.tables = make(map[string]*sqldoc.Table)
	return nil
}

// DuplicatesSkipped reports how many relation rows the last Attach dropped
// because they violated the unique pair index.
func (b *Backend) DuplicatesSkipped() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.duplicatesSkipped
}

// initJSONLFiles creates an empty JSONL file for every table that lacks one.
func (b *Backend) initJSONLFiles() error {
	for _, name := range types.StandardTableNames {
		path := jsonlFile(b.config.DataDir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

// afterWrite is the sqldoc write hook: persist now, or mark the table for
// persistence on Detach.
func (b *Backend) afterWrite(ctx context.Context, table string) error {
	if b.syncStrategy == types.SyncOnClose {
		b.persistMu.Lock()
		b.dirty[table] = true
		b.persistMu.Unlock()
		return nil
	}
	return b.persistTable(ctx, b.tableFor(table))
}

func (b *Backend) tableFor(name string) *sqldoc.Table {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tables[name]
}

// persistTable snapshots the table into its JSONL file.
func (b *Backend) persistTable(ctx context.Context, t *sqldoc.Table) error {
	if t == nil {
		return types.ErrCupboardDetached
	}
	b.persistMu.Lock()
	defer b.persistMu.Unlock()

	page, err := t.Fetch(ctx, types.Query{})
	if err != nil {
		return err
	}
	records := make([]json.RawMessage, 0, len(page.Documents))
	for _, d := range page.Documents {
		rec, err := encodeRecord(d.(types.Document))
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	return writeJSONL(jsonlFile(b.config.DataDir, t.Name()), records)
}

// flushDirty persists tables marked by on_close writes. Caller holds b.mu.
func (b *Backend) flushDirty(ctx context.Context) error {
	b.persistMu.Lock()
	var names []string
	for name := range b.dirty {
		names = append(names, name)
	}
	b.dirty = make(map[string]bool)
	b.persistMu.Unlock()

	var errs []error
	for _, name := range names {
		if err := b.persistTable(ctx, b.tables[name]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// loadAll replays every JSONL file into tables. Malformed records are
// skipped; relation rows rejected by the unique pair index are counted.
func (b *Backend) loadAll(ctx context.Context, tables map[string]*sqldoc.Table) error {
	for _, name := range types.StandardTableNames {
		records, err := readJSONL(jsonlFile(b.config.DataDir, name))
		if err != nil {
			return err
		}
		for _, rec := range records {
			doc, err := decodeRecord(name, rec)
			if err != nil {
				continue
			}
			if err := tables[name].Load(ctx, doc); err != nil {
				if errors.Is(err, types.ErrDuplicate) {
					b.duplicatesSkipped++
					continue
				}
				return fmt.Errorf("loading %s: %w", name, err)
			}
		}
	}
	return nil
}

// isUniqueViolation reports whether err is a SQLite unique constraint failure.
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
