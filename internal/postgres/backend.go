// Package postgres implements the Postgres storage backend. The schema is
// managed by embedded goose migrations and always carries the unique
// (contact_id, segment_id) index.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mesh-intelligence/segments/internal/postgres/migrations"
	"github.com/mesh-intelligence/segments/internal/sqldoc"
	"github.com/mesh-intelligence/segments/pkg/types"
)

var _ types.Cupboard = (*Backend)(nil)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Dialect is the sqldoc dialect for Postgres.
var Dialect = sqldoc.Dialect{
	Name:              types.BackendPostgres,
	Numbered:          true,
	UnboundedLimit:    "ALL",
	IsUniqueViolation: isUniqueViolation,
	Match: func(col string) string {
		return col + " ILIKE ? ESCAPE '\\'"
	},
}

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Backend implements types.Cupboard over a Postgres database.
type Backend struct {
	mu       sync.RWMutex
	attached bool
	db       *sql.DB
	tables   map[string]*sqldoc.Table
}

// NewBackend creates a detached Postgres backend.
func NewBackend() *Backend {
	return &Backend{tables: make(map[string]*sqldoc.Table)}
}

// Attach connects to config.DSN, applies pending migrations and binds the
// standard tables. Returns ErrAlreadyAttached if already attached.
func (b *Backend) Attach(config types.Config) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.attached {
		return types.ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}
	if config.Backend != types.BackendPostgres {
		return fmt.Errorf("%w: postgres backend given %q", types.ErrBackendUnknown, config.Backend)
	}

	db, err := openDB(config.DSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	tables := make(map[string]*sqldoc.Table, len(types.StandardTableNames))
	for _, name := range types.StandardTableNames {
		t, err := sqldoc.NewTable(db, Dialect, name, nil)
		if err != nil {
			db.Close()
			return err
		}
		tables[name] = t
	}

	b.db = db
	b.tables = tables
	b.attached = true
	return nil
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against db.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

// Detach closes the connection pool. Detach is idempotent.
func (b *Backend) Detach() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.attached {
		return nil
	}
	b.attached = false
	b.tables = make(map[string]*sqldoc.Table)
	db := b.db
	b.db = nil
	return db.Close()
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

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
