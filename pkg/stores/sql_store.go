package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/biosignalml/tstore/pkg/triplestore"
)

//go:embed migrations
var migrationsFS embed.FS

// dialect captures what differs between the SQL backends.
type dialect struct {
	name string

	// migrations is the directory under migrationsFS.
	migrations string

	// driver wraps db for golang-migrate. done releases whatever the driver
	// holds without closing db.
	driver func(ctx context.Context, db *sql.DB) (drv database.Driver, done func() error, err error)

	// tableExists counts tables with the given name; one placeholder.
	tableExists string

	// numbered placeholders ($1, $2, ...) instead of '?'.
	numbered bool
}

// rebind rewrites '?' placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// migrate brings the schema up to date.
func (d dialect) migrate(ctx context.Context, db *sql.DB) (err error) {
	sourceDriver, err := iofs.New(migrationsFS, d.migrations)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	defer sourceDriver.Close()

	driver, done, err := d.driver(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}
	defer func() {
		if derr := done(); derr != nil && err == nil {
			err = fmt.Errorf("failed to release migration driver: %w", derr)
		}
	}()

	m, err := migrate.NewWithInstance("iofs", sourceDriver, d.name, driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// openSQLStorage binds db to the model called name, creating schema and
// model when flags.create is set. It does not close db on failure.
func openSQLStorage(ctx context.Context, db *sql.DB, d dialect, backend, name string, flags storageFlags, release func()) (*SQLStorage, error) {
	if flags.create {
		if !flags.writable {
			return nil, fmt.Errorf("create store %q: %w", name, triplestore.ErrReadOnly)
		}
		if err := d.migrate(ctx, db); err != nil {
			return nil, fmt.Errorf("create store %q: %w", name, err)
		}
	}

	var tables int
	if err := db.QueryRowContext(ctx, d.rebind(d.tableExists), "models").Scan(&tables); err != nil {
		return nil, fmt.Errorf("inspect store %q: %w", name, err)
	}
	if tables == 0 {
		return nil, fmt.Errorf("%s store %q has no schema: %w", backend, name, triplestore.ErrStoreNotFound)
	}

	modelID, err := lookupModel(ctx, db, d, name)
	if errors.Is(err, sql.ErrNoRows) && flags.create {
		modelID, err = insertModel(ctx, db, d, name)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s store %q: %w", backend, name, triplestore.ErrStoreNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load store %q: %w", name, err)
	}

	return &SQLStorage{
		name:    name,
		backend: backend,
		db:      db,
		dialect: d,
		modelID: modelID,
		flags:   flags,
		release: release,
	}, nil
}

func lookupModel(ctx context.Context, db *sql.DB, d dialect, name string) (int64, error) {
	var id int64
	err := db.QueryRowContext(ctx, d.rebind(`SELECT id FROM models WHERE name = ?`), name).Scan(&id)
	return id, err
}

func insertModel(ctx context.Context, db *sql.DB, d dialect, name string) (int64, error) {
	if _, err := db.ExecContext(ctx, d.rebind(`INSERT INTO models (name) VALUES (?) ON CONFLICT (name) DO NOTHING`), name); err != nil {
		return 0, fmt.Errorf("failed to create model: %w", err)
	}
	return lookupModel(ctx, db, d, name)
}

// SQLStorage is a storage kept in a SQL database. Several stores may share
// one database; each is a row in models and owns its statements.
type SQLStorage struct {
	name    string
	backend string
	db      *sql.DB
	dialect dialect
	modelID int64
	flags   storageFlags
	release func()

	mu     sync.Mutex
	closed bool
}

func (s *SQLStorage) Name() string { return s.name }

// DB returns the underlying sql.DB.
func (s *SQLStorage) DB() *sql.DB { return s.db }

func (s *SQLStorage) check(write bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%s store %q: %w", s.backend, s.name, triplestore.ErrClosed)
	}
	if write && !s.flags.writable {
		return fmt.Errorf("%s store %q: %w", s.backend, s.name, triplestore.ErrReadOnly)
	}
	return nil
}

func (s *SQLStorage) Add(ctx context.Context, quads ...triplestore.Quad) error {
	if err := s.check(true); err != nil {
		return err
	}
	if err := validateQuads(quads, s.flags.contexts); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.insert(ctx, tx, quads)
	})
}

func (s *SQLStorage) insert(ctx context.Context, tx *sql.Tx, quads []triplestore.Quad) error {
	if len(quads) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, s.dialect.rebind(`
		INSERT INTO statements (model_id, subject, predicate, object, context)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, q := range quads {
		if _, err := stmt.ExecContext(ctx, s.modelID, q.Subject, q.Predicate, q.Object, q.Context); err != nil {
			return fmt.Errorf("failed to add statement: %w", err)
		}
	}
	return nil
}

func (s *SQLStorage) Remove(ctx context.Context, q triplestore.Quad) error {
	if err := s.check(true); err != nil {
		return err
	}
	query := s.dialect.rebind(`
		DELETE FROM statements
		WHERE model_id = ? AND subject = ? AND predicate = ? AND object = ? AND context = ?
	`)
	if _, err := s.db.ExecContext(ctx, query, s.modelID, q.Subject, q.Predicate, q.Object, q.Context); err != nil {
		return fmt.Errorf("failed to remove statement: %w", err)
	}
	return nil
}

func (s *SQLStorage) Match(ctx context.Context, p triplestore.Pattern) ([]triplestore.Quad, error) {
	if err := s.check(false); err != nil {
		return nil, err
	}

	query := `SELECT subject, predicate, object, context FROM statements WHERE model_id = ?`
	args := []any{s.modelID}
	for _, f := range []struct {
		column string
		value  string
	}{
		{"subject", p.Subject},
		{"predicate", p.Predicate},
		{"object", p.Object},
		{"context", p.Context},
	} {
		if f.value != "" {
			query += " AND " + f.column + " = ?"
			args = append(args, f.value)
		}
	}
	query += " ORDER BY context, subject, predicate, object"

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to match statements: %w", err)
	}
	defer rows.Close()

	var quads []triplestore.Quad
	for rows.Next() {
		var q triplestore.Quad
		if err := rows.Scan(&q.Subject, &q.Predicate, &q.Object, &q.Context); err != nil {
			return nil, fmt.Errorf("failed to scan statement: %w", err)
		}
		quads = append(quads, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate statements: %w", err)
	}
	return quads, nil
}

func (s *SQLStorage) Size(ctx context.Context) (int64, error) {
	if err := s.check(false); err != nil {
		return 0, err
	}
	var n int64
	query := s.dialect.rebind(`SELECT COUNT(*) FROM statements WHERE model_id = ?`)
	if err := s.db.QueryRowContext(ctx, query, s.modelID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count statements: %w", err)
	}
	return n, nil
}

func (s *SQLStorage) Contexts(ctx context.Context) ([]string, error) {
	if err := s.check(false); err != nil {
		return nil, err
	}
	query := s.dialect.rebind(`
		SELECT DISTINCT context FROM statements
		WHERE model_id = ? AND context <> ''
		ORDER BY context
	`)
	rows, err := s.db.QueryContext(ctx, query, s.modelID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contexts: %w", err)
	}
	defer rows.Close()

	contexts := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("failed to scan context: %w", err)
		}
		contexts = append(contexts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contexts: %w", err)
	}
	return contexts, nil
}

func (s *SQLStorage) ReplaceContext(ctx context.Context, graph string, quads []triplestore.Quad) error {
	if err := s.check(true); err != nil {
		return err
	}
	placed := inContext(quads, graph)
	if err := validateQuads(placed, s.flags.contexts); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		query := s.dialect.rebind(`DELETE FROM statements WHERE model_id = ? AND context = ?`)
		if _, err := tx.ExecContext(ctx, query, s.modelID, graph); err != nil {
			return fmt.Errorf("failed to clear context: %w", err)
		}
		return s.insert(ctx, tx, placed)
	})
}

func (s *SQLStorage) DeleteContext(ctx context.Context, graph string) (int64, error) {
	if err := s.check(true); err != nil {
		return 0, err
	}
	query := s.dialect.rebind(`DELETE FROM statements WHERE model_id = ? AND context = ?`)
	res, err := s.db.ExecContext(ctx, query, s.modelID, graph)
	if err != nil {
		return 0, fmt.Errorf("failed to delete context: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted statements: %w", err)
	}
	return n, nil
}

// Close closes the database connection. Only the first call has any effect.
func (s *SQLStorage) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.db.Close()
	if s.release != nil {
		s.release()
	}
	return err
}

func (s *SQLStorage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
