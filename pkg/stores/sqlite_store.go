package stores

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4/database"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"

	"github.com/biosignalml/tstore/pkg/triplestore"

	// SQLite driver
	_ "modernc.org/sqlite"
)

// sqliteMemory names an in-memory sqlite store.
const sqliteMemory = ":memory:"

var sqliteDialect = dialect{
	name:       "sqlite",
	migrations: "migrations/sqlite",
	driver: func(_ context.Context, db *sql.DB) (database.Driver, func() error, error) {
		// The sqlite driver works on db directly; its Close would close db.
		drv, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
		return drv, func() error { return nil }, err
	},
	tableExists: `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
}

// sqlitePath resolves a store name to a database file.
func (e *Engine) sqlitePath(name string) string {
	if name == sqliteMemory || filepath.IsAbs(name) || e.cfg.DataDir == "" {
		return name
	}
	return filepath.Join(e.cfg.DataDir, name)
}

// sqliteDSN builds a modernc.org/sqlite URI. Without create the file must
// already exist; with write=no it is opened read-only.
func sqliteDSN(path string, flags storageFlags) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")

	if path == sqliteMemory {
		return "file::memory:?" + params.Encode()
	}

	switch {
	case flags.create:
		params.Set("mode", "rwc")
	case flags.writable:
		params.Set("mode", "rw")
	default:
		params.Set("mode", "ro")
	}
	if flags.writable {
		params.Add("_pragma", "journal_mode(WAL)")
		params.Add("_pragma", "synchronous(NORMAL)")
	}
	return "file:" + filepath.ToSlash(path) + "?" + params.Encode()
}

func (e *Engine) openSQLite(ctx context.Context, name string, flags storageFlags, _ *triplestore.Options, release func()) (triplestore.Storage, error) {
	path := e.sqlitePath(name)
	memory := path == sqliteMemory

	if !memory {
		if flags.create {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create store directory: %w", err)
			}
		} else if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("sqlite store %q: %w", name, triplestore.ErrStoreNotFound)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(path, flags))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if memory {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(e.cfg.MaxOpenConns)
		db.SetMaxIdleConns(e.cfg.MaxIdleConns)
		db.SetConnMaxLifetime(e.cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	st, err := openSQLStorage(ctx, db, sqliteDialect, BackendSQLite, name, flags, release)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	e.log.Debug().
		Str("store", name).
		Str("path", path).
		Msg("sqlite store ready")
	return st, nil
}
