package stores

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"

	"github.com/biosignalml/tstore/pkg/triplestore"

	// PostgreSQL driver
	_ "github.com/lib/pq"
)

var postgresDialect = dialect{
	name:       "postgres",
	migrations: "migrations/postgres",
	driver: func(ctx context.Context, db *sql.DB) (database.Driver, func() error, error) {
		// A dedicated connection keeps the advisory lock and the migration
		// on one session; closing the driver returns it to the pool.
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		drv, err := migratepostgres.WithConnection(ctx, conn, &migratepostgres.Config{})
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return drv, drv.Close, nil
	},
	tableExists: `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = ?`,
	numbered:    true,
}

// postgresKeys maps connection options onto lib/pq keywords.
var postgresKeys = []struct {
	option  string
	keyword string
}{
	{"host", "host"},
	{"port", "port"},
	{"database", "dbname"},
	{"user", "user"},
	{"password", "password"},
	{"sslmode", "sslmode"},
	{"connect_timeout", "connect_timeout"},
}

// postgresDSN builds a lib/pq keyword/value connection string from opts.
// sslmode defaults to disable.
func postgresDSN(opts *triplestore.Options) string {
	var parts []string
	for _, k := range postgresKeys {
		v, ok := opts.Get(k.option)
		if !ok || v == "" {
			continue
		}
		parts = append(parts, k.keyword+"="+quoteDSNValue(v))
	}
	if !opts.Has("sslmode") {
		parts = append(parts, "sslmode=disable")
	}
	return strings.Join(parts, " ")
}

func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func (e *Engine) openPostgres(ctx context.Context, name string, flags storageFlags, opts *triplestore.Options, release func()) (triplestore.Storage, error) {
	db, err := sql.Open("postgres", postgresDSN(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(e.cfg.MaxOpenConns)
	db.SetMaxIdleConns(e.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(e.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	st, err := openSQLStorage(ctx, db, postgresDialect, BackendPostgres, name, flags, release)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	e.log.Debug().Str("store", name).Msg("postgresql store ready")
	return st, nil
}
