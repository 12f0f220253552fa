package stores

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Backend names understood by Engine.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgresql"
	BackendMemory   = "memory"
)

// ErrUnknownBackend is returned when a storage is requested on a backend the
// engine does not provide.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Config holds engine configuration.
type Config struct {
	// DataDir is where relative sqlite store names are resolved.
	DataDir string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Logger receives engine diagnostics. Defaults to a no-op logger.
	Logger *zerolog.Logger
}

func (c *Config) setDefaults() {
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
}

// storageFlags are the option values every backend honours.
type storageFlags struct {
	create   bool
	contexts bool
	writable bool
}
