package storage

import (
	"strings"
	"time"
)

// Supported database/sql driver names.
const (
	DriverSQLite3  = "sqlite3"  // mattn/go-sqlite3, needs cgo
	DriverSQLite   = "sqlite"   // modernc.org/sqlite, pure Go
	DriverPostgres = "postgres" // lib/pq
	DriverPgx      = "pgx"      // jackc/pgx/v5/stdlib
)

// Config selects the database the persisters write to.
type Config struct {
	Driver          string        `toml:"driver" env:"DRIVER"`
	DSN             string        `toml:"dsn" env:"DSN"`
	MaxOpenConns    int           `toml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	// Debug logs every query at debug level.
	Debug bool `toml:"debug" env:"DEBUG"`
}

// DefaultConfig returns an in-memory SQLite database.
func DefaultConfig() Config {
	return Config{
		Driver:       DriverSQLite3,
		DSN:          "file::memory:?cache=shared",
		MaxOpenConns: 1,
	}
}

// IsPostgres reports whether the driver talks to PostgreSQL.
func (c Config) IsPostgres() bool {
	return c.Driver == DriverPostgres || c.Driver == DriverPgx
}

// Validate checks the driver and connection settings.
func (c Config) Validate() error {
	switch c.Driver {
	case DriverSQLite3, DriverSQLite, DriverPostgres, DriverPgx:
	default:
		return &ConfigError{Field: "Driver", Message: "must be one of " + strings.Join(Drivers(), ", ")}
	}
	if strings.TrimSpace(c.DSN) == "" {
		return &ConfigError{Field: "DSN", Message: "must not be empty"}
	}
	if c.MaxOpenConns < 0 {
		return &ConfigError{Field: "MaxOpenConns", Message: "must not be negative"}
	}
	if c.ConnMaxLifetime < 0 {
		return &ConfigError{Field: "ConnMaxLifetime", Message: "must not be negative"}
	}
	return nil
}

// Drivers lists the supported driver names.
func Drivers() []string {
	return []string{DriverSQLite3, DriverSQLite, DriverPostgres, DriverPgx}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "storage config error in field " + e.Field + ": " + e.Message
}
