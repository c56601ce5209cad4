// Package ledger records which messages have been processed, keyed by
// Message-ID. Entries are write-once: marking an id twice keeps the first
// timestamp.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
)

// Drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// DefaultPath is the sqlite file used when none is configured.
const DefaultPath = "./eml_processing.db"

// DefaultKeyPrefix namespaces redis keys.
const DefaultKeyPrefix = "emlsync:processed:"

// Ledger is the processed-message store.
type Ledger interface {
	// Exists reports whether id has been marked. An empty id is never marked.
	Exists(ctx context.Context, id string) (bool, error)
	// Mark records id. Marking an existing id is a no-op; an empty id is ignored.
	Mark(ctx context.Context, id string) error
	// ProcessedAt returns when id was marked, or pferrors.ErrNotFound.
	ProcessedAt(ctx context.Context, id string) (time.Time, error)
	Close() error
}

// Config selects and configures a ledger backend.
type Config struct {
	Driver string `yaml:"driver"`
	// Path is the sqlite database file.
	Path string `yaml:"path"`
	// DSN is the postgres connection string or the redis URL.
	DSN       string `yaml:"dsn"`
	KeyPrefix string `yaml:"key_prefix"`
	// ConnectAttempts bounds connection retries for network backends.
	ConnectAttempts int           `yaml:"connect_attempts"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// DefaultConfig returns the sqlite ledger at DefaultPath.
func DefaultConfig() Config {
	return Config{
		Driver:          DriverSQLite,
		Path:            DefaultPath,
		KeyPrefix:       DefaultKeyPrefix,
		ConnectAttempts: 3,
		RetryDelay:      time.Second,
	}
}

// Validate checks that the selected driver has what it needs.
func (c Config) Validate() error {
	switch c.driver() {
	case DriverSQLite:
		if c.Path == "" {
			return fmt.Errorf("%w: ledger path is required for sqlite", pferrors.ErrValidation)
		}
	case DriverPostgres, DriverRedis:
		if c.DSN == "" {
			return fmt.Errorf("%w: ledger dsn is required for %s", pferrors.ErrValidation, c.driver())
		}
	case DriverMemory:
	default:
		return fmt.Errorf("%w: unknown ledger driver %q", pferrors.ErrValidation, c.Driver)
	}
	return nil
}

func (c Config) driver() string {
	d := strings.ToLower(strings.TrimSpace(c.Driver))
	if d == "" {
		return DriverSQLite
	}
	return d
}

// Open connects to the configured backend and ensures its schema exists.
func Open(ctx context.Context, cfg Config) (Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := DefaultConfig()
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = d.KeyPrefix
	}
	if cfg.ConnectAttempts <= 0 {
		cfg.ConnectAttempts = d.ConnectAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = d.RetryDelay
	}

	switch cfg.driver() {
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN, cfg.ConnectAttempts, cfg.RetryDelay)
	case DriverRedis:
		return OpenRedis(ctx, cfg.DSN, cfg.KeyPrefix)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return OpenSQLite(ctx, cfg.Path)
	}
}
