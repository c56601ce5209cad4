package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS processed_resources (
	resource_id TEXT PRIMARY KEY,
	processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// SQLite is the default file-backed ledger.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the ledger file at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	// _time_format=sqlite makes the driver write and parse timestamps in
	// SQLite's own format.
	db, err := sql.Open("sqlite", path+"?_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	var one int
	err := s.db.QueryRowContext(ctx, "SELECT 1 FROM processed_resources WHERE resource_id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return true, nil
}

func (s *SQLite) Mark(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO processed_resources (resource_id) VALUES (?)", id); err != nil {
		return fmt.Errorf("ledger mark: %w", err)
	}
	return nil
}

func (s *SQLite) ProcessedAt(ctx context.Context, id string) (time.Time, error) {
	var unix int64
	err := s.db.QueryRowContext(ctx,
		"SELECT CAST(strftime('%s', processed_at) AS INTEGER) FROM processed_resources WHERE resource_id = ?", id).Scan(&unix)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, pferrors.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("ledger lookup: %w", err)
	}
	return time.Unix(unix, 0).UTC(), nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
