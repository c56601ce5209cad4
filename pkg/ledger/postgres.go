package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS processed_resources (
	resource_id  TEXT PRIMARY KEY,
	processed_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Postgres stores the ledger in a shared database.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects with up to attempts tries and ensures the table exists.
func OpenPostgres(ctx context.Context, dsn string, attempts int, retryDelay time.Duration) (*Postgres, error) {
	pool, err := connectWithRetry(ctx, dsn, attempts, retryDelay)
	if err != nil {
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

func connectWithRetry(ctx context.Context, dsn string, attempts int, retryDelay time.Duration) (*pgxpool.Pool, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err := connect(ctx, dsn)
		if err == nil {
			return pool, nil
		}
		lastErr = err

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", attempts, lastErr)
}

func (p *Postgres) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	var exists bool
	err := p.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM processed_resources WHERE resource_id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ledger lookup: %w", err)
	}
	return exists, nil
}

func (p *Postgres) Mark(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := p.pool.Exec(ctx,
		"INSERT INTO processed_resources (resource_id) VALUES ($1) ON CONFLICT (resource_id) DO NOTHING", id)
	if err != nil {
		return fmt.Errorf("ledger mark: %w", err)
	}
	return nil
}

func (p *Postgres) ProcessedAt(ctx context.Context, id string) (time.Time, error) {
	var at time.Time
	err := p.pool.QueryRow(ctx,
		"SELECT processed_at FROM processed_resources WHERE resource_id = $1", id).Scan(&at)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, pferrors.ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("ledger lookup: %w", err)
	}
	return at.UTC(), nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
