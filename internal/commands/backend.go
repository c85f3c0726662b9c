package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/stravahub/internal/domain"
	"example.com/stravahub/internal/persistence/postgres"
	"example.com/stravahub/internal/persistence/sqlite"
)

// Backend bundles the store handles a command needs.
type Backend struct {
	Name     string
	Sessions func() domain.ActivityStore
	Reader   domain.ActivityReader
	Runs     domain.RunLog
	// Migrate applies pending schema changes and returns what it applied.
	Migrate func(ctx context.Context) ([]string, error)
	close   func() error
}

// Close releases the underlying database handle.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenBackend opens Postgres when a URL is set and the SQLite file otherwise.
func OpenBackend(ctx context.Context, flags *Flags) (*Backend, error) {
	if flags.PostgresURL != "" {
		return openPostgres(ctx, flags.PostgresURL)
	}
	return openSQLite(flags.SQLitePath)
}

func openPostgres(ctx context.Context, url string) (*Backend, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	repo := postgres.NewRepository(pool)
	return &Backend{
		Name:     "postgres",
		Sessions: func() domain.ActivityStore { return repo.Session() },
		Reader:   repo,
		Runs:     repo,
		Migrate: func(ctx context.Context) ([]string, error) {
			return postgres.Migrate(ctx, pool)
		},
		close: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

func openSQLite(path string) (*Backend, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	return &Backend{
		Name:     "sqlite",
		Sessions: func() domain.ActivityStore { return store.Session() },
		Reader:   store,
		Runs:     store,
		// sqlite.Open already applied the embedded schema.
		Migrate: func(context.Context) ([]string, error) { return nil, nil },
		close:   store.Close,
	}, nil
}
