package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/bissquit/inspection-sync/internal/kv/postgres"
	pgutil "github.com/bissquit/inspection-sync/internal/pkg/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a postgres testcontainer.
type PostgresContainer struct {
	*tcpostgres.PostgresContainer
	ConnectionString string
}

// NewPostgresContainer creates a new PostgreSQL container for testing.
func NewPostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		ConnectionString:  connStr,
	}, nil
}

// MigratedPool applies the kv store migrations and returns a connected pool.
func (c *PostgresContainer) MigratedPool(ctx context.Context) (*pgxpool.Pool, error) {
	if err := pgutil.Migrate(c.ConnectionString, postgres.Migrations, postgres.MigrationsDir); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	pool, err := pgutil.Connect(ctx, pgutil.Config{
		URL:             c.ConnectionString,
		MaxOpenConns:    10,
		ConnectAttempts: 3,
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return pool, nil
}
