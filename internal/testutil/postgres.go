// Package testutil starts disposable infrastructure for integration tests.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"bankist-ledger/internal/repository"
)

const (
	PostgresImage    = "postgres:15-alpine"
	PostgresDB       = "bankist"
	PostgresUser     = "postgres"
	PostgresPassword = "password"
)

// Postgres is a migrated PostgreSQL container.
type Postgres struct {
	Container *postgres.PostgresContainer
	URL       string
	Host      string
	Port      string
}

// StartPostgres runs a PostgreSQL container and applies the schema migrations.
func StartPostgres(ctx context.Context) (*Postgres, error) {
	ctr, err := postgres.Run(ctx, PostgresImage,
		postgres.WithDatabase(PostgresDB),
		postgres.WithUsername(PostgresUser),
		postgres.WithPassword(PostgresPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	url, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get mapped port: %w", err)
	}

	if err := repository.RunMigrations(zap.NewNop(), url); err != nil {
		_ = ctr.Terminate(ctx)
		return nil, err
	}

	return &Postgres{Container: ctr, URL: url, Host: host, Port: port.Port()}, nil
}

// Open returns a connection pool to the container database.
func (p *Postgres) Open() (*sql.DB, error) {
	db, err := sql.Open("postgres", p.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	return db, db.Ping()
}

// Reset removes every row so each test starts from an empty ledger.
func (p *Postgres) Reset(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `TRUNCATE movements, accounts RESTART IDENTITY CASCADE`)
	return err
}

func (p *Postgres) Terminate(ctx context.Context) error {
	return p.Container.Terminate(ctx)
}
