// Package testutil starts disposable PostgreSQL servers for store tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/action-initiative/internal/config"
	"github.com/cory-johannsen/action-initiative/internal/storage/postgres"
)

const (
	pgImage    = "postgres:16-alpine"
	pgUser     = "initiative"
	pgPassword = "initiative"
	pgDatabase = "initiative_test"
)

// Postgres is a running PostgreSQL container with a connected pool.
type Postgres struct {
	Config config.DatabaseConfig
	Pool   *postgres.Pool
}

// StartPostgres runs a PostgreSQL container for the duration of t, applies
// the embedded schema and connects a pool. Tests are skipped under -short.
//
// Precondition: a Docker daemon is reachable.
func StartPostgres(t *testing.T) *Postgres {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container skipped in -short mode")
	}
	ctx := context.Background()
	began := time.Now()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        pgImage,
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     pgUser,
				"POSTGRES_PASSWORD": pgPassword,
				"POSTGRES_DB":       pgDatabase,
			},
			// The server logs readiness once for the init pass and once for real.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(45 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("starting %s: %v", pgImage, err)
	}
	t.Cleanup(func() { _ = ctr.Terminate(context.Background()) })

	host, err := ctr.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	cfg := config.DatabaseConfig{
		Host:            host,
		Port:            port.Int(),
		User:            pgUser,
		Password:        pgPassword,
		Name:            pgDatabase,
		SSLMode:         "disable",
		MaxConns:        4,
		MinConns:        1,
		MaxConnLifetime: 5 * time.Minute,
	}
	if _, err := postgres.Migrate(cfg.DSN(), false, 0); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}
	pool, err := postgres.Connect(ctx, cfg, t.Name(), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("connecting to test database: %v", err)
	}
	t.Cleanup(pool.Close)

	t.Logf("postgres ready at %s:%d [%s]", host, cfg.Port, time.Since(began))
	return &Postgres{Config: cfg, Pool: pool}
}
