// Package postgres persists world settings and the roll log in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/config"
)

// Pool is a pgx pool labelled with the participant it serves.
type Pool struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// Connect opens a pool and waits for the server to answer a ping.
// appName is reported to the server as application_name so that sessions of
// different participants sharing one database can be told apart.
//
// Precondition: cfg passes config validation for the postgres driver.
// Postcondition: Returns a pool ready for queries, or an error with no pool left open.
func Connect(ctx context.Context, cfg config.DatabaseConfig, appName string, logger *zap.Logger) (*Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	if appName != "" {
		pc.ConnConfig.RuntimeParams["application_name"] = appName
	}

	db, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &Pool{db: db, logger: logger}, nil
}

// Ping checks that the database answers within timeout.
func (p *Pool) Ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.db.Ping(ctx)
}

// Watch pings the database every interval until ctx is done. A failed ping
// is logged once per outage and the recovery is logged when pings succeed again.
//
// Precondition: interval > 0.
// Postcondition: Returns nil when ctx is done.
func (p *Pool) Watch(ctx context.Context, interval, timeout time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	down := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		err := p.Ping(ctx, timeout)
		switch {
		case ctx.Err() != nil:
			return nil
		case err != nil && !down:
			down = true
			p.logger.Warn("database unreachable", zap.Error(err))
		case err == nil && down:
			down = false
			p.logger.Info("database reachable again")
		}
	}
}

// Close releases every connection. The pool is unusable afterwards.
func (p *Pool) Close() {
	p.db.Close()
}

// DB exposes the pgx pool to the repositories.
func (p *Pool) DB() *pgxpool.Pool {
	return p.db
}
