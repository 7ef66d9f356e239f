package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettingsRepository stores world-scoped integer settings in world_settings.
// It implements settings.Backend.
type SettingsRepository struct {
	db *pgxpool.Pool
}

// NewSettingsRepository creates a SettingsRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewSettingsRepository(db *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the value stored under key.
//
// Postcondition: Returns (0, false, nil) when the key has never been set.
func (r *SettingsRepository) Get(ctx context.Context, key string) (int64, bool, error) {
	var v int64
	err := r.db.QueryRow(ctx,
		`SELECT value FROM world_settings WHERE key = $1`, key,
	).Scan(&v)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("querying setting %s: %w", key, err)
	}
	return v, true, nil
}

// Set upserts value under key.
func (r *SettingsRepository) Set(ctx context.Context, key string, value int64) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO world_settings (key, value, updated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("storing setting %s: %w", key, err)
	}
	return nil
}
