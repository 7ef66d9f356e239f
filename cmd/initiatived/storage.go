package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/chatlog"
	"github.com/cory-johannsen/action-initiative/internal/config"
	"github.com/cory-johannsen/action-initiative/internal/server"
	"github.com/cory-johannsen/action-initiative/internal/settings"
	"github.com/cory-johannsen/action-initiative/internal/storage/postgres"
	"github.com/cory-johannsen/action-initiative/internal/storage/sqlite"
)

const pingTimeout = 5 * time.Second

// backends are the world settings and chat log selected by storage.driver.
type backends struct {
	settings settings.Backend
	chat     chatlog.Log
	close    func()
}

func openStorage(ctx context.Context, cfg config.Config, lc *server.Lifecycle, logger *zap.Logger) (*backends, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return &backends{settings: settings.NewMemory(), chat: chatlog.NewMemory(), close: func() {}}, nil

	case "postgres":
		dbStart := time.Now()
		if cfg.Database.AutoMigrate {
			v, err := postgres.Migrate(cfg.Database.DSN(), false, 0)
			if err != nil {
				return nil, err
			}
			logger.Info("schema ready", zap.Uint("version", v.Version), zap.Bool("changed", v.Changed))
		}
		pool, err := postgres.Connect(ctx, cfg.Database, "initiatived-"+cfg.Participant.ID, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		if cfg.Database.HealthInterval > 0 {
			lc.Add("postgres-health", &server.FuncService{
				StartFn: func(ctx context.Context) error {
					return pool.Watch(ctx, cfg.Database.HealthInterval, pingTimeout)
				},
			})
		}
		return &backends{
			settings: postgres.NewSettingsRepository(pool.DB()),
			chat:     postgres.NewChatRepository(pool.DB()),
			close:    pool.Close,
		}, nil

	case "sqlite":
		store, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		logger.Info("sqlite store opened", zap.String("path", cfg.Storage.SQLitePath))
		return &backends{
			settings: store,
			chat:     store.ChatLog(),
			close: func() {
				if err := store.Close(); err != nil {
					logger.Warn("closing sqlite store", zap.Error(err))
				}
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
