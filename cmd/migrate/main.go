// Package main applies or rolls back the PostgreSQL schema for the world
// settings and chat log tables.
package main

import (
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/action-initiative/internal/config"
	"github.com/cory-johannsen/action-initiative/internal/observability"
	"github.com/cory-johannsen/action-initiative/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	direction := flag.String("direction", "up", "migration direction: up or down")
	steps := flag.Int("steps", 0, "number of versions to move (0 = all)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	if *direction != "up" && *direction != "down" {
		logger.Fatal("invalid direction, want up or down", zap.String("direction", *direction))
	}

	v, err := postgres.Migrate(cfg.Database.DSN(), *direction == "down", *steps)
	if err != nil {
		logger.Fatal("migration failed",
			zap.String("host", cfg.Database.Host),
			zap.String("direction", *direction),
			zap.Error(err),
		)
	}
	logger.Info("schema migrated",
		zap.String("direction", *direction),
		zap.Bool("changed", v.Changed),
		zap.Uint("version", v.Version),
		zap.Bool("dirty", v.Dirty),
		zap.Duration("elapsed", time.Since(start)),
	)
}
