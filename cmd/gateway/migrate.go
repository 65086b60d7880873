package main

import (
	"fmt"
	"log/slog"

	"github.com/converso/gateway/internal/config"
	"github.com/converso/gateway/internal/db"
	"github.com/converso/gateway/internal/logger"
)

func runMigrate() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	if err := db.Migrate(cfg.Postgres); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.L.Info("migrations applied", slog.String("database", cfg.Postgres.Database))
	return nil
}
