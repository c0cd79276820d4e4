package main

import (
	"fmt"
	"os"

	"github.com/Tung090505/Shop-game-sub000/internal/config"
	"github.com/Tung090505/Shop-game-sub000/internal/logging"
	"github.com/Tung090505/Shop-game-sub000/internal/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL must be set to run migrations")
		os.Exit(1)
	}

	if err := migrations.Up(cfg.DatabaseURL); err != nil {
		logger.Error("migration run failed", "error", err)
		os.Exit(1)
	}

	logger.Info("migration run finished successfully")
}
