package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"bankist-ledger/internal/config"
	"bankist-ledger/internal/logging"
	"bankist-ledger/internal/repository"
	"bankist-ledger/internal/seed"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Seeding failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := repository.RunMigrations(logger, cfg.GetMigrationURL()); err != nil {
		return err
	}

	db, err := sql.Open("postgres", cfg.GetDBConnectionString())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	created, err := seed.Seed(ctx, repository.NewStore(db, logger), seed.Fixtures(), logger)
	if err != nil {
		return err
	}

	logger.Info("Seeding complete", zap.Int("accounts_created", len(created)))
	return nil
}
