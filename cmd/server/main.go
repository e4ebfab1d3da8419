package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"chainreaction/internal/analytics"
	"chainreaction/internal/config"
	"chainreaction/internal/game"
	"chainreaction/internal/server"
	"chainreaction/internal/storage"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

// run owns every resource so its deferred closes happen before main exits.
func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))

	var store storage.Store
	if cfg.PostgresURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		pg, err := storage.NewPostgresStore(ctx, cfg.PostgresURL)
		if err != nil {
			logger.Warn("postgres disabled, using in-memory leaderboard", "err", err)
		} else {
			if err := pg.EnsureTables(ctx); err != nil {
				logger.Error("postgres ensure tables failed", "err", err)
			}
			defer pg.Close()
			store = pg
		}
		cancel()
	}

	producer := analytics.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
	defer producer.Close()

	srv := server.New(server.Config{
		ReconnectWindow: cfg.ReconnectWindow,
		StepDelay:       cfg.StepDelay,
		Store:           store,
		Analytics:       producer,
		Logger:          logger,
		ManagerOptions:  []game.Option{game.WithProfileTuner(cfg.TuneProfile)},
	})

	logger.Info("server listening", "addr", cfg.Addr, "postgres", store != nil, "kafka", producer != nil)
	return srv.Run(cfg.Addr)
}
