package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"chainreaction/internal/analytics"
	"chainreaction/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("analytics consumer stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	brokers := cfg.KafkaBrokers
	if len(brokers) == 0 {
		brokers = []string{"localhost:9092"}
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   cfg.KafkaTopic,
		GroupID: "chainreaction-analytics",
	})
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("analytics consumer listening", "brokers", brokers, "topic", cfg.KafkaTopic)

	metrics := analytics.NewMetrics()
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				metrics.Log(logger)
			}
		}
	}()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				metrics.Log(logger)
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		var e analytics.Event
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			logger.Warn("failed to unmarshal event", "err", err)
			continue
		}
		metrics.Record(e)
		logger.Debug("event", "event", e.Event, "game", e.Payload["gameId"])
	}
}
