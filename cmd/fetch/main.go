package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"epiclim/internal"
	"epiclim/internal/bootstrap"
	"epiclim/internal/config"
	"epiclim/internal/observability"
)

// fetch retrieves every example dataset into the local cache, so the
// dashboard can run offline afterwards.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	logger := internal.NewDefaultLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.BuildExampleStore(ctx, cfg, observability.NewMetrics(), logger)
	if err != nil {
		log.Fatal("Failed to build data sources:", err)
	}

	logger.Info("Fetching all example datasets into %s", cfg.Data.CacheDir)
	if err := store.MakeAllExamples(ctx); err != nil {
		log.Fatal("Fetch finished with failures:", err)
	}
	logger.Info("All example datasets cached")
}
