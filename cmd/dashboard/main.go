package main

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"epiclim/adapters/postgres"
	"epiclim/app"
	"epiclim/internal"
	"epiclim/internal/bootstrap"
	"epiclim/internal/config"
	"epiclim/internal/observability"
	"epiclim/ports"
	"epiclim/ui"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}
	gin.SetMode(cfg.Server.GinMode)

	logger := internal.NewDefaultLogger()
	metrics := observability.NewMetrics()

	store, err := bootstrap.BuildExampleStore(context.Background(), cfg, metrics, logger)
	if err != nil {
		log.Fatal("Failed to build data sources:", err)
	}

	var jobs ports.JobRepository
	if cfg.Database.Enabled {
		db, err := sqlx.Connect("postgres", cfg.Database.URL)
		if err != nil {
			log.Fatal("Failed to connect to database:", err)
		}
		defer db.Close()
		jobs = postgres.NewJobRepository(db)
		logger.Info("Fetch job persistence enabled")
	}

	climateSvc := app.NewClimateService(store, jobs, metrics, logger)
	analysisSvc := app.NewAnalysisService(metrics, logger)
	epiSvc := app.NewEpiService(metrics, logger)

	if cfg.Ops.Enabled {
		ops := observability.NewServer(":"+cfg.Ops.Port, logger)
		go func() {
			if err := ops.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("Ops server failed: %v", err)
			}
		}()
	}

	controller := ui.NewController(climateSvc, analysisSvc, epiSvc, logger)
	server, err := ui.NewServer(controller, logger)
	if err != nil {
		log.Fatal("Failed to create dashboard server:", err)
	}
	log.Fatal(server.Start(":" + cfg.Server.Port))
}
