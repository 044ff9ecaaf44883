package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/databuildtool/air-quality-etl/internal/api/http"
	"github.com/databuildtool/air-quality-etl/internal/config"
	"github.com/databuildtool/air-quality-etl/internal/ingest"
	"github.com/databuildtool/air-quality-etl/internal/ingest/clients"
	"github.com/databuildtool/air-quality-etl/internal/scheduler"
	"github.com/databuildtool/air-quality-etl/internal/warehouse"
)

func main() {
	once := flag.Bool("once", false, "run a single pipeline pass and exit")
	flag.Parse()

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound API calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	ctx := context.Background()

	// Warehouse sink; credentials come from the ambient client configuration.
	sink, err := warehouse.NewBigQuerySink(ctx, warehouse.TableRef{
		ProjectID: cfg.BQProject,
		Dataset:   cfg.BQDataset,
		Table:     cfg.BQTable,
	})
	if err != nil {
		log.Fatalf("failed to create warehouse sink: %v", err)
	}
	defer sink.Close()

	// API clients and the pipeline service composing them.
	registry := clients.NewPurpleAirClient(httpClient, cfg.PurpleAPIKey, cfg.SensorID)
	feeds := clients.NewThingSpeakClient(httpClient, cfg.WindowDays)
	service := ingest.NewService(registry, feeds, sink)

	// One-shot invocation, for cron-style harnesses.
	if *once {
		result, err := service.Run(ctx)
		if err != nil {
			log.Fatalf("pipeline run failed: %v", err)
		}
		log.Printf("INFO: run %s loaded %d records in %s", result.RunID, result.Records, result.Duration())
		return
	}

	// Scheduler that periodically triggers pipeline runs (if configured).
	sched := scheduler.New(cfg.RunInterval, service)
	if err := sched.Start(); err != nil {
		log.Fatalf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "air-quality-etl",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "air-quality-etl",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service)

	// Start server with graceful shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
