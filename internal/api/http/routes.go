package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/databuildtool/air-quality-etl/internal/ingest"
)

// Runner triggers pipeline runs; satisfied by *ingest.Service.
type Runner interface {
	Run(ctx context.Context) (ingest.RunResult, error)
}

// runTimeout bounds a triggered pipeline pass, extract and load included.
const runTimeout = 5 * time.Minute

// RegisterRoutes wires the pipeline trigger handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, runner Runner) {
	var (
		mu   sync.RWMutex
		last *ingest.RunResult
	)

	v1 := app.Group("/api/v1")

	v1.Post("/runs", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), runTimeout)
		defer cancel()

		result, err := runner.Run(ctx)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, err.Error())
		}

		mu.Lock()
		last = &result
		mu.Unlock()

		return c.Status(fiber.StatusCreated).JSON(result)
	})

	v1.Get("/runs/latest", func(c *fiber.Ctx) error {
		mu.RLock()
		defer mu.RUnlock()

		if last == nil {
			return fiber.NewError(fiber.StatusNotFound, "no completed runs")
		}
		return c.JSON(last)
	})
}
