package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/databuildtool/air-quality-etl/internal/ingest"
)

// Runner triggers pipeline runs; satisfied by *ingest.Service.
type Runner interface {
	Run(ctx context.Context) (ingest.RunResult, error)
}

// Scheduler periodically triggers pipeline runs. Each tick is an independent
// single-batch run over the configured trailing window.
type Scheduler struct {
	scheduler *gocron.Scheduler
	runner    Runner
	interval  time.Duration
}

// New creates a new Scheduler.
func New(interval time.Duration, runner Runner) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		runner:    runner,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// A zero interval disables scheduling entirely.
func (s *Scheduler) Start() error {
	if s.interval <= 0 {
		log.Println("scheduler: no run interval configured; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		log.Println("scheduler: starting pipeline run")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		result, err := s.runner.Run(ctx)
		if err != nil {
			log.Printf("scheduler: pipeline run failed: %v", err)
			return
		}
		log.Printf("scheduler: run %s loaded %d records in %s", result.RunID, result.Records, result.Duration())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
