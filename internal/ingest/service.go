package ingest

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// CredentialResolver maps the configured sensor to its channel credentials.
type CredentialResolver interface {
	ResolveCredentials(ctx context.Context) (CredentialSet, error)
}

// FeedFetcher retrieves the trailing window of readings for one channel.
type FeedFetcher interface {
	FetchChannelFeed(ctx context.Context, creds ChannelCredentials) ([]FeedRecord, error)
}

// Sink appends a batch to the destination table. The append is all-or-nothing
// per invocation; an empty batch is a valid zero-row no-op.
type Sink interface {
	Append(ctx context.Context, batch FeedBatch) error
}

// RunResult summarizes one completed pipeline run.
type RunResult struct {
	RunID    string    `json:"runId"`
	Records  int       `json:"records"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
}

func (r RunResult) Duration() time.Duration {
	return r.Finished.Sub(r.Started)
}

// Service orchestrates the extract and load steps of one pipeline run.
type Service struct {
	registry CredentialResolver
	feeds    FeedFetcher
	sink     Sink
}

// NewService creates a new Service.
func NewService(registry CredentialResolver, feeds FeedFetcher, sink Sink) *Service {
	return &Service{
		registry: registry,
		feeds:    feeds,
		sink:     sink,
	}
}

// Extract resolves the sensor's channel credentials and fetches the four
// channel feeds sequentially, concatenating the records in pair order.
// Any failure aborts the whole extract; no partial batch is returned.
func (s *Service) Extract(ctx context.Context) (FeedBatch, error) {
	creds, err := s.registry.ResolveCredentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve channel credentials: %w", err)
	}

	var batch FeedBatch
	for _, pair := range creds.Pairs() {
		records, err := s.feeds.FetchChannelFeed(ctx, pair)
		if err != nil {
			return nil, fmt.Errorf("fetch feed for channel %d: %w", pair.ID, err)
		}
		batch = append(batch, records...)
	}

	return batch, nil
}

// Load appends the batch to the destination table.
func (s *Service) Load(ctx context.Context, batch FeedBatch) error {
	return s.sink.Append(ctx, batch)
}

// Run executes one extract-then-load pass and returns its summary, or the
// first error encountered. A failed extract never reaches the load step, and
// there is no retry at this level.
func (s *Service) Run(ctx context.Context) (RunResult, error) {
	result := RunResult{
		RunID:   uuid.NewString(),
		Started: time.Now().UTC(),
	}

	batch, err := s.Extract(ctx)
	if err != nil {
		return RunResult{}, err
	}
	log.Printf("DEBUG: run %s extracted %d feed records", result.RunID, len(batch))

	if err := s.Load(ctx, batch); err != nil {
		return RunResult{}, err
	}

	result.Records = len(batch)
	result.Finished = time.Now().UTC()
	return result, nil
}
