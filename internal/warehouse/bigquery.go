package warehouse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"cloud.google.com/go/bigquery"

	"github.com/databuildtool/air-quality-etl/internal/ingest"
)

// TableRef identifies the destination table.
type TableRef struct {
	ProjectID string
	Dataset   string
	Table     string
}

func (t TableRef) String() string {
	return t.ProjectID + "." + t.Dataset + "." + t.Table
}

// BigQuerySink appends feed batches to a fixed BigQuery table. The destination
// schema must already exist; no schema autodetection is used.
type BigQuerySink struct {
	client *bigquery.Client
	table  TableRef
}

// NewBigQuerySink connects to BigQuery using ambient/default credentials.
func NewBigQuerySink(ctx context.Context, table TableRef) (*BigQuerySink, error) {
	log.Println("DEBUG: connecting to BigQuery")

	client, err := bigquery.NewClient(ctx, table.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create bigquery client: %w", err)
	}

	log.Println("DEBUG: connected to BigQuery")
	return &BigQuerySink{client: client, table: table}, nil
}

// Append loads the batch into the destination table as a single append-only
// load job and blocks until the job completes. The load is all-or-nothing per
// invocation. An empty batch is a valid zero-row no-op.
func (s *BigQuerySink) Append(ctx context.Context, batch ingest.FeedBatch) error {
	if len(batch) == 0 {
		log.Printf("DEBUG: empty batch; nothing to load into %s", s.table)
		return nil
	}

	payload, err := encodeRows(batch)
	if err != nil {
		return fmt.Errorf("encode batch for %s: %w", s.table, err)
	}

	source := bigquery.NewReaderSource(bytes.NewReader(payload))
	source.SourceFormat = bigquery.JSON
	source.AutoDetect = false

	loader := s.client.Dataset(s.table.Dataset).Table(s.table.Table).LoaderFrom(source)
	loader.WriteDisposition = bigquery.WriteAppend

	job, err := loader.Run(ctx)
	if err != nil {
		return fmt.Errorf("start load job for %s: %w", s.table, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("wait for load job on %s: %w", s.table, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("load job for %s failed: %w", s.table, err)
	}

	log.Printf("DEBUG: loaded %d rows into %s", len(batch), s.table)
	return nil
}

func (s *BigQuerySink) Close() error {
	return s.client.Close()
}

// encodeRows renders the batch as newline-delimited JSON, one row per record.
func encodeRows(batch ingest.FeedBatch) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, record := range batch {
		if err := enc.Encode(record); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
