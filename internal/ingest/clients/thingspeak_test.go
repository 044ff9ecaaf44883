package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/databuildtool/air-quality-etl/internal/ingest"
)

func newTestThingSpeakClient(server *httptest.Server, windowDays int) *ThingSpeakClient {
	c := NewThingSpeakClient(server.Client(), windowDays)
	c.baseURL = server.URL
	c.httpCfg.Backoff = fastBackoff()
	return c
}

func TestFetchChannelFeedFlattensRecords(t *testing.T) {
	var gotPath, gotKey, gotDays string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("api_key")
		gotDays = r.URL.Query().Get("days")
		w.Write([]byte(`{
			"channel": {"id": 7, "name": "X", "field1": "PM2.5"},
			"feeds": [{"entry_id": 1, "field1": "12"}]
		}`))
	}))
	defer server.Close()

	client := newTestThingSpeakClient(server, 3)

	records, err := client.FetchChannelFeed(context.Background(), ingest.ChannelCredentials{ID: 7, Key: "ck"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotPath != "/channels/7/feeds.json" {
		t.Errorf("request path = %q, want /channels/7/feeds.json", gotPath)
	}
	if gotKey != "ck" || gotDays != "3" {
		t.Errorf("query = (api_key=%q, days=%q), want (ck, 3)", gotKey, gotDays)
	}

	want := []ingest.FeedRecord{{
		"name":        "X",
		"field1_name": "PM2.5",
		"entry_id":    float64(1),
		"field1":      "12",
	}}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("records = %v, want %v", records, want)
	}
}

func TestFetchChannelFeedMetadataAppliesToEveryRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"channel": {"name": "Porch", "field1": "PM1.0", "field2": "PM10"},
			"feeds": [
				{"entry_id": 1, "field1": "3", "field2": "9"},
				{"entry_id": 2, "field1": "4", "field2": "8"},
				{"entry_id": 3, "field1": "5", "field2": "7"}
			]
		}`))
	}))
	defer server.Close()

	client := newTestThingSpeakClient(server, 3)

	records, err := client.FetchChannelFeed(context.Background(), ingest.ChannelCredentials{ID: 1, Key: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 3 {
		t.Fatalf("len(records) = %d, want 3", len(records))
	}
	for i, record := range records {
		if record["name"] != "Porch" || record["field1_name"] != "PM1.0" || record["field2_name"] != "PM10" {
			t.Errorf("record %d missing channel metadata: %v", i, record)
		}
		if record["entry_id"] != float64(i+1) {
			t.Errorf("record %d out of source order: entry_id = %v", i, record["entry_id"])
		}
	}
}

func TestFetchChannelFeedIgnoresNonNumberedFieldKeys(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"channel": {
				"name": "X",
				"field": "bare",
				"field0": "zero",
				"fields1": "plural",
				"field_x": "underscore",
				"field2": "PM10"
			},
			"feeds": [{"entry_id": 1}]
		}`))
	}))
	defer server.Close()

	client := newTestThingSpeakClient(server, 3)

	records, err := client.FetchChannelFeed(context.Background(), ingest.ChannelCredentials{ID: 1, Key: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	record := records[0]
	if record["field2_name"] != "PM10" {
		t.Errorf("expected field2_name in record, got %v", record)
	}
	for _, k := range []string{"field_name", "field0_name", "fields1_name", "field_x_name"} {
		if _, ok := record[k]; ok {
			t.Errorf("unexpected metadata key %q in record %v", k, record)
		}
	}
}

func TestFetchChannelFeedFeedKeysWin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"channel": {"name": "channel-name", "field1": "PM2.5"},
			"feeds": [{"entry_id": 1, "name": "feed-name"}]
		}`))
	}))
	defer server.Close()

	client := newTestThingSpeakClient(server, 3)

	records, err := client.FetchChannelFeed(context.Background(), ingest.ChannelCredentials{ID: 1, Key: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if records[0]["name"] != "feed-name" {
		t.Errorf("name = %v, want feed element to win on collision", records[0]["name"])
	}
}

func TestFetchChannelFeedRetryDropsStaleMetadata(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits == 1 {
			// Mistyped feeds array: the attempt fails after the channel
			// object has already been decoded.
			w.Write([]byte(`{"channel": {"name": "old", "field7": "stale"}, "feeds": "not-an-array"}`))
			return
		}
		w.Write([]byte(`{"channel": {"name": "X", "field1": "PM2.5"}, "feeds": [{"entry_id": 1}]}`))
	}))
	defer server.Close()

	client := newTestThingSpeakClient(server, 3)

	records, err := client.FetchChannelFeed(context.Background(), ingest.ChannelCredentials{ID: 1, Key: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 2 {
		t.Errorf("server hits = %d, want 2", hits)
	}

	want := []ingest.FeedRecord{{
		"name":        "X",
		"field1_name": "PM2.5",
		"entry_id":    float64(1),
	}}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("records = %v, want only the successful attempt's metadata %v", records, want)
	}
}

func TestFetchChannelFeedEmptyFeeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"channel": {"name": "X"}, "feeds": []}`))
	}))
	defer server.Close()

	client := newTestThingSpeakClient(server, 3)

	records, err := client.FetchChannelFeed(context.Background(), ingest.ChannelCredentials{ID: 1, Key: "k"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}

func TestFetchChannelFeedMissingName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"channel": {"field1": "PM2.5"}, "feeds": [{"entry_id": 1}]}`))
	}))
	defer server.Close()

	client := newTestThingSpeakClient(server, 3)

	if _, err := client.FetchChannelFeed(context.Background(), ingest.ChannelCredentials{ID: 1, Key: "k"}); err == nil {
		t.Fatal("expected error when the channel has no name")
	}
}
