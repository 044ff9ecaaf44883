package clients

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/sony/gobreaker"

	"github.com/databuildtool/air-quality-etl/internal/ingest"
)

// genericFieldKey matches the numbered data field keys of a channel object
// (field1, field2, ...). A bare "field" key or a zero index is not a data
// field and is left out of the record metadata.
var genericFieldKey = regexp.MustCompile(`^field[1-9][0-9]*$`)

// ThingSpeakClient fetches a trailing window of readings from a ThingSpeak
// channel feed and flattens them into tabular records.
type ThingSpeakClient struct {
	baseURL    string
	windowDays int
	httpCfg    HTTPClientConfig
	circuit    *gobreaker.CircuitBreaker
}

func NewThingSpeakClient(client *http.Client, windowDays int) *ThingSpeakClient {
	return &ThingSpeakClient{
		baseURL:    "https://api.thingspeak.com",
		windowDays: windowDays,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newCircuit("thingspeak"),
	}
}

// FetchChannelFeed retrieves the channel's readings for the trailing window
// and merges each one with the channel name and its field-name metadata.
// Records are returned in the order the API provides them. A failed fetch
// returns no partial results.
func (c *ThingSpeakClient) FetchChannelFeed(ctx context.Context, creds ingest.ChannelCredentials) ([]ingest.FeedRecord, error) {
	log.Printf("DEBUG: fetching feeds for channel %d", creds.ID)

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("api_key", creds.Key)
		values.Set("days", strconv.Itoa(c.windowDays))

		u := fmt.Sprintf("%s/channels/%d/feeds.json?%s", c.baseURL, creds.ID, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	var payload struct {
		Channel map[string]any   `json:"channel"`
		Feeds   []map[string]any `json:"feeds"`
	}
	if err := fetchJSON(ctx, c.httpCfg, c.circuit, buildRequest, &payload); err != nil {
		return nil, err
	}

	name, ok := payload.Channel["name"].(string)
	if !ok {
		return nil, fmt.Errorf("channel %d response has no name", creds.ID)
	}

	// Channel-level metadata reused for every record: the display name plus
	// each numbered field key renamed to field<N>_name.
	meta := make(map[string]any, len(payload.Channel)+1)
	meta["name"] = name
	for k, v := range payload.Channel {
		if genericFieldKey.MatchString(k) {
			meta[k+"_name"] = v
		}
	}

	records := make([]ingest.FeedRecord, 0, len(payload.Feeds))
	for _, feed := range payload.Feeds {
		record := make(ingest.FeedRecord, len(meta)+len(feed))
		for k, v := range meta {
			record[k] = v
		}
		// Feed keys win on collision.
		for k, v := range feed {
			record[k] = v
		}
		records = append(records, record)
	}

	log.Printf("DEBUG: fetched %d feeds for channel %d", len(records), creds.ID)
	return records, nil
}
