package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"

	"github.com/sony/gobreaker"

	"github.com/databuildtool/air-quality-etl/internal/ingest"
)

// PurpleAirClient resolves a sensor id to its channel credentials through the
// PurpleAir sensor registry API.
type PurpleAirClient struct {
	apiKey   string
	sensorID int64
	baseURL  string
	httpCfg  HTTPClientConfig
	circuit  *gobreaker.CircuitBreaker
}

func NewPurpleAirClient(client *http.Client, apiKey string, sensorID int64) *PurpleAirClient {
	return &PurpleAirClient{
		apiKey:   apiKey,
		sensorID: sensorID,
		baseURL:  "https://api.purpleair.com",
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: defaultBackoff(),
		},
		circuit: newCircuit("purpleair"),
	}
}

// ResolveCredentials fetches the sensor object from the registry and extracts
// the four (id, key) channel pairs, ignoring any other sensor fields.
func (c *PurpleAirClient) ResolveCredentials(ctx context.Context) (ingest.CredentialSet, error) {
	if c.apiKey == "" {
		return ingest.CredentialSet{}, fmt.Errorf("purpleair api key is not configured")
	}

	log.Printf("DEBUG: fetching channel credentials for sensor %d", c.sensorID)

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("api_key", c.apiKey)

		u := fmt.Sprintf("%s/v1/sensors/%d?%s", c.baseURL, c.sensorID, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	var payload struct {
		Sensor json.RawMessage `json:"sensor"`
	}
	if err := fetchJSON(ctx, c.httpCfg, c.circuit, buildRequest, &payload); err != nil {
		return ingest.CredentialSet{}, err
	}
	if len(payload.Sensor) == 0 {
		return ingest.CredentialSet{}, fmt.Errorf("registry response has no sensor object")
	}

	set, err := ingest.NewCredentialSet(payload.Sensor)
	if err != nil {
		return ingest.CredentialSet{}, err
	}

	log.Printf("DEBUG: resolved channel credentials for sensor %d", c.sensorID)
	return set, nil
}
