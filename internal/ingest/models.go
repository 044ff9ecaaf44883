package ingest

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ChannelCredentials identifies one time-series channel feed.
type ChannelCredentials struct {
	ID  int64
	Key string
}

// CredentialSet holds the four (id, key) channel pairs a sensor exposes:
// primary and secondary feeds for each of its two data channels. The field
// names mirror the registry's sensor object.
type CredentialSet struct {
	PrimaryIDA    int64  `json:"primary_id_a" validate:"required"`
	PrimaryKeyA   string `json:"primary_key_a" validate:"required"`
	PrimaryIDB    int64  `json:"primary_id_b" validate:"required"`
	PrimaryKeyB   string `json:"primary_key_b" validate:"required"`
	SecondaryIDA  int64  `json:"secondary_id_a" validate:"required"`
	SecondaryKeyA string `json:"secondary_key_a" validate:"required"`
	SecondaryIDB  int64  `json:"secondary_id_b" validate:"required"`
	SecondaryKeyB string `json:"secondary_key_b" validate:"required"`
}

// NewCredentialSet builds a CredentialSet from a registry sensor object,
// ignoring any extra fields present. Construction fails if any of the eight
// credential fields is absent, zero, empty, or of the wrong JSON type.
func NewCredentialSet(sensor json.RawMessage) (CredentialSet, error) {
	var set CredentialSet
	if err := json.Unmarshal(sensor, &set); err != nil {
		return CredentialSet{}, fmt.Errorf("decode sensor credentials: %w", err)
	}
	if err := validate.Struct(set); err != nil {
		return CredentialSet{}, fmt.Errorf("incomplete sensor credentials: %w", err)
	}
	return set, nil
}

// Pairs returns the channel credentials in fixed fetch order:
// primary-A, secondary-A, primary-B, secondary-B.
func (c CredentialSet) Pairs() [4]ChannelCredentials {
	return [4]ChannelCredentials{
		{ID: c.PrimaryIDA, Key: c.PrimaryKeyA},
		{ID: c.SecondaryIDA, Key: c.SecondaryKeyA},
		{ID: c.PrimaryIDB, Key: c.PrimaryKeyB},
		{ID: c.SecondaryIDB, Key: c.SecondaryKeyB},
	}
}

// FeedRecord is one flattened channel reading: the raw feed element merged
// with the channel name and the human-readable names of its numbered fields.
// Records are never mutated after the merge step.
type FeedRecord map[string]any

// FeedBatch is the ordered concatenation of all records extracted in one run,
// in channel pair order. It carries no ordering guarantee beyond that.
type FeedBatch []FeedRecord
