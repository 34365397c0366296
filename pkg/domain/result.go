package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// CollectionResult is one collector's answer for one request. The payload
// stays raw; parsing and merging are the downstream pipeline's concern.
type CollectionResult struct {
	ID          string          `json:"id"`
	RequestID   string          `json:"request_id"`
	CollectorID string          `json:"collector_id"`
	Quadrant    Quadrant        `json:"quadrant"`
	Symbols     []string        `json:"symbols,omitempty"`
	DataType    UseCase         `json:"data_type,omitempty"`
	CollectedAt time.Time       `json:"collected_at"`
	Elapsed     time.Duration   `json:"elapsed"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// NewCollectionResult stamps a fresh result for a collector.
func NewCollectionResult(collectorID string, quadrant Quadrant, filters Filters) *CollectionResult {
	var dt UseCase
	if len(filters.DataTypes) > 0 {
		dt = filters.DataTypes[0]
	}
	return &CollectionResult{
		ID:          uuid.NewString(),
		RequestID:   filters.RequestID,
		CollectorID: collectorID,
		Quadrant:    quadrant,
		Symbols:     filters.Symbols,
		DataType:    dt,
		CollectedAt: time.Now(),
	}
}

// ActivationDecision is the derived ranking record for one collector against
// one request. Priority is zero whenever Activate is false.
type ActivationDecision struct {
	CollectorID string `json:"collector_id"`
	Activate    bool   `json:"activate"`
	Priority    int    `json:"priority"`
	Reliability int    `json:"reliability"`
}
