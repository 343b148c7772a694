// Package responses defines JSON response types served by the exporter's HTTP endpoints.
package responses

import "time"

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Version   string         `json:"version"`
	Uptime    float64        `json:"uptime"`
	InFlight  map[string]int `json:"in_flight"`
	Ingest    IngestSummary  `json:"ingest"`
}

// IngestSummary counts processed envelopes by outcome.
type IngestSummary struct {
	Published uint64 `json:"published"`
	Ignored   uint64 `json:"ignored"`
	Failed    uint64 `json:"failed"`
}
