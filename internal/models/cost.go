package models

import "time"

// CostEntry is an append-only record of a single metered external-service
// call, stored in the monthly cost log.
type CostEntry struct {
	ID           string         `json:"id,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
	UserID       int            `json:"userId"`
	JobID        string         `json:"jobId,omitempty"`
	Service      string         `json:"service"`
	Model        string         `json:"model"`
	TokensInput  int            `json:"tokensInput"`
	TokensOutput int            `json:"tokensOutput"`
	TokensTotal  int            `json:"tokensTotal"`
	CostUsd      float64        `json:"costUsd"`
	Stage        string         `json:"stage,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// MonthlyLogMetadata identifies the month a cost log covers.
type MonthlyLogMetadata struct {
	Month string `json:"month"` // YYYY-MM
}

// MonthlyLog is the on-disk format of costs/{YYYY-MM}.json.
// Entries are never mutated; writers append and atomically replace the file.
type MonthlyLog struct {
	Entries  []CostEntry        `json:"entries"`
	Metadata MonthlyLogMetadata `json:"metadata"`
}

// MonthlySummary aggregates a user's spend for one month.
type MonthlySummary struct {
	Month         string             `json:"month"`
	TotalCost     float64            `json:"totalCost"`
	TotalTokens   int                `json:"totalTokens"`
	TotalCalls    int                `json:"totalCalls"`
	UniqueJobs    int                `json:"uniqueJobs"`
	AvgCostPerJob float64            `json:"avgCostPerJob"`
	ByService     map[string]float64 `json:"byService"`
	ByModel       map[string]float64 `json:"byModel"`
}
