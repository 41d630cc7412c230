package model

import "time"

// RunStatus is the lifecycle state of an ingestion run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// ItemError records why a single batch item was rejected.
type ItemError struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

// IngestionRun is one batch-fetch attempt from one source. It is created
// when the batch begins and finalized exactly once; finalized runs are
// immutable.
type IngestionRun struct {
	ID           string      `json:"id"`
	Source       string      `json:"source"`
	Jurisdiction string      `json:"jurisdiction"`
	Status       RunStatus   `json:"status"`
	Fetched      int         `json:"fetched"`
	Stored       int         `json:"stored"`
	Skipped      int         `json:"skipped"`
	Failed       int         `json:"failed"`
	WindowStart  *time.Time  `json:"window_start,omitempty"`
	WindowEnd    *time.Time  `json:"window_end,omitempty"`
	Error        string      `json:"error,omitempty"`
	Retries      int         `json:"retries"`
	ItemErrors   []ItemError `json:"item_errors,omitempty"`
	StartedAt    time.Time   `json:"started_at"`
	FinalizedAt  *time.Time  `json:"finalized_at,omitempty"`
}

// Finalized reports whether the run has already been finalized.
func (r *IngestionRun) Finalized() bool {
	return r.FinalizedAt != nil
}
