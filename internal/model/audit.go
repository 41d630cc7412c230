package model

import (
	"encoding/json"
	"time"
)

// AuditOutcome is the result recorded on an audit entry.
type AuditOutcome string

const (
	AuditSuccess AuditOutcome = "success"
	AuditFailure AuditOutcome = "failure"
)

// Audit actions recorded by the pipeline.
const (
	ActionObservationCommit = "observation.commit"
	ActionObservationRevise = "observation.revise"
	ActionObservationPurge  = "observation.purge"
	ActionFindingStore      = "finding.store"
	ActionRecommendationNew = "recommendation.create"
	ActionRecommendationTxn = "recommendation.transition"
	ActionLedgerHalt        = "ledger.halt"
)

// AuditEntry is one immutable record of a state-changing action. The
// checksum covers the entry's own content excluding the checksum field;
// Seq is assigned by the ledger and breaks wall-clock ties per writer.
type AuditEntry struct {
	ID           string          `json:"id"`
	Seq          int64           `json:"seq"`
	Timestamp    time.Time       `json:"timestamp"`
	Actor        string          `json:"actor"`
	Action       string          `json:"action"`
	Outcome      AuditOutcome    `json:"outcome"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Jurisdiction string          `json:"jurisdiction,omitempty"`
	Before       json.RawMessage `json:"before,omitempty"`
	After        json.RawMessage `json:"after,omitempty"`
	Detail       string          `json:"detail,omitempty"`
	Checksum     string          `json:"checksum,omitempty"`
}
