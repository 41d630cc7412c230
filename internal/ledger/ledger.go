// Package ledger implements the append-only audit ledger. Entries carry a
// SHA-256 checksum over their own content, the backing tables structurally
// reject UPDATE and DELETE via triggers, and a detected checksum mismatch
// halts further writes until an operator resets the ledger.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-group/econwatch/internal/model"
)

// Filter narrows a ledger query. Results are ordered by (timestamp, seq)
// ascending; AfterSeq makes paging restartable.
type Filter struct {
	Actor        string
	Action       string
	Outcome      model.AuditOutcome
	ResourceType string
	ResourceID   string
	Jurisdiction string
	Since        time.Time
	Until        time.Time
	AfterSeq     int64
	Limit        int
}

// VerifyReport summarizes a full-ledger checksum verification.
type VerifyReport struct {
	Checked  int
	BadIDs   []string
	Duration time.Duration
}

// Ledger is the append-only audit trail. Record and Query are the only
// operations; the storage layer rejects everything else.
type Ledger interface {
	Record(ctx context.Context, e *model.AuditEntry) (*model.AuditEntry, error)
	Query(ctx context.Context, f Filter) ([]model.AuditEntry, error)
	Verify(ctx context.Context) (*VerifyReport, error)
	Halted() bool
	ResetHalt()
}

// checksumPayload fixes the field set and order the checksum covers. Seq and
// Checksum itself are excluded: seq is assigned by the database after the
// checksum is computed.
type checksumPayload struct {
	ID           string `json:"id"`
	Timestamp    string `json:"timestamp"`
	Actor        string `json:"actor"`
	Action       string `json:"action"`
	Outcome      string `json:"outcome"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	Jurisdiction string `json:"jurisdiction"`
	Before       string `json:"before"`
	After        string `json:"after"`
	Detail       string `json:"detail"`
}

// Checksum computes the SHA-256 hex digest of the entry's content,
// excluding the checksum field itself.
func Checksum(e *model.AuditEntry) string {
	payload := checksumPayload{
		ID:           e.ID,
		Timestamp:    e.Timestamp.UTC().Format(time.RFC3339Nano),
		Actor:        e.Actor,
		Action:       e.Action,
		Outcome:      string(e.Outcome),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		Jurisdiction: e.Jurisdiction,
		Before:       string(e.Before),
		After:        string(e.After),
		Detail:       e.Detail,
	}
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Prepare fills in the entry's identity, timestamp, and checksum ahead of
// insertion. Timestamps are truncated to microseconds so they round-trip
// through the database exactly, keeping Verify meaningful.
func Prepare(e *model.AuditEntry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.Timestamp = e.Timestamp.UTC().Truncate(time.Microsecond)
	e.Checksum = Checksum(e)
}
