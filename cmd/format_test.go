package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/meridian-group/econwatch/internal/model"
)

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "12345678", truncateID("12345678-abcd-efgh"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, []model.IngestionRun{
		{
			ID:        "aaaaaaaa-1111-2222-3333-444444444444",
			Source:    "central_bank",
			Status:    model.RunStatusPartial,
			Fetched:   10,
			Stored:    7,
			Skipped:   1,
			Failed:    2,
			StartedAt: time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC),
		},
	})

	out := buf.String()
	assert.Contains(t, out, "aaaaaaaa")
	assert.Contains(t, out, "central_bank")
	assert.Contains(t, out, "partial")
	assert.Contains(t, out, "2025-06-01 06:00")
}

func TestFormatFindings(t *testing.T) {
	score := -4.2
	var buf bytes.Buffer
	formatFindings(&buf, []model.Finding{
		{
			Subject:  model.Subject{Entity: "AR", Indicator: "fx_reserves"},
			Model:    "zscore/1",
			Severity: model.SeverityCritical,
			Score:    &score,
			Trend:    model.TrendWorsening,
		},
		{
			Subject:  model.Subject{Entity: "AR", Indicator: "gdp_growth"},
			Model:    "threshold/1",
			Severity: model.SeverityInsufficientData,
			Trend:    model.TrendUnknown,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "fx_reserves")
	assert.Contains(t, out, "-4.20")
	assert.Contains(t, out, "insufficient_data")
	assert.Contains(t, out, "unknown")
}

func TestFormatAuditEntries(t *testing.T) {
	var buf bytes.Buffer
	formatAuditEntries(&buf, []model.AuditEntry{
		{
			Seq:          7,
			Timestamp:    time.Date(2025, 6, 1, 6, 0, 0, 0, time.UTC),
			Actor:        "ingest:central_bank",
			Action:       model.ActionObservationCommit,
			Outcome:      model.AuditSuccess,
			ResourceType: "observation",
			ResourceID:   "bbbbbbbb-1111-2222-3333-444444444444",
		},
	})

	out := buf.String()
	assert.Contains(t, out, "observation.commit")
	assert.Contains(t, out, "observation/bbbbbbbb")
	assert.Contains(t, out, "ingest:central_bank")
}
