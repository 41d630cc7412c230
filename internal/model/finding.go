package model

import "time"

// Severity is the fixed three-level scale every scorer maps onto, plus the
// explicit insufficient-data signal for short histories.
type Severity string

const (
	SeverityNominal          Severity = "nominal"
	SeverityWarning          Severity = "warning"
	SeverityCritical         Severity = "critical"
	SeverityInsufficientData Severity = "insufficient_data"
)

// Trend classifies the direction of an indicator over the evaluation window.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendWorsening Trend = "worsening"
	TrendUnknown   Trend = "unknown"
)

// Subject identifies the indicator stream a finding is about.
type Subject struct {
	Entity    string `json:"entity"`
	Indicator string `json:"indicator"`
	SubRegion string `json:"sub_region,omitempty"`
}

// EvidenceRef points at one observation revision the scorer used.
type EvidenceRef struct {
	ObservationID string `json:"observation_id"`
	Revision      int    `json:"revision"`
}

// Finding is one scorer output for a subject at one evaluation period.
// Findings are immutable; a newer finding for the same subject and period
// supersedes but never deletes an older one.
type Finding struct {
	ID           string             `json:"id"`
	Subject      Subject            `json:"subject"`
	Period       Period             `json:"period"`
	Jurisdiction string             `json:"jurisdiction"`
	Severity     Severity           `json:"severity"`
	Score        *float64           `json:"score,omitempty"`
	Discrepancy  *float64           `json:"discrepancy_pct,omitempty"`
	Trend        Trend              `json:"trend"`
	Thresholds   map[string]float64 `json:"thresholds_crossed,omitempty"`
	Model        string             `json:"model"`
	Evidence     []EvidenceRef      `json:"evidence,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}
