// Package model defines the domain types shared across the pipeline:
// observations and their natural keys, ingestion runs, findings,
// recommendations, and audit entries.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Classification is the data-classification tier of an observation.
type Classification string

const (
	ClassificationPublic       Classification = "public"
	ClassificationInternal     Classification = "internal"
	ClassificationConfidential Classification = "confidential"
	ClassificationSecret       Classification = "secret"
)

// ValidClassification reports whether c is a recognized tier.
func ValidClassification(c Classification) bool {
	switch c {
	case ClassificationPublic, ClassificationInternal, ClassificationConfidential, ClassificationSecret:
		return true
	}
	return false
}

// NaturalKey identifies one conceptual observation across revisions.
type NaturalKey struct {
	Entity    string `json:"entity"`
	Indicator string `json:"indicator"`
	SubRegion string `json:"sub_region,omitempty"`
	Period    Period `json:"period"`
	Source    string `json:"source"`
}

// String renders the key in a stable, log-friendly form.
func (k NaturalKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s/%s", k.Entity, k.Indicator, k.SubRegion, k.Period, k.Source)
}

// Observation is one committed economic data point. Observations are
// immutable once committed; a correction is a new revision of the same
// natural key.
type Observation struct {
	ID             string          `json:"id"`
	Entity         string          `json:"entity"`
	Indicator      string          `json:"indicator"`
	SubRegion      string          `json:"sub_region,omitempty"`
	Period         Period          `json:"period"`
	Source         string          `json:"source"`
	Revision       int             `json:"revision"`
	Value          float64         `json:"value"`
	Unit           string          `json:"unit,omitempty"`
	Official       bool            `json:"official"`
	Confidence     *float64        `json:"confidence,omitempty"`
	Jurisdiction   string          `json:"jurisdiction"`
	Classification Classification  `json:"classification"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Key returns the observation's natural key.
func (o *Observation) Key() NaturalKey {
	return NaturalKey{
		Entity:    o.Entity,
		Indicator: o.Indicator,
		SubRegion: o.SubRegion,
		Period:    o.Period,
		Source:    o.Source,
	}
}

// SameContent reports whether a resubmission carries identical content, in
// which case it is a no-op duplicate rather than a new revision. Metadata
// participates so that a metadata-only correction still produces a revision.
func (o *Observation) SameContent(value float64, unit string, official bool, metadata map[string]any) bool {
	if o.Value != value || o.Unit != unit || o.Official != official {
		return false
	}
	a, _ := json.Marshal(o.Metadata)
	b, _ := json.Marshal(metadata)
	return string(a) == string(b)
}

// ObservationInput is one unvalidated item of an ingestion batch. Pointer
// fields distinguish absent from zero.
type ObservationInput struct {
	Entity         string          `json:"entity"`
	Indicator      string          `json:"indicator"`
	SubRegion      string          `json:"sub_region,omitempty"`
	Period         string          `json:"period"`
	Value          *float64        `json:"value"`
	Unit           string          `json:"unit,omitempty"`
	Official       bool            `json:"official"`
	Confidence     *float64        `json:"confidence,omitempty"`
	Classification string          `json:"classification,omitempty"`
	Metadata       map[string]any  `json:"metadata,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}
