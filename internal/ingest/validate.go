package ingest

import (
	"math"

	"github.com/meridian-group/econwatch/internal/config"
	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/resilience"
)

// validateItem checks one batch item and shapes it into an observation ready
// for commit. A validation failure rejects only this item, never the batch.
func validateItem(item model.ObservationInput, b Batch, cfg config.IngestConfig) (*model.Observation, error) {
	if item.Entity == "" {
		return nil, resilience.NewValidationError("entity", "must not be empty")
	}
	if item.Indicator == "" {
		return nil, resilience.NewValidationError("indicator", "must not be empty")
	}

	period, err := model.ParsePeriod(item.Period)
	if err != nil {
		return nil, resilience.NewValidationError("period", "not a recognized YYYY-MM or YYYY-QN form")
	}

	if item.Value == nil {
		return nil, resilience.NewValidationError("value", "missing")
	}
	if math.IsNaN(*item.Value) || math.IsInf(*item.Value, 0) {
		return nil, resilience.NewValidationError("value", "must be finite")
	}

	if item.Confidence != nil && (*item.Confidence < 0 || *item.Confidence > 1) {
		return nil, resilience.NewValidationError("confidence", "must be between 0 and 1")
	}

	if item.Unit != "" && len(cfg.KnownUnits) > 0 && !contains(cfg.KnownUnits, item.Unit) {
		return nil, resilience.NewValidationError("unit", "unknown unit %s", item.Unit)
	}

	classification := model.Classification(item.Classification)
	if classification == "" {
		classification = model.Classification(cfg.DefaultClassification)
	}
	if !model.ValidClassification(classification) {
		return nil, resilience.NewValidationError("classification", "unrecognized tier %s", string(classification))
	}

	return &model.Observation{
		Entity:         item.Entity,
		Indicator:      item.Indicator,
		SubRegion:      item.SubRegion,
		Period:         period,
		Source:         b.Source,
		Value:          *item.Value,
		Unit:           item.Unit,
		Official:       item.Official,
		Confidence:     item.Confidence,
		Jurisdiction:   b.Jurisdiction,
		Classification: classification,
		Metadata:       item.Metadata,
		Raw:            item.Raw,
	}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
