package scorer

import (
	"math"

	"github.com/meridian-group/econwatch/internal/config"
	"github.com/meridian-group/econwatch/internal/model"
)

// Threshold scores the discrepancy between official and estimated readings
// of the same indicator, plus absolute bounds on the value itself. A
// critical discrepancy must persist for the configured number of
// consecutive periods; a single spike is at most a warning.
type Threshold struct{}

// NewThreshold creates the threshold scorer.
func NewThreshold() *Threshold { return &Threshold{} }

func (t *Threshold) Model() string { return "threshold/1" }

func (t *Threshold) Evaluate(subject model.Subject, history []model.Observation, cfg config.ScorerConfig) (*model.Finding, error) {
	points := collapseByPeriod(history)
	if len(points) < cfg.MinWindow {
		return insufficientFinding(subject, t.Model(), len(points)), nil
	}

	th := cfg.Thresholds(subject.Indicator)

	// Per-period discrepancy, only where both readings exist.
	discrepancies := make([]float64, len(points))
	hasDiscrepancy := make([]bool, len(points))
	for i, pt := range points {
		if pt.official != nil && pt.estimated != nil {
			discrepancies[i] = discrepancyPct(pt.official.Value, pt.estimated.Value)
			hasDiscrepancy[i] = true
		}
	}

	severity := model.SeverityNominal
	crossed := make(map[string]float64)
	var score, discrepancy *float64

	last := len(points) - 1
	if hasDiscrepancy[last] {
		d := discrepancies[last]
		discrepancy = &d
		score = &d

		consecutive := cfg.ConsecutivePeriods
		if consecutive < 1 {
			consecutive = 1
		}
		switch {
		case d >= th.CritPct && breachStreak(discrepancies, hasDiscrepancy, th.CritPct) >= consecutive:
			severity = model.SeverityCritical
			crossed["crit_pct"] = th.CritPct
		case d >= th.WarnPct:
			severity = model.SeverityWarning
			crossed["warn_pct"] = th.WarnPct
		}
	}

	// Absolute bounds apply to the period value itself.
	latest := points[last].value
	if th.AbsCrit != nil && math.Abs(latest) >= *th.AbsCrit {
		severity = model.SeverityCritical
		crossed["abs_crit"] = *th.AbsCrit
	} else if th.AbsWarn != nil && math.Abs(latest) >= *th.AbsWarn && severity == model.SeverityNominal {
		severity = model.SeverityWarning
		crossed["abs_warn"] = *th.AbsWarn
	}

	var metric []float64
	for i, ok := range hasDiscrepancy {
		if ok {
			metric = append(metric, discrepancies[i])
		}
	}

	return &model.Finding{
		Subject:     subject,
		Severity:    severity,
		Score:       score,
		Discrepancy: discrepancy,
		Trend:       trendOf(metric),
		Thresholds:  crossed,
		Model:       t.Model(),
		Evidence:    tailEvidence(points, cfg.Window),
	}, nil
}

// discrepancyPct is the gap between official and estimated readings as a
// percentage of the official value.
func discrepancyPct(official, estimated float64) float64 {
	base := math.Abs(official)
	if base < 1e-9 {
		base = 1e-9
	}
	return math.Abs(official-estimated) / base * 100
}

// breachStreak counts the trailing run of periods whose discrepancy meets
// the threshold. Periods without both readings break the streak.
func breachStreak(discrepancies []float64, has []bool, threshold float64) int {
	streak := 0
	for i := len(discrepancies) - 1; i >= 0; i-- {
		if !has[i] || discrepancies[i] < threshold {
			break
		}
		streak++
	}
	return streak
}
