package scorer

import (
	"math"
	"sort"

	"github.com/meridian-group/econwatch/internal/config"
	"github.com/meridian-group/econwatch/internal/model"
)

// ZScore flags readings that sit far outside the subject's own trailing
// baseline, using the median and MAD so a past crisis in the window does
// not mask a new one.
type ZScore struct{}

// NewZScore creates the robust z-score scorer.
func NewZScore() *ZScore { return &ZScore{} }

func (z *ZScore) Model() string { return "zscore/1" }

// consistency constant relating MAD to the standard deviation of a normal
// distribution.
const madScale = 0.6745

func (z *ZScore) Evaluate(subject model.Subject, history []model.Observation, cfg config.ScorerConfig) (*model.Finding, error) {
	points := collapseByPeriod(history)
	if len(points) < cfg.MinWindow {
		return insufficientFinding(subject, z.Model(), len(points)), nil
	}

	window := cfg.Window
	if window > 0 && len(points) > window {
		points = points[len(points)-window:]
	}

	baseline := make([]float64, 0, len(points)-1)
	for _, pt := range points[:len(points)-1] {
		baseline = append(baseline, pt.value)
	}
	latest := points[len(points)-1].value

	zscore := robustZ(latest, baseline)

	th := cfg.Thresholds(subject.Indicator)
	severity := model.SeverityNominal
	crossed := make(map[string]float64)
	abs := math.Abs(zscore)
	switch {
	case th.ZCrit > 0 && abs >= th.ZCrit:
		severity = model.SeverityCritical
		crossed["z_crit"] = th.ZCrit
	case th.ZWarn > 0 && abs >= th.ZWarn:
		severity = model.SeverityWarning
		crossed["z_warn"] = th.ZWarn
	}

	// Trend follows the magnitude of deviation across the tail.
	var metric []float64
	for i := range points {
		if i == 0 {
			continue
		}
		metric = append(metric, math.Abs(robustZ(points[i].value, valuesOf(points[:i]))))
	}

	return &model.Finding{
		Subject:    subject,
		Severity:   severity,
		Score:      &zscore,
		Trend:      trendOf(metric),
		Thresholds: crossed,
		Model:      z.Model(),
		Evidence:   tailEvidence(points, cfg.Window),
	}, nil
}

func valuesOf(points []periodPoint) []float64 {
	vals := make([]float64, len(points))
	for i, pt := range points {
		vals[i] = pt.value
	}
	return vals
}

// robustZ is the median/MAD z-score of x against the baseline. A flat
// baseline makes any deviation effectively unbounded.
func robustZ(x float64, baseline []float64) float64 {
	if len(baseline) == 0 {
		return 0
	}
	med := median(baseline)

	deviations := make([]float64, len(baseline))
	for i, v := range baseline {
		deviations[i] = math.Abs(v - med)
	}
	mad := median(deviations)
	if mad < 1e-12 {
		if math.Abs(x-med) < 1e-12 {
			return 0
		}
		return math.Copysign(math.MaxFloat64, x-med)
	}
	return madScale * (x - med) / mad
}

func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
