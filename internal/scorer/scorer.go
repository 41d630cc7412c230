// Package scorer evaluates indicator histories into findings. Scorers are
// deterministic: the same history and config always produce the same
// severity, so a finding can be re-derived from its evidence.
package scorer

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/meridian-group/econwatch/internal/config"
	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/store"
)

// Scorer turns one subject's history into one finding.
type Scorer interface {
	// Model names the scoring model and version, e.g. "threshold/1".
	Model() string
	Evaluate(subject model.Subject, history []model.Observation, cfg config.ScorerConfig) (*model.Finding, error)
}

// Engine runs every registered scorer over subjects and persists the
// findings. Indicator types marked unscored are stored but never evaluated.
type Engine struct {
	store   store.Store
	cfg     config.ScorerConfig
	scorers []Scorer
	log     *zap.Logger
}

// NewEngine creates an engine. With no explicit scorers it runs the
// threshold and z-score models.
func NewEngine(st store.Store, cfg config.ScorerConfig, scorers ...Scorer) *Engine {
	if len(scorers) == 0 {
		scorers = []Scorer{NewThreshold(), NewZScore()}
	}
	return &Engine{
		store:   st,
		cfg:     cfg,
		scorers: scorers,
		log:     zap.L().With(zap.String("component", "scorer")),
	}
}

// EvaluateSubject scores one subject using history up to and including the
// period, and persists each resulting finding.
func (e *Engine) EvaluateSubject(ctx context.Context, subject model.Subject, period model.Period) ([]model.Finding, error) {
	if e.cfg.Thresholds(subject.Indicator).Unscored {
		e.log.Debug("indicator type not scored",
			zap.String("entity", subject.Entity), zap.String("indicator", subject.Indicator))
		return nil, nil
	}

	history, err := e.store.GetHistory(ctx, store.HistoryFilter{
		Entity:     subject.Entity,
		Indicator:  subject.Indicator,
		SubRegion:  subject.SubRegion,
		ToPeriod:   period,
		LatestOnly: true,
	})
	if err != nil {
		return nil, err
	}

	jurisdiction := ""
	if len(history) > 0 {
		jurisdiction = history[len(history)-1].Jurisdiction
	}

	var findings []model.Finding
	for _, sc := range e.scorers {
		finding, err := sc.Evaluate(subject, history, e.cfg)
		if err != nil {
			return nil, err
		}
		if finding == nil {
			continue
		}
		finding.Period = period
		finding.Jurisdiction = jurisdiction
		if err := e.store.StoreFinding(ctx, finding, "scorer:"+sc.Model()); err != nil {
			return nil, err
		}
		findings = append(findings, *finding)
	}
	return findings, nil
}

// EvaluateAll scores every subject observed up to the period.
func (e *Engine) EvaluateAll(ctx context.Context, period model.Period) ([]model.Finding, error) {
	observed, err := e.store.GetHistory(ctx, store.HistoryFilter{
		ToPeriod:   period,
		LatestOnly: true,
		Limit:      100000,
	})
	if err != nil {
		return nil, err
	}

	subjects := distinctSubjects(observed)
	var all []model.Finding
	for _, subject := range subjects {
		findings, err := e.EvaluateSubject(ctx, subject, period)
		if err != nil {
			return nil, err
		}
		all = append(all, findings...)
	}

	e.log.Info("evaluation sweep complete",
		zap.String("period", string(period)),
		zap.Int("subjects", len(subjects)),
		zap.Int("findings", len(all)))
	return all, nil
}

func distinctSubjects(observed []model.Observation) []model.Subject {
	seen := make(map[model.Subject]bool)
	var subjects []model.Subject
	for _, obs := range observed {
		s := model.Subject{Entity: obs.Entity, Indicator: obs.Indicator, SubRegion: obs.SubRegion}
		if !seen[s] {
			seen[s] = true
			subjects = append(subjects, s)
		}
	}
	sort.Slice(subjects, func(i, j int) bool {
		if subjects[i].Entity != subjects[j].Entity {
			return subjects[i].Entity < subjects[j].Entity
		}
		if subjects[i].Indicator != subjects[j].Indicator {
			return subjects[i].Indicator < subjects[j].Indicator
		}
		return subjects[i].SubRegion < subjects[j].SubRegion
	})
	return subjects
}

// periodPoint is one period's consolidated reading: the preferred value
// (official when present) plus the official and estimated readings when the
// period has both.
type periodPoint struct {
	period    model.Period
	value     float64
	official  *model.Observation
	estimated *model.Observation
	evidence  []model.EvidenceRef
}

// collapseByPeriod folds a multi-source history into one point per period,
// ordered by period start.
func collapseByPeriod(history []model.Observation) []periodPoint {
	byPeriod := make(map[model.Period]*periodPoint)
	var order []model.Period

	for i := range history {
		obs := &history[i]
		pt, ok := byPeriod[obs.Period]
		if !ok {
			pt = &periodPoint{period: obs.Period}
			byPeriod[obs.Period] = pt
			order = append(order, obs.Period)
		}
		pt.evidence = append(pt.evidence, model.EvidenceRef{ObservationID: obs.ID, Revision: obs.Revision})
		if obs.Official {
			pt.official = obs
		} else if pt.estimated == nil {
			pt.estimated = obs
		}
	}

	sort.Slice(order, func(i, j int) bool { return order[i].Before(order[j]) })

	points := make([]periodPoint, 0, len(order))
	for _, p := range order {
		pt := byPeriod[p]
		if pt.official != nil {
			pt.value = pt.official.Value
		} else if pt.estimated != nil {
			pt.value = pt.estimated.Value
		}
		points = append(points, *pt)
	}
	return points
}

// trendOf classifies the direction of a severity-driving metric over its
// trailing points. Rising pressure is worsening regardless of indicator.
func trendOf(metric []float64) model.Trend {
	if len(metric) < 2 {
		return model.TrendUnknown
	}
	tail := metric
	if len(tail) > 3 {
		tail = tail[len(tail)-3:]
	}

	rising, falling := true, true
	for i := 1; i < len(tail); i++ {
		if tail[i] <= tail[i-1] {
			rising = false
		}
		if tail[i] >= tail[i-1] {
			falling = false
		}
	}
	switch {
	case rising:
		return model.TrendWorsening
	case falling:
		return model.TrendImproving
	}
	return model.TrendStable
}

// insufficientFinding is the explicit signal for histories shorter than the
// minimum window.
func insufficientFinding(subject model.Subject, modelName string, points int) *model.Finding {
	return &model.Finding{
		Subject:  subject,
		Severity: model.SeverityInsufficientData,
		Trend:    model.TrendUnknown,
		Model:    modelName,
		Thresholds: map[string]float64{
			"points": float64(points),
		},
	}
}

// tailEvidence gathers the evidence refs of the trailing window.
func tailEvidence(points []periodPoint, window int) []model.EvidenceRef {
	start := 0
	if window > 0 && len(points) > window {
		start = len(points) - window
	}
	var refs []model.EvidenceRef
	for _, pt := range points[start:] {
		refs = append(refs, pt.evidence...)
	}
	return refs
}
