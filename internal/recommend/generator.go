package recommend

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/meridian-group/econwatch/internal/config"
	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/store"
)

// Generator aggregates warning and critical findings into draft
// recommendations, one per (jurisdiction, policy area, period bucket).
type Generator struct {
	store store.Store
	cfg   config.RecommendConfig
	rules *RuleSet
	log   *zap.Logger
}

// NewGenerator creates a generator, loading the rule set from
// cfg.RulesPath. An empty path selects the built-in rules.
func NewGenerator(st store.Store, cfg config.RecommendConfig) (*Generator, error) {
	rules := DefaultRules()
	if cfg.RulesPath != "" {
		loaded, err := LoadRules(cfg.RulesPath)
		if err != nil {
			return nil, err
		}
		rules = loaded
	}
	return &Generator{
		store: st,
		cfg:   cfg,
		rules: rules,
		log:   zap.L().With(zap.String("component", "recommend")),
	}, nil
}

// Rules exposes the active rule set.
func (g *Generator) Rules() *RuleSet { return g.rules }

// Generate aggregates findings from the trailing window ending at period
// into draft recommendations and persists them. Groups that already have a
// recommendation for the same period bucket are skipped, so repeated sweeps
// are idempotent.
func (g *Generator) Generate(ctx context.Context, period model.Period) ([]model.Recommendation, error) {
	findings, err := g.windowFindings(ctx, period)
	if err != nil {
		return nil, err
	}

	groups := make(map[groupKey][]model.Finding)
	for _, f := range findings {
		key := groupKey{
			jurisdiction: f.Jurisdiction,
			policyArea:   g.rules.PolicyAreaFor(f.Subject.Indicator),
		}
		groups[key] = append(groups[key], f)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].jurisdiction != keys[j].jurisdiction {
			return keys[i].jurisdiction < keys[j].jurisdiction
		}
		return keys[i].policyArea < keys[j].policyArea
	})

	var created []model.Recommendation
	for _, key := range keys {
		exists, err := g.bucketCovered(ctx, key, period)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		rec := g.draft(key, groups[key], period)
		if err := g.store.CreateRecommendation(ctx, rec, "recommend:generator"); err != nil {
			return nil, err
		}
		created = append(created, *rec)
	}

	g.log.Info("recommendation sweep complete",
		zap.String("period", string(period)),
		zap.Int("findings", len(findings)),
		zap.Int("created", len(created)))
	return created, nil
}

type groupKey struct {
	jurisdiction string
	policyArea   string
}

// windowFindings collects actionable findings from the trailing aggregation
// window ending at period. Only the newest finding per subject and model in
// each period counts: a later re-evaluation supersedes its predecessor, so a
// stale critical must not drive a recommendation after a nominal re-run.
func (g *Generator) windowFindings(ctx context.Context, period model.Period) ([]model.Finding, error) {
	window := g.cfg.AggregationWindowPeriods
	if window < 1 {
		window = 1
	}

	var all []model.Finding
	p := period
	for i := 0; i < window; i++ {
		findings, err := g.store.ListFindings(ctx, store.FindingFilter{Period: p})
		if err != nil {
			return nil, err
		}
		for _, f := range latestPerSubject(findings) {
			if f.Severity == model.SeverityCritical || f.Severity == model.SeverityWarning {
				all = append(all, f)
			}
		}
		p = p.Prev()
	}
	return all, nil
}

type evalKey struct {
	entity    string
	indicator string
	subRegion string
	model     string
}

// latestPerSubject keeps the newest finding for each (subject, model) pair,
// comparing creation times rather than trusting row order.
func latestPerSubject(findings []model.Finding) []model.Finding {
	latest := make(map[evalKey]model.Finding)
	var order []evalKey
	for _, f := range findings {
		key := evalKey{f.Subject.Entity, f.Subject.Indicator, f.Subject.SubRegion, f.Model}
		prev, ok := latest[key]
		if !ok {
			latest[key] = f
			order = append(order, key)
			continue
		}
		if f.CreatedAt.After(prev.CreatedAt) {
			latest[key] = f
		}
	}
	out := make([]model.Finding, 0, len(order))
	for _, k := range order {
		out = append(out, latest[k])
	}
	return out
}

// bucketCovered reports whether the group already has a recommendation for
// this period bucket in any status. Rejected recommendations also count:
// a reviewer's decision stands until new evidence lands in a later bucket.
func (g *Generator) bucketCovered(ctx context.Context, key groupKey, period model.Period) (bool, error) {
	existing, err := g.store.ListRecommendations(ctx, store.RecommendationFilter{
		Jurisdiction: key.jurisdiction,
		PolicyArea:   key.policyArea,
	})
	if err != nil {
		return false, err
	}
	for _, rec := range existing {
		if rec.PeriodBucket == string(period) {
			return true, nil
		}
	}
	return false, nil
}

func (g *Generator) draft(key groupKey, findings []model.Finding, period model.Period) *model.Recommendation {
	criticals := 0
	entities := make(map[string]bool)
	indicators := make(map[string]bool)
	var findingIDs []string
	for _, f := range findings {
		if f.Severity == model.SeverityCritical {
			criticals++
		}
		entities[f.Subject.Entity] = true
		indicators[f.Subject.Indicator] = true
		findingIDs = append(findingIDs, f.ID)
	}
	sort.Strings(findingIDs)

	top := model.SeverityWarning
	if criticals > 0 {
		top = model.SeverityCritical
	}
	ladder := g.rules.LadderFor(top)

	rec := &model.Recommendation{
		Jurisdiction: key.jurisdiction,
		PolicyArea:   key.policyArea,
		PeriodBucket: string(period),
		Priority:     ladder.Priority,
		Urgency:      ladder.Urgency,
		Confidence:   confidence(criticals, len(findings)-criticals),
		FindingIDs:   findingIDs,
		Entities:     sortedKeys(entities),
		Status:       model.RecStatusDraft,
	}
	rec.Title, rec.Description = g.describe(key, sortedKeys(indicators), findings)
	return rec
}

// describe builds the title and description, preferring the template of the
// first ruled indicator in the group.
func (g *Generator) describe(key groupKey, indicators []string, findings []model.Finding) (string, string) {
	for _, indicator := range indicators {
		if r, ok := g.rules.RuleFor(indicator); ok && r.Title != "" {
			return r.Title, r.Description
		}
	}
	area := strings.ReplaceAll(key.policyArea, "_", " ")
	title := fmt.Sprintf("Address %s anomalies in %s", area, key.jurisdiction)
	desc := fmt.Sprintf("%d finding(s) across indicators %s warrant %s review.",
		len(findings), strings.Join(indicators, ", "), area)
	return title, desc
}

// confidence scores the evidence behind a draft: every critical finding
// counts double a warning, saturating below certainty.
func confidence(criticals, warnings int) float64 {
	c := 0.5 + 0.1*float64(criticals) + 0.05*float64(warnings)
	if c > 0.95 {
		c = 0.95
	}
	return c
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
