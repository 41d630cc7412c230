// Package recommend turns findings into policy-action recommendations and
// drives their review workflow. Generation is rule-driven: a YAML rule set
// maps indicator types to policy areas and severities to priority and
// urgency ladders, so analysts can retune the output without a rebuild.
package recommend

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/meridian-group/econwatch/internal/model"
)

// Rule maps one indicator type to a policy area, optionally overriding the
// generated title and description.
type Rule struct {
	Indicator   string `yaml:"indicator"`
	PolicyArea  string `yaml:"policy_area"`
	Title       string `yaml:"title,omitempty"`
	Description string `yaml:"description,omitempty"`
}

// Ladder assigns priority and urgency for one severity level.
type Ladder struct {
	Priority string `yaml:"priority"`
	Urgency  string `yaml:"urgency"`
}

// RuleSet is the full recommendation rule configuration.
type RuleSet struct {
	// DefaultPolicyArea catches indicators without an explicit rule.
	DefaultPolicyArea string            `yaml:"default_policy_area"`
	Rules             []Rule            `yaml:"rules"`
	Ladders           map[string]Ladder `yaml:"ladders"`

	byIndicator map[string]Rule
}

var validPriorities = map[string]bool{
	model.PriorityLow: true, model.PriorityMedium: true,
	model.PriorityHigh: true, model.PriorityCritical: true,
}

var validUrgencies = map[string]bool{
	model.UrgencyImmediate: true, model.UrgencyShortTerm: true,
	model.UrgencyMediumTerm: true, model.UrgencyLongTerm: true,
}

// DefaultRules is the built-in rule set used when no rules file is
// configured.
func DefaultRules() *RuleSet {
	rs := &RuleSet{
		DefaultPolicyArea: "economic_policy",
		Rules: []Rule{
			{Indicator: "inflation_rate", PolicyArea: "monetary_policy"},
			{Indicator: "fx_reserves", PolicyArea: "monetary_policy"},
			{Indicator: "exchange_rate", PolicyArea: "monetary_policy"},
			{Indicator: "unemployment_rate", PolicyArea: "labor_policy"},
			{Indicator: "gdp_growth", PolicyArea: "fiscal_policy"},
			{Indicator: "public_debt", PolicyArea: "fiscal_policy"},
		},
		Ladders: map[string]Ladder{
			string(model.SeverityCritical): {Priority: model.PriorityCritical, Urgency: model.UrgencyImmediate},
			string(model.SeverityWarning):  {Priority: model.PriorityMedium, Urgency: model.UrgencyShortTerm},
		},
	}
	rs.index()
	return rs
}

// LoadRules reads and validates a YAML rule set.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "recommend: read rules %s", path)
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, eris.Wrapf(err, "recommend: parse rules %s", path)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}
	rs.index()
	return &rs, nil
}

// Validate checks that every rule names a policy area and every ladder uses
// known priority and urgency values.
func (rs *RuleSet) Validate() error {
	if rs.DefaultPolicyArea == "" {
		return eris.New("recommend: rules missing default_policy_area")
	}
	for _, r := range rs.Rules {
		if r.Indicator == "" || r.PolicyArea == "" {
			return eris.Errorf("recommend: rule %+v missing indicator or policy_area", r)
		}
	}
	for severity, ladder := range rs.Ladders {
		if !validPriorities[ladder.Priority] {
			return eris.Errorf("recommend: ladder %s has unknown priority %q", severity, ladder.Priority)
		}
		if !validUrgencies[ladder.Urgency] {
			return eris.Errorf("recommend: ladder %s has unknown urgency %q", severity, ladder.Urgency)
		}
	}
	return nil
}

func (rs *RuleSet) index() {
	rs.byIndicator = make(map[string]Rule, len(rs.Rules))
	for _, r := range rs.Rules {
		rs.byIndicator[r.Indicator] = r
	}
}

// PolicyAreaFor resolves the policy area for an indicator type.
func (rs *RuleSet) PolicyAreaFor(indicator string) string {
	if r, ok := rs.byIndicator[indicator]; ok {
		return r.PolicyArea
	}
	return rs.DefaultPolicyArea
}

// RuleFor returns the explicit rule for an indicator, if any.
func (rs *RuleSet) RuleFor(indicator string) (Rule, bool) {
	r, ok := rs.byIndicator[indicator]
	return r, ok
}

// LadderFor resolves priority and urgency for a severity. Severities without
// a ladder entry fall back to a conservative default.
func (rs *RuleSet) LadderFor(severity model.Severity) Ladder {
	if l, ok := rs.Ladders[string(severity)]; ok {
		return l
	}
	if severity == model.SeverityCritical {
		return Ladder{Priority: model.PriorityCritical, Urgency: model.UrgencyImmediate}
	}
	return Ladder{Priority: model.PriorityMedium, Urgency: model.UrgencyMediumTerm}
}
