package model

import (
	"fmt"
	"time"

	"github.com/meridian-group/econwatch/internal/resilience"
)

// RecommendationStatus is the workflow state of a recommendation. Transitions
// are strictly forward: draft -> under_review -> approved | rejected.
type RecommendationStatus string

const (
	RecStatusDraft       RecommendationStatus = "draft"
	RecStatusUnderReview RecommendationStatus = "under_review"
	RecStatusApproved    RecommendationStatus = "approved"
	RecStatusRejected    RecommendationStatus = "rejected"
)

// Terminal reports whether the status permits no further transitions.
func (s RecommendationStatus) Terminal() bool {
	return s == RecStatusApproved || s == RecStatusRejected
}

// CanTransitionTo reports whether next is a legal transition from s.
// No transition skips a state and terminal states are immutable.
func (s RecommendationStatus) CanTransitionTo(next RecommendationStatus) bool {
	switch s {
	case RecStatusDraft:
		return next == RecStatusUnderReview
	case RecStatusUnderReview:
		return next == RecStatusApproved || next == RecStatusRejected
	}
	return false
}

// Priority and urgency ladders carried over from the rule set.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"

	UrgencyImmediate  = "immediate"
	UrgencyShortTerm  = "short_term"
	UrgencyMediumTerm = "medium_term"
	UrgencyLongTerm   = "long_term"
)

// Recommendation is a policy-action proposal derived from one or more
// findings. Once approved or rejected it is immutable.
type Recommendation struct {
	ID           string               `json:"id"`
	Jurisdiction string               `json:"jurisdiction"`
	PolicyArea   string               `json:"policy_area"`
	PeriodBucket string               `json:"period_bucket"`
	Title        string               `json:"title"`
	Description  string               `json:"description,omitempty"`
	Priority     string               `json:"priority"`
	Urgency      string               `json:"urgency"`
	Confidence   float64              `json:"confidence"`
	FindingIDs   []string             `json:"finding_ids"`
	Entities     []string             `json:"entities,omitempty"`
	Status       RecommendationStatus `json:"status"`
	Reviewer     string               `json:"reviewer,omitempty"`
	Approver     string               `json:"approver,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// Transition moves the recommendation to the next status on behalf of actor,
// enforcing the forward-only ladder and separation of duties: the actor who
// submitted a recommendation for review may not approve or reject it.
func (r *Recommendation) Transition(next RecommendationStatus, actor string) error {
	if actor == "" {
		return resilience.NewValidationError("actor", "must not be empty")
	}
	if !r.Status.CanTransitionTo(next) {
		return &resilience.PolicyViolation{
			Rule:   "recommendation.workflow",
			Detail: fmt.Sprintf("cannot transition from %s to %s", r.Status, next),
		}
	}

	switch next {
	case RecStatusUnderReview:
		r.Reviewer = actor
	case RecStatusApproved, RecStatusRejected:
		if actor == r.Reviewer {
			return &resilience.PolicyViolation{
				Rule:   "recommendation.separation_of_duties",
				Detail: fmt.Sprintf("reviewer %s cannot also decide the outcome", actor),
			}
		}
		r.Approver = actor
	}

	r.Status = next
	r.UpdatedAt = time.Now().UTC()
	return nil
}
