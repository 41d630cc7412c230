package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-group/econwatch/internal/resilience"
)

func TestRecommendationStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to RecommendationStatus
		ok       bool
	}{
		{RecStatusDraft, RecStatusUnderReview, true},
		{RecStatusUnderReview, RecStatusApproved, true},
		{RecStatusUnderReview, RecStatusRejected, true},
		{RecStatusDraft, RecStatusApproved, false},
		{RecStatusDraft, RecStatusRejected, false},
		{RecStatusApproved, RecStatusRejected, false},
		{RecStatusApproved, RecStatusUnderReview, false},
		{RecStatusRejected, RecStatusDraft, false},
		{RecStatusUnderReview, RecStatusDraft, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestRecommendationStatus_Terminal(t *testing.T) {
	assert.False(t, RecStatusDraft.Terminal())
	assert.False(t, RecStatusUnderReview.Terminal())
	assert.True(t, RecStatusApproved.Terminal())
	assert.True(t, RecStatusRejected.Terminal())
}

func TestRecommendation_TransitionWorkflow(t *testing.T) {
	r := &Recommendation{Status: RecStatusDraft}

	require.NoError(t, r.Transition(RecStatusUnderReview, "analyst:kim"))
	assert.Equal(t, "analyst:kim", r.Reviewer)

	require.NoError(t, r.Transition(RecStatusApproved, "director:osei"))
	assert.Equal(t, "director:osei", r.Approver)
	assert.True(t, r.Status.Terminal())

	err := r.Transition(RecStatusRejected, "director:osei")
	require.Error(t, err)
	assert.True(t, resilience.IsPolicyViolation(err))
}

func TestRecommendation_TransitionSeparationOfDuties(t *testing.T) {
	r := &Recommendation{Status: RecStatusDraft}
	require.NoError(t, r.Transition(RecStatusUnderReview, "analyst:kim"))

	err := r.Transition(RecStatusApproved, "analyst:kim")
	require.Error(t, err)
	assert.True(t, resilience.IsPolicyViolation(err))
	assert.Equal(t, RecStatusUnderReview, r.Status)

	require.NoError(t, r.Transition(RecStatusRejected, "director:osei"))
}

func TestRecommendation_TransitionSkipsState(t *testing.T) {
	r := &Recommendation{Status: RecStatusDraft}
	err := r.Transition(RecStatusApproved, "director:osei")
	require.Error(t, err)
	assert.True(t, resilience.IsPolicyViolation(err))
}

func TestObservation_SameContent(t *testing.T) {
	o := &Observation{Value: 5.1, Unit: "percent", Official: true, Metadata: map[string]any{"sa": true}}

	assert.True(t, o.SameContent(5.1, "percent", true, map[string]any{"sa": true}))
	assert.False(t, o.SameContent(5.3, "percent", true, map[string]any{"sa": true}))
	assert.False(t, o.SameContent(5.1, "index", true, map[string]any{"sa": true}))
	assert.False(t, o.SameContent(5.1, "percent", false, map[string]any{"sa": true}))
	assert.False(t, o.SameContent(5.1, "percent", true, nil))
}
