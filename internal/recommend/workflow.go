package recommend

import (
	"context"

	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/store"
)

// Submit moves a draft recommendation into review, recording actor as the
// reviewer.
func Submit(ctx context.Context, st store.Store, id, actor string) (*model.Recommendation, error) {
	return st.TransitionRecommendation(ctx, id, model.RecStatusUnderReview, actor)
}

// Approve finalizes a recommendation under review. The approver must differ
// from the reviewer; the store rejects the transition otherwise.
func Approve(ctx context.Context, st store.Store, id, actor string) (*model.Recommendation, error) {
	return st.TransitionRecommendation(ctx, id, model.RecStatusApproved, actor)
}

// Reject finalizes a recommendation under review as rejected, under the same
// separation-of-duties rule as Approve.
func Reject(ctx context.Context, st store.Store, id, actor string) (*model.Recommendation, error) {
	return st.TransitionRecommendation(ctx, id, model.RecStatusRejected, actor)
}
