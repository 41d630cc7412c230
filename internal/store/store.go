// Package store persists observations, ingestion runs, findings, and
// recommendations on postgres or sqlite. Both backends enforce the same
// immutability rules with database triggers: observations never update and
// only delete through the audited purge gate, finalized runs never change,
// findings never update.
package store

import (
	"context"

	"github.com/meridian-group/econwatch/internal/ledger"
	"github.com/meridian-group/econwatch/internal/model"
)

// HistoryFilter narrows an observation history query. Results are ordered by
// period ascending, then revision ascending.
type HistoryFilter struct {
	Entity     string
	Indicator  string
	SubRegion  string
	Source     string
	FromPeriod model.Period
	ToPeriod   model.Period
	// LatestOnly keeps only the highest revision per natural key.
	LatestOnly bool
	Limit      int
}

// RunFilter narrows an ingestion run listing. Results are ordered by
// started_at descending.
type RunFilter struct {
	Source string
	Status model.RunStatus
	Limit  int
}

// FindingFilter narrows a finding listing. Results are ordered by period
// then created_at descending, so the superseding finding for a subject and
// period comes first.
type FindingFilter struct {
	Entity       string
	Indicator    string
	SubRegion    string
	Jurisdiction string
	Severity     model.Severity
	Period       model.Period
	Limit        int
}

// RecommendationFilter narrows a recommendation listing.
type RecommendationFilter struct {
	Jurisdiction string
	PolicyArea   string
	Status       model.RecommendationStatus
	Limit        int
}

// Store is the persistence boundary for the pipeline. Every state-changing
// operation writes its audit entry in the same transaction as the data, so
// the ledger and the tables can never disagree.
type Store interface {
	// CommitObservation stores a new observation revision under the natural
	// key. If the latest revision already carries identical content the call
	// is a no-op and stored is false. Revision numbers are assigned inside
	// the commit transaction and are gapless per key.
	CommitObservation(ctx context.Context, obs *model.Observation, actor string) (committed *model.Observation, stored bool, err error)

	// GetLatest returns the highest revision for the key, or nil when the
	// key has never been observed.
	GetLatest(ctx context.Context, key model.NaturalKey) (*model.Observation, error)

	GetObservation(ctx context.Context, id string) (*model.Observation, error)
	GetHistory(ctx context.Context, f HistoryFilter) ([]model.Observation, error)

	// PurgeObservationsBefore deletes every revision of every key whose
	// period starts before the cutoff, and records one audit entry naming
	// the actor and the row count. This is the only path past the
	// delete-rejecting triggers.
	PurgeObservationsBefore(ctx context.Context, cutoff model.Period, actor string) (int64, error)

	CreateRun(ctx context.Context, run *model.IngestionRun) error
	// FinalizeRun persists the run's terminal status and counts exactly
	// once; a second finalization attempt is a policy violation.
	FinalizeRun(ctx context.Context, run *model.IngestionRun) error
	GetRun(ctx context.Context, id string) (*model.IngestionRun, error)
	ListRuns(ctx context.Context, f RunFilter) ([]model.IngestionRun, error)

	StoreFinding(ctx context.Context, finding *model.Finding, actor string) error
	ListFindings(ctx context.Context, f FindingFilter) ([]model.Finding, error)

	CreateRecommendation(ctx context.Context, rec *model.Recommendation, actor string) error
	GetRecommendation(ctx context.Context, id string) (*model.Recommendation, error)
	ListRecommendations(ctx context.Context, f RecommendationFilter) ([]model.Recommendation, error)
	// TransitionRecommendation applies one workflow transition under the
	// forward-only and separation-of-duties rules. Rejected attempts are
	// audited as failures.
	TransitionRecommendation(ctx context.Context, id string, next model.RecommendationStatus, actor string) (*model.Recommendation, error)

	// Ledger exposes the audit ledger backing this store.
	Ledger() ledger.Ledger

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// scannable abstracts pgx.Row and *sql.Row for the scan helpers.
type scannable interface {
	Scan(dest ...any) error
}
