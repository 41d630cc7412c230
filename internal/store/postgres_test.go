package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/resilience"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgres(mock), mock
}

func TestPostgresCreateRun(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO ingestion_runs`).
		WithArgs(pgxmock.AnyArg(), "central_bank", "AR", "pending",
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	run := &model.IngestionRun{Source: "central_bank", Jurisdiction: "AR"}
	require.NoError(t, s.CreateRun(context.Background(), run))
	assert.NotEmpty(t, run.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFinalizeRun_AlreadyFinalized(t *testing.T) {
	s, mock := newMockStore(t)

	finalized := time.Now().UTC()
	mock.ExpectExec(`UPDATE ingestion_runs`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), "run-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery(`SELECT .+ FROM ingestion_runs`).
		WithArgs("run-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "source", "jurisdiction", "status", "fetched", "stored", "skipped", "failed",
			"window_start", "window_end", "error", "retries", "item_errors", "started_at", "finalized_at",
		}).AddRow(
			"run-1", "central_bank", "AR", "succeeded", 5, 5, 0, 0,
			nil, nil, "", 0, []byte("[]"), time.Now().UTC(), &finalized,
		))

	run := &model.IngestionRun{ID: "run-1", Source: "central_bank", Status: model.RunStatusSucceeded}
	err := s.FinalizeRun(context.Background(), run)
	require.Error(t, err)
	assert.True(t, resilience.IsPolicyViolation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetLatest_NoRows(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM observations`).
		WithArgs("AR", "inflation_rate", "", "2025-01", "central_bank").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	obs, err := s.GetLatest(context.Background(), model.NaturalKey{
		Entity: "AR", Indicator: "inflation_rate", Period: "2025-01", Source: "central_bank",
	})
	require.NoError(t, err)
	assert.Nil(t, obs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Every failed transition is audited, not just policy violations. The
// sqlite backend behaves the same way.
func TestPostgresTransition_FailureIsAudited(t *testing.T) {
	s, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM recommendations .+ FOR UPDATE`).
		WithArgs("rec-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "jurisdiction", "policy_area", "period_bucket", "title", "description",
			"priority", "urgency", "confidence", "finding_ids", "entities", "status",
			"reviewer", "approver", "created_at", "updated_at",
		}).AddRow(
			"rec-1", "AR", "monetary_policy", "2025-06", "Tighten stance", "",
			"high", "immediate", 0.6, []byte(`["f-1"]`), []byte(`["AR"]`), "under_review",
			"analyst.perez", "", now, now,
		))
	mock.ExpectRollback()
	mock.ExpectQuery(`INSERT INTO audit_log`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "", model.ActionRecommendationTxn,
			"failure", "recommendation", "rec-1", "AR", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(9)))

	// Empty actor fails validation, which is not a policy violation.
	_, err := s.TransitionRecommendation(context.Background(), "rec-1", model.RecStatusApproved, "")
	require.Error(t, err)
	assert.False(t, resilience.IsPolicyViolation(err))
	assert.True(t, resilience.IsValidation(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresPurge_OpensGateInTx(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SET LOCAL econwatch.allow_purge`).
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectExec(`DELETE FROM observations`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))
	mock.ExpectQuery(`INSERT INTO audit_log`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "admin:ops", model.ActionObservationPurge,
			"success", "observation", "2019-01", pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(1)))
	mock.ExpectCommit()

	purged, err := s.PurgeObservationsBefore(context.Background(), "2019-01", "admin:ops")
	require.NoError(t, err)
	assert.Equal(t, int64(3), purged)
	assert.NoError(t, mock.ExpectationsWereMet())
}
