package ledger

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-group/econwatch/internal/db"
	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/resilience"
)

func testEntry() *model.AuditEntry {
	after, _ := json.Marshal(map[string]any{"value": 2.1})
	return &model.AuditEntry{
		Actor:        "ingest:treasury_feed",
		Action:       model.ActionObservationCommit,
		Outcome:      model.AuditSuccess,
		ResourceType: "observation",
		ResourceID:   "obs-1",
		Jurisdiction: "US",
		After:        after,
	}
}

func TestChecksum_Deterministic(t *testing.T) {
	e := testEntry()
	Prepare(e)

	first := Checksum(e)
	require.Equal(t, e.Checksum, first)
	assert.Equal(t, first, Checksum(e))
	assert.Len(t, first, 64)
}

func TestChecksum_ExcludesSeq(t *testing.T) {
	e := testEntry()
	Prepare(e)

	sum := Checksum(e)
	e.Seq = 999
	assert.Equal(t, sum, Checksum(e))
}

func TestChecksum_SensitiveToContent(t *testing.T) {
	a := testEntry()
	Prepare(a)

	b := *a
	b.Detail = "tampered"
	assert.NotEqual(t, Checksum(a), Checksum(&b))
}

func TestPrepare_TruncatesToMicroseconds(t *testing.T) {
	e := testEntry()
	e.Timestamp = time.Date(2026, 3, 14, 9, 26, 53, 589793238, time.UTC)
	Prepare(e)

	assert.Equal(t, 589793000, e.Timestamp.Nanosecond())
	assert.NotEmpty(t, e.ID)
}

func newSQLiteLedger(t *testing.T) *SQLite {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	l := NewSQLite(conn)
	require.NoError(t, l.Migrate(context.Background()))
	return l
}

func TestSQLite_RecordAndQuery(t *testing.T) {
	ctx := context.Background()
	l := newSQLiteLedger(t)

	stored, err := l.Record(ctx, testEntry())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Seq)
	assert.NotEmpty(t, stored.Checksum)

	entries, err := l.Query(ctx, Filter{ResourceID: "obs-1"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, stored.ID, entries[0].ID)
	assert.Equal(t, stored.Checksum, entries[0].Checksum)
	assert.Equal(t, stored.Timestamp, entries[0].Timestamp)
	assert.JSONEq(t, string(stored.After), string(entries[0].After))
}

func TestSQLite_SeqIsMonotonic(t *testing.T) {
	ctx := context.Background()
	l := newSQLiteLedger(t)

	for i := 0; i < 5; i++ {
		_, err := l.Record(ctx, testEntry())
		require.NoError(t, err)
	}

	entries, err := l.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestSQLite_OrderSurvivesFractionalSeconds(t *testing.T) {
	ctx := context.Background()
	l := newSQLiteLedger(t)

	// Recorded out of chronological order, with one timestamp on a whole
	// second and one inside it. A trimmed-fraction text encoding would sort
	// the whole second after the fractional one.
	half := testEntry()
	half.Timestamp = time.Date(2026, 1, 2, 3, 4, 5, 500_000_000, time.UTC)
	_, err := l.Record(ctx, half)
	require.NoError(t, err)

	whole := testEntry()
	whole.Timestamp = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	_, err = l.Record(ctx, whole)
	require.NoError(t, err)

	entries, err := l.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, whole.ID, entries[0].ID)
	assert.Equal(t, half.ID, entries[1].ID)

	// Range filters compare the same fixed-width text.
	since, err := l.Query(ctx, Filter{Since: time.Date(2026, 1, 2, 3, 4, 5, 250_000_000, time.UTC)})
	require.NoError(t, err)
	require.Len(t, since, 1)
	assert.Equal(t, half.ID, since[0].ID)

	until, err := l.Query(ctx, Filter{Until: time.Date(2026, 1, 2, 3, 4, 5, 500_000_000, time.UTC)})
	require.NoError(t, err)
	require.Len(t, until, 1)
	assert.Equal(t, whole.ID, until[0].ID)
}

func TestSQLite_QueryFilters(t *testing.T) {
	ctx := context.Background()
	l := newSQLiteLedger(t)

	a := testEntry()
	_, err := l.Record(ctx, a)
	require.NoError(t, err)

	b := testEntry()
	b.Actor = "analyst:lee"
	b.Action = model.ActionRecommendationTxn
	b.ResourceType = "recommendation"
	b.ResourceID = "rec-1"
	b.Outcome = model.AuditFailure
	_, err = l.Record(ctx, b)
	require.NoError(t, err)

	byActor, err := l.Query(ctx, Filter{Actor: "analyst:lee"})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "rec-1", byActor[0].ResourceID)

	byOutcome, err := l.Query(ctx, Filter{Outcome: model.AuditFailure})
	require.NoError(t, err)
	assert.Len(t, byOutcome, 1)

	afterFirst, err := l.Query(ctx, Filter{AfterSeq: 1})
	require.NoError(t, err)
	require.Len(t, afterFirst, 1)
	assert.Equal(t, int64(2), afterFirst[0].Seq)
}

func TestSQLite_TriggersRejectMutation(t *testing.T) {
	ctx := context.Background()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer conn.Close()

	l := NewSQLite(conn)
	require.NoError(t, l.Migrate(ctx))
	stored, err := l.Record(ctx, testEntry())
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, "UPDATE audit_log SET detail = 'rewritten' WHERE id = ?", stored.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")

	_, err = conn.ExecContext(ctx, "DELETE FROM audit_log WHERE id = ?", stored.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append-only")
}

func TestSQLite_VerifyCleanLedger(t *testing.T) {
	ctx := context.Background()
	l := newSQLiteLedger(t)

	for i := 0; i < 3; i++ {
		_, err := l.Record(ctx, testEntry())
		require.NoError(t, err)
	}

	report, err := l.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Checked)
	assert.Empty(t, report.BadIDs)
	assert.False(t, l.Halted())
}

func TestSQLite_VerifyDetectsTamperAndHalts(t *testing.T) {
	ctx := context.Background()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer conn.Close()

	l := NewSQLite(conn)
	require.NoError(t, l.Migrate(ctx))
	stored, err := l.Record(ctx, testEntry())
	require.NoError(t, err)

	// Simulate out-of-band tampering: drop the trigger, rewrite the row.
	_, err = conn.ExecContext(ctx, "DROP TRIGGER audit_log_no_update")
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "UPDATE audit_log SET detail = 'rewritten' WHERE id = ?", stored.ID)
	require.NoError(t, err)

	report, err := l.Verify(ctx)
	require.Error(t, err)
	assert.True(t, resilience.IsIntegrity(err))
	require.NotNil(t, report)
	assert.Equal(t, []string{stored.ID}, report.BadIDs)
	assert.True(t, l.Halted())

	// Halted ledger refuses new entries until reset.
	_, err = l.Record(ctx, testEntry())
	require.Error(t, err)

	l.ResetHalt()
	_, err = l.Record(ctx, testEntry())
	assert.NoError(t, err)
}

func TestSQLite_HaltEntryIsRecorded(t *testing.T) {
	ctx := context.Background()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	defer conn.Close()

	l := NewSQLite(conn)
	require.NoError(t, l.Migrate(ctx))
	stored, err := l.Record(ctx, testEntry())
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, "DROP TRIGGER audit_log_no_update")
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, "UPDATE audit_log SET jurisdiction = 'ZZ' WHERE id = ?", stored.ID)
	require.NoError(t, err)

	_, err = l.Verify(ctx)
	require.Error(t, err)

	l.ResetHalt()
	halts, err := l.Query(ctx, Filter{Action: model.ActionLedgerHalt})
	require.NoError(t, err)
	require.Len(t, halts, 1)
	assert.Equal(t, model.AuditFailure, halts[0].Outcome)
	assert.Equal(t, stored.ID, halts[0].ResourceID)
}
