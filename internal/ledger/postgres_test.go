package ledger

import (
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-group/econwatch/internal/resilience"
)

func newMockLedger(t *testing.T) (*Postgres, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgres(mock), mock
}

var pgEntryColumns = []string{
	"id", "seq", "ts", "actor", "action", "outcome",
	"resource_type", "resource_id", "jurisdiction", "before", "after", "detail", "checksum",
}

func TestPostgres_RecordSendsSnapshotBytesVerbatim(t *testing.T) {
	l, mock := newMockLedger(t)

	e := testEntry()
	e.After = []byte(`{"z": 1,  "a": 2}`)

	mock.ExpectQuery(`INSERT INTO audit_log`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), e.Actor, e.Action, "success",
			e.ResourceType, e.ResourceID, e.Jurisdiction,
			pgxmock.AnyArg(), []byte(`{"z": 1,  "a": 2}`), "", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(1)))

	stored, err := l.Record(context.Background(), e)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Seq)
	assert.Equal(t, Checksum(stored), stored.Checksum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The checksum covers the exact snapshot bytes written, whitespace and key
// order included. A read that returns those bytes verbatim must verify.
func TestPostgres_QueryVerifiesVerbatimSnapshots(t *testing.T) {
	l, mock := newMockLedger(t)

	e := testEntry()
	e.Before = []byte(`{"value": 1.9}`)
	e.After = []byte("{\n  \"z\": 1,\n  \"a\": 2\n}")
	Prepare(e)

	mock.ExpectQuery(`SELECT .+ FROM audit_log`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(pgEntryColumns).AddRow(
			e.ID, int64(1), e.Timestamp, e.Actor, e.Action, string(e.Outcome),
			e.ResourceType, e.ResourceID, e.Jurisdiction,
			[]byte(e.Before), []byte(e.After), e.Detail, e.Checksum,
		))

	entries, err := l.Query(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, string(e.After), string(entries[0].After))
	assert.False(t, l.Halted())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A backend that re-encodes the snapshot (key reordering, stripped
// whitespace) would hand back different bytes than were checksummed. That
// must surface as an integrity failure, not pass silently.
func TestPostgres_QueryRejectsReencodedSnapshots(t *testing.T) {
	l, mock := newMockLedger(t)

	e := testEntry()
	e.After = []byte(`{"z": 1,  "a": 2}`)
	Prepare(e)

	mock.ExpectQuery(`SELECT .+ FROM audit_log`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(pgEntryColumns).AddRow(
			e.ID, int64(1), e.Timestamp, e.Actor, e.Action, string(e.Outcome),
			e.ResourceType, e.ResourceID, e.Jurisdiction,
			[]byte(e.Before), []byte(`{"a": 2, "z": 1}`), e.Detail, e.Checksum,
		))
	// The halt entry itself is recorded before the latch flips.
	mock.ExpectQuery(`INSERT INTO audit_log`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"seq"}).AddRow(int64(2)))

	_, err := l.Query(context.Background(), Filter{})
	require.Error(t, err)
	assert.True(t, resilience.IsIntegrity(err))
	assert.True(t, l.Halted())
	assert.NoError(t, mock.ExpectationsWereMet())
}
