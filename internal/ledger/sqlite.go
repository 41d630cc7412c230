package ledger

import (
	"context"
	"database/sql"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/resilience"
)

// SQLite implements Ledger on database/sql with the modernc sqlite driver.
// Timestamps are stored as fixed-width UTC text; triggers reject UPDATE and
// DELETE the same way the postgres backend does.
type SQLite struct {
	db     *sql.DB
	halted atomic.Bool
}

// NewSQLite creates a SQLite ledger on an existing handle.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS audit_log (
	id            TEXT PRIMARY KEY,
	seq           INTEGER UNIQUE,
	ts            TEXT NOT NULL,
	actor         TEXT NOT NULL,
	action        TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	jurisdiction  TEXT NOT NULL DEFAULT '',
	before        BLOB,
	after         BLOB,
	detail        TEXT NOT NULL DEFAULT '',
	checksum      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log (ts, seq);
CREATE INDEX IF NOT EXISTS idx_audit_log_resource ON audit_log (resource_type, resource_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON audit_log (actor);

CREATE TRIGGER IF NOT EXISTS audit_log_no_update
BEFORE UPDATE ON audit_log
BEGIN
	SELECT RAISE(ABORT, 'audit_log is append-only');
END;

CREATE TRIGGER IF NOT EXISTS audit_log_no_delete
BEFORE DELETE ON audit_log
BEGIN
	SELECT RAISE(ABORT, 'audit_log is append-only');
END;
`

// Migrate creates the audit_log table and its protective triggers.
func (l *SQLite) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "ledger: migrate")
}

// sqliteTimeLayout is fixed-width so lexicographic ORDER BY on the ts text
// column matches chronological order. RFC3339Nano would trim trailing
// fractional zeros and break that. Prepare truncates timestamps to
// microseconds, so six digits are lossless.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

const sqliteInsertEntry = `
INSERT INTO audit_log (id, seq, ts, actor, action, outcome, resource_type, resource_id, jurisdiction, before, after, detail, checksum)
VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM audit_log), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING seq`

// Record appends an entry. Once it returns nil the entry is durable.
func (l *SQLite) Record(ctx context.Context, e *model.AuditEntry) (*model.AuditEntry, error) {
	if l.halted.Load() {
		return nil, eris.New("ledger: halted pending operator intervention")
	}

	Prepare(e)
	err := l.db.QueryRowContext(ctx, sqliteInsertEntry,
		e.ID, e.Timestamp.UTC().Format(sqliteTimeLayout), e.Actor, e.Action, string(e.Outcome),
		e.ResourceType, e.ResourceID, e.Jurisdiction,
		[]byte(e.Before), []byte(e.After), e.Detail, e.Checksum,
	).Scan(&e.Seq)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: record entry")
	}
	return e, nil
}

// AppendTx appends an entry inside a caller-owned transaction, so an
// observation and its audit entry commit or roll back together.
func (l *SQLite) AppendTx(ctx context.Context, tx *sql.Tx, e *model.AuditEntry) error {
	if l.halted.Load() {
		return eris.New("ledger: halted pending operator intervention")
	}

	Prepare(e)
	err := tx.QueryRowContext(ctx, sqliteInsertEntry,
		e.ID, e.Timestamp.UTC().Format(sqliteTimeLayout), e.Actor, e.Action, string(e.Outcome),
		e.ResourceType, e.ResourceID, e.Jurisdiction,
		[]byte(e.Before), []byte(e.After), e.Detail, e.Checksum,
	).Scan(&e.Seq)
	return eris.Wrap(err, "ledger: append entry in tx")
}

const sqliteSelectEntry = `
SELECT id, seq, ts, actor, action, outcome, resource_type, resource_id, jurisdiction, before, after, detail, checksum
FROM audit_log`

// Query returns entries matching the filter, ordered by timestamp then
// insertion sequence. Every scanned entry is checksum-verified; a mismatch
// halts the ledger and surfaces an IntegrityError.
func (l *SQLite) Query(ctx context.Context, f Filter) ([]model.AuditEntry, error) {
	query := sqliteSelectEntry + ` WHERE 1=1`
	var args []any

	if f.Actor != "" {
		query += ` AND actor = ?`
		args = append(args, f.Actor)
	}
	if f.Action != "" {
		query += ` AND action = ?`
		args = append(args, f.Action)
	}
	if f.Outcome != "" {
		query += ` AND outcome = ?`
		args = append(args, string(f.Outcome))
	}
	if f.ResourceType != "" {
		query += ` AND resource_type = ?`
		args = append(args, f.ResourceType)
	}
	if f.ResourceID != "" {
		query += ` AND resource_id = ?`
		args = append(args, f.ResourceID)
	}
	if f.Jurisdiction != "" {
		query += ` AND jurisdiction = ?`
		args = append(args, f.Jurisdiction)
	}
	if !f.Since.IsZero() {
		query += ` AND ts >= ?`
		args = append(args, f.Since.UTC().Format(sqliteTimeLayout))
	}
	if !f.Until.IsZero() {
		query += ` AND ts < ?`
		args = append(args, f.Until.UTC().Format(sqliteTimeLayout))
	}
	if f.AfterSeq > 0 {
		query += ` AND seq > ?`
		args = append(args, f.AfterSeq)
	}
	query += ` ORDER BY ts ASC, seq ASC`

	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ` + strconv.Itoa(limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: query")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, err
		}
		if err := l.checkEntry(ctx, e); err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, eris.Wrap(rows.Err(), "ledger: query iterate")
}

// Verify recomputes every entry's checksum. The first mismatch halts the
// ledger; the report still lists all bad entries found.
func (l *SQLite) Verify(ctx context.Context) (*VerifyReport, error) {
	start := time.Now()
	report := &VerifyReport{}

	rows, err := l.db.QueryContext(ctx, sqliteSelectEntry+` ORDER BY seq ASC`)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: verify query")
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, err
		}
		report.Checked++
		if Checksum(e) != e.Checksum {
			report.BadIDs = append(report.BadIDs, e.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "ledger: verify iterate")
	}

	report.Duration = time.Since(start)
	if len(report.BadIDs) > 0 {
		l.halt(ctx, report.BadIDs[0])
		return report, eris.Wrap(
			&resilience.IntegrityError{EntryID: report.BadIDs[0], Detail: "recomputed checksum differs"},
			"ledger: verify",
		)
	}
	return report, nil
}

// Halted reports whether the ledger has stopped accepting writes.
func (l *SQLite) Halted() bool { return l.halted.Load() }

// ResetHalt clears the halt latch after operator intervention.
func (l *SQLite) ResetHalt() { l.halted.Store(false) }

func (l *SQLite) checkEntry(ctx context.Context, e *model.AuditEntry) error {
	if Checksum(e) == e.Checksum {
		return nil
	}
	l.halt(ctx, e.ID)
	return eris.Wrap(
		&resilience.IntegrityError{EntryID: e.ID, Detail: "recomputed checksum differs"},
		"ledger: read",
	)
}

func (l *SQLite) halt(ctx context.Context, badID string) {
	entry := &model.AuditEntry{
		Actor:        "system",
		Action:       model.ActionLedgerHalt,
		Outcome:      model.AuditFailure,
		ResourceType: "audit_entry",
		ResourceID:   badID,
		Detail:       "checksum mismatch detected; ledger halted",
	}
	if _, err := l.Record(ctx, entry); err != nil {
		zap.L().Error("ledger: failed to record halt entry", zap.Error(err))
	}
	l.halted.Store(true)
	zap.L().Error("ledger halted after integrity failure", zap.String("entry_id", badID))
}

func scanSQLiteEntry(rows *sql.Rows) (*model.AuditEntry, error) {
	var e model.AuditEntry
	var ts string
	var before, after []byte
	err := rows.Scan(&e.ID, &e.Seq, &ts, &e.Actor, &e.Action, &e.Outcome,
		&e.ResourceType, &e.ResourceID, &e.Jurisdiction, &before, &after, &e.Detail, &e.Checksum)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: scan entry")
	}
	e.Timestamp, err = time.Parse(sqliteTimeLayout, ts)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: parse entry timestamp")
	}
	e.Timestamp = e.Timestamp.UTC()
	e.Before = before
	e.After = after
	return &e, nil
}
