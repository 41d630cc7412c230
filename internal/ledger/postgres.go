package ledger

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-group/econwatch/internal/db"
	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/resilience"
)

// Postgres implements Ledger on a pgx pool. The migration installs BEFORE
// UPDATE/DELETE triggers so the append-only guarantee holds against direct
// SQL access, not just against this code.
type Postgres struct {
	pool   db.Pool
	halted atomic.Bool
}

// NewPostgres creates a Postgres ledger on an existing pool.
func NewPostgres(pool db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS audit_log (
	id            TEXT PRIMARY KEY,
	seq           BIGSERIAL,
	ts            TIMESTAMPTZ NOT NULL,
	actor         TEXT NOT NULL,
	action        TEXT NOT NULL,
	outcome       TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	resource_id   TEXT NOT NULL,
	jurisdiction  TEXT NOT NULL DEFAULT '',
	-- Snapshot bytes are stored verbatim: the checksum covers the exact
	-- bytes written, so the column type must not re-encode them the way
	-- JSONB would (key reordering, whitespace).
	before        BYTEA,
	after         BYTEA,
	detail        TEXT NOT NULL DEFAULT '',
	checksum      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log (ts, seq);
CREATE INDEX IF NOT EXISTS idx_audit_log_resource ON audit_log (resource_type, resource_id);
CREATE INDEX IF NOT EXISTS idx_audit_log_actor ON audit_log (actor);

CREATE OR REPLACE FUNCTION audit_log_reject() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'audit_log is append-only';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS audit_log_no_mutate ON audit_log;
CREATE TRIGGER audit_log_no_mutate BEFORE UPDATE OR DELETE ON audit_log
	FOR EACH ROW EXECUTE FUNCTION audit_log_reject();
`

// Migrate creates the audit_log table and its protective triggers.
func (l *Postgres) Migrate(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "ledger: migrate")
}

const pgInsertEntry = `
INSERT INTO audit_log (id, ts, actor, action, outcome, resource_type, resource_id, jurisdiction, before, after, detail, checksum)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
RETURNING seq`

// Record appends an entry. Once it returns nil the entry is durable.
func (l *Postgres) Record(ctx context.Context, e *model.AuditEntry) (*model.AuditEntry, error) {
	if l.halted.Load() {
		return nil, eris.New("ledger: halted pending operator intervention")
	}

	Prepare(e)
	err := l.pool.QueryRow(ctx, pgInsertEntry,
		e.ID, e.Timestamp, e.Actor, e.Action, string(e.Outcome),
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
func (l *Postgres) AppendTx(ctx context.Context, tx pgx.Tx, e *model.AuditEntry) error {
	if l.halted.Load() {
		return eris.New("ledger: halted pending operator intervention")
	}

	Prepare(e)
	err := tx.QueryRow(ctx, pgInsertEntry,
		e.ID, e.Timestamp, e.Actor, e.Action, string(e.Outcome),
		e.ResourceType, e.ResourceID, e.Jurisdiction,
		[]byte(e.Before), []byte(e.After), e.Detail, e.Checksum,
	).Scan(&e.Seq)
	return eris.Wrap(err, "ledger: append entry in tx")
}

const pgSelectEntry = `
SELECT id, seq, ts, actor, action, outcome, resource_type, resource_id, jurisdiction, before, after, detail, checksum
FROM audit_log`

// Query returns entries matching the filter, ordered by timestamp then
// insertion sequence. Every scanned entry is checksum-verified; a mismatch
// halts the ledger and surfaces an IntegrityError.
func (l *Postgres) Query(ctx context.Context, f Filter) ([]model.AuditEntry, error) {
	query := pgSelectEntry + ` WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Actor != "" {
		query += ` AND actor = ` + arg(f.Actor)
	}
	if f.Action != "" {
		query += ` AND action = ` + arg(f.Action)
	}
	if f.Outcome != "" {
		query += ` AND outcome = ` + arg(string(f.Outcome))
	}
	if f.ResourceType != "" {
		query += ` AND resource_type = ` + arg(f.ResourceType)
	}
	if f.ResourceID != "" {
		query += ` AND resource_id = ` + arg(f.ResourceID)
	}
	if f.Jurisdiction != "" {
		query += ` AND jurisdiction = ` + arg(f.Jurisdiction)
	}
	if !f.Since.IsZero() {
		query += ` AND ts >= ` + arg(f.Since)
	}
	if !f.Until.IsZero() {
		query += ` AND ts < ` + arg(f.Until)
	}
	if f.AfterSeq > 0 {
		query += ` AND seq > ` + arg(f.AfterSeq)
	}
	query += ` ORDER BY ts ASC, seq ASC`

	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ` + arg(limit)

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: query")
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		e, err := scanPgEntry(rows)
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
func (l *Postgres) Verify(ctx context.Context) (*VerifyReport, error) {
	start := time.Now()
	report := &VerifyReport{}

	var afterSeq int64
	for {
		rows, err := l.pool.Query(ctx, pgSelectEntry+` WHERE seq > $1 ORDER BY seq ASC LIMIT $2`, afterSeq, 1000)
		if err != nil {
			return nil, eris.Wrap(err, "ledger: verify query")
		}

		n := 0
		for rows.Next() {
			e, err := scanPgEntry(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			report.Checked++
			n++
			afterSeq = e.Seq
			if Checksum(e) != e.Checksum {
				report.BadIDs = append(report.BadIDs, e.ID)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "ledger: verify iterate")
		}
		if n < 1000 {
			break
		}
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
func (l *Postgres) Halted() bool { return l.halted.Load() }

// ResetHalt clears the halt latch after operator intervention.
func (l *Postgres) ResetHalt() { l.halted.Store(false) }

func (l *Postgres) checkEntry(ctx context.Context, e *model.AuditEntry) error {
	if Checksum(e) == e.Checksum {
		return nil
	}
	l.halt(ctx, e.ID)
	return eris.Wrap(
		&resilience.IntegrityError{EntryID: e.ID, Detail: "recomputed checksum differs"},
		"ledger: read",
	)
}

// halt records the failure and latches the ledger closed. The halt entry is
// written before the latch flips so the tamper detection itself is audited.
func (l *Postgres) halt(ctx context.Context, badID string) {
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

func scanPgEntry(rows pgx.Rows) (*model.AuditEntry, error) {
	var e model.AuditEntry
	var before, after []byte
	err := rows.Scan(&e.ID, &e.Seq, &e.Timestamp, &e.Actor, &e.Action, &e.Outcome,
		&e.ResourceType, &e.ResourceID, &e.Jurisdiction, &before, &after, &e.Detail, &e.Checksum)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: scan entry")
	}
	e.Before = before
	e.After = after
	e.Timestamp = e.Timestamp.UTC()
	return &e, nil
}
