package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/meridian-group/econwatch/internal/db"
	"github.com/meridian-group/econwatch/internal/ledger"
	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/resilience"
)

// sqliteTimeLayout is fixed-width so lexicographic ORDER BY on timestamp
// text columns matches chronological order. Reads still parse RFC3339Nano,
// which accepts this form.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000Z"

// SQLiteStore implements Store using modernc.org/sqlite. The single-writer
// connection serializes revision assignment without explicit key locks.
type SQLiteStore struct {
	db  *sql.DB
	led *ledger.SQLite
}

// NewSQLite opens a SQLite database at the given path.
func NewSQLite(path string) (*SQLiteStore, error) {
	conn, err := db.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: conn, led: ledger.NewSQLite(conn)}, nil
}

const sqliteStoreMigration = `
CREATE TABLE IF NOT EXISTS observations (
	id             TEXT PRIMARY KEY,
	entity         TEXT NOT NULL,
	indicator      TEXT NOT NULL,
	sub_region     TEXT NOT NULL DEFAULT '',
	period         TEXT NOT NULL,
	period_start   TEXT NOT NULL,
	source         TEXT NOT NULL,
	revision       INTEGER NOT NULL,
	value          REAL NOT NULL,
	unit           TEXT NOT NULL DEFAULT '',
	official       INTEGER NOT NULL DEFAULT 0,
	confidence     REAL,
	jurisdiction   TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL,
	metadata       TEXT,
	raw            BLOB,
	created_at     TEXT NOT NULL,
	UNIQUE (entity, indicator, sub_region, period, source, revision)
);

CREATE INDEX IF NOT EXISTS idx_observations_key
	ON observations (entity, indicator, sub_region, period, source);
CREATE INDEX IF NOT EXISTS idx_observations_period_start ON observations (period_start);

CREATE TABLE IF NOT EXISTS purge_gate (
	id   INTEGER PRIMARY KEY CHECK (id = 1),
	open INTEGER NOT NULL DEFAULT 0
);
INSERT OR IGNORE INTO purge_gate (id, open) VALUES (1, 0);

CREATE TRIGGER IF NOT EXISTS observations_no_update
BEFORE UPDATE ON observations
BEGIN
	SELECT RAISE(ABORT, 'observations are immutable; corrections are new revisions');
END;

CREATE TRIGGER IF NOT EXISTS observations_no_delete
BEFORE DELETE ON observations
WHEN (SELECT open FROM purge_gate WHERE id = 1) != 1
BEGIN
	SELECT RAISE(ABORT, 'observations delete only through the audited purge');
END;

CREATE TABLE IF NOT EXISTS ingestion_runs (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	jurisdiction TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	fetched      INTEGER NOT NULL DEFAULT 0,
	stored       INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	window_start TEXT,
	window_end   TEXT,
	error        TEXT NOT NULL DEFAULT '',
	retries      INTEGER NOT NULL DEFAULT 0,
	item_errors  TEXT,
	started_at   TEXT NOT NULL,
	finalized_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_ingestion_runs_source ON ingestion_runs (source, started_at);

CREATE TABLE IF NOT EXISTS findings (
	id           TEXT PRIMARY KEY,
	entity       TEXT NOT NULL,
	indicator    TEXT NOT NULL,
	sub_region   TEXT NOT NULL DEFAULT '',
	period       TEXT NOT NULL,
	period_start TEXT NOT NULL,
	jurisdiction TEXT NOT NULL DEFAULT '',
	severity     TEXT NOT NULL,
	score        REAL,
	discrepancy  REAL,
	trend        TEXT NOT NULL,
	thresholds   TEXT,
	model        TEXT NOT NULL,
	evidence     TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_findings_subject ON findings (entity, indicator, sub_region, period);
CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings (severity);

CREATE TRIGGER IF NOT EXISTS findings_no_update
BEFORE UPDATE ON findings
BEGIN
	SELECT RAISE(ABORT, 'findings are immutable; newer findings supersede');
END;

CREATE TABLE IF NOT EXISTS recommendations (
	id            TEXT PRIMARY KEY,
	jurisdiction  TEXT NOT NULL DEFAULT '',
	policy_area   TEXT NOT NULL,
	period_bucket TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	priority      TEXT NOT NULL,
	urgency       TEXT NOT NULL,
	confidence    REAL NOT NULL DEFAULT 0,
	finding_ids   TEXT,
	entities      TEXT,
	status        TEXT NOT NULL DEFAULT 'draft',
	reviewer      TEXT NOT NULL DEFAULT '',
	approver      TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations (status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteStoreMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return s.led.Migrate(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ledger() ledger.Ledger {
	return s.led
}

const sqliteObsColumns = `id, entity, indicator, sub_region, period, source, revision, value, unit, official, confidence, jurisdiction, classification, metadata, raw, created_at`

func (s *SQLiteStore) CommitObservation(ctx context.Context, obs *model.Observation, actor string) (*model.Observation, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, eris.Wrap(err, "sqlite: begin commit")
	}
	defer tx.Rollback()

	latest, err := getLatestSQLite(ctx, tx, obs.Key())
	if err != nil {
		return nil, false, err
	}

	var before json.RawMessage
	obs.Revision = 0
	if latest != nil {
		if latest.SameContent(obs.Value, obs.Unit, obs.Official, obs.Metadata) {
			return latest, false, nil
		}
		obs.Revision = latest.Revision + 1
		before, err = json.Marshal(latest)
		if err != nil {
			return nil, false, eris.Wrap(err, "sqlite: marshal prior revision")
		}
	}

	obs.ID = uuid.New().String()
	obs.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	metadataJSON, rawJSON, err := encodeObsJSON(obs)
	if err != nil {
		return nil, false, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO observations (`+sqliteObsColumns+`, period_start)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		obs.ID, obs.Entity, obs.Indicator, obs.SubRegion, string(obs.Period), obs.Source,
		obs.Revision, obs.Value, obs.Unit, boolToInt(obs.Official), obs.Confidence,
		obs.Jurisdiction, string(obs.Classification), metadataJSON, rawJSON,
		obs.CreatedAt.UTC().Format(sqliteTimeLayout),
		obs.Period.StartTime().Format(time.RFC3339),
	)
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: insert observation %s", obs.Key())
	}

	entry, err := observationAuditEntry(obs, before, actor)
	if err != nil {
		return nil, false, err
	}
	if err := s.led.AppendTx(ctx, tx, entry); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, eris.Wrap(err, "sqlite: commit observation")
	}
	return obs, true, nil
}

func (s *SQLiteStore) GetLatest(ctx context.Context, key model.NaturalKey) (*model.Observation, error) {
	return getLatestSQLite(ctx, s.db, key)
}

// sqliteQuerier is satisfied by *sql.DB and *sql.Tx.
type sqliteQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getLatestSQLite(ctx context.Context, q sqliteQuerier, key model.NaturalKey) (*model.Observation, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+sqliteObsColumns+` FROM observations
		 WHERE entity = ? AND indicator = ? AND sub_region = ? AND period = ? AND source = ?
		 ORDER BY revision DESC LIMIT 1`,
		key.Entity, key.Indicator, key.SubRegion, string(key.Period), key.Source,
	)
	obs, err := scanObservationSQLite(row)
	if err == sql.ErrNoRows || eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return obs, err
}

func (s *SQLiteStore) GetObservation(ctx context.Context, id string) (*model.Observation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteObsColumns+` FROM observations WHERE id = ?`, id)
	obs, err := scanObservationSQLite(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: observation %s not found", id)
	}
	return obs, err
}

func (s *SQLiteStore) GetHistory(ctx context.Context, f HistoryFilter) ([]model.Observation, error) {
	query := `SELECT ` + sqliteObsColumns + ` FROM observations o WHERE 1=1`
	var args []any

	if f.Entity != "" {
		query += ` AND entity = ?`
		args = append(args, f.Entity)
	}
	if f.Indicator != "" {
		query += ` AND indicator = ?`
		args = append(args, f.Indicator)
	}
	if f.SubRegion != "" {
		query += ` AND sub_region = ?`
		args = append(args, f.SubRegion)
	}
	if f.Source != "" {
		query += ` AND source = ?`
		args = append(args, f.Source)
	}
	if f.FromPeriod != "" {
		query += ` AND period_start >= ?`
		args = append(args, f.FromPeriod.StartTime().Format(time.RFC3339))
	}
	if f.ToPeriod != "" {
		query += ` AND period_start <= ?`
		args = append(args, f.ToPeriod.StartTime().Format(time.RFC3339))
	}
	if f.LatestOnly {
		query += ` AND NOT EXISTS (
			SELECT 1 FROM observations n
			WHERE n.entity = o.entity AND n.indicator = o.indicator
			  AND n.sub_region = o.sub_region AND n.period = o.period
			  AND n.source = o.source AND n.revision > o.revision)`
	}
	query += ` ORDER BY period_start ASC, revision ASC`

	limit := f.Limit
	if limit <= 0 {
		limit = 1000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query history")
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		obs, err := scanObservationSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *obs)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate history")
}

func (s *SQLiteStore) PurgeObservationsBefore(ctx context.Context, cutoff model.Period, actor string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin purge")
	}
	defer tx.Rollback()

	// Open the gate for this transaction only; the delete trigger checks it.
	if _, err := tx.ExecContext(ctx, `UPDATE purge_gate SET open = 1 WHERE id = 1`); err != nil {
		return 0, eris.Wrap(err, "sqlite: open purge gate")
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM observations WHERE period_start < ?`,
		cutoff.StartTime().Format(time.RFC3339))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge observations")
	}
	if _, err := tx.ExecContext(ctx, `UPDATE purge_gate SET open = 0 WHERE id = 1`); err != nil {
		return 0, eris.Wrap(err, "sqlite: close purge gate")
	}

	purged, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: purge rows affected")
	}

	if err := s.led.AppendTx(ctx, tx, purgeAuditEntry(cutoff, purged, actor)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit purge")
	}
	return purged, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.IngestionRun) error {
	prepareRun(run)

	itemErrs, err := json.Marshal(run.ItemErrors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal item errors")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingestion_runs (id, source, jurisdiction, status, window_start, window_end, item_errors, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Jurisdiction, string(run.Status),
		fmtNullTime(run.WindowStart), fmtNullTime(run.WindowEnd),
		string(itemErrs), run.StartedAt.UTC().Format(sqliteTimeLayout),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) FinalizeRun(ctx context.Context, run *model.IngestionRun) error {
	now := time.Now().UTC().Truncate(time.Microsecond)

	itemErrs, err := json.Marshal(run.ItemErrors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal item errors")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE ingestion_runs
		 SET status = ?, fetched = ?, stored = ?, skipped = ?, failed = ?, error = ?, retries = ?, item_errors = ?, finalized_at = ?
		 WHERE id = ? AND finalized_at IS NULL`,
		string(run.Status), run.Fetched, run.Stored, run.Skipped, run.Failed,
		run.Error, run.Retries, string(itemErrs), now.Format(sqliteTimeLayout), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finalize run %s", run.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: finalize rows affected")
	}
	if n == 0 {
		if existing, getErr := s.GetRun(ctx, run.ID); getErr == nil && existing.Finalized() {
			return &resilience.PolicyViolation{Rule: "run.finalize_once", Detail: "run " + run.ID + " is already finalized"}
		}
		return eris.Errorf("sqlite: run %s not found", run.ID)
	}
	run.FinalizedAt = &now
	return nil
}

const sqliteRunColumns = `id, source, jurisdiction, status, fetched, stored, skipped, failed, window_start, window_end, error, retries, item_errors, started_at, finalized_at`

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.IngestionRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+` FROM ingestion_runs WHERE id = ?`, id)
	run, err := scanRunSQLite(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: run %s not found", id)
	}
	return run, err
}

func (s *SQLiteStore) ListRuns(ctx context.Context, f RunFilter) ([]model.IngestionRun, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM ingestion_runs WHERE 1=1`
	var args []any

	if f.Source != "" {
		query += ` AND source = ?`
		args = append(args, f.Source)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []model.IngestionRun
	for rows.Next() {
		run, err := scanRunSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

func (s *SQLiteStore) StoreFinding(ctx context.Context, finding *model.Finding, actor string) error {
	prepareFinding(finding)

	thresholds, evidence, after, err := encodeFindingJSON(finding)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin finding")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO findings (id, entity, indicator, sub_region, period, period_start, jurisdiction, severity, score, discrepancy, trend, thresholds, model, evidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		finding.ID, finding.Subject.Entity, finding.Subject.Indicator, finding.Subject.SubRegion,
		string(finding.Period), finding.Period.StartTime().Format(time.RFC3339),
		finding.Jurisdiction, string(finding.Severity), finding.Score, finding.Discrepancy,
		string(finding.Trend), thresholds, finding.Model, evidence,
		finding.CreatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert finding %s", finding.ID)
	}

	if err := s.led.AppendTx(ctx, tx, findingAuditEntry(finding, after, actor)); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit finding")
}

const sqliteFindingColumns = `id, entity, indicator, sub_region, period, jurisdiction, severity, score, discrepancy, trend, thresholds, model, evidence, created_at`

func (s *SQLiteStore) ListFindings(ctx context.Context, f FindingFilter) ([]model.Finding, error) {
	query := `SELECT ` + sqliteFindingColumns + ` FROM findings WHERE 1=1`
	var args []any

	if f.Entity != "" {
		query += ` AND entity = ?`
		args = append(args, f.Entity)
	}
	if f.Indicator != "" {
		query += ` AND indicator = ?`
		args = append(args, f.Indicator)
	}
	if f.SubRegion != "" {
		query += ` AND sub_region = ?`
		args = append(args, f.SubRegion)
	}
	if f.Jurisdiction != "" {
		query += ` AND jurisdiction = ?`
		args = append(args, f.Jurisdiction)
	}
	if f.Severity != "" {
		query += ` AND severity = ?`
		args = append(args, string(f.Severity))
	}
	if f.Period != "" {
		query += ` AND period = ?`
		args = append(args, string(f.Period))
	}
	query += ` ORDER BY period_start ASC, created_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list findings")
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		finding, err := scanFindingSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *finding)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate findings")
}

func (s *SQLiteStore) CreateRecommendation(ctx context.Context, rec *model.Recommendation, actor string) error {
	prepareRecommendation(rec)

	findingIDs, entities, after, err := encodeRecJSON(rec)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin recommendation")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO recommendations (id, jurisdiction, policy_area, period_bucket, title, description, priority, urgency, confidence, finding_ids, entities, status, reviewer, approver, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Jurisdiction, rec.PolicyArea, rec.PeriodBucket, rec.Title, rec.Description,
		rec.Priority, rec.Urgency, rec.Confidence, findingIDs, entities,
		string(rec.Status), rec.Reviewer, rec.Approver,
		rec.CreatedAt.UTC().Format(sqliteTimeLayout), rec.UpdatedAt.UTC().Format(sqliteTimeLayout),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert recommendation %s", rec.ID)
	}

	if err := s.led.AppendTx(ctx, tx, recommendationCreateEntry(rec, after, actor)); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit recommendation")
}

const sqliteRecColumns = `id, jurisdiction, policy_area, period_bucket, title, description, priority, urgency, confidence, finding_ids, entities, status, reviewer, approver, created_at, updated_at`

func (s *SQLiteStore) GetRecommendation(ctx context.Context, id string) (*model.Recommendation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRecColumns+` FROM recommendations WHERE id = ?`, id)
	rec, err := scanRecommendationSQLite(row)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: recommendation %s not found", id)
	}
	return rec, err
}

func (s *SQLiteStore) ListRecommendations(ctx context.Context, f RecommendationFilter) ([]model.Recommendation, error) {
	query := `SELECT ` + sqliteRecColumns + ` FROM recommendations WHERE 1=1`
	var args []any

	if f.Jurisdiction != "" {
		query += ` AND jurisdiction = ?`
		args = append(args, f.Jurisdiction)
	}
	if f.PolicyArea != "" {
		query += ` AND policy_area = ?`
		args = append(args, f.PolicyArea)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recommendations")
	}
	defer rows.Close()

	var out []model.Recommendation
	for rows.Next() {
		rec, err := scanRecommendationSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate recommendations")
}

func (s *SQLiteStore) TransitionRecommendation(ctx context.Context, id string, next model.RecommendationStatus, actor string) (*model.Recommendation, error) {
	rec, err := s.GetRecommendation(ctx, id)
	if err != nil {
		return nil, err
	}

	prior := rec.Status
	if err := rec.Transition(next, actor); err != nil {
		// Rejected attempts are audited too; the data row is untouched.
		if _, recErr := s.led.Record(ctx, transitionFailureEntry(rec, next, actor, err)); recErr != nil {
			return nil, recErr
		}
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin transition")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE recommendations SET status = ?, reviewer = ?, approver = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(rec.Status), rec.Reviewer, rec.Approver,
		rec.UpdatedAt.UTC().Format(sqliteTimeLayout), rec.ID, string(prior),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: transition recommendation %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: transition rows affected")
	}
	if n == 0 {
		return nil, eris.Errorf("sqlite: recommendation %s changed concurrently", id)
	}

	if err := s.led.AppendTx(ctx, tx, transitionSuccessEntry(rec, prior, actor)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit transition")
	}
	return rec, nil
}

func scanObservationSQLite(row scannable) (*model.Observation, error) {
	var obs model.Observation
	var official int
	var confidence sql.NullFloat64
	var metadata, raw sql.NullString
	var createdAt string

	err := row.Scan(&obs.ID, &obs.Entity, &obs.Indicator, &obs.SubRegion, &obs.Period,
		&obs.Source, &obs.Revision, &obs.Value, &obs.Unit, &official, &confidence,
		&obs.Jurisdiction, &obs.Classification, &metadata, &raw, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan observation")
	}

	obs.Official = official != 0
	if confidence.Valid {
		obs.Confidence = &confidence.Float64
	}
	if metadata.Valid && metadata.String != "" && metadata.String != "null" {
		if err := json.Unmarshal([]byte(metadata.String), &obs.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal observation metadata")
		}
	}
	if raw.Valid && raw.String != "" {
		obs.Raw = json.RawMessage(raw.String)
	}
	obs.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse observation timestamp")
	}
	obs.CreatedAt = obs.CreatedAt.UTC()
	return &obs, nil
}

func scanRunSQLite(row scannable) (*model.IngestionRun, error) {
	var run model.IngestionRun
	var windowStart, windowEnd, finalizedAt, itemErrs sql.NullString
	var startedAt string

	err := row.Scan(&run.ID, &run.Source, &run.Jurisdiction, &run.Status,
		&run.Fetched, &run.Stored, &run.Skipped, &run.Failed,
		&windowStart, &windowEnd, &run.Error, &run.Retries, &itemErrs,
		&startedAt, &finalizedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	if run.WindowStart, err = parseNullTime(windowStart); err != nil {
		return nil, err
	}
	if run.WindowEnd, err = parseNullTime(windowEnd); err != nil {
		return nil, err
	}
	if run.FinalizedAt, err = parseNullTime(finalizedAt); err != nil {
		return nil, err
	}
	if itemErrs.Valid && itemErrs.String != "" && itemErrs.String != "null" {
		if err := json.Unmarshal([]byte(itemErrs.String), &run.ItemErrors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal item errors")
		}
	}
	run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse run timestamp")
	}
	run.StartedAt = run.StartedAt.UTC()
	return &run, nil
}

func scanFindingSQLite(row scannable) (*model.Finding, error) {
	var finding model.Finding
	var score, discrepancy sql.NullFloat64
	var thresholds, evidence sql.NullString
	var createdAt string

	err := row.Scan(&finding.ID, &finding.Subject.Entity, &finding.Subject.Indicator,
		&finding.Subject.SubRegion, &finding.Period, &finding.Jurisdiction,
		&finding.Severity, &score, &discrepancy, &finding.Trend,
		&thresholds, &finding.Model, &evidence, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan finding")
	}

	if score.Valid {
		finding.Score = &score.Float64
	}
	if discrepancy.Valid {
		finding.Discrepancy = &discrepancy.Float64
	}
	if thresholds.Valid && thresholds.String != "" && thresholds.String != "null" {
		if err := json.Unmarshal([]byte(thresholds.String), &finding.Thresholds); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal finding thresholds")
		}
	}
	if evidence.Valid && evidence.String != "" && evidence.String != "null" {
		if err := json.Unmarshal([]byte(evidence.String), &finding.Evidence); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal finding evidence")
		}
	}
	finding.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse finding timestamp")
	}
	finding.CreatedAt = finding.CreatedAt.UTC()
	return &finding, nil
}

func scanRecommendationSQLite(row scannable) (*model.Recommendation, error) {
	var rec model.Recommendation
	var findingIDs, entities sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&rec.ID, &rec.Jurisdiction, &rec.PolicyArea, &rec.PeriodBucket,
		&rec.Title, &rec.Description, &rec.Priority, &rec.Urgency, &rec.Confidence,
		&findingIDs, &entities, &rec.Status, &rec.Reviewer, &rec.Approver,
		&createdAt, &updatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "sqlite: scan recommendation")
	}

	if findingIDs.Valid && findingIDs.String != "" && findingIDs.String != "null" {
		if err := json.Unmarshal([]byte(findingIDs.String), &rec.FindingIDs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal finding ids")
		}
	}
	if entities.Valid && entities.String != "" && entities.String != "null" {
		if err := json.Unmarshal([]byte(entities.String), &rec.Entities); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal entities")
		}
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse recommendation timestamp")
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: parse recommendation timestamp")
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func fmtNullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(sqliteTimeLayout)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse timestamp")
	}
	t = t.UTC()
	return &t, nil
}
