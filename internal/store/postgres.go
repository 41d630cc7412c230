package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/meridian-group/econwatch/internal/db"
	"github.com/meridian-group/econwatch/internal/ledger"
	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/resilience"
)

// PostgresStore implements Store on pgx. Revision assignment is serialized
// per natural key with a transaction-scoped advisory lock, so concurrent
// commits to the same key cannot race.
type PostgresStore struct {
	pool db.Pool
	led  *ledger.Postgres
}

// NewPostgres creates a store on an existing pool. The pool is shared with
// the ledger so data and audit writes use one transaction.
func NewPostgres(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, led: ledger.NewPostgres(pool)}
}

const postgresStoreMigration = `
CREATE TABLE IF NOT EXISTS observations (
	id             TEXT PRIMARY KEY,
	entity         TEXT NOT NULL,
	indicator      TEXT NOT NULL,
	sub_region     TEXT NOT NULL DEFAULT '',
	period         TEXT NOT NULL,
	period_start   TIMESTAMPTZ NOT NULL,
	source         TEXT NOT NULL,
	revision       INTEGER NOT NULL,
	value          DOUBLE PRECISION NOT NULL,
	unit           TEXT NOT NULL DEFAULT '',
	official       BOOLEAN NOT NULL DEFAULT FALSE,
	confidence     DOUBLE PRECISION,
	jurisdiction   TEXT NOT NULL DEFAULT '',
	classification TEXT NOT NULL,
	metadata       JSONB,
	raw            JSONB,
	created_at     TIMESTAMPTZ NOT NULL,
	UNIQUE (entity, indicator, sub_region, period, source, revision)
);

CREATE INDEX IF NOT EXISTS idx_observations_key
	ON observations (entity, indicator, sub_region, period, source);
CREATE INDEX IF NOT EXISTS idx_observations_period_start ON observations (period_start);

CREATE OR REPLACE FUNCTION observations_reject_update() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'observations are immutable; corrections are new revisions';
END;
$$ LANGUAGE plpgsql;

CREATE OR REPLACE FUNCTION observations_reject_delete() RETURNS trigger AS $$
BEGIN
	IF current_setting('econwatch.allow_purge', true) IS DISTINCT FROM 'on' THEN
		RAISE EXCEPTION 'observations delete only through the audited purge';
	END IF;
	RETURN OLD;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS observations_no_update ON observations;
CREATE TRIGGER observations_no_update BEFORE UPDATE ON observations
	FOR EACH ROW EXECUTE FUNCTION observations_reject_update();

DROP TRIGGER IF EXISTS observations_no_delete ON observations;
CREATE TRIGGER observations_no_delete BEFORE DELETE ON observations
	FOR EACH ROW EXECUTE FUNCTION observations_reject_delete();

CREATE TABLE IF NOT EXISTS ingestion_runs (
	id           TEXT PRIMARY KEY,
	source       TEXT NOT NULL,
	jurisdiction TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	fetched      INTEGER NOT NULL DEFAULT 0,
	stored       INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	window_start TIMESTAMPTZ,
	window_end   TIMESTAMPTZ,
	error        TEXT NOT NULL DEFAULT '',
	retries      INTEGER NOT NULL DEFAULT 0,
	item_errors  JSONB,
	started_at   TIMESTAMPTZ NOT NULL,
	finalized_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_ingestion_runs_source ON ingestion_runs (source, started_at);

CREATE TABLE IF NOT EXISTS findings (
	id           TEXT PRIMARY KEY,
	entity       TEXT NOT NULL,
	indicator    TEXT NOT NULL,
	sub_region   TEXT NOT NULL DEFAULT '',
	period       TEXT NOT NULL,
	period_start TIMESTAMPTZ NOT NULL,
	jurisdiction TEXT NOT NULL DEFAULT '',
	severity     TEXT NOT NULL,
	score        DOUBLE PRECISION,
	discrepancy  DOUBLE PRECISION,
	trend        TEXT NOT NULL,
	thresholds   JSONB,
	model        TEXT NOT NULL,
	evidence     JSONB,
	created_at   TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_findings_subject ON findings (entity, indicator, sub_region, period);
CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings (severity);

CREATE OR REPLACE FUNCTION findings_reject_update() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'findings are immutable; newer findings supersede';
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS findings_no_update ON findings;
CREATE TRIGGER findings_no_update BEFORE UPDATE ON findings
	FOR EACH ROW EXECUTE FUNCTION findings_reject_update();

CREATE TABLE IF NOT EXISTS recommendations (
	id            TEXT PRIMARY KEY,
	jurisdiction  TEXT NOT NULL DEFAULT '',
	policy_area   TEXT NOT NULL,
	period_bucket TEXT NOT NULL DEFAULT '',
	title         TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	priority      TEXT NOT NULL,
	urgency       TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL DEFAULT 0,
	finding_ids   JSONB,
	entities      JSONB,
	status        TEXT NOT NULL DEFAULT 'draft',
	reviewer      TEXT NOT NULL DEFAULT '',
	approver      TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations (status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresStoreMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return s.led.Migrate(ctx)
}

func (s *PostgresStore) Close() error {
	if p, ok := s.pool.(*pgxpool.Pool); ok {
		p.Close()
	}
	return nil
}

func (s *PostgresStore) Ledger() ledger.Ledger {
	return s.led
}

const pgObsColumns = `id, entity, indicator, sub_region, period, source, revision, value, unit, official, confidence, jurisdiction, classification, metadata, raw, created_at`

func (s *PostgresStore) CommitObservation(ctx context.Context, obs *model.Observation, actor string) (*model.Observation, bool, error) {
	var stored bool
	var result *model.Observation

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		// Serialize revision assignment per natural key for this transaction.
		key := obs.Key().String()
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key); err != nil {
			return eris.Wrap(err, "postgres: acquire key lock")
		}

		latest, err := getLatestPg(ctx, tx, obs.Key())
		if err != nil {
			return err
		}

		var before json.RawMessage
		obs.Revision = 0
		if latest != nil {
			if latest.SameContent(obs.Value, obs.Unit, obs.Official, obs.Metadata) {
				result = latest
				return nil
			}
			obs.Revision = latest.Revision + 1
			if before, err = json.Marshal(latest); err != nil {
				return eris.Wrap(err, "postgres: marshal prior revision")
			}
		}

		obs.ID = uuid.New().String()
		obs.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

		metadataJSON, rawJSON, err := encodeObsJSON(obs)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO observations (`+pgObsColumns+`, period_start)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			obs.ID, obs.Entity, obs.Indicator, obs.SubRegion, string(obs.Period), obs.Source,
			obs.Revision, obs.Value, obs.Unit, obs.Official, obs.Confidence,
			obs.Jurisdiction, string(obs.Classification), metadataJSON, rawJSON,
			obs.CreatedAt, obs.Period.StartTime(),
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert observation %s", obs.Key())
		}

		entry, err := observationAuditEntry(obs, before, actor)
		if err != nil {
			return err
		}
		if err := s.led.AppendTx(ctx, tx, entry); err != nil {
			return err
		}

		result = obs
		stored = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, stored, nil
}

func (s *PostgresStore) GetLatest(ctx context.Context, key model.NaturalKey) (*model.Observation, error) {
	return getLatestPg(ctx, s.pool, key)
}

// pgQuerier is satisfied by db.Pool and pgx.Tx.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getLatestPg(ctx context.Context, q pgQuerier, key model.NaturalKey) (*model.Observation, error) {
	row := q.QueryRow(ctx,
		`SELECT `+pgObsColumns+` FROM observations
		 WHERE entity = $1 AND indicator = $2 AND sub_region = $3 AND period = $4 AND source = $5
		 ORDER BY revision DESC LIMIT 1`,
		key.Entity, key.Indicator, key.SubRegion, string(key.Period), key.Source,
	)
	obs, err := scanObservationPg(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return obs, err
}

func (s *PostgresStore) GetObservation(ctx context.Context, id string) (*model.Observation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgObsColumns+` FROM observations WHERE id = $1`, id)
	obs, err := scanObservationPg(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: observation %s not found", id)
	}
	return obs, err
}

func (s *PostgresStore) GetHistory(ctx context.Context, f HistoryFilter) ([]model.Observation, error) {
	query := `SELECT ` + pgObsColumns + ` FROM observations o WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Entity != "" {
		query += ` AND entity = ` + arg(f.Entity)
	}
	if f.Indicator != "" {
		query += ` AND indicator = ` + arg(f.Indicator)
	}
	if f.SubRegion != "" {
		query += ` AND sub_region = ` + arg(f.SubRegion)
	}
	if f.Source != "" {
		query += ` AND source = ` + arg(f.Source)
	}
	if f.FromPeriod != "" {
		query += ` AND period_start >= ` + arg(f.FromPeriod.StartTime())
	}
	if f.ToPeriod != "" {
		query += ` AND period_start <= ` + arg(f.ToPeriod.StartTime())
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
	query += ` LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query history")
	}
	defer rows.Close()

	var out []model.Observation
	for rows.Next() {
		obs, err := scanObservationPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *obs)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate history")
}

func (s *PostgresStore) PurgeObservationsBefore(ctx context.Context, cutoff model.Period, actor string) (int64, error) {
	var purged int64

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		// SET LOCAL scopes the gate to this transaction; the delete trigger
		// checks it and the setting vanishes at commit or rollback.
		if _, err := tx.Exec(ctx, `SET LOCAL econwatch.allow_purge = 'on'`); err != nil {
			return eris.Wrap(err, "postgres: open purge gate")
		}
		tag, err := tx.Exec(ctx,
			`DELETE FROM observations WHERE period_start < $1`, cutoff.StartTime())
		if err != nil {
			return eris.Wrap(err, "postgres: purge observations")
		}
		purged = tag.RowsAffected()

		return s.led.AppendTx(ctx, tx, purgeAuditEntry(cutoff, purged, actor))
	})
	if err != nil {
		return 0, err
	}
	return purged, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.IngestionRun) error {
	prepareRun(run)

	itemErrs, err := json.Marshal(run.ItemErrors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal item errors")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO ingestion_runs (id, source, jurisdiction, status, window_start, window_end, item_errors, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Source, run.Jurisdiction, string(run.Status),
		run.WindowStart, run.WindowEnd, itemErrs, run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) FinalizeRun(ctx context.Context, run *model.IngestionRun) error {
	now := time.Now().UTC().Truncate(time.Microsecond)

	itemErrs, err := json.Marshal(run.ItemErrors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal item errors")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE ingestion_runs
		 SET status = $1, fetched = $2, stored = $3, skipped = $4, failed = $5, error = $6, retries = $7, item_errors = $8, finalized_at = $9
		 WHERE id = $10 AND finalized_at IS NULL`,
		string(run.Status), run.Fetched, run.Stored, run.Skipped, run.Failed,
		run.Error, run.Retries, itemErrs, now, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finalize run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		if existing, getErr := s.GetRun(ctx, run.ID); getErr == nil && existing.Finalized() {
			return &resilience.PolicyViolation{Rule: "run.finalize_once", Detail: "run " + run.ID + " is already finalized"}
		}
		return eris.Errorf("postgres: run %s not found", run.ID)
	}
	run.FinalizedAt = &now
	return nil
}

const pgRunColumns = `id, source, jurisdiction, status, fetched, stored, skipped, failed, window_start, window_end, error, retries, item_errors, started_at, finalized_at`

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.IngestionRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRunColumns+` FROM ingestion_runs WHERE id = $1`, id)
	run, err := scanRunPg(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: run %s not found", id)
	}
	return run, err
}

func (s *PostgresStore) ListRuns(ctx context.Context, f RunFilter) ([]model.IngestionRun, error) {
	query := `SELECT ` + pgRunColumns + ` FROM ingestion_runs WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Source != "" {
		query += ` AND source = ` + arg(f.Source)
	}
	if f.Status != "" {
		query += ` AND status = ` + arg(string(f.Status))
	}
	query += ` ORDER BY started_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.IngestionRun
	for rows.Next() {
		run, err := scanRunPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

func (s *PostgresStore) StoreFinding(ctx context.Context, finding *model.Finding, actor string) error {
	prepareFinding(finding)

	thresholds, evidence, after, err := encodeFindingJSON(finding)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO findings (id, entity, indicator, sub_region, period, period_start, jurisdiction, severity, score, discrepancy, trend, thresholds, model, evidence, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			finding.ID, finding.Subject.Entity, finding.Subject.Indicator, finding.Subject.SubRegion,
			string(finding.Period), finding.Period.StartTime(),
			finding.Jurisdiction, string(finding.Severity), finding.Score, finding.Discrepancy,
			string(finding.Trend), thresholds, finding.Model, evidence, finding.CreatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert finding %s", finding.ID)
		}
		return s.led.AppendTx(ctx, tx, findingAuditEntry(finding, after, actor))
	})
}

const pgFindingColumns = `id, entity, indicator, sub_region, period, jurisdiction, severity, score, discrepancy, trend, thresholds, model, evidence, created_at`

func (s *PostgresStore) ListFindings(ctx context.Context, f FindingFilter) ([]model.Finding, error) {
	query := `SELECT ` + pgFindingColumns + ` FROM findings WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Entity != "" {
		query += ` AND entity = ` + arg(f.Entity)
	}
	if f.Indicator != "" {
		query += ` AND indicator = ` + arg(f.Indicator)
	}
	if f.SubRegion != "" {
		query += ` AND sub_region = ` + arg(f.SubRegion)
	}
	if f.Jurisdiction != "" {
		query += ` AND jurisdiction = ` + arg(f.Jurisdiction)
	}
	if f.Severity != "" {
		query += ` AND severity = ` + arg(string(f.Severity))
	}
	if f.Period != "" {
		query += ` AND period = ` + arg(string(f.Period))
	}
	query += ` ORDER BY period_start ASC, created_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 500
	}
	query += ` LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list findings")
	}
	defer rows.Close()

	var out []model.Finding
	for rows.Next() {
		finding, err := scanFindingPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *finding)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate findings")
}

func (s *PostgresStore) CreateRecommendation(ctx context.Context, rec *model.Recommendation, actor string) error {
	prepareRecommendation(rec)

	findingIDs, entities, after, err := encodeRecJSON(rec)
	if err != nil {
		return err
	}

	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO recommendations (id, jurisdiction, policy_area, period_bucket, title, description, priority, urgency, confidence, finding_ids, entities, status, reviewer, approver, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			rec.ID, rec.Jurisdiction, rec.PolicyArea, rec.PeriodBucket, rec.Title, rec.Description,
			rec.Priority, rec.Urgency, rec.Confidence, findingIDs, entities,
			string(rec.Status), rec.Reviewer, rec.Approver, rec.CreatedAt, rec.UpdatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: insert recommendation %s", rec.ID)
		}
		return s.led.AppendTx(ctx, tx, recommendationCreateEntry(rec, after, actor))
	})
}

const pgRecColumns = `id, jurisdiction, policy_area, period_bucket, title, description, priority, urgency, confidence, finding_ids, entities, status, reviewer, approver, created_at, updated_at`

func (s *PostgresStore) GetRecommendation(ctx context.Context, id string) (*model.Recommendation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pgRecColumns+` FROM recommendations WHERE id = $1`, id)
	rec, err := scanRecommendationPg(row)
	if eris.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: recommendation %s not found", id)
	}
	return rec, err
}

func (s *PostgresStore) ListRecommendations(ctx context.Context, f RecommendationFilter) ([]model.Recommendation, error) {
	query := `SELECT ` + pgRecColumns + ` FROM recommendations WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Jurisdiction != "" {
		query += ` AND jurisdiction = ` + arg(f.Jurisdiction)
	}
	if f.PolicyArea != "" {
		query += ` AND policy_area = ` + arg(f.PolicyArea)
	}
	if f.Status != "" {
		query += ` AND status = ` + arg(string(f.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recommendations")
	}
	defer rows.Close()

	var out []model.Recommendation
	for rows.Next() {
		rec, err := scanRecommendationPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate recommendations")
}

func (s *PostgresStore) TransitionRecommendation(ctx context.Context, id string, next model.RecommendationStatus, actor string) (*model.Recommendation, error) {
	var rec *model.Recommendation

	txErr := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			`SELECT `+pgRecColumns+` FROM recommendations WHERE id = $1 FOR UPDATE`, id)
		got, err := scanRecommendationPg(row)
		if eris.Is(err, pgx.ErrNoRows) {
			return eris.Errorf("postgres: recommendation %s not found", id)
		}
		if err != nil {
			return err
		}
		rec = got

		prior := rec.Status
		if err := rec.Transition(next, actor); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE recommendations SET status = $1, reviewer = $2, approver = $3, updated_at = $4 WHERE id = $5`,
			string(rec.Status), rec.Reviewer, rec.Approver, rec.UpdatedAt, rec.ID)
		if err != nil {
			return eris.Wrapf(err, "postgres: transition recommendation %s", id)
		}
		return s.led.AppendTx(ctx, tx, transitionSuccessEntry(rec, prior, actor))
	})
	if txErr != nil {
		if rec != nil {
			// Rejected attempts are audited too; the data row is untouched.
			if _, recErr := s.led.Record(ctx, transitionFailureEntry(rec, next, actor, txErr)); recErr != nil {
				return nil, recErr
			}
		}
		return nil, txErr
	}
	return rec, nil
}

func scanObservationPg(row scannable) (*model.Observation, error) {
	var obs model.Observation
	var confidence *float64
	var metadata, raw []byte

	err := row.Scan(&obs.ID, &obs.Entity, &obs.Indicator, &obs.SubRegion, &obs.Period,
		&obs.Source, &obs.Revision, &obs.Value, &obs.Unit, &obs.Official, &confidence,
		&obs.Jurisdiction, &obs.Classification, &metadata, &raw, &obs.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan observation")
	}

	obs.Confidence = confidence
	if len(metadata) > 0 && string(metadata) != "null" {
		if err := json.Unmarshal(metadata, &obs.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal observation metadata")
		}
	}
	if len(raw) > 0 {
		obs.Raw = raw
	}
	obs.CreatedAt = obs.CreatedAt.UTC()
	return &obs, nil
}

func scanRunPg(row scannable) (*model.IngestionRun, error) {
	var run model.IngestionRun
	var itemErrs []byte

	err := row.Scan(&run.ID, &run.Source, &run.Jurisdiction, &run.Status,
		&run.Fetched, &run.Stored, &run.Skipped, &run.Failed,
		&run.WindowStart, &run.WindowEnd, &run.Error, &run.Retries, &itemErrs,
		&run.StartedAt, &run.FinalizedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan run")
	}

	if len(itemErrs) > 0 && string(itemErrs) != "null" {
		if err := json.Unmarshal(itemErrs, &run.ItemErrors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal item errors")
		}
	}
	run.StartedAt = run.StartedAt.UTC()
	return &run, nil
}

func scanFindingPg(row scannable) (*model.Finding, error) {
	var finding model.Finding
	var thresholds, evidence []byte

	err := row.Scan(&finding.ID, &finding.Subject.Entity, &finding.Subject.Indicator,
		&finding.Subject.SubRegion, &finding.Period, &finding.Jurisdiction,
		&finding.Severity, &finding.Score, &finding.Discrepancy, &finding.Trend,
		&thresholds, &finding.Model, &evidence, &finding.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan finding")
	}

	if len(thresholds) > 0 && string(thresholds) != "null" {
		if err := json.Unmarshal(thresholds, &finding.Thresholds); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal finding thresholds")
		}
	}
	if len(evidence) > 0 && string(evidence) != "null" {
		if err := json.Unmarshal(evidence, &finding.Evidence); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal finding evidence")
		}
	}
	finding.CreatedAt = finding.CreatedAt.UTC()
	return &finding, nil
}

func scanRecommendationPg(row scannable) (*model.Recommendation, error) {
	var rec model.Recommendation
	var findingIDs, entities []byte

	err := row.Scan(&rec.ID, &rec.Jurisdiction, &rec.PolicyArea, &rec.PeriodBucket,
		&rec.Title, &rec.Description, &rec.Priority, &rec.Urgency, &rec.Confidence,
		&findingIDs, &entities, &rec.Status, &rec.Reviewer, &rec.Approver,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, eris.Wrap(err, "postgres: scan recommendation")
	}

	if len(findingIDs) > 0 && string(findingIDs) != "null" {
		if err := json.Unmarshal(findingIDs, &rec.FindingIDs); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal finding ids")
		}
	}
	if len(entities) > 0 && string(entities) != "null" {
		if err := json.Unmarshal(entities, &rec.Entities); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal entities")
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}
