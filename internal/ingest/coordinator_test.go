package ingest

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-group/econwatch/internal/config"
	"github.com/meridian-group/econwatch/internal/ledger"
	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/source"
	"github.com/meridian-group/econwatch/internal/store"
)

func testCoordinator(t *testing.T) (*Coordinator, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "econwatch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	cfg := config.IngestConfig{
		MaxRetries:            2,
		DefaultClassification: "internal",
		KnownUnits:            []string{"percent", "index"},
	}
	return New(st, cfg), st
}

func fl(v float64) *float64 { return &v }

func item(entity, indicator, period string, value *float64) model.ObservationInput {
	return model.ObservationInput{
		Entity:    entity,
		Indicator: indicator,
		Period:    period,
		Value:     value,
		Unit:      "percent",
		Official:  true,
	}
}

func TestSubmit_AllValid(t *testing.T) {
	ctx := context.Background()
	c, st := testCoordinator(t)

	run, err := c.Submit(ctx, Batch{
		Source:       "central_bank",
		Jurisdiction: "AR",
		Items: []model.ObservationInput{
			item("AR", "inflation_rate", "2025-01", fl(12.4)),
			item("AR", "inflation_rate", "2025-02", fl(11.9)),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusSucceeded, run.Status)
	assert.Equal(t, 2, run.Fetched)
	assert.Equal(t, 2, run.Stored)
	assert.Equal(t, 0, run.Skipped)
	assert.Equal(t, 0, run.Failed)
	assert.True(t, run.Finalized())

	entries, err := st.Ledger().Query(ctx, ledger.Filter{ResourceType: "observation"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "ingest:central_bank", entries[0].Actor)
}

func TestSubmit_IdempotentResubmit(t *testing.T) {
	ctx := context.Background()
	c, st := testCoordinator(t)

	batch := Batch{
		Source:       "central_bank",
		Jurisdiction: "AR",
		Items: []model.ObservationInput{
			item("AR", "inflation_rate", "2025-01", fl(12.4)),
			item("AR", "inflation_rate", "2025-02", fl(11.9)),
		},
	}

	first, err := c.Submit(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Stored)

	second, err := c.Submit(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, second.Status)
	assert.Equal(t, 0, second.Stored)
	assert.Equal(t, 2, second.Skipped)

	// Duplicates leave no extra revisions and no extra audit entries.
	history, err := st.GetHistory(ctx, store.HistoryFilter{Entity: "AR", Indicator: "inflation_rate"})
	require.NoError(t, err)
	assert.Len(t, history, 2)

	entries, err := st.Ledger().Query(ctx, ledger.Filter{ResourceType: "observation"})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSubmit_CorrectionCreatesRevision(t *testing.T) {
	ctx := context.Background()
	c, st := testCoordinator(t)

	_, err := c.Submit(ctx, Batch{
		Source: "central_bank", Jurisdiction: "AR",
		Items: []model.ObservationInput{item("AR", "inflation_rate", "2025-01", fl(12.4))},
	})
	require.NoError(t, err)

	run, err := c.Submit(ctx, Batch{
		Source: "central_bank", Jurisdiction: "AR",
		Items: []model.ObservationInput{item("AR", "inflation_rate", "2025-01", fl(11.8))},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, run.Stored)

	latest, err := st.GetLatest(ctx, model.NaturalKey{
		Entity: "AR", Indicator: "inflation_rate", Period: "2025-01", Source: "central_bank",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, latest.Revision)

	entries, err := st.Ledger().Query(ctx, ledger.Filter{Action: model.ActionObservationRevise})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSubmit_MixedBatchIsPartial(t *testing.T) {
	ctx := context.Background()
	c, st := testCoordinator(t)

	// Give each valid item a distinct period.
	items := make([]model.ObservationInput, 0, 10)
	p := model.Period("2024-01")
	for i := 0; i < 7; i++ {
		items = append(items, item("AR", "inflation_rate", string(p), fl(float64(i))))
		p = p.Next()
	}
	items = append(items,
		item("", "inflation_rate", "2025-01", fl(1)),      // missing entity
		item("AR", "inflation_rate", "2025-13", fl(1)),    // bad period
		item("AR", "inflation_rate", "2025-02", nil),      // missing value
	)

	run, err := c.Submit(ctx, Batch{Source: "central_bank", Jurisdiction: "AR", Items: items})
	require.NoError(t, err)

	assert.Equal(t, model.RunStatusPartial, run.Status)
	assert.Equal(t, 10, run.Fetched)
	assert.Equal(t, 7, run.Stored)
	assert.Equal(t, 3, run.Failed)
	require.Len(t, run.ItemErrors, 3)
	assert.Equal(t, 7, run.ItemErrors[0].Index)
	assert.Contains(t, run.ItemErrors[0].Reason, "entity")
	assert.Contains(t, run.ItemErrors[1].Reason, "period")
	assert.Contains(t, run.ItemErrors[2].Reason, "value")

	// Exactly one audit entry per committed observation, none for rejects.
	entries, err := st.Ledger().Query(ctx, ledger.Filter{ResourceType: "observation"})
	require.NoError(t, err)
	assert.Len(t, entries, 7)
}

func TestSubmit_AllInvalidFails(t *testing.T) {
	ctx := context.Background()
	c, _ := testCoordinator(t)

	run, err := c.Submit(ctx, Batch{
		Source: "central_bank", Jurisdiction: "AR",
		Items: []model.ObservationInput{
			item("", "inflation_rate", "2025-01", fl(1)),
			item("AR", "", "2025-01", fl(1)),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, 2, run.Failed)
	assert.Contains(t, run.Error, "all 2 items failed")
}

// slowStore delays each commit so a small batch budget expires mid-batch.
type slowStore struct {
	store.Store
	delay time.Duration
}

func (s *slowStore) CommitObservation(ctx context.Context, obs *model.Observation, actor string) (*model.Observation, bool, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
	return s.Store.CommitObservation(ctx, obs, actor)
}

func TestSubmit_BudgetExhaustionFailsRun(t *testing.T) {
	ctx := context.Background()
	_, st := testCoordinator(t)

	c := New(&slowStore{Store: st, delay: 600 * time.Millisecond}, config.IngestConfig{
		MaxRetries:            1,
		DefaultClassification: "internal",
		KnownUnits:            []string{"percent"},
		BatchBudgetSecs:       1,
	})

	run, err := c.Submit(ctx, Batch{
		Source: "central_bank", Jurisdiction: "AR",
		Items: []model.ObservationInput{
			item("AR", "inflation_rate", "2025-01", fl(12.4)),
			item("AR", "inflation_rate", "2025-02", fl(11.9)),
			item("AR", "inflation_rate", "2025-03", fl(11.2)),
		},
	})
	require.NoError(t, err)

	// Some items committed, but a blown budget is not a partial run.
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "budget")
	assert.Equal(t, 1, run.Stored)
	assert.Equal(t, 2, run.Failed)
	assert.True(t, run.Finalized())

	// Items committed before the deadline stay committed.
	history, err := st.GetHistory(ctx, store.HistoryFilter{Entity: "AR", Indicator: "inflation_rate"})
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestSubmit_EmptyBatchSucceeds(t *testing.T) {
	c, _ := testCoordinator(t)

	run, err := c.Submit(context.Background(), Batch{Source: "central_bank", Jurisdiction: "AR"})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, run.Status)
	assert.Equal(t, 0, run.Fetched)
}

func TestSubmit_MissingSourceRejected(t *testing.T) {
	c, _ := testCoordinator(t)

	_, err := c.Submit(context.Background(), Batch{Jurisdiction: "AR"})
	require.Error(t, err)
}

func TestValidateItem_Classification(t *testing.T) {
	cfg := config.IngestConfig{DefaultClassification: "internal"}
	b := Batch{Source: "s", Jurisdiction: "AR"}

	obs, err := validateItem(item("AR", "gdp_growth", "2024-Q4", fl(2.1)), b, cfg)
	require.NoError(t, err)
	assert.Equal(t, model.ClassificationInternal, obs.Classification)

	explicit := item("AR", "gdp_growth", "2024-Q4", fl(2.1))
	explicit.Classification = "confidential"
	obs, err = validateItem(explicit, b, cfg)
	require.NoError(t, err)
	assert.Equal(t, model.ClassificationConfidential, obs.Classification)

	bad := item("AR", "gdp_growth", "2024-Q4", fl(2.1))
	bad.Classification = "super_secret"
	_, err = validateItem(bad, b, cfg)
	require.Error(t, err)
}

func TestValidateItem_Bounds(t *testing.T) {
	cfg := config.IngestConfig{DefaultClassification: "internal", KnownUnits: []string{"percent"}}
	b := Batch{Source: "s", Jurisdiction: "AR"}

	infinite := item("AR", "gdp_growth", "2024-Q4", fl(math.Inf(1)))
	_, err := validateItem(infinite, b, cfg)
	require.Error(t, err)

	nan := item("AR", "gdp_growth", "2024-Q4", fl(math.NaN()))
	_, err = validateItem(nan, b, cfg)
	require.Error(t, err)

	conf := item("AR", "gdp_growth", "2024-Q4", fl(1))
	conf.Confidence = fl(1.5)
	_, err = validateItem(conf, b, cfg)
	require.Error(t, err)

	unit := item("AR", "gdp_growth", "2024-Q4", fl(1))
	unit.Unit = "furlongs"
	_, err = validateItem(unit, b, cfg)
	require.Error(t, err)
}

func TestPull_FileAdapter(t *testing.T) {
	ctx := context.Background()
	c, st := testCoordinator(t)

	csvPath := filepath.Join(t.TempDir(), "feed.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(
		"entity,indicator,period,value,unit,official\n"+
			"AR,inflation_rate,2025-01,12.4,percent,true\n"+
			"AR,inflation_rate,2025-02,11.9,percent,true\n"), 0o644))

	adapter, err := source.NewFile("stats_office", "AR", csvPath, "csv")
	require.NoError(t, err)

	run, err := c.Pull(ctx, adapter, source.Window{})
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusSucceeded, run.Status)
	assert.Equal(t, 2, run.Stored)
	assert.Equal(t, "stats_office", run.Source)

	runs, err := st.ListRuns(ctx, store.RunFilter{Source: "stats_office"})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestPull_FetchFailureLeavesFailedRun(t *testing.T) {
	ctx := context.Background()
	c, st := testCoordinator(t)

	adapter, err := source.NewFile("stats_office", "AR", filepath.Join(t.TempDir(), "missing.csv"), "csv")
	require.NoError(t, err)

	run, err := c.Pull(ctx, adapter, source.Window{})
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.NotEmpty(t, run.Error)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.True(t, got.Finalized())
}
