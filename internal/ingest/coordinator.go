// Package ingest runs observation batches through validation, deduplication,
// and revision-aware storage. Each batch becomes one ingestion run whose
// counts reconcile: fetched = stored + skipped + failed.
package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/meridian-group/econwatch/internal/config"
	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/resilience"
	"github.com/meridian-group/econwatch/internal/source"
	"github.com/meridian-group/econwatch/internal/store"
)

// Batch is one set of items from one source.
type Batch struct {
	Source       string
	Jurisdiction string
	WindowStart  *time.Time
	WindowEnd    *time.Time
	Items        []model.ObservationInput
}

// Coordinator drives batches through the store. One item failing never
// aborts the rest of the batch.
type Coordinator struct {
	store store.Store
	cfg   config.IngestConfig
	log   *zap.Logger
}

// New creates a coordinator.
func New(st store.Store, cfg config.IngestConfig) *Coordinator {
	return &Coordinator{
		store: st,
		cfg:   cfg,
		log:   zap.L().With(zap.String("component", "ingest")),
	}
}

// Pull fetches a batch from the adapter and submits it. A fetch failure
// still leaves a finalized failed run behind, so the attempt is visible.
func (c *Coordinator) Pull(ctx context.Context, adapter source.Adapter, w source.Window) (*model.IngestionRun, error) {
	items, err := adapter.Fetch(ctx, w)
	if err != nil {
		run := &model.IngestionRun{
			Source:       adapter.Name(),
			Jurisdiction: adapter.Jurisdiction(),
			WindowStart:  w.Start,
			WindowEnd:    w.End,
		}
		if createErr := c.store.CreateRun(ctx, run); createErr != nil {
			return nil, createErr
		}
		run.Status = model.RunStatusFailed
		run.Error = err.Error()
		if finErr := c.store.FinalizeRun(ctx, run); finErr != nil {
			return nil, finErr
		}
		return run, err
	}

	return c.Submit(ctx, Batch{
		Source:       adapter.Name(),
		Jurisdiction: adapter.Jurisdiction(),
		WindowStart:  w.Start,
		WindowEnd:    w.End,
		Items:        items,
	})
}

// Submit validates and commits every item of the batch, then finalizes the
// run. The returned run carries the per-item rejection reasons.
func (c *Coordinator) Submit(ctx context.Context, b Batch) (*model.IngestionRun, error) {
	if b.Source == "" {
		return nil, resilience.NewValidationError("source", "must not be empty")
	}

	run := &model.IngestionRun{
		Source:       b.Source,
		Jurisdiction: b.Jurisdiction,
		WindowStart:  b.WindowStart,
		WindowEnd:    b.WindowEnd,
		Fetched:      len(b.Items),
	}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	batchCtx := ctx
	if c.cfg.BatchBudgetSecs > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.BatchBudgetSecs)*time.Second)
		defer cancel()
	}

	actor := "ingest:" + b.Source
	for i, item := range b.Items {
		if batchCtx.Err() != nil {
			run.Failed++
			run.ItemErrors = append(run.ItemErrors, model.ItemError{Index: i, Reason: "batch budget exhausted"})
			continue
		}

		obs, err := validateItem(item, b, c.cfg)
		if err != nil {
			run.Failed++
			run.ItemErrors = append(run.ItemErrors, model.ItemError{Index: i, Reason: err.Error()})
			c.log.Debug("rejected batch item",
				zap.String("source", b.Source), zap.Int("index", i), zap.Error(err))
			continue
		}

		stored, err := c.commitWithRetry(batchCtx, run, obs, actor)
		if err != nil {
			run.Failed++
			run.ItemErrors = append(run.ItemErrors, model.ItemError{Index: i, Reason: err.Error()})
			c.log.Warn("failed to store batch item",
				zap.String("source", b.Source), zap.Int("index", i), zap.Error(err))
			continue
		}
		if stored {
			run.Stored++
		} else {
			run.Skipped++
		}
	}

	run.Status = batchStatus(run)
	if run.Status == model.RunStatusFailed {
		run.Error = fmt.Sprintf("all %d items failed", run.Fetched)
	}
	// A blown batch budget fails the whole run even when some items committed
	// first. The committed observations stay; the run record says why the
	// rest never ran.
	if batchCtx.Err() != nil && ctx.Err() == nil {
		run.Status = model.RunStatusFailed
		run.Error = "batch budget exhausted: " + batchCtx.Err().Error()
	}
	if err := c.store.FinalizeRun(ctx, run); err != nil {
		return nil, err
	}

	c.log.Info("batch finalized",
		zap.String("source", b.Source),
		zap.String("run_id", run.ID),
		zap.String("status", string(run.Status)),
		zap.Int("fetched", run.Fetched),
		zap.Int("stored", run.Stored),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed),
	)
	return run, nil
}

// commitWithRetry retries transient storage failures per item and tallies
// the attempts on the run.
func (c *Coordinator) commitWithRetry(ctx context.Context, run *model.IngestionRun, obs *model.Observation, actor string) (bool, error) {
	retryCfg := resilience.RetryConfig{MaxAttempts: c.cfg.MaxRetries + 1}

	var stored bool
	attempts := 0
	err := resilience.Do(ctx, retryCfg, func(ctx context.Context) error {
		attempts++
		_, s, err := c.store.CommitObservation(ctx, obs, actor)
		stored = s
		return err
	})
	if attempts > 1 {
		run.Retries += attempts - 1
	}
	if err != nil {
		return false, eris.Wrapf(err, "ingest: commit %s", obs.Key())
	}
	return stored, nil
}

// batchStatus derives the run's terminal status from its counts. An empty
// batch succeeded; a batch with no surviving items failed.
func batchStatus(run *model.IngestionRun) model.RunStatus {
	switch {
	case run.Failed == 0:
		return model.RunStatusSucceeded
	case run.Stored+run.Skipped > 0:
		return model.RunStatusPartial
	default:
		return model.RunStatusFailed
	}
}
