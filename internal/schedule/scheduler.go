// Package schedule runs the periodic jobs: pulling configured sources and
// sweeping the evaluation over everything observed. Scheduled runs go
// through the same coordinator and engine as manual invocations, so they
// leave the same ingestion runs and audit trail behind.
package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-group/econwatch/internal/config"
	"github.com/meridian-group/econwatch/internal/ingest"
	"github.com/meridian-group/econwatch/internal/model"
	"github.com/meridian-group/econwatch/internal/scorer"
	"github.com/meridian-group/econwatch/internal/source"
)

// maxConcurrentPulls bounds how many sources are fetched at once.
const maxConcurrentPulls = 4

// Scheduler wires the cron loop to the ingestion coordinator and the
// scoring engine.
type Scheduler struct {
	cron     *cron.Cron
	coord    *ingest.Coordinator
	engine   *scorer.Engine
	adapters []source.Adapter
	cfg      config.ScheduleConfig
	log      *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

// New creates a scheduler and registers the configured jobs. An empty cron
// expression disables that job.
func New(coord *ingest.Coordinator, engine *scorer.Engine, adapters []source.Adapter, cfg config.ScheduleConfig) (*Scheduler, error) {
	s := &Scheduler{
		cron:     cron.New(),
		coord:    coord,
		engine:   engine,
		adapters: adapters,
		cfg:      cfg,
		log:      zap.L().With(zap.String("component", "schedule")),
		now:      time.Now,
	}

	if cfg.Ingest != "" {
		if _, err := s.cron.AddFunc(cfg.Ingest, func() { s.PullAll(context.Background()) }); err != nil {
			return nil, eris.Wrapf(err, "schedule: bad ingest expression %q", cfg.Ingest)
		}
	}
	if cfg.Evaluate != "" {
		if _, err := s.cron.AddFunc(cfg.Evaluate, func() { s.Evaluate(context.Background()) }); err != nil {
			return nil, eris.Wrapf(err, "schedule: bad evaluate expression %q", cfg.Evaluate)
		}
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is cancelled, then waits for
// any in-flight job to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started",
		zap.String("ingest", s.cfg.Ingest),
		zap.String("evaluate", s.cfg.Evaluate),
		zap.Int("sources", len(s.adapters)))

	s.cron.Start()
	<-ctx.Done()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("scheduler stopped")
}

// PullAll fetches every configured source over the window since the previous
// month start. Sources fail independently; a failed pull still leaves its
// failed run behind.
func (s *Scheduler) PullAll(ctx context.Context) []*model.IngestionRun {
	window := s.pullWindow()

	var g errgroup.Group
	g.SetLimit(maxConcurrentPulls)

	runs := make([]*model.IngestionRun, len(s.adapters))
	for i, adapter := range s.adapters {
		g.Go(func() error {
			run, err := s.coord.Pull(ctx, adapter, window)
			runs[i] = run
			if err != nil {
				s.log.Error("scheduled pull failed",
					zap.String("source", adapter.Name()), zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()

	kept := runs[:0]
	for _, run := range runs {
		if run != nil {
			kept = append(kept, run)
		}
	}
	return kept
}

// Evaluate sweeps the scorers over the most recent complete month.
func (s *Scheduler) Evaluate(ctx context.Context) {
	period := model.MonthOf(s.now().UTC()).Prev()
	if _, err := s.engine.EvaluateAll(ctx, period); err != nil {
		s.log.Error("scheduled evaluation failed",
			zap.String("period", string(period)), zap.Error(err))
	}
}

// pullWindow covers the previous and current month, so late corrections to
// the prior period are picked up.
func (s *Scheduler) pullWindow() source.Window {
	nowT := s.now().UTC()
	start := model.MonthOf(nowT).Prev().StartTime()
	return source.Window{Start: &start, End: &nowT}
}
