package cronrunner

import (
	"context"
	"time"

	"github.com/GoPolymarket/polyfactory/internal/pkg/logger"
	"github.com/robfig/cron/v3"
)

// Runner schedules background maintenance jobs. Schedules use the standard five
// field syntax or descriptors such as "@every 1h".
type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context
}

func New(baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger))),
		baseCtx: baseCtx,
	}
}

func (r *Runner) Add(schedule string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(schedule, func() {
		job(r.baseCtx)
	})
}

// Entries reports how many jobs are scheduled.
func (r *Runner) Entries() int {
	return len(r.cron.Entries())
}

func (r *Runner) Start() {
	logger.Info("cron started", "jobs", r.Entries())
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	logger.Info("cron stopped")
}

// Cleaner deletes rows older than a retention window.
type Cleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// Retention is one table or store with its retention window. A zero window
// keeps everything.
type Retention struct {
	Name   string
	Store  Cleaner
	Window time.Duration
}

// AddRetention schedules every retention target under one schedule.
func (r *Runner) AddRetention(schedule string, targets ...Retention) (cron.EntryID, error) {
	return r.Add(schedule, func(ctx context.Context) {
		for _, t := range targets {
			if t.Store == nil || t.Window <= 0 {
				continue
			}
			if err := t.Store.Cleanup(ctx, t.Window); err != nil {
				logger.Error("retention cleanup failed", "target", t.Name, "error", err)
				continue
			}
			logger.Debug("retention cleanup", "target", t.Name, "older_than", t.Window.String())
		}
	})
}

// Pruner drops expired in-memory entries and reports how many went.
type Pruner func() int

// AddPrune schedules in-memory housekeeping such as expired login nonces or
// idle rate limiters.
func (r *Runner) AddPrune(schedule, name string, prune Pruner) (cron.EntryID, error) {
	return r.Add(schedule, func(context.Context) {
		if n := prune(); n > 0 {
			logger.Debug("pruned", "target", name, "count", n)
		}
	})
}
