// Package cronrunner schedules the engine's periodic cycles.
package cronrunner

import (
	"context"

	"github.com/robfig/cron/v3"

	"dexpilot/internal/ports"
)

// Runner wraps a cron scheduler with second-level specs and a shared base
// context for all jobs.
type Runner struct {
	cron    *cron.Cron
	logger  ports.Logger
	baseCtx context.Context
}

// New creates a runner. Jobs receive baseCtx so shutdown cancels them.
func New(logger ports.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Runner{
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Add registers a job under a cron spec with seconds resolution.
func (r *Runner) Add(name, spec string, job func(context.Context) error) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		if err := job(r.baseCtx); err != nil {
			r.logger.Error(r.baseCtx, err, "scheduled job failed", map[string]interface{}{"job": name})
		}
	})
}

// Start begins running scheduled jobs.
func (r *Runner) Start() {
	r.logger.Info(r.baseCtx, "scheduler started")
	r.cron.Start()
}

// Stop halts scheduling and waits for running jobs to finish.
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info(context.Background(), "scheduler stopped")
}
