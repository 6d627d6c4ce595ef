// Package scheduler serializes pipeline cycles and triggers them on a cron
// schedule.
package scheduler

import (
	"context"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sheriff-sales/internal/model"
	"github.com/sells-group/sheriff-sales/internal/pipeline"
)

// ErrBusy is returned when a cycle is already in progress.
var ErrBusy = eris.New("scheduler: cycle already running")

// CycleRunner runs one pipeline cycle.
type CycleRunner interface {
	Run(ctx context.Context) (*pipeline.RunResult, error)
}

// Runner allows at most one cycle at a time and remembers the last run.
type Runner struct {
	cycle CycleRunner

	mu      sync.Mutex
	running bool
	last    *model.Run
}

// NewRunner wraps cycle.
func NewRunner(cycle CycleRunner) *Runner {
	return &Runner{cycle: cycle}
}

// TryRun runs a cycle unless one is already in progress, in which case it
// returns ErrBusy immediately.
func (r *Runner) TryRun(ctx context.Context) (*pipeline.RunResult, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil, ErrBusy
	}
	r.running = true
	r.mu.Unlock()

	res, err := r.cycle.Run(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.running = false
	if res != nil {
		run := res.Run
		r.last = &run
	}
	return res, err
}

// Running reports whether a cycle is in progress.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Last returns a copy of the most recent finished run, or nil.
func (r *Runner) Last() *model.Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return nil
	}
	run := *r.last
	return &run
}

// Scheduler fires the runner on a cron spec.
type Scheduler struct {
	cron   *cron.Cron
	runner *Runner
	spec   string
}

// New creates a Scheduler for spec (standard five-field cron syntax).
func New(runner *Runner, spec string) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		spec:   spec,
	}
}

// Start registers the job and starts the cron loop. Jobs run with ctx and
// stop being scheduled once Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.fire(ctx)
	})
	if err != nil {
		return eris.Wrapf(err, "scheduler: invalid cron spec %q", s.spec)
	}
	s.cron.Start()
	zap.L().Info("scheduler: started", zap.String("cron", s.spec))
	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	zap.L().Info("scheduler: stopped")
}

func (s *Scheduler) fire(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	zap.L().Info("scheduler: cycle triggered")
	res, err := s.runner.TryRun(ctx)
	switch {
	case eris.Is(err, ErrBusy):
		zap.L().Warn("scheduler: previous cycle still running, skipping")
	case err != nil:
		zap.L().Error("scheduler: cycle failed", zap.Error(err))
	default:
		zap.L().Info("scheduler: cycle complete",
			zap.String("auction_id", res.AuctionID),
			zap.Int("listings", len(res.Listings)),
		)
	}
}
