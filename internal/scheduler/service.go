// Package scheduler drives due scheduled tasks through the group dispatcher.
package scheduler

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/bsakel/denbot/internal/dispatch"
	"github.com/bsakel/denbot/internal/schedule"
	"github.com/bsakel/denbot/internal/task"
)

// Invoker executes one task's agent invocation and returns its textual
// result.
type Invoker interface {
	RunTask(ctx context.Context, t task.Task) (string, error)
}

// Service periodically finds due tasks and submits them as dispatcher work,
// keyed by each task's group so task runs serialize with that group's chat
// traffic.
type Service struct {
	store      task.Store
	dispatcher *dispatch.Dispatcher
	invoker    Invoker
	tick       time.Duration
	runTimeout time.Duration
	stop       chan struct{}
}

// Options configures a scheduler Service.
type Options struct {
	Store      task.Store
	Dispatcher *dispatch.Dispatcher
	Invoker    Invoker
	Tick       time.Duration // due-task check interval (default 30s)
	RunTimeout time.Duration // per-invocation timeout (default 5m)
}

// New creates a scheduler Service.
func New(opts Options) *Service {
	if opts.Tick <= 0 {
		opts.Tick = 30 * time.Second
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 5 * time.Minute
	}
	return &Service{
		store:      opts.Store,
		dispatcher: opts.Dispatcher,
		invoker:    opts.Invoker,
		tick:       opts.Tick,
		runTimeout: opts.RunTimeout,
		stop:       make(chan struct{}),
	}
}

// Start runs the tick loop until ctx is cancelled or Stop is called. The
// first check happens immediately, before the first periodic wait: a task
// whose next run passed while the process was down is caught on startup
// instead of waiting out a full tick or being skipped.
func (s *Service) Start(ctx context.Context) {
	log.Printf("[Scheduler] started (tick %s)", s.tick)

	s.runDue(ctx, time.Now())

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.runDue(ctx, now)
		}
	}
}

// Stop signals the tick loop to exit.
func (s *Service) Stop() {
	close(s.stop)
}

// runDue submits every currently due task to the dispatcher. All due tasks
// found in one tick go out concurrently; per-group ordering is the
// dispatcher's problem.
func (s *Service) runDue(ctx context.Context, now time.Time) {
	due, err := s.store.Due(ctx, now)
	if err != nil {
		log.Printf("[Scheduler] query due tasks: %v", err)
		return
	}

	for _, t := range due {
		t := t
		err := s.dispatcher.Submit(ctx, t.GroupName, func(wctx context.Context) {
			s.runTask(wctx, t)
		})
		if err != nil {
			log.Printf("[Scheduler] submit task %s: %v", t.ID, err)
		}
	}
}

// runTask executes one attempt, records its run log, and re-stamps the
// task's schedule.
func (s *Service) runTask(ctx context.Context, t task.Task) {
	started := time.Now()
	rctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	result, err := s.invoker.RunTask(rctx, t)
	cancel()
	completed := time.Now()

	rl := task.RunLog{
		TaskID:      t.ID,
		StartedAt:   started,
		CompletedAt: completed,
		Duration:    completed.Sub(started),
	}
	switch {
	case err == nil:
		rl.Status = task.RunSuccess
		rl.Result = result
	case errors.Is(err, context.DeadlineExceeded):
		// The invocation timed out, not the schedule: log it and let the
		// task recur normally.
		rl.Status = task.RunTimeout
		rl.Error = err.Error()
	default:
		rl.Status = task.RunFailure
		rl.Error = err.Error()
	}

	if err := s.store.AppendRun(ctx, rl); err != nil {
		log.Printf("[Scheduler] record run for %s: %v", t.ID, err)
	}

	s.reschedule(ctx, t, completed)

	log.Printf("[Scheduler] task %s (%s) finished: %s in %s", t.ID, t.Name, rl.Status, rl.Duration)
}

// reschedule recomputes the post-run schedule and persists the new
// {status, lastRunAt, nextRunAt} tuple.
func (s *Service) reschedule(ctx context.Context, t task.Task, ranAt time.Time) {
	var (
		status  = task.StatusActive
		nextRun *time.Time
	)

	next, ok := schedule.Next(t.Spec(), ranAt)
	switch {
	case t.Kind == schedule.KindOnce:
		status = task.StatusCompleted
	case !ok:
		// The expression yields no further occurrence; park the task
		// rather than leave an active row with no next run.
		status = task.StatusPaused
	default:
		nextRun = &next
	}

	err := s.store.MarkRun(ctx, t.ID, status, ranAt, nextRun)
	switch {
	case err == nil:
	case errors.Is(err, task.ErrBadState):
		// Cancelled or paused while the run was in flight; that state wins
		// over the re-stamp.
		log.Printf("[Scheduler] task %s changed state mid-run, leaving it", t.ID)
	default:
		log.Printf("[Scheduler] re-stamp task %s: %v", t.ID, err)
	}
}
