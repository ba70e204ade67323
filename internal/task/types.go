// Package task defines scheduled tasks, their run logs, and the persistence
// contract the scheduler drives.
package task

import (
	"context"
	"errors"
	"time"

	"github.com/bsakel/denbot/internal/schedule"
)

// Status is a task's lifecycle state. completed and cancelled are terminal;
// tasks are never deleted, only transitioned.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Task is one scheduled unit of assistant work. Invariant: NextRunAt is set
// exactly when Status is active, except transiently while a due task is
// being executed and re-stamped.
type Task struct {
	ID          string
	GroupName   string
	Name        string
	Description string
	Kind        schedule.Kind
	CronExpr    string
	Every       time.Duration
	RunAt       *time.Time
	TimeZone    string
	Status      Status
	LastRunAt   *time.Time
	NextRunAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Spec returns the task's schedule for the evaluator.
func (t Task) Spec() schedule.Spec {
	s := schedule.Spec{
		Kind:     t.Kind,
		Cron:     t.CronExpr,
		Every:    t.Every,
		TimeZone: t.TimeZone,
	}
	if t.RunAt != nil {
		s.At = *t.RunAt
	}
	return s
}

// RunStatus classifies one execution attempt.
type RunStatus string

const (
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
	RunTimeout RunStatus = "timeout"
)

// RunLog is one immutable execution record.
type RunLog struct {
	TaskID      string
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Status      RunStatus
	Result      string
	Error       string
}

// Store errors.
var (
	ErrNotFound   = errors.New("task: not found")
	ErrBadState   = errors.New("task: invalid status transition")
	ErrBadRequest = errors.New("task: invalid task")
)

// Store persists tasks and run logs. Implementations are expected to be safe
// for concurrent use.
type Store interface {
	// Create inserts a new task and returns its id.
	Create(ctx context.Context, t Task) (string, error)
	// Get returns a task by id, or ErrNotFound.
	Get(ctx context.Context, id string) (Task, error)
	// ListByGroup returns all tasks for a group, newest first.
	ListByGroup(ctx context.Context, groupName string) ([]Task, error)
	// Due returns active tasks whose next run is at or before now.
	Due(ctx context.Context, now time.Time) ([]Task, error)
	// Pause moves an active task to paused and clears its next run.
	Pause(ctx context.Context, id string) error
	// Resume moves a paused task back to active with the given next run.
	Resume(ctx context.Context, id string, nextRun time.Time) error
	// Cancel moves a non-terminal task to cancelled.
	Cancel(ctx context.Context, id string) error
	// MarkRun re-stamps a task after an execution attempt. It only applies
	// to a still-active task: a task cancelled or paused while the run was
	// in flight is left alone and ErrBadState is returned.
	MarkRun(ctx context.Context, id string, status Status, lastRun time.Time, nextRun *time.Time) error
	// AppendRun records one execution attempt.
	AppendRun(ctx context.Context, r RunLog) error
	// Runs returns up to limit run records for a task, newest first.
	Runs(ctx context.Context, taskID string, limit int) ([]RunLog, error)
}
