package task

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bsakel/denbot/internal/schedule"
)

// EnsureSchema creates the task tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	const ddl = `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS scheduled_tasks (
  id TEXT PRIMARY KEY,
  group_name TEXT NOT NULL,
  name TEXT NOT NULL,
  description TEXT NOT NULL DEFAULT '',
  kind TEXT NOT NULL CHECK(kind IN ('cron','interval','once')),
  cron_expr TEXT NOT NULL DEFAULT '',
  every_seconds INTEGER NOT NULL DEFAULT 0,
  run_at TEXT,
  time_zone TEXT NOT NULL DEFAULT '',
  status TEXT NOT NULL CHECK(status IN ('active','paused','completed','cancelled')) DEFAULT 'active',
  last_run_at TEXT,
  next_run_at TEXT,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON scheduled_tasks(status, next_run_at);
CREATE INDEX IF NOT EXISTS idx_tasks_group ON scheduled_tasks(group_name, created_at DESC);
CREATE TABLE IF NOT EXISTS task_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  task_id TEXT NOT NULL,
  started_at TEXT NOT NULL,
  completed_at TEXT NOT NULL,
  duration_ms INTEGER NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('success','failure','timeout')),
  result TEXT NOT NULL DEFAULT '',
  error TEXT NOT NULL DEFAULT '',
  FOREIGN KEY(task_id) REFERENCES scheduled_tasks(id)
);
CREATE INDEX IF NOT EXISTS idx_task_runs ON task_runs(task_id, started_at DESC);
`
	_, err := db.Exec(ddl)
	return err
}

// sqliteStore persists tasks in SQLite. Times are stored as RFC 3339 UTC
// strings; intervals as whole seconds.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open database. Call EnsureSchema first.
func NewSQLiteStore(db *sql.DB) Store {
	return &sqliteStore{db: db}
}

// timeLayout is fixed-width so stored UTC timestamps compare correctly as
// strings in SQL (RFC3339Nano drops trailing zeros and does not).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *sqliteStore) Create(ctx context.Context, t Task) (string, error) {
	if t.Name == "" || t.GroupName == "" {
		return "", fmt.Errorf("%w: name and group are required", ErrBadRequest)
	}
	if !t.Kind.Valid() {
		return "", fmt.Errorf("%w: unknown schedule kind %q", ErrBadRequest, t.Kind)
	}
	id := t.ID
	if id == "" {
		id = "task_" + uuid.NewString()
	}
	if t.Status == "" {
		t.Status = StatusActive
	}
	now := time.Now()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO scheduled_tasks
  (id, group_name, name, description, kind, cron_expr, every_seconds, run_at, time_zone,
   status, last_run_at, next_run_at, created_at, updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		id, t.GroupName, t.Name, t.Description, string(t.Kind), t.CronExpr,
		int64(t.Every/time.Second), fmtTimePtr(t.RunAt), t.TimeZone,
		string(t.Status), fmtTimePtr(t.LastRunAt), fmtTimePtr(t.NextRunAt),
		fmtTime(now), fmtTime(now))
	if err != nil {
		return "", fmt.Errorf("task: insert: %w", err)
	}
	return id, nil
}

const taskColumns = `id, group_name, name, description, kind, cron_expr, every_seconds,
run_at, time_zone, status, last_run_at, next_run_at, created_at, updated_at`

func scanTask(row interface{ Scan(...any) error }) (Task, error) {
	var t Task
	var kind, status string
	var everySeconds int64
	var runAt, lastRun, nextRun sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&t.ID, &t.GroupName, &t.Name, &t.Description, &kind, &t.CronExpr,
		&everySeconds, &runAt, &t.TimeZone, &status, &lastRun, &nextRun,
		&createdAt, &updatedAt)
	if err != nil {
		return Task{}, err
	}

	t.Kind = schedule.Kind(kind)
	t.Status = Status(status)
	t.Every = time.Duration(everySeconds) * time.Second
	if t.RunAt, err = parseTimePtr(runAt); err != nil {
		return Task{}, fmt.Errorf("task %s: bad run_at: %w", t.ID, err)
	}
	if t.LastRunAt, err = parseTimePtr(lastRun); err != nil {
		return Task{}, fmt.Errorf("task %s: bad last_run_at: %w", t.ID, err)
	}
	if t.NextRunAt, err = parseTimePtr(nextRun); err != nil {
		return Task{}, fmt.Errorf("task %s: bad next_run_at: %w", t.ID, err)
	}
	if t.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return Task{}, err
	}
	if t.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return Task{}, err
	}
	return t, nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return Task{}, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) ListByGroup(ctx context.Context, groupName string) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks WHERE group_name = ? ORDER BY created_at DESC`,
		groupName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (s *sqliteStore) Due(ctx context.Context, now time.Time) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM scheduled_tasks
WHERE status = 'active' AND next_run_at IS NOT NULL AND next_run_at <= ?
ORDER BY next_run_at ASC`, fmtTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func collectTasks(rows *sql.Rows) ([]Task, error) {
	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// transition applies a guarded status change; fromStatuses narrows which
// current states the change is legal from.
func (s *sqliteStore) transition(ctx context.Context, id string, to Status, nextRun any, from ...Status) error {
	args := []any{string(to), nextRun, fmtTime(time.Now()), id}
	q := `UPDATE scheduled_tasks SET status = ?, next_run_at = ?, updated_at = ? WHERE id = ? AND status IN (`
	for i, f := range from {
		if i > 0 {
			q += ","
		}
		q += "?"
		args = append(args, string(f))
	}
	q += ")"

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Get(ctx, id); err == ErrNotFound {
			return ErrNotFound
		}
		return ErrBadState
	}
	return nil
}

func (s *sqliteStore) Pause(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusPaused, nil, StatusActive)
}

func (s *sqliteStore) Resume(ctx context.Context, id string, nextRun time.Time) error {
	return s.transition(ctx, id, StatusActive, fmtTime(nextRun), StatusPaused)
}

func (s *sqliteStore) Cancel(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusCancelled, nil, StatusActive, StatusPaused)
}

func (s *sqliteStore) MarkRun(ctx context.Context, id string, status Status, lastRun time.Time, nextRun *time.Time) error {
	// Guarded like transition: only an active task may be re-stamped. A task
	// cancelled or paused while its run was in flight keeps that state;
	// the caller gets ErrBadState and must not resurrect it.
	res, err := s.db.ExecContext(ctx, `
UPDATE scheduled_tasks SET status = ?, last_run_at = ?, next_run_at = ?, updated_at = ?
WHERE id = ? AND status = ?`,
		string(status), fmtTime(lastRun), fmtTimePtr(nextRun), fmtTime(time.Now()),
		id, string(StatusActive))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.Get(ctx, id); err == ErrNotFound {
			return ErrNotFound
		}
		return ErrBadState
	}
	return nil
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunLog) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO task_runs (task_id, started_at, completed_at, duration_ms, status, result, error)
VALUES (?,?,?,?,?,?,?)`,
		r.TaskID, fmtTime(r.StartedAt), fmtTime(r.CompletedAt),
		r.Duration.Milliseconds(), string(r.Status), r.Result, r.Error)
	return err
}

func (s *sqliteStore) Runs(ctx context.Context, taskID string, limit int) ([]RunLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT task_id, started_at, completed_at, duration_ms, status, result, error
FROM task_runs WHERE task_id = ? ORDER BY started_at DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunLog
	for rows.Next() {
		var r RunLog
		var started, completed, status string
		var durationMs int64
		if err := rows.Scan(&r.TaskID, &started, &completed, &durationMs, &status, &r.Result, &r.Error); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
			return nil, err
		}
		if r.CompletedAt, err = time.Parse(time.RFC3339Nano, completed); err != nil {
			return nil, err
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.Status = RunStatus(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
