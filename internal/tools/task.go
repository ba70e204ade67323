package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bsakel/denbot/internal/mailbox"
	"github.com/bsakel/denbot/internal/schedule"
)

// defaultListTimeout bounds how long list-style tools wait for the host.
const defaultListTimeout = 10 * time.Second

// ScheduleTaskTool creates a recurring or one-shot task via the host.
type ScheduleTaskTool struct {
	Producer  mailbox.Producer
	GroupName string
}

func (t *ScheduleTaskTool) Name() string { return "schedule_task" }
func (t *ScheduleTaskTool) Description() string {
	return "Schedule a task to run later: on a cron expression, every N seconds, or once at a specific time."
}
func (t *ScheduleTaskTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"name":        map[string]any{"type": "string", "description": "Short task name"},
			"description": map[string]any{"type": "string", "description": "What the task should do when it runs"},
			"schedule_kind": map[string]any{
				"type":        "string",
				"enum":        []string{"cron", "interval", "once"},
				"description": "How the task recurs",
			},
			"cron_expression":  map[string]any{"type": "string", "description": "Standard 5-field cron expression (kind=cron)"},
			"interval_seconds": map[string]any{"type": "integer", "description": "Seconds between runs (kind=interval)"},
			"run_at":           map[string]any{"type": "string", "description": "RFC 3339 time for a one-shot run (kind=once)"},
			"time_zone":        map[string]any{"type": "string", "description": "IANA time zone for cron evaluation, e.g. Asia/Tokyo"},
		},
		"required": []string{"name", "description", "schedule_kind"},
	}
}

func (t *ScheduleTaskTool) Execute(_ context.Context, args map[string]any) (string, error) {
	payload := mailbox.ScheduleTaskPayload{
		Name:        stringArg(args, "name"),
		Description: stringArg(args, "description"),
		Kind:        stringArg(args, "schedule_kind"),
		Cron:        stringArg(args, "cron_expression"),
		RunAt:       stringArg(args, "run_at"),
		TimeZone:    stringArg(args, "time_zone"),
	}
	if v, ok := args["interval_seconds"].(float64); ok {
		payload.EverySeconds = int(v)
	}

	// Reject obviously bad specs here so the model gets immediate feedback
	// instead of waiting for the host to discard the envelope.
	if !schedule.Kind(payload.Kind).Valid() {
		return fmt.Sprintf("Error: unknown schedule_kind %q", payload.Kind), nil
	}
	if payload.Kind == string(schedule.KindCron) {
		if err := schedule.ValidateCron(payload.Cron); err != nil {
			return fmt.Sprintf("Error: invalid cron expression: %v", err), nil
		}
	}

	env, err := mailbox.NewEnvelope(mailbox.TypeScheduleTask, t.GroupName, payload)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	if err := t.Producer.Send(env); err != nil {
		return fmt.Sprintf("Error scheduling task: %v", err), nil
	}
	return fmt.Sprintf("Task %q submitted for scheduling.", payload.Name), nil
}

// TaskControlTool pauses, resumes, or cancels an existing task and waits for
// the host's acknowledgement.
type TaskControlTool struct {
	Producer  mailbox.Producer
	GroupName string
	Action    string // mailbox.TypePauseTask | TypeResumeTask | TypeCancelTask
	Timeout   time.Duration
}

func (t *TaskControlTool) Name() string { return t.Action }
func (t *TaskControlTool) Description() string {
	verb := strings.TrimSuffix(t.Action, "_task")
	return fmt.Sprintf("%s a scheduled task by id.", strings.ToUpper(verb[:1])+verb[1:])
}
func (t *TaskControlTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"task_id": map[string]any{"type": "string", "description": "The id of the task"},
		},
		"required": []string{"task_id"},
	}
}

func (t *TaskControlTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	taskID := stringArg(args, "task_id")
	if taskID == "" {
		return "Error: task_id is required", nil
	}
	env, err := mailbox.NewEnvelope(t.Action, t.GroupName, mailbox.TaskControlPayload{TaskID: taskID})
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultListTimeout
	}
	outcome := t.Producer.Request(ctx, env, timeout)
	if outcome.TimedOut {
		return fmt.Sprintf("No acknowledgement for %s within %s.", t.Action, timeout), nil
	}
	var reply mailbox.ControlReply
	if err := outcome.Decode(&reply); err != nil {
		return fmt.Sprintf("Error decoding reply: %v", err), nil
	}
	if !reply.Success {
		return fmt.Sprintf("Error: %s", reply.Error), nil
	}
	return fmt.Sprintf("Task %s acknowledged for %s.", taskID, t.Action), nil
}

// ListTasksTool fetches the current task list for this group.
type ListTasksTool struct {
	Producer  mailbox.Producer
	GroupName string
	Timeout   time.Duration
}

func (t *ListTasksTool) Name() string { return "list_tasks" }
func (t *ListTasksTool) Description() string {
	return "List scheduled tasks with their status and next run time."
}
func (t *ListTasksTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *ListTasksTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	env, err := mailbox.NewEnvelope(mailbox.TypeListTasks, t.GroupName, struct{}{})
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultListTimeout
	}
	outcome := t.Producer.Request(ctx, env, timeout)
	if outcome.TimedOut {
		return fmt.Sprintf("No task list received within %s.", timeout), nil
	}
	var reply mailbox.ListTasksReply
	if err := outcome.Decode(&reply); err != nil {
		return fmt.Sprintf("Error decoding reply: %v", err), nil
	}
	if len(reply.Tasks) == 0 {
		return "No scheduled tasks.", nil
	}
	var b strings.Builder
	for _, task := range reply.Tasks {
		fmt.Fprintf(&b, "- %s [%s] %s (%s)", task.ID, task.Status, task.Name, task.Kind)
		if task.NextRunAt != nil {
			fmt.Fprintf(&b, " next: %s", task.NextRunAt.Format(time.RFC3339))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
