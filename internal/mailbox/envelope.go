// Package mailbox implements the crash-tolerant, file-backed envelope
// transport between a running agent invocation (producer) and the host
// runtime (consumer), plus the request/response correlation convention
// layered on top of it.
package mailbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope types the host-side handler understands.
const (
	TypeMessage      = "message"
	TypeScheduleTask = "schedule_task"
	TypePauseTask    = "pause_task"
	TypeResumeTask   = "resume_task"
	TypeCancelTask   = "cancel_task"
	TypeListTasks    = "list_tasks"
	TypeDelegate     = "delegate"
	TypeListAgents   = "list_agents"
	TypeUpdateMemory = "update_memory"
)

// Envelope is a typed message unit carried by the mailbox. It is written to
// the watched directory as <id>.json and owned by the transport until
// delivered to exactly one handler.
type Envelope struct {
	ID            string          `json:"id"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Type          string          `json:"type"`
	GroupName     string          `json:"groupName,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// NewEnvelope builds an envelope with a fresh id (which doubles as the
// correlation id; ids are never reused across requests).
func NewEnvelope(envType, groupName string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", envType, err)
	}
	id := uuid.NewString()
	return Envelope{
		ID:            id,
		CorrelationID: id,
		Type:          envType,
		GroupName:     groupName,
		Payload:       data,
		Timestamp:     time.Now(),
	}, nil
}

// MessagePayload asks the host to deliver text to the user.
type MessagePayload struct {
	Content string `json:"content"`
}

// ScheduleTaskPayload asks the host to create a scheduled task.
type ScheduleTaskPayload struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	Kind         string `json:"scheduleKind"` // cron | interval | once
	Cron         string `json:"cronExpression,omitempty"`
	EverySeconds int    `json:"intervalSeconds,omitempty"`
	RunAt        string `json:"runAt,omitempty"` // RFC 3339, one-shot
	TimeZone     string `json:"timeZone,omitempty"`
}

// TaskControlPayload targets an existing task (pause/resume/cancel).
type TaskControlPayload struct {
	TaskID string `json:"taskId"`
}

// DelegatePayload asks the host to run a named specialist against a task.
type DelegatePayload struct {
	AgentID        string `json:"agentId"`
	Task           string `json:"task"`
	Context        string `json:"context,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// UpdateMemoryPayload carries a long-term memory update.
type UpdateMemoryPayload struct {
	Content  string `json:"content"`
	Section  string `json:"section,omitempty"`
	AuthorID string `json:"authorId,omitempty"`
}

// ControlReply acknowledges a control envelope. Unknown task ids produce an
// explicit error reply, never a silent drop.
type ControlReply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// DelegateReply is the specialist's answer.
type DelegateReply struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// TaskSummary is one row of a list_tasks reply.
type TaskSummary struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Kind      string     `json:"scheduleKind"`
	Status    string     `json:"status"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
}

// ListTasksReply answers a list_tasks request.
type ListTasksReply struct {
	Tasks []TaskSummary `json:"tasks"`
}

// AgentSummary is one row of a list_agents reply.
type AgentSummary struct {
	ID          string `json:"id"`
	Description string `json:"description,omitempty"`
	Model       string `json:"model,omitempty"`
	IsRouter    bool   `json:"isRouter,omitempty"`
}

// ListAgentsReply answers a list_agents request.
type ListAgentsReply struct {
	Agents []AgentSummary `json:"agents"`
}
