package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsakel/denbot/internal/mailbox"
	"github.com/bsakel/denbot/internal/pathguard"
)

// fakeProducer records sent envelopes and serves canned request replies.
type fakeProducer struct {
	sent    []mailbox.Envelope
	reply   any
	timeout bool
}

func (f *fakeProducer) Send(env mailbox.Envelope) error {
	f.sent = append(f.sent, env)
	return nil
}

func (f *fakeProducer) Request(_ context.Context, env mailbox.Envelope, _ time.Duration) mailbox.Outcome {
	f.sent = append(f.sent, env)
	if f.timeout {
		return mailbox.Outcome{TimedOut: true}
	}
	data, _ := json.Marshal(f.reply)
	return mailbox.Outcome{Data: data}
}

func TestRegistrySchemas(t *testing.T) {
	r := NewRegistry()
	r.Register(&MessageTool{Producer: &fakeProducer{}, GroupName: "g"})
	r.Register(&ListTasksTool{Producer: &fakeProducer{}, GroupName: "g"})

	assert.Len(t, r.Schemas(), 2)
	assert.NotNil(t, r.Get("send_message"))
	assert.Nil(t, r.Get("no_such_tool"))

	schema := ToSchema(r.Get("send_message"))
	assert.Equal(t, "function", schema["type"])
}

func TestReadWriteEditWithinWorkspace(t *testing.T) {
	ws := t.TempDir()
	checker := pathguard.New([]string{ws}, nil)
	ctx := context.Background()

	write := &WriteFileTool{Guard: checker}
	out, err := write.Execute(ctx, map[string]any{
		"path": filepath.Join(ws, "notes", "a.txt"), "content": "hello",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully wrote 5 bytes")

	read := &ReadFileTool{Guard: checker}
	out, err = read.Execute(ctx, map[string]any{"path": filepath.Join(ws, "notes", "a.txt")})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	edit := &EditFileTool{Guard: checker}
	out, err = edit.Execute(ctx, map[string]any{
		"path": filepath.Join(ws, "notes", "a.txt"), "old_text": "hello", "new_text": "goodbye",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Successfully edited")

	data, _ := os.ReadFile(filepath.Join(ws, "notes", "a.txt"))
	assert.Equal(t, "goodbye", string(data))
}

func TestFilesystemToolsDenyOutsidePaths(t *testing.T) {
	ws := t.TempDir()
	checker := pathguard.New([]string{ws}, nil)
	ctx := context.Background()

	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0644))

	for _, tool := range []Tool{
		&ReadFileTool{Guard: checker},
		&WriteFileTool{Guard: checker},
		&ListDirTool{Guard: checker},
	} {
		out, err := tool.Execute(ctx, map[string]any{"path": outside, "content": "y"})
		require.NoError(t, err)
		assert.Contains(t, out, "outside the allowed directories", "tool %s", tool.Name())
	}
	// nothing leaked through
	data, _ := os.ReadFile(outside)
	assert.Equal(t, "x", string(data))
}

func TestEditFileRequiresUniqueMatch(t *testing.T) {
	ws := t.TempDir()
	checker := pathguard.New([]string{ws}, nil)
	path := filepath.Join(ws, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("aa"), 0644))

	edit := &EditFileTool{Guard: checker}
	out, err := edit.Execute(context.Background(), map[string]any{
		"path": path, "old_text": "a", "new_text": "b",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "must be unique")
}

func TestListDir(t *testing.T) {
	ws := t.TempDir()
	checker := pathguard.New([]string{ws}, nil)
	require.NoError(t, os.WriteFile(filepath.Join(ws, "b.txt"), nil, 0644))
	require.NoError(t, os.Mkdir(filepath.Join(ws, "sub"), 0755))

	list := &ListDirTool{Guard: checker}
	out, err := list.Execute(context.Background(), map[string]any{"path": ws})
	require.NoError(t, err)
	assert.Equal(t, "b.txt\nsub/", out)
}

func TestMessageToolSendsEnvelope(t *testing.T) {
	p := &fakeProducer{}
	tool := &MessageTool{Producer: p, GroupName: "family"}

	out, err := tool.Execute(context.Background(), map[string]any{"content": "dinner at 7"})
	require.NoError(t, err)
	assert.Equal(t, "Message sent.", out)

	require.Len(t, p.sent, 1)
	env := p.sent[0]
	assert.Equal(t, mailbox.TypeMessage, env.Type)
	assert.Equal(t, "family", env.GroupName)

	var payload mailbox.MessagePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "dinner at 7", payload.Content)
}

func TestScheduleTaskToolValidatesBeforeSending(t *testing.T) {
	p := &fakeProducer{}
	tool := &ScheduleTaskTool{Producer: p, GroupName: "g"}
	ctx := context.Background()

	out, err := tool.Execute(ctx, map[string]any{
		"name": "t", "description": "d", "schedule_kind": "weekly",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "unknown schedule_kind")

	out, err = tool.Execute(ctx, map[string]any{
		"name": "t", "description": "d", "schedule_kind": "cron", "cron_expression": "not cron",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "invalid cron expression")
	assert.Empty(t, p.sent)

	out, err = tool.Execute(ctx, map[string]any{
		"name": "standup", "description": "post reminder", "schedule_kind": "cron",
		"cron_expression": "0 9 * * 1-5", "time_zone": "Asia/Tokyo",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "submitted for scheduling")
	require.Len(t, p.sent, 1)

	var payload mailbox.ScheduleTaskPayload
	require.NoError(t, json.Unmarshal(p.sent[0].Payload, &payload))
	assert.Equal(t, "0 9 * * 1-5", payload.Cron)
	assert.Equal(t, "Asia/Tokyo", payload.TimeZone)
}

func TestTaskControlToolReportsHostError(t *testing.T) {
	p := &fakeProducer{reply: mailbox.ControlReply{Success: false, Error: "no task with id t-404"}}
	tool := &TaskControlTool{Producer: p, GroupName: "g", Action: mailbox.TypeCancelTask}

	out, err := tool.Execute(context.Background(), map[string]any{"task_id": "t-404"})
	require.NoError(t, err)
	assert.Contains(t, out, "no task with id t-404")
	assert.Equal(t, "cancel_task", tool.Name())
}

func TestTaskControlToolTimeout(t *testing.T) {
	p := &fakeProducer{timeout: true}
	tool := &TaskControlTool{Producer: p, GroupName: "g", Action: mailbox.TypePauseTask, Timeout: time.Second}

	out, err := tool.Execute(context.Background(), map[string]any{"task_id": "t-1"})
	require.NoError(t, err)
	assert.Contains(t, out, "No acknowledgement")
}

func TestListTasksToolFormatsReply(t *testing.T) {
	next := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	p := &fakeProducer{reply: mailbox.ListTasksReply{Tasks: []mailbox.TaskSummary{
		{ID: "t-1", Name: "standup", Kind: "cron", Status: "active", NextRunAt: &next},
		{ID: "t-2", Name: "backup", Kind: "once", Status: "completed"},
	}}}
	tool := &ListTasksTool{Producer: p, GroupName: "g"}

	out, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, "t-1 [active] standup (cron) next: 2026-09-01T09:00:00Z")
	assert.Contains(t, out, "t-2 [completed] backup (once)")
}

func TestDelegateToolReturnsResult(t *testing.T) {
	p := &fakeProducer{reply: mailbox.DelegateReply{Success: true, Result: "three flights found"}}
	tool := &DelegateTool{Producer: p, GroupName: "g"}

	out, err := tool.Execute(context.Background(), map[string]any{
		"agent_id": "research", "task": "find flights", "timeout_seconds": float64(30),
	})
	require.NoError(t, err)
	assert.Equal(t, "three flights found", out)

	var payload mailbox.DelegatePayload
	require.NoError(t, json.Unmarshal(p.sent[0].Payload, &payload))
	assert.Equal(t, "research", payload.AgentID)
	assert.Equal(t, 30, payload.TimeoutSeconds)
}

func TestDelegateToolUnknownAgentError(t *testing.T) {
	p := &fakeProducer{reply: mailbox.DelegateReply{Success: false, Error: "unknown agent \"nope\""}}
	tool := &DelegateTool{Producer: p, GroupName: "g"}

	out, err := tool.Execute(context.Background(), map[string]any{"agent_id": "nope", "task": "x"})
	require.NoError(t, err)
	assert.Contains(t, out, "unknown agent")
}

func TestListAgentsToolFormatsRoster(t *testing.T) {
	p := &fakeProducer{reply: mailbox.ListAgentsReply{Agents: []mailbox.AgentSummary{
		{ID: "butler", Description: "household router", IsRouter: true},
		{ID: "research", Description: "deep research"},
	}}}
	tool := &ListAgentsTool{Producer: p, GroupName: "g"}

	out, err := tool.Execute(context.Background(), map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, "butler (router): household router")
	assert.Contains(t, out, "research: deep research")
}

func TestUpdateMemoryTool(t *testing.T) {
	p := &fakeProducer{}
	tool := &UpdateMemoryTool{Producer: p, GroupName: "g", AuthorID: "butler"}

	out, err := tool.Execute(context.Background(), map[string]any{
		"content": "User prefers espresso", "section": "Preferences",
	})
	require.NoError(t, err)
	assert.Equal(t, "Memory update recorded.", out)

	var payload mailbox.UpdateMemoryPayload
	require.NoError(t, json.Unmarshal(p.sent[0].Payload, &payload))
	assert.Equal(t, "Preferences", payload.Section)
	assert.Equal(t, "butler", payload.AuthorID)
}
