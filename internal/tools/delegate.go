package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bsakel/denbot/internal/mailbox"
)

// defaultDelegateTimeout is how long the router waits for a specialist run
// when the model does not ask for a specific timeout.
const defaultDelegateTimeout = 300 * time.Second

// DelegateTool hands a sub-task to a named specialist agent and blocks until
// the specialist answers or the timeout elapses.
type DelegateTool struct {
	Producer  mailbox.Producer
	GroupName string
	Timeout   time.Duration
}

func (t *DelegateTool) Name() string { return "delegate" }
func (t *DelegateTool) Description() string {
	return "Delegate a task to a specialist agent and wait for its result. Use list_agents to see which agents exist."
}
func (t *DelegateTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agent_id": map[string]any{"type": "string", "description": "The id of the specialist agent"},
			"task":     map[string]any{"type": "string", "description": "What the specialist should do"},
			"context":  map[string]any{"type": "string", "description": "Extra background the specialist needs"},
			"timeout_seconds": map[string]any{
				"type":        "integer",
				"description": "How long to wait for the result (default 300)",
			},
		},
		"required": []string{"agent_id", "task"},
	}
}

func (t *DelegateTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	payload := mailbox.DelegatePayload{
		AgentID: stringArg(args, "agent_id"),
		Task:    stringArg(args, "task"),
		Context: stringArg(args, "context"),
	}
	if payload.AgentID == "" || payload.Task == "" {
		return "Error: agent_id and task are required", nil
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultDelegateTimeout
	}
	if v, ok := args["timeout_seconds"].(float64); ok && v > 0 {
		timeout = time.Duration(v) * time.Second
		payload.TimeoutSeconds = int(v)
	}

	env, err := mailbox.NewEnvelope(mailbox.TypeDelegate, t.GroupName, payload)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	outcome := t.Producer.Request(ctx, env, timeout)
	if outcome.TimedOut {
		return fmt.Sprintf("Agent %s did not answer within %s.", payload.AgentID, timeout), nil
	}
	var reply mailbox.DelegateReply
	if err := outcome.Decode(&reply); err != nil {
		return fmt.Sprintf("Error decoding reply: %v", err), nil
	}
	if !reply.Success {
		return fmt.Sprintf("Error from agent %s: %s", payload.AgentID, reply.Error), nil
	}
	return reply.Result, nil
}

// ListAgentsTool fetches the registered agent roster.
type ListAgentsTool struct {
	Producer  mailbox.Producer
	GroupName string
	Timeout   time.Duration
}

func (t *ListAgentsTool) Name() string { return "list_agents" }
func (t *ListAgentsTool) Description() string {
	return "List the available specialist agents and what they do."
}
func (t *ListAgentsTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{}}
}

func (t *ListAgentsTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	env, err := mailbox.NewEnvelope(mailbox.TypeListAgents, t.GroupName, struct{}{})
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	timeout := t.Timeout
	if timeout <= 0 {
		timeout = defaultListTimeout
	}
	outcome := t.Producer.Request(ctx, env, timeout)
	if outcome.TimedOut {
		return fmt.Sprintf("No agent list received within %s.", timeout), nil
	}
	var reply mailbox.ListAgentsReply
	if err := outcome.Decode(&reply); err != nil {
		return fmt.Sprintf("Error decoding reply: %v", err), nil
	}
	if len(reply.Agents) == 0 {
		return "No agents registered.", nil
	}
	var b strings.Builder
	for _, a := range reply.Agents {
		fmt.Fprintf(&b, "- %s", a.ID)
		if a.IsRouter {
			b.WriteString(" (router)")
		}
		if a.Description != "" {
			fmt.Fprintf(&b, ": %s", a.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
