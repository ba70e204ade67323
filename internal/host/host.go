// Package host is the consumer side of the runtime: it routes inbound
// envelopes to the task store, the agent registry, memory, and the outbound
// message bus, and it runs agents on behalf of users, delegation, and the
// scheduler.
package host

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/bsakel/denbot/internal/agent"
	"github.com/bsakel/denbot/internal/bus"
	"github.com/bsakel/denbot/internal/mailbox"
	"github.com/bsakel/denbot/internal/pathguard"
	"github.com/bsakel/denbot/internal/registry"
	"github.com/bsakel/denbot/internal/schedule"
	"github.com/bsakel/denbot/internal/task"
)

// Host wires envelope handling to the rest of the runtime.
type Host struct {
	Store     task.Store
	Registry  *registry.Registry
	Runner    *agent.Runner
	Bus       *bus.MessageBus
	Producer  mailbox.Producer
	Responder mailbox.Responder
	Guard     *pathguard.Checker

	ListTimeout     time.Duration
	DelegateTimeout time.Duration
}

// Options configures a Host.
type Options struct {
	Store           task.Store
	Registry        *registry.Registry
	Runner          *agent.Runner
	Bus             *bus.MessageBus
	Producer        mailbox.Producer
	Responder       mailbox.Responder
	Guard           *pathguard.Checker
	ListTimeout     time.Duration
	DelegateTimeout time.Duration
}

// New creates a Host.
func New(opts Options) *Host {
	if opts.ListTimeout <= 0 {
		opts.ListTimeout = 10 * time.Second
	}
	if opts.DelegateTimeout <= 0 {
		opts.DelegateTimeout = 300 * time.Second
	}
	return &Host{
		Store:           opts.Store,
		Registry:        opts.Registry,
		Runner:          opts.Runner,
		Bus:             opts.Bus,
		Producer:        opts.Producer,
		Responder:       opts.Responder,
		Guard:           opts.Guard,
		ListTimeout:     opts.ListTimeout,
		DelegateTimeout: opts.DelegateTimeout,
	}
}

// Handle consumes one envelope. It is the mailbox.Handler for the runtime.
func (h *Host) Handle(ctx context.Context, env mailbox.Envelope) {
	switch env.Type {
	case mailbox.TypeMessage:
		h.handleMessage(env)
	case mailbox.TypeScheduleTask:
		h.handleScheduleTask(ctx, env)
	case mailbox.TypePauseTask, mailbox.TypeResumeTask, mailbox.TypeCancelTask:
		h.handleTaskControl(ctx, env)
	case mailbox.TypeListTasks:
		h.handleListTasks(ctx, env)
	case mailbox.TypeDelegate:
		h.handleDelegate(ctx, env)
	case mailbox.TypeListAgents:
		h.handleListAgents(env)
	case mailbox.TypeUpdateMemory:
		h.handleUpdateMemory(ctx, env)
	default:
		log.Printf("[Host] dropping envelope %s with unknown type %q", env.ID, env.Type)
	}
}

func (h *Host) handleMessage(env mailbox.Envelope) {
	var payload mailbox.MessagePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		log.Printf("[Host] bad message payload in %s: %v", env.ID, err)
		return
	}
	h.Bus.Publish(bus.OutboundMessage{
		GroupName: env.GroupName,
		Content:   payload.Content,
		Origin:    "agent",
	})
}

func (h *Host) handleScheduleTask(ctx context.Context, env mailbox.Envelope) {
	var payload mailbox.ScheduleTaskPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		log.Printf("[Host] bad schedule_task payload in %s: %v", env.ID, err)
		return
	}

	t := task.Task{
		GroupName:   env.GroupName,
		Name:        payload.Name,
		Description: payload.Description,
		Kind:        schedule.Kind(payload.Kind),
		CronExpr:    payload.Cron,
		Every:       time.Duration(payload.EverySeconds) * time.Second,
		TimeZone:    payload.TimeZone,
		Status:      task.StatusActive,
	}
	if payload.RunAt != "" {
		at, err := time.Parse(time.RFC3339, payload.RunAt)
		if err != nil {
			log.Printf("[Host] discarding task %q: bad run_at %q: %v", payload.Name, payload.RunAt, err)
			return
		}
		t.RunAt = &at
	}

	next, ok := schedule.Next(t.Spec(), time.Now())
	if !ok {
		log.Printf("[Host] discarding task %q: schedule yields no future run", payload.Name)
		return
	}
	t.NextRunAt = &next

	id, err := h.Store.Create(ctx, t)
	if err != nil {
		log.Printf("[Host] create task %q: %v", payload.Name, err)
		return
	}
	log.Printf("[Host] scheduled task %s (%s) next run %s", id, payload.Name, next.Format(time.RFC3339))
}

func (h *Host) handleTaskControl(ctx context.Context, env mailbox.Envelope) {
	var payload mailbox.TaskControlPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		h.respondControl(env, fmt.Errorf("bad payload: %v", err))
		return
	}

	var err error
	switch env.Type {
	case mailbox.TypePauseTask:
		err = h.Store.Pause(ctx, payload.TaskID)
	case mailbox.TypeResumeTask:
		err = h.resume(ctx, payload.TaskID)
	case mailbox.TypeCancelTask:
		err = h.Store.Cancel(ctx, payload.TaskID)
	}
	if err == task.ErrNotFound {
		err = fmt.Errorf("no task with id %s", payload.TaskID)
	}
	h.respondControl(env, err)
}

// resume recomputes the next run before reactivating so a task paused across
// several occurrences does not fire for all the missed ones.
func (h *Host) resume(ctx context.Context, id string) error {
	t, err := h.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	next, ok := schedule.Next(t.Spec(), time.Now())
	if !ok {
		return fmt.Errorf("task %s has no future runs left", id)
	}
	return h.Store.Resume(ctx, id, next)
}

func (h *Host) respondControl(env mailbox.Envelope, err error) {
	reply := mailbox.ControlReply{Success: err == nil}
	if err != nil {
		reply.Error = err.Error()
		log.Printf("[Host] %s %s: %v", env.Type, env.ID, err)
	}
	if rerr := h.Responder.Respond(env.CorrelationID, reply); rerr != nil {
		log.Printf("[Host] respond to %s: %v", env.CorrelationID, rerr)
	}
}

func (h *Host) handleListTasks(ctx context.Context, env mailbox.Envelope) {
	tasks, err := h.Store.ListByGroup(ctx, env.GroupName)
	if err != nil {
		log.Printf("[Host] list tasks for %s: %v", env.GroupName, err)
		tasks = nil
	}
	reply := mailbox.ListTasksReply{Tasks: make([]mailbox.TaskSummary, 0, len(tasks))}
	for _, t := range tasks {
		if t.Status.Terminal() {
			continue
		}
		reply.Tasks = append(reply.Tasks, mailbox.TaskSummary{
			ID:        t.ID,
			Name:      t.Name,
			Kind:      string(t.Kind),
			Status:    string(t.Status),
			LastRunAt: t.LastRunAt,
			NextRunAt: t.NextRunAt,
		})
	}
	if err := h.Responder.Respond(env.CorrelationID, reply); err != nil {
		log.Printf("[Host] respond to %s: %v", env.CorrelationID, err)
	}
}

func (h *Host) handleDelegate(ctx context.Context, env mailbox.Envelope) {
	var payload mailbox.DelegatePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		h.respondDelegate(env, mailbox.DelegateReply{Success: false, Error: fmt.Sprintf("bad payload: %v", err)})
		return
	}

	spec, ok := h.Registry.Get(payload.AgentID)
	if !ok {
		// fail fast so the router is not left waiting out its timeout
		h.respondDelegate(env, mailbox.DelegateReply{
			Success: false,
			Error:   fmt.Sprintf("unknown agent %q", payload.AgentID),
		})
		return
	}

	timeout := h.DelegateTimeout
	if payload.TimeoutSeconds > 0 {
		timeout = time.Duration(payload.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	content := payload.Task
	if payload.Context != "" {
		content = fmt.Sprintf("%s\n\nBackground:\n%s", payload.Task, payload.Context)
	}

	result, err := h.RunAgent(runCtx, spec, env.GroupName, content, "")
	if err != nil {
		h.respondDelegate(env, mailbox.DelegateReply{Success: false, Error: err.Error()})
		return
	}
	h.respondDelegate(env, mailbox.DelegateReply{Success: true, Result: result})
}

func (h *Host) respondDelegate(env mailbox.Envelope, reply mailbox.DelegateReply) {
	if err := h.Responder.Respond(env.CorrelationID, reply); err != nil {
		log.Printf("[Host] respond to %s: %v", env.CorrelationID, err)
	}
}

func (h *Host) handleListAgents(env mailbox.Envelope) {
	specs := h.Registry.List()
	reply := mailbox.ListAgentsReply{Agents: make([]mailbox.AgentSummary, 0, len(specs))}
	for _, s := range specs {
		reply.Agents = append(reply.Agents, mailbox.AgentSummary{
			ID:          s.ID,
			Description: s.Description,
			Model:       s.Model,
			IsRouter:    s.IsRouter,
		})
	}
	if err := h.Responder.Respond(env.CorrelationID, reply); err != nil {
		log.Printf("[Host] respond to %s: %v", env.CorrelationID, err)
	}
}

func (h *Host) handleUpdateMemory(ctx context.Context, env mailbox.Envelope) {
	var payload mailbox.UpdateMemoryPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		log.Printf("[Host] bad update_memory payload in %s: %v", env.ID, err)
		return
	}
	if err := h.Runner.Context.Memory.Apply(payload.Content, payload.Section, payload.AuthorID); err != nil {
		log.Printf("[Host] memory update from %s: %v", env.ID, err)
		return
	}
	// memory is baked into system prompts, so cached ones are now stale
	h.Runner.Context.InvalidateMemory(ctx)
	for _, s := range h.Registry.List() {
		h.Runner.Context.InvalidatePrompt(ctx, s.ID)
	}
}

// RunRouter runs the default (router) agent for a user message in a group.
// The session key is derived from the group so conversation history is
// shared across chat and scheduled runs of the same group.
func (h *Host) RunRouter(ctx context.Context, groupName, content string) (string, error) {
	spec := h.Registry.Default()
	return h.RunAgent(ctx, spec, groupName, content, "group:"+groupName)
}

// RunAgent runs one agent with its configured toolset. An empty sessionKey
// makes the run stateless.
func (h *Host) RunAgent(ctx context.Context, spec registry.AgentSpec, groupName, content, sessionKey string) (string, error) {
	return h.Runner.Run(ctx, agent.Invocation{
		AgentID:    spec.ID,
		Model:      spec.Model,
		MaxTokens:  spec.MaxTokens,
		Persona:    spec.SoulText,
		Tools:      h.toolsFor(spec, groupName),
		Content:    content,
		SessionKey: sessionKey,
	})
}

// RunTask executes one scheduled task via the router agent. It satisfies
// scheduler.Invoker.
func (h *Host) RunTask(ctx context.Context, t task.Task) (string, error) {
	content := fmt.Sprintf("Scheduled task %q is due. %s", t.Name, t.Description)
	return h.RunRouter(ctx, t.GroupName, content)
}
