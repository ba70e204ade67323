package agent

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/bsakel/denbot/internal/cache"
)

// BootstrapFiles are loaded into the system prompt when present.
var BootstrapFiles = []string{"AGENTS.md", "USER.md", "TOOLS.md"}

// promptTTL bounds how stale a cached system prompt may get.
const promptTTL = 30 * time.Second

// ContextBuilder assembles system prompts and message lists for agent runs.
type ContextBuilder struct {
	Workspace string
	Memory    *MemoryStore
	Cache     *cache.Cache
}

// NewContextBuilder creates a ContextBuilder for a workspace.
func NewContextBuilder(workspace string, c *cache.Cache) *ContextBuilder {
	return &ContextBuilder{
		Workspace: workspace,
		Memory:    NewMemoryStore(workspace),
		Cache:     c,
	}
}

// BuildSystemPrompt builds the full system prompt for one agent: runtime
// identity, the agent's own persona, workspace bootstrap files, and memory.
func (c *ContextBuilder) BuildSystemPrompt(ctx context.Context, agentID, persona string) string {
	if c.Cache != nil {
		if v, ok := c.Cache.Get(ctx, cache.KeyPrompt+agentID); ok {
			return v
		}
	}

	var parts []string
	parts = append(parts, c.getIdentity())
	if persona != "" {
		parts = append(parts, persona)
	}
	if bs := c.loadBootstrapFiles(); bs != "" {
		parts = append(parts, bs)
	}
	if mem := c.memoryContext(ctx); mem != "" {
		parts = append(parts, fmt.Sprintf("# Memory\n\n%s", mem))
	}

	prompt := strings.Join(parts, "\n\n---\n\n")
	if c.Cache != nil {
		c.Cache.Set(ctx, cache.KeyPrompt+agentID, prompt, promptTTL)
	}
	return prompt
}

// InvalidatePrompt drops the cached system prompt for an agent. Called after
// memory updates so the next run sees fresh content.
func (c *ContextBuilder) InvalidatePrompt(ctx context.Context, agentID string) {
	if c.Cache != nil {
		c.Cache.Invalidate(ctx, cache.KeyPrompt+agentID)
	}
}

// memoryContext returns MEMORY.md formatted for prompts, cached briefly so a
// burst of agent runs does not reread the file each turn.
func (c *ContextBuilder) memoryContext(ctx context.Context) string {
	if c.Cache != nil {
		if v, ok := c.Cache.Get(ctx, cache.KeyMemory+"context"); ok {
			return v
		}
	}
	mem := c.Memory.GetMemoryContext()
	if c.Cache != nil && mem != "" {
		c.Cache.Set(ctx, cache.KeyMemory+"context", mem, promptTTL)
	}
	return mem
}

// InvalidateMemory drops the cached memory context after an update.
func (c *ContextBuilder) InvalidateMemory(ctx context.Context) {
	if c.Cache != nil {
		c.Cache.Invalidate(ctx, cache.KeyMemory+"context")
	}
}

func (c *ContextBuilder) getIdentity() string {
	now := time.Now().Format("2006-01-02 15:04 (Monday)")
	tz, _ := time.Now().Zone()
	sys := runtime.GOOS
	if sys == "darwin" {
		sys = "macOS"
	}
	rt := fmt.Sprintf("%s %s, Go %s", sys, runtime.GOARCH, runtime.Version())
	ws, _ := filepath.Abs(c.Workspace)

	return fmt.Sprintf(`# denbot

You are part of denbot, a personal assistant. You have access to tools that
allow you to read and write files, manage scheduled tasks, delegate work to
specialist agents, and update long-term memory.

## Current Time
%s (%s)

## Runtime
%s

## Workspace
Your workspace is at: %s
- Long-term memory: %s/memory/MEMORY.md
- History log: %s/memory/HISTORY.md (grep-searchable)

Always be helpful, accurate, and concise.`, now, tz, rt, ws, ws, ws)
}

func (c *ContextBuilder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range BootstrapFiles {
		path := filepath.Join(c.Workspace, name)
		data, err := os.ReadFile(path)
		if err == nil {
			parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, string(data)))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages constructs the full message list for an LLM call.
func (c *ContextBuilder) BuildMessages(systemPrompt string, history []map[string]any, userMsg string) []map[string]any {
	messages := []map[string]any{
		{"role": "system", "content": systemPrompt},
	}
	messages = append(messages, history...)
	messages = append(messages, map[string]any{"role": "user", "content": userMsg})
	return messages
}

// AddToolResult appends a tool result message.
func (c *ContextBuilder) AddToolResult(messages []map[string]any, toolCallID, toolName, result string) []map[string]any {
	return append(messages, map[string]any{
		"role":         "tool",
		"tool_call_id": toolCallID,
		"name":         toolName,
		"content":      result,
	})
}

// AddAssistantMessage appends an assistant message with optional tool calls.
func (c *ContextBuilder) AddAssistantMessage(messages []map[string]any, content string, toolCalls []map[string]any) []map[string]any {
	msg := map[string]any{"role": "assistant", "content": content}
	if len(toolCalls) > 0 {
		msg["tool_calls"] = toolCalls
	}
	return append(messages, msg)
}
