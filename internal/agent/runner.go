package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/bsakel/denbot/internal/providers"
	"github.com/bsakel/denbot/internal/session"
	"github.com/bsakel/denbot/internal/tools"
)

// Runner executes agent invocations: it builds context, calls the LLM,
// executes requested tools, and loops until the model produces a final
// answer.
type Runner struct {
	Provider      providers.LLMProvider
	Context       *ContextBuilder
	Sessions      *session.Manager
	MaxIterations int
	MaxTokens     int
	Temperature   float64
	MemoryWindow  int
}

// NewRunner creates a Runner with the usual defaults.
func NewRunner(provider providers.LLMProvider, ctxBuilder *ContextBuilder, sessions *session.Manager) *Runner {
	return &Runner{
		Provider:      provider,
		Context:       ctxBuilder,
		Sessions:      sessions,
		MaxIterations: 20,
		MaxTokens:     4096,
		MemoryWindow:  50,
	}
}

// Invocation is one unit of agent work.
type Invocation struct {
	AgentID    string
	Model      string          // empty means the provider default
	MaxTokens  int             // 0 means the runner default
	Persona    string          // agent-specific system prompt fragment
	Tools      *tools.Registry // may be nil for a tool-less run
	Content    string
	SessionKey string // empty disables history and persistence
}

// Run executes one invocation to completion and returns the final text.
func (r *Runner) Run(ctx context.Context, inv Invocation) (string, error) {
	model := inv.Model
	if model == "" {
		model = r.Provider.DefaultModel()
	}
	maxTokens := inv.MaxTokens
	if maxTokens == 0 {
		maxTokens = r.MaxTokens
	}

	systemPrompt := r.Context.BuildSystemPrompt(ctx, inv.AgentID, inv.Persona)

	var sess *session.Session
	var history []map[string]any
	if inv.SessionKey != "" {
		sess = r.Sessions.GetOrCreate(inv.SessionKey)
		history = sess.History(r.MemoryWindow)
	}

	messages := r.Context.BuildMessages(systemPrompt, history, inv.Content)

	final, toolsUsed, err := r.runLoop(ctx, inv, model, maxTokens, messages)
	if err != nil {
		return "", err
	}
	if final == "" {
		final = "Completed processing."
	}
	if len(toolsUsed) > 0 {
		log.Printf("[Runner] %s used tools: %v", inv.AgentID, toolsUsed)
	}

	if sess != nil {
		sess.Add("user", inv.Content)
		sess.Add("assistant", final)
		if err := r.Sessions.Save(sess); err != nil {
			log.Printf("[Runner] save session %s: %v", inv.SessionKey, err)
		}
	}
	return final, nil
}

// runLoop is the tool-calling loop: chat, execute any requested tools, feed
// results back, repeat until the model answers in plain text.
func (r *Runner) runLoop(ctx context.Context, inv Invocation, model string, maxTokens int, messages []map[string]any) (string, []string, error) {
	var toolsUsed []string
	var schemas []map[string]any
	if inv.Tools != nil {
		schemas = inv.Tools.Schemas()
	}

	for iteration := 0; iteration < r.MaxIterations; iteration++ {
		resp, err := r.Provider.Chat(ctx, providers.ChatRequest{
			Messages:    messages,
			Tools:       schemas,
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: r.Temperature,
		})
		if err != nil {
			return "", toolsUsed, fmt.Errorf("LLM chat: %w", err)
		}

		if !resp.HasToolCalls() {
			content := ""
			if resp.Content != nil {
				content = *resp.Content
			}
			return content, toolsUsed, nil
		}

		var toolCallDicts []map[string]any
		for _, tc := range resp.ToolCalls {
			argsJSON, _ := json.Marshal(tc.Arguments)
			toolCallDicts = append(toolCallDicts, map[string]any{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]any{
					"name":      tc.Name,
					"arguments": string(argsJSON),
				},
			})
		}
		contentStr := ""
		if resp.Content != nil {
			contentStr = *resp.Content
		}
		messages = r.Context.AddAssistantMessage(messages, contentStr, toolCallDicts)

		for _, tc := range resp.ToolCalls {
			toolsUsed = append(toolsUsed, tc.Name)
			result := r.executeTool(ctx, inv.Tools, tc)
			messages = r.Context.AddToolResult(messages, tc.ID, tc.Name, result)
		}
	}

	return "Max iterations reached", toolsUsed, nil
}

func (r *Runner) executeTool(ctx context.Context, reg *tools.Registry, tc providers.ToolCallRequest) string {
	if reg == nil {
		return fmt.Sprintf("Error: unknown tool %q", tc.Name)
	}
	tool := reg.Get(tc.Name)
	if tool == nil {
		return fmt.Sprintf("Error: unknown tool %q", tc.Name)
	}
	result, err := tool.Execute(ctx, tc.Arguments)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return result
}
