package tools

import (
	"context"
	"fmt"

	"github.com/bsakel/denbot/internal/mailbox"
)

// UpdateMemoryTool records a durable fact in long-term memory via the host.
type UpdateMemoryTool struct {
	Producer  mailbox.Producer
	GroupName string
	AuthorID  string
}

func (t *UpdateMemoryTool) Name() string { return "update_memory" }
func (t *UpdateMemoryTool) Description() string {
	return "Save a fact to long-term memory so future conversations can use it."
}
func (t *UpdateMemoryTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string", "description": "The fact to remember"},
			"section": map[string]any{"type": "string", "description": "Optional MEMORY.md section to file it under"},
		},
		"required": []string{"content"},
	}
}

func (t *UpdateMemoryTool) Execute(_ context.Context, args map[string]any) (string, error) {
	content := stringArg(args, "content")
	if content == "" {
		return "Error: content is required", nil
	}
	payload := mailbox.UpdateMemoryPayload{
		Content:  content,
		Section:  stringArg(args, "section"),
		AuthorID: t.AuthorID,
	}
	env, err := mailbox.NewEnvelope(mailbox.TypeUpdateMemory, t.GroupName, payload)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	if err := t.Producer.Send(env); err != nil {
		return fmt.Sprintf("Error updating memory: %v", err), nil
	}
	return "Memory update recorded.", nil
}
