package tools

import (
	"context"
	"fmt"

	"github.com/bsakel/denbot/internal/mailbox"
)

// MessageTool lets an agent push text to the user outside the normal reply,
// e.g. from a scheduled run. It is fire-and-forget.
type MessageTool struct {
	Producer  mailbox.Producer
	GroupName string
}

func (t *MessageTool) Name() string { return "send_message" }
func (t *MessageTool) Description() string {
	return "Send a message to the user. Use for proactive notifications, e.g. from scheduled tasks."
}
func (t *MessageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"content": map[string]any{"type": "string", "description": "The message text to deliver"},
		},
		"required": []string{"content"},
	}
}

func (t *MessageTool) Execute(_ context.Context, args map[string]any) (string, error) {
	content, _ := args["content"].(string)
	if content == "" {
		return "Error: content is required", nil
	}
	env, err := mailbox.NewEnvelope(mailbox.TypeMessage, t.GroupName, mailbox.MessagePayload{Content: content})
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}
	if err := t.Producer.Send(env); err != nil {
		return fmt.Sprintf("Error sending message: %v", err), nil
	}
	return "Message sent.", nil
}
