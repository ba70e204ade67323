package mailbox

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Outcome is the result of a correlated request. A timeout is an expected
// business outcome ("the specialist didn't answer in time"), not a transport
// failure, so it is reported here rather than as an error.
type Outcome struct {
	TimedOut bool
	Data     json.RawMessage
}

// Decode unmarshals a non-timeout outcome into v.
func (o Outcome) Decode(v any) error {
	return json.Unmarshal(o.Data, v)
}

// Request writes env to the mailbox and polls for the sibling
// <correlationId>.response.json artifact until it appears or timeout
// elapses. The artifact is read and deleted by this caller only.
//
// Correlation state lives entirely in the filesystem namespace: the host can
// restart without losing in-flight requests beyond the window it was down.
func (m *FileMailbox) Request(ctx context.Context, env Envelope, timeout time.Duration) Outcome {
	if env.CorrelationID == "" {
		env.CorrelationID = env.ID
	}
	if err := m.Send(env); err != nil {
		log.Printf("[Mailbox] request %s send failed: %v", env.Type, err)
		return Outcome{TimedOut: true}
	}

	respPath := filepath.Join(m.dir, env.CorrelationID+responseSuffix)
	deadline := time.Now().Add(timeout)

	for {
		data, err := os.ReadFile(respPath)
		if err == nil {
			os.Remove(respPath)
			return Outcome{Data: data}
		}
		if !os.IsNotExist(err) {
			log.Printf("[Mailbox] read response %s: %v", env.CorrelationID, err)
		}

		if time.Now().After(deadline) {
			return Outcome{TimedOut: true}
		}
		select {
		case <-time.After(m.replyPoll):
		case <-ctx.Done():
			// Shutdown mid-request reads as a timeout, never a hang.
			return Outcome{TimedOut: true}
		}
	}
}
