package mailbox

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMailbox(t *testing.T) *FileMailbox {
	t.Helper()
	m, err := NewFileMailbox(Options{
		Dir:          t.TempDir(),
		PollInterval: 50 * time.Millisecond,
		SettleDelay:  -1, // no settle wait in tests
		ReplyPoll:    20 * time.Millisecond,
	})
	require.NoError(t, err)
	return m
}

func TestSendAndDeliver_ExactlyOnce(t *testing.T) {
	m := newTestMailbox(t)

	var mu sync.Mutex
	var delivered []Envelope
	require.NoError(t, m.Start(func(_ context.Context, env Envelope) {
		mu.Lock()
		delivered = append(delivered, env)
		mu.Unlock()
	}))
	defer m.Stop()

	env, err := NewEnvelope(TypeMessage, "group-1", MessagePayload{Content: "hi"})
	require.NoError(t, err)
	require.NoError(t, m.Send(env))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(delivered) == 1
	}, 2*time.Second, 10*time.Millisecond, "envelope not delivered")

	// The file is gone, so further poll ticks cannot redeliver it.
	_, err = os.Stat(filepath.Join(m.Dir(), env.ID+".json"))
	assert.True(t, os.IsNotExist(err), "envelope file should be removed after delivery")

	time.Sleep(150 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, delivered, 1, "envelope delivered more than once")

	got := delivered[0]
	assert.Equal(t, env.ID, got.ID)
	assert.Equal(t, TypeMessage, got.Type)
	assert.Equal(t, "group-1", got.GroupName)
}

func TestDeliver_PreexistingEnvelope(t *testing.T) {
	m := newTestMailbox(t)

	// Written before the consumer starts, as after a host restart.
	env, err := NewEnvelope(TypeMessage, "g", MessagePayload{Content: "queued while down"})
	require.NoError(t, err)
	require.NoError(t, m.Send(env))

	got := make(chan Envelope, 1)
	require.NoError(t, m.Start(func(_ context.Context, e Envelope) { got <- e }))
	defer m.Stop()

	select {
	case e := <-got:
		assert.Equal(t, env.ID, e.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("pre-existing envelope was not picked up")
	}
}

func TestDeliver_MalformedFileDiscarded(t *testing.T) {
	m := newTestMailbox(t)

	bad := filepath.Join(m.Dir(), "broken.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o644))

	var count sync.Map
	require.NoError(t, m.Start(func(_ context.Context, env Envelope) {
		count.Store(env.ID, true)
	}))
	defer m.Stop()

	require.Eventually(t, func() bool {
		_, err := os.Stat(bad)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond, "malformed file should be removed")

	n := 0
	count.Range(func(_, _ any) bool { n++; return true })
	assert.Zero(t, n, "malformed file must not reach the handler")
}

func TestDeliver_IgnoresTempAndResponseFiles(t *testing.T) {
	m := newTestMailbox(t)

	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "a.json.tmp"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "b.response.json"), []byte("{}"), 0o644))

	delivered := make(chan Envelope, 4)
	require.NoError(t, m.Start(func(_ context.Context, env Envelope) { delivered <- env }))
	defer m.Stop()

	time.Sleep(200 * time.Millisecond)
	assert.Empty(t, delivered)

	// Both must survive: one is a write in progress, one belongs to a requester.
	_, err := os.Stat(filepath.Join(m.Dir(), "a.json.tmp"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(m.Dir(), "b.response.json"))
	assert.NoError(t, err)
}

func TestRequest_RoundTrip(t *testing.T) {
	m := newTestMailbox(t)

	require.NoError(t, m.Start(func(_ context.Context, env Envelope) {
		if env.Type == TypeDelegate {
			m.Respond(env.CorrelationID, DelegateReply{Success: true, Result: "42"})
		}
	}))
	defer m.Stop()

	env, err := NewEnvelope(TypeDelegate, "g", DelegatePayload{AgentID: "research", Task: "count"})
	require.NoError(t, err)

	out := m.Request(context.Background(), env, 3*time.Second)
	require.False(t, out.TimedOut, "request should have been answered")

	var reply DelegateReply
	require.NoError(t, out.Decode(&reply))
	assert.True(t, reply.Success)
	assert.Equal(t, "42", reply.Result)

	// The requester consumed the artifact.
	_, err = os.Stat(filepath.Join(m.Dir(), env.CorrelationID+".response.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestRequest_TimeoutIsBounded(t *testing.T) {
	m := newTestMailbox(t)
	// No consumer running: nothing will ever respond.

	env, err := NewEnvelope(TypeListTasks, "g", struct{}{})
	require.NoError(t, err)

	timeout := 150 * time.Millisecond
	start := time.Now()
	out := m.Request(context.Background(), env, timeout)
	elapsed := time.Since(start)

	assert.True(t, out.TimedOut)
	assert.Less(t, elapsed, timeout+200*time.Millisecond,
		"timeout outcome should arrive no later than timeout + poll interval")
}

func TestRequest_CancelledContext(t *testing.T) {
	m := newTestMailbox(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	env, err := NewEnvelope(TypeListAgents, "g", struct{}{})
	require.NoError(t, err)

	out := m.Request(ctx, env, 10*time.Second)
	assert.True(t, out.TimedOut, "cancellation reads as a timeout-like outcome")
}

func TestAtomicWrite_NoPartialObservation(t *testing.T) {
	m := newTestMailbox(t)

	env, err := NewEnvelope(TypeMessage, "g", MessagePayload{Content: "atomic"})
	require.NoError(t, err)
	require.NoError(t, m.Send(env))

	data, err := os.ReadFile(filepath.Join(m.Dir(), env.ID+".json"))
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, env.ID, decoded.ID)
}
