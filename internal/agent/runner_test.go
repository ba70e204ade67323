package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bsakel/denbot/internal/providers"
	"github.com/bsakel/denbot/internal/session"
	"github.com/bsakel/denbot/internal/tools"
)

// scriptedProvider plays back a fixed sequence of responses.
type scriptedProvider struct {
	responses []*providers.ChatResponse
	requests  []providers.ChatRequest
}

func (p *scriptedProvider) Chat(_ context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		content := "done"
		return &providers.ChatResponse{Content: &content}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *scriptedProvider) DefaultModel() string { return "test-model" }

// echoTool records its invocations.
type echoTool struct{ calls []map[string]any }

func (t *echoTool) Name() string                { return "echo" }
func (t *echoTool) Description() string         { return "echoes" }
func (t *echoTool) Parameters() map[string]any  { return map[string]any{"type": "object"} }
func (t *echoTool) Execute(_ context.Context, args map[string]any) (string, error) {
	t.calls = append(t.calls, args)
	text, _ := args["text"].(string)
	return "echo: " + text, nil
}

func textResp(s string) *providers.ChatResponse {
	return &providers.ChatResponse{Content: &s}
}

func toolResp(id, name string, args map[string]any) *providers.ChatResponse {
	return &providers.ChatResponse{ToolCalls: []providers.ToolCallRequest{
		{ID: id, Name: name, Arguments: args},
	}}
}

func newTestRunner(t *testing.T, p providers.LLMProvider) *Runner {
	ws := t.TempDir()
	return NewRunner(p, NewContextBuilder(ws, nil), session.NewManager(ws))
}

func TestRunPlainAnswer(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{textResp("it is 3pm")}}
	r := newTestRunner(t, p)

	out, err := r.Run(context.Background(), Invocation{AgentID: "butler", Content: "time?"})
	require.NoError(t, err)
	assert.Equal(t, "it is 3pm", out)

	require.Len(t, p.requests, 1)
	assert.Equal(t, "test-model", p.requests[0].Model)
	assert.Equal(t, "system", p.requests[0].Messages[0]["role"])
}

func TestRunExecutesToolsThenAnswers(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		toolResp("tc-1", "echo", map[string]any{"text": "ping"}),
		textResp("the tool said: echo: ping"),
	}}
	r := newTestRunner(t, p)

	reg := tools.NewRegistry()
	echo := &echoTool{}
	reg.Register(echo)

	out, err := r.Run(context.Background(), Invocation{AgentID: "butler", Content: "run it", Tools: reg})
	require.NoError(t, err)
	assert.Equal(t, "the tool said: echo: ping", out)
	require.Len(t, echo.calls, 1)

	// second request carries the assistant tool_calls turn and the tool result
	require.Len(t, p.requests, 2)
	second := p.requests[1].Messages
	assert.Equal(t, "assistant", second[len(second)-2]["role"])
	assert.Equal(t, "tool", second[len(second)-1]["role"])
	assert.Equal(t, "echo: ping", second[len(second)-1]["content"])
}

func TestRunUnknownToolReportsError(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{
		toolResp("tc-1", "missing", nil),
		textResp("sorry"),
	}}
	r := newTestRunner(t, p)

	out, err := r.Run(context.Background(), Invocation{AgentID: "butler", Content: "x", Tools: tools.NewRegistry()})
	require.NoError(t, err)
	assert.Equal(t, "sorry", out)

	second := p.requests[1].Messages
	assert.Contains(t, second[len(second)-1]["content"], `unknown tool "missing"`)
}

func TestRunPersistsSessionHistory(t *testing.T) {
	p := &scriptedProvider{responses: []*providers.ChatResponse{textResp("noted")}}
	r := newTestRunner(t, p)

	_, err := r.Run(context.Background(), Invocation{AgentID: "butler", Content: "remember this", SessionKey: "cli:home"})
	require.NoError(t, err)

	sess := r.Sessions.GetOrCreate("cli:home")
	hist := sess.History(0)
	require.Len(t, hist, 2)
	assert.Equal(t, "remember this", hist[0]["content"])
	assert.Equal(t, "noted", hist[1]["content"])
}

func TestRunMaxIterations(t *testing.T) {
	p := &scriptedProvider{}
	// every turn asks for another tool call
	for i := 0; i < 30; i++ {
		p.responses = append(p.responses, toolResp("tc", "echo", map[string]any{"text": "again"}))
	}
	r := newTestRunner(t, p)
	r.MaxIterations = 3

	reg := tools.NewRegistry()
	reg.Register(&echoTool{})

	out, err := r.Run(context.Background(), Invocation{AgentID: "butler", Content: "loop", Tools: reg})
	require.NoError(t, err)
	assert.Equal(t, "Max iterations reached", out)
	assert.Len(t, p.requests, 3)
}
