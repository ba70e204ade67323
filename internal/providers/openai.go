package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultAPIBase = "https://api.openai.com/v1"

// OpenAIProvider talks to any OpenAI-compatible chat completion endpoint
// (OpenAI, OpenRouter, DeepSeek, local gateways).
type OpenAIProvider struct {
	APIKey     string
	APIBase    string
	Model      string
	HTTPClient *http.Client
}

// NewOpenAIProvider creates a provider with the given credentials.
func NewOpenAIProvider(apiKey, apiBase, defaultModel string) *OpenAIProvider {
	if defaultModel == "" {
		defaultModel = "gpt-4.1-mini"
	}
	return &OpenAIProvider{
		APIKey:     apiKey,
		APIBase:    apiBase,
		Model:      defaultModel,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// DefaultModel satisfies LLMProvider.
func (p *OpenAIProvider) DefaultModel() string { return p.Model }

// Chat sends a chat completion request. Transport-level failures come back
// as an error response rather than an error, so a flaky endpoint degrades to
// an apologetic turn instead of aborting the invocation.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.Model
	}
	maxTokens := req.MaxTokens
	if maxTokens < 1 {
		maxTokens = 4096
	}

	body := map[string]any{
		"model":       model,
		"messages":    req.Messages,
		"max_tokens":  maxTokens,
		"temperature": req.Temperature,
	}
	if len(req.Tools) > 0 {
		body["tools"] = req.Tools
		body["tool_choice"] = "auto"
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	apiBase := p.APIBase
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	endpoint := strings.TrimRight(apiBase, "/") + "/chat/completions"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	}

	resp, err := p.HTTPClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return errorResponse(fmt.Sprintf("Error calling LLM: %v", err)), nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return errorResponse(fmt.Sprintf("Error reading response: %v", err)), nil
	}
	if resp.StatusCode != http.StatusOK {
		return errorResponse(fmt.Sprintf("Error calling LLM (HTTP %d): %s", resp.StatusCode, string(respBody))), nil
	}

	return parseResponse(respBody)
}

func errorResponse(msg string) *ChatResponse {
	return &ChatResponse{Content: &msg, FinishReason: "error"}
}

// openAIResponse mirrors the OpenAI chat completion response structure.
type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content   *string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage map[string]int `json:"usage"`
}

func parseResponse(data []byte) (*ChatResponse, error) {
	var raw openAIResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if len(raw.Choices) == 0 {
		return nil, fmt.Errorf("response has no choices")
	}

	choice := raw.Choices[0]
	out := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
		Usage:        raw.Usage,
	}
	for _, tc := range choice.Message.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			// Tolerate unparsable arguments; the tool reports its own error.
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		}
		out.ToolCalls = append(out.ToolCalls, ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}
