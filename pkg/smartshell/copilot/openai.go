// Package copilot – openai.go is the OpenAI-compatible chat completions
// backend. Any provider exposing /chat/completions with tool calling works.
package copilot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jholhewres/smartshell/pkg/smartshell/session"
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

// DefaultOpenAIBaseURL is used when no base URL is configured.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

type chatMessage struct {
	Role       string     `json:"role"`
	Content    any        `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []chatMessage    `json:"messages"`
	Tools       []toolDefinition `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
}

type toolDefinition struct {
	Type     string      `json:"type"`
	Function functionDef `json:"function"`
}

type functionDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string     `json:"content"`
			Refusal   string     `json:"refusal,omitempty"`
			ToolCalls []toolCall `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// apiError captures a non-200 reply.
type apiError struct {
	statusCode int
	body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("API returned %d: %s", e.statusCode, truncate(e.body, 200))
}

// OpenAIModel implements Model over HTTP.
type OpenAIModel struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	httpClient  *http.Client
	logger      *slog.Logger
}

// NewOpenAIModel creates an OpenAI-compatible backend.
func NewOpenAIModel(baseURL, apiKey, model string, temperature float64, logger *slog.Logger) *OpenAIModel {
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIModel{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		temperature: temperature,
		httpClient: &http.Client{
			// Per-call deadlines come from the context.
			Transport: &http.Transport{
				MaxIdleConns:          10,
				MaxIdleConnsPerHost:   5,
				IdleConnTimeout:       120 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ResponseHeaderTimeout: 180 * time.Second,
			},
		},
		logger: logger.With("component", "llm", "provider", "openai"),
	}
}

// Name returns the model id.
func (m *OpenAIModel) Name() string {
	return m.model
}

// Send performs one chat completion.
func (m *OpenAIModel) Send(ctx context.Context, req *Request) (*Response, error) {
	reqBody := chatRequest{
		Model:    m.model,
		Messages: toChatMessages(req.SystemPrompt, req.Turns),
	}
	if len(req.Tools) > 0 {
		reqBody.Tools = toToolDefinitions(req.Tools)
	}
	if m.temperature > 0 {
		t := m.temperature
		reqBody.Temperature = &t
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := m.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)
	}

	m.logger.Debug("sending chat completion",
		"model", m.model,
		"messages", len(reqBody.Messages),
		"tools", len(reqBody.Tools),
		"endpoint", endpoint,
	)

	start := time.Now()
	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		m.logger.Error("API error",
			"model", m.model,
			"status", resp.StatusCode,
			"body", truncate(string(respBody), 500),
		)
		return nil, &apiError{statusCode: resp.StatusCode, body: string(respBody)}
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", chatResp.Error.Message)
	}

	out := &Response{
		Usage: Usage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		},
	}
	if len(chatResp.Choices) == 0 {
		out.Blocked = true
		return out, nil
	}

	choice := chatResp.Choices[0]
	out.FinishReason = choice.FinishReason
	out.Text = strings.TrimSpace(choice.Message.Content)

	if choice.FinishReason == "content_filter" || choice.Message.Refusal != "" {
		out.Blocked = true
		out.BlockReason = choice.Message.Refusal
		if out.BlockReason == "" {
			out.BlockReason = "content_filter"
		}
		return out, nil
	}

	for i, tc := range choice.Message.ToolCalls {
		args, err := parseToolArgs(tc.Function.Arguments)
		if err != nil {
			// Keep the call so it still gets a result; the executor reports
			// the missing arguments back to the model.
			m.logger.Warn("tool argument parse error", "name", tc.Function.Name, "error", err)
			args = map[string]any{}
		}
		id := tc.ID
		if id == "" {
			id = fmt.Sprintf("call_%d", i)
		}
		out.Calls = append(out.Calls, tools.Call{ID: id, Name: tc.Function.Name, Args: args})
	}

	m.logger.Info("chat completion done",
		"model", m.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", out.Usage.PromptTokens,
		"completion_tokens", out.Usage.CompletionTokens,
		"finish_reason", out.FinishReason,
		"tool_calls", len(out.Calls),
	)
	return out, nil
}

func toChatMessages(systemPrompt string, turns []session.Turn) []chatMessage {
	msgs := make([]chatMessage, 0, len(turns)+1)
	if systemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: systemPrompt})
	}
	for _, t := range turns {
		if t.Role == session.RoleModel {
			msg := chatMessage{Role: "assistant", Content: t.Text()}
			for _, c := range t.Calls() {
				argBytes, _ := json.Marshal(c.Args)
				if c.Args == nil {
					argBytes = []byte("{}")
				}
				msg.ToolCalls = append(msg.ToolCalls, toolCall{
					ID:       c.ID,
					Type:     "function",
					Function: functionCall{Name: c.Name, Arguments: string(argBytes)},
				})
			}
			msgs = append(msgs, msg)
			continue
		}

		// A user turn is either plain text or a batch of tool results, which
		// the chat format expects as one "tool" message per call.
		var text strings.Builder
		for _, p := range t.Parts {
			if p.Result != nil {
				msgs = append(msgs, chatMessage{Role: "tool", Content: p.Result.Value, ToolCallID: p.Result.ID})
				continue
			}
			text.WriteString(p.Text)
		}
		if text.Len() > 0 {
			msgs = append(msgs, chatMessage{Role: "user", Content: text.String()})
		}
	}
	return msgs
}

func toToolDefinitions(specs []tools.Spec) []toolDefinition {
	defs := make([]toolDefinition, 0, len(specs))
	for _, s := range specs {
		props := make(map[string]any, len(s.Params))
		for _, p := range s.Params {
			prop := map[string]any{"type": string(p.Type)}
			if p.Description != "" {
				prop["description"] = p.Description
			}
			props[p.Name] = prop
		}
		schema := map[string]any{
			"type":       "object",
			"properties": props,
		}
		if req := s.RequiredParams(); len(req) > 0 {
			schema["required"] = req
		}
		raw, _ := json.Marshal(schema)
		defs = append(defs, toolDefinition{
			Type: "function",
			Function: functionDef{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  raw,
			},
		})
	}
	return defs
}

func parseToolArgs(raw string) (map[string]any, error) {
	if raw == "" || raw == "{}" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments: %w", err)
	}
	return args, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return tools.Truncate(s, n) + "..."
}
