// Package copilot – gemini.go talks to Gemini through the google genai SDK
// using native function calling.
package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/jholhewres/smartshell/pkg/smartshell/session"
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiModel implements Model on top of genai.Client.
type GeminiModel struct {
	client      *genai.Client
	model       string
	temperature float64
	logger      *slog.Logger
}

// NewGeminiModel creates a Gemini backend.
func NewGeminiModel(ctx context.Context, apiKey, model string, temperature float64, logger *slog.Logger) (*GeminiModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiModel{
		client:      client,
		model:       model,
		temperature: temperature,
		logger:      logger.With("component", "llm", "provider", "gemini"),
	}, nil
}

// Name returns the model id.
func (g *GeminiModel) Name() string {
	return g.model
}

// Send performs one GenerateContent call.
func (g *GeminiModel) Send(ctx context.Context, req *Request) (*Response, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(req.Tools)}}
	}
	if g.temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(g.temperature))
	}

	contents := toGenaiContents(req.Turns)

	g.logger.Debug("sending generate content",
		"model", g.model,
		"contents", len(contents),
		"tools", len(req.Tools),
	)

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("GenAI generate failed: %w", err)
	}

	out := fromGenaiResponse(resp)
	g.logger.Info("generate content done",
		"model", g.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"finish_reason", out.FinishReason,
		"tool_calls", len(out.Calls),
		"blocked", out.Blocked,
	)
	return out, nil
}

func toFunctionDeclarations(specs []tools.Spec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(specs))
	for _, s := range specs {
		decl := &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
		}
		if len(s.Params) > 0 {
			schema := &genai.Schema{
				Type:       genai.TypeObject,
				Properties: make(map[string]*genai.Schema, len(s.Params)),
			}
			for _, p := range s.Params {
				schema.Properties[p.Name] = &genai.Schema{
					Type:        toGenaiType(p.Type),
					Description: p.Description,
				}
				if p.Required {
					schema.Required = append(schema.Required, p.Name)
				}
			}
			decl.Parameters = schema
		}
		decls = append(decls, decl)
	}
	return decls
}

func toGenaiType(t tools.ParamType) genai.Type {
	switch t {
	case tools.TypeInteger:
		return genai.TypeInteger
	case tools.TypeNumber:
		return genai.TypeNumber
	case tools.TypeBoolean:
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func toGenaiContents(turns []session.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		role := string(genai.RoleUser)
		if t.Role == session.RoleModel {
			role = string(genai.RoleModel)
		}
		c := &genai.Content{Role: role}
		for _, p := range t.Parts {
			switch {
			case p.Call != nil:
				c.Parts = append(c.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{
						ID:   p.Call.ID,
						Name: p.Call.Name,
						Args: p.Call.Args,
					},
					ThoughtSignature: p.Call.Signature,
				})
			case p.Result != nil:
				c.Parts = append(c.Parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					ID:       p.Result.ID,
					Name:     p.Result.Name,
					Response: map[string]any{"result": p.Result.Value},
				}})
			case p.Text != "":
				c.Parts = append(c.Parts, &genai.Part{Text: p.Text})
			}
		}
		if len(c.Parts) > 0 {
			contents = append(contents, c)
		}
	}
	return contents
}

func fromGenaiResponse(resp *genai.GenerateContentResponse) *Response {
	out := &Response{}
	if resp == nil {
		out.Blocked = true
		return out
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	if fb := resp.PromptFeedback; fb != nil && fb.BlockReason != "" {
		out.Blocked = true
		out.BlockReason = string(fb.BlockReason)
		if fb.BlockReasonMessage != "" {
			out.BlockReason += ": " + fb.BlockReasonMessage
		}
		return out
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		out.Blocked = true
		return out
	}

	cand := resp.Candidates[0]
	out.FinishReason = string(cand.FinishReason)
	switch cand.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonRecitation:
		out.Blocked = true
		out.BlockReason = string(cand.FinishReason)
		if cand.FinishMessage != "" {
			out.BlockReason += ": " + cand.FinishMessage
		}
		return out
	}
	if cand.Content == nil {
		out.Blocked = true
		return out
	}

	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.FunctionCall != nil {
			id := part.FunctionCall.ID
			if id == "" {
				id = fmt.Sprintf("call_%d", len(out.Calls))
			}
			out.Calls = append(out.Calls, tools.Call{
				ID:        id,
				Name:      part.FunctionCall.Name,
				Args:      part.FunctionCall.Args,
				Signature: part.ThoughtSignature,
			})
			continue
		}
		text.WriteString(part.Text)
	}
	out.Text = strings.TrimSpace(text.String())
	return out
}
