// Package copilot drives the conversation with the remote model: it sends
// the transcript, runs the tool rounds the model asks for and turns the
// final answer into an Outcome for the console.
package copilot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jholhewres/smartshell/pkg/smartshell/session"
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

// ErrModelUnavailable is returned by Handle when no model could be
// initialized. The shell keeps running in this state.
var ErrModelUnavailable = errors.New("AI is not active")

// Model is a conversational model that supports function calling.
type Model interface {
	Send(ctx context.Context, req *Request) (*Response, error)
	Name() string
}

// Request is one call to the model.
type Request struct {
	SystemPrompt string
	Tools        []tools.Spec
	Turns        []session.Turn
}

// Response is what the model returned. At most one of Calls and Blocked is
// meaningful: a blocked response carries no calls.
type Response struct {
	Text         string
	Calls        []tools.Call
	Blocked      bool
	BlockReason  string
	FinishReason string
	Usage        Usage
}

// Usage holds token counts reported by the provider.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func (u *Usage) add(o Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}

// TransportError wraps a failure talking to the model.
type TransportError struct {
	Round int
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("model request failed (round %d): %v", e.Round, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
