// Package session holds the live conversation state of the shell: the
// transcript exchanged with the model and the session flags shared with the
// clipboard monitor.
package session

import (
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Part is one element of a turn. Exactly one field is set.
type Part struct {
	Text   string        `json:"text,omitempty"`
	Call   *tools.Call   `json:"function_call,omitempty"`
	Result *tools.Result `json:"function_result,omitempty"`
}

// Turn is an ordered list of parts from a single role.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// TextTurn builds a single-part text turn.
func TextTurn(role Role, text string) Turn {
	return Turn{Role: role, Parts: []Part{{Text: text}}}
}

// CallTurn builds the model turn that requests a round of tool calls.
// Any text the model emitted alongside the calls is kept first.
func CallTurn(text string, calls []tools.Call) Turn {
	parts := make([]Part, 0, len(calls)+1)
	if text != "" {
		parts = append(parts, Part{Text: text})
	}
	for i := range calls {
		c := calls[i]
		parts = append(parts, Part{Call: &c})
	}
	return Turn{Role: RoleModel, Parts: parts}
}

// ResultTurn builds the user turn carrying the results of a round.
func ResultTurn(results []tools.Result) Turn {
	parts := make([]Part, len(results))
	for i := range results {
		r := results[i]
		parts[i] = Part{Result: &r}
	}
	return Turn{Role: RoleUser, Parts: parts}
}

// Text concatenates the text parts of the turn.
func (t Turn) Text() string {
	var out string
	for _, p := range t.Parts {
		out += p.Text
	}
	return out
}

// Calls returns the function calls of the turn in order.
func (t Turn) Calls() []tools.Call {
	var out []tools.Call
	for _, p := range t.Parts {
		if p.Call != nil {
			out = append(out, *p.Call)
		}
	}
	return out
}

// Transcript is the ordered conversation history. It only grows during a
// session; the orchestrator is its sole writer.
type Transcript struct {
	turns []Turn
}

// NewTranscript creates a transcript seeded with the given turns.
func NewTranscript(initial ...Turn) *Transcript {
	t := &Transcript{}
	t.turns = append(t.turns, initial...)
	return t
}

// Append adds turns at the end, in order.
func (t *Transcript) Append(turns ...Turn) {
	t.turns = append(t.turns, turns...)
}

// Turns returns a copy of the history.
func (t *Transcript) Turns() []Turn {
	out := make([]Turn, len(t.turns))
	copy(out, t.turns)
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int {
	return len(t.turns)
}
