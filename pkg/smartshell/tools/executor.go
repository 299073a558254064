// Package tools – executor.go dispatches tool calls from the model to the
// bound handlers. Every call yields exactly one Result; failures are encoded
// into the result text rather than returned as errors.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultToolTimeout bounds a single tool invocation.
const DefaultToolTimeout = 5 * time.Minute

// HardMaxResultChars caps a tool result before it enters the transcript.
const HardMaxResultChars = 200_000

// Handler runs a tool. It returns the text sent back to the model.
type Handler func(ctx context.Context, args Args) (string, error)

// Call is a tool invocation requested by the model.
type Call struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`

	// Signature is an opaque provider token that must be sent back with
	// the call on later requests.
	Signature []byte `json:"signature,omitempty"`
}

// Result is the outcome of a Call. Value is always set.
type Result struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name"`
	Value  string `json:"value"`
	Failed bool   `json:"failed,omitempty"`
}

// Binding pairs a spec with the handler that implements it.
type Binding struct {
	Spec    Spec
	Handler Handler

	// SelfTimed handlers enforce their own deadline; the executor timeout
	// does not apply to them.
	SelfTimed bool
}

type boundTool struct {
	spec      Spec
	handler   Handler
	selfTimed bool
}

// Executor resolves calls against the bound handlers and invokes them.
type Executor struct {
	mu      sync.RWMutex
	tools   map[string]*boundTool
	timeout time.Duration
	logger  *slog.Logger
}

// NewExecutor creates an executor with no bound tools.
func NewExecutor(logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		tools:   make(map[string]*boundTool),
		timeout: DefaultToolTimeout,
		logger:  logger.With("component", "tool_executor"),
	}
}

// SetTimeout changes the per-tool timeout. Zero or negative disables it.
func (e *Executor) SetTimeout(d time.Duration) {
	e.mu.Lock()
	e.timeout = d
	e.mu.Unlock()
}

// bind attaches a handler to a tool name. Rebinding replaces the handler.
func (e *Executor) bind(b Binding) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.tools[b.Spec.Name]; exists {
		e.logger.Warn("tool handler replaced", "name", b.Spec.Name)
	}
	e.tools[b.Spec.Name] = &boundTool{spec: b.Spec, handler: b.Handler, selfTimed: b.SelfTimed}
}

// Bound reports whether a handler exists for name.
func (e *Executor) Bound(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.tools[name]
	return ok
}

// Install registers every binding in reg and binds it in exec, then freezes
// the registry.
func Install(reg *Registry, exec *Executor, bindings ...Binding) error {
	for _, b := range bindings {
		if b.Handler == nil {
			return fmt.Errorf("tool %s has no handler", b.Spec.Name)
		}
		if err := reg.Register(b.Spec); err != nil {
			return err
		}
		exec.bind(b)
	}
	reg.Freeze()
	return nil
}

// Invoke runs a single call. It never panics and never returns an error;
// unknown tools and handler failures become the result text.
func (e *Executor) Invoke(ctx context.Context, call Call) (result Result) {
	name := call.Name
	result = Result{ID: call.ID, Name: name}

	e.mu.RLock()
	tool, ok := e.tools[name]
	timeout := e.timeout
	e.mu.RUnlock()
	if ok && tool.selfTimed {
		timeout = 0
	}

	if !ok {
		result.Value = formatToolError(name, fmt.Errorf("tool %q not found", name))
		result.Failed = true
		e.logger.Warn("unknown tool called", "name", name)
		return result
	}

	args, err := matchArgs(tool.spec, call.Args)
	if err != nil {
		result.Value = formatToolError(name, err)
		result.Failed = true
		e.logger.Warn("tool argument error", "name", name, "error", err)
		return result
	}
	if dropped := len(call.Args) - len(args); dropped > 0 {
		e.logger.Debug("undeclared tool arguments dropped", "name", name, "dropped", dropped)
	}

	execCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked", "name", name, "panic", r, "stack", string(debug.Stack()))
			result.Value = formatToolError(name, fmt.Errorf("panic: %v", r))
			result.Failed = true
		}
	}()

	e.logger.Debug("executing tool", "name", name, "args_keys", args.Keys())

	start := time.Now()
	output, err := tool.handler(execCtx, args)
	duration := time.Since(start)

	if err == nil && execCtx.Err() != nil && errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("timed out after %s", timeout)
	}
	if err != nil {
		result.Value = formatToolError(name, err)
		result.Failed = true
		e.logger.Warn("tool execution failed",
			"name", name,
			"error", err,
			"duration_ms", duration.Milliseconds(),
		)
		return result
	}

	if output == "" {
		output = "OK"
	}
	if len(output) > HardMaxResultChars {
		original := len(output)
		output = Truncate(output, HardMaxResultChars) + fmt.Sprintf("\n\n... [truncated: result was %d chars]", original)
		e.logger.Warn("tool result truncated", "name", name, "original_chars", original)
	}
	result.Value = output

	e.logger.Info("tool executed",
		"name", name,
		"duration_ms", duration.Milliseconds(),
		"output_len", len(output),
	)
	return result
}

// matchArgs keeps only the declared parameters and checks the required ones.
func matchArgs(spec Spec, raw map[string]any) (Args, error) {
	args := make(Args, len(spec.Params))
	for _, p := range spec.Params {
		v, ok := raw[p.Name]
		if !ok || v == nil {
			if p.Required {
				return nil, fmt.Errorf("missing required argument %q", p.Name)
			}
			continue
		}
		args[p.Name] = v
	}
	return args, nil
}

// formatToolError creates a structured JSON error result the model can parse.
func formatToolError(toolName string, err error) string {
	errMsg := err.Error()
	if len(errMsg) > 2000 {
		errMsg = Truncate(errMsg, 2000) + "... (truncated)"
	}
	b, _ := json.Marshal(map[string]string{
		"status": "error",
		"tool":   toolName,
		"error":  errMsg,
	})
	return string(b)
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
