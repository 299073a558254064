// Package copilot – orchestrator.go implements the tool-calling loop. Per
// user input: send the transcript → if the model asks for tools, run them in
// order and send the results back → repeat until the model answers in text.
//
// The exchange is staged and only committed to the transcript once a final
// answer arrives. A transport failure or a blocked response leaves the
// transcript exactly as it was before the input.
package copilot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/smartshell/pkg/smartshell/session"
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

const (
	// DefaultMaxRounds bounds the tool rounds of a single exchange.
	DefaultMaxRounds = 10

	// DefaultRoundTimeout bounds a single model request.
	DefaultRoundTimeout = 120 * time.Second

	// RelaunchNote closes an exchange interrupted by an elevated relaunch.
	RelaunchNote = "The program was relaunched with administrator rights. Continue from here."

	roundLimitNudge = "[System: You have used the maximum number of tool rounds for this request. " +
		"Do not call any more tools. Reply with your best answer using the results gathered so far.]"
)

// OutcomeKind classifies how an exchange ended.
type OutcomeKind string

const (
	OutcomeFinal      OutcomeKind = "final"
	OutcomeBlocked    OutcomeKind = "blocked"
	OutcomeRoundLimit OutcomeKind = "round_limit"
)

// Outcome is the result of handling one user input.
type Outcome struct {
	Kind        OutcomeKind
	Text        string
	BlockReason string
	Rounds      int
	ToolCalls   int
	Announced   bool
	Usage       Usage
}

// Announcer receives final answers that should also be spoken.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

// OrchestratorConfig holds the loop limits.
type OrchestratorConfig struct {
	// MaxRounds is the number of tool rounds allowed per input (default: 10).
	MaxRounds int `yaml:"max_rounds"`

	// RoundTimeoutSeconds bounds each model request (default: 120).
	RoundTimeoutSeconds int `yaml:"round_timeout_seconds"`

	// AnnounceMarkers override the structural markers that route a final
	// answer to the announcer. Empty means the built-in tool headers.
	AnnounceMarkers []string `yaml:"announce_markers"`
}

// DefaultOrchestratorConfig returns the default loop limits.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxRounds:           DefaultMaxRounds,
		RoundTimeoutSeconds: int(DefaultRoundTimeout / time.Second),
	}
}

// Orchestrator owns the live transcript and drives the exchanges.
type Orchestrator struct {
	// mu serializes Handle; the transcript has a single writer.
	mu sync.Mutex

	model        Model
	registry     *tools.Registry
	executor     *tools.Executor
	transcript   *session.Transcript
	systemPrompt string

	maxRounds    int
	roundTimeout time.Duration
	markers      []string
	announcer    Announcer

	onToolCall   func(call tools.Call)
	onToolResult func(result tools.Result)

	// staged mirrors the exchange in progress up to its last complete round.
	stageMu sync.Mutex
	staged  []session.Turn

	logger *slog.Logger
}

// NewOrchestrator wires the loop. A nil model puts the orchestrator in
// degraded mode where every input is rejected with ErrModelUnavailable.
func NewOrchestrator(model Model, registry *tools.Registry, executor *tools.Executor, transcript *session.Transcript, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if transcript == nil {
		transcript = session.NewTranscript()
	}
	o := &Orchestrator{
		model:        model,
		registry:     registry,
		executor:     executor,
		transcript:   transcript,
		maxRounds:    DefaultMaxRounds,
		roundTimeout: DefaultRoundTimeout,
		markers:      tools.AnnounceHeaders,
		logger:       logger.With("component", "orchestrator"),
	}
	if cfg.MaxRounds > 0 {
		o.maxRounds = cfg.MaxRounds
	}
	if cfg.RoundTimeoutSeconds > 0 {
		o.roundTimeout = time.Duration(cfg.RoundTimeoutSeconds) * time.Second
	}
	if len(cfg.AnnounceMarkers) > 0 {
		o.markers = cfg.AnnounceMarkers
	}
	for _, spec := range registry.Specs() {
		if !executor.Bound(spec.Name) {
			o.logger.Warn("tool offered to the model has no handler", "name", spec.Name)
		}
	}
	return o
}

// SetSystemPrompt sets the instruction sent with every request.
func (o *Orchestrator) SetSystemPrompt(prompt string) {
	o.systemPrompt = prompt
}

// SetAnnouncer sets the speech side channel for marked answers.
func (o *Orchestrator) SetAnnouncer(a Announcer) {
	o.announcer = a
}

// SetOnToolCall registers a callback fired before each tool runs.
func (o *Orchestrator) SetOnToolCall(fn func(call tools.Call)) {
	o.onToolCall = fn
}

// SetOnToolResult registers a callback fired after each tool runs.
func (o *Orchestrator) SetOnToolResult(fn func(result tools.Result)) {
	o.onToolResult = fn
}

// Active reports whether a model is attached.
func (o *Orchestrator) Active() bool {
	return o.model != nil
}

// ModelName returns the attached model name, or "" in degraded mode.
func (o *Orchestrator) ModelName() string {
	if o.model == nil {
		return ""
	}
	return o.model.Name()
}

// Transcript returns the live transcript. Callers must not append to it.
func (o *Orchestrator) Transcript() *session.Transcript {
	return o.transcript
}

// ResumableTranscript returns the committed transcript followed by the
// exchange in progress, if any: its user input, every finished tool round
// and a closing model turn saying the program was relaunched. Tools call it
// while Handle runs, so it does not take the Handle lock.
func (o *Orchestrator) ResumableTranscript() *session.Transcript {
	t := session.NewTranscript(o.transcript.Turns()...)
	o.stageMu.Lock()
	staged := append([]session.Turn(nil), o.staged...)
	o.stageMu.Unlock()
	if len(staged) > 0 {
		t.Append(staged...)
		t.Append(session.TextTurn(session.RoleModel, RelaunchNote))
	}
	return t
}

func (o *Orchestrator) stage(turns []session.Turn) {
	o.stageMu.Lock()
	o.staged = append(o.staged[:0], turns...)
	o.stageMu.Unlock()
}

// Handle runs one exchange for the user's input.
//
// It returns a *TransportError when the model could not be reached, and
// ErrModelUnavailable in degraded mode. In both cases, and when the response
// is blocked, the transcript is left untouched.
func (o *Orchestrator) Handle(ctx context.Context, input string) (*Outcome, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.model == nil {
		return nil, ErrModelUnavailable
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("empty input")
	}

	start := time.Now()
	pending := []session.Turn{session.TextTurn(session.RoleUser, input)}
	o.stage(pending)
	defer o.stage(nil)
	specs := o.registry.Specs()
	outcome := &Outcome{}

	for round := 1; ; round++ {
		// ── Round limit ──
		// The model is untrusted to stop calling tools; past the limit it
		// gets one last request without tools.
		if round > o.maxRounds {
			o.logger.Warn("round limit reached, requesting final answer",
				"rounds", outcome.Rounds,
				"max_rounds", o.maxRounds,
			)
			pending = append(pending, session.TextTurn(session.RoleUser, roundLimitNudge))
			resp, err := o.send(ctx, round, pending, nil)
			if err != nil {
				return nil, err
			}
			outcome.Usage.add(resp.Usage)
			if blocked, reason := isBlocked(resp); blocked {
				return o.blocked(outcome, reason), nil
			}
			return o.finish(ctx, outcome, OutcomeRoundLimit, pending, resp.Text, start), nil
		}

		resp, err := o.send(ctx, round, pending, specs)
		if err != nil {
			return nil, err
		}
		outcome.Usage.add(resp.Usage)

		if blocked, reason := isBlocked(resp); blocked {
			return o.blocked(outcome, reason), nil
		}

		// ── No tool calls → final answer ──
		if len(resp.Calls) == 0 {
			return o.finish(ctx, outcome, OutcomeFinal, pending, resp.Text, start), nil
		}

		// ── Tool round ──
		outcome.Rounds++
		outcome.ToolCalls += len(resp.Calls)
		pending = append(pending, session.CallTurn(resp.Text, resp.Calls))

		results := make([]tools.Result, len(resp.Calls))
		for i, call := range resp.Calls {
			if o.onToolCall != nil {
				o.onToolCall(call)
			}
			results[i] = o.executor.Invoke(ctx, call)
			if o.onToolResult != nil {
				o.onToolResult(results[i])
			}
		}
		pending = append(pending, session.ResultTurn(results))
		o.stage(pending)

		o.logger.Debug("tool round complete",
			"round", round,
			"calls", len(resp.Calls),
		)
	}
}

// send performs one model request under the round timeout.
func (o *Orchestrator) send(ctx context.Context, round int, pending []session.Turn, specs []tools.Spec) (*Response, error) {
	turns := append(o.transcript.Turns(), pending...)
	req := &Request{
		SystemPrompt: o.systemPrompt,
		Tools:        specs,
		Turns:        turns,
	}

	callCtx, cancel := context.WithTimeout(ctx, o.roundTimeout)
	defer cancel()

	start := time.Now()
	resp, err := o.model.Send(callCtx, req)
	if err == nil && resp == nil {
		err = errors.New("model returned no response")
	}
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("no reply within %s: %w", o.roundTimeout, err)
		}
		o.logger.Error("model request failed",
			"round", round,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, &TransportError{Round: round, Err: err}
	}

	o.logger.Info("model call complete",
		"round", round,
		"duration_ms", time.Since(start).Milliseconds(),
		"tool_calls", len(resp.Calls),
		"finish_reason", resp.FinishReason,
		"prompt_tokens", resp.Usage.PromptTokens,
	)
	return resp, nil
}

// finish commits the staged exchange and applies the announcement policy.
func (o *Orchestrator) finish(ctx context.Context, outcome *Outcome, kind OutcomeKind, pending []session.Turn, text string, start time.Time) *Outcome {
	text = strings.TrimSpace(text)
	pending = append(pending, session.TextTurn(session.RoleModel, text))
	o.transcript.Append(pending...)

	outcome.Kind = kind
	outcome.Text = text
	if o.shouldAnnounce(text) {
		if err := o.announcer.Announce(ctx, text); err != nil {
			o.logger.Warn("announcement failed", "error", err)
		}
		outcome.Announced = true
	}

	o.logger.Info("exchange complete",
		"kind", kind,
		"rounds", outcome.Rounds,
		"tool_calls", outcome.ToolCalls,
		"new_turns", len(pending),
		"response_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return outcome
}

func (o *Orchestrator) blocked(outcome *Outcome, reason string) *Outcome {
	outcome.Kind = OutcomeBlocked
	outcome.BlockReason = reason
	o.logger.Warn("model response blocked", "reason", reason, "rounds", outcome.Rounds)
	return outcome
}

func (o *Orchestrator) shouldAnnounce(text string) bool {
	if o.announcer == nil || text == "" {
		return false
	}
	return ContainsMarker(text, o.markers)
}

// ContainsMarker reports whether text contains any of the markers.
func ContainsMarker(text string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// isBlocked treats an explicit block and an empty answer alike.
func isBlocked(resp *Response) (bool, string) {
	if resp.Blocked {
		return true, resp.BlockReason
	}
	if len(resp.Calls) == 0 && strings.TrimSpace(resp.Text) == "" {
		return true, ""
	}
	return false, ""
}

// Message renders the outcome for the user. Blocked responses get a fixed
// notice, with the provider's reason when one was given.
func (oc *Outcome) Message() string {
	if oc.Kind != OutcomeBlocked {
		return oc.Text
	}
	if oc.BlockReason == "" {
		return "The AI response was blocked and no reason was given."
	}
	return "The AI response was blocked: " + oc.BlockReason
}
