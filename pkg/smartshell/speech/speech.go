// Package speech reads text aloud through a screen reader or a local
// text-to-speech command. When no backend can be reached the speaker mutes
// the session instead of failing every call.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/jholhewres/smartshell/pkg/smartshell/session"
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

// ErrBackendUnavailable means the backend is not installed or not running.
var ErrBackendUnavailable = errors.New("speech backend not available")

// Backend speaks text.
type Backend interface {
	Speak(ctx context.Context, text string) error
	Name() string
}

// Config selects and configures the backend.
type Config struct {
	// Backend is "auto", "nvda", "command" or "none".
	Backend string `yaml:"backend"`

	// Command and Args run a TTS program; the text is appended as the last
	// argument. Only used by the "command" backend.
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`

	// PipePath overrides the NVDA control pipe.
	PipePath string `yaml:"pipe_path"`

	// MaxChars truncates long texts before speaking (default: 2000).
	MaxChars int `yaml:"max_chars"`
}

// DefaultConfig returns auto-detection with a 2000 char cap.
func DefaultConfig() Config {
	return Config{
		Backend:  "auto",
		PipePath: DefaultNVDAPipe,
		MaxChars: 2000,
	}
}

// Speaker speaks through a backend and honors the session mute flag.
type Speaker struct {
	backend  Backend
	flags    *session.Flags
	maxChars int
	logger   *slog.Logger
}

// NewSpeaker creates a speaker for the configured backend.
func NewSpeaker(cfg Config, flags *session.Flags, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return NewSpeakerWithBackend(selectBackend(cfg), flags, cfg.MaxChars, logger)
}

// NewSpeakerWithBackend creates a speaker with an explicit backend.
func NewSpeakerWithBackend(backend Backend, flags *session.Flags, maxChars int, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	if backend == nil {
		backend = Discard{}
	}
	return &Speaker{
		backend:  backend,
		flags:    flags,
		maxChars: maxChars,
		logger:   logger.With("component", "speech", "backend", backend.Name()),
	}
}

// Backend returns the backend name.
func (s *Speaker) Backend() string {
	return s.backend.Name()
}

// Speak reads text aloud unless the session is muted. If the backend turns
// out to be unavailable the session is muted and an error is returned once.
func (s *Speaker) Speak(ctx context.Context, text string) error {
	if s.flags.Muted() {
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if s.maxChars > 0 {
		text = tools.Truncate(text, s.maxChars)
	}

	err := s.backend.Speak(ctx, text)
	if errors.Is(err, ErrBackendUnavailable) {
		s.flags.SetMuted(true)
		s.logger.Warn("speech backend unavailable, muting session", "error", err)
		return fmt.Errorf("%w: sound has been muted", err)
	}
	if err != nil {
		s.logger.Warn("speak failed", "error", err)
		return err
	}
	return nil
}

// Announce implements the orchestrator's announcement channel.
func (s *Speaker) Announce(ctx context.Context, text string) error {
	return s.Speak(ctx, text)
}

func selectBackend(cfg Config) Backend {
	pipe := cfg.PipePath
	if pipe == "" {
		pipe = DefaultNVDAPipe
	}
	switch strings.ToLower(cfg.Backend) {
	case "none", "off":
		return Discard{}
	case "nvda":
		return NewNVDAPipe(pipe)
	case "command":
		return NewCommand(cfg.Command, cfg.Args)
	}

	if runtime.GOOS == "windows" {
		return NewNVDAPipe(pipe)
	}
	if c := DetectCommand(); c != nil {
		return c
	}
	return Discard{}
}

// Discard drops everything. Used when speech is disabled.
type Discard struct{}

func (Discard) Speak(context.Context, string) error { return nil }
func (Discard) Name() string                         { return "none" }
