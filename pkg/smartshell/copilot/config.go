// Package copilot – config.go defines the shell configuration and its
// defaults. Collaborator packages own their sections.
package copilot

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jholhewres/smartshell/pkg/smartshell/clipboard"
	"github.com/jholhewres/smartshell/pkg/smartshell/console"
	"github.com/jholhewres/smartshell/pkg/smartshell/session"
	"github.com/jholhewres/smartshell/pkg/smartshell/speech"
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
	"github.com/jholhewres/smartshell/pkg/smartshell/translate"
)

// Config is the top-level configuration.
type Config struct {
	// Model is the model id sent to the provider.
	Model string `yaml:"model"`

	// API configures the provider connection.
	API APIConfig `yaml:"api"`

	// Instructions are appended to the built-in system prompt.
	Instructions string `yaml:"instructions"`

	// Orchestrator bounds the tool-calling loop.
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Session holds the initial session flags.
	Session SessionConfig `yaml:"session"`

	// Tools configures tool execution.
	Tools ToolsConfig `yaml:"tools"`

	Speech    speech.Config    `yaml:"speech"`
	Translate translate.Config `yaml:"translate"`
	Clipboard clipboard.Config `yaml:"clipboard"`
	Console   console.Config   `yaml:"console"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig configures the model provider.
type APIConfig struct {
	// Provider is "gemini" or "openai" (any OpenAI-compatible endpoint).
	Provider string `yaml:"provider"`

	// BaseURL is only used by the openai provider.
	BaseURL string `yaml:"base_url"`

	// APIKey is normally left empty and resolved from the keyring or env.
	APIKey string `yaml:"api_key"`

	// Temperature is passed through when > 0.
	Temperature float64 `yaml:"temperature"`
}

// SessionConfig holds session defaults.
type SessionConfig struct {
	// DisplayLanguage is the language the model replies in.
	DisplayLanguage string `yaml:"display_language"`

	// TargetLanguage is the clipboard translation target.
	TargetLanguage string `yaml:"target_language"`

	// Monitoring starts the clipboard monitor enabled.
	Monitoring bool `yaml:"monitoring"`

	// Muted starts with speech off.
	Muted bool `yaml:"muted"`

	// StateDir holds the snapshot, history, caches and logs.
	StateDir string `yaml:"state_dir"`
}

// ToolsConfig configures tool execution.
type ToolsConfig struct {
	// TimeoutSeconds bounds each tool call (default: 300).
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// CommandTimeoutSeconds bounds run_command (default: 120).
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds"`

	// AutoApprove skips confirmation of dangerous tools. Meant for scripting.
	AutoApprove bool `yaml:"auto_approve"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`

	// File is the log file. The console is reserved for the shell.
	File string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	stateDir := DefaultStateDir()
	return &Config{
		Model: DefaultGeminiModel,
		API: APIConfig{
			Provider: "gemini",
		},
		Orchestrator: DefaultOrchestratorConfig(),
		Session: SessionConfig{
			DisplayLanguage: session.DefaultLanguage,
			TargetLanguage:  session.DefaultLanguage,
			Monitoring:      true,
			StateDir:        stateDir,
		},
		Tools: ToolsConfig{
			TimeoutSeconds:        int(tools.DefaultToolTimeout.Seconds()),
			CommandTimeoutSeconds: 120,
		},
		Speech:    speech.DefaultConfig(),
		Translate: defaultTranslateConfig(stateDir),
		Clipboard: clipboard.DefaultConfig(),
		Console:   console.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   filepath.Join(stateDir, "smartshell.log"),
		},
	}
}

func defaultTranslateConfig(stateDir string) translate.Config {
	cfg := translate.DefaultConfig()
	cfg.CachePath = filepath.Join(stateDir, "translations.db")
	return cfg
}

// DefaultStateDir returns ~/.smartshell, or ./.smartshell when the home
// directory is unknown.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smartshell"
	}
	return filepath.Join(home, ".smartshell")
}

// StatePath joins name onto the state dir.
func (c *Config) StatePath(name string) string {
	return filepath.Join(c.Session.StateDir, name)
}

// ApplyFlags seeds session flags from the config.
func (c *Config) ApplyFlags(flags *session.Flags) error {
	flags.SetMonitoring(c.Session.Monitoring)
	flags.SetMuted(c.Session.Muted)
	if err := flags.SetDisplayLanguage(c.Session.DisplayLanguage); err != nil {
		return fmt.Errorf("session.display_language: %w", err)
	}
	if err := flags.SetTargetLanguage(c.Session.TargetLanguage); err != nil {
		return fmt.Errorf("session.target_language: %w", err)
	}
	return nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch strings.ToLower(c.API.Provider) {
	case "gemini", "openai":
	default:
		return fmt.Errorf("api.provider must be \"gemini\" or \"openai\", got %q", c.API.Provider)
	}
	if c.Orchestrator.MaxRounds < 0 {
		return fmt.Errorf("orchestrator.max_rounds must not be negative")
	}
	if _, err := session.NormalizeLanguage(c.Session.DisplayLanguage); err != nil {
		return fmt.Errorf("session.display_language: %w", err)
	}
	if _, err := session.NormalizeLanguage(c.Session.TargetLanguage); err != nil {
		return fmt.Errorf("session.target_language: %w", err)
	}
	return nil
}

// NewModel builds the configured backend. Callers treat an error as
// "AI not active" and keep the shell running.
func NewModel(ctx context.Context, cfg *Config, logger *slog.Logger) (Model, error) {
	if cfg.API.APIKey == "" {
		return nil, fmt.Errorf("no API key configured (run: smartshell config set-key)")
	}
	switch strings.ToLower(cfg.API.Provider) {
	case "gemini", "":
		m, err := NewGeminiModel(ctx, cfg.API.APIKey, cfg.Model, cfg.API.Temperature, logger)
		if err != nil {
			return nil, err
		}
		return m, nil
	case "openai":
		return NewOpenAIModel(cfg.API.BaseURL, cfg.API.APIKey, cfg.Model, cfg.API.Temperature, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.API.Provider)
	}
}
