// Package console renders the shell's terminal output and asks the user
// questions. Output stays readable as plain text so screen readers can
// follow it; color and markdown are layered on top when enabled.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Config controls console rendering.
type Config struct {
	// Markdown renders model answers with glamour.
	Markdown bool `yaml:"markdown"`

	// Accessible uses plain line prompts instead of interactive widgets.
	Accessible bool `yaml:"accessible"`

	// WordWrap is the markdown wrap width (0 disables wrapping).
	WordWrap int `yaml:"word_wrap"`
}

// DefaultConfig returns the default console settings.
func DefaultConfig() Config {
	return Config{
		Markdown: true,
		WordWrap: 100,
	}
}

var (
	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true)
	dirStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#2196F3"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#9E9E9E"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFC107"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935")).Bold(true)
	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4db6ac"))
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Bold(true)
)

// Console writes styled output. Safe for concurrent use; the clipboard
// monitor prints from its own goroutine.
type Console struct {
	cfg Config

	mu       sync.Mutex
	out      io.Writer
	renderer *glamour.TermRenderer
}

// New creates a console writing to out.
func New(out io.Writer, cfg Config) *Console {
	c := &Console{cfg: cfg, out: out}
	if cfg.Markdown {
		opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
		if cfg.WordWrap > 0 {
			opts = append(opts, glamour.WithWordWrap(cfg.WordWrap))
		}
		// A renderer that fails to build just means plain answers.
		c.renderer, _ = glamour.NewTermRenderer(opts...)
	}
	return c
}

// SetOutput redirects output, e.g. to the line editor's writer.
func (c *Console) SetOutput(w io.Writer) {
	c.mu.Lock()
	c.out = w
	c.mu.Unlock()
}

// Accessible reports whether plain prompts are in use.
func (c *Console) Accessible() bool { return c.cfg.Accessible }

func (c *Console) println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

// Banner prints the startup header.
func (c *Console) Banner(version, model string, active bool) {
	var b strings.Builder
	b.WriteString(titleStyle.Render("SmartShell " + version))
	b.WriteString("\n")
	if active {
		b.WriteString(infoStyle.Render("Model: " + model))
	} else {
		b.WriteString(warnStyle.Render("AI is not active. Configure a key with: smartshell config set-key"))
	}
	b.WriteString("\n")
	b.WriteString(infoStyle.Render(`Type a request in plain language. "exit" or Ctrl+D quits.`))
	c.println(b.String())
}

// Prompt returns the input prompt for the given working directory.
func (c *Console) Prompt(cwd string) string {
	return dirStyle.Render(cwd) + " " + promptStyle.Render(">") + " "
}

// Answer prints a model reply, rendered as markdown when enabled.
func (c *Console) Answer(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if c.renderer != nil {
		if out, err := c.renderer.Render(text); err == nil {
			c.println(strings.TrimRight(out, "\n"))
			return
		}
	}
	c.println(text)
}

// Info prints a secondary message.
func (c *Console) Info(format string, args ...any) {
	c.println(infoStyle.Render(fmt.Sprintf(format, args...)))
}

// Warn prints a warning.
func (c *Console) Warn(format string, args ...any) {
	c.println(warnStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error.
func (c *Console) Error(format string, args ...any) {
	c.println(errorStyle.Render("Error: " + fmt.Sprintf(format, args...)))
}

// ToolCall prints a one-line trace of a tool invocation.
func (c *Console) ToolCall(name string) {
	c.println(toolStyle.Render("  > " + name))
}

// Clipboard prints a translated clipboard entry.
func (c *Console) Clipboard(original, translated string) {
	c.println(infoStyle.Render("[clipboard] ") + translated)
	if !strings.EqualFold(strings.TrimSpace(original), strings.TrimSpace(translated)) {
		c.println(infoStyle.Render("  original: " + oneLine(original, 120)))
	}
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
