// Package clipboard watches the system clipboard and hands new text to a
// handler, typically translate-and-speak. The monitor runs on its own
// goroutine and only reads the session flags; it never touches the
// conversation.
package clipboard

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/jholhewres/smartshell/pkg/smartshell/session"
)

// Config configures the monitor.
type Config struct {
	// PollIntervalMillis is the clipboard polling period (default: 500).
	PollIntervalMillis int `yaml:"poll_interval_ms"`

	// MinChars ignores shorter clipboard texts (default: 2).
	MinChars int `yaml:"min_chars"`
}

// DefaultConfig returns the default polling settings.
func DefaultConfig() Config {
	return Config{PollIntervalMillis: 500, MinChars: 2}
}

// Reader reads the clipboard text.
type Reader interface {
	ReadAll() (string, error)
}

// SystemReader reads the OS clipboard.
type SystemReader struct{}

func (SystemReader) ReadAll() (string, error) {
	return clipboard.ReadAll()
}

// Available reports whether the OS clipboard can be read on this machine.
func Available() bool {
	return !clipboard.Unsupported
}

// Handler receives new clipboard text.
type Handler func(ctx context.Context, text string)

// Monitor polls the clipboard.
type Monitor struct {
	reader   Reader
	flags    *session.Flags
	handler  Handler
	interval time.Duration
	minChars int
	logger   *slog.Logger

	// last is only touched by the Run goroutine.
	last string
}

// NewMonitor creates a monitor. A nil reader uses the OS clipboard.
func NewMonitor(cfg Config, reader Reader, flags *session.Flags, handler Handler, logger *slog.Logger) *Monitor {
	if reader == nil {
		reader = SystemReader{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	interval := time.Duration(cfg.PollIntervalMillis) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Monitor{
		reader:   reader,
		flags:    flags,
		handler:  handler,
		interval: interval,
		minChars: cfg.MinChars,
		logger:   logger.With("component", "clipboard"),
	}
}

// Run polls until ctx is cancelled. Text already on the clipboard at start
// is not reported.
func (m *Monitor) Run(ctx context.Context) {
	m.last, _ = m.reader.ReadAll()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.logger.Debug("clipboard monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug("clipboard monitor stopped")
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	text, err := m.reader.ReadAll()
	if err != nil {
		m.logger.Debug("clipboard read failed", "error", err)
		return
	}
	if text == m.last {
		return
	}
	m.last = text

	// Changes are tracked while paused so resuming does not replay them.
	if !m.flags.Monitoring() {
		return
	}
	trimmed := strings.TrimSpace(text)
	if len([]rune(trimmed)) < m.minChars {
		return
	}
	m.handler(ctx, trimmed)
}
