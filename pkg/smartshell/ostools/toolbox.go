// Package ostools implements the operating-system tools the model can call:
// session controls, file operations, process and system information, and a
// handful of Windows administration commands. Dangerous tools ask the user
// for confirmation before acting.
package ostools

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jholhewres/smartshell/pkg/smartshell/elevation"
	"github.com/jholhewres/smartshell/pkg/smartshell/session"
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
	"github.com/jholhewres/smartshell/pkg/smartshell/translate"
)

// Confirmer asks the user to approve an action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AutoApprove approves everything.
var AutoApprove = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// Speaker reads text aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	Backend() string
}

// Translator is the subset of the translator used by session tools.
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
	TranslateFresh(ctx context.Context, text, target string) (string, error)
	Stats(ctx context.Context) translate.Stats
	ClearCache(ctx context.Context) (int, error)
}

// Options wires the toolbox to the rest of the shell. Nil callbacks turn
// the corresponding tools into polite no-ops.
type Options struct {
	Flags      *session.Flags
	Speaker    Speaker
	Translator Translator
	Bridge     *elevation.Bridge
	Confirm    Confirmer

	// Snapshot captures the live session for elevation.
	Snapshot func() session.Snapshot

	// ModelName reports the active model for the status tool.
	ModelName func() string

	// OnExit is called by the exit tool.
	OnExit func()

	// OnLanguageChange persists new language settings.
	OnLanguageChange func(display, target string) error

	// CommandTimeout bounds run_command (default: 120s).
	CommandTimeout time.Duration

	// WorkDir is the initial working directory (default: process cwd).
	WorkDir string

	Logger *slog.Logger
}

// Toolbox holds the state shared by the tools, chiefly the shell's
// working directory.
type Toolbox struct {
	opts       Options
	httpClient *http.Client
	logger     *slog.Logger

	mu  sync.RWMutex
	cwd string

	catalog []tools.Spec

	appsOnce sync.Once
	apps     []installedApp
}

// New creates a toolbox.
func New(opts Options) *Toolbox {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Flags == nil {
		opts.Flags = session.NewFlags()
	}
	if opts.Confirm == nil {
		opts.Confirm = ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 120 * time.Second
	}
	cwd := opts.WorkDir
	if cwd == "" {
		cwd, _ = os.Getwd()
	}
	return &Toolbox{
		opts:       opts,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
		logger:     opts.Logger.With("component", "ostools"),
		cwd:        cwd,
	}
}

// Cwd returns the shell's working directory.
func (tb *Toolbox) Cwd() string {
	tb.mu.RLock()
	defer tb.mu.RUnlock()
	return tb.cwd
}

func (tb *Toolbox) setCwd(dir string) {
	tb.mu.Lock()
	tb.cwd = dir
	tb.mu.Unlock()
}

// Bindings returns every tool in catalog order.
func (tb *Toolbox) Bindings() []tools.Binding {
	var all []tools.Binding
	all = append(all, tb.sessionTools()...)
	all = append(all, tb.fileTools()...)
	all = append(all, tb.systemTools()...)
	all = append(all, tb.windowsTools()...)
	all = append(all, tb.appTools()...)

	tb.catalog = make([]tools.Spec, len(all))
	for i, b := range all {
		tb.catalog[i] = b.Spec
	}
	return all
}

// resolvePath expands ~ and resolves relative paths against the shell's
// working directory.
func (tb *Toolbox) resolvePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "~" || strings.HasPrefix(p, "~/") || strings.HasPrefix(p, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, p[1:])
		}
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(tb.Cwd(), p)
	}
	return filepath.Clean(p)
}

// confirm asks the user; a declined or failed prompt means "no".
func (tb *Toolbox) confirm(ctx context.Context, format string, args ...any) bool {
	prompt := fmt.Sprintf(format, args...)
	ok, err := tb.opts.Confirm.Confirm(ctx, prompt)
	if err != nil {
		tb.logger.Warn("confirmation failed", "prompt", prompt, "error", err)
		return false
	}
	tb.logger.Info("confirmation", "prompt", prompt, "approved", ok)
	return ok
}

const cancelledByUser = "Cancelled by user."

func requireString(args tools.Args, name string) (string, error) {
	v := strings.TrimSpace(args.String(name, ""))
	if v == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return v, nil
}
