package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jholhewres/smartshell/pkg/smartshell/clipboard"
	"github.com/jholhewres/smartshell/pkg/smartshell/console"
	"github.com/jholhewres/smartshell/pkg/smartshell/copilot"
	"github.com/jholhewres/smartshell/pkg/smartshell/elevation"
	"github.com/jholhewres/smartshell/pkg/smartshell/ostools"
	"github.com/jholhewres/smartshell/pkg/smartshell/session"
	"github.com/jholhewres/smartshell/pkg/smartshell/speech"
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
	"github.com/jholhewres/smartshell/pkg/smartshell/translate"
)

// shell is one interactive session and everything wired into it.
type shell struct {
	cfg        *copilot.Config
	configPath string
	logger     *slog.Logger
	con        *console.Console

	sessionID  string
	flags      *session.Flags
	bridge     *elevation.Bridge
	speaker    *speech.Speaker
	translator *translate.Translator
	toolbox    *ostools.Toolbox
	orch       *copilot.Orchestrator

	exitRequested atomic.Bool
}

func runShell(cmd *cobra.Command, version string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Load config ──
	cfg, configPath, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// ── Configure logger ──
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger, logFile, err := setupLogger(cfg.Logging, verbose)
	if err != nil {
		return err
	}
	defer logFile.Close()

	con := console.New(os.Stdout, cfg.Console)

	// ── First-run consent ──
	ok, err := con.EnsureConsent(ctx, cfg.Session.StateDir)
	if err != nil {
		return fmt.Errorf("consent prompt: %w", err)
	}
	if !ok {
		con.Info("Consent declined. Nothing was changed.")
		return nil
	}

	copilot.ResolveAPIKey(cfg, logger)

	statePath, _ := cmd.Flags().GetString(elevation.StateFileFlag[2:])
	sh, err := newShell(ctx, cfg, configPath, statePath, con, logger)
	if err != nil {
		return err
	}
	defer sh.close()

	return sh.run(ctx, version)
}

// newShell builds the session. A snapshot left by an elevation relaunch is
// consumed before the orchestrator exists so the transcript is seeded from it.
func newShell(ctx context.Context, cfg *copilot.Config, configPath, statePath string, con *console.Console, logger *slog.Logger) (*shell, error) {
	sh := &shell{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		con:        con,
		sessionID:  uuid.NewString(),
		flags:      session.NewFlags(),
	}
	if err := cfg.ApplyFlags(sh.flags); err != nil {
		return nil, err
	}

	// ── Restore elevated session ──
	if statePath == "" {
		statePath = cfg.StatePath(elevation.SnapshotFileName)
	}
	sh.bridge = elevation.NewBridge(statePath, elevation.NewSystemRelauncher(), os.Exit, logger)

	var restored []session.Turn
	snap, err := sh.bridge.Resume()
	switch {
	case err != nil:
		logger.Warn("session snapshot rejected", "error", err)
		con.Warn("The previous session could not be restored; starting fresh.")
	case snap != nil:
		restored = snap.Transcript
		sh.flags.Apply(snap.FlagValues)
		if snap.SessionID != "" {
			sh.sessionID = snap.SessionID
		}
		con.Info("Session restored with administrator rights (%d turns).", len(restored))
	}
	transcript := copilot.SeedTranscript(restored, sh.flags.DisplayLanguage())

	// ── Speech and translation ──
	sh.speaker = speech.NewSpeaker(cfg.Speech, sh.flags, logger)

	var cache *translate.Cache
	if cfg.Translate.CachePath != "" {
		cache, err = translate.OpenCache(cfg.Translate.CachePath)
		if err != nil {
			logger.Warn("translation cache unavailable", "path", cfg.Translate.CachePath, "error", err)
			cache = nil
		}
	}
	sh.translator = translate.New(cfg.Translate, cache, logger)

	// ── Tools ──
	var confirm ostools.Confirmer = con
	if cfg.Tools.AutoApprove {
		confirm = ostools.AutoApprove
	}
	sh.toolbox = ostools.New(ostools.Options{
		Flags:            sh.flags,
		Speaker:          sh.speaker,
		Translator:       sh.translator,
		Bridge:           sh.bridge,
		Confirm:          confirm,
		Snapshot:         sh.snapshot,
		ModelName:        func() string { return sh.orch.ModelName() },
		OnExit:           func() { sh.exitRequested.Store(true) },
		OnLanguageChange: sh.persistLanguage,
		CommandTimeout:   time.Duration(cfg.Tools.CommandTimeoutSeconds) * time.Second,
		Logger:           logger,
	})

	registry := tools.NewRegistry()
	executor := tools.NewExecutor(logger)
	if cfg.Tools.TimeoutSeconds > 0 {
		executor.SetTimeout(time.Duration(cfg.Tools.TimeoutSeconds) * time.Second)
	}
	if err := tools.Install(registry, executor, sh.toolbox.Bindings()...); err != nil {
		return nil, fmt.Errorf("installing tools: %w", err)
	}

	// ── Model ──
	// A missing key or unreachable provider leaves the shell in degraded
	// mode: tools are registered but every request gets "AI is not active".
	model, err := copilot.NewModel(ctx, cfg, logger)
	if err != nil {
		logger.Warn("model unavailable, running without AI", "error", err)
		model = nil
	}

	sh.orch = copilot.NewOrchestrator(model, registry, executor, transcript, cfg.Orchestrator, logger)
	sh.orch.SetSystemPrompt(copilot.BuildSystemPrompt(cfg.Instructions))
	sh.orch.SetAnnouncer(sh.speaker)
	sh.orch.SetOnToolCall(func(call tools.Call) { con.ToolCall(call.Name) })

	logger.Info("session started",
		"session_id", sh.sessionID,
		"model", sh.orch.ModelName(),
		"tools", registry.Len(),
		"restored_turns", len(restored),
		"elevated", sh.bridge.IsElevated(),
	)
	return sh, nil
}

func (sh *shell) close() {
	if err := sh.translator.Close(); err != nil {
		sh.logger.Warn("closing translator", "error", err)
	}
}

// snapshot captures the transcript, including the request being handled,
// and the current flags.
func (sh *shell) snapshot() session.Snapshot {
	return session.NewSnapshot(sh.sessionID, sh.orch.ResumableTranscript(), sh.flags)
}

// persistLanguage writes new language settings back to the config file.
func (sh *shell) persistLanguage(display, target string) error {
	sh.cfg.Session.DisplayLanguage = display
	sh.cfg.Session.TargetLanguage = target
	if sh.configPath == "" {
		return nil
	}
	return copilot.SaveConfigToFile(sh.cfg, sh.configPath)
}

// run is the read-eval-print loop.
func (sh *shell) run(ctx context.Context, version string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            sh.con.Prompt(sh.toolbox.Cwd()),
		HistoryFile:       sh.cfg.StatePath("history"),
		HistoryLimit:      1000,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("starting line editor: %w", err)
	}
	defer rl.Close()
	sh.con.SetOutput(rl.Stdout())

	sh.con.Banner(version, sh.orch.ModelName(), sh.orch.Active())

	// ── Clipboard monitor ──
	if clipboard.Available() {
		handler := clipboard.TranslateAndSpeak(sh.translator, sh.speaker, sh.flags, sh.con.Clipboard, sh.logger)
		mon := clipboard.NewMonitor(sh.cfg.Clipboard, clipboard.SystemReader{}, sh.flags, handler, sh.logger)
		monCtx, stopMon := context.WithCancel(ctx)
		defer stopMon()
		go mon.Run(monCtx)
	} else {
		sh.logger.Info("clipboard not available, monitor disabled")
	}

	for {
		rl.SetPrompt(sh.con.Prompt(sh.toolbox.Cwd()))
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if strings.TrimSpace(line) == "" {
				break
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			sh.logger.Info("session ended", "session_id", sh.sessionID)
			return nil
		}

		sh.handle(ctx, line)
		if sh.exitRequested.Load() {
			break
		}
	}
	sh.logger.Info("session ended", "session_id", sh.sessionID)
	return nil
}

// handle runs one exchange. Ctrl+C cancels the exchange, not the shell.
func (sh *shell) handle(ctx context.Context, line string) {
	exCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	outcome, err := sh.orch.Handle(exCtx, line)

	var transportErr *copilot.TransportError
	switch {
	case errors.Is(err, copilot.ErrModelUnavailable):
		sh.con.Warn("AI is not active. Configure a key with: smartshell config set-key")
	case err != nil && exCtx.Err() != nil && ctx.Err() == nil:
		sh.con.Warn("Cancelled.")
	case errors.As(err, &transportErr):
		sh.con.Error("could not reach the model: %v", transportErr.Err)
	case err != nil:
		sh.con.Error("%v", err)
	case outcome.Kind == copilot.OutcomeBlocked:
		sh.con.Warn("%s", outcome.Message())
	default:
		sh.con.Answer(outcome.Text)
		if outcome.Kind == copilot.OutcomeRoundLimit {
			sh.con.Info("(stopped after the maximum number of tool rounds)")
		}
	}
}
