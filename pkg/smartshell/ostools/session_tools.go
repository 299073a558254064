package ostools

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/jholhewres/smartshell/pkg/smartshell/copilot"
	"github.com/jholhewres/smartshell/pkg/smartshell/elevation"
	"github.com/jholhewres/smartshell/pkg/smartshell/session"
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

const categorySession = "session"

func (tb *Toolbox) sessionTools() []tools.Binding {
	return []tools.Binding{
		{
			Spec: tools.Spec{
				Name:        "speak",
				Description: "Read a short text aloud through the configured speech backend.",
				Category:    categorySession,
				Params: []tools.Param{
					{Name: "text", Type: tools.TypeString, Required: true, Description: "Text to speak"},
				},
			},
			Handler: tb.speak,
		},
		{
			Spec: tools.Spec{
				Name:        "pause",
				Description: "Pause clipboard monitoring. Copied text is no longer translated or spoken.",
				Category:    categorySession,
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				tb.opts.Flags.SetMonitoring(false)
				return "Clipboard monitoring paused.", nil
			},
		},
		{
			Spec: tools.Spec{
				Name:        "resume",
				Description: "Resume clipboard monitoring.",
				Category:    categorySession,
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				tb.opts.Flags.SetMonitoring(true)
				return "Clipboard monitoring resumed.", nil
			},
		},
		{
			Spec: tools.Spec{
				Name:        "mute",
				Description: "Stop speaking. Nothing is read aloud until unmute is called.",
				Category:    categorySession,
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				tb.opts.Flags.SetMuted(true)
				return "Speech muted.", nil
			},
		},
		{
			Spec: tools.Spec{
				Name:        "unmute",
				Description: "Turn speech back on.",
				Category:    categorySession,
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				tb.opts.Flags.SetMuted(false)
				return "Speech unmuted.", nil
			},
		},
		{
			Spec: tools.Spec{
				Name:        "status",
				Description: "Report the session state: monitoring, mute, languages, speech backend, translation statistics and privileges.",
				Category:    categorySession,
			},
			Handler: tb.status,
		},
		{
			Spec: tools.Spec{
				Name:        "change_language",
				Description: "Change the language used for replies, clipboard translation, or both. Accepts BCP 47 codes such as en, pt-BR, es.",
				Category:    categorySession,
				Params: []tools.Param{
					{Name: "language", Type: tools.TypeString, Required: true, Description: "Language code"},
					{Name: "scope", Type: tools.TypeString, Description: "display, target or both (default: both)"},
				},
			},
			Handler: tb.changeLanguage,
		},
		{
			Spec: tools.Spec{
				Name:        "translate_text",
				Description: "Translate a piece of text into a language. Defaults to the clipboard translation language.",
				Category:    categorySession,
				Params: []tools.Param{
					{Name: "text", Type: tools.TypeString, Required: true, Description: "Text to translate"},
					{Name: "language", Type: tools.TypeString, Description: "Target language code"},
				},
			},
			Handler: tb.translateText,
		},
		{
			Spec: tools.Spec{
				Name:        "help",
				Description: "List every available tool grouped by category.",
				Category:    categorySession,
			},
			Handler: tb.help,
		},
		{
			Spec: tools.Spec{
				Name:        "clear_cache",
				Description: "Delete every cached translation.",
				Category:    categorySession,
				Dangerous:   true,
			},
			Handler: tb.clearCache,
		},
		{
			Spec: tools.Spec{
				Name:        "exit",
				Description: "End the shell session after this reply.",
				Category:    categorySession,
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				if tb.opts.OnExit == nil {
					return "", errors.New("exit is not available in this session")
				}
				tb.opts.OnExit()
				return "Exiting after this reply. Goodbye.", nil
			},
		},
		{
			Spec: tools.Spec{
				Name:        "restart_program",
				Description: "Restart the shell process. The conversation is not kept.",
				Category:    categorySession,
				Dangerous:   true,
			},
			Handler: tb.restartProgram,
		},
		{
			Spec: tools.Spec{
				Name:        "elevate_to_admin",
				Description: "Relaunch the shell with administrator rights, keeping the conversation and settings.",
				Category:    categorySession,
			},
			Handler: tb.elevate,
		},
	}
}

func (tb *Toolbox) speak(ctx context.Context, args tools.Args) (string, error) {
	text, err := requireString(args, "text")
	if err != nil {
		return "", err
	}
	if tb.opts.Speaker == nil {
		return "", errors.New("speech is not configured")
	}
	if tb.opts.Flags.Muted() {
		return "Speech is muted; nothing was spoken.", nil
	}
	if err := tb.opts.Speaker.Speak(ctx, text); err != nil {
		return "", err
	}
	return "Spoken.", nil
}

func (tb *Toolbox) status(ctx context.Context, args tools.Args) (string, error) {
	v := tb.opts.Flags.Values()

	var b strings.Builder
	fmt.Fprintf(&b, "Clipboard monitoring: %s\n", onOff(v.MonitoringEnabled))
	fmt.Fprintf(&b, "Speech: %s\n", onOff(!v.Muted))
	if tb.opts.Speaker != nil {
		fmt.Fprintf(&b, "Speech backend: %s\n", tb.opts.Speaker.Backend())
	}
	fmt.Fprintf(&b, "Display language: %s\n", v.DisplayLanguage)
	fmt.Fprintf(&b, "Translation language: %s\n", v.TargetLanguage)
	if tb.opts.ModelName != nil {
		fmt.Fprintf(&b, "Model: %s\n", tb.opts.ModelName())
	}
	if tb.opts.Translator != nil {
		st := tb.opts.Translator.Stats(ctx)
		fmt.Fprintf(&b, "Translations: %d from the service, %d from cache, %d cached entries\n",
			st.APICalls, st.CacheHits, st.CacheEntries)
	}
	if tb.opts.Bridge != nil {
		fmt.Fprintf(&b, "Administrator: %s\n", yesNo(tb.opts.Bridge.IsElevated()))
	}
	fmt.Fprintf(&b, "Working directory: %s\n", tb.Cwd())
	fmt.Fprintf(&b, "Platform: %s/%s", runtime.GOOS, runtime.GOARCH)
	return b.String(), nil
}

func (tb *Toolbox) changeLanguage(ctx context.Context, args tools.Args) (string, error) {
	code, err := requireString(args, "language")
	if err != nil {
		return "", err
	}
	code, err = session.NormalizeLanguage(code)
	if err != nil {
		return "", err
	}

	scope := strings.ToLower(args.String("scope", "both"))
	var display, target bool
	switch scope {
	case "display":
		display = true
	case "target", "translation":
		target = true
	case "both", "":
		display, target = true, true
	default:
		return "", fmt.Errorf("unknown scope %q (use display, target or both)", scope)
	}

	flags := tb.opts.Flags
	if display {
		if err := flags.SetDisplayLanguage(code); err != nil {
			return "", err
		}
	}
	if target {
		if err := flags.SetTargetLanguage(code); err != nil {
			return "", err
		}
	}

	if tb.opts.OnLanguageChange != nil {
		if err := tb.opts.OnLanguageChange(flags.DisplayLanguage(), flags.TargetLanguage()); err != nil {
			tb.logger.Warn("failed to persist language", "error", err)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Language set to %s (%s).", code, scope)
	if display {
		b.WriteString("\n")
		b.WriteString(copilot.LanguageNotice(code))
	}
	return b.String(), nil
}

func (tb *Toolbox) translateText(ctx context.Context, args tools.Args) (string, error) {
	text, err := requireString(args, "text")
	if err != nil {
		return "", err
	}
	if tb.opts.Translator == nil {
		return "", errors.New("translation is not configured")
	}
	target := args.String("language", tb.opts.Flags.TargetLanguage())
	if target, err = session.NormalizeLanguage(target); err != nil {
		return "", err
	}
	// Explicit requests always go to the service.
	return tb.opts.Translator.TranslateFresh(ctx, text, target)
}

func (tb *Toolbox) help(ctx context.Context, args tools.Args) (string, error) {
	groups := make(map[string][]tools.Spec)
	for _, s := range tb.catalog {
		groups[s.Category] = append(groups[s.Category], s)
	}
	cats := make([]string, 0, len(groups))
	for c := range groups {
		cats = append(cats, c)
	}
	sort.Strings(cats)

	var b strings.Builder
	for _, c := range cats {
		fmt.Fprintf(&b, "[%s]\n", c)
		for _, s := range groups[c] {
			mark := ""
			if s.Dangerous {
				mark = " (asks for confirmation)"
			}
			fmt.Fprintf(&b, "  %s%s: %s\n", s.Name, mark, s.Description)
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (tb *Toolbox) clearCache(ctx context.Context, args tools.Args) (string, error) {
	if tb.opts.Translator == nil {
		return "", errors.New("translation is not configured")
	}
	if !tb.confirm(ctx, "Delete all cached translations?") {
		return cancelledByUser, nil
	}
	n, err := tb.opts.Translator.ClearCache(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Removed %d cached translations.", n), nil
}

func (tb *Toolbox) restartProgram(ctx context.Context, args tools.Args) (string, error) {
	if tb.opts.Bridge == nil {
		return "", errors.New("restart is not available in this session")
	}
	if !tb.confirm(ctx, "Restart the shell? The conversation will be lost.") {
		return cancelledByUser, nil
	}
	if err := tb.opts.Bridge.Restart(ctx); err != nil {
		return "", fmt.Errorf("restart failed: %w", err)
	}
	return "Restarting.", nil
}

func (tb *Toolbox) elevate(ctx context.Context, args tools.Args) (string, error) {
	if tb.opts.Bridge == nil || tb.opts.Snapshot == nil {
		return "", errors.New("elevation is not available in this session")
	}
	err := tb.opts.Bridge.Elevate(ctx, tb.opts.Snapshot())
	switch {
	case errors.Is(err, elevation.ErrAlreadyElevated):
		return "Already running with administrator rights.", nil
	case err != nil:
		return "", fmt.Errorf("elevation failed, continuing without administrator rights: %w", err)
	}
	return "Relaunching with administrator rights.", nil
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
