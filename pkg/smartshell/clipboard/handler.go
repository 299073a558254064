package clipboard

import (
	"context"
	"log/slog"

	"github.com/jholhewres/smartshell/pkg/smartshell/session"
)

// Translator translates text into a target language.
type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// Speaker reads text aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// TranslateAndSpeak returns the default handler: translate into the
// session's target language, show it, and speak it.
func TranslateAndSpeak(tr Translator, sp Speaker, flags *session.Flags, show func(original, translated string), logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, text string) {
		translated, err := tr.Translate(ctx, text, flags.TargetLanguage())
		if err != nil {
			logger.Warn("clipboard translation failed", "error", err)
			return
		}
		if show != nil {
			show(text, translated)
		}
		if err := sp.Speak(ctx, translated); err != nil {
			logger.Debug("clipboard speech failed", "error", err)
		}
	}
}
