package console

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/huh"
)

// ConsentFileName marks that the user accepted the first-run notice.
const ConsentFileName = "consent.flag"

const consentNotice = `SmartShell lets an AI model operate this computer on your behalf.
It can read, move and delete files, run commands and change system settings.
Requests are sent to the configured model provider. Destructive actions ask
for confirmation first, but you remain responsible for what you approve.`

// Confirm asks a yes/no question. Ctrl+C counts as "no".
func (c *Console) Confirm(ctx context.Context, prompt string) (bool, error) {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(prompt).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithAccessible(c.cfg.Accessible)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

// HasConsent reports whether consent was recorded in dir.
func HasConsent(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ConsentFileName))
	return err == nil
}

// RecordConsent writes the consent marker.
func RecordConsent(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	stamp := fmt.Sprintf("accepted %s\n", time.Now().UTC().Format(time.RFC3339))
	return os.WriteFile(filepath.Join(dir, ConsentFileName), []byte(stamp), 0o600)
}

// EnsureConsent shows the first-run notice once. It returns false when the
// user declines; nothing is recorded in that case.
func (c *Console) EnsureConsent(ctx context.Context, dir string) (bool, error) {
	if HasConsent(dir) {
		return true, nil
	}

	var accepted bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Before you start").
				Description(consentNotice),
			huh.NewConfirm().
				Title("Do you accept?").
				Affirmative("I accept").
				Negative("Quit").
				Value(&accepted),
		),
	).WithAccessible(c.cfg.Accessible)

	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	if !accepted {
		return false, nil
	}
	return true, RecordConsent(dir)
}
