package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// DefaultNVDAPipe is the control pipe exposed by the NVDA screen reader
// remote-control add-on.
const DefaultNVDAPipe = `\\.\pipe\NVDAControlPipe`

// NVDAPipe sends "speak" commands to NVDA over its named pipe.
type NVDAPipe struct {
	path string
}

// NewNVDAPipe creates a pipe backend.
func NewNVDAPipe(path string) *NVDAPipe {
	return &NVDAPipe{path: path}
}

func (p *NVDAPipe) Name() string { return "nvda" }

// Speak writes one command line: speak "<text>" 0 -1
func (p *NVDAPipe) Speak(_ context.Context, text string) error {
	f, err := os.OpenFile(p.path, os.O_WRONLY, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrBackendUnavailable, p.path)
		}
		return fmt.Errorf("open NVDA pipe: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(nvdaCommand(text)); err != nil {
		return fmt.Errorf("write NVDA pipe: %w", err)
	}
	return nil
}

func nvdaCommand(text string) string {
	text = strings.ReplaceAll(text, `\`, `\\`)
	text = strings.ReplaceAll(text, `"`, `\"`)
	text = strings.ReplaceAll(text, "\r", " ")
	text = strings.ReplaceAll(text, "\n", " ")
	return fmt.Sprintf("speak \"%s\" 0 -1\n", text)
}

// Command runs a TTS program with the text as its last argument.
type Command struct {
	name string
	args []string
}

// NewCommand creates a command backend.
func NewCommand(name string, args []string) *Command {
	return &Command{name: name, args: args}
}

func (c *Command) Name() string { return "command:" + c.name }

func (c *Command) Speak(ctx context.Context, text string) error {
	path, err := exec.LookPath(c.name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBackendUnavailable, c.name)
	}
	args := append(append([]string{}, c.args...), text)
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", c.name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// DetectCommand returns the first TTS program found on PATH, or nil.
func DetectCommand() *Command {
	candidates := []struct {
		name string
		args []string
	}{
		{"spd-say", []string{"--wait"}},
		{"espeak-ng", nil},
		{"espeak", nil},
		{"say", nil},
	}
	for _, c := range candidates {
		if _, err := exec.LookPath(c.name); err == nil {
			return NewCommand(c.name, c.args)
		}
	}
	return nil
}
