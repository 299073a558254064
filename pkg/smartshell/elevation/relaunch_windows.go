//go:build windows

package elevation

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/windows"
)

func (r *SystemRelauncher) IsElevated() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}

// Elevate asks the shell to start the executable with the "runas" verb,
// which shows the UAC prompt. It returns once the new process is launched.
func (r *SystemRelauncher) Elevate(_ context.Context, extraArgs []string) error {
	return r.shellExecute("runas", extraArgs)
}

// Restart starts a second copy with the same rights.
func (r *SystemRelauncher) Restart(_ context.Context, extraArgs []string) error {
	return r.shellExecute("open", extraArgs)
}

func (r *SystemRelauncher) shellExecute(verb string, extraArgs []string) error {
	exe, err := executable()
	if err != nil {
		return err
	}
	cwd, _ := os.Getwd()

	all := append(append([]string{}, r.Args...), extraArgs...)
	quoted := make([]string, len(all))
	for i, a := range all {
		quoted[i] = windows.EscapeArg(a)
	}

	verbPtr, _ := windows.UTF16PtrFromString(verb)
	exePtr, _ := windows.UTF16PtrFromString(exe)
	argPtr, _ := windows.UTF16PtrFromString(strings.Join(quoted, " "))
	cwdPtr, _ := windows.UTF16PtrFromString(cwd)

	if err := windows.ShellExecute(0, verbPtr, exePtr, argPtr, cwdPtr, windows.SW_NORMAL); err != nil {
		// ERROR_CANCELLED when the user declines the UAC prompt.
		return fmt.Errorf("ShellExecute %s: %w", verb, err)
	}
	return nil
}
