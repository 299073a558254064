//go:build !windows

package elevation

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
)

func (r *SystemRelauncher) IsElevated() bool {
	return os.Geteuid() == 0
}

// execProcess replaces the current process image.
var execProcess = syscall.Exec

// Elevate authenticates with the helper first and then replaces the current
// process with "sudo -E <exe> <args>". A failed or cancelled authentication
// returns an error and the current process keeps running. On success it
// never returns.
func (r *SystemRelauncher) Elevate(ctx context.Context, extraArgs []string) error {
	exe, err := executable()
	if err != nil {
		return err
	}
	helper, err := elevationHelper()
	if err != nil {
		return err
	}

	if pre := preauthArgv(helper); pre != nil {
		cmd := exec.CommandContext(ctx, pre[0], pre[1:]...)
		cmd.Stdin, cmd.Stdout, cmd.Stderr = os.Stdin, os.Stdout, os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s authentication failed: %w", filepath.Base(helper), err)
		}
	}

	argv := []string{helper}
	if isSudo(helper) {
		argv = append(argv, "-E")
	}
	argv = append(argv, exe)
	argv = append(argv, r.Args...)
	argv = append(argv, extraArgs...)

	if err := execProcess(helper, argv, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", helper, err)
	}
	return nil
}

// preauthArgv returns the command that caches credentials for helper, or
// nil when the helper cannot authenticate ahead of time (pkexec).
func preauthArgv(helper string) []string {
	switch filepath.Base(helper) {
	case "sudo":
		return []string{helper, "-v"}
	case "doas":
		return []string{helper, "true"}
	}
	return nil
}

// Restart replaces the current process with a fresh copy of itself.
func (r *SystemRelauncher) Restart(_ context.Context, extraArgs []string) error {
	exe, err := executable()
	if err != nil {
		return err
	}
	argv := append([]string{exe}, r.Args...)
	argv = append(argv, extraArgs...)
	if err := execProcess(exe, argv, os.Environ()); err != nil {
		return fmt.Errorf("exec %s: %w", exe, err)
	}
	return nil
}

func elevationHelper() (string, error) {
	for _, name := range []string{"sudo", "doas", "pkexec"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no elevation helper found (sudo, doas, pkexec)")
}

func isSudo(path string) bool {
	return filepath.Base(path) == "sudo"
}
