//go:build !windows

package ostools

import (
	"context"
	"os/exec"
	"syscall"
)

// shellCommand runs a command line through the POSIX shell in its own
// process group so a timeout kills background children too.
func shellCommand(ctx context.Context, line string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "sh", "-c", line)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	return cmd
}
