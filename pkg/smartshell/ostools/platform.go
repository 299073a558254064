package ostools

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
)

// openDefault hands a path or URL to the desktop's default handler.
func openDefault(ctx context.Context, target string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", target)
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", target)
	default:
		cmd = exec.CommandContext(ctx, "xdg-open", target)
	}
	return cmd.Start()
}

// lockCommand returns the argv that locks the screen.
func lockCommand(goos string) ([]string, error) {
	switch goos {
	case "windows":
		return []string{"rundll32.exe", "user32.dll,LockWorkStation"}, nil
	case "darwin":
		return []string{"pmset", "displaysleepnow"}, nil
	case "linux", "freebsd":
		return []string{"loginctl", "lock-session"}, nil
	}
	return nil, fmt.Errorf("locking the screen is not supported on %s", goos)
}

// shutdownCommand returns the argv for a power action after delaySeconds.
// action is shutdown or restart.
func shutdownCommand(goos, action string, delaySeconds int) ([]string, error) {
	if action != "shutdown" && action != "restart" {
		return nil, fmt.Errorf("unknown action %q (use shutdown or restart)", action)
	}
	switch goos {
	case "windows":
		flag := "/s"
		if action == "restart" {
			flag = "/r"
		}
		return []string{"shutdown", flag, "/t", strconv.Itoa(delaySeconds)}, nil
	case "linux", "darwin", "freebsd":
		flag := "-h"
		if action == "restart" {
			flag = "-r"
		}
		// POSIX shutdown takes minutes.
		when := "now"
		if delaySeconds > 0 {
			when = "+" + strconv.Itoa((delaySeconds+59)/60)
		}
		return []string{"shutdown", flag, when}, nil
	}
	return nil, fmt.Errorf("%s is not supported on %s", action, goos)
}

func cancelShutdownCommand(goos string) ([]string, error) {
	switch goos {
	case "windows":
		return []string{"shutdown", "/a"}, nil
	case "linux":
		return []string{"shutdown", "-c"}, nil
	}
	return nil, fmt.Errorf("cancelling a shutdown is not supported on %s", goos)
}

// runArgv runs argv and returns its trimmed combined output.
func runArgv(ctx context.Context, argv []string) (string, error) {
	out, err := exec.CommandContext(ctx, argv[0], argv[1:]...).CombinedOutput()
	text := strings.TrimSpace(string(out))
	if err != nil {
		if text != "" {
			return "", fmt.Errorf("%s: %w: %s", argv[0], err, text)
		}
		return "", fmt.Errorf("%s: %w", argv[0], err)
	}
	return text, nil
}
