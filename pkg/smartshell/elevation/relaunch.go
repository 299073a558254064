package elevation

import (
	"fmt"
	"os"
	"strings"
)

// SystemRelauncher relaunches the running executable through the OS
// elevation mechanism.
type SystemRelauncher struct {
	// Args are the arguments to pass along, without the program name.
	// Defaults to os.Args[1:] minus any previous state-file flag.
	Args []string
}

// NewSystemRelauncher creates a relauncher for the current process.
func NewSystemRelauncher() *SystemRelauncher {
	return &SystemRelauncher{Args: stripStateFlag(os.Args[1:])}
}

func executable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return exe, nil
}

// stripStateFlag drops "--state-file <path>" and "--state-file=<path>".
func stripStateFlag(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == StateFileFlag {
			i++
			continue
		}
		if strings.HasPrefix(a, StateFileFlag+"=") {
			continue
		}
		out = append(out, a)
	}
	return out
}
