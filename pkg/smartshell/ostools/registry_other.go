//go:build !windows

package ostools

import (
	"fmt"
	"runtime"
)

func writeRegistryValue(hive, sub, name, kind, data string) error {
	return fmt.Errorf("unsupported on %s", runtime.GOOS)
}

func scanUninstallKeys() []installedApp { return nil }
