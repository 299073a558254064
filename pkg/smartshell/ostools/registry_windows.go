//go:build windows

package ostools

import (
	"fmt"
	"strconv"

	"golang.org/x/sys/windows/registry"
)

var hiveRoots = map[string]registry.Key{
	"HKCU": registry.CURRENT_USER,
	"HKLM": registry.LOCAL_MACHINE,
	"HKCR": registry.CLASSES_ROOT,
	"HKU":  registry.USERS,
	"HKCC": registry.CURRENT_CONFIG,
}

func writeRegistryValue(hive, sub, name, kind, data string) error {
	root, ok := hiveRoots[hive]
	if !ok {
		return fmt.Errorf("unknown registry hive %q", hive)
	}
	k, _, err := registry.CreateKey(root, sub, registry.SET_VALUE)
	if err != nil {
		return err
	}
	defer k.Close()

	switch kind {
	case "string", "sz", "reg_sz":
		return k.SetStringValue(name, data)
	case "expand_string", "reg_expand_sz":
		return k.SetExpandStringValue(name, data)
	case "dword", "reg_dword":
		v, err := strconv.ParseUint(data, 0, 32)
		if err != nil {
			return fmt.Errorf("invalid dword %q: %w", data, err)
		}
		return k.SetDWordValue(name, uint32(v))
	case "qword", "reg_qword":
		v, err := strconv.ParseUint(data, 0, 64)
		if err != nil {
			return fmt.Errorf("invalid qword %q: %w", data, err)
		}
		return k.SetQWordValue(name, v)
	}
	return fmt.Errorf("unsupported registry type %q", kind)
}

// uninstallKeys are the registry locations desktop installers register in.
var uninstallKeys = []struct {
	root registry.Key
	path string
}{
	{registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`},
	{registry.LOCAL_MACHINE, `SOFTWARE\WOW6432Node\Microsoft\Windows\CurrentVersion\Uninstall`},
	{registry.CURRENT_USER, `SOFTWARE\Microsoft\Windows\CurrentVersion\Uninstall`},
}

// scanUninstallKeys returns win32 apps whose DisplayIcon points at an existing .exe.
func scanUninstallKeys() []installedApp {
	var apps []installedApp
	for _, u := range uninstallKeys {
		k, err := registry.OpenKey(u.root, u.path, registry.ENUMERATE_SUB_KEYS)
		if err != nil {
			continue
		}
		names, _ := k.ReadSubKeyNames(-1)
		k.Close()

		for _, name := range names {
			sub, err := registry.OpenKey(u.root, u.path+`\`+name, registry.QUERY_VALUE)
			if err != nil {
				continue
			}
			display, _, errName := sub.GetStringValue("DisplayName")
			icon, _, errIcon := sub.GetStringValue("DisplayIcon")
			sub.Close()
			if errName != nil || errIcon != nil || display == "" {
				continue
			}
			if exe := exeFromDisplayIcon(icon); exe != "" {
				apps = append(apps, installedApp{Name: display, Kind: appWin32, Target: exe})
			}
		}
	}
	return apps
}
