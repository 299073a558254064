package ostools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"runtime"
	"strings"

	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

const categoryWindows = "windows"

var errNeedsAdmin = errors.New("this action needs administrator rights; call elevate_to_admin first")

// settingsPage matches ms-settings page names such as "display" or "windowsupdate-action".
var settingsPage = regexp.MustCompile(`^[a-z0-9-]*$`)

func (tb *Toolbox) windowsTools() []tools.Binding {
	return []tools.Binding{
		{
			Spec: tools.Spec{
				Name:        "run_dism",
				Description: "Run DISM with the given arguments, for example /Online /Cleanup-Image /RestoreHealth. Requires administrator rights.",
				Category:    categoryWindows,
				Dangerous:   true,
				Params: []tools.Param{
					{Name: "arguments", Type: tools.TypeString, Required: true, Description: "DISM arguments"},
				},
			},
			Handler: tb.windowsOnly(tb.runDISM),
		},
		{
			Spec: tools.Spec{
				Name:        "set_registry_value",
				Description: `Set a registry value. key looks like HKCU\Software\Vendor; type is string, expand_string, dword or qword.`,
				Category:    categoryWindows,
				Dangerous:   true,
				Params: []tools.Param{
					{Name: "key", Type: tools.TypeString, Required: true, Description: "Full key path including the hive"},
					{Name: "name", Type: tools.TypeString, Required: true, Description: "Value name (empty for the default value)"},
					{Name: "type", Type: tools.TypeString, Description: "Value type (default string)"},
					{Name: "data", Type: tools.TypeString, Required: true, Description: "Value data"},
				},
			},
			Handler: tb.windowsOnly(tb.setRegistryValue),
		},
		{
			Spec: tools.Spec{
				Name:        "list_power_plans",
				Description: "List the power plans and mark the active one.",
				Category:    categoryWindows,
			},
			Handler: tb.windowsOnly(func(ctx context.Context, args tools.Args) (string, error) {
				return runArgv(ctx, []string{"powercfg", "/list"})
			}),
		},
		{
			Spec: tools.Spec{
				Name:        "set_power_plan",
				Description: "Activate a power plan by GUID or by name as shown by list_power_plans.",
				Category:    categoryWindows,
				Params: []tools.Param{
					{Name: "plan", Type: tools.TypeString, Required: true, Description: "Plan GUID or name"},
				},
			},
			Handler: tb.windowsOnly(tb.setPowerPlan),
		},
		{
			Spec: tools.Spec{
				Name:        "search_app",
				Description: "Search the winget catalog for an application.",
				Category:    categoryWindows,
				Params: []tools.Param{
					{Name: "query", Type: tools.TypeString, Required: true, Description: "Application name"},
				},
			},
			Handler: tb.windowsOnly(func(ctx context.Context, args tools.Args) (string, error) {
				q, err := requireString(args, "query")
				if err != nil {
					return "", err
				}
				return runArgv(ctx, []string{"winget", "search", "--query", q, "--accept-source-agreements"})
			}),
		},
		{
			Spec: tools.Spec{
				Name:        "install_app",
				Description: "Install an application with winget by its exact package ID (see search_app).",
				Category:    categoryWindows,
				Dangerous:   true,
				Params: []tools.Param{
					{Name: "id", Type: tools.TypeString, Required: true, Description: "winget package ID"},
				},
			},
			Handler: tb.windowsOnly(tb.installApp),
		},
		{
			Spec: tools.Spec{
				Name:        "open_settings",
				Description: "Open a Windows Settings page such as display, sound, bluetooth, network or windowsupdate.",
				Category:    categoryWindows,
				Params: []tools.Param{
					{Name: "page", Type: tools.TypeString, Description: "ms-settings page name (default: home)"},
				},
			},
			Handler: tb.windowsOnly(func(ctx context.Context, args tools.Args) (string, error) {
				page := strings.ToLower(strings.TrimSpace(args.String("page", "")))
				page = strings.TrimPrefix(page, "ms-settings:")
				if !settingsPage.MatchString(page) {
					return "", fmt.Errorf("invalid settings page %q", page)
				}
				if err := openDefault(ctx, "ms-settings:"+page); err != nil {
					return "", err
				}
				if page == "" {
					page = "home"
				}
				return "Opened Settings: " + page, nil
			}),
		},
	}
}

// windowsOnly reports the tool as unsupported on other platforms.
func (tb *Toolbox) windowsOnly(h tools.Handler) tools.Handler {
	return func(ctx context.Context, args tools.Args) (string, error) {
		if runtime.GOOS != "windows" {
			return "", fmt.Errorf("unsupported on %s", runtime.GOOS)
		}
		return h(ctx, args)
	}
}

func (tb *Toolbox) requireAdmin() error {
	if tb.opts.Bridge != nil && !tb.opts.Bridge.IsElevated() {
		return errNeedsAdmin
	}
	return nil
}

func (tb *Toolbox) runDISM(ctx context.Context, args tools.Args) (string, error) {
	raw, err := requireString(args, "arguments")
	if err != nil {
		return "", err
	}
	if err := tb.requireAdmin(); err != nil {
		return "", err
	}
	if !tb.confirm(ctx, "Run DISM %s?", raw) {
		return cancelledByUser, nil
	}
	argv := append([]string{"dism.exe"}, strings.Fields(raw)...)
	out, err := runArgv(ctx, argv)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%sdism %s ---\n%s", tools.HeaderCommandOutput, raw, out), nil
}

func (tb *Toolbox) setRegistryValue(ctx context.Context, args tools.Args) (string, error) {
	key, err := requireString(args, "key")
	if err != nil {
		return "", err
	}
	name := args.String("name", "")
	kind := strings.ToLower(args.String("type", "string"))
	data := args.String("data", "")

	hive, sub, err := splitRegistryKey(key)
	if err != nil {
		return "", err
	}
	if hive != "HKCU" {
		if err := tb.requireAdmin(); err != nil {
			return "", err
		}
	}
	if !tb.confirm(ctx, `Set %s\%s = %q (%s)?`, key, name, data, kind) {
		return cancelledByUser, nil
	}
	if err := writeRegistryValue(hive, sub, name, kind, data); err != nil {
		return "", err
	}
	return fmt.Sprintf(`Set %s\%s.`, key, name), nil
}

var hiveAliases = map[string]string{
	"HKCU":                "HKCU",
	"HKEY_CURRENT_USER":   "HKCU",
	"HKLM":                "HKLM",
	"HKEY_LOCAL_MACHINE":  "HKLM",
	"HKCR":                "HKCR",
	"HKEY_CLASSES_ROOT":   "HKCR",
	"HKU":                 "HKU",
	"HKEY_USERS":          "HKU",
	"HKCC":                "HKCC",
	"HKEY_CURRENT_CONFIG": "HKCC",
}

// splitRegistryKey splits `HKLM\Software\X` into its canonical hive and subkey.
func splitRegistryKey(key string) (hive, sub string, err error) {
	key = strings.Trim(strings.ReplaceAll(key, "/", `\`), `\`)
	head, rest, _ := strings.Cut(key, `\`)
	hive, ok := hiveAliases[strings.ToUpper(head)]
	if !ok {
		return "", "", fmt.Errorf("unknown registry hive %q", head)
	}
	if rest == "" {
		return "", "", errors.New("registry key must include a subkey")
	}
	return hive, rest, nil
}

// guidPattern matches a power scheme GUID in powercfg output.
var guidPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

func (tb *Toolbox) setPowerPlan(ctx context.Context, args tools.Args) (string, error) {
	plan, err := requireString(args, "plan")
	if err != nil {
		return "", err
	}
	guid := guidPattern.FindString(plan)
	if guid == "" {
		list, err := runArgv(ctx, []string{"powercfg", "/list"})
		if err != nil {
			return "", err
		}
		if guid = findPowerPlan(list, plan); guid == "" {
			return "", fmt.Errorf("no power plan matches %q", plan)
		}
	}
	if _, err := runArgv(ctx, []string{"powercfg", "/setactive", guid}); err != nil {
		return "", err
	}
	return "Active power plan set to " + guid, nil
}

// findPowerPlan returns the GUID of the first plan whose name contains name.
func findPowerPlan(list, name string) string {
	name = strings.ToLower(name)
	for _, line := range strings.Split(list, "\n") {
		guid := guidPattern.FindString(line)
		if guid == "" {
			continue
		}
		if strings.Contains(strings.ToLower(line), name) {
			return guid
		}
	}
	return ""
}

func (tb *Toolbox) installApp(ctx context.Context, args tools.Args) (string, error) {
	id, err := requireString(args, "id")
	if err != nil {
		return "", err
	}
	if !tb.confirm(ctx, "Install %s with winget?", id) {
		return cancelledByUser, nil
	}
	return runArgv(ctx, []string{
		"winget", "install", "--id", id, "--exact",
		"--accept-package-agreements", "--accept-source-agreements",
	})
}
