// Package ostools – apps.go discovers installed desktop and Store applications
// on Windows and launches them by name.
package ostools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

const (
	appWin32 = "win32"
	appUWP   = "uwp"
)

// installedApp is one launchable application. Target is an .exe path for
// win32 apps and an AppUserModelID for Store apps.
type installedApp struct {
	Name   string
	Kind   string
	Target string
}

// appxQuery lists removable, non-framework Store packages as JSON.
const appxQuery = `Get-AppxPackage | Where-Object {$_.IsFramework -eq $false -and $_.NonRemovable -eq $false} | Select-Object Name, PackageFamilyName | ConvertTo-Json`

func (tb *Toolbox) appTools() []tools.Binding {
	return []tools.Binding{
		{
			Spec: tools.Spec{
				Name:        "list_apps",
				Description: "List the applications installed on this computer, including Store apps.",
				Category:    categoryWindows,
			},
			Handler: tb.windowsOnly(tb.listApps),
		},
		{
			Spec: tools.Spec{
				Name:        "open_app",
				Description: "Open an installed application by name, for example notepad or spotify.",
				Category:    categoryWindows,
				Params: []tools.Param{
					{Name: "name", Type: tools.TypeString, Required: true, Description: "Application name"},
				},
			},
			Handler: tb.windowsOnly(tb.openApp),
		},
	}
}

// installedApps scans once per process and serves the cached index after.
func (tb *Toolbox) installedApps(ctx context.Context) []installedApp {
	tb.appsOnce.Do(func() {
		apps := scanUninstallKeys()
		if out, err := runArgv(ctx, []string{"powershell", "-NoProfile", "-Command", appxQuery}); err != nil {
			tb.logger.Warn("store app scan failed", "error", err)
		} else {
			apps = append(apps, parseAppxPackages(out)...)
		}
		tb.apps = indexApps(apps)
		tb.logger.Info("installed apps scanned", "count", len(tb.apps))
	})
	return tb.apps
}

func (tb *Toolbox) listApps(ctx context.Context, _ tools.Args) (string, error) {
	return formatAppList(tb.installedApps(ctx)), nil
}

func (tb *Toolbox) openApp(ctx context.Context, args tools.Args) (string, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return "", err
	}
	app, ok := matchApp(tb.installedApps(ctx), name)
	if !ok {
		// Let the shell resolve App Paths entries such as "winword".
		if err := exec.CommandContext(ctx, "cmd.exe", "/c", "start", "", name).Start(); err != nil {
			return "", fmt.Errorf("could not open %s: %w", name, err)
		}
		return fmt.Sprintf("No installed app matched %q; asked Windows to start it.", name), nil
	}
	switch app.Kind {
	case appUWP:
		err = exec.CommandContext(ctx, "explorer.exe", `shell:AppsFolder\`+app.Target).Start()
	default:
		err = openDefault(ctx, app.Target)
	}
	if err != nil {
		return "", fmt.Errorf("could not open %s: %w", app.Name, err)
	}
	return "Opened " + app.Name, nil
}

// indexApps drops duplicates by lower-cased name, later entries winning,
// and sorts by name.
func indexApps(apps []installedApp) []installedApp {
	byName := make(map[string]installedApp, len(apps))
	for _, a := range apps {
		byName[strings.ToLower(a.Name)] = a
	}
	out := make([]installedApp, 0, len(byName))
	for _, a := range byName {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// matchApp prefers an exact case-insensitive match, then the shortest name
// containing the query.
func matchApp(apps []installedApp, query string) (installedApp, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return installedApp{}, false
	}
	var best installedApp
	found := false
	for _, a := range apps {
		name := strings.ToLower(a.Name)
		if name == q {
			return a, true
		}
		if strings.Contains(name, q) && (!found || len(a.Name) < len(best.Name)) {
			best, found = a, true
		}
	}
	return best, found
}

// parseAppxPackages reads ConvertTo-Json output, which is an object for a
// single package and an array otherwise.
func parseAppxPackages(out string) []installedApp {
	type pkg struct {
		Name              string
		PackageFamilyName string
	}
	out = strings.TrimSpace(out)
	var pkgs []pkg
	if strings.HasPrefix(out, "{") {
		var one pkg
		if err := json.Unmarshal([]byte(out), &one); err != nil {
			return nil
		}
		pkgs = []pkg{one}
	} else if err := json.Unmarshal([]byte(out), &pkgs); err != nil {
		return nil
	}

	apps := make([]installedApp, 0, len(pkgs))
	for _, p := range pkgs {
		if p.Name == "" || p.PackageFamilyName == "" {
			continue
		}
		apps = append(apps, installedApp{Name: p.Name, Kind: appUWP, Target: p.PackageFamilyName + "!App"})
	}
	return apps
}

// exeFromDisplayIcon turns a DisplayIcon value such as `"C:\x\app.exe",0`
// into an executable path, or "" when it does not name an existing .exe.
func exeFromDisplayIcon(icon string) string {
	path, _, _ := strings.Cut(icon, ",")
	path = strings.TrimSpace(strings.ReplaceAll(path, `"`, ""))
	if !strings.HasSuffix(strings.ToLower(path), ".exe") {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func formatAppList(apps []installedApp) string {
	if len(apps) == 0 {
		return "No installed applications found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d installed applications:\n", len(apps))
	for _, a := range apps {
		b.WriteString(a.Name)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}
