// Package ostools – system_tools.go exposes process, hardware and power
// management to the model, backed by gopsutil and the OS command line.
package ostools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"

	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

const (
	categorySystem = "system"

	// maxCommandOutput caps run_command output.
	maxCommandOutput = 50_000

	// maxCommandTimeout clamps the timeout the model may ask for.
	maxCommandTimeout = 600 * time.Second
)

func (tb *Toolbox) systemTools() []tools.Binding {
	return []tools.Binding{
		{
			Spec: tools.Spec{
				Name:        "os_context",
				Description: "Describe the operating system, user, shell and working directory. Call this before running platform specific commands.",
				Category:    categorySystem,
			},
			Handler: tb.osContext,
		},
		{
			Spec: tools.Spec{
				Name:        "system_info",
				Description: "Summarize CPU, memory and disk usage.",
				Category:    categorySystem,
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				return collectSystemInfo(ctx, false)
			},
		},
		{
			Spec: tools.Spec{
				Name:        "system_info_full",
				Description: "Detailed hardware and OS report: host, CPU model, every mounted disk, uptime and the heaviest processes.",
				Category:    categorySystem,
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				return collectSystemInfo(ctx, true)
			},
		},
		{
			Spec: tools.Spec{
				Name:        "list_processes",
				Description: "List running processes sorted by memory use, optionally filtered by name.",
				Category:    categorySystem,
				Params: []tools.Param{
					{Name: "filter", Type: tools.TypeString, Description: "Case-insensitive name substring"},
					{Name: "limit", Type: tools.TypeInteger, Description: "Maximum rows (default 25)"},
				},
			},
			Handler: tb.listProcesses,
		},
		{
			Spec: tools.Spec{
				Name:        "find_unresponsive_processes",
				Description: "Find processes that are stopped, zombie or not responding.",
				Category:    categorySystem,
			},
			Handler: tb.findUnresponsive,
		},
		{
			Spec: tools.Spec{
				Name:        "kill_process",
				Description: "Terminate a process by PID or every process with a given name.",
				Category:    categorySystem,
				Dangerous:   true,
				Params: []tools.Param{
					{Name: "pid", Type: tools.TypeInteger, Description: "Process ID"},
					{Name: "name", Type: tools.TypeString, Description: "Exact process name"},
				},
			},
			Handler: tb.killProcess,
		},
		{
			Spec: tools.Spec{
				Name:        "run_command",
				Description: "Run a shell command in the current directory and return its output. Uses cmd.exe on Windows and sh elsewhere.",
				Category:    categorySystem,
				Dangerous:   true,
				Params: []tools.Param{
					{Name: "command", Type: tools.TypeString, Required: true, Description: "Command line"},
					{Name: "timeout_seconds", Type: tools.TypeInteger, Description: "Timeout (default from config, max 600)"},
				},
			},
			Handler:   tb.runCommand,
			SelfTimed: true,
		},
		{
			Spec: tools.Spec{
				Name:        "shutdown_system",
				Description: "Shut down or restart the computer after an optional delay.",
				Category:    categorySystem,
				Dangerous:   true,
				Params: []tools.Param{
					{Name: "action", Type: tools.TypeString, Description: "shutdown or restart (default shutdown)"},
					{Name: "delay_seconds", Type: tools.TypeInteger, Description: "Delay before acting (default 60)"},
				},
			},
			Handler: tb.shutdownSystem,
		},
		{
			Spec: tools.Spec{
				Name:        "cancel_shutdown",
				Description: "Cancel a scheduled shutdown or restart.",
				Category:    categorySystem,
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				argv, err := cancelShutdownCommand(runtime.GOOS)
				if err != nil {
					return "", err
				}
				if _, err := runArgv(ctx, argv); err != nil {
					return "", err
				}
				return "Scheduled shutdown cancelled.", nil
			},
		},
		{
			Spec: tools.Spec{
				Name:        "lock_screen",
				Description: "Lock the screen.",
				Category:    categorySystem,
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				argv, err := lockCommand(runtime.GOOS)
				if err != nil {
					return "", err
				}
				if _, err := runArgv(ctx, argv); err != nil {
					return "", err
				}
				return "Screen locked.", nil
			},
		},
		{
			Spec: tools.Spec{
				Name:        "open_website",
				Description: "Open a web address in the default browser.",
				Category:    categorySystem,
				Params: []tools.Param{
					{Name: "url", Type: tools.TypeString, Required: true, Description: "Address, with or without https://"},
				},
			},
			Handler: func(ctx context.Context, args tools.Args) (string, error) {
				raw, err := requireString(args, "url")
				if err != nil {
					return "", err
				}
				u, err := normalizeURL(raw)
				if err != nil {
					return "", err
				}
				if err := openDefault(ctx, u); err != nil {
					return "", err
				}
				return "Opened " + u, nil
			},
		},
		{
			Spec: tools.Spec{
				Name:        "download_file",
				Description: "Download a URL into a file. Defaults to the current directory and the name from the URL.",
				Category:    categorySystem,
				Params: []tools.Param{
					{Name: "url", Type: tools.TypeString, Required: true, Description: "Address to download"},
					{Name: "destination", Type: tools.TypeString, Description: "Target file or directory"},
				},
			},
			Handler: tb.downloadFile,
		},
	}
}

func (tb *Toolbox) osContext(ctx context.Context, args tools.Args) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "OS: %s\nArchitecture: %s\n", runtime.GOOS, runtime.GOARCH)
	if info, err := host.InfoWithContext(ctx); err == nil {
		fmt.Fprintf(&b, "Platform: %s %s\nKernel: %s\nHostname: %s\n",
			info.Platform, info.PlatformVersion, info.KernelVersion, info.Hostname)
	}
	if u := currentUser(); u != "" {
		fmt.Fprintf(&b, "User: %s\n", u)
	}
	shell := "sh"
	if runtime.GOOS == "windows" {
		shell = "cmd.exe"
	}
	fmt.Fprintf(&b, "Command shell: %s\n", shell)
	if tb.opts.Bridge != nil {
		fmt.Fprintf(&b, "Administrator: %s\n", yesNo(tb.opts.Bridge.IsElevated()))
	}
	if home, err := os.UserHomeDir(); err == nil {
		fmt.Fprintf(&b, "Home: %s\n", home)
	}
	fmt.Fprintf(&b, "Working directory: %s", tb.Cwd())
	return b.String(), nil
}

func currentUser() string {
	for _, k := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// collectSystemInfo gathers host, CPU, memory and disk stats concurrently.
// A failing query is reported inline rather than failing the tool.
func collectSystemInfo(ctx context.Context, full bool) (string, error) {
	var (
		hostInfo *host.InfoStat
		cpuModel string
		cpuPct   []float64
		cores    int
		vm       *mem.VirtualMemoryStat
		disks    []string
		top      []procRow
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cpuPct, err = cpu.PercentWithContext(gctx, 500*time.Millisecond, false)
		if err == nil {
			cores, err = cpu.CountsWithContext(gctx, true)
		}
		if full && err == nil {
			if infos, ierr := cpu.InfoWithContext(gctx); ierr == nil && len(infos) > 0 {
				cpuModel = infos[0].ModelName
			}
		}
		return nil
	})
	g.Go(func() error {
		vm, _ = mem.VirtualMemoryWithContext(gctx)
		return nil
	})
	g.Go(func() error {
		disks = diskUsage(gctx, full)
		return nil
	})
	if full {
		g.Go(func() error {
			hostInfo, _ = host.InfoWithContext(gctx)
			return nil
		})
		g.Go(func() error {
			rows, err := processRows(gctx)
			if err == nil {
				top = rows[:min(10, len(rows))]
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var b strings.Builder
	if hostInfo != nil {
		fmt.Fprintf(&b, "Host: %s (%s %s, kernel %s)\n", hostInfo.Hostname,
			hostInfo.Platform, hostInfo.PlatformVersion, hostInfo.KernelVersion)
		fmt.Fprintf(&b, "Uptime: %s\n", time.Duration(hostInfo.Uptime)*time.Second)
	}
	if cpuModel != "" {
		fmt.Fprintf(&b, "CPU model: %s\n", cpuModel)
	}
	if len(cpuPct) > 0 {
		fmt.Fprintf(&b, "CPU: %.1f%% of %d logical cores\n", cpuPct[0], cores)
	} else {
		b.WriteString("CPU: unavailable\n")
	}
	if vm != nil {
		fmt.Fprintf(&b, "Memory: %s used of %s (%.1f%%), %s available\n",
			humanize.Bytes(vm.Used), humanize.Bytes(vm.Total), vm.UsedPercent, humanize.Bytes(vm.Available))
	} else {
		b.WriteString("Memory: unavailable\n")
	}
	for _, d := range disks {
		b.WriteString(d)
		b.WriteString("\n")
	}
	if len(top) > 0 {
		b.WriteString("Top processes by memory:\n")
		for _, r := range top {
			fmt.Fprintf(&b, "  %6d  %-30s %s\n", r.pid, r.name, humanize.Bytes(r.rss))
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// diskUsage reports the root volume, or every physical partition when all
// is set.
func diskUsage(ctx context.Context, all bool) []string {
	mounts := []string{rootVolume()}
	if all {
		if parts, err := disk.PartitionsWithContext(ctx, false); err == nil {
			mounts = mounts[:0]
			for _, p := range parts {
				mounts = append(mounts, p.Mountpoint)
			}
		}
	}
	var lines []string
	for _, m := range mounts {
		u, err := disk.UsageWithContext(ctx, m)
		if err != nil || u.Total == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("Disk %s: %s free of %s (%.1f%% used)",
			m, humanize.Bytes(u.Free), humanize.Bytes(u.Total), u.UsedPercent))
	}
	return lines
}

func rootVolume() string {
	if runtime.GOOS == "windows" {
		if d := os.Getenv("SystemDrive"); d != "" {
			return d + `\`
		}
		return `C:\`
	}
	return "/"
}

type procRow struct {
	pid    int32
	name   string
	rss    uint64
	status string
}

// processRows lists processes sorted by resident memory, largest first.
// Processes that vanish or deny access mid-scan are skipped.
func processRows(ctx context.Context) ([]procRow, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]procRow, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name == "" {
			continue
		}
		row := procRow{pid: p.Pid, name: name}
		if mi, err := p.MemoryInfoWithContext(ctx); err == nil && mi != nil {
			row.rss = mi.RSS
		}
		if st, err := p.StatusWithContext(ctx); err == nil && len(st) > 0 {
			row.status = st[0]
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].rss > rows[j].rss })
	return rows, nil
}

func (tb *Toolbox) listProcesses(ctx context.Context, args tools.Args) (string, error) {
	limit, err := args.Int("limit", 25)
	if err != nil {
		return "", err
	}
	if limit <= 0 {
		limit = 25
	}
	filter := strings.ToLower(args.String("filter", ""))

	rows, err := processRows(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%7s  %-30s %10s  %s\n", "PID", "NAME", "MEMORY", "STATUS")
	shown := 0
	for _, r := range rows {
		if filter != "" && !strings.Contains(strings.ToLower(r.name), filter) {
			continue
		}
		if shown == limit {
			break
		}
		shown++
		fmt.Fprintf(&b, "%7d  %-30s %10s  %s\n", r.pid, r.name, humanize.Bytes(r.rss), r.status)
	}
	if shown == 0 {
		return "No matching processes.", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (tb *Toolbox) findUnresponsive(ctx context.Context, args tools.Args) (string, error) {
	if runtime.GOOS == "windows" {
		out, err := runArgv(ctx, []string{"tasklist", "/FI", "STATUS eq NOT RESPONDING"})
		if err != nil {
			return "", err
		}
		if strings.Contains(out, "No tasks") || out == "" {
			return "No unresponsive processes.", nil
		}
		return out, nil
	}

	rows, err := processRows(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, r := range rows {
		switch r.status {
		case process.Zombie, process.Stop:
			fmt.Fprintf(&b, "%7d  %-30s %s\n", r.pid, r.name, r.status)
		}
	}
	if b.Len() == 0 {
		return "No unresponsive processes.", nil
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (tb *Toolbox) killProcess(ctx context.Context, args tools.Args) (string, error) {
	pid, err := args.Int("pid", 0)
	if err != nil {
		return "", err
	}
	name := strings.TrimSpace(args.String("name", ""))

	var targets []*process.Process
	switch {
	case args.Has("pid"):
		if pid <= 0 {
			return "", fmt.Errorf("invalid PID %d", pid)
		}
		if pid == os.Getpid() {
			return "", errors.New("refusing to kill the shell itself; use exit")
		}
		p, err := process.NewProcessWithContext(ctx, int32(pid))
		if err != nil {
			return "", fmt.Errorf("no process with PID %d", pid)
		}
		targets = append(targets, p)
	case name != "":
		procs, err := process.ProcessesWithContext(ctx)
		if err != nil {
			return "", err
		}
		for _, p := range procs {
			if int(p.Pid) == os.Getpid() {
				continue
			}
			if n, err := p.NameWithContext(ctx); err == nil && strings.EqualFold(n, name) {
				targets = append(targets, p)
			}
		}
		if len(targets) == 0 {
			return "", fmt.Errorf("no process named %q", name)
		}
	default:
		return "", errors.New("pid or name is required")
	}

	label := name
	if label == "" {
		label = fmt.Sprintf("PID %d", pid)
		if n, err := targets[0].NameWithContext(ctx); err == nil {
			label = fmt.Sprintf("%s (PID %d)", n, pid)
		}
	}
	if !tb.confirm(ctx, "Terminate %s (%d process(es))?", label, len(targets)) {
		return cancelledByUser, nil
	}

	killed := 0
	var errs []error
	for _, p := range targets {
		if err := p.KillWithContext(ctx); err != nil {
			errs = append(errs, fmt.Errorf("PID %d: %w", p.Pid, err))
			continue
		}
		killed++
	}
	if killed == 0 {
		return "", errors.Join(errs...)
	}
	msg := fmt.Sprintf("Terminated %d process(es) for %s.", killed, label)
	if len(errs) > 0 {
		msg += "\nFailures:\n" + errors.Join(errs...).Error()
	}
	return msg, nil
}

func (tb *Toolbox) runCommand(ctx context.Context, args tools.Args) (string, error) {
	line, err := requireString(args, "command")
	if err != nil {
		return "", err
	}
	timeout := tb.opts.CommandTimeout
	if secs, err := args.Int("timeout_seconds", 0); err != nil {
		return "", err
	} else if secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	timeout = min(timeout, maxCommandTimeout)

	if !tb.confirm(ctx, "Run command: %s", line) {
		return cancelledByUser, nil
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := shellCommand(cmdCtx, line)
	cmd.Dir = tb.Cwd()
	cmd.Env = os.Environ()

	start := time.Now()
	out, err := cmd.CombinedOutput()
	output := strings.TrimRight(string(out), "\r\n ")
	if len(output) > maxCommandOutput {
		output = tools.Truncate(output, maxCommandOutput) + "\n... [output truncated]"
	}

	tb.logger.Info("command executed",
		"command", truncateForLog(line, 200),
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err,
	)

	header := fmt.Sprintf("%s%s ---\n", tools.HeaderCommandOutput, line)
	if err != nil {
		if cmdCtx.Err() != nil {
			return fmt.Sprintf("%sCommand timed out after %v.\n\nPartial output:\n%s", header, timeout, output), nil
		}
		return fmt.Sprintf("%sExit code: %d\n%s", header, exitCode(cmd.ProcessState), output), nil
	}
	if output == "" {
		output = "(no output)"
	}
	return header + output, nil
}

func exitCode(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	return ps.ExitCode()
}

func truncateForLog(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return tools.Truncate(s, n) + "..."
}

func (tb *Toolbox) shutdownSystem(ctx context.Context, args tools.Args) (string, error) {
	action := strings.ToLower(args.String("action", "shutdown"))
	delay, err := args.Int("delay_seconds", 60)
	if err != nil {
		return "", err
	}
	if delay < 0 {
		delay = 0
	}
	argv, err := shutdownCommand(runtime.GOOS, action, delay)
	if err != nil {
		return "", err
	}
	if !tb.confirm(ctx, "%s the computer in %d seconds?", strings.ToUpper(action[:1])+action[1:], delay) {
		return cancelledByUser, nil
	}
	if _, err := runArgv(ctx, argv); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s scheduled in %d seconds. Use cancel_shutdown to abort.", action, delay), nil
}

// normalizeURL adds https:// to bare hosts and rejects non-web schemes.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("invalid URL %q: missing host", raw)
	}
	return u.String(), nil
}

func (tb *Toolbox) downloadFile(ctx context.Context, args tools.Args) (string, error) {
	raw, err := requireString(args, "url")
	if err != nil {
		return "", err
	}
	u, err := normalizeURL(raw)
	if err != nil {
		return "", err
	}

	name := "download"
	if parsed, err := url.Parse(u); err == nil {
		if base := path.Base(parsed.Path); base != "" && base != "/" && base != "." {
			name = base
		}
	}
	dst := tb.resolvePath(args.String("destination", "."))
	if info, err := os.Stat(dst); err == nil && info.IsDir() {
		dst = filepath.Join(dst, name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}

	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return "", err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return fmt.Sprintf("Downloaded %s to %s", humanize.Bytes(uint64(n)), dst), nil
}
