package ostools

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/jholhewres/smartshell/pkg/smartshell/elevation"
	"github.com/jholhewres/smartshell/pkg/smartshell/session"
	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
	"github.com/jholhewres/smartshell/pkg/smartshell/translate"
)

func newTestToolbox(t *testing.T, approve bool) (*Toolbox, *tools.Executor) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	tb := New(Options{
		Flags:   session.NewFlags(),
		WorkDir: t.TempDir(),
		Confirm: ConfirmFunc(func(context.Context, string) (bool, error) { return approve, nil }),
		Logger:  logger,
	})
	reg := tools.NewRegistry()
	exec := tools.NewExecutor(logger)
	if err := tools.Install(reg, exec, tb.Bindings()...); err != nil {
		t.Fatalf("Install: %v", err)
	}
	return tb, exec
}

func invoke(t *testing.T, exec *tools.Executor, name string, args map[string]any) tools.Result {
	t.Helper()
	return exec.Invoke(context.Background(), tools.Call{ID: "1", Name: name, Args: args})
}

func TestCatalogIsComplete(t *testing.T) {
	tb, _ := newTestToolbox(t, true)

	want := []string{
		"speak", "pause", "resume", "mute", "unmute", "status", "change_language", "help",
		"clear_cache", "exit", "restart_program", "elevate_to_admin",
		"current_directory", "change_directory", "list_directory", "create_folder",
		"read_file", "write_file", "copy_file", "move_file", "rename_file", "delete_file",
		"split_file", "open_file",
		"os_context", "system_info", "system_info_full", "list_processes", "kill_process",
		"run_command", "shutdown_system", "cancel_shutdown", "lock_screen", "open_website", "download_file",
		"run_dism", "set_registry_value", "list_power_plans", "set_power_plan", "search_app",
		"install_app", "open_settings", "list_apps", "open_app",
	}
	have := make(map[string]tools.Spec)
	for _, s := range tb.catalog {
		have[s.Name] = s
		if s.Category == "" {
			t.Errorf("%s has no category", s.Name)
		}
	}
	for _, name := range want {
		if _, ok := have[name]; !ok {
			t.Errorf("missing tool %q", name)
		}
	}
	for _, name := range []string{"delete_file", "run_command", "kill_process", "shutdown_system", "install_app"} {
		if !have[name].Dangerous {
			t.Errorf("%s should be dangerous", name)
		}
	}
}

func TestDirectoryNavigation(t *testing.T) {
	tb, exec := newTestToolbox(t, true)
	root := tb.Cwd()
	if err := os.MkdirAll(filepath.Join(root, "docs", "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(root, "docs", "a.txt"), []byte("hello"), 0o644)
	os.WriteFile(filepath.Join(root, "docs", ".hidden"), []byte("x"), 0o644)

	res := invoke(t, exec, "change_directory", map[string]any{"path": "docs"})
	if res.Failed {
		t.Fatalf("change_directory failed: %s", res.Value)
	}
	want := tools.HeaderWorkingDirectory + filepath.Join(root, "docs")
	if res.Value != want {
		t.Errorf("got %q, want %q", res.Value, want)
	}

	res = invoke(t, exec, "list_directory", nil)
	if !strings.HasPrefix(res.Value, tools.HeaderDirectoryListing) {
		t.Errorf("listing missing header: %q", res.Value)
	}
	if !strings.Contains(res.Value, "[DIR]  sub") || !strings.Contains(res.Value, "a.txt") {
		t.Errorf("listing incomplete: %q", res.Value)
	}
	if strings.Contains(res.Value, ".hidden") {
		t.Errorf("hidden file listed: %q", res.Value)
	}
	if !strings.Contains(res.Value, "1 folders, 1 files") {
		t.Errorf("unexpected totals: %q", res.Value)
	}

	res = invoke(t, exec, "change_directory", map[string]any{"path": "a.txt"})
	if !res.Failed || !strings.Contains(res.Value, "not a directory") {
		t.Errorf("expected not a directory error, got %q", res.Value)
	}

	res = invoke(t, exec, "current_directory", nil)
	if res.Value != want {
		t.Errorf("cwd changed after failed cd: %q", res.Value)
	}
}

func TestReadWriteFile(t *testing.T) {
	tb, exec := newTestToolbox(t, true)

	res := invoke(t, exec, "write_file", map[string]any{"path": "notes/n.txt", "content": "one\ntwo\nthree\n"})
	if res.Failed {
		t.Fatalf("write_file: %s", res.Value)
	}
	res = invoke(t, exec, "write_file", map[string]any{"path": "notes/n.txt", "content": "four", "append": true})
	if res.Failed {
		t.Fatalf("append: %s", res.Value)
	}

	path := filepath.Join(tb.Cwd(), "notes", "n.txt")
	res = invoke(t, exec, "read_file", map[string]any{"path": path, "offset": 2, "limit": 2})
	want := tools.HeaderFileContents + path + " ---\ntwo\nthree"
	if res.Value != want {
		t.Errorf("got %q, want %q", res.Value, want)
	}

	res = invoke(t, exec, "read_file", map[string]any{"path": "missing.txt"})
	if !res.Failed {
		t.Errorf("expected failure for missing file")
	}
}

func TestDangerousToolsRespectConfirmation(t *testing.T) {
	tb, exec := newTestToolbox(t, false)
	target := filepath.Join(tb.Cwd(), "keep.txt")
	os.WriteFile(target, []byte("data"), 0o644)

	res := invoke(t, exec, "delete_file", map[string]any{"path": "keep.txt"})
	if res.Value != cancelledByUser {
		t.Errorf("delete_file got %q", res.Value)
	}
	res = invoke(t, exec, "write_file", map[string]any{"path": "keep.txt", "content": "new"})
	if res.Value != cancelledByUser {
		t.Errorf("write_file got %q", res.Value)
	}
	if data, _ := os.ReadFile(target); string(data) != "data" {
		t.Errorf("file modified after declined confirmation: %q", data)
	}

	// New files do not need confirmation.
	res = invoke(t, exec, "write_file", map[string]any{"path": "fresh.txt", "content": "x"})
	if res.Failed || res.Value == cancelledByUser {
		t.Errorf("write_file to new file got %q", res.Value)
	}
}

func TestKillProcessValidatesTarget(t *testing.T) {
	_, exec := newTestToolbox(t, true)
	tests := []struct {
		args map[string]any
		want string
	}{
		{map[string]any{"pid": 0}, "invalid PID 0"},
		{map[string]any{"pid": -4}, "invalid PID -4"},
		{map[string]any{"pid": os.Getpid()}, "refusing to kill the shell"},
		{nil, "pid or name is required"},
	}
	for _, tt := range tests {
		res := invoke(t, exec, "kill_process", tt.args)
		if !res.Failed || !strings.Contains(res.Value, tt.want) {
			t.Errorf("kill_process(%v) = %q, want %q", tt.args, res.Value, tt.want)
		}
	}
}

func TestCopyMoveRenameDelete(t *testing.T) {
	tb, exec := newTestToolbox(t, true)
	dir := tb.Cwd()
	os.WriteFile(filepath.Join(dir, "a.txt"), []byte("payload"), 0o644)
	os.Mkdir(filepath.Join(dir, "out"), 0o755)

	steps := []struct {
		tool string
		args map[string]any
		want string
	}{
		{"copy_file", map[string]any{"source": "a.txt", "destination": "out"}, filepath.Join(dir, "out", "a.txt")},
		{"rename_file", map[string]any{"path": "out/a.txt", "new_name": "b.txt"}, filepath.Join(dir, "out", "b.txt")},
		{"move_file", map[string]any{"source": "out/b.txt", "destination": "c.txt"}, filepath.Join(dir, "c.txt")},
	}
	for _, s := range steps {
		t.Run(s.tool, func(t *testing.T) {
			res := invoke(t, exec, s.tool, s.args)
			if res.Failed {
				t.Fatalf("%s failed: %s", s.tool, res.Value)
			}
			data, err := os.ReadFile(s.want)
			if err != nil || string(data) != "payload" {
				t.Errorf("expected %s with payload, got %q, %v", s.want, data, err)
			}
		})
	}

	res := invoke(t, exec, "rename_file", map[string]any{"path": "c.txt", "new_name": "x/y.txt"})
	if !res.Failed {
		t.Errorf("rename with separator should fail")
	}

	res = invoke(t, exec, "delete_file", map[string]any{"path": "out"})
	if res.Failed {
		t.Fatalf("delete_file: %s", res.Value)
	}
	if _, err := os.Stat(filepath.Join(dir, "out")); !os.IsNotExist(err) {
		t.Errorf("folder still exists")
	}
}

func TestSplitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	os.WriteFile(path, make([]byte, 2500), 0o644)

	parts, err := splitInto(context.Background(), path, 1000)
	if err != nil {
		t.Fatalf("splitInto: %v", err)
	}
	if len(parts) != 3 {
		t.Fatalf("expected 3 parts, got %v", parts)
	}
	info, _ := os.Stat(parts[2])
	if info.Size() != 500 {
		t.Errorf("last part size = %d", info.Size())
	}

	// Exact multiple must not leave an empty trailing part.
	os.WriteFile(path, make([]byte, 2000), 0o644)
	parts, err = splitInto(context.Background(), path, 1000)
	if err != nil || len(parts) != 2 {
		t.Errorf("expected 2 parts, got %v, %v", parts, err)
	}
	if _, err := os.Stat(path + ".003"); !os.IsNotExist(err) {
		t.Errorf("empty trailing part left behind")
	}
}

func TestRunCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell")
	}
	tb, exec := newTestToolbox(t, true)

	res := invoke(t, exec, "run_command", map[string]any{"command": "pwd; echo hello"})
	if res.Failed {
		t.Fatalf("run_command: %s", res.Value)
	}
	if !strings.HasPrefix(res.Value, tools.HeaderCommandOutput+"pwd; echo hello ---\n") {
		t.Errorf("missing header: %q", res.Value)
	}
	if !strings.Contains(res.Value, tb.Cwd()) || !strings.HasSuffix(res.Value, "hello") {
		t.Errorf("unexpected output: %q", res.Value)
	}

	res = invoke(t, exec, "run_command", map[string]any{"command": "echo oops; exit 3"})
	if !strings.Contains(res.Value, "Exit code: 3") || !strings.Contains(res.Value, "oops") {
		t.Errorf("unexpected failure output: %q", res.Value)
	}

	res = invoke(t, exec, "run_command", map[string]any{"command": "sleep 5", "timeout_seconds": 1})
	if !strings.Contains(res.Value, "timed out after 1s") {
		t.Errorf("expected timeout, got %q", res.Value)
	}
}

func TestRunCommandOwnsItsTimeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell")
	}
	_, exec := newTestToolbox(t, true)
	exec.SetTimeout(200 * time.Millisecond)

	res := invoke(t, exec, "run_command", map[string]any{"command": "sleep 0.5; echo late"})
	if res.Failed || !strings.HasSuffix(res.Value, "late") {
		t.Errorf("executor timeout cut the command short: %q", res.Value)
	}

	res = invoke(t, exec, "run_command", map[string]any{"command": "sleep 5", "timeout_seconds": 1})
	if !strings.Contains(res.Value, "timed out after 1s") {
		t.Errorf("expected the command timeout, got %q", res.Value)
	}
}

func TestSessionToolsToggleFlags(t *testing.T) {
	tb, exec := newTestToolbox(t, true)
	flags := tb.opts.Flags

	invoke(t, exec, "pause", nil)
	if flags.Monitoring() {
		t.Error("pause did not disable monitoring")
	}
	invoke(t, exec, "resume", nil)
	if !flags.Monitoring() {
		t.Error("resume did not enable monitoring")
	}
	invoke(t, exec, "mute", nil)
	if !flags.Muted() {
		t.Error("mute did not mute")
	}
	invoke(t, exec, "unmute", nil)
	if flags.Muted() {
		t.Error("unmute did not unmute")
	}

	res := invoke(t, exec, "status", nil)
	if !strings.Contains(res.Value, "Clipboard monitoring: on") || !strings.Contains(res.Value, "Speech: on") {
		t.Errorf("unexpected status: %q", res.Value)
	}
}

func TestChangeLanguage(t *testing.T) {
	var persisted [2]string
	tb := New(Options{
		WorkDir: t.TempDir(),
		OnLanguageChange: func(display, target string) error {
			persisted = [2]string{display, target}
			return nil
		},
	})
	tb.Bindings()

	out, err := tb.changeLanguage(context.Background(), tools.Args{"language": "pt-BR"})
	if err != nil {
		t.Fatalf("changeLanguage: %v", err)
	}
	if tb.opts.Flags.DisplayLanguage() != "pt-BR" || tb.opts.Flags.TargetLanguage() != "pt-BR" {
		t.Errorf("flags not updated: %+v", tb.opts.Flags.Values())
	}
	if persisted != [2]string{"pt-BR", "pt-BR"} {
		t.Errorf("persisted %v", persisted)
	}
	if !strings.Contains(out, "[System:") {
		t.Errorf("missing language notice: %q", out)
	}

	out, err = tb.changeLanguage(context.Background(), tools.Args{"language": "es", "scope": "target"})
	if err != nil {
		t.Fatal(err)
	}
	if tb.opts.Flags.DisplayLanguage() != "pt-BR" || tb.opts.Flags.TargetLanguage() != "es" {
		t.Errorf("target-only change leaked: %+v", tb.opts.Flags.Values())
	}
	if strings.Contains(out, "[System:") {
		t.Errorf("target-only change should not emit a display notice: %q", out)
	}

	if _, err := tb.changeLanguage(context.Background(), tools.Args{"language": "not a language!"}); err == nil {
		t.Error("expected invalid language error")
	}
	if _, err := tb.changeLanguage(context.Background(), tools.Args{"language": "en", "scope": "sideways"}); err == nil {
		t.Error("expected invalid scope error")
	}
}

func TestHelpListsCategories(t *testing.T) {
	_, exec := newTestToolbox(t, true)
	res := invoke(t, exec, "help", nil)
	for _, c := range []string{"[files]", "[session]", "[system]", "[windows]", "delete_file (asks for confirmation)"} {
		if !strings.Contains(res.Value, c) {
			t.Errorf("help missing %q", c)
		}
	}
}

func TestExitCallsHook(t *testing.T) {
	called := false
	tb := New(Options{WorkDir: t.TempDir(), OnExit: func() { called = true }})
	reg := tools.NewRegistry()
	exec := tools.NewExecutor(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	if err := tools.Install(reg, exec, tb.Bindings()...); err != nil {
		t.Fatal(err)
	}
	res := invoke(t, exec, "exit", nil)
	if res.Failed || !called {
		t.Errorf("exit hook not called: %q", res.Value)
	}
}

type fakeRelauncher struct {
	elevated bool
	calls    int
}

func (f *fakeRelauncher) IsElevated() bool { return f.elevated }
func (f *fakeRelauncher) Elevate(ctx context.Context, extra []string) error {
	f.calls++
	return nil
}
func (f *fakeRelauncher) Restart(ctx context.Context, extra []string) error { return nil }

func TestElevateSuspendsSession(t *testing.T) {
	dir := t.TempDir()
	rl := &fakeRelauncher{}
	terminated := -1
	bridge := elevation.NewBridge(filepath.Join(dir, elevation.SnapshotFileName), rl,
		func(code int) { terminated = code }, slog.New(slog.NewTextHandler(os.Stdout, nil)))

	flags := session.NewFlags()
	flags.SetMuted(true)
	tb := New(Options{
		WorkDir: dir,
		Flags:   flags,
		Bridge:  bridge,
		Snapshot: func() session.Snapshot {
			return session.NewSnapshot("sess-1", session.NewTranscript(), flags)
		},
	})

	if _, err := tb.elevate(context.Background(), nil); err != nil {
		t.Fatalf("elevate: %v", err)
	}
	if rl.calls != 1 || terminated != 0 {
		t.Errorf("calls=%d terminated=%d", rl.calls, terminated)
	}
	snap, err := bridge.Resume()
	if err != nil || snap == nil {
		t.Fatalf("Resume: %v, %v", snap, err)
	}
	if snap.SessionID != "sess-1" || !snap.Muted {
		t.Errorf("unexpected snapshot: %+v", snap)
	}

	rl.elevated = true
	out, err := tb.elevate(context.Background(), nil)
	if err != nil || !strings.Contains(out, "Already") {
		t.Errorf("got %q, %v", out, err)
	}
}

func TestWindowsToolsUnsupportedElsewhere(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("only meaningful off Windows")
	}
	_, exec := newTestToolbox(t, true)
	for _, name := range []string{"run_dism", "list_power_plans", "search_app", "open_settings", "list_apps", "open_app"} {
		res := invoke(t, exec, name, map[string]any{"arguments": "/x", "query": "x", "name": "x"})
		if !res.Failed || !strings.Contains(res.Value, "unsupported on "+runtime.GOOS) {
			t.Errorf("%s: got %q", name, res.Value)
		}
	}
}

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("file body"))
	}))
	defer srv.Close()

	tb, exec := newTestToolbox(t, true)
	res := invoke(t, exec, "download_file", map[string]any{"url": srv.URL + "/files/report.txt?x=1"})
	if res.Failed {
		t.Fatalf("download_file: %s", res.Value)
	}
	data, err := os.ReadFile(filepath.Join(tb.Cwd(), "report.txt"))
	if err != nil || string(data) != "file body" {
		t.Errorf("got %q, %v", data, err)
	}

	res = invoke(t, exec, "download_file", map[string]any{"url": srv.URL + "/missing"})
	if !res.Failed || !strings.Contains(res.Value, "HTTP 404") {
		t.Errorf("expected 404 failure, got %q", res.Value)
	}
	if _, err := os.Stat(filepath.Join(tb.Cwd(), "missing.part")); !os.IsNotExist(err) {
		t.Errorf("partial file left behind")
	}
}

type recordingTranslator struct {
	cached, fresh []string
}

func (r *recordingTranslator) Translate(_ context.Context, text, target string) (string, error) {
	r.cached = append(r.cached, target+":"+text)
	return "cached", nil
}

func (r *recordingTranslator) TranslateFresh(_ context.Context, text, target string) (string, error) {
	r.fresh = append(r.fresh, target+":"+text)
	return "fresh", nil
}

func (r *recordingTranslator) Stats(context.Context) translate.Stats { return translate.Stats{} }

func (r *recordingTranslator) ClearCache(context.Context) (int, error) { return 0, nil }

func TestTranslateTextSkipsCache(t *testing.T) {
	tr := &recordingTranslator{}
	flags := session.NewFlags()
	tb := New(Options{Flags: flags, Translator: tr, WorkDir: t.TempDir()})
	reg := tools.NewRegistry()
	exec := tools.NewExecutor(slog.Default())
	if err := tools.Install(reg, exec, tb.Bindings()...); err != nil {
		t.Fatal(err)
	}

	res := invoke(t, exec, "translate_text", map[string]any{"text": "bom dia", "language": "en"})
	if res.Failed || res.Value != "fresh" {
		t.Fatalf("got %+v", res)
	}
	if len(tr.cached) != 0 {
		t.Errorf("manual translation went through the cache: %v", tr.cached)
	}
	if len(tr.fresh) != 1 || tr.fresh[0] != "en:bom dia" {
		t.Errorf("fresh calls = %v", tr.fresh)
	}
}
