package tools

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"
)

func newTestExecutor(t *testing.T, bindings ...Binding) (*Registry, *Executor) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	reg := NewRegistry()
	exec := NewExecutor(logger)
	if err := Install(reg, exec, bindings...); err != nil {
		t.Fatalf("Install: %v", err)
	}
	return reg, exec
}

func echoBinding() Binding {
	return Binding{
		Spec: Spec{
			Name: "echo",
			Params: []Param{
				{Name: "text", Type: TypeString, Required: true},
				{Name: "times", Type: TypeInteger},
			},
		},
		Handler: func(_ context.Context, args Args) (string, error) {
			n, err := args.Int("times", 1)
			if err != nil {
				return "", err
			}
			return strings.Repeat(args.String("text", ""), n), nil
		},
	}
}

func TestExecutorInvoke(t *testing.T) {
	boom := Binding{
		Spec: Spec{Name: "boom"},
		Handler: func(context.Context, Args) (string, error) {
			return "", errors.New("disk on fire")
		},
	}
	panicky := Binding{
		Spec: Spec{Name: "panicky"},
		Handler: func(context.Context, Args) (string, error) {
			panic("nil map")
		},
	}
	silent := Binding{
		Spec:    Spec{Name: "silent"},
		Handler: func(context.Context, Args) (string, error) { return "", nil },
	}
	_, exec := newTestExecutor(t, echoBinding(), boom, panicky, silent)

	tests := []struct {
		name       string
		call       Call
		wantFailed bool
		wantSubstr string
	}{
		{"success", Call{ID: "c1", Name: "echo", Args: map[string]any{"text": "ab", "times": float64(2)}}, false, "abab"},
		{"unknown tool", Call{Name: "format_disk"}, true, "not found"},
		{"handler error", Call{Name: "boom"}, true, "disk on fire"},
		{"handler panic", Call{Name: "panicky"}, true, "panic: nil map"},
		{"missing required", Call{Name: "echo"}, true, `missing required argument \"text\"`},
		{"bad integer", Call{Name: "echo", Args: map[string]any{"text": "x", "times": 1.5}}, true, "must be an integer"},
		{"empty output", Call{Name: "silent"}, false, "OK"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := exec.Invoke(context.Background(), tt.call)
			if res.Name != tt.call.Name || res.ID != tt.call.ID {
				t.Errorf("result identity = %s/%s, want %s/%s", res.ID, res.Name, tt.call.ID, tt.call.Name)
			}
			if res.Failed != tt.wantFailed {
				t.Errorf("Failed = %v, want %v (value %q)", res.Failed, tt.wantFailed, res.Value)
			}
			if !strings.Contains(res.Value, tt.wantSubstr) {
				t.Errorf("value %q does not contain %q", res.Value, tt.wantSubstr)
			}
		})
	}
}

func TestExecutorErrorPayloadIsJSON(t *testing.T) {
	_, exec := newTestExecutor(t)
	res := exec.Invoke(context.Background(), Call{Name: "ghost"})

	var payload map[string]string
	if err := json.Unmarshal([]byte(res.Value), &payload); err != nil {
		t.Fatalf("error payload is not JSON: %v", err)
	}
	if payload["status"] != "error" || payload["tool"] != "ghost" {
		t.Errorf("payload = %v", payload)
	}
}

func TestExecutorDropsUndeclaredArgs(t *testing.T) {
	var seen Args
	b := Binding{
		Spec: Spec{Name: "inspect", Params: []Param{{Name: "path", Type: TypeString}}},
		Handler: func(_ context.Context, args Args) (string, error) {
			seen = args
			return "ok", nil
		},
	}
	_, exec := newTestExecutor(t, b)
	exec.Invoke(context.Background(), Call{Name: "inspect", Args: map[string]any{"path": "/tmp", "rm": true}})

	if !seen.Has("path") || seen.Has("rm") {
		t.Errorf("args = %v, want only path", seen)
	}
}

func TestExecutorTimeout(t *testing.T) {
	slow := Binding{
		Spec: Spec{Name: "slow"},
		Handler: func(ctx context.Context, _ Args) (string, error) {
			<-ctx.Done()
			return "", nil
		},
	}
	_, exec := newTestExecutor(t, slow)
	exec.SetTimeout(20 * time.Millisecond)

	res := exec.Invoke(context.Background(), Call{Name: "slow"})
	if !res.Failed || !strings.Contains(res.Value, "timed out") {
		t.Errorf("expected timeout result, got %+v", res)
	}
}

func TestExecutorSkipsTimeoutForSelfTimedTools(t *testing.T) {
	own := Binding{
		Spec: Spec{Name: "own"},
		Handler: func(ctx context.Context, _ Args) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(100 * time.Millisecond):
				return "finished", nil
			}
		},
		SelfTimed: true,
	}
	_, exec := newTestExecutor(t, own)
	exec.SetTimeout(10 * time.Millisecond)

	res := exec.Invoke(context.Background(), Call{Name: "own"})
	if res.Failed || res.Value != "finished" {
		t.Errorf("got %+v, want the handler's own result", res)
	}
}

func TestInstallRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	exec := NewExecutor(nil)
	err := Install(reg, exec, echoBinding(), echoBinding())
	if !errors.Is(err, ErrDuplicateName) {
		t.Errorf("expected ErrDuplicateName, got %v", err)
	}
}

func TestInstallBindsEveryTool(t *testing.T) {
	reg, exec := newTestExecutor(t, echoBinding())
	for _, s := range reg.Specs() {
		if !exec.Bound(s.Name) {
			t.Errorf("%s registered without handler", s.Name)
		}
	}
	if exec.Bound("missing") {
		t.Error("unknown tool reported as bound")
	}
}

func TestArgsGetters(t *testing.T) {
	args := Args{"n": float64(3), "s": "42", "b": "true", "f": float64(1)}

	if n, err := args.Int("n", 0); err != nil || n != 3 {
		t.Errorf("Int(n) = %d, %v", n, err)
	}
	if n, err := args.Int("s", 0); err != nil || n != 42 {
		t.Errorf("Int(s) = %d, %v", n, err)
	}
	if n, _ := args.Int("absent", 7); n != 7 {
		t.Errorf("Int default = %d", n)
	}
	if !args.Bool("b", false) || !args.Bool("f", false) {
		t.Error("Bool coercion failed")
	}
	if args.String("n", "") != "3" {
		t.Errorf("String(n) = %q", args.String("n", ""))
	}
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"abcdé", 5, "abcd"},
		{"abcdé", 6, "abcdé"},
		{"日本語", 4, "日"},
		{"日本語", 2, ""},
		{"", 0, ""},
	}
	for _, tt := range tests {
		got := Truncate(tt.in, tt.n)
		if got != tt.want || !utf8.ValidString(got) {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
