package clipboard

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/jholhewres/smartshell/pkg/smartshell/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeReader struct {
	mu   sync.Mutex
	text string
}

func (r *fakeReader) ReadAll() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.text, nil
}

func (r *fakeReader) set(s string) {
	r.mu.Lock()
	r.text = s
	r.mu.Unlock()
}

type collector struct {
	mu  sync.Mutex
	got []string
	ch  chan string
}

func newCollector() *collector {
	return &collector{ch: make(chan string, 16)}
}

func (c *collector) handle(_ context.Context, text string) {
	c.mu.Lock()
	c.got = append(c.got, text)
	c.mu.Unlock()
	c.ch <- text
}

func (c *collector) wait(t *testing.T) string {
	t.Helper()
	select {
	case s := <-c.ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for clipboard handler")
		return ""
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.got)
}

func startMonitor(t *testing.T, reader Reader, flags *session.Flags, h Handler) func() {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	m := NewMonitor(Config{PollIntervalMillis: 5, MinChars: 2}, reader, flags, h, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestMonitorReportsChanges(t *testing.T) {
	reader := &fakeReader{text: "already there"}
	flags := session.NewFlags()
	c := newCollector()
	stop := startMonitor(t, reader, flags, c.handle)
	defer stop()

	time.Sleep(20 * time.Millisecond)
	if c.count() != 0 {
		t.Fatal("initial clipboard content must not be reported")
	}

	reader.set("  new text  ")
	if got := c.wait(t); got != "new text" {
		t.Errorf("handler got %q", got)
	}
}

func TestMonitorRespectsMonitoringFlag(t *testing.T) {
	reader := &fakeReader{}
	flags := session.NewFlags()
	flags.SetMonitoring(false)
	c := newCollector()
	stop := startMonitor(t, reader, flags, c.handle)
	defer stop()

	reader.set("while paused")
	time.Sleep(30 * time.Millisecond)
	if c.count() != 0 {
		t.Fatal("paused monitor reported text")
	}

	flags.SetMonitoring(true)
	time.Sleep(30 * time.Millisecond)
	if c.count() != 0 {
		t.Fatal("text copied while paused must not be replayed")
	}

	reader.set("after resume")
	if got := c.wait(t); got != "after resume" {
		t.Errorf("handler got %q", got)
	}
}

func TestMonitorIgnoresShortText(t *testing.T) {
	reader := &fakeReader{}
	c := newCollector()
	stop := startMonitor(t, reader, session.NewFlags(), c.handle)
	defer stop()

	reader.set("x")
	time.Sleep(30 * time.Millisecond)
	reader.set("long enough")
	if got := c.wait(t); got != "long enough" {
		t.Errorf("handler got %q", got)
	}
}

type stubTranslator struct{ target string }

func (s *stubTranslator) Translate(_ context.Context, text, target string) (string, error) {
	s.target = target
	return "[" + target + "] " + text, nil
}

type stubSpeaker struct{ spoken []string }

func (s *stubSpeaker) Speak(_ context.Context, text string) error {
	s.spoken = append(s.spoken, text)
	return nil
}

func TestTranslateAndSpeak(t *testing.T) {
	flags := session.NewFlags()
	if err := flags.SetTargetLanguage("id"); err != nil {
		t.Fatal(err)
	}
	tr := &stubTranslator{}
	sp := &stubSpeaker{}
	var shown string

	h := TranslateAndSpeak(tr, sp, flags, func(_, translated string) { shown = translated }, nil)
	h(context.Background(), "hello")

	if tr.target != "id" {
		t.Errorf("target = %q", tr.target)
	}
	if shown != "[id] hello" || len(sp.spoken) != 1 || sp.spoken[0] != "[id] hello" {
		t.Errorf("shown=%q spoken=%v", shown, sp.spoken)
	}
}
