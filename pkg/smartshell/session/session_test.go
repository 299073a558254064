package session

import (
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jholhewres/smartshell/pkg/smartshell/tools"
)

func sampleTranscript() *Transcript {
	calls := []tools.Call{
		{ID: "1", Name: "change_directory", Args: map[string]any{"path": "/tmp"}},
		{ID: "2", Name: "list_directory"},
	}
	results := []tools.Result{
		{ID: "1", Name: "change_directory", Value: "now in /tmp"},
		{ID: "2", Name: "list_directory", Value: "--- CONTENTS OF /tmp ---", Failed: false},
	}
	return NewTranscript(
		TextTurn(RoleUser, "go to tmp and list it"),
		CallTurn("", calls),
		ResultTurn(results),
		TextTurn(RoleModel, "Done."),
	)
}

func TestTranscriptIsAppendOnlyCopy(t *testing.T) {
	tr := sampleTranscript()
	turns := tr.Turns()
	turns[0] = TextTurn(RoleModel, "tampered")

	if got := tr.Turns()[0].Text(); got != "go to tmp and list it" {
		t.Errorf("Turns() leaked internal slice, first turn = %q", got)
	}

	tr.Append(TextTurn(RoleUser, "next"))
	if tr.Len() != 5 {
		t.Errorf("Len = %d, want 5", tr.Len())
	}
}

func TestCallTurnKeepsOrderAndText(t *testing.T) {
	turn := CallTurn("thinking", []tools.Call{{Name: "a"}, {Name: "b"}})
	if turn.Role != RoleModel {
		t.Errorf("role = %s", turn.Role)
	}
	if turn.Parts[0].Text != "thinking" {
		t.Errorf("first part should be the text")
	}
	calls := turn.Calls()
	if len(calls) != 2 || calls[0].Name != "a" || calls[1].Name != "b" {
		t.Errorf("calls = %+v", calls)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	flags := NewFlags()
	flags.SetMonitoring(true)
	flags.SetMuted(false)
	if err := flags.SetTargetLanguage("en"); err != nil {
		t.Fatal(err)
	}
	if err := flags.SetDisplayLanguage("id"); err != nil {
		t.Fatal(err)
	}
	tr := sampleTranscript()

	data, err := NewSnapshot("sess-1", tr, flags).Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot: %v", err)
	}

	restored := NewFlags()
	restored.SetMonitoring(false)
	restored.SetMuted(true)
	restored.Apply(got.FlagValues)

	want := FlagValues{MonitoringEnabled: true, Muted: false, TargetLanguage: "en", DisplayLanguage: "id"}
	if diff := cmp.Diff(want, restored.Values()); diff != "" {
		t.Errorf("flags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(tr.Turns(), got.Transcript); diff != "" {
		t.Errorf("transcript mismatch (-want +got):\n%s", diff)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("session id = %q", got.SessionID)
	}
}

func TestSnapshotUsesLegacyFieldNames(t *testing.T) {
	data, err := NewSnapshot("", NewTranscript(), NewFlags()).Encode()
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"chat_history", "monitoring_enabled", "is_muted", "target_language", "display_language"} {
		if !strings.Contains(string(data), `"`+key+`"`) {
			t.Errorf("encoded snapshot lacks %q", key)
		}
	}
}

func TestDecodeSnapshotRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"truncated", `{"version":1,"chat_history":[`},
		{"wrong version", `{"version":99}`},
		{"bad role", `{"version":1,"chat_history":[{"role":"system","parts":[]}]}`},
		{"bad language", `{"version":1,"target_language":"not a language!!"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeSnapshot([]byte(tt.data)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFlagsLanguageValidation(t *testing.T) {
	f := NewFlags()
	if err := f.SetTargetLanguage("zh-CN"); err != nil {
		t.Errorf("zh-CN rejected: %v", err)
	}
	if f.TargetLanguage() != "zh-CN" {
		t.Errorf("target = %q", f.TargetLanguage())
	}
	if err := f.SetTargetLanguage(""); err == nil {
		t.Error("empty code accepted")
	}
	if f.TargetLanguage() != "zh-CN" {
		t.Error("failed set must not change the value")
	}
}

func TestFlagsConcurrentAccess(t *testing.T) {
	f := NewFlags()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			f.SetMuted(i%2 == 0)
			f.SetMonitoring(i%2 == 1)
		}(i)
		go func() {
			defer wg.Done()
			_ = f.Muted()
			_ = f.Values()
		}()
	}
	wg.Wait()
}
