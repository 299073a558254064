package copilot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("SMARTSHELL_TEST_MODEL", "gemini-x")

	tests := []struct {
		in   string
		want string
	}{
		{"model: ${SMARTSHELL_TEST_MODEL}", "model: gemini-x"},
		{"model: ${SMARTSHELL_UNSET_VAR:-fallback}", "model: fallback"},
		{"model: ${SMARTSHELL_UNSET_VAR}", "model: ${SMARTSHELL_UNSET_VAR}"},
	}
	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	_, err := expandEnvVarsWithValidation("api_key: ${SMARTSHELL_UNSET_VAR:?set the key}\n")
	if err == nil || !strings.Contains(err.Error(), "set the key") {
		t.Errorf("expected required-var error, got %v", err)
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Setenv("SMARTSHELL_API_KEY", "from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "smartshell.yaml")
	yaml := `
model: gemini-2.5-pro
api:
  provider: gemini
orchestrator:
  max_rounds: 4
session:
  display_language: id
  state_dir: state
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile: %v", err)
	}
	if cfg.Model != "gemini-2.5-pro" || cfg.Orchestrator.MaxRounds != 4 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Orchestrator.RoundTimeoutSeconds != int(DefaultRoundTimeout.Seconds()) {
		t.Error("defaults for absent fields must be kept")
	}
	if !cfg.Session.Monitoring {
		t.Error("monitoring default must survive a partial session section")
	}
	if cfg.Session.StateDir != filepath.Join(dir, "state") {
		t.Errorf("state dir = %q", cfg.Session.StateDir)
	}
	if cfg.API.APIKey != "from-env" {
		t.Errorf("api key = %q", cfg.API.APIKey)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestSaveConfigNeverWritesKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.API.APIKey = "AIza-super-secret"
	cfg.Session.DisplayLanguage = "fr"

	if err := SaveConfigToFile(cfg, path); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "super-secret") {
		t.Error("API key written in clear text")
	}

	back, err := ParseConfig(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.Session.DisplayLanguage != "fr" {
		t.Errorf("display language = %q", back.Session.DisplayLanguage)
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.Provider = "anthropic"
	if err := cfg.Validate(); err == nil {
		t.Error("unknown provider accepted")
	}
}
