package session

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// DefaultLanguage is used for both the translation target and the display
// language when nothing else is configured.
const DefaultLanguage = "en"

// FlagValues is a plain copy of the session flags.
type FlagValues struct {
	MonitoringEnabled bool   `json:"monitoring_enabled"`
	Muted             bool   `json:"is_muted"`
	TargetLanguage    string `json:"target_language"`
	DisplayLanguage   string `json:"display_language"`
}

// Flags are the session switches read by the clipboard monitor and written
// by session tools. All access goes through the single-field accessors.
type Flags struct {
	mu     sync.RWMutex
	values FlagValues
}

// NewFlags creates flags with monitoring on, sound on and the default language.
func NewFlags() *Flags {
	return &Flags{values: FlagValues{
		MonitoringEnabled: true,
		TargetLanguage:    DefaultLanguage,
		DisplayLanguage:   DefaultLanguage,
	}}
}

func (f *Flags) Monitoring() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values.MonitoringEnabled
}

func (f *Flags) SetMonitoring(on bool) {
	f.mu.Lock()
	f.values.MonitoringEnabled = on
	f.mu.Unlock()
}

func (f *Flags) Muted() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values.Muted
}

func (f *Flags) SetMuted(muted bool) {
	f.mu.Lock()
	f.values.Muted = muted
	f.mu.Unlock()
}

func (f *Flags) TargetLanguage() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values.TargetLanguage
}

// SetTargetLanguage validates code as a BCP 47 tag before storing it.
func (f *Flags) SetTargetLanguage(code string) error {
	code, err := NormalizeLanguage(code)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.values.TargetLanguage = code
	f.mu.Unlock()
	return nil
}

func (f *Flags) DisplayLanguage() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values.DisplayLanguage
}

func (f *Flags) SetDisplayLanguage(code string) error {
	code, err := NormalizeLanguage(code)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.values.DisplayLanguage = code
	f.mu.Unlock()
	return nil
}

// Values returns a copy of all flags.
func (f *Flags) Values() FlagValues {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values
}

// Apply overwrites all flags at once. Empty language codes keep the current value.
func (f *Flags) Apply(v FlagValues) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values.MonitoringEnabled = v.MonitoringEnabled
	f.values.Muted = v.Muted
	if v.TargetLanguage != "" {
		f.values.TargetLanguage = v.TargetLanguage
	}
	if v.DisplayLanguage != "" {
		f.values.DisplayLanguage = v.DisplayLanguage
	}
}

// NormalizeLanguage checks that code is a well-formed language tag and
// returns it trimmed. The caller's spelling is kept ("zh-CN" stays "zh-CN")
// since the translation endpoint expects those exact codes.
func NormalizeLanguage(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("language code is empty")
	}
	if _, err := language.Parse(code); err != nil {
		return "", fmt.Errorf("invalid language code %q: %w", code, err)
	}
	return code, nil
}
