package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// SnapshotVersion is the current snapshot shape.
const SnapshotVersion = 1

// Snapshot is the single-use record written right before an elevation
// relaunch and consumed by the next process start.
type Snapshot struct {
	Version   int       `json:"version"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	Transcript []Turn `json:"chat_history"`
	FlagValues
}

// NewSnapshot captures the transcript and flags.
func NewSnapshot(sessionID string, transcript *Transcript, flags *Flags) Snapshot {
	return Snapshot{
		Version:    SnapshotVersion,
		SessionID:  sessionID,
		CreatedAt:  time.Now().UTC(),
		Transcript: transcript.Turns(),
		FlagValues: flags.Values(),
	}
}

// Encode serializes the snapshot as JSON.
func (s Snapshot) Encode() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// DecodeSnapshot parses and validates a snapshot.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	for i, turn := range s.Transcript {
		if turn.Role != RoleUser && turn.Role != RoleModel {
			return Snapshot{}, fmt.Errorf("turn %d has invalid role %q", i, turn.Role)
		}
	}
	for _, code := range []string{s.TargetLanguage, s.DisplayLanguage} {
		if code == "" {
			continue
		}
		if _, err := NormalizeLanguage(code); err != nil {
			return Snapshot{}, err
		}
	}
	return s, nil
}
