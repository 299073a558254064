// Package elevation carries a live session across a privilege-elevation
// relaunch. The protocol has two phases: Suspend writes the session snapshot
// and hands off to an elevated process; Resume, at the next start, reads the
// snapshot, deletes it and returns it for restoration.
package elevation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jholhewres/smartshell/pkg/smartshell/session"
)

const (
	// SnapshotFileName is the default snapshot file inside the state dir.
	SnapshotFileName = "session_state.json"

	// StateFileFlag is the command-line flag the relaunched process receives
	// with the absolute snapshot path.
	StateFileFlag = "--state-file"
)

var (
	// ErrSnapshotCorrupt is returned by Resume when the snapshot existed but
	// could not be decoded. The file is already gone when this is returned.
	ErrSnapshotCorrupt = errors.New("session snapshot is corrupt")

	// ErrAlreadyElevated is returned by Elevate when the process already has
	// administrator rights.
	ErrAlreadyElevated = errors.New("already running with administrator rights")
)

// Relauncher starts a new instance of the current executable.
type Relauncher interface {
	// IsElevated reports whether the current process has admin rights.
	IsElevated() bool

	// Elevate starts the executable with elevated rights and the given extra
	// arguments. A nil error means the new process has been launched.
	Elevate(ctx context.Context, extraArgs []string) error

	// Restart starts the executable again with the current rights.
	Restart(ctx context.Context, extraArgs []string) error
}

// Bridge owns the snapshot file.
type Bridge struct {
	path       string
	relauncher Relauncher
	terminate  func(code int)
	logger     *slog.Logger
}

// NewBridge creates a bridge for the snapshot at path. A nil terminate
// defaults to os.Exit.
func NewBridge(path string, relauncher Relauncher, terminate func(code int), logger *slog.Logger) *Bridge {
	if terminate == nil {
		terminate = os.Exit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		path:       path,
		relauncher: relauncher,
		terminate:  terminate,
		logger:     logger.With("component", "elevation"),
	}
}

// Path returns the snapshot file path.
func (b *Bridge) Path() string {
	return b.path
}

// Pending reports whether a snapshot is waiting to be restored.
func (b *Bridge) Pending() bool {
	_, err := os.Stat(b.path)
	return err == nil
}

// IsElevated reports whether the current process already has admin rights.
func (b *Bridge) IsElevated() bool {
	return b.relauncher != nil && b.relauncher.IsElevated()
}

// Suspend writes the snapshot atomically: readers see either no file or the
// complete record.
func (b *Bridge) Suspend(snap session.Snapshot) error {
	data, err := snap.Encode()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		cleanup()
		return fmt.Errorf("install snapshot: %w", err)
	}

	b.logger.Info("session suspended",
		"path", b.path,
		"turns", len(snap.Transcript),
		"session_id", snap.SessionID,
	)
	return nil
}

// Resume consumes the snapshot. It returns (nil, nil) when there is none.
// The file is deleted before decoding, so a snapshot is restored at most once.
func (b *Bridge) Resume() (*session.Snapshot, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		// A snapshot that cannot be removed would be replayed on every start.
		return nil, fmt.Errorf("remove snapshot: %w", err)
	}

	snap, err := session.DecodeSnapshot(data)
	if err != nil {
		b.logger.Warn("discarding unreadable session snapshot", "path", b.path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}

	b.logger.Info("session resumed",
		"path", b.path,
		"turns", len(snap.Transcript),
		"session_id", snap.SessionID,
	)
	return &snap, nil
}

// Discard removes a pending snapshot, if any.
func (b *Bridge) Discard() error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("discard snapshot: %w", err)
	}
	return nil
}

// Elevate suspends the session and relaunches with admin rights. On success
// the current process is terminated and Elevate does not return. On failure
// the snapshot is discarded and the session keeps running.
func (b *Bridge) Elevate(ctx context.Context, snap session.Snapshot) error {
	if b.relauncher == nil {
		return fmt.Errorf("elevation is not supported on this platform")
	}
	if b.relauncher.IsElevated() {
		return ErrAlreadyElevated
	}

	if err := b.Suspend(snap); err != nil {
		return err
	}

	if err := b.relauncher.Elevate(ctx, b.relaunchArgs()); err != nil {
		b.logger.Warn("elevation failed, session continues", "error", err)
		if derr := b.Discard(); derr != nil {
			b.logger.Error("failed to discard snapshot", "error", derr)
		}
		return fmt.Errorf("elevate: %w", err)
	}

	b.logger.Info("elevated process launched, exiting")
	b.terminate(0)
	return nil
}

// Restart relaunches the program with the current rights. The session is not
// carried over.
func (b *Bridge) Restart(ctx context.Context) error {
	if b.relauncher == nil {
		return fmt.Errorf("restart is not supported on this platform")
	}
	if err := b.relauncher.Restart(ctx, nil); err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	b.logger.Info("restarted process launched, exiting")
	b.terminate(0)
	return nil
}

func (b *Bridge) relaunchArgs() []string {
	path := b.path
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return []string{StateFileFlag, path}
}
