package translate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Cache stores translations in SQLite keyed by (target language, text).
type Cache struct {
	db *sql.DB
}

// OpenCache opens or creates the cache database at path.
func OpenCache(path string) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	c := &Cache{db: db}
	if err := c.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return c, nil
}

func (c *Cache) initSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS translation_cache (
			text_hash   TEXT NOT NULL,
			target      TEXT NOT NULL,
			source_text TEXT NOT NULL,
			translated  TEXT NOT NULL,
			hits        INTEGER NOT NULL DEFAULT 0,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (text_hash, target)
		);
	`)
	return err
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns a cached translation and whether it was found.
func (c *Cache) Get(ctx context.Context, text, target string) (string, bool, error) {
	var translated string
	err := c.db.QueryRowContext(ctx, `
		SELECT translated FROM translation_cache
		WHERE text_hash = ? AND target = ?
	`, hashText(text), target).Scan(&translated)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	_, _ = c.db.ExecContext(ctx, `
		UPDATE translation_cache SET hits = hits + 1, updated_at = CURRENT_TIMESTAMP
		WHERE text_hash = ? AND target = ?
	`, hashText(text), target)
	return translated, true, nil
}

// Put stores a translation, replacing any previous one.
func (c *Cache) Put(ctx context.Context, text, target, translated string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO translation_cache (text_hash, target, source_text, translated, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(text_hash, target) DO UPDATE SET
			translated = excluded.translated, updated_at = CURRENT_TIMESTAMP
	`, hashText(text), target, text, translated)
	return err
}

// Count returns the number of cached entries.
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translation_cache`).Scan(&n)
	return n, err
}

// Clear removes every entry and returns how many were removed.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM translation_cache`)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Prune keeps the maxEntries most recently used entries.
func (c *Cache) Prune(ctx context.Context, maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}
	_, err := c.db.ExecContext(ctx, `
		DELETE FROM translation_cache WHERE rowid IN (
			SELECT rowid FROM translation_cache
			ORDER BY updated_at DESC
			LIMIT -1 OFFSET ?
		)
	`, maxEntries)
	return err
}

// hashText normalizes whitespace so copies that differ only in trailing
// spaces share an entry.
func hashText(text string) string {
	sum := sha256.Sum256([]byte(strings.Join(strings.Fields(text), " ")))
	return hex.EncodeToString(sum[:])
}
