// Package translate translates clipboard text through the public Google
// translate endpoint, with a persistent cache.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultEndpoint is the keyless web translate endpoint.
const DefaultEndpoint = "https://translate.googleapis.com/translate_a/single"

// Config configures the translator.
type Config struct {
	// Endpoint overrides the translate URL.
	Endpoint string `yaml:"endpoint"`

	// TimeoutSeconds bounds each request (default: 10).
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// CachePath is the SQLite cache file. Empty disables the cache.
	CachePath string `yaml:"cache_path"`

	// CacheMaxEntries caps the cache size (default: 5000).
	CacheMaxEntries int `yaml:"cache_max_entries"`

	// MaxChars skips texts longer than this (default: 5000).
	MaxChars int `yaml:"max_chars"`
}

// DefaultConfig returns the default settings. CachePath is filled by the
// caller from the state dir.
func DefaultConfig() Config {
	return Config{
		Endpoint:        DefaultEndpoint,
		TimeoutSeconds:  10,
		CacheMaxEntries: 5000,
		MaxChars:        5000,
	}
}

// Stats counts where translations came from during this session.
type Stats struct {
	APICalls     int
	CacheHits    int
	CacheEntries int
}

// Translator translates text.
type Translator struct {
	endpoint   string
	maxChars   int
	maxEntries int
	client     *http.Client
	cache      *Cache
	logger     *slog.Logger

	mu        sync.Mutex
	apiCalls  int
	cacheHits int
}

// New creates a translator. A nil cache disables caching.
func New(cfg Config, cache *Cache, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Translator{
		endpoint:   cfg.Endpoint,
		maxChars:   cfg.MaxChars,
		maxEntries: cfg.CacheMaxEntries,
		client:     &http.Client{Timeout: timeout},
		cache:      cache,
		logger:     logger.With("component", "translate"),
	}
}

// Translate returns text in the target language, using the cache.
func (t *Translator) Translate(ctx context.Context, text, target string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if t.maxChars > 0 && len(text) > t.maxChars {
		return "", fmt.Errorf("text too long to translate (%d chars, max %d)", len(text), t.maxChars)
	}

	if t.cache != nil {
		if cached, ok, err := t.cache.Get(ctx, text, target); err != nil {
			t.logger.Warn("translation cache read failed", "error", err)
		} else if ok {
			t.mu.Lock()
			t.cacheHits++
			t.mu.Unlock()
			return cached, nil
		}
	}

	translated, err := t.fetch(ctx, text, target)
	if err != nil {
		return "", err
	}

	if t.cache != nil {
		if err := t.cache.Put(ctx, text, target, translated); err != nil {
			t.logger.Warn("translation cache write failed", "error", err)
		} else if err := t.cache.Prune(ctx, t.maxEntries); err != nil {
			t.logger.Warn("translation cache prune failed", "error", err)
		}
	}
	return translated, nil
}

// TranslateFresh always asks the service, skipping the cache.
func (t *Translator) TranslateFresh(ctx context.Context, text, target string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	return t.fetch(ctx, text, target)
}

// Stats returns session counters and the cache size.
func (t *Translator) Stats(ctx context.Context) Stats {
	t.mu.Lock()
	s := Stats{APICalls: t.apiCalls, CacheHits: t.cacheHits}
	t.mu.Unlock()
	if t.cache != nil {
		if n, err := t.cache.Count(ctx); err == nil {
			s.CacheEntries = n
		}
	}
	return s
}

// ClearCache empties the cache and returns the number of removed entries.
func (t *Translator) ClearCache(ctx context.Context) (int, error) {
	if t.cache == nil {
		return 0, nil
	}
	n, err := t.cache.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear translation cache: %w", err)
	}
	t.logger.Info("translation cache cleared", "entries", n)
	return n, nil
}

// Close releases the cache.
func (t *Translator) Close() error {
	if t.cache == nil {
		return nil
	}
	return t.cache.Close()
}

func (t *Translator) fetch(ctx context.Context, text, target string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", target)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translate request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("translate API returned %d", resp.StatusCode)
	}

	translated, err := parseResponse(body)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	t.apiCalls++
	t.mu.Unlock()

	t.logger.Debug("translated",
		"target", target,
		"chars", len(text),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return translated, nil
}

// parseResponse extracts the text from [[["translated","source",...],...],...].
func parseResponse(body []byte) (string, error) {
	var raw []any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("parsing response: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("empty translate response")
	}
	segments, ok := raw[0].([]any)
	if !ok {
		return "", fmt.Errorf("unexpected translate response shape")
	}

	var b strings.Builder
	for _, seg := range segments {
		parts, ok := seg.([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		if s, ok := parts[0].(string); ok {
			b.WriteString(s)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("translate response has no text")
	}
	return b.String(), nil
}
