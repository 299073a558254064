package translate

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func newFakeService(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		q := r.URL.Query()
		if q.Get("client") != "gtx" || q.Get("sl") != "auto" {
			t.Errorf("unexpected query %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[[["Halo ","Hello ",null,null,1],["dunia","world",null,null,1]],null,"en"]`))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestTranslator(t *testing.T, endpoint string, withCache bool) *Translator {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	var cache *Cache
	if withCache {
		var err error
		cache, err = OpenCache(filepath.Join(t.TempDir(), "translations.db"))
		if err != nil {
			t.Fatalf("OpenCache: %v", err)
		}
	}
	tr := New(Config{Endpoint: endpoint, TimeoutSeconds: 5, CacheMaxEntries: 100}, cache, logger)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestTranslateUsesCache(t *testing.T) {
	srv, calls := newFakeService(t)
	tr := newTestTranslator(t, srv.URL, true)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := tr.Translate(ctx, "Hello world", "id")
		if err != nil {
			t.Fatalf("Translate: %v", err)
		}
		if got != "Halo dunia" {
			t.Errorf("got %q", got)
		}
	}
	if n := atomic.LoadInt32(calls); n != 1 {
		t.Errorf("service called %d times, want 1", n)
	}

	stats := tr.Stats(ctx)
	if stats.APICalls != 1 || stats.CacheHits != 2 || stats.CacheEntries != 1 {
		t.Errorf("stats = %+v", stats)
	}

	if _, err := tr.TranslateFresh(ctx, "Hello world", "id"); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(calls); n != 2 {
		t.Errorf("fresh translation must skip the cache, calls = %d", n)
	}

	removed, err := tr.ClearCache(ctx)
	if err != nil || removed != 1 {
		t.Errorf("ClearCache = %d, %v", removed, err)
	}
}

func TestTranslateWithoutCache(t *testing.T) {
	srv, calls := newFakeService(t)
	tr := newTestTranslator(t, srv.URL, false)

	for i := 0; i < 2; i++ {
		if _, err := tr.Translate(context.Background(), "Hello world", "id"); err != nil {
			t.Fatal(err)
		}
	}
	if n := atomic.LoadInt32(calls); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestTranslateServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tr := newTestTranslator(t, srv.URL, true)
	if _, err := tr.Translate(context.Background(), "x", "id"); err == nil {
		t.Error("expected error")
	}
	if n, _ := tr.cache.Count(context.Background()); n != 0 {
		t.Error("failures must not be cached")
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"segments", `[[["a","x"],["b","y"]],null,"en"]`, "ab", false},
		{"not json", `<html>`, "", true},
		{"empty", `[]`, "", true},
		{"no text", `[[],null,"en"]`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseResponse([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCachePrune(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "c.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c", "d"} {
		if err := cache.Put(ctx, s, "en", s+"!"); err != nil {
			t.Fatal(err)
		}
	}
	if err := cache.Prune(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if n, _ := cache.Count(ctx); n != 2 {
		t.Errorf("count after prune = %d", n)
	}
}

func TestCacheNormalizesWhitespace(t *testing.T) {
	cache, err := OpenCache(filepath.Join(t.TempDir(), "c.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()
	ctx := context.Background()

	_ = cache.Put(ctx, "hello   world", "id", "halo dunia")
	got, ok, err := cache.Get(ctx, "hello world ", "id")
	if err != nil || !ok || got != "halo dunia" {
		t.Errorf("Get = %q, %v, %v", got, ok, err)
	}
}
