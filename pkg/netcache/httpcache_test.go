package netcache

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c := New(t.TempDir())
	c.Backoff = time.Millisecond
	return c
}

func TestGetRevalidatesWithETag(t *testing.T) {
	var hits, conditional atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("If-None-Match") == `"v1"` {
			conditional.Add(1)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("class {{ name }} {};"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	ctx := context.Background()

	body, fromCache, err := c.GetBytes(ctx, srv.URL+"/class.h")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	if fromCache {
		t.Errorf("first fetch reported a cache hit")
	}
	if string(body) != "class {{ name }} {};" {
		t.Errorf("body = %q", body)
	}

	body, fromCache, err = c.GetBytes(ctx, srv.URL+"/class.h")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if !fromCache {
		t.Errorf("second fetch should reuse the cached copy")
	}
	if string(body) != "class {{ name }} {};" {
		t.Errorf("cached body = %q", body)
	}
	if hits.Load() != 2 || conditional.Load() != 1 {
		t.Errorf("hits = %d, conditional = %d", hits.Load(), conditional.Load())
	}
}

func TestGetReplacesChangedContent(t *testing.T) {
	var version atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if version.Load() == 0 {
			w.Header().Set("ETag", `"a"`)
			_, _ = w.Write([]byte("old"))
			return
		}
		w.Header().Set("ETag", `"b"`)
		_, _ = w.Write([]byte("new"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	if _, _, err := c.GetBytes(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	version.Store(1)
	body, fromCache, err := c.GetBytes(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if fromCache || string(body) != "new" {
		t.Errorf("got %q fromCache=%v, want fresh %q", body, fromCache, "new")
	}
}

func TestGetFallsBackToCacheOnServerError(t *testing.T) {
	var broken atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if broken.Load() {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		_, _ = w.Write([]byte("cached"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	if _, _, err := c.GetBytes(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	broken.Store(true)
	body, fromCache, err := c.GetBytes(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("expected fallback, got %v", err)
	}
	if !fromCache || string(body) != "cached" {
		t.Errorf("got %q fromCache=%v", body, fromCache)
	}
}

func TestGetNotFound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := newTestCache(t)
	_, _, err := c.Get(context.Background(), srv.URL+"/missing.h")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if hits.Load() != 1 {
		t.Errorf("404 should not be retried, got %d requests", hits.Load())
	}
}

func TestGetRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	body, _, err := c.GetBytes(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "ok" || hits.Load() != 3 {
		t.Errorf("body = %q after %d requests", body, hits.Load())
	}
}

func TestGetCancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestCache(t)
	c.Backoff = time.Hour
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := c.Get(ctx, srv.URL)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestStoreLeavesPayloadAndSidecar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"e1"`)
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := newTestCache(t)
	if _, _, err := c.Get(context.Background(), srv.URL); err != nil {
		t.Fatal(err)
	}
	files, err := filepath.Glob(filepath.Join(c.Dir, "*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("cache dir holds %v, want payload and sidecar only", files)
	}
	b, err := os.ReadFile(c.sidecar(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		t.Fatal(err)
	}
	if e.URL != srv.URL || e.ETag != `"e1"` || e.Fetched.IsZero() {
		t.Errorf("sidecar = %+v", e)
	}
}
