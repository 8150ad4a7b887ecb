package netcache

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// ErrNotFound is returned when the server answers 404 and nothing is cached.
var ErrNotFound = errors.New("remote resource not found")

// Cache keeps remote template files on disk and revalidates them with
// ETag/Last-Modified before reuse.
type Cache struct {
	Dir    string
	Client *http.Client
	// Retries is the number of attempts of a full fetch.
	Retries int
	// Backoff is the delay before the second attempt; it doubles afterwards.
	Backoff time.Duration
}

// New returns a Cache rooted at dir.
func New(dir string) *Cache {
	return &Cache{
		Dir:     dir,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Retries: 3,
		Backoff: 2 * time.Second,
	}
}

// entry is the sidecar stored next to a cached payload.
type entry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	Fetched      time.Time `json:"fetched"`
}

type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("HTTP %d", e.code) }

// Get returns the local path of url's payload and whether it was served
// from the cache. A cached copy is revalidated first; when revalidation
// fails for any reason other than cancellation the stale copy is used.
func (c *Cache) Get(ctx context.Context, url string) (string, bool, error) {
	if prev, ok := c.lookup(url); ok {
		fresh, err := c.fetch(ctx, url, prev)
		switch {
		case err == nil && fresh:
			return c.payload(url), false, nil
		case err == nil:
			slog.Debug("remote unchanged", "url", url)
			return c.payload(url), true, nil
		case ctx.Err() != nil:
			return "", false, ctx.Err()
		}
		slog.Warn("using cached copy", "url", url, "error", err)
		return c.payload(url), true, nil
	}

	var lastErr error
	for attempt := range max(c.Retries, 1) {
		if attempt > 0 {
			t := time.NewTimer(c.Backoff << (attempt - 1))
			select {
			case <-ctx.Done():
				t.Stop()
				return "", false, ctx.Err()
			case <-t.C:
			}
		}
		_, err := c.fetch(ctx, url, nil)
		if err == nil {
			return c.payload(url), false, nil
		}
		lastErr = err
		if se := (*statusError)(nil); errors.As(err, &se) {
			if se.code == http.StatusNotFound {
				return "", false, fmt.Errorf("%s: %w", url, ErrNotFound)
			}
			if se.code < 500 {
				break
			}
		}
		slog.Debug("fetch failed", "url", url, "attempt", attempt+1, "error", err)
	}
	return "", false, fmt.Errorf("fetching %s: %w", url, lastErr)
}

// GetBytes is Get followed by reading the cached payload.
func (c *Cache) GetBytes(ctx context.Context, url string) ([]byte, bool, error) {
	path, fromCache, err := c.Get(ctx, url)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	return b, fromCache, err
}

// fetch issues one GET, conditional when prev is set. It reports whether a
// new payload was stored; a 304 answer stores nothing.
func (c *Cache) fetch(ctx context.Context, url string, prev *entry) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	if prev != nil {
		if prev.ETag != "" {
			req.Header.Set("If-None-Match", prev.ETag)
		}
		if prev.LastModified != "" {
			req.Header.Set("If-Modified-Since", prev.LastModified)
		}
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	switch {
	case prev != nil && resp.StatusCode == http.StatusNotModified:
		return false, nil
	case resp.StatusCode/100 != 2:
		return false, &statusError{code: resp.StatusCode}
	}
	e := entry{
		URL:          url,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		Fetched:      time.Now().UTC(),
	}
	if err := c.store(e, resp.Body); err != nil {
		return false, err
	}
	slog.Debug("cached remote", "url", url, "path", c.payload(url))
	return true, nil
}

// lookup reads the sidecar of url. It only succeeds when the payload is
// present as well.
func (c *Cache) lookup(url string) (*entry, bool) {
	b, err := os.ReadFile(c.sidecar(url))
	if err != nil {
		return nil, false
	}
	var e entry
	if json.Unmarshal(b, &e) != nil || e.URL != url {
		return nil, false
	}
	if st, err := os.Stat(c.payload(url)); err != nil || st.IsDir() {
		return nil, false
	}
	return &e, true
}

// store writes the payload before the sidecar so a sidecar never points at
// a partial download.
func (c *Cache) store(e entry, body io.Reader) error {
	if err := writeAtomic(c.payload(e.URL), body); err != nil {
		return err
	}
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomic(c.sidecar(e.URL), bytes.NewReader(b))
}

func (c *Cache) payload(url string) string { return filepath.Join(c.Dir, key(url)+".data") }
func (c *Cache) sidecar(url string) string { return filepath.Join(c.Dir, key(url)+".json") }

func key(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func writeAtomic(dst string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".*.tmp")
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Chmod(f.Name(), 0o644)
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), dst)
}
