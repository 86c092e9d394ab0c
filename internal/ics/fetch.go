package ics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	appLog "agenda/internal/log"
)

// Source is one calendar to import: an http(s) URL or a local file path.
type Source struct {
	ID  string
	URL string
}

func (s Source) remote() bool {
	return strings.HasPrefix(s.URL, "http://") || strings.HasPrefix(s.URL, "https://")
}

// validators remembers what the server said about the cached body.
type validators struct {
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	FetchedAt    time.Time `json:"fetched_at"`
}

// Fetcher loads calendars. Remote ones are fetched with conditional
// requests and cached on disk; the cache also serves when the server is
// unreachable.
type Fetcher struct {
	client   *http.Client
	cacheDir string
}

// NewFetcher returns a Fetcher caching under cacheDir. An empty cacheDir
// disables the cache.
func NewFetcher(cacheDir string) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: 15 * time.Second},
		cacheDir: cacheDir,
	}
}

// Fetch returns the body of src.
func (f *Fetcher) Fetch(ctx context.Context, src Source) ([]byte, error) {
	switch {
	case src.URL == "":
		return nil, errors.New("source URL is empty")
	case !src.remote():
		return os.ReadFile(strings.TrimPrefix(src.URL, "file://"))
	}

	dir := f.cacheDir
	if dir != "" {
		sum := sha256.Sum256([]byte(src.URL))
		dir = filepath.Join(dir, hex.EncodeToString(sum[:8]))
	}
	val, cached := f.loadCache(dir)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, err
	}
	if len(cached) > 0 {
		if val.ETag != "" {
			req.Header.Set("If-None-Match", val.ETag)
		}
		if val.LastModified != "" {
			req.Header.Set("If-Modified-Since", val.LastModified)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if len(cached) > 0 {
			appLog.Error("ics fetch failed, using cache", err, "source", src.ID, "url", redactURL(src.URL))
			return cached, nil
		}
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && len(cached) > 0:
		appLog.Debug("ics not modified", "source", src.ID)
		return cached, nil
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if err := f.saveCache(dir, validators{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
			FetchedAt:    time.Now().UTC(),
		}, body); err != nil {
			appLog.Error("ics cache save failed", err, "source", src.ID)
		}
		return body, nil
	case len(cached) > 0:
		appLog.Warn("ics fetch non-OK, using cache", "source", src.ID, "url", redactURL(src.URL), "status", resp.StatusCode)
		return cached, nil
	default:
		return nil, fmt.Errorf("fetch %s: %s", redactURL(src.URL), resp.Status)
	}
}

func (f *Fetcher) loadCache(dir string) (validators, []byte) {
	var val validators
	if dir == "" {
		return val, nil
	}
	body, err := os.ReadFile(filepath.Join(dir, "body.ics"))
	if err != nil {
		return val, nil
	}
	if data, err := os.ReadFile(filepath.Join(dir, "meta.json")); err == nil {
		_ = json.Unmarshal(data, &val)
	}
	return val, body
}

func (f *Fetcher) saveCache(dir string, val validators, body []byte) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	// Body first, so the validators never describe a missing body.
	if err := os.WriteFile(filepath.Join(dir, "body.ics"), body, 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(val, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o600)
}

// redactURL keeps only the scheme and host; calendar URLs often embed
// access tokens.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "(redacted)"
	}
	return u.Scheme + "://" + u.Host + "/...(redacted)"
}
