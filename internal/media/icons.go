// ABOUTME: Fire-and-forget downloader for attach-menu bot icons.
// ABOUTME: Fetches icon bytes over HTTP and caches them on disk by URL hash.

package media

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Loader downloads icons into a local cache directory. Completion is never
// awaited by callers; failures are logged and the icon is retried the next
// time it is requested.
type Loader struct {
	client *resty.Client
	dir    string
	logger *slog.Logger
}

// NewLoader creates a Loader caching into dir. Pass nil logger for default.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(0)
	return &Loader{
		client: client,
		dir:    dir,
		logger: logger.With("component", "media"),
	}
}

// Fetch downloads the icon at url unless it is already cached.
func (l *Loader) Fetch(url string) {
	if url == "" {
		return
	}
	path := l.cachePath(url)
	if _, err := os.Stat(path); err == nil {
		return
	}
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		l.logger.Warn("creating icon cache directory", "error", err)
		return
	}

	resp, err := l.client.R().Get(url)
	if err != nil {
		l.logger.Warn("icon fetch failed", "url", url, "error", err)
		return
	}
	if resp.IsError() {
		l.logger.Warn("icon fetch rejected", "url", url, "status", resp.StatusCode())
		return
	}
	if err := os.WriteFile(path, resp.Body(), 0644); err != nil {
		l.logger.Warn("icon cache write failed", "path", path, "error", err)
		return
	}
	l.logger.Debug("icon cached", "url", url, "path", path)
}

// Path returns the cache path the icon at url would be stored under.
func (l *Loader) Path(url string) string {
	return l.cachePath(url)
}

func (l *Loader) cachePath(url string) string {
	sum := sha256.Sum256([]byte(url))
	// The extension comes from the path alone; query and fragment characters
	// must not leak into the filename.
	trimmed := url
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return filepath.Join(l.dir, fmt.Sprintf("%x%s", sum[:8], filepath.Ext(trimmed)))
}
