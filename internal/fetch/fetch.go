// Package fetch downloads test data files from a remote host into a local
// cache, verifying each file by its MD5 checksum.
package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	// DefaultRetries is the number of download attempts per file.
	DefaultRetries = 5

	// ConnectionTimeout bounds connection setup and the wait for response headers.
	ConnectionTimeout = 60 * time.Second

	checksumChunkSize = 64 * 1024
)

// Fetcher fetches files from host into dir.
type Fetcher struct {
	host    string
	dir     string
	client  *http.Client
	retries int
	workers int
	logger  *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets the HTTP client used for downloads.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithRetries sets the number of download attempts per file.
func WithRetries(n int) Option {
	return func(f *Fetcher) { f.retries = n }
}

// WithWorkers sets the number of concurrent downloads.
func WithWorkers(n int) Option {
	return func(f *Fetcher) { f.workers = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// NewHTTPClient returns a client with per-connection timeouts and no overall deadline,
// so large files are not cut off while data keeps flowing.
func NewHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: ConnectionTimeout}).DialContext
	transport.TLSHandshakeTimeout = ConnectionTimeout
	transport.ResponseHeaderTimeout = ConnectionTimeout
	return &http.Client{Transport: transport}
}

// New creates a Fetcher. host is joined to file names by plain concatenation,
// so it normally ends with a slash.
func New(host, dir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		host:    host,
		dir:     dir,
		retries: DefaultRetries,
		workers: runtime.NumCPU(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = NewHTTPClient()
	}
	if f.workers < 1 {
		f.workers = 1
	}
	if f.retries < 1 {
		f.retries = 1
	}
	return f
}

// Dir returns the local directory files are fetched into.
func (f *Fetcher) Dir() string {
	return f.dir
}

// Fetch makes sure every file in files (name to MD5 hex digest) exists under
// the local directory with a matching checksum. Files are fetched concurrently.
// It returns the local paths in sorted file name order.
func (f *Fetcher) Fetch(ctx context.Context, files map[string]string) ([]string, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)
	for i, name := range names {
		g.Go(func() error {
			path, err := f.fetchOne(ctx, name, files[name])
			if err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, name, checksum string) (string, error) {
	dest := filepath.Join(f.dir, filepath.FromSlash(name))

	needed := true
	info, err := os.Stat(dest)
	switch {
	case err == nil:
		if !info.Mode().IsRegular() {
			return "", fmt.Errorf("destination %q exists but is not a file", dest)
		}
		if Valid(dest, checksum) {
			needed = false
		} else {
			f.logger.Warn("cached file checksum mismatch, forcing download", "path", dest)
		}
	case !errors.Is(err, os.ErrNotExist):
		return "", fmt.Errorf("failed to stat %s: %w", dest, err)
	}

	if !needed {
		f.logger.Debug("using cached test data", "file", name)
		return dest, nil
	}

	f.logger.Info("fetching test data", "file", name)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	url := f.host + name
	start := time.Now()
	size, err := f.retrieve(ctx, url, dest)
	if err != nil {
		return "", err
	}

	if !Valid(dest, checksum) {
		os.Remove(dest)
		return "", fmt.Errorf("downloaded file %q does not match checksum %s", dest, checksum)
	}

	elapsed := time.Since(start)
	f.logger.Info("finished downloading",
		"file", name,
		"bytes", size,
		"duration", elapsed.Round(time.Millisecond),
	)
	return dest, nil
}

// retrieve downloads url into dest, retrying failed attempts up to the retry budget.
func (f *Fetcher) retrieve(ctx context.Context, url, dest string) (int64, error) {
	var lastErr error
	for attempt := 1; attempt <= f.retries; attempt++ {
		size, err := f.download(ctx, url, dest)
		if err == nil {
			return size, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		lastErr = err
		f.logger.Warn("retrying download",
			"url", url,
			"attempt", attempt,
			"error", err,
		)
	}
	return 0, fmt.Errorf("download from %s failed after %d attempts: %w", url, f.retries, lastErr)
}

// download performs one attempt. The body is written to a temporary file in
// the destination directory and renamed into place only when complete.
func (f *Fetcher) download(ctx context.Context, url, dest string) (size int64, retErr error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("unexpected HTTP status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return 0, err
	}
	defer func() {
		if retErr != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	size, err = io.Copy(tmp, resp.Body)
	if err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return 0, err
	}
	return size, nil
}

// Checksum returns the MD5 hex digest of the file at path.
func Checksum(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	h := md5.New()
	buf := make([]byte, checksumChunkSize)
	if _, err := io.CopyBuffer(h, file, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Valid reports whether path is a regular file whose MD5 digest equals digest.
func Valid(path, digest string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	sum, err := Checksum(path)
	if err != nil {
		return false
	}
	return sum == digest
}
