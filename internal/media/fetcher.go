// Package media downloads attachments into per-binding scratch folders and
// manages their lifetime.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// ErrDownload marks a failed media download. The caller must not forward.
var ErrDownload = errors.New("media download failed")

const (
	defaultFetchTimeout = 2 * time.Minute
	defaultMaxBytes     = 200 << 20
)

// Ref points at remote content. Token, when set, is sent as a bearer token.
type Ref struct {
	URL   string
	Token string
}

// Fetcher downloads remote content under a root directory.
type Fetcher struct {
	root     string
	client   *http.Client
	maxBytes int64
	now      func() time.Time
}

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithMaxBytes caps the size of a single download.
func WithMaxBytes(n int64) FetcherOption {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithNow overrides the clock used for file names.
func WithNow(now func() time.Time) FetcherOption {
	return func(f *Fetcher) { f.now = now }
}

// NewFetcher creates a fetcher that stores files below root.
func NewFetcher(root string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		root:     root,
		client:   &http.Client{Timeout: defaultFetchTimeout},
		maxBytes: defaultMaxBytes,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Root returns the download root directory.
func (f *Fetcher) Root() string { return f.root }

// Fetch downloads ref into <root>/<folder>/ and returns the file handle.
// The destination folder is created when absent. Fetch never deletes a
// completed download; on failure no partial file is left behind.
func (f *Fetcher) Fetch(ctx context.Context, ref Ref, folder string, kind Kind, filename string) (*File, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrDownload, err)
	}
	if ref.Token != "" {
		req.Header.Set("Authorization", "Bearer "+ref.Token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d", ErrDownload, resp.StatusCode)
	}

	name := FileName(f.now(), kind, filename)
	return f.write(resp.Body, folder, name, kind)
}

// Stage copies a local file (for example a cached sticker) into a scratch
// file under <root>/<folder>/ so it can be released like a download.
func (f *Fetcher) Stage(srcPath, folder string, kind Kind) (*File, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDownload, srcPath, err)
	}
	defer src.Close()

	name := timestampName(f.now()) + filepath.Ext(srcPath)
	return f.write(src, folder, name, kind)
}

func (f *Fetcher) write(r io.Reader, folder, name string, kind Kind) (*File, error) {
	dir := filepath.Join(f.root, SanitizeName(folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create folder: %v", ErrDownload, err)
	}

	tmp, err := os.CreateTemp(dir, ".part-*")
	if err != nil {
		return nil, fmt.Errorf("%w: create temp: %v", ErrDownload, err)
	}
	tmpPath := tmp.Name()

	n, err := io.Copy(tmp, io.LimitReader(r, f.maxBytes+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil && n > f.maxBytes {
		err = fmt.Errorf("exceeds %d bytes", f.maxBytes)
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: write: %v", ErrDownload, err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: rename: %v", ErrDownload, err)
	}

	file := &File{Path: path, Name: name, Kind: kind, Size: n}
	if mt, err := mimetype.DetectFile(path); err == nil {
		file.MIME = mt.String()
	}
	return file, nil
}
