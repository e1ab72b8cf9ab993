// Package sticker caches LINE sticker packages on disk.
//
// The first request for an unseen package downloads the whole package
// (metadata, static PNGs and, for animated packages, APNGs converted to GIF)
// into <root>/<packageId>_<title>/. Later requests are served from disk.
package sticker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/nextlevelbuilder/linecord/internal/media"
)

// DefaultBaseURL is the LINE sticker shop product root.
const DefaultBaseURL = "http://dl.stickershop.line.naver.jp/products/0/0/1"

// ErrNotFound is returned when the package or sticker does not exist.
var ErrNotFound = errors.New("sticker not found")

const (
	infoFileName        = "info.json"
	defaultConcurrency  = 4
	defaultFetchTimeout = 10 * time.Second
	// downloadTimeout bounds a whole package download. The download is shared
	// by every waiting caller, so it does not follow any one caller's context.
	downloadTimeout = 2 * time.Minute
)

// PackageInfo is the subset of productInfo.meta the store uses.
type PackageInfo struct {
	PackageID    int64             `json:"packageId"`
	Title        map[string]string `json:"title"`
	HasAnimation bool              `json:"hasAnimation"`
	Stickers     []struct {
		ID int64 `json:"id"`
	} `json:"stickers"`
}

// Store resolves sticker ids to cached image files.
type Store struct {
	root        string
	baseURL     string
	client      *http.Client
	concurrency int
	group       singleflight.Group
}

// Option configures a Store.
type Option func(*Store)

// WithBaseURL overrides the sticker shop URL.
func WithBaseURL(u string) Option {
	return func(s *Store) { s.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Store) { s.client = c }
}

// NewStore creates a sticker store rooted at dir.
func NewStore(dir string, opts ...Option) *Store {
	s := &Store{
		root:        dir,
		baseURL:     DefaultBaseURL,
		client:      &http.Client{Timeout: defaultFetchTimeout},
		concurrency: defaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fetch returns the path of a cached sticker image. Animated stickers resolve
// to the converted GIF when available, otherwise to the static PNG.
// The returned file belongs to the cache and must not be deleted.
func (s *Store) Fetch(ctx context.Context, packageID, stickerID string, animated bool) (string, error) {
	if _, err := strconv.ParseInt(packageID, 10, 64); err != nil {
		return "", fmt.Errorf("%w: package %q", ErrNotFound, packageID)
	}
	if _, err := strconv.ParseInt(stickerID, 10, 64); err != nil {
		return "", fmt.Errorf("%w: sticker %q", ErrNotFound, stickerID)
	}

	dir, err := s.packageDir(ctx, packageID)
	if err != nil {
		return "", err
	}

	if animated {
		gifPath := filepath.Join(dir, stickerID+".gif")
		if _, err := os.Stat(gifPath); err == nil {
			return gifPath, nil
		}
	}
	pngPath := filepath.Join(dir, stickerID+".png")
	if _, err := os.Stat(pngPath); err == nil {
		return pngPath, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrNotFound, packageID, stickerID)
}

// packageDir returns the cache folder of a package, downloading it once.
func (s *Store) packageDir(ctx context.Context, packageID string) (string, error) {
	if dir, ok := s.findCached(packageID); ok {
		return dir, nil
	}

	v, err, shared := s.group.Do(packageID, func() (any, error) {
		if dir, ok := s.findCached(packageID); ok {
			return dir, nil
		}
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), downloadTimeout)
		defer cancel()
		return s.download(dctx, packageID)
	})
	if err != nil {
		return "", err
	}
	if shared {
		slog.Debug("sticker package download shared", "package_id", packageID)
	}
	return v.(string), nil
}

func (s *Store) findCached(packageID string) (string, bool) {
	matches, _ := filepath.Glob(filepath.Join(s.root, packageID+"_*"))
	for _, m := range matches {
		if _, err := os.Stat(filepath.Join(m, infoFileName)); err == nil {
			return m, true
		}
	}
	return "", false
}

func (s *Store) download(ctx context.Context, packageID string) (string, error) {
	start := time.Now()
	raw, err := s.get(ctx, fmt.Sprintf("%s/%s/iphone/productInfo.meta", s.baseURL, packageID))
	if err != nil {
		return "", fmt.Errorf("sticker package %s: %w", packageID, err)
	}
	var info PackageInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return "", fmt.Errorf("sticker package %s: parse metadata: %w", packageID, err)
	}

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return "", err
	}
	tmpDir, err := os.MkdirTemp(s.root, "."+packageID+"-")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(tmpDir) // no-op after a successful rename

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, st := range info.Stickers {
		id := strconv.FormatInt(st.ID, 10)
		g.Go(func() error {
			return s.saveSticker(gctx, tmpDir, packageID, id, info.HasAnimation)
		})
	}
	if err := g.Wait(); err != nil {
		return "", fmt.Errorf("sticker package %s: %w", packageID, err)
	}

	pretty, _ := json.MarshalIndent(json.RawMessage(raw), "", "  ")
	if err := os.WriteFile(filepath.Join(tmpDir, infoFileName), pretty, 0o644); err != nil {
		return "", err
	}

	dir := filepath.Join(s.root, packageID+"_"+media.SanitizeName(info.Title["en"]))
	if err := os.Rename(tmpDir, dir); err != nil {
		if cached, ok := s.findCached(packageID); ok {
			return cached, nil
		}
		return "", fmt.Errorf("sticker package %s: %w", packageID, err)
	}

	slog.Info("sticker package cached",
		"package_id", packageID,
		"stickers", len(info.Stickers),
		"animated", info.HasAnimation,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return dir, nil
}

// saveSticker downloads one sticker. A missing static PNG fails the package so
// that it is not cached incomplete; animation failures only lose the GIF.
func (s *Store) saveSticker(ctx context.Context, dir, packageID, id string, animated bool) error {
	if animated {
		apngPath := filepath.Join(dir, id+".apng")
		url := fmt.Sprintf("%s/%s/iPhone/animation/%s@2x.png", s.baseURL, packageID, id)
		if err := s.saveURL(ctx, url, apngPath); err != nil {
			slog.Warn("sticker animation download failed", "package_id", packageID, "sticker_id", id, "error", err)
		} else if err := ConvertAPNGFile(apngPath, filepath.Join(dir, id+".gif")); err != nil {
			slog.Warn("sticker animation convert failed", "package_id", packageID, "sticker_id", id, "error", err)
		}
	}

	url := fmt.Sprintf("%s/%s/iPhone/stickers/%s@2x.png", s.baseURL, packageID, id)
	if err := s.saveURL(ctx, url, filepath.Join(dir, id+".png")); err != nil {
		return fmt.Errorf("sticker %s: %w", id, err)
	}
	return nil
}

func (s *Store) saveURL(ctx context.Context, url, path string) error {
	data, err := s.get(ctx, url)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (s *Store) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}
