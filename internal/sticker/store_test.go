package sticker

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kettek/apng"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, solid(color.RGBA{R: 255, A: 255})))
	return buf.Bytes()
}

func apngBytes(t *testing.T) []byte {
	t.Helper()
	a := apng.APNG{
		Frames: []apng.Frame{
			{Image: solid(color.RGBA{R: 255, A: 255}), DelayNumerator: 1, DelayDenominator: 10},
			{Image: solid(color.RGBA{B: 255, A: 255}), DelayNumerator: 1, DelayDenominator: 10},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, apng.Encode(&buf, a))
	return buf.Bytes()
}

type shop struct {
	metaHits atomic.Int32
	animated bool
	png      []byte
	apng     []byte
}

func (s *shop) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/42/iphone/productInfo.meta":
		s.metaHits.Add(1)
		fmt.Fprintf(w, `{"packageId":42,"title":{"en":"Cats: a/b"},"hasAnimation":%t,"stickers":[{"id":100},{"id":101}]}`, s.animated)
	case "/42/iPhone/stickers/100@2x.png", "/42/iPhone/stickers/101@2x.png":
		w.Write(s.png)
	case "/42/iPhone/animation/100@2x.png", "/42/iPhone/animation/101@2x.png":
		w.Write(s.apng)
	default:
		http.NotFound(w, r)
	}
}

func TestFetch_StaticPackage(t *testing.T) {
	sh := &shop{png: pngBytes(t)}
	srv := httptest.NewServer(sh)
	defer srv.Close()

	root := t.TempDir()
	s := NewStore(root, WithBaseURL(srv.URL))

	path, err := s.Fetch(context.Background(), "42", "100", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "42_Cats_ a_b", "100.png"), path)
	_, err = os.Stat(filepath.Join(root, "42_Cats_ a_b", infoFileName))
	assert.NoError(t, err)

	// Served from cache.
	_, err = s.Fetch(context.Background(), "42", "101", false)
	require.NoError(t, err)
	assert.Equal(t, int32(1), sh.metaHits.Load())
}

func TestFetch_AnimatedConvertsToGIF(t *testing.T) {
	sh := &shop{animated: true, png: pngBytes(t), apng: apngBytes(t)}
	srv := httptest.NewServer(sh)
	defer srv.Close()

	s := NewStore(t.TempDir(), WithBaseURL(srv.URL))
	path, err := s.Fetch(context.Background(), "42", "101", true)
	require.NoError(t, err)
	assert.Equal(t, ".gif", filepath.Ext(path))

	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close()
	g, err := gif.DecodeAll(fh)
	require.NoError(t, err)
	assert.Len(t, g.Image, 2)
	assert.Equal(t, []int{10, 10}, g.Delay)
}

func TestFetch_ConcurrentFirstRequestsDownloadOnce(t *testing.T) {
	sh := &shop{png: pngBytes(t)}
	srv := httptest.NewServer(sh)
	defer srv.Close()

	s := NewStore(t.TempDir(), WithBaseURL(srv.URL))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Fetch(context.Background(), "42", "100", false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), sh.metaHits.Load())
}

func TestFetch_FailedStickerIsNotCached(t *testing.T) {
	sh := &shop{png: pngBytes(t)}
	var fail atomic.Bool
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/42/iPhone/stickers/101@2x.png" && fail.Load() {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		sh.ServeHTTP(w, r)
	}))
	defer srv.Close()

	root := t.TempDir()
	s := NewStore(root, WithBaseURL(srv.URL))

	_, err := s.Fetch(context.Background(), "42", "100", false)
	require.Error(t, err)
	_, ok := s.findCached("42")
	assert.False(t, ok)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp dir left behind")

	fail.Store(false)
	path, err := s.Fetch(context.Background(), "42", "101", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "42_Cats_ a_b", "101.png"), path)
	assert.Equal(t, int32(2), sh.metaHits.Load())
}

func TestFetch_DownloadOutlivesCanceledCaller(t *testing.T) {
	sh := &shop{png: pngBytes(t)}
	srv := httptest.NewServer(sh)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStore(t.TempDir(), WithBaseURL(srv.URL))
	_, err := s.Fetch(ctx, "42", "100", false)
	require.NoError(t, err)
	_, ok := s.findCached("42")
	assert.True(t, ok)
}

func TestFetch_UnknownPackage(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	s := NewStore(t.TempDir(), WithBaseURL(srv.URL))
	_, err := s.Fetch(context.Background(), "7", "1", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetch_UnknownStickerInCachedPackage(t *testing.T) {
	sh := &shop{png: pngBytes(t)}
	srv := httptest.NewServer(sh)
	defer srv.Close()

	s := NewStore(t.TempDir(), WithBaseURL(srv.URL))
	_, err := s.Fetch(context.Background(), "42", "999", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFetch_RejectsNonNumericIDs(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Fetch(context.Background(), "../x", "1", false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelayCentis(t *testing.T) {
	assert.Equal(t, 10, delayCentis(1, 10))
	assert.Equal(t, 5, delayCentis(5, 0))
	assert.Equal(t, 2, delayCentis(0, 100))
}
