package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const (
	// imageMaxSide is LINE's maximum image dimension.
	imageMaxSide = 4096
	// previewMaxSide is the size of the preview LINE shows in the chat.
	previewMaxSide  = 240
	imageMaxBytes   = 10 * 1024 * 1024
	previewMaxBytes = 1024 * 1024
)

// jpegQualities is the grid of quality levels to try.
var jpegQualities = []int{90, 80, 70, 60, 50, 40}

// PreparedImage is a JPEG rendition of an image plus its preview.
// Both files live next to the source and belong to the same relay attempt.
type PreparedImage struct {
	Original *File
	Preview  *File
}

// Release removes both renditions.
func (p *PreparedImage) Release() {
	if p == nil {
		return
	}
	p.Original.Release()
	p.Preview.Release()
}

// PrepareImage converts src (jpeg, png, gif, bmp or webp) into a JPEG that
// LINE accepts and writes a small preview next to it.
//  1. Decode and auto-orient via EXIF
//  2. Resize if larger than imageMaxSide
//  3. Encode as JPEG, lowering quality until under the size limit
//  4. Repeat for the preview at previewMaxSide
func PrepareImage(src *File) (*PreparedImage, error) {
	img, err := imaging.Open(src.Path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}

	base := strings.TrimSuffix(src.Path, filepath.Ext(src.Path))

	full := img
	if b := img.Bounds(); b.Dx() > imageMaxSide || b.Dy() > imageMaxSide {
		full = imaging.Fit(img, imageMaxSide, imageMaxSide, imaging.Lanczos)
	}
	original, err := writeJPEG(full, base+".out.jpg", imageMaxBytes)
	if err != nil {
		return nil, err
	}

	thumb := imaging.Fit(img, previewMaxSide, previewMaxSide, imaging.Lanczos)
	preview, err := writeJPEG(thumb, base+".preview.jpg", previewMaxBytes)
	if err != nil {
		original.Release()
		return nil, err
	}
	return &PreparedImage{Original: original, Preview: preview}, nil
}

func writeJPEG(img image.Image, path string, maxBytes int) (*File, error) {
	// JPEG has no alpha; flatten onto white so transparent areas do not turn black.
	flat := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), image.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	for _, quality := range jpegQualities {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg (q=%d): %w", quality, err)
		}
		if buf.Len() <= maxBytes {
			if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
				return nil, fmt.Errorf("write jpeg: %w", err)
			}
			return &File{
				Path: path,
				Name: filepath.Base(path),
				Kind: KindImage,
				Size: int64(buf.Len()),
				MIME: "image/jpeg",
			}, nil
		}
	}
	b := img.Bounds()
	return nil, fmt.Errorf("image too large even at lowest quality (dimensions: %dx%d)", b.Dx(), b.Dy())
}
