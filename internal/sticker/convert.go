package sticker

import (
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"io"
	"os"

	"github.com/kettek/apng"
)

// APNG fcTL operations.
const (
	disposeNone       = 0
	disposeBackground = 1
	disposePrevious   = 2
	blendSource       = 0
)

// gifPalette is Plan9 with the last entry reserved for transparency.
var gifPalette = func() color.Palette {
	p := make(color.Palette, 0, 256)
	p = append(p, palette.Plan9[:255]...)
	return append(p, color.Transparent)
}()

const transparentIndex = 255

// ConvertAPNGFile decodes the APNG at src and writes an animated GIF to dst.
func ConvertAPNGFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if err := ConvertAPNG(in, out); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// ConvertAPNG composites every APNG frame onto a canvas and encodes the
// result as an animated GIF.
func ConvertAPNG(r io.Reader, w io.Writer) error {
	a, err := apng.DecodeAll(r)
	if err != nil {
		return fmt.Errorf("decode apng: %w", err)
	}

	frames := make([]apng.Frame, 0, len(a.Frames))
	for _, f := range a.Frames {
		if f.IsDefault && len(a.Frames) > 1 {
			continue
		}
		frames = append(frames, f)
	}
	if len(frames) == 0 {
		return fmt.Errorf("decode apng: no frames")
	}

	bounds := canvasBounds(frames)
	canvas := image.NewRGBA(bounds)
	out := &gif.GIF{LoopCount: int(a.LoopCount)}

	for _, f := range frames {
		rect := f.Image.Bounds().Sub(f.Image.Bounds().Min).Add(image.Pt(f.XOffset, f.YOffset))

		var saved *image.RGBA
		if f.DisposeOp == disposePrevious {
			saved = image.NewRGBA(rect)
			draw.Draw(saved, rect, canvas, rect.Min, draw.Src)
		}

		op := draw.Over
		if f.BlendOp == blendSource {
			op = draw.Src
		}
		draw.Draw(canvas, rect, f.Image, f.Image.Bounds().Min, op)

		out.Image = append(out.Image, quantize(canvas))
		out.Delay = append(out.Delay, delayCentis(f.DelayNumerator, f.DelayDenominator))
		out.Disposal = append(out.Disposal, gif.DisposalNone)

		switch f.DisposeOp {
		case disposeBackground:
			draw.Draw(canvas, rect, image.Transparent, image.Point{}, draw.Src)
		case disposePrevious:
			draw.Draw(canvas, rect, saved, rect.Min, draw.Src)
		case disposeNone:
		}
	}

	if err := gif.EncodeAll(w, out); err != nil {
		return fmt.Errorf("encode gif: %w", err)
	}
	return nil
}

func canvasBounds(frames []apng.Frame) image.Rectangle {
	var r image.Rectangle
	for _, f := range frames {
		fr := f.Image.Bounds().Sub(f.Image.Bounds().Min).Add(image.Pt(f.XOffset, f.YOffset))
		r = r.Union(fr)
	}
	return image.Rect(0, 0, r.Max.X, r.Max.Y)
}

// quantize maps the canvas onto gifPalette. Pixels under half alpha become transparent.
func quantize(src *image.RGBA) *image.Paletted {
	b := src.Bounds()
	dst := image.NewPaletted(b, gifPalette)
	opaque := gifPalette[:transparentIndex]
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.RGBAAt(x, y)
			if c.A < 128 {
				dst.SetColorIndex(x, y, transparentIndex)
				continue
			}
			dst.SetColorIndex(x, y, uint8(opaque.Index(color.RGBA{R: c.R, G: c.G, B: c.B, A: 255})))
		}
	}
	return dst
}

// delayCentis converts an APNG delay fraction (seconds) to GIF hundredths.
func delayCentis(num, den uint16) int {
	if den == 0 {
		den = 100
	}
	d := int(num) * 100 / int(den)
	if d < 2 {
		// Browsers clamp 0 and 1 to 10; 2 is the smallest honoured value.
		d = 2
	}
	return d
}
