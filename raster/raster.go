/*
Package raster implements the pixel operations of the compositor in pure Go.

The source image is decoded once with the standard image package and the
golang.org/x/image decoders for BMP, TIFF and WebP. Scaling is delegated to a
Resampler, which may be backed by github.com/nfnt/resize,
github.com/disintegration/gift or golang.org/x/image/draw.
*/
package raster

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"

	"github.com/bodgit/zoomify/compose"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

var (
	errNotRow     = errors.New("raster: row was not created by this canvas")
	errStackWidth = errors.New("raster: stacked rows differ in width")
	errEmpty      = errors.New("raster: empty rectangle")
)

// Measure returns the dimensions and format name of an image file without
// decoding its pixels.
func Measure(file string) (int, int, string, error) {
	f, err := os.Open(file)
	if err != nil {
		return 0, 0, "", err
	}
	defer f.Close()

	c, format, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, "", fmt.Errorf("raster: %s: %w", file, err)
	}

	return c.Width, c.Height, format, nil
}

// Row is an in-memory row image. Its bounds always start at (0, 0).
type Row struct {
	image.Image
}

// Size returns the dimensions of the row.
func (r *Row) Size() image.Point {
	return r.Bounds().Size()
}

// Canvas decodes File once and performs every operation in memory.
type Canvas struct {
	File      string
	Format    string
	Quality   int
	Resampler Resampler

	source *Row
}

func row(r compose.Row) (*Row, error) {
	if row, ok := r.(*Row); ok {
		return row, nil
	}
	return nil, errNotRow
}

// copyRect copies r out of m into a new image whose origin is (0, 0).
func copyRect(m image.Image, r image.Rectangle) *image.RGBA {
	r = r.Add(m.Bounds().Min)
	dst := image.NewRGBA(image.Rectangle{Max: r.Size()})
	draw.Draw(dst, dst.Bounds(), m, r.Min, draw.Src)
	return dst
}

// Source decodes the source image.
func (c *Canvas) Source(ctx context.Context) (compose.Row, error) {
	if c.source != nil {
		return c.source, nil
	}

	f, err := os.Open(c.File)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("raster: %s: %w", c.File, err)
	}

	if m.Bounds().Min != (image.Point{}) {
		m = copyRect(m, image.Rectangle{Max: m.Bounds().Size()})
	}
	c.source = &Row{m}

	return c.source, nil
}

// Crop copies the part of r within rect.
func (c *Canvas) Crop(ctx context.Context, r compose.Row, rect image.Rectangle) (compose.Row, error) {
	src, err := row(r)
	if err != nil {
		return nil, err
	}
	if rect = rect.Intersect(image.Rectangle{Max: src.Size()}); rect.Empty() {
		return nil, errEmpty
	}
	return &Row{copyRect(src, rect)}, nil
}

// Scale resizes r to exactly width by height pixels.
func (c *Canvas) Scale(ctx context.Context, r compose.Row, width, height int) (compose.Row, error) {
	src, err := row(r)
	if err != nil {
		return nil, err
	}
	if width < 1 || height < 1 {
		return nil, errEmpty
	}
	return &Row{c.Resampler.Resample(src.Image, width, height)}, nil
}

// Stack places bottom underneath top.
func (c *Canvas) Stack(ctx context.Context, top, bottom compose.Row) (compose.Row, error) {
	t, err := row(top)
	if err != nil {
		return nil, err
	}
	b, err := row(bottom)
	if err != nil {
		return nil, err
	}

	ts, bs := t.Size(), b.Size()
	if ts.X != bs.X {
		return nil, errStackWidth
	}

	dst := image.NewRGBA(image.Rect(0, 0, ts.X, ts.Y+bs.Y))
	draw.Draw(dst, image.Rect(0, 0, ts.X, ts.Y), t, t.Bounds().Min, draw.Src)
	draw.Draw(dst, image.Rect(0, ts.Y, bs.X, ts.Y+bs.Y), b, b.Bounds().Min, draw.Src)

	return &Row{dst}, nil
}

// Encode writes the part of r within rect to file in the canvas format.
func (c *Canvas) Encode(ctx context.Context, r compose.Row, rect image.Rectangle, file string) error {
	src, err := row(r)
	if err != nil {
		return err
	}
	if rect = rect.Intersect(image.Rectangle{Max: src.Size()}); rect.Empty() {
		return errEmpty
	}

	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := Encode(f, copyRect(src, rect), c.Format, c.Quality); err != nil {
		return err
	}

	return f.Close()
}

// Release drops the reference to r.
func (c *Canvas) Release(r compose.Row) error {
	if row, ok := r.(*Row); ok && row != c.source {
		row.Image = nil
	}
	return nil
}
