/*
Package magick implements the pixel operations of the compositor by running
the ImageMagick command-line tools.

Every transient row is materialised as a MIFF file in a private temporary
directory, which is removed by Close. Both ImageMagick 7 (magick) and 6
(convert and identify) are supported.
*/
package magick

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bodgit/zoomify/compose"
	"github.com/bodgit/zoomify/tool"
)

var (
	errNotRow     = errors.New("magick: row was not created by this canvas")
	errStackWidth = errors.New("magick: stacked rows differ in width")
	errEmpty      = errors.New("magick: empty rectangle")
	errIdentify   = errors.New("magick: unexpected identify output")
)

// Find returns the path of the ImageMagick command, preferring magick over
// convert.
func Find() (string, error) {
	return tool.LookPath("magick", "convert")
}

// Command runs ImageMagick.
type Command struct {
	Runner tool.Runner
	// Path is the magick or convert executable.
	Path string
}

func (c Command) v7() bool {
	return strings.HasPrefix(filepath.Base(c.Path), "magick")
}

func (c Command) convert(ctx context.Context, args ...string) error {
	_, err := c.Runner.Run(ctx, c.Path, args...)
	return err
}

func (c Command) identify(ctx context.Context, args ...string) ([]byte, error) {
	if c.v7() {
		return c.Runner.Run(ctx, c.Path, append([]string{"identify"}, args...)...)
	}
	return c.Runner.Run(ctx, filepath.Join(filepath.Dir(c.Path), "identify"), args...)
}

// Measure returns the dimensions and format of the first frame of file.
func (c Command) Measure(ctx context.Context, file string) (int, int, string, error) {
	b, err := c.identify(ctx, "-format", "%w %h %m", frame(file))
	if err != nil {
		return 0, 0, "", err
	}

	var (
		w, h   int
		format string
	)
	if _, err := fmt.Sscanf(string(b), "%d %d %s", &w, &h, &format); err != nil {
		return 0, 0, "", fmt.Errorf("%w: %q", errIdentify, b)
	}

	return w, h, strings.ToLower(format), nil
}

// Filter returns the ImageMagick filter for an interpolation name.
func Filter(interpolation string) (string, error) {
	filter, ok := map[string]string{
		"nearest":  "Point",
		"bilinear": "Triangle",
		"bicubic":  "Catrom",
		"mitchell": "Mitchell",
		"lanczos2": "Lanczos2",
		"lanczos3": "Lanczos",
	}[interpolation]
	if !ok {
		return "", fmt.Errorf("magick: unknown interpolation %q", interpolation)
	}
	return filter, nil
}

func frame(file string) string {
	return file + "[0]"
}

func geometry(r image.Rectangle) string {
	return fmt.Sprintf("%dx%d+%d+%d", r.Dx(), r.Dy(), r.Min.X, r.Min.Y)
}

// Row is an image file with known dimensions.
type Row struct {
	file string
	size image.Point
}

// Size returns the dimensions of the row.
func (r *Row) Size() image.Point {
	return r.size
}

// Canvas is a compose.Canvas that shells out to ImageMagick for every
// operation.
type Canvas struct {
	Command

	File    string
	Quality int
	Filter  string

	mu     sync.Mutex
	dir    string
	n      int
	source *Row
}

func (c *Canvas) row(r compose.Row) (*Row, error) {
	if row, ok := r.(*Row); ok {
		return row, nil
	}
	return nil, errNotRow
}

func (c *Canvas) temp(size image.Point) (*Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dir == "" {
		dir, err := ioutil.TempDir("", "zoomify")
		if err != nil {
			return nil, err
		}
		c.dir = dir
	}
	c.n++

	return &Row{
		file: filepath.Join(c.dir, fmt.Sprintf("row%d.miff", c.n)),
		size: size,
	}, nil
}

// Source measures the source image.
func (c *Canvas) Source(ctx context.Context) (compose.Row, error) {
	if c.source != nil {
		return c.source, nil
	}

	if _, err := os.Stat(c.File); err != nil {
		return nil, err
	}

	w, h, _, err := c.Measure(ctx, c.File)
	if err != nil {
		return nil, err
	}
	c.source = &Row{file: c.File, size: image.Pt(w, h)}

	return c.source, nil
}

// Crop copies the part of r within rect to a new row.
func (c *Canvas) Crop(ctx context.Context, r compose.Row, rect image.Rectangle) (compose.Row, error) {
	src, err := c.row(r)
	if err != nil {
		return nil, err
	}
	if rect = rect.Intersect(image.Rectangle{Max: src.size}); rect.Empty() {
		return nil, errEmpty
	}

	dst, err := c.temp(rect.Size())
	if err != nil {
		return nil, err
	}

	if err := c.convert(ctx, frame(src.file), "-crop", geometry(rect), "+repage", dst.file); err != nil {
		return nil, err
	}

	return dst, nil
}

// Scale resizes r to exactly width by height pixels.
func (c *Canvas) Scale(ctx context.Context, r compose.Row, width, height int) (compose.Row, error) {
	src, err := c.row(r)
	if err != nil {
		return nil, err
	}
	if width < 1 || height < 1 {
		return nil, errEmpty
	}

	dst, err := c.temp(image.Pt(width, height))
	if err != nil {
		return nil, err
	}

	args := []string{frame(src.file), "+repage", "-flatten"}
	if c.Filter != "" {
		args = append(args, "-filter", c.Filter)
	}
	args = append(args, "-resize", fmt.Sprintf("%dx%d!", width, height), dst.file)

	if err := c.convert(ctx, args...); err != nil {
		return nil, err
	}

	return dst, nil
}

// Stack places bottom underneath top.
func (c *Canvas) Stack(ctx context.Context, top, bottom compose.Row) (compose.Row, error) {
	t, err := c.row(top)
	if err != nil {
		return nil, err
	}
	b, err := c.row(bottom)
	if err != nil {
		return nil, err
	}
	if t.size.X != b.size.X {
		return nil, errStackWidth
	}

	dst, err := c.temp(image.Pt(t.size.X, t.size.Y+b.size.Y))
	if err != nil {
		return nil, err
	}

	if err := c.convert(ctx, frame(t.file), frame(b.file), "-append", "+repage", dst.file); err != nil {
		return nil, err
	}

	return dst, nil
}

// Encode writes the part of r within rect to file. The tile format follows
// the file extension.
func (c *Canvas) Encode(ctx context.Context, r compose.Row, rect image.Rectangle, file string) error {
	src, err := c.row(r)
	if err != nil {
		return err
	}
	if rect = rect.Intersect(image.Rectangle{Max: src.size}); rect.Empty() {
		return errEmpty
	}

	return c.convert(ctx, frame(src.file), "-crop", geometry(rect), "+repage", "-quality", fmt.Sprint(c.Quality), file)
}

// Release removes the file behind r.
func (c *Canvas) Release(r compose.Row) error {
	row, err := c.row(r)
	if err != nil {
		return err
	}
	if row == c.source {
		return nil
	}
	if err := os.Remove(row.file); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Close removes the temporary directory and anything left in it.
func (c *Canvas) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.dir == "" {
		return nil
	}
	dir := c.dir
	c.dir = ""

	return os.RemoveAll(dir)
}
