/*
Package vips builds a pyramid in one step with the dzsave operation of the
vips command-line tool, then reconciles its output with the layout written by
the other backends.
*/
package vips

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bodgit/zoomify/manifest"
	"github.com/bodgit/zoomify/tool"
)

var errHeader = errors.New("vips: unexpected vipsheader output")

// PropertiesFilename is the extra metadata file written by dzsave.
const PropertiesFilename = "vips-properties.xml"

// Find returns the path of the vips command.
func Find() (string, error) {
	return tool.LookPath("vips")
}

// Options controls the generated tiles.
type Options struct {
	TileSize int
	Overlap  int
	Format   string
	Quality  int
}

func (o Options) suffix() string {
	format := strings.ToLower(o.Format)
	if format == "jpg" || format == "jpeg" {
		return fmt.Sprintf(".%s[Q=%d]", o.Format, o.Quality)
	}
	return "." + o.Format
}

// Command runs vips.
type Command struct {
	Runner tool.Runner
	Path   string
}

func (c Command) header(ctx context.Context, field, file string) (int, error) {
	b, err := c.Runner.Run(ctx, filepath.Join(filepath.Dir(c.Path), "vipsheader"), "-f", field, file)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", errHeader, field, b)
	}
	return v, nil
}

// Measure returns the dimensions of file as loaded by vips.
func (c Command) Measure(ctx context.Context, file string) (int, int, error) {
	w, err := c.header(ctx, "width", file)
	if err != nil {
		return 0, 0, err
	}
	h, err := c.header(ctx, "height", file)
	if err != nil {
		return 0, 0, err
	}
	return w, h, nil
}

// DZSave writes a Zoomify pyramid of src into dst.
func (c Command) DZSave(ctx context.Context, src, dst string, o Options) error {
	_, err := c.Runner.Run(ctx, c.Path,
		"dzsave", src, dst,
		"--layout", "zoomify",
		"--suffix", o.suffix(),
		"--overlap", strconv.Itoa(o.Overlap),
		"--tile-size", strconv.Itoa(o.TileSize),
		"--background", "0 0 0",
		"--properties",
	)
	return err
}

// Reconcile moves the output up one level when dzsave has nested it under
// dst/basename(dst).
func Reconcile(dst string) error {
	nested := filepath.Join(dst, filepath.Base(dst))

	info, err := os.Stat(nested)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if !info.IsDir() {
		return nil
	}

	entries, err := ioutil.ReadDir(nested)
	if err != nil {
		return err
	}

	for _, e := range entries {
		target := filepath.Join(dst, e.Name())
		if err := os.RemoveAll(target); err != nil {
			return err
		}
		if err := os.Rename(filepath.Join(nested, e.Name()), target); err != nil {
			return err
		}
	}

	return os.Remove(nested)
}

// CountTiles counts the files in every TileGroup directory of dst.
func CountTiles(dst string) (int, error) {
	groups, err := filepath.Glob(filepath.Join(dst, "TileGroup*"))
	if err != nil {
		return 0, err
	}

	n := 0
	for _, g := range groups {
		files, err := ioutil.ReadDir(g)
		if err != nil {
			return 0, err
		}
		for _, f := range files {
			if f.Mode().IsRegular() {
				n++
			}
		}
	}

	return n, nil
}

// Tile runs dzsave and reconciles the result. It returns the source
// dimensions reported by vips and the number of tiles written. The manifest
// is rewritten so it is identical to the one written by the other backends.
func (c Command) Tile(ctx context.Context, src, dst string, o Options) (int, int, int, error) {
	if err := c.DZSave(ctx, src, dst, o); err != nil {
		return 0, 0, 0, err
	}

	if err := Reconcile(dst); err != nil {
		return 0, 0, 0, err
	}

	p, err := manifest.Read(dst)
	if err != nil {
		return 0, 0, 0, err
	}

	n, err := CountTiles(dst)
	if err != nil {
		return 0, 0, 0, err
	}

	if err := manifest.Write(dst, p.Width, p.Height, n, o.TileSize); err != nil {
		return 0, 0, 0, err
	}

	return p.Width, p.Height, n, nil
}
