/*
Package zoomify is a library for converting a large raster image into a
Zoomify tile pyramid.

Every tier of the pyramid halves the resolution of the one below it until the
whole image fits in a single tile. Tiles are written to TileGroup directories
holding at most TileSize tiles each, alongside an ImageProperties.xml file
describing the image.
*/
package zoomify

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"

	"github.com/bodgit/zoomify/tool"
	"github.com/dustin/go-humanize"
)

// Zoomify converts images using a single backend chosen at construction.
type Zoomify struct {
	opts    Options
	runner  tool.Runner
	backend Backend
	logger  *log.Logger
}

// New validates opts and selects a backend. A nil logger discards output.
func New(opts Options, logger *log.Logger) (*Zoomify, error) {
	if logger == nil {
		logger = log.New(ioutil.Discard, "", 0)
	}
	return newZoomify(opts, &tool.Exec{Logger: logger}, logger)
}

func newZoomify(opts Options, runner tool.Runner, logger *log.Logger) (*Zoomify, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	backend, err := newBackend(opts, runner, logger)
	if err != nil {
		return nil, err
	}

	return &Zoomify{
		opts:    opts,
		runner:  runner,
		backend: backend,
		logger:  logger,
	}, nil
}

// Backend returns the name of the selected backend.
func (z *Zoomify) Backend() string {
	return z.backend.Name()
}

// Process tiles src into dst, or DefaultDestination(src) if dst is empty.
// It returns false with a nil error when dst already exists and the options
// do not allow removing it. A src the backend cannot decode is reported as
// ErrNotFound before dst is touched.
func (z *Zoomify) Process(ctx context.Context, src, dst string) (bool, error) {
	file, err := filepath.Abs(src)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(file)
	if err != nil || !info.Mode().IsRegular() {
		return false, fmt.Errorf("%w: %s", ErrNotFound, src)
	}
	f, err := os.Open(file)
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrNotFound, src, err)
	}
	f.Close()

	w, h, err := z.backend.Measure(ctx, file)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("%w: %s: %v", ErrNotFound, src, err)
	}
	if w < 1 || h < 1 {
		return false, fmt.Errorf("%w: %s: %dx%d", ErrNotFound, src, w, h)
	}

	if dst == "" {
		dst = DefaultDestination(file)
	}

	ok, err := prepareDestination(dst, z.opts.DestinationRemove, z.opts.DirMode)
	if err != nil {
		return false, err
	}
	if !ok {
		z.logger.Printf("warning: \"%s\" already exists, skipping \"%s\"\n", dst, src)
		return false, nil
	}

	z.logger.Printf("Tiling \"%s\" (%dx%d, %s) with %s backend\n", src, w, h, humanize.Bytes(uint64(info.Size())), z.backend.Name())

	result, err := z.backend.Tile(ctx, file, dst)
	if err != nil {
		return false, err
	}

	z.logger.Printf("Wrote %s tiles for %dx%d image to \"%s\"\n", humanize.Comma(int64(result.Tiles)), result.Width, result.Height, dst)

	return true, nil
}
