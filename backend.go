package zoomify

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/bodgit/zoomify/compose"
	"github.com/bodgit/zoomify/magick"
	"github.com/bodgit/zoomify/manifest"
	"github.com/bodgit/zoomify/pyramid"
	"github.com/bodgit/zoomify/raster"
	"github.com/bodgit/zoomify/tool"
	"github.com/bodgit/zoomify/vips"
)

// Result describes a completed pyramid.
type Result struct {
	Width  int
	Height int
	Tiles  int
}

// Backend writes a complete pyramid, tiles and manifest, of src into the
// existing directory dst. Measure returns the dimensions of src and fails
// if the backend cannot decode it.
type Backend interface {
	Name() string
	Measure(ctx context.Context, src string) (int, int, error)
	Tile(ctx context.Context, src, dst string) (Result, error)
}

// software builds the pyramid itself, delegating pixel work to a canvas.
type software struct {
	opts   Options
	logger *log.Logger
}

func (s software) composite(ctx context.Context, canvas compose.Canvas, width, height int, dst string) (Result, error) {
	plan, err := pyramid.NewPlan(width, height, s.opts.TileSize, s.opts.ext())
	if err != nil {
		return Result{}, err
	}

	for i := 0; i < plan.NumGroups(); i++ {
		if err := os.Mkdir(filepath.Join(dst, pyramid.GroupName(i)), s.opts.DirMode); err != nil && !os.IsExist(err) {
			return Result{}, err
		}
	}

	s.logger.Printf("Planned %d tiers in %d tile groups for %dx%d\n", len(plan.Levels()), plan.NumGroups(), width, height)

	c := &compose.Compositor{
		Canvas:  canvas,
		Plan:    plan,
		Dir:     dst,
		Overlap: s.opts.TileOverlap,
		Workers: s.opts.Workers,
		Logger:  s.logger,
	}

	n, err := c.Composite(ctx)
	if err != nil {
		return Result{}, err
	}

	if err := manifest.Write(dst, width, height, n, s.opts.TileSize); err != nil {
		return Result{}, err
	}

	return Result{Width: width, Height: height, Tiles: n}, nil
}

type goBackend struct {
	software
	resampler raster.Resampler
}

func newGoBackend(opts Options, logger *log.Logger) (*goBackend, error) {
	r, err := raster.NewResampler(opts.Resampler, opts.Interpolation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}
	return &goBackend{software{opts, logger}, r}, nil
}

func (b *goBackend) Name() string {
	return BackendGo
}

func (b *goBackend) Measure(ctx context.Context, src string) (int, int, error) {
	w, h, _, err := raster.Measure(src)
	return w, h, err
}

func (b *goBackend) Tile(ctx context.Context, src, dst string) (Result, error) {
	w, h, _, err := raster.Measure(src)
	if err != nil {
		return Result{}, err
	}

	return b.composite(ctx, &raster.Canvas{
		File:      src,
		Format:    b.opts.ext(),
		Quality:   b.opts.TileQuality,
		Resampler: b.resampler,
	}, w, h, dst)
}

type magickBackend struct {
	software
	command magick.Command
	filter  string
}

func newMagickBackend(opts Options, runner tool.Runner, logger *log.Logger) (*magickBackend, error) {
	var (
		path string
		err  error
	)
	if opts.ConvertPath != "" {
		path, err = tool.LookPath(opts.ConvertPath)
	} else {
		path, err = magick.Find()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoBackend, BackendMagick, err)
	}

	filter, err := magick.Filter(opts.Interpolation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOptions, err)
	}

	return &magickBackend{
		software: software{opts, logger},
		command:  magick.Command{Runner: runner, Path: path},
		filter:   filter,
	}, nil
}

func (b *magickBackend) Name() string {
	return BackendMagick
}

func (b *magickBackend) Measure(ctx context.Context, src string) (int, int, error) {
	w, h, _, err := b.command.Measure(ctx, src)
	return w, h, err
}

func (b *magickBackend) Tile(ctx context.Context, src, dst string) (Result, error) {
	canvas := &magick.Canvas{
		Command: b.command,
		File:    src,
		Quality: b.opts.TileQuality,
		Filter:  b.filter,
	}
	defer canvas.Close()

	row, err := canvas.Source(ctx)
	if err != nil {
		return Result{}, err
	}
	size := row.Size()

	return b.composite(ctx, canvas, size.X, size.Y, dst)
}

type vipsBackend struct {
	opts    Options
	command vips.Command
}

func newVipsBackend(opts Options, runner tool.Runner) (*vipsBackend, error) {
	var (
		path string
		err  error
	)
	if opts.VipsPath != "" {
		path, err = tool.LookPath(opts.VipsPath)
	} else {
		path, err = vips.Find()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoBackend, BackendVips, err)
	}

	return &vipsBackend{opts, vips.Command{Runner: runner, Path: path}}, nil
}

func (b *vipsBackend) Name() string {
	return BackendVips
}

func (b *vipsBackend) Measure(ctx context.Context, src string) (int, int, error) {
	return b.command.Measure(ctx, src)
}

func (b *vipsBackend) Tile(ctx context.Context, src, dst string) (Result, error) {
	w, h, n, err := b.command.Tile(ctx, src, dst, vips.Options{
		TileSize: b.opts.TileSize,
		Overlap:  b.opts.TileOverlap,
		Format:   b.opts.ext(),
		Quality:  b.opts.TileQuality,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Width: w, Height: h, Tiles: n}, nil
}

// newBackend returns the backend named in opts. Auto-detection prefers
// vips, then ImageMagick, and always falls back to the pure Go backend.
func newBackend(opts Options, runner tool.Runner, logger *log.Logger) (Backend, error) {
	switch opts.Backend {
	case BackendAuto:
		if b, err := newVipsBackend(opts, runner); err == nil {
			return b, nil
		}
		if b, err := newMagickBackend(opts, runner, logger); err == nil {
			return b, nil
		}
		return newGoBackend(opts, logger)
	case BackendGo:
		return newGoBackend(opts, logger)
	case BackendMagick:
		return newMagickBackend(opts, runner, logger)
	case BackendVips:
		return newVipsBackend(opts, runner)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
