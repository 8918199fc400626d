/*
Package compose builds every tile of a pyramid from a single read of the
source image.

The finest tier is cut from the source one full-width row of tiles at a time.
Once the tiles of a row have been written, a half-size copy of the row is kept
as a seed for the next coarser tier. When both seeds a coarser row depends on
are available, or the only one for the last row of a tier, they are scaled to
the width of the coarser tier, stacked, and the coarser row is processed the
same way. Seeds are released as soon as they have been consumed so only a
handful of rows exist at any time, however large the source is.

With overlap, the tiles of a row also need pixels from the rows above and
below it. A row is then held back until the next row of its tier exists, and
its tiles are cut from the row stacked between a strip of each neighbour.

Pixel work is delegated to a Canvas so the same traversal drives both the
pure Go and the ImageMagick backends.
*/
package compose

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/ioutil"
	"log"
	"path/filepath"

	"github.com/bodgit/zoomify/pyramid"
	"golang.org/x/sync/errgroup"
)

var (
	errSourceSize = errors.New("compose: source does not match plan")
	errIncomplete = errors.New("compose: not every planned tile was written")
	errOverlap    = errors.New("compose: overlap must be between zero and the tile size")
)

// Row is a transient image held by a Canvas. Its origin is always (0, 0).
type Row interface {
	Size() image.Point
}

// Canvas performs the pixel operations needed by the Compositor. Every Row
// returned by a Canvas is released exactly once by the Compositor, except
// the source.
type Canvas interface {
	// Source returns the full resolution image.
	Source(ctx context.Context) (Row, error)
	// Crop returns the part of row within r.
	Crop(ctx context.Context, row Row, r image.Rectangle) (Row, error)
	// Scale resizes row to exactly width by height pixels.
	Scale(ctx context.Context, row Row, width, height int) (Row, error)
	// Stack places bottom underneath top. Both have the same width.
	Stack(ctx context.Context, top, bottom Row) (Row, error)
	// Encode writes the part of row within r as a tile to file.
	Encode(ctx context.Context, row Row, r image.Rectangle, file string) error
	// Release discards row.
	Release(row Row) error
}

// Compositor writes the tiles of a Plan into a destination directory whose
// tile group directories already exist.
type Compositor struct {
	Canvas Canvas
	Plan   *pyramid.Plan
	Dir    string

	// Overlap pads each tile by this many pixels on every side, clamped at
	// the tier edges. It may not exceed the tile size.
	Overlap int

	// Workers bounds how many tiles of a row are encoded concurrently.
	Workers int

	Logger *log.Logger
}

type key struct {
	tier, row int
}

// pending is a row whose tiles wait for the first lines of the next row.
type pending struct {
	row   int
	image Row
	above Row // last lines of the previous row, nil for the first row
}

type run struct {
	*Compositor
	ctx     context.Context
	source  Row
	seeds   map[key]Row
	pending map[int]*pending
	tiles   int
}

// Composite writes every tile and returns how many were written. On error
// the tiles already written are left in place.
func (c *Compositor) Composite(ctx context.Context) (n int, err error) {
	if c.Logger == nil {
		c.Logger = log.New(ioutil.Discard, "", 0)
	}
	if c.Overlap < 0 || c.Overlap > c.Plan.TileSize() {
		return 0, errOverlap
	}

	source, err := c.Canvas.Source(ctx)
	if err != nil {
		return 0, err
	}

	finest := c.Plan.Finest()
	if source.Size() != finest.Bounds().Size() {
		return 0, fmt.Errorf("%w: %v, expected %v", errSourceSize, source.Size(), finest.Bounds().Size())
	}

	r := &run{
		Compositor: c,
		ctx:        ctx,
		source:     source,
		seeds:      make(map[key]Row),
		pending:    make(map[int]*pending),
	}
	defer func() {
		if rerr := r.releaseAll(); err == nil {
			err = rerr
		}
	}()

	for row := 0; row < finest.Rows(c.Plan.TileSize()); row++ {
		if err := ctx.Err(); err != nil {
			return r.tiles, err
		}

		queue := []key{{finest.Tier, row}}
		for len(queue) > 0 {
			k := queue[len(queue)-1]
			queue = queue[:len(queue)-1]

			next, ok, err := r.process(k)
			if err != nil {
				return r.tiles, err
			}
			if ok {
				queue = append(queue, next)
			}
		}
	}

	if r.tiles != c.Plan.NumTiles() {
		return r.tiles, fmt.Errorf("%w: %d of %d", errIncomplete, r.tiles, c.Plan.NumTiles())
	}

	return r.tiles, nil
}

// release releases every non-nil row and returns the first error. Every
// failure is logged as an earlier error may take precedence.
func (r *run) release(rows ...Row) error {
	var first error
	for _, row := range rows {
		if row == nil {
			continue
		}
		if err := r.Canvas.Release(row); err != nil {
			r.Logger.Printf("Unable to release row: %v\n", err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func (r *run) releaseAll() error {
	var rows []Row
	for k, seed := range r.seeds {
		rows = append(rows, seed)
		delete(r.seeds, k)
	}
	for tier, p := range r.pending {
		rows = append(rows, p.image, p.above)
		delete(r.pending, tier)
	}
	return r.release(rows...)
}

func half(v int) int {
	if v /= 2; v < 1 {
		return 1
	}
	return v
}

func lines(overlap, height int) int {
	if overlap > height {
		return height
	}
	return overlap
}

// dependencies returns the rows of the next finer tier that row k is built
// from.
func (r *run) dependencies(k key) []key {
	rows := r.Plan.Level(k.tier+1).Rows(r.Plan.TileSize())
	deps := make([]key, 0, 2)
	for _, row := range []int{2 * k.row, 2*k.row + 1} {
		if row < rows {
			deps = append(deps, key{k.tier + 1, row})
		}
	}
	return deps
}

// process builds row k, stores its seed and writes every tile that has
// become possible. It returns the coarser row that has become ready, if any.
func (r *run) process(k key) (key, bool, error) {
	level := r.Plan.Level(k.tier)
	rect := level.Row(k.row, r.Plan.TileSize())

	var (
		row Row
		err error
	)
	if k.tier == r.Plan.Finest().Tier {
		row, err = r.Canvas.Crop(r.ctx, r.source, rect)
	} else {
		row, err = r.compose(k, rect.Size())
	}
	if err != nil {
		return key{}, false, err
	}

	var seed Row
	if k.tier > 0 {
		size := row.Size()
		if seed, err = r.Canvas.Scale(r.ctx, row, half(size.X), half(size.Y)); err != nil {
			r.release(row)
			return key{}, false, err
		}
	}

	if err := r.enqueue(k, level, row); err != nil {
		r.release(seed)
		return key{}, false, err
	}

	if seed == nil {
		return key{}, false, nil
	}
	r.seeds[k] = seed

	return r.ready(k)
}

// enqueue takes ownership of row k and writes the tiles of the rows of its
// tier whose neighbours are now known.
func (r *run) enqueue(k key, level pyramid.Level, row Row) error {
	last := k.row == level.Rows(r.Plan.TileSize())-1
	current := &pending{row: k.row, image: row}

	if r.Overlap == 0 {
		return r.flush(k.tier, level, current, nil, last)
	}

	if prev, ok := r.pending[k.tier]; ok {
		delete(r.pending, k.tier)

		size := row.Size()
		below, err := r.Canvas.Crop(r.ctx, row, image.Rect(0, 0, size.X, lines(r.Overlap, size.Y)))
		if err != nil {
			r.release(row, prev.image, prev.above)
			return err
		}

		size = prev.image.Size()
		above, err := r.Canvas.Crop(r.ctx, prev.image, image.Rect(0, size.Y-lines(r.Overlap, size.Y), size.X, size.Y))
		if err != nil {
			r.release(row, below, prev.image, prev.above)
			return err
		}
		current.above = above

		if err := r.flush(k.tier, level, prev, below, false); err != nil {
			r.release(row, above)
			return err
		}
	}

	if last {
		return r.flush(k.tier, level, current, nil, true)
	}
	r.pending[k.tier] = current

	return nil
}

// flush writes the tiles of p, padded with the rows above and below when
// present, then releases every row involved.
func (r *run) flush(tier int, level pyramid.Level, p *pending, below Row, last bool) error {
	owned := []Row{p.image, p.above, below}

	img, top := p.image, 0
	if p.above != nil {
		stacked, err := r.Canvas.Stack(r.ctx, p.above, img)
		if err != nil {
			r.release(owned...)
			return err
		}
		owned = append(owned, stacked)
		img, top = stacked, p.above.Size().Y
	}
	if below != nil {
		stacked, err := r.Canvas.Stack(r.ctx, img, below)
		if err != nil {
			r.release(owned...)
			return err
		}
		owned = append(owned, stacked)
		img = stacked
	}

	if err := r.emit(key{tier, p.row}, level, img, top); err != nil {
		r.release(owned...)
		return err
	}

	if last {
		r.Logger.Printf("Tier %d (%dx%d) complete\n", level.Tier, level.Width, level.Height)
	}

	return r.release(owned...)
}

// ready reports whether every seed of the coarser row fed by k exists.
func (r *run) ready(k key) (key, bool, error) {
	parent := key{k.tier - 1, k.row / 2}

	// The trailing row of an odd-sized tier can vanish when halved.
	if parent.row >= r.Plan.Level(parent.tier).Rows(r.Plan.TileSize()) {
		seed := r.seeds[k]
		delete(r.seeds, k)
		return key{}, false, r.release(seed)
	}

	for _, dep := range r.dependencies(parent) {
		if _, ok := r.seeds[dep]; !ok {
			return key{}, false, nil
		}
	}
	return parent, true, nil
}

// compose builds row k from the seeds of the finer tier.
func (r *run) compose(k key, size image.Point) (Row, error) {
	deps := r.dependencies(k)

	parts := make([]Row, 0, len(deps))
	for _, dep := range deps {
		seed := r.seeds[dep]
		delete(r.seeds, dep)

		if seed.Size().X == size.X {
			parts = append(parts, seed)
			continue
		}

		scaled, err := r.Canvas.Scale(r.ctx, seed, size.X, seed.Size().Y)
		if rerr := r.release(seed); err == nil && rerr != nil {
			r.release(scaled)
			err = rerr
		}
		if err != nil {
			r.release(parts...)
			return nil, err
		}
		parts = append(parts, scaled)
	}

	row := parts[0]
	if len(parts) == 2 {
		stacked, err := r.Canvas.Stack(r.ctx, parts[0], parts[1])
		if rerr := r.release(parts...); err == nil && rerr != nil {
			r.release(stacked)
			err = rerr
		}
		if err != nil {
			return nil, err
		}
		row = stacked
	}

	var (
		resized Row
		err     error
	)
	switch height := row.Size().Y; {
	case height == size.Y:
		return row, nil
	case height > size.Y && len(parts) == 1:
		resized, err = r.Canvas.Crop(r.ctx, row, image.Rectangle{Max: size})
	default:
		resized, err = r.Canvas.Scale(r.ctx, row, size.X, size.Y)
	}
	if rerr := r.release(row); err == nil && rerr != nil {
		r.release(resized)
		err = rerr
	}
	if err != nil {
		return nil, err
	}
	return resized, nil
}

// emit writes every tile of row k from img, whose first line is top lines
// above the first line of the row.
func (r *run) emit(k key, level pyramid.Level, img Row, top int) error {
	ts := r.Plan.TileSize()
	origin := image.Pt(0, k.row*ts-top)
	bounds := image.Rectangle{Max: img.Size()}

	g, ctx := errgroup.WithContext(r.ctx)
	if r.Workers > 1 {
		g.SetLimit(r.Workers)
	}

	columns := level.Columns(ts)
	for c := 0; c < columns; c++ {
		tile := pyramid.Tile{Tier: k.tier, Column: c, Row: k.row}
		rect := level.Tile(c, k.row, ts).Inset(-r.Overlap).Intersect(level.Bounds()).Sub(origin).Intersect(bounds)
		file := filepath.Join(r.Dir, filepath.FromSlash(r.Plan.Path(tile)))

		if r.Workers > 1 {
			g.Go(func() error {
				return r.Canvas.Encode(ctx, img, rect, file)
			})
			continue
		}
		if err := r.Canvas.Encode(ctx, img, rect, file); err != nil {
			return err
		}
	}

	if err := g.Wait(); err != nil {
		return err
	}

	r.tiles += columns

	return nil
}
