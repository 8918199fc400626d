package compose

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bodgit/zoomify/pyramid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	size     image.Point
	released bool
}

func (r *fakeRow) Size() image.Point {
	return r.size
}

// fakeCanvas tracks row sizes and lifetimes without touching any pixels.
type fakeCanvas struct {
	t          *testing.T
	source     *fakeRow
	failOn     string
	releaseErr error

	mu    sync.Mutex
	live  int
	peak  int
	files map[string]image.Rectangle
}

func newFakeCanvas(t *testing.T, w, h int) *fakeCanvas {
	return &fakeCanvas{
		t:      t,
		source: &fakeRow{size: image.Pt(w, h)},
		files:  make(map[string]image.Rectangle),
	}
}

func (c *fakeCanvas) row(size image.Point) Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live++
	if c.live > c.peak {
		c.peak = c.live
	}
	return &fakeRow{size: size}
}

func (c *fakeCanvas) Source(ctx context.Context) (Row, error) {
	return c.source, nil
}

func (c *fakeCanvas) Crop(ctx context.Context, row Row, r image.Rectangle) (Row, error) {
	r = r.Intersect(image.Rectangle{Max: row.Size()})
	require.False(c.t, r.Empty())
	return c.row(r.Size()), nil
}

func (c *fakeCanvas) Scale(ctx context.Context, row Row, width, height int) (Row, error) {
	require.True(c.t, width > 0 && height > 0)
	return c.row(image.Pt(width, height)), nil
}

func (c *fakeCanvas) Stack(ctx context.Context, top, bottom Row) (Row, error) {
	require.Equal(c.t, top.Size().X, bottom.Size().X)
	return c.row(image.Pt(top.Size().X, top.Size().Y+bottom.Size().Y)), nil
}

func (c *fakeCanvas) Encode(ctx context.Context, row Row, r image.Rectangle, file string) error {
	require.False(c.t, row.(*fakeRow).released)
	require.True(c.t, r.In(image.Rectangle{Max: row.Size()}))

	if c.failOn != "" && strings.HasSuffix(file, c.failOn) {
		return errors.New("encode failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, dup := c.files[file]
	assert.False(c.t, dup, file)
	c.files[file] = r
	return nil
}

func (c *fakeCanvas) Release(row Row) error {
	r := row.(*fakeRow)
	require.False(c.t, r == c.source)
	require.False(c.t, r.released)
	r.released = true

	c.mu.Lock()
	defer c.mu.Unlock()
	c.live--
	return c.releaseErr
}

func TestComposite(t *testing.T) {
	tables := []struct {
		width, height, tileSize int
	}{
		{1217, 797, 256},
		{256, 256, 256},
		{1, 1, 256},
		{513, 1, 256},
		{1, 513, 256},
		{100, 37, 4},
		{9, 9, 2},
		{1000, 700, 7},
	}

	for _, table := range tables {
		plan, err := pyramid.NewPlan(table.width, table.height, table.tileSize, "jpg")
		require.Nil(t, err)

		c := newFakeCanvas(t, table.width, table.height)
		comp := &Compositor{Canvas: c, Plan: plan, Dir: "out"}

		n, err := comp.Composite(context.Background())
		require.Nil(t, err)
		assert.Equal(t, plan.NumTiles(), n)
		assert.Equal(t, plan.NumTiles(), len(c.files))
		assert.Equal(t, 0, c.live, "rows leaked")
		assert.True(t, c.peak <= 2*len(plan.Levels())+2, "peak %d", c.peak)

		for _, tile := range plan.Tiles() {
			r, ok := c.files[filepath.Join("out", filepath.FromSlash(plan.Path(tile)))]
			if assert.True(t, ok, tile.Filename("jpg")) {
				assert.Equal(t, plan.Rect(tile).Size(), r.Size())
			}
		}
	}
}

func TestCompositeOverlap(t *testing.T) {
	tables := []struct {
		width, height, tileSize, overlap int
	}{
		{600, 600, 256, 2},
		{1217, 797, 256, 1},
		{100, 37, 4, 4},
		{9, 9, 2, 1},
		{513, 1, 256, 3},
		{1, 513, 256, 3},
		{1000, 700, 7, 5},
	}

	for _, table := range tables {
		plan, err := pyramid.NewPlan(table.width, table.height, table.tileSize, "jpg")
		require.Nil(t, err)

		c := newFakeCanvas(t, table.width, table.height)
		comp := &Compositor{Canvas: c, Plan: plan, Dir: "out", Overlap: table.overlap}

		n, err := comp.Composite(context.Background())
		require.Nil(t, err)
		assert.Equal(t, plan.NumTiles(), n)
		assert.Equal(t, 0, c.live, "rows leaked")
		assert.True(t, c.peak <= 4*len(plan.Levels())+4, "peak %d", c.peak)

		for _, tile := range plan.Tiles() {
			r, ok := c.files[filepath.Join("out", filepath.FromSlash(plan.Path(tile)))]
			if assert.True(t, ok, tile.Filename("jpg")) {
				padded := plan.Rect(tile).Inset(-table.overlap).Intersect(plan.Level(tile.Tier).Bounds())
				assert.Equal(t, padded.Size(), r.Size(), tile.Filename("jpg"))
			}
		}
	}
}

func TestCompositeOverlapRects(t *testing.T) {
	plan, err := pyramid.NewPlan(600, 600, 256, "jpg")
	require.Nil(t, err)

	c := newFakeCanvas(t, 600, 600)
	comp := &Compositor{Canvas: c, Plan: plan, Dir: "out", Overlap: 2}

	_, err = comp.Composite(context.Background())
	require.Nil(t, err)

	file := func(tier, column, row int) string {
		return filepath.Join("out", filepath.FromSlash(plan.Path(pyramid.Tile{Tier: tier, Column: column, Row: row})))
	}

	// Rects are relative to the row padded with the neighbouring rows
	assert.Equal(t, image.Rect(0, 0, 258, 258), c.files[file(2, 0, 0)])
	assert.Equal(t, image.Rect(254, 0, 514, 258), c.files[file(2, 1, 0)])
	assert.Equal(t, image.Rect(254, 0, 514, 260), c.files[file(2, 1, 1)])
	assert.Equal(t, image.Rect(510, 0, 600, 90), c.files[file(2, 2, 2)])
	assert.Equal(t, image.Rect(0, 0, 258, 258), c.files[file(1, 0, 0)])
	assert.Equal(t, image.Rect(254, 0, 300, 46), c.files[file(1, 1, 1)])
	assert.Equal(t, image.Rect(0, 0, 150, 150), c.files[file(0, 0, 0)])

	c = newFakeCanvas(t, 600, 600)
	_, err = (&Compositor{Canvas: c, Plan: plan, Dir: "out", Overlap: 257}).Composite(context.Background())
	assert.Equal(t, errOverlap, err)

	_, err = (&Compositor{Canvas: c, Plan: plan, Dir: "out", Overlap: -1}).Composite(context.Background())
	assert.Equal(t, errOverlap, err)
}

func TestCompositeWorkers(t *testing.T) {
	plan, err := pyramid.NewPlan(1217, 797, 64, "jpg")
	require.Nil(t, err)

	c := newFakeCanvas(t, 1217, 797)
	comp := &Compositor{Canvas: c, Plan: plan, Dir: "out", Workers: 4}

	n, err := comp.Composite(context.Background())
	require.Nil(t, err)
	assert.Equal(t, plan.NumTiles(), n)
	assert.Equal(t, plan.NumTiles(), len(c.files))
	assert.Equal(t, 0, c.live)
}

func TestCompositeErrors(t *testing.T) {
	plan, err := pyramid.NewPlan(1217, 797, 256, "jpg")
	require.Nil(t, err)

	c := newFakeCanvas(t, 1217, 796)
	_, err = (&Compositor{Canvas: c, Plan: plan, Dir: "out"}).Composite(context.Background())
	assert.True(t, errors.Is(err, errSourceSize))

	c = newFakeCanvas(t, 1217, 797)
	c.failOn = "2-1-1.jpg"
	n, err := (&Compositor{Canvas: c, Plan: plan, Dir: "out"}).Composite(context.Background())
	assert.NotNil(t, err)
	assert.True(t, n < plan.NumTiles())
	assert.Equal(t, 0, c.live, "rows leaked")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c = newFakeCanvas(t, 1217, 797)
	_, err = (&Compositor{Canvas: c, Plan: plan, Dir: "out"}).Composite(ctx)
	assert.Equal(t, context.Canceled, err)
}

func TestCompositeReleaseError(t *testing.T) {
	plan, err := pyramid.NewPlan(1217, 797, 256, "jpg")
	require.Nil(t, err)

	for _, overlap := range []int{0, 2} {
		c := newFakeCanvas(t, 1217, 797)
		c.releaseErr = errors.New("release failed")

		_, err = (&Compositor{Canvas: c, Plan: plan, Dir: "out", Overlap: overlap}).Composite(context.Background())
		assert.True(t, errors.Is(err, c.releaseErr), "overlap %d", overlap)
		assert.Equal(t, 0, c.live, "rows leaked")
	}
}

// pixelCanvas is a minimal in-memory Canvas that really writes PNG tiles.
type pixelCanvas struct {
	source *image.RGBA
}

type pixelRow struct {
	*image.RGBA
}

func (r pixelRow) Size() image.Point {
	return r.Bounds().Size()
}

func (c *pixelCanvas) Source(ctx context.Context) (Row, error) {
	return pixelRow{c.source}, nil
}

func (c *pixelCanvas) Crop(ctx context.Context, row Row, r image.Rectangle) (Row, error) {
	return pixelRow{copyOf(row.(pixelRow).SubImage(r))}, nil
}

func (c *pixelCanvas) Scale(ctx context.Context, row Row, width, height int) (Row, error) {
	src := row.(pixelRow)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	sw, sh := src.Size().X, src.Size().Y
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			dst.Set(x, y, src.At(x*sw/width, y*sh/height))
		}
	}
	return pixelRow{dst}, nil
}

func (c *pixelCanvas) Stack(ctx context.Context, top, bottom Row) (Row, error) {
	t, b := top.(pixelRow), bottom.(pixelRow)
	dst := image.NewRGBA(image.Rect(0, 0, t.Size().X, t.Size().Y+b.Size().Y))
	for y := 0; y < t.Size().Y; y++ {
		for x := 0; x < t.Size().X; x++ {
			dst.Set(x, y, t.At(x, y))
		}
	}
	for y := 0; y < b.Size().Y; y++ {
		for x := 0; x < b.Size().X; x++ {
			dst.Set(x, t.Size().Y+y, b.At(x, y))
		}
	}
	return pixelRow{dst}, nil
}

func (c *pixelCanvas) Encode(ctx context.Context, row Row, r image.Rectangle, file string) error {
	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, row.(pixelRow).SubImage(r))
}

func (c *pixelCanvas) Release(row Row) error {
	return nil
}

func copyOf(m image.Image) *image.RGBA {
	b := m.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.Set(x, y, m.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

func TestCompositeFiles(t *testing.T) {
	tables := []struct {
		overlap int
		size    image.Point
		r, g    uint32
	}{
		{0, image.Pt(16, 13), 16, 32},
		{1, image.Pt(18, 14), 15, 31},
	}

	src := image.NewRGBA(image.Rect(0, 0, 70, 45))
	for y := 0; y < 45; y++ {
		for x := 0; x < 70; x++ {
			src.Set(x, y, color.RGBA{uint8(x), uint8(y), 0, 0xff})
		}
	}

	for _, table := range tables {
		dir, err := ioutil.TempDir("", "compose")
		require.Nil(t, err)
		defer os.RemoveAll(dir)

		plan, err := pyramid.NewPlan(70, 45, 16, "png")
		require.Nil(t, err)

		for _, g := range plan.Groups() {
			require.Nil(t, os.Mkdir(filepath.Join(dir, g.Name()), 0755))
		}

		comp := &Compositor{Canvas: &pixelCanvas{src}, Plan: plan, Dir: dir, Overlap: table.overlap}
		n, err := comp.Composite(context.Background())
		require.Nil(t, err)
		assert.Equal(t, plan.NumTiles(), n)

		for _, tile := range plan.Tiles() {
			f, err := os.Open(filepath.Join(dir, filepath.FromSlash(plan.Path(tile))))
			require.Nil(t, err)
			c, err := png.DecodeConfig(f)
			f.Close()
			require.Nil(t, err)
			padded := plan.Rect(tile).Inset(-table.overlap).Intersect(plan.Level(tile.Tier).Bounds())
			assert.Equal(t, padded.Size(), image.Pt(c.Width, c.Height))
		}

		// Top left pixel of a finest tile comes straight from the source
		f, err := os.Open(filepath.Join(dir, filepath.FromSlash(plan.Path(pyramid.Tile{Tier: plan.Finest().Tier, Column: 1, Row: 2}))))
		require.Nil(t, err)
		m, err := png.Decode(f)
		f.Close()
		require.Nil(t, err)
		assert.Equal(t, table.size, m.Bounds().Size())
		r, g, _, _ := m.At(0, 0).RGBA()
		assert.Equal(t, table.r, r>>8)
		assert.Equal(t, table.g, g>>8)
	}
}
