/*
Package pyramid plans the layout of a Zoomify tile pyramid.

A pyramid is a sequence of tiers, tier 0 being the smallest. The last tier
has the dimensions of the source image and every coarser tier is obtained by
halving both dimensions, rounding down, until neither dimension exceeds the
tile size.

Each tier is cut into a grid of square tiles of the tile size, the last
column and row being smaller when the tier isn't an exact multiple. Tiles are
numbered globally, tier by tier from the coarsest and row-major within a tier,
and every run of tile size tiles is stored in its own TileGroup directory.
*/
package pyramid

import (
	"errors"
	"fmt"
	"image"
)

var errBadTileSize = errors.New("pyramid: tile size must be at least 1")

// Level is one resolution tier of the pyramid.
type Level struct {
	Tier   int
	Width  int
	Height int
}

// Columns returns the number of tile columns needed to cover the level.
func (l Level) Columns(tileSize int) int {
	return (l.Width + tileSize - 1) / tileSize
}

// Rows returns the number of tile rows needed to cover the level.
func (l Level) Rows(tileSize int) int {
	return (l.Height + tileSize - 1) / tileSize
}

// Bounds returns the pixel rectangle of the whole level.
func (l Level) Bounds() image.Rectangle {
	return image.Rect(0, 0, l.Width, l.Height)
}

// Row returns the pixel rectangle of the full-width strip holding tile row r.
func (l Level) Row(r, tileSize int) image.Rectangle {
	return image.Rect(0, r*tileSize, l.Width, r*tileSize+tileSize).Intersect(l.Bounds())
}

// Tile returns the pixel rectangle of the tile at column c and row r.
func (l Level) Tile(c, r, tileSize int) image.Rectangle {
	return image.Rect(c*tileSize, r*tileSize, c*tileSize+tileSize, r*tileSize+tileSize).Intersect(l.Bounds())
}

func (l Level) String() string {
	return fmt.Sprintf("%d:%dx%d", l.Tier, l.Width, l.Height)
}

func half(v int) int {
	if v /= 2; v < 1 {
		return 1
	}
	return v
}

// Levels returns the resolution tiers for an image of the given dimensions,
// coarsest first. The last level always matches width and height. A
// dimension that would halve to zero is held at one pixel. It returns nil
// unless all three arguments are positive.
func Levels(width, height, tileSize int) []Level {
	if width < 1 || height < 1 || tileSize < 1 {
		return nil
	}

	sizes := []image.Point{{width, height}}
	for width > tileSize || height > tileSize {
		width, height = half(width), half(height)
		sizes = append(sizes, image.Point{width, height})
	}

	levels := make([]Level, len(sizes))
	for i := range sizes {
		p := sizes[len(sizes)-1-i]
		levels[i] = Level{
			Tier:   i,
			Width:  p.X,
			Height: p.Y,
		}
	}
	return levels
}
