package pyramid

import (
	"errors"
	"fmt"
	"image"
	"path"
)

var errBadDimensions = errors.New("pyramid: image dimensions must be positive")

// Tile identifies a single tile of the pyramid.
type Tile struct {
	Tier   int
	Column int
	Row    int
}

// Filename returns the name the tile is stored under, without its group.
func (t Tile) Filename(ext string) string {
	return fmt.Sprintf("%d-%d-%d.%s", t.Tier, t.Column, t.Row, ext)
}

// GroupName returns the directory name of the n-th tile group.
func GroupName(n int) string {
	return fmt.Sprintf("TileGroup%d", n)
}

// Group is a tile group directory and the tiles assigned to it, in the
// order they were planned.
type Group struct {
	Index int
	Tiles []string
}

// Name returns the directory name of the group.
func (g Group) Name() string {
	return GroupName(g.Index)
}

// Plan is the complete, read-only layout of a pyramid.
type Plan struct {
	width    int
	height   int
	tileSize int
	ext      string
	levels   []Level
	offsets  []int // global index of the first tile of each level
	mapping  map[string]string
	numTiles int
}

// Assign assigns every tile of levels to a tile group. Tiles are visited from
// the coarsest level, row-major within a level, and a new group is opened
// every tileSize tiles counted across the whole pyramid. It returns the
// mapping of tile filename to group name and the number of tiles.
func Assign(levels []Level, tileSize int, ext string) (map[string]string, int) {
	mapping := make(map[string]string)
	n := 0
	for _, l := range levels {
		for r := 0; r < l.Rows(tileSize); r++ {
			for c := 0; c < l.Columns(tileSize); c++ {
				mapping[Tile{l.Tier, c, r}.Filename(ext)] = GroupName(n / tileSize)
				n++
			}
		}
	}
	return mapping, n
}

// NewPlan computes the levels and tile groups for an image of the given
// dimensions. ext is the tile file extension, without the leading dot.
func NewPlan(width, height, tileSize int, ext string) (*Plan, error) {
	if tileSize < 1 {
		return nil, errBadTileSize
	}
	if width < 1 || height < 1 {
		return nil, errBadDimensions
	}

	p := &Plan{
		width:    width,
		height:   height,
		tileSize: tileSize,
		ext:      ext,
		levels:   Levels(width, height, tileSize),
	}

	p.offsets = make([]int, len(p.levels))
	n := 0
	for i, l := range p.levels {
		p.offsets[i] = n
		n += l.Columns(tileSize) * l.Rows(tileSize)
	}

	p.mapping, p.numTiles = Assign(p.levels, tileSize, ext)

	return p, nil
}

// Width returns the width of the source image.
func (p *Plan) Width() int { return p.width }

// Height returns the height of the source image.
func (p *Plan) Height() int { return p.height }

// TileSize returns the tile size, which is also the capacity of a group.
func (p *Plan) TileSize() int { return p.tileSize }

// Ext returns the tile file extension.
func (p *Plan) Ext() string { return p.ext }

// NumTiles returns the total number of tiles across all levels.
func (p *Plan) NumTiles() int { return p.numTiles }

// NumGroups returns the number of tile groups.
func (p *Plan) NumGroups() int {
	return (p.numTiles + p.tileSize - 1) / p.tileSize
}

// Levels returns a copy of the levels, coarsest first.
func (p *Plan) Levels() []Level {
	return append([]Level(nil), p.levels...)
}

// Level returns the level for the given tier.
func (p *Plan) Level(tier int) Level {
	return p.levels[tier]
}

// Finest returns the full resolution level.
func (p *Plan) Finest() Level {
	return p.levels[len(p.levels)-1]
}

// Index returns the global generation index of a tile.
func (p *Plan) Index(t Tile) int {
	return p.offsets[t.Tier] + t.Row*p.levels[t.Tier].Columns(p.tileSize) + t.Column
}

// GroupOf returns the name of the group a tile filename belongs to and
// whether the tile is part of the plan.
func (p *Plan) GroupOf(filename string) (string, bool) {
	g, ok := p.mapping[filename]
	return g, ok
}

// Path returns the slash-separated path of a tile relative to the
// destination directory, i.e. "TileGroup{n}/{tier}-{column}-{row}.{ext}".
func (p *Plan) Path(t Tile) string {
	name := t.Filename(p.ext)
	g, ok := p.mapping[name]
	if !ok {
		g = GroupName(0)
	}
	return path.Join(g, name)
}

// Rect returns the pixel rectangle of a tile within its level.
func (p *Plan) Rect(t Tile) image.Rectangle {
	return p.levels[t.Tier].Tile(t.Column, t.Row, p.tileSize)
}

// Tiles returns every tile in generation order.
func (p *Plan) Tiles() []Tile {
	tiles := make([]Tile, 0, p.numTiles)
	for _, l := range p.levels {
		for r := 0; r < l.Rows(p.tileSize); r++ {
			for c := 0; c < l.Columns(p.tileSize); c++ {
				tiles = append(tiles, Tile{l.Tier, c, r})
			}
		}
	}
	return tiles
}

// Groups returns every tile group with its members in generation order.
func (p *Plan) Groups() []Group {
	groups := make([]Group, 0, p.NumGroups())
	for i, t := range p.Tiles() {
		if i%p.tileSize == 0 {
			groups = append(groups, Group{Index: i / p.tileSize})
		}
		g := &groups[len(groups)-1]
		g.Tiles = append(g.Tiles, t.Filename(p.ext))
	}
	return groups
}
