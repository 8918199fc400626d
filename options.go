package zoomify

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/bodgit/zoomify/raster"
)

// Backend names.
const (
	BackendAuto   = ""
	BackendGo     = "go"
	BackendMagick = "magick"
	BackendVips   = "vips"
)

// Backends lists the recognised backend names.
var Backends = []string{BackendGo, BackendMagick, BackendVips}

// Options configures a Zoomify. The TOML keys match the option names used
// on the command line.
type Options struct {
	TileSize          int         `toml:"tileSize"`
	TileOverlap       int         `toml:"tileOverlap"`
	TileFormat        string      `toml:"tileFormat"`
	TileQuality       int         `toml:"tileQuality"`
	DestinationRemove bool        `toml:"destinationRemove"`
	DirMode           os.FileMode `toml:"dirMode"`

	// Backend is one of Backends, or empty to pick the first available
	// of vips, magick and go.
	Backend       string `toml:"backend"`
	Interpolation string `toml:"interpolation"`
	// Resampler selects the scaling library of the go backend.
	Resampler string `toml:"resampler"`
	// Workers bounds the tiles Process encodes concurrently within a row.
	// Scan instead tiles up to Workers images concurrently and encodes
	// the tiles of each one at a time.
	Workers int `toml:"workers"`

	// ConvertPath and VipsPath override the executables otherwise looked up
	// in the PATH.
	ConvertPath string `toml:"convertPath"`
	VipsPath    string `toml:"vipsPath"`
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		TileSize:      256,
		TileOverlap:   0,
		TileFormat:    "jpg",
		TileQuality:   85,
		DirMode:       0755,
		Backend:       BackendAuto,
		Interpolation: "bicubic",
		Resampler:     "nfnt",
		Workers:       1,
	}
}

// LoadOptions reads options from a TOML file on top of the defaults. Keys
// that do not correspond to an option are an error.
func LoadOptions(file string) (Options, error) {
	opts := DefaultOptions()

	md, err := toml.DecodeFile(file, &opts)
	if err != nil {
		return Options{}, err
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Options{}, fmt.Errorf("%w: %s: unknown keys %s", ErrInvalidOptions, file, strings.Join(keys, ", "))
	}

	return opts, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Validate checks the options are usable.
func (o Options) Validate() error {
	switch {
	case o.TileSize < 1:
		return fmt.Errorf("%w: tile size %d", ErrInvalidOptions, o.TileSize)
	case o.TileOverlap < 0 || o.TileOverlap > o.TileSize:
		return fmt.Errorf("%w: tile overlap %d", ErrInvalidOptions, o.TileOverlap)
	case o.TileQuality < 1 || o.TileQuality > 100:
		return fmt.Errorf("%w: tile quality %d", ErrInvalidOptions, o.TileQuality)
	case !raster.Supported(o.TileFormat):
		return fmt.Errorf("%w: tile format %q", ErrInvalidOptions, o.TileFormat)
	case !contains(raster.Interpolations, o.Interpolation):
		return fmt.Errorf("%w: interpolation %q", ErrInvalidOptions, o.Interpolation)
	case !contains(raster.Resamplers, o.Resampler):
		return fmt.Errorf("%w: resampler %q", ErrInvalidOptions, o.Resampler)
	case o.Workers < 1:
		return fmt.Errorf("%w: workers %d", ErrInvalidOptions, o.Workers)
	case o.DirMode&os.ModePerm == 0:
		return fmt.Errorf("%w: directory mode %v", ErrInvalidOptions, o.DirMode)
	}
	return nil
}

func (o Options) ext() string {
	return strings.ToLower(o.TileFormat)
}
