package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"strings"

	"github.com/ericpauley/go-quantize/quantize"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
)

const maxColors = 256

// Formats lists the recognised tile formats.
var Formats = []string{"jpg", "jpeg", "png", "gif", "bmp", "tif", "tiff"}

// Supported reports whether tiles can be encoded in format.
func Supported(format string) bool {
	for _, f := range Formats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

func paletted(m image.Image) *image.Paletted {
	b := m.Bounds()

	if pm, ok := m.(*image.Paletted); ok && len(pm.Palette) <= maxColors {
		return pm
	}

	q := quantize.MedianCutQuantizer{}
	pm := image.NewPaletted(b, q.Quantize(make(color.Palette, 0, maxColors), m))
	draw.Draw(pm, b, m, b.Min, draw.Src)

	return pm
}

// Encode writes m to w in format. Quality only applies to JPEG, the other
// formats are lossless apart from the palette reduction GIF requires.
func Encode(w io.Writer, m image.Image, format string, quality int) error {
	switch strings.ToLower(format) {
	case "jpg", "jpeg":
		return jpeg.Encode(w, m, &jpeg.Options{Quality: quality})
	case "png":
		return png.Encode(w, m)
	case "gif":
		return gif.Encode(w, paletted(m), &gif.Options{NumColors: maxColors})
	case "bmp":
		return bmp.Encode(w, m)
	case "tif", "tiff":
		return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	default:
		return fmt.Errorf("raster: unsupported format %q", format)
	}
}
