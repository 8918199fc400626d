package raster

import (
	"fmt"
	"image"

	"github.com/disintegration/gift"
	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

// Resampler scales an image to exactly width by height pixels. The result
// has its origin at (0, 0).
type Resampler interface {
	Resample(m image.Image, width, height int) image.Image
}

// Interpolations lists the recognised interpolation names.
var Interpolations = []string{"nearest", "bilinear", "bicubic", "mitchell", "lanczos2", "lanczos3"}

// Resamplers lists the recognised resampler names.
var Resamplers = []string{"nfnt", "gift", "xdraw"}

// NFNT resamples with github.com/nfnt/resize.
type NFNT struct {
	Interpolation resize.InterpolationFunction
}

// Resample implements Resampler.
func (n NFNT) Resample(m image.Image, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), m, n.Interpolation)
}

// GIFT resamples with github.com/disintegration/gift.
type GIFT struct {
	Resampling gift.Resampling
}

// Resample implements Resampler.
func (g GIFT) Resample(m image.Image, width, height int) image.Image {
	f := gift.New(gift.Resize(width, height, g.Resampling))
	dst := image.NewRGBA(f.Bounds(m.Bounds()))
	f.Draw(dst, m)
	return dst
}

// XDraw resamples with golang.org/x/image/draw.
type XDraw struct {
	Interpolator draw.Interpolator
}

// Resample implements Resampler.
func (x XDraw) Resample(m image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	x.Interpolator.Scale(dst, dst.Bounds(), m, m.Bounds(), draw.Src, nil)
	return dst
}

// NewResampler returns the named resampler configured for the named
// interpolation. Libraries lacking a given kernel fall back to the closest
// one they have.
func NewResampler(name, interpolation string) (Resampler, error) {
	switch name {
	case "", "nfnt":
		interp, ok := map[string]resize.InterpolationFunction{
			"nearest":  resize.NearestNeighbor,
			"bilinear": resize.Bilinear,
			"bicubic":  resize.Bicubic,
			"mitchell": resize.MitchellNetravali,
			"lanczos2": resize.Lanczos2,
			"lanczos3": resize.Lanczos3,
		}[interpolation]
		if !ok {
			break
		}
		return NFNT{interp}, nil
	case "gift":
		resampling, ok := map[string]gift.Resampling{
			"nearest":  gift.NearestNeighborResampling,
			"bilinear": gift.LinearResampling,
			"bicubic":  gift.CubicResampling,
			"mitchell": gift.CubicResampling,
			"lanczos2": gift.LanczosResampling,
			"lanczos3": gift.LanczosResampling,
		}[interpolation]
		if !ok {
			break
		}
		return GIFT{resampling}, nil
	case "xdraw":
		interpolator, ok := map[string]draw.Interpolator{
			"nearest":  draw.NearestNeighbor,
			"bilinear": draw.BiLinear,
			"bicubic":  draw.CatmullRom,
			"mitchell": draw.CatmullRom,
			"lanczos2": draw.CatmullRom,
			"lanczos3": draw.CatmullRom,
		}[interpolation]
		if !ok {
			break
		}
		return XDraw{interpolator}, nil
	default:
		return nil, fmt.Errorf("raster: unknown resampler %q", name)
	}
	return nil, fmt.Errorf("raster: unknown interpolation %q", interpolation)
}
