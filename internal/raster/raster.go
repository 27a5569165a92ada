// Package raster decodes single-band rasters and stacks them into composite
// images.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"earthgazer/internal/services"
)

// Output formats.
const (
	FormatTIFF = "tiff"
	FormatPNG  = "png"
)

// Extension returns the file extension written for an output format.
func Extension(format string) string {
	switch strings.ToLower(format) {
	case FormatPNG:
		return "png"
	default:
		return "tif"
	}
}

// Decodable reports whether DecodeFile can read bands stored in format, given
// as a file extension with or without the dot.
func Decodable(format string) bool {
	switch strings.ToLower(strings.TrimPrefix(format, ".")) {
	case "tif", "tiff", "png":
		return true
	default:
		return false
	}
}

// DecodeFile reads a single-band raster. TIFF and PNG are supported.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrRaster, "raster", "open", path, err)
	}
	defer f.Close()

	var img image.Image
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".tif", ".tiff":
		img, err = tiff.Decode(f)
	case ".png":
		img, err = png.Decode(f)
	default:
		return nil, services.Wrap(services.ErrRaster, "raster", "decode", fmt.Sprintf("unsupported raster format %q", ext), nil)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrRaster, "raster", "decode", path, err)
	}
	return img, nil
}

// Stack combines equally sized single-band images into one image whose
// channels follow the order of bands. One band yields 16-bit grayscale;
// three bands yield 16-bit RGB with an opaque alpha channel.
func Stack(bands []image.Image) (image.Image, error) {
	if len(bands) != 1 && len(bands) != 3 {
		return nil, services.Wrap(services.ErrRaster, "raster", "stack", fmt.Sprintf("cannot stack %d bands", len(bands)), nil)
	}
	bounds := bands[0].Bounds()
	for i, band := range bands[1:] {
		if band.Bounds().Size() != bounds.Size() {
			return nil, services.Wrap(services.ErrRaster, "raster", "stack",
				fmt.Sprintf("band %d is %v, band 0 is %v", i+1, band.Bounds().Size(), bounds.Size()), nil)
		}
	}
	rect := image.Rect(0, 0, bounds.Dx(), bounds.Dy())

	if len(bands) == 1 {
		out := image.NewGray16(rect)
		for y := 0; y < rect.Dy(); y++ {
			for x := 0; x < rect.Dx(); x++ {
				out.SetGray16(x, y, color.Gray16{Y: sample(bands[0], x, y)})
			}
		}
		return out, nil
	}

	out := image.NewNRGBA64(rect)
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			out.SetNRGBA64(x, y, color.NRGBA64{
				R: sample(bands[0], x, y),
				G: sample(bands[1], x, y),
				B: sample(bands[2], x, y),
				A: 0xffff,
			})
		}
	}
	return out, nil
}

// sample reads the 16-bit intensity at (x, y) relative to the image origin.
func sample(img image.Image, x, y int) uint16 {
	origin := img.Bounds().Min
	x, y = x+origin.X, y+origin.Y
	switch g := img.(type) {
	case *image.Gray16:
		return g.Gray16At(x, y).Y
	case *image.Gray:
		v := uint16(g.GrayAt(x, y).Y)
		return v<<8 | v
	default:
		return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
	}
}

// Encode writes img in the given output format.
func Encode(w io.Writer, img image.Image, format string) error {
	var err error
	switch strings.ToLower(format) {
	case FormatTIFF, "":
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
	case FormatPNG:
		err = png.Encode(w, img)
	default:
		return services.Wrap(services.ErrConfiguration, "raster", "encode", fmt.Sprintf("unsupported output format %q", format), nil)
	}
	if err != nil {
		return services.Wrap(services.ErrRaster, "raster", "encode", format, err)
	}
	return nil
}

// EncodeFile writes img to path.
func EncodeFile(path string, img image.Image, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return services.Wrap(services.ErrRaster, "raster", "create", path, err)
	}
	if err := Encode(f, img, format); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return services.Wrap(services.ErrRaster, "raster", "close", path, err)
	}
	return nil
}
