package raster

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"earthgazer/internal/services"
)

func constGray(w, h int, v uint16) *image.Gray16 {
	img := image.NewGray16(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray16(x, y, color.Gray16{Y: v})
		}
	}
	return img
}

func TestStackPreservesChannelOrder(t *testing.T) {
	out, err := Stack([]image.Image{constGray(3, 2, 4000), constGray(3, 2, 3000), constGray(3, 2, 2000)})
	if err != nil {
		t.Fatalf("Stack: %v", err)
	}
	rgb, ok := out.(*image.NRGBA64)
	if !ok {
		t.Fatalf("expected NRGBA64, got %T", out)
	}
	px := rgb.NRGBA64At(2, 1)
	if px.R != 4000 || px.G != 3000 || px.B != 2000 || px.A != 0xffff {
		t.Fatalf("unexpected pixel %+v", px)
	}
}

func TestStackSingleBand(t *testing.T) {
	out, err := Stack([]image.Image{constGray(2, 2, 77)})
	if err != nil {
		t.Fatalf("Stack: %v", err)
	}
	if g, ok := out.(*image.Gray16); !ok || g.Gray16At(1, 1).Y != 77 {
		t.Fatalf("unexpected single band output %T", out)
	}
}

func TestStackRejectsMismatchedBands(t *testing.T) {
	_, err := Stack([]image.Image{constGray(2, 2, 1), constGray(3, 2, 1), constGray(2, 2, 1)})
	if !errors.Is(err, services.ErrRaster) {
		t.Fatalf("expected raster error, got %v", err)
	}
	_, err = Stack([]image.Image{constGray(2, 2, 1), constGray(2, 2, 1)})
	if !errors.Is(err, services.ErrRaster) {
		t.Fatalf("expected raster error for two bands, got %v", err)
	}
}

func TestEncodeDecodeRoundTripTIFF(t *testing.T) {
	stacked, err := Stack([]image.Image{constGray(4, 4, 500), constGray(4, 4, 600), constGray(4, 4, 700)})
	if err != nil {
		t.Fatalf("Stack: %v", err)
	}
	path := filepath.Join(t.TempDir(), "rgb.tif")
	if err := EncodeFile(path, stacked, FormatTIFF); err != nil {
		t.Fatalf("EncodeFile: %v", err)
	}
	decoded, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	r, g, b, _ := decoded.At(3, 3).RGBA()
	if r != 500 || g != 600 || b != 700 {
		t.Fatalf("decoded pixel = %d/%d/%d", r, g, b)
	}
}

func TestEncodeRejectsUnknownFormat(t *testing.T) {
	err := Encode(&bytes.Buffer{}, constGray(1, 1, 1), "jp2")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	_, err := DecodeFile(filepath.Join(t.TempDir(), "band.jp2"))
	if !errors.Is(err, services.ErrRaster) {
		t.Fatalf("expected raster error, got %v", err)
	}
}

func TestExtension(t *testing.T) {
	if Extension("PNG") != "png" || Extension(FormatTIFF) != "tif" {
		t.Fatal("unexpected extensions")
	}
}

func TestDecodable(t *testing.T) {
	cases := map[string]bool{
		"TIF":  true,
		".tif": true,
		"tiff": true,
		"png":  true,
		"jp2":  false,
		"":     false,
	}
	for format, want := range cases {
		if got := Decodable(format); got != want {
			t.Fatalf("Decodable(%q) = %v, want %v", format, got, want)
		}
	}
}
