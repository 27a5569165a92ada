package testsupport

import (
	"bytes"
	"image"
	"image/color"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/image/tiff"
)

// LandsatBands are the tracked Landsat 8 bands.
var LandsatBands = []string{"B2", "B3", "B4", "B5", "B6", "B7"}

// BandValue is the constant pixel value SeedLandsatScene writes for a band:
// the band number times 1000.
func BandValue(band string) uint16 {
	n, err := strconv.Atoi(strings.TrimLeft(strings.TrimPrefix(band, "B"), "0"))
	if err != nil {
		return 1
	}
	return uint16(n * 1000)
}

// GrayTIFF encodes a width x height 16-bit grayscale TIFF filled with value.
func GrayTIFF(t testing.TB, width, height int, value uint16) []byte {
	t.Helper()
	data, err := grayTIFF(width, height, value)
	if err != nil {
		t.Fatalf("encode tiff: %v", err)
	}
	return data
}

func grayTIFF(width, height int, value uint16) ([]byte, error) {
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: value})
		}
	}
	var buf bytes.Buffer
	if err := tiff.Encode(&buf, img, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SeedLandsatScene stores one TIFF per band under base, named the way the
// public Landsat bucket names them. With no bands given every tracked band is
// written.
func SeedLandsatScene(m *MemoryStore, base, sceneID string, width, height int, bands ...string) {
	if len(bands) == 0 {
		bands = LandsatBands
	}
	for _, band := range bands {
		data, err := grayTIFF(width, height, BandValue(band))
		if err != nil {
			panic(err)
		}
		m.Put(base+"/"+sceneID+"_"+band+".TIF", data)
	}
}
