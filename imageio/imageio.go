// Package imageio reads and writes the image formats the pipeline
// consumes. Internally everything is a channel-last float32 tensor in
// [0,1]; format and axis-order conversion happen only here.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/chges100/AstroNoiseNet/tensor"
)

// Read loads an image by extension (.fits/.fit, .tif/.tiff, .png) into
// a channel-last float32 tensor. channels selects the configured mode
// (1 or 3); a mismatch with the file contents is an error, except that
// raster RGB sources collapse to a single luminance channel in
// single-channel mode.
func Read(path string, channels int) (*tensor.Image, error) {
	switch ext(path) {
	case ".fits", ".fit", ".fts":
		img, err := ReadFITS(path)
		if err != nil {
			return nil, err
		}
		if img.C != channels {
			return nil, fmt.Errorf("%s: has %d channels, expected %d", path, img.C, channels)
		}
		return img, nil
	case ".tif", ".tiff", ".png":
		return readRaster(path, channels)
	default:
		return nil, fmt.Errorf("%s: unsupported image extension", path)
	}
}

// Write stores an image by extension, performing the inverse boundary
// conversion of Read.
func Write(path string, img *tensor.Image) error {
	switch ext(path) {
	case ".fits", ".fit", ".fts":
		return WriteFITS(path, img)
	case ".tif", ".tiff", ".png":
		return writeRaster(path, img)
	default:
		return fmt.Errorf("%s: unsupported image extension", path)
	}
}

func ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

func readRaster(path string, channels int) (*tensor.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var decoded image.Image
	switch ext(path) {
	case ".png":
		decoded, err = png.Decode(f)
	default:
		decoded, err = tiff.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	bounds := decoded.Bounds()
	h, w := bounds.Dy(), bounds.Dx()
	img := tensor.NewImage(h, w, channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := decoded.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			if channels == 1 {
				// ITU-R 601 luma; gray sources have r==g==b anyway.
				lum := (299*float64(r) + 587*float64(g) + 114*float64(b)) / 1000
				img.Set(y, x, 0, float32(lum/65535))
			} else {
				img.Set(y, x, 0, float32(r)/65535)
				img.Set(y, x, 1, float32(g)/65535)
				img.Set(y, x, 2, float32(b)/65535)
			}
		}
	}
	return img, nil
}

func writeRaster(path string, img *tensor.Image) error {
	if img.C != 1 && img.C != 3 {
		return fmt.Errorf("%s: cannot encode %d-channel image", path, img.C)
	}

	var out image.Image
	if img.C == 1 {
		gray := image.NewGray16(image.Rect(0, 0, img.W, img.H))
		for y := 0; y < img.H; y++ {
			for x := 0; x < img.W; x++ {
				gray.SetGray16(x, y, color.Gray16{Y: quantize16(img.At(y, x, 0))})
			}
		}
		out = gray
	} else {
		rgba := image.NewNRGBA64(image.Rect(0, 0, img.W, img.H))
		for y := 0; y < img.H; y++ {
			for x := 0; x < img.W; x++ {
				rgba.SetNRGBA64(x, y, color.NRGBA64{
					R: quantize16(img.At(y, x, 0)),
					G: quantize16(img.At(y, x, 1)),
					B: quantize16(img.At(y, x, 2)),
					A: 65535,
				})
			}
		}
		out = rgba
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch ext(path) {
	case ".png":
		return png.Encode(f, out)
	default:
		return tiff.Encode(f, out, &tiff.Options{Compression: tiff.Deflate})
	}
}

func quantize16(v float32) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 65535
	}
	return uint16(v*65535 + 0.5)
}
