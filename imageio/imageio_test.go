package imageio

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/chges100/AstroNoiseNet/tensor"
)

func rampImage(h, w, c int) *tensor.Image {
	img := tensor.NewImage(h, w, c)
	n := float32(img.NumElems())
	for i := range img.Data {
		img.Data[i] = float32(i) / n
	}
	return img
}

func TestFITSRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		h, w, c int
	}{
		{"Greyscale", 5, 7, 1},
		{"RGB", 4, 6, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := rampImage(tc.h, tc.w, tc.c)
			path := filepath.Join(t.TempDir(), "test.fits")
			if err := WriteFITS(path, src); err != nil {
				t.Fatalf("WriteFITS: %v", err)
			}

			got, err := ReadFITS(path)
			if err != nil {
				t.Fatalf("ReadFITS: %v", err)
			}
			if !got.SameShape(src) {
				t.Fatalf("shape [%d %d %d], want [%d %d %d]", got.H, got.W, got.C, src.H, src.W, src.C)
			}
			for i := range src.Data {
				if got.Data[i] != src.Data[i] {
					t.Fatalf("pixel %d: %v != %v", i, got.Data[i], src.Data[i])
				}
			}
		})
	}
}

func TestReadChannelMismatch(t *testing.T) {
	src := rampImage(4, 4, 3)
	path := filepath.Join(t.TempDir(), "rgb.fits")
	if err := WriteFITS(path, src); err != nil {
		t.Fatalf("WriteFITS: %v", err)
	}
	if _, err := Read(path, 1); err == nil {
		t.Error("expected channel mismatch error for FITS read")
	}
}

func TestRasterRoundTrip(t *testing.T) {
	for _, name := range []string{"out.tif", "out.png"} {
		t.Run(name, func(t *testing.T) {
			src := rampImage(6, 5, 3)
			path := filepath.Join(t.TempDir(), name)
			if err := Write(path, src); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got, err := Read(path, 3)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !got.SameShape(src) {
				t.Fatalf("shape mismatch after round trip")
			}
			// 16-bit quantization tolerance.
			for i := range src.Data {
				if math.Abs(float64(got.Data[i]-src.Data[i])) > 1.0/65535+1e-6 {
					t.Fatalf("pixel %d: %v != %v", i, got.Data[i], src.Data[i])
				}
			}
		})
	}
}

func TestUnsupportedExtension(t *testing.T) {
	if _, err := Read("image.xyz", 1); err == nil {
		t.Error("expected error for unknown extension")
	}
	if err := Write("image.xyz", rampImage(2, 2, 1)); err == nil {
		t.Error("expected error for unknown extension")
	}
}
