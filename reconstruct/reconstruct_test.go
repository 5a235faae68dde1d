package reconstruct

import (
	"math"
	"math/rand"
	"testing"

	"github.com/chges100/AstroNoiseNet/nn"
	"github.com/chges100/AstroNoiseNet/tensor"
)

func TestNewValidatesGeometry(t *testing.T) {
	cases := []struct {
		name           string
		window, stride int
		wantErr        bool
	}{
		{"Valid", 32, 16, false},
		{"EqualStride", 32, 32, false},
		{"StrideTooLarge", 16, 32, true},
		{"OddBorder", 32, 17, true},
		{"ZeroStride", 32, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(nn.Identity{}, tc.window, tc.stride)
			if tc.wantErr && err == nil {
				t.Errorf("New(%d, %d) succeeded, want error", tc.window, tc.stride)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("New(%d, %d) failed: %v", tc.window, tc.stride, err)
			}
		})
	}
}

func TestIdentityReconstruction(t *testing.T) {
	// With an identity generator the tiling, padding and cropping
	// arithmetic must reproduce the input.
	rng := rand.New(rand.NewSource(3))
	img := tensor.NewImage(50, 70, 3)
	for i := range img.Data {
		img.Data[i] = rng.Float32()
	}

	tr, err := New(nn.Identity{}, 32, 16)
	if err != nil {
		t.Fatal(err)
	}
	out, err := tr.Transform(img)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	if out.H != img.H || out.W != img.W || out.C != img.C {
		t.Fatalf("output shape %dx%dx%d, want %dx%dx%d", out.H, out.W, out.C, img.H, img.W, img.C)
	}
	for i := range img.Data {
		if math.Abs(float64(out.Data[i]-img.Data[i])) > 1e-6 {
			t.Fatalf("pixel %d = %v, want %v", i, out.Data[i], img.Data[i])
		}
	}
}

func TestFlatImagesRoundTrip(t *testing.T) {
	// Two constant 64x64 single-channel images through an identity
	// generator at window 32, stride 16.
	tr, err := New(nn.Identity{}, 32, 16)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []float32{0.2, 0.8} {
		img := tensor.NewImage(64, 64, 1)
		for i := range img.Data {
			img.Data[i] = v
		}
		out, err := tr.Transform(img)
		if err != nil {
			t.Fatalf("Transform failed: %v", err)
		}
		for i := range out.Data {
			if math.Abs(float64(out.Data[i]-v)) > 1e-6 {
				t.Fatalf("value %v reconstructed as %v at pixel %d", v, out.Data[i], i)
			}
		}
	}
}

// markTiles is a generator that overwrites each window with a unique
// constant, exposing which tile wrote each output pixel. The k-th call
// produces the value that lands at k/100 in unit range.
type markTiles struct {
	calls int
}

func (m *markTiles) Forward(x *tensor.Batch) *nn.GenResult {
	out := x.Clone()
	m.calls++
	marker := 2*float32(m.calls)/100 - 1
	for i := range out.Data {
		out.Data[i] = marker
	}
	return &nn.GenResult{Output: out}
}

func (m *markTiles) Backprop(*nn.GenResult, *tensor.Batch) {}
func (m *markTiles) Params() []*nn.Param                   { return nil }

func TestTilingCoverage(t *testing.T) {
	// Every output pixel must come from exactly one tile's central
	// region: each stride-aligned block of the output must carry
	// exactly the marker of the one tile responsible for it.
	const window, stride = 8, 4
	tr, err := New(&markTiles{}, window, stride)
	if err != nil {
		t.Fatal(err)
	}

	img := tensor.NewImage(10, 14, 1)
	out, err := tr.Transform(img)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}

	itw := img.W/stride + 1
	for y := 0; y < out.H; y++ {
		for x := 0; x < out.W; x++ {
			tile := (y/stride)*itw + x/stride + 1
			want := float32(tile) / 100
			if got := out.At(y, x, 0); math.Abs(float64(got-want)) > 1e-6 {
				t.Fatalf("pixel (%d,%d) = %v, want tile %d marker %v", y, x, got, tile, want)
			}
		}
	}
}

func TestTransformClipsOutput(t *testing.T) {
	// A generator pushing values outside the signed range must still
	// produce a [0,1] result.
	gen := &markTiles{calls: 100}
	tr, err := New(gen, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	img := tensor.NewImage(8, 8, 1)
	out, err := tr.Transform(img)
	if err != nil {
		t.Fatalf("Transform failed: %v", err)
	}
	for i, v := range out.Data {
		if v < 0 || v > 1 {
			t.Fatalf("pixel %d = %v outside [0,1]", i, v)
		}
	}
}
