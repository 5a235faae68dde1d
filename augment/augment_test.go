package augment

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/chges100/AstroNoiseNet/stats"
	"github.com/chges100/AstroNoiseNet/tensor"
)

// noStretch is used where a deterministic pipeline is needed.
func noStretch(_, _ *tensor.Image, _, _ float32, _ *stats.Estimate) {}

func flatEstimate(c int) *stats.Estimate {
	est := &stats.Estimate{Median: make([]float32, c), MAD: make([]float32, c)}
	for i := 0; i < c; i++ {
		est.Median[i] = 0.1
		est.MAD[i] = 0.02
	}
	return est
}

func TestLinearFitAlignsExposure(t *testing.T) {
	// degraded = 2*reference - 0.1, so the fit reference ≈ a*degraded+b
	// has a=0.5, b=0.05 and must recover the reference exactly.
	reference := tensor.NewImage(4, 4, 1)
	degraded := tensor.NewImage(4, 4, 1)
	for i := range reference.Data {
		reference.Data[i] = 0.1 + 0.05*float32(i%8)
		degraded.Data[i] = 2*reference.Data[i] - 0.1
	}

	if err := LinearFit(degraded, reference, ClipThreshold); err != nil {
		t.Fatalf("LinearFit: %v", err)
	}
	for i := range reference.Data {
		if math.Abs(float64(degraded.Data[i]-reference.Data[i])) > 1e-5 {
			t.Fatalf("pixel %d: %v, want %v", i, degraded.Data[i], reference.Data[i])
		}
	}
}

func TestLinearFitDegenerate(t *testing.T) {
	reference := tensor.NewImage(2, 2, 1)
	degraded := tensor.NewImage(2, 2, 1)
	for i := range reference.Data {
		reference.Data[i] = 0.99 // everything above the clip threshold
		degraded.Data[i] = 0.5
	}
	err := LinearFit(degraded, reference, ClipThreshold)
	if !errors.Is(err, ErrDegenerateFit) {
		t.Fatalf("got %v, want ErrDegenerateFit", err)
	}
}

func TestMidtoneStretchMapsMedianToBackground(t *testing.T) {
	img := tensor.NewImage(2, 2, 1)
	ref := tensor.NewImage(2, 2, 1)
	for i := range img.Data {
		img.Data[i] = 0.1 // the channel median
		ref.Data[i] = 0.1
	}
	MidtoneStretch(img, ref, 0.2, 3.0, flatEstimate(1))
	for i := range img.Data {
		if math.Abs(float64(img.Data[i])-0.2) > 1e-5 {
			t.Fatalf("median pixel stretched to %v, want 0.2", img.Data[i])
		}
		if img.Data[i] != ref.Data[i] {
			t.Fatal("identical inputs must stretch identically")
		}
	}
}

func TestMidtoneStretchDeterministic(t *testing.T) {
	mk := func() (*tensor.Image, *tensor.Image) {
		a := tensor.NewImage(4, 4, 1)
		b := tensor.NewImage(4, 4, 1)
		for i := range a.Data {
			a.Data[i] = float32(i) / 16
			b.Data[i] = float32(i) / 20
		}
		return a, b
	}
	a1, b1 := mk()
	a2, b2 := mk()
	est := flatEstimate(1)
	MidtoneStretch(a1, b1, 0.2, 3.0, est)
	MidtoneStretch(a2, b2, 0.2, 3.0, est)
	for i := range a1.Data {
		if a1.Data[i] != a2.Data[i] || b1.Data[i] != b2.Data[i] {
			t.Fatal("fixed-parameter stretch is not deterministic")
		}
	}
}

func TestMidtoneStretchMonotonicAndBounded(t *testing.T) {
	img := tensor.NewImage(1, 16, 1)
	ref := tensor.NewImage(1, 16, 1)
	for i := range img.Data {
		img.Data[i] = float32(i) / 15
		ref.Data[i] = float32(i) / 15
	}
	MidtoneStretch(img, ref, 0.25, 2.0, flatEstimate(1))
	for i := range img.Data {
		if img.Data[i] < 0 || img.Data[i] > 1 {
			t.Fatalf("stretched value %v out of [0,1]", img.Data[i])
		}
		if i > 0 && img.Data[i] < img.Data[i-1] {
			t.Fatalf("stretch not monotone at %d: %v < %v", i, img.Data[i], img.Data[i-1])
		}
	}
}

// markerPos finds the location of the brightest pixel.
func markerPos(img *tensor.Image) (int, int) {
	bestY, bestX := 0, 0
	var best float32 = -1
	for y := 0; y < img.H; y++ {
		for x := 0; x < img.W; x++ {
			if v := img.At(y, x, 0); v > best {
				best, bestY, bestX = v, y, x
			}
		}
	}
	return bestY, bestX
}

func TestGeometryKeepsPairAligned(t *testing.T) {
	// A one-hot marker placed identically in both images must stay
	// co-located through any randomized flip/rotation combination.
	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		aug := New(noStretch, rng)

		degraded := tensor.NewImage(8, 8, 1)
		reference := tensor.NewImage(8, 8, 1)
		degraded.Set(1, 2, 0, 1)
		reference.Set(1, 2, 0, 1)
		// Keep backgrounds below the clip threshold but non-constant so
		// the linear fit is well posed.
		for i := range degraded.Data {
			if degraded.Data[i] == 0 {
				v := 0.1 + 0.02*float32(i%7)
				degraded.Data[i] = v
				reference.Data[i] = v
			}
		}

		d, r, err := aug.Apply(degraded, reference, flatEstimate(1))
		if err != nil {
			t.Fatalf("seed %d: Apply: %v", seed, err)
		}
		dy, dx := markerPos(d)
		ry, rx := markerPos(r)
		if dy != ry || dx != rx {
			t.Fatalf("seed %d: marker diverged: (%d,%d) vs (%d,%d)", seed, dy, dx, ry, rx)
		}
	}
}

func TestApplyClipsToUnitRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	aug := New(nil, rng)

	degraded := tensor.NewImage(8, 8, 3)
	reference := tensor.NewImage(8, 8, 3)
	for i := range degraded.Data {
		degraded.Data[i] = 0.05 + 0.9*float32((i*31)%64)/64
		reference.Data[i] = 0.05 + 0.9*float32((i*17)%64)/64
	}

	d, r, err := aug.Apply(degraded, reference, flatEstimate(3))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	for _, img := range []*tensor.Image{d, r} {
		for i, v := range img.Data {
			if v < 0 || v > 1 {
				t.Fatalf("element %d out of range: %v", i, v)
			}
		}
	}
}

func TestApplyDeterministicUnderSeed(t *testing.T) {
	run := func() (*tensor.Image, *tensor.Image) {
		rng := rand.New(rand.NewSource(42))
		aug := New(nil, rng)
		degraded := tensor.NewImage(8, 8, 1)
		reference := tensor.NewImage(8, 8, 1)
		for i := range degraded.Data {
			degraded.Data[i] = 0.1 + 0.01*float32(i%32)
			reference.Data[i] = 0.12 + 0.01*float32(i%32)
		}
		d, r, err := aug.Apply(degraded, reference, flatEstimate(1))
		if err != nil {
			panic(err)
		}
		return d, r
	}
	d1, r1 := run()
	d2, r2 := run()
	for i := range d1.Data {
		if d1.Data[i] != d2.Data[i] || r1.Data[i] != r2.Data[i] {
			t.Fatal("seeded augmentation is not reproducible")
		}
	}
}
