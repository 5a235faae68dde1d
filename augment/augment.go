// Package augment implements the per-patch training augmentation
// pipeline: brightness alignment, nonlinear stretch, synchronized
// geometric transforms and color jitter. Order matters: later stages
// assume the normalization done by earlier ones.
package augment

import (
	"errors"
	"fmt"
	"math/rand"

	colorful "github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/stat"

	"github.com/chges100/AstroNoiseNet/stats"
	"github.com/chges100/AstroNoiseNet/tensor"
)

// ClipThreshold is the brightness level above which pixels are excluded
// from the linear brightness fit, in training and validation alike.
const ClipThreshold = 0.95

// ErrDegenerateFit is returned when no pixel falls below the clip
// threshold, leaving the linear fit without samples.
var ErrDegenerateFit = errors.New("linear fit: no pixels below clip threshold")

// Training-time stretch parameter ranges.
const (
	sigmaMin = 1.5
	sigmaMax = 4.0
	bgMin    = 0.15
	bgMax    = 0.30
)

// Augmentor applies the augmentation pipeline to sampled patch pairs.
// The random source is injected so runs are reproducible under a fixed
// seed.
type Augmentor struct {
	Stretch StretchFunc
	rng     *rand.Rand
}

// New creates an Augmentor using the given stretch function and random
// source. A nil stretch falls back to MidtoneStretch.
func New(stretch StretchFunc, rng *rand.Rand) *Augmentor {
	if stretch == nil {
		stretch = MidtoneStretch
	}
	return &Augmentor{Stretch: stretch, rng: rng}
}

// Apply runs the full pipeline on a degraded/reference patch pair. The
// inputs must already be copies of the dataset windows; they are
// mutated freely. Returned images may be new allocations (rotation).
func (a *Augmentor) Apply(degraded, reference *tensor.Image, est *stats.Estimate) (*tensor.Image, *tensor.Image, error) {
	if !degraded.SameShape(reference) {
		return nil, nil, fmt.Errorf("patch shapes differ: %v vs %v", degraded, reference)
	}

	if err := LinearFit(degraded, reference, ClipThreshold); err != nil {
		return nil, nil, err
	}

	sigma := sigmaMin + (sigmaMax-sigmaMin)*a.rng.Float32()
	bg := bgMin + (bgMax-bgMin)*a.rng.Float32()
	a.Stretch(degraded, reference, bg, sigma, est)

	degraded, reference = a.geometry(degraded, reference)

	if degraded.C == 3 {
		a.colorJitter(degraded, reference)
	} else {
		a.brightnessJitter(degraded, reference)
	}

	degraded.Clip(0, 1)
	reference.Clip(0, 1)
	return degraded, reference, nil
}

// LinearFit removes exposure/gain mismatch between the captures: per
// channel it fits reference ≈ a*degraded + b over pixels where the
// reference lies below clip, then overwrites the degraded channel with
// a*degraded + b.
func LinearFit(degraded, reference *tensor.Image, clip float32) error {
	for c := 0; c < degraded.C; c++ {
		var xs, ys []float64
		for i := c; i < len(reference.Data); i += reference.C {
			if reference.Data[i] < clip {
				xs = append(xs, float64(degraded.Data[i]))
				ys = append(ys, float64(reference.Data[i]))
			}
		}
		if len(xs) == 0 {
			return fmt.Errorf("channel %d: %w", c, ErrDegenerateFit)
		}
		intercept, slope := stat.LinearRegression(xs, ys, nil, false)
		for i := c; i < len(degraded.Data); i += degraded.C {
			degraded.Data[i] = float32(slope*float64(degraded.Data[i]) + intercept)
		}
	}
	return nil
}

// geometry applies the same randomly chosen flips and rotation to both
// images, preserving pixel correspondence.
func (a *Augmentor) geometry(degraded, reference *tensor.Image) (*tensor.Image, *tensor.Image) {
	if a.rng.Float64() < 0.5 {
		degraded.FlipH()
		reference.FlipH()
	}
	if a.rng.Float64() < 0.5 {
		degraded.FlipV()
		reference.FlipV()
	}
	if a.rng.Float64() < 0.75 {
		k := a.rng.Intn(3) + 1
		degraded = degraded.Rot90(k)
		reference = reference.Rot90(k)
	}
	return degraded, reference
}

// colorJitter perturbs hue, saturation and value with one shared draw
// per patch pair, clipping HSV to valid range before converting back.
func (a *Augmentor) colorJitter(degraded, reference *tensor.Image) {
	hue := a.rng.NormFloat64() * 0.2
	sat := a.rng.NormFloat64()*0.25 + 1.25
	val := a.rng.NormFloat64() * 0.1

	jitterHSV(degraded, hue, sat, val)
	jitterHSV(reference, hue, sat, val)
}

func jitterHSV(img *tensor.Image, hue, sat, val float64) {
	for i := 0; i < len(img.Data); i += 3 {
		col := colorful.Color{
			R: float64(img.Data[i]),
			G: float64(img.Data[i+1]),
			B: float64(img.Data[i+2]),
		}
		h, s, v := col.Hsv()

		// Hue works in [0,1) turns and wraps around.
		ht := h/360 + hue
		for ht < 0 {
			ht++
		}
		for ht >= 1 {
			ht--
		}
		s = clamp01(s * sat)
		v = clamp01(v + val)

		out := colorful.Hsv(ht*360, s, v).Clamped()
		img.Data[i] = float32(out.R)
		img.Data[i+1] = float32(out.G)
		img.Data[i+2] = float32(out.B)
	}
}

// brightnessJitter is the single-channel analogue: with probability 0.7
// both images receive a shared offset blended towards white.
func (a *Augmentor) brightnessJitter(degraded, reference *tensor.Image) {
	if a.rng.Float64() >= 0.70 {
		return
	}
	m := degraded.Min()
	if rm := reference.Min(); rm < m {
		m = rm
	}
	offset := a.rng.Float32()*0.25 - a.rng.Float32()*m
	applyOffset(degraded, offset)
	applyOffset(reference, offset)
}

func applyOffset(img *tensor.Image, offset float32) {
	for i, v := range img.Data {
		img.Data[i] = v + offset*(1-v)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
