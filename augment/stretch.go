package augment

import (
	"math"

	"github.com/chges100/AstroNoiseNet/stats"
	"github.com/chges100/AstroNoiseNet/tensor"
)

// StretchFunc applies a nonlinear brightness stretch to a degraded and
// reference image in place, using per-channel robust statistics of the
// degraded capture. bg is the target background level, sigma the
// shadow-clipping factor in MAD units. Both images must receive
// identical per-channel parameters.
type StretchFunc func(degraded, reference *tensor.Image, bg, sigma float32, est *stats.Estimate)

// MidtoneStretch is the default StretchFunc: a midtones-transfer-
// function curve. Per channel the shadow point is clipped at
// median - sigma*MAD, values are rescaled above it, and the midtone
// parameter is chosen so the (stretched) median lands on bg.
func MidtoneStretch(degraded, reference *tensor.Image, bg, sigma float32, est *stats.Estimate) {
	for c := 0; c < degraded.C; c++ {
		median := float64(est.Median[c])
		mad := float64(est.MAD[c])
		if mad == 0 {
			// Uniform channel: the curve is undefined, leave it alone.
			continue
		}

		shadow := median - float64(sigma)*mad
		if shadow < 0 {
			shadow = 0
		}
		scale := 1 - shadow
		if scale <= 0 {
			continue
		}

		xm := (median - shadow) / scale
		m := midtoneFor(xm, float64(bg))

		stretchChannel(degraded, c, shadow, scale, m)
		stretchChannel(reference, c, shadow, scale, m)
	}
}

func stretchChannel(img *tensor.Image, c int, shadow, scale, m float64) {
	for i := c; i < len(img.Data); i += img.C {
		x := (float64(img.Data[i]) - shadow) / scale
		img.Data[i] = float32(mtf(x, m))
	}
}

// mtf is the midtones transfer function with midtone parameter m,
// clamped outside (0,1).
func mtf(x, m float64) float64 {
	if x <= 0 {
		return 0
	}
	if x >= 1 {
		return 1
	}
	return ((m - 1) * x) / (((2*m-1)*x - m))
}

// midtoneFor solves mtf(x, m) = y for m.
func midtoneFor(x, y float64) float64 {
	den := 2*x*y - x - y
	if den == 0 || math.IsNaN(den) {
		return 0.5
	}
	return x * (y - 1) / den
}
