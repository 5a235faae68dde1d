package training

import (
	"math"

	"github.com/chges100/AstroNoiseNet/tensor"
)

// PSNR computes the peak signal-to-noise ratio between two images of
// identical shape, in dB. Identical images yield +Inf.
func PSNR(a, b *tensor.Image, maxVal float64) float64 {
	var mse float64
	for i := range a.Data {
		d := float64(a.Data[i]) - float64(b.Data[i])
		mse += d * d
	}
	mse /= float64(len(a.Data))
	if mse == 0 {
		return math.Inf(1)
	}
	return 10 * math.Log10(maxVal*maxVal/mse)
}

// SSIM window parameters: 11x11 Gaussian, sigma 1.5, stabilizers for a
// unit dynamic range.
const (
	ssimWindow = 11
	ssimSigma  = 1.5
	ssimC1     = 0.01 * 0.01
	ssimC2     = 0.03 * 0.03
)

// SSIM computes structural similarity between two images of identical
// shape with values in [0,1]: Gaussian-weighted moments over all valid
// window positions, averaged over positions and channels. Images
// smaller than the window fall back to one uniform full-image window.
func SSIM(a, b *tensor.Image) float64 {
	if a.H < ssimWindow || a.W < ssimWindow {
		return ssimAt(a, b, 0, 0, a.H, a.W, uniformKernel(a.H, a.W))
	}

	kernel := gaussianKernel(ssimWindow, ssimSigma)
	var sum float64
	var count int
	for y := 0; y+ssimWindow <= a.H; y++ {
		for x := 0; x+ssimWindow <= a.W; x++ {
			sum += ssimAt(a, b, y, x, ssimWindow, ssimWindow, kernel)
			count++
		}
	}
	return sum / float64(count)
}

// ssimAt evaluates the SSIM index for one weighted window, averaged
// over channels.
func ssimAt(a, b *tensor.Image, y0, x0, h, w int, kernel []float64) float64 {
	var total float64
	for c := 0; c < a.C; c++ {
		var muA, muB, aa, bb, ab float64
		k := 0
		for y := y0; y < y0+h; y++ {
			for x := x0; x < x0+w; x++ {
				wgt := kernel[k]
				k++
				va := float64(a.At(y, x, c))
				vb := float64(b.At(y, x, c))
				muA += wgt * va
				muB += wgt * vb
				aa += wgt * va * va
				bb += wgt * vb * vb
				ab += wgt * va * vb
			}
		}
		varA := aa - muA*muA
		varB := bb - muB*muB
		cov := ab - muA*muB

		num := (2*muA*muB + ssimC1) * (2*cov + ssimC2)
		den := (muA*muA + muB*muB + ssimC1) * (varA + varB + ssimC2)
		total += num / den
	}
	return total / float64(a.C)
}

func gaussianKernel(size int, sigma float64) []float64 {
	oneD := make([]float64, size)
	center := float64(size-1) / 2
	for i := range oneD {
		d := float64(i) - center
		oneD[i] = math.Exp(-d * d / (2 * sigma * sigma))
	}
	kernel := make([]float64, size*size)
	var sum float64
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			kernel[y*size+x] = oneD[y] * oneD[x]
			sum += kernel[y*size+x]
		}
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func uniformKernel(h, w int) []float64 {
	kernel := make([]float64, h*w)
	for i := range kernel {
		kernel[i] = 1 / float64(h*w)
	}
	return kernel
}
