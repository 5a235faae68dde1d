// Package stats provides robust per-image location and scale estimates
// used to parametrize the brightness stretch.
package stats

import (
	"fmt"

	mstats "github.com/montanaflynn/stats"

	"github.com/chges100/AstroNoiseNet/tensor"
)

// subsampleStride is the deterministic spatial stride used when pooling
// pixels for training-time estimates. Purely a performance measure on
// large images.
const subsampleStride = 4

// Estimate holds per-channel robust statistics of one image. For linked
// policies the same scalar is replicated across channels.
type Estimate struct {
	Median []float32
	MAD    []float32
}

// EstimateTraining computes the per-channel (median, MAD) estimate used
// for every patch drawn from a training image. In linked mode one scalar
// estimate is computed over a stride-4 subsampled pool of all channels
// combined and replicated per channel; in unlinked mode each channel is
// estimated independently over the full image.
func EstimateTraining(img *tensor.Image, linked bool) (*Estimate, error) {
	if linked {
		pool := subsample(img, subsampleStride)
		med, mad, err := medianMAD(pool)
		if err != nil {
			return nil, fmt.Errorf("linked estimate: %w", err)
		}
		return replicated(med, mad, img.C), nil
	}

	est := &Estimate{
		Median: make([]float32, img.C),
		MAD:    make([]float32, img.C),
	}
	for c := 0; c < img.C; c++ {
		med, mad, err := medianMAD(channelFloat64(img, c))
		if err != nil {
			return nil, fmt.Errorf("unlinked estimate, channel %d: %w", c, err)
		}
		est.Median[c] = float32(med)
		est.MAD[c] = float32(mad)
	}
	return est, nil
}

// EstimateValidation computes the validation-time estimate: one scalar
// median/MAD over the full, non-subsampled pixel set of all channels
// combined, replicated per channel.
func EstimateValidation(img *tensor.Image) (*Estimate, error) {
	pool := make([]float64, len(img.Data))
	for i, v := range img.Data {
		pool[i] = float64(v)
	}
	med, mad, err := medianMAD(pool)
	if err != nil {
		return nil, fmt.Errorf("validation estimate: %w", err)
	}
	return replicated(med, mad, img.C), nil
}

func replicated(med, mad float64, channels int) *Estimate {
	est := &Estimate{
		Median: make([]float32, channels),
		MAD:    make([]float32, channels),
	}
	for c := 0; c < channels; c++ {
		est.Median[c] = float32(med)
		est.MAD[c] = float32(mad)
	}
	return est
}

func medianMAD(pool []float64) (med, mad float64, err error) {
	if len(pool) == 0 {
		return 0, 0, fmt.Errorf("empty pixel pool")
	}
	med, err = mstats.Median(pool)
	if err != nil {
		return 0, 0, fmt.Errorf("median: %w", err)
	}
	mad, err = mstats.MedianAbsoluteDeviationPopulation(pool)
	if err != nil {
		return 0, 0, fmt.Errorf("mad: %w", err)
	}
	return med, mad, nil
}

// subsample pools every stride-th pixel in each spatial axis, all
// channels included.
func subsample(img *tensor.Image, stride int) []float64 {
	pool := make([]float64, 0, (img.H/stride+1)*(img.W/stride+1)*img.C)
	for y := 0; y < img.H; y += stride {
		for x := 0; x < img.W; x += stride {
			base := (y*img.W + x) * img.C
			for c := 0; c < img.C; c++ {
				pool = append(pool, float64(img.Data[base+c]))
			}
		}
	}
	return pool
}

func channelFloat64(img *tensor.Image, c int) []float64 {
	out := make([]float64, img.H*img.W)
	for i := range out {
		out[i] = float64(img.Data[i*img.C+c])
	}
	return out
}
