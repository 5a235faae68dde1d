package training

import (
	"math"
	"testing"

	"github.com/chges100/AstroNoiseNet/dataset"
	"github.com/chges100/AstroNoiseNet/nn"
	"github.com/chges100/AstroNoiseNet/stats"
	"github.com/chges100/AstroNoiseNet/tensor"
)

// halfDisc answers 0.5 for every sample, which pins dis_loss at
// 2*log(2) per tile.
type halfDisc struct{}

func (halfDisc) Forward(x *tensor.Batch) *nn.DiscResult {
	prob := make([]float32, x.N)
	for i := range prob {
		prob[i] = 0.5
	}
	return &nn.DiscResult{Prob: prob}
}

func (halfDisc) Backprop(res *nn.DiscResult, grad *nn.DiscGrad, accumulateParams bool) *tensor.Batch {
	return nil
}

func (halfDisc) Params() []*nn.Param { return nil }

func validationPair(name string, h, w int, median float32) (dataset.Pair, *stats.Estimate) {
	deg := gradientImage(h, w)
	ref := deg.Clone()
	return dataset.Pair{Name: name, Degraded: deg, Reference: ref},
		&stats.Estimate{Median: []float32{median}, MAD: []float32{0.1}}
}

func TestValidateGlobalAverage(t *testing.T) {
	// Image a contributes four 32x32 tiles, image b one tile with its
	// 8-pixel remainder band dropped. Metrics must be averaged over all
	// five tiles, not per image.
	pairA, statsA := validationPair("a", 64, 64, 0.5)
	pairB, statsB := validationPair("b", 40, 40, 0.6)
	data := &dataset.Dataset{
		Pairs: []dataset.Pair{pairA, pairB},
		Stats: []*stats.Estimate{statsA, statsB},
	}

	// Deterministic stand-in for the display stretch: the degraded tile
	// becomes a flat 0.4, the reference a flat per-image median.
	stretch := func(degraded, reference *tensor.Image, bg, sigma float32, est *stats.Estimate) {
		for i := range degraded.Data {
			degraded.Data[i] = 0.4
		}
		for i := range reference.Data {
			reference.Data[i] = est.Median[0]
		}
	}

	metrics, err := Validate(nn.Identity{}, halfDisc{}, data, 32, stretch)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	// Identity generator returns the flat 0.4 tile, so per-tile L1 is
	// 200*|median-0.4|: 20 for each tile of a, 40 for the tile of b.
	wantL1 := (4*20.0 + 40.0) / 5
	if math.Abs(metrics["L1_loss"]-wantL1) > 1e-4 {
		t.Errorf("L1_loss = %v, want %v", metrics["L1_loss"], wantL1)
	}

	wantDis := -(math.Log(0.5+lossEpsilon) + math.Log(0.5+lossEpsilon))
	if math.Abs(metrics["dis_loss"]-wantDis) > 1e-6 {
		t.Errorf("dis_loss = %v, want %v", metrics["dis_loss"], wantDis)
	}

	psnrA := 10 * math.Log10(1/(0.1*0.1))
	psnrB := 10 * math.Log10(1/(0.2*0.2))
	wantPSNR := (4*psnrA + psnrB) / 5
	if math.Abs(metrics["psnr"]-wantPSNR) > 1e-3 {
		t.Errorf("psnr = %v, want %v", metrics["psnr"], wantPSNR)
	}

	ssimConst := func(muA, muB float64) float64 {
		return (2*muA*muB + ssimC1) / (muA*muA + muB*muB + ssimC1)
	}
	wantSSIM := (4*ssimConst(0.5, 0.4) + ssimConst(0.6, 0.4)) / 5
	if math.Abs(metrics["SSIM"]-wantSSIM) > 1e-6 {
		t.Errorf("SSIM = %v, want %v", metrics["SSIM"], wantSSIM)
	}

	for _, name := range ValidationMetricNames {
		if _, ok := metrics[name]; !ok {
			t.Errorf("metric %q missing from result", name)
		}
	}
}

func TestValidateNoTiles(t *testing.T) {
	pair, est := validationPair("tiny", 16, 16, 0.5)
	data := &dataset.Dataset{
		Pairs: []dataset.Pair{pair},
		Stats: []*stats.Estimate{est},
	}

	if _, err := Validate(nn.Identity{}, halfDisc{}, data, 32, nil); err == nil {
		t.Fatal("expected error when no image fits a single window")
	}
}
