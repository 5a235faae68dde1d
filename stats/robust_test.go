package stats

import (
	"math"
	"testing"

	"github.com/chges100/AstroNoiseNet/tensor"
)

// gradientImage fills channels with distinct value ranges so linked and
// unlinked estimates differ.
func gradientImage(h, w, c int) *tensor.Image {
	img := tensor.NewImage(h, w, c)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			for ch := 0; ch < c; ch++ {
				img.Set(y, x, ch, float32(ch)*0.3+float32(y*w+x)/float32(h*w))
			}
		}
	}
	return img
}

func TestLinkedEstimateIsUniformAcrossChannels(t *testing.T) {
	img := gradientImage(16, 16, 3)
	est, err := EstimateTraining(img, true)
	if err != nil {
		t.Fatalf("EstimateTraining: %v", err)
	}
	for c := 1; c < 3; c++ {
		if est.Median[c] != est.Median[0] || est.MAD[c] != est.MAD[0] {
			t.Errorf("linked estimate differs across channels: %v / %v", est.Median, est.MAD)
		}
	}
}

func TestUnlinkedEstimateDiffersPerChannel(t *testing.T) {
	img := gradientImage(16, 16, 3)
	est, err := EstimateTraining(img, false)
	if err != nil {
		t.Fatalf("EstimateTraining: %v", err)
	}
	if est.Median[0] == est.Median[2] {
		t.Errorf("unlinked medians should differ for offset channels, got %v", est.Median)
	}
	// Channel offsets shift location only, not spread.
	if math.Abs(float64(est.MAD[0]-est.MAD[2])) > 1e-6 {
		t.Errorf("unlinked MADs should match for offset channels, got %v", est.MAD)
	}
}

func TestUnlinkedKnownValues(t *testing.T) {
	img := tensor.NewImage(1, 5, 1)
	copy(img.Data, []float32{0.1, 0.2, 0.3, 0.4, 0.5})
	est, err := EstimateTraining(img, false)
	if err != nil {
		t.Fatalf("EstimateTraining: %v", err)
	}
	if math.Abs(float64(est.Median[0])-0.3) > 1e-6 {
		t.Errorf("median = %v, want 0.3", est.Median[0])
	}
	if math.Abs(float64(est.MAD[0])-0.1) > 1e-6 {
		t.Errorf("mad = %v, want 0.1", est.MAD[0])
	}
}

func TestValidationEstimateUsesFullPixelSet(t *testing.T) {
	// A single outlier at a position skipped by the stride-4 subsampling:
	// the validation estimate must see it, the training one must not.
	img := tensor.NewImage(8, 8, 1)
	for i := range img.Data {
		img.Data[i] = 0.5
	}
	img.Set(1, 1, 0, 1000)

	train, err := EstimateTraining(img, true)
	if err != nil {
		t.Fatalf("EstimateTraining: %v", err)
	}
	if train.MAD[0] != 0 {
		t.Errorf("subsampled estimate saw the off-grid outlier: mad=%v", train.MAD[0])
	}

	val, err := EstimateValidation(img)
	if err != nil {
		t.Fatalf("EstimateValidation: %v", err)
	}
	if val.Median[0] != 0.5 {
		t.Errorf("validation median = %v, want 0.5", val.Median[0])
	}
}

func TestEstimateUniformImage(t *testing.T) {
	img := tensor.NewImage(4, 4, 1)
	for i := range img.Data {
		img.Data[i] = 0.25
	}
	est, err := EstimateValidation(img)
	if err != nil {
		t.Fatalf("EstimateValidation: %v", err)
	}
	if est.Median[0] != 0.25 || est.MAD[0] != 0 {
		t.Errorf("uniform image estimate = (%v, %v), want (0.25, 0)", est.Median[0], est.MAD[0])
	}
}
