package training

import (
	"fmt"

	"github.com/chges100/AstroNoiseNet/augment"
	"github.com/chges100/AstroNoiseNet/dataset"
	"github.com/chges100/AstroNoiseNet/nn"
	"github.com/chges100/AstroNoiseNet/tensor"
)

// Fixed stretch parametrization for the validation path; no
// randomization outside training augmentation.
const (
	validationBG    = 0.2
	validationSigma = 3.0
)

// ValidationMetricNames lists the series produced by Validate, in
// reporting order.
var ValidationMetricNames = []string{"L1_loss", "dis_loss", "psnr", "SSIM"}

// Validate evaluates the generator/discriminator pair on every held-out
// image using a deterministic non-overlapping tile grid; remainder
// pixels at the far edges are dropped. Metrics are averaged globally
// over all tiles of all images, not per image.
func Validate(gen nn.Generator, dis nn.Discriminator, data *dataset.Dataset, windowSize int, stretch augment.StretchFunc) (map[string]float64, error) {
	if stretch == nil {
		stretch = augment.MidtoneStretch
	}

	sums := map[string]float64{}
	tiles := 0

	for i := range data.Pairs {
		pair := &data.Pairs[i]
		ith := pair.Degraded.H / windowSize
		itw := pair.Degraded.W / windowSize

		for ty := 0; ty < ith; ty++ {
			for tx := 0; tx < itw; tx++ {
				short, err := pair.Degraded.Window(ty*windowSize, tx*windowSize, windowSize)
				if err != nil {
					return nil, err
				}
				long, err := pair.Reference.Window(ty*windowSize, tx*windowSize, windowSize)
				if err != nil {
					return nil, err
				}

				if err := augment.LinearFit(short, long, augment.ClipThreshold); err != nil {
					return nil, fmt.Errorf("validation tile (%d,%d) of %s: %w", ty, tx, pair.Name, err)
				}
				stretch(short, long, validationBG, validationSigma, data.Stats[i])

				x := batchOf(short)
				x.ToSigned()
				out := gen.Forward(x).Output
				out.ToUnit()
				restored := out.Sample(0)

				// The x200 matches the training pixel scale (x2 from the
				// unit-range difference, x100 from the loss weighting).
				sums["L1_loss"] += 200 * meanAbsDiff(long.Data, restored.Data)

				yb := batchOf(long)
				yb.ToSigned()
				ob := batchOf(restored)
				ob.ToSigned()
				sums["dis_loss"] += discriminatorLoss(dis.Forward(yb).Prob, dis.Forward(ob).Prob)

				sums["psnr"] += PSNR(long, restored, 1)
				sums["SSIM"] += SSIM(long, restored)
				tiles++
			}
		}
	}

	if tiles == 0 {
		return nil, fmt.Errorf("no validation tiles: every image is smaller than one %dx%d window",
			windowSize, windowSize)
	}

	metrics := make(map[string]float64, len(sums))
	for name, sum := range sums {
		metrics[name] = sum / float64(tiles)
	}
	return metrics, nil
}

func batchOf(img *tensor.Image) *tensor.Batch {
	b := tensor.NewBatch(1, img.H, img.W, img.C)
	copy(b.Data, img.Data)
	return b
}
