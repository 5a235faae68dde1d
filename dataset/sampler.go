package dataset

import (
	"fmt"
	"math/rand"

	"github.com/chges100/AstroNoiseNet/augment"
	"github.com/chges100/AstroNoiseNet/tensor"
)

// Sampler draws synchronized training patches from a dataset, image
// choice weighted by area, offsets uniform within valid bounds. With an
// augmentor attached every drawn pair runs the augmentation pipeline;
// otherwise raw windows pass through unchanged.
type Sampler struct {
	ds         *Dataset
	windowSize int
	batchSize  int
	augmentor  *augment.Augmentor
	rng        *rand.Rand
}

// NewSampler validates that every image can host at least one window
// and returns a sampler. augmentor may be nil to disable augmentation.
func NewSampler(ds *Dataset, windowSize, batchSize int, augmentor *augment.Augmentor, rng *rand.Rand) (*Sampler, error) {
	if windowSize <= 0 || batchSize <= 0 {
		return nil, fmt.Errorf("invalid sampler geometry: window %d, batch %d", windowSize, batchSize)
	}
	for _, p := range ds.Pairs {
		if p.Degraded.H < windowSize || p.Degraded.W < windowSize {
			return nil, fmt.Errorf("image %s (%dx%d) is smaller than window %d",
				p.Name, p.Degraded.H, p.Degraded.W, windowSize)
		}
	}
	return &Sampler{
		ds:         ds,
		windowSize: windowSize,
		batchSize:  batchSize,
		augmentor:  augmentor,
		rng:        rng,
	}, nil
}

// Batch draws one full training batch. Both returned tensors hold
// values in [0,1]; rescaling to [-1,1] is the trainer's business.
func (s *Sampler) Batch() (x, y *tensor.Batch, err error) {
	c := s.ds.Pairs[0].Degraded.C
	x = tensor.NewBatch(s.batchSize, s.windowSize, s.windowSize, c)
	y = tensor.NewBatch(s.batchSize, s.windowSize, s.windowSize, c)

	for i := 0; i < s.batchSize; i++ {
		r := s.drawIndex()
		pair := &s.ds.Pairs[r]
		h := s.rng.Intn(pair.Degraded.H - s.windowSize + 1)
		w := s.rng.Intn(pair.Degraded.W - s.windowSize + 1)

		degraded, err := pair.Degraded.Window(h, w, s.windowSize)
		if err != nil {
			return nil, nil, err
		}
		reference, err := pair.Reference.Window(h, w, s.windowSize)
		if err != nil {
			return nil, nil, err
		}

		if s.augmentor != nil {
			degraded, reference, err = s.augmentor.Apply(degraded, reference, s.ds.Stats[r])
			if err != nil {
				return nil, nil, fmt.Errorf("augmenting patch from %s: %w", pair.Name, err)
			}
		}

		if err := x.SetSample(i, degraded); err != nil {
			return nil, nil, err
		}
		if err := y.SetSample(i, reference); err != nil {
			return nil, nil, err
		}
	}
	return x, y, nil
}

// drawIndex samples an image index from the categorical sampling-weight
// distribution, with replacement.
func (s *Sampler) drawIndex() int {
	u := s.rng.Float64()
	var cum float64
	for i, w := range s.ds.Weights {
		cum += w
		if u < cum {
			return i
		}
	}
	return len(s.ds.Weights) - 1
}
