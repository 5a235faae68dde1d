// Package optimizer provides the gradient-based optimizers applied to
// the generator and discriminator parameter sets. The two networks are
// always driven by independent optimizer instances.
package optimizer

import (
	"math"

	"github.com/chges100/AstroNoiseNet/nn"
)

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LearningRate float32
	Beta1        float32
	Beta2        float32
	Epsilon      float32
}

// DefaultAdamConfig returns the standard Adam hyperparameters.
func DefaultAdamConfig() AdamConfig {
	return AdamConfig{
		LearningRate: 0.001,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
	}
}

// Adam implements the Adam update rule with bias correction. State is
// allocated lazily per parameter tensor.
type Adam struct {
	config AdamConfig
	step   uint64
	m      map[*nn.Param][]float32
	v      map[*nn.Param][]float32
}

// NewAdam creates an Adam optimizer with the given configuration.
func NewAdam(config AdamConfig) *Adam {
	return &Adam{
		config: config,
		m:      make(map[*nn.Param][]float32),
		v:      make(map[*nn.Param][]float32),
	}
}

// LearningRate returns the configured learning rate.
func (a *Adam) LearningRate() float32 {
	return a.config.LearningRate
}

// Step applies one update to every parameter using its accumulated
// gradient, then advances the bias-correction step counter. Gradients
// are not cleared; callers zero them before the next accumulation.
func (a *Adam) Step(params []*nn.Param) {
	a.step++
	beta1 := float64(a.config.Beta1)
	beta2 := float64(a.config.Beta2)
	correction1 := 1 - math.Pow(beta1, float64(a.step))
	correction2 := 1 - math.Pow(beta2, float64(a.step))

	for _, p := range params {
		m, ok := a.m[p]
		if !ok {
			m = make([]float32, len(p.Data))
			a.m[p] = m
			a.v[p] = make([]float32, len(p.Data))
		}
		v := a.v[p]

		for i, g := range p.Grad {
			gf := float64(g)
			mi := beta1*float64(m[i]) + (1-beta1)*gf
			vi := beta2*float64(v[i]) + (1-beta2)*gf*gf
			m[i] = float32(mi)
			v[i] = float32(vi)

			mHat := mi / correction1
			vHat := vi / correction2
			p.Data[i] -= float32(float64(a.config.LearningRate) * mHat /
				(math.Sqrt(vHat) + float64(a.config.Epsilon)))
		}
	}
}
