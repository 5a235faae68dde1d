package training

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/chges100/AstroNoiseNet/nn"
	"github.com/chges100/AstroNoiseNet/tensor"
)

// lossEpsilon guards log(0) in the adversarial terms.
const lossEpsilon = 1e-8

// Loss weighting. The imbalance favouring pixel fidelity and feature
// matching over raw adversarial realism is deliberate: a pure
// adversarial objective is unstable for reconstruction.
const (
	advWeight        = 0.1
	lowFeatureWeight = 0.1
	featureWeight    = 10.0
	pixelWeight      = 100.0
)

// Terms holds every scalar loss component of one iteration. GenL1
// already carries the x100 pixel scale; Total is the weighted sum
// driving the generator.
type Terms struct {
	DisLoss  float64
	GenGAN   float64
	Features []float64
	GenL1    float64
	Total    float64
}

// ComputeTerms evaluates the full multi-term objective from one forward
// pass of generator and discriminator.
func ComputeTerms(reference, generated *tensor.Batch, real, fake *nn.DiscResult) Terms {
	t := Terms{
		DisLoss: discriminatorLoss(real.Prob, fake.Prob),
		GenGAN:  generatorGANLoss(fake.Prob),
	}

	t.Features = make([]float64, len(real.Features))
	for k := range real.Features {
		t.Features[k] = meanAbsDiff(fake.Features[k].Data, real.Features[k].Data)
	}

	t.GenL1 = pixelWeight * meanAbsDiff(reference.Data, generated.Data)

	t.Total = advWeight * t.GenGAN
	for k, f := range t.Features {
		t.Total += featureTermWeight(k) * f
	}
	t.Total += t.GenL1
	return t
}

// AppendTo records every term in the history under its series name.
func (t Terms) AppendTo(h History) {
	h.Append("dis_loss", t.DisLoss)
	h.Append("gen_loss_GAN", t.GenGAN)
	for k, f := range t.Features {
		h.Append(fmt.Sprintf("gen_p%d", k+1), f)
	}
	h.Append("gen_L1", t.GenL1)
	h.Append("total", t.Total)
}

// discriminatorLoss is mean(-(log(pReal+eps) + log(1-pFake+eps))).
func discriminatorLoss(pReal, pFake []float32) float64 {
	var sum float64
	for i := range pReal {
		sum += -(math.Log(float64(pReal[i])+lossEpsilon) +
			math.Log(1-float64(pFake[i])+lossEpsilon))
	}
	return sum / float64(len(pReal))
}

// generatorGANLoss is mean(-log(pFake+eps)).
func generatorGANLoss(pFake []float32) float64 {
	var sum float64
	for _, p := range pFake {
		sum += -math.Log(float64(p) + lossEpsilon)
	}
	return sum / float64(len(pFake))
}

// discriminatorOutputGrads builds the output gradients of the
// discriminator loss for the real and fake passes.
func discriminatorOutputGrads(real, fake *nn.DiscResult) (gradReal, gradFake *nn.DiscGrad) {
	b := float64(len(real.Prob))
	gradReal = &nn.DiscGrad{
		Prob:     make([]float32, len(real.Prob)),
		Features: make([]*tensor.Batch, len(real.Features)),
	}
	gradFake = &nn.DiscGrad{
		Prob:     make([]float32, len(fake.Prob)),
		Features: make([]*tensor.Batch, len(fake.Features)),
	}
	for i, p := range real.Prob {
		gradReal.Prob[i] = float32(-1 / (b * (float64(p) + lossEpsilon)))
	}
	for i, p := range fake.Prob {
		gradFake.Prob[i] = float32(1 / (b * (1 - float64(p) + lossEpsilon)))
	}
	return gradReal, gradFake
}

// generatorOutputGrad builds the gradients of the total generator loss
// with respect to the discriminator's fake-pass outputs (adversarial
// and feature-matching terms) and the direct pixel-L1 gradient on the
// generated batch.
func generatorOutputGrad(reference, generated *tensor.Batch, real, fake *nn.DiscResult) (*nn.DiscGrad, *tensor.Batch) {
	b := float64(len(fake.Prob))
	grad := &nn.DiscGrad{
		Prob:     make([]float32, len(fake.Prob)),
		Features: make([]*tensor.Batch, len(fake.Features)),
	}
	for i, p := range fake.Prob {
		grad.Prob[i] = float32(-advWeight / (b * (float64(p) + lossEpsilon)))
	}
	for k, ff := range fake.Features {
		fr := real.Features[k]
		g := tensor.NewBatch(ff.N, ff.H, ff.W, ff.C)
		scale := float32(featureTermWeight(k) / float64(ff.NumElems()))
		for i := range ff.Data {
			g.Data[i] = sign(ff.Data[i]-fr.Data[i]) * scale
		}
		grad.Features[k] = g
	}

	pixel := tensor.NewBatch(generated.N, generated.H, generated.W, generated.C)
	scale := float32(pixelWeight / float64(generated.NumElems()))
	for i := range generated.Data {
		pixel.Data[i] = sign(generated.Data[i]-reference.Data[i]) * scale
	}
	return grad, pixel
}

func featureTermWeight(k int) float64 {
	if k == 0 {
		return lowFeatureWeight
	}
	return featureWeight
}

func meanAbsDiff(a, b []float32) float64 {
	diffs := make([]float64, len(a))
	for i := range a {
		diffs[i] = math.Abs(float64(a[i]) - float64(b[i]))
	}
	return floats.Sum(diffs) / float64(len(diffs))
}

func sign(v float32) float32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
