package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/chges100/AstroNoiseNet/tensor"
)

// The pixel-MLP networks are small reference collaborators: per-pixel
// dense stacks (1x1 convolutions) that implement the full forward/
// backprop contract. They exercise the trainer end to end; real
// deployments substitute heavier architectures behind the same
// interfaces.

const leakySlope = 0.2

// denseLayer is one per-pixel affine map with optional leaky ReLU.
type denseLayer struct {
	in, out int
	act     bool
	w, b    *Param
}

func newDenseLayer(name string, in, out int, act bool, rng *rand.Rand) *denseLayer {
	l := &denseLayer{
		in:  in,
		out: out,
		act: act,
		w:   NewParam(name+".weight", out, in),
		b:   NewParam(name+".bias", out),
	}
	scale := float32(math.Sqrt(2 / float64(in)))
	for i := range l.w.Data {
		l.w.Data[i] = float32(rng.NormFloat64()) * scale
	}
	return l
}

func (l *denseLayer) forward(in *tensor.Batch) *tensor.Batch {
	out := tensor.NewBatch(in.N, in.H, in.W, l.out)
	pixels := in.N * in.H * in.W
	for p := 0; p < pixels; p++ {
		src := in.Data[p*l.in : (p+1)*l.in]
		dst := out.Data[p*l.out : (p+1)*l.out]
		for o := 0; o < l.out; o++ {
			sum := l.b.Data[o]
			row := l.w.Data[o*l.in : (o+1)*l.in]
			for i, v := range src {
				sum += row[i] * v
			}
			if l.act && sum < 0 {
				sum *= leakySlope
			}
			dst[o] = sum
		}
	}
	return out
}

// backward consumes the gradient w.r.t. this layer's output and returns
// the gradient w.r.t. its input. Parameter gradients are accumulated
// only when accumulate is set.
func (l *denseLayer) backward(in, out, dOut *tensor.Batch, accumulate bool) *tensor.Batch {
	dIn := tensor.NewBatch(in.N, in.H, in.W, l.in)
	pixels := in.N * in.H * in.W
	for p := 0; p < pixels; p++ {
		src := in.Data[p*l.in : (p+1)*l.in]
		act := out.Data[p*l.out : (p+1)*l.out]
		grad := dOut.Data[p*l.out : (p+1)*l.out]
		dst := dIn.Data[p*l.in : (p+1)*l.in]
		for o := 0; o < l.out; o++ {
			dz := grad[o]
			if l.act && act[o] < 0 {
				dz *= leakySlope
			}
			if dz == 0 {
				continue
			}
			row := l.w.Data[o*l.in : (o+1)*l.in]
			if accumulate {
				l.b.Grad[o] += dz
				gRow := l.w.Grad[o*l.in : (o+1)*l.in]
				for i, v := range src {
					gRow[i] += dz * v
				}
			}
			for i := range dst {
				dst[i] += row[i] * dz
			}
		}
	}
	return dIn
}

// PixelMLPGenerator is a residual per-pixel MLP: x + MLP(x), final
// layer linear.
type PixelMLPGenerator struct {
	layers []*denseLayer
}

// NewPixelMLPGenerator builds a generator with the given hidden widths
// over channels-sized input and output.
func NewPixelMLPGenerator(channels int, hidden []int, rng *rand.Rand) *PixelMLPGenerator {
	g := &PixelMLPGenerator{}
	in := channels
	for i, h := range hidden {
		g.layers = append(g.layers, newDenseLayer(fmt.Sprintf("gen.layer%d", i), in, h, true, rng))
		in = h
	}
	g.layers = append(g.layers, newDenseLayer(fmt.Sprintf("gen.layer%d", len(hidden)), in, channels, false, rng))
	return g
}

type genState struct {
	acts []*tensor.Batch // acts[0] is the input, acts[i] the i-th layer output
}

// Forward runs the stack and adds the residual connection.
func (g *PixelMLPGenerator) Forward(x *tensor.Batch) *GenResult {
	st := &genState{acts: make([]*tensor.Batch, 0, len(g.layers)+1)}
	st.acts = append(st.acts, x.Clone())
	cur := st.acts[0]
	for _, l := range g.layers {
		cur = l.forward(cur)
		st.acts = append(st.acts, cur)
	}
	out := cur.Clone()
	for i, v := range x.Data {
		out.Data[i] += v
	}
	return &GenResult{Output: out, State: st}
}

// Backprop accumulates parameter gradients for dLoss/dOutput.
func (g *PixelMLPGenerator) Backprop(res *GenResult, dOutput *tensor.Batch) {
	st := res.State.(*genState)
	dCur := dOutput
	for i := len(g.layers) - 1; i >= 0; i-- {
		dCur = g.layers[i].backward(st.acts[i], st.acts[i+1], dCur, true)
	}
}

// Params returns every trainable tensor.
func (g *PixelMLPGenerator) Params() []*Param {
	var params []*Param
	for _, l := range g.layers {
		params = append(params, l.w, l.b)
	}
	return params
}

// PixelMLPDiscriminator is a per-pixel MLP whose layer activations are
// the multi-scale features; the realism probability is a sigmoid over
// the spatial mean of a scalar head on the last feature map.
type PixelMLPDiscriminator struct {
	layers []*denseLayer
	head   *denseLayer
}

// NewPixelMLPDiscriminator builds a discriminator with one feature
// output per entry of widths.
func NewPixelMLPDiscriminator(channels int, widths []int, rng *rand.Rand) *PixelMLPDiscriminator {
	d := &PixelMLPDiscriminator{}
	in := channels
	for i, w := range widths {
		d.layers = append(d.layers, newDenseLayer(fmt.Sprintf("dis.layer%d", i), in, w, true, rng))
		in = w
	}
	d.head = newDenseLayer("dis.head", in, 1, false, rng)
	return d
}

// NumFeatures returns the number of intermediate feature outputs.
func (d *PixelMLPDiscriminator) NumFeatures() int {
	return len(d.layers)
}

type discState struct {
	acts []*tensor.Batch // acts[0] input, acts[1..] layer outputs
	prob []float32
}

// Forward produces the feature maps and per-sample probabilities.
func (d *PixelMLPDiscriminator) Forward(x *tensor.Batch) *DiscResult {
	st := &discState{acts: make([]*tensor.Batch, 0, len(d.layers)+1)}
	st.acts = append(st.acts, x.Clone())
	cur := st.acts[0]
	for _, l := range d.layers {
		cur = l.forward(cur)
		st.acts = append(st.acts, cur)
	}

	// Scalar head, averaged over pixels, squashed per sample.
	headOut := d.head.forward(cur)
	pixels := headOut.H * headOut.W
	prob := make([]float32, headOut.N)
	for n := 0; n < headOut.N; n++ {
		var sum float32
		for p := 0; p < pixels; p++ {
			sum += headOut.Data[n*pixels+p]
		}
		prob[n] = sigmoid(sum / float32(pixels))
	}
	st.prob = prob

	return &DiscResult{
		Features: st.acts[1:],
		Prob:     prob,
		State:    st,
	}
}

// Backprop propagates output gradients back to the input. With
// accumulateParams false the discriminator's parameter gradients stay
// untouched.
func (d *PixelMLPDiscriminator) Backprop(res *DiscResult, grad *DiscGrad, accumulateParams bool) *tensor.Batch {
	st := res.State.(*discState)
	last := st.acts[len(st.acts)-1]
	pixels := last.H * last.W

	// Gradient flowing into the last feature map from the probability
	// head: p = sigmoid(b + mean_p(w . a_p)).
	dLast := tensor.NewBatch(last.N, last.H, last.W, last.C)
	if grad.Prob != nil {
		for n := 0; n < last.N; n++ {
			s := st.prob[n]
			du := grad.Prob[n] * s * (1 - s)
			if du == 0 {
				continue
			}
			perPixel := du / float32(pixels)
			if accumulateParams {
				d.head.b.Grad[0] += du
			}
			for p := 0; p < pixels; p++ {
				a := last.Data[(n*pixels+p)*last.C : (n*pixels+p+1)*last.C]
				dst := dLast.Data[(n*pixels+p)*last.C : (n*pixels+p+1)*last.C]
				for f := 0; f < last.C; f++ {
					if accumulateParams {
						d.head.w.Grad[f] += perPixel * a[f]
					}
					dst[f] += perPixel * d.head.w.Data[f]
				}
			}
		}
	}

	dCur := dLast
	for i := len(d.layers) - 1; i >= 0; i-- {
		if grad.Features != nil && grad.Features[i] != nil {
			for j, v := range grad.Features[i].Data {
				dCur.Data[j] += v
			}
		}
		dCur = d.layers[i].backward(st.acts[i], st.acts[i+1], dCur, accumulateParams)
	}
	return dCur
}

// Params returns every trainable tensor, head included.
func (d *PixelMLPDiscriminator) Params() []*Param {
	var params []*Param
	for _, l := range d.layers {
		params = append(params, l.w, l.b)
	}
	return append(params, d.head.w, d.head.b)
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}
