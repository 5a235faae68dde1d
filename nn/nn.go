// Package nn defines the contracts the trainer depends on. Networks are
// opaque differentiable collaborators: the trainer sees forward passes,
// parameter lists and gradient hooks, never a concrete topology.
package nn

import (
	"github.com/chges100/AstroNoiseNet/tensor"
)

// Param is one trainable tensor with its accumulated gradient.
type Param struct {
	Name  string
	Shape []int
	Data  []float32
	Grad  []float32
}

// NewParam allocates a parameter and its gradient buffer.
func NewParam(name string, shape ...int) *Param {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return &Param{
		Name:  name,
		Shape: shape,
		Data:  make([]float32, n),
		Grad:  make([]float32, n),
	}
}

// ZeroGrads clears the gradient buffers of all params.
func ZeroGrads(params []*Param) {
	for _, p := range params {
		for i := range p.Grad {
			p.Grad[i] = 0
		}
	}
}

// GenResult carries one generator forward pass: the produced batch plus
// whatever activation state the implementation needs for Backprop.
type GenResult struct {
	Output *tensor.Batch
	State  any
}

// DiscResult carries one discriminator forward pass: the intermediate
// feature tensors, the per-sample realism probability, and activation
// state.
type DiscResult struct {
	Features []*tensor.Batch
	Prob     []float32
	State    any
}

// DiscGrad holds gradients with respect to a discriminator's outputs.
// A nil feature entry means zero gradient for that output.
type DiscGrad struct {
	Features []*tensor.Batch
	Prob     []float32
}

// Generator maps a degraded batch to a restored batch of identical
// shape. Backprop accumulates parameter gradients for the given output
// gradient; the result must come from a Forward call on this network.
type Generator interface {
	Forward(x *tensor.Batch) *GenResult
	Backprop(res *GenResult, dOutput *tensor.Batch)
	Params() []*Param
}

// Discriminator maps a batch to N intermediate feature maps plus one
// realism probability per sample. Backprop propagates output gradients
// back to the input and returns dLoss/dInput; with accumulateParams
// false the discriminator's own parameter gradients are left untouched,
// which is how the generator update passes through without leaking
// gradient into the discriminator.
type Discriminator interface {
	Forward(x *tensor.Batch) *DiscResult
	Backprop(res *DiscResult, grad *DiscGrad, accumulateParams bool) *tensor.Batch
	Params() []*Param
}

// Identity is a parameterless generator that returns its input
// unchanged. It isolates the tiling and loss arithmetic in tests and
// sanity runs.
type Identity struct{}

// Forward returns a copy of the input batch.
func (Identity) Forward(x *tensor.Batch) *GenResult {
	return &GenResult{Output: x.Clone()}
}

// Backprop is a no-op: there are no parameters.
func (Identity) Backprop(*GenResult, *tensor.Batch) {}

// Params returns nil.
func (Identity) Params() []*Param { return nil }
