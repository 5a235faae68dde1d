package tensor

import (
	"fmt"
)

// Batch is a channel-last batch tensor of shape [N, H, W, C].
type Batch struct {
	N, H, W, C int
	Data       []float32
}

// NewBatch allocates a zero-filled batch of the given dimensions.
func NewBatch(n, h, w, c int) *Batch {
	return &Batch{N: n, H: h, W: w, C: c, Data: make([]float32, n*h*w*c)}
}

func (b *Batch) String() string {
	return fmt.Sprintf("Batch(shape=[%d %d %d %d])", b.N, b.H, b.W, b.C)
}

// NumElems returns the total number of scalar elements.
func (b *Batch) NumElems() int {
	return b.N * b.H * b.W * b.C
}

// SampleSize returns the number of elements in one sample.
func (b *Batch) SampleSize() int {
	return b.H * b.W * b.C
}

// SetSample copies img into slot i. Shapes must match.
func (b *Batch) SetSample(i int, img *Image) error {
	if img.H != b.H || img.W != b.W || img.C != b.C {
		return fmt.Errorf("sample shape [%d %d %d] does not match batch [%d %d %d]",
			img.H, img.W, img.C, b.H, b.W, b.C)
	}
	if i < 0 || i >= b.N {
		return fmt.Errorf("sample index %d out of range [0, %d)", i, b.N)
	}
	size := b.SampleSize()
	copy(b.Data[i*size:(i+1)*size], img.Data)
	return nil
}

// Sample returns a copy of slot i as an Image.
func (b *Batch) Sample(i int) *Image {
	size := b.SampleSize()
	img := NewImage(b.H, b.W, b.C)
	copy(img.Data, b.Data[i*size:(i+1)*size])
	return img
}

// Clone returns a deep copy of the batch.
func (b *Batch) Clone() *Batch {
	out := NewBatch(b.N, b.H, b.W, b.C)
	copy(out.Data, b.Data)
	return out
}

// ToSigned rescales values from [0,1] to [-1,1] in place.
func (b *Batch) ToSigned() {
	for i, v := range b.Data {
		b.Data[i] = v*2 - 1
	}
}

// ToUnit rescales values from [-1,1] to [0,1] in place.
func (b *Batch) ToUnit() {
	for i, v := range b.Data {
		b.Data[i] = (v + 1) / 2
	}
}

// Clip clamps every element into [lo, hi] in place.
func (b *Batch) Clip(lo, hi float32) {
	clip(b.Data, lo, hi)
}
