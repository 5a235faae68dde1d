package tensor

import (
	"fmt"
)

// Image is a single channel-last image tensor of shape [H, W, C].
// Data is row-major with the channel axis innermost, so the element at
// (y, x, c) lives at Data[(y*W+x)*C+c].
type Image struct {
	H, W, C int
	Data    []float32
}

// NewImage allocates a zero-filled image of the given dimensions.
func NewImage(h, w, c int) *Image {
	return &Image{H: h, W: w, C: c, Data: make([]float32, h*w*c)}
}

// FromData wraps an existing buffer as an image. The buffer length must
// match h*w*c exactly.
func FromData(h, w, c int, data []float32) (*Image, error) {
	if len(data) != h*w*c {
		return nil, fmt.Errorf("buffer length %d does not match shape [%d %d %d]", len(data), h, w, c)
	}
	return &Image{H: h, W: w, C: c, Data: data}, nil
}

func (m *Image) String() string {
	return fmt.Sprintf("Image(shape=[%d %d %d])", m.H, m.W, m.C)
}

// NumElems returns the total number of scalar elements.
func (m *Image) NumElems() int {
	return m.H * m.W * m.C
}

// SameShape reports whether the two images have identical dimensions.
func (m *Image) SameShape(other *Image) bool {
	return m.H == other.H && m.W == other.W && m.C == other.C
}

// At returns the element at (y, x, c). No bounds checking beyond the
// underlying slice.
func (m *Image) At(y, x, c int) float32 {
	return m.Data[(y*m.W+x)*m.C+c]
}

// Set writes the element at (y, x, c).
func (m *Image) Set(y, x, c int, v float32) {
	m.Data[(y*m.W+x)*m.C+c] = v
}

// Clone returns a deep copy of the image.
func (m *Image) Clone() *Image {
	out := NewImage(m.H, m.W, m.C)
	copy(out.Data, m.Data)
	return out
}

// Window copies a size x size sub-window whose top-left corner is at
// (y, x). The window must lie fully inside the image.
func (m *Image) Window(y, x, size int) (*Image, error) {
	if y < 0 || x < 0 || y+size > m.H || x+size > m.W {
		return nil, fmt.Errorf("window [%d:%d, %d:%d] out of bounds for image [%d %d %d]",
			y, y+size, x, x+size, m.H, m.W, m.C)
	}
	out := NewImage(size, size, m.C)
	rowLen := size * m.C
	for r := 0; r < size; r++ {
		src := ((y+r)*m.W + x) * m.C
		copy(out.Data[r*rowLen:(r+1)*rowLen], m.Data[src:src+rowLen])
	}
	return out, nil
}

// WriteWindow copies src into the image with its top-left corner at
// (y, x). The window must lie fully inside the image.
func (m *Image) WriteWindow(y, x int, src *Image) error {
	if src.C != m.C {
		return fmt.Errorf("channel mismatch: %d vs %d", src.C, m.C)
	}
	if y < 0 || x < 0 || y+src.H > m.H || x+src.W > m.W {
		return fmt.Errorf("window [%d:%d, %d:%d] out of bounds for image [%d %d %d]",
			y, y+src.H, x, x+src.W, m.H, m.W, m.C)
	}
	rowLen := src.W * m.C
	for r := 0; r < src.H; r++ {
		dst := ((y+r)*m.W + x) * m.C
		copy(m.Data[dst:dst+rowLen], src.Data[r*rowLen:(r+1)*rowLen])
	}
	return nil
}

// Channel returns a copy of one channel plane as a flat []float32 of
// length H*W.
func (m *Image) Channel(c int) []float32 {
	out := make([]float32, m.H*m.W)
	for i := range out {
		out[i] = m.Data[i*m.C+c]
	}
	return out
}

// Clip clamps every element into [lo, hi] in place.
func (m *Image) Clip(lo, hi float32) {
	clip(m.Data, lo, hi)
}

// ToSigned rescales values from [0,1] to [-1,1] in place.
func (m *Image) ToSigned() {
	for i, v := range m.Data {
		m.Data[i] = v*2 - 1
	}
}

// ToUnit rescales values from [-1,1] to [0,1] in place.
func (m *Image) ToUnit() {
	for i, v := range m.Data {
		m.Data[i] = (v + 1) / 2
	}
}

// Min returns the smallest element.
func (m *Image) Min() float32 {
	min := m.Data[0]
	for _, v := range m.Data[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// FlipH mirrors the image along the horizontal axis (reverses columns)
// in place.
func (m *Image) FlipH() {
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W/2; x++ {
			for c := 0; c < m.C; c++ {
				a := (y*m.W + x) * m.C
				b := (y*m.W + (m.W - 1 - x)) * m.C
				m.Data[a+c], m.Data[b+c] = m.Data[b+c], m.Data[a+c]
			}
		}
	}
}

// FlipV mirrors the image along the vertical axis (reverses rows) in
// place.
func (m *Image) FlipV() {
	rowLen := m.W * m.C
	tmp := make([]float32, rowLen)
	for y := 0; y < m.H/2; y++ {
		a := m.Data[y*rowLen : (y+1)*rowLen]
		b := m.Data[(m.H-1-y)*rowLen : (m.H-y)*rowLen]
		copy(tmp, a)
		copy(a, b)
		copy(b, tmp)
	}
}

// Rot90 returns a new image rotated clockwise by k quarter turns.
func (m *Image) Rot90(k int) *Image {
	k = ((k % 4) + 4) % 4
	out := m.Clone()
	for ; k > 0; k-- {
		out = out.rotQuarter()
	}
	return out
}

// rotQuarter rotates 90 degrees clockwise: dst(x, H-1-y) = src(y, x).
func (m *Image) rotQuarter() *Image {
	out := NewImage(m.W, m.H, m.C)
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			for c := 0; c < m.C; c++ {
				out.Set(x, m.H-1-y, c, m.At(y, x, c))
			}
		}
	}
	return out
}

func clip(data []float32, lo, hi float32) {
	for i, v := range data {
		if v < lo {
			data[i] = lo
		} else if v > hi {
			data[i] = hi
		}
	}
}
