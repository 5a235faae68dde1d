// Package reconstruct runs a trained generator over a full-resolution
// image as an overlapping tile grid and reassembles a seamless result.
package reconstruct

import (
	"fmt"

	"github.com/chges100/AstroNoiseNet/nn"
	"github.com/chges100/AstroNoiseNet/tensor"
)

// Transformer restores full images tile by tile. Each tile is evaluated
// at the generator's window size but only its central stride x stride
// region is kept; the discarded border is where the generator had the
// least context.
type Transformer struct {
	gen        nn.Generator
	windowSize int
	stride     int
	offset     int
}

// New validates the window/stride relationship and builds a
// transformer. The stride must not exceed the window size and the
// border (window - stride) must split evenly between the two sides.
func New(gen nn.Generator, windowSize, stride int) (*Transformer, error) {
	if stride <= 0 || windowSize <= 0 {
		return nil, fmt.Errorf("window size %d and stride %d must be positive", windowSize, stride)
	}
	if stride > windowSize {
		return nil, fmt.Errorf("stride %d exceeds window size %d", stride, windowSize)
	}
	if (windowSize-stride)%2 != 0 {
		return nil, fmt.Errorf("window size %d minus stride %d must be even", windowSize, stride)
	}
	return &Transformer{
		gen:        gen,
		windowSize: windowSize,
		stride:     stride,
		offset:     (windowSize - stride) / 2,
	}, nil
}

// Transform restores one image. The input stays untouched; the result
// has the same shape and values clipped to [0,1].
func (t *Transformer) Transform(img *tensor.Image) (*tensor.Image, error) {
	if img.H < 1 || img.W < 1 {
		return nil, fmt.Errorf("empty image %dx%d", img.H, img.W)
	}

	// One extra grid row/column covers the remainder; the image is
	// padded out to the full grid before tiling.
	ith := img.H/t.stride + 1
	itw := img.W/t.stride + 1
	gridH := ith * t.stride
	gridW := itw * t.stride

	padded := t.pad(img, gridH, gridW)
	padded.ToSigned()

	out := tensor.NewImage(gridH, gridW, img.C)
	for i := 0; i < ith; i++ {
		for j := 0; j < itw; j++ {
			tile, err := padded.Window(i*t.stride, j*t.stride, t.windowSize)
			if err != nil {
				return nil, fmt.Errorf("tile (%d,%d): %w", i, j, err)
			}
			restored := t.runTile(tile)
			if err := t.writeCenter(out, restored, i*t.stride, j*t.stride); err != nil {
				return nil, fmt.Errorf("tile (%d,%d): %w", i, j, err)
			}
		}
	}

	out.Clip(0, 1)
	return crop(out, img.H, img.W), nil
}

// pad builds the fully padded working image: the original in the
// top-left, grown to gridH x gridW by edge replication, plus an
// offset-wide replicated border on all four sides.
func (t *Transformer) pad(img *tensor.Image, gridH, gridW int) *tensor.Image {
	p := tensor.NewImage(gridH+2*t.offset, gridW+2*t.offset, img.C)
	for y := 0; y < p.H; y++ {
		sy := clamp(y-t.offset, img.H-1)
		for x := 0; x < p.W; x++ {
			sx := clamp(x-t.offset, img.W-1)
			for c := 0; c < img.C; c++ {
				p.Set(y, x, c, img.At(sy, sx, c))
			}
		}
	}
	return p
}

// runTile evaluates one window through the generator and rescales the
// result back to unit range.
func (t *Transformer) runTile(tile *tensor.Image) *tensor.Image {
	x := tensor.NewBatch(1, tile.H, tile.W, tile.C)
	copy(x.Data, tile.Data)
	out := t.gen.Forward(x).Output
	out.ToUnit()
	return out.Sample(0)
}

// writeCenter copies the central stride x stride region of a restored
// window into the output buffer at (y, x).
func (t *Transformer) writeCenter(out, restored *tensor.Image, y, x int) error {
	center, err := restored.Window(t.offset, t.offset, t.stride)
	if err != nil {
		return err
	}
	return out.WriteWindow(y, x, center)
}

func crop(img *tensor.Image, h, w int) *tensor.Image {
	out := tensor.NewImage(h, w, img.C)
	for y := 0; y < h; y++ {
		src := img.Data[y*img.W*img.C : (y*img.W+w)*img.C]
		copy(out.Data[y*w*img.C:], src)
	}
	return out
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
