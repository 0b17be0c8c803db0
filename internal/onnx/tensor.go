package onnx

import (
	"errors"
	"fmt"
	"image"

	"github.com/MeKo-Tech/gcpmark/internal/mempool"
)

// Tensor is a float32 tensor prepared for ONNX input, row-major with NCHW
// layout for images.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// NewImageTensor wraps data as a single-image tensor [1, C, H, W].
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if want := c * h * w; len(data) != want {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), want)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}, nil
}

// FromImage converts img to an RGB tensor [1, 3, H, W] scaled to [0, 1].
// The data comes from a shared pool; call Release once the tensor is no
// longer referenced.
func FromImage(img image.Image) (Tensor, error) {
	if img == nil {
		return Tensor{}, errors.New("nil image")
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return Tensor{}, errors.New("empty image")
	}

	plane := w * h
	data := mempool.GetFloat32(3 * plane)
	for y := range h {
		for x := range w {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			i := y*w + x
			data[i] = float32(r>>8) / 255
			data[plane+i] = float32(g>>8) / 255
			data[2*plane+i] = float32(bl>>8) / 255
		}
	}
	return NewImageTensor(data, 3, h, w)
}

// Release hands the tensor data back to the pool.
func (t *Tensor) Release() {
	mempool.PutFloat32(t.Data)
	t.Data = nil
}

// ValidateNCHW ensures a shape is [N, C, H, W] with positive dimensions.
func ValidateNCHW(shape []int64) error {
	if len(shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(shape))
	}
	for i, v := range shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
	}
	return nil
}

// VerifyImageTensor checks the data length against the NCHW shape.
func VerifyImageTensor(t Tensor) error {
	if err := ValidateNCHW(t.Shape); err != nil {
		return err
	}
	want := int(t.Shape[0] * t.Shape[1] * t.Shape[2] * t.Shape[3])
	if len(t.Data) != want {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), want, t.Shape)
	}
	return nil
}
