package boxdetect

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
)

// yoloOutput lays out predictions column-wise as [1, 4+C, N].
func yoloOutput(classes int, preds ...[]float32) ([]float32, []int64) {
	rows := 4 + classes
	n := len(preds)
	data := make([]float32, rows*n)
	for i, p := range preds {
		for r := range rows {
			data[r*n+i] = p[r]
		}
	}
	return data, []int64{1, int64(rows), int64(n)}
}

func TestDecodeYOLO(t *testing.T) {
	data, shape := yoloOutput(2,
		[]float32{100, 100, 40, 20, 0.9, 0.1},
		[]float32{300, 200, 10, 10, 0.1, 0.6},
		[]float32{50, 50, 10, 10, 0.2, 0.1},
	)

	boxes, err := DecodeYOLO(data, shape, 0.25)
	require.NoError(t, err)
	require.Len(t, boxes, 2)

	assert.InDelta(t, 80.0, boxes[0].X1, 1e-4)
	assert.InDelta(t, 90.0, boxes[0].Y1, 1e-4)
	assert.InDelta(t, 120.0, boxes[0].X2, 1e-4)
	assert.InDelta(t, 110.0, boxes[0].Y2, 1e-4)
	assert.InDelta(t, 0.9, boxes[0].Confidence, 1e-6)
	assert.Equal(t, 0, boxes[0].ClassID)

	assert.Equal(t, 1, boxes[1].ClassID)
	assert.InDelta(t, 0.6, boxes[1].Confidence, 1e-6)
}

func TestDecodeYOLO_BadShape(t *testing.T) {
	tests := []struct {
		name  string
		data  []float32
		shape []int64
	}{
		{"rank", make([]float32, 10), []int64{5, 2}},
		{"batch", make([]float32, 20), []int64{2, 5, 2}},
		{"no classes", make([]float32, 8), []int64{1, 4, 2}},
		{"length", make([]float32, 9), []int64{1, 5, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeYOLO(tt.data, tt.shape, 0.25)
			assert.Error(t, err)
		})
	}
}

func TestNonMaxSuppression(t *testing.T) {
	boxes := []geometry.Box{
		{X1: 0, Y1: 0, X2: 100, Y2: 100, Confidence: 0.6},
		{X1: 5, Y1: 5, X2: 105, Y2: 105, Confidence: 0.9},
		{X1: 500, Y1: 500, X2: 600, Y2: 600, Confidence: 0.4},
		{X1: 40, Y1: 0, X2: 140, Y2: 100, Confidence: 0.5},
	}

	kept := NonMaxSuppression(boxes, 0.45)

	require.Len(t, kept, 3)
	assert.InDelta(t, 0.9, kept[0].Confidence, 1e-9)
	assert.InDelta(t, 0.5, kept[1].Confidence, 1e-9)
	assert.InDelta(t, 0.4, kept[2].Confidence, 1e-9)
}

func TestNonMaxSuppression_Trivial(t *testing.T) {
	assert.Empty(t, NonMaxSuppression(nil, 0.5))
	one := []geometry.Box{{X2: 1, Y2: 1}}
	assert.Equal(t, one, NonMaxSuppression(one, 0.5))
}

func TestLetterbox(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 200))
	for y := range 200 {
		for x := range 400 {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	out, info := Letterbox(img, 64)

	assert.Equal(t, image.Rect(0, 0, 64, 64), out.Bounds())
	assert.InDelta(t, 0.16, info.Scale, 1e-9)
	assert.Equal(t, 0, info.PadX)
	assert.Equal(t, 16, info.PadY)

	assert.Equal(t, padColor, out.NRGBAAt(32, 2))
	assert.Equal(t, uint8(255), out.NRGBAAt(32, 32).R)
}

func TestLetterboxInfo_Unmap(t *testing.T) {
	info := LetterboxInfo{Scale: 0.5, PadX: 0, PadY: 10, Size: 64}

	got := info.Unmap(geometry.Box{X1: 10, Y1: 20, X2: 30, Y2: 40, Confidence: 0.7})

	assert.Equal(t, geometry.Box{X1: 20, Y1: 20, X2: 60, Y2: 60, Confidence: 0.7}, got)
	assert.Equal(t, geometry.Box{X1: 1}, LetterboxInfo{}.Unmap(geometry.Box{X1: 1}))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	mutate := func(f func(*Config)) Config {
		c := DefaultConfig()
		f(&c)
		return c
	}
	for name, c := range map[string]Config{
		"confidence": mutate(func(c *Config) { c.Confidence = 1.5 }),
		"iou":        mutate(func(c *Config) { c.IoU = -0.1 }),
		"input size": mutate(func(c *Config) { c.InputSize = 100 }),
		"threads":    mutate(func(c *Config) { c.NumThreads = -1 }),
		"gpu":        mutate(func(c *Config) { c.GPU.UseGPU = true; c.GPU.DeviceID = -1 }),
	} {
		assert.Error(t, c.Validate(), name)
	}
}

func TestNewONNXDetector_MissingModel(t *testing.T) {
	c := DefaultConfig()
	_, err := NewONNXDetector(c)
	assert.Error(t, err)

	c.ModelPath = "/nonexistent/model.onnx"
	_, err = NewONNXDetector(c)
	assert.ErrorContains(t, err, "model file not found")
}

func TestStatic(t *testing.T) {
	box := geometry.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}
	d := Static(box)

	got, err := d.Detect(nil)
	require.NoError(t, err)
	assert.Equal(t, []geometry.Box{box}, got)

	got[0].X1 = 99
	again, _ := d.Detect(nil)
	assert.InDelta(t, 1.0, again[0].X1, 1e-9)
}
