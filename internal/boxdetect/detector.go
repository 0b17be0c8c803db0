// Package boxdetect finds calibration-board bounding boxes in full frames.
package boxdetect

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/yalue/onnxruntime_go"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
	"github.com/MeKo-Tech/gcpmark/internal/onnx"
)

// Detector produces axis-aligned boxes in pixel space, already filtered by
// confidence and IoU.
type Detector interface {
	Detect(img image.Image) ([]geometry.Box, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(img image.Image) ([]geometry.Box, error)

// Detect calls f.
func (f DetectorFunc) Detect(img image.Image) ([]geometry.Box, error) {
	return f(img)
}

// Static returns the same boxes for every image.
func Static(boxes ...geometry.Box) Detector {
	return DetectorFunc(func(image.Image) ([]geometry.Box, error) {
		out := make([]geometry.Box, len(boxes))
		copy(out, boxes)
		return out, nil
	})
}

// Config configures the ONNX detector.
type Config struct {
	ModelPath   string         `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LibraryPath string         `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	Confidence  float64        `mapstructure:"confidence" yaml:"confidence" json:"confidence"`
	IoU         float64        `mapstructure:"iou" yaml:"iou" json:"iou"`
	InputSize   int            `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	NumThreads  int            `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
	GPU         onnx.GPUConfig `mapstructure:"-" yaml:"-" json:"-"`
}

// DefaultConfig returns the thresholds the board model was tuned with.
func DefaultConfig() Config {
	return Config{
		Confidence: 0.25,
		IoU:        0.45,
		InputSize:  640,
		GPU:        onnx.DefaultGPUConfig(),
	}
}

// Validate checks thresholds and sizes. The model path is checked when the
// detector is created.
func (c Config) Validate() error {
	if c.Confidence < 0 || c.Confidence > 1 {
		return fmt.Errorf("detector confidence must be in [0,1], got %v", c.Confidence)
	}
	if c.IoU < 0 || c.IoU > 1 {
		return fmt.Errorf("detector iou must be in [0,1], got %v", c.IoU)
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		return fmt.Errorf("detector input_size must be a positive multiple of 32, got %d", c.InputSize)
	}
	if c.NumThreads < 0 {
		return fmt.Errorf("detector num_threads must be non-negative, got %d", c.NumThreads)
	}
	return c.GPU.Validate()
}

// ONNXDetector runs a YOLO-style single-output model through ONNX Runtime.
type ONNXDetector struct {
	config     Config
	session    *onnxruntime_go.DynamicAdvancedSession
	inputInfo  onnxruntime_go.InputOutputInfo
	outputInfo onnxruntime_go.InputOutputInfo
	mu         sync.RWMutex
}

// NewONNXDetector loads the model and creates a session.
func NewONNXDetector(config Config) (*ONNXDetector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.ModelPath == "" {
		return nil, errors.New("model path cannot be empty")
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s", config.ModelPath)
	}

	slog.Debug("Initializing box detector",
		"model_path", config.ModelPath,
		"gpu_enabled", config.GPU.UseGPU,
		"input_size", config.InputSize,
		"confidence", config.Confidence,
		"iou", config.IoU)

	if err := onnx.Initialize(config.LibraryPath, config.GPU.UseGPU); err != nil {
		return nil, fmt.Errorf("failed to set up ONNX Runtime: %w", err)
	}

	inputInfo, outputInfo, err := validateModelInfo(config.ModelPath)
	if err != nil {
		return nil, err
	}

	session, err := createSession(config, inputInfo, outputInfo)
	if err != nil {
		return nil, err
	}

	return &ONNXDetector{
		config:     config,
		session:    session,
		inputInfo:  inputInfo,
		outputInfo: outputInfo,
	}, nil
}

// Close releases the session.
func (d *ONNXDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session != nil {
		if err := d.session.Destroy(); err != nil {
			slog.Warn("Failed to destroy detector session", "error", err)
		}
		d.session = nil
	}
	return nil
}

// GetConfig returns a copy of the detector configuration.
func (d *ONNXDetector) GetConfig() Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config
}

// Detect implements Detector.
func (d *ONNXDetector) Detect(img image.Image) ([]geometry.Box, error) {
	if img == nil {
		return nil, errors.New("input image is nil")
	}
	start := time.Now()

	boxed, lb := Letterbox(img, d.config.InputSize)
	tensor, err := onnx.FromImage(boxed)
	if err != nil {
		return nil, fmt.Errorf("preprocessing failed: %w", err)
	}
	defer tensor.Release()

	data, shape, err := d.run(tensor)
	if err != nil {
		return nil, err
	}

	candidates, err := DecodeYOLO(data, shape, d.config.Confidence)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		candidates[i] = lb.Unmap(candidates[i])
	}
	boxes := NonMaxSuppression(candidates, d.config.IoU)

	slog.Debug("Box detection complete",
		"candidates", len(candidates),
		"boxes", len(boxes),
		"duration", time.Since(start))
	return boxes, nil
}

func (d *ONNXDetector) run(tensor onnx.Tensor) ([]float32, []int64, error) {
	if err := onnx.VerifyImageTensor(tensor); err != nil {
		return nil, nil, fmt.Errorf("invalid tensor: %w", err)
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.session == nil {
		return nil, nil, errors.New("detector session is closed")
	}

	input, err := onnxruntime_go.NewTensor(onnxruntime_go.NewShape(tensor.Shape...), tensor.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer func() {
		if err := input.Destroy(); err != nil {
			slog.Warn("Failed to destroy input tensor", "error", err)
		}
	}()

	outputs := []onnxruntime_go.Value{nil}
	if err := d.session.Run([]onnxruntime_go.Value{input}, outputs); err != nil {
		return nil, nil, fmt.Errorf("inference failed: %w", err)
	}
	defer func() {
		if err := outputs[0].Destroy(); err != nil {
			slog.Warn("Failed to destroy output tensor", "error", err)
		}
	}()

	floats, ok := outputs[0].(*onnxruntime_go.Tensor[float32])
	if !ok {
		return nil, nil, fmt.Errorf("expected float32 tensor, got %T", outputs[0])
	}
	data := append([]float32(nil), floats.GetData()...)
	return data, outputs[0].GetShape(), nil
}

// GetModelInfo describes the loaded model.
func (d *ONNXDetector) GetModelInfo() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return map[string]interface{}{
		"model_path":   d.config.ModelPath,
		"input_name":   d.inputInfo.Name,
		"output_name":  d.outputInfo.Name,
		"input_shape":  d.inputInfo.Dimensions,
		"output_shape": d.outputInfo.Dimensions,
		"confidence":   d.config.Confidence,
		"iou":          d.config.IoU,
		"input_size":   d.config.InputSize,
		"gpu": map[string]interface{}{
			"enabled":            d.config.GPU.UseGPU,
			"device_id":          d.config.GPU.DeviceID,
			"memory_limit_bytes": d.config.GPU.GPUMemLimit,
		},
	}
}
