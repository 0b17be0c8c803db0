package boxdetect

import (
	"fmt"
	"log/slog"

	"github.com/yalue/onnxruntime_go"

	"github.com/MeKo-Tech/gcpmark/internal/onnx"
)

// validateModelInfo checks for a single 4-D input and a single output.
func validateModelInfo(modelPath string) (onnxruntime_go.InputOutputInfo, onnxruntime_go.InputOutputInfo, error) {
	var none onnxruntime_go.InputOutputInfo

	inputs, outputs, err := onnxruntime_go.GetInputOutputInfo(modelPath)
	if err != nil {
		return none, none, fmt.Errorf("failed to get model input/output info: %w", err)
	}
	if len(inputs) != 1 {
		return none, none, fmt.Errorf("expected 1 input, got %d", len(inputs))
	}
	if len(outputs) != 1 {
		return none, none, fmt.Errorf("expected 1 output, got %d", len(outputs))
	}
	if len(inputs[0].Dimensions) != 4 {
		return none, none, fmt.Errorf("expected 4D input tensor, got %dD", len(inputs[0].Dimensions))
	}
	if len(outputs[0].Dimensions) != 3 {
		return none, none, fmt.Errorf("expected 3D output tensor, got %dD", len(outputs[0].Dimensions))
	}
	return inputs[0], outputs[0], nil
}

func createSession(config Config, inputInfo, outputInfo onnxruntime_go.InputOutputInfo,
) (*onnxruntime_go.DynamicAdvancedSession, error) {
	opts, err := onnxruntime_go.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer func() {
		if err := opts.Destroy(); err != nil {
			slog.Warn("Failed to destroy session options", "error", err)
		}
	}()

	if err := onnx.ConfigureSessionForGPU(opts, config.GPU); err != nil {
		return nil, fmt.Errorf("failed to configure GPU: %w", err)
	}
	if config.NumThreads > 0 {
		if err := opts.SetIntraOpNumThreads(config.NumThreads); err != nil {
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := onnxruntime_go.NewDynamicAdvancedSession(config.ModelPath,
		[]string{inputInfo.Name}, []string{outputInfo.Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return session, nil
}
