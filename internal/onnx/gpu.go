// Package onnx locates the ONNX Runtime shared library and prepares session
// options and input tensors for the box detector.
package onnx

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/yalue/onnxruntime_go"
)

const (
	arenaNextPowerOfTwo  = "kNextPowerOfTwo"
	arenaSameAsRequested = "kSameAsRequested"
)

// GPUConfig holds CUDA execution provider settings.
type GPUConfig struct {
	UseGPU              bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	DeviceID            int    `mapstructure:"device" yaml:"device" json:"device"`
	GPUMemLimit         uint64 `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"` // bytes, 0 = unlimited
	ArenaExtendStrategy string `mapstructure:"arena_extend_strategy" yaml:"arena_extend_strategy" json:"arena_extend_strategy"`
	CUDNNConvAlgoSearch string `mapstructure:"cudnn_conv_algo_search" yaml:"cudnn_conv_algo_search" json:"cudnn_conv_algo_search"`
}

// DefaultGPUConfig returns a CPU-only configuration.
func DefaultGPUConfig() GPUConfig {
	return GPUConfig{
		ArenaExtendStrategy: arenaNextPowerOfTwo,
		CUDNNConvAlgoSearch: "DEFAULT",
	}
}

// Validate checks the GPU settings. CPU-only configs are always valid.
func (c GPUConfig) Validate() error {
	if !c.UseGPU {
		return nil
	}
	if c.DeviceID < 0 {
		return fmt.Errorf("gpu device must be non-negative, got %d", c.DeviceID)
	}
	switch c.ArenaExtendStrategy {
	case "", arenaNextPowerOfTwo, arenaSameAsRequested:
	default:
		return fmt.Errorf("invalid arena extend strategy %q", c.ArenaExtendStrategy)
	}
	switch c.CUDNNConvAlgoSearch {
	case "", "EXHAUSTIVE", "HEURISTIC", "DEFAULT":
	default:
		return fmt.Errorf("invalid cudnn conv algo search %q", c.CUDNNConvAlgoSearch)
	}
	return nil
}

// cudaSettings renders the provider option map.
func (c GPUConfig) cudaSettings() map[string]string {
	settings := map[string]string{
		"device_id":                 strconv.Itoa(c.DeviceID),
		"do_copy_in_default_stream": "1",
	}
	if c.GPUMemLimit > 0 {
		settings["gpu_mem_limit"] = strconv.FormatUint(c.GPUMemLimit, 10)
	}
	if c.ArenaExtendStrategy != "" {
		settings["arena_extend_strategy"] = c.ArenaExtendStrategy
	}
	if c.CUDNNConvAlgoSearch != "" {
		settings["cudnn_conv_algo_search"] = c.CUDNNConvAlgoSearch
	}
	return settings
}

// ConfigureSessionForGPU appends the CUDA execution provider when the
// config asks for it. Without a GPU request the options are left untouched.
func ConfigureSessionForGPU(opts *onnxruntime_go.SessionOptions, c GPUConfig) error {
	if !c.UseGPU {
		return nil
	}

	cudaOpts, err := onnxruntime_go.NewCUDAProviderOptions()
	if err != nil {
		return fmt.Errorf("create CUDA provider options: %w", err)
	}
	defer func() {
		if err := cudaOpts.Destroy(); err != nil {
			slog.Warn("Failed to destroy CUDA provider options", "error", err)
		}
	}()

	if err := cudaOpts.Update(c.cudaSettings()); err != nil {
		return fmt.Errorf("update CUDA provider options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return fmt.Errorf("append CUDA execution provider: %w", err)
	}
	return nil
}
