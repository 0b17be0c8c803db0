package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/gcpmark/internal/boxdetect"
	"github.com/MeKo-Tech/gcpmark/internal/imageio"
	"github.com/MeKo-Tech/gcpmark/internal/labeler"
	"github.com/MeKo-Tech/gcpmark/internal/lattice"
	"github.com/MeKo-Tech/gcpmark/internal/lens"
	"github.com/MeKo-Tech/gcpmark/internal/onnx"
	"github.com/MeKo-Tech/gcpmark/internal/server"
	"github.com/MeKo-Tech/gcpmark/internal/session"
	"github.com/MeKo-Tech/gcpmark/internal/sidecar"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	lat := lattice.DefaultConfig()
	det := boxdetect.DefaultConfig()
	lab := labeler.DefaultConfig()

	return Config{
		LogLevel: "info",
		Verbose:  false,
		Camera: CameraConfig{
			Matrix:     lens.DefaultMatrix(),
			Distortion: lens.DefaultDistortion(),
		},
		Lattice: LatticeConfig{
			GridCols:          lat.GridCols,
			GridRows:          lat.GridRows,
			WindowSize:        lat.WindowSize,
			MaxIterations:     lat.MaxIterations,
			Epsilon:           lat.Epsilon,
			AdaptiveThreshold: lat.AdaptiveThreshold,
			NormalizeImage:    lat.NormalizeImage,
		},
		Detector: DetectorConfig{
			Confidence: det.Confidence,
			IoU:        det.IoU,
			InputSize:  det.InputSize,
		},
		GPU: GPUConfig{
			Enabled:     false,
			Device:      0,
			MemoryLimit: "auto",
		},
		Labeler: LabelerConfig{
			MinPoints:       lab.MinPoints,
			Workers:         lab.Workers,
			UnprocessedFile: lab.UnprocessedFile,
			Rounding:        string(lab.Rounding),
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			MaxBodyKB:       1024,
			JPEGQuality:     imageio.DefaultJPEGQuality,
		},
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	if _, err := c.ToCamera(); err != nil {
		return fmt.Errorf("invalid camera: %w", err)
	}
	if err := c.ToLatticeConfig().Validate(); err != nil {
		return fmt.Errorf("invalid lattice config: %w", err)
	}

	if err := validateThreshold(c.Detector.Confidence, "detector.confidence"); err != nil {
		return err
	}
	if err := validateThreshold(c.Detector.IoU, "detector.iou"); err != nil {
		return err
	}
	if _, err := parseMemoryLimit(c.GPU.MemoryLimit); err != nil {
		return fmt.Errorf("invalid GPU memory limit: %w", err)
	}
	if err := c.ToDetectorConfig().Validate(); err != nil {
		return fmt.Errorf("invalid detector config: %w", err)
	}

	if err := c.ToLabelerConfig().Validate(); err != nil {
		return fmt.Errorf("invalid labeler config: %w", err)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}
	if c.Server.MaxBodyKB <= 0 {
		return fmt.Errorf("invalid max body size: %d (must be positive)", c.Server.MaxBodyKB)
	}
	if c.Server.JPEGQuality < 1 || c.Server.JPEGQuality > 100 {
		return fmt.Errorf("invalid jpeg quality: %d (must be between 1 and 100)", c.Server.JPEGQuality)
	}

	return nil
}

// ToCamera builds the lens model from the camera section.
func (c *Config) ToCamera() (lens.Camera, error) {
	return lens.FromValues(c.Camera.Matrix, c.Camera.Distortion)
}

// ToLatticeConfig converts the lattice section.
func (c *Config) ToLatticeConfig() lattice.Config {
	return lattice.Config{
		GridCols:          c.Lattice.GridCols,
		GridRows:          c.Lattice.GridRows,
		WindowSize:        c.Lattice.WindowSize,
		MaxIterations:     c.Lattice.MaxIterations,
		Epsilon:           c.Lattice.Epsilon,
		AdaptiveThreshold: c.Lattice.AdaptiveThreshold,
		NormalizeImage:    c.Lattice.NormalizeImage,
	}
}

// ToDetectorConfig converts the detector section with the GPU settings merged in.
func (c *Config) ToDetectorConfig() boxdetect.Config {
	cfg := boxdetect.DefaultConfig()
	cfg.ModelPath = c.Detector.ModelPath
	cfg.LibraryPath = c.Detector.LibraryPath
	cfg.Confidence = c.Detector.Confidence
	cfg.IoU = c.Detector.IoU
	cfg.InputSize = c.Detector.InputSize
	cfg.NumThreads = c.Detector.NumThreads
	cfg.GPU = c.ToGPUConfig()
	return cfg
}

// ToGPUConfig converts the gpu section. An unparsable memory limit means
// no limit; Validate reports it.
func (c *Config) ToGPUConfig() onnx.GPUConfig {
	cfg := onnx.DefaultGPUConfig()
	cfg.UseGPU = c.GPU.Enabled
	cfg.DeviceID = c.GPU.Device
	if limit, err := parseMemoryLimit(c.GPU.MemoryLimit); err == nil {
		cfg.GPUMemLimit = limit
	}
	return cfg
}

// ToLabelerConfig converts the labeler section.
func (c *Config) ToLabelerConfig() labeler.Config {
	return labeler.Config{
		MinPoints:       c.Labeler.MinPoints,
		Workers:         c.Labeler.Workers,
		UnprocessedFile: c.Labeler.UnprocessedFile,
		OverlayDir:      c.Labeler.OverlayDir,
		Rounding:        sidecar.Rounding(c.Labeler.Rounding),
	}
}

// ToSessionConfig returns the session settings for dir. The geo provider
// is left to the session default.
func (c *Config) ToSessionConfig(dir string) session.Config {
	return session.Config{
		Dir:         dir,
		Rounding:    sidecar.Rounding(c.Labeler.Rounding),
		JPEGQuality: c.Server.JPEGQuality,
	}
}

// ToServerConfig converts the server section.
func (c *Config) ToServerConfig() server.Config {
	return server.Config{
		Host:            c.Server.Host,
		Port:            c.Server.Port,
		CORSOrigin:      c.Server.CORSOrigin,
		TimeoutSec:      c.Server.TimeoutSec,
		ShutdownTimeout: c.Server.ShutdownTimeout,
		StaticDir:       c.Server.StaticDir,
		MaxBodyKB:       c.Server.MaxBodyKB,
	}
}

// Timeout returns the server read/write timeout.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// contains checks if a string slice contains a specific item.
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// validateThreshold validates that a threshold value is between 0.0 and 1.0.
func validateThreshold(value float64, name string) error {
	if value < 0.0 || value > 1.0 {
		return fmt.Errorf("invalid %s: %f (must be between 0.0 and 1.0)", name, value)
	}
	return nil
}

// parseMemoryLimit parses a GPU memory limit such as "512MB" or "1.5GB"
// into bytes. "" and "auto" mean no limit.
func parseMemoryLimit(limit string) (uint64, error) {
	if limit == "" || limit == "auto" {
		return 0, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(limit))
	units := []struct {
		suffix string
		scale  float64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}
	for _, u := range units {
		if !strings.HasSuffix(upper, u.suffix) {
			continue
		}
		n, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(upper, u.suffix)), 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid number in memory limit: %s", limit)
		}
		return uint64(n * u.scale), nil
	}
	return 0, fmt.Errorf("memory limit must end with one of: B, KB, MB, GB (got %s)", limit)
}
