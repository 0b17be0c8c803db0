package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/gcpmark/internal/boxdetect"
	"github.com/MeKo-Tech/gcpmark/internal/config"
	"github.com/MeKo-Tech/gcpmark/internal/geoinfo"
	"github.com/MeKo-Tech/gcpmark/internal/labeler"
	"github.com/MeKo-Tech/gcpmark/internal/lattice"
	"github.com/MeKo-Tech/gcpmark/internal/lens"
	"github.com/MeKo-Tech/gcpmark/internal/onnx"
)

// errNoModel is returned when a command needs the board detector and no
// model is configured.
var errNoModel = errors.New("no board detection model configured (set detector.model_path or --model)")

// newBoxDetector opens the ONNX board detector. The returned close
// function is never nil.
func newBoxDetector(cfg *config.Config) (boxdetect.Detector, func(), error) {
	detCfg := cfg.ToDetectorConfig()
	if detCfg.ModelPath == "" {
		return nil, func() {}, errNoModel
	}
	det, err := boxdetect.NewONNXDetector(detCfg)
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to create board detector: %w", err)
	}
	slog.Debug("Board detection model loaded", "model", det.GetModelInfo())
	return det, func() {
		if err := det.Close(); err != nil {
			slog.Warn("Failed to close board detector", "error", err)
		}
		onnx.Shutdown()
	}, nil
}

// newGeometry returns the camera and lattice detector shared by label and
// detect.
func newGeometry(cfg *config.Config) (lens.Camera, *lattice.Detector, error) {
	camera, err := cfg.ToCamera()
	if err != nil {
		return lens.Camera{}, nil, fmt.Errorf("invalid camera: %w", err)
	}
	lat, err := lattice.NewDetector(cfg.ToLatticeConfig())
	if err != nil {
		return lens.Camera{}, nil, fmt.Errorf("failed to create lattice detector: %w", err)
	}
	return camera, lat, nil
}

// newLabeler wires the batch labeler from configuration.
func newLabeler(cfg *config.Config) (*labeler.Labeler, func(), error) {
	camera, lat, err := newGeometry(cfg)
	if err != nil {
		return nil, func() {}, err
	}
	boxes, closeBoxes, err := newBoxDetector(cfg)
	if err != nil {
		return nil, closeBoxes, err
	}
	l, err := labeler.New(cfg.ToLabelerConfig(), camera, lat, boxes, geoinfo.NewExifProvider())
	if err != nil {
		closeBoxes()
		return nil, func() {}, err
	}
	return l, closeBoxes, nil
}
