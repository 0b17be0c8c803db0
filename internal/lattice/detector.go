package lattice

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
	"github.com/MeKo-Tech/gcpmark/internal/region"
	"gocv.io/x/gocv"
)

// CornerDetectionError reports that the interior-corner lattice was not
// found inside the region. It is recoverable: callers decide whether the box
// or the image is skipped.
type CornerDetectionError struct {
	Cols   int
	Rows   int
	Reason string
}

func (e *CornerDetectionError) Error() string {
	return fmt.Sprintf("lattice %dx%d not found: %s", e.Cols, e.Rows, e.Reason)
}

// IsCornerDetectionError reports whether err wraps a CornerDetectionError.
func IsCornerDetectionError(err error) bool {
	var cde *CornerDetectionError
	return errors.As(err, &cde)
}

// Config controls lattice search and sub-pixel refinement.
type Config struct {
	GridCols int `mapstructure:"grid_cols" yaml:"grid_cols" json:"grid_cols"`
	GridRows int `mapstructure:"grid_rows" yaml:"grid_rows" json:"grid_rows"`
	// WindowSize is the half side length of the refinement search window.
	WindowSize        int     `mapstructure:"window_size" yaml:"window_size" json:"window_size"`
	MaxIterations     int     `mapstructure:"max_iterations" yaml:"max_iterations" json:"max_iterations"`
	Epsilon           float64 `mapstructure:"epsilon" yaml:"epsilon" json:"epsilon"`
	AdaptiveThreshold bool    `mapstructure:"adaptive_threshold" yaml:"adaptive_threshold" json:"adaptive_threshold"`
	NormalizeImage    bool    `mapstructure:"normalize_image" yaml:"normalize_image" json:"normalize_image"`
}

// DefaultConfig returns a 3x3 interior-corner lattice (a 4x4 checker board)
// refined for at most 30 iterations or 0.001px of movement.
func DefaultConfig() Config {
	return Config{
		GridCols:          3,
		GridRows:          3,
		WindowSize:        5,
		MaxIterations:     30,
		Epsilon:           0.001,
		AdaptiveThreshold: true,
		NormalizeImage:    true,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.GridCols < 2 || c.GridRows < 2 {
		return fmt.Errorf("grid must be at least 2x2, got %dx%d", c.GridCols, c.GridRows)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("window size must be positive, got %d", c.WindowSize)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max iterations must be positive, got %d", c.MaxIterations)
	}
	if c.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive, got %g", c.Epsilon)
	}
	return nil
}

// NumCorners is the number of points a successful detection returns.
func (c Config) NumCorners() int {
	return c.GridCols * c.GridRows
}

func (c Config) flags() gocv.CalibCBFlag {
	var f gocv.CalibCBFlag
	if c.AdaptiveThreshold {
		f |= gocv.CalibCBAdaptiveThresh
	}
	if c.NormalizeImage {
		f |= gocv.CalibCBNormalizeImage
	}
	return f
}

// Detector finds checkerboard interior corners inside a quadrilateral.
type Detector struct {
	config Config
}

// NewDetector creates a detector with the given configuration.
func NewDetector(config Config) (*Detector, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lattice config: %w", err)
	}
	return &Detector{config: config}, nil
}

// GetConfig returns the detector configuration.
func (d *Detector) GetConfig() Config {
	return d.config
}

// Detect masks img to q, locates the lattice and refines every corner to
// sub-pixel precision. Points are returned in row-major order starting at
// the top-left corner, in full-image coordinates.
func (d *Detector) Detect(img gocv.Mat, q geometry.Quad) ([]geometry.Point, error) {
	masked, err := region.Extract(img, q)
	if err != nil {
		return nil, err
	}
	defer func() { _ = masked.Close() }()

	gray := toGray(masked)
	defer func() { _ = gray.Close() }()

	corners := gocv.NewMat()
	defer func() { _ = corners.Close() }()

	cfg := d.config
	pattern := image.Pt(cfg.GridCols, cfg.GridRows)
	if !gocv.FindChessboardCorners(gray, pattern, &corners, cfg.flags()) {
		return nil, &CornerDetectionError{Cols: cfg.GridCols, Rows: cfg.GridRows, Reason: "pattern not found"}
	}
	if n := corners.Total(); n != cfg.NumCorners() {
		return nil, &CornerDetectionError{
			Cols:   cfg.GridCols,
			Rows:   cfg.GridRows,
			Reason: fmt.Sprintf("expected %d corners, got %d", cfg.NumCorners(), n),
		}
	}

	criteria := gocv.NewTermCriteria(gocv.Count+gocv.EPS, cfg.MaxIterations, cfg.Epsilon)
	gocv.CornerSubPix(gray, &corners, image.Pt(cfg.WindowSize, cfg.WindowSize), image.Pt(-1, -1), criteria)

	pts := make([]geometry.Point, 0, cfg.NumCorners())
	for i := 0; i < cfg.NumCorners(); i++ {
		v := corners.GetVecfAt(i, 0)
		pts = append(pts, geometry.Pt(float64(v[0]), float64(v[1])))
	}

	ordered := CanonicalOrder(pts, cfg.GridRows, cfg.GridCols)
	slog.Debug("Lattice detected", "corners", len(ordered), "first", ordered[0], "last", ordered[len(ordered)-1])
	return ordered, nil
}

// toGray returns a single-channel copy of m.
func toGray(m gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	switch m.Channels() {
	case 1:
		m.CopyTo(&gray)
	case 4:
		gocv.CvtColor(m, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
	}
	return gray
}
