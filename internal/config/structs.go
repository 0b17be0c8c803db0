//nolint:lll
package config

// Config represents the complete configuration for the gcpmark tool.
// It covers every command (label, serve, detect, sidecar) and supports
// loading from configuration files, environment variables, and command-line flags.
type Config struct {
	// Global settings
	LogLevel  string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose   bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	ImagesDir string `mapstructure:"images_dir" yaml:"images_dir" json:"images_dir"`

	// Survey camera intrinsics
	Camera CameraConfig `mapstructure:"camera" yaml:"camera" json:"camera"`

	// Lattice corner search inside one board
	Lattice LatticeConfig `mapstructure:"lattice" yaml:"lattice" json:"lattice"`

	// Board detector model
	Detector DetectorConfig `mapstructure:"detector" yaml:"detector" json:"detector"`

	// GPU configuration
	GPU GPUConfig `mapstructure:"gpu" yaml:"gpu" json:"gpu"`

	// Batch labeling
	Labeler LabelerConfig `mapstructure:"labeler" yaml:"labeler" json:"labeler"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// CameraConfig holds the row-major 3x3 intrinsic matrix and the
// distortion coefficients (k1, k2, p1, p2, k3).
type CameraConfig struct {
	Matrix     []float64 `mapstructure:"matrix" yaml:"matrix" json:"matrix"`
	Distortion []float64 `mapstructure:"distortion" yaml:"distortion" json:"distortion"`
}

// LatticeConfig contains corner detection settings.
type LatticeConfig struct {
	GridCols          int     `mapstructure:"grid_cols" yaml:"grid_cols" json:"grid_cols"`
	GridRows          int     `mapstructure:"grid_rows" yaml:"grid_rows" json:"grid_rows"`
	WindowSize        int     `mapstructure:"window_size" yaml:"window_size" json:"window_size"`
	MaxIterations     int     `mapstructure:"max_iterations" yaml:"max_iterations" json:"max_iterations"`
	Epsilon           float64 `mapstructure:"epsilon" yaml:"epsilon" json:"epsilon"`
	AdaptiveThreshold bool    `mapstructure:"adaptive_threshold" yaml:"adaptive_threshold" json:"adaptive_threshold"`
	NormalizeImage    bool    `mapstructure:"normalize_image" yaml:"normalize_image" json:"normalize_image"`
}

// DetectorConfig contains board detector settings.
type DetectorConfig struct {
	ModelPath   string  `mapstructure:"model_path" yaml:"model_path" json:"model_path"`
	LibraryPath string  `mapstructure:"library_path" yaml:"library_path" json:"library_path"`
	Confidence  float64 `mapstructure:"confidence" yaml:"confidence" json:"confidence"`
	IoU         float64 `mapstructure:"iou" yaml:"iou" json:"iou"`
	InputSize   int     `mapstructure:"input_size" yaml:"input_size" json:"input_size"`
	NumThreads  int     `mapstructure:"num_threads" yaml:"num_threads" json:"num_threads"`
}

// GPUConfig contains GPU acceleration settings.
type GPUConfig struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Device      int    `mapstructure:"device" yaml:"device" json:"device"`
	MemoryLimit string `mapstructure:"memory_limit" yaml:"memory_limit" json:"memory_limit"`
}

// LabelerConfig contains batch labeling settings.
type LabelerConfig struct {
	MinPoints       int    `mapstructure:"min_points" yaml:"min_points" json:"min_points"`
	Workers         int    `mapstructure:"workers" yaml:"workers" json:"workers"`
	UnprocessedFile string `mapstructure:"unprocessed_file" yaml:"unprocessed_file" json:"unprocessed_file"`
	OverlayDir      string `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
	Rounding        string `mapstructure:"rounding" yaml:"rounding" json:"rounding"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string `mapstructure:"host" yaml:"host" json:"host"`
	Port            int    `mapstructure:"port" yaml:"port" json:"port"`
	CORSOrigin      string `mapstructure:"cors_origin" yaml:"cors_origin" json:"cors_origin"`
	TimeoutSec      int    `mapstructure:"timeout_sec" yaml:"timeout_sec" json:"timeout_sec"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	StaticDir       string `mapstructure:"static_dir" yaml:"static_dir" json:"static_dir"`
	MaxBodyKB       int64  `mapstructure:"max_body_kb" yaml:"max_body_kb" json:"max_body_kb"`
	JPEGQuality     int    `mapstructure:"jpeg_quality" yaml:"jpeg_quality" json:"jpeg_quality"`
}
