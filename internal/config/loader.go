package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without extension).
	ConfigFileName = "gcpmark"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "GCPMARK"

	// DotEnvFile is read from the working directory before the environment.
	DotEnvFile = ".env"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance, so flags bound
// by the root command are seen.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith creates a loader on a private viper instance.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load loads configuration from files, environment variables, and defaults,
// then validates it.
func (l *Loader) Load() (*Config, error) {
	return l.LoadWithFile("")
}

// LoadWithoutValidation is Load without the validation step.
func (l *Loader) LoadWithoutValidation() (*Config, error) {
	return l.LoadWithFileWithoutValidation("")
}

// LoadWithFile loads configuration from a specific file path. An empty path
// searches the standard locations.
func (l *Loader) LoadWithFile(configFile string) (*Config, error) {
	config, err := l.LoadWithFileWithoutValidation(configFile)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return config, nil
}

// LoadWithFileWithoutValidation loads configuration from a specific file
// path without validation.
func (l *Loader) LoadWithFileWithoutValidation(configFile string) (*Config, error) {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configFile)
		}
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.addConfigPaths()
	}

	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No file in the search paths: defaults and env vars only.
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return &config, nil
}

// Get returns a value from the configuration.
func (l *Loader) Get(key string) interface{} {
	return l.v.Get(key)
}

// GetString returns a string value from the configuration.
func (l *Loader) GetString(key string) string {
	return l.v.GetString(key)
}

// Set sets a value in the configuration.
func (l *Loader) Set(key string, value interface{}) {
	l.v.Set(key, value)
}

// GetConfigFileUsed returns the path of the config file used.
func (l *Loader) GetConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// GetViper returns the underlying viper instance for advanced usage.
func (l *Loader) GetViper() *viper.Viper {
	return l.v
}

// addConfigPaths adds the standard configuration search paths.
func (l *Loader) addConfigPaths() {
	for _, p := range GetConfigSearchPaths() {
		l.v.AddConfigPath(p)
	}
}

// setupEnvironmentVariables loads .env and configures environment variable handling.
func (l *Loader) setupEnvironmentVariables() {
	// Existing variables win over .env entries.
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to read .env file", "file", DotEnvFile, "error", err)
	}

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.AutomaticEnv()
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// setDefaults sets default values for all configuration options.
func (l *Loader) setDefaults() {
	defaults := DefaultConfig()

	// Global settings
	l.v.SetDefault("log_level", defaults.LogLevel)
	l.v.SetDefault("verbose", defaults.Verbose)
	l.v.SetDefault("images_dir", defaults.ImagesDir)

	// Camera defaults
	l.v.SetDefault("camera.matrix", defaults.Camera.Matrix)
	l.v.SetDefault("camera.distortion", defaults.Camera.Distortion)

	// Lattice defaults
	l.v.SetDefault("lattice.grid_cols", defaults.Lattice.GridCols)
	l.v.SetDefault("lattice.grid_rows", defaults.Lattice.GridRows)
	l.v.SetDefault("lattice.window_size", defaults.Lattice.WindowSize)
	l.v.SetDefault("lattice.max_iterations", defaults.Lattice.MaxIterations)
	l.v.SetDefault("lattice.epsilon", defaults.Lattice.Epsilon)
	l.v.SetDefault("lattice.adaptive_threshold", defaults.Lattice.AdaptiveThreshold)
	l.v.SetDefault("lattice.normalize_image", defaults.Lattice.NormalizeImage)

	// Detector defaults
	l.v.SetDefault("detector.model_path", defaults.Detector.ModelPath)
	l.v.SetDefault("detector.library_path", defaults.Detector.LibraryPath)
	l.v.SetDefault("detector.confidence", defaults.Detector.Confidence)
	l.v.SetDefault("detector.iou", defaults.Detector.IoU)
	l.v.SetDefault("detector.input_size", defaults.Detector.InputSize)
	l.v.SetDefault("detector.num_threads", defaults.Detector.NumThreads)

	// GPU defaults
	l.v.SetDefault("gpu.enabled", defaults.GPU.Enabled)
	l.v.SetDefault("gpu.device", defaults.GPU.Device)
	l.v.SetDefault("gpu.memory_limit", defaults.GPU.MemoryLimit)

	// Labeler defaults
	l.v.SetDefault("labeler.min_points", defaults.Labeler.MinPoints)
	l.v.SetDefault("labeler.workers", defaults.Labeler.Workers)
	l.v.SetDefault("labeler.unprocessed_file", defaults.Labeler.UnprocessedFile)
	l.v.SetDefault("labeler.overlay_dir", defaults.Labeler.OverlayDir)
	l.v.SetDefault("labeler.rounding", defaults.Labeler.Rounding)

	// Server defaults
	l.v.SetDefault("server.host", defaults.Server.Host)
	l.v.SetDefault("server.port", defaults.Server.Port)
	l.v.SetDefault("server.cors_origin", defaults.Server.CORSOrigin)
	l.v.SetDefault("server.timeout_sec", defaults.Server.TimeoutSec)
	l.v.SetDefault("server.shutdown_timeout", defaults.Server.ShutdownTimeout)
	l.v.SetDefault("server.static_dir", defaults.Server.StaticDir)
	l.v.SetDefault("server.max_body_kb", defaults.Server.MaxBodyKB)
	l.v.SetDefault("server.jpeg_quality", defaults.Server.JPEGQuality)
}

// GetResolvedConfig returns the current resolved configuration for debugging.
func (l *Loader) GetResolvedConfig() map[string]interface{} {
	return l.v.AllSettings()
}

// WriteConfigToFile writes the current configuration to a file.
func (l *Loader) WriteConfigToFile(filename string) error {
	return l.v.WriteConfigAs(filename)
}

// GenerateDefaultConfigFile writes the defaults to filename, gcpmark.yaml
// when empty.
func GenerateDefaultConfigFile(filename string) error {
	loader := NewLoaderWith(viper.New())
	loader.setDefaults()

	if filename == "" {
		filename = ConfigFileName + ".yaml"
	}

	return loader.WriteConfigToFile(filename)
}

// GetConfigSearchPaths returns the paths where configuration files are searched.
func GetConfigSearchPaths() []string {
	paths := []string{"."}

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		paths = append(paths, home)
	}

	if configDir, exists := os.LookupEnv("XDG_CONFIG_HOME"); exists {
		paths = append(paths, filepath.Join(configDir, ConfigFileName))
	} else if homeErr == nil {
		paths = append(paths, filepath.Join(home, ".config", ConfigFileName))
	}

	paths = append(paths, filepath.Join("/etc", ConfigFileName))

	return paths
}

// LogSources logs where the configuration came from at debug level.
func (l *Loader) LogSources() {
	file := l.GetConfigFileUsed()
	if file == "" {
		file = "none"
	}
	slog.Debug("Configuration loaded",
		"file", file,
		"search_paths", GetConfigSearchPaths(),
		"env_prefix", EnvPrefix+"_")
}
