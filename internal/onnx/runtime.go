package onnx

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv overrides the shared library search.
const LibraryPathEnv = "ONNXRUNTIME_LIB_PATH"

// ErrLibraryNotFound is returned when no ONNX Runtime library could be found.
var ErrLibraryNotFound = errors.New("onnx runtime library not found")

var initMu sync.Mutex

// LibraryName returns the shared library filename for goos.
func LibraryName(goos string) (string, error) {
	switch goos {
	case "linux":
		return "libonnxruntime.so", nil
	case "darwin":
		return "libonnxruntime.dylib", nil
	case "windows":
		return "onnxruntime.dll", nil
	default:
		return "", fmt.Errorf("unsupported operating system: %s", goos)
	}
}

// CandidatePaths lists where the library is looked for, in order: the
// explicit path, the environment override, system locations, then an
// onnxruntime/ directory next to the working directory or one of its
// parents.
func CandidatePaths(explicit string, useGPU bool) []string {
	var paths []string
	if explicit != "" {
		paths = append(paths, explicit)
	}
	if env := os.Getenv(LibraryPathEnv); env != "" {
		paths = append(paths, env)
	}

	libName, err := LibraryName(runtime.GOOS)
	if err != nil {
		return paths
	}

	if useGPU {
		paths = append(paths, filepath.Join("/opt/onnxruntime/gpu/lib", libName))
	}
	paths = append(paths,
		filepath.Join("/usr/local/lib", libName),
		filepath.Join("/usr/lib", libName),
		filepath.Join("/opt/onnxruntime/cpu/lib", libName),
	)

	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; ; dir = filepath.Dir(dir) {
			if useGPU {
				paths = append(paths, filepath.Join(dir, "onnxruntime", "gpu", "lib", libName))
			}
			paths = append(paths, filepath.Join(dir, "onnxruntime", "lib", libName))
			if filepath.Dir(dir) == dir {
				break
			}
		}
	}
	return paths
}

// FindLibrary returns the first existing candidate path.
func FindLibrary(explicit string, useGPU bool) (string, error) {
	for _, p := range CandidatePaths(explicit, useGPU) {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", ErrLibraryNotFound
}

// Initialize points onnxruntime_go at the shared library and initializes
// the environment once per process.
func Initialize(explicit string, useGPU bool) error {
	initMu.Lock()
	defer initMu.Unlock()

	if onnxruntime_go.IsInitialized() {
		return nil
	}

	path, err := FindLibrary(explicit, useGPU)
	if err != nil {
		return err
	}
	onnxruntime_go.SetSharedLibraryPath(path)

	if err := onnxruntime_go.InitializeEnvironment(); err != nil {
		return fmt.Errorf("initialize onnx runtime from %s: %w", path, err)
	}
	slog.Debug("ONNX Runtime initialized", "library", path, "gpu", useGPU)
	return nil
}

// Shutdown destroys the ONNX Runtime environment if it was initialized.
func Shutdown() {
	initMu.Lock()
	defer initMu.Unlock()

	if !onnxruntime_go.IsInitialized() {
		return
	}
	if err := onnxruntime_go.DestroyEnvironment(); err != nil {
		slog.Warn("Failed to destroy ONNX Runtime environment", "error", err)
	}
}
