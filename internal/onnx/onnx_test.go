package onnx

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGPUConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  GPUConfig
		wantErr bool
	}{
		{"cpu default", DefaultGPUConfig(), false},
		{"cpu ignores bad values", GPUConfig{DeviceID: -3, ArenaExtendStrategy: "bogus"}, false},
		{"gpu default", GPUConfig{UseGPU: true, ArenaExtendStrategy: arenaNextPowerOfTwo, CUDNNConvAlgoSearch: "HEURISTIC"}, false},
		{"gpu empty strategies", GPUConfig{UseGPU: true}, false},
		{"negative device", GPUConfig{UseGPU: true, DeviceID: -1}, true},
		{"bad arena", GPUConfig{UseGPU: true, ArenaExtendStrategy: "grow"}, true},
		{"bad cudnn", GPUConfig{UseGPU: true, CUDNNConvAlgoSearch: "FAST"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGPUConfig_CudaSettings(t *testing.T) {
	c := GPUConfig{UseGPU: true, DeviceID: 2, GPUMemLimit: 1 << 30, ArenaExtendStrategy: arenaSameAsRequested}

	assert.Equal(t, map[string]string{
		"device_id":                 "2",
		"do_copy_in_default_stream": "1",
		"gpu_mem_limit":             "1073741824",
		"arena_extend_strategy":     arenaSameAsRequested,
	}, c.cudaSettings())
}

func TestConfigureSessionForGPU_CPUIsNoop(t *testing.T) {
	assert.NoError(t, ConfigureSessionForGPU(nil, DefaultGPUConfig()))
}

func TestLibraryName(t *testing.T) {
	for goos, want := range map[string]string{
		"linux":   "libonnxruntime.so",
		"darwin":  "libonnxruntime.dylib",
		"windows": "onnxruntime.dll",
	} {
		got, err := LibraryName(goos)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := LibraryName("plan9")
	assert.Error(t, err)
}

func TestCandidatePaths_Order(t *testing.T) {
	t.Setenv(LibraryPathEnv, "/env/lib.so")

	paths := CandidatePaths("/explicit/lib.so", true)

	require.GreaterOrEqual(t, len(paths), 2)
	assert.Equal(t, "/explicit/lib.so", paths[0])
	assert.Equal(t, "/env/lib.so", paths[1])
}

func TestFindLibrary(t *testing.T) {
	t.Setenv(LibraryPathEnv, "")

	lib := filepath.Join(t.TempDir(), "libonnxruntime.so")
	require.NoError(t, os.WriteFile(lib, []byte("stub"), 0o600))

	got, err := FindLibrary(lib, false)
	require.NoError(t, err)
	assert.Equal(t, lib, got)
}

func TestFindLibrary_ProjectRelative(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("path layout checked on linux only")
	}
	if _, err := os.Stat("/usr/local/lib/libonnxruntime.so"); err == nil {
		t.Skip("system library present")
	}
	if _, err := os.Stat("/usr/lib/libonnxruntime.so"); err == nil {
		t.Skip("system library present")
	}
	if _, err := os.Stat("/opt/onnxruntime/cpu/lib/libonnxruntime.so"); err == nil {
		t.Skip("system library present")
	}
	t.Setenv(LibraryPathEnv, "")

	root := t.TempDir()
	libDir := filepath.Join(root, "onnxruntime", "lib")
	require.NoError(t, os.MkdirAll(libDir, 0o750))
	lib := filepath.Join(libDir, "libonnxruntime.so")
	require.NoError(t, os.WriteFile(lib, []byte("stub"), 0o600))

	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o750))
	t.Chdir(nested)

	got, err := FindLibrary("", false)
	require.NoError(t, err)
	assert.Equal(t, lib, got)
}

func TestNewImageTensor(t *testing.T) {
	tensor, err := NewImageTensor(make([]float32, 3*4*5), 3, 4, 5)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 4, 5}, tensor.Shape)
	assert.NoError(t, VerifyImageTensor(tensor))

	_, err = NewImageTensor(nil, 3, 4, 5)
	assert.Error(t, err)
	_, err = NewImageTensor(make([]float32, 7), 3, 4, 5)
	assert.Error(t, err)
}

func TestFromImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	img.Set(1, 0, color.RGBA{B: 255, A: 255})

	tensor, err := FromImage(img)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3, 1, 2}, tensor.Shape)
	assert.Equal(t, []float32{1, 0, 0, 0, 0, 1}, tensor.Data)

	tensor.Release()
	assert.Nil(t, tensor.Data)

	_, err = FromImage(image.NewRGBA(image.Rect(0, 0, 0, 0)))
	assert.Error(t, err)
}

func TestVerifyImageTensor(t *testing.T) {
	assert.Error(t, VerifyImageTensor(Tensor{Shape: []int64{1, 3, 4}}))
	assert.Error(t, VerifyImageTensor(Tensor{Shape: []int64{1, 0, 4, 4}}))
	assert.Error(t, VerifyImageTensor(Tensor{Data: make([]float32, 3), Shape: []int64{1, 1, 2, 2}}))
}
