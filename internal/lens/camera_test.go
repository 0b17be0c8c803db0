package lens

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

func TestNewCamera_Validation(t *testing.T) {
	tests := []struct {
		name      string
		matrix    mat.Matrix
		dist      []float64
		wantField string
	}{
		{name: "valid", matrix: mat.NewDense(3, 3, DefaultMatrix()), dist: DefaultDistortion()},
		{name: "nil matrix", matrix: nil, dist: DefaultDistortion(), wantField: "matrix"},
		{name: "2x3 matrix", matrix: mat.NewDense(2, 3, nil), dist: DefaultDistortion(), wantField: "matrix"},
		{name: "4x4 matrix", matrix: mat.NewDense(4, 4, nil), dist: DefaultDistortion(), wantField: "matrix"},
		{name: "four coefficients", matrix: mat.NewDense(3, 3, DefaultMatrix()), dist: []float64{0, 0, 0, 0}, wantField: "distortion"},
		{name: "no coefficients", matrix: mat.NewDense(3, 3, DefaultMatrix()), dist: nil, wantField: "distortion"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cam, err := NewCamera(tt.matrix, tt.dist)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.InDelta(t, 3713.803, cam.Matrix.At(0, 0), 1e-9)
				assert.Len(t, cam.Distortion, NumDistortionCoeffs)
				return
			}
			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.wantField, cfgErr.Field)
		})
	}
}

func TestFromValues(t *testing.T) {
	_, err := FromValues([]float64{1, 2, 3}, DefaultDistortion())
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))

	cam, err := FromValues(DefaultMatrix(), DefaultDistortion())
	require.NoError(t, err)
	assert.InDelta(t, 1953.359, cam.Matrix.At(1, 2), 1e-9)
}

func TestNewCamera_CopiesInput(t *testing.T) {
	dist := DefaultDistortion()
	m := mat.NewDense(3, 3, DefaultMatrix())
	cam, err := NewCamera(m, dist)
	require.NoError(t, err)

	dist[0] = 42
	m.Set(0, 0, 1)
	assert.NotEqual(t, 42.0, cam.Distortion[0])
	assert.NotEqual(t, 1.0, cam.Matrix.At(0, 0))
}

func TestUndistort_PreservesSizeAndInput(t *testing.T) {
	cam, err := FromValues([]float64{500, 0, 160, 0, 500, 120, 0, 0, 1}, []float64{0, 0, 0, 0, 0})
	require.NoError(t, err)

	src := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 64, 32, 0), 240, 320, gocv.MatTypeCV8UC3)
	defer func() { _ = src.Close() }()

	dst, err := cam.Undistort(src)
	require.NoError(t, err)
	defer func() { _ = dst.Close() }()

	assert.Equal(t, src.Rows(), dst.Rows())
	assert.Equal(t, src.Cols(), dst.Cols())
	assert.Equal(t, src.Type(), dst.Type())

	// zero distortion leaves the centre untouched
	v := dst.GetVecbAt(120, 160)
	assert.Equal(t, uint8(128), v[0])
	assert.Equal(t, uint8(128), src.GetVecbAt(120, 160)[0])
}

func TestUndistort_Errors(t *testing.T) {
	empty := gocv.NewMat()
	defer func() { _ = empty.Close() }()

	out, err := DefaultCamera().Undistort(empty)
	require.Error(t, err)
	_ = out.Close()

	bad := Camera{Matrix: mat.NewDense(3, 3, DefaultMatrix()), Distortion: []float64{1}}
	src := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC1)
	defer func() { _ = src.Close() }()
	out, err = bad.Undistort(src)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	_ = out.Close()
}
