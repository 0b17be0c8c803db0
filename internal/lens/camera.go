package lens

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// ConfigurationError reports malformed calibration input.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid camera configuration: %s: %s", e.Field, e.Reason)
}

// NumDistortionCoeffs is the length of the k1, k2, p1, p2, k3 vector.
const NumDistortionCoeffs = 5

// Camera holds pinhole intrinsics and radial/tangential distortion
// coefficients. Values come from an external calibration and are never
// estimated here.
type Camera struct {
	Matrix     *mat.Dense
	Distortion []float64
}

// NewCamera validates the shapes of the intrinsics matrix and the
// distortion vector.
func NewCamera(matrix mat.Matrix, distortion []float64) (Camera, error) {
	if matrix == nil {
		return Camera{}, &ConfigurationError{Field: "matrix", Reason: "missing"}
	}
	if r, c := matrix.Dims(); r != 3 || c != 3 {
		return Camera{}, &ConfigurationError{Field: "matrix", Reason: fmt.Sprintf("want 3x3, got %dx%d", r, c)}
	}
	if len(distortion) != NumDistortionCoeffs {
		return Camera{}, &ConfigurationError{
			Field:  "distortion",
			Reason: fmt.Sprintf("want %d coefficients, got %d", NumDistortionCoeffs, len(distortion)),
		}
	}

	return Camera{
		Matrix:     mat.DenseCopyOf(matrix),
		Distortion: append([]float64(nil), distortion...),
	}, nil
}

// FromValues builds a camera from a row-major 3x3 matrix.
func FromValues(matrix, distortion []float64) (Camera, error) {
	if len(matrix) != 9 {
		return Camera{}, &ConfigurationError{Field: "matrix", Reason: fmt.Sprintf("want 9 values, got %d", len(matrix))}
	}
	return NewCamera(mat.NewDense(3, 3, append([]float64(nil), matrix...)), distortion)
}

// DefaultMatrix returns the intrinsics of the survey camera the labeler
// ships with, row-major.
func DefaultMatrix() []float64 {
	return []float64{
		3713.803, 0, 2684.996,
		0, 3713.803, 1953.359,
		0, 0, 1,
	}
}

// DefaultDistortion returns the distortion coefficients paired with
// DefaultMatrix.
func DefaultDistortion() []float64 {
	return []float64{0.008207496, -0.018350467, 0.00012171, 0.000062393, 0.011509733}
}

// DefaultCamera returns the camera built from DefaultMatrix and
// DefaultDistortion.
func DefaultCamera() Camera {
	cam, err := FromValues(DefaultMatrix(), DefaultDistortion())
	if err != nil {
		panic(err)
	}
	return cam
}

// Validate re-checks the shapes, for cameras built as struct literals.
func (c Camera) Validate() error {
	if c.Matrix == nil {
		return &ConfigurationError{Field: "matrix", Reason: "missing"}
	}
	_, err := NewCamera(c.Matrix, c.Distortion)
	return err
}

// mats converts the calibration into CV_64F Mats. The caller closes both.
func (c Camera) mats() (gocv.Mat, gocv.Mat) {
	k := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			k.SetDoubleAt(i, j, c.Matrix.At(i, j))
		}
	}
	d := gocv.NewMatWithSize(1, NumDistortionCoeffs, gocv.MatTypeCV64F)
	for i, v := range c.Distortion {
		d.SetDoubleAt(0, i, v)
	}
	return k, d
}

// Undistort removes lens distortion from src using the camera matrix as the
// new camera matrix, so the output has the same size and field of view.
// src is not modified; the caller owns the returned Mat.
func (c Camera) Undistort(src gocv.Mat) (gocv.Mat, error) {
	if err := c.Validate(); err != nil {
		return gocv.NewMat(), err
	}
	if src.Empty() {
		return gocv.NewMat(), errors.New("undistort: empty image")
	}

	k, d := c.mats()
	defer func() { _ = k.Close() }()
	defer func() { _ = d.Close() }()

	dst := gocv.NewMat()
	gocv.Undistort(src, &dst, k, d, k)
	return dst, nil
}
