// Package region masks an image down to a quadrilateral of interest while
// keeping the full canvas, so coordinates found inside the region need no
// offset correction.
package region

import (
	"errors"
	"image"
	"image/color"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
	"gocv.io/x/gocv"
)

var maskColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

// Mask returns a single-channel rows×cols mask with the filled quad set to
// 255 and everything else 0. Vertices are rounded to the nearest pixel.
func Mask(rows, cols int, q geometry.Quad) gocv.Mat {
	mask := gocv.Zeros(rows, cols, gocv.MatTypeCV8UC1)
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{q.ImagePoints()})
	defer pv.Close()
	gocv.FillPoly(&mask, pv, maskColor)
	return mask
}

// Extract zeroes every pixel of img outside q. The result has the same size
// and type as img; the caller owns it.
func Extract(img gocv.Mat, q geometry.Quad) (gocv.Mat, error) {
	if img.Empty() {
		return gocv.NewMat(), errors.New("extract region: empty image")
	}

	mask := Mask(img.Rows(), img.Cols(), q)
	defer func() { _ = mask.Close() }()

	dst := gocv.Zeros(img.Rows(), img.Cols(), img.Type())
	gocv.BitwiseAndWithMask(img, img, &dst, mask)
	return dst, nil
}
