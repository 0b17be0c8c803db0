package testutil

import (
	"image"
	"image/color"
	"image/draw"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
)

// CreateTestImage creates a uniformly filled image.
func CreateTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// SaveImage encodes img to path; the format follows the extension.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()
	require.NoError(t, imaging.Save(img, path, imaging.JPEGQuality(95)), "save %s", path)
}

// ImageDir creates a directory holding one image per name. Each image is
// the default board so that detection succeeds on it.
func ImageDir(t *testing.T, names ...string) string {
	t.Helper()

	dir := t.TempDir()
	img := DefaultBoard().Image()
	for _, name := range names {
		SaveImage(t, img, filepath.Join(dir, name))
	}
	return dir
}
