package imageio

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/gcpmark/internal/testutil"
)

func TestIsSupported(t *testing.T) {
	tests := map[string]bool{
		"a.jpg":       true,
		"a.JPG":       true,
		"a.jpeg":      true,
		"a.png":       true,
		"a.bmp":       true,
		"a.tif":       true,
		"a.TIFF":      true,
		"a.txt":       false,
		"a.gif":       false,
		"no_ext":      false,
		"dir.jpg/a.x": false,
	}
	for path, want := range tests {
		assert.Equal(t, want, IsSupported(path), path)
	}
}

func TestDiscover(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	for _, name := range []string{"b.jpg", "a.PNG", "c.jpeg", "notes.txt", "a.txt", "sub/d.jpg"} {
		testutil.WriteFile(t, dir, name, "x")
	}

	files, err := Discover(dir, DiscoverOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PNG"),
		filepath.Join(dir, "b.jpg"),
		filepath.Join(dir, "c.jpeg"),
	}, files)

	files, err = Discover(dir, DiscoverOptions{Recursive: true, Exclude: []string{"b.*"}})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PNG"),
		filepath.Join(dir, "c.jpeg"),
		filepath.Join(dir, "sub", "d.jpg"),
	}, files)

	files, err = Discover(dir, DiscoverOptions{Include: []string{"*.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b.jpg")}, files)
}

func TestDiscover_Errors(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), DiscoverOptions{})
	assert.Error(t, err)

	file := testutil.WriteFile(t, t.TempDir(), "a.jpg", "x")
	_, err = Discover(file, DiscoverOptions{})
	assert.ErrorContains(t, err, "not a directory")
}

func TestListNames(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	for _, name := range []string{"z.jpg", "m.png", "a.jpeg", "readme.md"} {
		testutil.WriteFile(t, dir, name, "x")
	}

	names, err := ListNames(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpeg", "m.png", "z.jpg"}, names)
}

func TestLoad(t *testing.T) {
	dir := testutil.ImageDir(t, "board.png")

	img, meta, err := Load(filepath.Join(dir, "board.png"))
	require.NoError(t, err)

	b := testutil.DefaultBoard()
	assert.Equal(t, b.Width, img.Bounds().Dx())
	assert.Equal(t, b.Height, meta.Height)
	assert.Equal(t, "png", meta.Format)
	assert.Positive(t, meta.SizeBytes)
}

func TestLoad_Errors(t *testing.T) {
	dir := testutil.CreateTempDir(t)
	corrupt := testutil.WriteFile(t, dir, "corrupt.jpg", "not an image")

	tests := []struct {
		name string
		path string
		op   string
	}{
		{"empty path", "", "load"},
		{"unsupported", filepath.Join(dir, "a.gif"), "load"},
		{"missing", filepath.Join(dir, "missing.jpg"), "load"},
		{"corrupt", corrupt, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Load(tt.path)
			var imgErr *ImageError
			require.True(t, errors.As(err, &imgErr))
			assert.Equal(t, tt.op, imgErr.Operation)
		})
	}
}

func TestLoad_MissingIsNotExist(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "missing.jpg"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMat(t *testing.T) {
	dir := testutil.ImageDir(t, "board.png")

	m, err := LoadMat(filepath.Join(dir, "board.png"))
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, testutil.DefaultBoard().Width, m.Cols())
	assert.Equal(t, 3, m.Channels())

	_, err = LoadMat(testutil.WriteFile(t, dir, "bad.jpg", "nope"))
	assert.Error(t, err)
}

func TestToMat(t *testing.T) {
	img := testutil.CreateTestImage(8, 4, color.RGBA{R: 200, G: 10, B: 20, A: 255})

	m, err := ToMat(img)
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 4, m.Rows())
	assert.Equal(t, 8, m.Cols())
	v := m.GetVecbAt(0, 0)
	assert.Equal(t, []uint8{20, 10, 200}, []uint8{v[0], v[1], v[2]})
}

func TestEncodeJPEG(t *testing.T) {
	img := testutil.CreateTestImage(16, 8, color.White)

	for _, q := range []int{0, 50, 101} {
		data, err := EncodeJPEG(img, q)
		require.NoError(t, err)

		decoded, err := jpeg.Decode(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 16, 8), decoded.Bounds())
	}
}
