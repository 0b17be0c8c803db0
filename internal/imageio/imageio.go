// Package imageio discovers, loads and encodes the survey images.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
)

// SupportedExtensions lists the image extensions the catalog accepts.
var SupportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tif", ".tiff"}

// DefaultJPEGQuality is used when serving images to the labeling UI.
const DefaultJPEGQuality = 90

// IsSupported reports whether path has a supported image extension.
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// ImageError wraps failures while loading or encoding an image.
type ImageError struct {
	Operation string
	Path      string
	Err       error
}

func (e *ImageError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("image %s failed: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("image %s failed for %s: %v", e.Operation, e.Path, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// Metadata captures lightweight file and pixel information.
type Metadata struct {
	Path      string `json:"path"`
	Format    string `json:"format"`
	SizeBytes int64  `json:"size_bytes"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// Load decodes an image, applying any EXIF orientation so pixel
// coordinates agree with what OpenCV reads.
func Load(path string) (image.Image, Metadata, error) {
	if path == "" {
		return nil, Metadata{}, &ImageError{Operation: "load", Err: errors.New("empty path")}
	}
	if !IsSupported(path) {
		return nil, Metadata{}, &ImageError{Operation: "load", Path: path,
			Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
	}

	fi, err := os.Stat(path)
	if err != nil {
		return nil, Metadata{}, &ImageError{Operation: "load", Path: path, Err: err}
	}

	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, Metadata{}, &ImageError{Operation: "decode", Path: path, Err: err}
	}

	format, _ := imaging.FormatFromFilename(path)
	b := img.Bounds()
	return img, Metadata{
		Path:      path,
		Format:    strings.ToLower(format.String()),
		SizeBytes: fi.Size(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

// LoadMat reads an image as a BGR Mat. The caller closes it.
func LoadMat(path string) (gocv.Mat, error) {
	if !IsSupported(path) {
		return gocv.NewMat(), &ImageError{Operation: "load", Path: path,
			Err: fmt.Errorf("unsupported format: %s", filepath.Ext(path))}
	}
	m := gocv.IMRead(path, gocv.IMReadColor)
	if m.Empty() {
		m.Close()
		return gocv.NewMat(), &ImageError{Operation: "decode", Path: path, Err: errors.New("empty or unreadable image")}
	}
	return m, nil
}

// ToMat converts img to a BGR Mat. The caller closes it.
func ToMat(img image.Image) (gocv.Mat, error) {
	m, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return gocv.NewMat(), &ImageError{Operation: "convert", Err: err}
	}
	return m, nil
}

// EncodeJPEG encodes img as JPEG.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, &ImageError{Operation: "encode", Err: err}
	}
	return buf.Bytes(), nil
}
