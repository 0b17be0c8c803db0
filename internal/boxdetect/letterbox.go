package boxdetect

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
)

// padColor is the gray YOLO models are trained with.
var padColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// LetterboxInfo records how a frame was fitted into the square model input.
type LetterboxInfo struct {
	Scale      float64
	PadX, PadY int
	Size       int
}

// Letterbox scales img to fit a size×size square without distortion and
// pads the remainder with gray.
func Letterbox(img image.Image, size int) (*image.NRGBA, LetterboxInfo) {
	b := img.Bounds()
	scale := math.Min(float64(size)/float64(b.Dx()), float64(size)/float64(b.Dy()))
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))

	resized := imaging.Resize(img, w, h, imaging.Linear)
	info := LetterboxInfo{Scale: scale, PadX: (size - w) / 2, PadY: (size - h) / 2, Size: size}

	canvas := imaging.New(size, size, padColor)
	return imaging.Paste(canvas, resized, image.Pt(info.PadX, info.PadY)), info
}

// Unmap converts a box from model input space back to the original frame.
func (l LetterboxInfo) Unmap(b geometry.Box) geometry.Box {
	if l.Scale <= 0 {
		return b
	}
	b.X1 = (b.X1 - float64(l.PadX)) / l.Scale
	b.Y1 = (b.Y1 - float64(l.PadY)) / l.Scale
	b.X2 = (b.X2 - float64(l.PadX)) / l.Scale
	b.Y2 = (b.Y2 - float64(l.PadY)) / l.Scale
	return b
}
