package testutil

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
)

// Board describes a synthetic checkerboard drawn on a white canvas.
type Board struct {
	Squares    int // squares per side
	SquareSize int
	OriginX    int
	OriginY    int
	Width      int
	Height     int
}

// DefaultBoard is a 4x4 board with a 3x3 interior lattice.
func DefaultBoard() Board {
	return Board{Squares: 4, SquareSize: 40, OriginX: 100, OriginY: 80, Width: 400, Height: 320}
}

// Image renders the board.
func (b Board) Image() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, b.Width, b.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	black := &image.Uniform{C: color.Black}
	for r := 0; r < b.Squares; r++ {
		for c := 0; c < b.Squares; c++ {
			if (r+c)%2 != 0 {
				continue
			}
			x0 := b.OriginX + c*b.SquareSize
			y0 := b.OriginY + r*b.SquareSize
			draw.Draw(img, image.Rect(x0, y0, x0+b.SquareSize, y0+b.SquareSize), black, image.Point{}, draw.Src)
		}
	}
	return img
}

// InteriorCorners returns the expected lattice points in row-major order,
// using pixel-centre coordinates.
func (b Board) InteriorCorners() []geometry.Point {
	n := b.Squares - 1
	pts := make([]geometry.Point, 0, n*n)
	for r := 1; r <= n; r++ {
		for c := 1; c <= n; c++ {
			pts = append(pts, geometry.Pt(
				float64(b.OriginX+c*b.SquareSize)-0.5,
				float64(b.OriginY+r*b.SquareSize)-0.5,
			))
		}
	}
	return pts
}

// Box returns the board extent grown by margin pixels on every side.
func (b Board) Box(margin float64) geometry.Box {
	side := float64(b.Squares * b.SquareSize)
	return geometry.Box{
		X1:         float64(b.OriginX) - margin,
		Y1:         float64(b.OriginY) - margin,
		X2:         float64(b.OriginX) + side + margin,
		Y2:         float64(b.OriginY) + side + margin,
		Confidence: 0.9,
	}
}
