package labeler

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gocv.io/x/gocv"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
)

var (
	overlayBoxColor   = color.RGBA{R: 255, A: 255}
	overlayPointColor = color.RGBA{G: 255, A: 255}
)

// writeOverlay draws boxes and points on a copy of frame and saves it as
// <dir>/<name>_overlay.jpg.
func writeOverlay(dir, filename string, frame gocv.Mat, boxes []geometry.Box, points []geometry.TargetPoint) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create overlay dir: %w", err)
	}

	canvas := frame.Clone()
	defer canvas.Close()
	drawOverlay(&canvas, boxes, points)

	name := strings.TrimSuffix(filename, filepath.Ext(filename)) + "_overlay.jpg"
	path := filepath.Join(dir, name)
	if !gocv.IMWrite(path, canvas) {
		return "", fmt.Errorf("write overlay %s", path)
	}
	return path, nil
}

func drawOverlay(canvas *gocv.Mat, boxes []geometry.Box, points []geometry.TargetPoint) {
	thickness := max(2, canvas.Cols()/1000)
	radius := max(3, canvas.Cols()/500)

	for i, b := range boxes {
		rect := image.Rect(int(b.X1), int(b.Y1), int(b.X2), int(b.Y2))
		gocv.Rectangle(canvas, rect, overlayBoxColor, thickness)
		gocv.PutText(canvas, strconv.Itoa(i+1), image.Pt(rect.Min.X, rect.Min.Y-thickness*2),
			gocv.FontHersheySimplex, float64(thickness)/2, overlayBoxColor, thickness)
	}
	for _, p := range points {
		gocv.Circle(canvas, p.Round(), radius, overlayPointColor, -1)
	}
}
