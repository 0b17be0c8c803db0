package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
	"github.com/MeKo-Tech/gcpmark/internal/imageio"
	"github.com/MeKo-Tech/gcpmark/internal/labeler"
	"github.com/MeKo-Tech/gcpmark/internal/lattice"
	"github.com/MeKo-Tech/gcpmark/internal/lens"
	"github.com/MeKo-Tech/gcpmark/internal/resolve"
)

// DetectTarget is the result for one searched quadrilateral.
type DetectTarget struct {
	ID     int              `json:"id"`
	Quad   geometry.Quad    `json:"quad"`
	Points []geometry.Point `json:"points,omitempty"`
	Error  string           `json:"error,omitempty"`
}

// DetectResult is printed by the detect command.
type DetectResult struct {
	File       string                 `json:"file"`
	Targets    []DetectTarget         `json:"targets"`
	Points     []geometry.TargetPoint `json:"points"`
	Resolution *resolve.Result        `json:"resolution,omitempty"`
	Outcome    labeler.Outcome        `json:"outcome"`
}

// detectCmd represents the detect command.
var detectCmd = &cobra.Command{
	Use:   "detect <image>",
	Short: "Locate lattice corners in one image",
	Long: `Undistort one image and locate the lattice corners inside each calibration
board. The boards are either given with --quad, four corners in any order,
or found by the board detection model. Nothing is written to disk; the
result is printed as JSON.

Examples:
  gcpmark detect DJI_0042.JPG --quad 812,430,1020,436,1015,640,806,633
  gcpmark detect DJI_0042.JPG --model board.onnx`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyDetectorFlags(cmd, cfg)
		if cmd.Flags().Changed("min-points") {
			cfg.Labeler.MinPoints, _ = cmd.Flags().GetInt("min-points")
		}

		quadArgs, _ := cmd.Flags().GetStringArray("quad")
		quads := make([]geometry.Quad, 0, len(quadArgs))
		for _, s := range quadArgs {
			q, err := parseQuad(s)
			if err != nil {
				return err
			}
			quads = append(quads, q)
		}

		camera, lat, err := newGeometry(cfg)
		if err != nil {
			return err
		}

		frame, err := imageio.LoadMat(args[0])
		if err != nil {
			return err
		}
		defer frame.Close()

		if len(quads) == 0 {
			boxes, closeBoxes, err := newBoxDetector(cfg)
			defer closeBoxes()
			if err != nil {
				return fmt.Errorf("%w; or pass --quad", err)
			}
			img, err := frame.ToImage()
			if err != nil {
				return fmt.Errorf("convert frame: %w", err)
			}
			found, err := boxes.Detect(img)
			if err != nil {
				return fmt.Errorf("box detection: %w", err)
			}
			for _, b := range found {
				quads = append(quads, b.Clamp(frame.Cols(), frame.Rows()).Quad())
			}
			slog.Debug("Detected boards", "file", args[0], "boards", len(found))
		}

		res, err := detectInQuads(frame, camera, lat, quads)
		if err != nil {
			return err
		}
		res.File = args[0]
		res.Outcome = labeler.Judge(len(res.Points), cfg.Labeler.MinPoints)

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

// detectInQuads undistorts frame and searches each quad for the lattice.
// Target ids are the 1-based quad indexes.
func detectInQuads(frame gocv.Mat, camera lens.Camera, lat *lattice.Detector, quads []geometry.Quad) (*DetectResult, error) {
	res := &DetectResult{Targets: []DetectTarget{}, Points: []geometry.TargetPoint{}}
	if len(quads) == 0 {
		return res, nil
	}

	undistorted, err := camera.Undistort(frame)
	if err != nil {
		return nil, err
	}
	defer undistorted.Close()

	for i, q := range quads {
		t := DetectTarget{ID: i + 1, Quad: q}
		pts, err := lat.Detect(undistorted, q)
		switch {
		case err == nil:
			t.Points = pts
			res.Points = append(res.Points, geometry.TagAll(pts, t.ID)...)
		case lattice.IsCornerDetectionError(err):
			t.Error = err.Error()
		default:
			return nil, err
		}
		res.Targets = append(res.Targets, t)
	}

	if r := resolve.Resolve(res.Points); r.Applied {
		res.Points = r.Points
		res.Resolution = &r
	}
	return res, nil
}

// parseQuad reads "x1,y1,x2,y2,x3,y3,x4,y4" and orders the corners.
func parseQuad(value string) (geometry.Quad, error) {
	fields := strings.Split(value, ",")
	if len(fields) != 8 {
		return geometry.Quad{}, fmt.Errorf("invalid --quad %q: want 8 comma-separated numbers, got %d", value, len(fields))
	}
	pts := make([]geometry.Point, 4)
	for i := range pts {
		x, errX := strconv.ParseFloat(strings.TrimSpace(fields[2*i]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(fields[2*i+1]), 64)
		if errX != nil || errY != nil {
			return geometry.Quad{}, fmt.Errorf("invalid --quad %q: corner %d is not numeric", value, i+1)
		}
		pts[i] = geometry.Pt(x, y)
	}
	return geometry.OrderCorners(pts)
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectCmd.Flags().StringArray("quad", nil, "board corners x1,y1,...,x4,y4 (repeatable); skips the board detector")
	detectCmd.Flags().Int("min-points", 5, "minimum corners for the image to count as labeled")
	addDetectorFlags(detectCmd)
}
