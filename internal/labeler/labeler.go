// Package labeler runs unattended annotation over a directory of drone
// images: box detection, lattice extraction, resolution of duplicate boards
// and sidecar persistence.
package labeler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"

	"github.com/MeKo-Tech/gcpmark/internal/boxdetect"
	"github.com/MeKo-Tech/gcpmark/internal/geoinfo"
	"github.com/MeKo-Tech/gcpmark/internal/geometry"
	"github.com/MeKo-Tech/gcpmark/internal/imageio"
	"github.com/MeKo-Tech/gcpmark/internal/lattice"
	"github.com/MeKo-Tech/gcpmark/internal/lens"
	"github.com/MeKo-Tech/gcpmark/internal/resolve"
	"github.com/MeKo-Tech/gcpmark/internal/sidecar"
)

// Outcome is the terminal state of one image.
type Outcome string

const (
	OutcomeLabeled Outcome = "labeled"
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed marks an image that hit an unexpected error. It is
	// listed as unprocessed like a skipped one.
	OutcomeFailed Outcome = "failed"
)

// Config controls the batch run.
type Config struct {
	MinPoints       int              `mapstructure:"min_points" yaml:"min_points" json:"min_points"`
	Workers         int              `mapstructure:"workers" yaml:"workers" json:"workers"`
	UnprocessedFile string           `mapstructure:"unprocessed_file" yaml:"unprocessed_file" json:"unprocessed_file"`
	OverlayDir      string           `mapstructure:"overlay_dir" yaml:"overlay_dir" json:"overlay_dir"`
	Rounding        sidecar.Rounding `mapstructure:"rounding" yaml:"rounding" json:"rounding"`
}

// DefaultConfig processes images one at a time and labels any image with
// at least five points.
func DefaultConfig() Config {
	return Config{
		MinPoints:       5,
		Workers:         1,
		UnprocessedFile: "unprocessed_images.txt",
		Rounding:        sidecar.Truncate,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	if c.MinPoints < 1 {
		return fmt.Errorf("labeler min_points must be at least 1, got %d", c.MinPoints)
	}
	if c.Workers < 1 {
		return fmt.Errorf("labeler workers must be at least 1, got %d", c.Workers)
	}
	if c.UnprocessedFile == "" || filepath.Base(c.UnprocessedFile) != c.UnprocessedFile {
		return fmt.Errorf("labeler unprocessed_file must be a plain file name, got %q", c.UnprocessedFile)
	}
	if !c.Rounding.Valid() {
		return fmt.Errorf("labeler rounding must be %q or %q, got %q", sidecar.Truncate, sidecar.Nearest, c.Rounding)
	}
	return nil
}

// ImageResult records what happened to one image.
type ImageResult struct {
	Filename string                 `json:"filename"`
	Path     string                 `json:"path"`
	Outcome  Outcome                `json:"outcome"`
	Boxes    int                    `json:"boxes"`
	Points   []geometry.TargetPoint `json:"points"`
	// Resolution is set when two candidate boards were reduced to one.
	Resolution *resolve.Result `json:"resolution,omitempty"`
	// Existing is true when a valid sidecar was present before detection
	// or was saved before the labeler could write; it is never overwritten.
	Existing       bool          `json:"existing_sidecar"`
	SidecarWritten bool          `json:"sidecar_written"`
	Overlay        string        `json:"overlay,omitempty"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
}

// Summary aggregates a batch run.
type Summary struct {
	RunID           string        `json:"run_id"`
	Dir             string        `json:"dir"`
	Total           int           `json:"total"`
	Labeled         int           `json:"labeled"`
	Skipped         int           `json:"skipped"`
	Failed          int           `json:"failed"`
	Unprocessed     []string      `json:"unprocessed"`
	UnprocessedPath string        `json:"unprocessed_path"`
	Duration        time.Duration `json:"duration_ns"`
	Images          []ImageResult `json:"images"`
}

// Judge classifies an image by its final point count.
func Judge(points, minPoints int) Outcome {
	if points >= minPoints {
		return OutcomeLabeled
	}
	return OutcomeSkipped
}

// Labeler is the batch labeling driver.
type Labeler struct {
	config   Config
	camera   lens.Camera
	lattice  *lattice.Detector
	boxes    boxdetect.Detector
	geo      geoinfo.Provider
	locks    *sidecar.Locker
	progress ProgressCallback
}

// New creates a labeler. All collaborators are required.
func New(config Config, camera lens.Camera, lat *lattice.Detector,
	boxes boxdetect.Detector, geo geoinfo.Provider,
) (*Labeler, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := camera.Validate(); err != nil {
		return nil, err
	}
	if lat == nil || boxes == nil || geo == nil {
		return nil, errors.New("labeler needs a lattice detector, a box detector and a geo provider")
	}
	return &Labeler{
		config:   config,
		camera:   camera,
		lattice:  lat,
		boxes:    boxes,
		geo:      geo,
		locks:    sidecar.NewLocker(),
		progress: NoOpProgressCallback{},
	}, nil
}

// WithLocker makes the labeler take the given per-path locks before it
// writes a sidecar. Pass the locks of any session serving the same
// directory.
func (l *Labeler) WithLocker(locks *sidecar.Locker) *Labeler {
	if locks == nil {
		locks = sidecar.NewLocker()
	}
	l.locks = locks
	return l
}

// WithProgress sets the progress callback.
func (l *Labeler) WithProgress(cb ProgressCallback) *Labeler {
	if cb == nil {
		cb = NoOpProgressCallback{}
	}
	l.progress = cb
	return l
}

// GetConfig returns the labeler configuration.
func (l *Labeler) GetConfig() Config {
	return l.config
}

// Run labels every supported image directly in dir, then overwrites the
// unprocessed list. A failing image never stops the batch; only context
// cancellation does, in which case the partial summary is returned with the
// context error.
func (l *Labeler) Run(ctx context.Context, dir string) (*Summary, error) {
	return l.RunWith(ctx, dir, l.progress)
}

// RunWith is Run reporting to progress instead of the configured callback.
// It does not modify the labeler, so concurrent runs on distinct
// directories are safe.
func (l *Labeler) RunWith(ctx context.Context, dir string, progress ProgressCallback) (*Summary, error) {
	if progress == nil {
		progress = NoOpProgressCallback{}
	}
	start := time.Now()
	runID := uuid.NewString()

	paths, err := imageio.Discover(dir, imageio.DiscoverOptions{})
	if err != nil {
		progress.OnError(err)
		return nil, fmt.Errorf("discover images: %w", err)
	}

	slog.Info("Labeling directory", "run_id", runID, "dir", dir, "images", len(paths), "workers", l.config.Workers)
	progress.OnStart(len(paths))

	results := make([]*ImageResult, len(paths))
	var done atomic.Int64

	var g errgroup.Group
	g.SetLimit(l.config.Workers)
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r := l.ProcessImage(path)
			results[i] = &r
			progress.OnImage(int(done.Add(1)), len(paths), r)
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{RunID: runID, Dir: dir, UnprocessedPath: filepath.Join(dir, l.config.UnprocessedFile)}
	for _, r := range results {
		if r == nil {
			continue
		}
		summary.Total++
		switch r.Outcome {
		case OutcomeLabeled:
			summary.Labeled++
		case OutcomeSkipped:
			summary.Skipped++
			summary.Unprocessed = append(summary.Unprocessed, r.Filename)
		case OutcomeFailed:
			summary.Failed++
			summary.Unprocessed = append(summary.Unprocessed, r.Filename)
		}
		summary.Images = append(summary.Images, *r)
	}

	if err := WriteUnprocessed(summary.UnprocessedPath, summary.Unprocessed); err != nil {
		progress.OnError(err)
		return summary, err
	}

	summary.Duration = time.Since(start)
	slog.Info("Labeling finished",
		"run_id", runID,
		"labeled", summary.Labeled,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration", summary.Duration)

	if err := ctx.Err(); err != nil {
		progress.OnError(err)
		return summary, err
	}
	progress.OnComplete(*summary)
	return summary, nil
}

// ProcessImage drives one image from Init to a terminal state. It never
// returns an error: failures, panics included, are reported in the result.
func (l *Labeler) ProcessImage(path string) (r ImageResult) {
	start := time.Now()
	r = ImageResult{Filename: filepath.Base(path), Path: path}
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Image panicked", "file", path, "panic", rec)
			r.Outcome = OutcomeFailed
			r.Error = fmt.Sprintf("panic: %v", rec)
			r.Duration = time.Since(start)
		}
	}()

	if err := l.process(path, &r); err != nil {
		slog.Error("Image failed", "file", path, "error", err)
		r.Outcome = OutcomeFailed
		r.Error = err.Error()
	}
	r.Duration = time.Since(start)
	return r
}

func (l *Labeler) process(path string, r *ImageResult) error {
	// Init
	geo := l.geo.Extract(path)
	sidecarPath := sidecar.PathFor(path)
	loaded, err := sidecar.ReadFile(sidecarPath)
	if err != nil {
		return err
	}
	r.Existing = loaded.Valid()

	// Detect
	frame, err := imageio.LoadMat(path)
	if err != nil {
		return err
	}
	defer frame.Close()

	img, err := frame.ToImage()
	if err != nil {
		return fmt.Errorf("convert frame: %w", err)
	}
	boxes, err := l.boxes.Detect(img)
	if err != nil {
		return fmt.Errorf("box detection: %w", err)
	}
	r.Boxes = len(boxes)

	points, err := l.detectLattices(frame, boxes)
	if err != nil {
		return err
	}

	// Resolve
	if len(points) == resolve.PairedPoints {
		res := resolve.Resolve(points)
		if res.Applied {
			slog.Debug("Resolved duplicate boards", "file", path, "kept", res.Kept, "dropped", res.Dropped)
			points = res.Points
			r.Resolution = &res
		}
	}
	r.Points = points

	// Judge
	r.Outcome = Judge(len(points), l.config.MinPoints)

	// Persist
	if !r.Existing {
		rec := sidecar.Record{
			Header:      sidecar.HeaderFor(r.Filename, geo),
			Coordinates: sidecar.Entries(points),
		}
		written, err := l.persist(sidecarPath, rec)
		if err != nil {
			return err
		}
		r.SidecarWritten = written
		r.Existing = !written
	}

	if l.config.OverlayDir != "" {
		overlay, err := writeOverlay(l.config.OverlayDir, r.Filename, frame, boxes, points)
		if err != nil {
			slog.Warn("Failed to write overlay", "file", path, "error", err)
		} else {
			r.Overlay = overlay
		}
	}
	return nil
}

// persist writes rec unless the sidecar became valid while the image was
// being detected. The check and the write happen under the path lock, so a
// manual save made in the meantime is kept.
func (l *Labeler) persist(path string, rec sidecar.Record) (bool, error) {
	unlock := l.locks.Lock(path)
	defer unlock()

	loaded, err := sidecar.ReadFile(path)
	if err != nil {
		return false, err
	}
	if loaded.Valid() {
		slog.Debug("Sidecar appeared during detection, keeping it", "file", path)
		return false, nil
	}
	if err := sidecar.WriteFile(path, rec, l.config.Rounding); err != nil {
		return false, err
	}
	return true, nil
}

// detectLattices undistorts the frame once and searches every box. Boxes
// without a lattice contribute nothing; target ids are 1-based box indexes.
func (l *Labeler) detectLattices(frame gocv.Mat, boxes []geometry.Box) ([]geometry.TargetPoint, error) {
	if len(boxes) == 0 {
		return nil, nil
	}

	undistorted, err := l.camera.Undistort(frame)
	if err != nil {
		return nil, err
	}
	defer undistorted.Close()

	var points []geometry.TargetPoint
	for i, box := range boxes {
		box = box.Clamp(undistorted.Cols(), undistorted.Rows())
		pts, err := l.lattice.Detect(undistorted, box.Quad())
		if err != nil {
			if lattice.IsCornerDetectionError(err) {
				slog.Debug("No lattice in box", "box", i+1, "error", err)
				continue
			}
			return nil, err
		}
		points = append(points, geometry.TagAll(pts, i+1)...)
	}
	return points, nil
}

// WriteUnprocessed overwrites path with one file name per line.
func WriteUnprocessed(path string, names []string) error {
	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil { //nolint:gosec // shared text output
		return fmt.Errorf("write unprocessed list: %w", err)
	}
	return nil
}
