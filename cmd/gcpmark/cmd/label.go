package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/gcpmark/internal/config"
	"github.com/MeKo-Tech/gcpmark/internal/labeler"
)

// labelCmd represents the label command.
var labelCmd = &cobra.Command{
	Use:   "label [dir]",
	Short: "Label every image in a directory",
	Long: `Detect calibration boards in every image of a directory, locate the
lattice corners inside each board and write a sidecar next to each image.

Existing sidecars with a full header are never overwritten. Images with
fewer than --min-points corners, and images that fail, are listed in the
unprocessed file inside the directory.

Examples:
  gcpmark label ./flight-01
  gcpmark label ./flight-01 --workers 4 --overlay-dir ./overlays
  gcpmark label --model board.onnx --min-points 9`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyLabelFlags(cmd, cfg)

		dir := cfg.ImagesDir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return errors.New("no image directory given (pass it as an argument or set images_dir)")
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			return fmt.Errorf("not a directory: %s", dir)
		}

		if err := cfg.ToLabelerConfig().Validate(); err != nil {
			return err
		}

		l, closeLabeler, err := newLabeler(cfg)
		defer closeLabeler()
		if err != nil {
			return err
		}

		quiet, _ := cmd.Flags().GetBool("quiet")
		progress := labeler.NewMultiProgressCallback(labeler.NewLogProgressCallback(slog.Default(), slog.LevelDebug))
		if !quiet {
			progress.Add(labeler.NewConsoleProgressCallback(cmd.ErrOrStderr(), "Labeling"))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		summary, err := l.RunWith(ctx, dir, progress)
		if summary != nil {
			printSummary(cmd, summary)
		}
		if errors.Is(err, context.Canceled) {
			return errors.New("labeling interrupted")
		}
		return err
	},
}

// applyLabelFlags copies explicitly set flags over the configuration.
func applyLabelFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("workers") {
		cfg.Labeler.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("min-points") {
		cfg.Labeler.MinPoints, _ = cmd.Flags().GetInt("min-points")
	}
	if cmd.Flags().Changed("overlay-dir") {
		cfg.Labeler.OverlayDir, _ = cmd.Flags().GetString("overlay-dir")
	}
	if cmd.Flags().Changed("unprocessed-file") {
		cfg.Labeler.UnprocessedFile, _ = cmd.Flags().GetString("unprocessed-file")
	}
	if cmd.Flags().Changed("rounding") {
		cfg.Labeler.Rounding, _ = cmd.Flags().GetString("rounding")
	}
	applyDetectorFlags(cmd, cfg)
}

func printSummary(cmd *cobra.Command, s *labeler.Summary) {
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Run %s: %d images in %s\n", s.RunID, s.Total, s.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(out, "  labeled: %d\n  skipped: %d\n  failed:  %d\n", s.Labeled, s.Skipped, s.Failed)
	_, _ = fmt.Fprintf(out, "Unprocessed images written to %s\n", s.UnprocessedPath)
}

// addDetectorFlags registers the model flags shared by label and detect.
func addDetectorFlags(c *cobra.Command) {
	c.Flags().String("model", "", "board detection ONNX model (overrides detector.model_path)")
	c.Flags().Float64("confidence", 0.25, "minimum board detection confidence (0..1)")
	c.Flags().Bool("gpu", false, "run the board detector on the GPU")
}

func applyDetectorFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("model") {
		cfg.Detector.ModelPath, _ = cmd.Flags().GetString("model")
	}
	if cmd.Flags().Changed("confidence") {
		cfg.Detector.Confidence, _ = cmd.Flags().GetFloat64("confidence")
	}
	if cmd.Flags().Changed("gpu") {
		cfg.GPU.Enabled, _ = cmd.Flags().GetBool("gpu")
	}
}

func init() {
	rootCmd.AddCommand(labelCmd)
	labelCmd.Flags().IntP("workers", "w", 1, "number of images processed concurrently")
	labelCmd.Flags().Int("min-points", 5, "minimum corners for an image to count as labeled")
	labelCmd.Flags().String("overlay-dir", "", "write annotated overlay images to this directory")
	labelCmd.Flags().String("unprocessed-file", "unprocessed_images.txt", "name of the unprocessed list inside the directory")
	labelCmd.Flags().String("rounding", "truncate", "coordinate rounding when writing sidecars: truncate or nearest")
	labelCmd.Flags().BoolP("quiet", "q", false, "disable the progress bar")
	addDetectorFlags(labelCmd)
}
