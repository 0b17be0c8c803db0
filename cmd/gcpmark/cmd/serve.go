package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/gcpmark/internal/config"
	"github.com/MeKo-Tech/gcpmark/internal/labeler"
	"github.com/MeKo-Tech/gcpmark/internal/server"
	"github.com/MeKo-Tech/gcpmark/internal/session"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve [dir]",
	Short: "Start the annotation HTTP server",
	Long: `Start an HTTP server over one image directory for reviewing and correcting
annotations.

The server provides the following endpoints:
  GET  /api/images                   - List images in index order
  GET  /api/image/{index}            - Image, geo info, header and coordinates
  POST /api/save_coordinates/{index} - Replace the sidecar of one image
  POST /api/process_rectangle        - Corners of a drawn rectangle
  POST /api/refresh                  - Rescan the directory
  POST /shutdown                     - Stop the server
  GET  /ws/label                     - Batch labeling with live progress
  GET  /health, /metrics

Batch labeling over the websocket is available when a board detection
model is configured.

Examples:
  gcpmark serve ./flight-01
  gcpmark serve ./flight-01 --host 0.0.0.0 --port 3000 --static ./web`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		applyServeFlags(cmd, cfg)

		dir := cfg.ImagesDir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			return errors.New("no image directory given (pass it as an argument or set images_dir)")
		}
		if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", cfg.Server.Port)
		}

		sess, err := session.New(cfg.ToSessionConfig(dir))
		if err != nil {
			return fmt.Errorf("failed to open image directory: %w", err)
		}

		var runner *labeler.Labeler
		if cfg.Detector.ModelPath != "" {
			l, closeLabeler, err := newLabeler(cfg)
			defer closeLabeler()
			if err != nil {
				return err
			}
			runner = l.WithLocker(sess.Locks())
		} else {
			slog.Info("No board detection model configured; batch labeling disabled")
		}

		srv, err := newAnnotationServer(cfg, sess, runner)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}

		mux := http.NewServeMux()
		srv.SetupRoutes(mux)

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       cfg.Server.Timeout(),
			WriteTimeout:      cfg.Server.Timeout(),
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		go func() {
			slog.Info("Starting annotation server",
				"host", cfg.Server.Host, "port", cfg.Server.Port, "dir", dir, "images", len(sess.ListImages()))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-srv.ShutdownRequested():
			slog.Info("Shutdown requested by client")
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		shutdownTimeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
		slog.Info("Starting graceful shutdown", "timeout", shutdownTimeout.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
			return err
		}
		slog.Info("Graceful shutdown completed")
		return nil
	},
}

// newAnnotationServer builds the HTTP server. A nil runner is passed on as
// a nil interface so /ws/label reports labeling as unavailable.
func newAnnotationServer(cfg *config.Config, sess *session.Manager, runner *labeler.Labeler) (*server.Server, error) {
	if runner == nil {
		return server.NewServer(cfg.ToServerConfig(), sess, nil)
	}
	return server.NewServer(cfg.ToServerConfig(), sess, runner)
}

// applyServeFlags copies explicitly set flags over the configuration.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("cors-origin") {
		cfg.Server.CORSOrigin, _ = cmd.Flags().GetString("cors-origin")
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Server.TimeoutSec, _ = cmd.Flags().GetInt("timeout")
	}
	if cmd.Flags().Changed("shutdown-timeout") {
		cfg.Server.ShutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
	}
	if cmd.Flags().Changed("static") {
		cfg.Server.StaticDir, _ = cmd.Flags().GetString("static")
	}
	if cmd.Flags().Changed("rounding") {
		cfg.Labeler.Rounding, _ = cmd.Flags().GetString("rounding")
	}
	applyDetectorFlags(cmd, cfg)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().String("static", "", "directory with the annotation web UI, served at /")
	serveCmd.Flags().String("rounding", "truncate", "coordinate rounding when saving: truncate or nearest")
	addDetectorFlags(serveCmd)
}
