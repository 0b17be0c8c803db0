package support

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
	"github.com/MeKo-Tech/gcpmark/internal/labeler"
	"github.com/MeKo-Tech/gcpmark/internal/resolve"
	"github.com/MeKo-Tech/gcpmark/internal/session"
	"github.com/MeKo-Tech/gcpmark/internal/sidecar"
)

// TestContext holds the state of one scenario.
type TestContext struct {
	// Test environment
	TempDir string

	// Sidecar state
	LastLoaded   sidecar.Loaded
	LastSnapshot string
	LastError    error

	// Labeler state
	MinPoints   int
	PointCount  int
	LastOutcome labeler.Outcome
	Points      []geometry.TargetPoint
	Resolution  resolve.Result

	// Session state
	Session   *session.Manager
	LastImage *session.ImageData
}

// NewTestContext creates a scenario context with its own image directory.
func NewTestContext() (*TestContext, error) {
	tempDir, err := os.MkdirTemp("", "gcpmark-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &TestContext{
		TempDir:   tempDir,
		MinPoints: labeler.DefaultConfig().MinPoints,
	}, nil
}

// Path returns name inside the scenario directory.
func (testCtx *TestContext) Path(name string) string {
	return filepath.Join(testCtx.TempDir, name)
}

// SidecarPath returns the sidecar path of an image in the scenario directory.
func (testCtx *TestContext) SidecarPath(image string) string {
	return sidecar.PathFor(testCtx.Path(image))
}

// Cleanup removes the scenario directory.
func (testCtx *TestContext) Cleanup() error {
	if err := os.RemoveAll(testCtx.TempDir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove temp directory %s: %w", testCtx.TempDir, err)
	}
	return nil
}
