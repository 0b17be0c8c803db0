package lattice

import (
	"testing"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
	"github.com/MeKo-Tech/gcpmark/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func boardMat(t *testing.T, b testutil.Board) gocv.Mat {
	t.Helper()
	m, err := gocv.ImageToMatRGB(b.Image())
	require.NoError(t, err)
	return m
}

func TestDetector_SyntheticBoard(t *testing.T) {
	board := testutil.DefaultBoard()
	img := boardMat(t, board)
	defer func() { _ = img.Close() }()

	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	pts, err := d.Detect(img, board.Box(25).Quad())
	require.NoError(t, err)
	require.Len(t, pts, 9)

	want := board.InteriorCorners()
	for i := range want {
		assert.InDelta(t, want[i].X, pts[i].X, 1.0, "corner %d x", i)
		assert.InDelta(t, want[i].Y, pts[i].Y, 1.0, "corner %d y", i)
	}
}

func TestDetector_GrayInput(t *testing.T) {
	board := testutil.DefaultBoard()
	rgb := boardMat(t, board)
	defer func() { _ = rgb.Close() }()

	gray := gocv.NewMat()
	defer func() { _ = gray.Close() }()
	gocv.CvtColor(rgb, &gray, gocv.ColorBGRToGray)

	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	pts, err := d.Detect(gray, board.Box(25).Quad())
	require.NoError(t, err)
	assert.Len(t, pts, 9)
}

func TestDetector_NotFound(t *testing.T) {
	blank := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 200, 200, gocv.MatTypeCV8UC3)
	defer func() { _ = blank.Close() }()

	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	_, err = d.Detect(blank, geometry.Box{X1: 10, Y1: 10, X2: 190, Y2: 190}.Quad())
	require.Error(t, err)
	assert.True(t, IsCornerDetectionError(err))
}

func TestDetector_RegionExcludesBoard(t *testing.T) {
	board := testutil.DefaultBoard()
	img := boardMat(t, board)
	defer func() { _ = img.Close() }()

	d, err := NewDetector(DefaultConfig())
	require.NoError(t, err)

	_, err = d.Detect(img, geometry.Box{X1: 300, Y1: 10, X2: 390, Y2: 70}.Quad())
	assert.True(t, IsCornerDetectionError(err))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Equal(t, 9, DefaultConfig().NumCorners())

	bad := []func(c *Config){
		func(c *Config) { c.GridCols = 1 },
		func(c *Config) { c.GridRows = 0 },
		func(c *Config) { c.WindowSize = 0 },
		func(c *Config) { c.MaxIterations = -1 },
		func(c *Config) { c.Epsilon = 0 },
	}
	for i, mutate := range bad {
		cfg := DefaultConfig()
		mutate(&cfg)
		assert.Error(t, cfg.Validate(), "case %d", i)
		_, err := NewDetector(cfg)
		assert.Error(t, err, "case %d", i)
	}
}
