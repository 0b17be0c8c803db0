package labeler

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/gcpmark/internal/boxdetect"
	"github.com/MeKo-Tech/gcpmark/internal/geoinfo"
	"github.com/MeKo-Tech/gcpmark/internal/geometry"
	"github.com/MeKo-Tech/gcpmark/internal/lattice"
	"github.com/MeKo-Tech/gcpmark/internal/lens"
	"github.com/MeKo-Tech/gcpmark/internal/session"
	"github.com/MeKo-Tech/gcpmark/internal/sidecar"
	"github.com/MeKo-Tech/gcpmark/internal/testutil"
)

func pinholeCamera(t *testing.T) lens.Camera {
	t.Helper()
	cam, err := lens.FromValues([]float64{1000, 0, 200, 0, 1000, 160, 0, 0, 1}, make([]float64, lens.NumDistortionCoeffs))
	require.NoError(t, err)
	return cam
}

func fixedGeo() geoinfo.Provider {
	return geoinfo.ProviderFunc(func(string) geoinfo.GeoInfo {
		return geoinfo.GeoInfo{
			Latitude:    geoinfo.Float(31.5),
			Longitude:   geoinfo.Float(121),
			GimbalPitch: geoinfo.Degrees(-90),
		}
	})
}

func newLabeler(t *testing.T, config Config, boxes boxdetect.Detector) *Labeler {
	t.Helper()
	lat, err := lattice.NewDetector(lattice.DefaultConfig())
	require.NoError(t, err)
	l, err := New(config, pinholeCamera(t), lat, boxes, fixedGeo())
	require.NoError(t, err)
	return l
}

func boardBox() geometry.Box {
	return testutil.DefaultBoard().Box(25)
}

type recordingProgress struct {
	mu       sync.Mutex
	started  int
	images   []ImageResult
	complete *Summary
	errs     []error
}

func (r *recordingProgress) OnStart(total int) { r.started = total }
func (r *recordingProgress) OnImage(_, _ int, res ImageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, res)
}
func (r *recordingProgress) OnComplete(s Summary) { r.complete = &s }
func (r *recordingProgress) OnError(err error)    { r.errs = append(r.errs, err) }

func TestJudge(t *testing.T) {
	assert.Equal(t, OutcomeSkipped, Judge(0, 5))
	assert.Equal(t, OutcomeSkipped, Judge(4, 5))
	assert.Equal(t, OutcomeLabeled, Judge(5, 5))
	assert.Equal(t, OutcomeLabeled, Judge(9, 5))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := map[string]func(*Config){
		"min points":       func(c *Config) { c.MinPoints = 0 },
		"workers":          func(c *Config) { c.Workers = 0 },
		"empty list name":  func(c *Config) { c.UnprocessedFile = "" },
		"nested list name": func(c *Config) { c.UnprocessedFile = "out/list.txt" },
		"rounding":         func(c *Config) { c.Rounding = "floor" },
	}
	for name, mutate := range tests {
		c := DefaultConfig()
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(DefaultConfig(), pinholeCamera(t), nil, boxdetect.Static(), fixedGeo())
	assert.Error(t, err)

	lat, err := lattice.NewDetector(lattice.DefaultConfig())
	require.NoError(t, err)
	_, err = New(DefaultConfig(), lens.Camera{}, lat, boxdetect.Static(), fixedGeo())
	assert.Error(t, err)
}

func TestRun_LabelsBoard(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png")
	progress := &recordingProgress{}
	l := newLabeler(t, DefaultConfig(), boxdetect.Static(boardBox())).WithProgress(progress)

	summary, err := l.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Labeled)
	assert.Empty(t, summary.Unprocessed)
	assert.NotEmpty(t, summary.RunID)

	res := summary.Images[0]
	assert.Equal(t, OutcomeLabeled, res.Outcome)
	assert.True(t, res.SidecarWritten)
	require.Len(t, res.Points, 9)
	want := testutil.DefaultBoard().InteriorCorners()
	for i, p := range res.Points {
		assert.Equal(t, 1, p.TargetID)
		assert.InDelta(t, want[i].X, p.X, 1.0)
		assert.InDelta(t, want[i].Y, p.Y, 1.0)
	}

	loaded, err := sidecar.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.True(t, loaded.Valid())
	assert.Equal(t, "Filename: a.png", loaded.Header[0])
	assert.Equal(t, "Latitude: 31.5", loaded.Header[1])
	assert.Equal(t, "Altitude: N/A meters", loaded.Header[3])
	assert.Len(t, sidecar.Points(loaded.Coordinates), 9)

	assert.Empty(t, testutil.ReadFile(t, summary.UnprocessedPath))

	assert.Equal(t, 1, progress.started)
	assert.Len(t, progress.images, 1)
	require.NotNil(t, progress.complete)
	assert.Equal(t, 1, progress.complete.Labeled)
}

func TestRun_ResolvesDuplicateBoards(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png")
	l := newLabeler(t, DefaultConfig(), boxdetect.Static(boardBox(), testutil.DefaultBoard().Box(30)))

	summary, err := l.Run(context.Background(), dir)
	require.NoError(t, err)

	res := summary.Images[0]
	require.NotNil(t, res.Resolution)
	assert.True(t, res.Resolution.Applied)
	assert.Len(t, res.Points, 9)
	assert.Equal(t, OutcomeLabeled, res.Outcome)
}

func TestRun_SkipsImageWithoutBoard(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png", "b.png")
	l := newLabeler(t, DefaultConfig(), boxdetect.Static())

	summary, err := l.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, []string{"a.png", "b.png"}, summary.Unprocessed)
	assert.Equal(t, "a.png\nb.png\n", testutil.ReadFile(t, filepath.Join(dir, "unprocessed_images.txt")))

	content := testutil.ReadFile(t, filepath.Join(dir, "a.txt"))
	assert.True(t, strings.HasSuffix(content, "\nx none y none\n"))
}

func TestRun_BoxWithoutLatticeContributesNothing(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png")
	empty := geometry.Box{X1: 300, Y1: 10, X2: 390, Y2: 60}
	l := newLabeler(t, DefaultConfig(), boxdetect.Static(empty, boardBox()))

	summary, err := l.Run(context.Background(), dir)
	require.NoError(t, err)

	res := summary.Images[0]
	assert.Equal(t, OutcomeLabeled, res.Outcome)
	assert.Equal(t, 2, res.Boxes)
	require.Len(t, res.Points, 9)
	assert.Equal(t, 2, res.Points[0].TargetID)
}

func TestRun_NeverOverwritesValidSidecar(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png")
	path := testutil.WriteSidecar(t, dir, "a.png", testutil.SampleHeader("a.png"), "x 1 y 2")
	before := testutil.ReadFile(t, path)

	l := newLabeler(t, DefaultConfig(), boxdetect.Static(boardBox()))
	summary, err := l.Run(context.Background(), dir)
	require.NoError(t, err)

	res := summary.Images[0]
	assert.True(t, res.Existing)
	assert.False(t, res.SidecarWritten)
	assert.Equal(t, OutcomeLabeled, res.Outcome)
	assert.Equal(t, before, testutil.ReadFile(t, path))
}

func TestRun_ReinitializesShortSidecar(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png")
	path := testutil.WriteSidecar(t, dir, "a.png", []string{"Filename: a.png"})

	l := newLabeler(t, DefaultConfig(), boxdetect.Static(boardBox()))
	summary, err := l.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.True(t, summary.Images[0].SidecarWritten)
	loaded, err := sidecar.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, loaded.Valid())
}

func TestRun_FailedImageDoesNotStopBatch(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png")
	testutil.WriteFile(t, dir, "b.jpg", "not an image")

	l := newLabeler(t, DefaultConfig(), boxdetect.Static(boardBox()))
	summary, err := l.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Labeled)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"b.jpg"}, summary.Unprocessed)
	assert.NotEmpty(t, summary.Images[1].Error)
}

func TestRun_DetectorErrorFailsImage(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png")
	failing := boxdetect.DetectorFunc(func(image.Image) ([]geometry.Box, error) {
		return nil, errors.New("model exploded")
	})

	summary, err := newLabeler(t, DefaultConfig(), failing).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFailed, summary.Images[0].Outcome)
	assert.Contains(t, summary.Images[0].Error, "model exploded")
	assert.False(t, testutil.FileExists(filepath.Join(dir, "a.txt")))
}

func TestRun_PanicFailsImageOnly(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png", "b.png")
	var calls atomic.Int32
	flaky := boxdetect.DetectorFunc(func(image.Image) ([]geometry.Box, error) {
		if calls.Add(1) == 1 {
			panic("box coordinates are NaN")
		}
		return []geometry.Box{boardBox()}, nil
	})

	summary, err := newLabeler(t, DefaultConfig(), flaky).Run(context.Background(), dir)
	require.NoError(t, err)

	require.Len(t, summary.Images, 2)
	assert.Equal(t, OutcomeFailed, summary.Images[0].Outcome)
	assert.Contains(t, summary.Images[0].Error, "box coordinates are NaN")
	assert.Equal(t, OutcomeLabeled, summary.Images[1].Outcome)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"a.png"}, summary.Unprocessed)
	assert.False(t, testutil.FileExists(filepath.Join(dir, "a.txt")))
}

func TestRun_ManualSaveDuringDetectionWins(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png")
	sess, err := session.New(session.Config{Dir: dir, Geo: fixedGeo()})
	require.NoError(t, err)

	detecting := make(chan struct{})
	release := make(chan struct{})
	var releaseOnce sync.Once
	releaseDetector := func() { releaseOnce.Do(func() { close(release) }) }
	t.Cleanup(releaseDetector)

	slow := boxdetect.DetectorFunc(func(image.Image) ([]geometry.Box, error) {
		close(detecting)
		<-release
		return []geometry.Box{boardBox()}, nil
	})
	l := newLabeler(t, DefaultConfig(), slow).WithLocker(sess.Locks())

	done := make(chan *Summary, 1)
	go func() {
		summary, err := l.Run(context.Background(), dir)
		assert.NoError(t, err)
		done <- summary
	}()

	<-detecting
	data, err := sess.GetImage(context.Background(), 0)
	require.NoError(t, err)
	manual := []sidecar.Entry{sidecar.PointEntry(geometry.Untagged(10, 20))}
	require.NoError(t, sess.SaveCoordinates(0, data.Header, manual))
	releaseDetector()

	summary := <-done
	require.NotNil(t, summary)
	res := summary.Images[0]
	assert.Equal(t, OutcomeLabeled, res.Outcome)
	assert.True(t, res.Existing)
	assert.False(t, res.SidecarWritten)

	loaded, err := sidecar.ReadFile(filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	pts := sidecar.Points(loaded.Coordinates)
	require.Len(t, pts, 1)
	assert.Equal(t, 10.0, pts[0].X)
	assert.Equal(t, 20.0, pts[0].Y)
}

func TestPersist_KeepsSidecarSavedMeanwhile(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png")
	path := testutil.WriteSidecar(t, dir, "a.png", testutil.SampleHeader("a.png"), "x 10 y 20")
	before := testutil.ReadFile(t, path)

	l := newLabeler(t, DefaultConfig(), boxdetect.Static())
	written, err := l.persist(path, sidecar.Record{
		Header:      sidecar.HeaderFor("a.png", geoinfo.GeoInfo{}),
		Coordinates: sidecar.Entries([]geometry.TargetPoint{geometry.Tagged(1, 2, 1)}),
	})

	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, before, testutil.ReadFile(t, path))
}

func TestRun_ParallelWorkers(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png", "b.png", "c.png", "d.png")
	config := DefaultConfig()
	config.Workers = 3

	summary, err := newLabeler(t, config, boxdetect.Static(boardBox())).Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Labeled)
	for i, name := range []string{"a.png", "b.png", "c.png", "d.png"} {
		assert.Equal(t, name, summary.Images[i].Filename)
		assert.True(t, testutil.FileExists(filepath.Join(dir, strings.TrimSuffix(name, ".png")+".txt")))
	}
}

func TestRun_Cancelled(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	progress := &recordingProgress{}
	l := newLabeler(t, DefaultConfig(), boxdetect.Static(boardBox())).WithProgress(progress)
	summary, err := l.Run(ctx, dir)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, summary.Total)
	assert.Nil(t, progress.complete)
	assert.Len(t, progress.errs, 1)
}

func TestRun_MissingDirectory(t *testing.T) {
	_, err := newLabeler(t, DefaultConfig(), boxdetect.Static()).Run(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestRun_WritesOverlay(t *testing.T) {
	dir := testutil.ImageDir(t, "a.png")
	config := DefaultConfig()
	config.OverlayDir = filepath.Join(t.TempDir(), "overlays")

	summary, err := newLabeler(t, config, boxdetect.Static(boardBox())).Run(context.Background(), dir)
	require.NoError(t, err)

	overlay := summary.Images[0].Overlay
	assert.Equal(t, filepath.Join(config.OverlayDir, "a_overlay.jpg"), overlay)
	info, err := os.Stat(overlay)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestWriteUnprocessed_Overwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unprocessed_images.txt")

	require.NoError(t, WriteUnprocessed(path, []string{"a.jpg", "b.jpg"}))
	require.NoError(t, WriteUnprocessed(path, []string{"c.jpg"}))
	assert.Equal(t, "c.jpg\n", testutil.ReadFile(t, path))

	require.NoError(t, WriteUnprocessed(path, nil))
	assert.Empty(t, testutil.ReadFile(t, path))
}
