package labeler

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNoOpProgressCallback(t *testing.T) {
	cb := NoOpProgressCallback{}
	cb.OnStart(3)
	cb.OnImage(1, 3, ImageResult{})
	cb.OnComplete(Summary{})
	cb.OnError(assert.AnError)
}

func TestConsoleProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	cb := NewConsoleProgressCallback(&buf, "Label: ").WithWidth(10).WithUpdateInterval(time.Hour)

	cb.OnStart(2)
	assert.Contains(t, buf.String(), "Label: 0/2 images")

	buf.Reset()
	cb.OnImage(1, 2, ImageResult{Outcome: OutcomeLabeled})
	assert.Contains(t, buf.String(), "1/2 labeled=1 skipped=0 failed=0")

	// Throttled until the last image.
	buf.Reset()
	cb.OnImage(1, 3, ImageResult{Outcome: OutcomeSkipped})
	assert.Empty(t, buf.String())

	cb.OnImage(2, 2, ImageResult{Outcome: OutcomeFailed})
	assert.Contains(t, buf.String(), "[██████████] 2/2 labeled=1 skipped=1 failed=1")

	buf.Reset()
	cb.OnComplete(Summary{Total: 2, Labeled: 1, Failed: 1})
	assert.Contains(t, buf.String(), "Label: Completed 2 images")
	assert.Contains(t, buf.String(), "1 labeled, 0 skipped, 1 failed")

	buf.Reset()
	cb.OnError(assert.AnError)
	assert.Contains(t, buf.String(), "Label: Error:")
}

func TestLogProgressCallback(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	cb := NewLogProgressCallback(logger, slog.LevelInfo)

	cb.OnStart(1)
	cb.OnImage(1, 1, ImageResult{Filename: "a.jpg", Outcome: OutcomeSkipped})
	cb.OnComplete(Summary{RunID: "run-1", Skipped: 1})
	cb.OnError(assert.AnError)

	out := buf.String()
	assert.Contains(t, out, `"msg":"Labeling started"`)
	assert.Contains(t, out, `"file":"a.jpg"`)
	assert.Contains(t, out, `"outcome":"skipped"`)
	assert.Contains(t, out, `"run_id":"run-1"`)
	assert.Contains(t, out, `"level":"ERROR"`)
}

func TestMultiProgressCallback(t *testing.T) {
	a, b := &recordingProgress{}, &recordingProgress{}
	m := NewMultiProgressCallback(a)
	m.Add(b)

	m.OnStart(2)
	m.OnImage(1, 2, ImageResult{Filename: "x"})
	m.OnComplete(Summary{Total: 2})
	m.OnError(assert.AnError)

	for _, r := range []*recordingProgress{a, b} {
		assert.Equal(t, 2, r.started)
		assert.Len(t, r.images, 1)
		assert.NotNil(t, r.complete)
		assert.Len(t, r.errs, 1)
	}
}
