package labeler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// ProgressCallback receives batch progress. OnImage may be called from
// several goroutines when the labeler runs with more than one worker.
type ProgressCallback interface {
	// OnStart is called once with the number of images found.
	OnStart(total int)

	// OnImage is called after each image reaches a terminal state.
	OnImage(done, total int, result ImageResult)

	// OnComplete is called with the final summary.
	OnComplete(summary Summary)

	// OnError is called when the run itself fails.
	OnError(err error)
}

// NoOpProgressCallback ignores all progress.
type NoOpProgressCallback struct{}

func (NoOpProgressCallback) OnStart(int)                   {}
func (NoOpProgressCallback) OnImage(int, int, ImageResult) {}
func (NoOpProgressCallback) OnComplete(Summary)            {}
func (NoOpProgressCallback) OnError(error)                 {}

// ConsoleProgressCallback draws a progress bar with running outcome counts.
type ConsoleProgressCallback struct {
	writer         io.Writer
	prefix         string
	width          int
	updateInterval time.Duration
	lastUpdate     time.Time
	startTime      time.Time
	counts         map[Outcome]int
	mutex          sync.Mutex
}

// NewConsoleProgressCallback creates a console reporter writing to w, or
// stderr when w is nil.
func NewConsoleProgressCallback(w io.Writer, prefix string) *ConsoleProgressCallback {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleProgressCallback{
		writer:         w,
		prefix:         prefix,
		width:          40,
		updateInterval: 100 * time.Millisecond,
		counts:         make(map[Outcome]int),
	}
}

// WithWidth sets the bar width.
func (c *ConsoleProgressCallback) WithWidth(width int) *ConsoleProgressCallback {
	c.width = width
	return c
}

// WithUpdateInterval sets the minimum time between redraws.
func (c *ConsoleProgressCallback) WithUpdateInterval(d time.Duration) *ConsoleProgressCallback {
	c.updateInterval = d
	return c
}

func (c *ConsoleProgressCallback) OnStart(total int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.startTime = time.Now()
	c.lastUpdate = time.Time{}
	c.counts = make(map[Outcome]int)
	_, _ = fmt.Fprintf(c.writer, "%s0/%d images\n", c.prefix, total)
}

func (c *ConsoleProgressCallback) OnImage(done, total int, result ImageResult) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.counts[result.Outcome]++
	now := time.Now()
	if now.Sub(c.lastUpdate) < c.updateInterval && done < total {
		return
	}
	c.lastUpdate = now

	if total == 0 {
		return
	}
	filled := c.width * done / total
	bar := strings.Repeat("█", filled) + strings.Repeat("░", c.width-filled)
	_, _ = fmt.Fprintf(c.writer, "\r%s[%s] %d/%d labeled=%d skipped=%d failed=%d",
		c.prefix, bar, done, total,
		c.counts[OutcomeLabeled], c.counts[OutcomeSkipped], c.counts[OutcomeFailed])
}

func (c *ConsoleProgressCallback) OnComplete(s Summary) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, _ = fmt.Fprintf(c.writer, "\n%sCompleted %d images in %v: %d labeled, %d skipped, %d failed\n",
		c.prefix, s.Total, time.Since(c.startTime).Round(time.Millisecond), s.Labeled, s.Skipped, s.Failed)
}

func (c *ConsoleProgressCallback) OnError(err error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, _ = fmt.Fprintf(c.writer, "\n%sError: %v\n", c.prefix, err)
}

// LogProgressCallback reports progress through slog.
type LogProgressCallback struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogProgressCallback creates a log reporter; a nil logger uses the
// default one.
func NewLogProgressCallback(logger *slog.Logger, level slog.Level) *LogProgressCallback {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogProgressCallback{logger: logger, level: level}
}

func (l *LogProgressCallback) OnStart(total int) {
	l.logger.Log(context.Background(), l.level, "Labeling started", "total", total)
}

func (l *LogProgressCallback) OnImage(done, total int, r ImageResult) {
	l.logger.Log(context.Background(), l.level, "Image processed",
		"file", r.Filename,
		"outcome", r.Outcome,
		"points", len(r.Points),
		"done", done,
		"total", total)
}

func (l *LogProgressCallback) OnComplete(s Summary) {
	l.logger.Log(context.Background(), l.level, "Labeling completed",
		"run_id", s.RunID,
		"labeled", s.Labeled,
		"skipped", s.Skipped,
		"failed", s.Failed,
		"duration", s.Duration)
}

func (l *LogProgressCallback) OnError(err error) {
	l.logger.Error("Labeling failed", "error", err)
}

// MultiProgressCallback fans out to several callbacks.
type MultiProgressCallback struct {
	callbacks []ProgressCallback
}

// NewMultiProgressCallback combines callbacks.
func NewMultiProgressCallback(callbacks ...ProgressCallback) *MultiProgressCallback {
	return &MultiProgressCallback{callbacks: callbacks}
}

// Add appends a callback.
func (m *MultiProgressCallback) Add(cb ProgressCallback) {
	m.callbacks = append(m.callbacks, cb)
}

func (m *MultiProgressCallback) OnStart(total int) {
	for _, cb := range m.callbacks {
		cb.OnStart(total)
	}
}

func (m *MultiProgressCallback) OnImage(done, total int, r ImageResult) {
	for _, cb := range m.callbacks {
		cb.OnImage(done, total, r)
	}
}

func (m *MultiProgressCallback) OnComplete(s Summary) {
	for _, cb := range m.callbacks {
		cb.OnComplete(s)
	}
}

func (m *MultiProgressCallback) OnError(err error) {
	for _, cb := range m.callbacks {
		cb.OnError(err)
	}
}
