// Package session serves images and their sidecars to the manual
// correction UI. It keeps an explicit catalog of image names that only
// changes on Refresh, so indexes stay stable while a user works.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/MeKo-Tech/gcpmark/internal/geoinfo"
	"github.com/MeKo-Tech/gcpmark/internal/imageio"
	"github.com/MeKo-Tech/gcpmark/internal/sidecar"
)

// ResourceNotFoundError reports an index outside the catalog.
type ResourceNotFoundError struct {
	Kind  string
	Index int
	Path  string
}

func (e *ResourceNotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s %d not found in %s", e.Kind, e.Index, e.Path)
	}
	return fmt.Sprintf("%s %d not found", e.Kind, e.Index)
}

// IsNotFound reports whether err wraps a ResourceNotFoundError.
func IsNotFound(err error) bool {
	var nf *ResourceNotFoundError
	return errors.As(err, &nf)
}

// Config configures a session. Locks is shared with any other writer of
// the same directory; a nil Locks gets a private one.
type Config struct {
	Dir         string
	Geo         geoinfo.Provider
	Rounding    sidecar.Rounding
	JPEGQuality int
	Locks       *sidecar.Locker
}

// ImageData is everything the editor needs for one image.
type ImageData struct {
	Filename    string          `json:"filename"`
	JPEG        []byte          `json:"image_data"`
	GeoInfo     geoinfo.GeoInfo `json:"geo_info"`
	Header      []string        `json:"header_lines"`
	Coordinates []sidecar.Entry `json:"coordinates"`
	Width       int             `json:"width"`
	Height      int             `json:"height"`
}

// Manager owns the catalog of one image directory.
type Manager struct {
	config Config

	mu      sync.RWMutex
	catalog []string
}

// New builds the catalog for config.Dir.
func New(config Config) (*Manager, error) {
	if config.Dir == "" {
		return nil, errors.New("session needs an image directory")
	}
	if config.Geo == nil {
		config.Geo = geoinfo.NewExifProvider()
	}
	if config.Rounding == "" {
		config.Rounding = sidecar.Truncate
	}
	if !config.Rounding.Valid() {
		return nil, fmt.Errorf("invalid rounding %q", config.Rounding)
	}
	if config.JPEGQuality == 0 {
		config.JPEGQuality = imageio.DefaultJPEGQuality
	}
	if config.Locks == nil {
		config.Locks = sidecar.NewLocker()
	}

	m := &Manager{config: config}
	if _, err := m.Refresh(); err != nil {
		return nil, err
	}
	return m, nil
}

// Locks returns the per-path sidecar locks, for writers that share the
// directory with this session.
func (m *Manager) Locks() *sidecar.Locker {
	return m.config.Locks
}

// Dir returns the image directory.
func (m *Manager) Dir() string {
	return m.config.Dir
}

// Refresh rescans the directory and returns the new image count.
func (m *Manager) Refresh() (int, error) {
	names, err := imageio.ListNames(m.config.Dir)
	if err != nil {
		return 0, fmt.Errorf("list images: %w", err)
	}
	if len(names) == 0 {
		slog.Warn("No images found", "dir", m.config.Dir)
	}

	m.mu.Lock()
	m.catalog = names
	m.mu.Unlock()
	return len(names), nil
}

// ListImages returns the catalog in index order.
func (m *Manager) ListImages() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string{}, m.catalog...)
}

func (m *Manager) lookup(index int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if index < 0 || index >= len(m.catalog) {
		return "", &ResourceNotFoundError{Kind: "image", Index: index, Path: m.config.Dir}
	}
	return m.catalog[index], nil
}

// GetImage loads image index, re-encoded as JPEG, together with its sidecar.
// A missing, empty or short sidecar is initialized from the image metadata
// first; a valid one is never rewritten.
func (m *Manager) GetImage(ctx context.Context, index int) (*ImageData, error) {
	name, err := m.lookup(index)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(m.config.Dir, name)

	img, meta, err := imageio.Load(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	jpeg, err := imageio.EncodeJPEG(img, m.config.JPEGQuality)
	if err != nil {
		return nil, err
	}

	geo := m.config.Geo.Extract(path)
	rec, err := m.loadOrInit(sidecar.PathFor(path), name, geo)
	if err != nil {
		return nil, err
	}

	return &ImageData{
		Filename:    name,
		JPEG:        jpeg,
		GeoInfo:     geo,
		Header:      rec.Header,
		Coordinates: rec.Coordinates,
		Width:       meta.Width,
		Height:      meta.Height,
	}, nil
}

func (m *Manager) loadOrInit(path, name string, geo geoinfo.GeoInfo) (sidecar.Record, error) {
	unlock := m.config.Locks.Lock(path)
	defer unlock()

	loaded, err := sidecar.ReadFile(path)
	if err != nil {
		return sidecar.Record{}, err
	}
	if loaded.Valid() {
		return loaded.Record, nil
	}

	if err := sidecar.Initialize(path, sidecar.HeaderFor(name, geo)); err != nil {
		return sidecar.Record{}, err
	}
	slog.Debug("Initialized sidecar", "file", path)

	loaded, err = sidecar.ReadFile(path)
	if err != nil {
		return sidecar.Record{}, err
	}
	return loaded.Record, nil
}

// SaveCoordinates replaces the sidecar of image index. The header is padded
// or truncated to exactly eight lines.
func (m *Manager) SaveCoordinates(index int, header []string, coordinates []sidecar.Entry) error {
	name, err := m.lookup(index)
	if err != nil {
		return err
	}
	path := sidecar.PathFor(filepath.Join(m.config.Dir, name))

	unlock := m.config.Locks.Lock(path)
	defer unlock()

	rec := sidecar.Record{Header: sidecar.NormalizeHeader(header), Coordinates: coordinates}
	if err := sidecar.WriteFile(path, rec, m.config.Rounding); err != nil {
		return err
	}
	slog.Info("Saved coordinates", "file", path, "points", len(sidecar.Points(coordinates)))
	return nil
}
