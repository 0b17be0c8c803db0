package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/MeKo-Tech/gcpmark/internal/geoinfo"
	"github.com/MeKo-Tech/gcpmark/internal/labeler"
	"github.com/MeKo-Tech/gcpmark/internal/session"
	"github.com/MeKo-Tech/gcpmark/internal/sidecar"
)

// sessionInterface is what the server needs from the session manager.
type sessionInterface interface {
	Dir() string
	ListImages() []string
	Refresh() (int, error)
	GetImage(ctx context.Context, index int) (*session.ImageData, error)
	SaveCoordinates(index int, header []string, coordinates []sidecar.Entry) error
}

// batchRunner labels a directory; *labeler.Labeler satisfies it.
type batchRunner interface {
	RunWith(ctx context.Context, dir string, progress labeler.ProgressCallback) (*labeler.Summary, error)
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	session    sessionInterface
	runner     batchRunner
	corsOrigin string
	staticDir  string
	maxBodyKB  int64

	labeling atomic.Bool

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// Config holds server configuration.
type Config struct {
	Host            string
	Port            int
	CORSOrigin      string
	TimeoutSec      int
	ShutdownTimeout int
	StaticDir       string
	MaxBodyKB       int64
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Time    string `json:"time"`
	Images  int    `json:"images"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse acknowledges a state change.
type MessageResponse struct {
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
	Count   *int   `json:"count,omitempty"`
}

// Dimensions is the size of the original image before JPEG re-encoding.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ImageResponse is returned by /api/image/{index}. image_data holds the
// base64 encoded JPEG.
type ImageResponse struct {
	Filename   string          `json:"filename"`
	ImageData  []byte          `json:"image_data"`
	GeoInfo    geoinfo.GeoInfo `json:"geo_info"`
	Header     []string        `json:"header_lines"`
	Coords     []sidecar.Entry `json:"coordinates"`
	Dimensions Dimensions      `json:"original_dimensions"`
}

// SaveRequest is the body of /api/save_coordinates/{index}.
type SaveRequest struct {
	Header []string        `json:"header_lines"`
	Coords []sidecar.Entry `json:"coordinates"`
}

// RectangleRequest is the body of /api/process_rectangle: two opposite
// corners as [x, y] pairs.
type RectangleRequest struct {
	Rectangle [][]float64 `json:"rectangle"`
}

// NewServer creates a server over an open session. runner may be nil, in
// which case /ws/label reports that labeling is unavailable.
func NewServer(config Config, sess sessionInterface, runner batchRunner) (*Server, error) {
	if sess == nil {
		return nil, errors.New("server needs a session")
	}
	maxBody := config.MaxBodyKB
	if maxBody <= 0 {
		maxBody = 1024
	}
	catalogImages.Set(float64(len(sess.ListImages())))
	return &Server{
		session:    sess,
		runner:     runner,
		corsOrigin: config.CORSOrigin,
		staticDir:  config.StaticDir,
		maxBodyKB:  maxBody,
		shutdown:   make(chan struct{}),
	}, nil
}

// ShutdownRequested is closed once a client calls POST /shutdown.
func (s *Server) ShutdownRequested() <-chan struct{} {
	return s.shutdown
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.api(s.healthHandler))
	mux.Handle("/metrics", metricsHandler())
	mux.HandleFunc("/api/images", s.api(s.imagesHandler))
	mux.HandleFunc("/api/image/{index}", s.api(s.imageHandler))
	mux.HandleFunc("/api/save_coordinates/{index}", s.api(s.saveCoordinatesHandler))
	mux.HandleFunc("/api/process_rectangle", s.api(s.processRectangleHandler))
	mux.HandleFunc("/api/refresh", s.api(s.refreshHandler))
	mux.HandleFunc("/shutdown", s.api(s.shutdownHandler))
	mux.HandleFunc("/ws/label", s.labelWebSocketHandler)
	if s.staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}
}
