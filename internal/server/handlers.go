package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/MeKo-Tech/gcpmark/internal/geometry"
	"github.com/MeKo-Tech/gcpmark/internal/session"
	"github.com/MeKo-Tech/gcpmark/internal/sidecar"
	"github.com/MeKo-Tech/gcpmark/internal/version"
)

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Time:    time.Now().UTC().Format(time.RFC3339),
	}
	if s.session != nil {
		response.Images = len(s.session.ListImages())
	}
	s.writeJSON(w, http.StatusOK, response)
}

// imagesHandler returns the image catalog in index order.
func (s *Server) imagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.session.ListImages())
}

// imageHandler returns one image with its metadata and annotations.
func (s *Server) imageHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	index, ok := s.parseIndex(w, r)
	if !ok {
		return
	}

	data, err := s.session.GetImage(r.Context(), index)
	if err != nil {
		s.writeSessionError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, ImageResponse{
		Filename:   data.Filename,
		ImageData:  data.JPEG,
		GeoInfo:    data.GeoInfo,
		Header:     data.Header,
		Coords:     data.Coordinates,
		Dimensions: Dimensions{Width: data.Width, Height: data.Height},
	})
}

// saveCoordinatesHandler replaces the sidecar of one image.
func (s *Server) saveCoordinatesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	index, ok := s.parseIndex(w, r)
	if !ok {
		return
	}

	var req SaveRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	if err := s.session.SaveCoordinates(index, req.Header, req.Coords); err != nil {
		sidecarSavesTotal.WithLabelValues("error").Inc()
		s.writeSessionError(w, err)
		return
	}
	sidecarSavesTotal.WithLabelValues("success").Inc()
	s.writeJSON(w, http.StatusOK, MessageResponse{Status: "success", Message: "coordinates saved"})
}

// processRectangleHandler turns two opposite corners of a user-drawn
// rectangle into its four corners, tagged 1 to 4 in top-left, top-right,
// bottom-right, bottom-left order.
func (s *Server) processRectangleHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req RectangleRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	corners, err := rectangleCorners(req.Rectangle)
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, corners)
}

func rectangleCorners(rect [][]float64) ([]sidecar.Entry, error) {
	if len(rect) != 2 || len(rect[0]) < 2 || len(rect[1]) < 2 {
		return nil, errors.New("invalid rectangle data")
	}
	x1, y1, x2, y2 := rect[0][0], rect[0][1], rect[1][0], rect[1][1]

	q, err := geometry.OrderCorners([]geometry.Point{
		geometry.Pt(x1, y1), geometry.Pt(x2, y1), geometry.Pt(x2, y2), geometry.Pt(x1, y2),
	})
	if err != nil {
		return nil, err
	}
	out := make([]sidecar.Entry, 0, 4)
	for i, p := range q {
		out = append(out, sidecar.PointEntry(geometry.Tagged(p.X, p.Y, i+1)))
	}
	return out, nil
}

// refreshHandler rescans the image directory.
func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	n, err := s.session.Refresh()
	if err != nil {
		s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}
	catalogImages.Set(float64(n))
	slog.Info("Catalog refreshed", "images", n)
	s.writeJSON(w, http.StatusOK, MessageResponse{Status: "success", Message: "catalog refreshed", Count: &n})
}

// shutdownHandler asks the owning process to stop the server.
func (s *Server) shutdownHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.shutdownOnce.Do(func() { close(s.shutdown) })
	s.writeJSON(w, http.StatusOK, MessageResponse{Status: "success", Message: "server is shutting down"})
}

func (s *Server) parseIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.PathValue("index")
	index, err := strconv.Atoi(raw)
	if err != nil {
		s.writeErrorResponse(w, fmt.Sprintf("invalid image index %q", raw), http.StatusBadRequest)
		return 0, false
	}
	return index, true
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyKB*1024)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeErrorResponse(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		s.writeErrorResponse(w, fmt.Sprintf("invalid JSON body: %v", err), http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	if session.IsNotFound(err) {
		s.writeErrorResponse(w, err.Error(), http.StatusNotFound)
		return
	}
	slog.Error("Request failed", "error", err)
	s.writeErrorResponse(w, err.Error(), http.StatusInternalServerError)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
