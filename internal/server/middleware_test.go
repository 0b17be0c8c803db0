package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestServer_CORS(t *testing.T) {
	tests := []struct {
		name       string
		corsOrigin string
		method     string
		wantNext   bool
		wantStatus int
	}{
		{"GET request", "*", http.MethodGet, true, http.StatusOK},
		{"POST with specific origin", "http://localhost:5000", http.MethodPost, true, http.StatusOK},
		{"OPTIONS preflight", "*", http.MethodOptions, false, http.StatusNoContent},
		{"empty origin", "", http.MethodGet, true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := &Server{corsOrigin: tt.corsOrigin}

			nextCalled := false
			handler := server.api(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				_, _ = w.Write([]byte("{}"))
			})

			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(tt.method, "/api/images", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.corsOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "GET, POST, OPTIONS", w.Header().Get("Access-Control-Allow-Methods"))
			assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
			assert.Equal(t, tt.wantNext, nextCalled)
		})
	}
}

func TestServer_KeepsErrorStatus(t *testing.T) {
	server := &Server{corsOrigin: "*"}
	handler := server.api(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusRecorder(t *testing.T) {
	rec := &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	assert.Equal(t, http.StatusOK, rec.code())

	_, _ = rec.Write([]byte("x"))
	rec.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusOK, rec.code())

	rec = &statusRecorder{ResponseWriter: httptest.NewRecorder()}
	rec.WriteHeader(http.StatusBadRequest)
	assert.Equal(t, http.StatusBadRequest, rec.code())
}

func TestInstrument_RecordsRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/image/{index}", instrument(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	counter := httpRequestsTotal.WithLabelValues(http.MethodGet, "/api/image/{index}", "404")
	before := promtest.ToFloat64(counter)

	for _, path := range []string{"/api/image/1", "/api/image/2"} {
		mux.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.InDelta(t, before+2, promtest.ToFloat64(counter), 0)
}

func BenchmarkServer_API(b *testing.B) {
	server := &Server{corsOrigin: "*"}
	handler := server.api(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	b.ResetTimer()
	for range b.N {
		handler(httptest.NewRecorder(), req)
	}
}
