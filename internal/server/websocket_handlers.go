package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/gcpmark/internal/labeler"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The editor is served from the same host or a local dev server.
		return true
	},
}

const (
	labelStart  = "start"
	labelCancel = "cancel"
)

// LabelRequest is a client message on /ws/label.
type LabelRequest struct {
	Type string `json:"type"` // "start" or "cancel"
}

// LabelEvent is a server message on /ws/label.
type LabelEvent struct {
	Type      string               `json:"type"` // "started", "progress", "completed", "error"
	Done      int                  `json:"done,omitempty"`
	Total     int                  `json:"total,omitempty"`
	Result    *labeler.ImageResult `json:"result,omitempty"`
	Summary   *labeler.Summary     `json:"summary,omitempty"`
	Error     string               `json:"error,omitempty"`
	ErrorType string               `json:"error_type,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsProgress forwards labeler progress to one connection. A connection
// supports one concurrent writer, and OnImage may be called from several
// workers.
type wsProgress struct {
	mu   sync.Mutex
	conn WebSocketConnWriter
}

func (p *wsProgress) send(ev LabelEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal WebSocket event", "error", err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (p *wsProgress) sendError(errorType, message string) {
	p.send(LabelEvent{Type: "error", Error: message, ErrorType: errorType})
}

func (p *wsProgress) OnStart(total int) {
	p.send(LabelEvent{Type: "started", Total: total})
}

func (p *wsProgress) OnImage(done, total int, r labeler.ImageResult) {
	imagesLabeledTotal.WithLabelValues(string(r.Outcome)).Inc()
	p.send(LabelEvent{Type: "progress", Done: done, Total: total, Result: &r})
}

func (p *wsProgress) OnComplete(s labeler.Summary) {
	p.send(LabelEvent{Type: "completed", Done: s.Total, Total: s.Total, Summary: &s})
}

func (p *wsProgress) OnError(err error) {
	p.sendError("labeling_error", err.Error())
}

// labelWebSocketHandler runs batch labeling over the session directory and
// streams progress to the client.
func (s *Server) labelWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleLabelConnection(conn)
}

// handleLabelConnection reads client requests until the connection closes.
// A run still in progress is cancelled when the client goes away.
func (s *Server) handleLabelConnection(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	out := &wsProgress{conn: conn}
	var (
		wg        sync.WaitGroup
		runCancel context.CancelFunc
	)
	defer func() {
		if runCancel != nil {
			runCancel()
		}
		wg.Wait()
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()
		if messageType != websocket.TextMessage {
			continue
		}

		var req LabelRequest
		if err := json.Unmarshal(data, &req); err != nil {
			out.sendError("invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
			continue
		}

		switch req.Type {
		case labelStart:
			cancel, ok := s.startLabelRun(out, &wg)
			if ok {
				runCancel = cancel
			}
		case labelCancel:
			if runCancel != nil {
				runCancel()
			}
		default:
			out.sendError("invalid_request", "Unsupported request type: "+req.Type)
		}
	}
}

// startLabelRun launches one labeling run unless another is in progress on
// this server.
func (s *Server) startLabelRun(out *wsProgress, wg *sync.WaitGroup) (context.CancelFunc, bool) {
	if s.runner == nil {
		out.sendError("unavailable", "batch labeling is not configured")
		return nil, false
	}
	if !s.labeling.CompareAndSwap(false, true) {
		out.sendError("busy", "a labeling run is already in progress")
		return nil, false
	}

	ctx, cancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer s.labeling.Store(false)
		defer cancel()

		start := time.Now()
		summary, err := s.runner.RunWith(ctx, s.session.Dir(), out)
		labelRunDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			slog.Warn("Labeling run ended with error", "dir", s.session.Dir(), "error", err)
			return
		}
		slog.Info("Labeling run finished", "run_id", summary.RunID, "labeled", summary.Labeled)
	}()
	return cancel, true
}
