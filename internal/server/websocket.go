package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/formocr/internal/pipeline"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketRequest asks for the extraction of one image. Image is base64 in JSON.
type WebSocketRequest struct {
	Type      string `json:"type"` // "image"
	Image     []byte `json:"image,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// WebSocketResponse reports progress and the final result of a request.
type WebSocketResponse struct {
	Type      string           `json:"type"`
	Status    string           `json:"status"` // "processing", "completed", "error"
	Result    *pipeline.Result `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorType string           `json:"error_type,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

// wsWriter is the write side of a WebSocket connection.
type wsWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsHandler upgrades the connection and serves extraction requests until it closes.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()
	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(s.wsIdle))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.wsIdle))
	})

	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
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
		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, conn, data)
			// extraction may outlast the idle window; the client gets a fresh one per reply
			_ = conn.SetReadDeadline(time.Now().Add(s.wsIdle))
		}
	}
}

// handleWebSocketMessage processes one request and writes its responses to conn.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn wsWriter, data []byte) {
	var req WebSocketRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	id := req.RequestID
	if id == "" {
		id = uuid.NewString()
	}

	switch {
	case req.Type != "" && req.Type != "image":
		s.sendWebSocketError(conn, id, "invalid_request", "Unsupported request type: "+req.Type)
		return
	case len(req.Image) == 0:
		s.sendWebSocketError(conn, id, "invalid_request", "No image data provided")
		return
	case s.pipeline == nil:
		s.sendWebSocketError(conn, id, "unavailable", "extraction pipeline not initialized")
		return
	}

	s.sendWebSocketResponse(conn, WebSocketResponse{Type: "extract_response", Status: "processing", RequestID: id})

	start := time.Now()
	res := pipeline.RunWithTimeout(ctx, s.timeout, func(ctx context.Context) *pipeline.Result {
		return s.pipeline.ExtractBytes(ctx, req.Image)
	})
	recordExtraction("websocket", res, time.Since(start))

	if !res.OK() {
		s.sendWebSocketResponse(conn, WebSocketResponse{
			Type:      "extract_response",
			Status:    "error",
			Result:    res,
			Error:     res.Error,
			ErrorType: "processing_error",
			RequestID: id,
		})
		return
	}
	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:      "extract_response",
		Status:    "completed",
		Result:    res,
		RequestID: id,
	})
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn wsWriter, response WebSocketResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

func (s *Server) sendWebSocketError(conn wsWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketResponse{
		Type:      "error",
		Status:    "error",
		Error:     message,
		ErrorType: errorType,
		RequestID: requestID,
	})
}
