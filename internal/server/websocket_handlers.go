package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/yolodet/internal/utils"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second

	// wsFrameOverhead covers the JSON envelope around the base64 image.
	wsFrameOverhead = 64 * 1024
)

// WebSocket message types and statuses.
const (
	wsTypeResponse    = "predict_response"
	wsTypeError       = "error"
	wsStatusCompleted = "completed"
	wsStatusError     = "error"
)

// upgrader accepts any origin; CORS policy is enforced by the HTTP routes.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketPredictRequest is a detection request sent as a text message.
type WebSocketPredictRequest struct {
	Image      string   `json:"image"` // base64, optionally a data URL
	Confidence *float64 `json:"confidence,omitempty"`
	Language   string   `json:"language,omitempty"`
	RequestID  string   `json:"request_id,omitempty"`
	Annotated  *bool    `json:"annotated,omitempty"`
}

// WebSocketPredictResponse carries a detection result or an error.
type WebSocketPredictResponse struct {
	Type      string           `json:"type"`
	Status    string           `json:"status"`
	Result    *PredictResponse `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	ErrorType string           `json:"error_type,omitempty"`
	RequestID string           `json:"request_id,omitempty"`
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// lockedWriter serialises writes from the handler and the ping loop.
type lockedWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (l *lockedWriter) WriteMessage(messageType int, data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return l.conn.WriteMessage(messageType, data)
}

func (l *lockedWriter) ping() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout))
}

// predictWebSocketHandler streams detection over a websocket connection.
func (s *Server) predictWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	s.handleWebSocketConnection(r.Context(), conn)
}

// handleWebSocketConnection processes messages until the client disconnects.
func (s *Server) handleWebSocketConnection(ctx context.Context, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	conn.SetReadLimit(wsReadLimit(s.maxUploadMB))
	_ = conn.SetReadDeadline(time.Now().Add(s.wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.wsReadTimeout))
	})

	writer := &lockedWriter{conn: conn}
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := writer.ping(); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				slog.Warn("WebSocket message too large", "limit", wsReadLimit(s.maxUploadMB))
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleWebSocketMessage(ctx, writer, data)
		}
		// Nothing is read while a request is processed, so the idle window restarts here.
		_ = conn.SetReadDeadline(time.Now().Add(s.wsReadTimeout))
	}
}

// wsReadLimit is the largest frame accepted: a base64 image of maxUploadMB plus its envelope.
func wsReadLimit(maxUploadMB int64) int64 {
	return int64(base64.StdEncoding.EncodedLen(int(maxUploadMB*1024*1024))) + wsFrameOverhead
}

// handleWebSocketMessage runs one detection request and writes the reply.
func (s *Server) handleWebSocketMessage(ctx context.Context, conn WebSocketConnWriter, data []byte) {
	var req WebSocketPredictRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.sendWebSocketError(conn, "", "invalid_request", fmt.Sprintf("Failed to parse request: %v", err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = strconv.FormatInt(time.Now().UnixNano(), 10)
	}

	p, err := s.app.RequirePipeline()
	if err != nil {
		predictRequestsTotal.WithLabelValues(sourceWebSocket, "unavailable").Inc()
		s.sendWebSocketError(conn, req.RequestID, "unavailable", "Model not loaded")
		return
	}

	imgData, err := decodeBase64Image(req.Image)
	if err != nil {
		predictRequestsTotal.WithLabelValues(sourceWebSocket, "invalid").Inc()
		s.sendWebSocketError(conn, req.RequestID, "invalid_request", err.Error())
		return
	}
	if int64(len(imgData)) > s.maxUploadMB*1024*1024 {
		predictRequestsTotal.WithLabelValues(sourceWebSocket, "invalid").Inc()
		s.sendWebSocketError(conn, req.RequestID, "invalid_request", "Image too large")
		return
	}

	confidence := ""
	if req.Confidence != nil {
		confidence = strconv.FormatFloat(*req.Confidence, 'f', -1, 64)
	}
	opts, err := s.parseOptions(confidence, req.Language, formatJSON)
	if err != nil {
		predictRequestsTotal.WithLabelValues(sourceWebSocket, "invalid").Inc()
		s.sendWebSocketError(conn, req.RequestID, "invalid_request", err.Error())
		return
	}

	img, _, err := utils.DecodeImage(bytes.NewReader(imgData))
	if err != nil {
		predictRequestsTotal.WithLabelValues(sourceWebSocket, "invalid").Inc()
		s.sendWebSocketError(conn, req.RequestID, "invalid_request", "Invalid image format")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
	defer cancel()

	res, err := p.Process(ctx, img, opts.Confidence, opts.Language)
	if err != nil {
		predictRequestsTotal.WithLabelValues(sourceWebSocket, "error").Inc()
		s.sendWebSocketError(conn, req.RequestID, "processing_error", fmt.Sprintf("Prediction failed: %v", err))
		return
	}
	predictRequestsTotal.WithLabelValues(sourceWebSocket, "success").Inc()
	observeResult(sourceWebSocket, res)

	withImage := req.Annotated == nil || *req.Annotated
	body, err := s.buildPredictResponse(res, withImage)
	if err != nil {
		s.sendWebSocketError(conn, req.RequestID, "processing_error", err.Error())
		return
	}
	s.sendWebSocketResponse(conn, WebSocketPredictResponse{
		Type:      wsTypeResponse,
		Status:    wsStatusCompleted,
		Result:    &body,
		RequestID: req.RequestID,
	})
}

// decodeBase64Image accepts raw base64 or a data URL.
func decodeBase64Image(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("no image data provided")
	}
	if strings.HasPrefix(s, "data:") {
		idx := strings.Index(s, ",")
		if idx < 0 {
			return nil, fmt.Errorf("malformed data URL")
		}
		s = s[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("image is not valid base64: %w", err)
	}
	return data, nil
}

// sendWebSocketResponse sends a response message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketPredictResponse) {
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

// sendWebSocketError sends an error message over WebSocket.
func (s *Server) sendWebSocketError(conn WebSocketConnWriter, requestID, errorType, message string) {
	s.sendWebSocketResponse(conn, WebSocketPredictResponse{
		Type:      wsTypeError,
		Status:    wsStatusError,
		Error:     message,
		ErrorType: errorType,
		RequestID: requestID,
	})
}
