package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockConn records messages written by the handler.
type mockConn struct {
	mu       sync.Mutex
	messages [][]byte
	err      error
}

func (m *mockConn) WriteMessage(_ int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, data)
	return nil
}

func (m *mockConn) last(t *testing.T) WebSocketPredictResponse {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages)
	var resp WebSocketPredictResponse
	require.NoError(t, json.Unmarshal(m.messages[len(m.messages)-1], &resp))
	return resp
}

func TestWebSocketPredict(t *testing.T) {
	srv := newTestServer(t, dogDetector())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/predict"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	payload, err := json.Marshal(map[string]any{
		"image":      base64.StdEncoding.EncodeToString(scenePNG(t)),
		"confidence": 0.5,
		"language":   "ru",
		"request_id": "req-1",
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WebSocketPredictResponse
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "predict_response", msg.Type)
	assert.Equal(t, "completed", msg.Status)
	assert.Equal(t, "req-1", msg.RequestID)
	require.NotNil(t, msg.Result)
	require.Len(t, msg.Result.Detections, 1)
	assert.Equal(t, "собака", msg.Result.Detections[0].Label)
	assert.NotEmpty(t, msg.Result.AnnotatedImage)
}

func TestWebSocketMessageErrors(t *testing.T) {
	srv := newTestServer(t, dogDetector())
	png := base64.StdEncoding.EncodeToString(scenePNG(t))

	tests := []struct {
		name      string
		message   string
		errorType string
		contains  string
	}{
		{name: "malformed json", message: `{"image":`, errorType: "invalid_request", contains: "Failed to parse request"},
		{name: "missing image", message: `{"request_id":"a"}`, errorType: "invalid_request", contains: "no image data"},
		{name: "bad base64", message: `{"image":"***"}`, errorType: "invalid_request", contains: "base64"},
		{name: "not an image", message: `{"image":"` + base64.StdEncoding.EncodeToString([]byte("hello")) + `"}`, errorType: "invalid_request", contains: "Invalid image format"},
		{name: "bad language", message: `{"image":"` + png + `","language":"fr"}`, errorType: "invalid_request", contains: "unsupported language"},
		{name: "bad confidence", message: `{"image":"` + png + `","confidence":2}`, errorType: "invalid_request", contains: "between 0 and 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &mockConn{}
			srv.handleWebSocketMessage(context.Background(), conn, []byte(tt.message))

			resp := conn.last(t)
			assert.Equal(t, "error", resp.Type)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.errorType, resp.ErrorType)
			assert.Contains(t, resp.Error, tt.contains)
			assert.Nil(t, resp.Result)
		})
	}
}

func TestWebSocketDataURLWithoutAnnotation(t *testing.T) {
	srv := newTestServer(t, dogDetector())
	conn := &mockConn{}
	msg := `{"image":"data:image/png;base64,` + base64.StdEncoding.EncodeToString(scenePNG(t)) +
		`","annotated":false,"request_id":"r2"}`

	srv.handleWebSocketMessage(context.Background(), conn, []byte(msg))

	resp := conn.last(t)
	assert.Equal(t, "predict_response", resp.Type)
	assert.Equal(t, "r2", resp.RequestID)
	require.NotNil(t, resp.Result)
	assert.Equal(t, "dog", resp.Result.Detections[0].Label)
	assert.Empty(t, resp.Result.AnnotatedImage)
}

func TestWebSocketWithoutModel(t *testing.T) {
	srv := newTestServer(t, nil)
	conn := &mockConn{}
	srv.handleWebSocketMessage(context.Background(), conn, []byte(`{"image":"AAAA"}`))

	resp := conn.last(t)
	assert.Equal(t, "unavailable", resp.ErrorType)
	assert.NotEmpty(t, resp.RequestID)
}

func TestWebSocketDetectorFailure(t *testing.T) {
	det := dogDetector()
	det.Err = errors.New("session exploded")
	srv := newTestServer(t, det)
	conn := &mockConn{}

	msg := `{"image":"` + base64.StdEncoding.EncodeToString(scenePNG(t)) + `"}`
	srv.handleWebSocketMessage(context.Background(), conn, []byte(msg))

	resp := conn.last(t)
	assert.Equal(t, "processing_error", resp.ErrorType)
	assert.Contains(t, resp.Error, "session exploded")
}

func TestSendWebSocketResponseWriteError(t *testing.T) {
	srv := newTestServer(t, dogDetector())
	conn := &mockConn{err: errors.New("closed")}
	srv.sendWebSocketError(conn, "r", "invalid_request", "nope")
	assert.Empty(t, conn.messages)
}

func TestDecodeBase64Image(t *testing.T) {
	raw := []byte{1, 2, 3}
	enc := base64.StdEncoding.EncodeToString(raw)

	got, err := decodeBase64Image("  " + enc + "\n")
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = decodeBase64Image("data:image/png;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = decodeBase64Image("data:image/png;base64")
	assert.Error(t, err)
}

// dialPredict opens a websocket to /ws/predict on a live test server.
func dialPredict(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/predict"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn
}

func TestWebSocketReadLimit(t *testing.T) {
	assert.Equal(t, int64(1398104+64*1024), wsReadLimit(1))

	srv := newTestServer(t, dogDetector())
	conn := dialPredict(t, srv)

	oversized := `{"image":"` + strings.Repeat("A", 2*1024*1024) + `"}`
	_ = conn.WriteMessage(websocket.TextMessage, []byte(oversized))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "server should drop the connection, not leave it idle")
	}
}

func TestWebSocketSlowInferenceKeepsConnection(t *testing.T) {
	det := dogDetector()
	det.Delay = 300 * time.Millisecond
	srv := newTestServer(t, det)
	srv.wsReadTimeout = 150 * time.Millisecond
	conn := dialPredict(t, srv)

	png := base64.StdEncoding.EncodeToString(scenePNG(t))
	for _, id := range []string{"first", "second"} {
		msg := `{"image":"` + png + `","annotated":false,"request_id":"` + id + `"}`
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))

		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "request %s", id)

		var resp WebSocketPredictResponse
		require.NoError(t, json.Unmarshal(data, &resp))
		assert.Equal(t, "completed", resp.Status)
		assert.Equal(t, id, resp.RequestID)
	}
}
