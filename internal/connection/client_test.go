package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// mockWSServer creates a test WebSocket server.
func mockWSServer(t *testing.T, handler func(*websocket.Conn)) *httptest.Server {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))

	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Just keep the connection open
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				return
			}
		}
	})
	defer server.Close()

	cfg := ClientConfig{
		URL:              wsURL(server),
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       100,
	}

	client := NewClient(cfg, nil)
	ctx := context.Background()

	err := client.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	err = client.Close(websocket.CloseNormalClosure)
	if err != nil {
		t.Errorf("Close failed: %v", err)
	}

	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_SecretQuery(t *testing.T) {
	var gotSecret string
	var mu sync.Mutex

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		gotSecret = r.URL.Query().Get("secret")
		mu.Unlock()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer server.Close()

	cfg := ClientConfig{
		URL:              wsURL(server),
		Secret:           "s3cr3t-token",
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       100,
	}

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close(websocket.CloseNormalClosure)

	mu.Lock()
	defer mu.Unlock()
	if gotSecret != "s3cr3t-token" {
		t.Errorf("secret = %q, want %q", gotSecret, "s3cr3t-token")
	}
}

func TestClient_Send(t *testing.T) {
	var received []byte
	var mu sync.Mutex

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
		}
	})
	defer server.Close()

	cfg := ClientConfig{
		URL:              wsURL(server),
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       100,
	}

	client := NewClient(cfg, nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close(websocket.CloseNormalClosure)

	testMsg := []byte(`{"type":"ping","request_id":"ping_1"}`)
	if err := client.Send(testMsg); err != nil {
		t.Errorf("Send failed: %v", err)
	}

	// Wait for message to be received
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(testMsg) {
		t.Errorf("received %q, want %q", received, testMsg)
	}
}

func TestClient_Messages(t *testing.T) {
	testMessages := []string{
		`{"type": "welcome", "data": {"message": "hi"}}`,
		`{"type": "system_update", "data": {"cpu_usage": 10}}`,
		`{"type": "alert", "data": {"severity": "warning"}}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		// Keep connection open
		time.Sleep(time.Second)
	})
	defer server.Close()

	cfg := ClientConfig{
		URL:              wsURL(server),
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       100,
	}

	client := NewClient(cfg, nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close(websocket.CloseNormalClosure)

	// Collect received messages
	var received []string
	timeout := time.After(500 * time.Millisecond)

	for i := 0; i < len(testMessages); i++ {
		select {
		case msg := <-client.Messages():
			received = append(received, string(msg.Data))
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
		case <-timeout:
			t.Fatalf("timeout waiting for messages, received %d of %d", len(received), len(testMessages))
		}
	}

	for i, want := range testMessages {
		if received[i] != want {
			t.Errorf("message %d: got %q, want %q", i, received[i], want)
		}
	}
}

func TestClient_MessagesClosedOnPeerClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second),
		)
	})
	defer server.Close()

	cfg := ClientConfig{
		URL:              wsURL(server),
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       100,
	}

	client := NewClient(cfg, nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close(websocket.CloseNormalClosure)

	select {
	case err := <-client.Errors():
		ce, ok := err.(*websocket.CloseError)
		if !ok {
			t.Fatalf("expected *websocket.CloseError, got %T: %v", err, err)
		}
		if ce.Code != websocket.CloseNormalClosure {
			t.Errorf("close code = %d, want %d", ce.Code, websocket.CloseNormalClosure)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close error")
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	cfg := ClientConfig{
		URL:              "ws://localhost:12345",
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       100,
	}

	client := NewClient(cfg, nil)

	err := client.Send([]byte("test"))
	if err != ErrNotConnected {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	cfg := ClientConfig{
		URL:              wsURL(server),
		HandshakeTimeout: 5 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       100,
	}

	client := NewClient(cfg, nil)
	ctx := context.Background()

	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// First close should succeed
	if err := client.Close(websocket.CloseNormalClosure); err != nil {
		t.Errorf("first Close failed: %v", err)
	}

	// Second close should be no-op
	if err := client.Close(websocket.CloseNormalClosure); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestDialURL(t *testing.T) {
	got, err := dialURL("ws://localhost:8060/ws", "abc 123")
	if err != nil {
		t.Fatalf("dialURL failed: %v", err)
	}
	if got != "ws://localhost:8060/ws?secret=abc+123" {
		t.Errorf("dialURL = %q", got)
	}

	got, err = dialURL("wss://host:8060/ws", "")
	if err != nil {
		t.Fatalf("dialURL failed: %v", err)
	}
	if got != "wss://host:8060/ws" {
		t.Errorf("dialURL without secret = %q", got)
	}

	if _, err := dialURL("://bad", "x"); err == nil {
		t.Error("expected error for invalid endpoint")
	}
}

func TestTypes_Envelope(t *testing.T) {
	env := Envelope{
		Type:      KindGetSystemInfo,
		RequestID: "get_system_info_7",
	}

	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), `"data"`) {
		t.Errorf("empty data should be omitted: %s", data)
	}

	var parsed Envelope
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if parsed.Type != KindGetSystemInfo {
		t.Errorf("Type = %s, want %s", parsed.Type, KindGetSystemInfo)
	}
	if parsed.RequestID != "get_system_info_7" {
		t.Errorf("RequestID = %s, want get_system_info_7", parsed.RequestID)
	}
}

func TestDefaultConfigs(t *testing.T) {
	clientCfg := DefaultClientConfig()
	if clientCfg.HandshakeTimeout != 10*time.Second {
		t.Errorf("HandshakeTimeout = %v, want 10s", clientCfg.HandshakeTimeout)
	}
	if clientCfg.BufferSize != 1000 {
		t.Errorf("BufferSize = %d, want 1000", clientCfg.BufferSize)
	}

	mgrCfg := DefaultManagerConfig()
	if mgrCfg.ProbeInterval != 30*time.Second {
		t.Errorf("ProbeInterval = %v, want 30s", mgrCfg.ProbeInterval)
	}
	if mgrCfg.AckTimeout != 10*time.Second {
		t.Errorf("AckTimeout = %v, want 10s", mgrCfg.AckTimeout)
	}
	if mgrCfg.ReconnectBaseDelay != 5*time.Second {
		t.Errorf("ReconnectBaseDelay = %v, want 5s", mgrCfg.ReconnectBaseDelay)
	}
	if mgrCfg.ReconnectGrowth != 1.5 {
		t.Errorf("ReconnectGrowth = %v, want 1.5", mgrCfg.ReconnectGrowth)
	}
	if mgrCfg.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("ReconnectMaxDelay = %v, want 30s", mgrCfg.ReconnectMaxDelay)
	}
	if mgrCfg.MaxReconnectAttempts != 10 {
		t.Errorf("MaxReconnectAttempts = %d, want 10", mgrCfg.MaxReconnectAttempts)
	}
}
