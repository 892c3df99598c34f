package gateway

import (
	"context"
	"errors"
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
	t.Helper()
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

func testClientConfig(server *httptest.Server) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = wsURL(server)
	cfg.BufferSize = 100
	return cfg
}

func TestClient_Connect(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)

	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("expected IsConnected to return true")
	}

	if err := client.Close(websocket.CloseNormalClosure); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("expected IsConnected to return false after Close")
	}
}

func TestClient_Send(t *testing.T) {
	var received []byte
	var mu sync.Mutex
	got := make(chan struct{}, 1)

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			received = msg
			mu.Unlock()
			select {
			case got <- struct{}{}:
			default:
			}
		}
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close(websocket.CloseNormalClosure)

	testMsg := []byte(`{"op":1,"d":null}`)
	if err := client.Send(testMsg); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for server to receive message")
	}

	mu.Lock()
	defer mu.Unlock()
	if string(received) != string(testMsg) {
		t.Errorf("received %q, want %q", received, testMsg)
	}
}

func TestClient_MessagesInOrderThenError(t *testing.T) {
	testMessages := []string{
		`{"op":0,"s":1}`,
		`{"op":0,"s":2}`,
		`{"op":0,"s":3}`,
	}

	server := mockWSServer(t, func(conn *websocket.Conn) {
		for _, msg := range testMessages {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(CloseSessionTimedOut, "timed out"),
			time.Now().Add(time.Second),
		)
		time.Sleep(100 * time.Millisecond)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close(websocket.CloseNormalClosure)

	var received []string
	var readErr error
	timeout := time.After(2 * time.Second)

	for readErr == nil {
		select {
		case msg, ok := <-client.Messages():
			if !ok {
				t.Fatal("channel closed before error was delivered")
			}
			if msg.Err != nil {
				readErr = msg.Err
				continue
			}
			if msg.ReceivedAt.IsZero() {
				t.Error("ReceivedAt should not be zero")
			}
			received = append(received, string(msg.Data))
		case <-timeout:
			t.Fatalf("timeout, received %d of %d messages", len(received), len(testMessages))
		}
	}

	if len(received) != len(testMessages) {
		t.Fatalf("received %d messages before the error, want %d", len(received), len(testMessages))
	}
	for i, want := range testMessages {
		if received[i] != want {
			t.Errorf("message %d: got %q, want %q", i, received[i], want)
		}
	}

	ce := closeErrorFrom(readErr)
	if ce.Code != CloseSessionTimedOut {
		t.Errorf("close code = %d, want %d", ce.Code, CloseSessionTimedOut)
	}
	if ce.Fatal {
		t.Error("4009 should be recoverable")
	}
}

func TestClient_ZeroTimeoutsUseDefaults(t *testing.T) {
	got := make(chan []byte, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		got <- msg
	})
	defer server.Close()

	client := NewClient(ClientConfig{URL: wsURL(server)}, nil)
	if client.cfg.WriteTimeout != DefaultClientConfig().WriteTimeout {
		t.Errorf("WriteTimeout = %v, want default", client.cfg.WriteTimeout)
	}
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close(websocket.CloseNormalClosure)

	if err := client.Send([]byte(`{"op":1,"d":null}`)); err != nil {
		t.Fatalf("Send with zero WriteTimeout failed: %v", err)
	}
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for server to receive message")
	}
}

func TestClient_SendNotConnected(t *testing.T) {
	client := NewClient(ClientConfig{URL: "ws://localhost:12345", BufferSize: 1}, nil)

	err := client.Send([]byte("test"))
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestClient_DoubleClose(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		time.Sleep(time.Second)
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	if err := client.Close(websocket.CloseNormalClosure); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := client.Close(websocket.CloseNormalClosure); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if err := client.Connect(context.Background()); !errors.Is(err, ErrAlreadyClosed) {
		t.Errorf("Connect after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClient_CloseCodeReachesServer(t *testing.T) {
	codes := make(chan int, 1)
	server := mockWSServer(t, func(conn *websocket.Conn) {
		_, _, err := conn.ReadMessage()
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			codes <- ce.Code
			return
		}
		codes <- -1
	})
	defer server.Close()

	client := NewClient(testClientConfig(server), nil)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	client.Close(closeResumable)

	select {
	case code := <-codes:
		if code != closeResumable {
			t.Errorf("server saw close code %d, want %d", code, closeResumable)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close frame")
	}
}

func TestCloseErrorFrom_NonCloseError(t *testing.T) {
	ce := closeErrorFrom(errors.New("connection reset by peer"))
	if ce.Code != websocket.CloseAbnormalClosure {
		t.Errorf("Code = %d, want %d", ce.Code, websocket.CloseAbnormalClosure)
	}
	if ce.Fatal {
		t.Error("transport errors should be recoverable")
	}
}
