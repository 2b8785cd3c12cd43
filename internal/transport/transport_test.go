package transport

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

	"github.com/Omdevsinh-Zala/chat-session/internal/wire"
)

var upgrader = websocket.Upgrader{}

// echoServer upgrades connections and exposes the frames it reads.
type echoServer struct {
	srv    *httptest.Server
	mu     sync.Mutex
	conns  []*websocket.Conn
	frames chan []byte
}

func newEchoServer(t *testing.T) *echoServer {
	t.Helper()
	es := &echoServer{frames: make(chan []byte, 64)}
	es.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		es.mu.Lock()
		es.conns = append(es.conns, ws)
		es.mu.Unlock()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			es.frames <- data
		}
	}))
	t.Cleanup(es.srv.Close)
	return es
}

func (es *echoServer) url() string {
	return "ws" + strings.TrimPrefix(es.srv.URL, "http")
}

func (es *echoServer) send(t *testing.T, event string, payload interface{}) {
	t.Helper()
	data, err := wire.Encode(event, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	es.mu.Lock()
	defer es.mu.Unlock()
	if len(es.conns) == 0 {
		t.Fatal("no server-side connection")
	}
	if err := es.conns[len(es.conns)-1].WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func (es *echoServer) nextFrame(t *testing.T) *wire.Envelope {
	t.Helper()
	select {
	case data := <-es.frames:
		env, err := wire.Decode(data)
		if err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestConnectIdempotent(t *testing.T) {
	es := newEchoServer(t)
	conn := New(Options{URL: es.url()})
	defer conn.Disconnect()

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect: %v", err)
	}

	es.mu.Lock()
	got := len(es.conns)
	es.mu.Unlock()
	if got != 1 {
		t.Errorf("server saw %d connections, want 1", got)
	}
	if !conn.Connected() {
		t.Error("Connected() = false after Connect")
	}
}

func TestEmitPreservesOrder(t *testing.T) {
	es := newEchoServer(t)
	conn := New(Options{URL: es.url()})
	defer conn.Disconnect()

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ids := []string{"m1", "m2", "m3", "m4"}
	for _, id := range ids {
		if err := conn.Emit(wire.EventReadMessage, wire.ReadMessage{MessageID: id, ViewerID: "me"}); err != nil {
			t.Fatalf("Emit(%s): %v", id, err)
		}
	}

	for _, want := range ids {
		env := es.nextFrame(t)
		var rm wire.ReadMessage
		if err := env.Bind(&rm); err != nil {
			t.Fatalf("bind: %v", err)
		}
		if rm.MessageID != want {
			t.Errorf("frame order: got %q, want %q", rm.MessageID, want)
		}
	}
}

func TestEmitWithoutConnection(t *testing.T) {
	conn := New(Options{URL: "ws://127.0.0.1:1"})
	if err := conn.Emit(wire.EventTyping, wire.Typing{}); err != ErrNotConnected {
		t.Errorf("Emit on closed transport = %v, want ErrNotConnected", err)
	}
}

func TestHandlerReplaceAndCancel(t *testing.T) {
	es := newEchoServer(t)
	conn := New(Options{URL: es.url()})
	defer conn.Disconnect()

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	got := make(chan string, 4)
	stale := conn.On(wire.EventPresence, func(json.RawMessage) { got <- "stale" })
	conn.On(wire.EventPresence, func(json.RawMessage) { got <- "current" })

	// Cancelling the replaced handle must not remove the current handler.
	stale.Cancel()

	es.send(t, wire.EventPresence, wire.Presence{UserID: "u1", Online: true})
	select {
	case who := <-got:
		if who != "current" {
			t.Errorf("dispatched to %q, want current", who)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestUnauthorizedHandshake(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	unauthorized := false
	conn := New(Options{
		URL:            "ws" + strings.TrimPrefix(srv.URL, "http"),
		OnUnauthorized: func() { unauthorized = true },
	})

	err := conn.Connect(context.Background())
	if err == nil {
		t.Fatal("Connect succeeded against 401 server")
	}
	var connErr *ConnectionError
	if !asConnectionError(err, &connErr) || !connErr.Unauthorized {
		t.Errorf("Connect error = %v, want unauthorized ConnectionError", err)
	}
	if !unauthorized {
		t.Error("OnUnauthorized callback not invoked")
	}
}

func asConnectionError(err error, target **ConnectionError) bool {
	ce, ok := err.(*ConnectionError)
	if ok {
		*target = ce
	}
	return ok
}

func TestDisconnectedSignal(t *testing.T) {
	es := newEchoServer(t)
	lost := make(chan error, 1)
	conn := New(Options{
		URL:            es.url(),
		OnDisconnected: func(err error) { lost <- err },
	})

	if err := conn.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	es.mu.Lock()
	es.conns[0].Close()
	es.mu.Unlock()

	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnected never fired")
	}
	if conn.Connected() {
		t.Error("Connected() = true after server-side close")
	}
}
