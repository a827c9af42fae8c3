package okx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type testFeedServer struct {
	*httptest.Server
	upgrader websocket.Upgrader
	conns    chan *websocket.Conn
}

func newTestFeedServer(t *testing.T) *testFeedServer {
	s := &testFeedServer{conns: make(chan *websocket.Conn, 4)}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		s.conns <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *testFeedServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *testFeedServer) waitConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a connection")
		return nil
	}
}

func readRequest(t *testing.T, conn *websocket.Conn) WsRequest {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var req WsRequest
	if err := conn.ReadJSON(&req); err != nil {
		t.Fatalf("failed to read request: %v", err)
	}
	return req
}

func waitEvent(t *testing.T, c *WSClient, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-c.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind %d", kind)
		}
	}
}

func testOptions() Options {
	return Options{
		ConnectTimeout: time.Second,
		MaxAttempts:    5,
		BaseDelay:      10 * time.Millisecond,
	}
}

func TestConnectResubscribesDesiredSet(t *testing.T) {
	srv := newTestFeedServer(t)
	c := NewWSClient(srv.wsURL(), testOptions(), zap.NewNop())

	if sent := c.Subscribe("ETHUSDT"); sent {
		t.Error("Subscribe while disconnected reported a sent request")
	}
	c.Subscribe("BTCUSDT")

	if err := c.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Disconnect()

	conn := srv.waitConn(t)
	req := readRequest(t, conn)
	if req.Op != OpSubscribe {
		t.Fatalf("expected subscribe op, got %q", req.Op)
	}
	if len(req.Args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(req.Args))
	}
	if req.Args[0].InstID != "BTC-USDT" || req.Args[1].InstID != "ETH-USDT" {
		t.Errorf("unexpected instIds: %+v", req.Args)
	}
	for _, arg := range req.Args {
		if arg.Channel != ChannelTickers {
			t.Errorf("expected tickers channel, got %q", arg.Channel)
		}
	}

	waitEvent(t, c, EventConnected)
	if got := c.State(); got != StateConnected {
		t.Errorf("state = %s, want connected", got)
	}
}

func TestSubscribeWhileConnectedSendsImmediately(t *testing.T) {
	srv := newTestFeedServer(t)
	c := NewWSClient(srv.wsURL(), testOptions(), zap.NewNop())
	c.Subscribe("BTCUSDT")

	if err := c.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Disconnect()
	conn := srv.waitConn(t)
	readRequest(t, conn) // initial subscribe
	waitEvent(t, c, EventConnected)

	if sent := c.Subscribe("ETHUSDT"); !sent {
		t.Fatal("Subscribe while connected did not send a request")
	}
	req := readRequest(t, conn)
	if req.Op != OpSubscribe || len(req.Args) != 1 || req.Args[0].InstID != "ETH-USDT" {
		t.Errorf("unexpected request: %+v", req)
	}

	if sent := c.Unsubscribe("BTCUSDT"); !sent {
		t.Fatal("Unsubscribe while connected did not send a request")
	}
	req = readRequest(t, conn)
	if req.Op != OpUnsubscribe || len(req.Args) != 1 || req.Args[0].InstID != "BTC-USDT" {
		t.Errorf("unexpected request: %+v", req)
	}

	subs := c.Subscriptions()
	if len(subs) != 1 || subs[0] != "ETHUSDT" {
		t.Errorf("subscriptions = %v, want [ETHUSDT]", subs)
	}
}

func TestReconnectResubscribesAfterServerClose(t *testing.T) {
	srv := newTestFeedServer(t)
	c := NewWSClient(srv.wsURL(), testOptions(), zap.NewNop())
	c.Subscribe("BTCUSDT")

	if err := c.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	defer c.Disconnect()
	conn := srv.waitConn(t)
	readRequest(t, conn)
	waitEvent(t, c, EventConnected)

	conn.Close() // drop the connection from the server side

	waitEvent(t, c, EventDisconnected)

	// A fresh connection must receive the full desired set again.
	conn2 := srv.waitConn(t)
	req := readRequest(t, conn2)
	if req.Op != OpSubscribe || len(req.Args) != 1 || req.Args[0].InstID != "BTC-USDT" {
		t.Errorf("unexpected resubscribe request: %+v", req)
	}
	waitEvent(t, c, EventConnected)

	if got := c.Attempts(); got != 0 {
		t.Errorf("attempt counter = %d after successful reconnect, want 0", got)
	}
}

func TestDisconnectSuppressesReconnect(t *testing.T) {
	srv := newTestFeedServer(t)
	c := NewWSClient(srv.wsURL(), testOptions(), zap.NewNop())
	c.Subscribe("BTCUSDT")

	if err := c.Connect(); err != nil {
		t.Fatalf("connect failed: %v", err)
	}
	conn := srv.waitConn(t)
	readRequest(t, conn)
	waitEvent(t, c, EventConnected)

	c.Disconnect()
	waitEvent(t, c, EventDisconnected)

	// No reconnect may follow a caller-initiated close.
	select {
	case <-srv.conns:
		t.Fatal("client reconnected after Disconnect")
	case <-time.After(100 * time.Millisecond):
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state = %s, want disconnected", got)
	}
	if got := c.Attempts(); got != 0 {
		t.Errorf("attempt counter = %d, want 0", got)
	}
}

func TestBackoffDelaysAreLinear(t *testing.T) {
	c := NewWSClient("ws://example.invalid", Options{BaseDelay: 5 * time.Second}, zap.NewNop())
	want := []time.Duration{
		5 * time.Second, 10 * time.Second, 15 * time.Second, 20 * time.Second, 25 * time.Second,
	}
	for i, w := range want {
		if got := c.backoffDelay(i + 1); got != w {
			t.Errorf("backoffDelay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestReconnectExhaustion(t *testing.T) {
	// Nothing listens on port 1; every dial fails immediately.
	opts := Options{
		ConnectTimeout: 200 * time.Millisecond,
		MaxAttempts:    3,
		BaseDelay:      2 * time.Millisecond,
	}
	c := NewWSClient("ws://127.0.0.1:1", opts, zap.NewNop())

	if err := c.Connect(); err == nil {
		t.Fatal("expected connect to fail")
	}

	ev := waitEvent(t, c, EventExhausted)
	if ev.Attempt != 3 {
		t.Errorf("exhausted after %d attempts, want 3", ev.Attempt)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("state = %s, want disconnected", got)
	}

	// Terminal: no further reconnect is scheduled.
	time.Sleep(50 * time.Millisecond)
	c.mu.Lock()
	timer := c.reconnectTimer
	c.mu.Unlock()
	if timer != nil {
		t.Error("reconnect timer still armed after exhaustion")
	}
}
