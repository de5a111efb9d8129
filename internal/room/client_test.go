package room

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

type testServer struct {
	*httptest.Server
	conns    chan *websocket.Conn
	received chan []byte
	paths    chan string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		conns:    make(chan *websocket.Conn, 4),
		received: make(chan []byte, 16),
		paths:    make(chan string, 4),
	}
	upgrader := websocket.Upgrader{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.paths <- r.URL.RequestURI()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ts.received <- msg
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func (ts *testServer) conn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-ts.conns:
		return c
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for server conn")
	}
	return nil
}

func waitEvent(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for event")
	}
	return Event{}
}

func TestClientOpenSendReceive(t *testing.T) {
	ts := newTestServer(t)
	client := NewClient(ts.wsURL(), WithToken("tok en"))

	var mu sync.Mutex
	var order []string
	events := make(chan Event, 16)
	client.On(EventOpen, func(ev Event) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		events <- ev
	})
	client.On(EventOpen, func(Event) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
	})
	client.On(string(TypeLocation), func(ev Event) { events <- ev })
	client.On(EventMessage, func(ev Event) { events <- ev })

	if err := client.Connect(context.Background(), "room 1"); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if ev := waitEvent(t, events); ev.Name != EventOpen {
		t.Fatalf("expected open, got %s", ev.Name)
	}
	if client.State() != Open {
		t.Fatalf("expected open state, got %s", client.State())
	}

	select {
	case path := <-ts.paths:
		if path != "/ws/rooms/room%201?token=tok+en" {
			t.Fatalf("unexpected path %q", path)
		}
	case <-time.After(time.Second):
		t.Fatalf("no request path")
	}

	env := Envelope{RoomID: "room 1", Nickname: "kim", UserID: "1"}
	if err := client.Send(env.New(TypeEnter, "")); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case raw := <-ts.received:
		msg, err := Decode(raw)
		if err != nil || msg.Type != TypeEnter || msg.UserID != "1" {
			t.Fatalf("unexpected frame %s", raw)
		}
	case <-time.After(time.Second):
		t.Fatalf("server did not receive frame")
	}

	server := ts.conn(t)
	_ = server.WriteMessage(websocket.TextMessage, []byte(`{"type":"DISTANCE","roomId":"room 1"}`))
	_ = server.WriteMessage(websocket.TextMessage, []byte(`not json`))
	_ = server.WriteMessage(websocket.TextMessage, []byte(`{"type":"LOCATION","roomId":"room 1","sender":"lee","userId":2,"latitude":1,"longitude":2}`))

	first := waitEvent(t, events)
	second := waitEvent(t, events)
	if first.Name != EventMessage || second.Name != string(TypeLocation) {
		t.Fatalf("unexpected dispatch order %s, %s", first.Name, second.Name)
	}
	if second.Message.UserID != "2" {
		t.Fatalf("unexpected message %+v", second.Message)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("handlers out of order: %v", order)
	}
	_ = client.Close()
}

func TestClientSendBeforeOpen(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1")
	err := client.Send(Message{Type: TypeStart})
	if !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected not open, got %v", err)
	}
}

func TestClientDialFailure(t *testing.T) {
	client := NewClient("ws://127.0.0.1:1")
	events := make(chan Event, 4)
	client.On(EventError, func(ev Event) { events <- ev })
	client.On(EventClose, func(ev Event) { events <- ev })

	if err := client.Connect(context.Background(), "r1"); err != nil {
		t.Fatalf("connect returned error: %v", err)
	}
	if ev := waitEvent(t, events); ev.Name != EventError || ev.Err == nil {
		t.Fatalf("expected error event, got %+v", ev)
	}
	if ev := waitEvent(t, events); ev.Name != EventClose {
		t.Fatalf("expected close event, got %+v", ev)
	}
	if client.State() != Closed {
		t.Fatalf("expected closed state")
	}
	if err := client.Connect(context.Background(), "r1"); !errors.Is(err, ErrAlreadyUsed) {
		t.Fatalf("expected no reconnect, got %v", err)
	}
}

func TestClientCloseIdempotent(t *testing.T) {
	never := NewClient("ws://127.0.0.1:1")
	if err := never.Close(); err != nil {
		t.Fatalf("close unused: %v", err)
	}
	if err := never.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	ts := newTestServer(t)
	client := NewClient(ts.wsURL())
	events := make(chan Event, 4)
	client.On(EventOpen, func(ev Event) { events <- ev })
	client.On(EventClose, func(ev Event) { events <- ev })
	_ = client.Connect(context.Background(), "r1")
	waitEvent(t, events)

	_ = client.Close()
	_ = client.Close()
	if ev := waitEvent(t, events); ev.Name != EventClose {
		t.Fatalf("expected close event")
	}
	select {
	case ev := <-events:
		t.Fatalf("unexpected extra event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
	if err := client.Send(Message{Type: TypeQuit}); !errors.Is(err, ErrNotOpen) {
		t.Fatalf("expected send after close to fail")
	}
}

func TestClientServerDisconnect(t *testing.T) {
	ts := newTestServer(t)
	client := NewClient(ts.wsURL())
	events := make(chan Event, 4)
	client.On(EventOpen, func(ev Event) { events <- ev })
	client.On(EventClose, func(ev Event) { events <- ev })
	_ = client.Connect(context.Background(), "r1")
	waitEvent(t, events)

	server := ts.conn(t)
	_ = server.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	_ = server.Close()

	if ev := waitEvent(t, events); ev.Name != EventClose {
		t.Fatalf("expected close, got %s", ev.Name)
	}
	if client.State() != Closed {
		t.Fatalf("expected closed state")
	}
}

func TestURLFromAPI(t *testing.T) {
	cases := map[string]string{
		"http://localhost:8080": "ws://localhost:8080",
		"https://runus.example": "wss://runus.example",
		"ws://already":          "ws://already",
	}
	for in, want := range cases {
		if got := URLFromAPI(in); got != want {
			t.Fatalf("URLFromAPI(%q) = %q, want %q", in, got, want)
		}
	}
}
