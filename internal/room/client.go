package room

import (
	"context"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

const (
	EventOpen    = "open"
	EventClose   = "close"
	EventError   = "error"
	EventMessage = "message"
)

var (
	ErrNotOpen     = errors.New("room: channel not open")
	ErrAlreadyUsed = errors.New("room: client already connected once")
)

type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Open
	Closed
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Event is what handlers receive. Message is set for message events, Err for
// error events.
type Event struct {
	Name    string
	Message Message
	Err     error
}

type Handler func(Event)

// Client is one membership in one room over one websocket. It never
// reconnects: once Closed it stays Closed.
type Client struct {
	baseURL string
	token   string
	header  http.Header
	dialer  *websocket.Dialer

	mu         sync.Mutex
	state      ConnState
	conn       *websocket.Conn
	cancelDial context.CancelFunc
	handlers   map[string][]Handler

	writeMu sync.Mutex
}

type Option func(*Client)

func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithToken appends the access token as ?token= on the socket URL.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHeader(h http.Header) Option {
	return func(c *Client) { c.header = h }
}

// NewClient builds a client for a relay at baseURL (ws:// or wss://).
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		dialer:   websocket.DefaultDialer,
		handlers: map[string][]Handler{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URLFromAPI turns the REST origin into the matching websocket origin.
func URLFromAPI(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	}
	return apiURL
}

func (c *Client) roomURL(roomID string) string {
	u := c.baseURL + "/ws/rooms/" + url.PathEscape(roomID)
	if c.token != "" {
		u += "?token=" + url.QueryEscape(c.token)
	}
	return u
}

func (c *Client) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// On registers h for name. Handlers run in registration order on the
// client's read goroutine.
func (c *Client) On(name string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = append(c.handlers[name], h)
}

func (c *Client) emit(ev Event) {
	c.mu.Lock()
	hs := append([]Handler(nil), c.handlers[ev.Name]...)
	c.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// Connect starts dialing roomID in the background. Transport failures are
// reported through the error and close events, not returned.
func (c *Client) Connect(ctx context.Context, roomID string) error {
	c.mu.Lock()
	if c.state != Disconnected {
		c.mu.Unlock()
		return ErrAlreadyUsed
	}
	c.state = Connecting
	dialCtx, cancel := context.WithCancel(ctx)
	c.cancelDial = cancel
	c.mu.Unlock()

	go c.dial(dialCtx, c.roomURL(roomID))
	return nil
}

func (c *Client) dial(ctx context.Context, target string) {
	conn, _, err := c.dialer.DialContext(ctx, target, c.header)

	c.mu.Lock()
	if c.state != Connecting {
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	if err != nil {
		c.state = Closed
		c.mu.Unlock()
		log.Printf("room: dial %s: %v", target, err)
		c.emit(Event{Name: EventError, Err: err})
		c.emit(Event{Name: EventClose})
		return
	}
	c.state = Open
	c.conn = conn
	c.mu.Unlock()

	c.emit(Event{Name: EventOpen})
	c.readLoop(conn)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}

		msg, err := Decode(data)
		if err != nil {
			log.Printf("room: ignoring inbound frame: %v", err)
			continue
		}
		c.emit(Event{Name: EventMessage, Message: msg})
		c.emit(Event{Name: string(msg.Type), Message: msg})
	}
}

// shutdown handles the transport going away underneath us.
func (c *Client) shutdown(err error) {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	c.state = Closed
	conn := c.conn
	c.mu.Unlock()

	_ = conn.Close()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Printf("room: connection lost: %v", err)
		c.emit(Event{Name: EventError, Err: err})
	}
	c.emit(Event{Name: EventClose})
}

// Send writes msg when the channel is open. Otherwise the message is dropped
// with a warning and ErrNotOpen is returned.
func (c *Client) Send(msg Message) error {
	c.mu.Lock()
	state, conn := c.state, c.conn
	c.mu.Unlock()

	if state != Open {
		log.Printf("room: dropping %s while %s", msg.Type, state)
		return ErrNotOpen
	}

	payload, err := Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

// Close is idempotent and safe on a client that never connected.
func (c *Client) Close() error {
	c.mu.Lock()
	prev := c.state
	if prev == Closed {
		c.mu.Unlock()
		return nil
	}
	c.state = Closed
	conn, cancel := c.conn, c.cancelDial
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		c.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = conn.Close()
	}
	if prev != Disconnected {
		c.emit(Event{Name: EventClose})
	}
	return nil
}
