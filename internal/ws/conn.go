package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

var (
	ErrSlowClient = types.Unavailable("client is not reading its messages")
	ErrClosed     = types.Unavailable("channel closed")
)

const (
	outboxSize   = 32
	writeTimeout = 3 * time.Second
)

// Conn is a websocket connection exposed as a push channel. Sends are queued
// on a buffered outbox; a client whose outbox fills up is disconnected.
type Conn struct {
	id      string
	ws      *websocket.Conn
	out     chan []byte
	remote  string
	headers http.Header

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(c *websocket.Conn, r *http.Request) *Conn {
	return &Conn{
		id:      uuid.NewString(),
		ws:      c,
		out:     make(chan []byte, outboxSize),
		remote:  r.RemoteAddr,
		headers: r.Header.Clone(),
		done:    make(chan struct{}),
	}
}

func (c *Conn) ID() string            { return c.id }
func (c *Conn) RemoteAddress() string { return c.remote }
func (c *Conn) Headers() http.Header  { return c.headers }

func (c *Conn) Send(event string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	msg, err := json.Marshal(types.ServerMessage{Type: event, Payload: raw})
	if err != nil {
		return err
	}
	return c.enqueue(msg)
}

func (c *Conn) sendError(reason string) {
	msg, _ := json.Marshal(types.ServerMessage{Type: types.EventError, Error: reason})
	_ = c.enqueue(msg)
}

func (c *Conn) enqueue(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.out <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		// Client is slow/full - drop them without waiting on the close handshake.
		c.closeOnce.Do(func() {
			close(c.done)
			go c.ws.Close(websocket.StatusPolicyViolation, "too slow")
		})
		return ErrSlowClient
	}
}

func (c *Conn) Close() error {
	return c.closeWith(websocket.StatusNormalClosure, "bye")
}

func (c *Conn) closeWith(code websocket.StatusCode, reason string) error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close(code, reason)
	})
	return err
}

// writeLoop drains the outbox until the connection closes.
func (c *Conn) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				_ = c.closeWith(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}
