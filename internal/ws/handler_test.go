package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/registry"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/sessionstore"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

func newServer(t *testing.T) (*httptest.Server, *registry.Registry) {
	t.Helper()
	reg := registry.New(sessionstore.NewMemory(), registry.Config{Instance: "test"}, zap.NewNop())
	h := Handler(reg, Options{ReadTimeout: 5 * time.Second}, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(types.IdentityHeader); raw != "" {
			p, _ := types.NewPlayerID(raw)
			r = r.WithContext(types.WithPlayer(r.Context(), p))
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, reg
}

func dial(t *testing.T, srv *httptest.Server, identity string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	hdr := http.Header{}
	if identity != "" {
		hdr.Set(types.IdentityHeader, identity)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: hdr})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close(websocket.StatusNormalClosure, "") })
	return c
}

func write(t *testing.T, c *websocket.Conn, msg types.ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(msg)
	require.NoError(t, c.Write(ctx, websocket.MessageText, b))
}

func read(t *testing.T, c *websocket.Conn) types.ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := c.Read(ctx)
	require.NoError(t, err)
	var m types.ServerMessage
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestIdentifyThenReceivePush(t *testing.T) {
	srv, reg := newServer(t)
	c := dial(t, srv, "Faker")

	write(t, c, types.ClientMessage{Type: "identify", Player: "faker"})
	m := read(t, c)
	require.Equal(t, types.EventIdentified, m.Type)

	ctx := context.Background()
	require.True(t, reg.IsOnline(ctx, "faker"))

	n := reg.SendTo(ctx, []types.PlayerID{"faker"}, types.EventQueueUpdate, map[string]int{"count": 3})
	require.Equal(t, 1, n)

	m = read(t, c)
	require.Equal(t, types.EventQueueUpdate, m.Type)
	require.JSONEq(t, `{"count":3}`, string(m.Payload))
}

func TestIdentifyMismatchRejected(t *testing.T) {
	srv, reg := newServer(t)
	c := dial(t, srv, "faker")

	write(t, c, types.ClientMessage{Type: "identify", Player: "chovy"})
	m := read(t, c)
	require.Equal(t, types.EventError, m.Type)
	require.Equal(t, types.ReasonOf(types.ErrIdentityMismatch), m.Error)
	require.False(t, reg.IsOnline(context.Background(), "chovy"))
}

func TestIdentifyWithoutAuthRejected(t *testing.T) {
	srv, reg := newServer(t)
	c := dial(t, srv, "")

	write(t, c, types.ClientMessage{Type: "identify", Player: "faker"})
	m := read(t, c)
	require.Equal(t, types.EventError, m.Type)
	require.False(t, reg.IsOnline(context.Background(), "faker"))
}

func TestUnknownAndBadMessages(t *testing.T) {
	srv, _ := newServer(t)
	c := dial(t, srv, "faker")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Write(ctx, websocket.MessageText, []byte("{nope")))
	require.Equal(t, "bad json", read(t, c).Error)

	write(t, c, types.ClientMessage{Type: "dance"})
	require.Equal(t, "unknown type", read(t, c).Error)
}

func TestHeartbeatThenUnidentify(t *testing.T) {
	srv, reg := newServer(t)
	c := dial(t, srv, "faker")

	write(t, c, types.ClientMessage{Type: "identify", Player: "faker"})
	require.Equal(t, types.EventIdentified, read(t, c).Type)

	write(t, c, types.ClientMessage{Type: "heartbeat"})
	write(t, c, types.ClientMessage{Type: "unidentify"})
	waitFor(t, func() bool { return !reg.IsOnline(context.Background(), "faker") })
}

func TestDisconnectReleasesBinding(t *testing.T) {
	srv, reg := newServer(t)
	c := dial(t, srv, "faker")

	write(t, c, types.ClientMessage{Type: "identify", Player: "faker"})
	require.Equal(t, types.EventIdentified, read(t, c).Type)

	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))
	waitFor(t, func() bool { return !reg.IsOnline(context.Background(), "faker") })
}
