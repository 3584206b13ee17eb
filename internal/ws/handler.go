// Package ws serves the push channel players keep open to receive queue,
// draft and vote events.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/registry"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

type Registry interface {
	Open(ch registry.PushChannel)
	Identify(ctx context.Context, channelID string, p types.PlayerID) error
	Unidentify(ctx context.Context, p types.PlayerID)
	Heartbeat(ctx context.Context, channelID string) error
	Close(ctx context.Context, channelID string)
}

type Options struct {
	// ReadTimeout closes a channel that sent nothing, heartbeats included.
	ReadTimeout    time.Duration
	OriginPatterns []string
}

type identifiedPayload struct {
	Player    types.PlayerID `json:"player"`
	ChannelID string         `json:"channel_id"`
}

func Handler(reg Registry, opts Options, log *zap.Logger) http.HandlerFunc {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 90 * time.Second
	}
	log = log.Named("ws")

	return func(w http.ResponseWriter, r *http.Request) {
		authed, _ := types.PlayerFrom(r.Context())

		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: opts.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}

		conn := newConn(c, r)
		reg.Open(conn)
		defer reg.Close(context.WithoutCancel(r.Context()), conn.ID())

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go conn.writeLoop(writeCtx)

		// Reader loop
		for {
			ctx, cancel := context.WithTimeout(r.Context(), opts.ReadTimeout)
			_, data, err := c.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("channel read ended", zap.String("channel_id", conn.ID()), zap.Error(err))
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				conn.sendError("bad json")
				continue
			}
			handleMessage(r.Context(), reg, conn, authed, cm)
		}
	}
}

func handleMessage(ctx context.Context, reg Registry, conn *Conn, authed types.PlayerID, cm types.ClientMessage) {
	switch cm.Type {
	case "identify":
		p, err := types.NewPlayerID(cm.Player)
		if err != nil {
			conn.sendError(types.ReasonOf(err))
			return
		}
		if authed == "" || !p.Equal(authed) {
			conn.sendError(types.ReasonOf(types.ErrIdentityMismatch))
			return
		}
		if err := reg.Identify(ctx, conn.ID(), p); err != nil {
			conn.sendError(types.ReasonOf(err))
			return
		}
		_ = conn.Send(types.EventIdentified, identifiedPayload{Player: p, ChannelID: conn.ID()})

	case "heartbeat":
		if err := reg.Heartbeat(ctx, conn.ID()); err != nil {
			conn.sendError(types.ReasonOf(err))
		}

	case "unidentify":
		if authed != "" {
			reg.Unidentify(ctx, authed)
		}

	default:
		conn.sendError("unknown type")
	}
}
