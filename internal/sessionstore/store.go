// Package sessionstore holds player-to-channel bindings in a store shared by
// every backend instance.
package sessionstore

import (
	"context"
	"time"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

var ErrUnavailable = types.Unavailable("session store unavailable")

// Binding is the authoritative record of which channel a player is on.
type Binding struct {
	Player        types.PlayerID
	ChannelID     string
	Instance      string
	RemoteAddr    string
	UserAgent     string
	ConnectedAt   time.Time
	IdentifiedAt  time.Time
	LastHeartbeat time.Time
}

type Store interface {
	// Bind replaces any binding for b.Player (last writer wins).
	Bind(ctx context.Context, b Binding, ttl time.Duration) error
	Lookup(ctx context.Context, player types.PlayerID) (Binding, bool, error)
	Unbind(ctx context.Context, player types.PlayerID) error
	// UnbindIfChannel removes the binding only while it still points at channelID.
	UnbindIfChannel(ctx context.Context, player types.PlayerID, channelID string) (bool, error)
	// Touch extends the TTL only while the binding still points at channelID.
	Touch(ctx context.Context, player types.PlayerID, channelID string, ttl time.Duration) (bool, error)
	CountOnline(ctx context.Context) (int, error)
}
