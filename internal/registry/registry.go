// Package registry maps player identities to live push channels. The shared
// session store is authoritative; the in-process channel map is a cache that
// is reconciled against the store on every resolve.
package registry

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/sessionstore"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

var ErrUnknownChannel = types.NotFound("channel not found")

// PushChannel is one open client connection.
type PushChannel interface {
	ID() string
	Send(event string, payload any) error
	Close() error
	RemoteAddress() string
	Headers() http.Header
}

type Session struct {
	ChannelID     string         `json:"channel_id"`
	Player        types.PlayerID `json:"player"`
	Instance      string         `json:"instance,omitempty"`
	ConnectedAt   time.Time      `json:"connected_at"`
	LastHeartbeat time.Time      `json:"last_heartbeat"`
}

type Stats struct {
	LocalChannels   int   `json:"local_channels"`
	LocalIdentified int   `json:"local_identified"`
	StoreFailures   int64 `json:"store_failures"`
}

type Config struct {
	Instance  string
	TTL       time.Duration
	OpTimeout time.Duration
}

type local struct {
	ch          PushChannel
	player      types.PlayerID
	connectedAt time.Time
}

type Registry struct {
	mu       sync.RWMutex
	channels map[string]*local
	byPlayer map[types.PlayerID]string

	store         sessionstore.Store
	cfg           Config
	log           *zap.Logger
	storeFailures atomic.Int64
	now           func() time.Time
}

func New(store sessionstore.Store, cfg Config, log *zap.Logger) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = 60 * time.Second
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 2 * time.Second
	}
	return &Registry{
		channels: make(map[string]*local),
		byPlayer: make(map[types.PlayerID]string),
		store:    store,
		cfg:      cfg,
		log:      log.Named("registry"),
		now:      time.Now,
	}
}

// Open registers an unidentified channel.
func (r *Registry) Open(ch PushChannel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ID()] = &local{ch: ch, connectedAt: r.now().UTC()}
}

// Identify binds player to channelID. Re-identifying the same pair is a no-op;
// a new channel for an already bound player supersedes the old binding.
func (r *Registry) Identify(ctx context.Context, channelID string, player types.PlayerID) error {
	r.mu.Lock()
	l, ok := r.channels[channelID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownChannel
	}
	if l.player == player && r.byPlayer[player] == channelID {
		r.mu.Unlock()
		return nil
	}
	previous := l.player
	if previous != "" && r.byPlayer[previous] == channelID {
		delete(r.byPlayer, previous)
	}
	if old, bound := r.byPlayer[player]; bound && old != channelID {
		if prev, exists := r.channels[old]; exists {
			prev.player = ""
		}
	}
	l.player = player
	r.byPlayer[player] = channelID
	now := r.now().UTC()
	binding := sessionstore.Binding{
		Player:        player,
		ChannelID:     channelID,
		Instance:      r.cfg.Instance,
		RemoteAddr:    l.ch.RemoteAddress(),
		UserAgent:     l.ch.Headers().Get("User-Agent"),
		ConnectedAt:   l.connectedAt,
		IdentifiedAt:  now,
		LastHeartbeat: now,
	}
	r.mu.Unlock()

	sctx, cancel := r.opContext(ctx)
	defer cancel()
	if previous != "" && previous != player {
		if _, err := r.store.UnbindIfChannel(sctx, previous, channelID); err != nil {
			r.degraded("unbind previous", err)
		}
	}
	if err := r.store.Bind(sctx, binding, r.cfg.TTL); err != nil {
		r.degraded("bind", err)
	}
	r.log.Info("channel identified",
		zap.String("channel_id", channelID),
		zap.String("player", player.String()),
		zap.String("remote_addr", binding.RemoteAddr),
		zap.String("user_agent", binding.UserAgent),
	)
	return nil
}

// Resolve returns the live session for player. A binding written by this
// instance whose channel is no longer open is stale and removed; bindings
// owned by other instances are left to their TTL.
func (r *Registry) Resolve(ctx context.Context, player types.PlayerID) (Session, bool) {
	sctx, cancel := r.opContext(ctx)
	defer cancel()

	b, found, err := r.store.Lookup(sctx, player)
	if err != nil {
		r.degraded("lookup", err)
		return r.resolveLocal(player)
	}
	if !found {
		r.mu.Lock()
		if id, ok := r.byPlayer[player]; ok {
			delete(r.byPlayer, player)
			if l := r.channels[id]; l != nil && l.player == player {
				l.player = ""
			}
		}
		r.mu.Unlock()
		return Session{}, false
	}

	r.mu.Lock()
	l, open := r.channels[b.ChannelID]
	if !open && r.ownedElsewhere(b) {
		// Live on another instance; its TTL decides when it goes stale.
		if id, ok := r.byPlayer[player]; ok {
			delete(r.byPlayer, player)
			if prev := r.channels[id]; prev != nil && prev.player == player {
				prev.player = ""
			}
		}
		r.mu.Unlock()
		return Session{
			ChannelID:     b.ChannelID,
			Player:        player,
			Instance:      b.Instance,
			ConnectedAt:   b.ConnectedAt,
			LastHeartbeat: b.LastHeartbeat,
		}, true
	}
	if !open {
		if r.byPlayer[player] == b.ChannelID {
			delete(r.byPlayer, player)
		}
		r.mu.Unlock()
		if _, err := r.store.UnbindIfChannel(sctx, player, b.ChannelID); err != nil {
			r.degraded("unbind stale", err)
		}
		r.log.Debug("removed stale binding", zap.String("player", player.String()), zap.String("channel_id", b.ChannelID))
		return Session{}, false
	}
	if l.player != player || r.byPlayer[player] != b.ChannelID {
		if old, ok := r.byPlayer[player]; ok && old != b.ChannelID {
			if prev := r.channels[old]; prev != nil {
				prev.player = ""
			}
		}
		l.player = player
		r.byPlayer[player] = b.ChannelID
	}
	connected := l.connectedAt
	r.mu.Unlock()

	return Session{
		ChannelID:     b.ChannelID,
		Player:        player,
		Instance:      r.cfg.Instance,
		ConnectedAt:   connected,
		LastHeartbeat: b.LastHeartbeat,
	}, true
}

// ownedElsewhere reports whether b was written by another named instance.
// Bindings without an instance are treated as local.
func (r *Registry) ownedElsewhere(b sessionstore.Binding) bool {
	return b.Instance != "" && b.Instance != r.cfg.Instance
}

func (r *Registry) resolveLocal(player types.PlayerID) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPlayer[player]
	if !ok {
		return Session{}, false
	}
	l, ok := r.channels[id]
	if !ok {
		return Session{}, false
	}
	return Session{ChannelID: id, Player: player, ConnectedAt: l.connectedAt}, true
}

func (r *Registry) Unidentify(ctx context.Context, player types.PlayerID) {
	r.mu.Lock()
	if id, ok := r.byPlayer[player]; ok {
		delete(r.byPlayer, player)
		if l := r.channels[id]; l != nil && l.player == player {
			l.player = ""
		}
	}
	r.mu.Unlock()

	sctx, cancel := r.opContext(ctx)
	defer cancel()
	if err := r.store.Unbind(sctx, player); err != nil {
		r.degraded("unbind", err)
	}
}

// Close drops the channel locally regardless of store state and removes its
// binding if the store still points at it.
func (r *Registry) Close(ctx context.Context, channelID string) {
	r.mu.Lock()
	l, ok := r.channels[channelID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.channels, channelID)
	player := l.player
	if player != "" && r.byPlayer[player] == channelID {
		delete(r.byPlayer, player)
	}
	r.mu.Unlock()

	_ = l.ch.Close()
	if player == "" {
		return
	}
	sctx, cancel := r.opContext(ctx)
	defer cancel()
	if _, err := r.store.UnbindIfChannel(sctx, player, channelID); err != nil {
		r.degraded("unbind on close", err)
	}
}

// Heartbeat refreshes the binding TTL in the store only.
func (r *Registry) Heartbeat(ctx context.Context, channelID string) error {
	r.mu.RLock()
	l, ok := r.channels[channelID]
	var player types.PlayerID
	if ok {
		player = l.player
	}
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownChannel
	}
	if player == "" {
		return nil
	}

	sctx, cancel := r.opContext(ctx)
	defer cancel()
	if _, err := r.store.Touch(sctx, player, channelID, r.cfg.TTL); err != nil {
		r.degraded("touch", err)
	}
	return nil
}

// SendTo delivers best-effort to every resolvable player and returns how many
// sends succeeded. Unresolvable players are skipped.
func (r *Registry) SendTo(ctx context.Context, players []types.PlayerID, event string, payload any) int {
	seen := make(map[types.PlayerID]bool, len(players))
	delivered := 0
	for _, p := range players {
		if seen[p] {
			continue
		}
		seen[p] = true
		if r.sendOne(ctx, p, event, payload) {
			delivered++
		}
	}
	return delivered
}

// Broadcast sends to every player identified on this instance.
func (r *Registry) Broadcast(ctx context.Context, event string, payload any) int {
	r.mu.RLock()
	players := make([]types.PlayerID, 0, len(r.byPlayer))
	for p := range r.byPlayer {
		players = append(players, p)
	}
	r.mu.RUnlock()
	return r.SendTo(ctx, players, event, payload)
}

func (r *Registry) sendOne(ctx context.Context, p types.PlayerID, event string, payload any) bool {
	s, ok := r.Resolve(ctx, p)
	if !ok {
		return false
	}
	r.mu.RLock()
	l, open := r.channels[s.ChannelID]
	r.mu.RUnlock()
	if !open {
		return false
	}
	if err := l.ch.Send(event, payload); err != nil {
		r.log.Debug("send failed", zap.String("player", p.String()), zap.String("event", event), zap.Error(err))
		return false
	}
	return true
}

func (r *Registry) IsOnline(ctx context.Context, player types.PlayerID) bool {
	_, ok := r.Resolve(ctx, player)
	return ok
}

// ActiveCount is the larger of the local and shared identified counts; a
// channel can be open here before its identification lands in the store.
func (r *Registry) ActiveCount(ctx context.Context) int {
	r.mu.RLock()
	localCount := len(r.byPlayer)
	r.mu.RUnlock()

	sctx, cancel := r.opContext(ctx)
	defer cancel()
	shared, err := r.store.CountOnline(sctx)
	if err != nil {
		r.degraded("count", err)
		return localCount
	}
	return max(localCount, shared)
}

// Sweep closes channels whose binding expired and unidentified channels older
// than the TTL. It returns the number of channels closed.
func (r *Registry) Sweep(ctx context.Context) int {
	type candidate struct {
		id          string
		player      types.PlayerID
		connectedAt time.Time
	}
	r.mu.RLock()
	candidates := make([]candidate, 0, len(r.channels))
	for id, l := range r.channels {
		candidates = append(candidates, candidate{id: id, player: l.player, connectedAt: l.connectedAt})
	}
	r.mu.RUnlock()

	closed := 0
	deadline := r.now().Add(-r.cfg.TTL)
	for _, c := range candidates {
		if c.player == "" {
			if c.connectedAt.Before(deadline) {
				r.Close(ctx, c.id)
				closed++
			}
			continue
		}
		sctx, cancel := r.opContext(ctx)
		b, found, err := r.store.Lookup(sctx, c.player)
		cancel()
		if err != nil {
			r.degraded("sweep lookup", err)
			continue
		}
		switch {
		case !found:
			r.log.Info("heartbeat timeout", zap.String("player", c.player.String()), zap.String("channel_id", c.id))
			r.Close(ctx, c.id)
			closed++
		case b.ChannelID != c.id:
			r.mu.Lock()
			if l := r.channels[c.id]; l != nil && l.player == c.player {
				l.player = ""
			}
			r.mu.Unlock()
		}
	}
	return closed
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		LocalChannels:   len(r.channels),
		LocalIdentified: len(r.byPlayer),
		StoreFailures:   r.storeFailures.Load(),
	}
}

func (r *Registry) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.cfg.OpTimeout)
}

func (r *Registry) degraded(op string, err error) {
	n := r.storeFailures.Add(1)
	r.log.Warn("session store degraded, using local cache",
		zap.String("op", op),
		zap.String("metric", "registry.store_failures"),
		zap.Int64("count", n),
		zap.Error(err),
	)
}
