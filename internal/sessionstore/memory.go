package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

// Memory is a single-process Store. SetFailing makes every call return
// ErrUnavailable.
type Memory struct {
	mu       sync.Mutex
	bindings map[types.PlayerID]memEntry
	failing  bool
	now      func() time.Time
}

type memEntry struct {
	b       Binding
	expires time.Time
}

func NewMemory() *Memory {
	return &Memory{bindings: map[types.PlayerID]memEntry{}, now: time.Now}
}

// SetClock overrides the time source used for expiry.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

func (m *Memory) Bind(_ context.Context, b Binding, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrUnavailable
	}
	m.bindings[b.Player] = memEntry{b: b, expires: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Lookup(_ context.Context, player types.PlayerID) (Binding, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return Binding{}, false, ErrUnavailable
	}
	e, ok := m.live(player)
	return e.b, ok, nil
}

func (m *Memory) Unbind(_ context.Context, player types.PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return ErrUnavailable
	}
	delete(m.bindings, player)
	return nil
}

func (m *Memory) UnbindIfChannel(_ context.Context, player types.PlayerID, channelID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, ErrUnavailable
	}
	e, ok := m.live(player)
	if !ok || e.b.ChannelID != channelID {
		return false, nil
	}
	delete(m.bindings, player)
	return true, nil
}

func (m *Memory) Touch(_ context.Context, player types.PlayerID, channelID string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return false, ErrUnavailable
	}
	e, ok := m.live(player)
	if !ok || e.b.ChannelID != channelID {
		return false, nil
	}
	now := m.now()
	e.b.LastHeartbeat = now
	e.expires = now.Add(ttl)
	m.bindings[player] = e
	return true, nil
}

func (m *Memory) CountOnline(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing {
		return 0, ErrUnavailable
	}
	n := 0
	for p := range m.bindings {
		if _, ok := m.live(p); ok {
			n++
		}
	}
	return n, nil
}

// live must be called with mu held.
func (m *Memory) live(player types.PlayerID) (memEntry, bool) {
	e, ok := m.bindings[player]
	if !ok {
		return memEntry{}, false
	}
	if !m.now().Before(e.expires) {
		delete(m.bindings, player)
		return memEntry{}, false
	}
	return e, true
}
