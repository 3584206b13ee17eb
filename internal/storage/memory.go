package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

// Memory implements Persistence in process. It backs tests and the
// single-instance dev mode when DATABASE_URL is unset.
type Memory struct {
	mu      sync.Mutex
	matches map[string]types.Match
	drafts  map[string]json.RawMessage
	queue   map[types.PlayerID]types.QueueEntry
	votes   map[string]map[types.PlayerID]types.Vote
}

func NewMemory() *Memory {
	return &Memory{
		matches: map[string]types.Match{},
		drafts:  map[string]json.RawMessage{},
		queue:   map[types.PlayerID]types.QueueEntry{},
		votes:   map[string]map[types.PlayerID]types.Vote{},
	}
}

func (m *Memory) SaveMatch(_ context.Context, match types.Match) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	match.Team1 = append([]types.PlayerID(nil), match.Team1...)
	match.Team2 = append([]types.PlayerID(nil), match.Team2...)
	m.matches[match.ID] = match
	return nil
}

func (m *Memory) FindMatch(_ context.Context, id string) (types.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[id]
	if !ok {
		return types.Match{}, types.ErrMatchNotFound
	}
	return match, nil
}

func (m *Memory) ListActiveMatches(_ context.Context) ([]types.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Match
	for _, match := range m.matches {
		if !match.Status.Terminal() {
			out = append(out, match)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) FindActiveMatchByPlayer(_ context.Context, p types.PlayerID) (types.Match, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, match := range m.matches {
		if !match.Status.Terminal() && match.Has(p) {
			return match, true, nil
		}
	}
	return types.Match{}, false, nil
}

func (m *Memory) UpdateMatchStatus(_ context.Context, id string, status types.MatchStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[id]
	if !ok {
		return types.ErrMatchNotFound
	}
	match.Status = status
	m.matches[id] = match
	return nil
}

func (m *Memory) SaveDraft(_ context.Context, id string, status types.MatchStatus, log json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[id]
	if !ok {
		return types.ErrMatchNotFound
	}
	match.Status = status
	m.matches[id] = match
	m.drafts[id] = append(json.RawMessage(nil), log...)
	return nil
}

func (m *Memory) LoadDraft(_ context.Context, id string) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.matches[id]; !ok {
		return nil, types.ErrMatchNotFound
	}
	return m.drafts[id], nil
}

func (m *Memory) SaveOutcome(_ context.Context, id string, outcome types.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	match, ok := m.matches[id]
	if !ok {
		return types.ErrMatchNotFound
	}
	match.Status = types.StatusCompleted
	match.Outcome = outcome
	m.matches[id] = match
	return nil
}

func (m *Memory) SaveQueueEntry(_ context.Context, e types.QueueEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.queue[e.Player]; ok {
		return ErrDuplicate
	}
	m.queue[e.Player] = e
	return nil
}

func (m *Memory) DeleteQueueEntries(_ context.Context, players ...types.PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range players {
		delete(m.queue, p)
	}
	return nil
}

func (m *Memory) ListQueueEntries(_ context.Context) ([]types.QueueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.QueueEntry, 0, len(m.queue))
	for _, e := range m.queue {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	return out, nil
}

func (m *Memory) SaveVote(_ context.Context, v types.Vote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.votes[v.MatchID] == nil {
		m.votes[v.MatchID] = map[types.PlayerID]types.Vote{}
	}
	if v.CastAt.IsZero() {
		v.CastAt = time.Now().UTC()
	}
	m.votes[v.MatchID][v.Player] = v
	return nil
}

func (m *Memory) DeleteVote(_ context.Context, matchID string, p types.PlayerID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.votes[matchID], p)
	return nil
}

func (m *Memory) ListVotes(_ context.Context, matchID string) ([]types.Vote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Vote, 0, len(m.votes[matchID]))
	for _, v := range m.votes[matchID] {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CastAt.Before(out[j].CastAt) })
	return out, nil
}
