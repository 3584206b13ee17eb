package engine

import (
	"fmt"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

func NewState(matchID string, team1, team2 []types.PlayerID, order []TurnStep) (State, error) {
	if order == nil {
		order = GameOrder
	}
	actions, err := NewPlan(team1, team2, order)
	if err != nil {
		return State{}, err
	}
	return State{
		MatchID:       matchID,
		Status:        types.StatusDrafting,
		Team1:         append([]types.PlayerID(nil), team1...),
		Team2:         append([]types.PlayerID(nil), team2...),
		Actions:       actions,
		Confirmations: map[types.PlayerID]bool{},
	}, nil
}

// Clone deep-copies the mutable parts of s.
func (s State) Clone() State {
	c := s
	c.Team1 = append([]types.PlayerID(nil), s.Team1...)
	c.Team2 = append([]types.PlayerID(nil), s.Team2...)
	c.Actions = make([]DraftAction, len(s.Actions))
	for i, a := range s.Actions {
		if a.CompletedAt != nil {
			at := *a.CompletedAt
			a.CompletedAt = &at
		}
		c.Actions[i] = a
	}
	c.Confirmations = make(map[types.PlayerID]bool, len(s.Confirmations))
	for k, v := range s.Confirmations {
		c.Confirmations[k] = v
	}
	return c
}

func (s State) TotalPlayers() int { return len(s.Team1) + len(s.Team2) }

func (s State) seatOf(p types.PlayerID) (types.PlayerID, bool) {
	for _, q := range s.Team1 {
		if q.Equal(p) {
			return q, true
		}
	}
	for _, q := range s.Team2 {
		if q.Equal(p) {
			return q, true
		}
	}
	return "", false
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// Phase names the ban/pick block at cursor, e.g. "ban1", "pick2", "done".
func Phase(actions []DraftAction, cursor int) string {
	if cursor >= len(actions) {
		return "done"
	}
	bans, picks := 0, 0
	var last Action
	for i := 0; i <= cursor; i++ {
		if actions[i].Action == last {
			continue
		}
		last = actions[i].Action
		if last == ActionBan {
			bans++
		} else {
			picks++
		}
	}
	if last == ActionBan {
		return fmt.Sprintf("ban%d", bans)
	}
	return fmt.Sprintf("pick%d", picks)
}

// CheckInvariants reports the first broken draft invariant.
func CheckInvariants(s State) error {
	seen := map[string]int{}
	for i, a := range s.Actions {
		if a.Done() != (i < s.Cursor) {
			return fmt.Errorf("action %d: completed=%v but cursor=%d", i, a.Done(), s.Cursor)
		}
		if a.Action != ActionPick || !a.Done() {
			continue
		}
		if j, dup := seen[a.ChampionID]; dup {
			return fmt.Errorf("champion %q picked at %d and %d", a.ChampionID, j, i)
		}
		seen[a.ChampionID] = i
	}
	return nil
}

type View struct {
	Exists         bool              `json:"exists"`
	MatchID        string            `json:"match_id,omitempty"`
	Version        int               `json:"version,omitempty"`
	Status         types.MatchStatus `json:"status,omitempty"`
	Phase          string            `json:"phase,omitempty"`
	CurrentIndex   int               `json:"current_index"`
	Actions        []DraftAction     `json:"actions,omitempty"`
	Team1          []types.PlayerID  `json:"team1,omitempty"`
	Team2          []types.PlayerID  `json:"team2,omitempty"`
	Confirmed      []types.PlayerID  `json:"confirmed,omitempty"`
	ConfirmedCount int               `json:"confirmed_count"`
	TotalPlayers   int               `json:"total_players"`
}

func (s State) View(version int) View {
	c := s.Clone()
	confirmed := make([]types.PlayerID, 0, len(c.Confirmations))
	for _, p := range append(append([]types.PlayerID(nil), c.Team1...), c.Team2...) {
		if c.Confirmations[p] {
			confirmed = append(confirmed, p)
		}
	}
	return View{
		Exists:         true,
		MatchID:        c.MatchID,
		Version:        version,
		Status:         c.Status,
		Phase:          Phase(c.Actions, c.Cursor),
		CurrentIndex:   c.Cursor,
		Actions:        c.Actions,
		Team1:          c.Team1,
		Team2:          c.Team2,
		Confirmed:      confirmed,
		ConfirmedCount: len(confirmed),
		TotalPlayers:   c.TotalPlayers(),
	}
}
