package engine

import (
	"time"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

var (
	ErrWrongTurn          = types.Conflict("action is out of order")
	ErrWrongSeat          = types.Conflict("action belongs to another seat")
	ErrChampionTaken      = types.Conflict("champion already picked")
	ErrNoCompletedPick    = types.Conflict("player has no completed pick")
	ErrDraftNotComplete   = types.Conflict("draft is not complete")
	ErrDraftClosed        = types.Conflict("draft is closed")
	ErrNotSeated          = types.Validation("player is not seated in this match")
	ErrEmptyChampion      = types.Validation("champion is required")
	ErrInvalidPlan        = types.Validation("draft plan does not fit the rosters")
	ErrUnsupportedCommand = types.Validation("unsupported command")
)

type Action string

const (
	ActionBan  Action = "ban"
	ActionPick Action = "pick"
)

type TurnStep struct {
	Team   types.Team
	Action Action
	Seat   int
}

type DraftAction struct {
	Index       int            `json:"index"`
	Team        types.Team     `json:"team"`
	Action      Action         `json:"action"`
	Seat        types.PlayerID `json:"seat"`
	ChampionID  string         `json:"champion_id,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

func (a DraftAction) Done() bool { return a.ChampionID != "" }

type State struct {
	MatchID       string
	Status        types.MatchStatus
	Team1         []types.PlayerID
	Team2         []types.PlayerID
	Actions       []DraftAction
	Cursor        int
	Confirmations map[types.PlayerID]bool
}

type CommandType string

const (
	CmdProcessAction CommandType = "ProcessAction"
	CmdChangePick    CommandType = "ChangePick"
	CmdConfirm       CommandType = "Confirm"
	CmdCancel        CommandType = "Cancel"
)

/*
	CmdProcessAction -> EvtChampionPicked|EvtChampionBanned -> EvtTurnAdvanced (-> EvtDraftCompleted)
	CmdChangePick    -> EvtPickChanged
	CmdConfirm       -> EvtPlayerConfirmed (-> EvtGameStarted once every seat confirmed)
	CmdCancel        -> EvtDraftCancelled
*/

type Command struct {
	Type       CommandType
	Index      int
	Player     types.PlayerID
	ChampionID string
	At         time.Time
}

type EventType string

const (
	EvtChampionPicked  EventType = "ChampionPicked"
	EvtChampionBanned  EventType = "ChampionBanned"
	EvtTurnAdvanced    EventType = "TurnAdvanced"
	EvtDraftCompleted  EventType = "DraftCompleted"
	EvtPickChanged     EventType = "PickChanged"
	EvtPlayerConfirmed EventType = "PlayerConfirmed"
	EvtGameStarted     EventType = "GameStarted"
	EvtDraftCancelled  EventType = "DraftCancelled"
)

type Event struct {
	Type       EventType      `json:"type"`
	Index      int            `json:"index,omitempty"`
	Player     types.PlayerID `json:"player,omitempty"`
	ChampionID string         `json:"champion_id,omitempty"`
	At         time.Time      `json:"at"`
}

// Apply validates cmd against s. On error the returned state is s untouched.
func Apply(s State, cmd Command) ([]Event, State, error) {
	if cmd.At.IsZero() {
		cmd.At = time.Now().UTC()
	}

	switch cmd.Type {
	case CmdProcessAction:
		return processAction(s, cmd)
	case CmdChangePick:
		return changePick(s, cmd)
	case CmdConfirm:
		return confirm(s, cmd)
	case CmdCancel:
		if !s.Status.Drafting() {
			return nil, s, ErrDraftClosed
		}
		newState := s.Clone()
		newState.Status = types.StatusCancelled
		return []Event{{Type: EvtDraftCancelled, At: cmd.At}}, newState, nil
	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func processAction(s State, cmd Command) ([]Event, State, error) {
	if s.Status != types.StatusDrafting || s.Cursor >= len(s.Actions) {
		return nil, s, ErrDraftClosed
	}
	if cmd.Index != s.Cursor {
		return nil, s, ErrWrongTurn
	}
	step := s.Actions[s.Cursor]
	if !step.Seat.Equal(cmd.Player) {
		return nil, s, ErrWrongSeat
	}
	if cmd.ChampionID == "" {
		return nil, s, ErrEmptyChampion
	}

	// Bans are never checked and never reserve a champion for later picks.
	evt := EvtChampionBanned
	if step.Action == ActionPick {
		if hasPick(s, cmd.ChampionID, -1) {
			return nil, s, ErrChampionTaken
		}
		evt = EvtChampionPicked
	}

	newState := s.Clone()
	at := cmd.At
	newState.Actions[s.Cursor].ChampionID = cmd.ChampionID
	newState.Actions[s.Cursor].CompletedAt = &at
	newState.Cursor++

	events := []Event{
		{Type: evt, Index: step.Index, Player: step.Seat, ChampionID: cmd.ChampionID, At: at},
		{Type: EvtTurnAdvanced, At: at},
	}

	if newState.Cursor == len(newState.Actions) {
		newState.Status = types.StatusAwaitingConfirmation
		events = append(events, Event{Type: EvtDraftCompleted, At: at})
	}
	return events, newState, nil
}

func changePick(s State, cmd Command) ([]Event, State, error) {
	if !s.Status.Drafting() {
		return nil, s, ErrDraftClosed
	}
	idx := completedPickOf(s, cmd.Player)
	if idx < 0 {
		return nil, s, ErrNoCompletedPick
	}
	if cmd.ChampionID == "" {
		return nil, s, ErrEmptyChampion
	}
	if s.Actions[idx].ChampionID == cmd.ChampionID {
		return nil, s, nil
	}
	if hasPick(s, cmd.ChampionID, idx) {
		return nil, s, ErrChampionTaken
	}

	newState := s.Clone()
	newState.Actions[idx].ChampionID = cmd.ChampionID
	return []Event{{Type: EvtPickChanged, Index: idx, Player: s.Actions[idx].Seat, ChampionID: cmd.ChampionID, At: cmd.At}}, newState, nil
}

func confirm(s State, cmd Command) ([]Event, State, error) {
	switch s.Status {
	case types.StatusDrafting:
		return nil, s, ErrDraftNotComplete
	case types.StatusAwaitingConfirmation:
	default:
		return nil, s, ErrDraftClosed
	}
	seat, ok := s.seatOf(cmd.Player)
	if !ok {
		return nil, s, ErrNotSeated
	}
	if s.Confirmations[seat] {
		return nil, s, nil
	}

	newState := s.Clone()
	newState.Confirmations[seat] = true
	events := []Event{{Type: EvtPlayerConfirmed, Player: seat, At: cmd.At}}

	if len(newState.Confirmations) == newState.TotalPlayers() {
		newState.Status = types.StatusInProgress
		events = append(events, Event{Type: EvtGameStarted, At: cmd.At})
	}
	return events, newState, nil
}

// Reduce rebuilds a draft from its persisted event log.
func Reduce(matchID string, team1, team2 []types.PlayerID, order []TurnStep, events []Event) (State, error) {
	s, err := NewState(matchID, team1, team2, order)
	if err != nil {
		return State{}, err
	}
	for _, event := range events {
		switch event.Type {
		case EvtChampionPicked, EvtChampionBanned:
			if event.Index >= 0 && event.Index < len(s.Actions) {
				at := event.At
				s.Actions[event.Index].ChampionID = event.ChampionID
				s.Actions[event.Index].CompletedAt = &at
			}
		case EvtTurnAdvanced:
			s.Cursor++
		case EvtDraftCompleted:
			s.Status = types.StatusAwaitingConfirmation
		case EvtPickChanged:
			if event.Index >= 0 && event.Index < len(s.Actions) {
				s.Actions[event.Index].ChampionID = event.ChampionID
			}
		case EvtPlayerConfirmed:
			s.Confirmations[event.Player] = true
		case EvtGameStarted:
			s.Status = types.StatusInProgress
		case EvtDraftCancelled:
			s.Status = types.StatusCancelled
		}
	}
	return s, nil
}

func hasPick(s State, championID string, skip int) bool {
	for i, a := range s.Actions {
		if i == skip || a.Action != ActionPick {
			continue
		}
		if a.ChampionID == championID {
			return true
		}
	}
	return false
}

func completedPickOf(s State, player types.PlayerID) int {
	for i := 0; i < s.Cursor && i < len(s.Actions); i++ {
		a := s.Actions[i]
		if a.Action == ActionPick && a.Seat.Equal(player) {
			return i
		}
	}
	return -1
}

func currentStep(s State) (DraftAction, bool) {
	if s.Cursor >= len(s.Actions) {
		return DraftAction{}, true
	}
	return s.Actions[s.Cursor], false
}
