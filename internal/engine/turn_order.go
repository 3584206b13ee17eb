package engine

import "github.com/DoyleJ11/lol-inhouse-backend/internal/types"

// GameOrder is the tournament draft: each seat owns one ban and one pick.
// Seat is the index into the team roster.
var GameOrder = []TurnStep{
	// Ban Phase 1
	{Team: types.Team1, Action: ActionBan, Seat: 0},
	{Team: types.Team2, Action: ActionBan, Seat: 0},
	{Team: types.Team1, Action: ActionBan, Seat: 1},
	{Team: types.Team2, Action: ActionBan, Seat: 1},
	{Team: types.Team1, Action: ActionBan, Seat: 2},
	{Team: types.Team2, Action: ActionBan, Seat: 2},
	// Pick Phase 1
	{Team: types.Team1, Action: ActionPick, Seat: 0},
	{Team: types.Team2, Action: ActionPick, Seat: 0},
	{Team: types.Team2, Action: ActionPick, Seat: 1},
	{Team: types.Team1, Action: ActionPick, Seat: 1},
	{Team: types.Team1, Action: ActionPick, Seat: 2},
	{Team: types.Team2, Action: ActionPick, Seat: 2},
	// Ban Phase 2
	{Team: types.Team2, Action: ActionBan, Seat: 3},
	{Team: types.Team1, Action: ActionBan, Seat: 3},
	{Team: types.Team2, Action: ActionBan, Seat: 4},
	{Team: types.Team1, Action: ActionBan, Seat: 4},
	// Pick Phase 2
	{Team: types.Team2, Action: ActionPick, Seat: 3},
	{Team: types.Team1, Action: ActionPick, Seat: 3},
	{Team: types.Team1, Action: ActionPick, Seat: 4},
	{Team: types.Team2, Action: ActionPick, Seat: 4},
}

// NewPlan binds every step of order to the seated player.
func NewPlan(team1, team2 []types.PlayerID, order []TurnStep) ([]DraftAction, error) {
	actions := make([]DraftAction, 0, len(order))
	for i, step := range order {
		roster := team1
		if step.Team == types.Team2 {
			roster = team2
		}
		if step.Seat < 0 || step.Seat >= len(roster) {
			return nil, ErrInvalidPlan
		}
		actions = append(actions, DraftAction{
			Index:  i,
			Team:   step.Team,
			Action: step.Action,
			Seat:   roster[step.Seat],
		})
	}
	return actions, nil
}
