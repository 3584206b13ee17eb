package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

func roster(prefix string) []types.PlayerID {
	out := make([]types.PlayerID, types.TeamSize)
	for i := range out {
		out[i] = types.PlayerID(fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}

func newTestState(t *testing.T, order []TurnStep) State {
	t.Helper()
	s, err := NewState("m1", roster("blue"), roster("red"), order)
	if err != nil {
		t.Fatalf("NewState: %v", err)
	}
	return s
}

// play completes actions until the cursor reaches stop, using unique champions.
func play(t *testing.T, s State, stop int) State {
	t.Helper()
	for s.Cursor < stop {
		step, _ := currentStep(s)
		_, next, err := Apply(s, Command{
			Type:       CmdProcessAction,
			Index:      s.Cursor,
			Player:     step.Seat,
			ChampionID: fmt.Sprintf("champ-%d", s.Cursor),
		})
		if err != nil {
			t.Fatalf("play step %d: %v", s.Cursor, err)
		}
		s = next
	}
	return s
}

// scenarioOrder puts Bob on index 3 and picks on 2 and 5.
var scenarioOrder = []TurnStep{
	{Team: types.Team1, Action: ActionBan, Seat: 0},
	{Team: types.Team2, Action: ActionBan, Seat: 0},
	{Team: types.Team1, Action: ActionPick, Seat: 0},
	{Team: types.Team2, Action: ActionBan, Seat: 1},
	{Team: types.Team2, Action: ActionPick, Seat: 0},
	{Team: types.Team2, Action: ActionPick, Seat: 2},
	{Team: types.Team1, Action: ActionBan, Seat: 1},
}

func TestProcessAction_WrongSeatThenRightSeat(t *testing.T) {
	team2 := []types.PlayerID{"dan", "bob", "erin", "finn", "gus"}
	s, err := NewState("m1", roster("blue"), team2, scenarioOrder)
	if err != nil {
		t.Fatal(err)
	}
	s = play(t, s, 3)

	_, after, err := Apply(s, Command{Type: CmdProcessAction, Index: 3, Player: "carol", ChampionID: "Ahri"})
	if !errors.Is(err, ErrWrongSeat) {
		t.Fatalf("want ErrWrongSeat, got %v", err)
	}
	if after.Cursor != 3 || after.Actions[3].Done() {
		t.Fatalf("rejected action mutated state: %+v", after.Actions[3])
	}

	_, after, err = Apply(s, Command{Type: CmdProcessAction, Index: 3, Player: "Bob", ChampionID: "Ahri"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if after.Cursor != 4 {
		t.Fatalf("want cursor 4, got %d", after.Cursor)
	}
	if err := CheckInvariants(after); err != nil {
		t.Fatal(err)
	}
}

func TestPickBanAsymmetry(t *testing.T) {
	s := newTestState(t, scenarioOrder)
	s = play(t, s, 2)

	_, s, err := Apply(s, Command{Type: CmdProcessAction, Index: 2, Player: s.Actions[2].Seat, ChampionID: "Ahri"})
	if err != nil {
		t.Fatal(err)
	}
	s = play(t, s, 5)

	cases := []struct {
		name    string
		order   Action
		wantErr error
	}{
		{name: "pick of an already picked champion is rejected", order: ActionPick, wantErr: ErrChampionTaken},
		{name: "ban of an already picked champion is accepted", order: ActionBan, wantErr: nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := s.Clone()
			st.Actions[5].Action = tc.order
			_, next, err := Apply(st, Command{Type: CmdProcessAction, Index: 5, Player: st.Actions[5].Seat, ChampionID: "Ahri"})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
			if err == nil && next.Cursor != 6 {
				t.Fatalf("want cursor 6, got %d", next.Cursor)
			}
		})
	}
}

func TestBanDoesNotBlockLaterPick(t *testing.T) {
	s := newTestState(t, nil)
	_, s, err := Apply(s, Command{Type: CmdProcessAction, Index: 0, Player: s.Actions[0].Seat, ChampionID: "Zed"})
	if err != nil {
		t.Fatal(err)
	}
	s = play(t, s, 6)

	_, s, err = Apply(s, Command{Type: CmdProcessAction, Index: 6, Player: s.Actions[6].Seat, ChampionID: "Zed"})
	if err != nil {
		t.Fatalf("pick after ban should be accepted, got %v", err)
	}
	if s.Actions[6].ChampionID != "Zed" {
		t.Fatalf("want Zed at 6, got %q", s.Actions[6].ChampionID)
	}
}

func TestTurnOrder_RejectsOutOfOrderAction(t *testing.T) {
	s := newTestState(t, nil)
	for _, idx := range []int{-1, 1, 5, len(GameOrder)} {
		_, after, err := Apply(s, Command{Type: CmdProcessAction, Index: idx, Player: s.Actions[0].Seat, ChampionID: "Ahri"})
		if !errors.Is(err, ErrWrongTurn) {
			t.Fatalf("index %d: want ErrWrongTurn, got %v", idx, err)
		}
		if after.Cursor != 0 || after.Actions[0].Done() {
			t.Fatalf("index %d: state mutated", idx)
		}
	}
}

func TestRejectionsAreDistinguishable(t *testing.T) {
	if errors.Is(ErrWrongTurn, ErrChampionTaken) || errors.Is(ErrWrongSeat, ErrChampionTaken) {
		t.Fatal("order and seat rejections must differ from champion rejections")
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	s := newTestState(t, nil)
	_, _, err := Apply(s, Command{Type: CmdProcessAction, Index: 0, Player: s.Actions[0].Seat, ChampionID: "Ahri"})
	if err != nil {
		t.Fatal(err)
	}
	if s.Cursor != 0 || s.Actions[0].Done() {
		t.Fatal("Apply mutated its input state")
	}
}

func TestApply_EmitsDraftCompletedOnLastStep(t *testing.T) {
	s := play(t, newTestState(t, nil), len(GameOrder)-1)
	step, _ := currentStep(s)

	events, s, err := Apply(s, Command{Type: CmdProcessAction, Index: s.Cursor, Player: step.Seat, ChampionID: "last"})
	if err != nil {
		t.Fatalf("unexpected err %v", err)
	}
	if !ContainsEvent(events, EvtDraftCompleted) {
		t.Fatalf("expected EvtDraftCompleted")
	}
	if s.Status != types.StatusAwaitingConfirmation {
		t.Fatalf("want awaiting-confirmation, got %s", s.Status)
	}
	if _, done := currentStep(s); !done {
		t.Fatal("expected no current step")
	}
	if _, _, err := Apply(s, Command{Type: CmdProcessAction, Index: s.Cursor, Player: step.Seat, ChampionID: "x"}); !errors.Is(err, ErrDraftClosed) {
		t.Fatalf("want ErrDraftClosed, got %v", err)
	}
}

func TestChangePick(t *testing.T) {
	s := play(t, newTestState(t, nil), 8)
	owner := s.Actions[6].Seat

	cases := []struct {
		name     string
		player   types.PlayerID
		champion string
		wantErr  error
		wantAt6  string
	}{
		{name: "owner swaps to a free champion", player: owner, champion: "Lux", wantAt6: "Lux"},
		{name: "owner cannot take another pick", player: owner, champion: s.Actions[7].ChampionID, wantErr: ErrChampionTaken, wantAt6: "champ-6"},
		{name: "owner may take a banned champion", player: owner, champion: s.Actions[0].ChampionID, wantAt6: "champ-0"},
		{name: "player without a completed pick", player: s.Actions[9].Seat, champion: "Lux", wantErr: ErrNoCompletedPick, wantAt6: "champ-6"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, next, err := Apply(s, Command{Type: CmdChangePick, Player: tc.player, ChampionID: tc.champion})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
			if next.Actions[6].ChampionID != tc.wantAt6 {
				t.Fatalf("action 6: got %q, want %q", next.Actions[6].ChampionID, tc.wantAt6)
			}
			if next.Cursor != s.Cursor {
				t.Fatalf("change pick moved the cursor")
			}
		})
	}
}

func TestConfirm_GateAndIdempotence(t *testing.T) {
	s := newTestState(t, nil)
	if _, _, err := Apply(s, Command{Type: CmdConfirm, Player: s.Team1[0]}); !errors.Is(err, ErrDraftNotComplete) {
		t.Fatalf("want ErrDraftNotComplete, got %v", err)
	}

	s = play(t, s, len(GameOrder))
	if _, _, err := Apply(s, Command{Type: CmdConfirm, Player: "stranger"}); !errors.Is(err, ErrNotSeated) {
		t.Fatalf("want ErrNotSeated, got %v", err)
	}

	_, s, _ = Apply(s, Command{Type: CmdConfirm, Player: s.Team1[0]})
	events, s2, err := Apply(s, Command{Type: CmdConfirm, Player: "BLUE0"})
	if err != nil || len(events) != 0 || len(s2.Confirmations) != 1 {
		t.Fatalf("re-confirm should be a no-op: events=%v err=%v n=%d", events, err, len(s2.Confirmations))
	}

	players := append(append([]types.PlayerID(nil), s.Team1...), s.Team2...)
	var last []Event
	for _, p := range players[1:] {
		last, s, err = Apply(s, Command{Type: CmdConfirm, Player: p})
		if err != nil {
			t.Fatal(err)
		}
	}
	if !ContainsEvent(last, EvtGameStarted) || s.Status != types.StatusInProgress {
		t.Fatalf("want in-progress after ten confirmations, got %s", s.Status)
	}
}

func TestCancel(t *testing.T) {
	s := play(t, newTestState(t, nil), 4)
	_, s, err := Apply(s, Command{Type: CmdCancel})
	if err != nil || s.Status != types.StatusCancelled {
		t.Fatalf("cancel: status=%s err=%v", s.Status, err)
	}
	if _, _, err := Apply(s, Command{Type: CmdCancel}); !errors.Is(err, ErrDraftClosed) {
		t.Fatalf("second cancel: want ErrDraftClosed, got %v", err)
	}
	if _, _, err := Apply(s, Command{Type: CmdChangePick, Player: s.Team1[0], ChampionID: "x"}); !errors.Is(err, ErrDraftClosed) {
		t.Fatalf("change after cancel: want ErrDraftClosed, got %v", err)
	}
}

func TestReduce_RebuildsState(t *testing.T) {
	s := newTestState(t, nil)
	var log []Event
	apply := func(cmd Command) {
		t.Helper()
		events, next, err := Apply(s, cmd)
		if err != nil {
			t.Fatal(err)
		}
		log = append(log, events...)
		s = next
	}
	for s.Cursor < len(GameOrder) {
		apply(Command{Type: CmdProcessAction, Index: s.Cursor, Player: s.Actions[s.Cursor].Seat, ChampionID: fmt.Sprintf("c%d", s.Cursor)})
	}
	apply(Command{Type: CmdChangePick, Player: s.Actions[6].Seat, ChampionID: "swap"})
	apply(Command{Type: CmdConfirm, Player: s.Team2[3]})

	rebuilt, err := Reduce(s.MatchID, s.Team1, s.Team2, nil, log)
	if err != nil {
		t.Fatal(err)
	}
	if rebuilt.Cursor != s.Cursor || rebuilt.Status != s.Status {
		t.Fatalf("cursor/status: got %d/%s want %d/%s", rebuilt.Cursor, rebuilt.Status, s.Cursor, s.Status)
	}
	if rebuilt.Actions[6].ChampionID != "swap" || !rebuilt.Confirmations[s.Team2[3]] {
		t.Fatalf("rebuilt state lost changes: %+v", rebuilt.Actions[6])
	}
	if err := CheckInvariants(rebuilt); err != nil {
		t.Fatal(err)
	}
}

func TestPhase(t *testing.T) {
	s := newTestState(t, nil)
	cases := []struct {
		cursor int
		want   string
	}{
		{0, "ban1"}, {5, "ban1"}, {6, "pick1"}, {11, "pick1"}, {12, "ban2"}, {16, "pick2"}, {20, "done"},
	}
	for _, tc := range cases {
		if got := Phase(s.Actions, tc.cursor); got != tc.want {
			t.Fatalf("cursor %d: got %s, want %s", tc.cursor, got, tc.want)
		}
	}
}

func TestNewPlan_EverySeatBansAndPicksOnce(t *testing.T) {
	s := newTestState(t, nil)
	bans, picks := map[types.PlayerID]int{}, map[types.PlayerID]int{}
	for _, a := range s.Actions {
		if a.Action == ActionBan {
			bans[a.Seat]++
		} else {
			picks[a.Seat]++
		}
	}
	for _, p := range append(append([]types.PlayerID(nil), s.Team1...), s.Team2...) {
		if bans[p] != 1 || picks[p] != 1 {
			t.Fatalf("%s: bans=%d picks=%d", p, bans[p], picks[p])
		}
	}
	if _, err := NewState("m", roster("a")[:2], roster("b"), nil); !errors.Is(err, ErrInvalidPlan) {
		t.Fatalf("want ErrInvalidPlan for short roster, got %v", err)
	}
}
