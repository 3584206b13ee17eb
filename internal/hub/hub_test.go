package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/engine"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/storage"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

type countingNotifier struct {
	mu     sync.Mutex
	events map[string]int
}

func (n *countingNotifier) SendTo(_ context.Context, players []types.PlayerID, event string, _ any) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.events == nil {
		n.events = map[string]int{}
	}
	n.events[event]++
	return len(players)
}

func (n *countingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[event]
}

func roster(prefix string) []types.PlayerID {
	out := make([]types.PlayerID, types.TeamSize)
	for i := range out {
		out[i] = types.PlayerID(fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}

func newTestHub(t *testing.T, store *storage.Memory, n *countingNotifier) *Hub {
	t.Helper()
	h := NewHub(context.Background(), Config{Store: store, Notify: n}, zap.NewNop())
	t.Cleanup(h.Shutdown)
	return h
}

func TestHub_CreateMatch_PersistsAndNotifies(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	n := &countingNotifier{}
	h := newTestHub(t, store, n)

	m, err := h.CreateMatch(ctx, roster("a"), roster("b"))
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	saved, err := store.FindMatch(ctx, m.ID)
	if err != nil || saved.Status != types.StatusDrafting {
		t.Fatalf("expected drafting row, got %+v err=%v", saved, err)
	}
	if n.count(types.EventMatchFound) != 1 {
		t.Fatalf("expected one match_found push")
	}
	if v := h.Snapshot(ctx, m.ID); !v.Exists || v.CurrentIndex != 0 {
		t.Fatalf("expected live draft, got %+v", v)
	}
	if seated, _ := h.IsSeated(ctx, "a3"); !seated {
		t.Fatalf("a3 should be seated")
	}
}

func TestHub_CreateMatch_RejectsBadRosters(t *testing.T) {
	h := newTestHub(t, storage.NewMemory(), &countingNotifier{})
	dup := roster("b")
	dup[4] = "a0"
	cases := map[string][2][]types.PlayerID{
		"short":     {roster("a")[:4], roster("b")},
		"duplicate": {roster("a"), dup},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := h.CreateMatch(context.Background(), tc[0], tc[1]); !errors.Is(err, ErrInvalidRoster) {
				t.Fatalf("want ErrInvalidRoster, got %v", err)
			}
		})
	}
}

func TestHub_UnknownMatch(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, storage.NewMemory(), &countingNotifier{})

	if _, err := h.ProcessAction(ctx, "nope", 0, "Ahri", "a0"); !errors.Is(err, types.ErrMatchNotFound) {
		t.Fatalf("want ErrMatchNotFound, got %v", err)
	}
	if v := h.Snapshot(ctx, "nope"); v.Exists {
		t.Fatalf("unknown match should report exists=false")
	}
}

func TestHub_WrongSeatThenRightSeat(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, storage.NewMemory(), &countingNotifier{})
	m, err := h.CreateMatch(ctx, roster("a"), roster("b"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	first := h.Snapshot(ctx, m.ID).Actions[0].Seat
	other := m.Team2[4]

	if _, err := h.ProcessAction(ctx, m.ID, 0, "Ahri", other); !errors.Is(err, engine.ErrWrongSeat) {
		t.Fatalf("want ErrWrongSeat, got %v", err)
	}
	v, err := h.ProcessAction(ctx, m.ID, 0, "Ahri", first)
	if err != nil {
		t.Fatalf("right seat rejected: %v", err)
	}
	if v.CurrentIndex != 1 {
		t.Fatalf("want index 1, got %d", v.CurrentIndex)
	}
}

func TestHub_ChangePickWithoutPickIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newTestHub(t, storage.NewMemory(), &countingNotifier{})
	m, _ := h.CreateMatch(ctx, roster("a"), roster("b"))

	v, err := h.ChangePick(ctx, m.ID, "a0", "Ahri")
	if err != nil {
		t.Fatalf("want silent no-op, got %v", err)
	}
	if v.Version != 0 {
		t.Fatalf("no-op must not bump version, got %d", v.Version)
	}
}

func TestHub_ConfirmAndCancelAfterStart(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	n := &countingNotifier{}
	h := newTestHub(t, store, n)
	m, _ := h.CreateMatch(ctx, roster("a"), roster("b"))

	for i, a := range h.Snapshot(ctx, m.ID).Actions {
		if _, err := h.ProcessAction(ctx, m.ID, i, fmt.Sprintf("c%d", i), a.Seat); err != nil {
			t.Fatalf("action %d: %v", i, err)
		}
	}

	var res ConfirmResult
	for i, p := range m.Players() {
		var err error
		res, err = h.ConfirmFinal(ctx, m.ID, p)
		if err != nil {
			t.Fatalf("confirm %s: %v", p, err)
		}
		if i == 0 {
			again, err := h.ConfirmFinal(ctx, m.ID, p)
			if err != nil || again.ConfirmedCount != 1 {
				t.Fatalf("re-confirm should be idempotent, got %+v err=%v", again, err)
			}
		}
	}
	if !res.AllConfirmed || res.ConfirmedCount != 10 || res.TotalPlayers != 10 {
		t.Fatalf("unexpected final confirm result %+v", res)
	}

	saved, _ := store.FindMatch(ctx, m.ID)
	if saved.Status != types.StatusInProgress {
		t.Fatalf("want in-progress persisted, got %s", saved.Status)
	}
	if n.count(types.EventGameStarted) != 1 {
		t.Fatalf("expected game_started push")
	}

	deadline := time.Now().Add(time.Second)
	for h.Snapshot(ctx, m.ID).Exists && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := h.CancelMatch(ctx, m.ID, ""); !errors.Is(err, engine.ErrDraftClosed) {
		t.Fatalf("want ErrDraftClosed for in-progress match, got %v", err)
	}
}

func TestHub_CancelMatch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	n := &countingNotifier{}
	h := newTestHub(t, store, n)
	m, _ := h.CreateMatch(ctx, roster("a"), roster("b"))

	if err := h.CancelMatch(ctx, m.ID, "stranger"); !errors.Is(err, engine.ErrNotSeated) {
		t.Fatalf("want ErrNotSeated, got %v", err)
	}
	if err := h.CancelMatch(ctx, m.ID, "b2"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if n.count(types.EventMatchCancelled) != 1 {
		t.Fatalf("expected match_cancelled push")
	}
	if seated, _ := h.IsSeated(ctx, "b2"); seated {
		t.Fatalf("seats must be released after cancel")
	}
}

func TestHub_LoadFromPersistence(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()

	m := types.Match{ID: "m-restore", Team1: roster("a"), Team2: roster("b"), Status: types.StatusDrafting, CreatedAt: time.Now()}
	if err := store.SaveMatch(ctx, m); err != nil {
		t.Fatalf("save: %v", err)
	}
	plan, _ := engine.NewPlan(m.Team1, m.Team2, engine.GameOrder)
	history := []engine.Event{
		{Type: engine.EvtChampionBanned, Index: 0, Player: plan[0].Seat, ChampionID: "Zed", At: time.Now()},
		{Type: engine.EvtTurnAdvanced, At: time.Now()},
	}
	raw, _ := json.Marshal(history)
	if err := store.SaveDraft(ctx, m.ID, types.StatusDrafting, raw); err != nil {
		t.Fatalf("save draft: %v", err)
	}

	h := newTestHub(t, store, &countingNotifier{})
	n, err := h.LoadFromPersistence(ctx)
	if err != nil || n != 1 {
		t.Fatalf("want 1 restored draft, got %d err=%v", n, err)
	}
	v := h.Snapshot(ctx, m.ID)
	if !v.Exists || v.CurrentIndex != 1 || v.Actions[0].ChampionID != "Zed" {
		t.Fatalf("restored draft mismatch: %+v", v)
	}
	if h.ActiveDrafts(ctx) != 1 {
		t.Fatalf("want one active draft")
	}

	// a second load must not duplicate the live lobby
	if n, _ := h.LoadFromPersistence(ctx); n != 0 {
		t.Fatalf("reload should skip live drafts, got %d", n)
	}
}
