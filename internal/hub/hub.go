// Package hub is the draft engine's front door: it owns the directory of live
// lobbies, creates matches from grouped players and rebuilds drafts on boot.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/engine"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/lobby"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

var ErrInvalidRoster = types.Validation("a match needs two distinct teams of five")

type Store interface {
	lobby.Persister
	SaveMatch(ctx context.Context, m types.Match) error
	FindMatch(ctx context.Context, id string) (types.Match, error)
	UpdateMatchStatus(ctx context.Context, id string, status types.MatchStatus) error
	ListActiveMatches(ctx context.Context) ([]types.Match, error)
	FindActiveMatchByPlayer(ctx context.Context, p types.PlayerID) (types.Match, bool, error)
	LoadDraft(ctx context.Context, id string) (json.RawMessage, error)
}

type HubMsg interface{ isHubMsg() }

type AddLobby struct {
	Lobby *lobby.Lobby
	Reply chan bool
}

type GetLobby struct {
	MatchID string
	Reply   chan *lobby.Lobby
}

type CountLobbies struct {
	Reply chan int
}

type ShutdownHub struct{}

func (AddLobby) isHubMsg()     {}
func (GetLobby) isHubMsg()     {}
func (CountLobbies) isHubMsg() {}
func (ShutdownHub) isHubMsg()  {}

type Config struct {
	Store     Store
	Notify    lobby.Notifier
	Starter   lobby.GameStarter
	Order     []engine.TurnStep
	IOTimeout time.Duration
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	cfg     Config
	log     *zap.Logger
	now     func() time.Time
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewHub(parent context.Context, cfg Config, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Order == nil {
		cfg.Order = engine.GameOrder
	}
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		cfg:     cfg,
		log:     log.Named("hub"),
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case AddLobby:
				id := msg.Lobby.ID()
				if lb := h.lobbies[id]; lb != nil && !lb.Closed() {
					msg.Reply <- false
					break
				}
				h.lobbies[id] = msg.Lobby
				msg.Reply <- true

			case GetLobby:
				lb := h.lobbies[msg.MatchID]
				if lb != nil && lb.Closed() {
					delete(h.lobbies, msg.MatchID)
					lb = nil
				}
				msg.Reply <- lb // May be nil

			case CountLobbies:
				n := 0
				for id, lb := range h.lobbies {
					if lb.Closed() {
						delete(h.lobbies, id)
						continue
					}
					n++
				}
				msg.Reply <- n

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Stop()
	}
	clear(h.lobbies)
	h.cancel()
}

// Shutdown stops every lobby and the directory loop.
func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.done:
	}
	<-h.done
}

func (h *Hub) add(ctx context.Context, lb *lobby.Lobby) (bool, error) {
	reply := make(chan bool, 1)
	if err := h.send(ctx, AddLobby{Lobby: lb, Reply: reply}); err != nil {
		return false, err
	}
	select {
	case ok := <-reply:
		return ok, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (h *Hub) get(ctx context.Context, matchID string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, GetLobby{MatchID: matchID, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case lb := <-reply:
		return lb, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) send(ctx context.Context, msg HubMsg) error {
	select {
	case h.inbox <- msg:
		return nil
	case <-h.done:
		return types.Unavailable("draft engine is shutting down")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveDrafts is the number of live draft sessions.
func (h *Hub) ActiveDrafts(ctx context.Context) int {
	reply := make(chan int, 1)
	if err := h.send(ctx, CountLobbies{Reply: reply}); err != nil {
		return 0
	}
	select {
	case n := <-reply:
		return n
	case <-ctx.Done():
		return 0
	}
}

func (h *Hub) newLobby(state engine.State, history []engine.Event) *lobby.Lobby {
	return lobby.NewLobby(h.ctx, state, history, lobby.Deps{
		Persist:   h.cfg.Store,
		Notify:    h.cfg.Notify,
		Starter:   h.cfg.Starter,
		Log:       h.log,
		IOTimeout: h.cfg.IOTimeout,
	})
}

type MatchFoundPayload struct {
	MatchID string           `json:"match_id"`
	Team1   []types.PlayerID `json:"team1"`
	Team2   []types.PlayerID `json:"team2"`
	Draft   engine.View      `json:"draft"`
}

// CreateMatch persists a new match for the two rosters, opens its draft and
// tells all ten players.
func (h *Hub) CreateMatch(ctx context.Context, team1, team2 []types.PlayerID) (types.Match, error) {
	if err := checkRosters(team1, team2); err != nil {
		return types.Match{}, err
	}

	id := uuid.NewString()
	state, err := engine.NewState(id, team1, team2, h.cfg.Order)
	if err != nil {
		return types.Match{}, err
	}
	m := types.Match{
		ID:        id,
		Team1:     state.Team1,
		Team2:     state.Team2,
		CreatedAt: h.now().UTC(),
		Status:    types.StatusDrafting,
	}
	if err := h.cfg.Store.SaveMatch(ctx, m); err != nil {
		return types.Match{}, fmt.Errorf("save match: %w", err)
	}

	lb := h.newLobby(state, nil)
	if _, err := h.add(ctx, lb); err != nil {
		lb.Stop()
		if uerr := h.cfg.Store.UpdateMatchStatus(context.WithoutCancel(ctx), id, types.StatusCancelled); uerr != nil {
			h.log.Error("cancel orphaned match", zap.String("match_id", id), zap.Error(uerr))
		}
		return types.Match{}, err
	}

	h.log.Info("match created", zap.String("match_id", id),
		zap.Strings("team1", playerStrings(team1)), zap.Strings("team2", playerStrings(team2)))

	if h.cfg.Notify != nil {
		h.cfg.Notify.SendTo(ctx, m.Players(), types.EventMatchFound, MatchFoundPayload{
			MatchID: id,
			Team1:   m.Team1,
			Team2:   m.Team2,
			Draft:   state.View(0),
		})
	}
	return m, nil
}

func checkRosters(team1, team2 []types.PlayerID) error {
	if len(team1) != types.TeamSize || len(team2) != types.TeamSize {
		return ErrInvalidRoster
	}
	seen := make(map[types.PlayerID]bool, 2*types.TeamSize)
	for _, p := range append(append([]types.PlayerID(nil), team1...), team2...) {
		if p == "" || seen[p] {
			return ErrInvalidRoster
		}
		seen[p] = true
	}
	return nil
}

// lobbyFor resolves a live lobby or explains why there is none.
func (h *Hub) lobbyFor(ctx context.Context, matchID string) (*lobby.Lobby, error) {
	lb, err := h.get(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if lb != nil {
		return lb, nil
	}
	if _, err := h.cfg.Store.FindMatch(ctx, matchID); err != nil {
		if errors.Is(err, types.ErrMatchNotFound) {
			return nil, types.ErrMatchNotFound
		}
		return nil, fmt.Errorf("find match: %w", err)
	}
	return nil, engine.ErrDraftClosed
}

func (h *Hub) ProcessAction(ctx context.Context, matchID string, index int, championID string, player types.PlayerID) (engine.View, error) {
	lb, err := h.lobbyFor(ctx, matchID)
	if err != nil {
		return engine.View{}, err
	}
	res, err := lb.Do(ctx, engine.Command{
		Type:       engine.CmdProcessAction,
		Index:      index,
		Player:     player,
		ChampionID: championID,
	})
	return res.View, err
}

// ChangePick swaps the champion of player's completed pick. A player without a
// completed pick is a no-op, not an error.
func (h *Hub) ChangePick(ctx context.Context, matchID string, player types.PlayerID, championID string) (engine.View, error) {
	lb, err := h.lobbyFor(ctx, matchID)
	if err != nil {
		return engine.View{}, err
	}
	res, err := lb.Do(ctx, engine.Command{
		Type:       engine.CmdChangePick,
		Player:     player,
		ChampionID: championID,
	})
	if errors.Is(err, engine.ErrNoCompletedPick) {
		return res.View, nil
	}
	return res.View, err
}

type ConfirmResult struct {
	AllConfirmed   bool `json:"all_confirmed"`
	ConfirmedCount int  `json:"confirmed_count"`
	TotalPlayers   int  `json:"total_players"`
}

func (h *Hub) ConfirmFinal(ctx context.Context, matchID string, player types.PlayerID) (ConfirmResult, error) {
	lb, err := h.lobbyFor(ctx, matchID)
	if err != nil {
		return ConfirmResult{}, err
	}
	res, err := lb.Do(ctx, engine.Command{Type: engine.CmdConfirm, Player: player})
	if err != nil {
		return ConfirmResult{}, err
	}
	return ConfirmResult{
		AllConfirmed:   res.View.Status == types.StatusInProgress,
		ConfirmedCount: res.View.ConfirmedCount,
		TotalPlayers:   res.View.TotalPlayers,
	}, nil
}

// CancelMatch aborts a draft. by is the requesting seat; empty means an
// administrative cancel.
func (h *Hub) CancelMatch(ctx context.Context, matchID string, by types.PlayerID) error {
	lb, err := h.lobbyFor(ctx, matchID)
	if err != nil {
		return err
	}
	if by != "" {
		v := lb.View(ctx)
		if !seated(v, by) {
			return engine.ErrNotSeated
		}
	}
	_, err = lb.Do(ctx, engine.Command{Type: engine.CmdCancel, Player: by})
	if err == nil {
		h.log.Info("match cancelled", zap.String("match_id", matchID), zap.String("by", by.String()))
	}
	return err
}

// Snapshot never fails; a match without a live draft reports Exists=false.
func (h *Hub) Snapshot(ctx context.Context, matchID string) engine.View {
	lb, err := h.get(ctx, matchID)
	if err != nil || lb == nil {
		return engine.View{MatchID: matchID}
	}
	return lb.View(ctx)
}

// IsSeated reports whether p holds a seat in any non-terminal match.
func (h *Hub) IsSeated(ctx context.Context, p types.PlayerID) (bool, error) {
	_, ok, err := h.cfg.Store.FindActiveMatchByPlayer(ctx, p)
	return ok, err
}

// LoadFromPersistence reopens every draft that was live when the process
// stopped. Matches that fail to rebuild are logged and skipped.
func (h *Hub) LoadFromPersistence(ctx context.Context) (int, error) {
	matches, err := h.cfg.Store.ListActiveMatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active matches: %w", err)
	}

	loaded := 0
	for _, m := range matches {
		if !m.Status.Drafting() {
			continue
		}
		mlog := h.log.With(zap.String("match_id", m.ID))

		raw, err := h.cfg.Store.LoadDraft(ctx, m.ID)
		if err != nil {
			mlog.Error("load draft log", zap.Error(err))
			continue
		}
		var history []engine.Event
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &history); err != nil {
				mlog.Error("decode draft log", zap.Error(err))
				continue
			}
		}
		state, err := engine.Reduce(m.ID, m.Team1, m.Team2, h.cfg.Order, history)
		if err != nil {
			mlog.Error("rebuild draft", zap.Error(err))
			continue
		}
		if err := engine.CheckInvariants(state); err != nil {
			mlog.Error("rebuilt draft is inconsistent", zap.Error(err))
			continue
		}

		lb := h.newLobby(state, history)
		ok, err := h.add(ctx, lb)
		if err != nil {
			lb.Stop()
			return loaded, err
		}
		if !ok {
			lb.Stop()
			continue
		}
		loaded++
	}
	h.log.Info("drafts restored", zap.Int("count", loaded))
	return loaded, nil
}

func seated(v engine.View, p types.PlayerID) bool {
	for _, q := range append(append([]types.PlayerID(nil), v.Team1...), v.Team2...) {
		if q.Equal(p) {
			return true
		}
	}
	return false
}

func playerStrings(ps []types.PlayerID) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.String()
	}
	return out
}
