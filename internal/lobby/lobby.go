// Package lobby runs one draft per goroutine. Every mutation goes through the
// inbox, so a match has exactly one writer.
package lobby

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/engine"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

type Notifier interface {
	SendTo(ctx context.Context, players []types.PlayerID, event string, payload any) int
}

type Persister interface {
	SaveDraft(ctx context.Context, id string, status types.MatchStatus, log json.RawMessage) error
}

// GameStarter opens the external game session once every seat confirmed.
type GameStarter interface {
	StartGame(ctx context.Context, match types.Match) error
}

type Msg interface{ isLobbyMsg() }

type FromClient struct {
	Cmd   engine.Command
	Reply chan Result
}

func (FromClient) isLobbyMsg() {}

type GetState struct {
	Reply chan engine.View
}

func (GetState) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type Result struct {
	Events []engine.Event
	View   engine.View
	Err    error
}

type GameStartedPayload struct {
	MatchID string           `json:"match_id"`
	Team1   []types.PlayerID `json:"team1"`
	Team2   []types.PlayerID `json:"team2"`
	Started bool             `json:"started"`
	Reason  string           `json:"reason,omitempty"`
}

type CancelledPayload struct {
	MatchID string         `json:"match_id"`
	By      types.PlayerID `json:"by,omitempty"`
}

type Deps struct {
	Persist   Persister
	Notify    Notifier
	Starter   GameStarter
	Log       *zap.Logger
	IOTimeout time.Duration
}

type Lobby struct {
	id      string
	inbox   chan Msg
	state   engine.State
	log     []engine.Event
	version int
	deps    Deps
	zlog    *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLobby starts the actor. history is the event log that produced initial;
// it is kept so the full log can be persisted after every change.
func NewLobby(parent context.Context, initial engine.State, history []engine.Event, deps Deps) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if deps.IOTimeout <= 0 {
		deps.IOTimeout = 5 * time.Second
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}

	l := &Lobby{
		id:     initial.MatchID,
		inbox:  make(chan Msg, 64),
		state:  initial,
		log:    append([]engine.Event(nil), history...),
		deps:   deps,
		zlog:   deps.Log.With(zap.String("match_id", initial.MatchID)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	defer close(l.done)
	defer l.cancel()

	for {
		select {
		case <-l.ctx.Done():
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case FromClient:
				msg.Reply <- l.apply(msg.Cmd)
				// The session ends once the game starts or the match is cancelled.
				if !l.state.Status.Drafting() {
					l.zlog.Info("draft session closed", zap.String("status", string(l.state.Status)))
					return
				}

			case GetState:
				msg.Reply <- l.state.View(l.version)

			case Shutdown:
				return
			}
		}
	}
}

func (l *Lobby) apply(cmd engine.Command) Result {
	events, next, err := engine.Apply(l.state, cmd)
	if err != nil {
		return Result{View: l.state.View(l.version), Err: err}
	}
	if len(events) == 0 {
		return Result{View: l.state.View(l.version)}
	}

	// State is committed before any I/O; persistence and delivery are best-effort.
	l.state = next
	l.log = append(l.log, events...)
	l.version++
	l.persist()

	view := l.state.View(l.version)
	l.notify(types.EventDraftState, view)

	switch {
	case engine.ContainsEvent(events, engine.EvtGameStarted):
		l.startGame()
	case engine.ContainsEvent(events, engine.EvtDraftCancelled):
		l.notify(types.EventMatchCancelled, CancelledPayload{MatchID: l.state.MatchID, By: cmd.Player})
	}
	return Result{Events: events, View: view}
}

func (l *Lobby) persist() {
	if l.deps.Persist == nil {
		return
	}
	raw, err := json.Marshal(l.log)
	if err != nil {
		l.zlog.Error("encode draft log", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(l.ctx, l.deps.IOTimeout)
	defer cancel()
	if err := l.deps.Persist.SaveDraft(ctx, l.state.MatchID, l.state.Status, raw); err != nil {
		l.zlog.Error("persist draft", zap.Error(err), zap.Int("version", l.version))
	}
}

func (l *Lobby) notify(event string, payload any) {
	if l.deps.Notify == nil {
		return
	}
	ctx, cancel := context.WithTimeout(l.ctx, l.deps.IOTimeout)
	defer cancel()
	seats := append(append([]types.PlayerID(nil), l.state.Team1...), l.state.Team2...)
	delivered := l.deps.Notify.SendTo(ctx, seats, event, payload)
	l.zlog.Debug("notified seats", zap.String("event", event), zap.Int("delivered", delivered))
}

func (l *Lobby) startGame() {
	payload := GameStartedPayload{
		MatchID: l.state.MatchID,
		Team1:   l.state.Team1,
		Team2:   l.state.Team2,
		Started: true,
	}
	if l.deps.Starter != nil {
		ctx, cancel := context.WithTimeout(l.ctx, l.deps.IOTimeout)
		err := l.deps.Starter.StartGame(ctx, types.Match{
			ID:     l.state.MatchID,
			Team1:  l.state.Team1,
			Team2:  l.state.Team2,
			Status: l.state.Status,
		})
		cancel()
		if err != nil {
			l.zlog.Warn("start game", zap.Error(err))
			payload.Started = false
			payload.Reason = types.ReasonOf(err)
		}
	}
	l.notify(types.EventGameStarted, payload)
}

// Do sends cmd to the actor and waits for its result.
func (l *Lobby) Do(ctx context.Context, cmd engine.Command) (Result, error) {
	reply := make(chan Result, 1)
	select {
	case l.inbox <- FromClient{Cmd: cmd, Reply: reply}:
	case <-l.done:
		return Result{}, engine.ErrDraftClosed
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res, res.Err
	case <-l.done:
		select {
		case res := <-reply:
			return res, res.Err
		default:
			return Result{}, engine.ErrDraftClosed
		}
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// View returns the current draft view, or Exists=false once the actor stopped.
func (l *Lobby) View(ctx context.Context) engine.View {
	reply := make(chan engine.View, 1)
	select {
	case l.inbox <- GetState{Reply: reply}:
	case <-l.done:
		return engine.View{MatchID: l.id}
	case <-ctx.Done():
		return engine.View{MatchID: l.id}
	}
	select {
	case v := <-reply:
		return v
	case <-l.done:
		return engine.View{MatchID: l.id}
	case <-ctx.Done():
		return engine.View{MatchID: l.id}
	}
}

func (l *Lobby) ID() string { return l.id }

func (l *Lobby) Closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) Stop() {
	select {
	case l.inbox <- Shutdown{}:
	case <-l.done:
	}
}

// Inbox exposes the raw inbox for tests and the hub.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }
