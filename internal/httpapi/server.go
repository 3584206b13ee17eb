// Package httpapi exposes the queue, draft and vote operations over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/engine"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/hub"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/queue"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/registry"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/vote"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/ws"
)

var ErrAdminOnly = types.Denied("admin only")

type Queue interface {
	Join(ctx context.Context, req queue.JoinRequest) (types.QueueEntry, error)
	Leave(ctx context.Context, p types.PlayerID) bool
	Status(requesting types.PlayerID) queue.Status
	AddBot(ctx context.Context, region string) (types.QueueEntry, error)
	ResetBotCounter()
	Reset(ctx context.Context) (int, error)
}

type Drafts interface {
	ProcessAction(ctx context.Context, matchID string, index int, championID string, p types.PlayerID) (engine.View, error)
	ChangePick(ctx context.Context, matchID string, p types.PlayerID, championID string) (engine.View, error)
	ConfirmFinal(ctx context.Context, matchID string, p types.PlayerID) (hub.ConfirmResult, error)
	CancelMatch(ctx context.Context, matchID string, by types.PlayerID) error
	Snapshot(ctx context.Context, matchID string) engine.View
	ActiveDrafts(ctx context.Context) int
}

type Votes interface {
	CastVote(ctx context.Context, matchID string, p types.PlayerID, candidateID string) (vote.CastResult, error)
	RemoveVote(ctx context.Context, matchID string, p types.PlayerID) error
	Tally(ctx context.Context, matchID string) (vote.TallyView, error)
	LinkMatch(ctx context.Context, matchID, candidateID string, rec *types.GameRecord, by types.PlayerID) (vote.LinkResult, error)
}

type Sessions interface {
	ws.Registry
	ActiveCount(ctx context.Context) int
	Stats() registry.Stats
}

// Admins decides who may call the admin routes and force a link. A nil
// Admins leaves them open.
type Admins interface {
	IsPrivileged(p types.PlayerID) bool
}

type Deps struct {
	Queue    Queue
	Drafts   Drafts
	Votes    Votes
	Sessions Sessions
	Admins   Admins
	WS       ws.Options
}

type Server struct {
	deps Deps
	log  *zap.Logger
}

func NewServer(deps Deps, log *zap.Logger) *Server {
	return &Server{deps: deps, log: log.Named("http")}
}

func (s *Server) isAdmin(p types.PlayerID) bool {
	if s.deps.Admins == nil {
		return true
	}
	return p != "" && s.deps.Admins.IsPrivileged(p)
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status       string         `json:"status"`
		Online       int            `json:"online"`
		ActiveDrafts int            `json:"active_drafts"`
		Queued       int            `json:"queued"`
		Registry     registry.Stats `json:"registry"`
	}{
		Status:       "ok",
		Online:       s.deps.Sessions.ActiveCount(r.Context()),
		ActiveDrafts: s.deps.Drafts.ActiveDrafts(r.Context()),
		Queued:       s.deps.Queue.Status("").Count,
		Registry:     s.deps.Sessions.Stats(),
	})
}
