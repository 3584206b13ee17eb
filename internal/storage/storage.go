// Package storage is the durable store for matches, queue entries and votes.
package storage

import (
	"context"
	"encoding/json"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

var ErrDuplicate = types.Conflict("record already exists")

type Persistence interface {
	SaveMatch(ctx context.Context, m types.Match) error
	FindMatch(ctx context.Context, id string) (types.Match, error)
	ListActiveMatches(ctx context.Context) ([]types.Match, error)
	FindActiveMatchByPlayer(ctx context.Context, p types.PlayerID) (types.Match, bool, error)
	UpdateMatchStatus(ctx context.Context, id string, status types.MatchStatus) error
	SaveDraft(ctx context.Context, id string, status types.MatchStatus, log json.RawMessage) error
	LoadDraft(ctx context.Context, id string) (json.RawMessage, error)
	SaveOutcome(ctx context.Context, id string, outcome types.Outcome) error

	SaveQueueEntry(ctx context.Context, e types.QueueEntry) error
	DeleteQueueEntries(ctx context.Context, players ...types.PlayerID) error
	ListQueueEntries(ctx context.Context) ([]types.QueueEntry, error)

	SaveVote(ctx context.Context, v types.Vote) error
	DeleteVote(ctx context.Context, matchID string, p types.PlayerID) error
	ListVotes(ctx context.Context, matchID string) ([]types.Vote, error)
}

var activeStatuses = []string{
	string(types.StatusDrafting),
	string(types.StatusAwaitingConfirmation),
	string(types.StatusInProgress),
}
