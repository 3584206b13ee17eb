// Package gateway holds the clients for systems outside the service: the
// local game-client bridge, the voice bot and the privileged voter list.
package gateway

import (
	"context"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

var (
	ErrGameClientUnavailable = types.Unavailable("game client unreachable")
	ErrVoiceUnavailable      = types.Unavailable("voice bot unreachable")
)

type GameClientGateway interface {
	IsConnected(ctx context.Context, p types.PlayerID) (bool, error)
	RequestCurrentGameRecord(ctx context.Context, p types.PlayerID) (types.GameRecord, bool, error)
	RequestMatchHistory(ctx context.Context, p types.PlayerID) ([]types.GameRecord, error)
	StartGame(ctx context.Context, m types.Match) error
}

type VoicePresenceGateway interface {
	IsBotActive(ctx context.Context) (bool, error)
	IsPlayerInMonitoredChannel(ctx context.Context, p types.PlayerID) (bool, error)
}

type PrivilegedVoterDirectory interface {
	GetWeight(p types.PlayerID) int
	IsPrivileged(p types.PlayerID) bool
}

// AlwaysOnline stands in for both integrations when they are not configured.
// Every player is connected and present; no game records exist.
type AlwaysOnline struct{}

func (AlwaysOnline) IsConnected(context.Context, types.PlayerID) (bool, error) { return true, nil }

func (AlwaysOnline) RequestCurrentGameRecord(context.Context, types.PlayerID) (types.GameRecord, bool, error) {
	return types.GameRecord{}, false, nil
}

func (AlwaysOnline) RequestMatchHistory(context.Context, types.PlayerID) ([]types.GameRecord, error) {
	return nil, nil
}

func (AlwaysOnline) StartGame(context.Context, types.Match) error { return nil }

func (AlwaysOnline) IsBotActive(context.Context) (bool, error) { return true, nil }

func (AlwaysOnline) IsPlayerInMonitoredChannel(context.Context, types.PlayerID) (bool, error) {
	return true, nil
}
