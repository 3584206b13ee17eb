package queue

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

const (
	ReasonGameClientOffline = "game client offline"
	ReasonVoiceBotInactive  = "voice bot inactive"
	ReasonNotInVoiceChannel = "not in the required voice channel"
)

type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

type admissionCheck struct {
	reason string
	run    func(ctx context.Context) (bool, error)
}

// CanJoin runs the three admission checks concurrently, each under its own
// timeout. A check that errors or times out counts as failed. When several
// fail, the reason of the first in check order is reported.
func (c *Coordinator) CanJoin(ctx context.Context, p types.PlayerID) Decision {
	if !c.cfg.RequireAdmissions {
		return Decision{Allowed: true}
	}

	checks := []admissionCheck{
		{ReasonGameClientOffline, func(ctx context.Context) (bool, error) { return c.deps.Game.IsConnected(ctx, p) }},
		{ReasonVoiceBotInactive, c.deps.Voice.IsBotActive},
		{ReasonNotInVoiceChannel, func(ctx context.Context) (bool, error) {
			return c.deps.Voice.IsPlayerInMonitoredChannel(ctx, p)
		}},
	}

	passed := make([]bool, len(checks))
	var g errgroup.Group
	for i, chk := range checks {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, c.cfg.AdmissionTimeout)
			defer cancel()
			ok, err := chk.run(cctx)
			if err != nil {
				c.log.Warn("admission check failed",
					zap.String("player", p.String()),
					zap.String("check", chk.reason),
					zap.Error(err))
				return nil
			}
			passed[i] = ok
			return nil
		})
	}
	_ = g.Wait()

	for i, ok := range passed {
		if !ok {
			return Decision{Reason: checks[i].reason}
		}
	}
	return Decision{Allowed: true}
}

// awaitBinding waits until the player's push channel is identified, polling
// the registry until BindTimeout elapses.
func (c *Coordinator) awaitBinding(ctx context.Context, p types.PlayerID) error {
	if c.deps.Presence == nil || c.deps.Presence.IsOnline(ctx, p) {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.BindTimeout)
	defer cancel()
	ticker := time.NewTicker(c.cfg.BindPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				c.log.Info("session bind timed out", zap.String("player", p.String()))
				return ErrNoResponse
			}
			return ctx.Err()
		case <-ticker.C:
			if c.deps.Presence.IsOnline(ctx, p) {
				return nil
			}
		}
	}
}
