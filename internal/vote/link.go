package vote

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

const (
	reasonNotVisible   = "link deferred: no participant can see the candidate record yet"
	reasonLookupFailed = "link deferred: record lookup failed"
)

type LinkedPayload struct {
	MatchID     string     `json:"match_id"`
	RecordID    string     `json:"record_id"`
	WinningTeam types.Team `json:"winning_team,omitempty"`
	DurationSec int        `json:"duration_sec,omitempty"`
	Override    bool       `json:"override,omitempty"`
}

type LinkResult struct {
	MatchID       string `json:"match_id"`
	RecordID      string `json:"record_id"`
	AlreadyLinked bool   `json:"already_linked"`
	Override      bool   `json:"override"`
	PreviousID    string `json:"previous_id,omitempty"`
}

func (l *Linker) autoLink(ctx context.Context, t *tally, voter types.PlayerID, candidateID string) (bool, string) {
	rec, err := l.lookup(ctx, t.match, voter, candidateID)
	if err != nil {
		l.log.Warn("automatic link deferred",
			zap.String("match_id", t.match.ID),
			zap.String("candidate_id", candidateID),
			zap.Error(err))
		if errors.Is(err, ErrRecordNotFound) {
			return false, reasonNotVisible
		}
		return false, reasonLookupFailed
	}

	t.mu.Lock()
	if t.linked != "" || t.latched != candidateID {
		linked := t.linked == candidateID
		t.mu.Unlock()
		return linked, ""
	}
	err = l.commit(ctx, t, rec)
	t.mu.Unlock()
	if err != nil {
		l.log.Error("automatic link failed", zap.String("match_id", t.match.ID), zap.Error(err))
		return false, reasonLookupFailed
	}

	l.log.Info("match linked",
		zap.String("match_id", t.match.ID),
		zap.String("record_id", rec.ID),
		zap.String("path", "automatic"))
	l.afterLink(ctx, t.match, rec, false)
	return true, ""
}

// lookup searches the voter's history first, then every other participant's
// in roster order. Each call is bounded by LookupTimeout.
func (l *Linker) lookup(ctx context.Context, m types.Match, first types.PlayerID, candidateID string) (types.GameRecord, error) {
	if l.deps.Lookup == nil {
		return types.GameRecord{}, ErrRecordNotFound
	}
	order := []types.PlayerID{}
	if first != "" {
		order = append(order, first)
	}
	for _, p := range m.Players() {
		if !p.Equal(first) {
			order = append(order, p)
		}
	}

	var lastErr error
	for _, p := range order {
		if err := ctx.Err(); err != nil {
			return types.GameRecord{}, err
		}
		lctx, cancel := context.WithTimeout(ctx, l.cfg.LookupTimeout)
		history, err := l.deps.Lookup.RequestMatchHistory(lctx, p)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		for _, rec := range history {
			if rec.ID == candidateID {
				return rec, nil
			}
		}
	}
	if lastErr != nil {
		return types.GameRecord{}, fmt.Errorf("lookup %s: %w", candidateID, lastErr)
	}
	return types.GameRecord{}, ErrRecordNotFound
}

// LinkMatch links matchID to candidateID outside the vote flow. rec may be
// nil, in which case the record is looked up through the participants.
// Linking the same candidate twice is a no-op; a different candidate replaces
// the earlier link and is logged as an override.
func (l *Linker) LinkMatch(ctx context.Context, matchID, candidateID string, rec *types.GameRecord, by types.PlayerID) (LinkResult, error) {
	if candidateID == "" {
		return LinkResult{}, ErrEmptyCandidate
	}
	t, err := l.tallyFor(ctx, matchID)
	if err != nil {
		return LinkResult{}, err
	}

	t.mu.Lock()
	current := t.linked
	t.mu.Unlock()
	if current == candidateID {
		return LinkResult{MatchID: matchID, RecordID: candidateID, AlreadyLinked: true}, nil
	}

	var record types.GameRecord
	if rec != nil {
		record = *rec
		record.ID = candidateID
	} else {
		record, err = l.lookup(ctx, t.match, by, candidateID)
		if err != nil {
			return LinkResult{}, err
		}
	}

	t.mu.Lock()
	previous := t.linked
	if previous == candidateID {
		t.mu.Unlock()
		return LinkResult{MatchID: matchID, RecordID: candidateID, AlreadyLinked: true}, nil
	}
	err = l.commit(ctx, t, record)
	t.mu.Unlock()
	if err != nil {
		return LinkResult{}, err
	}

	override := previous != ""
	if override {
		l.log.Warn("match link overridden",
			zap.String("match_id", matchID),
			zap.String("previous_id", previous),
			zap.String("record_id", candidateID),
			zap.String("by", by.String()),
			zap.String("path", "manual"))
	} else {
		l.log.Info("match linked",
			zap.String("match_id", matchID),
			zap.String("record_id", candidateID),
			zap.String("by", by.String()),
			zap.String("path", "manual"))
	}
	l.afterLink(ctx, t.match, record, override)
	return LinkResult{MatchID: matchID, RecordID: candidateID, Override: override, PreviousID: previous}, nil
}

// commit persists the outcome. Callers hold t.mu.
func (l *Linker) commit(ctx context.Context, t *tally, rec types.GameRecord) error {
	outcome := types.Outcome{
		WinningTeam:    rec.WinningTeam,
		DurationSec:    rec.DurationSec,
		LinkedRecordID: rec.ID,
	}
	if err := l.deps.Store.SaveOutcome(ctx, t.match.ID, outcome); err != nil {
		return fmt.Errorf("save outcome: %w", err)
	}
	t.linked = rec.ID
	t.latched = rec.ID
	return nil
}

func (l *Linker) afterLink(ctx context.Context, m types.Match, rec types.GameRecord, override bool) {
	l.forget(m.ID)
	if l.deps.Archive != nil {
		if key, err := l.deps.Archive.Put(ctx, m.ID, rec); err != nil {
			l.log.Error("archive game record", zap.String("match_id", m.ID), zap.Error(err))
		} else if key != "" {
			l.log.Debug("game record archived", zap.String("match_id", m.ID), zap.String("key", key))
		}
	}
	l.notify(ctx, m.Players(), types.EventMatchLinked, LinkedPayload{
		MatchID:     m.ID,
		RecordID:    rec.ID,
		WinningTeam: rec.WinningTeam,
		DurationSec: rec.DurationSec,
		Override:    override,
	})
}
