// Package vote collects result votes for finished matches and links a match
// to the external game record the players agree on.
package vote

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

const DefaultThreshold = 6

var (
	ErrEmptyCandidate = types.Validation("candidate id is required")
	ErrNotParticipant = types.Denied("only match participants may vote")
	ErrVotingClosed   = types.Conflict("match is not accepting votes")
	ErrRecordNotFound = types.NotFound("candidate record not found")
)

type Store interface {
	FindMatch(ctx context.Context, id string) (types.Match, error)
	ListActiveMatches(ctx context.Context) ([]types.Match, error)
	SaveOutcome(ctx context.Context, id string, outcome types.Outcome) error
	SaveVote(ctx context.Context, v types.Vote) error
	DeleteVote(ctx context.Context, matchID string, p types.PlayerID) error
	ListVotes(ctx context.Context, matchID string) ([]types.Vote, error)
}

type RecordLookup interface {
	RequestMatchHistory(ctx context.Context, p types.PlayerID) ([]types.GameRecord, error)
}

type Voters interface {
	GetWeight(p types.PlayerID) int
	IsPrivileged(p types.PlayerID) bool
}

type Archive interface {
	Put(ctx context.Context, matchID string, rec types.GameRecord) (string, error)
}

type Notifier interface {
	SendTo(ctx context.Context, players []types.PlayerID, event string, payload any) int
}

type Config struct {
	Threshold     int
	LookupTimeout time.Duration
}

type Deps struct {
	Store   Store
	Lookup  RecordLookup
	Voters  Voters
	Archive Archive
	Notify  Notifier
}

// tally is the vote state of one match. latched is the first candidate whose
// weighted total reached the threshold; it never changes afterwards.
type tally struct {
	// match holds the id and rosters only; it is never written after load.
	match types.Match

	mu      sync.Mutex
	votes   map[types.PlayerID]types.Vote
	latched string
	linked  string
}

func (t *tally) totals() map[string]int {
	out := make(map[string]int)
	for _, v := range t.votes {
		out[v.CandidateID] += v.Weight
	}
	return out
}

type Linker struct {
	mu      sync.Mutex
	tallies map[string]*tally

	cfg  Config
	deps Deps
	log  *zap.Logger
	now  func() time.Time
}

func New(cfg Config, deps Deps, log *zap.Logger) *Linker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 5 * time.Second
	}
	return &Linker{
		tallies: make(map[string]*tally),
		cfg:     cfg,
		deps:    deps,
		log:     log.Named("vote"),
		now:     time.Now,
	}
}

type CastResult struct {
	VoteCount   int    `json:"vote_count"`
	ShouldLink  bool   `json:"should_link"`
	Linked      bool   `json:"linked"`
	CandidateID string `json:"candidate_id"`
	Weight      int    `json:"weight"`
	Reason      string `json:"reason,omitempty"`
}

// CastVote records player's vote, replacing any earlier one. The vote itself
// never fails because of the record lookup; a failed lookup is reported as
// Linked=false with a Reason.
func (l *Linker) CastVote(ctx context.Context, matchID string, player types.PlayerID, candidateID string) (CastResult, error) {
	if candidateID == "" {
		return CastResult{}, ErrEmptyCandidate
	}
	t, err := l.tallyFor(ctx, matchID)
	if err != nil {
		return CastResult{}, err
	}
	if !t.match.Has(player) {
		return CastResult{}, ErrNotParticipant
	}

	weight := l.weightOf(player)
	vote := types.Vote{MatchID: matchID, Player: player, CandidateID: candidateID, Weight: weight, CastAt: l.now().UTC()}

	t.mu.Lock()
	if err := l.deps.Store.SaveVote(ctx, vote); err != nil {
		t.mu.Unlock()
		return CastResult{}, fmt.Errorf("save vote: %w", err)
	}
	t.votes[player] = vote

	totals := t.totals()
	res := CastResult{VoteCount: totals[candidateID], CandidateID: candidateID, Weight: weight}
	if t.latched == "" && (totals[candidateID] >= l.cfg.Threshold || l.isPrivileged(player)) {
		t.latched = candidateID
		res.ShouldLink = true
		l.log.Info("link triggered",
			zap.String("match_id", matchID),
			zap.String("candidate_id", candidateID),
			zap.Int("total", totals[candidateID]))
	}
	// Later votes for the latched candidate retry a deferred link.
	attempt := t.linked == "" && t.latched == candidateID
	res.Linked = t.linked == candidateID
	players := t.match.Players()
	update := l.updatePayload(t)
	t.mu.Unlock()

	l.notify(ctx, players, types.EventVoteUpdate, update)

	if attempt {
		linked, reason := l.autoLink(ctx, t, player, candidateID)
		res.Linked = linked
		res.Reason = reason
	}
	return res, nil
}

func (l *Linker) weightOf(p types.PlayerID) int {
	if l.deps.Voters == nil {
		return 1
	}
	if w := l.deps.Voters.GetWeight(p); w > 0 {
		return w
	}
	return 1
}

func (l *Linker) isPrivileged(p types.PlayerID) bool {
	return l.deps.Voters != nil && l.deps.Voters.IsPrivileged(p)
}

// RemoveVote drops only player's own vote. A trigger that already fired, and
// any link it produced, stay in place.
func (l *Linker) RemoveVote(ctx context.Context, matchID string, player types.PlayerID) error {
	t, err := l.tallyFor(ctx, matchID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if _, ok := t.votes[player]; !ok {
		t.mu.Unlock()
		return nil
	}
	if err := l.deps.Store.DeleteVote(ctx, matchID, player); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("delete vote: %w", err)
	}
	delete(t.votes, player)
	players := t.match.Players()
	update := l.updatePayload(t)
	t.mu.Unlock()

	l.notify(ctx, players, types.EventVoteUpdate, update)
	return nil
}

type TallyView struct {
	MatchID   string         `json:"match_id"`
	Totals    map[string]int `json:"totals"`
	Voters    int            `json:"voters"`
	Threshold int            `json:"threshold"`
	Latched   string         `json:"latched,omitempty"`
	Linked    string         `json:"linked,omitempty"`
}

// Tally returns the weighted total per candidate.
func (l *Linker) Tally(ctx context.Context, matchID string) (TallyView, error) {
	t, err := l.tallyFor(ctx, matchID)
	if err != nil {
		return TallyView{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return l.updatePayload(t), nil
}

func (l *Linker) updatePayload(t *tally) TallyView {
	return TallyView{
		MatchID:   t.match.ID,
		Totals:    t.totals(),
		Voters:    len(t.votes),
		Threshold: l.cfg.Threshold,
		Latched:   t.latched,
		Linked:    t.linked,
	}
}

// tallyFor returns the cached tally, loading it from the store on first use.
// Tallies of linked matches are rebuilt per call and never cached.
func (l *Linker) tallyFor(ctx context.Context, matchID string) (*tally, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if t, ok := l.tallies[matchID]; ok {
		return t, nil
	}

	m, err := l.deps.Store.FindMatch(ctx, matchID)
	if err != nil {
		if errors.Is(err, types.ErrMatchNotFound) {
			return nil, types.ErrMatchNotFound
		}
		return nil, fmt.Errorf("find match: %w", err)
	}
	if m.Status != types.StatusInProgress && m.Status != types.StatusCompleted {
		return nil, ErrVotingClosed
	}
	t, err := l.loadTally(ctx, m)
	if err != nil {
		return nil, err
	}
	if t.linked == "" {
		l.tallies[matchID] = t
	}
	return t, nil
}

// forget drops a linked match's tally from the cache.
func (l *Linker) forget(matchID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.tallies, matchID)
}

// loadTally rebuilds a tally from stored votes, replaying them in cast order
// to find which candidate reached the threshold first.
func (l *Linker) loadTally(ctx context.Context, m types.Match) (*tally, error) {
	stored, err := l.deps.Store.ListVotes(ctx, m.ID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].CastAt.Before(stored[j].CastAt) })

	roster := types.Match{ID: m.ID, Team1: m.Team1, Team2: m.Team2, CreatedAt: m.CreatedAt}
	t := &tally{match: roster, votes: make(map[types.PlayerID]types.Vote), linked: m.Outcome.LinkedRecordID}
	for _, v := range stored {
		t.votes[v.Player] = v
		if t.latched != "" {
			continue
		}
		if t.totals()[v.CandidateID] >= l.cfg.Threshold || l.isPrivileged(v.Player) {
			t.latched = v.CandidateID
		}
	}
	if t.linked != "" {
		t.latched = t.linked
	}
	return t, nil
}

// LoadFromPersistence rebuilds the tallies of every in-progress match.
func (l *Linker) LoadFromPersistence(ctx context.Context) (int, error) {
	matches, err := l.deps.Store.ListActiveMatches(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active matches: %w", err)
	}
	loaded := 0
	for _, m := range matches {
		if m.Status != types.StatusInProgress {
			continue
		}
		t, err := l.loadTally(ctx, m)
		if err != nil {
			l.log.Error("restore tally", zap.String("match_id", m.ID), zap.Error(err))
			continue
		}
		l.mu.Lock()
		l.tallies[m.ID] = t
		l.mu.Unlock()
		loaded++
	}
	l.log.Info("vote tallies restored", zap.Int("count", loaded))
	return loaded, nil
}

func (l *Linker) notify(ctx context.Context, players []types.PlayerID, event string, payload any) {
	if l.deps.Notify == nil {
		return
	}
	l.deps.Notify.SendTo(ctx, players, event, payload)
}
