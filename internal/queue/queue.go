// Package queue admits players into the matchmaking queue and groups them
// into ten-player matches.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

const MatchSize = 2 * types.TeamSize

var (
	ErrAlreadyQueued = types.Conflict("already queued")
	ErrAlreadySeated = types.Conflict("already seated in an active match")
	ErrNoResponse    = types.Timeout("no response from client: session was not bound in time")
	ErrInvalidRegion = types.Validation("region is required")
	ErrInvalidLanes  = types.Validation("two lane preferences are required")
)

type Store interface {
	SaveQueueEntry(ctx context.Context, e types.QueueEntry) error
	DeleteQueueEntries(ctx context.Context, players ...types.PlayerID) error
	ListQueueEntries(ctx context.Context) ([]types.QueueEntry, error)
}

type Presence interface {
	IsOnline(ctx context.Context, p types.PlayerID) bool
	Broadcast(ctx context.Context, event string, payload any) int
}

// MatchFactory seats grouped players. CancelMatch undoes a match whose
// group lost a player while it was being created; an empty by is an
// administrative cancel.
type MatchFactory interface {
	CreateMatch(ctx context.Context, team1, team2 []types.PlayerID) (types.Match, error)
	CancelMatch(ctx context.Context, matchID string, by types.PlayerID) error
}

type SeatChecker interface {
	IsSeated(ctx context.Context, p types.PlayerID) (bool, error)
}

type GameClient interface {
	IsConnected(ctx context.Context, p types.PlayerID) (bool, error)
}

type Voice interface {
	IsBotActive(ctx context.Context) (bool, error)
	IsPlayerInMonitoredChannel(ctx context.Context, p types.PlayerID) (bool, error)
}

type Config struct {
	RequireAdmissions bool
	AdmissionTimeout  time.Duration
	BindTimeout       time.Duration
	BindPoll          time.Duration
	CandidatePool     int
}

type Deps struct {
	Store    Store
	Presence Presence
	Factory  MatchFactory
	Seats    SeatChecker
	Game     GameClient
	Voice    Voice
}

type Coordinator struct {
	mu         sync.Mutex
	entries    map[types.PlayerID]types.QueueEntry
	allocating map[types.PlayerID]bool
	// withdrawn marks allocating players who left mid-pass.
	withdrawn map[types.PlayerID]bool
	botSeq    int

	// passMu makes matching passes mutually exclusive.
	passMu sync.Mutex

	cfg  Config
	deps Deps
	log  *zap.Logger
	now  func() time.Time
}

func New(cfg Config, deps Deps, log *zap.Logger) *Coordinator {
	if cfg.AdmissionTimeout <= 0 {
		cfg.AdmissionTimeout = 3 * time.Second
	}
	if cfg.BindTimeout <= 0 {
		cfg.BindTimeout = 5 * time.Second
	}
	if cfg.BindPoll <= 0 {
		cfg.BindPoll = 250 * time.Millisecond
	}
	if cfg.CandidatePool < MatchSize {
		cfg.CandidatePool = 14
	}
	return &Coordinator{
		entries:    make(map[types.PlayerID]types.QueueEntry),
		allocating: make(map[types.PlayerID]bool),
		withdrawn:  make(map[types.PlayerID]bool),
		cfg:        cfg,
		deps:       deps,
		log:        log.Named("queue"),
		now:        time.Now,
	}
}

type JoinRequest struct {
	Player types.PlayerID
	Region string
	Lanes  [2]types.Lane
	Score  int
}

func (r JoinRequest) validate() (JoinRequest, error) {
	if r.Player == "" {
		return r, types.ErrEmptyIdentity
	}
	r.Region = strings.ToLower(strings.TrimSpace(r.Region))
	if r.Region == "" {
		return r, ErrInvalidRegion
	}
	for i, l := range r.Lanes {
		lane, ok := types.ParseLane(string(l))
		if !ok {
			return r, ErrInvalidLanes
		}
		r.Lanes[i] = lane
	}
	if r.Lanes[0] == r.Lanes[1] && r.Lanes[0] != types.LaneFill {
		return r, ErrInvalidLanes
	}
	return r, nil
}

// Join admits a player. Expected refusals come back as classified errors:
// ErrAlreadyQueued, ErrAlreadySeated, a Denied error carrying the admission
// reason, or ErrNoResponse when the client never bound its session.
func (c *Coordinator) Join(ctx context.Context, req JoinRequest) (types.QueueEntry, error) {
	req, err := req.validate()
	if err != nil {
		return types.QueueEntry{}, err
	}
	if c.isQueued(req.Player) {
		return types.QueueEntry{}, ErrAlreadyQueued
	}
	if err := c.checkSeat(ctx, req.Player); err != nil {
		return types.QueueEntry{}, err
	}
	if d := c.CanJoin(ctx, req.Player); !d.Allowed {
		c.log.Info("admission denied", zap.String("player", req.Player.String()), zap.String("reason", d.Reason))
		return types.QueueEntry{}, types.Denied(d.Reason)
	}
	if err := c.awaitBinding(ctx, req.Player); err != nil {
		return types.QueueEntry{}, err
	}

	return c.enqueue(ctx, types.QueueEntry{
		Player:     req.Player,
		Region:     req.Region,
		Lanes:      req.Lanes,
		EnqueuedAt: c.now().UTC(),
		Score:      req.Score,
	})
}

func (c *Coordinator) checkSeat(ctx context.Context, p types.PlayerID) error {
	if c.deps.Seats == nil {
		return nil
	}
	seated, err := c.deps.Seats.IsSeated(ctx, p)
	if err != nil {
		return fmt.Errorf("check active match: %w", err)
	}
	if seated {
		return ErrAlreadySeated
	}
	return nil
}

func (c *Coordinator) enqueue(ctx context.Context, e types.QueueEntry) (types.QueueEntry, error) {
	c.mu.Lock()
	if _, ok := c.entries[e.Player]; ok || c.allocating[e.Player] {
		c.mu.Unlock()
		return types.QueueEntry{}, ErrAlreadyQueued
	}
	if err := c.deps.Store.SaveQueueEntry(ctx, e); err != nil {
		c.mu.Unlock()
		if types.KindOf(err) == types.KindConflict {
			return types.QueueEntry{}, ErrAlreadyQueued
		}
		return types.QueueEntry{}, fmt.Errorf("save queue entry: %w", err)
	}
	c.entries[e.Player] = e
	c.mu.Unlock()

	c.log.Info("player queued",
		zap.String("player", e.Player.String()),
		zap.String("region", e.Region),
		zap.Bool("bot", e.Bot))
	c.broadcast(ctx)
	return e, nil
}

// Leave reports false when the player was not queued. A player the running
// matching pass is grouping is withdrawn from that group; the pass drops the
// group before committing, or cancels the match if it was already created.
func (c *Coordinator) Leave(ctx context.Context, p types.PlayerID) bool {
	c.mu.Lock()
	if c.allocating[p] {
		c.withdrawn[p] = true
		c.mu.Unlock()
		c.log.Info("player withdrew during matching", zap.String("player", p.String()))
		return true
	}
	if _, ok := c.entries[p]; !ok {
		c.mu.Unlock()
		return false
	}
	delete(c.entries, p)
	c.mu.Unlock()

	if err := c.deps.Store.DeleteQueueEntries(ctx, p); err != nil {
		c.log.Error("delete queue entry", zap.String("player", p.String()), zap.Error(err))
	}
	c.broadcast(ctx)
	return true
}

func (c *Coordinator) isQueued(p types.PlayerID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[p]
	return ok || c.allocating[p]
}

type Status struct {
	Count                 int                `json:"count"`
	Entries               []types.QueueEntry `json:"entries"`
	AvgWaitEstimateSec    int                `json:"avg_wait_estimate_sec"`
	IsCurrentPlayerQueued bool               `json:"is_current_player_queued"`
}

// Status describes the queue; requesting may be empty.
func (c *Coordinator) Status(requesting types.PlayerID) Status {
	c.mu.Lock()
	entries := make([]types.QueueEntry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, e)
	}
	_, queued := c.entries[requesting]
	c.mu.Unlock()

	sortByEnqueue(entries)
	return Status{
		Count:                 len(entries),
		Entries:               entries,
		AvgWaitEstimateSec:    int(c.estimateWait(entries) / time.Second),
		IsCurrentPlayerQueued: requesting != "" && queued,
	}
}

// estimateWait scales the mean time already waited by the share of a match
// that is still missing.
func (c *Coordinator) estimateWait(entries []types.QueueEntry) time.Duration {
	if len(entries) == 0 {
		return 0
	}
	missing := MatchSize - len(entries)
	if missing <= 0 {
		return 0
	}
	now := c.now()
	var total time.Duration
	for _, e := range entries {
		total += now.Sub(e.EnqueuedAt)
	}
	mean := total / time.Duration(len(entries))
	return mean * time.Duration(missing) / time.Duration(len(entries))
}

// AddBot queues the next numbered bot. Bots skip admission.
func (c *Coordinator) AddBot(ctx context.Context, region string) (types.QueueEntry, error) {
	region = strings.ToLower(strings.TrimSpace(region))
	if region == "" {
		return types.QueueEntry{}, ErrInvalidRegion
	}

	c.mu.Lock()
	var id types.PlayerID
	for {
		c.botSeq++
		id = types.PlayerID(fmt.Sprintf("bot-%d", c.botSeq))
		if _, taken := c.entries[id]; !taken && !c.allocating[id] {
			break
		}
	}
	c.mu.Unlock()

	if err := c.checkSeat(ctx, id); err != nil {
		return types.QueueEntry{}, err
	}
	return c.enqueue(ctx, types.QueueEntry{
		Player:     id,
		Region:     region,
		Lanes:      [2]types.Lane{types.LaneFill, types.LaneFill},
		EnqueuedAt: c.now().UTC(),
		Score:      1000,
		Bot:        true,
	})
}

func (c *Coordinator) ResetBotCounter() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.botSeq = 0
}

// Reset empties the queue and returns how many entries were dropped.
func (c *Coordinator) Reset(ctx context.Context) (int, error) {
	c.mu.Lock()
	players := make([]types.PlayerID, 0, len(c.entries))
	for p := range c.entries {
		players = append(players, p)
	}
	clear(c.entries)
	c.mu.Unlock()

	if err := c.deps.Store.DeleteQueueEntries(ctx, players...); err != nil {
		return len(players), fmt.Errorf("delete queue entries: %w", err)
	}
	c.log.Warn("queue reset", zap.Int("dropped", len(players)))
	c.broadcast(ctx)
	return len(players), nil
}

// LoadFromPersistence replaces the in-memory queue with the stored rows.
// Rows of players already seated in an active match are deleted, not loaded.
func (c *Coordinator) LoadFromPersistence(ctx context.Context) (int, error) {
	stored, err := c.deps.Store.ListQueueEntries(ctx)
	if err != nil {
		return 0, fmt.Errorf("list queue entries: %w", err)
	}
	stored, err = c.dropSeated(ctx, stored)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
	maxBot := 0
	for _, e := range stored {
		c.entries[e.Player] = e
		var n int
		if _, err := fmt.Sscanf(e.Player.String(), "bot-%d", &n); err == nil && e.Bot && n > maxBot {
			maxBot = n
		}
	}
	if maxBot > c.botSeq {
		c.botSeq = maxBot
	}
	c.log.Info("queue restored", zap.Int("entries", len(c.entries)))
	return len(c.entries), nil
}

func (c *Coordinator) dropSeated(ctx context.Context, stored []types.QueueEntry) ([]types.QueueEntry, error) {
	if c.deps.Seats == nil {
		return stored, nil
	}
	kept := stored[:0]
	var stale []types.PlayerID
	for _, e := range stored {
		seated, err := c.deps.Seats.IsSeated(ctx, e.Player)
		if err != nil {
			return nil, fmt.Errorf("check active match: %w", err)
		}
		if seated {
			stale = append(stale, e.Player)
			continue
		}
		kept = append(kept, e)
	}
	if len(stale) > 0 {
		c.log.Warn("dropping queue rows of seated players", zap.Int("count", len(stale)))
		if err := c.deps.Store.DeleteQueueEntries(ctx, stale...); err != nil {
			c.log.Error("delete stale queue rows", zap.Error(err))
		}
	}
	return kept, nil
}

func (c *Coordinator) broadcast(ctx context.Context) {
	if c.deps.Presence == nil {
		return
	}
	c.deps.Presence.Broadcast(ctx, types.EventQueueUpdate, c.Status(""))
}

func sortByEnqueue(entries []types.QueueEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].EnqueuedAt.Equal(entries[j].EnqueuedAt) {
			return entries[i].Player < entries[j].Player
		}
		return entries[i].EnqueuedAt.Before(entries[j].EnqueuedAt)
	})
}

var errBadEntry = errors.New("malformed queue entry")

func checkEntry(e types.QueueEntry) error {
	if e.Player == "" || e.Region == "" || e.EnqueuedAt.IsZero() {
		return errBadEntry
	}
	for _, l := range e.Lanes {
		if _, ok := types.ParseLane(string(l)); !ok {
			return fmt.Errorf("%w: lane %q", errBadEntry, l)
		}
	}
	return nil
}
