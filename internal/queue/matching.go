package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

var errWithdrawn = errors.New("a grouped player left the queue")

type grouping struct {
	Region  string
	Team1   []types.PlayerID
	Team2   []types.PlayerID
	Entries []types.QueueEntry
	score   groupScore
}

func (g grouping) players() []types.PlayerID {
	out := make([]types.PlayerID, len(g.Entries))
	for i, e := range g.Entries {
		out[i] = e.Player
	}
	return out
}

// groupScore orders candidate groups: fewer lane conflicts, then a smaller
// score spread, then earlier queue positions.
type groupScore struct {
	conflicts int
	spread    int
	rankSum   int
}

func (a groupScore) less(b groupScore) bool {
	if a.conflicts != b.conflicts {
		return a.conflicts < b.conflicts
	}
	if a.spread != b.spread {
		return a.spread < b.spread
	}
	return a.rankSum < b.rankSum
}

// RunMatchingPass creates as many matches as the queue allows and returns
// the count. Passes never overlap; a panic ends the pass but not the schedule.
func (c *Coordinator) RunMatchingPass(ctx context.Context) (created int) {
	c.passMu.Lock()
	defer c.passMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("matching pass panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
		if created > 0 {
			c.broadcast(ctx)
		}
	}()

	for ctx.Err() == nil {
		g, ok := c.claimNext()
		if !ok {
			break
		}
		err := c.allocate(ctx, g)
		if errors.Is(err, errWithdrawn) {
			// The rest of the group is back in the queue; try again without the leaver.
			continue
		}
		if err != nil {
			c.log.Error("create match failed, entries restored",
				zap.String("region", g.Region),
				zap.Error(err))
			break
		}
		created++
	}
	return created
}

// claimNext picks the best group and moves its players from the queue into
// the allocating set under one lock, so Leave and Join cannot interleave.
func (c *Coordinator) claimNext() (grouping, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	byRegion := make(map[string][]types.QueueEntry)
	for _, e := range c.entries {
		if err := checkEntry(e); err != nil {
			c.log.Warn("skipping queue entry", zap.String("player", e.Player.String()), zap.Error(err))
			continue
		}
		byRegion[e.Region] = append(byRegion[e.Region], e)
	}

	var best grouping
	var bestHead time.Time
	found := false
	for region, entries := range byRegion {
		if len(entries) < MatchSize {
			continue
		}
		sortByEnqueue(entries)
		// Serve the region whose longest waiting player has waited longest.
		if found && !entries[0].EnqueuedAt.Before(bestHead) {
			continue
		}
		pool := entries[:min(len(entries), c.cfg.CandidatePool)]
		best = bestGrouping(pool)
		best.Region = region
		bestHead = entries[0].EnqueuedAt
		found = true
	}
	if !found {
		return grouping{}, false
	}

	for _, e := range best.Entries {
		delete(c.entries, e.Player)
		c.allocating[e.Player] = true
	}
	return best, true
}

// allocate seats g through the factory. On any error the group's players go
// back into the queue, minus those who withdrew while it ran.
func (c *Coordinator) allocate(ctx context.Context, g grouping) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("match factory panicked: %v", r)
		}
		if err != nil {
			c.restore(context.WithoutCancel(ctx), g)
		}
	}()

	if err := c.deps.Store.DeleteQueueEntries(ctx, g.players()...); err != nil {
		c.log.Warn("delete grouped queue rows", zap.Error(err))
	}
	if c.anyWithdrawn(g) {
		return errWithdrawn
	}
	m, err := c.deps.Factory.CreateMatch(ctx, g.Team1, g.Team2)
	if err != nil {
		return err
	}
	if !c.commit(g) {
		if err := c.deps.Factory.CancelMatch(context.WithoutCancel(ctx), m.ID, ""); err != nil {
			// The match stands; nobody is requeued.
			c.log.Error("cancel match after withdrawal",
				zap.String("match_id", m.ID),
				zap.Error(err))
			c.release(g)
			return nil
		}
		c.log.Info("match cancelled, a player withdrew while it was created", zap.String("match_id", m.ID))
		return errWithdrawn
	}
	c.log.Info("match grouped",
		zap.String("match_id", m.ID),
		zap.String("region", g.Region),
		zap.Int("lane_conflicts", g.score.conflicts),
		zap.Int("score_spread", g.score.spread))
	return nil
}

func (c *Coordinator) anyWithdrawn(g grouping) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range g.Entries {
		if c.withdrawn[e.Player] {
			return true
		}
	}
	return false
}

// commit releases the group once its match exists. It reports false, leaving
// the group allocated, when someone withdrew in the meantime.
func (c *Coordinator) commit(g grouping) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range g.Entries {
		if c.withdrawn[e.Player] {
			return false
		}
	}
	for _, e := range g.Entries {
		delete(c.allocating, e.Player)
	}
	return true
}

func (c *Coordinator) release(g grouping) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range g.Entries {
		delete(c.allocating, e.Player)
		delete(c.withdrawn, e.Player)
	}
}

func (c *Coordinator) restore(ctx context.Context, g grouping) {
	back := make([]types.QueueEntry, 0, len(g.Entries))
	c.mu.Lock()
	for _, e := range g.Entries {
		delete(c.allocating, e.Player)
		if c.withdrawn[e.Player] {
			delete(c.withdrawn, e.Player)
			continue
		}
		c.entries[e.Player] = e
		back = append(back, e)
	}
	c.mu.Unlock()

	for _, e := range back {
		if err := c.deps.Store.SaveQueueEntry(ctx, e); err != nil && types.KindOf(err) != types.KindConflict {
			c.log.Error("restore queue row", zap.String("player", e.Player.String()), zap.Error(err))
		}
	}
}

// bestGrouping tries every MatchSize subset of pool, which is sorted by
// enqueue time, and splits the winner into two teams.
func bestGrouping(pool []types.QueueEntry) grouping {
	idx := make([]int, MatchSize)
	var bestIdx []int
	var bestSlots []int
	var bestScore groupScore

	members := make([]types.QueueEntry, MatchSize)
	var walk func(start, k int)
	walk = func(start, k int) {
		if k == MatchSize {
			rank := 0
			for i, j := range idx {
				members[i] = pool[j]
				rank += j
			}
			slots, conflicts := assignLanes(members)
			s := groupScore{conflicts: conflicts, spread: scoreSpread(members), rankSum: rank}
			if bestIdx == nil || s.less(bestScore) {
				bestIdx = append(bestIdx[:0], idx...)
				bestSlots = slots
				bestScore = s
			}
			return
		}
		for i := start; i <= len(pool)-(MatchSize-k); i++ {
			idx[k] = i
			walk(i+1, k+1)
		}
	}
	walk(0, 0)

	chosen := make([]types.QueueEntry, MatchSize)
	for i, j := range bestIdx {
		chosen[i] = pool[j]
	}
	team1, team2 := splitTeams(chosen, bestSlots)
	return grouping{Team1: team1, Team2: team2, Entries: chosen, score: bestScore}
}

func slotLane(slot int) types.Lane { return types.Lanes[slot/2] }

// assignLanes maximises the number of players seated on a preferred lane via
// bipartite matching over the ten lane slots (two per lane). It returns the
// member index owning each slot and how many players got no preferred lane.
func assignLanes(members []types.QueueEntry) ([]int, int) {
	owner := make([]int, MatchSize)
	for i := range owner {
		owner[i] = -1
	}

	var try func(m int, seen []bool) bool
	try = func(m int, seen []bool) bool {
		for s := 0; s < MatchSize; s++ {
			if seen[s] || !members[m].Prefers(slotLane(s)) {
				continue
			}
			seen[s] = true
			if owner[s] < 0 || try(owner[s], seen) {
				owner[s] = m
				return true
			}
		}
		return false
	}

	matched := 0
	for m := range members {
		if try(m, make([]bool, MatchSize)) {
			matched++
		}
	}

	placed := make([]bool, len(members))
	for _, m := range owner {
		if m >= 0 {
			placed[m] = true
		}
	}
	next := 0
	for s := range owner {
		if owner[s] >= 0 {
			continue
		}
		for placed[next] {
			next++
		}
		owner[s] = next
		placed[next] = true
	}
	return owner, len(members) - matched
}

func scoreSpread(members []types.QueueEntry) int {
	lo, hi := members[0].Score, members[0].Score
	for _, e := range members[1:] {
		lo = min(lo, e.Score)
		hi = max(hi, e.Score)
	}
	return hi - lo
}

// splitTeams puts one player of each lane pair on each team. Pairs with the
// widest score gap are placed first, the stronger player going to the team
// with the lower running total. Seat i of each team plays types.Lanes[i].
func splitTeams(members []types.QueueEntry, owner []int) ([]types.PlayerID, []types.PlayerID) {
	lanes := make([]int, len(types.Lanes))
	for i := range lanes {
		lanes[i] = i
	}
	gap := func(l int) int {
		d := members[owner[2*l]].Score - members[owner[2*l+1]].Score
		if d < 0 {
			return -d
		}
		return d
	}
	sort.SliceStable(lanes, func(i, j int) bool { return gap(lanes[i]) > gap(lanes[j]) })

	team1 := make([]types.PlayerID, len(types.Lanes))
	team2 := make([]types.PlayerID, len(types.Lanes))
	sum1, sum2 := 0, 0
	for _, l := range lanes {
		a, b := members[owner[2*l]], members[owner[2*l+1]]
		if b.Score > a.Score {
			a, b = b, a
		}
		if sum1 <= sum2 {
			team1[l], team2[l] = a.Player, b.Player
			sum1, sum2 = sum1+a.Score, sum2+b.Score
		} else {
			team1[l], team2[l] = b.Player, a.Player
			sum1, sum2 = sum1+b.Score, sum2+a.Score
		}
	}
	return team1, team2
}
