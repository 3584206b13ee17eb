package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/lol-inhouse-backend/internal/storage"
	"github.com/DoyleJ11/lol-inhouse-backend/internal/types"
)

func laneEntries() []types.QueueEntry {
	lanes := []types.Lane{types.LaneTop, types.LaneJungle, types.LaneMid, types.LaneBot, types.LaneSupport}
	out := make([]types.QueueEntry, 0, MatchSize)
	for i := 0; i < MatchSize; i++ {
		l := lanes[i/2]
		out = append(out, entry(i, 1000+10*i, l, types.LaneFill))
	}
	return out
}

func TestMatchingPass_TenCompatiblePlayersMakeOneMatch(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, laneEntries()...)

	created := h.c.RunMatchingPass(context.Background())
	require.Equal(t, 1, created)
	require.Equal(t, 1, h.factory.count())

	m := h.factory.matches[0]
	seen := map[types.PlayerID]bool{}
	for _, p := range m.Players() {
		seen[p] = true
	}
	assert.Len(t, seen, MatchSize)
	assert.Equal(t, 0, h.c.Status("").Count)

	rows, _ := h.store.ListQueueEntries(context.Background())
	assert.Empty(t, rows)
}

func TestMatchingPass_SeatsFollowLanePreferences(t *testing.T) {
	h := newHarness(t, nil)
	entries := laneEntries()
	for i := range entries {
		entries[i].Lanes[1] = entries[i].Lanes[0]
	}
	h.seed(t, entries...)
	h.c.RunMatchingPass(context.Background())
	require.Equal(t, 1, h.factory.count())

	byPlayer := map[types.PlayerID]types.QueueEntry{}
	for _, e := range entries {
		byPlayer[e.Player] = e
	}
	m := h.factory.matches[0]
	for seat, lane := range types.Lanes {
		assert.True(t, byPlayer[m.Team1[seat]].Prefers(lane), "team1 seat %d", seat)
		assert.True(t, byPlayer[m.Team2[seat]].Prefers(lane), "team2 seat %d", seat)
	}
}

func TestMatchingPass_PrefersFewerLaneConflicts(t *testing.T) {
	h := newHarness(t, nil)
	mid := types.LaneMid
	h.seed(t,
		entry(0, 1000, mid, mid),
		entry(1, 1000, mid, mid),
		entry(2, 1000, mid, mid),
		entry(3, 1000, types.LaneTop, types.LaneTop),
		entry(4, 1000, types.LaneTop, types.LaneTop),
		entry(5, 1000, types.LaneJungle, types.LaneJungle),
		entry(6, 1000, types.LaneJungle, types.LaneJungle),
		entry(7, 1000, types.LaneBot, types.LaneBot),
		entry(8, 1000, types.LaneBot, types.LaneBot),
		entry(9, 1000, types.LaneSupport, types.LaneSupport),
		entry(10, 1000, types.LaneSupport, types.LaneSupport),
	)

	require.Equal(t, 1, h.c.RunMatchingPass(context.Background()))
	left := h.c.Status("")
	require.Equal(t, 1, left.Count)
	assert.Equal(t, types.PlayerID("p02"), left.Entries[0].Player, "the latest surplus mid waits")
}

func TestMatchingPass_PrefersSmallerSpreadOverQueueOrder(t *testing.T) {
	h := newHarness(t, nil)
	entries := []types.QueueEntry{entry(0, 3000)}
	for i := 1; i <= MatchSize; i++ {
		entries = append(entries, entry(i, 1000))
	}
	h.seed(t, entries...)

	require.Equal(t, 1, h.c.RunMatchingPass(context.Background()))
	assert.False(t, h.factory.matches[0].Has("p00"))
	assert.True(t, h.c.Status("p00").IsCurrentPlayerQueued)
}

func TestMatchingPass_EarliestWinsTies(t *testing.T) {
	h := newHarness(t, nil)
	var entries []types.QueueEntry
	for i := 0; i < 12; i++ {
		entries = append(entries, entry(i, 1000))
	}
	h.seed(t, entries...)

	h.c.RunMatchingPass(context.Background())
	left := h.c.Status("")
	require.Equal(t, 2, left.Count)
	assert.Equal(t, types.PlayerID("p10"), left.Entries[0].Player)
	assert.Equal(t, types.PlayerID("p11"), left.Entries[1].Player)
}

func TestMatchingPass_GroupsWithinOneRegion(t *testing.T) {
	h := newHarness(t, nil)
	entries := laneEntries()
	for i := range entries[:5] {
		entries[i].Region = "na"
	}
	h.seed(t, entries...)

	assert.Equal(t, 0, h.c.RunMatchingPass(context.Background()))
	assert.Equal(t, MatchSize, h.c.Status("").Count)
}

func TestMatchingPass_FactoryFailureRestoresEntries(t *testing.T) {
	h := newHarness(t, nil)
	h.factory.err = errors.New("db down")
	h.seed(t, laneEntries()...)

	assert.Equal(t, 0, h.c.RunMatchingPass(context.Background()))
	assert.Equal(t, MatchSize, h.c.Status("").Count)
	rows, _ := h.store.ListQueueEntries(context.Background())
	assert.Len(t, rows, MatchSize)

	h.factory.err = nil
	assert.Equal(t, 1, h.c.RunMatchingPass(context.Background()))
}

func TestMatchingPass_PanicDoesNotStopLaterPasses(t *testing.T) {
	h := newHarness(t, nil)
	h.factory.panics = true
	h.seed(t, laneEntries()...)

	assert.NotPanics(t, func() { h.c.RunMatchingPass(context.Background()) })
	assert.Equal(t, MatchSize, h.c.Status("").Count)

	h.factory.panics = false
	assert.Equal(t, 1, h.c.RunMatchingPass(context.Background()))
}

func TestMatchingPass_SkipsBadEntry(t *testing.T) {
	h := newHarness(t, nil)
	bad := entry(99, 1000)
	bad.Lanes[0] = "goalie"
	h.seed(t, append(laneEntries(), bad)...)

	assert.Equal(t, 1, h.c.RunMatchingPass(context.Background()))
	left := h.c.Status("")
	require.Equal(t, 1, left.Count)
	assert.Equal(t, bad.Player, left.Entries[0].Player)
}

func TestMatchingPass_ConcurrentPassesNeverDoubleAllocate(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, laneEntries()...)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.c.RunMatchingPass(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, h.factory.count())
}

func TestMatchingPass_LeaveBeforePassIsHonoured(t *testing.T) {
	h := newHarness(t, nil)
	h.seed(t, laneEntries()...)
	require.True(t, h.c.Leave(context.Background(), "p00"))

	assert.Equal(t, 0, h.c.RunMatchingPass(context.Background()))
}

func TestMatchingPass_LeaveWhileMatchIsCreatedCancelsIt(t *testing.T) {
	h := newHarness(t, nil)
	h.factory.entered = make(chan struct{})
	h.factory.proceed = make(chan struct{})
	h.seed(t, laneEntries()...)

	done := make(chan int, 1)
	go func() { done <- h.c.RunMatchingPass(context.Background()) }()

	select {
	case <-h.factory.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("factory was never called")
	}
	require.True(t, h.c.Leave(context.Background(), "p00"), "leave must take effect while the pass runs")
	close(h.factory.proceed)

	select {
	case created := <-done:
		assert.Equal(t, 0, created)
	case <-time.After(2 * time.Second):
		t.Fatal("pass did not finish")
	}
	assert.Equal(t, []string{"m1"}, h.factory.cancelledIDs())

	st := h.c.Status("p00")
	assert.Equal(t, MatchSize-1, st.Count)
	assert.False(t, st.IsCurrentPlayerQueued)
	rows, err := h.store.ListQueueEntries(context.Background())
	require.NoError(t, err)
	assert.Len(t, rows, MatchSize-1)
	for _, r := range rows {
		assert.NotEqual(t, types.PlayerID("p00"), r.Player)
	}

	// p00 is free again once the pass is over.
	h.presence.setOnline("p00")
	_, err = h.c.Join(context.Background(), JoinRequest{Player: "p00", Region: "euw", Lanes: [2]types.Lane{"top", "fill"}})
	require.NoError(t, err)
}

// blockingDeleteStore holds the grouped-row delete so a Leave can land before
// the factory is called.
type blockingDeleteStore struct {
	*storage.Memory
	entered chan struct{}
	proceed chan struct{}
}

func (s *blockingDeleteStore) DeleteQueueEntries(ctx context.Context, players ...types.PlayerID) error {
	if len(players) == MatchSize {
		s.entered <- struct{}{}
		<-s.proceed
	}
	return s.Memory.DeleteQueueEntries(ctx, players...)
}

func TestMatchingPass_LeaveBeforeFactoryDropsGroup(t *testing.T) {
	store := &blockingDeleteStore{Memory: storage.NewMemory(), entered: make(chan struct{}), proceed: make(chan struct{})}
	h := newHarness(t, func(_ *Config, d *Deps) { d.Store = store })
	for _, e := range laneEntries() {
		require.NoError(t, store.Memory.SaveQueueEntry(context.Background(), e))
	}
	_, err := h.c.LoadFromPersistence(context.Background())
	require.NoError(t, err)

	done := make(chan int, 1)
	go func() { done <- h.c.RunMatchingPass(context.Background()) }()

	select {
	case <-store.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("grouped rows were never deleted")
	}
	require.True(t, h.c.Leave(context.Background(), "p03"))
	close(store.proceed)

	select {
	case created := <-done:
		assert.Equal(t, 0, created)
	case <-time.After(2 * time.Second):
		t.Fatal("pass did not finish")
	}
	assert.Zero(t, h.factory.count(), "no match may be created for a group that lost a player")
	assert.Equal(t, MatchSize-1, h.c.Status("").Count)
}

func TestMatchingPass_FailedCancelKeepsMatch(t *testing.T) {
	h := newHarness(t, nil)
	h.factory.entered = make(chan struct{})
	h.factory.proceed = make(chan struct{})
	h.factory.cancelErr = errors.New("hub down")
	h.seed(t, laneEntries()...)

	done := make(chan int, 1)
	go func() { done <- h.c.RunMatchingPass(context.Background()) }()
	<-h.factory.entered
	require.True(t, h.c.Leave(context.Background(), "p00"))
	close(h.factory.proceed)

	assert.Equal(t, 1, <-done)
	assert.Equal(t, 0, h.c.Status("").Count, "players of a standing match are not requeued")
}

func TestClaimNext_PrefersRegionWithOldestHead(t *testing.T) {
	h := newHarness(t, nil)
	var entries []types.QueueEntry
	// euw head p00 waits longest but its score keeps it out of its own group.
	for i := 0; i < 11; i++ {
		e := entry(i, 1000)
		if i == 0 {
			e.Score = 5000
		}
		entries = append(entries, e)
	}
	for i := 0; i < MatchSize; i++ {
		e := entry(20+i, 1000)
		e.Region = "na"
		e.EnqueuedAt = entries[0].EnqueuedAt.Add(time.Duration(i+1) * time.Millisecond)
		entries = append(entries, e)
	}
	h.seed(t, entries...)

	g, ok := h.c.claimNext()
	require.True(t, ok)
	assert.Equal(t, "euw", g.Region)
}

func TestSplitTeams_BalancesScores(t *testing.T) {
	members := make([]types.QueueEntry, MatchSize)
	scores := []int{1500, 1000, 1200, 1300, 900, 1100, 1400, 1000, 1000, 1000}
	owner := make([]int, MatchSize)
	for i := range members {
		members[i] = entry(i, scores[i])
		owner[i] = i
	}
	team1, team2 := splitTeams(members, owner)

	sum := func(team []types.PlayerID) int {
		total := 0
		for _, p := range team {
			for _, m := range members {
				if m.Player == p {
					total += m.Score
				}
			}
		}
		return total
	}
	diff := sum(team1) - sum(team2)
	if diff < 0 {
		diff = -diff
	}
	assert.LessOrEqual(t, diff, 300)
	for lane := range types.Lanes {
		pair := []types.PlayerID{members[2*lane].Player, members[2*lane+1].Player}
		assert.ElementsMatch(t, pair, []types.PlayerID{team1[lane], team2[lane]})
	}
}

func TestAssignLanes_CountsConflicts(t *testing.T) {
	members := make([]types.QueueEntry, MatchSize)
	for i := range members {
		members[i] = entry(i, 1000, types.LaneMid, types.LaneMid)
	}
	_, conflicts := assignLanes(members)
	assert.Equal(t, 8, conflicts)
}
