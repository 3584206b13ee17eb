package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_LastWriterWinsAndCompareDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Bind(ctx, Binding{Player: "alice", ChannelID: "c1"}, time.Minute))
	require.NoError(t, m.Bind(ctx, Binding{Player: "alice", ChannelID: "c2"}, time.Minute))

	b, ok, err := m.Lookup(ctx, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c2", b.ChannelID)

	removed, err := m.UnbindIfChannel(ctx, "alice", "c1")
	require.NoError(t, err)
	assert.False(t, removed, "stale channel must not remove newer binding")

	removed, err = m.UnbindIfChannel(ctx, "alice", "c2")
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestMemory_TTLAndTouch(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1000, 0)
	m := NewMemory()
	m.SetClock(func() time.Time { return now })

	require.NoError(t, m.Bind(ctx, Binding{Player: "bob", ChannelID: "c1"}, 10*time.Second))

	now = now.Add(8 * time.Second)
	ok, err := m.Touch(ctx, "bob", "c1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(8 * time.Second)
	n, err := m.CountOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	now = now.Add(3 * time.Second)
	_, ok, err = m.Lookup(ctx, "bob")
	require.NoError(t, err)
	assert.False(t, ok, "binding should expire without heartbeat")
}

func TestMemory_Failing(t *testing.T) {
	m := NewMemory()
	m.SetFailing(true)
	_, _, err := m.Lookup(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}
