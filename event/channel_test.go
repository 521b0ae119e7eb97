package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestChannel(listeners, bitmapWords int) *Channel {
	bitmap := make([]uint64, listeners*bitmapWords)
	seq := make([]uint32, listeners)
	return NewChannel(bitmap, bitmapWords, seq, uint64(bitmapWords*64-1))
}

func TestSetFansOutToEveryListenerRow(t *testing.T) {
	c := newTestChannel(3, 1)

	c.Set(5)

	for listener := 0; listener < 3; listener++ {
		id, ok := c.LowestSet(listener)
		require.True(t, ok)
		require.Equal(t, EventId(5), id)
	}
}

func TestDrainOnOneListenerDoesNotHideFromAnother(t *testing.T) {
	c := newTestChannel(2, 1)
	c.Set(3)

	var drained []EventId
	c.DrainAll(0, func(id EventId) { drained = append(drained, id) })
	require.Equal(t, []EventId{3}, drained)
	require.False(t, c.HasPending(0))

	require.True(t, c.HasPending(1))
	id, ok := c.LowestSet(1)
	require.True(t, ok)
	require.Equal(t, EventId(3), id)
}

func TestTestAndClearReportsPresence(t *testing.T) {
	c := newTestChannel(1, 1)
	c.Set(7)

	require.True(t, c.TestAndClear(0, 7))
	require.False(t, c.TestAndClear(0, 7))
}

func TestDrainAllVisitsEveryPendingIdLowestFirst(t *testing.T) {
	c := newTestChannel(1, 2)
	c.Set(1)
	c.Set(70)
	c.Set(5)

	var drained []EventId
	c.DrainAll(0, func(id EventId) { drained = append(drained, id) })
	require.Equal(t, []EventId{1, 5, 70}, drained)
	require.False(t, c.HasPending(0))
}

func TestClearRowRemovesPreExistingPending(t *testing.T) {
	c := newTestChannel(2, 1)
	c.Set(2)
	require.True(t, c.HasPending(0))

	c.ClearRow(0)
	require.False(t, c.HasPending(0))
	require.True(t, c.HasPending(1))
}

func TestSetBumpsListenerSeq(t *testing.T) {
	c := newTestChannel(1, 1)
	before := c.ListenerSeqValue(0)
	c.Set(0)
	require.Greater(t, c.ListenerSeqValue(0), before)
}
