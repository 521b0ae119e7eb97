package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTryWaitOneReturnsFalseWhenNothingPending(t *testing.T) {
	c := newTestChannel(1, 1)
	l := NewListener(c, 0, nil)

	_, ok, err := l.TryWaitOne()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTryWaitOneDrainsLowestPending(t *testing.T) {
	c := newTestChannel(1, 1)
	c.Set(3)
	l := NewListener(c, 0, nil)

	id, ok, err := l.TryWaitOne()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, EventId(3), id)

	_, ok, err = l.TryWaitOne()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTryWaitAllDrainsEverything(t *testing.T) {
	c := newTestChannel(1, 1)
	c.Set(1)
	c.Set(2)
	l := NewListener(c, 0, nil)

	var got []EventId
	require.NoError(t, l.TryWaitAll(func(id EventId) { got = append(got, id) }))
	require.Equal(t, []EventId{1, 2}, got)
}

func TestTimedWaitOneTimesOutWhenNothingArrives(t *testing.T) {
	c := newTestChannel(1, 1)
	l := NewListener(c, 0, nil)

	start := time.Now()
	_, ok, err := l.TimedWaitOne(30 * time.Millisecond)
	require.NoError(t, err)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestTimedWaitOneObservesNotificationFromAnotherGoroutine(t *testing.T) {
	c := newTestChannel(1, 1)
	l := NewListener(c, 0, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Set(9)
	}()

	id, ok, err := l.TimedWaitOne(2 * time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, EventId(9), id)
}

func TestTimedWaitAllObservesNotificationFromAnotherGoroutine(t *testing.T) {
	c := newTestChannel(1, 1)
	l := NewListener(c, 0, nil)

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Set(1)
		c.Set(63)
	}()

	var got []EventId
	err := l.TimedWaitAll(2*time.Second, func(id EventId) { got = append(got, id) })
	require.NoError(t, err)
	require.Equal(t, []EventId{1, 63}, got)
}

func TestListenerDropCallsReleaseOnce(t *testing.T) {
	c := newTestChannel(1, 1)
	calls := 0
	l := NewListener(c, 0, func() { calls++ })

	require.NoError(t, l.Drop())
	require.NoError(t, l.Drop())
	require.Equal(t, 1, calls)
}

func TestTryWaitOneAfterDropFails(t *testing.T) {
	c := newTestChannel(1, 1)
	l := NewListener(c, 0, nil)
	require.NoError(t, l.Drop())

	_, _, err := l.TryWaitOne()
	require.Error(t, err)
}
