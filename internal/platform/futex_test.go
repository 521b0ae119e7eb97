//go:build linux && (amd64 || arm64)

package platform

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFutexWaitTimeout(t *testing.T) {
	var word uint32
	start := time.Now()
	err := FutexWait(&word, 0, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrFutexTimeout)
	require.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestFutexWaitValueAlreadyChanged(t *testing.T) {
	var word uint32
	atomic.StoreUint32(&word, 1)
	err := FutexWait(&word, 0, 50*time.Millisecond)
	require.NoError(t, err)
}

func TestFutexWakeWakesWaiter(t *testing.T) {
	var word uint32
	done := make(chan error, 1)

	go func() {
		done <- FutexWait(&word, 0, 2*time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	atomic.StoreUint32(&word, 1)
	n, err := FutexWake(&word, 1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, n, 0)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("futex wait did not return after wake")
	}
}
