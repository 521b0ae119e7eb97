package event

import (
	"errors"
	"sync"
	"time"

	"github.com/vansweej/iceoryx2/internal/platform"
	"github.com/vansweej/iceoryx2/shmerr"
)

var errListenerClosed = errors.New("event: listener already dropped")

// spinPoll bounds each FutexWait call in a blocking wait loop so the
// loop can re-check for an OS termination signal between syscalls
// without needing a second goroutine per listener.
const spinPoll = 200 * time.Millisecond

// Listener is the read side of a service's event channel: one per
// attached listener port, reserved against its own row of the service's
// event bitmap by internal/dynstate (spec §4.4, §4.5).
type Listener struct {
	channel *Channel
	slot    int
	release func()
	closed  bool

	watcherOnce sync.Once
	watcher     *platform.SignalWatcher
}

// NewListener constructs a Listener attached to channel at the given
// slot index. release is invoked once, from Drop, to return the
// listener slot this instance was reserved against.
func NewListener(channel *Channel, slot int, release func()) *Listener {
	return &Listener{channel: channel, slot: slot, release: release}
}

func (l *Listener) ensureWatcher() *platform.SignalWatcher {
	l.watcherOnce.Do(func() {
		l.watcher = platform.NewSignalWatcher()
	})
	return l.watcher
}

// TryWaitOne returns the lowest pending event id without blocking.
// ok is false if nothing is pending.
func (l *Listener) TryWaitOne() (EventId, bool, error) {
	if l.closed {
		return 0, false, errListenerClosed
	}
	id, ok := l.channel.LowestSet(l.slot)
	if !ok {
		return 0, false, nil
	}
	l.channel.TestAndClear(l.slot, id)
	return id, true, nil
}

// TimedWaitOne blocks until an event id is pending or timeout elapses,
// re-checking the bitmap on every wake per spec §9's "no return on
// spurious wakeups."
func (l *Listener) TimedWaitOne(timeout time.Duration) (EventId, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		if id, ok, err := l.TryWaitOne(); ok || err != nil {
			return id, ok, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, false, nil
		}
		seq := l.channel.ListenerSeqValue(l.slot)
		if err := platform.FutexWait(l.channel.ListenerSeqAddr(l.slot), seq, remaining); err != nil && !errors.Is(err, platform.ErrFutexTimeout) {
			return 0, false, shmerr.ErrInternalFailure
		}
	}
}

// BlockingWaitOne blocks indefinitely until an event id is pending or
// an OS termination signal arrives, surfaced as ErrInterruptSignal.
func (l *Listener) BlockingWaitOne() (EventId, bool, error) {
	watcher := l.ensureWatcher()
	for {
		if id, ok, err := l.TryWaitOne(); ok || err != nil {
			return id, ok, err
		}
		select {
		case <-watcher.Events():
			return 0, false, shmerr.ErrInterruptSignal
		default:
		}
		seq := l.channel.ListenerSeqValue(l.slot)
		_ = platform.FutexWait(l.channel.ListenerSeqAddr(l.slot), seq, spinPoll)
	}
}

// TryWaitAll drains every currently pending id, invoking fn once per
// id, without blocking.
func (l *Listener) TryWaitAll(fn func(EventId)) error {
	if l.closed {
		return errListenerClosed
	}
	l.channel.DrainAll(l.slot, fn)
	return nil
}

// TimedWaitAll blocks until at least one id is pending (draining all of
// them) or timeout elapses.
func (l *Listener) TimedWaitAll(timeout time.Duration, fn func(EventId)) error {
	if l.closed {
		return errListenerClosed
	}
	deadline := time.Now().Add(timeout)
	for {
		if l.channel.HasPending(l.slot) {
			l.channel.DrainAll(l.slot, fn)
			return nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		seq := l.channel.ListenerSeqValue(l.slot)
		if err := platform.FutexWait(l.channel.ListenerSeqAddr(l.slot), seq, remaining); err != nil && !errors.Is(err, platform.ErrFutexTimeout) {
			return shmerr.ErrInternalFailure
		}
	}
}

// BlockingWaitAll blocks indefinitely until at least one id is pending
// (draining all of them) or an OS termination signal arrives.
func (l *Listener) BlockingWaitAll(fn func(EventId)) error {
	if l.closed {
		return errListenerClosed
	}
	watcher := l.ensureWatcher()
	for {
		if l.channel.HasPending(l.slot) {
			l.channel.DrainAll(l.slot, fn)
			return nil
		}
		select {
		case <-watcher.Events():
			return shmerr.ErrInterruptSignal
		default:
		}
		seq := l.channel.ListenerSeqValue(l.slot)
		_ = platform.FutexWait(l.channel.ListenerSeqAddr(l.slot), seq, spinPoll)
	}
}

// Drop releases the listener slot and stops the signal watcher, if one
// was created. Drop is idempotent.
func (l *Listener) Drop() error {
	if l.closed {
		return nil
	}
	l.closed = true
	if l.watcher != nil {
		l.watcher.Close()
	}
	if l.release != nil {
		l.release()
	}
	return nil
}

// Close is an alias for Drop, matching Go's io.Closer convention.
func (l *Listener) Close() error { return l.Drop() }
