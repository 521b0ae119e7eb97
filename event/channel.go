package event

import (
	"math/bits"
	"sync/atomic"

	"github.com/vansweej/iceoryx2/internal/platform"
)

// Channel is the bitmap wake-up primitive embedded in a service's
// Dynamic Service State (spec §4.5): every attached listener gets its
// own fixed-capacity row of the pending-id bitmap plus its own futex
// word, so Set(id) fans an event out to every listener independently —
// one listener draining an id never hides it from another that hasn't
// drained yet (spec §5 "single-producer, multi-consumer"). This
// generalizes the teacher's single shared dataSeq/spaceSeq pair
// (ring.go's SPSC ring) from one reader to N independent readers.
type Channel struct {
	bitmap      []uint64 // flattened [listener][bitmapWords]
	bitmapWords int
	listenerSeq []uint32
	maxEventId  uint64
}

// NewChannel wraps the raw bitmap and per-listener sequence words
// already carved out of a dynamic state segment by internal/dynstate.
// bitmap must have len(listenerSeq)*bitmapWords elements.
func NewChannel(bitmap []uint64, bitmapWords int, listenerSeq []uint32, maxEventId uint64) *Channel {
	return &Channel{bitmap: bitmap, bitmapWords: bitmapWords, listenerSeq: listenerSeq, maxEventId: maxEventId}
}

// MaxEventId returns the service's configured largest event id. The
// bitmap rows are whole words, so they can hold ids above it; Set does
// not check the bound itself.
func (c *Channel) MaxEventId() uint64 { return c.maxEventId }

func (c *Channel) row(listener int) []uint64 {
	start := listener * c.bitmapWords
	return c.bitmap[start : start+c.bitmapWords]
}

// Set marks id pending in every listener's row and wakes every
// listener slot. Repeated Set(id) calls before an observer drains
// collapse into a no-op beyond the bitmap OR (spec §4.5 "coalescing").
func (c *Channel) Set(id EventId) {
	word, bit := id/64, id%64
	mask := uint64(1) << bit
	for i := range c.listenerSeq {
		row := c.row(i)
		for {
			old := atomic.LoadUint64(&row[word])
			updated := old | mask
			if updated == old {
				break
			}
			if atomic.CompareAndSwapUint64(&row[word], old, updated) {
				break
			}
		}
		atomic.AddUint32(&c.listenerSeq[i], 1)
		_, _ = platform.FutexWake(&c.listenerSeq[i], 1)
	}
}

// ClearRow zeroes a listener's row, used when a listener slot is first
// reserved so it never observes ids pending from before it attached.
func (c *Channel) ClearRow(listener int) {
	row := c.row(listener)
	for i := range row {
		atomic.StoreUint64(&row[i], 0)
	}
}

// TestAndClear atomically clears id in listener's row if it was
// pending there, reporting whether it was.
func (c *Channel) TestAndClear(listener int, id EventId) bool {
	word, bit := id/64, id%64
	mask := uint64(1) << bit
	row := c.row(listener)
	for {
		old := atomic.LoadUint64(&row[word])
		if old&mask == 0 {
			return false
		}
		if atomic.CompareAndSwapUint64(&row[word], old, old&^mask) {
			return true
		}
	}
}

// LowestSet returns the lowest id pending in listener's row without
// clearing it.
func (c *Channel) LowestSet(listener int) (EventId, bool) {
	row := c.row(listener)
	for w := range row {
		word := atomic.LoadUint64(&row[w])
		if word == 0 {
			continue
		}
		return EventId(w*64 + bits.TrailingZeros64(word)), true
	}
	return 0, false
}

// DrainAll atomically clears every id pending in listener's row and
// invokes fn once per id, lowest-first, within each word (spec §4.5/§8
// "exactly once per distinct pending id, single draining pass").
func (c *Channel) DrainAll(listener int, fn func(EventId)) {
	row := c.row(listener)
	for w := range row {
		old := atomic.SwapUint64(&row[w], 0)
		for old != 0 {
			bit := bits.TrailingZeros64(old)
			fn(EventId(w*64 + bit))
			old &^= uint64(1) << uint(bit)
		}
	}
}

// HasPending reports whether any id is currently pending in listener's
// row, without clearing anything — used by a listener's wait loop to
// distinguish a real wake from a spurious one.
func (c *Channel) HasPending(listener int) bool {
	_, ok := c.LowestSet(listener)
	return ok
}

// ListenerSeqAddr returns the futex word a listener attached at slot
// should wait on.
func (c *Channel) ListenerSeqAddr(slot int) *uint32 {
	return &c.listenerSeq[slot]
}

// ListenerSeqValue snapshots the current value of a listener's futex
// word, for use as the "expected" value passed to FutexWait.
func (c *Channel) ListenerSeqValue(slot int) uint32 {
	return atomic.LoadUint32(&c.listenerSeq[slot])
}
