package event

import (
	"errors"
	"time"

	"github.com/vansweej/iceoryx2/shmerr"
)

var errNotifierClosed = errors.New("event: notifier already dropped")

// Notifier is the write side of a service's event channel: one per
// attached notifier port, reserved against the service's dynamic state
// by internal/dynstate (spec §4.4).
type Notifier struct {
	channel      *Channel
	maxEventId   uint64
	deadline     *time.Duration
	createdEvent *uint64
	droppedEvent *uint64

	lastNotify time.Time
	closed     bool

	release func()
}

// NewNotifier constructs a Notifier already attached to channel. The
// deadline clock starts here, at construction, not at the first Notify
// call — a notifier that sits idle past its deadline before ever being
// notified must still report ErrMissedDeadline on that first call (spec
// §8 "Service with deadline; notifier idle past deadline; notify").
// If createdEvent is set it is emitted immediately (spec §4.4 "notifier
// created event"). release is invoked once, from Drop, to return the
// notifier slot this instance was reserved against.
func NewNotifier(channel *Channel, maxEventId uint64, deadline *time.Duration, createdEvent, droppedEvent *uint64, release func()) *Notifier {
	n := &Notifier{
		channel:      channel,
		maxEventId:   maxEventId,
		deadline:     deadline,
		createdEvent: createdEvent,
		droppedEvent: droppedEvent,
		lastNotify:   time.Now(),
		release:      release,
	}
	if createdEvent != nil {
		channel.Set(*createdEvent)
	}
	return n
}

// Notify emits event id 0.
func (n *Notifier) Notify() error {
	return n.NotifyWithCustomEventId(0)
}

// NotifyWithCustomEventId validates id against the service's configured
// range, checks the notification deadline (if one is configured), sets
// the bit in every attached listener's row, and updates the deadline
// clock. A missed deadline is delivered anyway and reported via
// ErrMissedDeadline — this module's resolved Open Question decision
// (spec §9), not a silent drop.
func (n *Notifier) NotifyWithCustomEventId(id EventId) error {
	if n.closed {
		return errNotifierClosed
	}
	if id > n.maxEventId {
		return shmerr.ErrEventIdOutOfBounds
	}

	now := time.Now()
	missed := n.deadline != nil && now.Sub(n.lastNotify) > *n.deadline
	n.lastNotify = now

	n.channel.Set(id)

	if missed {
		return shmerr.ErrMissedDeadline
	}
	return nil
}

// Drop emits the notifier-dropped event, if configured, and releases
// the underlying slot. Drop is idempotent.
func (n *Notifier) Drop() error {
	if n.closed {
		return nil
	}
	n.closed = true
	if n.droppedEvent != nil {
		n.channel.Set(*n.droppedEvent)
	}
	if n.release != nil {
		n.release()
	}
	return nil
}

// Close is an alias for Drop, matching Go's io.Closer convention.
func (n *Notifier) Close() error { return n.Drop() }
