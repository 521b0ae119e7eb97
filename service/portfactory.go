package service

import (
	"sync"

	"github.com/vansweej/iceoryx2/config"
	"github.com/vansweej/iceoryx2/event"
	"github.com/vansweej/iceoryx2/internal/dynstate"
	"github.com/vansweej/iceoryx2/internal/registry"
)

// PortFactoryEvent bundles a service's static QoS and live dynamic
// state, and owns the reference count that decides when the service
// can finally be destroyed (spec §3, §9 "Cyclic ownership").
// NotifierBuilder/ListenerBuilder increment the count on construction;
// the ports' own Drop decrements it, and Drop reaching zero on a
// MarkedForDestruction service destroys it immediately rather than
// waiting for the reaper. It also holds the participant-table slot the
// owning node reserved when it attached (spec §4.3 "attach to dynamic
// state"), released on Drop.
type PortFactoryEvent struct {
	cfg     *config.View
	desc    registry.Descriptor
	state   *dynstate.State
	nodeTag string

	participantSlot int

	mu       sync.Mutex
	refCount int
	closed   bool
}

func newPortFactory(cfg *config.View, desc registry.Descriptor, state *dynstate.State, nodeTag string, participantSlot int) *PortFactoryEvent {
	return &PortFactoryEvent{cfg: cfg, desc: desc, state: state, nodeTag: nodeTag, participantSlot: participantSlot}
}

// StaticConfig returns the service's immutable QoS.
func (pf *PortFactoryEvent) StaticConfig() StaticConfigEvent { return pf.desc.Static }

// Name returns the service's name.
func (pf *PortFactoryEvent) Name() Name { return pf.desc.Name }

// Id returns the service's id.
func (pf *PortFactoryEvent) Id() Id { return pf.desc.ID }

func (pf *PortFactoryEvent) acquire() {
	pf.mu.Lock()
	pf.refCount++
	pf.mu.Unlock()
}

func (pf *PortFactoryEvent) release() {
	pf.mu.Lock()
	pf.refCount--
	count := pf.refCount
	closed := pf.closed
	pf.mu.Unlock()
	if count > 0 {
		return
	}
	if closed {
		defer pf.state.Close()
	}

	desc, err := registry.OpenByID(pf.cfg, pf.desc.ID)
	if err != nil || desc.Marker != registry.MarkerMarkedForDestruction {
		return
	}
	if pf.state.ParticipantCount() > 0 {
		return
	}
	if err := registry.DestroyIfOrphaned(pf.cfg, pf.desc.ID); err == nil {
		_ = dynstate.Remove(pf.cfg, pf.desc.ID)
	}
}

// Drop marks the service for destruction. A live port keeps the
// dynamic state attached until every port that was built against this
// factory has itself been dropped (spec §4.3 "destroy").
func (pf *PortFactoryEvent) Drop() error {
	pf.mu.Lock()
	if pf.closed {
		pf.mu.Unlock()
		return nil
	}
	pf.closed = true
	count := pf.refCount
	pf.mu.Unlock()

	pf.state.ReleaseParticipant(pf.participantSlot)

	if err := registry.MarkForDestruction(pf.cfg, pf.desc.ID); err != nil {
		return err
	}
	if count == 0 && pf.state.ParticipantCount() == 0 {
		if err := registry.DestroyIfOrphaned(pf.cfg, pf.desc.ID); err == nil {
			_ = dynstate.Remove(pf.cfg, pf.desc.ID)
		}
	}
	if count > 0 {
		return nil // the last port's release closes the state
	}
	return pf.state.Close()
}

// NotifierBuilder begins configuring a notifier port attached to this
// service.
func (pf *PortFactoryEvent) NotifierBuilder() *NotifierBuilder {
	pf.acquire()
	return &NotifierBuilder{pf: pf}
}

// ListenerBuilder begins configuring a listener port attached to this
// service.
func (pf *PortFactoryEvent) ListenerBuilder() *ListenerBuilder {
	pf.acquire()
	return &ListenerBuilder{pf: pf}
}

// NotifierBuilder's only terminal action is Create; a notifier has no
// "open" phase distinct from the service's own Open/Create (spec §4.4).
type NotifierBuilder struct {
	pf *PortFactoryEvent
}

// Create reserves and returns a Notifier attached to the service.
func (nb *NotifierBuilder) Create() (*Notifier, error) {
	n, err := nb.pf.state.CreateNotifier(nb.pf.nodeTag, nb.pf.desc.Static)
	if err != nil {
		nb.pf.release()
		return nil, err
	}
	return &Notifier{Notifier: n, pf: nb.pf}, nil
}

// ListenerBuilder's only terminal action is Create.
type ListenerBuilder struct {
	pf *PortFactoryEvent
}

// Create reserves and returns a Listener attached to the service.
func (lb *ListenerBuilder) Create() (*Listener, error) {
	l, err := lb.pf.state.CreateListener(lb.pf.nodeTag)
	if err != nil {
		lb.pf.release()
		return nil, err
	}
	return &Listener{Listener: l, pf: lb.pf}, nil
}

// Notifier wraps event.Notifier to release the owning PortFactoryEvent's
// reference count on Drop, so the last port dropped from a
// MarkedForDestruction service triggers immediate cleanup.
type Notifier struct {
	*event.Notifier
	pf *PortFactoryEvent
}

func (n *Notifier) Drop() error {
	err := n.Notifier.Drop()
	n.pf.release()
	return err
}

func (n *Notifier) Close() error { return n.Drop() }

// Listener wraps event.Listener the same way Notifier does.
type Listener struct {
	*event.Listener
	pf *PortFactoryEvent
}

func (l *Listener) Drop() error {
	err := l.Listener.Drop()
	l.pf.release()
	return err
}

func (l *Listener) Close() error { return l.Drop() }
