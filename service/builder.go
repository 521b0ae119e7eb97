package service

import (
	"errors"
	"time"

	"github.com/vansweej/iceoryx2/internal/dynstate"
	"github.com/vansweej/iceoryx2/internal/registry"
	"github.com/vansweej/iceoryx2/node"
	"github.com/vansweej/iceoryx2/shmerr"
)

// EventBuilder configures and opens, creates, or opens-or-creates an
// Event-pattern service (spec §4.3). A zero-value EventBuilder is
// never valid; always start from NewEventBuilder.
type EventBuilder struct {
	node *node.Node
	name Name

	static   registry.StaticConfigEvent
	attrs    AttributeSet
	verifier *AttributeVerifier
}

// NewEventBuilder starts building an Event service named name, seeded
// with n's configured Event defaults (spec §4.1 "Defaults.Event").
func NewEventBuilder(n *node.Node, name Name) *EventBuilder {
	def := n.Config().Defaults.Event
	return &EventBuilder{
		node: n,
		name: name,
		static: registry.StaticConfigEvent{
			MaxNotifiers:    def.MaxNotifiers,
			MaxListeners:    def.MaxListeners,
			MaxNodes:        def.MaxNodes,
			EventIdMaxValue: def.EventIdMaxValue,
			Deadline:        def.Deadline,
		},
	}
}

func (b *EventBuilder) MaxNotifiers(n int) *EventBuilder    { b.static.MaxNotifiers = n; return b }
func (b *EventBuilder) MaxListeners(n int) *EventBuilder    { b.static.MaxListeners = n; return b }
func (b *EventBuilder) MaxNodes(n int) *EventBuilder        { b.static.MaxNodes = n; return b }
func (b *EventBuilder) EventIdMaxValue(n uint64) *EventBuilder {
	b.static.EventIdMaxValue = n
	return b
}

func (b *EventBuilder) NotifierCreatedEvent(id EventId) *EventBuilder {
	v := id
	b.static.NotifierCreatedEvent = &v
	return b
}

func (b *EventBuilder) NotifierDroppedEvent(id EventId) *EventBuilder {
	v := id
	b.static.NotifierDroppedEvent = &v
	return b
}

func (b *EventBuilder) NotifierDeadEvent(id EventId) *EventBuilder {
	v := id
	b.static.NotifierDeadEvent = &v
	return b
}

func (b *EventBuilder) Deadline(d time.Duration) *EventBuilder {
	b.static.Deadline = &d
	return b
}

func (b *EventBuilder) DisableDeadline() *EventBuilder {
	b.static.Deadline = nil
	return b
}

func (b *EventBuilder) AttributeVerifier(v AttributeVerifier) *EventBuilder {
	b.verifier = &v
	return b
}

func (b *EventBuilder) Attributes(attrs AttributeSet) *EventBuilder {
	b.attrs = attrs
	return b
}

// Open attaches to an existing Ready Event service, enforcing the full
// Open error taxonomy of spec §7: registry-level discovery errors, then
// attribute-verifier and minimum-capability checks against the builder's
// requested values.
func (b *EventBuilder) Open() (*PortFactoryEvent, error) {
	cfg := b.node.Config()
	desc, err := registry.Open(cfg, b.name, registry.Event)
	if err != nil {
		return nil, err
	}

	if b.verifier != nil && !b.verifier.Verify(desc.Attributes) {
		return nil, shmerr.ErrIncompatibleAttributes
	}
	if b.static.MaxNotifiers > desc.Static.MaxNotifiers {
		return nil, shmerr.ErrDoesNotSupportRequestedAmountOfNotifiers
	}
	if b.static.MaxListeners > desc.Static.MaxListeners {
		return nil, shmerr.ErrDoesNotSupportRequestedAmountOfListeners
	}
	if b.static.MaxNodes > desc.Static.MaxNodes {
		return nil, shmerr.ErrDoesNotSupportRequestedAmountOfNodes
	}
	if b.static.EventIdMaxValue > desc.Static.EventIdMaxValue {
		return nil, shmerr.ErrDoesNotSupportRequestedMaxEventId
	}

	state, err := dynstate.Open(cfg, desc.ID, desc.Static)
	if err != nil {
		return nil, shmerr.ErrOpenInternalFailure
	}

	slot, _, err := state.ReserveParticipant(b.node.Id().String())
	if err != nil {
		state.Close()
		return nil, err
	}
	return newPortFactory(cfg, *desc, state, b.node.Id().String(), slot), nil
}

// Create publishes a new Ready Event service, then allocates its
// dynamic state. If the dynamic state fails to allocate after the
// static descriptor has already been published, the descriptor is
// marked for destruction rather than left dangling as a phantom
// Ready service with no backing state.
func (b *EventBuilder) Create() (*PortFactoryEvent, error) {
	cfg := b.node.Config()
	desc, err := registry.Create(cfg, b.name, registry.Event, b.static, b.attrs, b.node.Id().String())
	if err != nil {
		return nil, err
	}

	state, err := dynstate.Create(cfg, desc.ID, desc.Static)
	if err != nil {
		_ = registry.MarkForDestruction(cfg, desc.ID)
		if derr := registry.DestroyIfOrphaned(cfg, desc.ID); derr == nil {
			_ = dynstate.Remove(cfg, desc.ID)
		}
		return nil, shmerr.ErrCreateInternalFailure
	}

	slot, _, err := state.ReserveParticipant(b.node.Id().String())
	if err != nil {
		state.Close()
		_ = registry.MarkForDestruction(cfg, desc.ID)
		if derr := registry.DestroyIfOrphaned(cfg, desc.ID); derr == nil {
			_ = dynstate.Remove(cfg, desc.ID)
		}
		return nil, err
	}
	return newPortFactory(cfg, *desc, state, b.node.Id().String(), slot), nil
}

// OpenOrCreate tries Open, falls back to Create on ErrDoesNotExist, and
// retries the create-or-observe-someone-else's-create race until
// cfg.ServiceCreationTimeout elapses (spec §4.3 "OpenOrCreate"). Every
// error returned is tagged with the phase it occurred in via
// shmerr.WithPhase.
func (b *EventBuilder) OpenOrCreate() (*PortFactoryEvent, error) {
	cfg := b.node.Config()
	deadline := time.Now().Add(cfg.ServiceCreationTimeout)

	for {
		pf, err := b.Open()
		if err == nil {
			return pf, nil
		}
		if !errors.Is(err, shmerr.ErrDoesNotExist) {
			return nil, shmerr.WithPhase(err, shmerr.PhaseOpen)
		}

		pf, err = b.Create()
		if err == nil {
			return pf, nil
		}
		if errors.Is(err, shmerr.ErrAlreadyExists) || errors.Is(err, shmerr.ErrIsBeingCreatedByAnotherInstance) {
			if time.Now().After(deadline) {
				return nil, shmerr.WithPhase(err, shmerr.PhaseCreate)
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		return nil, shmerr.WithPhase(err, shmerr.PhaseCreate)
	}
}
