package dynstate

import (
	"github.com/vansweej/iceoryx2/event"
	"github.com/vansweej/iceoryx2/internal/registry"
)

// CreateNotifier reserves a notifier slot for nodeTag and returns an
// attached event.Notifier, wiring its release callback back to this
// slot (spec §4.4).
func (s *State) CreateNotifier(nodeTag string, static registry.StaticConfigEvent) (*event.Notifier, error) {
	slot, _, err := s.ReserveNotifier(nodeTag)
	if err != nil {
		return nil, err
	}
	channel := s.Channel()
	release := func() { s.ReleaseNotifier(slot) }
	return event.NewNotifier(channel, static.EventIdMaxValue, static.Deadline, static.NotifierCreatedEvent, static.NotifierDroppedEvent, release), nil
}

// CreateListener reserves a listener slot for nodeTag and returns an
// attached event.Listener.
func (s *State) CreateListener(nodeTag string) (*event.Listener, error) {
	slot, _, err := s.ReserveListener(nodeTag)
	if err != nil {
		return nil, err
	}
	channel := s.Channel()
	release := func() { s.ReleaseListener(slot) }
	return event.NewListener(channel, slot, release), nil
}
