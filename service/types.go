// Package service implements the public surface of the Service
// Discovery and Lifecycle Engine (spec §4.3): names, messaging
// patterns, ids, attribute sets, the EventBuilder state machine, and
// PortFactoryEvent. It is a thin, reference-counted wrapper around
// internal/registry (the durable static descriptor) and
// internal/dynstate (the live dynamic state), keeping the domain value
// types defined once in internal/registry and re-exported here via Go
// type aliases so internal/registry never needs to import service.
package service

import (
	"github.com/vansweej/iceoryx2/event"
	"github.com/vansweej/iceoryx2/internal/registry"
)

type (
	Name              = registry.Name
	MessagingPattern  = registry.MessagingPattern
	Id                = registry.Id
	Attribute         = registry.Attribute
	AttributeSet      = registry.AttributeSet
	AttributeVerifier = registry.AttributeVerifier
	StaticConfigEvent = registry.StaticConfigEvent
	Marker            = registry.Marker
	Descriptor        = registry.Descriptor
	EventId           = event.EventId
)

const (
	PublishSubscribe = registry.PublishSubscribe
	Event            = registry.Event
	RequestResponse  = registry.RequestResponse
)

const (
	MarkerUninitialized       = registry.MarkerUninitialized
	MarkerCreating            = registry.MarkerCreating
	MarkerReady               = registry.MarkerReady
	MarkerMarkedForDestruction = registry.MarkerMarkedForDestruction
)
