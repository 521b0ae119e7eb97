// Package event implements the Event Messaging Subsystem (spec §4.4,
// §4.5): a per-service id bitmap Notifiers set and Listeners drain,
// generalizing the teacher's single-producer/single-consumer byte
// ring (ring.go) to a single-producer, multi-consumer set of small
// integers.
package event

// EventId identifies one distinguishable event within a service's
// configured range [0, EventIdMaxValue].
type EventId = uint64
