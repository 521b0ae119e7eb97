// Package registry implements the Static Service Registry (spec §4.2):
// a durable, on-disk mapping from (prefix, service-name, messaging
// pattern) to a serialized static service descriptor, plus the
// discovery operations (does-exist, list) that read it without
// attaching to dynamic state.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/vansweej/iceoryx2/config"
)

// MessagingPattern mirrors iceoryx2's messaging_pattern.rs enum. Only
// Event has a working builder in this module; PublishSubscribe and
// RequestResponse are defined so Name/Id/Descriptor plumbing has
// somewhere to route a pattern tag, matching spec.md's explicit
// out-of-scope note that those patterns are external collaborators.
type MessagingPattern uint8

const (
	PublishSubscribe MessagingPattern = iota
	Event
	RequestResponse
)

func (p MessagingPattern) String() string {
	switch p {
	case PublishSubscribe:
		return "publish-subscribe"
	case Event:
		return "event"
	case RequestResponse:
		return "request-response"
	default:
		return "unknown"
	}
}

// Name is a bounded UTF-8 service name (spec §3: length <= configured
// max, no path separators).
type Name string

// Validate checks Name against the config's length limit and rejects
// path separators, which would otherwise let a service name escape the
// services directory.
func (n Name) Validate(cfg *config.View) error {
	if len(n) == 0 {
		return fmt.Errorf("registry: service name must not be empty")
	}
	if cfg != nil && len(n) > cfg.MaxServiceNameLength {
		return fmt.Errorf("registry: service name %q exceeds max length %d", n, cfg.MaxServiceNameLength)
	}
	if strings.ContainsAny(string(n), "/\\") {
		return fmt.Errorf("registry: service name %q must not contain path separators", n)
	}
	return nil
}

// Id is a stable, filesystem-safe hash of (prefix, name), spec §3
// "ServiceId". A service name is unique within a prefix regardless of
// which messaging pattern it was created with — the pattern actually
// stored in the descriptor is compared against the pattern a builder
// requests at open time, which is what makes
// IncompatibleMessagingPattern (spec §4.3, §7) a distinct, reachable
// error instead of a simple DoesNotExist. See DESIGN.md's Open
// Question decisions for why pattern is deliberately excluded from the
// hash input despite spec.md's data-model table listing it alongside
// prefix and name.
type Id [16]byte

// NewId derives the stable service id for (prefix, name).
func NewId(prefix string, name Name) Id {
	sum := sha256.Sum256([]byte(prefix + "\x00" + string(name)))
	var id Id
	copy(id[:], sum[:16])
	return id
}

// String renders the id as a lowercase hex string, safe to embed in
// filenames.
func (id Id) String() string { return hex.EncodeToString(id[:]) }

// Attribute is a single (key, value) pair. Keys may repeat within an
// AttributeSet (spec §3).
type Attribute struct {
	Key   string
	Value string
}

// AttributeSet is an ordered list of attributes, read-only once a
// service is created.
type AttributeSet []Attribute

// Get returns every value recorded for key, in insertion order.
func (s AttributeSet) Get(key string) []string {
	var values []string
	for _, a := range s {
		if a.Key == key {
			values = append(values, a.Value)
		}
	}
	return values
}

// Has reports whether (key, value) appears anywhere in the set.
func (s AttributeSet) Has(key, value string) bool {
	for _, a := range s {
		if a.Key == key && a.Value == value {
			return true
		}
	}
	return false
}

// HasKey reports whether key appears at least once in the set.
func (s AttributeSet) HasKey(key string) bool {
	for _, a := range s {
		if a.Key == key {
			return true
		}
	}
	return false
}

// AttributeVerifier holds the requirements an Open() call places on an
// existing service's attribute set (spec §4.3 "Attribute verification").
type AttributeVerifier struct {
	RequiredPairs []Attribute
	RequiredKeys  []string
}

// Verify reports whether set satisfies every required pair and key.
func (v AttributeVerifier) Verify(set AttributeSet) bool {
	for _, pair := range v.RequiredPairs {
		if !set.Has(pair.Key, pair.Value) {
			return false
		}
	}
	for _, key := range v.RequiredKeys {
		if !set.HasKey(key) {
			return false
		}
	}
	return true
}

// StaticConfigEvent is the immutable, once-Ready QoS and lifecycle-event
// configuration of an Event service (spec §3).
type StaticConfigEvent struct {
	MaxNotifiers    int
	MaxListeners    int
	MaxNodes        int
	EventIdMaxValue uint64
	Deadline        *time.Duration

	NotifierCreatedEvent *uint64
	NotifierDroppedEvent *uint64
	NotifierDeadEvent    *uint64
}

// Marker is the per-service state machine of spec §4.3.
type Marker uint8

const (
	MarkerUninitialized Marker = iota
	MarkerCreating
	MarkerReady
	MarkerMarkedForDestruction
)

// Descriptor is the full, decoded contents of a static service
// descriptor file.
type Descriptor struct {
	ID         Id
	Name       Name
	Pattern    MessagingPattern
	Static     StaticConfigEvent
	Attributes AttributeSet
	Marker     Marker

	// CreatingOwner/CreatingDeadline are only meaningful while Marker ==
	// MarkerCreating.
	CreatingOwner    string
	CreatingDeadline time.Time
}
