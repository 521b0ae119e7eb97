// Package shmerr defines the error taxonomy shared across the discovery,
// registry, builder, notifier and listener surfaces. Those surfaces
// report their taxonomy failures as one of these sentinels (optionally
// wrapped with fmt.Errorf's %w), never a panic. Node construction, raw
// dynamic-state access and use of an already-dropped port return plain
// package-local errors instead.
package shmerr

import "errors"

// Kind classifies an error into one of the taxonomy buckets from the
// specification's error handling design.
type Kind int

const (
	KindUnknown Kind = iota
	KindDiscovery
	KindOpen
	KindCreate
	KindOpenOrCreate
	KindNotifier
	KindListener
)

// Phase disambiguates the origin of an OpenOrCreate error.
type Phase int

const (
	PhaseNone Phase = iota
	PhaseOpen
	PhaseCreate
)

type coded struct {
	kind  Kind
	phase Phase
	err   error
}

func (c *coded) Error() string { return c.err.Error() }
func (c *coded) Unwrap() error { return c.err }

// KindOf reports the taxonomy bucket of err, if it was produced by this
// package. Errors not produced here report KindUnknown.
func KindOf(err error) Kind {
	var c *coded
	if errors.As(err, &c) {
		return c.kind
	}
	return KindUnknown
}

// PhaseOf reports whether err originated from the open or create phase of
// an OpenOrCreate call.
func PhaseOf(err error) Phase {
	var c *coded
	if errors.As(err, &c) {
		return c.phase
	}
	return PhaseNone
}

func wrap(kind Kind, err error) error {
	return &coded{kind: kind, err: err}
}

// WithPhase tags err (typically one of the Open/Create sentinels below)
// with the phase it occurred in, for use by OpenOrCreate.
func WithPhase(err error, phase Phase) error {
	var c *coded
	if errors.As(err, &c) {
		return &coded{kind: KindOpenOrCreate, phase: phase, err: c.err}
	}
	return &coded{kind: KindOpenOrCreate, phase: phase, err: err}
}

// Discovery errors (spec §7 "Discovery errors").
var (
	ErrServiceDoesNotExist       = wrap(KindDiscovery, errors.New("service does not exist"))
	ErrServiceAlreadyExists      = wrap(KindDiscovery, errors.New("service already exists"))
	ErrServiceInCorruptedState   = wrap(KindDiscovery, errors.New("service is in a corrupted state"))
	ErrFailedToReadDescriptor    = wrap(KindDiscovery, errors.New("failed to read or deserialize static descriptor"))
	ErrVersionMismatch           = wrap(KindDiscovery, errors.New("static descriptor schema version mismatch"))
	ErrInsufficientPermissions   = wrap(KindDiscovery, errors.New("insufficient permissions"))
	ErrFailedToAcquireNodeState  = wrap(KindDiscovery, errors.New("failed to acquire node state"))
)

// Open errors (spec §7 "Open errors").
var (
	ErrDoesNotExist                             = wrap(KindOpen, errors.New("does not exist"))
	ErrOpenInsufficientPermissions              = wrap(KindOpen, errors.New("insufficient permissions"))
	ErrOpenServiceInCorruptedState              = wrap(KindOpen, errors.New("service is in a corrupted state"))
	ErrIncompatibleMessagingPattern             = wrap(KindOpen, errors.New("incompatible messaging pattern"))
	ErrIncompatibleAttributes                   = wrap(KindOpen, errors.New("incompatible attributes"))
	ErrOpenInternalFailure                      = wrap(KindOpen, errors.New("internal failure during open"))
	ErrHangsInCreation                          = wrap(KindOpen, errors.New("service hangs in creation"))
	ErrDoesNotSupportRequestedAmountOfNotifiers = wrap(KindOpen, errors.New("does not support requested amount of notifiers"))
	ErrDoesNotSupportRequestedAmountOfListeners = wrap(KindOpen, errors.New("does not support requested amount of listeners"))
	ErrDoesNotSupportRequestedAmountOfNodes     = wrap(KindOpen, errors.New("does not support requested amount of nodes"))
	ErrDoesNotSupportRequestedMaxEventId        = wrap(KindOpen, errors.New("does not support requested max event id"))
	ErrExceedsMaxNumberOfNodes                  = wrap(KindOpen, errors.New("exceeds max number of nodes"))
	ErrIsMarkedForDestruction                   = wrap(KindOpen, errors.New("service is marked for destruction"))
)

// Create errors (spec §7 "Create errors").
var (
	ErrCreateServiceInCorruptedState    = wrap(KindCreate, errors.New("service is in a corrupted state"))
	ErrCreateInternalFailure            = wrap(KindCreate, errors.New("internal failure during create"))
	ErrIsBeingCreatedByAnotherInstance  = wrap(KindCreate, errors.New("is being created by another instance"))
	ErrAlreadyExists                     = wrap(KindCreate, errors.New("already exists"))
	ErrCreateHangsInCreation             = wrap(KindCreate, errors.New("hangs in creation"))
	ErrCreateInsufficientPermissions     = wrap(KindCreate, errors.New("insufficient permissions"))
	ErrOldConnectionsStillActive         = wrap(KindCreate, errors.New("old connections still active"))
)

// Notifier errors (spec §7 "Notifier errors").
var (
	ErrExceedsMaxSupportedNotifiers = wrap(KindNotifier, errors.New("exceeds max supported notifiers"))
	ErrEventIdOutOfBounds           = wrap(KindNotifier, errors.New("event id out of bounds"))
	ErrMissedDeadline               = wrap(KindNotifier, errors.New("missed notification deadline"))
)

// Listener errors (spec §7 "Listener errors").
var (
	ErrExceedsMaxSupportedListeners   = wrap(KindListener, errors.New("exceeds max supported listeners"))
	ErrListenerResourceCreationFailed = wrap(KindListener, errors.New("listener resource creation failed"))
	ErrContractViolation              = wrap(KindListener, errors.New("contract violation"))
	ErrInterruptSignal                = wrap(KindListener, errors.New("interrupted by signal"))
	ErrInternalFailure                = wrap(KindListener, errors.New("internal failure"))
)
