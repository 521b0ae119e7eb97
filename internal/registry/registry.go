package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vansweej/iceoryx2/config"
	"github.com/vansweej/iceoryx2/internal/platform"
	"github.com/vansweej/iceoryx2/shmerr"
)

func staticPath(cfg *config.View, id Id) string {
	return filepath.Join(cfg.ServicesDir(), id.String()+cfg.ServiceStaticSuffix)
}

func creationLockPath(staticFile string) string {
	return staticFile + ".lock"
}

// readDescriptor loads and decodes the static descriptor at path,
// translating codec failures into the discovery error taxonomy (spec
// §7 "Discovery errors").
func readDescriptor(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w: %v", shmerr.ErrFailedToReadDescriptor, err)
	}
	desc, err := decodeDescriptor(data)
	if err != nil {
		var vm errVersionMismatch
		if errors.As(err, &vm) {
			return Descriptor{}, shmerr.ErrVersionMismatch
		}
		return Descriptor{}, fmt.Errorf("%w: %v", shmerr.ErrServiceInCorruptedState, err)
	}
	return desc, nil
}

// DoesExist reports whether a Ready service named name, created under
// pattern, exists (spec §4.2 "does_exist"). A same-named service
// created under a different MessagingPattern is a different service
// (spec §4.3 "ServiceId hash inputs"): registry.Id is hashed from
// (prefix, name) alone precisely so that case surfaces as a pattern
// mismatch rather than a filename collision, and DoesExist must honor
// that the same way Open does.
func DoesExist(cfg *config.View, name Name, pattern MessagingPattern) (bool, error) {
	id := NewId(cfg.Prefix, name)
	path := staticPath(cfg, id)
	if !platform.SegmentExists(path) {
		return false, nil
	}
	desc, err := readDescriptor(path)
	if err != nil {
		return false, err
	}
	return desc.Marker == MarkerReady && desc.Pattern == pattern, nil
}

// Create atomically publishes a new Ready descriptor for name, using an
// O_CREATE|O_EXCL claim on the static descriptor file as the "only one
// writer wins" primitive and a dedicated advisory lock to prove a
// creating process is still alive (spec §4.2 "create", §4.3 Creating
// phase).
func Create(cfg *config.View, name Name, pattern MessagingPattern, static StaticConfigEvent, attrs AttributeSet, owner string) (*Descriptor, error) {
	if err := name.Validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", shmerr.ErrCreateInternalFailure, err)
	}

	id := NewId(cfg.Prefix, name)
	path := staticPath(cfg, id)
	lockPath := creationLockPath(path)

	if err := os.MkdirAll(cfg.ServicesDir(), 0o700); err != nil {
		return nil, fmt.Errorf("%w: mkdir services dir: %v", shmerr.ErrCreateInternalFailure, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("%w: %v", shmerr.ErrCreateInternalFailure, err)
		}
		return nil, claimExisting(path, lockPath)
	}

	lock, err := platform.AcquireLock(lockPath)
	if err != nil {
		file.Close()
		_ = platform.RemoveFile(path)
		return nil, fmt.Errorf("%w: acquire creation lock: %v", shmerr.ErrCreateInternalFailure, err)
	}

	deadline := time.Now().Add(cfg.ServiceCreationTimeout)
	creating := Descriptor{
		ID:               id,
		Name:             name,
		Pattern:          pattern,
		Marker:           MarkerCreating,
		CreatingOwner:    owner,
		CreatingDeadline: deadline,
	}
	if _, err := file.Write(encodeDescriptor(creating)); err != nil {
		file.Close()
		lock.Close()
		_ = platform.RemoveFile(path)
		_ = platform.RemoveFile(lockPath)
		return nil, fmt.Errorf("%w: write creating stamp: %v", shmerr.ErrCreateInternalFailure, err)
	}
	file.Close()

	ready := Descriptor{
		ID:         id,
		Name:       name,
		Pattern:    pattern,
		Static:     static,
		Attributes: attrs,
		Marker:     MarkerReady,
	}
	if err := publishReady(path, ready); err != nil {
		lock.Close()
		_ = platform.RemoveFile(path)
		_ = platform.RemoveFile(lockPath)
		return nil, fmt.Errorf("%w: %v", shmerr.ErrCreateInternalFailure, err)
	}

	lock.Close()
	_ = platform.RemoveFile(lockPath)
	return &ready, nil
}

// publishReady writes desc to a temp file in the same directory as path
// and renames it into place, so readers never observe a half-written
// Ready descriptor (the atomic-rename idiom, in place of the teacher's
// single-writer-owns-the-fd discipline which doesn't apply once the
// Creating stamp has already made the file visible to other processes).
func publishReady(path string, desc Descriptor) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp descriptor: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(encodeDescriptor(desc)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp descriptor: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publish descriptor: %w", err)
	}
	return nil
}

// claimExisting classifies a failed O_EXCL claim: the descriptor file
// was already there, so read its marker and decide which Create error
// applies (spec §7 "Create errors").
func claimExisting(path, lockPath string) error {
	desc, err := readDescriptor(path)
	if err != nil {
		if errors.Is(err, shmerr.ErrVersionMismatch) {
			return err
		}
		return shmerr.ErrCreateServiceInCorruptedState
	}

	switch desc.Marker {
	case MarkerReady, MarkerMarkedForDestruction:
		return shmerr.ErrAlreadyExists
	case MarkerCreating:
		dead, probeErr := platform.ProbeDead(lockPath)
		stale := probeErr == nil && dead
		if time.Now().After(desc.CreatingDeadline) {
			stale = true
		}
		if stale {
			return shmerr.ErrCreateHangsInCreation
		}
		return shmerr.ErrIsBeingCreatedByAnotherInstance
	default:
		return shmerr.ErrCreateServiceInCorruptedState
	}
}

// Open reads a Ready descriptor for name, enforcing the discovery-time
// Open error taxonomy (spec §4.2 "open", §7 "Open errors"). Capability
// negotiation against requested minimums is the EventBuilder's job, not
// the registry's; Open only establishes that the named service exists,
// is Ready, and was created with a compatible messaging pattern.
func Open(cfg *config.View, name Name, pattern MessagingPattern) (*Descriptor, error) {
	id := NewId(cfg.Prefix, name)
	path := staticPath(cfg, id)

	if !platform.SegmentExists(path) {
		return nil, shmerr.ErrDoesNotExist
	}
	desc, err := readDescriptor(path)
	if err != nil {
		switch {
		case errors.Is(err, shmerr.ErrVersionMismatch):
			return nil, err
		default:
			return nil, shmerr.ErrOpenServiceInCorruptedState
		}
	}

	desc.ID = id

	if desc.Pattern != pattern {
		return nil, shmerr.ErrIncompatibleMessagingPattern
	}

	switch desc.Marker {
	case MarkerReady:
		return &desc, nil
	case MarkerMarkedForDestruction:
		return nil, shmerr.ErrIsMarkedForDestruction
	case MarkerCreating:
		return nil, shmerr.ErrHangsInCreation
	default:
		return nil, shmerr.ErrOpenServiceInCorruptedState
	}
}

// OpenByID is Open's counterpart for callers, like the reaper, that
// already know a service's Id and don't have (or care about) its name
// or requested pattern.
func OpenByID(cfg *config.View, id Id) (*Descriptor, error) {
	path := staticPath(cfg, id)
	if !platform.SegmentExists(path) {
		return nil, shmerr.ErrDoesNotExist
	}
	desc, err := readDescriptor(path)
	if err != nil {
		return nil, err
	}
	desc.ID = id
	return &desc, nil
}

// List invokes fn once per Ready or MarkedForDestruction service
// descriptor found in cfg.ServicesDir(). fn returning false stops the
// walk early (spec §4.2 "list").
func List(cfg *config.View, fn func(Descriptor) bool) error {
	entries, err := os.ReadDir(cfg.ServicesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("registry: read services dir: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, cfg.ServiceStaticSuffix) {
			continue
		}
		path := filepath.Join(cfg.ServicesDir(), name)
		desc, err := readDescriptor(path)
		if err != nil {
			continue // best-effort: skip descriptors we can't read
		}
		if desc.Marker != MarkerReady && desc.Marker != MarkerMarkedForDestruction {
			continue
		}
		desc.ID = NewId(cfg.Prefix, desc.Name)
		if !fn(desc) {
			return nil
		}
	}
	return nil
}

// ListIds is List narrowed to just the ids, for callers like the
// reaper that only need to iterate services without decoding every
// field up front.
func ListIds(cfg *config.View) ([]Id, error) {
	var ids []Id
	err := List(cfg, func(d Descriptor) bool {
		ids = append(ids, d.ID)
		return true
	})
	return ids, err
}

// MarkForDestruction flips a Ready descriptor's marker to
// MarkedForDestruction so no further Open/Create can attach to it, but
// leaves the file (and hence any attached dynamic state) in place for
// the last departing participant, or the reaper, to destroy (spec
// §4.3 "destroy").
func MarkForDestruction(cfg *config.View, id Id) error {
	path := staticPath(cfg, id)
	desc, err := readDescriptor(path)
	if err != nil {
		return err
	}
	if desc.Marker != MarkerReady {
		return nil
	}
	desc.Marker = MarkerMarkedForDestruction
	return publishReady(path, desc)
}

// DestroyIfOrphaned removes a service's static descriptor file if, and
// only if, it is currently MarkedForDestruction. Callers (builder
// port-drop, reaper) are responsible for having already confirmed the
// dynamic participant count is zero; DestroyIfOrphaned only re-checks
// the marker to avoid a lost update against a concurrent Create.
func DestroyIfOrphaned(cfg *config.View, id Id) error {
	path := staticPath(cfg, id)
	if !platform.SegmentExists(path) {
		return nil
	}
	desc, err := readDescriptor(path)
	if err != nil {
		return err
	}
	if desc.Marker != MarkerMarkedForDestruction {
		return nil
	}
	return platform.RemoveFile(path)
}
