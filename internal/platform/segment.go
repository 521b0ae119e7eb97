// Package platform implements the "Platform Interface" spec §2 assumes is
// available: named shared-memory segments, advisory file locks, and a
// futex-based wake-up primitive usable across processes. It generalizes
// the teacher's dual-ring gRPC transport segment (one fixed header plus
// two byte-stream rings) into a single arbitrary-size mapped region, since
// the dynamic service state and event bitmap this module needs are not
// shaped like a ring buffer.
package platform

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// Segment is a memory-mapped region backing a service's Dynamic Service
// State (a node's monitor token is a Lock, not a Segment). Backend
// selects whether Mem is backed
// by a real file mapping (BackendShm) or a plain heap slice
// (BackendLocal, for same-process tests and the "local" node variant).
type Segment struct {
	File *os.File
	Mem  []byte
	Path string

	local bool
}

// CreateSegment creates a new segment file of the given size at path,
// failing if one already exists (the same O_CREATE|O_EXCL discipline the
// teacher's CreateSegment uses to publish a segment atomically).
func CreateSegment(path string, size int) (*Segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("platform: mkdir for segment %s: %w", path, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("platform: create segment %s: %w", path, err)
	}

	cleanup := func() {
		file.Close()
		os.Remove(path)
	}

	if err := file.Truncate(int64(size)); err != nil {
		cleanup()
		return nil, fmt.Errorf("platform: resize segment %s: %w", path, err)
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("platform: mmap segment %s: %w", path, err)
	}

	return &Segment{File: file, Mem: mem, Path: path}, nil
}

// OpenSegment opens and maps an existing segment file.
func OpenSegment(path string) (*Segment, error) {
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("platform: open segment %s: %w", path, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("platform: stat segment %s: %w", path, err)
	}

	mem, err := unix.Mmap(int(file.Fd()), 0, int(info.Size()), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("platform: mmap segment %s: %w", path, err)
	}

	return &Segment{File: file, Mem: mem, Path: path}, nil
}

// NewLocalSegment allocates an in-process segment backed by a plain heap
// slice, used by config.BackendLocal for same-process tests and the
// intra-process node variant (spec §9 "Polymorphism over service type").
func NewLocalSegment(size int) *Segment {
	return &Segment{Mem: make([]byte, size), local: true}
}

// Close unmaps the memory and closes the backing file, if any.
func (s *Segment) Close() error {
	var firstErr error
	if !s.local && s.Mem != nil {
		if err := unix.Munmap(s.Mem); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("platform: munmap: %w", err)
		}
	}
	s.Mem = nil
	if s.File != nil {
		if err := s.File.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("platform: close segment file: %w", err)
		}
		s.File = nil
	}
	return firstErr
}

// RemoveSegmentFile removes a segment's backing file. Best-effort: a
// missing file is not an error.
func RemoveSegmentFile(path string) error {
	return RemoveFile(path)
}

// RemoveFile removes any file this package created (segment, lock
// token). Best-effort: a missing file is not an error.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("platform: remove %s: %w", path, err)
	}
	return nil
}

// SegmentExists reports whether a segment file is present at path.
func SegmentExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
