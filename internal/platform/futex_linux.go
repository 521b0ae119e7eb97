//go:build linux && (amd64 || arm64)

package platform

import (
	"errors"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ErrFutexTimeout is returned by FutexWait when a non-zero timeout
// elapses before the word at addr changes.
var ErrFutexTimeout = errors.New("platform: futex wait timed out")

// Futex operation constants from linux/futex.h. golang.org/x/sys/unix does
// not export these (it only exports SYS_FUTEX, the syscall number). The
// private flag is deliberately not used: the futex words live in shared
// mappings and must be wakeable from other processes.
const (
	futexWait = 0
	futexWake = 1
)

// FutexWait blocks while *addr == val, waking either when another
// process/thread calls FutexWake on the same address or when timeout
// elapses (timeout <= 0 means wait indefinitely). Callers must always
// re-check their logical wait condition after this returns: spurious
// wakeups are possible and are not distinguished from real ones here
// (spec §9 "no return on spurious wakeups" is enforced one layer up, by
// the listener's wait loop).
func FutexWait(addr *uint32, val uint32, timeout time.Duration) error {
	// Re-check before entering the syscall: closes the lost-wake race
	// where the value changes and the waker fires between our caller's
	// snapshot and here.
	if atomic.LoadUint32(addr) != val {
		return nil
	}

	var ts *unix.Timespec
	if timeout > 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWait),
		uintptr(val),
		uintptr(unsafe.Pointer(ts)),
		0, 0,
	)

	switch errno {
	case 0, unix.EAGAIN, unix.EINTR:
		return nil
	case unix.ETIMEDOUT:
		return ErrFutexTimeout
	case 0xffffffff: // no error (errno zero-value edge case on some arches)
		return nil
	default:
		return errno
	}
}

// FutexWake wakes up to n waiters blocked on addr, returning the number
// actually woken.
func FutexWake(addr *uint32, n int32) (int, error) {
	r1, _, errno := unix.Syscall6(
		unix.SYS_FUTEX,
		uintptr(unsafe.Pointer(addr)),
		uintptr(futexWake),
		uintptr(n),
		0, 0, 0,
	)
	if errno != 0 {
		return 0, errno
	}
	return int(r1), nil
}
