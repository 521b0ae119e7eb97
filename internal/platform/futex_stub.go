//go:build !linux || !(amd64 || arm64)

package platform

import (
	"errors"
	"time"
)

// ErrFutexTimeout is returned by FutexWait when a non-zero timeout
// elapses before the word at addr changes.
var ErrFutexTimeout = errors.New("platform: futex wait timed out")

// ErrUnsupported is returned on platforms without a futex syscall. This
// module's primary tier is linux/amd64+arm64, same as the teacher.
var ErrUnsupported = errors.New("platform: futex operations not supported on this platform")

// FutexWait is not supported on this platform.
func FutexWait(addr *uint32, val uint32, timeout time.Duration) error {
	return ErrUnsupported
}

// FutexWake is not supported on this platform.
func FutexWake(addr *uint32, n int32) (int, error) {
	return 0, ErrUnsupported
}
