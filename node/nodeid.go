// Package node implements process identity (spec §4.1): NodeId
// generation, the monitor-token liveness artifact, and node enumeration
// used by the dead-resource reaper.
package node

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Id is unique to one node's lifetime: a 128-bit random component (via
// uuid.NewRandom, spec §3 "128-bit unique value"), the owning process
// id, a creation tick (wall-clock Unix nanoseconds) and the wall
// creation time.
type Id struct {
	random  uuid.UUID
	pid     int32
	created time.Time
	tick    int64
}

// NewId mints a fresh node identity.
func NewId() Id {
	random, err := uuid.NewRandom()
	if err != nil {
		// uuid.NewRandom only fails if the system's CSPRNG is broken;
		// fall back to the all-zero UUID rather than panic, same
		// "never unwind" discipline as the rest of the public surface.
		random = uuid.UUID{}
	}
	return Id{
		random:  random,
		pid:     int32(os.Getpid()),
		created: time.Now(),
		tick:    time.Now().UnixNano(),
	}
}

// String renders the id as a filesystem-safe identifier, used to name
// the monitor-token and static-config files under <root>/<prefix>nodes/.
func (id Id) String() string {
	return fmt.Sprintf("%s-%d-%d", id.random.String(), id.pid, id.tick)
}

// ParseId recovers an Id from the string a prior String() call produced,
// used by ListNodes to turn a monitor-token filename back into an Id.
// The wall creation time is not recoverable from the rendered form and
// is left zero on the parsed value.
func ParseId(s string) (Id, error) {
	tickSep := strings.LastIndex(s, "-")
	if tickSep < 0 {
		return Id{}, fmt.Errorf("node: malformed id %q", s)
	}
	rest, tickStr := s[:tickSep], s[tickSep+1:]

	pidSep := strings.LastIndex(rest, "-")
	if pidSep < 0 {
		return Id{}, fmt.Errorf("node: malformed id %q", s)
	}
	uuidStr, pidStr := rest[:pidSep], rest[pidSep+1:]

	random, err := uuid.Parse(uuidStr)
	if err != nil {
		return Id{}, fmt.Errorf("node: malformed id %q: %w", s, err)
	}
	pid, err := strconv.ParseInt(pidStr, 10, 32)
	if err != nil {
		return Id{}, fmt.Errorf("node: malformed id %q: %w", s, err)
	}
	tick, err := strconv.ParseInt(tickStr, 10, 64)
	if err != nil {
		return Id{}, fmt.Errorf("node: malformed id %q: %w", s, err)
	}
	return Id{random: random, pid: int32(pid), tick: tick}, nil
}

// Pid returns the process id that created this node.
func (id Id) Pid() int32 { return id.pid }

// CreatedAt returns the wall-clock creation time.
func (id Id) CreatedAt() time.Time { return id.created }

// Equal reports whether two ids refer to the same node.
func (id Id) Equal(other Id) bool {
	return id.random == other.random && id.pid == other.pid && id.tick == other.tick
}
