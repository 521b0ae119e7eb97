package dynstate

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/vansweej/iceoryx2/config"
	"github.com/vansweej/iceoryx2/event"
	"github.com/vansweej/iceoryx2/internal/platform"
	"github.com/vansweej/iceoryx2/internal/registry"
	"github.com/vansweej/iceoryx2/shmerr"
)

// State is an attached view of one service's Dynamic Service State.
// The creating EventBuilder gets its State from Create; every other
// EventBuilder.Open and the reaper obtain their own State by calling
// Open against the same service id, and all of them observe the same
// underlying memory. Notifiers and listeners reserve their slots
// through the State of the PortFactoryEvent they were built from.
type State struct {
	seg *platform.Segment
	lay layout

	notifiers    []slotRecord
	listeners    []slotRecord
	participants []slotRecord

	mu sync.Mutex // serializes slot reservation scans; CAS still guards the word itself
}

// localSegments keeps BackendLocal dynamic state segments reachable by
// id within one process, since a heap-backed Segment has no path a
// second Open call could reopen (spec §9 "Polymorphism over service
// type" — the local backend trades cross-process visibility for
// never touching the filesystem at all).
var localSegments sync.Map // registry.Id -> *platform.Segment

func dynamicPath(cfg *config.View, id registry.Id) string {
	return filepath.Join(cfg.ServicesDir(), id.String()+cfg.ServiceDynamicSuffix)
}

// Create allocates and initializes a fresh dynamic state segment for a
// newly-created service (spec §4.4). It is called once, by the
// EventBuilder's Create path, immediately after internal/registry.Create
// publishes the Ready static descriptor.
func Create(cfg *config.View, id registry.Id, static registry.StaticConfigEvent) (*State, error) {
	lay := computeLayout(static.MaxNotifiers, static.MaxListeners, static.MaxNodes, static.EventIdMaxValue)

	var seg *platform.Segment
	var err error
	if cfg.Backend == config.BackendLocal {
		seg = platform.NewLocalSegment(lay.totalSize)
		localSegments.Store(id, seg)
	} else {
		seg, err = platform.CreateSegment(dynamicPath(cfg, id), lay.totalSize)
		if err != nil {
			return nil, fmt.Errorf("dynstate: create segment: %w", err)
		}
	}

	st := attach(seg, lay)
	hdr := headerPtr(seg.Mem)
	hdr.magic = segmentMagic
	atomic.StoreUint32(&hdr.version, schemaVersion)
	atomic.StoreUint32(&hdr.maxNotifiers, uint32(static.MaxNotifiers))
	atomic.StoreUint32(&hdr.maxListeners, uint32(static.MaxListeners))
	atomic.StoreUint32(&hdr.maxNodes, uint32(static.MaxNodes))
	atomic.StoreUint32(&hdr.bitmapWords, uint32(lay.bitmapWords))
	atomic.StoreUint64(&hdr.eventIdMaxValue, static.EventIdMaxValue)

	return st, nil
}

// Open attaches to an existing service's dynamic state. Used by
// EventBuilder.Open and the reaper, each of which reads the service's
// static descriptor first to know the table sizes to expect.
func Open(cfg *config.View, id registry.Id, static registry.StaticConfigEvent) (*State, error) {
	lay := computeLayout(static.MaxNotifiers, static.MaxListeners, static.MaxNodes, static.EventIdMaxValue)

	var seg *platform.Segment
	if cfg.Backend == config.BackendLocal {
		v, ok := localSegments.Load(id)
		if !ok {
			return nil, fmt.Errorf("dynstate: no local segment registered for service %s", id)
		}
		seg = v.(*platform.Segment)
	} else {
		var err error
		seg, err = platform.OpenSegment(dynamicPath(cfg, id))
		if err != nil {
			return nil, fmt.Errorf("dynstate: open segment: %w", err)
		}
	}

	st := attach(seg, lay)
	hdr := headerPtr(seg.Mem)
	if hdr.magic != segmentMagic {
		return nil, fmt.Errorf("dynstate: bad segment magic for service %s", id)
	}
	if atomic.LoadUint32(&hdr.version) != schemaVersion {
		return nil, fmt.Errorf("dynstate: schema version mismatch for service %s", id)
	}
	return st, nil
}

func attach(seg *platform.Segment, lay layout) *State {
	return &State{
		seg:          seg,
		lay:          lay,
		notifiers:    slotTable(seg.Mem, lay.notifierOff, lay.maxNotifiers),
		listeners:    slotTable(seg.Mem, lay.listenerOff, lay.maxListeners),
		participants: slotTable(seg.Mem, lay.participantOff, lay.maxNodes),
	}
}

// Close unmaps the segment. It does not remove the backing file —
// callers that determined the service is orphaned call
// registry.DestroyIfOrphaned separately. A BackendLocal segment has no
// file and is shared by every State of the service through
// localSegments, so Close leaves it intact; Remove forgets it.
func (s *State) Close() error {
	if s.seg.File == nil {
		return nil
	}
	return s.seg.Close()
}

// Remove deletes the dynamic state segment backing id. Callers call it
// once registry.DestroyIfOrphaned has confirmed the static descriptor
// itself was removed, so a destroyed service never leaves its dynamic
// segment behind — dynstate.Create claims that path with O_EXCL, so a
// leaked file would otherwise wedge every future Create of the same
// name (spec §4.2 "destroy_if_orphaned removes descriptor + dynamic
// state").
func Remove(cfg *config.View, id registry.Id) error {
	if cfg.Backend == config.BackendLocal {
		localSegments.Delete(id)
		return nil
	}
	return platform.RemoveFile(dynamicPath(cfg, id))
}

// Channel returns the event bitmap channel embedded in this service's
// dynamic state (spec §4.5).
func (s *State) Channel() *event.Channel {
	hdr := headerPtr(s.seg.Mem)
	bitmap := bitmapWordsView(s.seg.Mem, s.lay.bitmapOff, s.lay.maxListeners*s.lay.bitmapWords)
	seqs := listenerSeqView(s.seg.Mem, s.lay.listenerSeqOff, s.lay.maxListeners)
	return event.NewChannel(bitmap, s.lay.bitmapWords, seqs, atomic.LoadUint64(&hdr.eventIdMaxValue))
}

// ListenerSeqAddr exposes the raw futex word backing a listener slot;
// ReserveListener uses it to reset the word when the slot is claimed.
func (s *State) ListenerSeqAddr(slot int) *uint32 {
	seqs := listenerSeqView(s.seg.Mem, s.lay.listenerSeqOff, s.lay.maxListeners)
	return &seqs[slot]
}

func reserve(mu *sync.Mutex, table []slotRecord, nodeTag string) (int, uint32, bool) {
	mu.Lock()
	defer mu.Unlock()
	for i := range table {
		slot := &table[i]
		if atomic.CompareAndSwapUint32(&slot.state, slotFree, slotReserved) {
			gen := atomic.AddUint32(&slot.generation, 1)
			var tag [nodeTagSize]byte
			copy(tag[:], nodeTag)
			slot.nodeTag = tag
			return i, gen, true
		}
	}
	return 0, 0, false
}

func release(table []slotRecord, slot int) {
	if slot < 0 || slot >= len(table) {
		return
	}
	s := &table[slot]
	s.nodeTag = [nodeTagSize]byte{}
	atomic.AddUint32(&s.generation, 1)
	atomic.StoreUint32(&s.state, slotFree)
}

// ReserveNotifier claims a free notifier slot for nodeTag, returning
// ErrExceedsMaxSupportedNotifiers once every slot has been scanned and
// found Reserved.
func (s *State) ReserveNotifier(nodeTag string) (int, uint32, error) {
	slot, gen, ok := reserve(&s.mu, s.notifiers, nodeTag)
	if !ok {
		return 0, 0, shmerr.ErrExceedsMaxSupportedNotifiers
	}
	return slot, gen, nil
}

// ReserveListener claims a free listener slot for nodeTag.
func (s *State) ReserveListener(nodeTag string) (int, uint32, error) {
	slot, gen, ok := reserve(&s.mu, s.listeners, nodeTag)
	if !ok {
		return 0, 0, shmerr.ErrExceedsMaxSupportedListeners
	}
	atomic.StoreUint32(s.ListenerSeqAddr(slot), 0)
	row := bitmapWordsView(s.seg.Mem, s.lay.bitmapOff+slot*s.lay.bitmapWords*8, s.lay.bitmapWords)
	for i := range row {
		atomic.StoreUint64(&row[i], 0)
	}
	return slot, gen, nil
}

// ReserveParticipant claims a free participant slot for nodeTag.
func (s *State) ReserveParticipant(nodeTag string) (int, uint32, error) {
	slot, gen, ok := reserve(&s.mu, s.participants, nodeTag)
	if !ok {
		return 0, 0, shmerr.ErrExceedsMaxNumberOfNodes
	}
	hdr := headerPtr(s.seg.Mem)
	atomic.AddUint32(&hdr.participantCount, 1)
	return slot, gen, nil
}

// ReleaseNotifier/ReleaseListener/ReleaseParticipant free a
// previously-reserved slot.
func (s *State) ReleaseNotifier(slot int)  { release(s.notifiers, slot) }
func (s *State) ReleaseListener(slot int)  { release(s.listeners, slot) }
func (s *State) ReleaseParticipant(slot int) {
	release(s.participants, slot)
	hdr := headerPtr(s.seg.Mem)
	atomic.AddUint32(&hdr.participantCount, ^uint32(0)) // -1
}

// ParticipantCount reports how many participant slots are currently
// Reserved, used by the reaper to decide whether an orphaned,
// MarkedForDestruction service can finally be destroyed (spec §4.6).
func (s *State) ParticipantCount() int {
	hdr := headerPtr(s.seg.Mem)
	return int(atomic.LoadUint32(&hdr.participantCount))
}

// Snapshot is a point-in-time copy of every slot across all three
// tables.
type Snapshot struct {
	Notifiers    []SlotView
	Listeners    []SlotView
	Participants []SlotView
}

// SlotView is one slot's externally-visible state.
type SlotView struct {
	Index    int
	Reserved bool
	NodeTag  string
}

func snapshotTable(table []slotRecord) []SlotView {
	views := make([]SlotView, len(table))
	for i := range table {
		slot := &table[i]
		reserved := atomic.LoadUint32(&slot.state) == slotReserved
		views[i] = SlotView{Index: i, Reserved: reserved, NodeTag: tagString(slot.nodeTag)}
	}
	return views
}

func tagString(tag [nodeTagSize]byte) string {
	n := 0
	for n < len(tag) && tag[n] != 0 {
		n++
	}
	return string(tag[:n])
}

// Snapshot captures the current state of every slot table.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		Notifiers:    snapshotTable(s.notifiers),
		Listeners:    snapshotTable(s.listeners),
		Participants: snapshotTable(s.participants),
	}
}

// ReclaimDeadNodes releases every Reserved notifier, listener and
// participant slot whose node tag isDead reports true for, returning
// the listener slot indices that were released so the caller can emit
// one NotifierDeadEvent per reclaimed listener (spec §4.6 step 3-4).
func (s *State) ReclaimDeadNodes(isDead func(nodeTag string) bool) []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	reclaimSlots(s.notifiers, isDead, func(i int) { release(s.notifiers, i) })

	var releasedListeners []int
	reclaimSlots(s.listeners, isDead, func(i int) {
		release(s.listeners, i)
		releasedListeners = append(releasedListeners, i)
	})

	reclaimSlots(s.participants, isDead, func(i int) {
		release(s.participants, i)
		hdr := headerPtr(s.seg.Mem)
		atomic.AddUint32(&hdr.participantCount, ^uint32(0))
	})

	return releasedListeners
}

func reclaimSlots(table []slotRecord, isDead func(string) bool, reclaim func(int)) {
	for i := range table {
		slot := &table[i]
		if atomic.LoadUint32(&slot.state) != slotReserved {
			continue
		}
		if isDead(tagString(slot.nodeTag)) {
			reclaim(i)
		}
	}
}
