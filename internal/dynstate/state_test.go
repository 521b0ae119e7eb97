package dynstate

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vansweej/iceoryx2/config"
	"github.com/vansweej/iceoryx2/internal/registry"
	"github.com/vansweej/iceoryx2/shmerr"
)

func localConfig(t *testing.T) *config.View {
	t.Helper()
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	cfg.Backend = config.BackendLocal
	return cfg
}

func testStatic() registry.StaticConfigEvent {
	return registry.StaticConfigEvent{MaxNotifiers: 2, MaxListeners: 2, MaxNodes: 3, EventIdMaxValue: 255}
}

func TestCreateThenOpenLocal(t *testing.T) {
	cfg := localConfig(t)
	static := testStatic()
	id := registry.NewId(cfg.Prefix, "svc")

	st, err := Create(cfg, id, static)
	require.NoError(t, err)
	defer st.Close()

	opened, err := Open(cfg, id, static)
	require.NoError(t, err)
	defer opened.Close()

	require.Equal(t, 0, st.ParticipantCount())
}

func TestReserveAndReleaseNotifier(t *testing.T) {
	cfg := localConfig(t)
	id := registry.NewId(cfg.Prefix, "svc")
	st, err := Create(cfg, id, testStatic())
	require.NoError(t, err)
	defer st.Close()

	slot1, gen1, err := st.ReserveNotifier("node-a")
	require.NoError(t, err)
	slot2, _, err := st.ReserveNotifier("node-b")
	require.NoError(t, err)
	require.NotEqual(t, slot1, slot2)

	_, _, err = st.ReserveNotifier("node-c")
	require.ErrorIs(t, err, shmerr.ErrExceedsMaxSupportedNotifiers)

	st.ReleaseNotifier(slot1)
	slot3, gen3, err := st.ReserveNotifier("node-d")
	require.NoError(t, err)
	require.Equal(t, slot1, slot3)
	require.NotEqual(t, gen1, gen3)
}

func TestReserveListenerZeroesRow(t *testing.T) {
	cfg := localConfig(t)
	id := registry.NewId(cfg.Prefix, "svc")
	st, err := Create(cfg, id, testStatic())
	require.NoError(t, err)
	defer st.Close()

	slot, _, err := st.ReserveListener("node-a")
	require.NoError(t, err)

	channel := st.Channel()
	require.False(t, channel.HasPending(slot))
}

func TestReserveParticipantTracksCount(t *testing.T) {
	cfg := localConfig(t)
	id := registry.NewId(cfg.Prefix, "svc")
	st, err := Create(cfg, id, testStatic())
	require.NoError(t, err)
	defer st.Close()

	slotA, _, err := st.ReserveParticipant("node-a")
	require.NoError(t, err)
	_, _, err = st.ReserveParticipant("node-b")
	require.NoError(t, err)
	require.Equal(t, 2, st.ParticipantCount())

	st.ReleaseParticipant(slotA)
	require.Equal(t, 1, st.ParticipantCount())
}

func TestReserveParticipantExhaustion(t *testing.T) {
	cfg := localConfig(t)
	id := registry.NewId(cfg.Prefix, "svc")
	st, err := Create(cfg, id, testStatic())
	require.NoError(t, err)
	defer st.Close()

	for i := 0; i < 3; i++ {
		_, _, err := st.ReserveParticipant("node")
		require.NoError(t, err)
	}
	_, _, err = st.ReserveParticipant("one-too-many")
	require.ErrorIs(t, err, shmerr.ErrExceedsMaxNumberOfNodes)
}

func TestSnapshotReportsReservedSlots(t *testing.T) {
	cfg := localConfig(t)
	id := registry.NewId(cfg.Prefix, "svc")
	st, err := Create(cfg, id, testStatic())
	require.NoError(t, err)
	defer st.Close()

	_, _, err = st.ReserveNotifier("node-a")
	require.NoError(t, err)

	snap := st.Snapshot()
	require.Len(t, snap.Notifiers, 2)
	require.True(t, snap.Notifiers[0].Reserved)
	require.Equal(t, "node-a", snap.Notifiers[0].NodeTag)
	require.False(t, snap.Notifiers[1].Reserved)
}

func TestReclaimDeadNodesReleasesMatchingSlots(t *testing.T) {
	cfg := localConfig(t)
	id := registry.NewId(cfg.Prefix, "svc")
	st, err := Create(cfg, id, testStatic())
	require.NoError(t, err)
	defer st.Close()

	_, _, err = st.ReserveNotifier("dead-node")
	require.NoError(t, err)
	_, _, err = st.ReserveNotifier("live-node")
	require.NoError(t, err)
	listenerSlot, _, err := st.ReserveListener("dead-node")
	require.NoError(t, err)
	_, _, err = st.ReserveParticipant("dead-node")
	require.NoError(t, err)

	released := st.ReclaimDeadNodes(func(tag string) bool { return tag == "dead-node" })
	require.Equal(t, []int{listenerSlot}, released)
	require.Equal(t, 0, st.ParticipantCount())

	snap := st.Snapshot()
	require.True(t, snap.Notifiers[1].Reserved)
	require.Equal(t, "live-node", snap.Notifiers[1].NodeTag)
}

func TestRemoveDeletesShmBackedSegment(t *testing.T) {
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	static := testStatic()
	id := registry.NewId(cfg.Prefix, "svc")

	st, err := Create(cfg, id, static)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	require.NoError(t, Remove(cfg, id))

	_, err = Open(cfg, id, static)
	require.Error(t, err, "segment file should be gone after Remove")
}

func TestRemoveOnLocalBackendForgetsSegment(t *testing.T) {
	cfg := localConfig(t)
	static := testStatic()
	id := registry.NewId(cfg.Prefix, "svc")

	st, err := Create(cfg, id, static)
	require.NoError(t, err)
	require.NoError(t, st.Close())

	require.NoError(t, Remove(cfg, id))

	_, err = Open(cfg, id, static)
	require.Error(t, err, "local segment should no longer be registered after Remove")
}

func TestCreateNotifierAndListenerPorts(t *testing.T) {
	cfg := localConfig(t)
	id := registry.NewId(cfg.Prefix, "svc")
	static := testStatic()
	st, err := Create(cfg, id, static)
	require.NoError(t, err)
	defer st.Close()

	listener, err := st.CreateListener("node-a")
	require.NoError(t, err)
	defer listener.Drop()

	notifier, err := st.CreateNotifier("node-b", static)
	require.NoError(t, err)
	defer notifier.Drop()

	require.NoError(t, notifier.Notify())

	id1, ok, err := listener.TryWaitOne()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), id1)
}
