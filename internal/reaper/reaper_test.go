package reaper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vansweej/iceoryx2/config"
	"github.com/vansweej/iceoryx2/internal/dynstate"
	"github.com/vansweej/iceoryx2/internal/platform"
	"github.com/vansweej/iceoryx2/internal/registry"
)

func testConfig(t *testing.T) *config.View {
	t.Helper()
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	cfg.Backend = config.BackendLocal
	cfg.CleanupOnCreation = false
	cfg.CleanupOnDestruction = false
	return cfg
}

func TestRunIsNoopWithNoNodes(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, Run(cfg, OnDemand))
}

func TestRunReclaimsSlotsOfDeadNode(t *testing.T) {
	cfg := testConfig(t)

	static := registry.StaticConfigEvent{MaxNotifiers: 2, MaxListeners: 2, MaxNodes: 2, EventIdMaxValue: 63}
	desc, err := registry.Create(cfg, "watched", registry.Event, static, nil, "owner")
	require.NoError(t, err)

	state, err := dynstate.Create(cfg, desc.ID, static)
	require.NoError(t, err)

	deadTokenPath := filepath.Join(cfg.NodesDir(), "dead-node"+cfg.MonitorSuffix)
	lock, err := platform.AcquireLock(deadTokenPath)
	require.NoError(t, err)
	require.NoError(t, lock.Close()) // closed but never removed: looks abandoned

	_, _, err = state.ReserveNotifier("dead-node")
	require.NoError(t, err)
	require.NoError(t, state.Close())

	require.NoError(t, Run(cfg, OnDemand))

	reopened, err := dynstate.Open(cfg, desc.ID, static)
	require.NoError(t, err)
	defer reopened.Close()

	snap := reopened.Snapshot()
	require.False(t, snap.Notifiers[0].Reserved)
}

func testShmConfig(t *testing.T) *config.View {
	t.Helper()
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	cfg.CleanupOnCreation = false
	cfg.CleanupOnDestruction = false
	return cfg
}

func TestRunDestroysOrphanedMarkedServiceRemovesDynamicStateFile(t *testing.T) {
	cfg := testShmConfig(t)

	static := registry.StaticConfigEvent{MaxNotifiers: 1, MaxListeners: 1, MaxNodes: 1}
	desc, err := registry.Create(cfg, "shm-orphan", registry.Event, static, nil, "owner")
	require.NoError(t, err)

	state, err := dynstate.Create(cfg, desc.ID, static)
	require.NoError(t, err)
	require.NoError(t, state.Close())

	dynPath := filepath.Join(cfg.ServicesDir(), desc.ID.String()+cfg.ServiceDynamicSuffix)
	_, err = os.Stat(dynPath)
	require.NoError(t, err)

	require.NoError(t, registry.MarkForDestruction(cfg, desc.ID))

	deadTokenPath := filepath.Join(cfg.NodesDir(), "unrelated-dead-node"+cfg.MonitorSuffix)
	lock, err := platform.AcquireLock(deadTokenPath)
	require.NoError(t, err)
	require.NoError(t, lock.Close())

	require.NoError(t, Run(cfg, OnDemand))

	_, err = os.Stat(dynPath)
	require.True(t, os.IsNotExist(err), "reaper-driven destroy should remove the dynamic state file too")
}

func TestRunDestroysOrphanedMarkedService(t *testing.T) {
	cfg := testConfig(t)

	static := registry.StaticConfigEvent{MaxNotifiers: 1, MaxListeners: 1, MaxNodes: 1}
	desc, err := registry.Create(cfg, "orphan", registry.Event, static, nil, "owner")
	require.NoError(t, err)

	state, err := dynstate.Create(cfg, desc.ID, static)
	require.NoError(t, err)
	require.NoError(t, state.Close())

	require.NoError(t, registry.MarkForDestruction(cfg, desc.ID))

	// a reaper pass only scans services at all once it has found at
	// least one dead node (Run short-circuits otherwise), so give it an
	// abandoned monitor token unrelated to the orphaned service.
	deadTokenPath := filepath.Join(cfg.NodesDir(), "unrelated-dead-node"+cfg.MonitorSuffix)
	lock, err := platform.AcquireLock(deadTokenPath)
	require.NoError(t, err)
	require.NoError(t, lock.Close())

	require.NoError(t, Run(cfg, OnDemand))

	exists, err := registry.DoesExist(cfg, "orphan", registry.Event)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = registry.OpenByID(cfg, desc.ID)
	require.Error(t, err)
}
