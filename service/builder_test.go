package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vansweej/iceoryx2/config"
	"github.com/vansweej/iceoryx2/internal/registry"
	"github.com/vansweej/iceoryx2/node"
	"github.com/vansweej/iceoryx2/shmerr"
)

func testNode(t *testing.T) *node.Node {
	t.Helper()
	cfg := config.Default()
	cfg.RootDir = t.TempDir()
	cfg.Backend = config.BackendLocal

	n, err := node.New(cfg, node.WithName("test-node"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Drop() })
	return n
}

func testShmNode(t *testing.T) *node.Node {
	t.Helper()
	cfg := config.Default()
	cfg.RootDir = t.TempDir()

	n, err := node.New(cfg, node.WithName("shm-node"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Drop() })
	return n
}

func dynamicStatePath(cfg *config.View, id Id) string {
	return filepath.Join(cfg.ServicesDir(), registry.Id(id).String()+cfg.ServiceDynamicSuffix)
}

func TestEventBuilderCreateThenOpen(t *testing.T) {
	n := testNode(t)

	pf, err := NewEventBuilder(n, "metrics").MaxNotifiers(2).MaxListeners(2).Create()
	require.NoError(t, err)
	t.Cleanup(func() { _ = pf.Drop() })

	require.Equal(t, Name("metrics"), pf.Name())

	opened, err := NewEventBuilder(n, "metrics").MaxNotifiers(2).MaxListeners(2).Open()
	require.NoError(t, err)
	defer opened.Drop()

	require.Equal(t, pf.Id(), opened.Id())
}

func TestEventBuilderCreateTwiceFails(t *testing.T) {
	n := testNode(t)

	pf, err := NewEventBuilder(n, "dup").Create()
	require.NoError(t, err)
	t.Cleanup(func() { _ = pf.Drop() })

	_, err = NewEventBuilder(n, "dup").Create()
	require.ErrorIs(t, err, shmerr.ErrAlreadyExists)
}

func TestEventBuilderOpenMissingFails(t *testing.T) {
	n := testNode(t)

	_, err := NewEventBuilder(n, "missing").Open()
	require.ErrorIs(t, err, shmerr.ErrDoesNotExist)
}

func TestEventBuilderOpenOrCreateCreatesThenOpens(t *testing.T) {
	n := testNode(t)

	pf1, err := NewEventBuilder(n, "oc").OpenOrCreate()
	require.NoError(t, err)
	defer pf1.Drop()

	pf2, err := NewEventBuilder(n, "oc").OpenOrCreate()
	require.NoError(t, err)
	defer pf2.Drop()

	require.Equal(t, pf1.Id(), pf2.Id())
}

func TestEventBuilderOpenRejectsInsufficientNotifierCapacity(t *testing.T) {
	n := testNode(t)

	pf, err := NewEventBuilder(n, "capped").MaxNotifiers(1).Create()
	require.NoError(t, err)
	defer pf.Drop()

	_, err = NewEventBuilder(n, "capped").MaxNotifiers(5).Open()
	require.ErrorIs(t, err, shmerr.ErrDoesNotSupportRequestedAmountOfNotifiers)
}

func TestEventBuilderOpenRejectsIncompatibleAttributes(t *testing.T) {
	n := testNode(t)

	pf, err := NewEventBuilder(n, "tagged").Attributes(AttributeSet{{Key: "team", Value: "infra"}}).Create()
	require.NoError(t, err)
	defer pf.Drop()

	verifier := AttributeVerifier{RequiredPairs: []Attribute{{Key: "team", Value: "platform"}}}
	_, err = NewEventBuilder(n, "tagged").AttributeVerifier(verifier).Open()
	require.ErrorIs(t, err, shmerr.ErrIncompatibleAttributes)
}

func TestPortFactoryRefCountingDestroysOnLastDrop(t *testing.T) {
	n := testNode(t)

	pf, err := NewEventBuilder(n, "rc").Create()
	require.NoError(t, err)
	id := pf.Id()

	notifier, err := pf.NotifierBuilder().Create()
	require.NoError(t, err)

	require.NoError(t, pf.Drop())

	exists, err := DoesExist(n.Config(), "rc", Event)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = registry.OpenByID(n.Config(), registry.Id(id))
	require.NoError(t, err, "descriptor should still exist while a port is live")

	require.NoError(t, notifier.Drop())

	_, err = registry.OpenByID(n.Config(), registry.Id(id))
	require.ErrorIs(t, err, shmerr.ErrDoesNotExist, "last port drop should destroy the orphaned service")
}

func TestDestroyingServiceRemovesDynamicStateFile(t *testing.T) {
	n := testShmNode(t)

	pf, err := NewEventBuilder(n, "shm-rc").Create()
	require.NoError(t, err)
	id := pf.Id()

	dynPath := dynamicStatePath(n.Config(), id)
	_, err = os.Stat(dynPath)
	require.NoError(t, err, "dynamic state file should exist once the service is created")

	require.NoError(t, pf.Drop())

	_, err = os.Stat(dynPath)
	require.True(t, os.IsNotExist(err), "destroying the service should remove its dynamic state file, not just the descriptor")

	// re-creating the same service name must succeed: a leaked dynamic
	// state file would wedge dynstate.Create's O_CREATE|O_EXCL claim.
	pf2, err := NewEventBuilder(n, "shm-rc").Create()
	require.NoError(t, err)
	require.NoError(t, pf2.Drop())
}

func TestOpenBeyondMaxNodesFailsWithExceedsMaxNumberOfNodes(t *testing.T) {
	n := testNode(t)

	pf, err := NewEventBuilder(n, "capped-nodes").MaxNodes(1).Create()
	require.NoError(t, err)
	defer pf.Drop()

	// Create() already consumed the service's one participant slot for
	// this node; a second Open (even from the same node) must fail once
	// the participant table is full.
	_, err = NewEventBuilder(n, "capped-nodes").MaxNodes(1).Open()
	require.ErrorIs(t, err, shmerr.ErrExceedsMaxNumberOfNodes)
}

func TestDiscoveryListAndDoesExist(t *testing.T) {
	n := testNode(t)

	pf, err := NewEventBuilder(n, "listed").Create()
	require.NoError(t, err)
	defer pf.Drop()

	exists, err := DoesExist(n.Config(), "listed", Event)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = DoesExist(n.Config(), "listed", PublishSubscribe)
	require.NoError(t, err)
	require.False(t, exists, "same name under a different pattern must not report exists")

	var names []Name
	require.NoError(t, List(n.Config(), func(d Descriptor) bool {
		names = append(names, d.Name)
		return true
	}))
	require.Contains(t, names, Name("listed"))
}
