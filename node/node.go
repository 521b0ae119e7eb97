package node

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vansweej/iceoryx2/config"
	"github.com/vansweej/iceoryx2/internal/platform"
	"github.com/vansweej/iceoryx2/internal/reaper"
)

// Node is a process-scoped participant identity. It owns the monitor
// token that proves its liveness to other processes and participates in
// the dynamic roster of any service it attaches ports to.
type Node struct {
	id     Id
	name   string
	cfg    *config.View
	token  *platform.Lock
	closed bool
}

// Option configures a Node at construction.
type Option func(*Node)

// WithName attaches a human-readable name to the node.
func WithName(name string) Option {
	return func(n *Node) { n.name = name }
}

// New constructs a Node: mints a NodeId, writes and locks its monitor
// token file, and — if cfg.CleanupOnCreation — runs a reaper pass before
// returning (spec §4.6 "When a new node is created").
func New(cfg *config.View, opts ...Option) (*Node, error) {
	if cfg == nil {
		cfg = config.Global()
	}
	n := &Node{id: NewId(), cfg: cfg}
	for _, opt := range opts {
		opt(n)
	}

	tokenPath := n.monitorTokenPath()
	if err := os.MkdirAll(filepath.Dir(tokenPath), 0o700); err != nil {
		return nil, fmt.Errorf("node: create nodes dir: %w", err)
	}
	lock, err := platform.AcquireLock(tokenPath)
	if err != nil {
		return nil, fmt.Errorf("node: acquire monitor token: %w", err)
	}
	n.token = lock

	if err := os.WriteFile(n.staticConfigPath(), []byte(n.name), 0o600); err != nil {
		_ = lock.Close()
		_ = platform.RemoveFile(tokenPath)
		return nil, fmt.Errorf("node: write static config: %w", err)
	}

	if cfg.CleanupOnCreation {
		_ = reaper.Run(cfg, reaper.OnNodeCreate) // best-effort, spec §4.6 "Permissions"
	}

	return n, nil
}

// Id returns the node's identity.
func (n *Node) Id() Id { return n.id }

// Name returns the optional human-readable name, or "" if unset.
func (n *Node) Name() string { return n.name }

// Config returns the node's adopted config view.
func (n *Node) Config() *config.View { return n.cfg }

func (n *Node) monitorTokenPath() string {
	return filepath.Join(n.cfg.NodesDir(), n.id.String()+n.cfg.MonitorSuffix)
}

func (n *Node) staticConfigPath() string {
	return filepath.Join(n.cfg.NodesDir(), n.id.String()+n.cfg.StaticConfigSuffix)
}

func (n *Node) serviceTagDir() string {
	return filepath.Join(n.cfg.NodesDir(), n.id.String()+n.cfg.ServiceTagSuffix)
}

// Drop releases the monitor token, best-effort removes the node's
// leftover service-tag directory, and — if cfg.CleanupOnDestruction —
// runs a reaper pass (spec §4.6 "When any node is destroyed"). Drop is
// idempotent.
func (n *Node) Drop() error {
	if n.closed {
		return nil
	}
	n.closed = true

	var firstErr error
	if n.token != nil {
		if err := n.token.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := platform.RemoveFile(n.monitorTokenPath()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	_ = platform.RemoveFile(n.staticConfigPath())
	_ = os.RemoveAll(n.serviceTagDir())

	if n.cfg.CleanupOnDestruction {
		_ = reaper.Run(n.cfg, reaper.OnNodeDestroy)
	}

	return firstErr
}

// Close is an alias for Drop, matching Go's io.Closer convention.
func (n *Node) Close() error { return n.Drop() }
