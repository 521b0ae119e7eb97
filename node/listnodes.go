package node

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/vansweej/iceoryx2/config"
	"github.com/vansweej/iceoryx2/internal/platform"
	"github.com/vansweej/iceoryx2/internal/reaper"
)

// NodeView is one entry returned by ListNodes: a node is either alive
// (AliveNodeView) or dead (DeadNodeView), matching spec §4.1 "returns
// live+dead views". The interface is unexported-method sealed so the
// only implementations are the two views defined here.
type NodeView interface {
	Id() Id
	Name() string
	isNodeView()
}

// AliveNodeView describes a node whose monitor token is still held by a
// live owner.
type AliveNodeView struct {
	id   Id
	name string
}

func (v AliveNodeView) Id() Id       { return v.id }
func (v AliveNodeView) Name() string { return v.name }
func (AliveNodeView) isNodeView()    {}

// DeadNodeView describes a node whose monitor token could be claimed by
// a non-blocking lock probe, meaning its owning process is gone without
// having run Drop.
type DeadNodeView struct {
	id   Id
	name string
	cfg  *config.View
}

func (v DeadNodeView) Id() Id       { return v.id }
func (v DeadNodeView) Name() string { return v.name }
func (DeadNodeView) isNodeView()    {}

// RemoveStaleResources triggers an on-demand reaper pass scoped to this
// process's config, reclaiming this dead node's participant/notifier/
// listener slots and any service left orphaned by its departure (spec
// §4.1 "DeadNodeView.RemoveStaleResources()", §4.6 "On-demand").
func (v DeadNodeView) RemoveStaleResources() error {
	return reaper.Run(v.cfg, reaper.OnDemand)
}

// ListNodes enumerates every node known under cfg's nodes directory and
// reports, for each, whether its monitor token is still held by a live
// process (spec §4.1 "Node::list").
func ListNodes(cfg *config.View) ([]NodeView, error) {
	if cfg == nil {
		cfg = config.Global()
	}

	entries, err := os.ReadDir(cfg.NodesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var views []NodeView
	seen := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, cfg.MonitorSuffix) {
			continue
		}
		idStr := strings.TrimSuffix(name, cfg.MonitorSuffix)
		if seen[idStr] {
			continue
		}
		seen[idStr] = true

		id, err := ParseId(idStr)
		if err != nil {
			continue // skip unrecognized monitor-token names
		}

		tokenPath := filepath.Join(cfg.NodesDir(), name)
		dead, err := platform.ProbeDead(tokenPath)
		if err != nil {
			continue // best-effort: leave undecided nodes off the list
		}

		nodeName := readNodeName(cfg, idStr)
		if dead {
			views = append(views, DeadNodeView{id: id, name: nodeName, cfg: cfg})
		} else {
			views = append(views, AliveNodeView{id: id, name: nodeName})
		}
	}
	return views, nil
}

func readNodeName(cfg *config.View, idStr string) string {
	path := filepath.Join(cfg.NodesDir(), idStr+cfg.StaticConfigSuffix)
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
