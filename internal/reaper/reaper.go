// Package reaper implements the dead-resource reaper (spec §4.6): it
// enumerates nodes, probes their monitor tokens for liveness, and
// reclaims any service slots owned by nodes found dead.
package reaper

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vansweej/iceoryx2/config"
	"github.com/vansweej/iceoryx2/internal/dynstate"
	"github.com/vansweej/iceoryx2/internal/platform"
	"github.com/vansweej/iceoryx2/internal/registry"
)

// Trigger identifies why a reaper pass was started (spec §4.6).
type Trigger int

const (
	OnNodeCreate Trigger = iota
	OnNodeDestroy
	OnDemand
)

func (t Trigger) String() string {
	switch t {
	case OnNodeCreate:
		return "on-node-create"
	case OnNodeDestroy:
		return "on-node-destroy"
	default:
		return "on-demand"
	}
}

// Run performs one reaper pass: enumerate nodes, probe each suspected
// node's monitor token, and for every node confirmed dead, remove it
// from every service's participant roster and free any notifier/listener
// slots it held. Reclamation failures are aggregated and logged, never
// propagated as a fatal error to the caller (spec §4.6 "Permissions",
// §7 "The reaper swallows permissions errors and continues").
func Run(cfg *config.View, trigger Trigger) error {
	log := cfg.Log().With(zap.String("trigger", trigger.String()))

	deadNodes, err := deadNodeIds(cfg)
	if err != nil {
		log.Warn("reaper: failed to enumerate nodes", zap.Error(err))
		return nil
	}
	if len(deadNodes) == 0 {
		return nil
	}
	log.Info("reaper: found dead nodes", zap.Int("count", len(deadNodes)))

	var errs error
	ids, err := registry.ListIds(cfg)
	if err != nil {
		log.Warn("reaper: failed to list services", zap.Error(err))
		return nil
	}

	for _, svcID := range ids {
		if err := reclaimService(cfg, svcID, deadNodes, log); err != nil {
			errs = multierr.Append(errs, err)
			log.Warn("reaper: failed to reclaim service", zap.String("service", svcID.String()), zap.Error(err))
		}
	}

	for _, id := range deadNodes {
		removeNodeArtifacts(cfg, id)
	}

	return nil
}

// deadNodeIds returns the node-id strings of every node whose monitor
// token can be locked (i.e. is not held by a live owner).
func deadNodeIds(cfg *config.View) ([]string, error) {
	entries, err := os.ReadDir(cfg.NodesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reaper: read nodes dir: %w", err)
	}

	var dead []string
	seen := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, cfg.MonitorSuffix) {
			continue
		}
		nodeID := strings.TrimSuffix(name, cfg.MonitorSuffix)
		if seen[nodeID] {
			continue
		}
		seen[nodeID] = true

		tokenPath := filepath.Join(cfg.NodesDir(), name)
		isDead, err := platform.ProbeDead(tokenPath)
		if err != nil {
			continue // best-effort: leave undecided nodes alone
		}
		if isDead {
			dead = append(dead, nodeID)
		}
	}
	return dead, nil
}

func removeNodeArtifacts(cfg *config.View, nodeID string) {
	_ = platform.RemoveFile(filepath.Join(cfg.NodesDir(), nodeID+cfg.MonitorSuffix))
	_ = platform.RemoveFile(filepath.Join(cfg.NodesDir(), nodeID+cfg.StaticConfigSuffix))
	_ = os.RemoveAll(filepath.Join(cfg.NodesDir(), nodeID+cfg.ServiceTagSuffix))
}

// reclaimService opens a service's dynamic state, removes every dead
// node from its participant table plus any notifier/listener slots it
// owns, emits notifier_dead_event for reclaimed listener slots, and
// destroys the service if it is marked for destruction and now empty
// (spec §4.6 steps 3-5).
func reclaimService(cfg *config.View, svcID registry.Id, deadNodeNames []string, log *zap.Logger) error {
	desc, err := registry.OpenByID(cfg, svcID)
	if err != nil {
		return fmt.Errorf("open descriptor: %w", err)
	}

	state, err := dynstate.Open(cfg, svcID, desc.Static)
	if err != nil {
		return fmt.Errorf("open dynamic state: %w", err)
	}
	defer state.Close()

	deadSet := make(map[string]bool, len(deadNodeNames))
	for _, n := range deadNodeNames {
		deadSet[n] = true
	}

	var errs error
	releasedListeners := state.ReclaimDeadNodes(func(tag string) bool {
		return deadSet[tag]
	})

	if desc.Static.NotifierDeadEvent != nil {
		for range releasedListeners {
			state.Channel().Set(*desc.Static.NotifierDeadEvent)
		}
	}

	if desc.Marker == registry.MarkerMarkedForDestruction && state.ParticipantCount() == 0 {
		if err := registry.DestroyIfOrphaned(cfg, svcID); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("destroy orphaned service: %w", err))
		} else {
			if err := dynstate.Remove(cfg, svcID); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("remove dynamic state: %w", err))
			}
			log.Info("reaper: destroyed orphaned service", zap.String("service", svcID.String()))
		}
	}

	return errs
}
