// Package config defines the process-wide Config view: root directory,
// filename conventions, service-creation timeout, cleanup toggles, and
// per-messaging-pattern defaults. A Config is read-only once adopted by a
// Node (spec §4.1).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Backend selects the platform primitive a Node's segments are created
// against. BackendShm is the default inter-process backend; BackendLocal
// keeps everything in heap memory for same-process tests and the
// "intra-process" service variant mentioned in spec §9.
type Backend int

const (
	BackendShm Backend = iota
	BackendLocal
)

// EventDefaults mirrors iceoryx2's config.rs Event defaults section.
type EventDefaults struct {
	MaxNotifiers    int            `yaml:"max-notifiers"`
	MaxListeners    int            `yaml:"max-listeners"`
	MaxNodes        int            `yaml:"max-nodes"`
	EventIdMaxValue uint64         `yaml:"event-id-max-value"`
	Deadline        *time.Duration `yaml:"deadline,omitempty"`
}

// Defaults bundles the per-messaging-pattern default QoS. Only the Event
// section exists; PublishSubscribe/RequestResponse have no fields here,
// and Load ignores such sections of a config file because yaml.v3 skips
// keys the struct does not declare.
type Defaults struct {
	Event EventDefaults `yaml:"event"`
}

// View is a read-only (once adopted) snapshot of configuration.
type View struct {
	RootDir string `yaml:"root-dir"`
	Prefix  string `yaml:"prefix"`

	MonitorSuffix          string `yaml:"monitor-suffix"`
	StaticConfigSuffix     string `yaml:"node-static-config-suffix"`
	ServiceTagSuffix       string `yaml:"service-tag-suffix"`
	ServiceStaticSuffix    string `yaml:"service-static-suffix"`
	ServiceDynamicSuffix   string `yaml:"service-dynamic-suffix"`
	ServiceEventConnSuffix string `yaml:"service-event-connection-suffix"`

	ServiceCreationTimeout time.Duration `yaml:"service-creation-timeout"`
	CleanupOnCreation      bool          `yaml:"cleanup-dead-nodes-on-creation"`
	CleanupOnDestruction   bool          `yaml:"cleanup-dead-nodes-on-destruction"`
	MaxServiceNameLength   int           `yaml:"max-service-name-length"`

	Backend Backend `yaml:"-"`

	Defaults Defaults `yaml:"defaults"`

	// Logger receives structured lifecycle events from the reaper.
	// Defaults to a no-op logger so the module stays silent unless a
	// caller wires one in.
	Logger *zap.Logger `yaml:"-"`
}

// Default returns a fresh Config view populated with this module's
// baseline defaults.
func Default() *View {
	deadline := time.Duration(0)
	return &View{
		RootDir:                defaultRootDir(),
		Prefix:                 "shmevents_",
		MonitorSuffix:          ".monitor",
		StaticConfigSuffix:     ".node",
		ServiceTagSuffix:       ".tags",
		ServiceStaticSuffix:    ".static",
		ServiceDynamicSuffix:   ".dynamic",
		ServiceEventConnSuffix: ".event",
		ServiceCreationTimeout: 2 * time.Second,
		CleanupOnCreation:      true,
		CleanupOnDestruction:   true,
		MaxServiceNameLength:   255,
		Backend:                BackendShm,
		Defaults: Defaults{
			Event: EventDefaults{
				MaxNotifiers:    16,
				MaxListeners:    16,
				MaxNodes:        32,
				EventIdMaxValue: 4095,
				Deadline:        &deadline,
			},
		},
		Logger: zap.NewNop(),
	}
}

func defaultRootDir() string {
	switch runtime.GOOS {
	case "linux":
		if _, err := os.Stat("/dev/shm"); err == nil {
			return "/dev/shm"
		}
		return os.TempDir()
	default:
		return os.TempDir()
	}
}

var global struct {
	once sync.Once
	view *View
}

// Global returns the process-wide default Config view, searching PWD,
// $HOME, and /etc for an override file on first use (spec §9 "Global
// state: ... an initialize-once lazy value"). Failures to find or parse
// an override silently fall back to Default(); this mirrors iceoryx2's
// own setup_global_config_from_file discipline of never hard-failing
// process startup over a missing config file.
func Global() *View {
	global.once.Do(func() {
		v := Default()
		for _, dir := range searchPath() {
			candidate := filepath.Join(dir, "shmevents.yaml")
			if loaded, err := Load(candidate); err == nil {
				v = loaded
				break
			}
		}
		global.view = v
	})
	return global.view
}

func searchPath() []string {
	dirs := []string{}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, home)
	}
	dirs = append(dirs, "/etc")
	return dirs
}

// Load reads a YAML override file on top of Default() and returns the
// merged view. This is deliberately a single ReadFile+Unmarshal: the
// specification places configuration file parsing (search-path
// resolution, includes, schema validation) out of scope as an external
// collaborator, so Load only covers the "read one file" ambient case.
func Load(path string) (*View, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	v := Default()
	if err := yaml.Unmarshal(data, v); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if v.Logger == nil {
		v.Logger = zap.NewNop()
	}
	return v, nil
}

// NodesDir returns the directory holding per-node monitor/static-config
// files (spec §6 filesystem layout).
func (v *View) NodesDir() string {
	return filepath.Join(v.RootDir, v.Prefix+"nodes")
}

// ServicesDir returns the directory holding per-service static/dynamic
// descriptor files (spec §6 filesystem layout).
func (v *View) ServicesDir() string {
	return filepath.Join(v.RootDir, v.Prefix+"services")
}

func (v *View) logger() *zap.Logger {
	if v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}

// Log exposes the configured structured logger, never nil.
func (v *View) Log() *zap.Logger { return v.logger() }
