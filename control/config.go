// File: control/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Memory layer configuration: YAML/JSON loading, validation and conversion
// into pool options, plus a thread-safe store of the effective snapshot.

package control

import (
	"encoding/json"
	"maps"
	"os"
	"slices"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/momentics/hioload-mem/affinity"
	"github.com/momentics/hioload-mem/api"
	"github.com/momentics/hioload-mem/pool"
)

// ConfigEnv names the environment variable holding the config file path.
const ConfigEnv = "HIOLOAD_MEM_CONFIG"

// ByteSize is a size in bytes. It decodes from a number or from a quantity
// string such as "256MiB" or "1.5GB".
type ByteSize uint64

func (b *ByteSize) UnmarshalJSON(data []byte) error {
	var n uint64
	if err := json.Unmarshal(data, &n); err == nil {
		*b = ByteSize(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return api.Errorf(api.ErrCodeInvalidArgument, "invalid byte size %s", string(data))
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return api.Errorf(api.ErrCodeInvalidArgument, "invalid byte size %q: %v", s, err)
	}
	*b = ByteSize(n)
	return nil
}

func (b ByteSize) MarshalJSON() ([]byte, error) {
	return json.Marshal(humanize.IBytes(uint64(b)))
}

func (b ByteSize) String() string { return humanize.IBytes(uint64(b)) }

// Config holds parameters fixed for the lifetime of the process pools.
type Config struct {
	// PinnedMemoryPoolByteSize is the arena size of every pinned pool.
	PinnedMemoryPoolByteSize ByteSize `json:"pinnedMemoryPoolByteSize"`
	// CUDAMemoryPoolByteSize maps device ordinal to pool size.
	CUDAMemoryPoolByteSize map[int]ByteSize  `json:"cudaMemoryPoolByteSize,omitempty"`
	MinComputeCapability   float64           `json:"minComputeCapability"`
	HostPolicy             api.HostPolicyMap `json:"hostPolicy,omitempty"`
	AsyncWorkers           int               `json:"asyncWorkers"`
	EnablePeerAccess       bool              `json:"enablePeerAccess"`
	// MetricsAddress, when set, is where the CLI serves /metrics.
	MetricsAddress string `json:"metricsAddress,omitempty"`
}

// DefaultConfig returns defaults suitable for a single-GPU host.
func DefaultConfig() *Config {
	return &Config{
		PinnedMemoryPoolByteSize: 256 << 20,
		CUDAMemoryPoolByteSize:   map[int]ByteSize{0: 64 << 20},
		MinComputeCapability:     6.0,
		AsyncWorkers:             4,
		EnablePeerAccess:         true,
	}
}

// Validate checks ranges and host policy syntax.
func (c *Config) Validate() error {
	if c.AsyncWorkers < 1 {
		return api.Errorf(api.ErrCodeInvalidArgument,
			"asyncWorkers must be positive, got %d", c.AsyncWorkers)
	}
	if c.MinComputeCapability < 0 {
		return api.Errorf(api.ErrCodeInvalidArgument,
			"minComputeCapability must not be negative, got %g", c.MinComputeCapability)
	}
	for id := range c.CUDAMemoryPoolByteSize {
		if id < 0 {
			return api.Errorf(api.ErrCodeInvalidArgument, "invalid device ordinal %d in cudaMemoryPoolByteSize", id)
		}
	}
	for _, name := range sortedPolicyNames(c.HostPolicy) {
		for key, value := range c.HostPolicy[name] {
			var err error
			switch key {
			case api.HostPolicyNUMANode:
				_, err = affinity.ParseNUMANode(value)
			case api.HostPolicyCPUCores:
				_, err = affinity.ParseCPUCores(value)
			default:
				err = api.Errorf(api.ErrCodeInvalidArgument, "unknown host policy setting '%s'", key)
			}
			if err != nil {
				return errors.Wrapf(err, "host policy '%s'", name)
			}
		}
	}
	return nil
}

// PinnedOptions converts the config into pinned pool options.
func (c *Config) PinnedOptions() pool.PinnedOptions {
	return pool.PinnedOptions{
		ByteSize:   uint64(c.PinnedMemoryPoolByteSize),
		HostPolicy: c.HostPolicy,
	}
}

// DeviceOptions converts the config into device pool options.
func (c *Config) DeviceOptions() pool.DeviceOptions {
	sizes := make(map[int]uint64, len(c.CUDAMemoryPoolByteSize))
	for id, n := range c.CUDAMemoryPoolByteSize {
		sizes[id] = uint64(n)
	}
	return pool.DeviceOptions{
		MinComputeCapability: c.MinComputeCapability,
		MemoryPoolByteSize:   sizes,
	}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.CUDAMemoryPoolByteSize = maps.Clone(c.CUDAMemoryPoolByteSize)
	if c.HostPolicy != nil {
		out.HostPolicy = make(api.HostPolicyMap, len(c.HostPolicy))
		for name, p := range c.HostPolicy {
			out.HostPolicy[name] = maps.Clone(p)
		}
	}
	return &out
}

// Parse decodes YAML or JSON over DefaultConfig and validates the result.
// Unknown fields are rejected. A cudaMemoryPoolByteSize map replaces the
// default one instead of merging with it.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	defaults := cfg.CUDAMemoryPoolByteSize
	cfg.CUDAMemoryPoolByteSize = nil
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, api.Errorf(api.ErrCodeInvalidArgument, "failed to parse config: %v", err)
	}
	if cfg.CUDAMemoryPoolByteSize == nil {
		cfg.CUDAMemoryPoolByteSize = defaults
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// LoadFromEnv loads the file named by ConfigEnv, or returns DefaultConfig
// when the variable is unset.
func LoadFromEnv() (*Config, error) {
	path := os.Getenv(ConfigEnv)
	if path == "" {
		return DefaultConfig(), nil
	}
	return Load(path)
}

// Marshal renders cfg as YAML.
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

func sortedPolicyNames(m api.HostPolicyMap) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConfigStore holds the effective configuration and notifies listeners when
// it is replaced.
type ConfigStore struct {
	mu        sync.RWMutex
	config    *Config
	listeners []func(*Config)
}

// NewConfigStore initializes a store holding cfg, or DefaultConfig when nil.
func NewConfigStore(cfg *Config) *ConfigStore {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &ConfigStore{config: cfg.Clone()}
}

// Snapshot returns a copy of the current config.
func (cs *ConfigStore) Snapshot() *Config {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.config.Clone()
}

// SetConfig validates and installs cfg, then calls every listener with a
// copy. Listeners run synchronously in registration order.
func (cs *ConfigStore) SetConfig(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	cs.mu.Lock()
	cs.config = cfg.Clone()
	listeners := slices.Clone(cs.listeners)
	cs.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg.Clone())
	}
	return nil
}

// OnReload registers a listener called on config changes.
func (cs *ConfigStore) OnReload(fn func(*Config)) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.listeners = append(cs.listeners, fn)
}
