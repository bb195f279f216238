// Package config loads a node's YAML configuration file: its own
// listen address, data directory, and the cluster topology it
// participates in. Grounded on the sibling pack repo's use of
// gopkg.in/yaml.v3 for config files, generalized from the teacher's
// plain Go-literal server.Config (which has no file format at all) to
// a YAML document so a cluster of nodes can ship one topology file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is one node's configuration, loaded from a YAML file.
type Config struct {
	// Host is the address this node listens on, e.g. "0.0.0.0:8080".
	Host string `yaml:"host"`
	// Self is this node's own endpoint as it appears in Topology, used
	// to resolve the node's stable id.
	Self string `yaml:"self"`
	// DataDir holds this node's SSTable files.
	DataDir string `yaml:"data_dir"`
	// Topology lists every node's endpoint, including this one.
	Topology []string `yaml:"topology"`

	// MaxMemtableBytes overrides lsm.DefaultMaxMemtableBytes when set.
	MaxMemtableBytes int64 `yaml:"max_memtable_bytes"`
	// EntityPoolWorkers sizes the bounded worker pool serving
	// /v0/entity. Zero means the package default.
	EntityPoolWorkers int `yaml:"entity_pool_workers"`
	// ReadRepairPoolWorkers sizes the read-repair pool. Zero means the
	// package default.
	ReadRepairPoolWorkers int `yaml:"read_repair_pool_workers"`
	// ReplicaPoolSize is the number of pre-opened HTTP clients per
	// remote replica. Zero means cluster.DefaultPoolSize.
	ReplicaPoolSize int `yaml:"replica_pool_size"`
	// SubrequestTimeout bounds a single per-replica subrequest. Zero
	// means cluster.DefaultSubrequestTimeout.
	SubrequestTimeout time.Duration `yaml:"subrequest_timeout"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// DefaultConfig returns sensible defaults for a single-node setup;
// Topology and Self must still be set for a real cluster.
func DefaultConfig() *Config {
	return &Config{
		Host:         "localhost:8080",
		DataDir:      "./data",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

// Load reads and parses the YAML config file at path, applying
// DefaultConfig's values for anything left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the system assumes hold.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("config: host is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if len(c.Topology) == 0 {
		return fmt.Errorf("config: topology must list at least one node")
	}
	found := false
	for _, e := range c.Topology {
		if e == c.Self {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("config: self %q is not present in topology", c.Self)
	}
	return nil
}
