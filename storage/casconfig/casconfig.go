// Package casconfig opens one or more mirror stores from configuration.
package casconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"verinews.io/verify/storage"
	"verinews.io/verify/storage/casregistry"
)

// Write policies.
const (
	// WriteFirst writes to the first backend; reads fall back in order.
	WriteFirst = "first"
	// WriteAll writes to every backend and requires matching CIDs.
	WriteAll = "all"
)

// Config selects mirror backends at runtime. Binaries still need to link the
// backend packages with blank imports.
//
// Example:
//
//	write_policy: all
//	backends:
//	  - name: localfs
//	    config: {dir: /var/lib/verinews/cas}
//	  - name: grpc
//	    config: {target: mirror.internal:7777}
type Config struct {
	WritePolicy string          `json:"write_policy,omitempty" yaml:"write_policy,omitempty"`
	Backends    []BackendConfig `json:"backends" yaml:"backends"`
}

type BackendConfig struct {
	// Name is the casregistry backend to open.
	Name string `json:"name" yaml:"name"`
	// ID names this instance in reports; defaults to Name.
	ID     string            `json:"id,omitempty" yaml:"id,omitempty"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

func (b BackendConfig) id() string {
	if b.ID != "" {
		return b.ID
	}
	return b.Name
}

// LoadFile reads a JSON or YAML (.yaml, .yml) configuration.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, errors.New("casconfig: empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("casconfig: %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// IsZero reports whether no backend is configured.
func (c Config) IsZero() bool { return len(c.Backends) == 0 }

func (c Config) Validate() error {
	if len(c.Backends) == 0 {
		return errors.New("casconfig: at least one backend is required")
	}
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if b.Name == "" {
			return errors.New("casconfig: backend name is required")
		}
		if _, ok := seen[b.id()]; ok {
			return fmt.Errorf("casconfig: duplicate backend id %q", b.id())
		}
		seen[b.id()] = struct{}{}
	}
	switch c.WritePolicy {
	case "", WriteFirst, WriteAll:
		return nil
	default:
		return fmt.Errorf("casconfig: invalid write_policy %q", c.WritePolicy)
	}
}

// Open opens every configured backend and combines them per WritePolicy.
//
// If preferred is non-empty, that backend (by name or id) moves to the front
// and so receives writes under WriteFirst.
func (c Config) Open(usage casregistry.Usage, preferred string) (storage.CAS, func() error, error) {
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}

	ordered := append([]BackendConfig(nil), c.Backends...)
	if preferred != "" {
		idx := -1
		for i := range ordered {
			if ordered[i].Name == preferred || ordered[i].ID == preferred {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, nil, fmt.Errorf("casconfig: preferred backend %q not found in config", preferred)
		}
		if idx != 0 {
			b := ordered[idx]
			copy(ordered[1:idx+1], ordered[0:idx])
			ordered[0] = b
		}
	}

	named := make([]storage.NamedCAS, 0, len(ordered))
	closers := make([]func() error, 0, len(ordered))
	closeAll := func() error {
		var firstErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}
	for _, b := range ordered {
		cas, closeFn, err := casregistry.OpenWithConfig(b.Name, usage, b.Config)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("casconfig: %s: %w", b.id(), err)
		}
		named = append(named, storage.NamedCAS{Name: b.id(), CAS: cas})
		if closeFn != nil {
			closers = append(closers, closeFn)
		}
	}

	if len(named) == 1 {
		return named[0].CAS, closeAll, nil
	}
	if c.WritePolicy == WriteAll {
		return storage.ReplicatingCAS{Backends: named}, closeAll, nil
	}
	adapters := make([]storage.CAS, 0, len(named))
	for _, n := range named {
		adapters = append(adapters, n.CAS)
	}
	return storage.MultiCAS{Adapters: adapters}, closeAll, nil
}
