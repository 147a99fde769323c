// Package casregistry lets binaries open mirror stores by name, from either
// command-line flags or a configuration map.
package casregistry

import (
	"flag"
	"fmt"
	"sort"
	"strings"
	"sync"

	"verinews.io/verify/storage"
)

// Option is one backend setting. The same key is accepted in configuration
// maps and, prefixed with the backend's flag prefix, on the command line.
type Option struct {
	Key     string
	Default string
	Usage   string
}

// Backend is a build-time plugin that opens a storage.CAS.
//
// Backends register themselves in init():
//
//	casregistry.MustRegister(casregistry.Backend{ ... })
type Backend struct {
	Name        string
	Description string
	Usage       Usage
	Options     []Option

	// Open constructs the CAS from settings keyed by Option.Key. Missing keys
	// take their Option.Default. The close function may be nil.
	Open func(settings map[string]string) (storage.CAS, func() error, error)
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}

	// flagValues holds values bound by RegisterFlags, keyed by backend name.
	flagValues = map[string]map[string]*string{}
)

func Register(b Backend) error {
	if b.Name == "" {
		return fmt.Errorf("casregistry: backend name is required")
	}
	if b.Open == nil {
		return fmt.Errorf("casregistry: backend %q missing Open", b.Name)
	}
	if b.Usage == 0 {
		return fmt.Errorf("casregistry: backend %q missing Usage", b.Name)
	}
	for _, o := range b.Options {
		if o.Key == "" {
			return fmt.Errorf("casregistry: backend %q has an option without a key", b.Name)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if _, exists := backends[b.Name]; exists {
		return fmt.Errorf("casregistry: backend %q already registered", b.Name)
	}
	backends[b.Name] = b
	return nil
}

func MustRegister(b Backend) {
	if err := Register(b); err != nil {
		panic(err)
	}
}

// List returns backends matching usage, sorted by name.
func List(usage Usage) []Backend {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b.Usage.allows(usage) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func Names(usage Usage) []string {
	bs := List(usage)
	n := make([]string, 0, len(bs))
	for _, b := range bs {
		n = append(n, b.Name)
	}
	return n
}

// FlagName is the command-line spelling of a backend option.
func FlagName(backend, key string) string {
	return backend + "-" + strings.ReplaceAll(key, "_", "-")
}

// RegisterFlags binds a flag for every option of every backend matching
// usage, so one FlagSet can parse settings for whichever backend is chosen.
func RegisterFlags(fs *flag.FlagSet, usage Usage) {
	for _, b := range List(usage) {
		vals := make(map[string]*string, len(b.Options))
		for _, o := range b.Options {
			vals[o.Key] = fs.String(FlagName(b.Name, o.Key), o.Default, o.Usage)
		}
		mu.Lock()
		flagValues[b.Name] = vals
		mu.Unlock()
	}
}

// Open opens the named backend with settings taken from flags bound by
// RegisterFlags.
func Open(name string, usage Usage) (storage.CAS, func() error, error) {
	mu.RLock()
	vals := flagValues[name]
	mu.RUnlock()
	settings := make(map[string]string, len(vals))
	for k, v := range vals {
		settings[k] = *v
	}
	return OpenWithConfig(name, usage, settings)
}

// OpenWithConfig opens the named backend with explicit settings. Unknown keys
// are rejected so typos in configuration files surface early.
func OpenWithConfig(name string, usage Usage, settings map[string]string) (storage.CAS, func() error, error) {
	mu.RLock()
	b, ok := backends[name]
	mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("casregistry: unknown backend %q", name)
	}
	if !b.Usage.allows(usage) {
		return nil, nil, fmt.Errorf("casregistry: backend %q not supported in this binary", name)
	}
	resolved := make(map[string]string, len(b.Options))
	for _, o := range b.Options {
		resolved[o.Key] = o.Default
	}
	for k, v := range settings {
		if _, known := resolved[k]; !known {
			return nil, nil, fmt.Errorf("casregistry: backend %q has no option %q", name, k)
		}
		resolved[k] = v
	}
	return b.Open(resolved)
}
