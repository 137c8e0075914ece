package device

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
)

// Options are passed to a driver factory.
type Options struct {
	Logger *slog.Logger
	// StateDir is where drivers without hardware keep persistent state.
	StateDir string
}

// Factory constructs a gateway for a registered driver.
type Factory func(Options) (Gateway, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a driver available under name. It panics when name is
// registered twice, matching database/sql.
func Register(name string, factory Factory) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || factory == nil {
		panic("device: Register requires a name and a factory")
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[name]; exists {
		panic("device: Register called twice for driver " + name)
	}
	registry[name] = factory
}

// Open constructs a gateway using the named driver.
func Open(name string, opts Options) (Gateway, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	registryMu.RLock()
	factory, ok := registry[key]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("device: unknown driver %q (available: %s)", name, strings.Join(Drivers(), ", "))
	}
	gw, err := factory(opts)
	if err != nil {
		return nil, fmt.Errorf("device: open %s: %w", key, err)
	}
	return gw, nil
}

// Drivers lists registered driver names in sorted order.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
