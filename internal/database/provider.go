package database

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/kozaktomas/vision-assist/internal/config"
)

// Opener creates a store for the given database configuration
type Opener func(ctx context.Context, cfg *config.DatabaseConfig) (FaceStore, error)

var (
	backends   = make(map[string]Opener)
	backendsMu sync.RWMutex
)

// RegisterBackend registers a store constructor under a name.
// This is called by the backend packages to avoid import cycles.
func RegisterBackend(name string, open Opener) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = open
}

// Backends returns the registered backend names
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open opens the named backend. An empty name selects "postgres" when a
// database URL is configured and "memory" otherwise.
func Open(ctx context.Context, name string, cfg *config.DatabaseConfig) (FaceStore, error) {
	if name == "" {
		name = "memory"
		if cfg != nil && cfg.URL != "" {
			name = "postgres"
		}
	}

	backendsMu.RLock()
	open, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown store backend %q (registered: %v)", name, Backends())
	}

	store, err := open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", name, err)
	}
	return store, nil
}
