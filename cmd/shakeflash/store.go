package main

import (
	"fmt"

	"shakeflash/tunable"
)

// settingsStore is a tunable.Store that owns a resource.
type settingsStore interface {
	tunable.Store
	Close() error
}

type memorySettings struct {
	*tunable.MemoryStore
}

func (memorySettings) Close() error { return nil }

// openSettingsStore opens the backend selected in cfg.
func openSettingsStore(cfg SettingsConfig) (settingsStore, error) {
	switch cfg.Backend {
	case backendYAML:
		return OpenYAMLStore(ExpandPath(cfg.Path))
	case backendSQLite:
		return OpenSQLiteStore(ExpandPath(cfg.Path))
	case backendMemory:
		return memorySettings{tunable.NewMemoryStore()}, nil
	default:
		return nil, fmt.Errorf("unknown settings backend %q", cfg.Backend)
	}
}
