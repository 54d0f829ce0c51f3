package config

import (
	"sync"
)

// RuntimeConfig stores configuration set at runtime via CLI flags.
// These values are not persisted to config files.
type RuntimeConfig struct {
	mu          sync.RWMutex
	verbose     bool
	allowUpdate bool
}

var globalRuntime = &RuntimeConfig{}

// SetVerbose enables browser protocol logging and per-stage log lines.
func SetVerbose(v bool) {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	globalRuntime.verbose = v
}

// IsVerbose reports whether verbose logging is on.
func IsVerbose() bool {
	globalRuntime.mu.RLock()
	defer globalRuntime.mu.RUnlock()
	return globalRuntime.verbose
}

// SetAllowUpdate lets the service run the baseline update command.
// Rewriting baselines over HTTP is disabled by default.
func SetAllowUpdate(allow bool) {
	globalRuntime.mu.Lock()
	defer globalRuntime.mu.Unlock()
	globalRuntime.allowUpdate = allow
}

// IsUpdateAllowed returns whether the update command may run.
func IsUpdateAllowed() bool {
	globalRuntime.mu.RLock()
	defer globalRuntime.mu.RUnlock()
	return globalRuntime.allowUpdate
}
