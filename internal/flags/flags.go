// Package flags provides feature toggles read from the config's flags map.
// Flags are read-only after initialization and unknown flags are off.
package flags

import (
	"maps"

	"github.com/zjrosen/nsstore/internal/log"
)

const (
	// FlagDeferredActions installs the deferred stage on Counter pipelines,
	// re-entering released actions through the processor.
	FlagDeferredActions = "deferred-actions"

	// FlagActionLog publishes an ActionLogEvent for every dispatch.
	FlagActionLog = "action-log"
)

// Defaults returns the built-in flag values.
func Defaults() map[string]bool {
	return map[string]bool{
		FlagDeferredActions: true,
		FlagActionLog:       false,
	}
}

// Registry holds feature flag state.
type Registry struct {
	flags map[string]bool
}

// New creates a Registry from Defaults overlaid with overrides.
func New(overrides map[string]bool) *Registry {
	merged := Defaults()
	maps.Copy(merged, overrides)
	r := &Registry{flags: merged}
	log.Debug(log.CatConfig, "Feature flags initialized", "count", len(merged), "flags", merged)
	return r
}

// Enabled reports whether name is on. Unknown flags and a nil registry
// report false.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	value, exists := r.flags[name]
	if !exists {
		log.Debug(log.CatConfig, "Unknown flag accessed", "flag", name)
		return false
	}
	return value
}

// All returns a copy of all flags.
func (r *Registry) All() map[string]bool {
	if r == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.flags)
}
