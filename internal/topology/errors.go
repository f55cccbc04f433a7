package topology

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotFound is returned by name and role lookups that match nothing.
var ErrNotFound = errors.New("not found")

// ConfigError reports malformed or contradictory configuration input.
// It is always fatal to the operation that raised it.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return "configuration error: " + e.Reason
}

func configErrorf(format string, args ...any) *ConfigError {
	return &ConfigError{Reason: fmt.Sprintf(format, args...)}
}

// ResourceError reports that a filter request could not be satisfied by
// the configured pool. Callers are expected to treat it as "skip this
// test", not as a crash.
type ResourceError struct {
	// Index is the position of the unsatisfied descriptor.
	Index int
	// Descriptor is the unsatisfied requirement.
	Descriptor Descriptor
	// Missing maps roles to the number of hosts still short, when a
	// domain was selected but could not be pruned to the exact counts.
	Missing map[string]int
}

func (e *ResourceError) Error() string {
	if len(e.Missing) > 0 {
		parts := make([]string, 0, len(e.Missing))
		for role, n := range e.Missing {
			parts = append(parts, fmt.Sprintf("%s=%d", role, n))
		}
		sort.Strings(parts)
		return fmt.Sprintf("domain %d does not fit host counts, extra hosts needed: %s",
			e.Index, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("domain %d not configured: %s", e.Index, e.Descriptor)
}
