// Package domain defines the core value types and narrow interfaces shared by
// the monitoring pipeline, the caches, the durable stores, and the push
// transport. Implementations live in their own packages; nothing in domain
// performs I/O.
package domain

import "strings"

// EntityID identifies a monitored trading account. IDs are opaque strings
// assigned by the upstream provider.
type EntityID string

// ParseEntityIDs converts a list of raw identifiers into EntityIDs, trimming
// whitespace and dropping empties and duplicates while preserving order.
func ParseEntityIDs(raw []string) []EntityID {
	seen := make(map[EntityID]bool, len(raw))
	out := make([]EntityID, 0, len(raw))
	for _, r := range raw {
		id := EntityID(strings.TrimSpace(r))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
