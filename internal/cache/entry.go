// Package cache persists fetched tabular results on disk, keyed by the
// canonical request key. Entries are written once per key and only replaced
// on explicit invalidation or a schema version change.
package cache

import (
	"time"

	"nbafetcher/internal/table"
)

// Entry is one persisted fetch result.
type Entry struct {
	// SchemaVersion tags the serialization format. Entries written under a
	// different version are treated as misses, not errors, so the format can
	// evolve without a flag day.
	SchemaVersion int `json:"schema_version"`

	// CachedAt is when the entry was written.
	CachedAt time.Time `json:"cached_at"`

	// Payload is the tabular result for this key.
	Payload *table.Table `json:"payload"`
}
