package flags

import (
	"log/slog"

	"github.com/google/uuid"
)

// Invalidator exposes the cache invalidation hooks consumed by the mutation
// paths. Callers must invoke them only after the durable write has committed;
// a skipped invalidation is a staleness risk bounded by the cache TTL, never
// a reason to fail the mutation.
type Invalidator struct {
	cache  *Cache
	logger *slog.Logger
}

// NewInvalidator wires the hooks to a cache.
func NewInvalidator(cache *Cache, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{cache: cache, logger: logger}
}

// OnFlagChanged drops every cached evaluation of the flag, for all users.
// Called after flag updates, toggles and deletes.
func (i *Invalidator) OnFlagChanged(flagID uuid.UUID) {
	if i == nil || i.cache == nil {
		return
	}
	i.cache.InvalidateFlag(flagID)
	i.logger.Debug("flag cache invalidated", slog.String("flag_id", flagID.String()))
}

// OnOverrideChanged drops the cached evaluation for one (flag, user) pair.
// Called after an override is created, updated or deleted.
func (i *Invalidator) OnOverrideChanged(flagID uuid.UUID, userID string) {
	if i == nil || i.cache == nil {
		return
	}
	i.cache.InvalidateOverride(flagID, userID)
	i.logger.Debug("override cache invalidated",
		slog.String("flag_id", flagID.String()),
		slog.String("user_id", userID))
}
