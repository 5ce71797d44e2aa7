package flags

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store is the narrow read contract the evaluator needs from durable storage.
// A nil result with a nil error means the record does not exist.
type Store interface {
	FindFlagByName(ctx context.Context, name string) (*Flag, error)
	FindFlagByID(ctx context.Context, id uuid.UUID) (*Flag, error)
	FindOverride(ctx context.Context, flagID uuid.UUID, userID string) (*Override, error)
}

// Evaluator resolves flag state for a user: per-user override wins over the
// flag's global default. Results are cached; mutation paths invalidate.
type Evaluator struct {
	store Store
	cache *Cache
}

// NewEvaluator constructs the resolution engine.
func NewEvaluator(store Store, cache *Cache) *Evaluator {
	return &Evaluator{store: store, cache: cache}
}

// Evaluate answers whether flagName is enabled for userID. Unknown flag names
// yield ErrNotFound. Storage errors propagate unchanged; a failed read fails
// the evaluation rather than serving a guess.
func (e *Evaluator) Evaluate(ctx context.Context, flagName, userID string) (Evaluation, error) {
	start := time.Now()

	flag, err := e.store.FindFlagByName(ctx, flagName)
	if err != nil {
		return Evaluation{}, fmt.Errorf("find flag %q: %w", flagName, err)
	}
	if flag == nil {
		return Evaluation{}, fmt.Errorf("flag %q: %w", flagName, ErrNotFound)
	}

	if cached, ok := e.cache.Get(flag.ID, userID); ok {
		recordCacheHit()
		observeEvalDuration("hit", time.Since(start))
		return cached, nil
	}
	recordCacheMiss()

	override, err := e.store.FindOverride(ctx, flag.ID, userID)
	if err != nil {
		return Evaluation{}, fmt.Errorf("find override for flag %q user %q: %w", flagName, userID, err)
	}

	result := Evaluation{
		Enabled:  flag.IsEnabled,
		FlagID:   flag.ID,
		FlagName: flag.Name,
		UserID:   userID,
		Source:   SourceDefault,
	}
	if override != nil {
		result.Enabled = override.IsEnabled
		result.Source = SourceOverride
	}

	if err := ctx.Err(); err != nil {
		return Evaluation{}, err
	}
	e.cache.Put(flag.ID, userID, result)
	observeEvalDuration("miss", time.Since(start))
	return result, nil
}
