package flags

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestEvaluator(t *testing.T) (*Evaluator, *memoryRepo, *Service, *Cache) {
	t.Helper()
	repo := newMemoryRepo()
	cache, err := NewCache(time.Minute, 100)
	require.NoError(t, err)
	evaluator := NewEvaluator(repo, cache)
	service := NewService(repo, NewInvalidator(cache, nil))
	return evaluator, repo, service, cache
}

func TestEvaluateOverrideTakesPrecedence(t *testing.T) {
	evaluator, _, service, _ := newTestEvaluator(t)
	ctx := context.Background()

	flag, err := service.CreateFlag(ctx, CreateFlagRequest{Name: "dark_mode", IsEnabled: false})
	require.NoError(t, err)
	_, _, err = service.SetOverride(ctx, flag.ID, "user_1", true)
	require.NoError(t, err)

	result, err := evaluator.Evaluate(ctx, "dark_mode", "user_1")
	require.NoError(t, err)
	require.True(t, result.Enabled)
	require.Equal(t, SourceOverride, result.Source)
	require.Equal(t, flag.ID, result.FlagID)
	require.Equal(t, "dark_mode", result.FlagName)
	require.Equal(t, "user_1", result.UserID)
}

func TestEvaluateFallsBackToDefault(t *testing.T) {
	evaluator, _, service, _ := newTestEvaluator(t)
	ctx := context.Background()

	_, err := service.CreateFlag(ctx, CreateFlagRequest{Name: "dark_mode", IsEnabled: true})
	require.NoError(t, err)

	result, err := evaluator.Evaluate(ctx, "dark_mode", "user_2")
	require.NoError(t, err)
	require.True(t, result.Enabled)
	require.Equal(t, SourceDefault, result.Source)
}

func TestEvaluateUnknownFlag(t *testing.T) {
	evaluator, _, _, _ := newTestEvaluator(t)

	_, err := evaluator.Evaluate(context.Background(), "nonexistent_flag", "u1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEvaluateStoreErrorsPropagate(t *testing.T) {
	evaluator, repo, service, _ := newTestEvaluator(t)
	ctx := context.Background()

	_, err := service.CreateFlag(ctx, CreateFlagRequest{Name: "dark_mode"})
	require.NoError(t, err)

	boom := errors.New("connection reset")
	repo.findErr = boom

	_, err = evaluator.Evaluate(ctx, "dark_mode", "u1")
	require.ErrorIs(t, err, boom)
}

func TestEvaluateSecondCallServedFromCache(t *testing.T) {
	evaluator, repo, service, _ := newTestEvaluator(t)
	ctx := context.Background()

	_, err := service.CreateFlag(ctx, CreateFlagRequest{Name: "dark_mode", IsEnabled: true})
	require.NoError(t, err)

	first, err := evaluator.Evaluate(ctx, "dark_mode", "u1")
	require.NoError(t, err)
	overrideReads := repo.overrideFinds

	second, err := evaluator.Evaluate(ctx, "dark_mode", "u1")
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, overrideReads, repo.overrideFinds, "cache hit must not read the durable store")
}

func TestEvaluateCacheExpiryTriggersFreshRead(t *testing.T) {
	evaluator, repo, service, cache := newTestEvaluator(t)
	ctx := context.Background()

	now := time.Now()
	cache.now = func() time.Time { return now }

	_, err := service.CreateFlag(ctx, CreateFlagRequest{Name: "dark_mode"})
	require.NoError(t, err)

	_, err = evaluator.Evaluate(ctx, "dark_mode", "u1")
	require.NoError(t, err)
	overrideReads := repo.overrideFinds

	now = now.Add(2 * time.Minute)

	_, err = evaluator.Evaluate(ctx, "dark_mode", "u1")
	require.NoError(t, err)
	require.Equal(t, overrideReads+1, repo.overrideFinds, "expired entry must be resolved again")
}

func TestEvaluateCancelledContextDoesNotCache(t *testing.T) {
	evaluator, _, service, cache := newTestEvaluator(t)

	flag, err := service.CreateFlag(context.Background(), CreateFlagRequest{Name: "dark_mode"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = evaluator.Evaluate(ctx, "dark_mode", "u1")
	require.ErrorIs(t, err, context.Canceled)
	_, ok := cache.Get(flag.ID, "u1")
	require.False(t, ok, "a cancelled evaluation must not leave an entry behind")
}

// Mirrors the end-to-end flow: default off, per-user override on, override
// removed again.
func TestEvaluateOverrideLifecycle(t *testing.T) {
	evaluator, _, service, _ := newTestEvaluator(t)
	ctx := context.Background()

	flag, err := service.CreateFlag(ctx, CreateFlagRequest{Name: "dark_mode", IsEnabled: false})
	require.NoError(t, err)
	_, _, err = service.SetOverride(ctx, flag.ID, "user_1", true)
	require.NoError(t, err)

	result, err := evaluator.Evaluate(ctx, "dark_mode", "user_1")
	require.NoError(t, err)
	require.True(t, result.Enabled)
	require.Equal(t, SourceOverride, result.Source)

	result, err = evaluator.Evaluate(ctx, "dark_mode", "user_2")
	require.NoError(t, err)
	require.False(t, result.Enabled)
	require.Equal(t, SourceDefault, result.Source)

	require.NoError(t, service.DeleteOverride(ctx, flag.ID, "user_1"))

	result, err = evaluator.Evaluate(ctx, "dark_mode", "user_1")
	require.NoError(t, err)
	require.False(t, result.Enabled)
	require.Equal(t, SourceDefault, result.Source)
}

func TestEvaluateFlagChangeInvalidatesAllUsers(t *testing.T) {
	evaluator, _, service, _ := newTestEvaluator(t)
	ctx := context.Background()

	flag, err := service.CreateFlag(ctx, CreateFlagRequest{Name: "beta_banner", IsEnabled: false})
	require.NoError(t, err)

	for _, user := range []string{"u1", "u2", "u3"} {
		result, err := evaluator.Evaluate(ctx, "beta_banner", user)
		require.NoError(t, err)
		require.False(t, result.Enabled)
	}

	_, err = service.ToggleFlag(ctx, flag.ID, true)
	require.NoError(t, err)

	for _, user := range []string{"u1", "u2", "u3"} {
		result, err := evaluator.Evaluate(ctx, "beta_banner", user)
		require.NoError(t, err)
		require.True(t, result.Enabled, "toggle must be visible immediately for %s", user)
	}
}
