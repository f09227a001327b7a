package profiles

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debatelab/agora/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client, nil)
}

func TestSetGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	profile := &models.AgentProfile{
		ID:     "optimist",
		Name:   "Vera",
		Role:   "techno-optimist",
		Tone:   "enthusiastic",
		Biases: []string{"favors innovation"},
		Stances: map[string]float64{
			"carbon tax": 0.8,
			"too high":   1.5,
		},
	}
	require.NoError(t, store.Set(ctx, profile))

	got, err := store.Get(ctx, "optimist")
	require.NoError(t, err)
	assert.Equal(t, "Vera", got.Name)
	assert.Equal(t, "techno-optimist", got.Role)
	assert.Equal(t, 0.8, got.StanceOn("carbon tax"))
	assert.Equal(t, 1.0, got.StanceOn("too high"), "stored stances are clamped")
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())
}

func TestGetNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSetValidation(t *testing.T) {
	store := newTestStore(t)

	assert.Error(t, store.Set(context.Background(), nil))
	assert.Error(t, store.Set(context.Background(), &models.AgentProfile{Name: "No ID"}))
}

func TestListOrdered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"zeno", "ada", "marx"} {
		require.NoError(t, store.Set(ctx, &models.AgentProfile{ID: id, Name: id}))
	}

	profiles, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 3)
	assert.Equal(t, "ada", profiles[0].ID)
	assert.Equal(t, "marx", profiles[1].ID)
	assert.Equal(t, "zeno", profiles[2].ID)
}

func TestListEmpty(t *testing.T) {
	store := newTestStore(t)

	profiles, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestSetStance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, &models.AgentProfile{ID: "a"}))
	require.NoError(t, store.SetStance(ctx, "a", "carbon tax", 0.3))

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0.3, got.StanceOn("carbon tax"))

	require.NoError(t, store.SetStance(ctx, "a", "carbon tax", 2.5))
	got, err = store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 1.0, got.StanceOn("carbon tax"))

	err = store.SetStance(ctx, "ghost", "carbon tax", 0.5)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAdjustStanceDrift(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, &models.AgentProfile{
		ID:      "a",
		Stances: map[string]float64{"carbon tax": 0.5},
	}))

	next, err := store.AdjustStance(ctx, "a", "carbon tax", 0.02)
	require.NoError(t, err)
	assert.InDelta(t, 0.52, next, 1e-9)

	// Unknown topic drifts from the neutral default.
	next, err = store.AdjustStance(ctx, "a", "new topic", -0.02)
	require.NoError(t, err)
	assert.InDelta(t, 0.48, next, 1e-9)

	// Drift never leaves the valid range.
	require.NoError(t, store.SetStance(ctx, "a", "carbon tax", 0.995))
	next, err = store.AdjustStance(ctx, "a", "carbon tax", 0.02)
	require.NoError(t, err)
	assert.Equal(t, 1.0, next)
}

func TestReinforceStanceHardensExistingLean(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, &models.AgentProfile{
		ID: "a",
		Stances: map[string]float64{
			"carbon tax": 0.7,
			"open data":  0.3,
		},
	}))

	next, err := store.ReinforceStance(ctx, "a", "carbon tax", 0.02)
	require.NoError(t, err)
	assert.InDelta(t, 0.72, next, 1e-9)

	next, err = store.ReinforceStance(ctx, "a", "open data", 0.02)
	require.NoError(t, err)
	assert.InDelta(t, 0.28, next, 1e-9)

	// Neutral agents stay neutral.
	require.NoError(t, store.SetStance(ctx, "a", "quotas", 0.5))
	next, err = store.ReinforceStance(ctx, "a", "quotas", 0.02)
	require.NoError(t, err)
	assert.Equal(t, 0.5, next)

	_, err = store.ReinforceStance(ctx, "ghost", "carbon tax", 0.02)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSeedDoesNotOverwrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, &models.AgentProfile{
		ID:      "optimist",
		Name:    "Customized",
		Stances: map[string]float64{"carbon tax": 0.99},
	}))

	roster := []models.AgentProfile{
		{ID: "optimist", Name: "Default Vera"},
		{ID: "skeptic", Name: "Sal"},
	}

	created, err := store.Seed(ctx, roster)
	require.NoError(t, err)
	assert.Equal(t, 1, created, "only the missing agent is created")

	got, err := store.Get(ctx, "optimist")
	require.NoError(t, err)
	assert.Equal(t, "Customized", got.Name, "seed must not clobber stored state")
	assert.Equal(t, 0.99, got.StanceOn("carbon tax"))

	got, err = store.Get(ctx, "skeptic")
	require.NoError(t, err)
	assert.Equal(t, "Sal", got.Name)

	profiles, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 2)
}
