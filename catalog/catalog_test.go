package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reward-engine/catalog"
	"github.com/warp/reward-engine/engine"
	memstore "github.com/warp/reward-engine/engine/store"
)

var seedTime = time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

func TestSeed_WritesDefaults(t *testing.T) {
	store := memstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, catalog.Seed(ctx, store, seedTime))

	rewards, err := store.Rewards(ctx)
	require.NoError(t, err)
	assert.Len(t, rewards, len(catalog.Default(seedTime)))

	phone, err := store.Reward(ctx, "phone-verification-reward")
	require.NoError(t, err)
	assert.Equal(t, engine.RewardCoupon, phone.Type)
	assert.Equal(t, engine.TriggerPhoneVerification, phone.Trigger.Type)
	assert.False(t, phone.DiscountAmount.IsZero())

	streak, err := store.Reward(ctx, "workout-streak-3")
	require.NoError(t, err)
	target, ok := streak.Trigger.Data.Int("streak_days")
	require.True(t, ok)
	assert.Equal(t, int64(3), target)
}

func TestSeed_Idempotent(t *testing.T) {
	// Re-seeding must not reset claim counters on existing rewards.

	store := memstore.NewMemory()
	ctx := context.Background()
	require.NoError(t, catalog.Seed(ctx, store, seedTime))

	claim := engine.UserRewardClaim{
		ID:        "c-1",
		UserID:    "u-1",
		RewardID:  "phone-verification-reward",
		ClaimedAt: seedTime,
	}
	require.NoError(t, store.IssueClaim(ctx, claim, seedTime))

	require.NoError(t, catalog.Seed(ctx, store, seedTime.Add(24*time.Hour)))

	reward, err := store.Reward(ctx, "phone-verification-reward")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reward.QuantityClaimed)

	rewards, err := store.Rewards(ctx)
	require.NoError(t, err)
	assert.Len(t, rewards, len(catalog.Default(seedTime)))
}

func TestDefault_BadgeCarriesNoCoupon(t *testing.T) {
	for _, r := range catalog.Default(seedTime) {
		if r.Type == engine.RewardBadge {
			assert.False(t, r.Type.UsesCouponCode(), "badge %s must not use coupon codes", r.ID)
		} else {
			assert.True(t, r.Type.UsesCouponCode(), "reward %s should carry a coupon code", r.ID)
		}
	}
}
