package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reward-engine/engine"
	"github.com/warp/reward-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testReward(id string, limit *int64) engine.Reward {
	return engine.Reward{
		ID:             engine.RewardID(id),
		Name:           "Test Reward",
		Description:    "A reward for tests",
		Type:           engine.RewardCoupon,
		Value:          "10% off",
		DiscountAmount: decimal.RequireFromString("5.5"),
		Trigger: engine.TriggerConfig{
			Type: engine.TriggerWorkoutStreak,
			Data: engine.TriggerData{"streak_days": float64(3)},
		},
		Status:        engine.RewardStatusActive,
		QuantityLimit: limit,
		CreatedAt:     testNow,
		UpdatedAt:     testNow,
	}
}

func testClaim(user, reward, id, coupon string) engine.UserRewardClaim {
	expires := testNow.Add(30 * 24 * time.Hour)
	return engine.UserRewardClaim{
		ID:          engine.ClaimID(id),
		UserID:      engine.UserID(user),
		RewardID:    engine.RewardID(reward),
		ClaimedAt:   testNow,
		ExpiresAt:   &expires,
		CouponCode:  coupon,
		Metadata:    map[string]string{"source": "test"},
		TriggerData: engine.TriggerData{"streak_count": float64(3)},
	}
}

// =============================================================================
// CATALOG TESTS
// =============================================================================

func TestSQLite_SaveAndGetReward(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	limit := int64(100)
	saved := testReward("r-1", &limit)
	require.NoError(t, store.SaveReward(ctx, saved))

	got, err := store.Reward(ctx, "r-1")
	require.NoError(t, err)

	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, saved.Name, got.Name)
	assert.Equal(t, saved.Type, got.Type)
	assert.True(t, got.DiscountAmount.Equal(decimal.RequireFromString("5.5")),
		"discount = %s", got.DiscountAmount)
	assert.Equal(t, engine.TriggerWorkoutStreak, got.Trigger.Type)
	target, ok := got.Trigger.Data.Int("streak_days")
	require.True(t, ok)
	assert.Equal(t, int64(3), target)
	require.NotNil(t, got.QuantityLimit)
	assert.Equal(t, int64(100), *got.QuantityLimit)
	assert.True(t, got.CreatedAt.Equal(testNow))
}

func TestSQLite_GetReward_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Reward(context.Background(), "missing")
	assert.ErrorIs(t, err, engine.ErrRewardNotFound)
}

func TestSQLite_Rewards_CreationOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := testReward("r-z", nil)
	second := testReward("r-a", nil)
	second.CreatedAt = testNow.Add(time.Second)
	require.NoError(t, store.SaveReward(ctx, first))
	require.NoError(t, store.SaveReward(ctx, second))

	rewards, err := store.Rewards(ctx)
	require.NoError(t, err)
	require.Len(t, rewards, 2)
	assert.Equal(t, engine.RewardID("r-z"), rewards[0].ID)
	assert.Equal(t, engine.RewardID("r-a"), rewards[1].ID)
}

// =============================================================================
// CLAIM INVARIANT TESTS
// =============================================================================

func TestSQLite_IssueClaim_Succeeds(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveReward(ctx, testReward("r-1", nil)))

	require.NoError(t, store.IssueClaim(ctx, testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA"), testNow))

	got, err := store.Claim(ctx, "u-1", "c-1")
	require.NoError(t, err)
	assert.Equal(t, "FIT-AAAAAAAAAA", got.CouponCode)
	assert.Equal(t, map[string]string{"source": "test"}, got.Metadata)
	assert.Nil(t, got.RedeemedAt)

	reward, err := store.Reward(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reward.QuantityClaimed)
}

func TestSQLite_IssueClaim_RefusesSecondValidClaim(t *testing.T) {
	// GIVEN: A user holding a valid claim
	// WHEN: Issuing another claim for the same reward
	// THEN: Refused, and nothing is written

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveReward(ctx, testReward("r-1", nil)))
	require.NoError(t, store.IssueClaim(ctx, testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA"), testNow))

	err := store.IssueClaim(ctx, testClaim("u-1", "r-1", "c-2", "FIT-BBBBBBBBBB"), testNow)
	assert.ErrorIs(t, err, engine.ErrClaimConflict)

	claims, err := store.ClaimsByUser(ctx, "u-1")
	require.NoError(t, err)
	assert.Len(t, claims, 1)

	reward, err := store.Reward(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), reward.QuantityClaimed, "refused claim must not bump the counter")
}

func TestSQLite_IssueClaim_ExpiredClaimDoesNotBlock(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveReward(ctx, testReward("r-1", nil)))

	expired := testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA")
	past := testNow.Add(-time.Hour)
	expired.ExpiresAt = &past
	require.NoError(t, store.IssueClaim(ctx, expired, testNow.Add(-48*time.Hour)))

	err := store.IssueClaim(ctx, testClaim("u-1", "r-1", "c-2", "FIT-BBBBBBBBBB"), testNow)
	assert.NoError(t, err, "expired claim must not block a fresh one")
}

func TestSQLite_IssueClaim_SubSecondExpiryOrdering(t *testing.T) {
	// GIVEN: A valid claim expiring at .550s within a second
	// WHEN: A second claim is attempted at .500s, a shorter fraction
	// THEN: The first claim still counts as valid and blocks it

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveReward(ctx, testReward("r-1", nil)))

	first := testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA")
	expires := testNow.Add(550 * time.Millisecond)
	first.ExpiresAt = &expires
	require.NoError(t, store.IssueClaim(ctx, first, testNow))

	err := store.IssueClaim(ctx, testClaim("u-1", "r-1", "c-2", "FIT-BBBBBBBBBB"),
		testNow.Add(500*time.Millisecond))
	assert.ErrorIs(t, err, engine.ErrClaimConflict,
		"claim expiring at .550s must still be valid at .500s")
}

func TestSQLite_IssueClaim_QuantityCeiling(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	limit := int64(1)
	require.NoError(t, store.SaveReward(ctx, testReward("r-1", &limit)))

	require.NoError(t, store.IssueClaim(ctx, testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA"), testNow))

	err := store.IssueClaim(ctx, testClaim("u-2", "r-1", "c-2", "FIT-BBBBBBBBBB"), testNow)
	assert.ErrorIs(t, err, engine.ErrQuantityExhausted)
}

func TestSQLite_IssueClaim_UnknownReward(t *testing.T) {
	store := newTestStore(t)

	err := store.IssueClaim(context.Background(), testClaim("u-1", "missing", "c-1", "FIT-AAAAAAAAAA"), testNow)
	assert.ErrorIs(t, err, engine.ErrRewardNotFound)
}

func TestSQLite_IssueClaim_CouponCollision(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveReward(ctx, testReward("r-1", nil)))
	require.NoError(t, store.SaveReward(ctx, testReward("r-2", nil)))

	require.NoError(t, store.IssueClaim(ctx, testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA"), testNow))

	err := store.IssueClaim(ctx, testClaim("u-2", "r-2", "c-2", "FIT-AAAAAAAAAA"), testNow)
	assert.ErrorIs(t, err, engine.ErrCouponCodeTaken)

	// The whole transaction rolls back, counter included
	reward, err := store.Reward(ctx, "r-2")
	require.NoError(t, err)
	assert.Equal(t, int64(0), reward.QuantityClaimed)
}

func TestSQLite_IssueClaim_BadgeWithoutCoupon(t *testing.T) {
	// Claims without coupon codes must not collide with each other on the
	// unique index.

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveReward(ctx, testReward("r-1", nil)))
	require.NoError(t, store.SaveReward(ctx, testReward("r-2", nil)))

	require.NoError(t, store.IssueClaim(ctx, testClaim("u-1", "r-1", "c-1", ""), testNow))
	require.NoError(t, store.IssueClaim(ctx, testClaim("u-1", "r-2", "c-2", ""), testNow))
}

// =============================================================================
// REDEMPTION TESTS
// =============================================================================

func TestSQLite_MarkRedeemed_WriteOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveReward(ctx, testReward("r-1", nil)))
	require.NoError(t, store.IssueClaim(ctx, testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA"), testNow))

	redeemed, err := store.MarkRedeemed(ctx, "u-1", "c-1", testNow.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, redeemed.RedeemedAt)
	assert.True(t, redeemed.RedeemedAt.Equal(testNow.Add(time.Hour)))

	_, err = store.MarkRedeemed(ctx, "u-1", "c-1", testNow.Add(2*time.Hour))
	assert.ErrorIs(t, err, engine.ErrClaimExpired)

	_, err = store.MarkRedeemed(ctx, "u-1", "missing", testNow)
	assert.ErrorIs(t, err, engine.ErrClaimNotFound)
}

func TestSQLite_ClaimByCoupon(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveReward(ctx, testReward("r-1", nil)))
	require.NoError(t, store.IssueClaim(ctx, testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA"), testNow))

	claim, err := store.ClaimByCoupon(ctx, "FIT-AAAAAAAAAA")
	require.NoError(t, err)
	assert.Equal(t, engine.ClaimID("c-1"), claim.ID)
	assert.Equal(t, engine.UserID("u-1"), claim.UserID)

	_, err = store.ClaimByCoupon(ctx, "FIT-ZZZZZZZZZZ")
	assert.ErrorIs(t, err, engine.ErrClaimNotFound)
}

// =============================================================================
// PROGRESS TESTS
// =============================================================================

func TestSQLite_Progress_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	empty, err := store.Progress(ctx, "u-1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	err = store.SaveProgress(ctx, "u-1", engine.Progress{
		engine.CounterPhoneVerified: 1,
		engine.CounterWorkoutStreak: 4,
	})
	require.NoError(t, err)

	got, err := store.Progress(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got[engine.CounterPhoneVerified])
	assert.Equal(t, int64(4), got[engine.CounterWorkoutStreak])

	// Overwrite semantics: dropped counters disappear
	err = store.SaveProgress(ctx, "u-1", engine.Progress{
		engine.CounterWorkoutStreak: 0,
	})
	require.NoError(t, err)

	got, err = store.Progress(ctx, "u-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got[engine.CounterWorkoutStreak])
	_, hasPhone := got[engine.CounterPhoneVerified]
	assert.False(t, hasPhone)
}

// =============================================================================
// ENGINE INTEGRATION
// =============================================================================

func TestSQLite_EngineEndToEnd(t *testing.T) {
	// The full lifecycle against real SQL: trigger, auto-claim, redeem,
	// validate.

	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveReward(ctx, testReward("r-1", nil)))

	clockNow := testNow
	eng := engine.New(store, engine.WithClock(func() time.Time { return clockNow }))

	result, err := eng.Trigger(ctx, "u-1", engine.TriggerWorkoutStreak,
		engine.TriggerData{"streak_count": 3})
	require.NoError(t, err)
	require.Len(t, result.TriggeredClaims, 1)
	claim := result.TriggeredClaims[0]
	assert.NotEmpty(t, claim.CouponCode)

	valid, err := eng.ValidateCoupon(ctx, claim.CouponCode)
	require.NoError(t, err)
	assert.True(t, valid.Valid)

	_, err = eng.Redeem(ctx, "u-1", claim.ID)
	require.NoError(t, err)

	used, err := eng.ValidateCoupon(ctx, claim.CouponCode)
	require.NoError(t, err)
	assert.False(t, used.Valid)
	assert.Equal(t, "This coupon has expired or already been used", used.Message)
}
