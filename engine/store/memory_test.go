package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/warp/reward-engine/engine"
)

var now = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

func seedReward(t *testing.T, m *Memory, id string, limit *int64) {
	t.Helper()
	err := m.SaveReward(context.Background(), engine.Reward{
		ID:            engine.RewardID(id),
		Name:          id,
		Type:          engine.RewardCoupon,
		Value:         "test value",
		Trigger:       engine.TriggerConfig{Type: engine.TriggerPhoneVerification},
		Status:        engine.RewardStatusActive,
		QuantityLimit: limit,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		t.Fatalf("SaveReward: %v", err)
	}
}

func testClaim(user, reward, id, coupon string) engine.UserRewardClaim {
	expires := now.Add(30 * 24 * time.Hour)
	return engine.UserRewardClaim{
		ID:         engine.ClaimID(id),
		UserID:     engine.UserID(user),
		RewardID:   engine.RewardID(reward),
		ClaimedAt:  now,
		ExpiresAt:  &expires,
		CouponCode: coupon,
	}
}

func TestMemory_IssueClaim_RefusesSecondValidClaim(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedReward(t, m, "r-1", nil)

	if err := m.IssueClaim(ctx, testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA"), now); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	err := m.IssueClaim(ctx, testClaim("u-1", "r-1", "c-2", "FIT-BBBBBBBBBB"), now)
	if !errors.Is(err, engine.ErrClaimConflict) {
		t.Fatalf("second claim err = %v, want ErrClaimConflict", err)
	}

	// Nothing written on refusal
	claims, _ := m.ClaimsByUser(ctx, "u-1")
	if len(claims) != 1 {
		t.Fatalf("claims = %d, want 1", len(claims))
	}
	reward, _ := m.Reward(ctx, "r-1")
	if reward.QuantityClaimed != 1 {
		t.Fatalf("quantity_claimed = %d, want 1", reward.QuantityClaimed)
	}
}

func TestMemory_IssueClaim_QuantityCeiling(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	limit := int64(1)
	seedReward(t, m, "r-1", &limit)

	if err := m.IssueClaim(ctx, testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA"), now); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	err := m.IssueClaim(ctx, testClaim("u-2", "r-1", "c-2", "FIT-BBBBBBBBBB"), now)
	if !errors.Is(err, engine.ErrQuantityExhausted) {
		t.Fatalf("err = %v, want ErrQuantityExhausted", err)
	}
}

func TestMemory_IssueClaim_CouponCollision(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedReward(t, m, "r-1", nil)
	seedReward(t, m, "r-2", nil)

	if err := m.IssueClaim(ctx, testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA"), now); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	err := m.IssueClaim(ctx, testClaim("u-2", "r-2", "c-2", "FIT-AAAAAAAAAA"), now)
	if !errors.Is(err, engine.ErrCouponCodeTaken) {
		t.Fatalf("err = %v, want ErrCouponCodeTaken", err)
	}

	// The refused write must not bump the reward counter
	reward, _ := m.Reward(ctx, "r-2")
	if reward.QuantityClaimed != 0 {
		t.Fatalf("quantity_claimed = %d, want 0", reward.QuantityClaimed)
	}
}

func TestMemory_IssueClaim_UnknownReward(t *testing.T) {
	m := NewMemory()

	err := m.IssueClaim(context.Background(), testClaim("u-1", "missing", "c-1", ""), now)
	if !errors.Is(err, engine.ErrRewardNotFound) {
		t.Fatalf("err = %v, want ErrRewardNotFound", err)
	}
}

func TestMemory_IssueClaim_ExpiredClaimDoesNotBlock(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedReward(t, m, "r-1", nil)

	expired := testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA")
	past := now.Add(-time.Hour)
	expired.ExpiresAt = &past
	if err := m.IssueClaim(ctx, expired, now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("expired claim setup: %v", err)
	}

	if err := m.IssueClaim(ctx, testClaim("u-1", "r-1", "c-2", "FIT-BBBBBBBBBB"), now); err != nil {
		t.Fatalf("reclaim after expiry: %v", err)
	}
}

func TestMemory_MarkRedeemed_WriteOnce(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedReward(t, m, "r-1", nil)
	if err := m.IssueClaim(ctx, testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA"), now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	updated, err := m.MarkRedeemed(ctx, "u-1", "c-1", now)
	if err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if updated.RedeemedAt == nil || !updated.RedeemedAt.Equal(now) {
		t.Fatalf("redeemed_at = %v, want %v", updated.RedeemedAt, now)
	}

	_, err = m.MarkRedeemed(ctx, "u-1", "c-1", now.Add(time.Minute))
	if !errors.Is(err, engine.ErrClaimExpired) {
		t.Fatalf("second redeem err = %v, want ErrClaimExpired", err)
	}

	_, err = m.MarkRedeemed(ctx, "u-1", "missing", now)
	if !errors.Is(err, engine.ErrClaimNotFound) {
		t.Fatalf("missing claim err = %v, want ErrClaimNotFound", err)
	}
}

func TestMemory_ClaimByCoupon(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedReward(t, m, "r-1", nil)
	if err := m.IssueClaim(ctx, testClaim("u-1", "r-1", "c-1", "FIT-AAAAAAAAAA"), now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	claim, err := m.ClaimByCoupon(ctx, "FIT-AAAAAAAAAA")
	if err != nil {
		t.Fatalf("ClaimByCoupon: %v", err)
	}
	if claim.ID != "c-1" {
		t.Fatalf("claim id = %s, want c-1", claim.ID)
	}

	_, err = m.ClaimByCoupon(ctx, "FIT-ZZZZZZZZZZ")
	if !errors.Is(err, engine.ErrClaimNotFound) {
		t.Fatalf("unknown coupon err = %v, want ErrClaimNotFound", err)
	}
}

func TestMemory_Progress_UnknownUserIsEmpty(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	p, err := m.Progress(ctx, "nobody")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p == nil || len(p) != 0 {
		t.Fatalf("progress = %v, want empty map", p)
	}
}

func TestMemory_Rewards_CreationOrder(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	seedReward(t, m, "r-b", nil)
	seedReward(t, m, "r-a", nil)
	seedReward(t, m, "r-c", nil)

	rewards, err := m.Rewards(ctx)
	if err != nil {
		t.Fatalf("Rewards: %v", err)
	}
	got := []string{string(rewards[0].ID), string(rewards[1].ID), string(rewards[2].ID)}
	want := []string{"r-b", "r-a", "r-c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}
