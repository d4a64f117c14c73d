/*
Package catalog defines the built-in reward catalog and seeds it into a store.

PURPOSE:
  Ships the default rewards users can earn from day one: phone
  verification, first workout, and workout streak milestones. Seeding
  is idempotent so it runs safely at every startup.

SEE ALSO:
  - engine/types.go: Reward and trigger definitions
  - cmd/server/main.go: Calls Seed on startup
*/
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/reward-engine/engine"
)

// Default returns the built-in reward catalog in creation order.
func Default(now time.Time) []engine.Reward {
	return []engine.Reward{
		{
			ID:             "phone-verification-reward",
			Name:           "Phone Verification Bonus",
			Description:    "Verify your phone number and get a discount on your next order.",
			Type:           engine.RewardCoupon,
			Value:          "10% off your next order",
			DiscountAmount: decimal.NewFromFloat(5.00),
			Trigger: engine.TriggerConfig{
				Type: engine.TriggerPhoneVerification,
			},
			Status:    engine.RewardStatusActive,
			CreatedAt: now,
			UpdatedAt: now,
		},
		{
			ID:          "first-workout-reward",
			Name:        "First Workout",
			Description: "Complete your first workout to earn a free smoothie.",
			Type:        engine.RewardFreeItem,
			Value:       "Free protein smoothie",
			Trigger: engine.TriggerConfig{
				Type: engine.TriggerFirstWorkout,
			},
			Status:    engine.RewardStatusActive,
			CreatedAt: now.Add(time.Second),
			UpdatedAt: now.Add(time.Second),
		},
		{
			ID:          "workout-streak-3",
			Name:        "3-Day Streak",
			Description: "Work out three days in a row to earn a free gym towel.",
			Type:        engine.RewardFreeItem,
			Value:       "Free gym towel",
			Trigger: engine.TriggerConfig{
				Type: engine.TriggerWorkoutStreak,
				Data: engine.TriggerData{"streak_days": 3},
			},
			Status:    engine.RewardStatusActive,
			CreatedAt: now.Add(2 * time.Second),
			UpdatedAt: now.Add(2 * time.Second),
		},
		{
			ID:             "workout-streak-7",
			Name:           "7-Day Streak",
			Description:    "A full week of workouts earns a discount on supplements.",
			Type:           engine.RewardDiscount,
			Value:          "20% off supplements",
			DiscountAmount: decimal.NewFromFloat(12.50),
			Trigger: engine.TriggerConfig{
				Type: engine.TriggerWorkoutStreak,
				Data: engine.TriggerData{"streak_days": 7},
			},
			Status:    engine.RewardStatusActive,
			CreatedAt: now.Add(3 * time.Second),
			UpdatedAt: now.Add(3 * time.Second),
		},
		{
			ID:          "dedication-badge",
			Name:        "Dedication Badge",
			Description: "A profile badge for verified members. No coupon attached.",
			Type:        engine.RewardBadge,
			Value:       "Dedication badge on your profile",
			Trigger: engine.TriggerConfig{
				Type: engine.TriggerPhoneVerification,
			},
			Status:    engine.RewardStatusActive,
			CreatedAt: now.Add(4 * time.Second),
			UpdatedAt: now.Add(4 * time.Second),
		},
	}
}

// Seed writes the default catalog into the store, skipping rewards that
// already exist so claim counters survive restarts.
func Seed(ctx context.Context, store engine.Store, now time.Time) error {
	for _, reward := range Default(now) {
		_, err := store.Reward(ctx, reward.ID)
		if err == nil {
			continue
		}
		if !engine.IsNotFound(err) {
			return fmt.Errorf("failed to check reward %s: %w", reward.ID, err)
		}
		if err := store.SaveReward(ctx, reward); err != nil {
			return fmt.Errorf("failed to seed reward %s: %w", reward.ID, err)
		}
	}
	return nil
}
