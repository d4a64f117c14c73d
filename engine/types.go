/*
Package engine provides the reward eligibility and claim lifecycle engine.

PURPOSE:
  This package contains the types and algorithms for reward catalogs,
  per-user progress tracking, eligibility evaluation, and the claim
  lifecycle (issue → redeem). The same engine serves trigger-driven
  auto-claims (a workout completes, a phone number is verified) and
  user-initiated claims from a dashboard.

KEY CONCEPTS IN THIS FILE (types.go):
  - Reward: An immutable catalog definition of something a user can earn
  - UserRewardClaim: An issued instance of a reward, owned by one user
  - Progress: Per-user named counters driving trigger predicates
  - TriggerData: Free-form parameters attached to triggers and rewards

DESIGN PRINCIPLES:
  1. Immutability: Rewards and claims are replaced, never mutated in place.
     A caller holding a previously-read value never sees it change.
  2. Lazy expiry: Validity is computed against a clock on read. No sweeper.
  3. Precision: Monetary discount values use decimal.Decimal, never float.
  4. Type Safety: Strong typing for user/reward/claim identifiers.

CLAIM LIFECYCLE:
  Exactly two states and one transition:

    Active --(Redeem)--> Redeemed

  "Expired" is a derived condition (computed from ExpiresAt), never stored.
  RedeemedAt is write-once: once set, nothing may clear or change it.

SEE ALSO:
  - eligibility.go: Trigger predicates and eligibility gates
  - engine.go: The engine operations
  - store.go: Persistence interface and invariant-enforcing writes
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type RewardID string
type ClaimID string

// =============================================================================
// REWARD - Immutable catalog definition
// =============================================================================

// RewardType identifies how a reward is fulfilled. The set is open:
// unknown types are carried through untouched.
type RewardType string

const (
	RewardCoupon   RewardType = "coupon"
	RewardFreeItem RewardType = "free_item"
	RewardDiscount RewardType = "discount"
	RewardBadge    RewardType = "badge"
)

// UsesCouponCode reports whether claims of this fulfillment type carry a
// presentable coupon code for offline/in-store validation. Badges and
// other purely digital grants do not.
func (t RewardType) UsesCouponCode() bool {
	switch t {
	case RewardCoupon, RewardFreeItem, RewardDiscount:
		return true
	}
	return false
}

type RewardStatus string

const (
	RewardStatusActive   RewardStatus = "active"
	RewardStatusInactive RewardStatus = "inactive"
)

// TriggerType names a category of user action the engine evaluates
// rewards against. Unknown trigger types are permitted: their predicate
// is permissive (no progress requirement).
type TriggerType string

const (
	TriggerPhoneVerification TriggerType = "phone_verification"
	TriggerFirstWorkout      TriggerType = "first_workout"
	TriggerWorkoutStreak     TriggerType = "workout_streak"
)

// TriggerConfig binds a reward to a trigger type plus free-form
// parameters for its eligibility predicate (e.g. {"streak_days": 3}).
type TriggerConfig struct {
	Type TriggerType
	Data TriggerData
}

// Reward is a catalog definition. Definitions are replaced wholesale on
// update (quantity bump on claim), never mutated in place, and never
// deleted, only deactivated.
type Reward struct {
	ID          RewardID
	Name        string
	Description string
	Type        RewardType

	// Value is the human-readable description of what is granted,
	// e.g. "20% off next month's membership".
	Value string

	// DiscountAmount is the monetary value for coupon/discount
	// fulfillment, in the member's currency. Zero for non-monetary types.
	DiscountAmount decimal.Decimal

	Trigger TriggerConfig
	Status  RewardStatus

	// QuantityLimit caps total claims across all users. Nil = unlimited.
	QuantityLimit   *int64
	QuantityClaimed int64

	// ExpiresAt sunsets the definition itself. Independent of per-claim expiry.
	ExpiresAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Available reports whether the reward can currently be claimed:
// active, not past its sunset, and not quantity-exhausted.
func (r Reward) Available(now time.Time) bool {
	if r.Status != RewardStatusActive {
		return false
	}
	if r.ExpiresAt != nil && !now.Before(*r.ExpiresAt) {
		return false
	}
	if r.QuantityLimit != nil && r.QuantityClaimed >= *r.QuantityLimit {
		return false
	}
	return true
}

// =============================================================================
// USER REWARD CLAIM - Issued instance, one owner, one transition
// =============================================================================

// UserRewardClaim records that a user earned a specific reward. Immutable
// except for the single not-redeemed → redeemed transition.
type UserRewardClaim struct {
	ID       ClaimID
	UserID   UserID
	RewardID RewardID

	ClaimedAt  time.Time
	RedeemedAt *time.Time // nil until redeemed; write-once
	ExpiresAt  *time.Time // claim-level expiry, independent of the reward's

	// CouponCode is present only for fulfillment types that use one.
	// Globally unique across all users and claims.
	CouponCode string

	Metadata map[string]string

	// TriggerData snapshots the data that triggered the claim, for audit.
	TriggerData TriggerData
}

// Valid reports whether the claim is still usable: not yet redeemed and
// not past its expiry. Expiry is evaluated lazily against now.
func (c UserRewardClaim) Valid(now time.Time) bool {
	if c.RedeemedAt != nil {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// =============================================================================
// TRIGGER DATA - Free-form key/value parameters
// =============================================================================

// TriggerData carries free-form parameters for triggers and reward
// eligibility configs. Values typically arrive from JSON, so numbers may
// be float64, int, or int64 depending on the producer.
type TriggerData map[string]any

// Int reads a numeric value by key, coercing the JSON-ish numeric types.
func (d TriggerData) Int(key string) (int64, bool) {
	v, ok := d[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	}
	return 0, false
}

// IntOr reads a numeric value by key, falling back to def when the key is
// absent or non-numeric.
func (d TriggerData) IntOr(key string, def int64) int64 {
	if v, ok := d.Int(key); ok {
		return v
	}
	return def
}

func (d TriggerData) clone() TriggerData {
	if d == nil {
		return nil
	}
	out := make(TriggerData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// =============================================================================
// USER PROGRESS - Named counters, latest value only
// =============================================================================

// Counter names used by the built-in trigger predicates.
const (
	CounterPhoneVerified = "phone_verified"
	CounterWorkoutStreak = "current_workout_streak"
	CounterTotalWorkouts = "total_workouts"
)

// Progress is a user's named counters. Only the latest value per counter
// is kept; there is no history.
type Progress map[string]int64

// Clone returns an independent copy.
func (p Progress) Clone() Progress {
	out := make(Progress, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
