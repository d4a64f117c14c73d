/*
engine.go - The reward engine operations

PURPOSE:
  Implements the catalog queries, eligibility evaluation, claim issuance,
  redemption, coupon validation, and trigger-driven progress updates over
  a Store.

CONTROL FLOW:
  Feature code (workout completion, phone verification) calls Trigger()
  when a qualifying action completes; the engine updates progress counters
  and auto-issues claims for newly-eligible rewards. The dashboard calls
  Claim / Redeem / ValidateCoupon directly for user-initiated actions.

ATOMICITY:
  Every operation fully succeeds or fully fails; there is no observable
  intermediate state. Eligibility is ALWAYS re-verified at claim time,
  never assumed from a prior check, and the store's conditional write is
  the final arbiter under concurrency (see store.go).

ERROR POLICY:
  Errors are not retried or recovered internally. The one place per-item
  failure is expected and normal is Trigger()'s best-effort claim loop:
  a reward that fails to claim is absent from TriggeredClaims and listed
  in Skipped with its reason, and the call itself does not fail.

SEE ALSO:
  - eligibility.go: Gate logic and progress projection
  - store.go: Persistence contract
*/
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClaimTTL is the fixed validity horizon of an issued claim.
const ClaimTTL = 30 * 24 * time.Hour

// Engine owns the reward catalog, per-user progress counters, and issued
// claims. All mutation flows through its operations; external
// collaborators never write the underlying state directly.
type Engine struct {
	store Store
	now   func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source. Expiry is evaluated
// lazily against this clock; tests pin it to a fixed instant.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an Engine over the given store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{store: store, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// CATALOG QUERIES
// =============================================================================

// ActiveRewards returns all rewards with Available() == true. An empty
// catalog yields an empty list.
func (e *Engine) ActiveRewards(ctx context.Context) ([]Reward, error) {
	all, err := e.store.Rewards(ctx)
	if err != nil {
		return nil, err
	}

	now := e.now()
	active := make([]Reward, 0, len(all))
	for _, r := range all {
		if r.Available(now) {
			active = append(active, r)
		}
	}
	return active, nil
}

// AllRewards returns the whole catalog regardless of availability, in
// creation order. Admin listing; member-facing callers want ActiveRewards.
func (e *Engine) AllRewards(ctx context.Context) ([]Reward, error) {
	return e.store.Rewards(ctx)
}

// RewardsByTrigger filters the active catalog by trigger type.
func (e *Engine) RewardsByTrigger(ctx context.Context, trigger TriggerType) ([]Reward, error) {
	active, err := e.ActiveRewards(ctx)
	if err != nil {
		return nil, err
	}

	matched := make([]Reward, 0, len(active))
	for _, r := range active {
		if r.Trigger.Type == trigger {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// RewardByID is an exact lookup, NOT filtered by availability. Callers
// that need availability must check separately.
func (e *Engine) RewardByID(ctx context.Context, id RewardID) (Reward, error) {
	return e.store.Reward(ctx, id)
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

// CheckEligibility evaluates whether the user can claim the reward right
// now. Read-only. Returns ErrRewardNotFound for unknown rewards; all
// other ineligibility is reported in the result, not as an error.
func (e *Engine) CheckEligibility(ctx context.Context, userID UserID, rewardID RewardID) (EligibilityResult, error) {
	_, result, err := e.checkEligibility(ctx, userID, rewardID)
	return result, err
}

func (e *Engine) checkEligibility(ctx context.Context, userID UserID, rewardID RewardID) (Reward, EligibilityResult, error) {
	reward, err := e.store.Reward(ctx, rewardID)
	if err != nil {
		return Reward{}, EligibilityResult{}, err
	}

	now := e.now()

	hasValid := false
	claims, err := e.store.ClaimsByUser(ctx, userID)
	if err != nil {
		return Reward{}, EligibilityResult{}, err
	}
	for _, c := range claims {
		if c.RewardID == rewardID && c.Valid(now) {
			hasValid = true
			break
		}
	}

	progress, err := e.store.Progress(ctx, userID)
	if err != nil {
		return Reward{}, EligibilityResult{}, err
	}

	return reward, evaluate(reward, progress, hasValid, reward.Available(now)), nil
}

// =============================================================================
// CLAIM ISSUANCE
// =============================================================================

// ClaimRequest is the input to Claim.
type ClaimRequest struct {
	RewardID    RewardID
	TriggerData TriggerData
}

// ClaimResult is the outcome of a successful claim.
type ClaimResult struct {
	Claim   UserRewardClaim
	Message string
}

// Claim re-verifies eligibility and issues a claim for the reward. On
// ineligibility it fails with a NotEligibleError carrying the reason.
// Coupon codes are generated only for fulfillment types that use one;
// the claim expires ClaimTTL after issuance.
func (e *Engine) Claim(ctx context.Context, userID UserID, req ClaimRequest) (ClaimResult, error) {
	reward, elig, err := e.checkEligibility(ctx, userID, req.RewardID)
	if err != nil {
		return ClaimResult{}, err
	}
	if !elig.Eligible {
		return ClaimResult{}, &NotEligibleError{UserID: userID, RewardID: req.RewardID, Reason: elig.Reason}
	}

	now := e.now()
	expires := now.Add(ClaimTTL)
	claim := UserRewardClaim{
		ID:          ClaimID(uuid.NewString()),
		UserID:      userID,
		RewardID:    reward.ID,
		ClaimedAt:   now,
		ExpiresAt:   &expires,
		TriggerData: req.TriggerData.clone(),
	}

	// The conditional write may lose a race with a generated code; retry
	// with a fresh code rather than failing the whole claim.
	for attempt := 0; ; attempt++ {
		if reward.Type.UsesCouponCode() {
			code, err := NewCouponCode()
			if err != nil {
				return ClaimResult{}, err
			}
			claim.CouponCode = code
		}

		err = e.store.IssueClaim(ctx, claim, now)
		if err == nil {
			break
		}
		if errors.Is(err, ErrCouponCodeTaken) && attempt < maxCouponAttempts-1 {
			continue
		}
		if errors.Is(err, ErrClaimConflict) {
			return ClaimResult{}, &NotEligibleError{UserID: userID, RewardID: reward.ID, Reason: "Reward already claimed"}
		}
		if errors.Is(err, ErrQuantityExhausted) {
			return ClaimResult{}, &NotEligibleError{UserID: userID, RewardID: reward.ID, Reason: "Reward is no longer available"}
		}
		return ClaimResult{}, err
	}

	return ClaimResult{
		Claim:   claim,
		Message: fmt.Sprintf("Congratulations! You earned %s", reward.Value),
	}, nil
}

// =============================================================================
// CLAIM QUERIES
// =============================================================================

// UserClaims returns the user's full claim history, any validity state,
// in insertion order.
func (e *Engine) UserClaims(ctx context.Context, userID UserID) ([]UserRewardClaim, error) {
	return e.store.ClaimsByUser(ctx, userID)
}

// UserActiveClaims filters the claim history to currently-valid claims.
func (e *Engine) UserActiveClaims(ctx context.Context, userID UserID) ([]UserRewardClaim, error) {
	claims, err := e.store.ClaimsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	active := make([]UserRewardClaim, 0, len(claims))
	for _, c := range claims {
		if c.Valid(now) {
			active = append(active, c)
		}
	}
	return active, nil
}

// =============================================================================
// REDEMPTION
// =============================================================================

// RedeemResult is the outcome of a successful redemption.
type RedeemResult struct {
	Claim   UserRewardClaim
	Message string
}

// Redeem transitions a claim to redeemed. Fails with ErrClaimNotFound if
// the user holds no such claim, and ErrClaimExpired if the claim is no
// longer valid, whether past expiry or already redeemed.
func (e *Engine) Redeem(ctx context.Context, userID UserID, claimID ClaimID) (RedeemResult, error) {
	claim, err := e.store.Claim(ctx, userID, claimID)
	if err != nil {
		return RedeemResult{}, err
	}

	now := e.now()
	if !claim.Valid(now) {
		return RedeemResult{}, fmt.Errorf("claim %s: %w", claimID, ErrClaimExpired)
	}

	updated, err := e.store.MarkRedeemed(ctx, userID, claimID, now)
	if err != nil {
		return RedeemResult{}, err
	}

	return RedeemResult{Claim: updated, Message: "Reward redeemed successfully"}, nil
}

// =============================================================================
// SUMMARY & PROGRESS PROJECTION
// =============================================================================

// Summary aggregates a user's standing for the dashboard.
type Summary struct {
	TotalRewardsAvailable int
	TotalRewardsClaimed   int
	TotalRewardsRedeemed  int
	TotalValueRedeemed    decimal.Decimal
	ActiveClaims          []UserRewardClaim
}

// UserSummary computes the dashboard aggregate: available catalog size,
// lifetime claims, redemptions (with their monetary value), and the
// currently-valid claims.
func (e *Engine) UserSummary(ctx context.Context, userID UserID) (Summary, error) {
	available, err := e.ActiveRewards(ctx)
	if err != nil {
		return Summary{}, err
	}

	claims, err := e.store.ClaimsByUser(ctx, userID)
	if err != nil {
		return Summary{}, err
	}

	now := e.now()
	summary := Summary{
		TotalRewardsAvailable: len(available),
		TotalRewardsClaimed:   len(claims),
		TotalValueRedeemed:    decimal.Zero,
		ActiveClaims:          make([]UserRewardClaim, 0, len(claims)),
	}
	for _, c := range claims {
		if c.RedeemedAt != nil {
			summary.TotalRewardsRedeemed++
			if reward, err := e.store.Reward(ctx, c.RewardID); err == nil {
				summary.TotalValueRedeemed = summary.TotalValueRedeemed.Add(reward.DiscountAmount)
			}
		}
		if c.Valid(now) {
			summary.ActiveClaims = append(summary.ActiveClaims, c)
		}
	}
	return summary, nil
}

// ProgressReport computes, for every available reward, how close the user
// is to earning it. Display-only; always recomputed.
func (e *Engine) ProgressReport(ctx context.Context, userID UserID) ([]RewardProgress, error) {
	available, err := e.ActiveRewards(ctx)
	if err != nil {
		return nil, err
	}

	progress, err := e.store.Progress(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := make([]RewardProgress, len(available))
	for i, r := range available {
		report[i] = projectProgress(r, progress)
	}
	return report, nil
}

// =============================================================================
// TRIGGER-DRIVEN CHECKS
// =============================================================================

// SkippedReward records why a candidate reward was not claimed during a
// trigger check, so callers can assert on it instead of grepping logs.
type SkippedReward struct {
	RewardID RewardID
	Reason   string
}

// TriggerResult is the aggregate outcome of a trigger check.
type TriggerResult struct {
	TriggeredClaims  []UserRewardClaim
	AvailableRewards []Reward
	Skipped          []SkippedReward
}

// Trigger updates the user's progress counters for the trigger type, then
// best-effort claims every reward registered for it. Per-reward refusals
// are collected in Skipped, never propagated; the call only fails on
// infrastructure errors.
//
// Counter semantics differ by trigger and the distinction is load-bearing:
//   phone_verification: phone_verified set to 1 (repeat triggers no-op)
//   first_workout:      total_workouts incremented (once per real workout)
//   workout_streak:     current_workout_streak OVERWRITTEN with the
//                       caller-supplied absolute streak_count, not added to
func (e *Engine) Trigger(ctx context.Context, userID UserID, trigger TriggerType, data TriggerData) (TriggerResult, error) {
	progress, err := e.store.Progress(ctx, userID)
	if err != nil {
		return TriggerResult{}, err
	}
	progress = progress.Clone()

	switch trigger {
	case TriggerPhoneVerification:
		progress[CounterPhoneVerified] = 1
	case TriggerFirstWorkout:
		progress[CounterTotalWorkouts]++
	case TriggerWorkoutStreak:
		progress[CounterWorkoutStreak] = data.IntOr("streak_count", 0)
	}

	if err := e.store.SaveProgress(ctx, userID, progress); err != nil {
		return TriggerResult{}, err
	}

	candidates, err := e.RewardsByTrigger(ctx, trigger)
	if err != nil {
		return TriggerResult{}, err
	}

	result := TriggerResult{
		TriggeredClaims: make([]UserRewardClaim, 0, len(candidates)),
	}
	for _, r := range candidates {
		res, err := e.Claim(ctx, userID, ClaimRequest{RewardID: r.ID, TriggerData: data})
		if err != nil {
			if !IsClientError(err) {
				return TriggerResult{}, err
			}
			reason := err.Error()
			var ne *NotEligibleError
			if errors.As(err, &ne) {
				reason = ne.Reason
			}
			result.Skipped = append(result.Skipped, SkippedReward{RewardID: r.ID, Reason: reason})
			log.Printf("trigger %s: skipped reward %s for user %s: %s", trigger, r.ID, userID, reason)
			continue
		}
		result.TriggeredClaims = append(result.TriggeredClaims, res.Claim)
	}

	result.AvailableRewards, err = e.ActiveRewards(ctx)
	if err != nil {
		return TriggerResult{}, err
	}
	return result, nil
}

// =============================================================================
// COUPON VALIDATION
// =============================================================================

// CouponValidation is the outcome of a coupon code lookup. Claim is
// attached even when the code is no longer valid, for the caller's
// context; Reward is resolved whenever the claim is found.
type CouponValidation struct {
	Valid   bool
	Claim   *UserRewardClaim
	Reward  *Reward
	Message string
}

// ValidateCoupon looks up a coupon code across all users' claims.
func (e *Engine) ValidateCoupon(ctx context.Context, code string) (CouponValidation, error) {
	claim, err := e.store.ClaimByCoupon(ctx, code)
	if err != nil {
		if errors.Is(err, ErrClaimNotFound) {
			return CouponValidation{Valid: false, Message: "Invalid coupon code"}, nil
		}
		return CouponValidation{}, err
	}

	var reward *Reward
	if r, err := e.store.Reward(ctx, claim.RewardID); err == nil {
		reward = &r
	}

	if !claim.Valid(e.now()) {
		return CouponValidation{
			Valid:   false,
			Claim:   &claim,
			Reward:  reward,
			Message: "This coupon has expired or already been used",
		}, nil
	}

	message := "Valid coupon"
	if reward != nil {
		message = fmt.Sprintf("Valid coupon: %s", reward.Value)
	}
	return CouponValidation{Valid: true, Claim: &claim, Reward: reward, Message: message}, nil
}

// =============================================================================
// OPS HOOK
// =============================================================================

// SetProgress overwrites a user's progress counters directly, bypassing
// all trigger logic. Intended for test setup and administrative
// correction only.
func (e *Engine) SetProgress(ctx context.Context, userID UserID, p Progress) error {
	return e.store.SaveProgress(ctx, userID, p.Clone())
}
