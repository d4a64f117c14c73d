/*
errors.go - Centralized error types for the reward engine

PURPOSE:
  All error types in one place. The engine exposes a single error family
  with a kind discriminator so callers (HTTP adapters, trigger loops) can
  map failures without string matching.

ERROR CATEGORIES:
  1. Lookup errors    - reward or claim not found
  2. Lifecycle errors - ineligible user, expired/redeemed claim
  3. Store conflicts  - invariant-enforcing conditional writes lost a race

USAGE:
  Callers branch with errors.Is / errors.As:

    if errors.Is(err, engine.ErrRewardNotFound) { ... }

    var ne *engine.NotEligibleError
    if errors.As(err, &ne) { show(ne.Reason) }

  or map to a transport code via Kind(err).

SEE ALSO:
  - engine.go: Where these errors are produced
  - api/handlers.go: HTTP status mapping
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrRewardNotFound is returned when a reward id is absent from the
	// catalog, regardless of availability.
	ErrRewardNotFound = errors.New("reward not found")

	// ErrUserNotEligible is returned when a claim is attempted but the
	// eligibility gates refuse it. Wrapped by NotEligibleError.
	ErrUserNotEligible = errors.New("user not eligible")

	// ErrClaimNotFound is returned when no claim with the given id exists
	// in the user's claim list.
	ErrClaimNotFound = errors.New("claim not found")

	// ErrClaimExpired is returned when a claim exists but is no longer
	// valid: past its expiry OR already redeemed. The error does not
	// distinguish the two.
	ErrClaimExpired = errors.New("claim expired or already redeemed")

	// ErrClaimConflict is returned by the store when issuing a claim would
	// create a second valid claim for the same (user, reward) pair.
	ErrClaimConflict = errors.New("valid claim already exists")

	// ErrQuantityExhausted is returned by the store when issuing a claim
	// would push quantity_claimed past quantity_limit.
	ErrQuantityExhausted = errors.New("reward quantity exhausted")

	// ErrCouponCodeTaken is returned by the store when a generated coupon
	// code collides with an existing one. The engine regenerates and retries.
	ErrCouponCodeTaken = errors.New("coupon code already in use")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotEligibleError carries the human-readable ineligibility reason so the
// UI layer can surface it directly.
type NotEligibleError struct {
	UserID   UserID
	RewardID RewardID
	Reason   string
}

func (e *NotEligibleError) Error() string {
	return fmt.Sprintf("user %s not eligible for reward %s: %s", e.UserID, e.RewardID, e.Reason)
}

func (e *NotEligibleError) Unwrap() error { return ErrUserNotEligible }

// =============================================================================
// KIND DISCRIMINATOR
// =============================================================================

// ErrorKind discriminates the engine's error family for callers that need
// a stable code (API responses, metrics labels).
type ErrorKind string

const (
	KindRewardNotFound  ErrorKind = "reward_not_found"
	KindUserNotEligible ErrorKind = "user_not_eligible"
	KindClaimNotFound   ErrorKind = "claim_not_found"
	KindClaimExpired    ErrorKind = "claim_expired"
	KindUnknown         ErrorKind = ""
)

// Kind maps an error to its discriminator. Store-level conflicts surface
// as user_not_eligible: they are the same refusal, detected later.
func Kind(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrRewardNotFound):
		return KindRewardNotFound
	case errors.Is(err, ErrUserNotEligible),
		errors.Is(err, ErrClaimConflict),
		errors.Is(err, ErrQuantityExhausted):
		return KindUserNotEligible
	case errors.Is(err, ErrClaimNotFound):
		return KindClaimNotFound
	case errors.Is(err, ErrClaimExpired):
		return KindClaimExpired
	}
	return KindUnknown
}

// IsNotFound returns true if the error indicates a missing reward or claim.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRewardNotFound) || errors.Is(err, ErrClaimNotFound)
}

// IsClientError returns true if the error is a business refusal rather
// than an infrastructure failure. Trigger loops swallow these per-reward.
func IsClientError(err error) bool {
	return Kind(err) != KindUnknown
}
