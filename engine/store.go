/*
store.go - Persistence interface for rewards, claims, and progress

PURPOSE:
  Defines the interface between the engine and its storage. Different
  implementations can use SQLite or in-memory maps; the engine's
  semantics do not change.

INVARIANT-ENFORCING WRITE:
  IssueClaim is the one write that must be conditional AND atomic at the
  storage layer. An application-level eligibility re-check cannot hold
  under concurrent requests: two claims for the same (user, reward) could
  both pass the check before either commits. The store therefore refuses,
  inside a single atomic operation, any insert that would:
    - create a second valid claim for the (user, reward) pair, or
    - push quantity_claimed past quantity_limit, or
    - reuse an existing coupon code.
  Implementations serialize issuance (mutex, DB transaction with a
  conditional UPDATE) so these checks and the insert commit together.

OWNERSHIP & ALIASING:
  Implementations return copies. A Reward or UserRewardClaim handed to a
  caller is a snapshot that never changes underfoot; updates replace the
  stored value wholesale.

IMPLEMENTATIONS:
  - engine/store/memory.go: In-memory, for tests and development
  - store/sqlite/sqlite.go:  SQLite-backed, for production

SEE ALSO:
  - engine.go: The only caller of the mutating operations
*/
package engine

import (
	"context"
	"time"
)

// Store handles persistence of the reward catalog, issued claims, and
// per-user progress counters.
type Store interface {
	// SaveReward inserts or replaces a reward definition wholesale.
	// Used by catalog seeding; the engine itself only replaces via IssueClaim.
	SaveReward(ctx context.Context, r Reward) error

	// Reward returns the definition by exact id, regardless of
	// availability. Returns ErrRewardNotFound if absent.
	Reward(ctx context.Context, id RewardID) (Reward, error)

	// Rewards returns the whole catalog, active or not, in creation order.
	Rewards(ctx context.Context) ([]Reward, error)

	// IssueClaim atomically inserts the claim and increments the reward's
	// quantity_claimed by one. Fails with:
	//   ErrClaimConflict     - a valid claim for (UserID, RewardID) exists at now
	//   ErrQuantityExhausted - the reward's quantity limit is reached
	//   ErrCouponCodeTaken   - the claim's coupon code already exists
	//   ErrRewardNotFound    - the reward id is unknown
	// On any failure nothing is written.
	IssueClaim(ctx context.Context, claim UserRewardClaim, now time.Time) error

	// ClaimsByUser returns the user's full claim history in insertion
	// order, any validity state. Empty slice for unknown users.
	ClaimsByUser(ctx context.Context, userID UserID) ([]UserRewardClaim, error)

	// Claim returns one claim from the user's list.
	// Returns ErrClaimNotFound if absent.
	Claim(ctx context.Context, userID UserID, claimID ClaimID) (UserRewardClaim, error)

	// MarkRedeemed performs the single not-redeemed → redeemed transition,
	// conditionally: it fails with ErrClaimExpired if RedeemedAt is
	// already set (write-once), and ErrClaimNotFound if the claim is
	// absent. Returns the updated claim.
	MarkRedeemed(ctx context.Context, userID UserID, claimID ClaimID, at time.Time) (UserRewardClaim, error)

	// ClaimByCoupon finds a claim by its coupon code across all users.
	// Returns ErrClaimNotFound if no claim carries the code.
	ClaimByCoupon(ctx context.Context, code string) (UserRewardClaim, error)

	// Progress returns the user's counters. Empty map for unknown users.
	Progress(ctx context.Context, userID UserID) (Progress, error)

	// SaveProgress overwrites the user's counters wholesale.
	SaveProgress(ctx context.Context, userID UserID, p Progress) error
}
