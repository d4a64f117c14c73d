// Package store provides an in-memory engine.Store implementation.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/reward-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps all state in process-local maps, guarded by a single
// mutex. Because IssueClaim runs its checks and writes under that mutex,
// claim issuance is serialized and the conditional-write contract holds
// even under concurrent callers.
type Memory struct {
	mu          sync.RWMutex
	rewards     map[engine.RewardID]engine.Reward
	rewardOrder []engine.RewardID
	claims      map[engine.UserID][]engine.UserRewardClaim
	byCoupon    map[string]couponRef
	progress    map[engine.UserID]engine.Progress
}

type couponRef struct {
	UserID  engine.UserID
	ClaimID engine.ClaimID
}

func NewMemory() *Memory {
	return &Memory{
		rewards:  make(map[engine.RewardID]engine.Reward),
		claims:   make(map[engine.UserID][]engine.UserRewardClaim),
		byCoupon: make(map[string]couponRef),
		progress: make(map[engine.UserID]engine.Progress),
	}
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) SaveReward(_ context.Context, r engine.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.rewards[r.ID]; !exists {
		m.rewardOrder = append(m.rewardOrder, r.ID)
	}
	m.rewards[r.ID] = cloneReward(r)
	return nil
}

func (m *Memory) Reward(_ context.Context, id engine.RewardID) (engine.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rewards[id]
	if !ok {
		return engine.Reward{}, fmt.Errorf("reward %s: %w", id, engine.ErrRewardNotFound)
	}
	return cloneReward(r), nil
}

func (m *Memory) Rewards(_ context.Context) ([]engine.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.Reward, 0, len(m.rewardOrder))
	for _, id := range m.rewardOrder {
		result = append(result, cloneReward(m.rewards[id]))
	}
	return result, nil
}

// =============================================================================
// CLAIMS
// =============================================================================

// IssueClaim checks the single-valid-claim invariant, the quantity
// ceiling, and coupon uniqueness, then inserts the claim and replaces the
// reward with its counter incremented, all under one lock.
func (m *Memory) IssueClaim(_ context.Context, claim engine.UserRewardClaim, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reward, ok := m.rewards[claim.RewardID]
	if !ok {
		return fmt.Errorf("reward %s: %w", claim.RewardID, engine.ErrRewardNotFound)
	}

	for _, c := range m.claims[claim.UserID] {
		if c.RewardID == claim.RewardID && c.Valid(now) {
			return engine.ErrClaimConflict
		}
	}

	if reward.QuantityLimit != nil && reward.QuantityClaimed >= *reward.QuantityLimit {
		return engine.ErrQuantityExhausted
	}

	if claim.CouponCode != "" {
		if _, taken := m.byCoupon[claim.CouponCode]; taken {
			return engine.ErrCouponCodeTaken
		}
	}

	// Replacement, not mutation: the stored definition is swapped for a
	// new value so previously-read snapshots stay untouched.
	updated := cloneReward(reward)
	updated.QuantityClaimed++
	updated.UpdatedAt = now
	m.rewards[reward.ID] = updated

	m.claims[claim.UserID] = append(m.claims[claim.UserID], cloneClaim(claim))
	if claim.CouponCode != "" {
		m.byCoupon[claim.CouponCode] = couponRef{UserID: claim.UserID, ClaimID: claim.ID}
	}
	return nil
}

func (m *Memory) ClaimsByUser(_ context.Context, userID engine.UserID) ([]engine.UserRewardClaim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	claims := m.claims[userID]
	result := make([]engine.UserRewardClaim, len(claims))
	for i, c := range claims {
		result[i] = cloneClaim(c)
	}
	return result, nil
}

func (m *Memory) Claim(_ context.Context, userID engine.UserID, claimID engine.ClaimID) (engine.UserRewardClaim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.claims[userID] {
		if c.ID == claimID {
			return cloneClaim(c), nil
		}
	}
	return engine.UserRewardClaim{}, fmt.Errorf("claim %s: %w", claimID, engine.ErrClaimNotFound)
}

func (m *Memory) MarkRedeemed(_ context.Context, userID engine.UserID, claimID engine.ClaimID, at time.Time) (engine.UserRewardClaim, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	claims := m.claims[userID]
	for i, c := range claims {
		if c.ID != claimID {
			continue
		}
		if c.RedeemedAt != nil {
			return engine.UserRewardClaim{}, fmt.Errorf("claim %s: %w", claimID, engine.ErrClaimExpired)
		}

		// Replace at the same position; RedeemedAt is write-once.
		updated := cloneClaim(c)
		redeemed := at
		updated.RedeemedAt = &redeemed
		claims[i] = updated
		return cloneClaim(updated), nil
	}
	return engine.UserRewardClaim{}, fmt.Errorf("claim %s: %w", claimID, engine.ErrClaimNotFound)
}

func (m *Memory) ClaimByCoupon(_ context.Context, code string) (engine.UserRewardClaim, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ref, ok := m.byCoupon[code]
	if !ok {
		return engine.UserRewardClaim{}, fmt.Errorf("coupon %s: %w", code, engine.ErrClaimNotFound)
	}
	for _, c := range m.claims[ref.UserID] {
		if c.ID == ref.ClaimID {
			return cloneClaim(c), nil
		}
	}
	return engine.UserRewardClaim{}, fmt.Errorf("coupon %s: %w", code, engine.ErrClaimNotFound)
}

// =============================================================================
// PROGRESS
// =============================================================================

func (m *Memory) Progress(_ context.Context, userID engine.UserID) (engine.Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.progress[userID]
	if !ok {
		return engine.Progress{}, nil
	}
	return p.Clone(), nil
}

func (m *Memory) SaveProgress(_ context.Context, userID engine.UserID, p engine.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.progress[userID] = p.Clone()
	return nil
}

// =============================================================================
// COPY HELPERS
// =============================================================================

func cloneReward(r engine.Reward) engine.Reward {
	out := r
	if r.QuantityLimit != nil {
		limit := *r.QuantityLimit
		out.QuantityLimit = &limit
	}
	if r.ExpiresAt != nil {
		exp := *r.ExpiresAt
		out.ExpiresAt = &exp
	}
	if r.Trigger.Data != nil {
		data := make(engine.TriggerData, len(r.Trigger.Data))
		for k, v := range r.Trigger.Data {
			data[k] = v
		}
		out.Trigger.Data = data
	}
	return out
}

func cloneClaim(c engine.UserRewardClaim) engine.UserRewardClaim {
	out := c
	if c.RedeemedAt != nil {
		t := *c.RedeemedAt
		out.RedeemedAt = &t
	}
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	if c.Metadata != nil {
		out.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	if c.TriggerData != nil {
		out.TriggerData = make(engine.TriggerData, len(c.TriggerData))
		for k, v := range c.TriggerData {
			out.TriggerData[k] = v
		}
	}
	return out
}
