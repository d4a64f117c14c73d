/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - engine/engine.go: Domain types these map from
*/
package api

import (
	"time"

	"github.com/warp/reward-engine/engine"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RewardDTO represents a catalog reward in API responses.
type RewardDTO struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description,omitempty"`
	Type            string         `json:"type"`
	Value           string         `json:"value"`
	DiscountAmount  string         `json:"discount_amount,omitempty"`
	TriggerType     string         `json:"trigger_type"`
	TriggerData     map[string]any `json:"trigger_data,omitempty"`
	Status          string         `json:"status"`
	QuantityLimit   *int64         `json:"quantity_limit,omitempty"`
	QuantityClaimed int64          `json:"quantity_claimed"`
	ExpiresAt       *string        `json:"expires_at,omitempty"`
}

// ClaimDTO represents an issued claim in API responses.
type ClaimDTO struct {
	ID          string            `json:"id"`
	UserID      string            `json:"user_id"`
	RewardID    string            `json:"reward_id"`
	ClaimedAt   string            `json:"claimed_at"`
	RedeemedAt  *string           `json:"redeemed_at,omitempty"`
	ExpiresAt   *string           `json:"expires_at,omitempty"`
	CouponCode  string            `json:"coupon_code,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	TriggerData map[string]any    `json:"trigger_data,omitempty"`
}

// EligibilityDTO is the response of an eligibility check.
type EligibilityDTO struct {
	Eligible        bool            `json:"eligible"`
	Reason          string          `json:"reason,omitempty"`
	RequirementsMet map[string]bool `json:"requirements_met,omitempty"`
	NextRequirement string          `json:"next_requirement,omitempty"`
}

// ClaimRewardRequest is the request body for claiming a reward.
type ClaimRewardRequest struct {
	RewardID    string         `json:"reward_id"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// ClaimRewardResponse is the response after a successful claim.
type ClaimRewardResponse struct {
	Claim   ClaimDTO `json:"claim"`
	Message string   `json:"message"`
}

// RedeemResponse is the response after a successful redemption.
type RedeemResponse struct {
	Claim   ClaimDTO `json:"claim"`
	Message string   `json:"message"`
}

// SummaryDTO aggregates a user's reward standing for the dashboard.
type SummaryDTO struct {
	TotalRewardsAvailable int        `json:"total_rewards_available"`
	TotalRewardsClaimed   int        `json:"total_rewards_claimed"`
	TotalRewardsRedeemed  int        `json:"total_rewards_redeemed"`
	TotalValueRedeemed    string     `json:"total_value_redeemed"`
	ActiveClaims          []ClaimDTO `json:"active_claims"`
}

// ProgressEntryDTO shows how close a user is to earning one reward.
type ProgressEntryDTO struct {
	Reward      RewardDTO `json:"reward"`
	Current     int64     `json:"current"`
	Target      int64     `json:"target"`
	Percentage  int       `json:"percentage"`
	Description string    `json:"description,omitempty"`
}

// SetProgressRequest overwrites a user's progress counters.
type SetProgressRequest struct {
	Progress map[string]int64 `json:"progress"`
}

// TriggerRequest is the request body for a trigger event.
type TriggerRequest struct {
	TriggerType string         `json:"trigger_type"`
	TriggerData map[string]any `json:"trigger_data,omitempty"`
}

// SkippedRewardDTO records why a candidate reward was not auto-claimed.
type SkippedRewardDTO struct {
	RewardID string `json:"reward_id"`
	Reason   string `json:"reason"`
}

// TriggerResponse is the aggregate outcome of a trigger event.
type TriggerResponse struct {
	TriggeredClaims  []ClaimDTO         `json:"triggered_claims"`
	AvailableRewards []RewardDTO        `json:"available_rewards"`
	Skipped          []SkippedRewardDTO `json:"skipped,omitempty"`
}

// ValidateCouponRequest is the request body for coupon validation.
type ValidateCouponRequest struct {
	Code string `json:"code"`
}

// ValidateCouponResponse is the outcome of a coupon validation.
type ValidateCouponResponse struct {
	Valid   bool       `json:"valid"`
	Message string     `json:"message"`
	Claim   *ClaimDTO  `json:"claim,omitempty"`
	Reward  *RewardDTO `json:"reward,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toRewardDTO(r engine.Reward) RewardDTO {
	dto := RewardDTO{
		ID:              string(r.ID),
		Name:            r.Name,
		Description:     r.Description,
		Type:            string(r.Type),
		Value:           r.Value,
		TriggerType:     string(r.Trigger.Type),
		TriggerData:     r.Trigger.Data,
		Status:          string(r.Status),
		QuantityLimit:   r.QuantityLimit,
		QuantityClaimed: r.QuantityClaimed,
	}
	if !r.DiscountAmount.IsZero() {
		dto.DiscountAmount = r.DiscountAmount.String()
	}
	if r.ExpiresAt != nil {
		dto.ExpiresAt = timePtr(*r.ExpiresAt)
	}
	return dto
}

func toRewardDTOs(rewards []engine.Reward) []RewardDTO {
	dtos := make([]RewardDTO, len(rewards))
	for i, r := range rewards {
		dtos[i] = toRewardDTO(r)
	}
	return dtos
}

func toClaimDTO(c engine.UserRewardClaim) ClaimDTO {
	dto := ClaimDTO{
		ID:          string(c.ID),
		UserID:      string(c.UserID),
		RewardID:    string(c.RewardID),
		ClaimedAt:   c.ClaimedAt.Format(time.RFC3339),
		CouponCode:  c.CouponCode,
		Metadata:    c.Metadata,
		TriggerData: c.TriggerData,
	}
	if c.RedeemedAt != nil {
		dto.RedeemedAt = timePtr(*c.RedeemedAt)
	}
	if c.ExpiresAt != nil {
		dto.ExpiresAt = timePtr(*c.ExpiresAt)
	}
	return dto
}

func toClaimDTOs(claims []engine.UserRewardClaim) []ClaimDTO {
	dtos := make([]ClaimDTO, len(claims))
	for i, c := range claims {
		dtos[i] = toClaimDTO(c)
	}
	return dtos
}

func timePtr(t time.Time) *string {
	s := t.Format(time.RFC3339)
	return &s
}
