/*
handlers.go - HTTP API handlers for the reward engine

PURPOSE:
  Exposes the reward engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Rewards:
    GET    /api/rewards                          List available rewards (?trigger= filters)
    GET    /api/rewards/all                      Full catalog, inactive included (admin)
    GET    /api/rewards/{rewardID}               Get reward details
    GET    /api/rewards/{rewardID}/eligibility   Check eligibility (?user_id=)

  Claims:
    GET    /api/users/{userID}/claims            Claim history (?active=true filters)
    POST   /api/users/{userID}/claims            Claim a reward
    POST   /api/users/{userID}/claims/{claimID}/redeem  Redeem a claim

  Progress:
    GET    /api/users/{userID}/summary           Dashboard summary
    GET    /api/users/{userID}/progress          Per-reward progress projection
    PUT    /api/users/{userID}/progress          Overwrite counters (ops tooling)
    POST   /api/users/{userID}/triggers          Process a trigger event

  Coupons:
    POST   /api/coupons/validate                 Validate a coupon code

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call engine
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Reward or claim not found
  - 409: Ineligible, already claimed, exhausted, expired
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/reward-engine/engine"
	"github.com/warp/reward-engine/metrics"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *engine.Engine
}

// NewHandler creates a new handler backed by the given engine.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{Engine: eng}
}

// =============================================================================
// REWARD HANDLERS
// =============================================================================

// ListRewards returns the available rewards, optionally filtered by trigger.
func (h *Handler) ListRewards(w http.ResponseWriter, r *http.Request) {
	var (
		rewards []engine.Reward
		err     error
	)
	if trigger := r.URL.Query().Get("trigger"); trigger != "" {
		rewards, err = h.Engine.RewardsByTrigger(r.Context(), engine.TriggerType(trigger))
	} else {
		rewards, err = h.Engine.ActiveRewards(r.Context())
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rewards", err)
		return
	}

	writeJSON(w, http.StatusOK, toRewardDTOs(rewards))
}

// ListAllRewards returns the full catalog, inactive and exhausted rewards
// included. Admin view; the member-facing list is ListRewards.
func (h *Handler) ListAllRewards(w http.ResponseWriter, r *http.Request) {
	rewards, err := h.Engine.AllRewards(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list rewards", err)
		return
	}

	writeJSON(w, http.StatusOK, toRewardDTOs(rewards))
}

// GetReward returns a single reward by id.
func (h *Handler) GetReward(w http.ResponseWriter, r *http.Request) {
	id := engine.RewardID(chi.URLParam(r, "rewardID"))

	reward, err := h.Engine.RewardByID(r.Context(), id)
	if err != nil {
		writeEngineError(w, "Failed to get reward", err)
		return
	}

	writeJSON(w, http.StatusOK, toRewardDTO(reward))
}

// CheckEligibility evaluates whether a user can claim a reward right now.
func (h *Handler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	id := engine.RewardID(chi.URLParam(r, "rewardID"))
	userID := engine.UserID(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id query parameter is required", nil)
		return
	}

	result, err := h.Engine.CheckEligibility(r.Context(), userID, id)
	if err != nil {
		writeEngineError(w, "Failed to check eligibility", err)
		return
	}

	writeJSON(w, http.StatusOK, EligibilityDTO{
		Eligible:        result.Eligible,
		Reason:          result.Reason,
		RequirementsMet: result.RequirementsMet,
		NextRequirement: result.NextRequirement,
	})
}

// =============================================================================
// CLAIM HANDLERS
// =============================================================================

// ListClaims returns the user's claim history. ?active=true restricts the
// list to currently-valid claims.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "userID"))

	var (
		claims []engine.UserRewardClaim
		err    error
	)
	if r.URL.Query().Get("active") == "true" {
		claims, err = h.Engine.UserActiveClaims(r.Context(), userID)
	} else {
		claims, err = h.Engine.UserClaims(r.Context(), userID)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list claims", err)
		return
	}

	writeJSON(w, http.StatusOK, toClaimDTOs(claims))
}

// ClaimReward issues a claim for a reward the user is eligible for.
func (h *Handler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "userID"))

	var req ClaimRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.RewardID == "" {
		writeError(w, http.StatusBadRequest, "reward_id is required", nil)
		return
	}

	start := time.Now()
	result, err := h.Engine.Claim(r.Context(), userID, engine.ClaimRequest{
		RewardID:    engine.RewardID(req.RewardID),
		TriggerData: req.TriggerData,
	})
	if err != nil {
		metrics.RecordClaimDuration("failure", time.Since(start).Seconds())
		writeEngineError(w, "Failed to claim reward", err)
		return
	}
	metrics.RecordClaimDuration("success", time.Since(start).Seconds())
	metrics.ClaimsIssued.WithLabelValues(req.RewardID).Inc()

	writeJSON(w, http.StatusCreated, ClaimRewardResponse{
		Claim:   toClaimDTO(result.Claim),
		Message: result.Message,
	})
}

// RedeemClaim marks a claim as redeemed.
func (h *Handler) RedeemClaim(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "userID"))
	claimID := engine.ClaimID(chi.URLParam(r, "claimID"))

	result, err := h.Engine.Redeem(r.Context(), userID, claimID)
	if err != nil {
		writeEngineError(w, "Failed to redeem claim", err)
		return
	}

	writeJSON(w, http.StatusOK, RedeemResponse{
		Claim:   toClaimDTO(result.Claim),
		Message: result.Message,
	})
}

// =============================================================================
// PROGRESS & SUMMARY HANDLERS
// =============================================================================

// GetSummary returns the user's dashboard aggregate.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "userID"))

	summary, err := h.Engine.UserSummary(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get summary", err)
		return
	}

	writeJSON(w, http.StatusOK, SummaryDTO{
		TotalRewardsAvailable: summary.TotalRewardsAvailable,
		TotalRewardsClaimed:   summary.TotalRewardsClaimed,
		TotalRewardsRedeemed:  summary.TotalRewardsRedeemed,
		TotalValueRedeemed:    summary.TotalValueRedeemed.String(),
		ActiveClaims:          toClaimDTOs(summary.ActiveClaims),
	})
}

// GetProgress returns how close the user is to each available reward.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "userID"))

	report, err := h.Engine.ProgressReport(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get progress", err)
		return
	}

	entries := make([]ProgressEntryDTO, len(report))
	for i, p := range report {
		entries[i] = ProgressEntryDTO{
			Reward:      toRewardDTO(p.Reward),
			Current:     p.Current,
			Target:      p.Target,
			Percentage:  p.Percentage,
			Description: p.Description,
		}
	}

	writeJSON(w, http.StatusOK, entries)
}

// SetProgress overwrites the user's progress counters. Ops tooling only;
// normal updates flow through triggers.
func (h *Handler) SetProgress(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "userID"))

	var req SetProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Engine.SetProgress(r.Context(), userID, req.Progress); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to set progress", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProcessTrigger updates the user's counters for a trigger event and
// auto-claims every reward the event makes them eligible for.
func (h *Handler) ProcessTrigger(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "userID"))

	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TriggerType == "" {
		writeError(w, http.StatusBadRequest, "trigger_type is required", nil)
		return
	}

	result, err := h.Engine.Trigger(r.Context(), userID,
		engine.TriggerType(req.TriggerType), req.TriggerData)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to process trigger", err)
		return
	}
	metrics.TriggersProcessed.WithLabelValues(req.TriggerType).Inc()
	for _, c := range result.TriggeredClaims {
		metrics.ClaimsIssued.WithLabelValues(string(c.RewardID)).Inc()
	}

	skipped := make([]SkippedRewardDTO, len(result.Skipped))
	for i, s := range result.Skipped {
		skipped[i] = SkippedRewardDTO{RewardID: string(s.RewardID), Reason: s.Reason}
	}

	writeJSON(w, http.StatusOK, TriggerResponse{
		TriggeredClaims:  toClaimDTOs(result.TriggeredClaims),
		AvailableRewards: toRewardDTOs(result.AvailableRewards),
		Skipped:          skipped,
	})
}

// =============================================================================
// COUPON HANDLERS
// =============================================================================

// ValidateCoupon checks a coupon code at point of sale.
func (h *Handler) ValidateCoupon(w http.ResponseWriter, r *http.Request) {
	var req ValidateCouponRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required", nil)
		return
	}

	result, err := h.Engine.ValidateCoupon(r.Context(), req.Code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to validate coupon", err)
		return
	}

	switch {
	case result.Valid:
		metrics.CouponValidations.WithLabelValues("valid").Inc()
	case result.Claim != nil:
		metrics.CouponValidations.WithLabelValues("invalid").Inc()
	default:
		metrics.CouponValidations.WithLabelValues("not_found").Inc()
	}

	resp := ValidateCouponResponse{Valid: result.Valid, Message: result.Message}
	if result.Claim != nil {
		dto := toClaimDTO(*result.Claim)
		resp.Claim = &dto
	}
	if result.Reward != nil {
		dto := toRewardDTO(*result.Reward)
		resp.Reward = &dto
	}

	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps domain errors to HTTP statuses. Ineligibility
// reasons surface verbatim so clients can show them to users.
func writeEngineError(w http.ResponseWriter, message string, err error) {
	var notEligible *engine.NotEligibleError
	if errors.As(err, &notEligible) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: notEligible.Reason,
			Code:  string(engine.KindUserNotEligible),
		})
		return
	}

	switch kind := engine.Kind(err); kind {
	case engine.KindRewardNotFound, engine.KindClaimNotFound:
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: message, Code: string(kind), Details: err.Error()})
	case engine.KindClaimExpired, engine.KindUserNotEligible:
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: message, Code: string(kind), Details: err.Error()})
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
