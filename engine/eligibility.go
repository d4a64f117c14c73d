/*
eligibility.go - Trigger predicates and eligibility evaluation

PURPOSE:
  Answers "can this user claim this reward right now" and, for display,
  "how close are they". Evaluation is pure: it reads the reward definition
  and the user's progress counters and produces a result with directly
  displayable reasons; the UI never re-derives rule text from error kinds.

GATE ORDER (each short-circuits):
  1. Reward exists and is available
  2. User holds no valid claim for this reward
  3. Trigger-specific predicate against progress counters

PREDICATES:
  phone_verification: phone_verified >= 1
  workout_streak:     current_workout_streak >= trigger_data.streak_days (default 3)
  first_workout:      total_workouts >= 1
  anything else:      eligible by default (permissive fallback)

SEE ALSO:
  - engine.go: CheckEligibility wires the gates to the store
  - types.go: Progress counter names
*/
package engine

import "fmt"

// DefaultStreakTarget is used when a workout_streak reward omits
// streak_days from its trigger data.
const DefaultStreakTarget = 3

// EligibilityResult is the computed answer to an eligibility check.
// RequirementsMet keys match the trigger's predicate name so a caller can
// build detailed UI feedback without re-deriving the rule.
type EligibilityResult struct {
	Eligible        bool
	Reason          string
	RequirementsMet map[string]bool
	NextRequirement string
}

// requirement is the evaluated state of a trigger predicate: how far the
// user is and what remains. Shared between eligibility and the progress
// projection so the two never disagree.
type requirement struct {
	Key       string
	Met       bool
	Current   int64
	Target    int64
	Reason    string // displayable "why not" text; empty when met
	Remaining string // displayable "what's left" text; empty when met
}

// evaluateTrigger runs the trigger-specific predicate for a reward
// against the user's progress counters.
func evaluateTrigger(r Reward, progress Progress) requirement {
	switch r.Trigger.Type {
	case TriggerPhoneVerification:
		current := progress[CounterPhoneVerified]
		req := requirement{Key: CounterPhoneVerified, Current: current, Target: 1}
		if current >= 1 {
			req.Met = true
		} else {
			req.Reason = "Phone number not verified"
			req.Remaining = "Verify your phone number"
		}
		return req

	case TriggerWorkoutStreak:
		target := r.Trigger.Data.IntOr("streak_days", DefaultStreakTarget)
		current := progress[CounterWorkoutStreak]
		req := requirement{Key: "streak_days", Current: current, Target: target}
		if current >= target {
			req.Met = true
		} else {
			remaining := target - current
			req.Reason = fmt.Sprintf("Need %d more consecutive workout days", remaining)
			req.Remaining = req.Reason
		}
		return req

	case TriggerFirstWorkout:
		current := progress[CounterTotalWorkouts]
		req := requirement{Key: CounterTotalWorkouts, Current: current, Target: 1}
		if current >= 1 {
			req.Met = true
		} else {
			req.Reason = "Complete your first workout"
			req.Remaining = "Complete your first workout"
		}
		return req
	}

	// Unknown trigger types carry no progress requirement.
	return requirement{Key: string(r.Trigger.Type), Met: true, Current: 1, Target: 1}
}

// evaluate runs gates 1-3 for a reward the caller already fetched.
// hasValidClaim is the gate-2 input, computed against the claim list.
func evaluate(r Reward, progress Progress, hasValidClaim bool, available bool) EligibilityResult {
	if !available {
		return EligibilityResult{
			Eligible:        false,
			Reason:          "Reward is no longer available",
			RequirementsMet: map[string]bool{"reward_available": false},
		}
	}
	if hasValidClaim {
		return EligibilityResult{
			Eligible:        false,
			Reason:          "Reward already claimed",
			RequirementsMet: map[string]bool{"not_already_claimed": false},
		}
	}

	req := evaluateTrigger(r, progress)
	result := EligibilityResult{
		Eligible:        req.Met,
		RequirementsMet: map[string]bool{req.Key: req.Met},
	}
	if !req.Met {
		result.Reason = req.Reason
		result.NextRequirement = req.Remaining
	}
	return result
}

// =============================================================================
// PROGRESS PROJECTION - Display-only, always recomputed
// =============================================================================

// RewardProgress is a display projection of how close a user is to a
// reward. Never cached; recomputed from counters on every read.
type RewardProgress struct {
	Reward      Reward
	Current     int64
	Target      int64
	Percentage  int // 0-100
	Description string
}

// projectProgress computes the 0-100 completion for one available reward
// using the same predicate logic as eligibility.
func projectProgress(r Reward, progress Progress) RewardProgress {
	req := evaluateTrigger(r, progress)

	pct := 100
	if req.Target > 0 && req.Current < req.Target {
		pct = int(req.Current * 100 / req.Target)
	}
	if pct > 100 {
		pct = 100
	}

	description := "Ready to claim"
	if !req.Met {
		description = req.Remaining
	}

	return RewardProgress{
		Reward:      r,
		Current:     req.Current,
		Target:      req.Target,
		Percentage:  pct,
		Description: description,
	}
}
