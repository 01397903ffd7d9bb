// Package correction models the Advisory Correction Engine (C10): bounded,
// budgeted, causally-measured nudges an advisory process may apply to
// non-money, non-ledger state. It never touches the targets in
// ForbiddenTargets regardless of caller intent (invariant CORR-1).
package correction

import (
	"encoding/json"
	"strings"
	"time"
)

// ForbiddenTargets lists target_entity substrings a correction may never
// name, mirrored by the corr1_forbidden_targets trigger so the database is
// the final authority even if this check is bypassed in-process.
var ForbiddenTargets = []string{
	"ledger",
	"payout",
	"dispute",
	"escrow",
	"killswitch",
	"stripe",
	"block_task",
	"block_accept",
	"money_state_lock",
}

// IsForbiddenTarget reports whether target names (a substring of) a
// protected entity.
func IsForbiddenTarget(target string) bool {
	lower := strings.ToLower(target)
	for _, f := range ForbiddenTargets {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

// Scope is the blast radius a correction is budgeted against.
type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeCity     Scope = "city"
	ScopeCategory Scope = "category"
	ScopeZone     Scope = "zone"
)

// DailyBudget is the maximum number of applied corrections per scope per
// rolling 24h window.
var DailyBudget = map[Scope]int{
	ScopeGlobal:   100,
	ScopeCity:     30,
	ScopeCategory: 15,
	ScopeZone:     10,
}

// Type enumerates the proposal kinds the engine accepts; each has its own
// bounded magnitude range.
type Type string

const (
	TypeProofTimingAdjustment    Type = "proof_timing_adjustment"
	TypeTaskRoutingBoost         Type = "task_routing_boost"
	TypePricingGuidanceMultiplier Type = "pricing_guidance_multiplier"
	TypeUXFrictionLevel          Type = "ux_friction_level"
	TypeTrustFrictionLevel       Type = "trust_friction_level"
)

// MagnitudeBound is the inclusive [Min,Max] a Type's magnitude must fall in.
type MagnitudeBound struct {
	Min, Max float64
}

// MagnitudeBounds enumerates every Type's bounded magnitude range.
var MagnitudeBounds = map[Type]MagnitudeBound{
	TypeProofTimingAdjustment:     {Min: 4, Max: 48},
	TypeTaskRoutingBoost:          {Min: 0, Max: 1},
	TypePricingGuidanceMultiplier: {Min: 0.5, Max: 1.5},
	TypeUXFrictionLevel:           {Min: 0, Max: 1},
	TypeTrustFrictionLevel:        {Min: 0, Max: 1},
}

// ValidateMagnitude reports whether magnitude falls within t's bound. An
// unknown Type is always rejected.
func ValidateMagnitude(t Type, magnitude float64) bool {
	bound, ok := MagnitudeBounds[t]
	if !ok {
		return false
	}
	return magnitude >= bound.Min && magnitude <= bound.Max
}

// Status is the lifecycle of one applied (or rejected) correction.
type Status string

const (
	StatusApplied  Status = "applied"
	StatusRejected Status = "rejected"
	StatusReversed Status = "reversed"
	StatusExpired  Status = "expired"
)

// Correction is one row of correction_log.
type Correction struct {
	ID           string
	Type         string
	TargetEntity string
	TargetID     string
	Scope        Scope
	Adjustment   json.RawMessage
	Magnitude    string // NUMERIC(10,4) serialized
	ReasonCode   string
	Status       Status
	AppliedBy    string
	ExpiresAt    *time.Time
	ReversedAt   *time.Time
	CreatedAt    time.Time
}

// Verdict is the causal-measurement conclusion for one correction.
type Verdict string

const (
	VerdictCausal       Verdict = "causal"
	VerdictInconclusive Verdict = "inconclusive"
	VerdictNonCausal    Verdict = "non_causal"
)

// Outcome is one row of causal_outcomes: the treated-vs-control comparison
// measured after a correction has had time to take effect.
type Outcome struct {
	ID              string
	CorrectionID    string
	TreatedBaseline json.RawMessage
	TreatedPost     json.RawMessage
	ControlBaseline json.RawMessage
	ControlPost     json.RawMessage
	NetLift         json.RawMessage
	Verdict         Verdict
	Confidence      string // 0-1, NUMERIC(4,3) serialized
	CreatedAt       time.Time
}
