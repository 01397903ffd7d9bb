// Package correction implements the Advisory Correction Engine (C10): a
// bounded, budgeted, causally-measured nudge loop over non-money,
// non-ledger state. It never proposes against correction.ForbiddenTargets,
// enforces per-scope daily budgets, and trips a SafeMode latch when either
// a forbidden-target attempt is observed or its own corrections turn out
// not to be causal often enough.
package correction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hustlexp/core/internal/domain/apperr"
	domaincorrection "github.com/hustlexp/core/internal/domain/correction"
	"github.com/hustlexp/core/internal/platform/idgen"
	"github.com/hustlexp/core/internal/storage"
	"github.com/hustlexp/core/pkg/logger"
)

const safeModeFlagKey = "safe_mode"

// safeModeWindow and safeModeThreshold bound the 24h rolling non-causal
// rate that trips SafeMode: at least safeModeMinSamples outcomes and a
// non-causal share above safeModeThreshold.
const (
	safeModeWindow     = 24 * time.Hour
	safeModeThreshold  = 0.30
	safeModeMinSamples = 5
)

// Proposal is a caller's request to apply one correction.
type Proposal struct {
	Type         domaincorrection.Type
	TargetEntity string
	TargetID     string
	Scope        domaincorrection.Scope
	Adjustment   json.RawMessage
	Magnitude    float64
	ReasonCode   string
	ProposedBy   string
	TTL          time.Duration
}

// MetricSample is a named-metric-to-value snapshot used when measuring a
// correction's outcome.
type MetricSample map[string]float64

type Service struct {
	corrections storage.CorrectionStore
	flags       storage.SystemFlagStore
	audit       storage.AdminAuditStore
	log         *logger.Logger
}

func New(corrections storage.CorrectionStore, flags storage.SystemFlagStore, audit storage.AdminAuditStore, log *logger.Logger) *Service {
	return &Service{corrections: corrections, flags: flags, audit: audit, log: log}
}

// Apply validates and records one correction. It refuses outright if
// SafeMode is active, if the target is forbidden (also tripping SafeMode),
// if the magnitude falls outside the type's bound, or if the scope's daily
// budget is exhausted.
func (s *Service) Apply(ctx context.Context, p Proposal) (domaincorrection.Correction, error) {
	active, err := s.safeModeActive(ctx)
	if err != nil {
		return domaincorrection.Correction{}, err
	}
	if active {
		return domaincorrection.Correction{}, apperr.New(apperr.ConflictState, "CORR_SAFE_MODE_ACTIVE", "advisory correction engine is in safe mode")
	}

	if domaincorrection.IsForbiddenTarget(p.TargetEntity) {
		if auditErr := s.audit.AppendAdminAction(ctx, p.ProposedBy, p.TargetEntity, p.TargetID, "correction.rejected_forbidden_target", nil, p.ReasonCode); auditErr != nil {
			s.log.WithError(auditErr).Warn("failed to audit forbidden-target correction attempt")
		}
		if flagErr := s.flags.SetFlag(ctx, safeModeFlagKey, "true"); flagErr != nil {
			s.log.WithError(flagErr).Warn("failed to set safe_mode flag after forbidden-target attempt")
		}
		return domaincorrection.Correction{}, apperr.New(apperr.ConflictCode, "CORR-1", "correction target "+p.TargetEntity+" is forbidden")
	}

	if !domaincorrection.ValidateMagnitude(p.Type, p.Magnitude) {
		return domaincorrection.Correction{}, apperr.Validationf("CORR_MAGNITUDE_OUT_OF_BOUNDS", "magnitude %.4f out of bounds for type %s", p.Magnitude, p.Type)
	}

	budget, ok := domaincorrection.DailyBudget[p.Scope]
	if !ok {
		return domaincorrection.Correction{}, apperr.Validationf("CORR_SCOPE_INVALID", "unknown correction scope %s", p.Scope)
	}
	count, err := s.corrections.CountAppliedInScopeSince(ctx, p.Scope, time.Now().UTC().Add(-safeModeWindow))
	if err != nil {
		return domaincorrection.Correction{}, err
	}
	if count >= budget {
		return domaincorrection.Correction{}, apperr.New(apperr.ConflictState, "CORR_BUDGET_EXHAUSTED", "daily correction budget exhausted for scope "+string(p.Scope))
	}

	ttl := p.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	expiresAt := time.Now().UTC().Add(ttl)

	created, err := s.corrections.CreateCorrection(ctx, domaincorrection.Correction{
		ID:           idgen.New(),
		Type:         string(p.Type),
		TargetEntity: p.TargetEntity,
		TargetID:     p.TargetID,
		Scope:        p.Scope,
		Adjustment:   p.Adjustment,
		Magnitude:    formatMagnitude(p.Magnitude),
		ReasonCode:   p.ReasonCode,
		Status:       domaincorrection.StatusApplied,
		AppliedBy:    p.ProposedBy,
		ExpiresAt:    &expiresAt,
	})
	if err != nil {
		return domaincorrection.Correction{}, err
	}
	if auditErr := s.audit.AppendAdminAction(ctx, p.ProposedBy, p.TargetEntity, p.TargetID, "correction.applied", nil, p.ReasonCode); auditErr != nil {
		s.log.WithError(auditErr).Warn("failed to audit applied correction")
	}
	return created, nil
}

// Reverse explicitly reverses an active correction ahead of its natural
// expiry.
func (s *Service) Reverse(ctx context.Context, correctionID, actorID, reason string) (domaincorrection.Correction, error) {
	c, err := s.corrections.GetCorrection(ctx, correctionID)
	if err != nil {
		return domaincorrection.Correction{}, apperr.NotFoundf("CORR_NOT_FOUND", "correction %s not found", correctionID)
	}
	if c.Status != domaincorrection.StatusApplied {
		return domaincorrection.Correction{}, apperr.New(apperr.ConflictState, "CORR_NOT_ACTIVE", "correction "+correctionID+" is not active")
	}
	now := time.Now().UTC()
	c.Status = domaincorrection.StatusReversed
	c.ReversedAt = &now
	updated, err := s.corrections.UpdateCorrection(ctx, c)
	if err != nil {
		return domaincorrection.Correction{}, err
	}
	if auditErr := s.audit.AppendAdminAction(ctx, actorID, c.TargetEntity, c.TargetID, "correction.reversed", nil, reason); auditErr != nil {
		s.log.WithError(auditErr).Warn("failed to audit reversed correction")
	}
	return updated, nil
}

// ExpireDue marks every applied correction whose expires_at has passed as
// expired. Intended to be driven by a periodic sweep alongside Proof-Expiry.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	due, err := s.corrections.ListExpiredActiveCorrections(ctx, time.Now().UTC(), 100)
	if err != nil {
		return 0, err
	}
	for _, c := range due {
		c.Status = domaincorrection.StatusExpired
		if _, err := s.corrections.UpdateCorrection(ctx, c); err != nil {
			s.log.WithError(err).WithField("correction_id", c.ID).Warn("failed to expire correction")
		}
	}
	return len(due), nil
}

// MeasureOutcome compares a correction's treated population against a
// control population across baseline/post snapshots, records the causal
// verdict, and re-evaluates the SafeMode latch.
func (s *Service) MeasureOutcome(ctx context.Context, correctionID string, treatedBaseline, treatedPost, controlBaseline, controlPost MetricSample) (domaincorrection.Outcome, error) {
	if _, err := s.corrections.GetCorrection(ctx, correctionID); err != nil {
		return domaincorrection.Outcome{}, apperr.NotFoundf("CORR_NOT_FOUND", "correction %s not found", correctionID)
	}

	treatedImproved, controlImproved, netLift := compareDeltas(treatedBaseline, treatedPost, controlBaseline, controlPost)
	verdict, confidence := classify(treatedImproved, controlImproved, len(netLift))

	netLiftJSON, err := json.Marshal(netLift)
	if err != nil {
		return domaincorrection.Outcome{}, apperr.Wrap(apperr.Internal, "CORR_NET_LIFT_ENCODE_FAILED", "encode net lift", err)
	}
	marshalSample := func(m MetricSample) json.RawMessage {
		b, _ := json.Marshal(m)
		return b
	}

	outcome, err := s.corrections.CreateOutcome(ctx, domaincorrection.Outcome{
		ID:              idgen.New(),
		CorrectionID:    correctionID,
		TreatedBaseline: marshalSample(treatedBaseline),
		TreatedPost:     marshalSample(treatedPost),
		ControlBaseline: marshalSample(controlBaseline),
		ControlPost:     marshalSample(controlPost),
		NetLift:         netLiftJSON,
		Verdict:         verdict,
		Confidence:      formatMagnitude(confidence),
	})
	if err != nil {
		return domaincorrection.Outcome{}, err
	}

	if err := s.reevaluateSafeMode(ctx); err != nil {
		s.log.WithError(err).Warn("failed to re-evaluate safe mode after outcome measurement")
	}
	return outcome, nil
}

// compareDeltas reports, per shared metric, whether the treated and
// control populations each improved from baseline to post, and returns the
// per-metric net lift (treated delta minus control delta).
func compareDeltas(treatedBaseline, treatedPost, controlBaseline, controlPost MetricSample) (treatedImproved, controlImproved int, netLift map[string]float64) {
	netLift = make(map[string]float64)
	for metric, tb := range treatedBaseline {
		tp, ok := treatedPost[metric]
		if !ok {
			continue
		}
		cb, cbOK := controlBaseline[metric]
		cp, cpOK := controlPost[metric]
		if !cbOK || !cpOK {
			continue
		}
		treatedDelta := tp - tb
		controlDelta := cp - cb
		netLift[metric] = treatedDelta - controlDelta
		if treatedDelta > 0 {
			treatedImproved++
		}
		if controlDelta >= treatedDelta && controlDelta > 0 {
			controlImproved++
		}
	}
	return treatedImproved, controlImproved, netLift
}

// classify implements the causal-verdict rule: treated improving on at
// least two of the shared core metrics, with control not improving as
// much, is causal; control keeping pace or doing better is non-causal;
// anything else is inconclusive.
func classify(treatedImproved, controlImproved, sharedMetrics int) (domaincorrection.Verdict, float64) {
	if sharedMetrics == 0 {
		return domaincorrection.VerdictInconclusive, 0
	}
	switch {
	case treatedImproved >= 2 && controlImproved == 0:
		return domaincorrection.VerdictCausal, float64(treatedImproved) / float64(sharedMetrics)
	case controlImproved > 0:
		return domaincorrection.VerdictNonCausal, float64(controlImproved) / float64(sharedMetrics)
	default:
		return domaincorrection.VerdictInconclusive, 0.5
	}
}

// reevaluateSafeMode trips the SafeMode flag when the rolling 24h
// non-causal rate crosses safeModeThreshold over at least
// safeModeMinSamples outcomes.
func (s *Service) reevaluateSafeMode(ctx context.Context) error {
	outcomes, err := s.corrections.ListOutcomesSince(ctx, time.Now().UTC().Add(-safeModeWindow))
	if err != nil {
		return err
	}
	if len(outcomes) < safeModeMinSamples {
		return nil
	}
	var nonCausal int
	for _, o := range outcomes {
		if o.Verdict == domaincorrection.VerdictNonCausal {
			nonCausal++
		}
	}
	rate := float64(nonCausal) / float64(len(outcomes))
	if rate > safeModeThreshold {
		return s.flags.SetFlag(ctx, safeModeFlagKey, "true")
	}
	return nil
}

func (s *Service) safeModeActive(ctx context.Context) (bool, error) {
	v, ok, err := s.flags.GetFlag(ctx, safeModeFlagKey)
	if err != nil {
		return false, err
	}
	return ok && v == "true", nil
}

func formatMagnitude(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
