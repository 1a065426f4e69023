// Package service implements the churn lever simulation engine: empirical
// outcome rates for cancellation saves, dunning recovery, and pause resumes,
// combined with a fatigue discount for aggressive configurations.
package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/smallbiznis/revlift/internal/churnsim/domain"
	"github.com/smallbiznis/revlift/internal/config"
	"github.com/smallbiznis/revlift/internal/dataset"
	datasetdomain "github.com/smallbiznis/revlift/internal/dataset/domain"
	"github.com/smallbiznis/revlift/internal/simmath"
	"github.com/smallbiznis/revlift/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// Per-lever lift guards against runaway extrapolation.
	saveLiftMin = -0.05
	saveLiftMax = 0.35

	recoveryLiftMin = -0.10
	recoveryLiftMax = 0.60

	pauseLiftMin = -0.10
	pauseLiftMax = 0.50

	// Save rate assumed for the no-intervention arm when the dataset has
	// no such events.
	fallbackNoneSaveRate = 0.05

	// Baseline dunning configuration the lift is measured against.
	baselineRetries     = 3
	baselineRetryWindow = 7

	// Fatigue penalties for aggressive settings.
	fatigueHeavyIncentive = 0.20
	fatigueHighRetries    = 0.10
	fatigueLongWindow     = 0.10
	fatigueFallback       = 0.05
	fatigueManyCycles     = 0.10

	fatigueRetriesAt = 7
	fatigueWindowAt  = 21
	fatigueCyclesAt  = 4

	// Aggressive-configuration predicate for the warning.
	aggressiveRetriesAt = 7
	aggressiveWindowAt  = 25
	aggressiveCyclesAt  = 5
)

// OverExtrapolationWarning is emitted when projected savings depend on
// aggressive assumptions.
const OverExtrapolationWarning = "Projected savings rely on aggressive assumptions; treat the estimate as directional and validate with a controlled rollout."

// Params collects the engine dependencies.
type Params struct {
	fx.In

	Store   *dataset.Store
	Log     *zap.Logger
	Policy  *config.PolicyHolder
	Metrics *telemetry.Metrics `optional:"true"`
}

// Service is the churn lever simulation engine.
type Service struct {
	store   *dataset.Store
	log     *zap.Logger
	policy  *config.PolicyHolder
	metrics *telemetry.Metrics
}

var _ domain.Service = (*Service)(nil)

// New constructs the engine.
func New(p Params) domain.Service {
	return &Service{
		store:   p.Store,
		log:     p.Log.Named("churnsim"),
		policy:  p.Policy,
		metrics: p.Metrics,
	}
}

// SimulateChurn evaluates a retention lever configuration for a plan.
// Unlike the price engine, cross-merchant evidence is always blended in.
func (s *Service) SimulateChurn(ctx context.Context, in domain.ChurnSimulationInput) (*domain.ChurnSimulationResult, error) {
	start := time.Now()

	plan, err := s.store.PlanByID(in.PlanID)
	if err != nil {
		return nil, fmt.Errorf("churnsim: plan %q: %w", in.PlanID, err)
	}
	if in.MerchantID != "" && plan.MerchantID != in.MerchantID {
		return nil, fmt.Errorf("churnsim: plan %q not owned by merchant %q: %w",
			in.PlanID, in.MerchantID, datasetdomain.ErrPlanNotFound)
	}

	in.Cancellation = normalizeCancellation(in.Cancellation)
	policy := s.policy.Policy()
	subs := float64(plan.ActiveSubs)

	res := &domain.ChurnSimulationResult{
		MerchantID:              plan.MerchantID,
		PlanID:                  plan.ID,
		ExpectedCancels:         subs * plan.BaselineCancelRate,
		ExpectedPaymentFailures: subs * plan.PaymentFailRate,
	}
	res.ExpectedDunningLosses = res.ExpectedPaymentFailures * (1 - plan.DunningRecoveryRate)

	cancellations := append(s.store.CancellationsForPlan(plan.ID), s.store.CancellationsForOtherMerchants(plan.MerchantID)...)
	failures := append(s.store.PaymentFailuresForPlan(plan.ID), s.store.PaymentFailuresForOtherMerchants(plan.MerchantID)...)
	pauses := append(s.store.PausesForPlan(plan.ID), s.store.PausesForOtherMerchants(plan.MerchantID)...)

	res.Cancellation = s.cancellationImpact(in.Cancellation, cancellations, res.ExpectedCancels)
	res.Dunning = s.dunningImpact(in.Dunning, failures, plan, res.ExpectedDunningLosses)
	if in.Pause.Enabled {
		res.Pause = s.pauseImpact(in.Pause, pauses, plan, res.ExpectedCancels)
	}

	res.FatigueDiscount = fatigueDiscount(in, policy.FatigueCap)
	rawSaved := res.Cancellation.SavedSubs + res.Dunning.SavedSubs + res.Pause.SavedSubs
	res.EffectiveSavedSubs = rawSaved * (1 - res.FatigueDiscount)

	res.RecoveredMRR = res.EffectiveSavedSubs * (plan.PriceMonthly + plan.AddonARPUMonthly)
	res.RecoveredARR = 12 * res.RecoveredMRR

	res.EvidenceCount = res.Cancellation.MatchingEvents + res.Dunning.MatchingEvents + res.Pause.MatchingEvents
	res.Confidence = leverConfidence(res.EvidenceCount, policy)
	band := rangeMultiplier(res.Confidence) * math.Abs(res.RecoveredARR)
	res.RecoveredARRLow = res.RecoveredARR - band
	res.RecoveredARRHigh = res.RecoveredARR + band

	addressable := res.ExpectedCancels + res.ExpectedDunningLosses
	savedShare := simmath.SafeRatio(res.EffectiveSavedSubs, addressable, 0)
	res.ChurnReductionPts = savedShare * plan.BaselineChurn90d * 100

	if savedShare > policy.SavedShareWarning || isAggressive(in) {
		res.Warnings = append(res.Warnings, OverExtrapolationWarning)
	}

	s.metrics.RecordSimulation("churnsim", "lever", time.Since(start))
	s.log.Debug("simulated retention levers",
		zap.String("plan_id", plan.ID),
		zap.Float64("effective_saved_subs", res.EffectiveSavedSubs),
		zap.Float64("recovered_arr", res.RecoveredARR),
		zap.Float64("fatigue_discount", res.FatigueDiscount),
		zap.Int("evidence_count", res.EvidenceCount),
	)
	return res, nil
}

func normalizeCancellation(lever domain.CancellationLever) domain.CancellationLever {
	if lever.Intervention == "" {
		lever.Intervention = datasetdomain.InterventionNone
	}
	if lever.Intervention != datasetdomain.InterventionIncentive {
		lever.IncentiveStrength = datasetdomain.StrengthNone
	} else if lever.IncentiveStrength == "" {
		lever.IncentiveStrength = datasetdomain.StrengthLight
	}
	return lever
}

// cancellationImpact measures the configured save flow against the
// no-intervention arm.
func (s *Service) cancellationImpact(lever domain.CancellationLever, events []datasetdomain.CancellationEvent, expectedCancels float64) domain.LeverImpact {
	var matched, matchedSaved, none, noneSaved int
	for _, e := range events {
		if e.Intervention == datasetdomain.InterventionNone {
			none++
			if e.Outcome == datasetdomain.OutcomeSaved {
				noneSaved++
			}
		}
		if e.Intervention != lever.Intervention {
			continue
		}
		if lever.Intervention == datasetdomain.InterventionIncentive && e.IncentiveStrength != lever.IncentiveStrength {
			continue
		}
		matched++
		if e.Outcome == datasetdomain.OutcomeSaved {
			matchedSaved++
		}
	}

	if matched == 0 {
		return domain.LeverImpact{}
	}

	noneRate := fallbackNoneSaveRate
	if none > 0 {
		noneRate = float64(noneSaved) / float64(none)
	}
	matchedRate := float64(matchedSaved) / float64(matched)

	lift := simmath.Clamp(matchedRate-noneRate, saveLiftMin, saveLiftMax)
	return domain.LeverImpact{
		Lift:           lift,
		SavedSubs:      expectedCancels * lift,
		MatchingEvents: matched,
	}
}

// dunningImpact measures the configured retry schedule against the
// (3 retries, 7 day window, no fallback) baseline.
func (s *Service) dunningImpact(lever domain.DunningLever, events []datasetdomain.PaymentFailureEvent, plan datasetdomain.Plan, expectedDunningLosses float64) domain.LeverImpact {
	var matched, matchedRecovered, base, baseRecovered int
	for _, e := range events {
		if e.RetryCount == baselineRetries && e.RetryWindowDays == baselineRetryWindow && !e.FallbackUsed {
			base++
			if e.Recovered {
				baseRecovered++
			}
		}
		if e.RetryCount != lever.Retries || e.RetryWindowDays != lever.RetryWindowDays || e.FallbackUsed != lever.FallbackEnabled {
			continue
		}
		matched++
		if e.Recovered {
			matchedRecovered++
		}
	}

	if matched == 0 {
		return domain.LeverImpact{}
	}

	baseRate := plan.DunningRecoveryRate
	if base > 0 {
		baseRate = float64(baseRecovered) / float64(base)
	}
	matchedRate := float64(matchedRecovered) / float64(matched)

	lift := simmath.Clamp(matchedRate-baseRate, recoveryLiftMin, recoveryLiftMax)
	return domain.LeverImpact{
		Lift:           lift,
		SavedSubs:      expectedDunningLosses * lift,
		MatchingEvents: matched,
	}
}

// pauseImpact measures the effective resume rate of matching pause events.
// The no-pause baseline is definitionally zero: without the feature there is
// no resume path.
func (s *Service) pauseImpact(lever domain.PauseLever, events []datasetdomain.PauseEvent, plan datasetdomain.Plan, expectedCancels float64) domain.LeverImpact {
	var matched, effective int
	for _, e := range events {
		if !e.PauseEnabled || e.CyclesUsed > lever.MaxCycles {
			continue
		}
		matched++
		if e.Resumed && e.ChurnedWithin90d != nil && !*e.ChurnedWithin90d {
			effective++
		}
	}

	var rate float64
	if matched > 0 {
		rate = float64(effective) / float64(matched)
	}

	lift := simmath.Clamp(rate, pauseLiftMin, pauseLiftMax)
	return domain.LeverImpact{
		Lift:           lift,
		SavedSubs:      expectedCancels * plan.PauseAdoptionRate * lift,
		MatchingEvents: matched,
	}
}

// fatigueDiscount accumulates penalties for aggressive settings, capped by
// policy.
func fatigueDiscount(in domain.ChurnSimulationInput, ceiling float64) float64 {
	var fatigue float64
	if in.Cancellation.IncentiveStrength == datasetdomain.StrengthHeavy {
		fatigue += fatigueHeavyIncentive
	}
	if in.Dunning.Retries >= fatigueRetriesAt {
		fatigue += fatigueHighRetries
	}
	if in.Dunning.RetryWindowDays >= fatigueWindowAt {
		fatigue += fatigueLongWindow
	}
	if in.Dunning.FallbackEnabled {
		fatigue += fatigueFallback
	}
	// The cycle term counts only while the pause lever is enabled;
	// residual config on a disabled lever is inert.
	if in.Pause.Enabled && in.Pause.MaxCycles >= fatigueCyclesAt {
		fatigue += fatigueManyCycles
	}
	return simmath.Clamp(fatigue, 0, ceiling)
}

func isAggressive(in domain.ChurnSimulationInput) bool {
	return in.Cancellation.IncentiveStrength == datasetdomain.StrengthHeavy ||
		in.Dunning.Retries >= aggressiveRetriesAt ||
		in.Dunning.RetryWindowDays >= aggressiveWindowAt ||
		(in.Pause.Enabled && in.Pause.MaxCycles >= aggressiveCyclesAt)
}

func leverConfidence(evidenceCount int, policy config.SimulationPolicy) domain.Confidence {
	switch {
	case evidenceCount >= policy.LeverConfidenceHigh:
		return domain.ConfidenceHigh
	case evidenceCount >= policy.LeverConfidenceMed:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

func rangeMultiplier(c domain.Confidence) float64 {
	switch c {
	case domain.ConfidenceHigh:
		return 0.15
	case domain.ConfidenceMedium:
		return 0.30
	default:
		return 0.50
	}
}
