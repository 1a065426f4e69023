// Package service implements the price simulation engine: similarity-weighted
// aggregation of historical price-change experiments with heuristic fallbacks
// and a non-linear shock correction for extreme increases.
package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/smallbiznis/revlift/internal/config"
	"github.com/smallbiznis/revlift/internal/dataset"
	datasetdomain "github.com/smallbiznis/revlift/internal/dataset/domain"
	"github.com/smallbiznis/revlift/internal/pricesim/domain"
	"github.com/smallbiznis/revlift/internal/simmath"
	"github.com/smallbiznis/revlift/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	// Similarity decay constants. The normal regime compares absolute
	// percent-change differences; the extreme regime switches to relative
	// differences so large repricings stay comparable to each other.
	similarityDecay        = 10.0
	extremeSimilarityDecay = 5.0
	extremeChangeThreshold = 0.50
	relativeDiffFloor      = 0.10

	// Pool shaping.
	samePlanNarrowMin = 3
	topEventsCap      = 6

	// Heuristic branch: linear lift per +/-10% price move.
	heuristicLiftPerTenPct   = 0.012
	heuristicReliefPerTenPct = 0.006

	// Evidence branch extrapolation beyond the observed change range.
	extrapolationRatio = 1.5
	extrapolationScale = 0.3

	// Range estimation.
	evidenceChurnPerturbation = 0.02
	heuristicRangeBand        = 0.20

	// Cap on the data-driven churn estimate before shock correction.
	dataDrivenChurnCap = 0.5
)

// PriceShockNote explains the shock correction on affected results.
const PriceShockNote = "Price increase exceeds the safe threshold; projected churn is blended toward a near-total-loss ceiling to reflect price-shock risk."

// Params collects the engine dependencies.
type Params struct {
	fx.In

	Store   *dataset.Store
	Log     *zap.Logger
	Policy  *config.PolicyHolder
	Metrics *telemetry.Metrics `optional:"true"`
}

// Service is the price simulation engine.
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
		log:     p.Log.Named("pricesim"),
		policy:  p.Policy,
		metrics: p.Metrics,
	}
}

// Simulate evaluates a hypothetical new monthly price for a plan.
func (s *Service) Simulate(ctx context.Context, in domain.SimulationInput) (*domain.SimulationResult, error) {
	start := time.Now()

	plan, err := s.store.PlanByID(in.PlanID)
	if err != nil {
		return nil, fmt.Errorf("pricesim: plan %q: %w", in.PlanID, err)
	}
	if in.MerchantID != "" && plan.MerchantID != in.MerchantID {
		return nil, fmt.Errorf("pricesim: plan %q not owned by merchant %q: %w",
			in.PlanID, in.MerchantID, datasetdomain.ErrPlanNotFound)
	}

	policy := s.policy.Policy()
	oldPrice := plan.PriceMonthly
	pctChange := (in.NewPriceMonthly - oldPrice) / oldPrice

	weighted := s.buildEvidence(plan, oldPrice, pctChange, in.UseGlobalBenchmarks, policy)
	sort.SliceStable(weighted, func(i, j int) bool {
		return weighted[i].Weight > weighted[j].Weight
	})

	res := &domain.SimulationResult{
		MerchantID:          plan.MerchantID,
		PlanID:              plan.ID,
		CurrentPriceMonthly: oldPrice,
		NewPriceMonthly:     in.NewPriceMonthly,
		PctChange:           pctChange,
		BaselineChurn90d:    plan.BaselineChurn90d,
		EvidenceCount:       len(weighted),
	}
	if len(weighted) > topEventsCap {
		res.TopEvents = weighted[:topEventsCap]
	} else {
		res.TopEvents = weighted
	}

	res.UsedHeuristic = len(weighted) < policy.MinEvidenceEvents
	if res.UsedHeuristic {
		res.ChurnLift = heuristicChurnLift(pctChange)
	} else {
		res.ChurnLift = evidenceChurnLift(weighted, pctChange)
	}

	dataDriven := simmath.Clamp(plan.BaselineChurn90d+res.ChurnLift, 0, dataDrivenChurnCap)
	res.ExpectedChurn90d = dataDriven

	if pctChange > policy.SafeIncreaseThreshold {
		t := simmath.Clamp((pctChange-policy.SafeIncreaseThreshold)/policy.ShockRampWidth, 0, 1)
		res.PriceShockWeight = simmath.Smoothstep(t)
		res.ExpectedChurn90d = applyShock(dataDriven, res.PriceShockWeight, policy.ChurnCeiling)
		res.AppliedPriceShock = res.PriceShockWeight > 0
		if res.AppliedPriceShock {
			res.Note = PriceShockNote
			s.metrics.RecordPriceShock()
		}
	}

	s.applyRevenue(res, plan, dataDriven, policy)
	res.Confidence = confidenceFor(res.EvidenceCount, policy)

	branch := "evidence"
	if res.UsedHeuristic {
		branch = "heuristic"
	}
	s.metrics.RecordSimulation("pricesim", branch, time.Since(start))
	s.log.Debug("simulated price change",
		zap.String("plan_id", plan.ID),
		zap.Float64("pct_change", pctChange),
		zap.Float64("expected_churn_90d", res.ExpectedChurn90d),
		zap.Float64("net_arr_delta", res.NetARRDelta),
		zap.Bool("heuristic", res.UsedHeuristic),
		zap.Bool("price_shock", res.AppliedPriceShock),
	)
	return res, nil
}

// buildEvidence assembles the merchant and optional global comparable pools
// and assigns each event its similarity-derived weight. Zero-weight events
// are dropped.
func (s *Service) buildEvidence(plan datasetdomain.Plan, oldPrice, pctChange float64, useGlobal bool, policy config.SimulationPolicy) []domain.WeightedEvent {
	merchantPool := s.intervalFiltered(s.store.PriceChangesForMerchant(plan.MerchantID), plan.Interval)

	// Prefer exact-plan comparables when the plan has enough history of
	// its own.
	var samePlan []datasetdomain.PriceChangeEvent
	for _, e := range merchantPool {
		if e.PlanID == plan.ID {
			samePlan = append(samePlan, e)
		}
	}
	if len(samePlan) >= samePlanNarrowMin {
		merchantPool = samePlan
	}

	var globalPool []datasetdomain.PriceChangeEvent
	if useGlobal {
		globalPool = s.intervalFiltered(s.store.PriceChangesForOtherMerchants(plan.MerchantID), plan.Interval)
	}

	merchantWeight := 1.0
	if total := len(merchantPool) + len(globalPool); total > 0 {
		merchantWeight = float64(len(merchantPool)) / float64(total)
	}
	globalWeight := 1 - merchantWeight

	out := make([]domain.WeightedEvent, 0, len(merchantPool)+len(globalPool))
	for _, e := range merchantPool {
		sim := similarity(pctChange, e.PctChange)
		if w := sim * merchantWeight; w > 0 {
			out = append(out, domain.WeightedEvent{Event: e, Weight: w, Similarity: sim})
		}
	}
	for _, e := range globalPool {
		// Similarity stays pure; the proximity discount lives only in
		// the weight so a reported event distinguishes "dissimilar
		// change" from "out-of-band price".
		sim := similarity(pctChange, e.PctChange)
		prox := priceProximity(e.OldPriceMonthly, oldPrice, policy.GlobalPriceBand)
		if w := sim * prox * globalWeight; w > 0 {
			out = append(out, domain.WeightedEvent{Event: e, Weight: w, Similarity: sim, Global: true})
		}
	}
	return out
}

func (s *Service) intervalFiltered(events []datasetdomain.PriceChangeEvent, interval datasetdomain.BillingInterval) []datasetdomain.PriceChangeEvent {
	var out []datasetdomain.PriceChangeEvent
	for _, e := range events {
		if got, ok := s.store.PlanInterval(e.PlanID); ok && got == interval {
			out = append(out, e)
		}
	}
	return out
}

// similarity scores how comparable a historical percent change is to the
// query. Moderate changes use exponential decay on the absolute difference;
// once either side is extreme the decay switches to a relative difference so
// large repricings remain comparable without exact matches.
func similarity(queryPct, eventPct float64) float64 {
	diff := math.Abs(eventPct - queryPct)
	qa := math.Abs(queryPct)
	ea := math.Abs(eventPct)
	if qa > extremeChangeThreshold || ea > extremeChangeThreshold {
		rel := diff / math.Max(qa, math.Max(ea, relativeDiffFloor))
		return math.Exp(-extremeSimilarityDecay * rel)
	}
	return math.Exp(-similarityDecay * diff)
}

// priceProximity discounts cross-merchant events whose starting price sits
// far from the query plan's; zero outside the configured band.
func priceProximity(eventOldPrice, queryOldPrice, band float64) float64 {
	if queryOldPrice <= 0 {
		return 0
	}
	return math.Max(0, 1-math.Abs(eventOldPrice-queryOldPrice)/(band*queryOldPrice))
}

// extremeMultiplier inflates the heuristic lift quadratically once the
// requested change passes the extreme threshold.
func extremeMultiplier(pctChange float64) float64 {
	abs := math.Abs(pctChange)
	if abs <= extremeChangeThreshold {
		return 1
	}
	over := (abs - extremeChangeThreshold) / extremeChangeThreshold
	return 1 + over*over
}

// heuristicChurnLift is the sparse-evidence fallback: linear lift scaled by
// the change magnitude, inflated for extreme moves, clamped to a
// magnitude-dependent ceiling.
func heuristicChurnLift(pctChange float64) float64 {
	abs := math.Abs(pctChange)
	var lift float64
	if pctChange >= 0 {
		lift = pctChange / 0.10 * heuristicLiftPerTenPct
	} else {
		lift = pctChange / 0.10 * heuristicReliefPerTenPct
	}
	lift *= extremeMultiplier(pctChange)

	if pctChange >= 0 {
		ceiling := math.Min(0.40, 0.06+(abs-0.10)*0.20)
		return math.Min(lift, ceiling)
	}
	reductionCap := math.Min(0.20, 0.06+(abs-0.10)*0.10)
	return math.Max(lift, -reductionCap)
}

// evidenceChurnLift is the weighted mean of observed treatment-minus-control
// churn deltas, scaled up when the query extrapolates well beyond the
// historical change range, then clamped to the evidence-regime caps.
func evidenceChurnLift(weighted []domain.WeightedEvent, pctChange float64) float64 {
	deltas := make([]simmath.Weighted, 0, len(weighted))
	magnitudes := make([]simmath.Weighted, 0, len(weighted))
	for _, w := range weighted {
		deltas = append(deltas, simmath.Weighted{
			Value:  w.Event.Churn90dTreat - w.Event.Churn90dControl,
			Weight: w.Weight,
		})
		magnitudes = append(magnitudes, simmath.Weighted{
			Value:  math.Abs(w.Event.PctChange),
			Weight: w.Weight,
		})
	}

	lift, totalWeight := simmath.WeightedMean(deltas)
	if totalWeight == 0 {
		return 0
	}

	abs := math.Abs(pctChange)
	if histAbs, _ := simmath.WeightedMean(magnitudes); histAbs > 0 {
		if ratio := abs / histAbs; ratio > extrapolationRatio {
			lift *= 1 + math.Max(0, (ratio-extrapolationRatio)*extrapolationScale)
		}
	}

	if pctChange >= 0 {
		ceiling := math.Min(0.50, 0.15+(abs-0.25)*0.70)
		return math.Min(lift, ceiling)
	}
	reductionCap := math.Min(0.30, 0.15+(abs-0.25)*0.30)
	return math.Max(lift, -reductionCap)
}

// applyShock blends churn toward the ceiling by the smoothstep weight.
func applyShock(churn, shockWeight, ceiling float64) float64 {
	return simmath.Clamp(churn+shockWeight*(ceiling-churn), 0, ceiling)
}

// applyRevenue fills the MRR/ARR point estimate and the range band.
// dataDriven is the pre-shock churn estimate used to rebuild the bounds.
func (s *Service) applyRevenue(res *domain.SimulationResult, plan datasetdomain.Plan, dataDriven float64, policy config.SimulationPolicy) {
	res.BaselineMRR = float64(plan.ActiveSubs) * (plan.PriceMonthly + plan.AddonARPUMonthly)
	res.NewMRR, res.NetMRRDelta, res.NetARRDelta = s.revenueAtChurn(res.ExpectedChurn90d, plan, res.NewPriceMonthly)

	if res.UsedHeuristic {
		band := heuristicRangeBand * math.Abs(res.NetARRDelta)
		res.ARRDeltaLow = res.NetARRDelta - band
		res.ARRDeltaHigh = res.NetARRDelta + band
		return
	}

	low := simmath.Clamp(dataDriven-evidenceChurnPerturbation, 0, dataDrivenChurnCap)
	high := simmath.Clamp(dataDriven+evidenceChurnPerturbation, 0, dataDrivenChurnCap)
	if res.AppliedPriceShock {
		low = applyShock(low, res.PriceShockWeight, policy.ChurnCeiling)
		high = applyShock(high, res.PriceShockWeight, policy.ChurnCeiling)
	}
	_, _, arrAtLowChurn := s.revenueAtChurn(low, plan, res.NewPriceMonthly)
	_, _, arrAtHighChurn := s.revenueAtChurn(high, plan, res.NewPriceMonthly)
	res.ARRDeltaLow = math.Min(arrAtLowChurn, arrAtHighChurn)
	res.ARRDeltaHigh = math.Max(arrAtLowChurn, arrAtHighChurn)
}

// revenueAtChurn recomputes MRR at a given expected churn level. Only churn
// incremental to the baseline reduces the retained base.
func (s *Service) revenueAtChurn(expectedChurn float64, plan datasetdomain.Plan, newPrice float64) (newMRR, netMRRDelta, netARRDelta float64) {
	subs := float64(plan.ActiveSubs)
	baselineMRR := subs * (plan.PriceMonthly + plan.AddonARPUMonthly)
	incrementalChurned := subs * math.Max(expectedChurn-plan.BaselineChurn90d, 0)
	retained := subs - incrementalChurned
	newMRR = retained * (newPrice + plan.AddonARPUMonthly)
	netMRRDelta = newMRR - baselineMRR
	netARRDelta = 12 * netMRRDelta
	return newMRR, netMRRDelta, netARRDelta
}

func confidenceFor(evidenceCount int, policy config.SimulationPolicy) domain.Confidence {
	switch {
	case evidenceCount >= policy.ConfidenceHighEvents:
		return domain.ConfidenceHigh
	case evidenceCount >= policy.ConfidenceMedEvents:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
