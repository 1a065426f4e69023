// Package service implements the price optimization sweep, a pure client of
// the price simulation engine.
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
	"github.com/smallbiznis/revlift/internal/priceopt/domain"
	pricesimdomain "github.com/smallbiznis/revlift/internal/pricesim/domain"
	"github.com/smallbiznis/revlift/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Fallback window scanned for minimum churn when no swept point satisfies
// the ARR downside constraint.
const (
	fallbackWindowLow  = 0.50
	fallbackWindowHigh = 1.50
)

// Params collects the sweep dependencies.
type Params struct {
	fx.In

	Store   *dataset.Store
	Sim     pricesimdomain.Service
	Log     *zap.Logger
	Policy  *config.PolicyHolder
	Metrics *telemetry.Metrics `optional:"true"`
}

// Service is the price optimization sweep.
type Service struct {
	store   *dataset.Store
	sim     pricesimdomain.Service
	log     *zap.Logger
	policy  *config.PolicyHolder
	metrics *telemetry.Metrics
}

var _ domain.Service = (*Service)(nil)

// New constructs the sweep service.
func New(p Params) domain.Service {
	return &Service{
		store:   p.Store,
		sim:     p.Sim,
		log:     p.Log.Named("priceopt"),
		policy:  p.Policy,
		metrics: p.Metrics,
	}
}

// FindOptimalPrice sweeps evenly spaced candidate prices and tracks the
// ARR-optimal, churn-optimal, and current-price points.
func (s *Service) FindOptimalPrice(ctx context.Context, in domain.OptimizationInput) (*domain.OptimizationResult, error) {
	start := time.Now()

	plan, err := s.store.PlanByID(in.PlanID)
	if err != nil {
		return nil, fmt.Errorf("priceopt: plan %q: %w", in.PlanID, err)
	}
	if in.MerchantID != "" && plan.MerchantID != in.MerchantID {
		return nil, fmt.Errorf("priceopt: plan %q not owned by merchant %q: %w",
			in.PlanID, in.MerchantID, datasetdomain.ErrPlanNotFound)
	}

	policy := s.policy.Policy()
	steps := in.Steps
	if steps <= 0 {
		steps = policy.SweepSteps
	}
	rangeLow, rangeHigh := in.RangeLow, in.RangeHigh
	if rangeLow == 0 && rangeHigh == 0 {
		rangeLow, rangeHigh = policy.SweepRangeLow, policy.SweepRangeHigh
	}

	current := plan.PriceMonthly
	minPrice := current * (1 + rangeLow)
	maxPrice := current * (1 + rangeHigh)
	stepWidth := (maxPrice - minPrice) / float64(steps)
	floor := policy.PriceFloorRatio * current
	baselineARR := 12 * float64(plan.ActiveSubs) * (plan.PriceMonthly + plan.AddonARPUMonthly)

	var sims []*pricesimdomain.SimulationResult
	for i := 0; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		price := minPrice + stepWidth*float64(i)
		if price <= 0 || price < floor {
			continue
		}
		res, err := s.simulateAt(ctx, in, price)
		if err != nil {
			// A single failed point never aborts the sweep.
			s.metrics.RecordSweepPoint("failed")
			s.log.Warn("skipping failed sweep point",
				zap.String("plan_id", in.PlanID),
				zap.Float64("price", price),
				zap.Error(err),
			)
			continue
		}
		s.metrics.RecordSweepPoint("ok")
		sims = append(sims, res)
	}

	out := &domain.OptimizationResult{
		MerchantID:          plan.MerchantID,
		PlanID:              plan.ID,
		CurrentPriceMonthly: current,
	}
	for _, r := range sims {
		out.Points = append(out.Points, domain.PricePoint{
			PriceMonthly:     r.NewPriceMonthly,
			NetARRDelta:      r.NetARRDelta,
			ExpectedChurn90d: r.ExpectedChurn90d,
		})
	}
	sort.Slice(out.Points, func(i, j int) bool {
		return out.Points[i].PriceMonthly < out.Points[j].PriceMonthly
	})

	out.ARROptimal = arrOptimal(sims)
	out.ChurnOptimal, out.ChurnOptimalConstrained = churnOptimal(sims, current, baselineARR, policy)
	out.CurrentSnapshot = s.currentSnapshot(ctx, in, sims, current, stepWidth)

	s.metrics.RecordSimulation("priceopt", "sweep", time.Since(start))
	s.log.Debug("completed price sweep",
		zap.String("plan_id", plan.ID),
		zap.Int("points", len(out.Points)),
		zap.Bool("churn_optimal_constrained", out.ChurnOptimalConstrained),
	)
	return out, nil
}

func (s *Service) simulateAt(ctx context.Context, in domain.OptimizationInput, price float64) (*pricesimdomain.SimulationResult, error) {
	return s.sim.Simulate(ctx, pricesimdomain.SimulationInput{
		MerchantID:          in.MerchantID,
		PlanID:              in.PlanID,
		NewPriceMonthly:     price,
		UseGlobalBenchmarks: in.UseGlobalBenchmarks,
	})
}

// arrOptimal keeps the first point on strict improvement, so ties resolve to
// the lowest swept price.
func arrOptimal(sims []*pricesimdomain.SimulationResult) *pricesimdomain.SimulationResult {
	var best *pricesimdomain.SimulationResult
	for _, r := range sims {
		if best == nil || r.NetARRDelta > best.NetARRDelta {
			best = r
		}
	}
	return best
}

// churnOptimal minimizes expected churn subject to the ARR downside
// constraint; when nothing qualifies it rescans a 50%-150% window around the
// current price ignoring the constraint.
func churnOptimal(sims []*pricesimdomain.SimulationResult, current, baselineARR float64, policy config.SimulationPolicy) (*pricesimdomain.SimulationResult, bool) {
	var best *pricesimdomain.SimulationResult
	for _, r := range sims {
		if r.NetARRDelta < -policy.MaxARRDownside*baselineARR {
			continue
		}
		if best == nil || r.ExpectedChurn90d < best.ExpectedChurn90d {
			best = r
		}
	}
	if best != nil {
		return best, true
	}

	for _, r := range sims {
		if r.NewPriceMonthly < fallbackWindowLow*current || r.NewPriceMonthly > fallbackWindowHigh*current {
			continue
		}
		if best == nil || r.ExpectedChurn90d < best.ExpectedChurn90d {
			best = r
		}
	}
	return best, false
}

// currentSnapshot picks the swept point closest to the unchanged price when
// one lies within half a step; otherwise it simulates the exact current
// price directly, reusing the nearest swept point if even that fails.
func (s *Service) currentSnapshot(ctx context.Context, in domain.OptimizationInput, sims []*pricesimdomain.SimulationResult, current, stepWidth float64) *pricesimdomain.SimulationResult {
	var nearest *pricesimdomain.SimulationResult
	bestDist := math.Inf(1)
	for _, r := range sims {
		if d := math.Abs(r.NewPriceMonthly - current); d < bestDist {
			bestDist = d
			nearest = r
		}
	}
	if nearest != nil && bestDist <= stepWidth/2 {
		return nearest
	}

	direct, err := s.simulateAt(ctx, in, current)
	if err != nil {
		s.log.Warn("current-price snapshot simulation failed; reusing nearest sweep point",
			zap.String("plan_id", in.PlanID),
			zap.Error(err),
		)
		return nearest
	}
	return direct
}
