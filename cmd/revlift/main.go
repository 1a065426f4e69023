package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/revlift/internal/churnsim"
	churnsimdomain "github.com/smallbiznis/revlift/internal/churnsim/domain"
	"github.com/smallbiznis/revlift/internal/config"
	"github.com/smallbiznis/revlift/internal/dataset"
	datasetdomain "github.com/smallbiznis/revlift/internal/dataset/domain"
	"github.com/smallbiznis/revlift/internal/logger"
	"github.com/smallbiznis/revlift/internal/priceopt"
	priceoptdomain "github.com/smallbiznis/revlift/internal/priceopt/domain"
	"github.com/smallbiznis/revlift/internal/pricesim"
	pricesimdomain "github.com/smallbiznis/revlift/internal/pricesim/domain"
	"github.com/smallbiznis/revlift/internal/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		telemetry.Module,
		dataset.Module,

		// Estimation Engines
		pricesim.Module,
		priceopt.Module,
		churnsim.Module,

		fx.Invoke(runReport),
	)
	app.Run()
}

// ReportParams collects everything the demo report needs.
type ReportParams struct {
	fx.In

	Cfg        config.Config
	Store      *dataset.Store
	Sim        pricesimdomain.Service
	Opt        priceoptdomain.Service
	Churn      churnsimdomain.Service
	Log        *zap.Logger
	Shutdowner fx.Shutdowner
}

// runReport simulates a +20% repricing, sweeps for optimal prices, and
// evaluates a retention lever bundle for the default merchant's first monthly
// plan, then shuts the app down.
func runReport(lc fx.Lifecycle, p ReportParams) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := report(context.Background(), p); err != nil {
					p.Log.Error("demo report failed", zap.Error(err))
				}
				_ = p.Shutdowner.Shutdown()
			}()
			return nil
		},
	})
}

func report(ctx context.Context, p ReportParams) error {
	log := p.Log.Named("report")

	merchant, ok := p.Store.Dataset().DefaultMerchant()
	if !ok {
		return errors.New("dataset_has_no_merchants")
	}
	plan, err := demoPlan(p.Store, merchant.ID)
	if err != nil {
		return err
	}
	log.Info("demo subject",
		zap.String("merchant", merchant.Name),
		zap.String("plan", plan.Name),
		zap.Float64("price_monthly", plan.PriceMonthly),
		zap.Int("active_subs", plan.ActiveSubs),
	)

	sim, err := p.Sim.Simulate(ctx, pricesimdomain.SimulationInput{
		MerchantID:          merchant.ID,
		PlanID:              plan.ID,
		NewPriceMonthly:     plan.PriceMonthly * 1.20,
		UseGlobalBenchmarks: p.Cfg.Demo.UseGlobalBenchmarks,
	})
	if err != nil {
		return fmt.Errorf("price simulation: %w", err)
	}
	log.Info("price simulation (+20%)",
		zap.Float64("new_price", sim.NewPriceMonthly),
		zap.Float64("expected_churn_90d", sim.ExpectedChurn90d),
		zap.Float64("churn_lift", sim.ChurnLift),
		zap.Float64("net_arr_delta", sim.NetARRDelta),
		zap.Float64("arr_delta_low", sim.ARRDeltaLow),
		zap.Float64("arr_delta_high", sim.ARRDeltaHigh),
		zap.String("confidence", string(sim.Confidence)),
		zap.Bool("used_heuristic", sim.UsedHeuristic),
		zap.Bool("price_shock", sim.AppliedPriceShock),
		zap.Int("evidence_count", sim.EvidenceCount),
	)

	opt, err := p.Opt.FindOptimalPrice(ctx, priceoptdomain.OptimizationInput{
		MerchantID:          merchant.ID,
		PlanID:              plan.ID,
		UseGlobalBenchmarks: p.Cfg.Demo.UseGlobalBenchmarks,
	})
	if err != nil {
		return fmt.Errorf("price optimization: %w", err)
	}
	if opt.ARROptimal != nil {
		log.Info("arr-optimal price",
			zap.Float64("price", opt.ARROptimal.NewPriceMonthly),
			zap.Float64("net_arr_delta", opt.ARROptimal.NetARRDelta),
			zap.Float64("expected_churn_90d", opt.ARROptimal.ExpectedChurn90d),
		)
	}
	if opt.ChurnOptimal != nil {
		log.Info("churn-optimal price",
			zap.Float64("price", opt.ChurnOptimal.NewPriceMonthly),
			zap.Float64("expected_churn_90d", opt.ChurnOptimal.ExpectedChurn90d),
			zap.Bool("arr_constrained", opt.ChurnOptimalConstrained),
		)
	}

	churn, err := p.Churn.SimulateChurn(ctx, churnsimdomain.ChurnSimulationInput{
		MerchantID: merchant.ID,
		PlanID:     plan.ID,
		Cancellation: churnsimdomain.CancellationLever{
			Intervention:      datasetdomain.InterventionIncentive,
			IncentiveStrength: datasetdomain.StrengthMedium,
		},
		Dunning: churnsimdomain.DunningLever{Retries: 5, RetryWindowDays: 14, FallbackEnabled: true},
		Pause:   churnsimdomain.PauseLever{Enabled: true, MaxCycles: 2},
	})
	if err != nil {
		return fmt.Errorf("churn simulation: %w", err)
	}
	log.Info("retention lever bundle",
		zap.Float64("effective_saved_subs", churn.EffectiveSavedSubs),
		zap.Float64("recovered_arr", churn.RecoveredARR),
		zap.Float64("recovered_arr_low", churn.RecoveredARRLow),
		zap.Float64("recovered_arr_high", churn.RecoveredARRHigh),
		zap.Float64("churn_reduction_pts", churn.ChurnReductionPts),
		zap.Float64("fatigue_discount", churn.FatigueDiscount),
		zap.String("confidence", string(churn.Confidence)),
		zap.Strings("warnings", churn.Warnings),
	)
	return nil
}

// demoPlan prefers a monthly plan so MRR figures read naturally.
func demoPlan(store *dataset.Store, merchantID string) (datasetdomain.Plan, error) {
	plans := store.PlansForMerchant(merchantID)
	if len(plans) == 0 {
		return datasetdomain.Plan{}, fmt.Errorf("merchant %q: %w", merchantID, datasetdomain.ErrPlanNotFound)
	}
	for _, pl := range plans {
		if pl.Interval == datasetdomain.IntervalMonthly {
			return pl, nil
		}
	}
	return plans[0], nil
}
