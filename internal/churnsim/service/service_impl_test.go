package service

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/smallbiznis/revlift/internal/churnsim/domain"
	"github.com/smallbiznis/revlift/internal/config"
	"github.com/smallbiznis/revlift/internal/dataset"
	datasetdomain "github.com/smallbiznis/revlift/internal/dataset/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func leverPlan() datasetdomain.Plan {
	return datasetdomain.Plan{
		ID:                  "p1",
		MerchantID:          "m1",
		Name:                "Growth",
		Interval:            datasetdomain.IntervalMonthly,
		PriceMonthly:        20,
		AddonARPUMonthly:    5,
		ActiveSubs:          1000,
		BaselineChurn90d:    0.05,
		BaselineCancelRate:  0.04,
		PaymentFailRate:     0.03,
		DunningRecoveryRate: 0.40,
		PauseAdoptionRate:   0.25,
	}
}

func leverDataset() *datasetdomain.Dataset {
	return &datasetdomain.Dataset{
		Merchants: []datasetdomain.Merchant{
			{ID: "m1", Name: "Summit", IsDefault: true},
			{ID: "m2", Name: "Harborline"},
		},
		Plans: []datasetdomain.Plan{leverPlan()},
	}
}

// saveEvents builds n cancellation events on plan p1 with the given
// intervention, of which saved end in a save.
func saveEvents(n, saved int, iv datasetdomain.Intervention, strength datasetdomain.IncentiveStrength) []datasetdomain.CancellationEvent {
	out := make([]datasetdomain.CancellationEvent, 0, n)
	for i := 0; i < n; i++ {
		outcome := datasetdomain.OutcomeCanceled
		if i < saved {
			outcome = datasetdomain.OutcomeSaved
		}
		out = append(out, datasetdomain.CancellationEvent{
			ID:                fmt.Sprintf("c-%s-%d", iv, i),
			MerchantID:        "m1",
			PlanID:            "p1",
			Intervention:      iv,
			IncentiveStrength: strength,
			Outcome:           outcome,
		})
	}
	return out
}

// retryEvents builds n payment failure events on plan p1 with the given retry
// schedule, of which recovered succeed.
func retryEvents(n, recovered, retries, windowDays int, fallback bool) []datasetdomain.PaymentFailureEvent {
	out := make([]datasetdomain.PaymentFailureEvent, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, datasetdomain.PaymentFailureEvent{
			ID:              fmt.Sprintf("f-%d-%d", retries, i),
			MerchantID:      "m1",
			PlanID:          "p1",
			RetryCount:      retries,
			RetryWindowDays: windowDays,
			FallbackUsed:    fallback,
			Recovered:       i < recovered,
		})
	}
	return out
}

func newLeverService(t *testing.T, ds *datasetdomain.Dataset) *Service {
	t.Helper()
	return &Service{
		store:  dataset.NewStore(ds),
		log:    zaptest.NewLogger(t).Named("churnsim"),
		policy: config.NewStaticPolicyHolder(config.DefaultSimulationPolicy()),
	}
}

func TestSimulateChurnPlanNotFound(t *testing.T) {
	svc := newLeverService(t, leverDataset())

	_, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m1",
		PlanID:     "missing",
	})
	assert.ErrorIs(t, err, datasetdomain.ErrPlanNotFound)

	_, err = svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m2",
		PlanID:     "p1",
	})
	assert.ErrorIs(t, err, datasetdomain.ErrPlanNotFound)
}

func TestSimulateChurnBaselines(t *testing.T) {
	svc := newLeverService(t, leverDataset())

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m1",
		PlanID:     "p1",
	})
	require.NoError(t, err)

	assert.InDelta(t, 40.0, res.ExpectedCancels, 1e-9)
	assert.InDelta(t, 30.0, res.ExpectedPaymentFailures, 1e-9)
	assert.InDelta(t, 18.0, res.ExpectedDunningLosses, 1e-9)
}

func TestSimulateChurnCancellationLift(t *testing.T) {
	ds := leverDataset()
	ds.Cancellations = append(
		saveEvents(10, 4, datasetdomain.InterventionIncentive, datasetdomain.StrengthLight),
		saveEvents(10, 1, datasetdomain.InterventionNone, datasetdomain.StrengthNone)...,
	)
	svc := newLeverService(t, ds)

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m1",
		PlanID:     "p1",
		Cancellation: domain.CancellationLever{
			Intervention:      datasetdomain.InterventionIncentive,
			IncentiveStrength: datasetdomain.StrengthLight,
		},
	})
	require.NoError(t, err)

	// 40% matched save rate against a 10% no-intervention arm.
	assert.InDelta(t, 0.30, res.Cancellation.Lift, 1e-9)
	assert.InDelta(t, 12.0, res.Cancellation.SavedSubs, 1e-9)
	assert.Equal(t, 10, res.Cancellation.MatchingEvents)
}

func TestSimulateChurnSaveLiftClamped(t *testing.T) {
	ds := leverDataset()
	ds.Cancellations = append(
		saveEvents(10, 10, datasetdomain.InterventionSurvey, datasetdomain.StrengthNone),
		saveEvents(10, 0, datasetdomain.InterventionNone, datasetdomain.StrengthNone)...,
	)
	svc := newLeverService(t, ds)

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID:   "m1",
		PlanID:       "p1",
		Cancellation: domain.CancellationLever{Intervention: datasetdomain.InterventionSurvey},
	})
	require.NoError(t, err)

	assert.InDelta(t, saveLiftMax, res.Cancellation.Lift, 1e-9)
}

func TestSimulateChurnNegativeLiftNotZeroed(t *testing.T) {
	ds := leverDataset()
	ds.Cancellations = append(
		saveEvents(10, 0, datasetdomain.InterventionSurvey, datasetdomain.StrengthNone),
		saveEvents(10, 2, datasetdomain.InterventionNone, datasetdomain.StrengthNone)...,
	)
	svc := newLeverService(t, ds)

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID:   "m1",
		PlanID:       "p1",
		Cancellation: domain.CancellationLever{Intervention: datasetdomain.InterventionSurvey},
	})
	require.NoError(t, err)

	// A configuration that underperforms doing nothing must show up as a
	// loss, clamped at the guard floor.
	assert.InDelta(t, saveLiftMin, res.Cancellation.Lift, 1e-9)
	assert.InDelta(t, 40*saveLiftMin, res.Cancellation.SavedSubs, 1e-9)
	assert.Less(t, res.EffectiveSavedSubs, 0.0)
	assert.Less(t, res.RecoveredARR, 0.0)
}

func TestSimulateChurnFallbackNoneRate(t *testing.T) {
	ds := leverDataset()
	ds.Cancellations = saveEvents(10, 2, datasetdomain.InterventionSurvey, datasetdomain.StrengthNone)
	svc := newLeverService(t, ds)

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID:   "m1",
		PlanID:       "p1",
		Cancellation: domain.CancellationLever{Intervention: datasetdomain.InterventionSurvey},
	})
	require.NoError(t, err)

	// No no-intervention events, so the arm falls back to the assumed 5%.
	assert.InDelta(t, 0.20-fallbackNoneSaveRate, res.Cancellation.Lift, 1e-9)
}

func TestSimulateChurnDunningLift(t *testing.T) {
	ds := leverDataset()
	ds.PaymentFailures = append(
		retryEvents(10, 6, 5, 14, false),
		retryEvents(10, 2, baselineRetries, baselineRetryWindow, false)...,
	)
	svc := newLeverService(t, ds)

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m1",
		PlanID:     "p1",
		Dunning:    domain.DunningLever{Retries: 5, RetryWindowDays: 14},
	})
	require.NoError(t, err)

	// 60% recovery at (5, 14) against 20% at the (3, 7) baseline.
	assert.InDelta(t, 0.40, res.Dunning.Lift, 1e-9)
	assert.InDelta(t, 18*0.40, res.Dunning.SavedSubs, 1e-9)
	assert.Equal(t, 10, res.Dunning.MatchingEvents)
}

func TestSimulateChurnDunningBaselineFallback(t *testing.T) {
	ds := leverDataset()
	ds.PaymentFailures = retryEvents(10, 6, 5, 14, false)
	svc := newLeverService(t, ds)

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m1",
		PlanID:     "p1",
		Dunning:    domain.DunningLever{Retries: 5, RetryWindowDays: 14},
	})
	require.NoError(t, err)

	// No baseline-config events, so the plan's recovery rate stands in.
	assert.InDelta(t, 0.60-0.40, res.Dunning.Lift, 1e-9)
}

func TestSimulateChurnPauseLever(t *testing.T) {
	churned := true
	kept := false
	ds := leverDataset()
	ds.Pauses = []datasetdomain.PauseEvent{
		{ID: "pe1", MerchantID: "m1", PlanID: "p1", PauseEnabled: true, CyclesUsed: 1, Resumed: true, ChurnedWithin90d: &kept},
		{ID: "pe2", MerchantID: "m1", PlanID: "p1", PauseEnabled: true, CyclesUsed: 3, Resumed: true, ChurnedWithin90d: &kept},
		{ID: "pe3", MerchantID: "m1", PlanID: "p1", PauseEnabled: true, CyclesUsed: 2, Resumed: true, ChurnedWithin90d: &churned},
		{ID: "pe4", MerchantID: "m1", PlanID: "p1", PauseEnabled: true, CyclesUsed: 1, Resumed: false},
	}
	svc := newLeverService(t, ds)

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m1",
		PlanID:     "p1",
		Pause:      domain.PauseLever{Enabled: true, MaxCycles: 2},
	})
	require.NoError(t, err)

	// pe2 exceeds the cycle cap; of the rest only pe1 resumed and stayed.
	assert.Equal(t, 3, res.Pause.MatchingEvents)
	assert.InDelta(t, 1.0/3.0, res.Pause.Lift, 1e-9)
	assert.InDelta(t, 40*0.25*(1.0/3.0), res.Pause.SavedSubs, 1e-9)
}

func TestSimulateChurnPauseDisabled(t *testing.T) {
	kept := false
	ds := leverDataset()
	ds.Pauses = []datasetdomain.PauseEvent{
		{ID: "pe1", MerchantID: "m1", PlanID: "p1", PauseEnabled: true, CyclesUsed: 1, Resumed: true, ChurnedWithin90d: &kept},
	}
	svc := newLeverService(t, ds)

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m1",
		PlanID:     "p1",
	})
	require.NoError(t, err)

	assert.Zero(t, res.Pause.Lift)
	assert.Zero(t, res.Pause.SavedSubs)
	assert.Zero(t, res.Pause.MatchingEvents)
}

func TestSimulateChurnDisabledPauseConfigInert(t *testing.T) {
	svc := newLeverService(t, leverDataset())

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m1",
		PlanID:     "p1",
		Pause:      domain.PauseLever{Enabled: false, MaxCycles: 6},
	})
	require.NoError(t, err)

	// Cycle count on a disabled pause lever contributes neither fatigue
	// nor the aggressive-configuration warning.
	assert.Zero(t, res.FatigueDiscount)
	assert.Empty(t, res.Warnings)
}

func TestSimulateChurnFatigueCapped(t *testing.T) {
	svc := newLeverService(t, leverDataset())

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m1",
		PlanID:     "p1",
		Cancellation: domain.CancellationLever{
			Intervention:      datasetdomain.InterventionIncentive,
			IncentiveStrength: datasetdomain.StrengthHeavy,
		},
		Dunning: domain.DunningLever{Retries: 8, RetryWindowDays: 25, FallbackEnabled: true},
		Pause:   domain.PauseLever{Enabled: true, MaxCycles: 5},
	})
	require.NoError(t, err)

	// 0.20 + 0.10 + 0.10 + 0.05 + 0.10 overshoots the cap.
	assert.InDelta(t, 0.50, res.FatigueDiscount, 1e-9)
	assert.Contains(t, res.Warnings, OverExtrapolationWarning)
}

func TestSimulateChurnFatigueDiscountsSavings(t *testing.T) {
	ds := leverDataset()
	ds.Cancellations = append(
		saveEvents(10, 10, datasetdomain.InterventionIncentive, datasetdomain.StrengthHeavy),
		saveEvents(10, 1, datasetdomain.InterventionNone, datasetdomain.StrengthNone)...,
	)
	svc := newLeverService(t, ds)

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m1",
		PlanID:     "p1",
		Cancellation: domain.CancellationLever{
			Intervention:      datasetdomain.InterventionIncentive,
			IncentiveStrength: datasetdomain.StrengthHeavy,
		},
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.20, res.FatigueDiscount, 1e-9)
	raw := res.Cancellation.SavedSubs + res.Dunning.SavedSubs + res.Pause.SavedSubs
	assert.InDelta(t, raw*0.80, res.EffectiveSavedSubs, 1e-9)
}

func TestSimulateChurnRevenueAndReduction(t *testing.T) {
	ds := leverDataset()
	ds.Cancellations = append(
		saveEvents(10, 4, datasetdomain.InterventionIncentive, datasetdomain.StrengthLight),
		saveEvents(10, 1, datasetdomain.InterventionNone, datasetdomain.StrengthNone)...,
	)
	svc := newLeverService(t, ds)

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m1",
		PlanID:     "p1",
		Cancellation: domain.CancellationLever{
			Intervention:      datasetdomain.InterventionIncentive,
			IncentiveStrength: datasetdomain.StrengthLight,
		},
	})
	require.NoError(t, err)

	// 12 saved subs at $25 effective ARPU.
	assert.InDelta(t, 12*25.0, res.RecoveredMRR, 1e-9)
	assert.InDelta(t, 12*res.RecoveredMRR, res.RecoveredARR, 1e-9)
	assert.InDelta(t, (12.0/58.0)*0.05*100, res.ChurnReductionPts, 1e-9)
}

func TestSimulateChurnConfidenceRanges(t *testing.T) {
	tests := []struct {
		name     string
		events   int
		want     domain.Confidence
		wantBand float64
	}{
		{name: "low", events: 10, want: domain.ConfidenceLow, wantBand: 0.50},
		{name: "medium", events: 30, want: domain.ConfidenceMedium, wantBand: 0.30},
		{name: "high", events: 100, want: domain.ConfidenceHigh, wantBand: 0.15},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := leverDataset()
			ds.Cancellations = saveEvents(tt.events, tt.events/2, datasetdomain.InterventionSurvey, datasetdomain.StrengthNone)
			svc := newLeverService(t, ds)

			res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
				MerchantID:   "m1",
				PlanID:       "p1",
				Cancellation: domain.CancellationLever{Intervention: datasetdomain.InterventionSurvey},
			})
			require.NoError(t, err)

			assert.Equal(t, tt.events, res.EvidenceCount)
			assert.Equal(t, tt.want, res.Confidence)
			band := tt.wantBand * math.Abs(res.RecoveredARR)
			assert.InDelta(t, res.RecoveredARR-band, res.RecoveredARRLow, 1e-9)
			assert.InDelta(t, res.RecoveredARR+band, res.RecoveredARRHigh, 1e-9)
		})
	}
}

func TestSimulateChurnSavedShareWarning(t *testing.T) {
	ds := leverDataset()
	ds.Cancellations = saveEvents(10, 10, datasetdomain.InterventionSurvey, datasetdomain.StrengthNone)
	ds.PaymentFailures = retryEvents(10, 10, 5, 14, false)
	svc := newLeverService(t, ds)

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID:   "m1",
		PlanID:       "p1",
		Cancellation: domain.CancellationLever{Intervention: datasetdomain.InterventionSurvey},
		Dunning:      domain.DunningLever{Retries: 5, RetryWindowDays: 14},
	})
	require.NoError(t, err)

	// Nothing aggressive is configured; the projected share alone trips it,
	// and only once.
	share := res.EffectiveSavedSubs / (res.ExpectedCancels + res.ExpectedDunningLosses)
	assert.Greater(t, share, 0.30)
	assert.Equal(t, []string{OverExtrapolationWarning}, res.Warnings)
}

func TestSimulateChurnZeroAddressableBase(t *testing.T) {
	ds := leverDataset()
	ds.Plans[0].BaselineCancelRate = 0
	ds.Plans[0].PaymentFailRate = 0
	svc := newLeverService(t, ds)

	res, err := svc.SimulateChurn(context.Background(), domain.ChurnSimulationInput{
		MerchantID: "m1",
		PlanID:     "p1",
	})
	require.NoError(t, err)

	assert.Zero(t, res.ChurnReductionPts)
	assert.False(t, math.IsNaN(res.ChurnReductionPts))
}
