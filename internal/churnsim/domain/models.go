// Package domain defines the contract of the churn lever simulation engine.
package domain

import (
	"context"

	datasetdomain "github.com/smallbiznis/revlift/internal/dataset/domain"
)

// Confidence grades how much historical evidence backs an estimate.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// CancellationLever configures the save flow shown during cancellation.
// IncentiveStrength is meaningful only when Intervention is incentive and is
// normalized to none otherwise.
type CancellationLever struct {
	Intervention      datasetdomain.Intervention
	IncentiveStrength datasetdomain.IncentiveStrength
}

// DunningLever configures failed-payment retry behavior.
type DunningLever struct {
	Retries         int
	RetryWindowDays int
	FallbackEnabled bool
}

// PauseLever configures the subscription pause offering.
type PauseLever struct {
	Enabled   bool
	MaxCycles int
}

// ChurnSimulationInput is one retention scenario to evaluate.
type ChurnSimulationInput struct {
	MerchantID string
	PlanID     string

	Cancellation CancellationLever
	Dunning      DunningLever
	Pause        PauseLever
}

// LeverImpact is the per-lever contribution to the combined estimate.
type LeverImpact struct {
	// Lift is the empirical rate improvement over the lever's baseline,
	// clamped to the lever-specific guard range. Negative when the
	// configuration underperforms the baseline.
	Lift float64
	// SavedSubs is the subscribers recovered by this lever before the
	// fatigue discount.
	SavedSubs float64
	// MatchingEvents counts historical events matching the exact
	// configuration, across merchant and global pools.
	MatchingEvents int
}

// ChurnSimulationResult is the combined retention estimate.
type ChurnSimulationResult struct {
	MerchantID string
	PlanID     string

	ExpectedCancels         float64
	ExpectedPaymentFailures float64
	ExpectedDunningLosses   float64

	Cancellation LeverImpact
	Dunning      LeverImpact
	Pause        LeverImpact

	// FatigueDiscount is the penalty for stacking aggressive settings,
	// in [0, 0.5].
	FatigueDiscount    float64
	EffectiveSavedSubs float64

	RecoveredMRR     float64
	RecoveredARR     float64
	RecoveredARRLow  float64
	RecoveredARRHigh float64

	// ChurnReductionPts is the projected 90-day churn reduction in
	// percentage points.
	ChurnReductionPts float64

	Confidence    Confidence
	EvidenceCount int
	Warnings      []string
}

// Service estimates recovered revenue from retention lever combinations.
type Service interface {
	// SimulateChurn evaluates one lever configuration. Returns
	// datasetdomain.ErrPlanNotFound (wrapped) when the plan id does not
	// resolve.
	SimulateChurn(ctx context.Context, in ChurnSimulationInput) (*ChurnSimulationResult, error)
}
