// Package domain contains the evidence-store entities consumed by the
// simulation engines. All values are immutable after generation.
package domain

import "time"

// Vertical classifies a merchant's business category.
type Vertical string

const (
	VerticalFitness Vertical = "fitness"
)

// BillingInterval is a plan's billing cadence.
type BillingInterval string

const (
	IntervalMonthly BillingInterval = "monthly"
	IntervalAnnual  BillingInterval = "annual"
)

// Intervention is the save flow presented during cancellation.
type Intervention string

const (
	InterventionNone      Intervention = "none"
	InterventionSurvey    Intervention = "survey"
	InterventionPause     Intervention = "pause"
	InterventionIncentive Intervention = "incentive"
)

// IncentiveStrength grades a save offer. Meaningful only when the
// intervention is InterventionIncentive; normalized to StrengthNone otherwise.
type IncentiveStrength string

const (
	StrengthNone   IncentiveStrength = "none"
	StrengthLight  IncentiveStrength = "light"
	StrengthMedium IncentiveStrength = "medium"
	StrengthHeavy  IncentiveStrength = "heavy"
)

// CancellationOutcome is the terminal state of a cancellation flow.
type CancellationOutcome string

const (
	OutcomeSaved    CancellationOutcome = "saved"
	OutcomeCanceled CancellationOutcome = "canceled"
)

// Merchant is a subscription business in the dataset.
type Merchant struct {
	ID       string
	Name     string
	Vertical Vertical
	// IsDefault marks the merchant used as the demo/test subject.
	IsDefault bool
}

// Plan captures a merchant's subscription offering and the baselines the
// engines simulate against. All rate fields are in [0, 1].
type Plan struct {
	ID               string
	MerchantID       string
	Name             string
	Interval         BillingInterval
	PriceMonthly     float64
	ActiveSubs       int
	BaselineChurn90d float64
	AddonARPUMonthly float64
	CreatedAt        time.Time

	BaselineCancelRate  float64
	PaymentFailRate     float64
	DunningRecoveryRate float64
	PauseAdoptionRate   float64
}

// PriceChangeEvent is one historical natural experiment: a price move with
// observed 90-day churn for the treated cohort and a holdout control.
type PriceChangeEvent struct {
	ID               string
	MerchantID       string
	PlanID           string
	EffectiveAt      time.Time
	OldPriceMonthly  float64
	NewPriceMonthly  float64
	PctChange        float64
	Churn90dTreat    float64
	Churn90dControl  float64
	Note             string
}

// CancellationEvent records one pass through a cancellation flow.
type CancellationEvent struct {
	ID                string
	MerchantID        string
	PlanID            string
	OccurredAt        time.Time
	Intervention      Intervention
	IncentiveStrength IncentiveStrength
	Outcome           CancellationOutcome
	// SavedLifetimeDays is set only when Outcome is OutcomeSaved.
	SavedLifetimeDays *int
}

// PaymentFailureEvent records one failed charge and its dunning outcome.
type PaymentFailureEvent struct {
	ID              string
	MerchantID      string
	PlanID          string
	OccurredAt      time.Time
	RetryCount      int
	RetryWindowDays int
	FallbackUsed    bool
	Recovered       bool
	// RecoveredDay is set only when Recovered is true.
	RecoveredDay *int
}

// PauseEvent records one subscriber pause and whether it ended in a resume.
type PauseEvent struct {
	ID           string
	MerchantID   string
	PlanID       string
	OccurredAt   time.Time
	PauseEnabled bool
	CyclesUsed   int
	Resumed      bool
	// ChurnedWithin90d is set only when Resumed is true.
	ChurnedWithin90d *bool
}

// Dataset is the aggregate root the engines read from. Generated once per
// session and treated as an immutable snapshot; safe for concurrent reads.
type Dataset struct {
	SnapshotID  string
	GeneratedAt time.Time
	Seed        int64

	Merchants       []Merchant
	Plans           []Plan
	PriceChanges    []PriceChangeEvent
	Cancellations   []CancellationEvent
	PaymentFailures []PaymentFailureEvent
	Pauses          []PauseEvent
}

// DefaultMerchant returns the merchant flagged as the demo subject, falling
// back to the first merchant when none is flagged.
func (d *Dataset) DefaultMerchant() (Merchant, bool) {
	for _, m := range d.Merchants {
		if m.IsDefault {
			return m, true
		}
	}
	if len(d.Merchants) > 0 {
		return d.Merchants[0], true
	}
	return Merchant{}, false
}
