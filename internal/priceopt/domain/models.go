// Package domain defines the contract of the price optimization sweep.
package domain

import (
	"context"

	pricesimdomain "github.com/smallbiznis/revlift/internal/pricesim/domain"
)

// OptimizationInput selects the plan to sweep and optionally overrides the
// sweep geometry. Zero Steps and a zero range fall back to policy defaults.
type OptimizationInput struct {
	MerchantID          string
	PlanID              string
	UseGlobalBenchmarks bool

	// RangeLow/RangeHigh are price multipliers relative to the current
	// price, e.g. -0.5 and 1.0 sweep 50% to 200% of current.
	RangeLow  float64
	RangeHigh float64
	Steps     int
}

// PricePoint is one evaluated price with its projected impact.
type PricePoint struct {
	PriceMonthly     float64
	NetARRDelta      float64
	ExpectedChurn90d float64
}

// OptimizationResult carries the swept curve and the three summary points.
type OptimizationResult struct {
	MerchantID          string
	PlanID              string
	CurrentPriceMonthly float64

	// Points is sorted by price ascending. Points that failed to evaluate
	// are absent.
	Points []PricePoint

	// ARROptimal maximizes net ARR delta.
	ARROptimal *pricesimdomain.SimulationResult
	// ChurnOptimal minimizes expected churn subject to the ARR downside
	// constraint; ChurnOptimalConstrained reports whether the constraint
	// held or the unconstrained fallback window was used.
	ChurnOptimal            *pricesimdomain.SimulationResult
	ChurnOptimalConstrained bool
	// CurrentSnapshot is the simulation at (or nearest to) the unchanged
	// current price.
	CurrentSnapshot *pricesimdomain.SimulationResult
}

// Service locates ARR-maximizing and churn-minimizing prices for a plan.
type Service interface {
	// FindOptimalPrice sweeps candidate prices through the price
	// simulation engine. Individual point failures are skipped; a missing
	// plan id fails the whole sweep.
	FindOptimalPrice(ctx context.Context, in OptimizationInput) (*OptimizationResult, error)
}
