// Package domain defines the contract of the price simulation engine.
package domain

import (
	datasetdomain "github.com/smallbiznis/revlift/internal/dataset/domain"
)

// Confidence grades how much historical evidence backs an estimate.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// SimulationInput describes a hypothetical price move to evaluate.
type SimulationInput struct {
	MerchantID          string
	PlanID              string
	NewPriceMonthly     float64
	UseGlobalBenchmarks bool
}

// WeightedEvent is a comparable historical event with its computed weight.
type WeightedEvent struct {
	Event datasetdomain.PriceChangeEvent
	// Weight folds similarity, pool share, and (for global events) price
	// proximity. Similarity is the pure change-comparability score.
	Weight     float64
	Similarity float64
	// Global marks events borrowed from other merchants.
	Global bool
}

// SimulationResult is the estimator output: point estimate, range,
// confidence, and the evidence that produced it.
type SimulationResult struct {
	MerchantID          string
	PlanID              string
	CurrentPriceMonthly float64
	NewPriceMonthly     float64
	PctChange           float64

	BaselineChurn90d float64
	ExpectedChurn90d float64
	ChurnLift        float64

	BaselineMRR  float64
	NewMRR       float64
	NetMRRDelta  float64
	NetARRDelta  float64
	ARRDeltaLow  float64
	ARRDeltaHigh float64

	Confidence        Confidence
	UsedHeuristic     bool
	AppliedPriceShock bool
	PriceShockWeight  float64
	Note              string

	EvidenceCount int
	TopEvents     []WeightedEvent
}
