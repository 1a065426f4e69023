package domain

import "context"

// Service estimates churn and revenue impact of a hypothetical price change.
type Service interface {
	// Simulate evaluates one price point. Returns
	// datasetdomain.ErrPlanNotFound (wrapped) when the plan id does not
	// resolve; callers must validate ids before invoking.
	Simulate(ctx context.Context, in SimulationInput) (*SimulationResult, error)
}
