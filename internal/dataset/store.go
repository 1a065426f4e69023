// Package dataset exposes the generated evidence snapshot to the simulation
// engines through read-only lookup and filter helpers.
package dataset

import (
	"github.com/smallbiznis/revlift/internal/dataset/domain"
)

// Store wraps an immutable dataset snapshot with indexed lookups. All methods
// are safe for concurrent use; the underlying dataset is never mutated.
type Store struct {
	ds        *domain.Dataset
	plans     map[string]domain.Plan
	merchants map[string]domain.Merchant
}

// NewStore indexes the snapshot for id lookups.
func NewStore(ds *domain.Dataset) *Store {
	s := &Store{
		ds:        ds,
		plans:     make(map[string]domain.Plan, len(ds.Plans)),
		merchants: make(map[string]domain.Merchant, len(ds.Merchants)),
	}
	for _, p := range ds.Plans {
		s.plans[p.ID] = p
	}
	for _, m := range ds.Merchants {
		s.merchants[m.ID] = m
	}
	return s
}

// Dataset returns the underlying snapshot.
func (s *Store) Dataset() *domain.Dataset { return s.ds }

// PlanByID resolves a plan or reports domain.ErrPlanNotFound.
func (s *Store) PlanByID(id string) (domain.Plan, error) {
	p, ok := s.plans[id]
	if !ok {
		return domain.Plan{}, domain.ErrPlanNotFound
	}
	return p, nil
}

// MerchantByID resolves a merchant or reports domain.ErrMerchantNotFound.
func (s *Store) MerchantByID(id string) (domain.Merchant, error) {
	m, ok := s.merchants[id]
	if !ok {
		return domain.Merchant{}, domain.ErrMerchantNotFound
	}
	return m, nil
}

// PlanInterval reports the billing interval of a plan, if the plan exists.
func (s *Store) PlanInterval(planID string) (domain.BillingInterval, bool) {
	p, ok := s.plans[planID]
	if !ok {
		return "", false
	}
	return p.Interval, true
}

// PlansForMerchant lists a merchant's plans in dataset order.
func (s *Store) PlansForMerchant(merchantID string) []domain.Plan {
	var out []domain.Plan
	for _, p := range s.ds.Plans {
		if p.MerchantID == merchantID {
			out = append(out, p)
		}
	}
	return out
}

// PriceChangesForMerchant lists price-change events owned by the merchant.
func (s *Store) PriceChangesForMerchant(merchantID string) []domain.PriceChangeEvent {
	var out []domain.PriceChangeEvent
	for _, e := range s.ds.PriceChanges {
		if e.MerchantID == merchantID {
			out = append(out, e)
		}
	}
	return out
}

// PriceChangesForOtherMerchants lists price-change events from every merchant
// except the given one.
func (s *Store) PriceChangesForOtherMerchants(merchantID string) []domain.PriceChangeEvent {
	var out []domain.PriceChangeEvent
	for _, e := range s.ds.PriceChanges {
		if e.MerchantID != merchantID {
			out = append(out, e)
		}
	}
	return out
}

// CancellationsForPlan lists cancellation events recorded against the plan.
func (s *Store) CancellationsForPlan(planID string) []domain.CancellationEvent {
	var out []domain.CancellationEvent
	for _, e := range s.ds.Cancellations {
		if e.PlanID == planID {
			out = append(out, e)
		}
	}
	return out
}

// CancellationsForOtherMerchants lists cancellation events from every
// merchant except the given one.
func (s *Store) CancellationsForOtherMerchants(merchantID string) []domain.CancellationEvent {
	var out []domain.CancellationEvent
	for _, e := range s.ds.Cancellations {
		if e.MerchantID != merchantID {
			out = append(out, e)
		}
	}
	return out
}

// PaymentFailuresForPlan lists payment-failure events recorded against the plan.
func (s *Store) PaymentFailuresForPlan(planID string) []domain.PaymentFailureEvent {
	var out []domain.PaymentFailureEvent
	for _, e := range s.ds.PaymentFailures {
		if e.PlanID == planID {
			out = append(out, e)
		}
	}
	return out
}

// PaymentFailuresForOtherMerchants lists payment-failure events from every
// merchant except the given one.
func (s *Store) PaymentFailuresForOtherMerchants(merchantID string) []domain.PaymentFailureEvent {
	var out []domain.PaymentFailureEvent
	for _, e := range s.ds.PaymentFailures {
		if e.MerchantID != merchantID {
			out = append(out, e)
		}
	}
	return out
}

// PausesForPlan lists pause events recorded against the plan.
func (s *Store) PausesForPlan(planID string) []domain.PauseEvent {
	var out []domain.PauseEvent
	for _, e := range s.ds.Pauses {
		if e.PlanID == planID {
			out = append(out, e)
		}
	}
	return out
}

// PausesForOtherMerchants lists pause events from every merchant except the
// given one.
func (s *Store) PausesForOtherMerchants(merchantID string) []domain.PauseEvent {
	var out []domain.PauseEvent
	for _, e := range s.ds.Pauses {
		if e.MerchantID != merchantID {
			out = append(out, e)
		}
	}
	return out
}
