package domain

import "errors"

var (
	// ErrPlanNotFound is returned when a referenced plan id is absent from
	// the dataset. Callers are expected to validate ids before simulating.
	ErrPlanNotFound = errors.New("plan_not_found")

	// ErrMerchantNotFound is returned when a referenced merchant id is
	// absent from the dataset.
	ErrMerchantNotFound = errors.New("merchant_not_found")
)
