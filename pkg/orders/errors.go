package orders

import "cafe/pkg/failure"

var (
	// ErrUnknownStatus is returned for values outside pending, ready and delivered.
	ErrUnknownStatus = failure.Validation("unknown order status")
	// ErrUnsupportedFilter is returned for filter values other than all, pending and ready.
	ErrUnsupportedFilter = failure.Validation("unsupported status filter")
	// ErrStatusRegression is returned when a transition would move an order backwards.
	ErrStatusRegression = failure.Validation("order status can only move forward")
	// ErrNoOrdersSelected is returned by bulk deletes with an empty id set.
	ErrNoOrdersSelected = failure.Validation("no orders selected")
	// ErrMissingID is returned when an operation is called without an order id.
	ErrMissingID = failure.Validation("order id is required")
)
