package domain

import "errors"

var (
	// ErrInvalidRate rejects a commission rate whose percentage, fees,
	// validity window or amount band violate the model invariants.
	ErrInvalidRate = errors.New("invalid commission rate")

	// ErrOrderNotFound is returned when a payment event references an order
	// the engine has no projection for.
	ErrOrderNotFound = errors.New("order not found")

	// ErrBatchEmpty is returned when a payout run finds no unsettled
	// transactions to claim.
	ErrBatchEmpty = errors.New("no unsettled transactions to batch")

	// ErrBatchNotFound is returned for lookups of unknown payout batches.
	ErrBatchNotFound = errors.New("payout batch not found")

	// ErrUnauthorized rejects administrative operations invoked without an
	// admin authorization context.
	ErrUnauthorized = errors.New("unauthorized")
)
