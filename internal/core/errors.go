package core

import "errors"

// Named failure kinds surfaced by the ledger core. Store-level errors are
// wrapped with %w and mapped to these sentinels where the cause is knowable,
// so callers can branch with errors.Is.
var (
	// ErrDuplicateDocumentNumber is returned when a document number collides
	// with an existing invoice or bill.
	ErrDuplicateDocumentNumber = errors.New("duplicate document number")

	// ErrAllocationExceedsReceived is returned when the sum of allocations in
	// a payment submission exceeds the money available to cover them
	// (amount received plus, when credits are in use, the credit balance).
	ErrAllocationExceedsReceived = errors.New("allocations exceed amount received")

	// ErrInsufficientStock is returned only by the strict consumption path.
	// The default FIFO consumption logs the shortfall and proceeds.
	ErrInsufficientStock = errors.New("insufficient stock")

	ErrDocumentNotFound = errors.New("document not found")
	ErrItemNotFound     = errors.New("item not found")
	ErrPaymentNotFound  = errors.New("payment not found")
)
