package domain

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the ledger. Callers match them with errors.Is.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidOperation  = errors.New("invalid operation")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStoreFailure      = errors.New("store failure")
)

var (
	// ErrDuplicateAccountNumber is returned by a store when the account number is already taken.
	ErrDuplicateAccountNumber = errors.New("account number already exists")
	// ErrAccountNumberExhausted means no free account number was found within the attempt budget.
	ErrAccountNumberExhausted = errors.New("no free account number")
	// ErrIdempotencyMismatch means the key was reused with a different payload.
	ErrIdempotencyMismatch = fmt.Errorf("%w: idempotency key reused with a different payload", ErrInvalidOperation)
	// ErrIdempotencyConflict means another request holding the same key is in flight.
	ErrIdempotencyConflict = errors.New("request with the same idempotency key in progress")
	// ErrIdempotencyKeySpent means the key's transaction was deleted. The key
	// cannot be replayed nor reused.
	ErrIdempotencyKeySpent = fmt.Errorf("%w: transaction of idempotency key was deleted", ErrIdempotencyConflict)
)

// StoreError wraps a persistence failure so it matches ErrStoreFailure and still
// exposes the driver error.
func StoreError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
}
