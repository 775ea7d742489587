package domain

import "errors"

// Validation errors, returned before any mutation is attempted
var (
	ErrInvalidAmount = errors.New("amount must be positive with at most two decimal places")
	ErrInvalidTarget = errors.New("cannot transfer to the same owner")
)

// Not-found and access errors
var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrForbidden           = errors.New("transaction does not belong to the caller")
)

// State conflicts, rejected by business rule with no partial effect
var (
	ErrDuplicateAccount             = errors.New("owner already has an account")
	ErrInsufficientFunds            = errors.New("insufficient funds")
	ErrInsufficientFundsForReversal = errors.New("recipient has insufficient funds for reversal")
	ErrUnreversible                 = errors.New("deposits cannot be reversed")
	ErrAlreadyReversed              = errors.New("transaction already reversed")
	ErrUnsupportedReversalType      = errors.New("transaction type cannot be reversed")
)

// Storage failures
var (
	// ErrStorage wraps persistence failures inside the registry and the log.
	ErrStorage = errors.New("storage error")
	// ErrLedgerUnavailable is what callers see when an atomic unit failed for a non-business reason.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
)
