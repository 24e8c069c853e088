/*
errors.go - Error taxonomy for the ledger engine

PURPOSE:
  All error kinds in one place. Callers classify with errors.Is against the
  kind sentinels (ErrValidation, ErrNotFound, ErrConflict, ErrIntegrity) or
  against the specific sentinels below, and pull context out with errors.As.

ERROR CATEGORIES:
  1. ValidationError - bad input shape or range, rejected before any write
  2. NotFoundError   - a referenced record does not exist
  3. ConflictError   - duplicate charge, category cycle, insufficient funds,
                       duplicate idempotency key; the transaction rolls back
  4. IntegrityError  - stored state disagrees with recomputed state; reported,
                       never corrected

USAGE:
  if errors.Is(err, ledger.ErrDuplicateCharge) {
      // another sweep already charged this period
  }
  var nf *ledger.NotFoundError
  if errors.As(err, &nf) {
      log.Printf("missing %s %s", nf.Entity, nf.ID)
  }
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// Kinds.
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrIntegrity  = errors.New("integrity violation")

	// ErrInvalidAmount is returned for money amounts that must be positive.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidFrequency is returned for unknown schedule frequencies.
	ErrInvalidFrequency = errors.New("invalid frequency")

	// ErrInvalidAnchorDay is returned for anchor days outside [1, 31].
	ErrInvalidAnchorDay = errors.New("invalid anchor day")

	// ErrDuplicateCharge is returned when a late-fee charge already exists
	// for the obligation and period.
	ErrDuplicateCharge = errors.New("late fee already charged for period")

	// ErrDuplicateIdempotencyKey is returned when a write with the same
	// idempotency key already exists. This is expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrCategoryCycle is returned when a re-parent would make a category
	// its own ancestor.
	ErrCategoryCycle = errors.New("category cycle")

	// ErrInsufficientFunds is returned when a withdrawal would drive a trust
	// account negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInvalidStatusTransition is returned for disallowed status changes.
	ErrInvalidStatusTransition = errors.New("invalid status transition")

	// ErrDuplicateReceipt is returned when a receipt was already extracted.
	ErrDuplicateReceipt = errors.New("receipt already processed")

	// ErrLockNotObtained is returned when a per-record lock is held elsewhere.
	ErrLockNotObtained = errors.New("lock not obtained")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError describes a rejected input field.
type ValidationError struct {
	Field   string
	Message string
	Err     error // specific sentinel, may be nil
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, message string, cause error) *ValidationError {
	return &ValidationError{Field: field, Message: message, Err: cause}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() []error { return kindAnd(ErrValidation, e.Err) }

// NotFoundError names the missing record.
type NotFoundError struct {
	Entity string
	ID     string
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// ConflictError describes a write rejected because of existing state.
type ConflictError struct {
	Entity  string
	ID      string
	Period  string // period key, for charge conflicts
	Message string
	Err     error
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("conflict on %s %q", e.Entity, e.ID)
	if e.Period != "" {
		msg += " for period " + e.Period
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ConflictError) Unwrap() []error { return kindAnd(ErrConflict, e.Err) }

// InsufficientFundsError provides details about a trust account shortage.
type InsufficientFundsError struct {
	AccountID AccountID
	Balance   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in account %s: balance %s, requested %s",
		e.AccountID, e.Balance.StringFixed(CentsPlaces), e.Requested.StringFixed(CentsPlaces))
}

// Shortfall is the amount missing to cover the request.
func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Balance)
}

func (e *InsufficientFundsError) Unwrap() []error {
	return []error{ErrConflict, ErrInsufficientFunds}
}

// IntegrityError reports stored state that disagrees with the ledger.
type IntegrityError struct {
	Entity   string
	ID       string
	Stored   decimal.Decimal
	Computed decimal.Decimal
	Message  string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity: %s %q: %s (stored %s, computed %s)",
		e.Entity, e.ID, e.Message, e.Stored.StringFixed(CentsPlaces), e.Computed.StringFixed(CentsPlaces))
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrity }

func kindAnd(kind, specific error) []error {
	if specific == nil {
		return []error{kind}
	}
	return []error{kind, specific}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }
func IsIntegrity(err error) bool  { return errors.Is(err, ErrIntegrity) }

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockNotObtained)
}
