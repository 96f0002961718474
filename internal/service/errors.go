package service

import (
	"errors"
	"fmt"
	"strings"
)

// Service errors.
var (
	ErrInvalidID            = errors.New("invalid id format")
	ErrUserIDRequired       = errors.New("user_id is required")
	ErrUserNotFound         = errors.New("user not found")
	ErrBusinessNotFound     = errors.New("business not found")
	ErrBusinessLimitReached = errors.New("business limit reached")
	ErrBusinessEmailExists  = errors.New("business with this email already exists")
	ErrBusinessHasInvoices  = errors.New("business has associated invoices")
	ErrExternalIDRequired   = errors.New("external_id is required")
	ErrUserSyncFailed       = errors.New("could not resolve user")
)

// ValidationError carries every violated rule, in a stable order.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// InvoicesAttachedError blocks deletion of a business that has invoices.
type InvoicesAttachedError struct {
	Count int
}

func (e *InvoicesAttachedError) Error() string {
	return fmt.Sprintf("business has %d associated invoices", e.Count)
}

func (e *InvoicesAttachedError) Unwrap() error {
	return ErrBusinessHasInvoices
}

// isRejection reports whether err is an expected business-rule outcome
// rather than an internal failure.
func isRejection(err error) bool {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return true
	}
	for _, target := range []error{
		ErrInvalidID,
		ErrUserIDRequired,
		ErrUserNotFound,
		ErrBusinessNotFound,
		ErrBusinessLimitReached,
		ErrBusinessEmailExists,
		ErrBusinessHasInvoices,
		ErrExternalIDRequired,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
