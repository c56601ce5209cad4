// Package errors provides common domain error types for emlsync.
//
// Sentinel errors describe conditions shared by the CRM client, the ledger and
// the pipeline, so callers can branch with errors.Is instead of string checks.
//
// Usage:
//
//	import pferrors "github.com/otherjamesbrown/emlsync/pkg/errors"
//
//	if pferrors.IsNotFound(err) {
//	    // create instead of update
//	}
package errors

import "errors"

// Domain errors - common sentinel errors for domain conditions.
var (
	// ErrNotFound indicates the requested resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a conflict with existing data (e.g., duplicate key).
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates invalid input or validation failure.
	ErrValidation = errors.New("validation error")

	// ErrUnauthorized indicates the request lacks valid authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRejected indicates the remote side refused the record outright.
	ErrRejected = errors.New("rejected")
)

// IsNotFound reports whether any error in err's chain is ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether any error in err's chain is ErrConflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsValidation reports whether any error in err's chain is ErrValidation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsUnauthorized reports whether any error in err's chain is ErrUnauthorized.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsRejected reports whether any error in err's chain is ErrRejected.
func IsRejected(err error) bool {
	return errors.Is(err, ErrRejected)
}
