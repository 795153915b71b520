// Package booking is the slot capacity and token allocation engine.  It
// hands out gap-filling token numbers under a per-slot lock, drives tokens
// through a closed transition table and records every outcome in an
// append-only visit history.  Persistence is reached through Store, which
// is implemented for MySQL in package repository and in memory in package
// repository/memory.
package booking

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors.  They are returned as-is to callers; handlers translate
// them into HTTP statuses with errors.Is.
var (
	// ErrInvalidSlot means the slot is missing, retired or already over.
	ErrInvalidSlot = errors.New("invalid slot")
	// ErrSlotFull means every token number of the slot is held, including
	// after the single retry on a lost allocation race.
	ErrSlotFull = errors.New("slot full")
	// ErrDuplicateActiveClaim means the user already holds a non-terminal
	// token for the same service.
	ErrDuplicateActiveClaim = errors.New("duplicate active claim")
	// ErrInvalidTransition means the token's current status does not allow
	// the requested operation.  No mutation happened.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrNotFound means the referenced slot or token does not exist.
	ErrNotFound = errors.New("not found")
	// ErrSlotLocked means a slot with tokens was asked for a change other
	// than a capacity increase.
	ErrSlotLocked = errors.New("slot locked")
	// ErrInvalidInput wraps validation failures of caller supplied values.
	ErrInvalidInput = errors.New("invalid input")
	// ErrStorageUnavailable marks failures of the underlying persistence.
	// The original error stays reachable through errors.Is / errors.As.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// Store-level conflicts.  Store implementations return these when a write
// would break one of the token uniqueness invariants; the engine turns
// them into domain errors.
var (
	// ErrNumberTaken is returned by Tx.InsertToken when another
	// non-terminal token of the slot already holds the number.
	ErrNumberTaken = errors.New("token number taken")
	// ErrActiveClaimTaken is returned by Tx.InsertToken when the user
	// already holds a non-terminal token for the service.
	ErrActiveClaimTaken = errors.New("active claim taken")
)

var domainErrors = []error{
	ErrInvalidSlot, ErrSlotFull, ErrDuplicateActiveClaim, ErrInvalidTransition,
	ErrNotFound, ErrSlotLocked, ErrInvalidInput, ErrNumberTaken, ErrActiveClaimTaken,
	ErrStorageUnavailable,
}

// IsDomainError reports whether err carries one of the engine's sentinels.
func IsDomainError(err error) bool {
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return true
		}
	}
	return false
}

// storageErr tags an unexpected persistence failure so callers can tell it
// apart from domain rejections.
func storageErr(err error) error {
	if err == nil || IsDomainError(err) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
