package services

import (
	"errors"
	"fmt"
)

var (
	ErrNoStreakToRestore  = errors.New("no closed streak to restore")
	ErrFreezeNotAllowed   = errors.New("streak freeze not allowed")
	ErrAlreadyFrozen      = errors.New("day is already frozen")
	ErrHabitNotFound      = errors.New("habit not found")
	ErrNoLogToday         = errors.New("no log found for today")
	ErrAlreadyLogged      = errors.New("habit already logged for this date")
	ErrPaymentKeyRequired = errors.New("payment key is required")
	ErrPaymentNotVerified = errors.New("payment not verified")
	ErrFutureDate         = errors.New("date is in the future")
	ErrInvalidRequest     = errors.New("invalid request")
)

// InconsistentStateError reports a repair that could not be applied
// atomically even after a retry. It is meant for operators, not end users.
type InconsistentStateError struct {
	Owner string
	Habit string
	Err   error
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("inconsistent streak state for %s/%s: %v", e.Owner, e.Habit, e.Err)
}

func (e *InconsistentStateError) Unwrap() error { return e.Err }
