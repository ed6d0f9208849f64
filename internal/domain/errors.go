package domain

import (
	"errors"
	"fmt"
)

// Reasons reported to clients for seat-level failures.
const (
	ReasonAlreadyBooked   = "already booked"
	ReasonHeldByAnother   = "held by another owner"
	ReasonLockUnavailable = "temporarily unavailable"
	MsgSeatsAlreadyBooked = "seats already booked"
	MsgLockMissing        = "lock missing or expired"
)

type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

// ConflictError reports genuine contention on seats. Callers should pick
// other seats or re-lock; it is never retried automatically.
type ConflictError struct {
	Resource string
	Msg      string
	Seats    []string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

type AuthorizationError struct {
	Action string
	Err    error
}

func (e AuthorizationError) Error() string {
	if e.Action == "" {
		return "not authorized"
	}
	return fmt.Sprintf("not authorized to %s", e.Action)
}

func (e AuthorizationError) Unwrap() error { return e.Err }

// TransactionAbortError means the store gave up on a transaction for
// infrastructure reasons. Nothing was written, so the whole call is safe to retry.
type TransactionAbortError struct {
	Op  string
	Err error
}

func (e TransactionAbortError) Error() string {
	if e.Op == "" {
		return "transaction aborted"
	}
	return fmt.Sprintf("%s: transaction aborted", e.Op)
}

func (e TransactionAbortError) Unwrap() error { return e.Err }

type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsAuthorization(err error) bool {
	var target AuthorizationError
	return errors.As(err, &target)
}

func IsTransactionAbort(err error) bool {
	var target TransactionAbortError
	return errors.As(err, &target)
}

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}
