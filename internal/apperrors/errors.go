// Package apperrors defines the ledger's error taxonomy. Every error returned
// across the service boundary carries a stable Kind and a readable message.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind is the stable, client-visible category of an error.
type Kind string

const (
	KindValidation         Kind = "ValidationError"
	KindInvalidAmount      Kind = "InvalidAmount"
	KindInvalidAccountType Kind = "InvalidAccountType"
	KindNotFound           Kind = "NotFound"
	KindAccountNotFound    Kind = "AccountNotFound"
	KindLedgerNotFound     Kind = "LedgerNotFound"
	KindForbidden          Kind = "ForbiddenCrossTenant"
	KindUnauthenticated    Kind = "Unauthenticated"
	KindDuplicateCode      Kind = "DuplicateCode"
	KindCodeImmutable      Kind = "CodeImmutable"
	KindTypeImmutable      Kind = "TypeImmutable"
	KindHasTransactions    Kind = "HasTransactions"
	KindAlreadyReversed    Kind = "AlreadyReversed"
	KindIntegrity          Kind = "IntegrityViolation"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrValidation         = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrInvalidAmount      = &Error{Kind: KindInvalidAmount, Message: "amount must be positive"}
	ErrInvalidAccountType = &Error{Kind: KindInvalidAccountType, Message: "invalid account type"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "not found"}
	ErrAccountNotFound    = &Error{Kind: KindAccountNotFound, Message: "account not found"}
	ErrLedgerNotFound     = &Error{Kind: KindLedgerNotFound, Message: "ledger not found"}
	ErrForbidden          = &Error{Kind: KindForbidden, Message: "resource belongs to another tenant"}
	ErrUnauthenticated    = &Error{Kind: KindUnauthenticated, Message: "unauthenticated"}
	ErrDuplicateCode      = &Error{Kind: KindDuplicateCode, Message: "account code already exists"}
	ErrCodeImmutable      = &Error{Kind: KindCodeImmutable, Message: "account code cannot be changed"}
	ErrTypeImmutable      = &Error{Kind: KindTypeImmutable, Message: "account type cannot be changed"}
	ErrHasTransactions    = &Error{Kind: KindHasTransactions, Message: "account has entries and cannot be deactivated"}
	ErrAlreadyReversed    = &Error{Kind: KindAlreadyReversed, Message: "transaction already reversed"}
	ErrIntegrity          = &Error{Kind: KindIntegrity, Message: "ledger integrity violation"}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so wrapped errors compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an error of the given kind with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new error of the given kind.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the Kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// MessageOf returns the client-facing message of err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
