package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess       Code = 0
	CodeInternal      Code = 1
	CodeUsage         Code = 2
	CodeUnavailable   Code = 12
	CodeUnsupported   Code = 13
	CodeStale         Code = 14
	CodePartialStrict Code = 15
	CodeBlocked       Code = 16

	CodeNotConnected          Code = 20
	CodeNoRoute               Code = 21
	CodePriceLimit            Code = 22
	CodeReverted              Code = 23
	CodeInsufficientLiquidity Code = 24
	CodeInsufficientBalance   Code = 25
	CodeTimeout               Code = 26
	CodeUnknown               Code = 27
)

// Error is a typed CLI error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed, ok := As(err)
	return ok && typed.Code == code
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// TypeOf returns the envelope error type for a code.
func TypeOf(code Code) string {
	switch code {
	case CodeUsage:
		return "usage_error"
	case CodeUnavailable:
		return "provider_unavailable"
	case CodeUnsupported:
		return "unsupported"
	case CodeStale:
		return "stale_data"
	case CodePartialStrict:
		return "partial_results"
	case CodeBlocked:
		return "command_blocked"
	case CodeNotConnected:
		return "not_connected"
	case CodeNoRoute:
		return "no_route"
	case CodePriceLimit:
		return "price_limit_too_strict"
	case CodeReverted:
		return "contract_reverted"
	case CodeInsufficientLiquidity:
		return "insufficient_liquidity"
	case CodeInsufficientBalance:
		return "insufficient_balance"
	case CodeTimeout:
		return "network_timeout"
	case CodeUnknown:
		return "unknown_error"
	default:
		return "internal_error"
	}
}

// UserMessage returns the text shown to a user for err. Low-level causes are
// never part of it; they belong in logs.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	typed, ok := As(err)
	if !ok {
		return "transaction failed: unexpected error"
	}
	switch typed.Code {
	case CodeNotConnected:
		return "no wallet connected: configure a signing key and retry"
	case CodeNoRoute:
		return "no pool exists for this token pair; pick a different pair"
	case CodePriceLimit:
		return "price moved past the allowed limit; try a higher slippage tolerance"
	case CodeReverted:
		return "transaction failed"
	case CodeInsufficientLiquidity:
		return "insufficient liquidity in the pool for this trade"
	case CodeInsufficientBalance:
		return "insufficient balance"
	case CodeTimeout:
		return "network request timed out; please retry"
	case CodeUnknown, CodeInternal:
		return "transaction failed: unexpected error"
	default:
		return typed.Message
	}
}
