// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
	"net/http"
)

// Code identifies a bridge error kind. Codes are part of the client
// contract and must stay stable.
type Code string

const (
	// CodeInvalidSignature the signature does not recover to the claimed EVM address
	CodeInvalidSignature Code = "InvalidSignature"
	// CodeInvalidOwner no confirmed claim links the native and EVM addresses
	CodeInvalidOwner Code = "InvalidOwner"
	// CodeBlacklisted the native address is blacklisted by the oracle
	CodeBlacklisted Code = "Blacklisted"
	// CodeInsufficientBalance the ledger balance does not cover the requested amount
	CodeInsufficientBalance Code = "InsufficientBalance"
	// CodeAlreadyProcessed duplicate hash or timestamp; idempotent, clients may treat it as success
	CodeAlreadyProcessed Code = "AlreadyProcessed"
	// CodePendingLiquidity the hot wallet cannot cover the withdrawal yet
	CodePendingLiquidity Code = "PendingLiquidity"
	// CodeContentionTimeout named lock acquisition was exhausted; retryable
	CodeContentionTimeout Code = "ContentionTimeout"
	// CodeExternalFailure a chain RPC or the oracle failed; retryable
	CodeExternalFailure Code = "ExternalFailure"
	// CodeBadRequest the client sent invalid data
	CodeBadRequest Code = "BadRequest"
	// CodeNotFound the requested resource does not exist
	CodeNotFound Code = "NotFound"
	// CodeInternal the service failed in an unexpected way
	CodeInternal Code = "Internal"
)

// ServiceError is the error type used across the bridge services.
type ServiceError struct {
	Code    Code
	Message string
	Err     error
}

// Error method to comply with error interface
func (err *ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err *ServiceError) Unwrap() error {
	return err.Err
}

// StatusCode returns the HTTP status code for the error code
func (err *ServiceError) StatusCode() int {
	switch err.Code {
	case CodeAlreadyProcessed:
		return http.StatusAccepted
	case CodeBlacklisted:
		return http.StatusForbidden
	case CodeInvalidSignature, CodeInvalidOwner, CodeInsufficientBalance:
		return http.StatusConflict
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeContentionTimeout, CodeExternalFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf extracts the Code from an error chain, CodeInternal if none.
func CodeOf(err error) Code {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr.Code
	}
	return CodeInternal
}

// Is checks that the provided error is a ServiceError with the desired Code
func Is(err error, code Code) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Code == code
}

// IsRetryable reports whether the queue should retry the failed job.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeContentionTimeout, CodeExternalFailure:
		return true
	}
	return false
}

// New returns a ServiceError with the given code and user-facing message.
func New(code Code, message string, err error) error {
	if err == nil {
		err = errors.New(message)
	}
	return &ServiceError{Code: code, Message: message, Err: err}
}

// InvalidSignatureError the signature did not recover to the expected address
func InvalidSignatureError(err error) error {
	return New(CodeInvalidSignature, "invalid signature", err)
}

// InvalidOwnerError the native address is bound to a different EVM address
func InvalidOwnerError(err error) error {
	return New(CodeInvalidOwner, "address is not owned by the requester", err)
}

// BlacklistedError the native address is blacklisted
func BlacklistedError(err error) error {
	return New(CodeBlacklisted, "address is blacklisted", err)
}

// InsufficientBalanceError the user balance does not cover the amount
func InsufficientBalanceError(err error) error {
	return New(CodeInsufficientBalance, "insufficient balance", err)
}

// AlreadyProcessedError duplicate submission of an already settled operation
func AlreadyProcessedError(err error) error {
	return New(CodeAlreadyProcessed, "already processed", err)
}

// PendingLiquidityError the withdrawal was queued until the hot wallet can cover it
func PendingLiquidityError(err error) error {
	return New(CodePendingLiquidity, "withdrawal pending hot wallet liquidity", err)
}

// ContentionTimeoutError lock acquisition retries were exhausted
func ContentionTimeoutError(err error) error {
	return New(CodeContentionTimeout, "ledger lock contention", err)
}

// ExternalFailureError a dependency (chain RPC, oracle) failed
func ExternalFailureError(err error) error {
	return New(CodeExternalFailure, "external dependency failure", err)
}

// BadRequestError the request payload is invalid; message is returned to the user
func BadRequestError(err error, message string) error {
	return New(CodeBadRequest, message, err)
}

// NotFoundError the resource does not exist; message is returned to the user
func NotFoundError(err error, message string) error {
	return New(CodeNotFound, message, err)
}

// GeneralError an unexpected internal failure; the cause is logged, not returned
func GeneralError(err error) error {
	return New(CodeInternal, "Internal Server Error", err)
}
