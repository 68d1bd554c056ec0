// SPDX-License-Identifier: Apache-2.0
// Package errors provides the typed error taxonomy shared by the bridge
// orchestration components.
package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode classifies bridge errors for handling and audit.
type ErrorCode string

const (
	// CodeAdapterNotFound indicates a requested protocol has no enabled
	// adapter. Fatal, never retried.
	CodeAdapterNotFound ErrorCode = "ADAPTER_NOT_FOUND"

	// CodeTransformFailed indicates malformed or incomplete native or
	// canonical input during a transform.
	CodeTransformFailed ErrorCode = "TRANSFORM_FAILED"

	// CodeFidelityThreshold indicates a translation was rejected because
	// projected information loss exceeded the caller's bound.
	CodeFidelityThreshold ErrorCode = "FIDELITY_THRESHOLD"

	// CodeStoreError indicates a storage failure such as a version
	// conflict; retried once internally before surfacing.
	CodeStoreError ErrorCode = "STORE_ERROR"

	// CodeTimeout indicates an operation exceeded its deadline. Safe to
	// retry: no partial store mutation happens before the final step.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeCacheError indicates a cache failure. Non-fatal: it degrades
	// to a cache miss and the translation proceeds.
	CodeCacheError ErrorCode = "CACHE_ERROR"

	// CodeInvalidInput indicates a malformed request.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeNotFound indicates a missing agent or snapshot.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"
)

// BridgeError is a typed error with context for audit and observability.
// It implements the error interface and unwraps to its cause.
type BridgeError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]any
	Recoverable bool
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *BridgeError) Unwrap() error {
	return e.Err
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *BridgeError) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(struct {
		Code        string         `json:"code"`
		Message     string         `json:"message"`
		Cause       string         `json:"cause,omitempty"`
		Context     map[string]any `json:"context,omitempty"`
		Recoverable bool           `json:"recoverable"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Cause:       cause,
		Context:     e.Context,
		Recoverable: e.Recoverable,
	})
}

// New creates a BridgeError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *BridgeError {
	return &BridgeError{
		Code:        code,
		Message:     msg,
		Err:         cause,
		Context:     make(map[string]any),
		Recoverable: defaultRecoverable(code),
	}
}

// WithContext adds a key-value pair to the error context. Returns the
// error for chaining.
func (e *BridgeError) WithContext(key string, value any) *BridgeError {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// WithRecoverable overrides whether the error can be recovered from.
func (e *BridgeError) WithRecoverable(recoverable bool) *BridgeError {
	e.Recoverable = recoverable
	return e
}

// AsBridgeError converts err to a *BridgeError, wrapping unknown errors
// as CodeInternal. Returns nil for nil input.
func AsBridgeError(err error) *BridgeError {
	if err == nil {
		return nil
	}
	if be, ok := err.(*BridgeError); ok {
		return be
	}
	return New(CodeInternal, "wrapped error", err)
}

// CodeOf returns the error code of err, or CodeInternal for untyped
// non-nil errors and the empty code for nil.
func CodeOf(err error) ErrorCode {
	be := AsBridgeError(err)
	if be == nil {
		return ""
	}
	return be.Code
}

func defaultRecoverable(code ErrorCode) bool {
	switch code {
	case CodeTimeout, CodeStoreError, CodeCacheError:
		return true
	default:
		return false
	}
}
