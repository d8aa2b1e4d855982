package core

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents specific error conditions in the controller
type ErrorCode int

const (
	// No error occurred
	ErrCodeNone ErrorCode = iota
	// Unknown direction, color or malformed request
	ErrCodeValidation
	// Request would break mutual exclusion between conflicting directions
	ErrCodeConflict
	// Input older than the freshness bound
	ErrCodeStaleInput
	// Manual command issued without the required authority
	ErrCodeNotAuthorized
	// Command was superseded before it could be applied
	ErrCodeAborted
	// Configuration is invalid
	ErrCodeInvalidConfiguration
	// Controller is not running
	ErrCodeNotStarted
	// Controller lifecycle misuse
	ErrCodeInvalidState
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeNone:                 "none",
	ErrCodeValidation:           "validation",
	ErrCodeConflict:             "conflict_violation",
	ErrCodeStaleInput:           "stale_input",
	ErrCodeNotAuthorized:        "not_authorized",
	ErrCodeAborted:              "aborted",
	ErrCodeInvalidConfiguration: "invalid_configuration",
	ErrCodeNotStarted:           "not_started",
	ErrCodeInvalidState:         "invalid_state",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// ValidationError represents a request naming an unknown direction or color, or an
// illegal per-direction transition
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error [%s=%q]: %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, value, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// ConflictError represents a rejected request that would violate the conflict matrix
type ConflictError struct {
	Direction   Direction
	Requested   Color
	Conflicting Direction
	Reason      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict violation [%s->%s against %s]: %s", e.Direction, e.Requested, e.Conflicting, e.Reason)
}

// NewConflictError creates a new conflict violation
func NewConflictError(direction Direction, requested Color, conflicting Direction, reason string) *ConflictError {
	return &ConflictError{
		Direction:   direction,
		Requested:   requested,
		Conflicting: conflicting,
		Reason:      reason,
	}
}

// StaleInputError represents a detection older than the freshness bound
type StaleInputError struct {
	Age   time.Duration
	Bound time.Duration
}

func (e *StaleInputError) Error() string {
	return fmt.Sprintf("stale input: age %s exceeds %s", e.Age, e.Bound)
}

// NewStaleInputError creates a new stale input error
func NewStaleInputError(age, bound time.Duration) *StaleInputError {
	return &StaleInputError{Age: age, Bound: bound}
}

// NotAuthorizedError represents a command refused for lack of authority
type NotAuthorizedError struct {
	Operation string
	Reason    string
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("not authorized to %s: %s", e.Operation, e.Reason)
}

// NewNotAuthorizedError creates a new not authorized error
func NewNotAuthorizedError(operation, reason string) *NotAuthorizedError {
	return &NotAuthorizedError{
		Operation: operation,
		Reason:    reason,
	}
}

// AbortedError represents a command issued against a precondition that no longer holds
type AbortedError struct {
	Operation string
	Reason    string
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("%s aborted: %s", e.Operation, e.Reason)
}

// NewAbortedError creates a new aborted error
func NewAbortedError(operation, reason string) *AbortedError {
	return &AbortedError{
		Operation: operation,
		Reason:    reason,
	}
}

// ConfigurationError represents configuration issues
type ConfigurationError struct {
	Component string
	Issues    []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Issues) == 1 {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Issues[0])
	}
	return fmt.Sprintf("configuration error in %s: %d issues: %v", e.Component, len(e.Issues), e.Issues)
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(component string, issues ...string) *ConfigurationError {
	return &ConfigurationError{
		Component: component,
		Issues:    issues,
	}
}

// ControllerError represents controller lifecycle errors
type ControllerError struct {
	Code      ErrorCode
	Operation string
	Message   string
}

func (e *ControllerError) Error() string {
	return fmt.Sprintf("controller error during %s: %s", e.Operation, e.Message)
}

// NewNotStartedError creates a new controller not started error
func NewNotStartedError(operation string) *ControllerError {
	return &ControllerError{
		Code:      ErrCodeNotStarted,
		Operation: operation,
		Message:   "controller is not started",
	}
}

// NewControllerError creates a new controller error
func NewControllerError(code ErrorCode, operation, message string) *ControllerError {
	return &ControllerError{
		Code:      code,
		Operation: operation,
		Message:   message,
	}
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConflictError checks if an error is a ConflictError
func IsConflictError(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsStaleInputError checks if an error is a StaleInputError
func IsStaleInputError(err error) bool {
	var target *StaleInputError
	return errors.As(err, &target)
}

// IsNotAuthorizedError checks if an error is a NotAuthorizedError
func IsNotAuthorizedError(err error) bool {
	var target *NotAuthorizedError
	return errors.As(err, &target)
}

// IsAbortedError checks if an error is an AbortedError
func IsAbortedError(err error) bool {
	var target *AbortedError
	return errors.As(err, &target)
}

// IsConfigurationError checks if an error is a ConfigurationError
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// GetErrorCode returns the error code for known error types
func GetErrorCode(err error) ErrorCode {
	var (
		validation *ValidationError
		conflict   *ConflictError
		stale      *StaleInputError
		auth       *NotAuthorizedError
		aborted    *AbortedError
		cfg        *ConfigurationError
		ctrl       *ControllerError
	)
	switch {
	case err == nil:
		return ErrCodeNone
	case errors.As(err, &validation):
		return ErrCodeValidation
	case errors.As(err, &conflict):
		return ErrCodeConflict
	case errors.As(err, &stale):
		return ErrCodeStaleInput
	case errors.As(err, &auth):
		return ErrCodeNotAuthorized
	case errors.As(err, &aborted):
		return ErrCodeAborted
	case errors.As(err, &cfg):
		return ErrCodeInvalidConfiguration
	case errors.As(err, &ctrl):
		return ctrl.Code
	default:
		return ErrCodeNone
	}
}
