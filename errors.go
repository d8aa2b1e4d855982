package lifeline

import "github.com/anggasct/lifeline/pkg/core"

// Re-export error types
type (
	// ErrorCode classifies controller errors
	ErrorCode = core.ErrorCode

	// ValidationError reports an unknown direction, color or malformed request
	ValidationError = core.ValidationError

	// ConflictError reports a change that would break mutual exclusion
	ConflictError = core.ConflictError

	// StaleInputError reports a detection older than the freshness bound
	StaleInputError = core.StaleInputError

	// NotAuthorizedError reports a command the current authority does not permit
	NotAuthorizedError = core.NotAuthorizedError

	// AbortedError reports a command whose precondition was superseded
	AbortedError = core.AbortedError

	// ConfigurationError lists configuration issues
	ConfigurationError = core.ConfigurationError

	// ControllerError reports lifecycle errors
	ControllerError = core.ControllerError
)

// Re-export error codes
const (
	ErrCodeNone                 = core.ErrCodeNone
	ErrCodeValidation           = core.ErrCodeValidation
	ErrCodeConflict             = core.ErrCodeConflict
	ErrCodeStaleInput           = core.ErrCodeStaleInput
	ErrCodeNotAuthorized        = core.ErrCodeNotAuthorized
	ErrCodeAborted              = core.ErrCodeAborted
	ErrCodeInvalidConfiguration = core.ErrCodeInvalidConfiguration
	ErrCodeNotStarted           = core.ErrCodeNotStarted
	ErrCodeInvalidState         = core.ErrCodeInvalidState
)

// Re-export error helpers
var (
	IsValidationError    = core.IsValidationError
	IsConflictError      = core.IsConflictError
	IsStaleInputError    = core.IsStaleInputError
	IsNotAuthorizedError = core.IsNotAuthorizedError
	IsAbortedError       = core.IsAbortedError
	IsConfigurationError = core.IsConfigurationError
	GetErrorCode         = core.GetErrorCode
)
