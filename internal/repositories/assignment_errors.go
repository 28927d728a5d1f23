package repositories

import "fmt"

// AssignmentErrorCode enumerates failure reasons for assignment operations.
type AssignmentErrorCode string

const (
	// AssignmentErrorUnknown represents an unspecified failure.
	AssignmentErrorUnknown AssignmentErrorCode = "assignment_unknown"
	// AssignmentErrorJobNotFound indicates the booking document is missing.
	AssignmentErrorJobNotFound AssignmentErrorCode = "assignment_job_not_found"
	// AssignmentErrorNotFound indicates the assignment document is missing.
	AssignmentErrorNotFound AssignmentErrorCode = "assignment_not_found"
	// AssignmentErrorJobTaken indicates the booking is no longer open for claims.
	AssignmentErrorJobTaken AssignmentErrorCode = "assignment_job_taken"
	// AssignmentErrorInvalidState indicates the assignment status forbids the operation.
	AssignmentErrorInvalidState AssignmentErrorCode = "assignment_invalid_state"
)

// AssignmentError wraps assignment-specific failures with machine readable codes.
type AssignmentError struct {
	Op      string
	Code    AssignmentErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AssignmentError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *AssignmentError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error represents a missing document.
func (e *AssignmentError) IsNotFound() bool {
	return e != nil && (e.Code == AssignmentErrorNotFound || e.Code == AssignmentErrorJobNotFound)
}

// IsConflict reports whether the error represents a lost claim race or invalid state.
func (e *AssignmentError) IsConflict() bool {
	return e != nil && (e.Code == AssignmentErrorJobTaken || e.Code == AssignmentErrorInvalidState)
}

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *AssignmentError) IsUnavailable() bool {
	return false
}

// NewAssignmentError constructs a typed assignment error.
func NewAssignmentError(code AssignmentErrorCode, message string, err error) *AssignmentError {
	if message == "" {
		message = string(code)
	}
	return &AssignmentError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}
