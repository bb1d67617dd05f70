package models

import "errors"

// ErrInvalid matches every validation failure below with errors.Is.
var ErrInvalid = errors.New("invalid")

var (
	ErrWorkflowIDRequired   = &ValidationError{Field: "workflow_id", Message: "workflow id is required"}
	ErrInputRequired        = &ValidationError{Field: "input", Message: "input reference is required"}
	ErrVariableNameRequired = &ValidationError{Field: "variable", Message: "variable name is required"}
)

// ValidationError rejects one field of a job request or run record.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}
