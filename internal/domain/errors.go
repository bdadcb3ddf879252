// Package domain defines the errors, ports, and reports shared by the ingest pipeline.
package domain

import "fmt"

// UnknownTypeError indicates a wire type name that the type catalog cannot map.
type UnknownTypeError struct {
	TypeName string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q", e.TypeName)
}

// PlanError indicates that an EXPLAIN plan did not have the expected shape.
type PlanError struct {
	Message string
}

func (e *PlanError) Error() string { return "query plan: " + e.Message }

// QueryFailedError carries the failure reported by the query engine.
type QueryFailedError struct {
	QueryID   string
	ErrorName string
	ErrorCode int
	Message   string
}

func (e *QueryFailedError) Error() string {
	if e.ErrorName == "" {
		return fmt.Sprintf("query %s failed: %s", e.QueryID, e.Message)
	}
	return fmt.Sprintf("query %s failed: %s: %s", e.QueryID, e.ErrorName, e.Message)
}

// ProtocolError indicates an unexpected HTTP response from the coordinator.
type ProtocolError struct {
	StatusCode int
	Message    string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error (status %d): %s", e.StatusCode, e.Message)
}

// ValidationError indicates invalid configuration or input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ParseError indicates a cell value that could not be converted to its target type.
type ParseError struct {
	Column string
	Type   string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("cannot parse row: %v", e.Err)
	}
	if e.Err == nil {
		return fmt.Sprintf("column %q (%s): cannot parse %q", e.Column, e.Type, e.Value)
	}
	return fmt.Sprintf("column %q (%s): cannot parse %q: %v", e.Column, e.Type, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// NotSupportedError marks a conversion that is not implemented, as opposed to bad data.
type NotSupportedError struct {
	Message string
}

func (e *NotSupportedError) Error() string { return e.Message + " is not supported yet" }

// ErrPlan creates a PlanError with a formatted message.
func ErrPlan(format string, args ...interface{}) *PlanError {
	return &PlanError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotSupported creates a NotSupportedError with a formatted message.
func ErrNotSupported(format string, args ...interface{}) *NotSupportedError {
	return &NotSupportedError{Message: fmt.Sprintf(format, args...)}
}
