package entity

import "fmt"

// DomainError represents a business-rule violation inside the domain layer.
type DomainError struct {
	message string
	code    string
}

// NewDomainError creates a new domain error with a message and a code usable
// for programmatic handling.
func NewDomainError(message, code string) *DomainError {
	return &DomainError{message: message, code: code}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	return fmt.Sprintf("%s (%s)", e.message, e.code)
}

// Code returns the machine-readable error code.
func (e *DomainError) Code() string {
	return e.code
}
