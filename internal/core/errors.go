package core

import (
	"errors"
	"fmt"
)

// ValidationError is a client-side check that failed before any request
// was issued.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}

var (
	ErrInvalidAmount       = NewValidationError("amount", "amount must be a positive number")
	ErrInvalidBudgetAmount = NewValidationError("amount", "budget amount must be a positive number")
	ErrMissingCategory     = NewValidationError("category", "category must be selected")
	ErrEmptyCategoryName   = NewValidationError("name", "category name cannot be empty")
	ErrInvalidCategoryType = NewValidationError("type", "category type must be income or expense")
	ErrMissingID           = NewValidationError("id", "id is required")
)

// ConflictError reports a write refused because other records still
// reference the target.
type ConflictError struct {
	Resource string
	Count    int
	Msg      string
}

func (e *ConflictError) Error() string {
	return e.Msg
}

func NewCategoryInUseError(name string, count int) error {
	return &ConflictError{
		Resource: name,
		Count:    count,
		Msg: fmt.Sprintf("Category %q has %d associated transaction(s). Please reassign or delete them first.",
			name, count),
	}
}

func IsConflictError(err error) bool {
	var conflictError *ConflictError
	return errors.As(err, &conflictError)
}
