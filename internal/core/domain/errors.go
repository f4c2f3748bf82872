package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProduct   = errors.New("unknown product")
	ErrShopNotFound     = errors.New("shop not found")
	ErrCartNotFound     = errors.New("cart not found")
	ErrSaveInProgress   = errors.New("save already in progress")
	ErrDuplicateRequest = errors.New("duplicate request")
)

// ValidationError reports input rejected before any state was changed.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// StoreError wraps a failure of the persistence collaborator.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func IsStore(err error) bool {
	var s *StoreError
	return errors.As(err, &s)
}
