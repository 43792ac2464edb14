package services

import (
	"errors"
	"fmt"

	"kitchenops/server/internal/repository"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrValidation marks input the caller must fix; nothing was written
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is re-exported so callers need not import the repository
	ErrNotFound = repository.ErrNotFound
	// ErrInvalidTransition is returned when a requisition cannot move to the requested state
	ErrInvalidTransition = errors.New("invalid requisition transition")
	// ErrRecipeLocked is returned when a non-privileged caller edits a locked recipe
	ErrRecipeLocked = errors.New("recipe is locked")
)

var validate = validator.New()

// validateStruct runs struct tag validation and wraps failures in ErrValidation
func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err.Error())
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
