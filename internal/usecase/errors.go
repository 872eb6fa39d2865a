package usecase

import (
	"errors"
	"fmt"

	"github.com/iho/coinledger/internal/domain"
)

// storageError classifies err. Domain errors pass through unchanged; anything
// else coming out of a repository is reported as domain.ErrStorage.
func storageError(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrStorage):
		return err
	}

	return fmt.Errorf("%w: %w", domain.ErrStorage, err)
}

// failureReason is the metrics label for a failed operation.
func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "storage"
	}
}
