package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrProductNotFound    = fmt.Errorf("product %w", ErrNotFound)
	ErrVariantNotFound    = fmt.Errorf("variant %w", ErrNotFound)
	ErrOrderNotFound      = fmt.Errorf("order %w", ErrNotFound)
	ErrCartItemNotFound   = fmt.Errorf("cart item %w", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrCategoryNotFound   = fmt.Errorf("category %w", ErrNotFound)
	ErrValidation         = errors.New("validation failed")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrSignatureMismatch  = errors.New("invalid payment signature")
	ErrCacheMiss          = errors.New("cache miss")
)

// Validationf wraps ErrValidation with a message naming the offending field.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// StockError names the product (and variant) whose stock could not cover a request.
type StockError struct {
	ProductName string
	VariantName string
	Requested   int
	Available   int
}

func (e *StockError) Error() string {
	if e.VariantName != "" {
		return fmt.Sprintf("insufficient stock for %s (%s)", e.ProductName, e.VariantName)
	}
	return fmt.Sprintf("insufficient stock for %s", e.ProductName)
}

func (e *StockError) Is(target error) bool { return target == ErrInsufficientStock }
