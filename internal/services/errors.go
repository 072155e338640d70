package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sweetshop/apiserver/internal/auth"
	"github.com/sweetshop/apiserver/internal/store"
)

var (
	ErrUnauthenticated = auth.ErrUnauthenticated
	ErrForbidden       = auth.ErrForbidden

	ErrNotFound           = errors.New("sweet not found")
	ErrDuplicateName      = errors.New("sweet with this name already exists")
	ErrEmailTaken         = errors.New("user already exists with this email")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects field-level input violations.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a violation for field.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// OrNil returns e when it holds at least one violation.
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// InsufficientStockError reports a purchase larger than the stock on hand.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock. Available: %d, Requested: %d", e.Available, e.Requested)
}

// translateStoreError maps persistence errors onto the service taxonomy.
func translateStoreError(err error) error {
	var stockErr *store.StockError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &stockErr):
		return &InsufficientStockError{Available: stockErr.Available, Requested: stockErr.Requested}
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrDuplicate):
		return ErrDuplicateName
	case errors.Is(err, store.ErrQuantityOverflow):
		verr := &ValidationError{}
		verr.Add("quantity", fmt.Sprintf("Stock cannot exceed %d units", store.MaxQuantity))
		return verr
	default:
		return err
	}
}
