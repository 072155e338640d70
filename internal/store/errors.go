package store

import (
	"errors"
	"fmt"
	"math"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a write would violate a uniqueness constraint.
	ErrDuplicate = errors.New("already exists")

	// ErrInsufficientStock is returned when a decrement would make quantity negative.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrQuantityOverflow is returned when a write would push quantity past MaxQuantity.
	ErrQuantityOverflow = errors.New("quantity out of range")
)

// MaxQuantity is the largest stock count a sweet can hold. It matches the
// INTEGER quantity column.
const MaxQuantity = math.MaxInt32

// StockError reports a rejected decrement. It unwraps to ErrInsufficientStock.
type StockError struct {
	Available int
	Requested int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %d, requested %d", e.Available, e.Requested)
}

func (e *StockError) Unwrap() error {
	return ErrInsufficientStock
}

const (
	pqUniqueViolation        = "23505"
	pqNumericValueOutOfRange = "22003"
)

func mapWriteError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		return ErrDuplicate
	case pqNumericValueOutOfRange:
		return ErrQuantityOverflow
	}
	return err
}
