package inventory

import (
	"fmt"

	"github.com/go-faster/errors"
)

// ErrInsufficientStock matches any InsufficientStockError via errors.Is.
var ErrInsufficientStock = errors.New("insufficient stock")

// InsufficientStockError reports a reservation that could not be satisfied.
type InsufficientStockError struct {
	ProductCode string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: requested: %d, available: %d, shortage: %d",
		e.ProductCode, e.Requested, e.Available, e.Shortage())
}

// Is makes errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Shortage is the number of units missing to satisfy the request.
func (e *InsufficientStockError) Shortage() int {
	return e.Requested - e.Available
}

// InvariantError describes a ledger state that violates a stock invariant.
type InvariantError struct {
	Code   string
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("stock invariant violated for %q: %s", e.Code, e.Reason)
}
