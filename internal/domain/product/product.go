package product

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/money"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// NotFoundError indicates a scanned code is not present in the catalog.
type NotFoundError struct {
	Code string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.Code)
}

// Is makes errors.Is(err, ErrNotFound) match.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Product represents a priced catalog item. Two products with the same code
// are the same product.
type Product struct {
	Code  string
	Name  string
	Price money.Money
}

// Equal reports whether p and other share a product code.
func (p Product) Equal(other Product) bool {
	return p.Code == other.Code
}

// Catalog defines read operations for the product catalog.
type Catalog interface {
	Find(ctx context.Context, code string) (*Product, error)
	List(ctx context.Context) ([]Product, error)
}
