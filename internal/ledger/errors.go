package ledger

import (
	"errors"
	"fmt"
)

// Common errors returned by the ledger
var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// InsufficientStockError reports how much stock was actually available when a
// decrement was refused.
type InsufficientStockError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for product %d: only %d items available, %d requested",
		e.ProductID, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func productNotFound(productID int64) error {
	return fmt.Errorf("%w: id %d", ErrProductNotFound, productID)
}
