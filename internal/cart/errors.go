package cart

import (
	"errors"
	"fmt"
)

var (
	ErrStockExceeded   = errors.New("stock exceeded")
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrIndexOutOfRange = errors.New("cart line index out of range")
	ErrDuplicateLine   = errors.New("duplicate cart line")
)

// StockError reports a quantity above the stock ceiling of a line.
// It matches ErrStockExceeded with errors.Is.
type StockError struct {
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("Only %d items available in stock", e.Available)
}

func (e *StockError) Is(target error) bool {
	return target == ErrStockExceeded
}
