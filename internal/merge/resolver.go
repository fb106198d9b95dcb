// Package merge reconciles the anonymous cart of a session with the cart a
// user saved in an earlier session.
package merge

import (
	"errors"
	"fmt"

	"github.com/fjod/go_cart/cartstore/internal/domain"
)

var ErrInvalidSavedItem = errors.New("invalid saved cart line")

// Valid splits saved lines into the ones Resolve accepts and the ones it
// would reject. Order is kept in both.
func Valid(saved []domain.CartItem) (valid, dropped []domain.CartItem) {
	valid = make([]domain.CartItem, 0, len(saved))
	for _, s := range saved {
		if validLine(s) {
			valid = append(valid, s)
			continue
		}
		dropped = append(dropped, s)
	}
	return valid, dropped
}

func validLine(it domain.CartItem) bool {
	return it.ProductID != "" && it.Quantity > 0
}

// Resolve folds saved into current. A line present in both keeps the larger
// quantity; saved lines missing from current are appended in saved order.
// Resolving the same saved list twice gives the same result as once.
func Resolve(current, saved []domain.CartItem) ([]domain.CartItem, error) {
	out := domain.CloneItems(current)
	index := make(map[string]int, len(out)+len(saved))
	for i, it := range out {
		index[it.Key()] = i
	}

	for _, s := range saved {
		if !validLine(s) {
			return nil, fmt.Errorf("%w: %q quantity %d", ErrInvalidSavedItem, s.Key(), s.Quantity)
		}
		key := s.Key()
		if i, ok := index[key]; ok {
			out[i].Quantity = max(out[i].Quantity, s.Quantity)
			continue
		}
		s.ItemKey = key
		index[key] = len(out)
		out = append(out, s)
	}
	return out, nil
}
