package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/go_cart/cartstore/internal/domain"
)

// Persister receives the full item list after every mutation.
type Persister interface {
	Save(ctx context.Context, items []domain.CartItem)
	ClearAnonymous(ctx context.Context)
}

type Option func(*Store)

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the ordered set of cart lines of one session. At most one line
// exists per item key and every stored quantity is positive.
type Store struct {
	m       sync.Mutex
	items   []domain.CartItem
	lastErr error
	persist Persister
	now     func() time.Time
}

func NewStore(items []domain.CartItem, persist Persister, opts ...Option) *Store {
	s := &Store{
		items:   make([]domain.CartItem, 0, len(items)),
		persist: persist,
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	// lines loaded from storage are trusted only as far as the invariants go
	for _, it := range items {
		if it.Quantity <= 0 || s.indexOf(it.Key()) >= 0 {
			continue
		}
		it.ItemKey = it.Key()
		s.items = append(s.items, it)
	}
	return s
}

// Add inserts a new line or grows an existing one. A result above the stock
// ceiling of p rejects the call and leaves the cart untouched.
func (s *Store) Add(ctx context.Context, p domain.ProductSnapshot, color, size string, quantity int) (domain.CartItem, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if quantity <= 0 {
		return domain.CartItem{}, s.reject(ErrInvalidQuantity)
	}

	var item domain.CartItem
	if idx := s.indexOf(domain.ItemKey(p.ID, color, size)); idx >= 0 {
		newQuantity := s.items[idx].Quantity + quantity
		if newQuantity > p.StockQuantity {
			return domain.CartItem{}, s.reject(&StockError{Available: p.StockQuantity})
		}
		s.items[idx].Quantity = newQuantity
		item = s.items[idx]
	} else {
		if quantity > p.StockQuantity {
			return domain.CartItem{}, s.reject(&StockError{Available: p.StockQuantity})
		}
		item = domain.NewCartItem(p, color, size, quantity, s.now())
		s.items = append(s.items, item)
	}

	s.commit(ctx)
	return item, nil
}

// UpdateQuantity sets the quantity of the line at index. A quantity of zero
// or less removes the line, reported by removed.
func (s *Store) UpdateQuantity(ctx context.Context, index, quantity int) (item domain.CartItem, removed bool, err error) {
	s.m.Lock()
	defer s.m.Unlock()

	if index < 0 || index >= len(s.items) {
		return domain.CartItem{}, false, s.reject(ErrIndexOutOfRange)
	}

	if quantity <= 0 {
		item = s.removeAt(index)
		s.commit(ctx)
		return item, true, nil
	}

	if quantity > s.items[index].StockQuantity {
		return domain.CartItem{}, false, s.reject(&StockError{Available: s.items[index].StockQuantity})
	}

	s.items[index].Quantity = quantity
	s.commit(ctx)
	return s.items[index], false, nil
}

func (s *Store) Remove(ctx context.Context, index int) (domain.CartItem, error) {
	s.m.Lock()
	defer s.m.Unlock()

	if index < 0 || index >= len(s.items) {
		return domain.CartItem{}, s.reject(ErrIndexOutOfRange)
	}

	item := s.removeAt(index)
	s.commit(ctx)
	return item, nil
}

// Clear empties the cart and erases the anonymous slot.
func (s *Store) Clear(ctx context.Context) {
	s.m.Lock()
	defer s.m.Unlock()

	s.items = []domain.CartItem{}
	s.lastErr = nil
	s.persist.ClearAnonymous(ctx)
}

// Transform replaces the item list with the result of fn, atomically with
// respect to other mutations. When fn fails, or its result breaks the
// one-line-per-key rule, nothing changes.
func (s *Store) Transform(ctx context.Context, fn func(current []domain.CartItem) ([]domain.CartItem, error)) ([]domain.CartItem, error) {
	s.m.Lock()
	defer s.m.Unlock()

	next, err := fn(domain.CloneItems(s.items))
	if err != nil {
		return nil, err
	}
	if err := validate(next); err != nil {
		return nil, err
	}

	s.items = domain.CloneItems(next)
	for i := range s.items {
		s.items[i].ItemKey = s.items[i].Key()
	}
	s.commit(ctx)
	return domain.CloneItems(s.items), nil
}

func (s *Store) Items() []domain.CartItem {
	s.m.Lock()
	defer s.m.Unlock()
	return domain.CloneItems(s.items)
}

func (s *Store) Find(productID, color, size string) (domain.CartItem, bool) {
	s.m.Lock()
	defer s.m.Unlock()
	idx := s.indexOf(domain.ItemKey(productID, color, size))
	if idx < 0 {
		return domain.CartItem{}, false
	}
	return s.items[idx], true
}

// LastError is the failure of the most recent rejected mutation, nil once a
// later mutation succeeds or ClearError is called.
func (s *Store) LastError() error {
	s.m.Lock()
	defer s.m.Unlock()
	return s.lastErr
}

func (s *Store) ClearError() {
	s.m.Lock()
	defer s.m.Unlock()
	s.lastErr = nil
}

func (s *Store) reject(err error) error {
	s.lastErr = err
	return err
}

func (s *Store) commit(ctx context.Context) {
	s.lastErr = nil
	s.persist.Save(ctx, domain.CloneItems(s.items))
}

func (s *Store) removeAt(index int) domain.CartItem {
	item := s.items[index]
	s.items = append(s.items[:index], s.items[index+1:]...)
	return item
}

func (s *Store) indexOf(key string) int {
	for i := range s.items {
		if s.items[i].Key() == key {
			return i
		}
	}
	return -1
}

func validate(items []domain.CartItem) error {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.Quantity <= 0 {
			return fmt.Errorf("line %s: %w", it.Key(), ErrInvalidQuantity)
		}
		if _, ok := seen[it.Key()]; ok {
			return fmt.Errorf("line %s: %w", it.Key(), ErrDuplicateLine)
		}
		seen[it.Key()] = struct{}{}
	}
	return nil
}
