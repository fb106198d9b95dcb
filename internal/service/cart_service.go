package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/go_cart/cartstore/internal/cart"
	"github.com/fjod/go_cart/cartstore/internal/domain"
	"github.com/fjod/go_cart/cartstore/internal/merge"
	"github.com/fjod/go_cart/cartstore/internal/pricing"
)

// Notifier shows transient messages to the shopper.
type Notifier interface {
	Success(message string)
	Error(message string)
}

// UserCarts is the per-user side of cart persistence.
type UserCarts interface {
	LoadForUser(ctx context.Context, userID string) ([]domain.CartItem, error)
	SaveForUser(ctx context.Context, userID string, items []domain.CartItem, ts time.Time) error
}

// Result is what UI code shows. Err is the cause of a failure, for callers
// that map it to a status; it is never serialized.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

var (
	ErrMergeFailed   = errors.New("failed to load user cart")
	ErrUserIDMissing = errors.New("user id is required")
)

const (
	msgAddFailed   = "Failed to add item to cart"
	msgAdded       = "Item added to cart successfully!"
	msgUpdated     = "Quantity updated"
	msgCartCleared = "Cart cleared successfully"
	msgSynced      = "Cart synced"
	msgSyncFailed  = "Failed to load user cart"
)

type Option func(*CartService)

func WithClock(now func() time.Time) Option {
	return func(s *CartService) {
		s.now = now
	}
}

// CartService is the facade UI code goes through. It is cheap to build, so
// callers may create one per request around a long-lived cart.Store.
type CartService struct {
	store    *cart.Store
	users    UserCarts
	calc     *pricing.Calculator
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewCartService(store *cart.Store, users UserCarts, calc *pricing.Calculator, notifier Notifier, logger *zap.Logger, opts ...Option) *CartService {
	s := &CartService{
		store:    store,
		users:    users,
		calc:     calc,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AddToCart adds quantity units of a product variant; a zero quantity means one.
func (s *CartService) AddToCart(ctx context.Context, p domain.ProductSnapshot, color, size string, quantity int) Result {
	if quantity == 0 {
		quantity = 1
	}

	if _, err := s.store.Add(ctx, p, color, size, quantity); err != nil {
		msg := failureMessage(err, msgAddFailed)
		s.notifier.Error(msg)
		return Result{Success: false, Message: msg, Err: err}
	}

	s.notifier.Success(fmt.Sprintf("%s added to cart!", displayName(p.Name, color, size)))
	return Result{Success: true, Message: msgAdded}
}

func (s *CartService) UpdateQuantity(ctx context.Context, index, quantity int) Result {
	item, removed, err := s.store.UpdateQuantity(ctx, index, quantity)
	if err != nil {
		msg := failureMessage(err, "Failed to update quantity")
		s.notifier.Error(msg)
		return Result{Success: false, Message: msg, Err: err}
	}
	if removed {
		msg := fmt.Sprintf("%s removed from cart", item.Name)
		s.notifier.Success(msg)
		return Result{Success: true, Message: msg}
	}
	return Result{Success: true, Message: msgUpdated}
}

func (s *CartService) RemoveFromCart(ctx context.Context, index int) Result {
	item, err := s.store.Remove(ctx, index)
	if err != nil {
		msg := failureMessage(err, "Failed to remove item")
		s.notifier.Error(msg)
		return Result{Success: false, Message: msg, Err: err}
	}
	msg := fmt.Sprintf("%s removed from cart", item.Name)
	s.notifier.Success(msg)
	return Result{Success: true, Message: msg}
}

func (s *CartService) ClearCart(ctx context.Context) Result {
	s.store.Clear(ctx)
	s.notifier.Success(msgCartCleared)
	return Result{Success: true, Message: msgCartCleared}
}

func (s *CartService) Items() []domain.CartItem {
	return s.store.Items()
}

func (s *CartService) CartTotals() domain.Totals {
	return s.calc.Calculate(s.store.Items())
}

func (s *CartService) CartItemCount() int {
	return s.calc.ItemCount(s.store.Items())
}

func (s *CartService) IsInCart(productID, color, size string) bool {
	_, ok := s.store.Find(productID, color, size)
	return ok
}

func (s *CartService) CartItem(productID, color, size string) (domain.CartItem, bool) {
	return s.store.Find(productID, color, size)
}

// LastError is the message of the last rejected mutation, empty when none is pending.
func (s *CartService) LastError() string {
	if err := s.store.LastError(); err != nil {
		return err.Error()
	}
	return ""
}

func (s *CartService) ClearError() {
	s.store.ClearError()
}

// PrepareCheckout snapshots the cart for order creation without changing it.
func (s *CartService) PrepareCheckout() domain.CheckoutSnapshot {
	items := s.store.Items()
	out := make([]domain.CheckoutItem, 0, len(items))
	for _, it := range items {
		out = append(out, domain.CheckoutItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
			Color:     it.Color,
			Size:      it.Size,
			Image:     it.Image,
		})
	}
	return domain.CheckoutSnapshot{
		Items:     out,
		Summary:   s.calc.Calculate(items),
		Timestamp: s.now().UTC(),
	}
}

// SyncCartWithUser merges the cart saved for userID into the session cart
// and writes the result back to both slots. On failure the cart is unchanged.
func (s *CartService) SyncCartWithUser(ctx context.Context, userID string) Result {
	if userID == "" {
		return Result{Success: false, Message: ErrUserIDMissing.Error(), Err: ErrUserIDMissing}
	}

	saved, err := s.users.LoadForUser(ctx, userID)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrMergeFailed, err)
		s.logger.Error("sync cart with user failed", zap.String("user_id", userID), zap.Error(err))
		s.notifier.Error(msgSyncFailed)
		return Result{Success: false, Message: msgSyncFailed, Err: err}
	}

	saved, dropped := merge.Valid(saved)
	if len(dropped) > 0 {
		s.logger.Warn("skipping invalid saved cart lines", zap.String("user_id", userID), zap.Int("dropped", len(dropped)))
	}

	merged, err := s.store.Transform(ctx, func(current []domain.CartItem) ([]domain.CartItem, error) {
		return merge.Resolve(current, saved)
	})
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrMergeFailed, err)
		s.logger.Error("merge user cart failed", zap.String("user_id", userID), zap.Error(err))
		s.notifier.Error(msgSyncFailed)
		return Result{Success: false, Message: msgSyncFailed, Err: err}
	}

	if err := s.users.SaveForUser(ctx, userID, merged, s.now()); err != nil {
		s.logger.Warn("save user cart failed", zap.String("user_id", userID), zap.Error(err))
	}
	return Result{Success: true, Message: msgSynced}
}

func displayName(name, color, size string) string {
	if color != "" && size != "" {
		return fmt.Sprintf("%s %s %s", color, size, name)
	}
	return name
}

// failureMessage keeps the text of errors meant for shoppers and hides the rest.
func failureMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, cart.ErrStockExceeded), errors.Is(err, cart.ErrInvalidQuantity):
		return err.Error()
	case errors.Is(err, cart.ErrIndexOutOfRange):
		return "Item is no longer in the cart"
	default:
		return fallback
	}
}
