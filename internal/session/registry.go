// Package session keeps one live cart per shopper session.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/go_cart/cartstore/internal/cart"
	"github.com/fjod/go_cart/cartstore/internal/persistence"
	"github.com/fjod/go_cart/cartstore/internal/storage"
)

var ErrSessionIDMissing = errors.New("session id is required")

// Cart is a loaded session cart together with the adapter it persists through.
type Cart struct {
	Store       *cart.Store
	Persistence *persistence.Adapter
}

type Registry struct {
	slots  storage.Slots
	logger *zap.Logger
	opts   []cart.Option

	mu    sync.RWMutex
	carts map[string]*Cart
	sfg   singleflight.Group // one slot load per session
}

func NewRegistry(slots storage.Slots, logger *zap.Logger, opts ...cart.Option) *Registry {
	return &Registry{
		slots:  slots,
		logger: logger,
		opts:   opts,
		carts:  make(map[string]*Cart),
	}
}

// Get returns the cart for sessionID, loading it from its slot on first use.
// A storage outage during that load is returned and nothing is cached.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Cart, error) {
	if sessionID == "" {
		return nil, ErrSessionIDMissing
	}

	r.mu.RLock()
	c, ok := r.carts[sessionID]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	// the load is shared by every waiting caller, so no single caller may cancel it
	loadCtx := context.WithoutCancel(ctx)
	v, err, _ := r.sfg.Do(sessionID, func() (interface{}, error) {
		r.mu.RLock()
		c, ok := r.carts[sessionID]
		r.mu.RUnlock()
		if ok {
			return c, nil
		}

		adapter := persistence.New(r.slots, sessionID, r.logger)
		items, err := adapter.LoadErr(loadCtx)
		if err != nil {
			// not cached: the next Get retries the slot
			return nil, fmt.Errorf("load session %s: %w", sessionID, err)
		}
		c = &Cart{
			Store:       cart.NewStore(items, adapter, r.opts...),
			Persistence: adapter,
		}

		r.mu.Lock()
		r.carts[sessionID] = c
		r.mu.Unlock()

		r.logger.Debug("session cart loaded", zap.String("session_id", sessionID), zap.Int("lines", len(c.Store.Items())))
		return c, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Cart), nil
}

// Forget drops the in-memory cart. The slot is left alone, so the next Get reloads it.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	delete(r.carts, sessionID)
	r.mu.Unlock()
}

// ClearSession empties the cart of sessionID whether or not it is loaded.
func (r *Registry) ClearSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrSessionIDMissing
	}

	r.mu.RLock()
	c, ok := r.carts[sessionID]
	r.mu.RUnlock()
	if ok {
		c.Store.Clear(ctx)
		return nil
	}

	err := r.slots.Delete(ctx, persistence.AnonymousKey(sessionID))
	if err != nil && !errors.Is(err, storage.ErrSlotNotFound) {
		return fmt.Errorf("clear session %s: %w", sessionID, err)
	}
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.carts)
}
