package persistence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/go_cart/cartstore/internal/domain"
	"github.com/fjod/go_cart/cartstore/internal/storage"
)

// Adapter persists one browser session's cart and the per-user carts it merges with.
// Anonymous-slot writes are best effort: failures are logged, never returned.
type Adapter struct {
	slots   storage.Slots
	anonKey string
	logger  *zap.Logger
}

func New(slots storage.Slots, sessionID string, logger *zap.Logger) *Adapter {
	return &Adapter{
		slots:   slots,
		anonKey: AnonymousKey(sessionID),
		logger:  logger.With(zap.String("slot", AnonymousKey(sessionID))),
	}
}

func AnonymousKey(sessionID string) string {
	return fmt.Sprintf("cart:%s", sessionID)
}

func UserKey(userID string) string {
	return fmt.Sprintf("cart:user:%s", userID)
}

var ErrBackendUnavailable = errors.New("cart storage unavailable")

// Load reads the anonymous slot. Missing, unreadable or non-array content
// yields an empty cart; content that does not parse is also erased.
func (a *Adapter) Load(ctx context.Context) []domain.CartItem {
	items, err := a.LoadErr(ctx)
	if err != nil {
		a.logger.Warn("load cart failed", zap.Error(err))
		return []domain.CartItem{}
	}
	return items
}

// LoadErr is Load for callers that must not mistake an outage for an empty
// cart: a backend failure is returned wrapped in ErrBackendUnavailable.
func (a *Adapter) LoadErr(ctx context.Context) ([]domain.CartItem, error) {
	data, err := a.slots.Get(ctx, a.anonKey)
	if errors.Is(err, storage.ErrSlotNotFound) {
		return []domain.CartItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	items, err := decodeItems(data)
	if errors.Is(err, errNotArray) {
		a.logger.Warn("stored cart is not an array, ignoring")
		return []domain.CartItem{}, nil
	}
	if err != nil {
		a.logger.Warn("stored cart is corrupted, clearing", zap.Error(err))
		a.ClearAnonymous(ctx)
		return []domain.CartItem{}, nil
	}
	return items, nil
}

func (a *Adapter) Save(ctx context.Context, items []domain.CartItem) {
	data, err := json.Marshal(normalize(items))
	if err != nil {
		a.logger.Warn("marshal cart failed", zap.Error(err))
		return
	}
	if err := a.slots.Set(ctx, a.anonKey, data); err != nil {
		a.logger.Warn("save cart failed", zap.Error(err))
	}
}

func (a *Adapter) ClearAnonymous(ctx context.Context) {
	if err := a.slots.Delete(ctx, a.anonKey); err != nil {
		a.logger.Warn("clear cart slot failed", zap.Error(err))
	}
}

func (a *Adapter) SaveForUser(ctx context.Context, userID string, items []domain.CartItem, ts time.Time) error {
	record := domain.UserCart{
		UserID:      userID,
		Items:       normalize(items),
		LastUpdated: ts.UTC(),
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal user cart failed: %w", err)
	}
	if err := a.slots.Set(ctx, UserKey(userID), data); err != nil {
		return fmt.Errorf("save user cart failed: %w", err)
	}
	return nil
}

// LoadForUser returns the saved items of a user, empty when nothing was saved.
func (a *Adapter) LoadForUser(ctx context.Context, userID string) ([]domain.CartItem, error) {
	data, err := a.slots.Get(ctx, UserKey(userID))
	if errors.Is(err, storage.ErrSlotNotFound) {
		return []domain.CartItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user cart failed: %w", err)
	}

	var record domain.UserCart
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal user cart failed: %w", err)
	}
	return normalize(record.Items), nil
}

var errNotArray = errors.New("cart document is not an array")

func decodeItems(data []byte) ([]domain.CartItem, error) {
	if !json.Valid(data) {
		return nil, errors.New("invalid JSON")
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errNotArray
	}

	var items []domain.CartItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return normalize(items), nil
}

// normalize recomputes item keys so stored documents always agree with
// the product and variant fields.
func normalize(items []domain.CartItem) []domain.CartItem {
	out := make([]domain.CartItem, 0, len(items))
	for _, it := range items {
		it.ItemKey = it.Key()
		out = append(out, it)
	}
	return out
}
