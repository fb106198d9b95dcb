package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/go_cart/cartstore/internal/cart"
	"github.com/fjod/go_cart/cartstore/internal/domain"
	"github.com/fjod/go_cart/cartstore/internal/notify"
	"github.com/fjod/go_cart/cartstore/internal/persistence"
	"github.com/fjod/go_cart/cartstore/internal/pricing"
	"github.com/fjod/go_cart/cartstore/internal/storage"
)

type mockUserCarts struct {
	m       sync.RWMutex
	saved   map[string][]domain.CartItem
	loadErr error
	saveErr error
	saves   int
}

func (m *mockUserCarts) LoadForUser(_ context.Context, userID string) ([]domain.CartItem, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return domain.CloneItems(m.saved[userID]), nil
}

func (m *mockUserCarts) SaveForUser(_ context.Context, userID string, items []domain.CartItem, _ time.Time) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.saved == nil {
		m.saved = map[string][]domain.CartItem{}
	}
	m.saved[userID] = domain.CloneItems(items)
	return nil
}

var fixedNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

type fixture struct {
	sut      *CartService
	store    *cart.Store
	users    *mockUserCarts
	recorder *notify.Recorder
	slots    *storage.MemorySlots
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	slots := storage.NewMemorySlots()
	adapter := persistence.New(slots, "session-1", zap.NewNop())
	clock := func() time.Time { return fixedNow }
	store := cart.NewStore(adapter.Load(context.Background()), adapter, cart.WithClock(clock))
	users := &mockUserCarts{}
	recorder := notify.NewRecorder()
	sut := NewCartService(store, users, pricing.NewCalculator(pricing.DefaultRules()), recorder, zap.NewNop(), WithClock(clock))
	return &fixture{sut: sut, store: store, users: users, recorder: recorder, slots: slots}
}

func shirt() domain.ProductSnapshot {
	return domain.ProductSnapshot{ID: "P1", Name: "Shirt", Price: 20, Image: "shirt.png", StockQuantity: 5}
}

func TestAddToCart_ScenarioTotals(t *testing.T) {
	f := newFixture(t)

	res := f.sut.AddToCart(context.Background(), shirt(), "Black", "M", 2)
	require.True(t, res.Success)
	assert.Equal(t, "Item added to cart successfully!", res.Message)

	items := f.sut.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "P1", items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, domain.Totals{Subtotal: 40, Shipping: 10, Tax: 3.2, Total: 53.2, TotalItems: 2}, f.sut.CartTotals())

	assert.Equal(t, []notify.Notification{{Level: notify.LevelSuccess, Message: "Black M Shirt added to cart!"}}, f.recorder.Notifications())
}

func TestAddToCart_StockExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.True(t, f.sut.AddToCart(ctx, shirt(), "Black", "M", 2).Success)

	res := f.sut.AddToCart(ctx, shirt(), "Black", "M", 4)

	assert.False(t, res.Success)
	assert.Equal(t, "Only 5 items available in stock", res.Message)
	assert.ErrorIs(t, res.Err, cart.ErrStockExceeded)
	assert.Equal(t, 2, f.sut.Items()[0].Quantity)
	assert.Equal(t, "Only 5 items available in stock", f.sut.LastError())

	notes := f.recorder.Notifications()
	assert.Equal(t, notify.Notification{Level: notify.LevelError, Message: "Only 5 items available in stock"}, notes[len(notes)-1])

	// the pending error survives until the next successful call
	require.True(t, f.sut.AddToCart(ctx, shirt(), "Black", "M", 1).Success)
	assert.Empty(t, f.sut.LastError())
}

func TestAddToCart_NameWithoutFullVariant(t *testing.T) {
	f := newFixture(t)

	f.sut.AddToCart(context.Background(), shirt(), "Black", "", 1)

	assert.Equal(t, "Shirt added to cart!", f.recorder.Notifications()[0].Message)
}

func TestAddToCart_ZeroQuantityMeansOne(t *testing.T) {
	f := newFixture(t)

	require.True(t, f.sut.AddToCart(context.Background(), shirt(), "", "", 0).Success)
	assert.Equal(t, 1, f.sut.CartItemCount())
}

func TestAddToCart_NegativeQuantityFails(t *testing.T) {
	f := newFixture(t)

	res := f.sut.AddToCart(context.Background(), shirt(), "", "", -2)
	assert.False(t, res.Success)
	assert.Empty(t, f.sut.Items())
}

func TestUpdateQuantity_ZeroRemovesWithNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sut.AddToCart(ctx, shirt(), "", "", 1)

	res := f.sut.UpdateQuantity(ctx, 0, 0)
	require.True(t, res.Success)
	assert.Equal(t, "Shirt removed from cart", res.Message)
	assert.Empty(t, f.sut.Items())
}

func TestUpdateQuantity_AboveStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sut.AddToCart(ctx, shirt(), "", "", 1)

	res := f.sut.UpdateQuantity(ctx, 0, 6)
	assert.False(t, res.Success)
	assert.Equal(t, "Only 5 items available in stock", res.Message)
	assert.Equal(t, 1, f.sut.CartItemCount())
}

func TestUpdateQuantity_Success(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sut.AddToCart(ctx, shirt(), "", "", 1)

	res := f.sut.UpdateQuantity(ctx, 0, 3)
	assert.True(t, res.Success)
	assert.Equal(t, 3, f.sut.CartItemCount())
}

func TestUpdateQuantity_BadIndex(t *testing.T) {
	f := newFixture(t)

	res := f.sut.UpdateQuantity(context.Background(), 2, 3)
	assert.False(t, res.Success)
	assert.Equal(t, "Item is no longer in the cart", res.Message)
}

func TestRemoveFromCart_OnlyItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sut.AddToCart(ctx, shirt(), "Black", "M", 2)

	res := f.sut.RemoveFromCart(ctx, 0)
	require.True(t, res.Success)
	assert.Empty(t, f.sut.Items())
	assert.Equal(t, 0, f.sut.CartItemCount())

	notes := f.recorder.Notifications()
	assert.Equal(t, "Shirt removed from cart", notes[len(notes)-1].Message)
}

func TestClearCart_ErasesSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sut.AddToCart(ctx, shirt(), "", "", 1)

	res := f.sut.ClearCart(ctx)
	assert.True(t, res.Success)
	assert.Empty(t, f.sut.Items())

	_, err := f.slots.Get(ctx, "cart:session-1")
	assert.ErrorIs(t, err, storage.ErrSlotNotFound)
}

func TestIsInCartAndCartItem(t *testing.T) {
	f := newFixture(t)
	f.sut.AddToCart(context.Background(), shirt(), "Black", "M", 2)

	assert.True(t, f.sut.IsInCart("P1", "Black", "M"))
	assert.False(t, f.sut.IsInCart("P1", "Black", "S"))

	item, ok := f.sut.CartItem("P1", "Black", "M")
	require.True(t, ok)
	assert.Equal(t, 2, item.Quantity)
}

func TestPrepareCheckout_IsStableAndReadOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sut.AddToCart(ctx, shirt(), "Black", "M", 2)
	before := f.sut.Items()

	first := f.sut.PrepareCheckout()
	second := f.sut.PrepareCheckout()

	assert.Equal(t, first, second)
	assert.Equal(t, before, f.sut.Items())
	require.Len(t, first.Items, 1)
	assert.Equal(t, domain.CheckoutItem{ProductID: "P1", Name: "Shirt", Price: 20, Quantity: 2, Color: "Black", Size: "M", Image: "shirt.png"}, first.Items[0])
	assert.Equal(t, 53.2, first.Summary.Total)
	assert.Equal(t, fixedNow, first.Timestamp)
}

func TestSyncCartWithUser_MergesAndSavesBoth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sut.AddToCart(ctx, shirt(), "Black", "M", 2)
	f.users.saved = map[string][]domain.CartItem{
		"42": {
			domain.NewCartItem(shirt(), "Black", "M", 4, fixedNow),
			domain.NewCartItem(domain.ProductSnapshot{ID: "P2", Name: "Cap", Price: 5, StockQuantity: 9}, "", "", 1, fixedNow),
		},
	}

	res := f.sut.SyncCartWithUser(ctx, "42")
	require.True(t, res.Success)

	items := f.sut.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 4, items[0].Quantity)
	assert.Equal(t, "P2--", items[1].ItemKey)
	assert.Equal(t, items, f.users.saved["42"])

	reloaded := persistence.New(f.slots, "session-1", zap.NewNop()).Load(ctx)
	assert.Equal(t, items, reloaded)
}

func TestSyncCartWithUser_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sut.AddToCart(ctx, shirt(), "", "", 1)
	f.users.saved = map[string][]domain.CartItem{"42": {domain.NewCartItem(shirt(), "", "", 3, fixedNow)}}

	require.True(t, f.sut.SyncCartWithUser(ctx, "42").Success)
	afterFirst := f.sut.Items()
	require.True(t, f.sut.SyncCartWithUser(ctx, "42").Success)

	assert.Equal(t, afterFirst, f.sut.Items())
}

func TestSyncCartWithUser_NothingSaved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sut.AddToCart(ctx, shirt(), "", "", 1)

	require.True(t, f.sut.SyncCartWithUser(ctx, "new-user").Success)
	assert.Len(t, f.sut.Items(), 1)
	assert.Len(t, f.users.saved["new-user"], 1)
}

func TestSyncCartWithUser_LoadFailureLeavesCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sut.AddToCart(ctx, shirt(), "", "", 1)
	f.users.loadErr = errors.New("redis down")

	res := f.sut.SyncCartWithUser(ctx, "42")
	assert.False(t, res.Success)
	assert.Equal(t, "Failed to load user cart", res.Message)
	assert.ErrorIs(t, res.Err, ErrMergeFailed)
	notes := f.recorder.Notifications()
	assert.Equal(t, notify.Notification{Level: notify.LevelError, Message: "Failed to load user cart"}, notes[len(notes)-1])
	assert.Len(t, f.sut.Items(), 1)
	assert.Equal(t, 0, f.users.saves)
}

func TestSyncCartWithUser_SkipsInvalidSavedLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sut.AddToCart(ctx, shirt(), "", "", 1)
	f.users.saved = map[string][]domain.CartItem{"42": {
		{ProductID: "P7", Name: "Sock", Price: 3, Quantity: 1, StockQuantity: 9},
		{ProductID: "P8", Quantity: 0},
		{ProductID: "", Quantity: 2},
	}}

	res := f.sut.SyncCartWithUser(ctx, "42")
	require.True(t, res.Success)

	items := f.sut.Items()
	require.Len(t, items, 2)
	assert.Equal(t, "P7", items[1].ProductID)

	// the cleaned record replaces the bad one, so the next login works too
	assert.Len(t, f.users.saved["42"], 2)
	assert.True(t, f.sut.SyncCartWithUser(ctx, "42").Success)
}

func TestSyncCartWithUser_SaveFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.users.saveErr = errors.New("quota exceeded")

	res := f.sut.SyncCartWithUser(context.Background(), "42")
	assert.True(t, res.Success)
}

func TestSyncCartWithUser_RequiresUser(t *testing.T) {
	f := newFixture(t)

	res := f.sut.SyncCartWithUser(context.Background(), "")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, ErrUserIDMissing)
}

func TestClearError(t *testing.T) {
	f := newFixture(t)
	f.sut.AddToCart(context.Background(), shirt(), "", "", 10)
	require.NotEmpty(t, f.sut.LastError())

	f.sut.ClearError()
	assert.Empty(t, f.sut.LastError())
}
