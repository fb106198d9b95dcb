package domain

import (
	"fmt"
	"time"
)

// ProductSnapshot is the catalog view of a product at the moment it is added to a cart.
type ProductSnapshot struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"originalPrice,omitempty"`
	Image         string  `json:"image"`
	StockQuantity int     `json:"stockQuantity"`
}

// CartItem is one line of a cart. Price, name, image and stock ceiling are frozen at add time.
type CartItem struct {
	ProductID     string    `json:"id"`
	Name          string    `json:"name"`
	Price         float64   `json:"price"`
	OriginalPrice float64   `json:"originalPrice"`
	Image         string    `json:"image"`
	Color         string    `json:"color"`
	Size          string    `json:"size"`
	Quantity      int       `json:"quantity"`
	StockQuantity int       `json:"stockQuantity"`
	ItemKey       string    `json:"itemKey"`
	AddedAt       time.Time `json:"addedAt"`
}

// Key recomputes the identity of the line from its product and variant.
func (i CartItem) Key() string {
	return ItemKey(i.ProductID, i.Color, i.Size)
}

// ItemKey joins product id and variant into the identity of a cart line.
func ItemKey(productID, color, size string) string {
	return fmt.Sprintf("%s-%s-%s", productID, color, size)
}

// NewCartItem snapshots a product into a fresh line.
func NewCartItem(p ProductSnapshot, color, size string, quantity int, now time.Time) CartItem {
	original := p.OriginalPrice
	if original == 0 {
		original = p.Price
	}
	return CartItem{
		ProductID:     p.ID,
		Name:          p.Name,
		Price:         p.Price,
		OriginalPrice: original,
		Image:         p.Image,
		Color:         color,
		Size:          size,
		Quantity:      quantity,
		StockQuantity: p.StockQuantity,
		ItemKey:       ItemKey(p.ID, color, size),
		AddedAt:       now,
	}
}

// UserCart is the record kept in the per-user slot between logins.
type UserCart struct {
	UserID      string     `json:"userId"`
	Items       []CartItem `json:"items"`
	LastUpdated time.Time  `json:"lastUpdated"`
}

type Totals struct {
	Subtotal   float64 `json:"subtotal"`
	Shipping   float64 `json:"shipping"`
	Tax        float64 `json:"tax"`
	Total      float64 `json:"total"`
	TotalItems int     `json:"totalItems"`
}

// CheckoutItem is the reduced line shape handed to order creation.
type CheckoutItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
	Color     string  `json:"color"`
	Size      string  `json:"size"`
	Image     string  `json:"image"`
}

type CheckoutSnapshot struct {
	Items     []CheckoutItem `json:"items"`
	Summary   Totals         `json:"summary"`
	Timestamp time.Time      `json:"timestamp"`
}

// CloneItems returns a copy of items that shares no backing array with the input.
func CloneItems(items []CartItem) []CartItem {
	out := make([]CartItem, len(items))
	copy(out, items)
	return out
}
