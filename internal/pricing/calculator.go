package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/fjod/go_cart/cartstore/internal/domain"
)

// Rules are the storewide shipping and tax parameters.
type Rules struct {
	FreeShippingThreshold decimal.Decimal
	FlatShipping          decimal.Decimal
	TaxRate               decimal.Decimal
}

func DefaultRules() Rules {
	return Rules{
		FreeShippingThreshold: decimal.NewFromInt(50),
		FlatShipping:          decimal.NewFromInt(10),
		TaxRate:               decimal.RequireFromString("0.08"),
	}
}

type Calculator struct {
	rules Rules
}

func NewCalculator(rules Rules) *Calculator {
	return &Calculator{rules: rules}
}

func (c *Calculator) Rules() Rules {
	return c.rules
}

// Calculate derives the totals of items. Money values are rounded half up to
// cents only on output; shipping is decided on the unrounded subtotal.
func (c *Calculator) Calculate(items []domain.CartItem) domain.Totals {
	subtotal := decimal.Zero
	totalItems := 0
	for _, it := range items {
		subtotal = subtotal.Add(decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity))))
		totalItems += it.Quantity
	}

	shipping := c.rules.FlatShipping
	if subtotal.GreaterThanOrEqual(c.rules.FreeShippingThreshold) {
		shipping = decimal.Zero
	}
	tax := subtotal.Mul(c.rules.TaxRate)
	total := subtotal.Add(shipping).Add(tax)

	return domain.Totals{
		Subtotal:   money(subtotal),
		Shipping:   money(shipping),
		Tax:        money(tax),
		Total:      money(total),
		TotalItems: totalItems,
	}
}

func (c *Calculator) ItemCount(items []domain.CartItem) int {
	n := 0
	for _, it := range items {
		n += it.Quantity
	}
	return n
}

// money rounds to cents; for the non-negative amounts of a cart, half away
// from zero is half up.
func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
