// Package pricing computes payable line amounts from a product, a
// quantity, an optional promotion and a point in time. Every function
// here is pure: same inputs, same output, no shared state.
package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ClaudeNdayambaje/payesmart1/internal/models"
)

var hundred = decimal.NewFromInt(100)

// IsPromotionActive reports whether the promotion applies at now.
// Both bounds are inclusive.
func IsPromotionActive(p *models.Promotion, now time.Time) bool {
	if p == nil {
		return false
	}
	return !now.Before(p.StartDate) && !now.After(p.EndDate)
}

// LinePrice returns the payable amount for quantity units of product
// at now, applying the product's promotion when it is active.
func LinePrice(product models.Product, quantity int, now time.Time) decimal.Decimal {
	qty := decimal.NewFromInt(int64(quantity))
	full := product.Price.Mul(qty)

	promo := product.Promotion
	if !IsPromotionActive(promo, now) {
		return full
	}

	switch promo.Kind {
	case models.PromotionPercentage:
		factor := decimal.NewFromInt(1).Sub(promo.Value.Div(hundred))
		return full.Mul(factor)
	case models.PromotionFixed:
		discounted := product.Price.Sub(promo.Value).Mul(qty)
		if discounted.IsNegative() {
			return decimal.Zero
		}
		return discounted
	case models.PromotionBuyXGetY:
		if promo.BuyQuantity <= 0 || promo.GetFreeQuantity <= 0 {
			return full
		}
		group := promo.BuyQuantity + promo.GetFreeQuantity
		sets := quantity / group
		remainder := quantity % group
		payableUnits := sets*promo.BuyQuantity + min(remainder, promo.BuyQuantity)
		return product.Price.Mul(decimal.NewFromInt(int64(payableUnits)))
	default:
		return full
	}
}

// CartSubtotal sums the payable amounts of all lines at now.
func CartSubtotal(items []models.CartItem, now time.Time) decimal.Decimal {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(LinePrice(item.Product, item.Quantity, now))
	}
	return subtotal
}

// ApplyDiscount applies a percentage discount (e.g. a loyalty tier's)
// to an amount.
func ApplyDiscount(amount, percentage decimal.Decimal) decimal.Decimal {
	return amount.Mul(decimal.NewFromInt(1).Sub(percentage.Div(hundred)))
}

// VATBreakdown extracts the VAT portion per rate from VAT-inclusive
// line amounts, keyed by rate ("6", "12", "21"). The discount factor
// reduces each line proportionally so the breakdown matches the
// discounted total.
func VATBreakdown(items []models.CartItem, now time.Time, discountFactor decimal.Decimal) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, item := range items {
		gross := LinePrice(item.Product, item.Quantity, now).Mul(discountFactor)
		rate := decimal.NewFromInt(int64(item.Product.VATRate))
		// gross = net * (1 + rate/100) => vat = gross - gross/(1+rate/100)
		divisor := decimal.NewFromInt(1).Add(rate.Div(hundred))
		vat := gross.Sub(gross.DivRound(divisor, 4))
		key := rate.String()
		out[key] = out[key].Add(vat)
	}
	return out
}
