package shop

import (
	"math"

	"github.com/medleyhq/medley/models"
)

// Totals are the money figures shown on the cart and checkout pages.
type Totals struct {
	Subtotal       float64
	Saving         float64
	AfterSaving    float64
	CouponPercent  int
	CouponDiscount float64
	Shipping       float64
	Total          float64
}

// ComputeTotals prices cart lines: discounts come off first, then the
// coupon percentage applies to what is left.
func ComputeTotals(lines []models.OrderItem, coupon *models.Coupon) Totals {
	var t Totals
	for _, l := range lines {
		qty := float64(l.Quantity)
		t.Subtotal += qty * l.Item.Price
		if l.Item.DiscountPrice != nil {
			t.Saving += qty * (l.Item.Price - *l.Item.DiscountPrice)
		}
	}
	if coupon != nil {
		t.CouponPercent = coupon.Discount
	}

	t.Subtotal = roundCents(t.Subtotal)
	t.Saving = roundCents(t.Saving)
	t.AfterSaving = roundCents(t.Subtotal - t.Saving)
	t.CouponDiscount = roundCents(t.AfterSaving * float64(t.CouponPercent) / 100)
	t.Total = roundCents(t.AfterSaving - t.CouponDiscount)
	return t
}

// LineTotal is the undiscounted cost of a cart line.
func LineTotal(l models.OrderItem) float64 {
	return roundCents(float64(l.Quantity) * l.Item.Price)
}

// LineFinal is what a cart line costs after its item discount.
func LineFinal(l models.OrderItem) float64 {
	return roundCents(float64(l.Quantity) * l.Item.EffectivePrice())
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
