// Package shop implements the storefront: catalogue, reviews, cart,
// coupons, checkout, payments and refunds.
package shop

import (
	"errors"
	"log/slog"
	"time"

	"github.com/medleyhq/medley/lib/payments"
	"gorm.io/gorm"
)

var (
	ErrItemNotFound      = errors.New("item not found")
	ErrNoActiveOrder     = errors.New("no active order")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrNotInCart         = errors.New("item is not in the cart")
	ErrCouponNotFound    = errors.New("coupon does not exist")
	ErrOrderNotFound     = errors.New("no order with that reference code")
	ErrLineNotFound      = errors.New("order item not found")
	ErrInvalidQuantity   = errors.New("quantity must be at least 1")
	ErrNoDefaultAddress  = errors.New("no default address saved")
	ErrPaymentNotEnabled = errors.New("card payments are not configured")
)

// Page sizes of the catalogue listings.
const (
	HomePageSize     = 8
	CategoryPageSize = 12
	AllPageSize      = 8
	SearchPageSize   = 8
	ReviewPageSize   = 5
)

type Service struct {
	db      *gorm.DB
	charger payments.Charger
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a shop service. A nil charger disables card payments.
func New(db *gorm.DB, charger payments.Charger, logger *slog.Logger) *Service {
	return &Service{db: db, charger: charger, logger: logger, now: time.Now}
}
