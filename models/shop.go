package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	CategoryMen   = "M"
	CategoryWomen = "W"

	LabelPrimary   = "P"
	LabelSecondary = "S"
	LabelDanger    = "D"

	AddressBilling  = "B"
	AddressShipping = "S"
)

type Item struct {
	gorm.Model
	Title         string  `gorm:"size:100;not null"`
	Price         float64 `gorm:"not null"`
	DiscountPrice *float64
	Description   string
	Available     bool   `gorm:"index"`
	Category      string `gorm:"size:1;index"`
	Label         string `gorm:"size:1"`
	Slug          string `gorm:"size:120;uniqueIndex"`
	Image         string
	Reviews       []Review
}

func (i Item) HasDiscount() bool {
	return i.DiscountPrice != nil
}

// EffectivePrice is the discounted price when one is set.
func (i Item) EffectivePrice() float64 {
	if i.DiscountPrice != nil {
		return *i.DiscountPrice
	}
	return i.Price
}

func (i Item) URL() string {
	return "/shop/product/" + i.Slug
}

type Review struct {
	gorm.Model
	ItemID  uint `gorm:"index;not null"`
	UserID  uint `gorm:"not null"`
	User    User
	Rating  int    `gorm:"not null"`
	Comment string `gorm:"size:500"`
}

type Coupon struct {
	gorm.Model
	Code      string `gorm:"size:15;uniqueIndex;not null"`
	ValidFrom time.Time
	ValidTo   time.Time
	Discount  int
	Active    bool
}

// ValidAt reports whether the coupon can be redeemed at t.
func (c Coupon) ValidAt(t time.Time) bool {
	return c.Active && !t.Before(c.ValidFrom) && !t.After(c.ValidTo)
}

type Address struct {
	gorm.Model
	UserID  uint   `gorm:"index:idx_addresses_user_type,priority:1;not null"`
	Country string `gorm:"size:2"`
	Street  string `gorm:"size:100"`
	Zip     string `gorm:"size:20"`
	Type    string `gorm:"size:1;index:idx_addresses_user_type,priority:2"`
	Default bool   `gorm:"column:is_default"`
}

type Payment struct {
	gorm.Model
	UserID         *uint
	StripeChargeID string `gorm:"size:50"`
	Amount         float64
}

type Order struct {
	gorm.Model
	UserID            uint `gorm:"index;not null"`
	User              User
	RefCode           string `gorm:"size:20;index"`
	Items             []OrderItem
	StartDate         time.Time
	OrderedDate       *time.Time
	IsOrdered         bool `gorm:"index"`
	BillingAddressID  *uint
	BillingAddress    *Address
	ShippingAddressID *uint
	ShippingAddress   *Address
	PaymentID         *uint
	Payment           *Payment
	CouponID          *uint
	Coupon            *Coupon
	BeingDelivered    bool
	Received          bool
	RefundRequested   bool
	RefundGranted     bool
}

// OrderItem is one cart line. Lines are hard deleted when removed.
type OrderItem struct {
	ID        uint `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	UserID    uint `gorm:"index;not null"`
	OrderID   uint `gorm:"index;not null"`
	ItemID    uint `gorm:"not null"`
	Item      Item
	Quantity  int `gorm:"not null"`
	IsOrdered bool
}

type Refund struct {
	gorm.Model
	OrderID  uint   `gorm:"index"`
	RefCode  string `gorm:"size:20"`
	Reason   string
	Email    string `gorm:"size:254"`
	Accepted bool
}
