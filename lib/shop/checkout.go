package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/medleyhq/medley/lib/payments"
	"github.com/medleyhq/medley/lib/validation"
	"github.com/medleyhq/medley/models"
	"gorm.io/gorm"
)

// Payment options offered at checkout.
const (
	PaymentStripe = "S"
	PaymentPayPal = "P"
)

// AddressInput is one address block of the checkout form.
type AddressInput struct {
	Country    string `form:"country" validate:"required,iso3166_1_alpha2"`
	Street     string `form:"address" validate:"required,max=100"`
	Zip        string `form:"zip_code" validate:"required,max=20"`
	SetDefault bool
}

// CheckoutInput is the checkout form. Address blocks are only validated
// when the matching UseDefault flag is off.
type CheckoutInput struct {
	Billing            AddressInput `validate:"-"`
	Shipping           AddressInput `validate:"-"`
	UseDefaultBilling  bool
	UseDefaultShipping bool
	PaymentOption      string `form:"payment_options" validate:"required,oneof=S P"`
}

// Validate returns field errors keyed by form field name.
func (in CheckoutInput) Validate() map[string]string {
	errs := map[string]string{}
	if err := validation.Struct(in); err != nil {
		for k, v := range validation.FieldErrors(err) {
			errs[k] = v
		}
	}
	if !in.UseDefaultBilling {
		if err := validation.Struct(in.Billing); err != nil {
			for k, v := range validation.FieldErrors(err) {
				errs["billing_"+k] = v
			}
		}
	}
	if !in.UseDefaultShipping {
		if err := validation.Struct(in.Shipping); err != nil {
			for k, v := range validation.FieldErrors(err) {
				errs["shipping_"+k] = v
			}
		}
	}
	return errs
}

// CheckoutPage is what the checkout form shows.
type CheckoutPage struct {
	Cart            *Cart
	DefaultBilling  *models.Address
	DefaultShipping *models.Address
}

// Checkout loads the active, non-empty cart and the user's default
// addresses.
func (s *Service) Checkout(ctx context.Context, userID uint) (*CheckoutPage, error) {
	tx := s.db.WithContext(ctx)
	if _, err := activeOrder(tx, userID); err != nil {
		return nil, err
	}
	cart, err := loadCart(tx, userID)
	if err != nil {
		return nil, err
	}
	if cart.Empty() {
		return nil, ErrEmptyCart
	}

	page := &CheckoutPage{Cart: cart}
	if page.DefaultBilling, err = defaultAddress(tx, userID, models.AddressBilling); err != nil {
		return nil, err
	}
	if page.DefaultShipping, err = defaultAddress(tx, userID, models.AddressShipping); err != nil {
		return nil, err
	}
	return page, nil
}

func defaultAddress(tx *gorm.DB, userID uint, kind string) (*models.Address, error) {
	var addr models.Address
	err := tx.Where("user_id = ? AND type = ? AND is_default = ?", userID, kind, true).Order("id").First(&addr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load default address: %w", err)
	}
	return &addr, nil
}

// resolveAddress returns the default address of kind, or updates or
// creates the user's address of kind from in.
func resolveAddress(tx *gorm.DB, userID uint, kind string, useDefault bool, in AddressInput) (*models.Address, error) {
	if useDefault {
		addr, err := defaultAddress(tx, userID, kind)
		if err != nil {
			return nil, err
		}
		if addr == nil {
			return nil, ErrNoDefaultAddress
		}
		return addr, nil
	}

	var addr models.Address
	err := tx.Where("user_id = ? AND type = ?", userID, kind).Order("id").First(&addr).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to load address: %w", err)
	}
	addr.UserID = userID
	addr.Type = kind
	addr.Country = in.Country
	addr.Street = in.Street
	addr.Zip = in.Zip
	addr.Default = in.SetDefault
	if err := tx.Save(&addr).Error; err != nil {
		return nil, fmt.Errorf("failed to save address: %w", err)
	}
	return &addr, nil
}

// PlaceOrder attaches the checkout addresses to the active order. The
// Stripe option completes the order with a fresh reference code; PayPal
// leaves it open. The input must already be validated.
func (s *Service) PlaceOrder(ctx context.Context, userID uint, in CheckoutInput) (*models.Order, error) {
	var placed *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := activeOrder(tx, userID)
		if err != nil {
			return err
		}
		billing, err := resolveAddress(tx, userID, models.AddressBilling, in.UseDefaultBilling, in.Billing)
		if err != nil {
			return err
		}
		shipping, err := resolveAddress(tx, userID, models.AddressShipping, in.UseDefaultShipping, in.Shipping)
		if err != nil {
			return err
		}

		updates := map[string]any{
			"billing_address_id":  billing.ID,
			"shipping_address_id": shipping.ID,
		}
		if in.PaymentOption == PaymentStripe {
			now := s.now()
			updates["is_ordered"] = true
			updates["ref_code"] = NewRefCode()
			updates["ordered_date"] = &now
		}
		if err := tx.Model(order).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		if in.PaymentOption == PaymentStripe {
			if err := tx.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Update("is_ordered", true).Error; err != nil {
				return fmt.Errorf("failed to mark lines ordered: %w", err)
			}
		}
		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// Pay charges the active order total to the card token and completes the
// order.
func (s *Service) Pay(ctx context.Context, user *models.User, token string) (*models.Order, error) {
	if s.charger == nil {
		return nil, ErrPaymentNotEnabled
	}
	cart, err := s.Cart(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if cart.Order == nil {
		return nil, ErrNoActiveOrder
	}
	if cart.Empty() {
		return nil, ErrEmptyCart
	}

	amount := cart.Totals.Total
	chargeID, err := s.charger.Charge(ctx, payments.ToCents(amount), token, "Charge for "+user.Username)
	if err != nil {
		s.logger.Warn("Charge failed", slog.Uint64("order_id", uint64(cart.Order.ID)), slog.Any("error", err))
		return nil, err
	}

	order := cart.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		uid := user.ID
		payment := &models.Payment{UserID: &uid, StripeChargeID: chargeID, Amount: amount}
		if err := tx.Create(payment).Error; err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		now := s.now()
		if err := tx.Model(order).Updates(map[string]any{
			"is_ordered":   true,
			"payment_id":   payment.ID,
			"ref_code":     NewRefCode(),
			"ordered_date": &now,
		}).Error; err != nil {
			return fmt.Errorf("failed to complete order: %w", err)
		}
		return tx.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Update("is_ordered", true).Error
	})
	if err != nil {
		s.logger.Error("Charged card but failed to complete order",
			slog.String("charge_id", chargeID), slog.Any("error", err))
		return nil, err
	}
	return order, nil
}

// RefundInput is the refund request form.
type RefundInput struct {
	RefCode string `form:"ref_code" validate:"required,max=20"`
	Email   string `form:"email" validate:"required,email"`
	Reason  string `form:"reason" validate:"required"`
}

// RequestRefund flags the order with the given reference code and records
// the request. The input must already be validated.
func (s *Service) RequestRefund(ctx context.Context, in RefundInput) (*models.Refund, error) {
	var refund *models.Refund
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var order models.Order
		err := tx.Where("ref_code = ?", in.RefCode).First(&order).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrOrderNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load order: %w", err)
		}
		if err := tx.Model(&order).Update("refund_requested", true).Error; err != nil {
			return fmt.Errorf("failed to flag order: %w", err)
		}
		refund = &models.Refund{OrderID: order.ID, RefCode: in.RefCode, Reason: in.Reason, Email: in.Email}
		return tx.Create(refund).Error
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

// GrantRefunds marks the orders as refunded and accepts their refund
// requests. It returns the number of orders changed.
func (s *Service) GrantRefunds(ctx context.Context, orderIDs []uint) (int64, error) {
	if len(orderIDs) == 0 {
		return 0, nil
	}
	var changed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Order{}).Where("id IN ?", orderIDs).
			Updates(map[string]any{"refund_requested": false, "refund_granted": true})
		if res.Error != nil {
			return fmt.Errorf("failed to grant refunds: %w", res.Error)
		}
		changed = res.RowsAffected
		return tx.Model(&models.Refund{}).Where("order_id IN ?", orderIDs).Update("accepted", true).Error
	})
	return changed, err
}

// Orders lists the user's orders, most recently ordered first.
func (s *Service) Orders(ctx context.Context, userID uint) ([]models.Order, error) {
	var orders []models.Order
	if err := s.db.WithContext(ctx).
		Preload("Items.Item", func(q *gorm.DB) *gorm.DB { return q.Unscoped() }).
		Where("user_id = ?", userID).
		Order("COALESCE(ordered_date, start_date) DESC").Order("id DESC").
		Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}
