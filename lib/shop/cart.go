package shop

import (
	"context"
	"errors"
	"fmt"

	"github.com/medleyhq/medley/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cart is the active order with its priced lines.
type Cart struct {
	Order  *models.Order
	Lines  []models.OrderItem
	Totals Totals
}

func (c *Cart) Empty() bool { return len(c.Lines) == 0 }

func activeOrder(tx *gorm.DB, userID uint) (*models.Order, error) {
	var order models.Order
	err := tx.Where("user_id = ? AND is_ordered = ?", userID, false).Order("id").First(&order).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveOrder
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load active order: %w", err)
	}
	return &order, nil
}

func loadCart(tx *gorm.DB, userID uint) (*Cart, error) {
	order, err := activeOrder(tx, userID)
	if errors.Is(err, ErrNoActiveOrder) {
		return &Cart{Lines: []models.OrderItem{}}, nil
	}
	if err != nil {
		return nil, err
	}
	if order.CouponID != nil {
		var coupon models.Coupon
		if err := tx.First(&coupon, *order.CouponID).Error; err == nil {
			order.Coupon = &coupon
		}
	}

	var lines []models.OrderItem
	if err := tx.Preload("Item", func(q *gorm.DB) *gorm.DB { return q.Unscoped() }).
		Where("order_id = ?", order.ID).Order("id").Find(&lines).Error; err != nil {
		return nil, fmt.Errorf("failed to load cart lines: %w", err)
	}
	return &Cart{Order: order, Lines: lines, Totals: ComputeTotals(lines, order.Coupon)}, nil
}

// Cart returns the user's active order and its totals. Users without an
// active order get an empty cart.
func (s *Service) Cart(ctx context.Context, userID uint) (*Cart, error) {
	return loadCart(s.db.WithContext(ctx), userID)
}

// AddToCart adds quantity of the item to the active order, opening one if
// needed, and returns the quantity added.
func (s *Service) AddToCart(ctx context.Context, userID uint, slug string, quantity int) (int, error) {
	if quantity < 1 {
		return 0, ErrInvalidQuantity
	}
	item, err := s.ItemBySlug(ctx, slug)
	if err != nil {
		return 0, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := activeOrder(tx, userID)
		if errors.Is(err, ErrNoActiveOrder) {
			order = &models.Order{UserID: userID, StartDate: s.now()}
			if err := tx.Create(order).Error; err != nil {
				return fmt.Errorf("failed to open order: %w", err)
			}
		} else if err != nil {
			return err
		}

		var line models.OrderItem
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("order_id = ? AND item_id = ?", order.ID, item.ID).First(&line).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			line = models.OrderItem{UserID: userID, OrderID: order.ID, ItemID: item.ID, Quantity: quantity}
			return tx.Create(&line).Error
		case err != nil:
			return err
		default:
			return tx.Model(&line).Update("quantity", gorm.Expr("quantity + ?", quantity)).Error
		}
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add to cart: %w", err)
	}
	return quantity, nil
}

// RemoveFromCart deletes the item's line from the active order.
func (s *Service) RemoveFromCart(ctx context.Context, userID uint, slug string) error {
	item, err := s.ItemBySlug(ctx, slug)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := activeOrder(tx, userID)
		if err != nil {
			return err
		}
		res := tx.Where("order_id = ? AND item_id = ?", order.ID, item.ID).Delete(&models.OrderItem{})
		if res.Error != nil {
			return fmt.Errorf("failed to remove line: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotInCart
		}
		return nil
	})
}

// UpdateQuantity sets the quantity of one of the user's active cart lines.
func (s *Service) UpdateQuantity(ctx context.Context, userID, lineID uint, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := activeOrder(tx, userID)
		if err != nil {
			return err
		}
		res := tx.Model(&models.OrderItem{}).
			Where("id = ? AND order_id = ?", lineID, order.ID).
			Update("quantity", quantity)
		if res.Error != nil {
			return fmt.Errorf("failed to update quantity: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrLineNotFound
		}
		return nil
	})
}

// ApplyCoupon attaches a currently valid coupon to the active order.
func (s *Service) ApplyCoupon(ctx context.Context, userID uint, code string) error {
	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var coupon models.Coupon
		err := tx.Where("code = ? AND active = ? AND valid_from <= ? AND valid_to >= ?", code, true, now, now).
			First(&coupon).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCouponNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to load coupon: %w", err)
		}

		order, err := activeOrder(tx, userID)
		if err != nil {
			return err
		}
		return tx.Model(order).Update("coupon_id", coupon.ID).Error
	})
}

// ActiveCoupons lists coupons redeemable right now.
func (s *Service) ActiveCoupons(ctx context.Context) ([]models.Coupon, error) {
	now := s.now()
	var coupons []models.Coupon
	if err := s.db.WithContext(ctx).
		Where("active = ? AND valid_from <= ? AND valid_to >= ?", true, now, now).
		Order("valid_to").Find(&coupons).Error; err != nil {
		return nil, fmt.Errorf("failed to list coupons: %w", err)
	}
	return coupons, nil
}
