package models

// All lists every table managed by the migrations.
func All() []any {
	return []any{
		&User{},
		&Video{}, &VideoSession{},
		&Item{}, &Review{}, &Coupon{}, &Address{}, &Payment{}, &Order{}, &OrderItem{}, &Refund{},
		&Task{}, &ChatHistory{},
		&PricingPlan{}, &CoachingRequest{},
		&Movie{}, &Favorite{},
	}
}
