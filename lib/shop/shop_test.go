package shop

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/medleyhq/medley/lib/db/dbtest"
	"github.com/medleyhq/medley/lib/payments"
	"github.com/medleyhq/medley/models"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeCharger struct {
	amount int64
	source string
	err    error
}

func (f *fakeCharger) Charge(_ context.Context, amount int64, source, _ string) (string, error) {
	f.amount = amount
	f.source = source
	if f.err != nil {
		return "", f.err
	}
	return "ch_test", nil
}

func newService(t *testing.T, charger *fakeCharger) (*Service, *models.User) {
	t.Helper()
	db := dbtest.Open(t)
	var c payments.Charger
	if charger != nil {
		c = charger
	}
	s := New(db, c, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return fixedNow }

	user := &models.User{Username: "shopper", Email: "shopper@example.com", PasswordHash: "x"}
	if err := db.Create(user).Error; err != nil {
		t.Fatal(err)
	}
	return s, user
}

func price(v float64) *float64 { return &v }

func mustItem(t *testing.T, s *Service, in NewItem) *models.Item {
	t.Helper()
	if in.Category == "" {
		in.Category = models.CategoryMen
	}
	item, err := s.CreateItem(context.Background(), in)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	return item
}

func TestComputeTotals(t *testing.T) {
	lines := []models.OrderItem{
		{Quantity: 2, Item: models.Item{Price: 50, DiscountPrice: price(40)}},
		{Quantity: 1, Item: models.Item{Price: 30}},
	}

	got := ComputeTotals(lines, &models.Coupon{Discount: 10})
	want := Totals{Subtotal: 130, Saving: 20, AfterSaving: 110, CouponPercent: 10, CouponDiscount: 11, Total: 99}
	if got != want {
		t.Errorf("ComputeTotals = %+v, want %+v", got, want)
	}

	noCoupon := ComputeTotals(lines, nil)
	if noCoupon.Total != 110 || noCoupon.CouponDiscount != 0 {
		t.Errorf("without coupon = %+v", noCoupon)
	}

	if LineTotal(lines[0]) != 100 || LineFinal(lines[0]) != 80 {
		t.Errorf("line totals = %v, %v", LineTotal(lines[0]), LineFinal(lines[0]))
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Blue Shirt", "blue-shirt"},
		{"  Café  Crème! ", "cafe-creme"},
		{"T-Shirt -- Limited", "t-shirt-limited"},
		{"100% Cotton_Socks", "100-cotton_socks"},
		{"???", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCreateItemUniqueSlugs(t *testing.T) {
	s, _ := newService(t, nil)
	want := []string{"blue-shirt", "blue-shirt-1", "blue-shirt-2"}
	for _, w := range want {
		if item := mustItem(t, s, NewItem{Title: "Blue Shirt", Price: 10}); item.Slug != w {
			t.Errorf("slug = %q, want %q", item.Slug, w)
		}
	}
}

func TestNewRefCode(t *testing.T) {
	re := regexp.MustCompile(`^[A-Z0-9]{20}$`)
	a, b := NewRefCode(), NewRefCode()
	if !re.MatchString(a) || !re.MatchString(b) {
		t.Errorf("ref codes %q %q", a, b)
	}
	if a == b {
		t.Error("ref codes repeat")
	}
}

func TestNewReviewStats(t *testing.T) {
	st := NewReviewStats(map[int]int64{5: 2, 4: 1})
	if st.Count != 3 || st.FullStars != 4 || !st.HalfStar || st.EmptyStars != 0 {
		t.Errorf("stats = %+v", st)
	}
	if st.Breakdown[0].Stars != 5 || st.Breakdown[0].Percentage != "67%" || st.Breakdown[1].Percentage != "33%" {
		t.Errorf("breakdown = %+v", st.Breakdown)
	}

	empty := NewReviewStats(nil)
	if empty.Average != 0 || empty.EmptyStars != 5 || empty.Breakdown[4].Percentage != "0%" {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestListings(t *testing.T) {
	s, _ := newService(t, nil)
	ctx := context.Background()
	mustItem(t, s, NewItem{Title: "Discounted Jacket", Price: 80, Label: models.LabelDanger, Description: "warm wool"})
	mustItem(t, s, NewItem{Title: "Best Seller Tee", Price: 20, Label: models.LabelPrimary})
	mustItem(t, s, NewItem{Title: "Plain Socks", Price: 5, Label: models.LabelSecondary, Category: models.CategoryWomen})

	home, err := s.Home(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(home.Items) != 2 || home.Items[0].Label != models.LabelPrimary {
		t.Errorf("home = %+v", home.Items)
	}

	women, err := s.Category(ctx, models.CategoryWomen, 1)
	if err != nil || len(women.Items) != 1 || women.Items[0].Title != "Plain Socks" {
		t.Errorf("women = %+v, %v", women.Items, err)
	}

	found, err := s.Search(ctx, "WOOL", 1)
	if err != nil || len(found.Items) != 1 || found.Items[0].Title != "Discounted Jacket" {
		t.Errorf("search = %+v, %v", found.Items, err)
	}
	none, err := s.Search(ctx, "  ", 1)
	if err != nil || len(none.Items) != 0 {
		t.Errorf("empty search = %+v, %v", none.Items, err)
	}

	sugg, err := s.Suggest(ctx, "tee")
	if err != nil || len(sugg) != 1 || sugg[0].URL != "/shop/product/best-seller-tee" {
		t.Errorf("suggest = %+v, %v", sugg, err)
	}
}

func TestCartLifecycle(t *testing.T) {
	s, user := newService(t, nil)
	ctx := context.Background()
	shirt := mustItem(t, s, NewItem{Title: "Shirt", Price: 50, DiscountPrice: price(40)})
	mustItem(t, s, NewItem{Title: "Hat", Price: 30})

	if err := s.RemoveFromCart(ctx, user.ID, "shirt"); !errors.Is(err, ErrNoActiveOrder) {
		t.Errorf("remove without order = %v", err)
	}

	for _, q := range []int{1, 1} {
		if _, err := s.AddToCart(ctx, user.ID, shirt.Slug, q); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.AddToCart(ctx, user.ID, "hat", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AddToCart(ctx, user.ID, "missing", 1); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("unknown item = %v", err)
	}

	cart, err := s.Cart(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cart.Lines) != 2 || cart.Lines[0].Quantity != 2 {
		t.Fatalf("lines = %+v", cart.Lines)
	}
	if cart.Totals.Total != 110 {
		t.Errorf("total = %v", cart.Totals.Total)
	}

	detail, err := s.Detail(ctx, "shirt", user.ID, 1)
	if err != nil || !detail.InCart {
		t.Errorf("detail in cart = %+v, %v", detail, err)
	}

	if err := s.UpdateQuantity(ctx, user.ID, cart.Lines[1].ID, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateQuantity(ctx, user.ID, 9999, 3); !errors.Is(err, ErrLineNotFound) {
		t.Errorf("foreign line = %v", err)
	}
	if err := s.UpdateQuantity(ctx, user.ID, cart.Lines[1].ID, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("zero quantity = %v", err)
	}

	if err := s.RemoveFromCart(ctx, user.ID, "shirt"); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveFromCart(ctx, user.ID, "shirt"); !errors.Is(err, ErrNotInCart) {
		t.Errorf("second remove = %v", err)
	}

	cart, err = s.Cart(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cart.Lines) != 1 || cart.Totals.Total != 90 {
		t.Errorf("after remove = %+v", cart.Totals)
	}
}

func TestApplyCoupon(t *testing.T) {
	s, user := newService(t, nil)
	ctx := context.Background()
	db := s.db
	coupons := []models.Coupon{
		{Code: "SAVE10", ValidFrom: fixedNow.Add(-time.Hour), ValidTo: fixedNow.Add(time.Hour), Discount: 10, Active: true},
		{Code: "OLD", ValidFrom: fixedNow.Add(-48 * time.Hour), ValidTo: fixedNow.Add(-24 * time.Hour), Discount: 50, Active: true},
		{Code: "OFF", ValidFrom: fixedNow.Add(-time.Hour), ValidTo: fixedNow.Add(time.Hour), Discount: 50, Active: false},
	}
	if err := db.Create(&coupons).Error; err != nil {
		t.Fatal(err)
	}

	if err := s.ApplyCoupon(ctx, user.ID, "SAVE10"); !errors.Is(err, ErrNoActiveOrder) {
		t.Errorf("coupon without order = %v", err)
	}

	mustItem(t, s, NewItem{Title: "Coat", Price: 200})
	if _, err := s.AddToCart(ctx, user.ID, "coat", 1); err != nil {
		t.Fatal(err)
	}

	for _, code := range []string{"OLD", "OFF", "NOPE"} {
		if err := s.ApplyCoupon(ctx, user.ID, code); !errors.Is(err, ErrCouponNotFound) {
			t.Errorf("ApplyCoupon(%s) = %v", code, err)
		}
	}
	if err := s.ApplyCoupon(ctx, user.ID, "SAVE10"); err != nil {
		t.Fatal(err)
	}

	cart, err := s.Cart(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cart.Totals.CouponDiscount != 20 || cart.Totals.Total != 180 {
		t.Errorf("totals = %+v", cart.Totals)
	}

	active, err := s.ActiveCoupons(ctx)
	if err != nil || len(active) != 1 || active[0].Code != "SAVE10" {
		t.Errorf("active coupons = %+v, %v", active, err)
	}
}

func TestPlaceOrder(t *testing.T) {
	s, user := newService(t, nil)
	ctx := context.Background()
	mustItem(t, s, NewItem{Title: "Boots", Price: 120})
	if _, err := s.AddToCart(ctx, user.ID, "boots", 1); err != nil {
		t.Fatal(err)
	}

	page, err := s.Checkout(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if page.DefaultBilling != nil || page.Cart.Totals.Total != 120 {
		t.Errorf("checkout page = %+v", page)
	}

	useDefaults := CheckoutInput{UseDefaultBilling: true, UseDefaultShipping: true, PaymentOption: PaymentStripe}
	if errs := useDefaults.Validate(); len(errs) != 0 {
		t.Errorf("validation with defaults = %v", errs)
	}
	if _, err := s.PlaceOrder(ctx, user.ID, useDefaults); !errors.Is(err, ErrNoDefaultAddress) {
		t.Errorf("no default address = %v", err)
	}

	in := CheckoutInput{
		Billing:       AddressInput{Country: "DE", Street: "Hauptstr. 1", Zip: "10115", SetDefault: true},
		Shipping:      AddressInput{Country: "DE", Street: "Hauptstr. 1", Zip: "10115"},
		PaymentOption: PaymentStripe,
	}
	if errs := in.Validate(); len(errs) != 0 {
		t.Fatalf("validation = %v", errs)
	}
	order, err := s.PlaceOrder(ctx, user.ID, in)
	if err != nil {
		t.Fatal(err)
	}

	var stored models.Order
	if err := s.db.First(&stored, order.ID).Error; err != nil {
		t.Fatal(err)
	}
	if !stored.IsOrdered || len(stored.RefCode) != RefCodeLength || stored.BillingAddressID == nil || stored.OrderedDate == nil {
		t.Errorf("order = %+v", stored)
	}
	if _, err := s.Checkout(ctx, user.ID); !errors.Is(err, ErrNoActiveOrder) {
		t.Errorf("checkout after ordering = %v", err)
	}

	orders, err := s.Orders(ctx, user.ID)
	if err != nil || len(orders) != 1 || len(orders[0].Items) != 1 {
		t.Errorf("orders = %+v, %v", orders, err)
	}

	// The saved billing address is now the default.
	mustItem(t, s, NewItem{Title: "Scarf", Price: 15})
	if _, err := s.AddToCart(ctx, user.ID, "scarf", 1); err != nil {
		t.Fatal(err)
	}
	again := CheckoutInput{UseDefaultBilling: true, Shipping: in.Shipping, PaymentOption: PaymentPayPal}
	open, err := s.PlaceOrder(ctx, user.ID, again)
	if err != nil {
		t.Fatal(err)
	}
	var pending models.Order
	if err := s.db.First(&pending, open.ID).Error; err != nil {
		t.Fatal(err)
	}
	if pending.IsOrdered || pending.BillingAddressID == nil || *pending.BillingAddressID != *stored.BillingAddressID {
		t.Errorf("paypal order = %+v", pending)
	}
}

func TestCheckoutValidate(t *testing.T) {
	errs := CheckoutInput{Billing: AddressInput{Country: "XX"}, PaymentOption: "Z"}.Validate()
	for _, field := range []string{"payment_options", "billing_country", "billing_address", "billing_zip_code", "shipping_country"} {
		if _, ok := errs[field]; !ok {
			t.Errorf("missing error for %s in %v", field, errs)
		}
	}
}

func TestPay(t *testing.T) {
	charger := &fakeCharger{}
	s, user := newService(t, charger)
	ctx := context.Background()

	if _, err := s.Pay(ctx, user, "tok_visa"); !errors.Is(err, ErrNoActiveOrder) {
		t.Errorf("pay without order = %v", err)
	}

	mustItem(t, s, NewItem{Title: "Lamp", Price: 19.99})
	if _, err := s.AddToCart(ctx, user.ID, "lamp", 2); err != nil {
		t.Fatal(err)
	}
	order, err := s.Pay(ctx, user, "tok_visa")
	if err != nil {
		t.Fatal(err)
	}
	if charger.amount != 3998 || charger.source != "tok_visa" {
		t.Errorf("charged %d from %q", charger.amount, charger.source)
	}

	var payment models.Payment
	if err := s.db.First(&payment).Error; err != nil {
		t.Fatal(err)
	}
	if payment.StripeChargeID != "ch_test" || payment.Amount != 39.98 {
		t.Errorf("payment = %+v", payment)
	}
	var stored models.Order
	if err := s.db.First(&stored, order.ID).Error; err != nil {
		t.Fatal(err)
	}
	if !stored.IsOrdered || stored.PaymentID == nil || stored.RefCode == "" {
		t.Errorf("order = %+v", stored)
	}
}

func TestPayFailureLeavesOrderOpen(t *testing.T) {
	declined := errors.New("declined")
	s, user := newService(t, &fakeCharger{err: declined})
	ctx := context.Background()
	mustItem(t, s, NewItem{Title: "Lamp", Price: 10})
	if _, err := s.AddToCart(ctx, user.ID, "lamp", 1); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Pay(ctx, user, "tok"); !errors.Is(err, declined) {
		t.Fatalf("Pay = %v", err)
	}
	cart, err := s.Cart(ctx, user.ID)
	if err != nil || cart.Order == nil || cart.Order.IsOrdered {
		t.Errorf("cart after failed payment = %+v, %v", cart, err)
	}
}

func TestPayDisabled(t *testing.T) {
	s, user := newService(t, nil)
	if _, err := s.Pay(context.Background(), user, "tok"); !errors.Is(err, ErrPaymentNotEnabled) {
		t.Errorf("Pay = %v", err)
	}
}

func TestRefunds(t *testing.T) {
	s, user := newService(t, nil)
	ctx := context.Background()
	order := models.Order{UserID: user.ID, RefCode: "ABC123", IsOrdered: true, StartDate: fixedNow}
	if err := s.db.Create(&order).Error; err != nil {
		t.Fatal(err)
	}

	if _, err := s.RequestRefund(ctx, RefundInput{RefCode: "NOPE", Email: "a@b.c", Reason: "x"}); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("unknown ref code = %v", err)
	}
	if _, err := s.RequestRefund(ctx, RefundInput{RefCode: "ABC123", Email: "a@b.c", Reason: "too small"}); err != nil {
		t.Fatal(err)
	}

	var stored models.Order
	if err := s.db.First(&stored, order.ID).Error; err != nil || !stored.RefundRequested {
		t.Fatalf("order = %+v, %v", stored, err)
	}

	n, err := s.GrantRefunds(ctx, []uint{order.ID})
	if err != nil || n != 1 {
		t.Fatalf("GrantRefunds = %d, %v", n, err)
	}
	var granted models.Order
	if err := s.db.First(&granted, order.ID).Error; err != nil {
		t.Fatal(err)
	}
	if granted.RefundRequested || !granted.RefundGranted {
		t.Errorf("order after grant = %+v", granted)
	}
	var refund models.Refund
	if err := s.db.First(&refund).Error; err != nil || !refund.Accepted {
		t.Errorf("refund = %+v, %v", refund, err)
	}
}

func TestReviews(t *testing.T) {
	s, user := newService(t, nil)
	ctx := context.Background()
	mustItem(t, s, NewItem{Title: "Mug", Price: 8})

	for _, r := range []int{5, 4, 5, 3, 5, 4} {
		if _, err := s.AddReview(ctx, "mug", user.ID, ReviewInput{Rating: r, Comment: "ok"}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.AddReview(ctx, "cup", user.ID, ReviewInput{Rating: 5, Comment: "ok"}); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("review of unknown item = %v", err)
	}

	d, err := s.Detail(ctx, "mug", 0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if d.Stats.Count != 6 || d.Stats.FullStars != 4 || d.Stats.HalfStar {
		t.Errorf("stats = %+v", d.Stats)
	}
	if d.Reviews.NumPages != 2 || len(d.Reviews.Items) != 1 || d.Reviews.Items[0].User.Username != "shopper" {
		t.Errorf("reviews page = %+v", d.Reviews)
	}
	if d.InCart {
		t.Error("anonymous visitor has the item in cart")
	}
}
