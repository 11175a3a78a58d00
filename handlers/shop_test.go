package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/medleyhq/medley/lib/shop"
	"github.com/medleyhq/medley/models"
)

func (e *testEnv) createItem(title string) *models.Item {
	e.t.Helper()
	item, err := e.deps.Shop.CreateItem(context.Background(), shop.NewItem{Title: title, Price: 20, Category: models.CategoryWomen})
	if err != nil {
		e.t.Fatal(err)
	}
	return item
}

func wantFlash(t *testing.T, rec *httptest.ResponseRecorder, level, message string) {
	t.Helper()
	flashes := flashesOf(t, rec)
	for _, f := range flashes {
		if f.Level == level && f.Message == message {
			return
		}
	}
	t.Errorf("flash %s %q not set; got %+v", level, message, flashes)
}

var checkoutForm = url.Values{
	"billing_country":  {"US"},
	"billing_address":  {"1 Main St"},
	"billing_zip_code": {"12345"},
	"shipping_country": {"us"},
	"shipping_address": {"2 Side St"},
	"shipping_zip_code": {"54321"},
	"payment_options":  {"S"},
}

func TestCartFlow(t *testing.T) {
	env := newTestEnv(t)
	env.createItem("Red Dress")
	cookie := env.sessionCookie(env.register("ada"))

	rec := env.get("/shop/cart/", cookie)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Your cart is empty.") {
		t.Fatalf("empty cart: status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `href="/shop/checkout/"`) {
		t.Error("empty cart offers checkout")
	}

	rec = env.postJSON("/shop/add-to-cart/red-dress", `{"quantity": "2"}`, cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("add status = %d: %s", rec.Code, rec.Body.String())
	}
	added := decodeBody[map[string]any](t, rec)
	if added["status"] != "success" || added["quantity"] != float64(2) {
		t.Errorf("add = %v", added)
	}
	wantFlash(t, rec, flashInfo, "This item was added to your cart with quantity of 2.")

	rec = env.postJSON("/shop/add-to-cart/red-dress", `{"quantity": "abc"}`, cookie)
	wantFlash(t, rec, flashInfo, "The quantity of this item was increased.")

	if rec := env.postJSON("/shop/add-to-cart/no-such-item", `{"quantity": 1}`, cookie); rec.Code != http.StatusNotFound {
		t.Errorf("unknown item status = %d, want 404", rec.Code)
	}

	rec = env.get("/shop/cart/", cookie)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Red Dress") {
		t.Fatalf("cart: status = %d", rec.Code)
	}

	var line models.OrderItem
	if err := env.db.First(&line).Error; err != nil {
		t.Fatal(err)
	}
	if line.Quantity != 3 {
		t.Errorf("quantity = %d, want 3", line.Quantity)
	}
	rec = env.postForm(fmt.Sprintf("/shop/update-quantity/%d/", line.ID), url.Values{"quantity": {"5"}}, cookie)
	if rec.Code != http.StatusFound {
		t.Fatalf("update status = %d", rec.Code)
	}
	if err := env.db.First(&line, line.ID).Error; err != nil || line.Quantity != 5 {
		t.Errorf("quantity after update = %d (%v), want 5", line.Quantity, err)
	}

	rec = env.get("/shop/remove-completely-from-cart/red-dress", cookie)
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != shopCart {
		t.Errorf("remove: status = %d, Location = %q", rec.Code, rec.Header().Get("Location"))
	}
	var n int64
	env.db.Model(&models.OrderItem{}).Count(&n)
	if n != 0 {
		t.Errorf("%d lines left after removal", n)
	}
}

func TestApplyCoupon(t *testing.T) {
	env := newTestEnv(t)
	env.createItem("Red Dress")
	cookie := env.sessionCookie(env.register("ada"))
	now := time.Now()
	if err := env.db.Create(&models.Coupon{Code: "SAVE10", Discount: 10, Active: true, ValidFrom: now.Add(-time.Hour), ValidTo: now.Add(time.Hour)}).Error; err != nil {
		t.Fatal(err)
	}

	rec := env.postForm("/shop/apply-coupon/", url.Values{"coupon_code": {"SAVE10"}}, cookie)
	wantFlash(t, rec, flashWarning, "You do not have an active order")

	env.postJSON("/shop/add-to-cart/red-dress", `{"quantity": 1}`, cookie)

	rec = env.postForm("/shop/apply-coupon/", url.Values{"coupon_code": {"NOPE"}}, cookie)
	wantFlash(t, rec, flashInfo, "This coupon does not exist")

	rec = env.postForm("/shop/apply-coupon/", url.Values{"coupon_code": {"SAVE10"}}, cookie)
	if rec.Header().Get("Location") != shopCart {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
	wantFlash(t, rec, flashSuccess, "Successfully applied coupon!")

	rec = env.get("/shop/cart/", cookie)
	if !strings.Contains(rec.Body.String(), "10%") {
		t.Error("cart does not show the coupon")
	}
}

func TestCheckoutAndOrders(t *testing.T) {
	env := newTestEnv(t)
	env.createItem("Red Dress")
	cookie := env.sessionCookie(env.register("ada"))

	rec := env.get("/shop/checkout/", cookie)
	wantFlash(t, rec, flashWarning, "You do not have an active order")

	env.postJSON("/shop/add-to-cart/red-dress", `{"quantity": 1}`, cookie)
	rec = env.get("/shop/checkout/", cookie)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Red Dress") {
		t.Fatalf("checkout: status = %d", rec.Code)
	}

	bad := url.Values{"payment_options": {"S"}}
	rec = env.postForm("/shop/checkout/", bad, cookie)
	if rec.Header().Get("Location") != shopCheckout {
		t.Errorf("invalid form Location = %q", rec.Header().Get("Location"))
	}
	wantFlash(t, rec, flashWarning, "There was an error with your form. Please try again.")

	noDefault := url.Values{
		"use_default_billing":  {"on"},
		"use_default_shipping": {"on"},
		"payment_options":      {"S"},
	}
	rec = env.postForm("/shop/checkout/", noDefault, cookie)
	wantFlash(t, rec, flashWarning, "You have no default address saved. Please enter one.")

	rec = env.postForm("/shop/checkout/", checkoutForm, cookie)
	if rec.Header().Get("Location") != shopComplete {
		t.Fatalf("Location = %q", rec.Header().Get("Location"))
	}
	wantFlash(t, rec, flashSuccess, "Your order has been placed successfully.")

	var order models.Order
	if err := env.db.First(&order).Error; err != nil {
		t.Fatal(err)
	}
	if !order.IsOrdered || order.RefCode == "" {
		t.Fatalf("order = %+v", order)
	}

	rec = env.get("/shop/orders/", cookie)
	if !strings.Contains(rec.Body.String(), order.RefCode) {
		t.Error("orders page does not list the reference code")
	}
}

func TestPaypalCheckoutLeavesOrderOpen(t *testing.T) {
	env := newTestEnv(t)
	env.createItem("Red Dress")
	cookie := env.sessionCookie(env.register("ada"))
	env.postJSON("/shop/add-to-cart/red-dress", `{"quantity": 1}`, cookie)

	form := url.Values{}
	for k, v := range checkoutForm {
		form[k] = v
	}
	form.Set("payment_options", "P")
	rec := env.postForm("/shop/checkout/", form, cookie)
	if rec.Header().Get("Location") != shopComplete {
		t.Fatalf("Location = %q", rec.Header().Get("Location"))
	}

	var order models.Order
	if err := env.db.First(&order).Error; err != nil {
		t.Fatal(err)
	}
	if order.IsOrdered {
		t.Error("PayPal checkout completed the order")
	}
}

func TestRefundRequest(t *testing.T) {
	env := newTestEnv(t)
	env.createItem("Red Dress")
	cookie := env.sessionCookie(env.register("ada"))
	env.postJSON("/shop/add-to-cart/red-dress", `{"quantity": 1}`, cookie)
	env.postForm("/shop/checkout/", checkoutForm, cookie)
	var order models.Order
	if err := env.db.First(&order).Error; err != nil {
		t.Fatal(err)
	}

	rec := env.postForm("/shop/request-refund/", url.Values{"ref_code": {order.RefCode}})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "text-danger") {
		t.Errorf("invalid form: status = %d, want the form re-rendered with errors", rec.Code)
	}

	form := url.Values{"ref_code": {"UNKNOWN"}, "email": {"ada@example.com"}, "reason": {"too small"}}
	rec = env.postForm("/shop/request-refund/", form)
	wantFlash(t, rec, flashWarning, "Invalid reference code. Please try again.")

	form.Set("ref_code", order.RefCode)
	rec = env.postForm("/shop/request-refund/", form)
	wantFlash(t, rec, flashSuccess, "Your request has been added successfully.")

	if err := env.db.First(&order, order.ID).Error; err != nil || !order.RefundRequested {
		t.Errorf("refund_requested = %v (%v)", order.RefundRequested, err)
	}
}

func TestAddReview(t *testing.T) {
	env := newTestEnv(t)
	env.createItem("Red Dress")
	cookie := env.sessionCookie(env.register("ada"))

	rec := env.postForm("/shop/product/red-dress", url.Values{"rating": {"9"}, "comment": {"great"}}, cookie)
	wantFlash(t, rec, flashWarning, "Something went wrong! please try again.")

	rec = env.postForm("/shop/product/red-dress", url.Values{"rating": {"4"}, "comment": {"Lovely fabric"}}, cookie)
	if rec.Header().Get("Location") != "/shop/product/red-dress" {
		t.Errorf("Location = %q", rec.Header().Get("Location"))
	}
	wantFlash(t, rec, flashSuccess, "Review added successfully!")

	page := env.get("/shop/product/red-dress")
	if !strings.Contains(page.Body.String(), "Lovely fabric") {
		t.Error("review not shown on the product page")
	}

	if rec := env.postForm("/shop/product/red-dress", url.Values{"rating": {"4"}, "comment": {"x"}}); rec.Code != http.StatusFound ||
		!strings.HasPrefix(rec.Header().Get("Location"), shopLoginPath) {
		t.Errorf("anonymous review: status = %d, Location = %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestShopSuggest(t *testing.T) {
	env := newTestEnv(t)
	env.createItem("Red Dress")
	env.createItem("Green Hat")

	rec := env.get("/shop/search/?q=dre")
	got := decodeBody[struct {
		Results []shop.Suggestion `json:"results"`
	}](t, rec)
	if len(got.Results) != 1 || got.Results[0].Name != "Red Dress" || got.Results[0].URL != "/shop/product/red-dress" {
		t.Errorf("results = %+v", got.Results)
	}

	rec = env.get("/shop/search/?q=")
	if got := decodeBody[map[string][]shop.Suggestion](t, rec)["results"]; len(got) != 0 {
		t.Errorf("empty query results = %+v", got)
	}
}

func TestPortfolioChat(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name, method, body string
		status             int
		key, want          string
	}{
		{"get", http.MethodGet, "", http.StatusBadRequest, "error", "You are not using post request"},
		{"empty", http.MethodPost, "", http.StatusBadRequest, "error", "Empty request"},
		{"invalid", http.MethodPost, "{", http.StatusBadRequest, "error", "Invalid JSON"},
		{"ok", http.MethodPost, `{"message": "hi", "userchat": [{"role": "user", "parts": ["earlier"]}]}`, http.StatusOK, "response", "reply: hi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(tt.method, "/shop/chat-response/", strings.NewReader(tt.body))
			rec := env.serve(req)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := decodeBody[map[string]string](t, rec)[tt.key]; got != tt.want {
				t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}
