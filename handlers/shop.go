package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/medleyhq/medley/lib/assistant"
	"github.com/medleyhq/medley/lib/auth"
	"github.com/medleyhq/medley/lib/pagination"
	"github.com/medleyhq/medley/lib/payments"
	"github.com/medleyhq/medley/lib/shop"
	"github.com/medleyhq/medley/lib/validation"
	"github.com/medleyhq/medley/models"
)

const (
	siteShop      = "shop"
	shopHome      = "/shop/"
	shopCart      = "/shop/cart/"
	shopCheckout  = "/shop/checkout/"
	shopComplete  = "/shop/order-complete/"
	shopLoginPath = "/shop/accounts/login/"
)

type listFunc func(ctx context.Context, page int) (pagination.Page[models.Item], error)

type shopListData struct {
	Heading string
	Query   string
	Page    pagination.Page[models.Item]
}

// HandleShopListing renders one of the paginated catalogue pages.
func HandleShopListing(heading string, list listFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := list(r.Context(), pagination.Number(r.URL.Query().Get("page")))
		if err != nil {
			slog.Error("Failed to list items", slog.String("heading", heading), slog.Any("error", err))
			renderError(w, "We couldn't load the products.", http.StatusInternalServerError)
			return
		}
		render(w, r, "shop_list.html", page{Title: heading, Site: siteShop, Data: shopListData{Heading: heading, Page: items}})
	}
}

func HandleShopSearchResults(svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query().Get("q")
		items, err := svc.Search(r.Context(), q, pagination.Number(r.URL.Query().Get("page")))
		if err != nil {
			slog.Error("Failed to search items", slog.String("q", q), slog.Any("error", err))
			renderError(w, "We couldn't search the products.", http.StatusInternalServerError)
			return
		}
		data := shopListData{Heading: "Search results", Query: q, Page: items}
		render(w, r, "shop_list.html", page{Title: "Search results", Site: siteShop, Data: data})
	}
}

// HandleShopSuggest feeds the search-as-you-type dropdown.
func HandleShopSuggest(svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := svc.Suggest(r.Context(), strings.TrimSpace(r.URL.Query().Get("q")))
		if err != nil {
			slog.Error("Failed to suggest items", slog.Any("error", err))
			writeJSONError(w, "Search failed", http.StatusInternalServerError)
			return
		}
		validation.WriteJSON(w, map[string]any{"results": results}, http.StatusOK)
	}
}

type productData struct {
	Detail *shop.ItemDetail
}

func HandleProductDetail(svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		detail, err := svc.Detail(r.Context(), slug, currentUserID(r), pagination.Number(r.URL.Query().Get("page")))
		if err != nil {
			if errors.Is(err, shop.ErrItemNotFound) {
				renderError(w, "We couldn't find that product.", http.StatusNotFound)
				return
			}
			slog.Error("Failed to load product", slog.String("slug", slug), slog.Any("error", err))
			renderError(w, "We couldn't load that product.", http.StatusInternalServerError)
			return
		}
		render(w, r, "shop_product.html", page{Title: detail.Item.Title, Site: siteShop, Data: productData{Detail: detail}})
	}
}

// HandleAddReview records a review from the product page form.
func HandleAddReview(svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		back := "/shop/product/" + slug
		if err := r.ParseForm(); err != nil {
			redirectWithFlash(w, r, back, flashWarning, "Something went wrong! please try again.")
			return
		}

		rating, _ := strconv.Atoi(r.PostFormValue("rating"))
		in := shop.ReviewInput{Rating: rating, Comment: strings.TrimSpace(r.PostFormValue("comment"))}
		if err := validation.Struct(in); err != nil {
			redirectWithFlash(w, r, back, flashWarning, "Something went wrong! please try again.")
			return
		}

		if _, err := svc.AddReview(r.Context(), slug, currentUserID(r), in); err != nil {
			if errors.Is(err, shop.ErrItemNotFound) {
				renderError(w, "We couldn't find that product.", http.StatusNotFound)
				return
			}
			slog.Error("Failed to add review", slog.String("slug", slug), slog.Any("error", err))
			redirectWithFlash(w, r, back, flashWarning, "Something went wrong! please try again.")
			return
		}
		redirectWithFlash(w, r, back, flashSuccess, "Review added successfully!")
	}
}

type cartData struct {
	Cart    *shop.Cart
	Coupons []models.Coupon
}

func HandleCart(svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cart, err := svc.Cart(r.Context(), currentUserID(r))
		if err != nil {
			slog.Error("Failed to load cart", slog.Any("error", err))
			renderError(w, "We couldn't load your cart.", http.StatusInternalServerError)
			return
		}
		coupons, err := svc.ActiveCoupons(r.Context())
		if err != nil {
			slog.Error("Failed to list coupons", slog.Any("error", err))
			coupons = nil
		}
		render(w, r, "shop_cart.html", page{Title: "Cart", Site: siteShop, Data: cartData{Cart: cart, Coupons: coupons}})
	}
}

func HandleApplyCoupon(svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSpace(r.PostFormValue("coupon_code"))
		err := svc.ApplyCoupon(r.Context(), currentUserID(r), code)
		switch {
		case err == nil:
			redirectWithFlash(w, r, shopCart, flashSuccess, "Successfully applied coupon!")
		case errors.Is(err, shop.ErrCouponNotFound):
			redirectWithFlash(w, r, shopCart, flashInfo, "This coupon does not exist")
		case errors.Is(err, shop.ErrNoActiveOrder):
			redirectWithFlash(w, r, shopCart, flashWarning, "You do not have an active order")
		default:
			slog.Error("Failed to apply coupon", slog.Any("error", err))
			redirectWithFlash(w, r, shopCart, flashError, "Something went wrong! please try again.")
		}
	}
}

// parseQuantity accepts a JSON number or a string of digits. Anything
// else, including values below one, is one.
func parseQuantity(v any) int {
	switch q := v.(type) {
	case string:
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || strings.TrimLeft(q, "0123456789") != "" {
			return 1
		}
		return n
	case float64:
		if q < 1 || q != float64(int(q)) {
			return 1
		}
		return int(q)
	default:
		return 1
	}
}

func inCart(cart *shop.Cart, slug string) bool {
	for _, l := range cart.Lines {
		if l.Item.Slug == slug {
			return true
		}
	}
	return false
}

func HandleAddToCart(svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		userID := currentUserID(r)

		var body struct {
			Quantity any `json:"quantity"`
		}
		if err := decodeJSON(r, &body); err != nil {
			writeJSONError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		quantity := parseQuantity(body.Quantity)

		before, err := svc.Cart(r.Context(), userID)
		if err != nil {
			slog.Error("Failed to load cart", slog.Any("error", err))
			writeJSONError(w, "Failed to update cart", http.StatusInternalServerError)
			return
		}

		added, err := svc.AddToCart(r.Context(), userID, slug, quantity)
		if err != nil {
			if errors.Is(err, shop.ErrItemNotFound) {
				writeJSONError(w, "Item not found", http.StatusNotFound)
				return
			}
			slog.Error("Failed to add to cart", slog.String("slug", slug), slog.Any("error", err))
			writeJSONError(w, "Failed to update cart", http.StatusInternalServerError)
			return
		}

		if inCart(before, slug) {
			addFlash(w, r, flashInfo, "The quantity of this item was increased.")
		} else {
			addFlash(w, r, flashInfo, fmt.Sprintf("This item was added to your cart with quantity of %d.", added))
		}
		validation.WriteJSON(w, map[string]any{
			"status":   "success",
			"message":  "Item quantity updated.",
			"quantity": added,
		}, http.StatusOK)
	}
}

// HandleRemoveFromCart deletes the item's cart line and sends the shopper
// to redirectTo, or to the product page when it is empty.
func HandleRemoveFromCart(svc *shop.Service, redirectTo string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := chi.URLParam(r, "slug")
		target := redirectTo
		if target == "" {
			target = "/shop/product/" + slug
		}

		err := svc.RemoveFromCart(r.Context(), currentUserID(r), slug)
		switch {
		case err == nil:
			redirectWithFlash(w, r, target, flashInfo, "This item was removed from your cart.")
		case errors.Is(err, shop.ErrItemNotFound):
			renderError(w, "We couldn't find that product.", http.StatusNotFound)
		case errors.Is(err, shop.ErrNotInCart):
			redirectWithFlash(w, r, target, flashWarning, "This item was not in your cart.")
		case errors.Is(err, shop.ErrNoActiveOrder):
			redirectWithFlash(w, r, target, flashWarning, "You do not have an active order.")
		default:
			slog.Error("Failed to remove from cart", slog.String("slug", slug), slog.Any("error", err))
			renderError(w, "We couldn't update your cart.", http.StatusInternalServerError)
		}
	}
}

func HandleUpdateQuantity(svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lineID, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			renderError(w, "We couldn't find that cart item.", http.StatusNotFound)
			return
		}
		raw := strings.TrimSpace(r.PostFormValue("quantity"))
		if raw == "" {
			http.Redirect(w, r, shopCart, http.StatusFound)
			return
		}
		quantity, err := strconv.Atoi(raw)
		if err != nil {
			redirectWithFlash(w, r, shopCart, flashWarning, "Please enter a valid quantity.")
			return
		}

		err = svc.UpdateQuantity(r.Context(), currentUserID(r), uint(lineID), quantity)
		switch {
		case err == nil:
			http.Redirect(w, r, shopCart, http.StatusFound)
		case errors.Is(err, shop.ErrInvalidQuantity):
			redirectWithFlash(w, r, shopCart, flashWarning, "Please enter a valid quantity.")
		case errors.Is(err, shop.ErrLineNotFound), errors.Is(err, shop.ErrNoActiveOrder):
			renderError(w, "We couldn't find that cart item.", http.StatusNotFound)
		default:
			slog.Error("Failed to update quantity", slog.Uint64("line_id", lineID), slog.Any("error", err))
			renderError(w, "We couldn't update your cart.", http.StatusInternalServerError)
		}
	}
}

type checkoutData struct {
	Checkout *shop.CheckoutPage
}

func HandleCheckout(svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checkout, err := svc.Checkout(r.Context(), currentUserID(r))
		switch {
		case errors.Is(err, shop.ErrNoActiveOrder):
			redirectWithFlash(w, r, shopCart, flashWarning, "You do not have an active order")
			return
		case errors.Is(err, shop.ErrEmptyCart):
			redirectWithFlash(w, r, shopCart, flashWarning, "Your cart is empty. Please add items before proceeding to checkout.")
			return
		case err != nil:
			slog.Error("Failed to load checkout", slog.Any("error", err))
			renderError(w, "We couldn't load the checkout.", http.StatusInternalServerError)
			return
		}
		render(w, r, "shop_checkout.html", page{Title: "Checkout", Site: siteShop, Data: checkoutData{Checkout: checkout}})
	}
}

func addressInput(r *http.Request, prefix string) shop.AddressInput {
	return shop.AddressInput{
		Country:    strings.ToUpper(strings.TrimSpace(r.PostFormValue(prefix + "_country"))),
		Street:     strings.TrimSpace(r.PostFormValue(prefix + "_address")),
		Zip:        strings.TrimSpace(r.PostFormValue(prefix + "_zip_code")),
		SetDefault: r.PostFormValue("set_default_"+prefix) != "",
	}
}

func checkoutInput(r *http.Request) shop.CheckoutInput {
	return shop.CheckoutInput{
		Billing:            addressInput(r, "billing"),
		Shipping:           addressInput(r, "shipping"),
		UseDefaultBilling:  r.PostForm.Has("use_default_billing"),
		UseDefaultShipping: r.PostForm.Has("use_default_shipping"),
		PaymentOption:      r.PostFormValue("payment_options"),
	}
}

func HandlePlaceOrder(svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			redirectWithFlash(w, r, shopCheckout, flashWarning, "There was an error with your form. Please try again.")
			return
		}
		in := checkoutInput(r)
		if errs := in.Validate(); len(errs) > 0 {
			slog.Debug("Rejected checkout form", slog.Any("fields", errs))
			redirectWithFlash(w, r, shopCheckout, flashWarning, "There was an error with your form. Please try again.")
			return
		}

		_, err := svc.PlaceOrder(r.Context(), currentUserID(r), in)
		switch {
		case err == nil && in.PaymentOption == shop.PaymentStripe:
			redirectWithFlash(w, r, shopComplete, flashSuccess, "Your order has been placed successfully.")
		case err == nil:
			http.Redirect(w, r, shopComplete, http.StatusFound)
		case errors.Is(err, shop.ErrNoActiveOrder):
			redirectWithFlash(w, r, shopCart, flashWarning, "You do not have an order")
		case errors.Is(err, shop.ErrNoDefaultAddress):
			redirectWithFlash(w, r, shopCheckout, flashWarning, "You have no default address saved. Please enter one.")
		default:
			slog.Error("Failed to place order", slog.Any("error", err))
			redirectWithFlash(w, r, shopCheckout, flashError, "Something went wrong! please try again.")
		}
	}
}

type paymentData struct {
	Cart           *shop.Cart
	Option         string
	PublishableKey string
}

// HandlePaymentForm shows the card form for the active order.
func HandlePaymentForm(svc *shop.Service, publishableKey string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cart, err := svc.Cart(r.Context(), currentUserID(r))
		if err != nil {
			slog.Error("Failed to load cart", slog.Any("error", err))
			renderError(w, "We couldn't load your order.", http.StatusInternalServerError)
			return
		}
		if cart.Order == nil || cart.Empty() {
			redirectWithFlash(w, r, shopCart, flashWarning, "You do not have an active order")
			return
		}
		data := paymentData{Cart: cart, Option: chi.URLParam(r, "option"), PublishableKey: publishableKey}
		render(w, r, "shop_payment.html", page{Title: "Payment", Site: siteShop, Data: data})
	}
}

func HandlePayment(svc *shop.Service, users *auth.Users) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := users.Get(r.Context(), currentUserID(r))
		if err != nil {
			slog.Error("Failed to load user", slog.Any("error", err))
			redirectWithFlash(w, r, shopHome, flashError, payments.MsgUnknown)
			return
		}

		_, err = svc.Pay(r.Context(), user, r.PostFormValue("stripeToken"))
		switch {
		case err == nil:
			redirectWithFlash(w, r, shopHome, flashSuccess, "Your order was successful!")
		case errors.Is(err, shop.ErrPaymentNotEnabled):
			redirectWithFlash(w, r, shopHome, flashError, "Card payments are not available right now.")
		case errors.Is(err, shop.ErrNoActiveOrder), errors.Is(err, shop.ErrEmptyCart):
			redirectWithFlash(w, r, shopCart, flashWarning, "You do not have an active order")
		default:
			redirectWithFlash(w, r, shopHome, flashError, payments.Classify(err))
		}
	}
}

func HandleOrderComplete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render(w, r, "shop_complete.html", page{Title: "Order complete", Site: siteShop})
	}
}

type ordersData struct {
	Orders []models.Order
}

func HandleOrders(svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := svc.Orders(r.Context(), currentUserID(r))
		if err != nil {
			slog.Error("Failed to list orders", slog.Any("error", err))
			renderError(w, "We couldn't load your orders.", http.StatusInternalServerError)
			return
		}
		render(w, r, "shop_orders.html", page{Title: "Your orders", Site: siteShop, Data: ordersData{Orders: orders}})
	}
}

type refundData struct {
	Form   shop.RefundInput
	Errors map[string]string
}

func HandleRefundRequest(svc *shop.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			render(w, r, "shop_refund.html", page{Title: "Request a refund", Site: siteShop, Data: refundData{}})
			return
		}

		in := shop.RefundInput{
			RefCode: strings.TrimSpace(r.PostFormValue("ref_code")),
			Email:   strings.TrimSpace(r.PostFormValue("email")),
			Reason:  strings.TrimSpace(r.PostFormValue("reason")),
		}
		if err := validation.Struct(in); err != nil {
			data := refundData{Form: in, Errors: validation.FieldErrors(err)}
			render(w, r, "shop_refund.html", page{Title: "Request a refund", Site: siteShop, Data: data})
			return
		}

		_, err := svc.RequestRefund(r.Context(), in)
		switch {
		case err == nil:
			redirectWithFlash(w, r, shopHome, flashSuccess, "Your request has been added successfully.")
		case errors.Is(err, shop.ErrOrderNotFound):
			redirectWithFlash(w, r, shopHome, flashWarning, "Invalid reference code. Please try again.")
		default:
			slog.Error("Failed to request refund", slog.Any("error", err))
			redirectWithFlash(w, r, shopHome, flashWarning, "An unexpected error occurred. Please try again later.")
		}
	}
}

type portfolioRequest struct {
	Message  string        `json:"message"`
	UserChat []models.Turn `json:"userchat"`
}

// HandlePortfolioChat answers the portfolio chatbot: the persona primes
// the conversation, followed by the visitor's own history.
func HandlePortfolioChat(chat assistant.Chatter, persona []models.Turn) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSONError(w, "You are not using post request", http.StatusBadRequest)
			return
		}

		var req portfolioRequest
		if err := decodeJSON(r, &req); err != nil {
			if errors.Is(err, errEmptyBody) {
				writeJSONError(w, "Empty request", http.StatusBadRequest)
				return
			}
			writeJSONError(w, "Invalid JSON", http.StatusBadRequest)
			return
		}

		history := make([]models.Turn, 0, len(persona)+len(req.UserChat))
		history = append(history, persona...)
		history = append(history, req.UserChat...)

		reply, err := chat.Chat(r.Context(), assistant.Portfolio, history, []string{req.Message})
		if err != nil {
			slog.Error("Failed to get portfolio reply", slog.Any("error", err))
			writeJSONError(w, "Failed to get a response", http.StatusInternalServerError)
			return
		}
		validation.WriteJSON(w, map[string]string{"response": reply}, http.StatusOK)
	}
}
