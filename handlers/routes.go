package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/medleyhq/medley/lib/assistant"
	"github.com/medleyhq/medley/lib/auth"
	"github.com/medleyhq/medley/lib/coaching"
	"github.com/medleyhq/medley/lib/movies"
	"github.com/medleyhq/medley/lib/pagination"
	"github.com/medleyhq/medley/lib/shop"
	"github.com/medleyhq/medley/lib/taskchat"
	"github.com/medleyhq/medley/lib/videoqa"
	"github.com/medleyhq/medley/models"
)

// Deps are the services the sites are served from.
type Deps struct {
	Users    *auth.Users
	JWT      *auth.JWTManager
	Sessions *auth.Sessions

	VideoQA  *videoqa.Service
	Shop     *shop.Service
	Tasks    *taskchat.Service
	Coaching *coaching.Service
	Movies   *movies.Service

	// Chat and Persona answer the portfolio chatbot.
	Chat    assistant.Chatter
	Persona []models.Turn

	StripePublishableKey string
	AllowedOrigins       []string
	// AIRequestsPerMinute limits model-backed endpoints per client IP.
	// Zero disables the limit.
	AIRequestsPerMinute int

	// Stats backs the /stats page; nil leaves it unmounted.
	Stats StatsFunc
}

func (d Deps) aiLimit() func(http.Handler) http.Handler {
	if d.AIRequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		d.AIRequestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, "Too many requests, please slow down.", http.StatusTooManyRequests)
		}),
	)
}

// Mount registers every site on r. Session loading must already be in
// the middleware chain.
func Mount(r chi.Router, d Deps) {
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		render(w, req, "landing.html", page{Title: "Medley"})
	})
	if d.Stats != nil {
		r.Get("/stats", HandleStats(d.Stats))
	}
	r.Route("/ytqa", func(r chi.Router) { ytqaRoutes(r, d) })
	r.Route("/shop", func(r chi.Router) { shopRoutes(r, d) })
	r.Route("/tasks", func(r chi.Router) { taskRoutes(r, d) })
	r.Route("/coach", func(r chi.Router) { coachRoutes(r, d) })
	r.Route("/movies", func(r chi.Router) { movieRoutes(r, d) })
}

func ytqaRoutes(r chi.Router, d Deps) {
	r.Get("/", HandleYTQAIndex())
	r.With(d.aiLimit()).HandleFunc("/analyze-video", HandleAnalyzeVideo(d.VideoQA))
	r.With(d.aiLimit()).HandleFunc("/ask-question", HandleAskQuestion(d.VideoQA))
	r.Get("/video-list", HandleVideoList(d.VideoQA))
	r.Get("/video-details/{id}", HandleVideoDetails(d.VideoQA))
}

func shopRoutes(r chi.Router, d Deps) {
	svc := d.Shop
	category := func(c string) listFunc {
		return func(ctx context.Context, n int) (pagination.Page[models.Item], error) {
			return svc.Category(ctx, c, n)
		}
	}

	r.Get("/", HandleShopListing("Best sellers", svc.Home))
	r.Get("/index/", HandleShopListing("Best sellers", svc.Home))
	r.Get("/men/", HandleShopListing("Men", category(models.CategoryMen)))
	r.Get("/women/", HandleShopListing("Women", category(models.CategoryWomen)))
	r.Get("/all-products/", HandleShopListing("All products", svc.AllProducts))
	r.Get("/search/", HandleShopSuggest(svc))
	r.Get("/search-results/", HandleShopSearchResults(svc))
	r.Get("/product/{slug}", HandleProductDetail(svc))
	r.Get("/order-complete/", HandleOrderComplete())
	r.HandleFunc("/request-refund/", HandleRefundRequest(svc))

	r.With(cors.Handler(cors.Options{
		AllowedOrigins: d.AllowedOrigins,
		AllowedMethods: []string{http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}), d.aiLimit()).HandleFunc("/chat-response/", HandlePortfolioChat(d.Chat, d.Persona))

	accounts := &Accounts{Users: d.Users, Sessions: d.Sessions, Site: siteShop, Home: shopHome, Prefix: "/shop/accounts"}
	r.Route("/accounts", func(r chi.Router) {
		r.HandleFunc("/login/", accounts.HandleLogin())
		r.HandleFunc("/signup/", accounts.HandleSignup())
		r.Get("/logout/", accounts.HandleLogout())
	})

	r.Group(func(r chi.Router) {
		r.Use(d.Sessions.RequireLogin(shopLoginPath))
		r.Post("/product/{slug}", HandleAddReview(svc))
		r.Get("/cart/", HandleCart(svc))
		r.Get("/orders/", HandleOrders(svc))
		r.Post("/apply-coupon/", HandleApplyCoupon(svc))
		r.Post("/add-to-cart/{slug}", HandleAddToCart(svc))
		r.HandleFunc("/remove-from-cart/{slug}", HandleRemoveFromCart(svc, ""))
		r.HandleFunc("/remove-completely-from-cart/{slug}", HandleRemoveFromCart(svc, shopCart))
		r.Post("/update-quantity/{id}/", HandleUpdateQuantity(svc))
		r.Get("/checkout/", HandleCheckout(svc))
		r.Post("/checkout/", HandlePlaceOrder(svc))
		r.Get("/payment/{option}", HandlePaymentForm(svc, d.StripePublishableKey))
		r.Post("/payment/{option}", HandlePayment(svc, d.Users))
	})
}

func taskRoutes(r chi.Router, d Deps) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/signup", HandleSignup(d.Users, d.JWT))
		r.Post("/token/", HandleTokenObtain(d.Users, d.JWT))
		r.Post("/token/refresh/", HandleTokenRefresh(d.JWT))
		r.Post("/token/verify/", HandleTokenVerify(d.JWT))
	})

	r.Group(func(r chi.Router) {
		r.Use(d.JWT.RequireBearer)
		r.Get("/tasks/", HandleListTasks(d.Tasks))
		r.Post("/tasks/", HandleCreateTask(d.Tasks))
		r.Get("/tasks/{id}/", HandleGetTask(d.Tasks))
		r.Patch("/tasks/{id}/", HandleUpdateTask(d.Tasks))
		r.Put("/tasks/{id}/", HandleUpdateTask(d.Tasks))
		r.Delete("/tasks/{id}/", HandleDeleteTask(d.Tasks))

		r.Get("/chat/", HandleListChats(d.Tasks))
		r.With(d.aiLimit()).Post("/chat/", HandleSendChat(d.Tasks))
		r.Post("/chat/clear/", HandleClearChat(d.Tasks))
		r.Patch("/chat/{id}/", HandleUpdateChat(d.Tasks))
		r.Delete("/chat/{id}/", HandleDeleteChat(d.Tasks))
	})
}

func coachRoutes(r chi.Router, d Deps) {
	r.Get("/", HandleCoachIndex(d.Coaching))
	r.HandleFunc("/coaching-request/", HandleCoachingRequest(d.Coaching))
}

func movieRoutes(r chi.Router, d Deps) {
	svc := d.Movies
	accounts := &Accounts{Users: d.Users, Sessions: d.Sessions, Site: siteMovies, Home: moviesHome, Prefix: "/movies"}

	r.Get("/", HandleMoviesIndex(svc))
	r.Get("/movie/{id}/", HandleMovieDetail(svc))
	r.Get("/movies/", HandleAllMovies(svc))
	r.Get("/search/", HandleMovieSearch(svc))
	r.Post("/{id}/toggle_favorite/", HandleToggleFavorite(svc))
	r.Post("/movies/{id}/toggle_favorite/", HandleToggleFavorite(svc))
	r.Post("/load-more-movies/", HandleLoadMorePopular(svc))
	r.Post("/load_more_all_movies/", HandleLoadMoreAll(svc))
	r.Post("/load-more-search-results/", HandleLoadMoreSearch(svc))

	r.HandleFunc("/signup/", accounts.HandleSignup())
	r.HandleFunc("/profile/", accounts.HandleSignup())
	r.HandleFunc("/login/", accounts.HandleLogin())
	r.With(d.Sessions.RequireLogin(moviesLogin)).Get("/logout/", accounts.HandleLogout())
	r.With(d.Sessions.RequireLogin(moviesLogin)).Get("/favorites/", HandleFavorites(svc))
}
