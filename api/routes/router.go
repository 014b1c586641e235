package routes

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/bazaar-backend/api/controllers"
	"github.com/angelmondragon/bazaar-backend/api/middleware"
	"github.com/angelmondragon/bazaar-backend/internal/auth"
	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/orders"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/internal/reviews"
	"github.com/angelmondragon/bazaar-backend/internal/users"
	"github.com/angelmondragon/bazaar-backend/internal/wishlist"
	"github.com/angelmondragon/bazaar-backend/pkg/auth/session"
	"github.com/angelmondragon/bazaar-backend/pkg/config"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/bazaar-backend/pkg/redis"
)

// Cache is the Redis surface used by the HTTP layer.
type Cache interface {
	pkgredis.Pinger
	pkgredis.IdempotencyStore
	pkgredis.RateLimiter
}

// UploadStore serves stored product images.
type UploadStore interface {
	Dir() string
	PublicPath() string
	MaxRequestBytes() int64
}

// Dependencies carries everything the router mounts.
type Dependencies struct {
	DB       db.Pinger
	Cache    Cache
	Sessions session.AccessSessionChecker
	Metrics  *metrics.HTTPMetrics
	Uploads  UploadStore

	Auth     auth.Service
	Users    users.Service
	Products product.Service
	Cart     cart.Service
	Wishlist wishlist.Service
	Orders   orders.Service
	Reviews  reviews.Service
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.Metrics),
		middleware.CORS(cfg.CORS),
	)

	loginThrottle := middleware.LoginThrottle(cfg.AuthRateLimit)
	registerThrottle := middleware.RegisterThrottle(cfg.AuthRateLimit)

	var resolver middleware.IdentityResolver
	if deps.Users != nil {
		resolver = deps.Users
	}
	requireAuth := middleware.Auth(cfg.JWT, deps.Sessions, resolver, logg)
	optionalAuth := middleware.OptionalAuth(cfg.JWT, deps.Sessions, resolver, logg)
	only := func(roles ...enums.Role) func(http.Handler) http.Handler {
		return middleware.RequireRoles(logg, roles...)
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Cache))
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	if deps.Uploads != nil {
		mountUploads(r, deps.Uploads)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimit, deps.Cache, logg))

		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.AuthRateLimit(registerThrottle, deps.Cache, logg)).Post("/register", controllers.AuthRegister(deps.Auth, logg))
			r.With(middleware.AuthRateLimit(loginThrottle, deps.Cache, logg)).Post("/login", controllers.AuthLogin(deps.Auth, logg))
			r.Post("/refresh", controllers.AuthRefresh(deps.Auth, logg))
			r.With(requireAuth).Post("/logout", controllers.AuthLogout(deps.Auth, logg))
			r.With(requireAuth).Get("/me", controllers.AuthMe(deps.Users, logg))
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/wishlist/shared/{token}", controllers.WishlistShared(deps.Wishlist, logg))

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/me", controllers.AuthMe(deps.Users, logg))
				r.Put("/me", controllers.UsersUpdateMe(deps.Users, logg))
				r.Put("/me/password", controllers.UsersChangePassword(deps.Auth, logg))
				r.With(only(enums.RoleDeliveryAgent)).Put("/me/availability", controllers.UsersAvailability(deps.Users, logg))

				r.Route("/me/wishlist", func(r chi.Router) {
					r.Use(only(enums.RoleCustomer))
					r.Get("/", controllers.WishlistGet(deps.Wishlist, logg))
					r.Post("/items", controllers.WishlistAddItem(deps.Wishlist, logg))
					r.Put("/items/{productId}", controllers.WishlistUpdateItem(deps.Wishlist, logg))
					r.Delete("/items/{productId}", controllers.WishlistRemoveItem(deps.Wishlist, logg))
					r.Post("/items/{productId}/move-to-cart", controllers.WishlistMoveToCart(deps.Wishlist, logg))
					r.Post("/share", controllers.WishlistShare(deps.Wishlist, logg))
					r.Delete("/share", controllers.WishlistUnshare(deps.Wishlist, logg))
				})
			})
		})

		r.Route("/products", func(r chi.Router) {
			r.With(optionalAuth).Get("/", controllers.ProductList(deps.Products, logg))
			r.With(optionalAuth).Get("/{id}", controllers.ProductGet(deps.Products, logg))

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.With(only(enums.RoleVendor, enums.RoleAdmin)).Post("/", controllers.ProductCreate(deps.Products, deps.Uploads, logg))
				r.With(only(enums.RoleVendor, enums.RoleAdmin)).Put("/{id}", controllers.ProductUpdate(deps.Products, logg))
				r.With(only(enums.RoleVendor, enums.RoleAdmin)).Delete("/{id}", controllers.ProductDelete(deps.Products, logg))
				r.With(only(enums.RoleVendor, enums.RoleAdmin, enums.RoleInventoryManager)).Patch("/{id}/stock", controllers.ProductStock(deps.Products, logg))
			})
		})

		r.Route("/cart", func(r chi.Router) {
			r.Use(requireAuth, only(enums.RoleCustomer))
			r.Get("/", controllers.CartGet(deps.Cart, logg))
			r.Delete("/", controllers.CartClear(deps.Cart, logg))
			r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
			r.Put("/items/{itemId}", controllers.CartUpdateItem(deps.Cart, logg))
			r.Delete("/items/{itemId}", controllers.CartRemoveItem(deps.Cart, logg))
			r.Post("/sync", controllers.CartSync(deps.Cart, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Use(requireAuth)
			r.With(only(enums.RoleCustomer), middleware.Idempotency(deps.Cache, logg)).Post("/", controllers.OrdersPlace(deps.Orders, logg))
			r.Get("/", controllers.OrdersList(deps.Orders, logg))
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", controllers.OrdersGet(deps.Orders, logg))
				r.Get("/tracking", controllers.OrdersTracking(deps.Orders, logg))
				r.With(only(enums.RoleVendor, enums.RoleAdmin)).Put("/status", controllers.OrdersUpdateStatus(deps.Orders, logg))
				r.With(only(enums.RoleCustomer)).Put("/cancel", controllers.OrdersCancel(deps.Orders, logg))
				r.With(only(enums.RoleVendor, enums.RoleAdmin)).Put("/assign", controllers.OrdersAssignAgent(deps.Orders, logg))
				r.With(only(enums.RoleDeliveryAgent, enums.RoleAdmin)).Put("/delivery", controllers.OrdersUpdateDelivery(deps.Orders, logg))
				r.With(only(enums.RoleDeliveryAgent, enums.RoleAdmin)).Post("/delivery/issues", controllers.OrdersReportIssue(deps.Orders, logg))
				r.With(only(enums.RoleCustomer)).Post("/delivery/feedback", controllers.OrdersFeedback(deps.Orders, logg))
			})
		})

		r.Route("/reviews", func(r chi.Router) {
			r.Get("/product/{productId}", controllers.ReviewsForProduct(deps.Reviews, logg))

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.With(only(enums.RoleCustomer)).Post("/", controllers.ReviewsCreate(deps.Reviews, logg))
				r.With(only(enums.RoleCustomer)).Put("/{id}", controllers.ReviewsUpdate(deps.Reviews, logg))
				r.With(only(enums.RoleCustomer, enums.RoleAdmin)).Delete("/{id}", controllers.ReviewsDelete(deps.Reviews, logg))
				r.Post("/{id}/report", controllers.ReviewsReport(deps.Reviews, logg))
			})
		})

		r.Route("/vendors", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(requireAuth, only(enums.RoleVendor))
				r.Get("/me/products", controllers.VendorProducts(deps.Products, logg))
				r.Get("/me/orders", controllers.VendorOrders(deps.Orders, logg))
				r.Get("/me/stats", controllers.VendorStats(deps.Orders, logg))
			})
			r.Get("/", controllers.VendorsList(deps.Users, logg))
			r.Get("/{id}", controllers.VendorsGet(deps.Users, deps.Products, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireAuth, only(enums.RoleAdmin))
			r.Get("/users", controllers.AdminUsersList(deps.Users, logg))
			r.Post("/users", controllers.AdminUsersCreate(deps.Auth, logg))
			r.Patch("/users/{id}/status", controllers.AdminUsersStatus(deps.Users, logg))
			r.Delete("/users/{id}", controllers.AdminUsersDelete(deps.Users, logg))
			r.Put("/delivery/{statusId}/resolve", controllers.AdminResolveIssue(deps.Orders, logg))
		})

		r.Route("/moderator", func(r chi.Router) {
			r.Use(requireAuth, only(enums.RoleModerator, enums.RoleAdmin))
			r.Get("/reviews", controllers.ModeratorReviewQueue(deps.Reviews, logg))
			r.Put("/reviews/{id}/approve", controllers.ModeratorApproveReview(deps.Reviews, logg))
			r.Put("/reviews/{id}/unflag", controllers.ModeratorUnflagReview(deps.Reviews, logg))
			r.Delete("/reviews/{id}", controllers.ModeratorRemoveReview(deps.Reviews, logg))
			r.Get("/products/pending", controllers.ProductPending(deps.Products, logg))
			r.Put("/products/{id}/approve", controllers.ProductApprove(deps.Products, logg))
			r.Put("/products/{id}/reject", controllers.ProductReject(deps.Products, logg))
		})
	})

	return r
}

func mountUploads(r chi.Router, store UploadStore) {
	prefix := "/" + strings.Trim(store.PublicPath(), "/")
	files := http.StripPrefix(prefix, http.FileServer(http.Dir(store.Dir())))
	r.Handle(prefix+"/*", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if strings.HasSuffix(req.URL.Path, "/") {
			http.NotFound(w, req)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		files.ServeHTTP(w, req)
	}))
}
