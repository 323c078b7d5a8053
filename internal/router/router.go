// Package router wires handlers, middleware and the access policy onto echo.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/moiseenkov/cinema/internal/config"
	"github.com/moiseenkov/cinema/internal/handler"
	"github.com/moiseenkov/cinema/internal/middleware"
	"github.com/moiseenkov/cinema/internal/pkg/metrics"
	"github.com/moiseenkov/cinema/internal/service"
)

// Deps are the services and settings the routes need. Metrics and Redis are
// optional.
type Deps struct {
	Config    config.Config
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Redis     *redis.Client
	Metrics   *metrics.Metrics

	Users     *service.UserService
	Inventory *service.InventoryService
	Showings  *service.ShowingService
	Tickets   *service.TicketService
	Payments  *service.PaymentService
}

// New builds the echo instance with every middleware and route installed.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler
	e.Validator = handler.NewValidator()

	middleware.SetupMiddleware(e)
	if d.Metrics != nil {
		e.Use(middleware.Prometheus(d.Metrics))
	}
	e.Use(middleware.Authenticate(d.Config.JWTSecret, d.Users))
	e.Use(middleware.NewTokenBucket(d.RateLimit, d.Redis))
	e.Use(middleware.NewRedisCache(d.Cache, d.Redis))

	RegisterRoutes(e, d)
	return e
}

// crud is the handler set of one collection.
type crud interface {
	List(echo.Context) error
	Create(echo.Context) error
	Get(echo.Context) error
	Update(echo.Context) error
	PartialUpdate(echo.Context) error
	Delete(echo.Context) error
}

// resource mounts base/ and base/:id/ with one policy for both.
func resource(e *echo.Echo, base string, h crud, list, detail echo.MiddlewareFunc) {
	e.GET(base+"/", h.List, list)
	e.POST(base+"/", h.Create, list)
	e.GET(base+"/:id/", h.Get, detail)
	e.PUT(base+"/:id/", h.Update, detail)
	e.PATCH(base+"/:id/", h.PartialUpdate, detail)
	e.DELETE(base+"/:id/", h.Delete, detail)
}

// RegisterRoutes maps every endpoint. Unlisted verbs on a known path get 405
// from echo's router.
func RegisterRoutes(e *echo.Echo, d Deps) {
	pageSize := d.Config.PageSize

	e.GET("/", handler.Root)
	e.GET("/healthz", handler.Health)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()),
			middleware.MetricsBasicAuth(d.Config.MetricsUser, d.Config.MetricsPassword))
	}

	auth := handler.NewAuthHandler(d.Users)
	e.POST("/token/", auth.Token)
	e.POST("/token/refresh/", auth.Refresh)

	// Sign-up and the (self-scoped) list are open; detail routes need a
	// caller.
	users := handler.NewUserHandler(d.Users, pageSize)
	resource(e, "/users", users, middleware.AllowAny, middleware.RequireAuth)

	inventory := middleware.ReadAnyWriteAdmin()
	resource(e, "/halls", handler.NewHallHandler(d.Inventory, pageSize), inventory, inventory)
	resource(e, "/movies", handler.NewMovieHandler(d.Inventory, pageSize), inventory, inventory)
	resource(e, "/showings", handler.NewShowingHandler(d.Showings, pageSize), inventory, inventory)

	tickets := handler.NewTicketHandler(d.Tickets, d.Payments, pageSize)
	resource(e, "/tickets", tickets, middleware.RequireAuth, middleware.RequireAuth)
	e.PUT("/tickets/:id/pay/", tickets.Pay, middleware.RequireAuth)
	e.PATCH("/tickets/:id/pay/", tickets.Pay, middleware.RequireAuth)
}
