package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaysadin/wedding-rsvp-sub004/internal/handler"
	"github.com/shaysadin/wedding-rsvp-sub004/internal/middleware"
)

// Handler registers a group of routes under the authenticated API prefix.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine *gin.Engine
	auth   *middleware.AuthMiddleware
	base   *handler.Handler
	apiHs  []Handler
}

type Config struct {
	RateLimit middleware.RateLimiterConfig
}

func NewRouter(auth *middleware.AuthMiddleware, base *handler.Handler, cfg Config, apiHandlers ...Handler) *Router {
	gin.SetMode(gin.ReleaseMode)
	handler.RegisterValidations()
	engine := gin.New()

	engine.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
	)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimit)
	engine.Use(rateLimiter.RateLimit())

	return &Router{
		engine: engine,
		auth:   auth,
		base:   base,
		apiHs:  apiHandlers,
	}
}

func (r *Router) Setup() {
	r.base.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.engine.Group("/api/v1")
	api.Use(r.auth.Authenticate())
	for _, h := range r.apiHs {
		h.RegisterRoutes(api)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
