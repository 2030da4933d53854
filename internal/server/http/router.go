// Package http exposes the name-day calendar over a gin JSON API.
package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"nameday/internal/logging"
	"nameday/internal/nameday"
)

// CalendarService answers the API's calendar queries.
type CalendarService interface {
	Calendar() nameday.Calendar
	Today() (string, []string)
	Date(month, day int) (string, []string, error)
	Name(name string) []nameday.NameMatch
	Month(month int) (nameday.Calendar, error)
	Refresh(ctx context.Context) (nameday.Calendar, error)
}

// RouterConfig wires the router's collaborators.
type RouterConfig struct {
	Service CalendarService
	// APIKey guards POST /api/refresh. Empty disables refreshing.
	APIKey string
	// AllowedOrigins limits CORS; empty allows every origin.
	AllowedOrigins []string
	// Registry receives the HTTP metrics and backs /metrics. Nil uses a
	// private registry.
	Registry *prometheus.Registry
	// Tracer opens a span per request; nil disables tracing.
	Tracer trace.Tracer
	Logger logging.Logger
	Debug  bool
}

// NewRouter builds the API engine.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if !cfg.Debug && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := logging.OrNop(cfg.Logger)
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	metrics := MustNewMetrics(reg)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	engine.Use(RequestIDMiddleware())
	if cfg.Tracer != nil {
		engine.Use(TracingMiddleware(cfg.Tracer))
	}
	engine.Use(LoggingMiddleware(logger))
	engine.Use(metrics.Middleware())

	h := NewHandler(cfg.Service, cfg.APIKey, metrics, logger)

	engine.GET("/", h.HandleRoot)
	engine.GET("/healthz", h.HandleHealth)
	engine.GET("/docs", HandleDocs)
	engine.GET("/openapi.json", HandleOpenAPI)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	api := engine.Group("/api")
	{
		api.GET("/today", h.HandleToday)
		api.GET("/date/:month/:day", h.HandleDate)
		api.GET("/name/:name", h.HandleName)
		api.GET("/month/:month", h.HandleMonth)
		api.GET("/all", h.HandleAll)
		api.POST("/refresh", h.HandleRefresh)
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Detail: "Not Found"})
	})
	return engine
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", apiKeyHeader, requestIDHeader}
	cfg.ExposeHeaders = []string{requestIDHeader}
	return cfg
}
