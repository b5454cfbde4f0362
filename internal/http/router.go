// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns:
// tracing, correlation IDs, logging, panic recovery, metrics, compression,
// CORS, security headers, and rate limiting. All dependencies are constructed
// in main and injected; the router owns no state of its own.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ndgaspar/go-commerce-backend/internal/config"
	"github.com/ndgaspar/go-commerce-backend/internal/http/handlers"
	"github.com/ndgaspar/go-commerce-backend/internal/http/middleware"
	"github.com/ndgaspar/go-commerce-backend/internal/services"
	"github.com/ndgaspar/go-commerce-backend/internal/storage"
	"github.com/ndgaspar/go-commerce-backend/internal/ws"
)

// Deps carries the application services the transport exposes.
type Deps struct {
	Products *services.ProductService
	Orders   *services.OrderService
	Events   *services.EventService
	Invoices *services.InvoiceService
	Store    storage.ObjectStore
	WS       *ws.Gateway
}

// RegisterRoutes attaches all middleware and endpoints to the engine.
//
// Middleware order matters: tracing wraps everything, RequestID runs before
// the logger so every line carries the correlation id, Recovery runs after the
// logger so panics are logged with request fields, and the rate limiter sits
// behind metrics so rejected requests still count.
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
		limitBody(1<<20),
	)

	// The WebSocket upgrade must see the raw connection and Prometheus
	// scrapes negotiate their own encoding, so both skip gzip.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/ws", "/metrics"})))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	installCORS(r, cfg.CORS.AllowedOrigins)

	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	h := handlers.New(d.Products, d.Orders, d.Events, d.Invoices, d.Store)

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.GET("/products", h.ListProducts)
		api.POST("/products", h.CreateProduct)
		api.GET("/products/:id", h.GetProduct)
		api.PUT("/products/:id", h.UpdateProduct)
		api.DELETE("/products/:id", h.DeleteProduct)

		api.GET("/orders", h.GetOrders)
		api.POST("/orders", h.SubmitOrder)
		api.DELETE("/orders", h.DeleteOrder)
		api.GET("/orders/events", h.GetOrderEvents)

		// Upload targets for these keys are issued over the WebSocket channel.
		api.PUT("/invoices/upload/:key", h.UploadInvoice)
	}

	r.GET("/ws", d.WS.Handle)
}

// installCORS configures the CORS posture. With no allowlist everything is
// permitted (credentials stay off); with one, the allowed origin is echoed
// back explicitly so caches vary correctly.
func installCORS(r *gin.Engine, origins []string) {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-Email", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		// Emit ACAO: * even for requests without an Origin header so plain
		// health checks see the open posture too.
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		base.AllowAllOrigins = true
		r.Use(cors.New(base))
		return
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	r.Use(func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	})
	base.AllowOrigins = origins
	r.Use(cors.New(base))
}

// limitBody caps every request body at maxBytes; reads past the cap error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
