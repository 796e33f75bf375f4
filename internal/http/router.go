// Package httpapi assembles the Gin engine: the middleware chain, the
// operational endpoints and the versioned booking API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-booking-backend/internal/config"
	"github.com/tbourn/go-booking-backend/internal/http/docs"
	"github.com/tbourn/go-booking-backend/internal/http/handlers"
	"github.com/tbourn/go-booking-backend/internal/http/middleware"
	"github.com/tbourn/go-booking-backend/internal/repo"
)

// RegisterRoutes installs middleware and mounts every endpoint on r. The
// chain runs in this order:
//
//	otelgin > RequestID > RedactingLogger > Recovery > body limit > Metrics >
//	gzip > IdempotencyValidator > RateLimiter > CORS > SecurityHeaders
//
// Recovery sits inside the logger so panics still produce an access line,
// and the idempotency check runs before the limiter so replays skip it.
func RegisterRoutes(r *gin.Engine, h *handlers.Handlers, db *gorm.DB, cfg config.Config) {
	r.HandleMethodNotAllowed = true
	apiBase := cfg.APIBasePath
	webhooks := joinPath(apiBase, "/webhooks")

	r.Use(
		otelgin.Middleware(cfg.OTEL.ServiceName),
		middleware.RequestID(),
		// The customer id header is a phone number.
		middleware.RedactingLogger(middleware.RedactOptions{MaskHeaders: []string{"X-API-Key", middleware.HeaderCustomerID}}),
		middleware.Recovery(),
		limitBody(1<<20),
		middleware.Metrics(),
	)
	r.GET(middleware.MetricsPath, gin.WrapH(promhttp.Handler()))

	// Provider callbacks are answered uncompressed.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		middleware.MetricsPath,
		webhooks,
	})))

	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200, Now: h.Clock.Now},
		func(ctx context.Context, customerID, scope, key string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, customerID, scope, key, now)
			return rec != nil, err
		},
	))

	// A throttled callback would leave a paid deposit unrecorded.
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		RPS:          cfg.RateRPS,
		Burst:        cfg.RateBurst,
		Key:          middleware.KeyByCustomerOrIP(),
		SkipPrefixes: []string{webhooks},
	})
	r.Use(rl.Handler())

	for _, mw := range corsMiddleware(cfg.CORS.AllowedOrigins) {
		r.Use(mw)
	}

	// Payment state is never cached.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:      cfg.Security.EnableHSTS,
		HSTSMaxAge:      cfg.Security.HSTSMaxAge,
		NoStorePrefixes: []string{joinPath(apiBase, "/payments"), webhooks},
		EnablePolicy:    true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	if cfg.SwaggerEnabled {
		docs.SwaggerInfo.BasePath = apiBase
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		// Conversation
		api.POST("/turns", h.PostTurn)
		api.GET("/drafts/me", h.GetDraft)
		api.DELETE("/drafts/me", h.DeleteDraft)
		api.POST("/drafts/me/cleanup", h.CleanupDraft)
		api.GET("/availability", h.GetAvailability)

		// Deposits
		api.POST("/payments/initiate", h.InitiatePayment)
		api.POST("/payments/resend", h.ResendPayment)
		api.POST("/payments/verify", h.VerifyPayment)
		api.POST("/payments/intent", h.PaymentIntent)
		api.GET("/payments/status", h.PaymentStatus)
		api.POST("/webhooks/mpesa", h.MpesaWebhook)

		// Bookings
		api.POST("/bookings", h.CreateBooking)
		api.GET("/bookings", h.ListBookings)
		api.PATCH("/bookings/:id", h.RescheduleBooking)
		api.POST("/bookings/:id/confirm", h.ConfirmBooking)
		api.POST("/bookings/:id/cancel", h.CancelBooking)
	}
}

// corsMiddleware allows any origin when none are configured and otherwise
// echoes allowlisted origins. ACAO is written up front as well, since
// gin-contrib/cors only answers requests that carry an Origin header.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization", "If-None-Match",
			middleware.HeaderCustomerID, middleware.HeaderIdempotencyKey,
		},
		ExposeHeaders: []string{middleware.HeaderRequestID, "Content-Length", "ETag", "Retry-After", "Idempotency-Replayed"},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Header("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if o := c.GetHeader("Origin"); allowed[o] {
				c.Header("Access-Control-Allow-Origin", o)
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps request bodies; reads past maxBytes fail and the handler
// answers 400.
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

func joinPath(prefix, p string) string {
	if prefix == "" || prefix == "/" {
		return p
	}
	return prefix + p
}
