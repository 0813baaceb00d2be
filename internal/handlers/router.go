package handlers

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/guidedtours/reservation-backend/internal/config"
	"github.com/guidedtours/reservation-backend/internal/middleware"
	"github.com/guidedtours/reservation-backend/internal/services"
	"github.com/guidedtours/reservation-backend/pkg/jwt"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// RouterDeps carries everything the HTTP surface needs
type RouterDeps struct {
	Bookings    *BookingHandler
	Tours       *TourHandler
	Payments    *PaymentHandler
	Redemptions *RedemptionHandler
	Settlements *SettlementHandler
	System      *SystemHandler

	JWT         *jwt.Service
	RateLimiter *services.RateLimitService // nil disables rate limiting
	CORS        config.CORSConfig
	Logger      *logrus.Logger
}

// NewRouter builds the gin engine and registers all routes
func NewRouter(d RouterDeps) *gin.Engine {
	origins := d.CORS.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(d.Logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     d.CORS.AllowedMethods,
		AllowHeaders:     d.CORS.AllowedHeaders,
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: !containsWildcard(origins),
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", d.System.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/holds", d.Bookings.CreateHold)

		bookings := v1.Group("/bookings")
		{
			bookings.GET("/:id", d.Bookings.GetBooking)
			bookings.POST("/:id/extend", d.Bookings.ExtendHold)
			bookings.POST("/:id/confirm", d.Bookings.ConfirmBooking)
			bookings.POST("/:id/cancel", d.Bookings.CancelBooking)
		}

		tours := v1.Group("/tours")
		{
			tours.GET("/:id", d.Tours.GetTour)
			tours.GET("/:id/availability", d.Tours.GetAvailability)
		}

		v1.POST("/payments/webhook", d.Payments.PaymentWebhook)

		staff := v1.Group("")
		staff.Use(middleware.AuthMiddleware(d.JWT, d.Logger), middleware.RequireRole(jwt.RoleStaff, jwt.RoleAdmin))
		{
			staff.POST("/redemptions",
				middleware.RateLimit(d.RateLimiter, middleware.StaffOrIPKey("redeem"), d.Logger),
				d.Redemptions.Redeem,
			)
			staff.GET("/settlements/summary", d.Settlements.GetSummary)
		}

		admin := v1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(d.JWT, d.Logger), middleware.RequireRole(jwt.RoleAdmin))
		{
			admin.GET("/sweep", d.System.SweepStatus)
			admin.POST("/sweep", d.System.RunSweep)
		}
	}

	return router
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
