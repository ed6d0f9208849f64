package api

import (
	"database/sql"
	stdhttp "net/http"

	intconfig "busreserve/internal/config"
	"busreserve/internal/domain/models"
	h "busreserve/internal/http/handlers"
	"busreserve/internal/http/middleware"
	"busreserve/internal/services"
	"busreserve/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Deps carries everything the routes need.
type Deps struct {
	Env          intconfig.Env
	DB           *sql.DB
	Redis        redis.Cmdable
	Locks        services.SeatLockService
	Availability services.AvailabilityService
	Bookings     services.BookingService
	Auth         services.AuthService
	Limiter      *middleware.RateLimiter
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Logger(), gin.Recovery(), middleware.CORS(d.Env.CORSAllowedOrigins))

	if err := r.SetTrustedProxies(nil); err != nil {
		utils.Logger().Warn("failed to set trusted proxies", "error", err)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(stdhttp.StatusNotFound, gin.H{
			"error":  "route not found",
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		})
	})

	secret := []byte(d.Env.JWTSecret)
	system := h.SystemHandler{DB: d.DB, Redis: d.Redis}
	locks := h.SeatLockHandler{Locks: d.Locks}
	availability := h.AvailabilityHandler{Availability: d.Availability}
	bookings := h.BookingHandler{Bookings: d.Bookings}
	auth := h.AuthHandler{Auth: d.Auth}

	r.GET("/metrics", h.Metrics())

	api := r.Group("/api")
	{
		api.GET("/health", system.Health)
		api.GET("/db-check", system.DBCheck)

		api.POST("/auth/login", auth.Login)

		b := api.Group("/bookings", middleware.AuthOptional(secret))
		b.POST("/lock", d.Limiter.Middleware("lock"), locks.Lock)
		b.DELETE("/release", locks.Release)
		b.POST("/release", locks.Release)
		b.GET("/lock-remaining", locks.Remaining)
		b.GET("/lock/remaining", locks.Remaining)
		b.GET("/availability/:busId", availability.Get)
		b.GET("/booked-seats", availability.BookedSeats)

		authed := b.Group("", middleware.AuthRequired(secret))
		authed.POST("", d.Limiter.Middleware("commit"), bookings.Create)
		authed.GET("/me", bookings.Mine)
		authed.GET("/admin/bookings", middleware.RequireRoles(models.RoleAdmin), bookings.Admin)
		authed.GET("/:id/ticket", bookings.Ticket)
		authed.DELETE("/:id", bookings.Cancel)

		op := api.Group("/operator", middleware.AuthRequired(secret), middleware.RequireRoles(models.RoleOperator, models.RoleAdmin))
		op.POST("/bookings/manual", bookings.CreateManual)
	}

	return r
}
