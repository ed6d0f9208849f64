package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"busreserve/internal/cache"
	intconfig "busreserve/internal/config"
	intdb "busreserve/internal/db"
	router "busreserve/internal/http"
	"busreserve/internal/http/middleware"
	"busreserve/internal/repositories"
	"busreserve/internal/services"
	"busreserve/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	dotenvErr := godotenv.Load()
	env := intconfig.LoadEnv()
	logger := utils.InitLogger(os.Stdout, env.Production())
	if dotenvErr != nil {
		logger.Debug("no .env file loaded, using process environment")
	}
	if err := env.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := intconfig.ConnectDB(ctx, env)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer intconfig.CloseDB()
	logger.Info("connected to MySQL", "host", env.DBHost, "db", env.DBName)

	if env.AutoMigrate {
		if err := intdb.EnsureSchema(ctx, db); err != nil {
			logger.Error("schema bootstrap failed", "error", err)
			os.Exit(1)
		}
	}

	var rdb redis.Cmdable
	var limiter *middleware.RateLimiter
	if env.RedisURL != "" {
		client, err := cache.NewRedisClient(ctx, env.RedisURL)
		if err != nil {
			// rate limiting fails open
			logger.Warn("redis unavailable, booking rate limit disabled", "error", err)
		} else {
			defer client.Close()
			rdb = client
			limiter = middleware.NewRateLimiter(client, env.BookingRateLimit, env.BookingRateWindow)
		}
	}

	locksRepo := repositories.SeatLockRepository{DB: db}
	bookingsRepo := repositories.BookingRepository{DB: db}
	busesRepo := repositories.BusRepository{DB: db}
	audit := services.AuditService{Repo: repositories.AuditRepository{DB: db}}

	lockSvc := services.NewSeatLockService(locksRepo, bookingsRepo, busesRepo,
		services.WithLockTTL(env.SeatLockTTL),
		services.WithMaxLockTTL(env.SeatLockMaxTTL),
	)

	go lockSvc.RunSweeper(ctx, env.LockSweepInterval)

	r := router.NewRouter(router.Deps{
		Env:   env,
		DB:    db,
		Redis: rdb,
		Locks: lockSvc,
		Availability: services.AvailabilityService{
			Locks:    locksRepo,
			Bookings: bookingsRepo,
			Buses:    busesRepo,
		},
		Bookings: services.BookingService{
			Locks:    locksRepo,
			Bookings: bookingsRepo,
			Buses:    busesRepo,
			Tx:       services.SQLTxRunner{Store: repositories.Store{DB: db}},
			Audit:    audit,
		},
		Auth: services.AuthService{
			Users:  repositories.UserRepository{DB: db},
			Secret: []byte(env.JWTSecret),
			Audit:  audit,
		},
		Limiter: limiter,
	})

	srv := &http.Server{
		Addr:              env.AppAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", env.AppAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		return
	}
	logger.Info("server stopped")
}
