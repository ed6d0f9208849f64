package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// DevJWTSecret signs tokens when JWT_SECRET is unset outside production.
const DevJWTSecret = "dev-secret-change-me"

type Env struct {
	AppAddr string
	GinMode string
	AppEnv  string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisURL  string
	JWTSecret string

	SeatLockTTL       time.Duration
	SeatLockMaxTTL    time.Duration
	LockSweepInterval time.Duration

	BookingRateLimit  int
	BookingRateWindow time.Duration

	CORSAllowedOrigins []string
	AutoMigrate        bool
}

func LoadEnv() Env {
	return Env{
		AppAddr: getEnv("APP_ADDR", ":8080"),
		GinMode: getEnv("GIN_MODE", ""),
		AppEnv:  getEnv("APP_ENV", "development"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     getEnv("DB_NAME", "busreserve"),

		RedisURL:  getEnv("REDIS_URL", ""),
		JWTSecret: getEnv("JWT_SECRET", DevJWTSecret),

		SeatLockTTL:       getEnvAsDuration("SEAT_LOCK_TTL", 15*time.Minute),
		SeatLockMaxTTL:    getEnvAsDuration("SEAT_LOCK_MAX_TTL", 30*time.Minute),
		LockSweepInterval: getEnvAsDuration("LOCK_SWEEP_INTERVAL", time.Minute),

		BookingRateLimit:  getEnvAsInt("BOOKING_RATE_LIMIT", 10),
		BookingRateWindow: getEnvAsDuration("BOOKING_RATE_WINDOW", 15*time.Minute),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
		AutoMigrate:        getEnvAsBool("AUTO_MIGRATE", false),
	}
}

// Production reports whether the service runs with production defaults.
func (e Env) Production() bool {
	return strings.EqualFold(e.AppEnv, "production")
}

// Validate rejects settings that must never reach production.
func (e Env) Validate() error {
	if e.Production() && (e.JWTSecret == "" || e.JWTSecret == DevJWTSecret) {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
