package handlers

import (
	"context"
	"database/sql"
	"net/http"

	"busreserve/internal/cache"
	intdb "busreserve/internal/db"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type SystemHandler struct {
	DB    *sql.DB
	Redis redis.Cmdable
}

func (h SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "seat reservation backend is running"})
}

// DBCheck pings the database, reports missing tables and redis reachability.
func (h SystemHandler) DBCheck(c *gin.Context) {
	if h.DB == nil {
		RespondError(c, http.StatusServiceUnavailable, "database not connected", nil)
		return
	}
	ctx := c.Request.Context()
	if err := h.DB.PingContext(ctx); err != nil {
		RespondError(c, http.StatusServiceUnavailable, "database ping failed", err)
		return
	}
	missing, err := intdb.MissingTables(ctx, h.DB)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "schema check failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":        "database connection OK",
		"missing_tables": missing,
		"redis":          h.redisStatus(ctx),
	})
}

func (h SystemHandler) redisStatus(ctx context.Context) string {
	if h.Redis == nil {
		return "disabled"
	}
	if err := cache.HealthCheck(ctx, h.Redis); err != nil {
		return "unreachable"
	}
	return "ok"
}

// Metrics exposes the default prometheus registry.
func Metrics() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
