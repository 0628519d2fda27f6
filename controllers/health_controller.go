package controllers

import (
	"context"
	"fmt"
	"time"

	"nakeslink/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
)

type HealthController struct {
	db        *mongo.Database
	redis     *redis.Client
	version   string
	startedAt time.Time
}

func NewHealthController(db *mongo.Database, redisClient *redis.Client, version string) *HealthController {
	return &HealthController{
		db:        db,
		redis:     redisClient,
		version:   version,
		startedAt: time.Now(),
	}
}

// HealthCheck handles GET /health
func (hc *HealthController) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	services := map[string]string{
		"database": "healthy",
		"redis":    "healthy",
	}

	if err := hc.db.Client().Ping(ctx, nil); err != nil {
		services["database"] = "unhealthy"
	}
	if hc.redis != nil {
		if err := hc.redis.Ping(ctx).Err(); err != nil {
			services["redis"] = "unhealthy"
		}
	}

	uptime := fmt.Sprintf("%.0fs", time.Since(hc.startedAt).Seconds())
	response := utils.HealthCheckResponse(services, hc.version, uptime)

	utils.SuccessResponse(c, "Health check completed", response)
}
