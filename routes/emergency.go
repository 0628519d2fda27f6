package routes

import (
	"nakeslink/controllers"
	"nakeslink/middleware"
	"nakeslink/models"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

// SetupEmergencyRoutes configures the emergency dispatch surface. Creation
// carries its own tight rate limit; dashboards and lifecycle mutations are
// role-gated.
func SetupEmergencyRoutes(router *gin.RouterGroup, emergencyController *controllers.EmergencyController, auth *middleware.AuthMiddleware, redisClient *redis.Client) {
	emergencies := router.Group("/emergencies")
	{
		emergencies.POST("/",
			middleware.NewEmergencyRateLimiter(redisClient).Middleware(),
			emergencyController.CreateEmergency)

		emergencies.GET("/", emergencyController.GetUserEmergencies)

		emergencies.GET("/active",
			auth.RequireRole(models.RoleNakes, models.RoleAdmin),
			emergencyController.GetActiveEmergencies)

		emergencies.GET("/stats",
			auth.RequireRole(models.RoleAdmin),
			emergencyController.GetEmergencyStats)

		emergencies.GET("/:id", emergencyController.GetEmergency)
		emergencies.GET("/:id/timeline", emergencyController.GetEmergencyTimeline)

		emergencies.POST("/:id/respond",
			auth.RequireRole(models.RoleNakes),
			emergencyController.RespondToEmergency)

		emergencies.PATCH("/:id/status", emergencyController.UpdateEmergencyStatus)

		emergencies.POST("/:id/psc119/sync", emergencyController.SyncPSC119Status)
	}
}
