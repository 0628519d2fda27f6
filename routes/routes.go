package routes

import (
	"time"

	"nakeslink/config"
	"nakeslink/controllers"
	"nakeslink/interfaces"
	"nakeslink/middleware"
	"nakeslink/repositories"
	"nakeslink/services"
	"nakeslink/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.mongodb.org/mongo-driver/mongo"
)

// SetupRoutes wires repositories, services, controllers and middleware into
// the router.
func SetupRoutes(cfg *config.Config, db *mongo.Database, redisClient *redis.Client, dispatchGateway interfaces.DispatchGateway, notifier interfaces.Notifier) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	repos := initializeRepositories(db)
	svcs := initializeServices(repos, dispatchGateway, notifier)
	ctrls := initializeControllers(cfg, svcs, db, redisClient)

	jwtService := utils.NewJWTService(cfg.JWTSecret)
	authMiddleware := middleware.NewAuthMiddleware(jwtService, repos.User)

	router.Use(middleware.DefaultLoggerMiddleware())
	router.Use(middleware.CORSMiddleware(cfg.Environment))
	rateWindow := time.Duration(cfg.RateLimitWindow) * time.Minute
	router.Use(middleware.NewRateLimiter(redisClient, cfg.RateLimitRequests, rateWindow).Middleware())

	router.GET("/health", ctrls.Health.HealthCheck)

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware.RequireAuth())

	SetupEmergencyRoutes(v1, ctrls.Emergency, authMiddleware, redisClient)

	return router
}

type Repositories struct {
	User      *repositories.UserRepository
	Emergency *repositories.EmergencyRepository
}

func initializeRepositories(db *mongo.Database) *Repositories {
	return &Repositories{
		User:      repositories.NewUserRepository(db),
		Emergency: repositories.NewEmergencyRepository(db),
	}
}

type Services struct {
	Emergency *services.EmergencyService
}

func initializeServices(repos *Repositories, dispatchGateway interfaces.DispatchGateway, notifier interfaces.Notifier) *Services {
	return &Services{
		Emergency: services.NewEmergencyService(repos.Emergency, repos.User, dispatchGateway, notifier),
	}
}

type Controllers struct {
	Emergency *controllers.EmergencyController
	Health    *controllers.HealthController
}

func initializeControllers(cfg *config.Config, svcs *Services, db *mongo.Database, redisClient *redis.Client) *Controllers {
	return &Controllers{
		Emergency: controllers.NewEmergencyController(svcs.Emergency),
		Health:    controllers.NewHealthController(db, redisClient, cfg.Version),
	}
}
